package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/villetakanen/pelilauta-17-sub000/internal/attachments"
	"github.com/villetakanen/pelilauta-17-sub000/internal/authz"
	"github.com/villetakanen/pelilauta-17-sub000/internal/config"
	"github.com/villetakanen/pelilauta-17-sub000/internal/purge"
	"github.com/villetakanen/pelilauta-17-sub000/internal/searchmirror"
)

// NewVerifier builds the bearer verifier for cfg.AuthMode.
func NewVerifier(cfg *config.Config) (authz.Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthStatic:
		tokens, err := authz.ParseStaticTokens(cfg.AuthStaticTokens)
		if err != nil {
			return nil, err
		}
		return authz.NewStaticVerifier(tokens), nil
	case config.AuthRemote:
		return authz.NewRemoteVerifier(cfg.AuthVerifyURL, cfg.StoreTimeout), nil
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE: %s", cfg.AuthMode)
	}
}

// NewUploader returns the blob uploader, or nil when BlobEndpoint is unset.
// The bucket is created if missing; failure to reach it is only logged so the
// health checker can report it.
func NewUploader(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*attachments.MinioUploader, error) {
	if cfg.BlobEndpoint == "" {
		log.Info().Msg("attachments disabled: no blob endpoint configured")
		return nil, nil
	}
	up, err := attachments.NewMinio(attachments.MinioConfig{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		UseSSL:    cfg.BlobUseSSL,
		PublicURL: cfg.BlobPublicURL,
	})
	if err != nil {
		return nil, err
	}
	ensureCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := up.EnsureBucket(ensureCtx); err != nil {
		log.Warn().Err(err).Str("bucket", cfg.BlobBucket).Msg("blob bucket not ready")
	}
	return up, nil
}

// NewPurger returns the cache purge client, or nil when PurgeURL is unset.
func NewPurger(cfg *config.Config) *purge.Client {
	if cfg.PurgeURL == "" {
		return nil
	}
	return purge.New(cfg.PurgeURL, cfg.PurgeToken, cfg.PurgeRPS, cfg.StoreTimeout)
}

// NewMirror returns the search mirror, or nil when MeiliURL is unset. Index
// configuration runs asynchronously so startup never waits on Meilisearch.
func NewMirror(cfg *config.Config, log zerolog.Logger) *searchmirror.Meili {
	if cfg.MeiliURL == "" {
		return nil
	}
	m := searchmirror.NewMeili(cfg.MeiliURL, cfg.MeiliKey, cfg.MeiliIndex)
	go func() {
		if err := m.Configure(); err != nil {
			log.Warn().Err(err).Str("index", cfg.MeiliIndex).Msg("search index configure (may already exist)")
		}
	}()
	return m
}
