package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/villetakanen/pelilauta-17-sub000/internal/config"
	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore/redisdoc"
	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore/sqldoc"
)

// NewStore selects the document store backend from cfg.StoreDriver. Every
// call on the returned store is bounded by cfg.StoreTimeout.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (docstore.Store, error) {
	var (
		st  docstore.Store
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverRedis:
		st, err = redisdoc.Open(ctx, cfg.RedisURL, redisdoc.WithMaxAttempts(cfg.TxMaxAttempts))
	case config.DriverPostgres:
		st, err = sqldoc.OpenPostgres(ctx, cfg.PostgresDSN, cfg.TxMaxAttempts)
	case config.DriverSQLite:
		st, err = sqldoc.OpenSQLite(ctx, cfg.SQLitePath, cfg.TxMaxAttempts)
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER: %s", cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("driver", cfg.StoreDriver).
		Int("tx_max_attempts", cfg.TxMaxAttempts).
		Dur("timeout", cfg.StoreTimeout).
		Msg("document store ready")
	return docstore.WithTimeout(st, cfg.StoreTimeout), nil
}
