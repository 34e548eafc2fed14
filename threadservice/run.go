package threadservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/villetakanen/pelilauta-17-sub000/internal/api"
	"github.com/villetakanen/pelilauta-17-sub000/internal/authz"
	"github.com/villetakanen/pelilauta-17-sub000/internal/background"
	"github.com/villetakanen/pelilauta-17-sub000/internal/config"
	"github.com/villetakanen/pelilauta-17-sub000/internal/docstore"
	"github.com/villetakanen/pelilauta-17-sub000/internal/factory"
	"github.com/villetakanen/pelilauta-17-sub000/internal/health"
	"github.com/villetakanen/pelilauta-17-sub000/internal/logger"
	"github.com/villetakanen/pelilauta-17-sub000/internal/metrics"
	"github.com/villetakanen/pelilauta-17-sub000/internal/model"
	"github.com/villetakanen/pelilauta-17-sub000/internal/notify"
	"github.com/villetakanen/pelilauta-17-sub000/internal/services"
	"github.com/villetakanen/pelilauta-17-sub000/internal/tagindex"
)

const serviceName = "threads-service"

// app holds the wired service.
type app struct {
	store    docstore.Store
	runner   *background.Runner
	threads  *services.ThreadService
	gate     *authz.Gate
	inbox    *notify.Service
	checkers []health.HealthChecker
}

// Run starts the threads service HTTP server and blocks until shutdown or error.
func Run() error {
	cfg, err := config.New()
	if err != nil {
		bootLog := logger.New(serviceName)
		bootLog.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log := logger.NewWithWriter(os.Stdout, serviceName, cfg.LogLevel)

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("store_driver", cfg.StoreDriver).
		Int("http_port", cfg.HTTPPort).
		Msg("Threads service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	a, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.store.Close() }()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Error().Stack().Err(err).Msg("metrics registration failed")
		return err
	}

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, a.checkers)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	router := a.router(svcHealth.IsHealthy, prometheus.DefaultGatherer)
	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		if err := a.runner.Wait(ctxShutdown); err != nil {
			log.Warn().Err(err).Msg("background tasks still running at exit")
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs the store and every optional integration, and
// fails fast when a required one is unavailable.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}
	a, err := wire(ctx, cfg, log, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

// wire builds services and health checkers on top of an open store.
func wire(ctx context.Context, cfg *config.Config, log zerolog.Logger, st docstore.Store) (*app, error) {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second

	verifier, err := factory.NewVerifier(cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Bearer verifier unavailable")
		return nil, err
	}
	gate := authz.NewGate(verifier, authz.NewAdminList(st, cfg.AdminCacheTTL), st)

	a := &app{
		store:  st,
		runner: background.NewRunner(log, cfg.BackgroundTimeout),
		gate:   gate,
		inbox: notify.New(st, log, notify.Options{
			MaxRecipients: cfg.NotifyMaxRecipients,
			SnippetLength: cfg.NotifySnippetLength,
		}),
	}
	a.checkers = append(a.checkers, health.NewPingChecker("store", storePinger(st), log, probeTimeout))

	deps := services.Deps{
		Store:         st,
		Index:         tagindex.New(st, log),
		Gate:          gate,
		Notifier:      a.inbox,
		Runner:        a.runner,
		Log:           log,
		SnippetLength: cfg.NotifySnippetLength,
	}

	uploader, err := factory.NewUploader(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Blob uploader unavailable")
		return nil, err
	}
	if uploader != nil {
		deps.Uploader = uploader
		a.checkers = append(a.checkers, health.NewPingChecker("blob", uploader, log, probeTimeout))
	}
	if purger := factory.NewPurger(cfg); purger != nil {
		deps.Purger = purger
	}
	if mirror := factory.NewMirror(cfg, log); mirror != nil {
		deps.Mirror = mirror
		a.checkers = append(a.checkers, health.NewPingChecker("search", health.PingFunc(func(context.Context) error {
			return mirror.HealthPing()
		}), log, probeTimeout))
	}

	a.threads = services.NewThreadService(deps)
	return a, nil
}

// storePinger prefers the store's own HealthPing and otherwise reads a key
// that is never written.
func storePinger(st docstore.Store) health.HealthPinger {
	if p, ok := st.(health.HealthPinger); ok {
		return p
	}
	return health.PingFunc(func(ctx context.Context) error {
		var v struct{}
		err := st.Get(ctx, model.CollectionMeta, "__health_check__", &v)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (a *app) router(isHealthy func() bool, gatherer prometheus.Gatherer) http.Handler {
	return api.NewRouter(api.RouterDeps{
		Threads:   a.threads,
		Gate:      a.gate,
		Inbox:     a.inbox,
		IsHealthy: isHealthy,
		Gatherer:  gatherer,
	})
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, checkers []health.HealthChecker) *health.ServiceHealthChecker {
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second
	for _, c := range checkers {
		go c.Start(ctx, interval)
	}
	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
