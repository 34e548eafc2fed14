package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Store drivers.
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Auth modes.
const (
	AuthStatic = "static"
	AuthRemote = "remote"
)

// Config holds the configuration for the threads service.
// Environment variables are parsed from the PELILAUTA_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Document store
	StoreDriver   string        `envconfig:"STORE_DRIVER" default:"redis"`
	RedisURL      string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	PostgresDSN   string        `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath    string        `envconfig:"SQLITE_PATH" default:""`
	TxMaxAttempts int           `envconfig:"TX_MAX_ATTEMPTS" default:"5"`
	StoreTimeout  time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`

	// Authentication
	AuthMode         string        `envconfig:"AUTH_MODE" default:"static"`
	AuthStaticTokens string        `envconfig:"AUTH_STATIC_TOKENS" default:""`
	AuthVerifyURL    string        `envconfig:"AUTH_VERIFY_URL" default:""`
	AdminCacheTTL    time.Duration `envconfig:"ADMIN_CACHE_TTL" default:"30s"`

	// Attachments (S3 compatible). Empty endpoint disables uploads.
	BlobEndpoint  string `envconfig:"BLOB_ENDPOINT" default:""`
	BlobAccessKey string `envconfig:"BLOB_ACCESS_KEY" default:""`
	BlobSecretKey string `envconfig:"BLOB_SECRET_KEY" default:""`
	BlobBucket    string `envconfig:"BLOB_BUCKET" default:"pelilauta-uploads"`
	BlobUseSSL    bool   `envconfig:"BLOB_USE_SSL" default:"false"`
	BlobPublicURL string `envconfig:"BLOB_PUBLIC_URL" default:""`

	// Cache purge. Empty URL disables purging.
	PurgeURL   string  `envconfig:"PURGE_URL" default:""`
	PurgeToken string  `envconfig:"PURGE_TOKEN" default:""`
	PurgeRPS   float64 `envconfig:"PURGE_RPS" default:"5"`

	// Search mirror. Empty URL disables mirroring.
	MeiliURL   string `envconfig:"MEILI_URL" default:""`
	MeiliKey   string `envconfig:"MEILI_KEY" default:""`
	MeiliIndex string `envconfig:"MEILI_INDEX" default:"threads"`

	// Background work
	BackgroundTimeout   time.Duration `envconfig:"BACKGROUND_TIMEOUT" default:"30s"`
	NotifyMaxRecipients int           `envconfig:"NOTIFY_MAX_RECIPIENTS" default:"25"`
	NotifySnippetLength int           `envconfig:"NOTIFY_SNIPPET_LENGTH" default:"120"`

	// Health checks
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"15"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates driver and auth combinations and fills derived values.
func (c *Config) ResolveDefaults() error {
	switch c.StoreDriver {
	case DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("PELILAUTA_REDIS_URL is required when STORE_DRIVER=redis")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("PELILAUTA_POSTGRES_DSN is required when STORE_DRIVER=postgres")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			c.SQLitePath = "data/threads.db"
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}

	switch c.AuthMode {
	case AuthStatic:
	case AuthRemote:
		if c.AuthVerifyURL == "" {
			return fmt.Errorf("PELILAUTA_AUTH_VERIFY_URL is required when AUTH_MODE=remote")
		}
	default:
		return fmt.Errorf("unsupported AUTH_MODE: %s", c.AuthMode)
	}

	if c.TxMaxAttempts < 1 {
		c.TxMaxAttempts = 1
	}
	if c.PurgeRPS <= 0 {
		c.PurgeRPS = 5
	}
	if c.NotifyMaxRecipients < 1 {
		return fmt.Errorf("NOTIFY_MAX_RECIPIENTS must be positive, got %d", c.NotifyMaxRecipients)
	}
	return nil
}

// New creates a Config from the environment, after preloading an optional .env file.
// Example: PELILAUTA_HTTP_PORT, PELILAUTA_STORE_DRIVER
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("PELILAUTA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("store_driver", cfg.StoreDriver).
		Str("auth_mode", cfg.AuthMode).
		Bool("uploads_enabled", cfg.BlobEndpoint != "").
		Bool("purge_enabled", cfg.PurgeURL != "").
		Bool("search_mirror_enabled", cfg.MeiliURL != "").
		Dur("background_timeout", cfg.BackgroundTimeout).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment:               EnvTesting,
		LogLevel:                  "debug",
		HTTPPort:                  8080,
		StoreDriver:               DriverRedis,
		RedisURL:                  "redis://localhost:6379/0",
		TxMaxAttempts:             5,
		StoreTimeout:              5 * time.Second,
		AuthMode:                  AuthStatic,
		AdminCacheTTL:             30 * time.Second,
		BlobBucket:                "pelilauta-uploads",
		PurgeRPS:                  5,
		MeiliIndex:                "threads",
		BackgroundTimeout:         30 * time.Second,
		NotifyMaxRecipients:       25,
		NotifySnippetLength:       120,
		HealthIntervalSeconds:     15,
		HealthProbeTimeoutSeconds: 2,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
