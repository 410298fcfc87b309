// Package config loads the catalog service configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/game-catalog/pkg/logging"
	"github.com/caarlos0/env/v11"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Config holds the settings shared by catalog-server and catalogctl.
type Config struct {
	// CatalogURL is the g.json origin (REQUIRED).
	CatalogURL   string        `env:"CATALOG_URL"`
	UserAgent    string        `env:"USER_AGENT"            envDefault:"game-catalog/0.1.0"`
	TTL          time.Duration `env:"CATALOG_TTL"           envDefault:"24h"`
	FetchTimeout time.Duration `env:"CATALOG_FETCH_TIMEOUT" envDefault:"15s"`
	MaxRetries   int           `env:"FETCH_MAX_RETRIES"     envDefault:"3"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	RedisURL     string `env:"REDIS_URL"     envDefault:"redis://localhost:6379/0"`
	SQLitePath   string `env:"SQLITE_PATH"   envDefault:"catalog.db"`
	Database     string `env:"CATALOG_DB"    envDefault:"flamepass_games"`

	Port      int    `env:"PORT"       envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// DefaultConfig returns the configuration used when no variable is set.
func DefaultConfig() Config {
	return Config{
		UserAgent:    "game-catalog/0.1.0",
		TTL:          24 * time.Hour,
		FetchTimeout: 15 * time.Second,
		MaxRetries:   3,
		StoreBackend: BackendSQLite,
		RedisURL:     "redis://localhost:6379/0",
		SQLitePath:   "catalog.db",
		Database:     "flamepass_games",
		Port:         8080,
		LogLevel:     "info",
	}
}

// Load parses the environment over DefaultConfig and validates the result.
func Load() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.CatalogURL == "" {
		errs = append(errs, errors.New("CATALOG_URL is required"))
	} else if u, err := url.Parse(c.CatalogURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("CATALOG_URL must be an absolute http(s) url (got %q)", c.CatalogURL))
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		errs = append(errs, errors.New("USER_AGENT must not be empty"))
	}
	if c.TTL <= 0 {
		errs = append(errs, fmt.Errorf("CATALOG_TTL must be positive (got %s)", c.TTL))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CATALOG_FETCH_TIMEOUT must be positive (got %s)", c.FetchTimeout))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("FETCH_MAX_RETRIES must be at least 1 (got %d)", c.MaxRetries))
	}

	switch c.StoreBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendMemory, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be one of sqlite, redis, memory, none (got %q)", c.StoreBackend))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range (got %d)", c.Port))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Logging returns the logger configuration. Validate must have passed.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}
