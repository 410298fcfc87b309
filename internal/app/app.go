// Package app assembles the catalog components from a config.Config.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/game-catalog/pkg/cache"
	"github.com/Sternrassler/game-catalog/pkg/config"
	"github.com/Sternrassler/game-catalog/pkg/fetch"
	"github.com/Sternrassler/game-catalog/pkg/logging"
	"github.com/Sternrassler/game-catalog/pkg/ratelimit"
	"github.com/Sternrassler/game-catalog/pkg/store"
	"github.com/redis/go-redis/v9"
)

// App holds the wired catalog stack.
type App struct {
	Config  config.Config
	Manager *cache.Manager
	Fetcher *fetch.Client
	Store   *store.Adapter
	Tracker *ratelimit.Tracker
}

// New builds the stack. The durable backend is opened here; a backend that
// cannot be reached is an error, not a silent downgrade to memory.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	adapter := store.NewAdapter(backend, logging.NewLogger("store"))

	tracker := ratelimit.NewTracker(ratelimit.DefaultConfig(), logging.NewLogger("ratelimit"))

	fcfg := fetch.DefaultConfig(cfg.CatalogURL, cfg.UserAgent)
	fcfg.Timeout = attemptTimeout(cfg)
	fcfg.Retry.MaxAttempts = cfg.MaxRetries
	fcfg.Cooldown = tracker
	fetcher, err := fetch.New(fcfg)
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	manager := cache.NewManager(fetcher, adapter, cache.Config{
		TTL:          cfg.TTL,
		FetchTimeout: cfg.FetchTimeout,
	}, logging.NewLogger("catalog-cache"))

	return &App{
		Config:  cfg,
		Manager: manager,
		Fetcher: fetcher,
		Store:   adapter,
		Tracker: tracker,
	}, nil
}

// OpenBackend opens the durable backend named by cfg.StoreBackend. The
// "none" backend yields nil.
func OpenBackend(ctx context.Context, cfg config.Config) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		return store.NewMemoryBackend(), nil
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return store.NewRedisBackend(client, cfg.Database), nil
	case config.BackendSQLite:
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store.NewSQLiteBackend(db, cfg.Database), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// attemptTimeout splits the fetch budget across the configured attempts so
// that a hanging origin leaves room for retries.
func attemptTimeout(cfg config.Config) time.Duration {
	if cfg.MaxRetries <= 1 {
		return cfg.FetchTimeout
	}
	return cfg.FetchTimeout / time.Duration(cfg.MaxRetries)
}

// Close stops background revalidation, waits for a running refresh and
// releases the durable store.
func (a *App) Close() error {
	a.Manager.Close()
	return a.Store.Close()
}
