// Command catalog-server serves the game catalog over HTTP.
package main

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

	"github.com/Sternrassler/game-catalog/internal/app"
	"github.com/Sternrassler/game-catalog/internal/server"
	"github.com/Sternrassler/game-catalog/pkg/config"
	"github.com/Sternrassler/game-catalog/pkg/logging"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	lc := cfg.Logging()
	lc.Output = os.Stdout
	logger := logging.Setup(lc).With().Str("component", "catalog-server").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Addr()).Msg("Failed to listen")
	}

	if err := run(ctx, cfg, ln, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// run serves on ln until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg config.Config, ln net.Listener, logger zerolog.Logger) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		ln.Close()
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close durable store")
		}
	}()

	go warmUp(ctx, a, logger)

	srv := &http.Server{
		Handler:           server.New(a.Manager, logging.NewLogger("http")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", ln.Addr().String()).
			Str("catalog_url", cfg.CatalogURL).
			Str("store", cfg.StoreBackend).
			Dur("ttl", cfg.TTL).
			Msg("Starting catalog server")
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("Server stopped")
	return nil
}

// warmUp loads the catalog so /readyz turns green without waiting for the
// first request.
func warmUp(ctx context.Context, a *app.App, logger zerolog.Logger) {
	snap, err := a.Manager.GetCatalog(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Catalog not available at startup, will retry on demand")
		return
	}
	logger.Info().
		Int("entries", snap.Len()).
		Str("source", string(snap.Source)).
		Msg("Catalog ready")
}
