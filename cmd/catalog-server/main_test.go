package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/game-catalog/internal/testutil"
	"github.com/Sternrassler/game-catalog/pkg/config"
	"github.com/rs/zerolog"
)

func startServer(t *testing.T, cfg config.Config) (baseURL string, stop func() error) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, ln, zerolog.Nop())
	}()

	return "http://" + ln.Addr().String(), func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(15 * time.Second):
			t.Fatal("server did not stop")
			return nil
		}
	}
}

func waitReady(t *testing.T, baseURL string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/readyz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server never became ready")
}

func TestRun_ServesCatalog(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(60))
	defer origin.Close()

	cfg := config.DefaultConfig()
	cfg.CatalogURL = origin.URL()
	cfg.StoreBackend = config.BackendSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "catalog.db")

	baseURL, stop := startServer(t, cfg)
	waitReady(t, baseURL)

	resp, err := http.Get(baseURL + "/games?page=2")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/games status = %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"total_items":60`) || !strings.Contains(string(body), `"page":2`) {
		t.Errorf("unexpected /games body: %s", body)
	}

	resp, err = http.Get(baseURL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	metricsBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(metricsBody), "catalog_entries 60") {
		t.Error("/metrics does not report catalog_entries 60")
	}

	if err := stop(); err != nil {
		t.Fatalf("run() returned %v", err)
	}
	if got := origin.GetRequestCount(); got != 1 {
		t.Errorf("origin requests = %d, want 1", got)
	}
}

func TestRun_RestartServesDurableCopy(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(12))

	cfg := config.DefaultConfig()
	cfg.CatalogURL = origin.URL()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "catalog.db")

	baseURL, stop := startServer(t, cfg)
	waitReady(t, baseURL)
	if err := stop(); err != nil {
		t.Fatal(err)
	}
	origin.Close()

	baseURL, stop = startServer(t, cfg)
	defer stop()
	waitReady(t, baseURL)

	resp, err := http.Get(baseURL + "/games/game-011")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/games/game-011 after restart status = %d, want 200", resp.StatusCode)
	}
}

func TestRun_BadBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CatalogURL = "http://127.0.0.1:1/g.json"
	cfg.StoreBackend = config.BackendRedis
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := run(context.Background(), cfg, ln, zerolog.Nop()); err == nil {
		t.Fatal("run() expected error for unreachable redis")
	}
}
