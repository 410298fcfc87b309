package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/game-catalog/internal/testutil"
	"github.com/Sternrassler/game-catalog/pkg/fetch"
	"github.com/Sternrassler/game-catalog/pkg/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newOriginClient(t *testing.T, origin *testutil.MockOrigin) *fetch.Client {
	t.Helper()
	cfg := fetch.DefaultConfig(origin.URL(), "GameCatalogTest/1.0")
	cfg.Retry = fetch.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 2}
	c, err := fetch.New(cfg)
	if err != nil {
		t.Fatalf("fetch.New() error = %v", err)
	}
	c.SetLogger(testLogger)
	return c
}

func newRedisAdapter(t *testing.T, mr *miniredis.Miniredis) *store.Adapter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return store.NewAdapter(store.NewRedisBackend(client, "flow_games"), testLogger)
}

// TestFullCatalogFlow tests memory → durable → network against a mock origin
// and a Redis durable tier.
func TestFullCatalogFlow(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(120))
	defer origin.Close()
	mr := miniredis.RunT(t)

	m := NewManager(newOriginClient(t, origin), newRedisAdapter(t, mr), DefaultConfig(), testLogger)
	ctx := context.Background()

	snap, err := m.GetCatalog(ctx)
	if err != nil {
		t.Fatalf("GetCatalog() error = %v", err)
	}
	if snap.Len() != 120 || snap.Source != LayerNetwork {
		t.Fatalf("snapshot = %d entries from %s", snap.Len(), snap.Source)
	}
	if got := len(snap.Index.ByCategory("")); got != 30 {
		t.Errorf("browser entries = %d, want 30", got)
	}
	if !mr.Exists("flow_games:items") || !mr.Exists("flow_games:meta") {
		t.Fatal("catalog was not persisted to redis")
	}

	// a second process restores from redis without touching the origin
	second := NewManager(newOriginClient(t, origin), newRedisAdapter(t, mr), DefaultConfig(), testLogger)
	restored, err := second.GetCatalog(ctx)
	if err != nil {
		t.Fatalf("GetCatalog() error = %v", err)
	}
	second.Wait()

	if origin.GetRequestCount() != 1 {
		t.Errorf("origin requests = %d, want 1", origin.GetRequestCount())
	}
	if restored.Source != LayerDurable {
		t.Errorf("Source = %q, want durable", restored.Source)
	}
	want, got := snap.Catalog.IDs(), restored.Catalog.IDs()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("restored order differs at %d: %s != %s", i, got[i], want[i])
		}
	}
}

// TestNotModifiedFlow tests that a forced refresh of an unchanged catalog is
// answered with 304 and keeps the snapshot contents.
func TestNotModifiedFlow(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(10))
	defer origin.Close()

	m := NewManager(newOriginClient(t, origin), store.NewAdapter(store.NewMemoryBackend(), testLogger), DefaultConfig(), testLogger)
	ctx := context.Background()

	first, err := m.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	second, err := m.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if origin.GetConditionalCount() != 1 {
		t.Errorf("conditional requests = %d, want 1", origin.GetConditionalCount())
	}
	if second.Index != first.Index || second.ETag != origin.ETag() {
		t.Error("304 should keep the catalog and its validators")
	}

	origin.SetCatalog(testutil.SampleCatalog(12))
	third, err := m.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if third.Len() != 12 || third.ETag != origin.ETag() {
		t.Errorf("changed catalog = %d entries, ETag %q", third.Len(), third.ETag)
	}
}

// TestOriginOutage tests stale-while-error against a failing origin.
func TestOriginOutage(t *testing.T) {
	origin := testutil.NewMockOrigin(testutil.SampleCatalog(5))
	defer origin.Close()
	mr := miniredis.RunT(t)

	seed := NewManager(newOriginClient(t, origin), newRedisAdapter(t, mr), DefaultConfig(), testLogger)
	if _, err := seed.GetCatalog(context.Background()); err != nil {
		t.Fatalf("seed GetCatalog() error = %v", err)
	}

	origin.Enqueue(testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse())
	m := NewManager(newOriginClient(t, origin), newRedisAdapter(t, mr), DefaultConfig(), testLogger)
	m.SetClock(func() time.Time { return time.Now().Add(48 * time.Hour) })

	snap, err := m.GetCatalog(context.Background())
	if err != nil {
		t.Fatalf("GetCatalog() error = %v", err)
	}
	m.Wait()
	if snap.Len() != 5 || snap.Source != LayerDurable {
		t.Errorf("snapshot = %d entries from %s, want stale durable copy", snap.Len(), snap.Source)
	}
	if origin.GetRequestCount() != 3 {
		t.Errorf("origin requests = %d, want 3 (seed + 2 failed attempts)", origin.GetRequestCount())
	}

	// nothing durable and the origin down: unavailable
	origin.Enqueue(testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse())
	cold := NewManager(newOriginClient(t, origin), store.NewAdapter(nil, testLogger), DefaultConfig(), testLogger)
	if _, err := cold.GetCatalog(context.Background()); !errors.Is(err, ErrCatalogUnavailable) {
		t.Errorf("GetCatalog() error = %v, want ErrCatalogUnavailable", err)
	}
}
