package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/game-catalog/pkg/catalog"
	"github.com/Sternrassler/game-catalog/pkg/fetch"
	"github.com/Sternrassler/game-catalog/pkg/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrCatalogUnavailable indicates that neither memory, the durable
	// store nor the network produced a catalog.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	errNotModifiedWithoutSnapshot = errors.New("origin answered 304 but no snapshot is held")
)

const (
	// DefaultTTL is how long a fetched catalog counts as fresh.
	DefaultTTL = 24 * time.Hour

	// DefaultFetchTimeout bounds one refresh, retries included.
	DefaultFetchTimeout = 15 * time.Second

	refreshKey = "refresh"
	loadKey    = "load"
)

// Source produces the catalog from the network.
type Source interface {
	Fetch(ctx context.Context, prev fetch.Validators) (*fetch.Result, error)
}

// Config holds the manager configuration.
type Config struct {
	TTL          time.Duration
	FetchTimeout time.Duration
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		TTL:          DefaultTTL,
		FetchTimeout: DefaultFetchTimeout,
	}
}

// Manager owns the authoritative catalog snapshot.
type Manager struct {
	source Source
	store  *store.Adapter
	config Config
	logger zerolog.Logger
	now    func() time.Time

	current      atomic.Pointer[Snapshot]
	group        singleflight.Group
	revalidating atomic.Bool
	durable      atomic.Bool // the durable copy is complete

	mu         sync.Mutex
	closed     bool
	background sync.WaitGroup
}

// NewManager creates a catalog cache manager. A nil adapter means no
// durable tier.
func NewManager(source Source, adapter *store.Adapter, cfg Config, logger zerolog.Logger) *Manager {
	if source == nil {
		panic("catalog source cannot be nil")
	}
	if adapter == nil {
		adapter = store.NewAdapter(nil, logger)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Manager{
		source: source,
		store:  adapter,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source (for testing).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.config
}

// Current returns the snapshot held in memory, or nil.
func (m *Manager) Current() *Snapshot {
	return m.current.Load()
}

// IsStale reports whether snap is older than the TTL.
func (m *Manager) IsStale(snap *Snapshot) bool {
	return snap.IsStale(m.now(), m.config.TTL)
}

// GetCatalog returns the best available catalog. The error is non-nil only
// when no tier had data; the returned snapshot is then empty and the error
// wraps ErrCatalogUnavailable. The returned snapshot is never nil.
func (m *Manager) GetCatalog(ctx context.Context) (*Snapshot, error) {
	if snap := m.current.Load(); snap != nil {
		CacheHits.WithLabelValues(string(LayerMemory)).Inc()
		m.serve(snap)
		return snap, nil
	}

	ch := m.group.DoChan(loadKey, func() (any, error) {
		return m.load(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		snap := res.Val.(*Snapshot)
		if res.Err != nil && !errors.Is(res.Err, ErrCatalogUnavailable) {
			// stale-while-error: data was found, the refresh failure is not the caller's problem
			return snap, nil
		}
		return snap, res.Err
	case <-ctx.Done():
		if snap := m.current.Load(); snap != nil {
			return snap, nil
		}
		return emptySnapshot(), fmt.Errorf("%w: %w", ErrCatalogUnavailable, ctx.Err())
	}
}

// load resolves a cold read: durable store, then network.
func (m *Manager) load(ctx context.Context) (*Snapshot, error) {
	if snap := m.current.Load(); snap != nil {
		return snap, nil
	}

	if snap := m.restore(ctx); snap != nil {
		CacheHits.WithLabelValues(string(LayerDurable)).Inc()
		m.adopt(snap)
		m.logger.Info().
			Int("entries", snap.Len()).
			Dur("age", snap.Age(m.now())).
			Bool("stale", snap.IsStale(m.now(), m.config.TTL)).
			Msg("Catalog restored from durable store")
		m.serve(snap)
		return snap, nil
	}

	CacheMisses.Inc()
	return m.Refresh(ctx)
}

// serve records the age of snap and starts a background refresh when it is
// stale.
func (m *Manager) serve(snap *Snapshot) {
	now := m.now()
	SnapshotAge.Set(snap.Age(now).Seconds())
	if snap.IsStale(now, m.config.TTL) {
		m.revalidate()
	}
}

// Refresh fetches the catalog from the network and publishes it. Concurrent
// callers share one fetch and receive the same result. On failure the
// previous snapshot (or the durable copy) is returned with the fetch error;
// when there is none the snapshot is empty and the error wraps
// ErrCatalogUnavailable. The returned snapshot is never nil.
func (m *Manager) Refresh(ctx context.Context) (*Snapshot, error) {
	ch := m.group.DoChan(refreshKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.FetchTimeout)
		defer cancel()
		return m.refresh(fctx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			RefreshCoalesced.Inc()
		}
		return res.Val.(*Snapshot), res.Err
	case <-ctx.Done():
		if snap := m.current.Load(); snap != nil {
			return snap, ctx.Err()
		}
		return emptySnapshot(), fmt.Errorf("%w: %w", ErrCatalogUnavailable, ctx.Err())
	}
}

func (m *Manager) refresh(ctx context.Context) (*Snapshot, error) {
	prev := m.current.Load()

	var validators fetch.Validators
	if prev != nil && prev.Source != LayerNone {
		validators = prev.Validators()
	}

	res, err := m.source.Fetch(ctx, validators)
	if err == nil && res.NotModified && prev == nil {
		err = errNotModifiedWithoutSnapshot
	}
	if err != nil {
		RefreshTotal.WithLabelValues("error").Inc()
		m.logger.Warn().
			Err(err).
			Bool("have_snapshot", prev != nil).
			Msg("Catalog refresh failed")
		return m.fallback(ctx, err)
	}

	now := m.now()

	if res.NotModified {
		snap := prev.renewed(now, res.Validators)
		if err := m.save(ctx, snap, m.durable.Load()); err != nil {
			m.logWriteFailure(err)
		}
		m.adopt(snap)
		RefreshTotal.WithLabelValues("not_modified").Inc()
		m.logger.Debug().Int("entries", snap.Len()).Msg("Catalog unchanged, fetch time renewed")
		return snap, nil
	}

	snap := newSnapshot(res.Catalog, now, LayerNetwork, res.Validators)
	if err := m.save(ctx, snap, false); err != nil {
		m.logWriteFailure(err)
	}
	m.adopt(snap)
	RefreshTotal.WithLabelValues("success").Inc()
	m.logger.Info().
		Int("entries", snap.Len()).
		Int("categories", len(snap.Index.Categories())).
		Int("issues", len(res.Issues)).
		Msg("Catalog refreshed")
	return snap, nil
}

// fallback picks the snapshot to serve after a failed fetch.
func (m *Manager) fallback(ctx context.Context, cause error) (*Snapshot, error) {
	if prev := m.current.Load(); prev != nil {
		return prev, cause
	}
	if durable := m.restore(ctx); durable != nil {
		CacheHits.WithLabelValues(string(LayerDurable)).Inc()
		m.adopt(durable)
		m.logger.Warn().
			Int("entries", durable.Len()).
			Msg("Serving durable catalog after failed fetch")
		return durable, cause
	}
	m.logger.Error().Err(cause).Msg("No catalog available from any source")
	return emptySnapshot(), fmt.Errorf("%w: %w", ErrCatalogUnavailable, cause)
}

// adopt publishes snap.
func (m *Manager) adopt(snap *Snapshot) {
	m.current.Store(snap)
	Entries.Set(float64(snap.Len()))
}

func (m *Manager) logWriteFailure(err error) {
	if errors.Is(err, store.ErrUnsupported) {
		m.logger.Debug().Msg("No durable store, catalog kept in memory only")
		return
	}
	m.logger.Warn().Err(err).Msg("Failed to persist catalog, serving from memory")
}

// revalidate starts a background refresh unless one is already running or
// the manager is closed.
func (m *Manager) revalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.revalidating.CompareAndSwap(false, true) {
		return
	}
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		defer m.revalidating.Store(false)

		m.logger.Debug().Msg("Revalidating stale catalog in background")
		if _, err := m.Refresh(context.Background()); err != nil {
			m.logger.Warn().Err(err).Msg("Background refresh failed, keeping stale catalog")
		}
	}()
}

// Wait blocks until background refreshes started so far have finished.
// Reads issued while Wait runs may start new ones; use Close to stop them.
func (m *Manager) Wait() {
	m.background.Wait()
}

// Close stops background revalidation and waits for a running refresh to
// finish. Reads keep working and serve stale data without revalidating.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.background.Wait()
}

// Invalidate drops the memory snapshot. The next read consults the durable
// store.
func (m *Manager) Invalidate() {
	m.current.Store(nil)
	Entries.Set(0)
}

// ByCategory returns the entries of one category. An empty name selects
// the default category.
func (m *Manager) ByCategory(ctx context.Context, name string) ([]catalog.Entry, error) {
	snap, err := m.GetCatalog(ctx)
	return snap.Index.ByCategory(name), err
}

// Lookup finds an entry by ID.
func (m *Manager) Lookup(ctx context.Context, id string) (catalog.Entry, bool, error) {
	snap, err := m.GetCatalog(ctx)
	e, ok := snap.Catalog.Find(id)
	return e, ok, err
}
