package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps records in process memory. Used for tests and as the
// fallback when no durable backend is configured.
type MemoryBackend struct {
	mu     sync.RWMutex
	stores map[string]map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{stores: make(map[string]map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, store, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.stores[store][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Put(_ context.Context, store, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bucket(store)[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) PutMany(_ context.Context, store string, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bucket(store)
	for k, v := range values {
		b[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *MemoryBackend) All(_ context.Context, store string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(m.stores[store]))
	for k, v := range m.stores[store] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *MemoryBackend) Clear(_ context.Context, store string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.stores, store)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// bucket returns the map for store, creating it. Caller holds the write lock.
func (m *MemoryBackend) bucket(store string) map[string][]byte {
	b, ok := m.stores[store]
	if !ok {
		b = make(map[string][]byte)
		m.stores[store] = b
	}
	return b
}
