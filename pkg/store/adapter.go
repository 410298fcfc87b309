package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Adapter wraps a Backend and enforces the failure contract: reads degrade
// to "not found", writes return a *StorageError, and nothing panics past it.
type Adapter struct {
	backend Backend
	logger  zerolog.Logger
}

// NewAdapter creates an adapter over backend. A nil backend is allowed and
// behaves as an unsupported store.
func NewAdapter(backend Backend, logger zerolog.Logger) *Adapter {
	return &Adapter{
		backend: backend,
		logger:  logger,
	}
}

// Available reports whether a backend is configured.
func (a *Adapter) Available() bool {
	return a.backend != nil
}

// Get returns the value stored under key. Missing keys and storage failures
// both report false.
func (a *Adapter) Get(ctx context.Context, store, key string) ([]byte, bool) {
	var value []byte
	err := a.do(ctx, "get", store, key, func(ctx context.Context) error {
		var err error
		value, err = a.backend.Get(ctx, store, key)
		return err
	})
	if err != nil {
		return nil, false
	}
	return value, true
}

// All returns every record of a store. Storage failures report false.
func (a *Adapter) All(ctx context.Context, store string) (map[string][]byte, bool) {
	var values map[string][]byte
	err := a.do(ctx, "all", store, "", func(ctx context.Context) error {
		var err error
		values, err = a.backend.All(ctx, store)
		return err
	})
	if err != nil {
		return nil, false
	}
	if values == nil {
		values = map[string][]byte{}
	}
	return values, true
}

// Put stores value under key.
func (a *Adapter) Put(ctx context.Context, store, key string, value []byte) error {
	return a.do(ctx, "put", store, key, func(ctx context.Context) error {
		return a.backend.Put(ctx, store, key, value)
	})
}

// PutMany stores all values.
func (a *Adapter) PutMany(ctx context.Context, store string, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}
	return a.do(ctx, "put_many", store, "", func(ctx context.Context) error {
		return a.backend.PutMany(ctx, store, values)
	})
}

// Clear removes every record of a store.
func (a *Adapter) Clear(ctx context.Context, store string) error {
	return a.do(ctx, "clear", store, "", func(ctx context.Context) error {
		return a.backend.Clear(ctx, store)
	})
}

// Close releases the backend.
func (a *Adapter) Close() error {
	if a.backend == nil {
		return nil
	}
	return a.do(context.Background(), "close", "", "", func(context.Context) error {
		return a.backend.Close()
	})
}

// do runs fn against the backend and converts every failure except
// ErrNotFound into a logged, counted *StorageError.
func (a *Adapter) do(ctx context.Context, op, store, key string, fn func(ctx context.Context) error) (err error) {
	if a.backend == nil {
		return a.fail(&StorageError{Op: op, Store: store, Key: key, Err: ErrUnsupported})
	}

	defer func() {
		if r := recover(); r != nil {
			err = a.fail(&StorageError{Op: op, Store: store, Key: key, Err: fmt.Errorf("%w: %v", ErrBackendPanic, r)})
		}
	}()

	if err := fn(ctx); err != nil {
		if errors.Is(err, ErrNotFound) {
			StoreMisses.WithLabelValues(store).Inc()
			return err
		}
		return a.fail(&StorageError{Op: op, Store: store, Key: key, Err: err})
	}

	StoreOperations.WithLabelValues(op).Inc()
	return nil
}

func (a *Adapter) fail(serr *StorageError) error {
	StoreErrors.WithLabelValues(serr.Op).Inc()
	event := a.logger.Warn()
	if errors.Is(serr.Err, ErrUnsupported) {
		event = a.logger.Debug()
	}
	event.
		Err(serr.Err).
		Str("operation", serr.Op).
		Str("store", serr.Store).
		Str("key", serr.Key).
		Msg("Storage operation failed")
	return serr
}
