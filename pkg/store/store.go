// Package store provides the durable persistence layer for the catalog cache.
//
// A Backend is a record-oriented key/value store addressed by a logical
// database name and a store name. Two stores are used:
//
//   - items: one record per catalog entry, keyed by entry ID
//   - meta:  small facts such as the fetch timestamp and the ordering array
//
// Backends may return raw errors. Callers go through an Adapter, which turns
// every failure into a *StorageError or a "no data" result so a broken store
// never takes the cache down with it.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Logical store names.
const (
	Items = "items"
	Meta  = "meta"
)

// DefaultDatabase is the logical database name used when none is configured.
const DefaultDatabase = "flamepass_games"

var (
	// ErrNotFound indicates the key does not exist in the store.
	ErrNotFound = errors.New("record not found")

	// ErrUnsupported is returned for every operation when no backend is available.
	ErrUnsupported = errors.New("storage backend unsupported")

	// ErrBackendPanic wraps a panic recovered from a backend call.
	ErrBackendPanic = errors.New("storage backend panic")
)

// Backend is implemented by storage technologies.
type Backend interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, store, key string) ([]byte, error)
	Put(ctx context.Context, store, key string, value []byte) error
	// PutMany writes all values in one operation where the backend allows it.
	PutMany(ctx context.Context, store string, values map[string][]byte) error
	// All returns every record in the store. Iteration order carries no meaning.
	All(ctx context.Context, store string) (map[string][]byte, error)
	Clear(ctx context.Context, store string) error
	Close() error
}

// StorageError describes a failed storage operation.
type StorageError struct {
	Op    string
	Store string
	Key   string
	Err   error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %s/%s: %v", e.Op, e.Store, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Store, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StorageError) Unwrap() error {
	return e.Err
}
