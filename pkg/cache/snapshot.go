package cache

import (
	"time"

	"github.com/Sternrassler/game-catalog/pkg/catalog"
	"github.com/Sternrassler/game-catalog/pkg/category"
	"github.com/Sternrassler/game-catalog/pkg/fetch"
)

// Layer names the tier a snapshot was served from.
type Layer string

const (
	LayerMemory  Layer = "memory"
	LayerDurable Layer = "durable"
	LayerNetwork Layer = "network"

	// LayerNone marks the empty snapshot returned when no tier had data.
	LayerNone Layer = "none"
)

// Snapshot is an immutable catalog generation together with its category
// index. A newer generation replaces it; it is never modified in place.
type Snapshot struct {
	// Catalog holds the entries in origin order.
	Catalog catalog.Catalog

	// Index groups Catalog by category.
	Index *category.Index

	// FetchedAt is when the catalog was last confirmed by the origin.
	FetchedAt time.Time

	// Source is the tier the snapshot was loaded from (durable or network).
	Source Layer

	// ETag and LastModified are the origin's validators, used for
	// conditional refreshes.
	ETag         string
	LastModified string
}

func newSnapshot(entries catalog.Catalog, fetchedAt time.Time, source Layer, v fetch.Validators) *Snapshot {
	if entries == nil {
		entries = catalog.Catalog{}
	}
	return &Snapshot{
		Catalog:      entries,
		Index:        category.Build(entries),
		FetchedAt:    fetchedAt,
		Source:       source,
		ETag:         v.ETag,
		LastModified: v.LastModified,
	}
}

func emptySnapshot() *Snapshot {
	return newSnapshot(nil, time.Time{}, LayerNone, fetch.Validators{})
}

// renewed returns a copy confirmed at fetchedAt, sharing the catalog and index.
func (s *Snapshot) renewed(fetchedAt time.Time, v fetch.Validators) *Snapshot {
	next := *s
	next.FetchedAt = fetchedAt
	next.Source = LayerNetwork
	if !v.IsZero() {
		next.ETag = v.ETag
		next.LastModified = v.LastModified
	}
	return &next
}

// Validators returns the origin validators of the snapshot.
func (s *Snapshot) Validators() fetch.Validators {
	return fetch.Validators{ETag: s.ETag, LastModified: s.LastModified}
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.Catalog)
}

// Age returns how long ago the catalog was fetched.
func (s *Snapshot) Age(now time.Time) time.Duration {
	age := now.Sub(s.FetchedAt)
	if age < 0 {
		return 0
	}
	return age
}

// IsStale returns true once the snapshot is at least ttl old.
func (s *Snapshot) IsStale(now time.Time, ttl time.Duration) bool {
	return s.Age(now) >= ttl
}
