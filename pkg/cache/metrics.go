package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks catalog reads served without a fetch, by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Total number of catalog reads served from a cache layer",
		},
		[]string{"layer"}, // "memory", "durable"
	)

	// CacheMisses tracks reads that found neither a memory nor a durable copy
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Total number of catalog reads that had to go to the network",
		},
	)

	// RefreshTotal tracks network refreshes by outcome
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_refresh_total",
			Help: "Total number of catalog refreshes by result",
		},
		[]string{"result"}, // "success", "not_modified", "error"
	)

	// RefreshCoalesced tracks callers that received a shared refresh result
	RefreshCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_refresh_coalesced_total",
			Help: "Total number of refresh callers that shared an in-flight refresh",
		},
	)

	// Entries is the size of the current snapshot
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_entries",
			Help: "Number of entries in the current catalog snapshot",
		},
	)

	// SnapshotAge is the age of the snapshot served last
	SnapshotAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_snapshot_age_seconds",
			Help: "Age of the served catalog snapshot in seconds",
		},
	)
)
