package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOperations tracks successful storage operations
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_store_operations_total",
			Help: "Total number of successful catalog storage operations",
		},
		[]string{"operation"}, // "get", "all", "put", "put_many", "clear"
	)

	// StoreMisses tracks lookups of absent keys
	StoreMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_store_misses_total",
			Help: "Total number of catalog storage lookups for absent keys",
		},
		[]string{"store"},
	)

	// StoreErrors tracks storage failures absorbed by the adapter
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_store_errors_total",
			Help: "Total number of catalog storage operation errors",
		},
		[]string{"operation"},
	)
)
