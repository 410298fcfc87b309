// Package metrics exposes the Prometheus registry used by the catalog
// packages. Metrics themselves are defined where they are recorded (store,
// ratelimit, fetch, cache) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all catalog metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Store Metrics (pkg/store):
//   - catalog_store_operations_total{operation} (Counter): Successful durable store operations
//   - catalog_store_misses_total{store} (Counter): Reads that found no value
//   - catalog_store_errors_total{operation} (Counter): Storage failures absorbed by the adapter
//
// Origin Cooldown Metrics (pkg/ratelimit):
//   - catalog_origin_consecutive_failures (Gauge): Failed fetches since the last success
//   - catalog_origin_blocks_total (Counter): Fetches held back by an active cooldown
//   - catalog_origin_cooldowns_total (Counter): Cooldowns started
//
// Fetch Metrics (pkg/fetch):
//   - catalog_fetch_requests_total{status} (Counter): Origin requests by HTTP status
//   - catalog_fetch_duration_seconds (Histogram): Fetch duration, retries included
//   - catalog_fetch_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode, cooldown)
//   - catalog_fetch_malformed_entries_total (Counter): Records repaired or skipped while decoding
//   - catalog_fetch_retries_total{error_class} (Counter): Retry attempts by error class
//   - catalog_fetch_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - catalog_fetch_retry_exhausted_total{error_class} (Counter): Fetches that exhausted retries
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total{layer="memory|durable"} (Counter): Reads served per tier
//   - catalog_cache_misses_total (Counter): Cold reads that had to go to the network
//   - catalog_refresh_total{result="success|not_modified|error"} (Counter): Refresh outcomes
//   - catalog_refresh_coalesced_total (Counter): Refresh callers that joined a running fetch
//   - catalog_entries (Gauge): Entries in the published snapshot
//   - catalog_snapshot_age_seconds (Gauge): Age of the snapshot at the last read
//
// Example Prometheus Queries:
//
//   # Memory Hit Rate
//   sum(rate(catalog_cache_hits_total{layer="memory"}[5m])) /
//   (sum(rate(catalog_cache_hits_total[5m])) + sum(rate(catalog_cache_misses_total[5m])))
//
//   # Catalog older than two TTLs
//   catalog_snapshot_age_seconds > 2 * 86400
//
//   # Refresh Error Rate
//   rate(catalog_refresh_total{result="error"}[15m])
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(catalog_fetch_duration_seconds_bucket[1h]))
