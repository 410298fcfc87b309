// Package cache keeps the game catalog available across three tiers:
// the in-process snapshot, the durable store and the network origin.
//
// Reads resolve memory first, then the durable copy, then the network:
//
//   - A fresh memory or durable snapshot (younger than the TTL, 24h by
//     default) is returned without touching the network.
//   - A stale snapshot is returned immediately and a single background
//     refresh is started (stale-while-revalidate).
//   - A failed refresh keeps serving whatever copy exists
//     (stale-while-error). Only when no tier has data does GetCatalog
//     return an empty snapshot together with ErrCatalogUnavailable.
//
// # Basic Usage
//
//	client, _ := fetch.New(fetch.DefaultConfig(catalogURL, userAgent))
//	adapter := store.NewAdapter(store.NewMemoryBackend(), logger)
//
//	manager := cache.NewManager(client, adapter, cache.DefaultConfig(), logger)
//	defer manager.Wait()
//
//	snap, err := manager.GetCatalog(ctx)
//	if errors.Is(err, cache.ErrCatalogUnavailable) {
//		// nothing to show yet
//	}
//	for _, e := range snap.Index.ByCategory("puzzle") {
//		fmt.Println(e.Name)
//	}
//
// # Refreshing
//
// Refresh forces a network fetch. Concurrent refreshes, explicit or
// background, share one request and one result. The new snapshot is
// persisted and then published with an atomic swap, so readers see either
// the previous or the next catalog, never a mix. Refreshes are conditional:
// when the origin answers 304 the current catalog is kept and only its
// fetch time moves forward.
//
// # Durable Layout
//
// Entries live in the "items" store as {"entry": ..., "index": n} keyed by
// ID. The "meta" store holds the ID order under "order", the origin
// validators under "etag" and "lastModified", and the fetch time under
// "fetchedAt", which is written last. Restoring follows "order" and appends
// records it does not mention by their stored index, so no entry is lost
// even if the order array is stale.
//
// # Metrics
//
//   - catalog_cache_hits_total{layer} - Reads served from memory or durable
//   - catalog_cache_misses_total - Reads that needed the network
//   - catalog_refresh_total{result} - Refresh outcomes
//   - catalog_refresh_coalesced_total - Callers sharing a refresh
//   - catalog_entries - Size of the current snapshot
//   - catalog_snapshot_age_seconds - Age of the served snapshot
package cache
