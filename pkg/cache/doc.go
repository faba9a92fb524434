// Package cache provides the gateway's process-wide cache store and its
// staleness policy.
//
// The store keeps one Entry per (resource, key). Reads and writes are
// in-memory and guarded by a mutex; nothing in this package blocks on I/O
// except the optional Redis Mirror, which the gateway only calls from
// background tasks.
//
// # Staleness Zones
//
// Every entry falls into one of three zones relative to its age
// (now - FetchedAt):
//
//   - Fresh (age < StaleAfter): serve without contacting upstreams
//   - Stale (StaleAfter <= age < HardTTL): serve, revalidate in background
//   - Expired (age >= HardTTL): treat as a miss, refetch synchronously
//
// # Write Rules
//
//   - Empty payloads are never stored, so an empty upstream answer can't
//     replace a good entry.
//   - FetchedAt never regresses for a key: concurrent writers may both
//     finish, the entry with the latest FetchedAt is kept.
//
// # Basic Usage
//
//	store := cache.NewStore()
//	key := cache.Key{Categories: []string{"186"}, Limit: 6}
//
//	entry := cache.NewEntry(key.String(), items, cache.SourceSecondary, time.Now())
//	store.Put(catalog.ResourceGear, entry)
//
//	if e, ok := store.Get(catalog.ResourceGear, key.String()); ok {
//		switch policy.Zone(e, time.Now()) {
//		case cache.ZoneFresh:
//			// serve
//		}
//	}
//
// # Metrics
//
//   - storefront_cache_hits_total{resource,zone}
//   - storefront_cache_misses_total{resource}
//   - storefront_cache_writes_total{resource,result}
//   - storefront_cache_entries{resource}
//   - storefront_cache_mirror_errors_total{operation}
package cache
