package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by resource and zone (fresh, stale, expired)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_hits_total",
			Help: "Total number of gateway cache hits",
		},
		[]string{"resource", "zone"},
	)

	// CacheMisses tracks lookups with no entry
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_misses_total",
			Help: "Total number of gateway cache misses",
		},
		[]string{"resource"},
	)

	// CacheWrites tracks write attempts by result (stored, empty, outdated)
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_writes_total",
			Help: "Total number of gateway cache write attempts",
		},
		[]string{"resource", "result"},
	)

	// CacheEntries tracks entries held per resource
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_cache_entries",
			Help: "Current number of gateway cache entries",
		},
		[]string{"resource"},
	)

	// MirrorErrors tracks Redis mirror operation errors
	MirrorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cache_mirror_errors_total",
			Help: "Total number of cache mirror operation errors",
		},
		[]string{"operation"}, // "save", "load", "warm", "reset"
	)
)
