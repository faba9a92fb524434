// Package metrics exposes the gateway's Prometheus registry.
// Metrics are defined in their own packages (cache, breaker, upstream,
// gateway, revalidate, woocommerce) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the gateway.
var Registry = prometheus.DefaultRegisterer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_hits_total{resource, zone} (Counter): Hits by staleness zone
//   - storefront_cache_misses_total{resource} (Counter): Lookups with no entry
//   - storefront_cache_writes_total{resource, result} (Counter): stored, empty, outdated
//   - storefront_cache_entries{resource} (Gauge): Entries held
//   - storefront_cache_mirror_errors_total{operation} (Counter): Redis mirror errors
//
// Breaker Metrics (pkg/breaker):
//   - storefront_breaker_open (Gauge): 1 while open
//   - storefront_breaker_trips_total{reason} (Counter): upstream_failure, admin
//   - storefront_breaker_failures_total (Counter): Unrecoverable failures recorded
//
// Upstream Metrics (pkg/upstream, pkg/woocommerce):
//   - storefront_upstream_attempts_total{source, outcome} (Counter)
//   - storefront_upstream_attempt_duration_seconds{source} (Histogram)
//   - storefront_upstream_retries_total{source, error_class} (Counter)
//   - storefront_upstream_retry_backoff_seconds{error_class} (Histogram)
//   - storefront_upstream_retry_exhausted_total{source, error_class} (Counter)
//   - storefront_woocommerce_requests_total{endpoint, status} (Counter)
//   - storefront_woocommerce_request_duration_seconds{endpoint} (Histogram)
//
// Gateway Metrics (pkg/gateway, pkg/revalidate):
//   - storefront_gateway_responses_total{resource, step, breaker} (Counter)
//   - storefront_gateway_upstream_failures_total{resource, source, error_class} (Counter)
//   - storefront_gateway_normalize_failures_total{resource, source} (Counter)
//   - storefront_gateway_coalesced_fetches_total{resource} (Counter)
//   - storefront_gateway_chain_exhausted_total{resource} (Counter)
//   - storefront_revalidate_tasks_total{outcome} (Counter)
//   - storefront_revalidate_task_duration_seconds (Histogram)
//   - storefront_revalidate_queue_depth (Gauge)
//
// Example Prometheus Queries:
//
//   # Fresh hit ratio
//   sum(rate(storefront_cache_hits_total{zone="fresh"}[5m])) /
//   (sum(rate(storefront_cache_hits_total[5m])) + sum(rate(storefront_cache_misses_total[5m])))
//
//   # Share of responses served from static data
//   sum(rate(storefront_gateway_responses_total{step="static"}[5m])) /
//   sum(rate(storefront_gateway_responses_total[5m]))
//
//   # Breaker trips per hour
//   increase(storefront_breaker_trips_total[1h])
//
//   # P95 upstream attempt latency
//   histogram_quantile(0.95, rate(storefront_upstream_attempt_duration_seconds_bucket[5m]))
