package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for upstream calls.
var (
	upstreamAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_upstream_attempts_total",
		Help: "Total upstream attempts by source and outcome",
	}, []string{"source", "outcome"})

	upstreamAttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_upstream_attempt_duration_seconds",
		Help:    "Upstream attempt duration in seconds by source",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_upstream_retries_total",
		Help: "Total number of retry attempts by source and error class",
	}, []string{"source", "error_class"})

	upstreamRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"error_class"})

	upstreamRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by source and error class",
	}, []string{"source", "error_class"})
)
