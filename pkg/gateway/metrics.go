package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	responsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_gateway_responses_total",
		Help: "Total gateway responses by resource and serving step",
	}, []string{"resource", "step", "breaker"})

	upstreamFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_gateway_upstream_failures_total",
		Help: "Total failed upstream chain steps by resource, source and error class",
	}, []string{"resource", "source", "error_class"})

	normalizeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_gateway_normalize_failures_total",
		Help: "Total upstream records that could not be normalized",
	}, []string{"resource", "source"})

	coalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_gateway_coalesced_fetches_total",
		Help: "Total requests that shared an in-flight fetch",
	}, []string{"resource"})

	exhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_gateway_chain_exhausted_total",
		Help: "Total requests for which every chain step failed",
	}, []string{"resource"})
)
