package gateway

import (
	"time"

	"github.com/Sternrassler/storefront-gateway/pkg/cache"
	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
)

// Step is one link of a resource's fallback chain.
type Step string

const (
	// StepCache serves a fresh or stale entry without a synchronous fetch.
	StepCache Step = "cache"

	StepPrimary      Step = "primary"
	StepSecondary    Step = "secondary"
	StepExpiredCache Step = "expired-cache"
	StepAnyCache     Step = "any-cache"
	StepStatic       Step = "static"
)

// upstream reports whether the step calls an upstream.
func (s Step) upstream() bool {
	return s == StepPrimary || s == StepSecondary
}

// ResourceSpec describes how one resource is served.
type ResourceSpec struct {
	// Chain is tried in order until a step yields a non-empty result.
	Chain []Step

	Policy cache.Policy

	// Paged resources include the page number in their cache key.
	Paged bool

	// DefaultLimit applies when the query has no limit.
	DefaultLimit int
}

var (
	standardChain = []Step{StepPrimary, StepSecondary, StepExpiredCache, StepStatic}
	gearChain     = []Step{StepPrimary, StepSecondary, StepExpiredCache, StepAnyCache, StepStatic}
)

// DefaultSpecs returns the built-in resource table.
func DefaultSpecs() map[catalog.Resource]ResourceSpec {
	return map[catalog.Resource]ResourceSpec{
		catalog.ResourceCategories: {
			Chain:        standardChain,
			Policy:       cache.Policy{StaleAfter: 10 * time.Minute, HardTTL: time.Hour},
			Paged:        true,
			DefaultLimit: 50,
		},
		catalog.ResourceGear: {
			Chain:        gearChain,
			Policy:       cache.Policy{StaleAfter: 3 * time.Minute, HardTTL: 10 * time.Minute},
			DefaultLimit: 6,
		},
		catalog.ResourceProducts: {
			Chain:        standardChain,
			Policy:       cache.Policy{StaleAfter: 3 * time.Minute, HardTTL: 10 * time.Minute},
			Paged:        true,
			DefaultLimit: 12,
		},
		catalog.ResourceTrips: {
			Chain:        standardChain,
			Policy:       cache.Policy{StaleAfter: 5 * time.Minute, HardTTL: 30 * time.Minute},
			Paged:        true,
			DefaultLimit: 12,
		},
	}
}
