package gateway

import (
	"fmt"
	"time"

	"github.com/Sternrassler/storefront-gateway/pkg/cache"
	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
)

// Response is the answer to one query together with its provenance.
type Response struct {
	Resource catalog.Resource
	// Key is the cache key of the served entry. Empty for static data.
	Key   string
	Items []catalog.Item
	Count int

	// Cached is set when no upstream was contacted for this response.
	Cached bool
	// Stale is set when the served entry is past its stale threshold.
	Stale bool
	// Breaker is set when the breaker was open.
	Breaker bool
	// Demo is set for static, non-authoritative data.
	Demo bool

	// Source is the caller-facing origin: supabase, woocommerce or demo.
	Source string
	// Step is the chain step that produced the response.
	Step Step
	// Origin is the provenance recorded on the served data.
	Origin cache.Source

	FetchedAt time.Time
	Checksum  uint64
}

// ETag returns a strong entity tag for the response payload.
func (r *Response) ETag() string {
	return fmt.Sprintf(`"%016x"`, r.Checksum)
}
