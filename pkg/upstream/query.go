package upstream

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
)

// Source names reported to callers.
const (
	SourceSupabase    = "supabase"
	SourceWooCommerce = "woocommerce"
	SourceDemo        = "demo"
)

// MaxLimit caps page size for every resource.
const MaxLimit = 100

// Query is the normalized request for one resource.
// A zero Limit means "resource default" and is resolved by the gateway.
type Query struct {
	Categories []string
	Limit      int
	Page       int
	Featured   bool
}

// NewQuery normalizes raw request parameters. Category tokens may be
// comma-separated; they are trimmed, lower-cased, de-duplicated and sorted
// so that equivalent requests produce equal queries.
func NewQuery(categories []string, limit, page int, featured bool) Query {
	seen := make(map[string]struct{})
	var cats []string
	for _, raw := range categories {
		for _, c := range strings.Split(raw, ",") {
			c = strings.ToLower(strings.TrimSpace(c))
			if c == "" {
				continue
			}
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			cats = append(cats, c)
		}
	}
	sort.Strings(cats)

	if limit < 0 {
		limit = 0
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page < 1 {
		page = 1
	}
	return Query{Categories: cats, Limit: limit, Page: page, Featured: featured}
}

// Offset returns the row offset of the page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.Limit
}

// CategoryIDs splits the category tokens into numeric ids and slugs.
func (q Query) CategoryIDs() (ids []int64, slugs []string) {
	for _, c := range q.Categories {
		if id, err := strconv.ParseInt(c, 10, 64); err == nil {
			ids = append(ids, id)
			continue
		}
		slugs = append(slugs, c)
	}
	return ids, slugs
}

// Fetcher is one upstream. Fetch returns raw records in upstream order.
// Implementations must honour ctx cancellation in their network calls.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, resource catalog.Resource, q Query) ([]json.RawMessage, error)
}
