package cache

import (
	"sort"
	"strconv"
	"strings"
)

// Key identifies a cached result within a resource namespace.
type Key struct {
	// Categories are the category ids or slugs of the query.
	Categories []string

	// Limit is the page size.
	Limit int

	// Page is the page number; only part of the key when Paged is set.
	Page int

	// Featured restricts results to featured items.
	Featured bool

	// Paged marks resources whose results depend on Page.
	Paged bool
}

// String generates a deterministic cache key string.
// Format: categories|limit[|page]|featured
//
// Example:
//
//	186|6|0          gear, category 186, 6 items, not featured-only
//	all|12|2|1       products page 2, featured only
func (k Key) String() string {
	cats := make([]string, 0, len(k.Categories))
	seen := make(map[string]struct{}, len(k.Categories))
	for _, c := range k.Categories {
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
	sort.Strings(cats)

	catPart := "all"
	if len(cats) > 0 {
		catPart = strings.Join(cats, ",")
	}

	parts := []string{catPart, strconv.Itoa(k.Limit)}
	if k.Paged {
		page := k.Page
		if page < 1 {
			page = 1
		}
		parts = append(parts, strconv.Itoa(page))
	}
	featured := "0"
	if k.Featured {
		featured = "1"
	}
	parts = append(parts, featured)

	return strings.Join(parts, "|")
}
