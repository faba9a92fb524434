package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

//go:embed static/*.json
var staticFS embed.FS

var (
	staticOnce  sync.Once
	staticItems map[Resource][]Item
)

// staticFiles maps resources to their embedded dataset. Gear is served from
// the product dataset.
var staticFiles = map[Resource]string{
	ResourceCategories: "static/categories.json",
	ResourceGear:       "static/products.json",
	ResourceProducts:   "static/products.json",
	ResourceTrips:      "static/trips.json",
}

// Static returns the first page of demo items for a resource. See StaticPage.
func Static(resource Resource, categories []string, featuredOnly bool, limit int) []Item {
	return StaticPage(resource, categories, featuredOnly, limit, 1)
}

// StaticPage returns one page of demo items for a resource, filtered by
// category tokens and the featured flag. When the category filter matches
// nothing the unfiltered dataset is used so the caller still gets content.
// Pages past the end of the dataset are empty; with limit <= 0 everything
// is on page 1. The returned items are non-authoritative.
func StaticPage(resource Resource, categories []string, featuredOnly bool, limit, page int) []Item {
	staticOnce.Do(loadStatic)

	all := staticItems[resource]
	items := FilterCategories(all, categories)
	if len(items) == 0 {
		items = all
	}
	selected := Select(items, featuredOnly, 0)
	if len(selected) == 0 {
		selected = Select(items, false, 0)
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		if page > 1 {
			return []Item{}
		}
		return selected
	}
	offset := (page - 1) * limit
	if offset >= len(selected) {
		return []Item{}
	}
	end := min(offset+limit, len(selected))
	return selected[offset:end]
}

func loadStatic() {
	staticItems = make(map[Resource][]Item, len(staticFiles))
	for resource, file := range staticFiles {
		items, err := decodeStatic(file, resource.Kind())
		if err != nil {
			log.Error().Err(err).Str("file", file).Msg("Failed to load static dataset")
			continue
		}
		staticItems[resource] = items
	}
}

func decodeStatic(file string, kind Kind) ([]Item, error) {
	data, err := staticFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}
	items := make([]Item, 0, len(records))
	for i, rec := range records {
		item, err := Normalize(rec, kind)
		if err != nil {
			log.Warn().Err(err).Str("file", file).Int("index", i).Msg("Skipping static record")
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
