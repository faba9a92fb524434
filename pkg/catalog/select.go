package catalog

// Select applies the featured-only filter and truncates to limit.
// A limit <= 0 keeps every item. The input slice is not modified.
func Select(items []Item, featuredOnly bool, limit int) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if featuredOnly && !it.Featured {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// FilterCategories keeps items that belong to any of the category tokens
// (id or slug). An empty token list keeps everything.
func FilterCategories(items []Item, tokens []string) []Item {
	if len(tokens) == 0 {
		return items
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		for _, t := range tokens {
			if it.HasCategory(t) || (it.Kind == KindCategory && (it.ID == t || it.Slug == t)) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}
