package catalog

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseError reports a record that cannot be normalized at all.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable record: %s", e.Reason)
}

// FieldIssue describes an optional field group that fell back to a default.
type FieldIssue struct {
	Field  string
	Reason string
}

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	amountPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	slugPattern   = regexp.MustCompile(`[^a-z0-9]+`)
)

// Field paths per concern, in lookup order. The first path is the
// WooCommerce name; the rest cover the Supabase view columns.
var (
	effectivePricePaths = []string{"price", "current_price"}
	salePricePaths      = []string{"sale_price"}
	regularPricePaths   = []string{"regular_price", "base_price"}
	priceHTMLPaths      = []string{"price_html"}
	ratingPaths         = []string{"average_rating", "rating"}
	reviewCountPaths    = []string{"rating_count", "review_count", "reviews_count"}
)

// Normalize converts one raw record into an Item.
func Normalize(raw []byte, kind Kind) (Item, error) {
	item, _, err := NormalizeDetailed(raw, kind)
	return item, err
}

// NormalizeDetailed is Normalize that also reports which optional field
// groups were defaulted.
func NormalizeDetailed(raw []byte, kind Kind) (Item, []FieldIssue, error) {
	if !gjson.ValidBytes(raw) {
		return Item{}, nil, &ParseError{Reason: "invalid json"}
	}
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return Item{}, nil, &ParseError{Reason: "record is not an object"}
	}

	id, ok := parseID(r.Get("id"))
	if !ok {
		return Item{}, nil, &ParseError{Reason: "missing id"}
	}
	name := html.UnescapeString(strings.TrimSpace(first(r, "name", "title").String()))
	if name == "" {
		return Item{}, nil, &ParseError{Reason: fmt.Sprintf("record %s has no name", id)}
	}

	var issues []FieldIssue
	item := Item{
		ID:          id,
		Kind:        kind,
		Name:        name,
		Slug:        strings.TrimSpace(r.Get("slug").String()),
		Description: strings.TrimSpace(first(r, "short_description", "description").String()),
		Permalink:   strings.TrimSpace(first(r, "permalink", "url").String()),
		Featured:    first(r, "featured", "is_featured").Bool(),
	}
	if item.Slug == "" {
		item.Slug = Slugify(name)
	}

	if kind == KindCategory {
		if parent, ok := parseID(r.Get("parent")); ok && parent != "0" {
			item.ParentID = parent
		}
		item.Count = int(first(r, "count", "product_count").Int())
		item.Images = parseImages(r)
		item.Price = PriceUnavailable
		return item, nil, nil
	}

	var priceIssue *FieldIssue
	item.Price, item.OriginalPrice, item.OnSale, priceIssue = resolvePrice(r)
	if priceIssue != nil {
		issues = append(issues, *priceIssue)
	}

	item.Images = parseImages(r)
	if len(item.Images) == 0 {
		issues = append(issues, FieldIssue{Field: "images", Reason: "no usable image"})
	}

	item.Categories = parseCategories(r)
	if len(item.Categories) == 0 {
		item.Categories = []Category{DefaultCategory}
		issues = append(issues, FieldIssue{Field: "categories", Reason: "absent, defaulted"})
	}

	if rating, ok := numeric(firstOf(r, ratingPaths)); ok {
		item.Rating = math.Max(0, math.Min(5, rating))
	}
	if count, ok := numeric(firstOf(r, reviewCountPaths)); ok && count >= 0 {
		item.ReviewCount = int(count)
	}

	item.InStock, item.StockStatus = parseStock(r)
	item.Attributes = parseAttributes(r)

	return item, issues, nil
}

// resolvePrice applies the price priority order documented on the package.
func resolvePrice(r gjson.Result) (Price, *Price, bool, *FieldIssue) {
	onSale := r.Get("on_sale").Bool()
	regular, hasRegular := numeric(firstOf(r, regularPricePaths))

	var price Price
	switch {
	case validAmount(numeric(firstOf(r, effectivePricePaths))):
		amount, _ := numeric(firstOf(r, effectivePricePaths))
		price = NewPrice(amount)
	case onSale && positiveAmount(numeric(firstOf(r, salePricePaths))):
		amount, _ := numeric(firstOf(r, salePricePaths))
		price = NewPrice(amount)
	case hasRegular && regular >= 0:
		price = NewPrice(regular)
	default:
		if amount, ok := LowestPrice(firstOf(r, priceHTMLPaths).String()); ok {
			price = NewPrice(amount)
		}
	}

	if !price.Valid {
		return PriceUnavailable, nil, onSale, &FieldIssue{Field: "price", Reason: "no parseable price"}
	}

	var original *Price
	if onSale && hasRegular && regular > price.Amount {
		p := NewPrice(regular)
		original = &p
	}
	return price, original, onSale, nil
}

// LowestPrice extracts the lowest amount from an HTML price string such as
// `<span>$10.00</span> &ndash; <span>$25.00</span>`.
func LowestPrice(s string) (float64, bool) {
	if strings.TrimSpace(s) == "" {
		return 0, false
	}
	text := tagPattern.ReplaceAllString(s, " ")
	text = html.UnescapeString(text)

	lowest, found := 0.0, false
	for _, token := range amountPattern.FindAllString(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", ""), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if !found || v < lowest {
			lowest, found = v, true
		}
	}
	return lowest, found
}

func parseImages(r gjson.Result) []Image {
	var raw []gjson.Result
	if imgs := r.Get("images"); imgs.IsArray() {
		raw = imgs.Array()
	} else if img := r.Get("image"); img.Exists() && img.Type != gjson.Null {
		raw = []gjson.Result{img}
	}

	images := make([]Image, 0, len(raw))
	primary := -1
	for _, v := range raw {
		var img Image
		if v.Type == gjson.String {
			img.URL = strings.TrimSpace(v.Str)
		} else if v.IsObject() {
			img.URL = strings.TrimSpace(first(v, "src", "url").String())
			img.Alt = first(v, "alt", "name").String()
			if primary < 0 && first(v, "is_primary", "primary").Bool() {
				primary = len(images)
			}
		}
		if img.URL == "" {
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil
	}
	if primary < 0 {
		primary = 0
	}
	images[primary].Primary = true
	return images
}

func parseCategories(r gjson.Result) []Category {
	cats := r.Get("categories")
	if !cats.IsArray() {
		return nil
	}
	var out []Category
	for _, v := range cats.Array() {
		var c Category
		switch {
		case v.Type == gjson.String:
			c.Name = html.UnescapeString(strings.TrimSpace(v.Str))
		case v.IsObject():
			c.ID, _ = parseID(v.Get("id"))
			c.Name = html.UnescapeString(strings.TrimSpace(v.Get("name").String()))
			c.Slug = strings.TrimSpace(v.Get("slug").String())
		default:
			continue
		}
		if c.Name == "" && c.Slug == "" {
			continue
		}
		if c.Slug == "" {
			c.Slug = Slugify(c.Name)
		}
		if c.Name == "" {
			c.Name = c.Slug
		}
		out = append(out, c)
	}
	return out
}

func parseStock(r gjson.Result) (bool, string) {
	if status := strings.ToLower(strings.TrimSpace(r.Get("stock_status").String())); status != "" {
		return status != "outofstock", status
	}
	if v := first(r, "in_stock", "available"); v.Exists() && v.Type != gjson.Null {
		if v.Bool() {
			return true, "instock"
		}
		return false, "outofstock"
	}
	return true, ""
}

func parseAttributes(r gjson.Result) map[string]string {
	attrs := map[string]string{}
	if list := r.Get("attributes"); list.IsArray() {
		for _, a := range list.Array() {
			name := strings.TrimSpace(a.Get("name").String())
			if name == "" {
				continue
			}
			var opts []string
			for _, o := range a.Get("options").Array() {
				if s := strings.TrimSpace(o.String()); s != "" {
					opts = append(opts, s)
				}
			}
			if len(opts) > 0 {
				attrs[name] = strings.Join(opts, ", ")
			}
		}
	}
	if meta := r.Get("metadata"); meta.IsObject() {
		meta.ForEach(func(key, value gjson.Result) bool {
			switch value.Type {
			case gjson.String, gjson.Number, gjson.True, gjson.False:
				if s := strings.TrimSpace(value.String()); s != "" {
					attrs[key.String()] = s
				}
			}
			return true
		})
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func parseID(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Num == math.Trunc(v.Num) {
			return strconv.FormatInt(int64(v.Num), 10), true
		}
		return v.Raw, true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		return s, s != ""
	}
	return "", false
}

// numeric reads a number from a JSON number or a numeric string ("19.99",
// "$1,299.00"). Empty strings and other types are not numeric.
func numeric(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return 0, false
		}
		return v.Num, true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		s = strings.TrimLeft(s, "$€£ ")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func validAmount(v float64, ok bool) bool {
	return ok && v >= 0
}

func positiveAmount(v float64, ok bool) bool {
	return ok && v > 0
}

func first(r gjson.Result, paths ...string) gjson.Result {
	return firstOf(r, paths)
}

func firstOf(r gjson.Result, paths []string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// Slugify lower-cases s and joins alphanumeric runs with dashes.
func Slugify(s string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
