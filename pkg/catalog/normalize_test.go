package catalog

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestLowestPrice(t *testing.T) {
	tests := []struct {
		name   string
		html   string
		want   float64
		wantOK bool
	}{
		{
			name:   "range with em dash",
			html:   "<span>$10.00</span> — <span>$25.00</span>",
			want:   10.00,
			wantOK: true,
		},
		{
			name:   "woocommerce markup with entities",
			html:   `<span class="woocommerce-Price-amount amount"><bdi><span class="woocommerce-Price-currencySymbol">&#36;</span>349.00</bdi></span> &ndash; <span class="amount">&#36;1,149.00</span>`,
			want:   349.00,
			wantOK: true,
		},
		{
			name:   "thousands separators",
			html:   "<span>$1,299.00</span> – <span>$2,450.50</span>",
			want:   1299.00,
			wantOK: true,
		},
		{
			name:   "higher value listed first",
			html:   "<del>$80.00</del> <ins>$65.00</ins>",
			want:   65.00,
			wantOK: true,
		},
		{
			name:   "no amounts",
			html:   "<span>Call for price</span>",
			wantOK: false,
		},
		{
			name:   "empty",
			html:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LowestPrice(tt.html)
			if ok != tt.wantOK {
				t.Fatalf("LowestPrice() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("LowestPrice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize_PriceResolution(t *testing.T) {
	tests := []struct {
		name         string
		record       string
		wantPrice    Price
		wantOriginal *Price
	}{
		{
			name:      "effective price wins",
			record:    `{"id": 1, "name": "A", "price": "19.99", "regular_price": "24.99", "sale_price": "15.00", "on_sale": false}`,
			wantPrice: NewPrice(19.99),
		},
		{
			name:         "sale price when effective price missing",
			record:       `{"id": 2, "name": "B", "price": "", "regular_price": "30.00", "sale_price": "20.00", "on_sale": true}`,
			wantPrice:    NewPrice(20.00),
			wantOriginal: pricePtr(30.00),
		},
		{
			name:      "sale price ignored when not on sale",
			record:    `{"id": 3, "name": "C", "regular_price": "30.00", "sale_price": "20.00", "on_sale": false}`,
			wantPrice: NewPrice(30.00),
		},
		{
			name:      "regular price from supabase base_price",
			record:    `{"id": "uuid-4", "name": "D", "base_price": 42.5}`,
			wantPrice: NewPrice(42.5),
		},
		{
			name:      "html range only",
			record:    `{"id": 5, "name": "E", "price": "", "regular_price": "", "price_html": "<span>$10.00</span> — <span>$25.00</span>"}`,
			wantPrice: NewPrice(10.00),
		},
		{
			name:      "nothing parseable",
			record:    `{"id": 6, "name": "F", "price": "", "price_html": "<span>Contact us</span>"}`,
			wantPrice: PriceUnavailable,
		},
		{
			name:         "original price set when on sale and higher",
			record:       `{"id": 7, "name": "G", "price": 89, "regular_price": 109, "on_sale": true}`,
			wantPrice:    NewPrice(89),
			wantOriginal: pricePtr(109),
		},
		{
			name:      "original price not set when equal",
			record:    `{"id": 8, "name": "H", "price": 89, "regular_price": 89, "on_sale": true}`,
			wantPrice: NewPrice(89),
		},
		{
			name:      "original price not set when not on sale",
			record:    `{"id": 9, "name": "I", "price": 89, "regular_price": 109, "on_sale": false}`,
			wantPrice: NewPrice(89),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := Normalize([]byte(tt.record), KindProduct)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if item.Price != tt.wantPrice {
				t.Errorf("Price = %v, want %v", item.Price, tt.wantPrice)
			}
			switch {
			case tt.wantOriginal == nil && item.OriginalPrice != nil:
				t.Errorf("OriginalPrice = %v, want nil", *item.OriginalPrice)
			case tt.wantOriginal != nil && item.OriginalPrice == nil:
				t.Errorf("OriginalPrice = nil, want %v", *tt.wantOriginal)
			case tt.wantOriginal != nil && *item.OriginalPrice != *tt.wantOriginal:
				t.Errorf("OriginalPrice = %v, want %v", *item.OriginalPrice, *tt.wantOriginal)
			}
		})
	}
}

func TestNormalize_WooCommerceRecord(t *testing.T) {
	record := `{
		"id": 4321,
		"name": "Rock &amp; Ice Helmet",
		"slug": "rock-ice-helmet",
		"permalink": "https://shop.example.com/product/rock-ice-helmet",
		"featured": true,
		"price": "74.95",
		"regular_price": "89.95",
		"sale_price": "74.95",
		"on_sale": true,
		"average_rating": "4.60",
		"rating_count": 12,
		"stock_status": "onbackorder",
		"categories": [{"id": 186, "name": "Climbing Gear", "slug": "climbing-gear"}],
		"images": [
			{"id": 1, "src": "https://cdn.example.com/helmet-front.jpg", "alt": "Front"},
			{"id": 2, "src": "https://cdn.example.com/helmet-side.jpg", "alt": "Side"}
		],
		"attributes": [{"name": "Size", "options": ["S/M", "M/L"]}]
	}`

	item, issues, err := NormalizeDetailed([]byte(record), KindProduct)
	if err != nil {
		t.Fatalf("NormalizeDetailed() error = %v", err)
	}
	if len(issues) != 0 {
		t.Errorf("issues = %v, want none", issues)
	}
	if item.ID != "4321" {
		t.Errorf("ID = %q, want 4321", item.ID)
	}
	if item.Name != "Rock & Ice Helmet" {
		t.Errorf("Name = %q, want unescaped name", item.Name)
	}
	if item.Price != NewPrice(74.95) {
		t.Errorf("Price = %v, want 74.95", item.Price)
	}
	if item.OriginalPrice == nil || item.OriginalPrice.Amount != 89.95 {
		t.Errorf("OriginalPrice = %v, want 89.95", item.OriginalPrice)
	}
	if !item.InStock || item.StockStatus != "onbackorder" {
		t.Errorf("stock = %v/%q, want true/onbackorder", item.InStock, item.StockStatus)
	}
	if item.Rating != 4.6 || item.ReviewCount != 12 {
		t.Errorf("rating = %v/%d, want 4.6/12", item.Rating, item.ReviewCount)
	}
	if len(item.Images) != 2 || !item.Images[0].Primary || item.Images[1].Primary {
		t.Errorf("Images = %+v, want first image primary", item.Images)
	}
	if !item.HasCategory("186") || !item.HasCategory("climbing-gear") {
		t.Errorf("Categories = %+v, want climbing gear", item.Categories)
	}
	if item.Attributes["Size"] != "S/M, M/L" {
		t.Errorf("Attributes = %v", item.Attributes)
	}
	if !item.Featured {
		t.Error("Featured = false, want true")
	}
}

func TestNormalize_SupabaseRow(t *testing.T) {
	record := `{
		"id": "3f0c1b7e-7a55-4d8e-9a51-0c3f0c1b7e7a",
		"title": "Glacier Skills Course",
		"current_price": 640,
		"base_price": 700,
		"on_sale": true,
		"rating": 4.9,
		"review_count": 31,
		"in_stock": false,
		"is_featured": true,
		"url": "/trips/glacier-skills-course",
		"categories": [{"id": "190", "name": "Guided Trips", "slug": "trips"}],
		"images": [
			{"url": "https://cdn.example.com/glacier-1.jpg"},
			{"url": "https://cdn.example.com/glacier-2.jpg", "is_primary": true}
		],
		"metadata": {"duration": "3 days", "location": "Chamonix", "max_group": 6, "notes": null}
	}`

	item, err := Normalize([]byte(record), KindTrip)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if item.Kind != KindTrip {
		t.Errorf("Kind = %q, want trip", item.Kind)
	}
	if item.Name != "Glacier Skills Course" || item.Slug != "glacier-skills-course" {
		t.Errorf("Name/Slug = %q/%q", item.Name, item.Slug)
	}
	if item.Price != NewPrice(640) {
		t.Errorf("Price = %v, want 640", item.Price)
	}
	if item.OriginalPrice == nil || item.OriginalPrice.Amount != 700 {
		t.Errorf("OriginalPrice = %v, want 700", item.OriginalPrice)
	}
	if item.InStock {
		t.Error("InStock = true, want false")
	}
	img, ok := item.PrimaryImage()
	if !ok || img.URL != "https://cdn.example.com/glacier-2.jpg" {
		t.Errorf("PrimaryImage() = %+v, want flagged image", img)
	}
	if item.Attributes["duration"] != "3 days" || item.Attributes["max_group"] != "6" {
		t.Errorf("Attributes = %v", item.Attributes)
	}
	if _, ok := item.Attributes["notes"]; ok {
		t.Error("null metadata should be skipped")
	}
	if !item.Featured || item.Permalink != "/trips/glacier-skills-course" {
		t.Errorf("Featured/Permalink = %v/%q", item.Featured, item.Permalink)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	item, issues, err := NormalizeDetailed([]byte(`{"id": 10, "name": "Bare Record"}`), KindProduct)
	if err != nil {
		t.Fatalf("NormalizeDetailed() error = %v", err)
	}
	if len(item.Categories) != 1 || item.Categories[0] != DefaultCategory {
		t.Errorf("Categories = %+v, want default Accessories", item.Categories)
	}
	if item.Price.Valid {
		t.Errorf("Price = %v, want unavailable", item.Price)
	}
	if item.Images != nil {
		t.Errorf("Images = %+v, want nil", item.Images)
	}
	if !item.InStock {
		t.Error("InStock should default to true")
	}
	if item.Slug != "bare-record" {
		t.Errorf("Slug = %q, want bare-record", item.Slug)
	}

	fields := map[string]bool{}
	for _, is := range issues {
		fields[is.Field] = true
	}
	for _, f := range []string{"price", "images", "categories"} {
		if !fields[f] {
			t.Errorf("missing issue for %s in %v", f, issues)
		}
	}
}

func TestNormalize_MalformedOptionalFields(t *testing.T) {
	// Wrong types in optional groups must not abort normalization.
	record := `{"id": 11, "name": "Odd", "images": "not-an-array", "categories": {"id": 1}, "average_rating": "n/a", "rating_count": "many", "attributes": 5}`

	item, err := Normalize([]byte(record), KindProduct)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if item.Rating != 0 || item.ReviewCount != 0 {
		t.Errorf("rating = %v/%d, want zero values", item.Rating, item.ReviewCount)
	}
	if item.Categories[0] != DefaultCategory {
		t.Errorf("Categories = %+v, want default", item.Categories)
	}
}

func TestNormalize_Unparseable(t *testing.T) {
	tests := []struct {
		name   string
		record string
	}{
		{name: "invalid json", record: `{"id": 1,`},
		{name: "array", record: `[{"id": 1}]`},
		{name: "string", record: `"product"`},
		{name: "missing id", record: `{"name": "No Id"}`},
		{name: "missing name", record: `{"id": 12}`},
		{name: "blank name", record: `{"id": 12, "name": "   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize([]byte(tt.record), KindProduct)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("Normalize() error = %v, want *ParseError", err)
			}
		})
	}
}

func TestNormalize_CategoryRecord(t *testing.T) {
	record := `{"id": 186, "name": "Climbing Gear", "slug": "climbing-gear", "parent": 12, "count": 24, "image": {"src": "https://cdn.example.com/c.jpg"}}`

	item, err := Normalize([]byte(record), KindCategory)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if item.ParentID != "12" || item.Count != 24 {
		t.Errorf("ParentID/Count = %q/%d", item.ParentID, item.Count)
	}
	if len(item.Images) != 1 || !item.Images[0].Primary {
		t.Errorf("Images = %+v", item.Images)
	}
	if item.Categories != nil {
		t.Errorf("category records carry no categories, got %+v", item.Categories)
	}
}

func TestPrice_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Price  `json:"a"`
		B Price  `json:"b"`
		C *Price `json:"c,omitempty"`
	}{A: NewPrice(12.5), B: PriceUnavailable})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"a":12.5,"b":null}` {
		t.Errorf("Marshal() = %s", data)
	}

	var back struct {
		A Price `json:"a"`
		B Price `json:"b"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.A != NewPrice(12.5) || back.B.Valid {
		t.Errorf("Unmarshal() = %+v", back)
	}
}

func pricePtr(v float64) *Price {
	p := NewPrice(v)
	return &p
}
