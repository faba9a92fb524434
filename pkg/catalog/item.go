package catalog

import (
	"encoding/json"
	"strconv"
)

// Kind is the kind of record an Item was normalized from.
type Kind string

const (
	KindProduct  Kind = "product"
	KindTrip     Kind = "trip"
	KindCategory Kind = "category"
)

// DefaultCategory is assigned to products that carry no category.
var DefaultCategory = Category{ID: "0", Name: "Accessories", Slug: "accessories"}

// Item is the canonical storefront record.
// Items are produced by Normalize and must not be mutated afterwards; the
// gateway shares the same slices across concurrent responses.
type Item struct {
	ID            string            `json:"id"`
	Kind          Kind              `json:"kind"`
	Name          string            `json:"name"`
	Slug          string            `json:"slug"`
	Description   string            `json:"description,omitempty"`
	Price         Price             `json:"price"`
	OriginalPrice *Price            `json:"original_price,omitempty"`
	OnSale        bool              `json:"on_sale"`
	Images        []Image           `json:"images"`
	Categories    []Category        `json:"categories,omitempty"`
	Rating        float64           `json:"rating"`
	ReviewCount   int               `json:"review_count"`
	InStock       bool              `json:"in_stock"`
	StockStatus   string            `json:"stock_status,omitempty"`
	Permalink     string            `json:"permalink,omitempty"`
	Featured      bool              `json:"featured"`
	Attributes    map[string]string `json:"attributes,omitempty"`

	// Category records only.
	ParentID string `json:"parent_id,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// PrimaryImage returns the image flagged primary, if any.
func (it Item) PrimaryImage() (Image, bool) {
	for _, img := range it.Images {
		if img.Primary {
			return img, true
		}
	}
	return Image{}, false
}

// HasCategory reports whether the item belongs to a category given by id or slug.
func (it Item) HasCategory(token string) bool {
	for _, c := range it.Categories {
		if c.ID == token || c.Slug == token {
			return true
		}
	}
	return false
}

// Image is a product image. Exactly one image of an Item is Primary.
type Image struct {
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Primary bool   `json:"primary"`
}

// Category is an id/name/slug triple.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Price is a resolved price. The zero value is PriceUnavailable.
type Price struct {
	Amount float64
	Valid  bool
}

// PriceUnavailable is the sentinel for records with no parseable price.
var PriceUnavailable = Price{}

// NewPrice returns a valid price.
func NewPrice(amount float64) Price {
	return Price{Amount: amount, Valid: true}
}

func (p Price) String() string {
	if !p.Valid {
		return "unavailable"
	}
	return strconv.FormatFloat(p.Amount, 'f', 2, 64)
}

// MarshalJSON encodes unavailable prices as null.
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Amount)
}

// UnmarshalJSON accepts a number or null.
func (p *Price) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = PriceUnavailable
		return nil
	}
	var amount float64
	if err := json.Unmarshal(data, &amount); err != nil {
		return err
	}
	*p = NewPrice(amount)
	return nil
}
