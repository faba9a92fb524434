package catalog

import (
	"fmt"
	"strings"
)

// Resource identifies a gateway endpoint family.
type Resource string

const (
	// ResourceCategories lists product categories.
	ResourceCategories Resource = "categories"

	// ResourceGear lists gear products for a category (rental/shop widgets).
	ResourceGear Resource = "gear"

	// ResourceProducts is the paged product list.
	ResourceProducts Resource = "products"

	// ResourceTrips lists bookable trips.
	ResourceTrips Resource = "trips"
)

// Resources returns all resources in a stable order.
func Resources() []Resource {
	return []Resource{ResourceCategories, ResourceGear, ResourceProducts, ResourceTrips}
}

// ParseResource converts a path segment into a Resource.
func ParseResource(s string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case ResourceCategories, ResourceGear, ResourceProducts, ResourceTrips:
		return r, nil
	}
	return "", fmt.Errorf("unknown resource %q", s)
}

// Kind returns the item kind records of this resource normalize into.
func (r Resource) Kind() Kind {
	switch r {
	case ResourceCategories:
		return KindCategory
	case ResourceTrips:
		return KindTrip
	default:
		return KindProduct
	}
}

func (r Resource) String() string {
	return string(r)
}
