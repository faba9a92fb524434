// Package catalog defines the canonical storefront item schema and the
// normalizer that produces it from raw upstream records.
//
// Two upstreams feed the storefront and neither agrees on field names:
//
//   - Supabase view rows (row_to_json of the catalog views), with numeric
//     prices, nested category objects and image objects carrying is_primary.
//   - WooCommerce REST records (/wp-json/wc/v3), with string prices,
//     price_html for variable products and stock_status strings.
//
// Normalize accepts either shape and returns exactly one Item or a
// *ParseError. It never panics on malformed input: optional field groups
// (price, images, categories, rating, stock) degrade to defaults and are
// reported as FieldIssues by NormalizeDetailed.
//
// # Price Resolution
//
// In priority order:
//
//  1. price (the effective price exposed by both upstreams)
//  2. sale_price, when on_sale is set
//  3. regular_price / base_price
//  4. lowest amount in price_html (tags and thousands separators stripped)
//  5. PriceUnavailable
//
// OriginalPrice is only set for on-sale records whose regular price is
// strictly greater than the resolved price.
//
// # Static Dataset
//
// Static returns the compiled demo dataset for a resource. The records are
// embedded JSON in WooCommerce shape and pass through Normalize like any
// upstream record.
package catalog
