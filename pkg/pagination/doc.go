// Package pagination fetches every page of a WooCommerce-style paginated
// endpoint in parallel.
//
// WooCommerce reports the number of pages in the X-WP-TotalPages response
// header. The first page is fetched synchronously to learn that count; the
// remaining pages are distributed over a bounded worker pool.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(wooClient, pagination.DefaultConfig())
//	pages, err := fetcher.FetchAllPages(ctx, "/products/categories")
//	for _, page := range pagination.Ordered(pages) {
//		// decode page
//	}
package pagination
