// Package woocommerce is the gateway's client for the legacy WooCommerce
// REST API (wc/v3). It serves as the secondary upstream.
package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
	"github.com/Sternrassler/storefront-gateway/pkg/logging"
	"github.com/Sternrassler/storefront-gateway/pkg/pagination"
	"github.com/Sternrassler/storefront-gateway/pkg/upstream"
)

// APIPath is the REST namespace below the shop's base URL.
const APIPath = "/wp-json/wc/v3"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

var (
	wooRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_woocommerce_requests_total",
		Help: "Total WooCommerce requests by endpoint and status",
	}, []string{"endpoint", "status"})

	wooRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_woocommerce_request_duration_seconds",
		Help:    "WooCommerce request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the shop, e.g. https://shop.example.com
	BaseURL string

	// REST API credentials, sent with basic auth
	ConsumerKey    string
	ConsumerSecret string

	// TripsCategory is the id or slug of the category holding trip products
	TripsCategory string

	UserAgent string

	// SlugTTL is how long the slug -> id table is kept
	SlugTTL time.Duration

	// HTTPClient overrides the default client. Per-call deadlines come from
	// the request context, so the client carries no timeout of its own.
	HTTPClient *http.Client

	// Pagination configures the parallel all-pages category listing
	Pagination pagination.Config
}

// Client fetches raw product, trip and category records.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	batch      *pagination.BatchFetcher
	logger     zerolog.Logger

	slugMu       sync.Mutex
	slugIDs      map[string]int64
	slugsFetched time.Time
}

// New creates a WooCommerce client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("woocommerce base url is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid woocommerce base url %q", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "storefront-gateway"
	}
	if cfg.SlugTTL <= 0 {
		cfg.SlugTTL = 10 * time.Minute
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + APIPath,
		config:     cfg,
		logger:     logging.NewLogger(logger, "woocommerce"),
	}
	c.batch = pagination.NewBatchFetcher(c, cfg.Pagination)
	return c, nil
}

// Name implements upstream.Fetcher.
func (c *Client) Name() string {
	return upstream.SourceWooCommerce
}

// Fetch implements upstream.Fetcher.
func (c *Client) Fetch(ctx context.Context, resource catalog.Resource, q upstream.Query) ([]json.RawMessage, error) {
	switch resource {
	case catalog.ResourceCategories:
		return c.fetchCategories(ctx, q)
	case catalog.ResourceGear, catalog.ResourceProducts:
		return c.fetchProducts(ctx, q, q.Categories)
	case catalog.ResourceTrips:
		return c.fetchTrips(ctx, q)
	default:
		return nil, upstream.NewError(c.Name(), upstream.ClassClient, 0,
			fmt.Sprintf("unsupported resource %q", resource), nil)
	}
}

func (c *Client) fetchProducts(ctx context.Context, q upstream.Query, tokens []string) ([]json.RawMessage, error) {
	params := pageParams(q)
	params.Set("status", "publish")
	if q.Featured {
		params.Set("featured", "true")
	}

	if len(tokens) > 0 {
		ids, err := c.resolveCategories(ctx, tokens)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			// Only unknown slugs were requested.
			return nil, nil
		}
		params.Set("category", joinIDs(ids))
	}

	body, _, err := c.get(ctx, "/products", params)
	if err != nil {
		return nil, err
	}
	return c.decodeList(body)
}

// fetchTrips lists products of the trips category. A caller category
// narrows the listing; records outside the trips category are dropped.
func (c *Client) fetchTrips(ctx context.Context, q upstream.Query) ([]json.RawMessage, error) {
	if c.config.TripsCategory == "" {
		return c.fetchProducts(ctx, q, q.Categories)
	}
	trips := strings.ToLower(c.config.TripsCategory)
	if len(q.Categories) == 0 {
		return c.fetchProducts(ctx, q, []string{trips})
	}

	records, err := c.fetchProducts(ctx, q, q.Categories)
	if err != nil || len(records) == 0 {
		return records, err
	}
	tripIDs, err := c.resolveCategories(ctx, []string{trips})
	if err != nil {
		return nil, err
	}
	return inCategory(records, trips, tripIDs), nil
}

// inCategory keeps records listing the category given by slug or id.
func inCategory(records []json.RawMessage, slug string, ids []int64) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		match := false
		gjson.GetBytes(rec, "categories").ForEach(func(_, cat gjson.Result) bool {
			if strings.EqualFold(cat.Get("slug").String(), slug) {
				match = true
			}
			for _, id := range ids {
				if cat.Get("id").Int() == id {
					match = true
				}
			}
			return !match
		})
		if match {
			out = append(out, rec)
		}
	}
	return out
}

func (c *Client) fetchCategories(ctx context.Context, q upstream.Query) ([]json.RawMessage, error) {
	params := pageParams(q)
	params.Set("hide_empty", "true")

	if len(q.Categories) > 0 {
		ids, err := c.resolveCategories(ctx, q.Categories)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		params.Set("include", joinIDs(ids))
	}

	body, _, err := c.get(ctx, "/products/categories", params)
	if err != nil {
		return nil, err
	}
	return c.decodeList(body)
}

// FetchPage implements pagination.PageFetcher.
func (c *Client) FetchPage(ctx context.Context, endpoint string, pageNum int) ([]byte, int, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(upstream.MaxLimit))
	params.Set("page", strconv.Itoa(pageNum))

	body, header, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, 0, err
	}

	totalPages, err := strconv.Atoi(header.Get("X-WP-TotalPages"))
	if err != nil || totalPages < 1 {
		totalPages = 1
	}
	return body, totalPages, nil
}

// AllCategories lists every product category across all pages.
func (c *Client) AllCategories(ctx context.Context) ([]json.RawMessage, error) {
	pages, err := c.batch.FetchAllPages(ctx, "/products/categories")
	if err != nil {
		return nil, err
	}

	var out []json.RawMessage
	for _, page := range pagination.Ordered(pages) {
		records, err := c.decodeList(page)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// resolveCategories turns category tokens into ids. Numeric tokens are
// used as-is; slugs are looked up in the cached category table. Unknown
// slugs are dropped.
func (c *Client) resolveCategories(ctx context.Context, tokens []string) ([]int64, error) {
	var ids []int64
	var slugs []string
	for _, t := range tokens {
		if id, err := strconv.ParseInt(t, 10, 64); err == nil {
			ids = append(ids, id)
			continue
		}
		slugs = append(slugs, t)
	}
	if len(slugs) == 0 {
		return ids, nil
	}

	table, err := c.slugTable(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range slugs {
		if id, ok := table[s]; ok {
			ids = append(ids, id)
			continue
		}
		c.logger.Debug().Str("slug", s).Msg("Unknown category slug")
	}
	return ids, nil
}

func (c *Client) slugTable(ctx context.Context) (map[string]int64, error) {
	c.slugMu.Lock()
	defer c.slugMu.Unlock()

	if c.slugIDs != nil && time.Since(c.slugsFetched) < c.config.SlugTTL {
		return c.slugIDs, nil
	}

	records, err := c.AllCategories(ctx)
	if err != nil {
		return nil, err
	}

	table := make(map[string]int64, len(records))
	for _, raw := range records {
		var cat struct {
			ID   int64  `json:"id"`
			Slug string `json:"slug"`
		}
		if err := json.Unmarshal(raw, &cat); err != nil || cat.Slug == "" {
			continue
		}
		table[strings.ToLower(cat.Slug)] = cat.ID
	}

	c.slugIDs = table
	c.slugsFetched = time.Now()
	return table, nil
}

// get performs one authenticated GET and classifies failures.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, http.Header, error) {
	start := time.Now()
	defer func() {
		wooRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, upstream.NewError(c.Name(), upstream.ClassClient, 0, "build request", err)
	}
	if c.config.ConsumerKey != "" {
		req.SetBasicAuth(c.config.ConsumerKey, c.config.ConsumerSecret)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wooRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		if ctx.Err() != nil {
			// Deadline and cancellation are classified by the executor.
			return nil, nil, fmt.Errorf("woocommerce request: %w", ctx.Err())
		}
		return nil, nil, upstream.NewError(c.Name(), upstream.ClassNetwork, 0, "request failed", err)
	}
	defer resp.Body.Close()

	wooRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("woocommerce read body: %w", ctx.Err())
		}
		return nil, nil, upstream.NewError(c.Name(), upstream.ClassNetwork, resp.StatusCode, "read body", err)
	}

	if class := upstream.ClassForStatus(resp.StatusCode); class != "" {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("WooCommerce request failed")
		return nil, nil, upstream.NewError(c.Name(), class, resp.StatusCode, snippet(body), nil)
	}

	return body, resp.Header, nil
}

func (c *Client) decodeList(body []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, upstream.NewError(c.Name(), upstream.ClassMalformed, 0,
			"response is not a JSON array", err)
	}
	return records, nil
}

func pageParams(q upstream.Query) url.Values {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("per_page", strconv.Itoa(q.Limit))
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
	return params
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
