package woocommerce

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/storefront-gateway/internal/testutil"
	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
	"github.com/Sternrassler/storefront-gateway/pkg/upstream"
)

const productsBody = `[
	{"id": 101, "name": "Tent", "price": "199.00", "categories": [{"id": 186, "name": "Gear", "slug": "gear"}]},
	{"id": 102, "name": "Stove", "price": "49.00", "categories": [{"id": 186, "name": "Gear", "slug": "gear"}]}
]`

func newTestClient(t *testing.T, mock *testutil.MockWooCommerce, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = mock.URL()
	c, err := New(cfg, zerolog.New(os.Stderr).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	logger := zerolog.Nop()
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"valid", "https://shop.example.com", false},
		{"trailing slash", "https://shop.example.com/", false},
		{"missing", "", true},
		{"no scheme", "shop.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{BaseURL: tt.baseURL}, logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetch_Products(t *testing.T) {
	mock := testutil.NewMockWooCommerce()
	defer mock.Close()
	mock.Key, mock.Secret = "ck_test", "cs_test"
	mock.SetResponse("/products", testutil.NewListResponse(productsBody))

	c := newTestClient(t, mock, Config{ConsumerKey: "ck_test", ConsumerSecret: "cs_test"})

	q := upstream.NewQuery([]string{"186"}, 6, 1, true)
	records, err := c.Fetch(context.Background(), catalog.ResourceGear, q)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	query := mock.LastQuery()
	checks := map[string]string{
		"category": "186",
		"per_page": "6",
		"page":     "1",
		"featured": "true",
		"status":   "publish",
	}
	for key, want := range checks {
		if got := query.Get(key); got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestFetch_TripsUseConfiguredCategory(t *testing.T) {
	mock := testutil.NewMockWooCommerce()
	defer mock.Close()
	mock.SetResponse("/products", testutil.NewListResponse(`[]`))

	c := newTestClient(t, mock, Config{TripsCategory: "42"})

	if _, err := c.Fetch(context.Background(), catalog.ResourceTrips, upstream.NewQuery(nil, 12, 2, false)); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := mock.LastQuery().Get("category"); got != "42" {
		t.Errorf("category = %q, want 42", got)
	}
	if got := mock.LastQuery().Get("page"); got != "2" {
		t.Errorf("page = %q, want 2", got)
	}
}

func TestFetch_TripsWithCallerCategory(t *testing.T) {
	const mixedBody = `[
		{"id": 101, "name": "Tent", "categories": [{"id": 186, "slug": "gear"}]},
		{"id": 201, "name": "Glacier Hike", "categories": [{"id": 186, "slug": "gear"}, {"id": 42, "slug": "trips"}]},
		{"id": 202, "name": "Canyon Tour", "categories": [{"id": 186, "slug": "gear"}, {"id": 77, "slug": "Trips"}]}
	]`

	tests := []struct {
		name          string
		tripsCategory string
		checkQuery    bool
		wantIDs       []string
	}{
		{"trips category by id", "42", true, []string{"201"}},
		{"trips category by slug", "trips", false, []string{"201", "202"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockWooCommerce()
			defer mock.Close()
			mock.SetResponse("/products", testutil.NewListResponse(mixedBody))

			c := newTestClient(t, mock, Config{TripsCategory: tt.tripsCategory})

			records, err := c.Fetch(context.Background(), catalog.ResourceTrips, upstream.NewQuery([]string{"186"}, 12, 1, false))
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if n := mock.PathCount("/products"); n != 1 {
				t.Errorf("product requests = %d, want 1", n)
			}
			if got := mock.LastQuery().Get("category"); tt.checkQuery && got != "186" {
				t.Errorf("category = %q, want 186", got)
			}
			if len(records) != len(tt.wantIDs) {
				t.Fatalf("got %d records, want %d", len(records), len(tt.wantIDs))
			}
			for i, rec := range records {
				var r struct {
					ID json.Number `json:"id"`
				}
				if err := json.Unmarshal(rec, &r); err != nil {
					t.Fatalf("decode record: %v", err)
				}
				if r.ID.String() != tt.wantIDs[i] {
					t.Errorf("record %d id = %s, want %s", i, r.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestFetch_SlugResolution(t *testing.T) {
	mock := testutil.NewMockWooCommerce()
	defer mock.Close()
	mock.SetPages("/products/categories", []string{
		`[{"id": 186, "slug": "gear"}, {"id": 187, "slug": "tents"}]`,
		`[{"id": 190, "slug": "Trips"}]`,
	})
	mock.SetResponse("/products", testutil.NewListResponse(productsBody))

	c := newTestClient(t, mock, Config{})

	q := upstream.NewQuery([]string{"gear,trips,unknown"}, 12, 1, false)
	if _, err := c.Fetch(context.Background(), catalog.ResourceProducts, q); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := mock.LastQuery().Get("category"); got != "186,190" {
		t.Errorf("category = %q, want 186,190", got)
	}

	// The slug table is cached.
	if _, err := c.Fetch(context.Background(), catalog.ResourceProducts, q); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := mock.PathCount("/products/categories"); got != 2 {
		t.Errorf("category listing requests = %d, want 2", got)
	}
}

func TestFetch_UnknownSlugsOnly(t *testing.T) {
	mock := testutil.NewMockWooCommerce()
	defer mock.Close()
	mock.SetPages("/products/categories", []string{`[{"id": 186, "slug": "gear"}]`})

	c := newTestClient(t, mock, Config{})

	records, err := c.Fetch(context.Background(), catalog.ResourceProducts, upstream.NewQuery([]string{"nope"}, 12, 1, false))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
	if mock.PathCount("/products") != 0 {
		t.Error("products endpoint should not be queried")
	}
}

func TestFetch_Categories(t *testing.T) {
	mock := testutil.NewMockWooCommerce()
	defer mock.Close()
	mock.SetResponse("/products/categories", testutil.NewListResponse(`[{"id": 186, "name": "Gear", "slug": "gear"}]`))

	c := newTestClient(t, mock, Config{})

	records, err := c.Fetch(context.Background(), catalog.ResourceCategories, upstream.NewQuery([]string{"186"}, 20, 1, false))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
	if got := mock.LastQuery().Get("include"); got != "186" {
		t.Errorf("include = %q, want 186", got)
	}
}

func TestFetch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		resp      testutil.MockResponse
		wantClass upstream.ErrorClass
	}{
		{"server error", testutil.NewServerErrorResponse(), upstream.ClassServer},
		{"bad gateway", testutil.NewBadGatewayResponse(), upstream.ClassServer},
		{"forbidden", testutil.NewForbiddenResponse(), upstream.ClassAuth},
		{"not found", testutil.MockResponse{StatusCode: http.StatusNotFound, Body: `{}`}, upstream.ClassClient},
		{"object instead of array", testutil.NewListResponse(`{"code": "oops"}`), upstream.ClassMalformed},
		{"html body", testutil.MockResponse{StatusCode: http.StatusOK, Body: `<html></html>`}, upstream.ClassMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockWooCommerce()
			defer mock.Close()
			mock.SetResponse("/products", tt.resp)

			c := newTestClient(t, mock, Config{})
			_, err := c.Fetch(context.Background(), catalog.ResourceProducts, upstream.NewQuery(nil, 12, 1, false))
			if err == nil {
				t.Fatal("Fetch() should fail")
			}
			if got := upstream.Classify(err); got != tt.wantClass {
				t.Errorf("Classify() = %s, want %s (err: %v)", got, tt.wantClass, err)
			}
		})
	}
}

func TestFetch_WrongCredentials(t *testing.T) {
	mock := testutil.NewMockWooCommerce()
	defer mock.Close()
	mock.Key, mock.Secret = "ck_test", "cs_test"

	c := newTestClient(t, mock, Config{ConsumerKey: "ck_test", ConsumerSecret: "wrong"})
	_, err := c.Fetch(context.Background(), catalog.ResourceProducts, upstream.NewQuery(nil, 12, 1, false))
	if got := upstream.Classify(err); got != upstream.ClassAuth {
		t.Errorf("Classify() = %s, want auth", got)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	mock := testutil.NewMockWooCommerce()
	c := newTestClient(t, mock, Config{})
	mock.Close()

	_, err := c.Fetch(context.Background(), catalog.ResourceProducts, upstream.NewQuery(nil, 12, 1, false))
	if got := upstream.Classify(err); got != upstream.ClassNetwork {
		t.Errorf("Classify() = %s, want network", got)
	}
}

func TestFetch_ThroughExecutorTimesOut(t *testing.T) {
	mock := testutil.NewMockWooCommerce()
	defer mock.Close()
	resp := testutil.NewListResponse(productsBody)
	resp.Delay = 500 * time.Millisecond
	mock.SetResponse("/products", resp)

	c := newTestClient(t, mock, Config{})
	exec := upstream.NewExecutor(upstream.RetryConfig{Timeout: 50 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	_, err := exec.Do(context.Background(), c.Name(), func(ctx context.Context) ([]json.RawMessage, error) {
		return c.Fetch(ctx, catalog.ResourceProducts, upstream.NewQuery(nil, 12, 1, false))
	})

	var uerr *upstream.Error
	if !errors.As(err, &uerr) || uerr.Class != upstream.ClassTimeout {
		t.Fatalf("error = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("timed-out call took %v", elapsed)
	}
	if got := mock.PathCount("/products"); got != 1 {
		t.Errorf("requests = %d, want 1 (timeouts are not retried)", got)
	}
}

func TestAllCategories(t *testing.T) {
	mock := testutil.NewMockWooCommerce()
	defer mock.Close()
	mock.SetPages("/products/categories", []string{
		`[{"id": 1, "slug": "a"}, {"id": 2, "slug": "b"}]`,
		`[{"id": 3, "slug": "c"}]`,
		`[{"id": 4, "slug": "d"}]`,
	})

	c := newTestClient(t, mock, Config{})
	records, err := c.AllCategories(context.Background())
	if err != nil {
		t.Fatalf("AllCategories() error = %v", err)
	}
	if len(records) != 4 {
		t.Errorf("got %d records, want 4", len(records))
	}
}
