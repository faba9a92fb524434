// Package testutil provides testing utilities for the storefront gateway.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Base path of the WooCommerce REST API.
const WooBasePath = "/wp-json/wc/v3"

// MockResponse defines the behavior of one mocked endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockWooCommerce is a configurable WooCommerce REST server for tests.
type MockWooCommerce struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Credentials enforced with basic auth when Key is non-empty.
	Key    string
	Secret string

	requestCount int
	pathCounts   map[string]int
	lastQuery    url.Values
}

// NewMockWooCommerce creates and starts a mock server.
func NewMockWooCommerce() *MockWooCommerce {
	mock := &MockWooCommerce{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastQuery = r.URL.Query()
		key, secret := mock.Key, mock.Secret
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if key != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != key || pass != secret {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"code":"woocommerce_rest_cannot_view","message":"Sorry, you cannot list resources."}`))
				return
			}
		}

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockWooCommerce) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockWooCommerce) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockWooCommerce) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastQuery = nil
}

// SetHandler sets a custom handler for a path below WooBasePath.
func (m *MockWooCommerce) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[WooBasePath+path] = handler
}

// SetResponse configures a fixed response for a path below WooBasePath.
func (m *MockWooCommerce) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPages serves one body per page number, read from the "page" query
// parameter, with matching X-WP-Total / X-WP-TotalPages headers.
func (m *MockWooCommerce) SetPages(path string, pages []string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil || page < 1 {
			page = 1
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("X-WP-TotalPages", strconv.Itoa(len(pages)))
		if page > len(pages) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":"rest_post_invalid_page_number"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(pages[page-1]))
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockWooCommerce) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests for a path below WooBasePath.
func (m *MockWooCommerce) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[WooBasePath+path]
}

// LastQuery returns the query parameters of the most recent request.
func (m *MockWooCommerce) LastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery
}

// defaultHandler answers with an empty listing.
func (m *MockWooCommerce) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-WP-Total", "0")
	w.Header().Set("X-WP-TotalPages", "0")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`[]`))
}

// NewListResponse creates a 200 OK listing response.
func NewListResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":    "application/json; charset=utf-8",
			"X-WP-TotalPages": "1",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"code":"internal_server_error","message":"Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewBadGatewayResponse creates a 502 response as served by a failing proxy.
func NewBadGatewayResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadGateway,
		Body:       `<html><body>502 Bad Gateway</body></html>`,
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}

// NewForbiddenResponse creates a 403 response.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"code":"woocommerce_rest_cannot_view"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
