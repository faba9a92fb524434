package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
	"github.com/Sternrassler/storefront-gateway/pkg/gateway"
	"github.com/Sternrassler/storefront-gateway/pkg/logging"
	"github.com/Sternrassler/storefront-gateway/pkg/metrics"
	"github.com/Sternrassler/storefront-gateway/pkg/upstream"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// StepHeader reports which chain step produced the response.
const StepHeader = "X-Gateway-Step"

// queryTimeout bounds one resource request, including the whole chain.
const queryTimeout = 30 * time.Second

type server struct {
	gw     *gateway.Gateway
	logger zerolog.Logger
}

func newServer(gw *gateway.Gateway, logger zerolog.Logger) *server {
	return &server{gw: gw, logger: logging.NewLogger(logger, "http")}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{resource}", s.handleResource)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return s.withRequestID(mux)
}

// envelope is the JSON body of every resource response.
type envelope struct {
	Success   bool           `json:"success"`
	Items     []catalog.Item `json:"items"`
	Count     int            `json:"count"`
	Cached    bool           `json:"cached"`
	Stale     bool           `json:"stale"`
	Breaker   bool           `json:"breaker"`
	Demo      bool           `json:"demo"`
	Source    string         `json:"source,omitempty"`
	FetchedAt *time.Time     `json:"fetched_at,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (s *server) handleResource(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())

	resource, err := catalog.ParseResource(r.PathValue("resource"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, envelope{Items: []catalog.Item{}, Error: err.Error()})
		return
	}

	params := r.URL.Query()
	if params.Has("reset") && flag(params.Get("reset"), true) {
		s.gw.Reset()
		log.Info().Msg("Reset requested")
	}
	if strings.EqualFold(params.Get("breaker"), "open") {
		s.gw.TripBreaker()
		log.Warn().Msg("Breaker opened by request")
	}

	q := parseQuery(params)

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	resp, err := s.gw.Query(ctx, resource, q)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			log.Debug().Msg("Client went away")
			return
		}
		log.Error().Err(err).Str("resource", string(resource)).Msg("Query failed")
		writeJSON(w, statusFor(resource, err), envelope{Items: []catalog.Item{}, Error: errorMessage(err)})
		return
	}

	etag := resp.ETag()
	w.Header().Set("ETag", etag)
	w.Header().Set(StepHeader, string(resp.Step))
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	items := resp.Items
	if items == nil {
		items = []catalog.Item{}
	}
	fetchedAt := resp.FetchedAt.UTC()
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Items:     items,
		Count:     resp.Count,
		Cached:    resp.Cached,
		Stale:     resp.Stale,
		Breaker:   resp.Breaker,
		Demo:      resp.Demo,
		Source:    resp.Source,
		FetchedAt: &fetchedAt,
	})
}

// statusFor maps a query error to an HTTP status. Errors are reported in
// a 200 envelope except for product and trip listings, which signal total
// upstream unavailability with 504.
func statusFor(resource catalog.Resource, err error) int {
	switch {
	case errors.Is(err, gateway.ErrUnknownResource):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrChainExhausted):
		if resource == catalog.ResourceProducts || resource == catalog.ResourceTrips {
			return http.StatusGatewayTimeout
		}
	}
	return http.StatusOK
}

func errorMessage(err error) string {
	if errors.Is(err, gateway.ErrChainExhausted) {
		return "data temporarily unavailable"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return "internal error"
}

func parseQuery(params map[string][]string) upstream.Query {
	get := func(key string) string {
		if v := params[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	limit := atoi(get("limit"))
	if limit == 0 {
		limit = atoi(get("per_page"))
	}
	var categories []string
	categories = append(categories, params["category"]...)
	categories = append(categories, params["categories"]...)

	return upstream.NewQuery(categories, limit, atoi(get("page")), flag(get("featured"), false))
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// flag parses a boolean query parameter. A present but empty parameter
// takes emptyValue.
func flag(s string, emptyValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return emptyValue
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

type breakerHealth struct {
	Open             bool    `json:"open"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	FailureCount     int     `json:"failure_count"`
	LastReason       string  `json:"last_reason,omitempty"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	Breaker breakerHealth  `json:"breaker"`
	Cache   map[string]int `json:"cache"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	b := s.gw.Breaker()
	now := b.Now()
	state := b.Snapshot()

	status := "ok"
	if state.IsOpen(now) {
		status = "degraded"
	}

	snapshot := s.gw.Store().Snapshot()
	entries := make(map[string]int, len(snapshot))
	for resource, n := range snapshot {
		entries[string(resource)] = n
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status: status,
		Breaker: breakerHealth{
			Open:             state.IsOpen(now),
			RemainingSeconds: state.Remaining(now).Seconds(),
			FailureCount:     state.FailureCount,
			LastReason:       state.LastReason,
		},
		Cache: entries,
	})
}

// withRequestID assigns every request an id, echoes it in the response and
// attaches a request-scoped logger to the context.
func (s *server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		logger := s.logger.With().Str("request_id", id).Str("path", r.URL.Path).Logger()
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
		logger.Debug().Dur("duration", time.Since(start)).Msg("Request served")
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
