// Package supabase is the gateway's client for the structured store: a
// Supabase (PostgreSQL) database exposing denormalized catalog views. It
// serves as the primary upstream.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
	"github.com/Sternrassler/storefront-gateway/pkg/logging"
	"github.com/Sternrassler/storefront-gateway/pkg/upstream"
)

// Default view names per resource.
const (
	DefaultCategoriesView = "storefront_categories"
	DefaultProductsView   = "storefront_products"
	DefaultTripsView      = "storefront_trips"
)

// Querier is the subset of *pgxpool.Pool the client needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Views maps resources to the views they are read from. Gear is read from
// the products view.
type Views struct {
	Categories string
	Products   string
	Trips      string
}

// DefaultViews returns the default view names.
func DefaultViews() Views {
	return Views{
		Categories: DefaultCategoriesView,
		Products:   DefaultProductsView,
		Trips:      DefaultTripsView,
	}
}

// Client reads raw records as JSON rows from the catalog views.
type Client struct {
	db     Querier
	views  Views
	logger zerolog.Logger
}

// NewPool opens a connection pool. The pool connects lazily.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse supabase dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create supabase pool: %w", err)
	}
	return pool, nil
}

// New creates a client. Empty view names take the defaults.
func New(db Querier, views Views, logger zerolog.Logger) *Client {
	def := DefaultViews()
	if views.Categories == "" {
		views.Categories = def.Categories
	}
	if views.Products == "" {
		views.Products = def.Products
	}
	if views.Trips == "" {
		views.Trips = def.Trips
	}
	return &Client{
		db:     db,
		views:  views,
		logger: logging.NewLogger(logger, "supabase"),
	}
}

// Name implements upstream.Fetcher.
func (c *Client) Name() string {
	return upstream.SourceSupabase
}

// Fetch implements upstream.Fetcher.
func (c *Client) Fetch(ctx context.Context, resource catalog.Resource, q upstream.Query) ([]json.RawMessage, error) {
	sql, args, err := c.buildQuery(resource, q)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, c.classify(ctx, err)
	}

	texts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, c.classify(ctx, err)
	}

	records := make([]json.RawMessage, 0, len(texts))
	for _, s := range texts {
		records = append(records, json.RawMessage(s))
	}

	c.logger.Debug().
		Str("resource", string(resource)).
		Int("rows", len(records)).
		Msg("Supabase query complete")

	return records, nil
}

const itemQuery = `SELECT row_to_json(v)::text FROM %s v
WHERE (
	(cardinality($1::bigint[]) = 0 AND cardinality($2::text[]) = 0)
	OR EXISTS (
		SELECT 1 FROM jsonb_array_elements(coalesce(v.categories, '[]'::jsonb)) AS c(cat)
		WHERE (c.cat->>'id')::bigint = ANY($1::bigint[]) OR lower(c.cat->>'slug') = ANY($2::text[])
	)
)
AND (NOT $3::boolean OR v.featured)
ORDER BY v.featured DESC, v.id
LIMIT $4 OFFSET $5`

const categoryQuery = `SELECT row_to_json(v)::text FROM %s v
WHERE (
	(cardinality($1::bigint[]) = 0 AND cardinality($2::text[]) = 0)
	OR v.id = ANY($1::bigint[])
	OR lower(v.slug) = ANY($2::text[])
)
ORDER BY v.name, v.id
LIMIT $3 OFFSET $4`

// buildQuery returns the SQL and arguments for a resource query.
func (c *Client) buildQuery(resource catalog.Resource, q upstream.Query) (string, []any, error) {
	ids, slugs := q.CategoryIDs()
	if ids == nil {
		ids = []int64{}
	}
	if slugs == nil {
		slugs = []string{}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = upstream.MaxLimit
	}
	offset := (max(q.Page, 1) - 1) * limit

	switch resource {
	case catalog.ResourceCategories:
		view := pgx.Identifier{c.views.Categories}.Sanitize()
		return fmt.Sprintf(categoryQuery, view), []any{ids, slugs, limit, offset}, nil
	case catalog.ResourceGear, catalog.ResourceProducts:
		view := pgx.Identifier{c.views.Products}.Sanitize()
		return fmt.Sprintf(itemQuery, view), []any{ids, slugs, q.Featured, limit, offset}, nil
	case catalog.ResourceTrips:
		view := pgx.Identifier{c.views.Trips}.Sanitize()
		return fmt.Sprintf(itemQuery, view), []any{ids, slugs, q.Featured, limit, offset}, nil
	default:
		return "", nil, upstream.NewError(c.Name(), upstream.ClassClient, 0,
			fmt.Sprintf("unsupported resource %q", resource), nil)
	}
}

// classify maps a database error onto the upstream error taxonomy.
func (c *Client) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		// Deadline and cancellation are classified by the executor.
		return fmt.Errorf("supabase query: %w", err)
	}
	return classifyError(err)
}

func classifyError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return upstream.NewError(upstream.SourceSupabase, upstream.ClassTimeout, 0, "deadline exceeded", err)
		}
		return upstream.NewError(upstream.SourceSupabase, upstream.ClassNetwork, 0, "query failed", err)
	}

	var class upstream.ErrorClass
	switch {
	case pgErr.Code == pgerrcode.QueryCanceled:
		class = upstream.ClassTimeout
	case pgerrcode.IsConnectionException(pgErr.Code):
		class = upstream.ClassNetwork
	case pgerrcode.IsInvalidAuthorizationSpecification(pgErr.Code),
		pgErr.Code == pgerrcode.InsufficientPrivilege:
		class = upstream.ClassAuth
	case pgerrcode.IsInsufficientResources(pgErr.Code),
		pgerrcode.IsOperatorIntervention(pgErr.Code),
		pgerrcode.IsSystemError(pgErr.Code),
		pgerrcode.IsInternalError(pgErr.Code):
		class = upstream.ClassServer
	case pgerrcode.IsDataException(pgErr.Code):
		class = upstream.ClassMalformed
	default:
		class = upstream.ClassClient
	}
	return upstream.NewError(upstream.SourceSupabase, class, 0,
		fmt.Sprintf("%s (%s)", pgErr.Message, pgErr.Code), err)
}
