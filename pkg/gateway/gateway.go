// Package gateway implements the fallback chain orchestrator: it answers
// storefront queries from the cache store, the primary and secondary
// upstreams, and finally the compiled static dataset, while honouring the
// circuit breaker and scheduling background revalidation.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/storefront-gateway/pkg/breaker"
	"github.com/Sternrassler/storefront-gateway/pkg/cache"
	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
	"github.com/Sternrassler/storefront-gateway/pkg/logging"
	"github.com/Sternrassler/storefront-gateway/pkg/revalidate"
	"github.com/Sternrassler/storefront-gateway/pkg/upstream"
)

// mirrorResetTimeout bounds the synchronous mirror wipe in Reset.
const mirrorResetTimeout = 2 * time.Second

var (
	// ErrChainExhausted indicates no chain step produced any items.
	ErrChainExhausted = errors.New("fallback chain exhausted")

	// ErrUnknownResource indicates a resource with no spec.
	ErrUnknownResource = errors.New("unknown resource")
)

// Options configures a Gateway. Nil components are replaced by defaults.
type Options struct {
	// Primary is the structured store. Nil skips the primary step.
	Primary upstream.Fetcher

	// Secondary is the legacy REST upstream. Nil skips the secondary step.
	Secondary upstream.Fetcher

	Executor  *upstream.Executor
	Breaker   *breaker.Breaker
	Scheduler *revalidate.Scheduler
	Store     *cache.Store

	// Mirror receives every stored upstream result in the background.
	Mirror *cache.Mirror

	// Policies override the staleness policy per resource.
	Policies map[catalog.Resource]cache.Policy

	Logger zerolog.Logger

	// Now is the clock used for entry timestamps and zones.
	Now func() time.Time
}

// Gateway is safe for concurrent use.
type Gateway struct {
	primary   upstream.Fetcher
	secondary upstream.Fetcher
	executor  *upstream.Executor
	breaker   *breaker.Breaker
	scheduler *revalidate.Scheduler
	store     *cache.Store
	mirror    *cache.Mirror
	specs     map[catalog.Resource]ResourceSpec
	flight    singleflight.Group
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a gateway.
func New(opts Options) (*Gateway, error) {
	logger := logging.NewLogger(opts.Logger, "gateway")

	specs := DefaultSpecs()
	for resource, policy := range opts.Policies {
		spec, ok := specs[resource]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
		}
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("policy for %s: %w", resource, err)
		}
		spec.Policy = policy
		specs[resource] = spec
	}

	g := &Gateway{
		primary:   opts.Primary,
		secondary: opts.Secondary,
		executor:  opts.Executor,
		breaker:   opts.Breaker,
		scheduler: opts.Scheduler,
		store:     opts.Store,
		mirror:    opts.Mirror,
		specs:     specs,
		logger:    logger,
		now:       opts.Now,
	}
	if g.executor == nil {
		g.executor = upstream.NewExecutor(upstream.DefaultRetryConfig(), logger)
	}
	if g.breaker == nil {
		g.breaker = breaker.New(breaker.Config{}, logger)
	}
	if g.scheduler == nil {
		g.scheduler = revalidate.New(revalidate.DefaultConfig(), logger)
	}
	if g.store == nil {
		g.store = cache.NewStore()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g, nil
}

// Spec returns the spec of a resource.
func (g *Gateway) Spec(resource catalog.Resource) (ResourceSpec, bool) {
	spec, ok := g.specs[resource]
	return spec, ok
}

// Store returns the gateway's cache store.
func (g *Gateway) Store() *cache.Store {
	return g.store
}

// Breaker returns the gateway's circuit breaker.
func (g *Gateway) Breaker() *breaker.Breaker {
	return g.breaker
}

// Query answers one storefront query.
//
// A fresh entry is returned without contacting any upstream. A stale entry
// is returned and refreshed in the background. A miss or an expired entry
// runs the resource's chain synchronously; concurrent callers for the same
// key share one chain run. While the breaker is open no upstream is called.
func (g *Gateway) Query(ctx context.Context, resource catalog.Resource, q upstream.Query) (*Response, error) {
	spec, ok := g.specs[resource]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}

	q = g.resolveQuery(spec, q)
	key := cache.Key{
		Categories: q.Categories,
		Limit:      q.Limit,
		Page:       q.Page,
		Featured:   q.Featured,
		Paged:      spec.Paged,
	}.String()

	log := g.logger.With().Str("resource", string(resource)).Str("key", key).Logger()

	if g.breaker.IsOpen() {
		resp, err := g.serveBreakerOpen(resource, spec, key, q)
		if err != nil {
			exhaustedTotal.WithLabelValues(string(resource)).Inc()
			return nil, err
		}
		log.Debug().Str("step", string(resp.Step)).Msg("Served while breaker open")
		return g.count(resp), nil
	}

	if entry, ok := g.store.Get(resource, key); ok {
		zone := spec.Policy.Zone(entry, g.now())
		cache.CacheHits.WithLabelValues(string(resource), zone.String()).Inc()

		switch zone {
		case cache.ZoneFresh:
			return g.count(g.fromEntry(resource, entry, StepCache, false)), nil
		case cache.ZoneStale:
			g.revalidate(resource, spec, key, q)
			return g.count(g.fromEntry(resource, entry, StepCache, true)), nil
		}
	} else {
		cache.CacheMisses.WithLabelValues(string(resource)).Inc()
	}

	resp, err := g.fetchShared(ctx, resource, spec, key, q)
	if err != nil {
		if errors.Is(err, ErrChainExhausted) {
			exhaustedTotal.WithLabelValues(string(resource)).Inc()
			log.Error().Msg("Fallback chain exhausted")
		}
		return nil, err
	}
	return g.count(resp), nil
}

// Reset clears the cache store, the mirror and the breaker.
func (g *Gateway) Reset() {
	g.store.Reset()
	g.breaker.Reset()

	if g.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorResetTimeout)
		defer cancel()
		if err := g.mirror.Reset(ctx); err != nil {
			g.logger.Warn().Err(err).Msg("Mirror reset failed")
		}
	}
	g.logger.Info().Msg("Gateway reset - cache and breaker cleared")
}

// TripBreaker opens the breaker for its cooldown.
func (g *Gateway) TripBreaker() {
	g.breaker.Trip(breaker.ReasonAdmin)
}

// Close stops the background scheduler.
func (g *Gateway) Close(ctx context.Context) error {
	return g.scheduler.Close(ctx)
}

func (g *Gateway) resolveQuery(spec ResourceSpec, q upstream.Query) upstream.Query {
	if q.Limit <= 0 {
		q.Limit = spec.DefaultLimit
	}
	if q.Limit > upstream.MaxLimit {
		q.Limit = upstream.MaxLimit
	}
	if !spec.Paged || q.Page < 1 {
		q.Page = 1
	}
	return q
}

// fetchShared runs the chain once per key for all concurrent callers. The
// run is detached from the caller so that one cancelled request does not
// fail the others; the caller itself still returns on cancellation.
func (g *Gateway) fetchShared(ctx context.Context, resource catalog.Resource, spec ResourceSpec, key string, q upstream.Query) (*Response, error) {
	detached := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(flightKey(resource, key), func() (any, error) {
		return g.runChain(detached, resource, spec, key, q)
	})

	select {
	case res := <-ch:
		if res.Shared {
			coalescedTotal.WithLabelValues(string(resource)).Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		resp := *res.Val.(*Response)
		return &resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// revalidate schedules one background chain run for a stale key.
func (g *Gateway) revalidate(resource catalog.Resource, spec ResourceSpec, key string, q upstream.Query) {
	err := g.scheduler.Submit(flightKey(resource, key), func(ctx context.Context) error {
		if g.breaker.IsOpen() {
			return nil
		}
		_, err, _ := g.flight.Do(flightKey(resource, key), func() (any, error) {
			return g.runChain(ctx, resource, spec, key, q)
		})
		return err
	})
	if err != nil && !errors.Is(err, revalidate.ErrDuplicate) {
		g.logger.Warn().
			Err(err).
			Str("resource", string(resource)).
			Str("key", key).
			Msg("Revalidation not scheduled")
	}
}

// runChain walks the resource's chain until a step yields items.
func (g *Gateway) runChain(ctx context.Context, resource catalog.Resource, spec ResourceSpec, key string, q upstream.Query) (*Response, error) {
	log := g.logger.With().Str("resource", string(resource)).Str("key", key).Logger()

	var upstreamErrs []error
	failureRecorded := false

	for _, step := range spec.Chain {
		if !step.upstream() && !failureRecorded {
			failureRecorded = true
			if len(upstreamErrs) > 0 {
				g.breaker.RecordFailure(breaker.ReasonUpstreamFailure)
			}
		}

		switch step {
		case StepPrimary, StepSecondary:
			fetcher := g.fetcherFor(step)
			if fetcher == nil {
				continue
			}
			if g.breaker.IsOpen() {
				log.Info().Str("step", string(step)).Msg("Breaker opened mid-chain - skipping upstream")
				continue
			}
			items, err := g.fetchUpstream(ctx, resource, fetcher, q)
			if err != nil {
				class := upstream.Classify(err)
				upstreamFailuresTotal.WithLabelValues(string(resource), fetcher.Name(), string(class)).Inc()
				log.Warn().
					Err(err).
					Str("step", string(step)).
					Str("source", fetcher.Name()).
					Str("error_class", string(class)).
					Msg("Upstream step failed")
				upstreamErrs = append(upstreamErrs, err)
				continue
			}
			if len(items) == 0 {
				log.Debug().Str("step", string(step)).Msg("Upstream step returned no items")
				continue
			}

			entry := cache.NewEntry(key, items, entrySource(step), g.now())
			g.store.Put(resource, entry)
			g.persist(resource, spec, entry)
			g.breaker.RecordSuccess()
			return g.fromEntry(resource, entry, step, false), nil

		case StepExpiredCache:
			if entry, ok := g.store.Get(resource, key); ok {
				log.Info().Str("step", string(step)).Msg("Serving expired entry")
				return g.fromEntry(resource, entry, step, true), nil
			}

		case StepAnyCache:
			if entry, ok := g.store.MostRecent(resource); ok {
				log.Info().Str("step", string(step)).Str("substitute_key", entry.Key).Msg("Serving substitute entry")
				return g.fromEntry(resource, entry, step, true), nil
			}

		case StepStatic:
			if resp := g.fromStatic(resource, q); resp != nil {
				log.Warn().Str("step", string(step)).Msg("Serving static fallback")
				return resp, nil
			}
		}
	}

	if len(upstreamErrs) > 0 {
		return nil, fmt.Errorf("%w for %s: %w", ErrChainExhausted, resource, errors.Join(upstreamErrs...))
	}
	return nil, fmt.Errorf("%w for %s", ErrChainExhausted, resource)
}

// serveBreakerOpen answers without upstream calls: the key's entry at any
// age, else the most recent entry of the resource, else static data.
func (g *Gateway) serveBreakerOpen(resource catalog.Resource, spec ResourceSpec, key string, q upstream.Query) (*Response, error) {
	var resp *Response
	if entry, ok := g.store.Get(resource, key); ok {
		stale := spec.Policy.Zone(entry, g.now()) != cache.ZoneFresh
		resp = g.fromEntry(resource, entry, StepCache, stale)
	} else if entry, ok := g.store.MostRecent(resource); ok {
		resp = g.fromEntry(resource, entry, StepAnyCache, true)
	} else if resp = g.fromStatic(resource, q); resp == nil {
		return nil, fmt.Errorf("%w for %s (breaker open)", ErrChainExhausted, resource)
	}
	resp.Breaker = true
	return resp, nil
}

// fetchUpstream runs one upstream through the executor and normalizes,
// filters and truncates its records.
func (g *Gateway) fetchUpstream(ctx context.Context, resource catalog.Resource, fetcher upstream.Fetcher, q upstream.Query) ([]catalog.Item, error) {
	records, err := g.executor.Do(ctx, fetcher.Name(), func(ctx context.Context) ([]json.RawMessage, error) {
		return fetcher.Fetch(ctx, resource, q)
	})
	if err != nil {
		return nil, err
	}

	kind := resource.Kind()
	items := make([]catalog.Item, 0, len(records))
	for _, raw := range records {
		item, err := catalog.Normalize(raw, kind)
		if err != nil {
			normalizeFailuresTotal.WithLabelValues(string(resource), fetcher.Name()).Inc()
			continue
		}
		items = append(items, item)
	}

	if len(records) > 0 && len(items) == 0 {
		return nil, upstream.NewError(fetcher.Name(), upstream.ClassMalformed, 0,
			fmt.Sprintf("none of %d records could be normalized", len(records)), nil)
	}
	return catalog.Select(items, q.Featured, q.Limit), nil
}

// persist mirrors a stored entry in the background.
func (g *Gateway) persist(resource catalog.Resource, spec ResourceSpec, entry *cache.Entry) {
	if g.mirror == nil {
		return
	}
	mirror := g.mirror
	err := g.scheduler.Submit("mirror:"+flightKey(resource, entry.Key), func(ctx context.Context) error {
		// Skip entries dropped by a reset or replaced since queueing.
		if current, ok := g.store.Get(resource, entry.Key); !ok || current != entry {
			return nil
		}
		return mirror.Save(ctx, resource, entry, spec.Policy.HardTTL)
	})
	if err != nil && !errors.Is(err, revalidate.ErrDuplicate) {
		g.logger.Debug().Err(err).Str("key", entry.Key).Msg("Mirror save not scheduled")
	}
}

func (g *Gateway) fetcherFor(step Step) upstream.Fetcher {
	if step == StepPrimary {
		return g.primary
	}
	return g.secondary
}

func (g *Gateway) fromEntry(resource catalog.Resource, entry *cache.Entry, step Step, stale bool) *Response {
	return &Response{
		Resource:  resource,
		Key:       entry.Key,
		Items:     entry.Items,
		Count:     len(entry.Items),
		Cached:    step != StepPrimary && step != StepSecondary,
		Stale:     stale,
		Source:    g.sourceName(entry.Source),
		Step:      step,
		Origin:    responseOrigin(entry.Source, step),
		FetchedAt: entry.FetchedAt,
		Checksum:  entry.Checksum,
	}
}

func (g *Gateway) fromStatic(resource catalog.Resource, q upstream.Query) *Response {
	items := catalog.StaticPage(resource, q.Categories, q.Featured, q.Limit, q.Page)
	if len(items) == 0 && (q.Page <= 1 || len(catalog.Static(resource, nil, false, 0)) == 0) {
		return nil
	}
	return &Response{
		Resource:  resource,
		Items:     items,
		Count:     len(items),
		Demo:      true,
		Source:    upstream.SourceDemo,
		Step:      StepStatic,
		Origin:    cache.SourceStatic,
		FetchedAt: g.now(),
		Checksum:  cache.Checksum(items),
	}
}

// sourceName maps an entry source to the caller-facing upstream name.
func (g *Gateway) sourceName(src cache.Source) string {
	switch src {
	case cache.SourcePrimary:
		if g.primary != nil {
			return g.primary.Name()
		}
		return upstream.SourceSupabase
	case cache.SourceSecondary:
		if g.secondary != nil {
			return g.secondary.Name()
		}
		return upstream.SourceWooCommerce
	default:
		return upstream.SourceDemo
	}
}

func (g *Gateway) count(resp *Response) *Response {
	responsesTotal.WithLabelValues(string(resp.Resource), string(resp.Step), fmt.Sprint(resp.Breaker)).Inc()
	return resp
}

func entrySource(step Step) cache.Source {
	if step == StepPrimary {
		return cache.SourcePrimary
	}
	return cache.SourceSecondary
}

func responseOrigin(src cache.Source, step Step) cache.Source {
	if step == StepExpiredCache || step == StepAnyCache {
		return cache.SourceStaleFallback
	}
	return src
}

func flightKey(resource catalog.Resource, key string) string {
	return string(resource) + ":" + key
}
