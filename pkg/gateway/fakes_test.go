package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/storefront-gateway/pkg/breaker"
	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
	"github.com/Sternrassler/storefront-gateway/pkg/revalidate"
	"github.com/Sternrassler/storefront-gateway/pkg/upstream"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeFetcher is an upstream.Fetcher with scripted answers.
type fakeFetcher struct {
	name string

	mu      sync.Mutex
	calls   int
	records []json.RawMessage
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func newFakeFetcher(name string, records []json.RawMessage) *fakeFetcher {
	return &fakeFetcher{name: name, records: records}
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Fetch(ctx context.Context, resource catalog.Resource, q upstream.Query) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	gate, entered := f.gate, f.entered
	records, err := f.records, f.err
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return records, err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFetcher) Set(records []json.RawMessage, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records, f.err = records, err
}

// Block makes subsequent calls wait until the returned release func runs.
// The entered channel receives one value per blocked call.
func (f *fakeFetcher) Block() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	ch := make(chan struct{}, 64)
	f.gate, f.entered = gate, ch
	var once sync.Once
	return ch, func() { once.Do(func() { close(gate) }) }
}

// rawProducts builds n WooCommerce-style product records in category 186.
func rawProducts(n int) []json.RawMessage {
	out := make([]json.RawMessage, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, json.RawMessage(fmt.Sprintf(
			`{"id": %d, "name": "Item %d", "price": "%d.00", "featured": %t, "images": [{"src": "https://img.example.com/%d.jpg"}], "categories": [{"id": 186, "name": "Gear", "slug": "gear"}]}`,
			100+i, i, 10*i, i%2 == 0, i)))
	}
	return out
}

func serverError(source string) error {
	return upstream.NewError(source, upstream.ClassServer, 500, "internal server error", nil)
}

type testGateway struct {
	*Gateway
	clock *fakeClock
}

func newTestGateway(t *testing.T, primary, secondary upstream.Fetcher) *testGateway {
	t.Helper()

	logger := zerolog.Nop()
	clock := newFakeClock()

	opts := Options{
		Executor: upstream.NewExecutor(upstream.RetryConfig{
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Timeout:        5 * time.Second,
		}, logger),
		Breaker:   breaker.New(breaker.Config{}, logger).WithClock(clock.Now),
		Scheduler: revalidate.New(revalidate.Config{Workers: 2}, logger),
		Primary:   primary,
		Secondary: secondary,
		Logger:    logger,
		Now:       clock.Now,
	}

	g, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { g.Close(context.Background()) })
	return &testGateway{Gateway: g, clock: clock}
}

// drain waits for background work to finish. The scheduler is closed
// afterwards, so later stale reads do not revalidate.
func (tg *testGateway) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tg.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
