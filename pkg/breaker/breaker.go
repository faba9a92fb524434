package breaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	breakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_breaker_open",
		Help: "1 while the gateway circuit breaker is open, 0 otherwise",
	})

	breakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_breaker_trips_total",
		Help: "Total number of circuit breaker trips by reason",
	}, []string{"reason"})

	breakerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_breaker_failures_total",
		Help: "Total number of unrecoverable upstream failures recorded by the breaker",
	})
)

// Config holds breaker settings.
type Config struct {
	Cooldown  time.Duration
	Threshold int
}

// Breaker gates upstream calls. It is safe for concurrent use and never
// blocks on I/O.
type Breaker struct {
	mu     sync.Mutex
	state  State
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a closed breaker. Zero config fields take the defaults.
func New(cfg Config, logger zerolog.Logger) *Breaker {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Breaker{
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the breaker's time source. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}

// IsOpen reports whether upstream calls must be skipped.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	open := b.state.IsOpen(b.now())
	if !open {
		breakerOpen.Set(0)
	}
	return open
}

// RecordFailure counts one unrecoverable failure and trips the breaker
// once the threshold is reached. It reports whether this call tripped it.
func (b *Breaker) RecordFailure(reason string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	breakerFailuresTotal.Inc()
	b.state.FailureCount++
	if b.state.FailureCount < b.cfg.Threshold {
		b.logger.Warn().
			Int("failure_count", b.state.FailureCount).
			Int("threshold", b.cfg.Threshold).
			Str("reason", reason).
			Msg("Upstream failure recorded")
		return false
	}

	b.tripLocked(reason)
	return true
}

// RecordSuccess zeroes the failure count. An open breaker stays open until
// its cooldown elapses.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.FailureCount = 0
}

// Trip opens the breaker for the cooldown regardless of the failure count.
func (b *Breaker) Trip(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripLocked(reason)
}

func (b *Breaker) tripLocked(reason string) {
	b.state.OpenUntil = b.now().Add(b.cfg.Cooldown)
	b.state.LastReason = reason
	breakerOpen.Set(1)
	breakerTripsTotal.WithLabelValues(reason).Inc()

	b.logger.Error().
		Str("reason", reason).
		Int("failure_count", b.state.FailureCount).
		Time("open_until", b.state.OpenUntil).
		Msg("Circuit breaker OPEN - upstream calls suspended")
}

// Reset closes the breaker and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = State{}
	breakerOpen.Set(0)
	b.logger.Info().Msg("Circuit breaker reset")
}

// Snapshot returns a copy of the current state.
func (b *Breaker) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Now returns the breaker's current time.
func (b *Breaker) Now() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now()
}
