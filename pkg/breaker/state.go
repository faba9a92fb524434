// Package breaker implements the gateway's process-wide circuit breaker.
// While the breaker is open the gateway serves cached or static data and
// makes no upstream calls.
package breaker

import (
	"time"
)

// DefaultCooldown is how long a tripped breaker stays open.
const DefaultCooldown = 60 * time.Second

// DefaultThreshold is the number of consecutive unrecoverable failures
// that trips the breaker.
const DefaultThreshold = 1

// Trip reasons.
const (
	ReasonUpstreamFailure = "upstream_failure"
	ReasonAdmin           = "admin"
)

// State is a point-in-time view of the breaker.
type State struct {
	// FailureCount counts unrecoverable failures since the last success or reset.
	FailureCount int `json:"failure_count"`

	// OpenUntil is when the breaker closes again. Zero when never tripped.
	OpenUntil time.Time `json:"open_until"`

	// LastReason is the reason of the most recent trip.
	LastReason string `json:"last_reason,omitempty"`
}

// IsOpen reports whether the breaker is open at time now.
// There is no half-open state: once now reaches OpenUntil the breaker is
// closed and the next request goes upstream.
func (s State) IsOpen(now time.Time) bool {
	return now.Before(s.OpenUntil)
}

// Remaining returns the time until the breaker closes.
// Returns 0 if the breaker is already closed.
func (s State) Remaining(now time.Time) time.Duration {
	d := s.OpenUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
