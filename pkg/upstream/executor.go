package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for the Timeout/Retry Executor.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// Jitter randomizes each wait by ±Jitter (0.2 = ±20%). Zero disables it.
	Jitter float64

	// Timeout is the deadline of a single attempt.
	Timeout time.Duration
}

// DefaultRetryConfig returns the default retry configuration:
// 3 attempts, 250ms backoff doubling each attempt.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           8 * time.Second,
	}
}

// Call is one upstream invocation. It must pass ctx to its network call.
type Call func(ctx context.Context) ([]json.RawMessage, error)

// Executor runs upstream calls under a per-attempt deadline with bounded
// retries for retryable error classes.
type Executor struct {
	config RetryConfig
	logger zerolog.Logger
}

// NewExecutor creates an executor. Zero fields of cfg fall back to defaults.
func NewExecutor(cfg RetryConfig, logger zerolog.Logger) *Executor {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Executor{config: cfg, logger: logger}
}

// Config returns the effective configuration.
func (e *Executor) Config() RetryConfig {
	return e.config
}

// Do executes call with retry logic. Timeouts, auth, client and malformed
// errors are returned after the first attempt; server and network errors are
// retried up to MaxAttempts with exponential backoff.
func (e *Executor) Do(ctx context.Context, source string, call Call) ([]json.RawMessage, error) {
	backoff := e.config.InitialBackoff
	var lastErr error
	var class ErrorClass

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		records, err := e.attempt(ctx, source, call)
		if err == nil {
			if attempt > 1 {
				e.logger.Info().
					Str("source", source).
					Int("attempt", attempt).
					Msg("Upstream call succeeded after retry")
			}
			return records, nil
		}

		if ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		class = Classify(err)

		if !class.Retryable() {
			e.logger.Warn().
				Err(err).
				Str("source", source).
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Upstream call failed, not retrying")
			return nil, err
		}

		if attempt >= e.config.MaxAttempts {
			break
		}

		upstreamRetriesTotal.WithLabelValues(source, string(class)).Inc()

		wait := e.jitter(backoff)
		upstreamRetryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		e.logger.Debug().
			Str("source", source).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying upstream call after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * e.config.BackoffMultiplier)
		if backoff > e.config.MaxBackoff {
			backoff = e.config.MaxBackoff
		}
	}

	upstreamRetryExhaustedTotal.WithLabelValues(source, string(class)).Inc()
	e.logger.Warn().
		Err(lastErr).
		Str("source", source).
		Str("error_class", string(class)).
		Int("max_attempts", e.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, e.config.MaxAttempts, lastErr)
}

type callResult struct {
	records []json.RawMessage
	err     error
}

// attempt races one call against the per-attempt deadline. The deadline
// context is handed to the call, so returning on timeout also cancels the
// in-flight network operation.
func (e *Executor) attempt(ctx context.Context, source string, call Call) ([]json.RawMessage, error) {
	start := time.Now()
	defer func() {
		upstreamAttemptDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		records, err := call(attemptCtx)
		done <- callResult{records: records, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			upstreamAttemptsTotal.WithLabelValues(source, "ok").Inc()
			return res.records, nil
		}
		err := res.err
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = NewError(source, ClassTimeout, 0, "deadline exceeded", res.err)
		}
		upstreamAttemptsTotal.WithLabelValues(source, string(Classify(err))).Inc()
		return nil, err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			upstreamAttemptsTotal.WithLabelValues(source, "cancelled").Inc()
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}
		upstreamAttemptsTotal.WithLabelValues(source, string(ClassTimeout)).Inc()
		return nil, NewError(source, ClassTimeout, 0,
			fmt.Sprintf("no response within %s", e.config.Timeout), attemptCtx.Err())
	}
}

func (e *Executor) jitter(d time.Duration) time.Duration {
	if e.config.Jitter <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 - e.config.Jitter + rand.Float64()*2*e.config.Jitter))
}
