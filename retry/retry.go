// Package retry provides a capped exponential backoff helper shared by
// components that need to retry an operation a bounded number of times.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config configures capped exponential backoff.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the initial
	// attempt). A value of 0 or 1 means no retries.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff is the maximum delay between retries; the backoff doubles
	// each retry and is capped at this value.
	MaxBackoff time.Duration
	// Jitter adds up to this fraction of randomness to each backoff to
	// avoid synchronized retries across concurrent callers. 0 disables it.
	Jitter float64
}

// ExhaustedError is returned when all retry attempts have been exhausted.
type ExhaustedError struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts over %v: %v", e.Attempts, e.TotalDuration, e.LastError)
}

func (e *ExhaustedError) Unwrap() error { return e.LastError }

// Backoff computes the delay before the given retry attempt (1-indexed:
// attempt 1 is the delay before the first retry after the initial try).
// Delay starts at InitialBackoff and doubles each retry, capped at MaxBackoff.
func Backoff(cfg Config, attempt int) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt-1))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		d += d * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter, not security sensitive
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs fn up to cfg.MaxAttempts times, retrying only while retryable
// returns true for the error fn produced. Backoff between attempts follows
// Backoff(cfg, attempt). Do returns nil on the first success, the
// non-retryable error immediately, or an *ExhaustedError once attempts run
// out.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) || attempt >= maxAttempts {
			if attempt >= maxAttempts && retryable(err) {
				return &ExhaustedError{Attempts: attempt, TotalDuration: time.Since(start), LastError: lastErr}
			}
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Backoff(cfg, attempt)):
		}
	}
	return &ExhaustedError{Attempts: maxAttempts, TotalDuration: time.Since(start), LastError: lastErr}
}
