// ABOUTME: Retry/backoff helper used by the pull phase's GET; push and queue
// ABOUTME: draining run their own backoff in engine.go.
package syncx

import (
	"context"
	"errors"
	"time"
)

// RetryConfig controls WithRetry's linear backoff (attempt*InitialWait,
// capped at MaxWait). Multiplier is not read by WithRetry.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig matches spec section 7's default of 3 attempts, with
// the push-phase backoff of retry*2s (spec section 4.4.1).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 2 * time.Second,
		MaxWait:     30 * time.Second,
		Multiplier:  1.0, // linear retry*2s growth, not multiplicative
	}
}

// Retryable reports whether err should trigger another attempt. Auth and
// validation failures are not retryable; network/storage/timeout/rate
// limit failures are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetworkFailure) || errors.Is(err, ErrStorageFailure) {
		return true
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindNetworkFailure, KindStorageFailure, KindTimeout, KindRateLimited:
			return true
		}
	}
	return false
}

// WithRetry runs fn up to cfg.MaxAttempts times, waiting retry*InitialWait
// between attempts (linear backoff per spec section 4.4.1), respecting
// context cancellation.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, op string, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(err) || attempt == cfg.MaxAttempts {
			return zero, &Error{Op: op, Kind: KindNetworkFailure, Err: err, Retries: attempt}
		}

		wait := time.Duration(attempt) * cfg.InitialWait
		if cfg.MaxWait > 0 && wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}

	return zero, &Error{Op: op, Kind: KindNetworkFailure, Err: lastErr, Retries: cfg.MaxAttempts}
}
