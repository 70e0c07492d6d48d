package syncx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryableClassification(t *testing.T) {
	if Retryable(nil) {
		t.Fatal("nil error should not be retryable")
	}
	if !Retryable(&Error{Kind: KindNetworkFailure, Err: errors.New("x")}) {
		t.Fatal("network failure should be retryable")
	}
	if Retryable(&Error{Kind: KindValidation, Err: errors.New("x")}) {
		t.Fatal("validation failure should not be retryable")
	}
	if Retryable(&Error{Kind: KindAuth, Err: errors.New("x")}) {
		t.Fatal("auth failure should not be retryable")
	}
}

func TestWithRetrySucceedsOnFirstAttempt(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond}
	calls := 0
	result, err := WithRetry(context.Background(), cfg, "op", func(attempt int) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 || calls != 1 {
		t.Fatalf("expected single successful call, got result=%d calls=%d", result, calls)
	}
}

func TestWithRetryStopsEarlyOnNonRetryableError(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialWait: time.Millisecond}
	calls := 0
	_, err := WithRetry(context.Background(), cfg, "op", func(attempt int) (int, error) {
		calls++
		return 0, &Error{Kind: KindValidation, Err: errors.New("bad input")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt for non-retryable error, got %d", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond}
	calls := 0
	_, err := WithRetry(context.Background(), cfg, "op", func(attempt int) (int, error) {
		calls++
		return 0, &Error{Kind: KindNetworkFailure, Err: errors.New("unreachable")}
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestWithRetryRespectsContextCancellation(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, InitialWait: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan struct{})
	go func() {
		_, err := WithRetry(ctx, cfg, "op", func(attempt int) (int, error) {
			calls++
			if calls == 1 {
				cancel()
			}
			return 0, &Error{Kind: KindNetworkFailure, Err: errors.New("x")}
		})
		if err == nil {
			t.Error("expected error after cancellation")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WithRetry did not respect context cancellation")
	}
}
