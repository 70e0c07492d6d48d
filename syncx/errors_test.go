package syncx

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesSentinelByKind(t *testing.T) {
	err := newError("store.insert", KindStorageFailure, errors.New("disk full"))
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatal("expected errors.Is to match ErrStorageFailure via Kind")
	}
	if errors.Is(err, ErrNotInitialized) {
		t.Fatal("expected no match against unrelated sentinel")
	}
}

func TestErrorUnwrapReturnsUnderlying(t *testing.T) {
	underlying := errors.New("disk full")
	err := newError("store.insert", KindStorageFailure, underlying)
	if !errors.Is(err, underlying) {
		t.Fatal("expected errors.Is to reach the wrapped underlying error")
	}
}

func TestErrorMessageIncludesRetries(t *testing.T) {
	err := &Error{Op: "push", Kind: KindNetworkFailure, Err: errors.New("timeout"), Retries: 3}
	msg := err.Error()
	if msg != "push failed after 3 attempts: timeout" {
		t.Fatalf("unexpected message: %q", msg)
	}
}
