package automation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff_FailsTwiceThenSucceeds(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, 3, time.Millisecond)

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_ExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	last := errors.New("still broken")
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return last
	}, 3, time.Millisecond)

	if !errors.Is(err, last) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryWithBackoff_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithBackoff(ctx, func() error {
		calls++
		cancel()
		return errors.New("fail")
	}, 5, time.Hour)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no further attempts after cancel, got %d", calls)
	}
}

func TestBackoffDelay_DoublesPerAttempt(t *testing.T) {
	base := time.Second
	if got := backoffDelay(0, base, 0); got != 1000*time.Millisecond {
		t.Fatalf("attempt 0: got %v", got)
	}
	if got := backoffDelay(1, base, 0); got != 2000*time.Millisecond {
		t.Fatalf("attempt 1: got %v", got)
	}
	if got := backoffDelay(2, base, 0); got != 4000*time.Millisecond {
		t.Fatalf("attempt 2: got %v", got)
	}
}

func TestBackoffDelay_Cap(t *testing.T) {
	if got := backoffDelay(10, time.Second, 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected cap, got %v", got)
	}
	if got := backoffDelay(-1, time.Second, 0); got != time.Second {
		t.Fatalf("negative attempt should clamp to base, got %v", got)
	}
}
