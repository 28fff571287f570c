package automation

import (
	"context"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// RetryWithBackoff calls op up to maxRetries times, sleeping
// baseDelay * 2^attempt between failures, and returns the last error once
// attempts are exhausted. The sleep is context-aware so callers can bound
// the whole sequence with a deadline ("give up fast" connection tests vs
// "allow slow webhook receivers" deliveries).
func RetryWithBackoff(ctx context.Context, op func() error, maxRetries int, baseDelay time.Duration) error {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffDelay(attempt-1, baseDelay, 0)):
			}
		}

		if lastErr = op(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// backoffDelay returns base * 2^attempt, capped at max when max > 0.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
