// Package retry implements the fixed/exponential backoff retry
// combinator used by the dialog engine and synthesizer clients.
package retry

import (
	"context"
	"time"

	platformerrors "voxd-server/internal/platform/errors"
	"voxd-server/internal/platform/logging"
)

// Backoff computes the delay before the Nth retry (1-indexed: the delay
// before attempt 2 is Backoff(1)).
type Backoff func(attempt int) time.Duration

// Fixed returns a backoff that always waits the same delay.
func Fixed(delay time.Duration) Backoff {
	return func(int) time.Duration { return delay }
}

// Exponential returns a backoff that doubles the base delay each retry,
// capped at max.
func Exponential(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// Policy configures a retry run.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	// Retryable decides whether an error should be retried. Defaults to
	// platform/errors.Retryable when nil.
	Retryable func(error) bool
	// OnRetry, if set, is called after a failed attempt and before the
	// sleep preceding the next one.
	OnRetry func(err error, attempt int)
	Logger  *logging.Logger
	Op      string
}

// Do runs fn, retrying per the policy until it succeeds, the context is
// canceled, or the attempt budget is exhausted. The error from the last
// attempt is returned on exhaustion.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryable := policy.Retryable
	if retryable == nil {
		retryable = platformerrors.Retryable
	}
	backoff := policy.Backoff
	if backoff == nil {
		backoff = Fixed(time.Second)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts {
			if policy.Logger != nil {
				policy.Logger.Error("retry exhausted", "op", policy.Op, "attempts", maxAttempts, "error", lastErr)
			}
			return lastErr
		}

		if policy.OnRetry != nil {
			policy.OnRetry(lastErr, attempt)
		}
		delay := backoff(attempt)
		if policy.Logger != nil {
			policy.Logger.Warn("retrying after failure", "op", policy.Op, "attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "error", lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
