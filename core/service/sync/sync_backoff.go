// Package sync implements the mail provider synchronization engine.
package sync

import (
	"context"
	"errors"
	"time"

	"mailsync_server/core/port/out"
)

// BackoffConfig controls the retry-with-backoff wrapper.
type BackoffConfig struct {
	MaxRetries int           // retry budget; total attempts = MaxRetries + 1
	BaseDelay  time.Duration // base for exponential backoff
}

// DefaultBackoffConfig returns the engine defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
	}
}

// WithBackoff executes op, retrying rate-limit and server errors with
// exponential backoff. An upstream retry-after hint overrides the computed
// delay. Every other error class propagates immediately. This wrapper is the
// only place transient-failure policy lives; all upstream calls go through it.
func WithBackoff[T any](ctx context.Context, cfg BackoffConfig, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var pe *out.ProviderError
		if !errors.As(err, &pe) || !pe.Retryable() {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.BaseDelay << attempt
		if pe.RetryAfter > 0 {
			delay = pe.RetryAfter
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
