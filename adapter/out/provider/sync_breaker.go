package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// Circuit breaker decorator
// =============================================================================

// Breaker wraps a MailProvider with a circuit breaker so a degraded upstream
// fails fast instead of burning the retry budget on every call. Client-class
// errors pass through without counting as breaker failures.
type Breaker struct {
	next out.MailProvider
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker decorates a provider connection.
func NewBreaker(name string, next out.MailProvider) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithField("breaker", name).
				Warn("[CircuitBreaker] state changed from %s to %s", from.String(), to.String())
		},
	}
	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// nonCircuitError shields client-class failures from the breaker counters.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string { return e.err.Error() }
func (e *nonCircuitError) Unwrap() error { return e.err }

func execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.cb.Execute(func() (interface{}, error) {
		value, err := fn()
		if err == nil {
			return value, nil
		}
		var pe *out.ProviderError
		if errors.As(err, &pe) && !pe.Retryable() {
			return nil, &nonCircuitError{err: err}
		}
		return nil, err
	})
	if err != nil {
		var nce *nonCircuitError
		if errors.As(err, &nce) {
			return zero, nce.err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, out.NewProviderError(out.ProviderErrServer, 0, "circuit breaker open", err)
		}
		return zero, err
	}
	return result.(T), nil
}

func (b *Breaker) ListMessageIDs(ctx context.Context, pageSize int, pageToken string) (*out.MessageIDPage, error) {
	return execute(b, func() (*out.MessageIDPage, error) {
		return b.next.ListMessageIDs(ctx, pageSize, pageToken)
	})
}

func (b *Breaker) GetMessage(ctx context.Context, messageID string) (*out.ProviderMessage, error) {
	return execute(b, func() (*out.ProviderMessage, error) {
		return b.next.GetMessage(ctx, messageID)
	})
}

func (b *Breaker) GetLabel(ctx context.Context, name string) (*out.ProviderLabel, error) {
	return execute(b, func() (*out.ProviderLabel, error) {
		return b.next.GetLabel(ctx, name)
	})
}

func (b *Breaker) ListHistory(ctx context.Context, startCursor uint64) (*out.HistoryResult, error) {
	return execute(b, func() (*out.HistoryResult, error) {
		return b.next.ListHistory(ctx, startCursor)
	})
}

func (b *Breaker) Profile(ctx context.Context) (*out.ProviderProfile, error) {
	return execute(b, func() (*out.ProviderProfile, error) {
		return b.next.Profile(ctx)
	})
}

func (b *Breaker) Watch(ctx context.Context, topic string) (*domain.WatchRegistration, error) {
	return execute(b, func() (*domain.WatchRegistration, error) {
		return b.next.Watch(ctx, topic)
	})
}

var _ out.MailProvider = (*Breaker)(nil)
