package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailsync_server/core/port/out"
)

func TestWithBackoff_SucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := WithBackoff(context.Background(), BackoffConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithBackoff_RetriesRateLimited(t *testing.T) {
	calls := 0
	got, err := WithBackoff(context.Background(), BackoffConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", out.NewProviderError(out.ProviderErrRateLimited, 429, "quota", nil)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("got %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithBackoff_AttemptBudget(t *testing.T) {
	cfg := BackoffConfig{MaxRetries: 3, BaseDelay: time.Millisecond}
	calls := 0
	_, err := WithBackoff(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, out.NewProviderError(out.ProviderErrServer, 503, "unavailable", nil)
	})
	if err == nil {
		t.Fatal("expected error after retry budget exhausted")
	}
	if want := cfg.MaxRetries + 1; calls != want {
		t.Errorf("calls = %d, want %d", calls, want)
	}
	var pe *out.ProviderError
	if !errors.As(err, &pe) || pe.Code != out.ProviderErrServer {
		t.Errorf("expected final provider error to propagate, got %v", err)
	}
}

func TestWithBackoff_NonRetryableImmediate(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"client error", out.NewProviderError(out.ProviderErrClient, 400, "bad request", nil)},
		{"not found", out.NewProviderError(out.ProviderErrNotFound, 404, "gone", nil)},
		{"auth error", out.NewProviderError(out.ProviderErrAuth, 401, "token expired", nil)},
		{"network error", out.NewProviderError(out.ProviderErrNetwork, 0, "dial failed", nil)},
		{"untagged error", errors.New("plain failure")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_, err := WithBackoff(context.Background(), BackoffConfig{MaxRetries: 5, BaseDelay: time.Millisecond}, func(ctx context.Context) (int, error) {
				calls++
				return 0, tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Errorf("got %v, want %v", err, tt.err)
			}
			if calls != 1 {
				t.Errorf("calls = %d, want 1 (no retry)", calls)
			}
		})
	}
}

func TestWithBackoff_ExponentialDelays(t *testing.T) {
	base := 10 * time.Millisecond
	var stamps []time.Time
	_, _ = WithBackoff(context.Background(), BackoffConfig{MaxRetries: 2, BaseDelay: base}, func(ctx context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		return 0, out.NewProviderError(out.ProviderErrServer, 500, "boom", nil)
	})

	if len(stamps) != 3 {
		t.Fatalf("attempts = %d, want 3", len(stamps))
	}
	// Attempt k waits base << (k-1) before retrying.
	for k := 1; k < len(stamps); k++ {
		want := base << (k - 1)
		got := stamps[k].Sub(stamps[k-1])
		if got < want {
			t.Errorf("gap before attempt %d = %v, want >= %v", k+1, got, want)
		}
	}
}

func TestWithBackoff_RetryAfterHintOverrides(t *testing.T) {
	hint := 5 * time.Millisecond
	var stamps []time.Time
	_, _ = WithBackoff(context.Background(), BackoffConfig{MaxRetries: 1, BaseDelay: time.Second}, func(ctx context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		pe := out.NewProviderError(out.ProviderErrRateLimited, 429, "quota", nil)
		pe.RetryAfter = hint
		return 0, pe
	})

	if len(stamps) != 2 {
		t.Fatalf("attempts = %d, want 2", len(stamps))
	}
	if gap := stamps[1].Sub(stamps[0]); gap >= time.Second {
		t.Errorf("hint ignored: waited %v, want ~%v", gap, hint)
	}
}

func TestWithBackoff_ContextCancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := WithBackoff(ctx, BackoffConfig{MaxRetries: 3, BaseDelay: time.Minute}, func(ctx context.Context) (int, error) {
			calls++
			return 0, out.NewProviderError(out.ProviderErrServer, 500, "boom", nil)
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backoff did not return after cancel")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
