package sync

import (
	"context"
	"time"

	"mailsync_server/config"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// Fetcher - paginated id listing + batched full-message retrieval
// =============================================================================

// Fetcher pulls message ids and bodies from the upstream provider. Every
// upstream call goes through the backoff executor.
type Fetcher struct {
	provider   out.MailProvider
	backoff    BackoffConfig
	batchSize  int
	batchDelay time.Duration
}

// NewFetcher creates a fetcher bound to one provider connection.
func NewFetcher(provider out.MailProvider, cfg config.SyncConfig) *Fetcher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Fetcher{
		provider:   provider,
		backoff:    BackoffConfig{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay},
		batchSize:  batchSize,
		batchDelay: cfg.BatchDelay,
	}
}

// ListPage returns one page of upstream message ids. An empty page with no
// next token signals exhaustion.
func (f *Fetcher) ListPage(ctx context.Context, pageSize int, pageToken string) (*out.MessageIDPage, error) {
	return WithBackoff(ctx, f.backoff, func(ctx context.Context) (*out.MessageIDPage, error) {
		return f.provider.ListMessageIDs(ctx, pageSize, pageToken)
	})
}

// ListHistory returns "message added" records since the cursor.
func (f *Fetcher) ListHistory(ctx context.Context, startCursor uint64) (*out.HistoryResult, error) {
	return WithBackoff(ctx, f.backoff, func(ctx context.Context) (*out.HistoryResult, error) {
		return f.provider.ListHistory(ctx, startCursor)
	})
}

// LabelTotal returns the upstream total for a label, 0 when lookup fails.
func (f *Fetcher) LabelTotal(ctx context.Context, name string) int64 {
	label, err := WithBackoff(ctx, f.backoff, func(ctx context.Context) (*out.ProviderLabel, error) {
		return f.provider.GetLabel(ctx, name)
	})
	if err != nil || label == nil {
		return 0
	}
	return label.MessagesTotal
}

// FetchMessages retrieves full messages in fixed-size concurrent batches.
// Each fetch is independently retried; a message that still fails after the
// retry budget is dropped and counted, never aborting its batch. Returned
// order matches request order, with failed messages compacted out.
func (f *Fetcher) FetchMessages(ctx context.Context, ids []string) ([]*out.ProviderMessage, int) {
	if len(ids) == 0 {
		return nil, 0
	}

	messages := make([]*out.ProviderMessage, 0, len(ids))
	failed := 0

	for start := 0; start < len(ids); start += f.batchSize {
		end := start + f.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		type result struct {
			index int
			msg   *out.ProviderMessage
			err   error
		}
		results := make(chan result, len(batch))

		for idx, id := range batch {
			go func(idx int, messageID string) {
				msg, err := WithBackoff(ctx, f.backoff, func(ctx context.Context) (*out.ProviderMessage, error) {
					return f.provider.GetMessage(ctx, messageID)
				})
				results <- result{index: idx, msg: msg, err: err}
			}(idx, id)
		}

		// Collect by request index so concurrent completion order never
		// leaks into the order handed to the persister.
		ordered := make([]*out.ProviderMessage, len(batch))
		for range batch {
			r := <-results
			if r.err != nil {
				failed++
				logger.WithError(r.err).Warn("[Fetcher] message fetch failed after retries")
				continue
			}
			ordered[r.index] = r.msg
		}
		for _, msg := range ordered {
			if msg != nil {
				messages = append(messages, msg)
			}
		}

		// Throttle between batches to ease quota pressure.
		if end < len(ids) && f.batchDelay > 0 {
			if err := sleep(ctx, f.batchDelay); err != nil {
				return messages, failed + (len(ids) - end)
			}
		}
	}

	return messages, failed
}
