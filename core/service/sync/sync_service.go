package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mailsync_server/config"
	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"
)

// addressPlaceholder is stored when the mailbox address cannot be resolved
// from the connected account.
const addressPlaceholder = "unknown"

// ProviderFactory opens a provider connection for one connected account.
type ProviderFactory interface {
	ProviderFor(ctx context.Context, account *domain.MailAccount) (out.MailProvider, error)
}

// Service orchestrates the three sync strategies plus background
// continuation and per-user fan-out.
type Service struct {
	cfg       config.SyncConfig
	accounts  out.AccountRepository
	threads   out.ThreadRepository
	states    out.SyncStateRepository
	jobs      out.SyncJobRepository
	store     out.SyncStore
	bodies    out.BodyStore
	providers ProviderFactory
}

// NewService wires the orchestrator.
func NewService(
	cfg config.SyncConfig,
	accounts out.AccountRepository,
	threads out.ThreadRepository,
	states out.SyncStateRepository,
	jobs out.SyncJobRepository,
	store out.SyncStore,
	bodies out.BodyStore,
	providers ProviderFactory,
) *Service {
	return &Service{
		cfg:       cfg,
		accounts:  accounts,
		threads:   threads,
		states:    states,
		jobs:      jobs,
		store:     store,
		bodies:    bodies,
		providers: providers,
	}
}

// =============================================================================
// Connection
// =============================================================================

// connect resolves the user's account and opens a provider for it. Missing
// credentials are a configuration error: fatal, never retried.
func (s *Service) connect(ctx context.Context, userID uuid.UUID) (*domain.MailAccount, out.MailProvider, error) {
	account, err := s.accounts.GetByUserProvider(ctx, userID, domain.ProviderGmail)
	if err != nil {
		return nil, nil, apperr.Database(err)
	}
	if !account.HasCredentials() {
		return nil, nil, apperr.CredentialsMissing(fmt.Errorf("no connected account for user %s", userID))
	}

	provider, err := s.providers.ProviderFor(ctx, account)
	if err != nil {
		return nil, nil, apperr.CredentialsMissing(err)
	}
	return account, provider, nil
}

func (s *Service) mailboxAddress(account *domain.MailAccount) string {
	if account != nil && account.EmailAddress != "" {
		return account.EmailAddress
	}
	return addressPlaceholder
}

// =============================================================================
// Full / paginated sync
// =============================================================================

// SyncFull runs the paginated bulk sync: fetch a page of ids, fetch the full
// messages, persist in chunks, repeat until the mailbox is exhausted or the
// page ceiling is reached. The sync state's full-sync timestamp is always
// stamped on success.
func (s *Service) SyncFull(ctx context.Context, userID uuid.UUID, maxPages, pageSize int) (*domain.SyncResult, error) {
	if maxPages <= 0 {
		maxPages = s.cfg.MaxPages
	}
	if pageSize <= 0 {
		pageSize = s.cfg.PageSize
	}

	account, provider, err := s.connect(ctx, userID)
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(provider, s.cfg)
	persister := NewPersister(s.store, s.bodies, s.cfg)

	started := time.Now()
	if total := fetcher.LabelTotal(ctx, "INBOX"); total > 0 {
		logger.WithField("user_id", userID.String()).Info("[Sync.Full] Starting, ~%d messages upstream", total)
	}

	result, _, err := s.syncPages(ctx, fetcher, persister, userID, pageSize, "", maxPages)
	if err != nil {
		return result, err
	}

	address := s.mailboxAddress(account)
	if err := s.states.TouchFullSync(ctx, userID, account.Provider, address, result.Synced); err != nil {
		return result, apperr.Database(err)
	}

	logger.WithDuration(time.Since(started)).WithField("user_id", userID.String()).
		Info("[Sync.Full] Completed: %d synced, %d errors, %d pages", result.Synced, result.Errors, result.Pages)
	return result, nil
}

// syncPages runs the shared page loop and returns the accumulated result and
// the last continuation token ("" when the mailbox is exhausted).
func (s *Service) syncPages(ctx context.Context, fetcher *Fetcher, persister *Persister, userID uuid.UUID, pageSize int, pageToken string, maxPages int) (*domain.SyncResult, string, error) {
	result := &domain.SyncResult{}

	for result.Pages < maxPages {
		page, err := fetcher.ListPage(ctx, pageSize, pageToken)
		if err != nil {
			return result, pageToken, err
		}
		if len(page.IDs) == 0 {
			return result, "", nil
		}
		result.Pages++

		messages, failed := fetcher.FetchMessages(ctx, page.IDs)
		result.Errors += failed

		chunkResult, err := persister.PersistMessages(ctx, userID, messages)
		result.Add(chunkResult)
		if err != nil {
			return result, pageToken, err
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			return result, "", nil
		}
	}

	result.HasMore = pageToken != ""
	return result, pageToken, nil
}

// =============================================================================
// Delta sync
// =============================================================================

// SyncDelta fetches only the most recent maxMessages ids in a single pass
// with no pagination. An empty mailbox short-circuits with zero counts.
func (s *Service) SyncDelta(ctx context.Context, userID uuid.UUID, maxMessages int) (*domain.SyncResult, error) {
	if maxMessages <= 0 {
		maxMessages = s.cfg.DeltaMaxMessages
	}

	account, provider, err := s.connect(ctx, userID)
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(provider, s.cfg)
	persister := NewPersister(s.store, s.bodies, s.cfg)

	page, err := fetcher.ListPage(ctx, maxMessages, "")
	if err != nil {
		return nil, err
	}
	if len(page.IDs) == 0 {
		return &domain.SyncResult{}, nil
	}

	messages, failed := fetcher.FetchMessages(ctx, page.IDs)
	result, err := persister.PersistMessages(ctx, userID, messages)
	result.Errors += failed
	if err != nil {
		return &result, err
	}

	if err := s.states.TouchDeltaSync(ctx, userID, account.Provider, s.mailboxAddress(account), result.Synced); err != nil {
		return &result, apperr.Database(err)
	}

	logger.WithField("user_id", userID.String()).
		Info("[Sync.Delta] Completed: %d synced, %d errors", result.Synced, result.Errors)
	return &result, nil
}

// =============================================================================
// History-based sync
// =============================================================================

// SyncHistory replays "message added" records since startCursor. Message ids
// are collected from both the dedicated added-list and the general list,
// de-duplicated. When nothing changed, the call short-circuits without
// touching the sync state; otherwise the stored cursor advances to
// startCursor and the delta timestamp is stamped.
func (s *Service) SyncHistory(ctx context.Context, userID uuid.UUID, startCursor uint64) (*domain.SyncResult, error) {
	account, provider, err := s.connect(ctx, userID)
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(provider, s.cfg)
	persister := NewPersister(s.store, s.bodies, s.cfg)

	history, err := fetcher.ListHistory(ctx, startCursor)
	if err != nil {
		return nil, err
	}

	ids := dedupe(history.AddedIDs, history.MessageIDs)
	if len(ids) == 0 {
		return &domain.SyncResult{}, nil
	}

	messages, failed := fetcher.FetchMessages(ctx, ids)
	result, err := persister.PersistMessages(ctx, userID, messages)
	result.Errors += failed
	if err != nil {
		return &result, err
	}

	address := s.mailboxAddress(account)
	if err := s.states.AdvanceHistoryID(ctx, userID, account.Provider, address, startCursor); err != nil {
		return &result, apperr.Database(err)
	}
	if err := s.states.TouchDeltaSync(ctx, userID, account.Provider, address, result.Synced); err != nil {
		return &result, apperr.Database(err)
	}

	logger.WithField("user_id", userID.String()).
		Info("[Sync.History] Completed from cursor %d: %d synced, %d errors", startCursor, result.Synced, result.Errors)
	return &result, nil
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, list := range lists {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// =============================================================================
// Paginated sync with background continuation
// =============================================================================

// SyncPaginated synchronously syncs exactly one page so the caller gets fast
// first results. When a continuation token remains and the caller asked for
// it, the remaining pages continue detached from this call; continuation
// errors are logged, never surfaced.
func (s *Service) SyncPaginated(ctx context.Context, userID uuid.UUID, pageSize int, continueInBackground bool) (*domain.SyncResult, error) {
	if pageSize <= 0 {
		pageSize = s.cfg.PageSize
	}

	account, provider, err := s.connect(ctx, userID)
	if err != nil {
		return nil, err
	}

	fetcher := NewFetcher(provider, s.cfg)
	persister := NewPersister(s.store, s.bodies, s.cfg)

	result, nextToken, err := s.syncPages(ctx, fetcher, persister, userID, pageSize, "", 1)
	if err != nil {
		return result, err
	}
	result.HasMore = nextToken != ""

	if nextToken != "" && continueInBackground {
		job := &domain.SyncJob{
			ID:         uuid.New(),
			UserID:     userID,
			Status:     domain.SyncJobRunning,
			PageCursor: nextToken,
			StartedAt:  time.Now(),
		}
		if s.jobs != nil {
			if err := s.jobs.Create(ctx, job); err != nil {
				logger.WithError(err).Warn("[Sync.Paginated] job record create failed")
			}
		}
		go s.continueSync(account, fetcher, persister, job, pageSize, result.Pages)
		result.ContinuedInBackground = true
	} else if nextToken == "" {
		// The one page drained the mailbox; finalize like a full sync.
		if err := s.states.TouchFullSync(ctx, userID, account.Provider, s.mailboxAddress(account), result.Synced); err != nil {
			return result, apperr.Database(err)
		}
	}

	return result, nil
}

// continueSync is the detached continuation. It runs on a background context:
// the triggering caller has already been answered, so every failure here is
// logged and swallowed.
func (s *Service) continueSync(account *domain.MailAccount, fetcher *Fetcher, persister *Persister, job *domain.SyncJob, pageSize, pagesDone int) {
	ctx := context.Background()
	log := logger.WithFields(map[string]any{
		"user_id": account.UserID.String(),
		"job_id":  job.ID.String(),
	})

	remaining := s.cfg.MaxBackgroundPages - pagesDone
	if remaining <= 0 {
		remaining = 1
	}

	result, _, err := s.syncPages(ctx, fetcher, persister, account.UserID, pageSize, job.PageCursor, remaining)
	job.PagesDone = pagesDone + result.Pages
	job.Synced = result.Synced
	job.Errors = result.Errors
	job.FinishedAt = time.Now()

	if err != nil {
		job.Status = domain.SyncJobFailed
		job.LastError = err.Error()
		log.WithError(err).Error("[Sync.Continuation] failed after %d pages", result.Pages)
	} else {
		job.Status = domain.SyncJobCompleted
		if err := s.states.TouchFullSync(ctx, account.UserID, account.Provider, s.mailboxAddress(account), result.Synced); err != nil {
			log.WithError(err).Error("[Sync.Continuation] state finalize failed")
		}
		log.Info("[Sync.Continuation] completed: %d synced, %d errors, %d pages", result.Synced, result.Errors, result.Pages)
	}

	if s.jobs != nil {
		if err := s.jobs.Update(ctx, job); err != nil {
			log.WithError(err).Warn("[Sync.Continuation] job record update failed")
		}
	}
}

// =============================================================================
// Fan-out
// =============================================================================

// SyncAllUsers runs a full sync for every connected account sequentially.
// One user's failure is counted and does not stop the rest.
func (s *Service) SyncAllUsers(ctx context.Context) (*domain.AllUsersResult, error) {
	accounts, err := s.accounts.ListConnected(ctx)
	if err != nil {
		return nil, apperr.Database(err)
	}

	totals := &domain.AllUsersResult{TotalUsers: len(accounts)}
	for _, account := range accounts {
		result, err := s.SyncFull(ctx, account.UserID, 0, 0)
		if err != nil {
			totals.TotalErrors++
			logger.WithError(err).WithField("user_id", account.UserID.String()).
				Error("[Sync.AllUsers] user sync failed")
			continue
		}
		totals.TotalSynced += result.Synced
		totals.TotalErrors += result.Errors
	}

	return totals, nil
}

// =============================================================================
// Push dispatch
// =============================================================================

// HandlePush routes an upstream push notification. With a prior history
// cursor on record the incremental path runs from the pushed cursor;
// otherwise the engine falls back to a delta sync.
func (s *Service) HandlePush(ctx context.Context, emailAddress string, historyID uint64) error {
	account, err := s.accounts.GetByEmailAddress(ctx, emailAddress)
	if err != nil {
		return apperr.Database(err)
	}
	if account == nil {
		return apperr.NotFound(fmt.Sprintf("no account for mailbox %s", emailAddress))
	}

	state, err := s.states.Get(ctx, account.UserID, account.Provider, emailAddress)
	if err != nil {
		return apperr.Database(err)
	}

	if state.HasHistoryCursor() {
		_, err = s.SyncHistory(ctx, account.UserID, historyID)
	} else {
		_, err = s.SyncDelta(ctx, account.UserID, 0)
	}
	return err
}

// StartWatch registers the push notification channel for the user's mailbox
// and records the returned cursor as the history baseline, so the first push
// already has something to sync from.
func (s *Service) StartWatch(ctx context.Context, userID uuid.UUID) (*domain.WatchRegistration, error) {
	if s.cfg.PushTopic == "" {
		return nil, apperr.New(apperr.CodeConfigError, "push topic not configured", http.StatusConflict)
	}

	account, provider, err := s.connect(ctx, userID)
	if err != nil {
		return nil, err
	}

	backoff := BackoffConfig{MaxRetries: s.cfg.MaxRetries, BaseDelay: s.cfg.RetryBaseDelay}
	reg, err := WithBackoff(ctx, backoff, func(ctx context.Context) (*domain.WatchRegistration, error) {
		return provider.Watch(ctx, s.cfg.PushTopic)
	})
	if err != nil {
		return nil, err
	}

	address := s.mailboxAddress(account)
	if reg.HistoryID > 0 {
		if err := s.states.AdvanceHistoryID(ctx, userID, account.Provider, address, reg.HistoryID); err != nil {
			return nil, apperr.Database(err)
		}
	}

	logger.WithFields(map[string]any{
		"user_id":    userID.String(),
		"history_id": reg.HistoryID,
	}).Info("[Sync] Watch registered, expires %s", reg.ExpiresAt.Format(time.RFC3339))

	return reg, nil
}

// =============================================================================
// Read accessors
// =============================================================================

func (s *Service) ListThreads(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Thread, int, error) {
	return s.threads.ListThreads(ctx, userID, limit, offset)
}

func (s *Service) GetThread(ctx context.Context, userID uuid.UUID, threadID int64) (*domain.Thread, error) {
	thread, err := s.threads.GetThread(ctx, userID, threadID)
	if errors.Is(err, out.ErrNotFound) {
		return nil, apperr.NotFound("thread not found")
	}
	return thread, err
}

func (s *Service) ListThreadMessages(ctx context.Context, userID uuid.UUID, threadID int64) ([]*domain.Message, error) {
	return s.threads.ListThreadMessages(ctx, userID, threadID)
}

func (s *Service) GetMessage(ctx context.Context, userID uuid.UUID, messageID int64) (*domain.Message, error) {
	msg, err := s.threads.GetMessage(ctx, userID, messageID)
	if errors.Is(err, out.ErrNotFound) {
		return nil, apperr.NotFound("message not found")
	}
	return msg, err
}
