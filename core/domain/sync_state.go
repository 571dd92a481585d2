package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SyncState - per (user, provider, mailbox address) sync bookkeeping
// =============================================================================

type SyncState struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Provider     Provider  `json:"provider"`
	EmailAddress string    `json:"email_address"`

	// HistoryID is the upstream change-log watermark. Only moves forward.
	HistoryID uint64 `json:"history_id"`

	LastFullSyncAt  time.Time `json:"last_full_sync_at,omitempty"`
	LastDeltaSyncAt time.Time `json:"last_delta_sync_at,omitempty"`

	// Statistics
	TotalSynced   int64     `json:"total_synced"`
	LastSyncCount int       `json:"last_sync_count"`
	LastSyncAt    time.Time `json:"last_sync_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasHistoryCursor reports whether an incremental history sync can start
// from a stored cursor. Without one, callers fall back to delta sync.
func (s *SyncState) HasHistoryCursor() bool {
	return s != nil && s.HistoryID > 0
}

// =============================================================================
// WatchRegistration - upstream push channel registration
// =============================================================================

// WatchRegistration is what the provider returns when a push notification
// channel is registered. HistoryID is the baseline cursor pushes will be
// reported against.
type WatchRegistration struct {
	HistoryID uint64    `json:"history_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// =============================================================================
// SyncJob - explicit record of a detached background continuation
// =============================================================================

type SyncJobStatus string

const (
	SyncJobRunning   SyncJobStatus = "running"
	SyncJobCompleted SyncJobStatus = "completed"
	SyncJobFailed    SyncJobStatus = "failed"
)

// SyncJob records one background continuation so overlapping launches are at
// least observable. Nothing cancels or de-duplicates them yet.
type SyncJob struct {
	ID         uuid.UUID     `json:"id"`
	UserID     uuid.UUID     `json:"user_id"`
	Status     SyncJobStatus `json:"status"`
	PageCursor string        `json:"page_cursor,omitempty"`
	PagesDone  int           `json:"pages_done"`
	Synced     int           `json:"synced"`
	Errors     int           `json:"errors"`
	LastError  string        `json:"last_error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
}
