// Package in defines inbound ports (driving ports) for the application.
package in

import (
	"context"

	"github.com/google/uuid"

	"mailsync_server/core/domain"
)

// MailSyncService is the engine's inbound surface: the three sync strategies,
// the interactive paginated entry, whole-system fan-out, and read accessors.
type MailSyncService interface {
	// SyncFull runs a paginated bulk sync up to maxPages pages of pageSize ids.
	// Zero values fall back to the configured defaults.
	SyncFull(ctx context.Context, userID uuid.UUID, maxPages, pageSize int) (*domain.SyncResult, error)

	// SyncDelta fetches only the most recent maxMessages ids in one pass.
	SyncDelta(ctx context.Context, userID uuid.UUID, maxMessages int) (*domain.SyncResult, error)

	// SyncHistory replays "message added" records since startCursor.
	SyncHistory(ctx context.Context, userID uuid.UUID, startCursor uint64) (*domain.SyncResult, error)

	// SyncPaginated syncs exactly one page synchronously and, when requested
	// and more pages remain, continues in the background.
	SyncPaginated(ctx context.Context, userID uuid.UUID, pageSize int, continueInBackground bool) (*domain.SyncResult, error)

	// SyncAllUsers runs a full sync for every connected account sequentially.
	SyncAllUsers(ctx context.Context) (*domain.AllUsersResult, error)

	// HandlePush dispatches an upstream push notification to the history or
	// delta path depending on whether a cursor is on record.
	HandlePush(ctx context.Context, emailAddress string, historyID uint64) error

	// StartWatch registers the provider's push channel for the user's mailbox
	// and records the returned cursor as the history baseline.
	StartWatch(ctx context.Context, userID uuid.UUID) (*domain.WatchRegistration, error)

	// Read accessors
	ListThreads(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Thread, int, error)
	GetThread(ctx context.Context, userID uuid.UUID, threadID int64) (*domain.Thread, error)
	ListThreadMessages(ctx context.Context, userID uuid.UUID, threadID int64) ([]*domain.Message, error)
	GetMessage(ctx context.Context, userID uuid.UUID, messageID int64) (*domain.Message, error)
}
