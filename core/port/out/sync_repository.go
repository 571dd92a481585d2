package out

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"mailsync_server/core/domain"
)

// ErrNotFound is returned by repositories when the requested row does not
// exist. Callers map it to their own not-found representation.
var ErrNotFound = errors.New("not found")

// =============================================================================
// Account / credential store
// =============================================================================

// AccountRepository looks up connected upstream accounts and persists
// refreshed tokens back.
type AccountRepository interface {
	GetByUserProvider(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.MailAccount, error)
	GetByEmailAddress(ctx context.Context, address string) (*domain.MailAccount, error)
	// ListConnected returns every account with stored credentials, for fan-out.
	ListConnected(ctx context.Context) ([]*domain.MailAccount, error)
	UpdateTokens(ctx context.Context, accountID int64, accessToken, refreshToken string, expiry time.Time) error
}

// =============================================================================
// Read accessors over the mirrored rows
// =============================================================================

// ThreadRepository serves read access to mirrored threads and messages.
// All queries are scoped to the owning user.
type ThreadRepository interface {
	ListThreads(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Thread, int, error)
	GetThread(ctx context.Context, userID uuid.UUID, threadID int64) (*domain.Thread, error)
	ListThreadMessages(ctx context.Context, userID uuid.UUID, threadID int64) ([]*domain.Message, error)
	GetMessage(ctx context.Context, userID uuid.UUID, messageID int64) (*domain.Message, error)
	GetMessageByExternalID(ctx context.Context, userID uuid.UUID, externalID string) (*domain.Message, error)
}

// =============================================================================
// Sync state tracker
// =============================================================================

// SyncStateRepository upserts sync bookkeeping by (user, provider, address).
type SyncStateRepository interface {
	Get(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string) (*domain.SyncState, error)
	// TouchFullSync upserts the row and stamps last_full_sync_at.
	TouchFullSync(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string, synced int) error
	// TouchDeltaSync upserts the row and stamps last_delta_sync_at.
	TouchDeltaSync(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string, synced int) error
	// AdvanceHistoryID moves the stored cursor forward; a smaller value is a no-op.
	AdvanceHistoryID(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string, historyID uint64) error
}

// =============================================================================
// Background job records
// =============================================================================

// SyncJobRepository records detached background continuations.
type SyncJobRepository interface {
	Create(ctx context.Context, job *domain.SyncJob) error
	Update(ctx context.Context, job *domain.SyncJob) error
}
