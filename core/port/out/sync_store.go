package out

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mailsync_server/core/domain"
)

// =============================================================================
// Transactional write store
// =============================================================================

// SyncStore runs chunk-sized units of persistence work in one transaction.
// The implementation bounds both transaction acquisition and execution; a
// chunk that exceeds either ceiling fails as a unit.
type SyncStore interface {
	RunChunkTx(ctx context.Context, fn func(tx SyncTx) error) error
}

// SyncTx is the write surface available inside one chunk transaction.
type SyncTx interface {
	// GetThreadByExternalID returns nil, nil when the thread does not exist.
	GetThreadByExternalID(ctx context.Context, userID uuid.UUID, externalThreadID string) (*domain.Thread, error)
	CreateThread(ctx context.Context, thread *domain.Thread) error
	// RefreshThread overwrites flags, snippet, and last-message timestamp.
	// Subject is deliberately never rewritten.
	RefreshThread(ctx context.Context, threadID int64, flags domain.MessageFlags, snippet string, lastMessageAt time.Time) error
	// UpsertMessage inserts the message or, when the (user, external id) row
	// already exists, refreshes only its snippet. Returns whether a row was
	// created.
	UpsertMessage(ctx context.Context, msg *domain.Message) (created bool, err error)
	CreateAttachments(ctx context.Context, messageID int64, attachments []domain.Attachment) error
}

// =============================================================================
// Blob store (HTML bodies)
// =============================================================================

// BodyStore holds extracted HTML bodies outside the relational store.
// Optional: plain-text-only operation works without one.
type BodyStore interface {
	Put(ctx context.Context, key string, content string) (string, error)
	// Get returns "" with no error when the key is absent.
	Get(ctx context.Context, key string) (string, error)
}
