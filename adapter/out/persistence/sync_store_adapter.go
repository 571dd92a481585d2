// Package persistence implements the relational adapters over PostgreSQL.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailsync_server/config"
	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
)

// =============================================================================
// StoreAdapter - chunked transactional writes
// =============================================================================

// StoreAdapter implements out.SyncStore on sqlx. Each chunk runs in one
// transaction with separate ceilings on acquisition and execution.
type StoreAdapter struct {
	db          *sqlx.DB
	waitTimeout time.Duration
	execTimeout time.Duration
}

// NewStoreAdapter creates the store with the configured transaction ceilings.
func NewStoreAdapter(db *sqlx.DB, cfg config.SyncConfig) *StoreAdapter {
	waitTimeout := cfg.TxWaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = 10 * time.Second
	}
	execTimeout := cfg.TxExecTimeout
	if execTimeout <= 0 {
		execTimeout = 30 * time.Second
	}
	return &StoreAdapter{
		db:          db,
		waitTimeout: waitTimeout,
		execTimeout: execTimeout,
	}
}

// RunChunkTx runs fn inside one transaction. Exceeding either the
// acquisition or the execution ceiling fails the chunk as a unit.
func (a *StoreAdapter) RunChunkTx(ctx context.Context, fn func(tx out.SyncTx) error) error {
	waitCtx, cancelWait := context.WithTimeout(ctx, a.waitTimeout)
	tx, err := a.db.BeginTxx(waitCtx, nil)
	cancelWait()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.TxCeiling(err)
		}
		return apperr.Database(err)
	}

	execCtx, cancelExec := context.WithTimeout(ctx, a.execTimeout)
	defer cancelExec()

	if err := fn(&txAdapter{tx: tx, ctx: execCtx}); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return apperr.TxCeiling(err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return apperr.TxCeiling(err)
		}
		return apperr.Database(err)
	}
	return nil
}

// =============================================================================
// txAdapter - the write surface inside one chunk
// =============================================================================

type txAdapter struct {
	tx *sqlx.Tx
	// ctx carries the execution deadline for every statement in the chunk.
	ctx context.Context
}

type threadRow struct {
	ID               int64     `db:"id"`
	UserID           uuid.UUID `db:"user_id"`
	ExternalThreadID string    `db:"external_thread_id"`
	Subject          string    `db:"subject"`
	Snippet          string    `db:"snippet"`
	LastMessageAt    time.Time `db:"last_message_at"`
	IsRead           bool      `db:"is_read"`
	IsStarred        bool      `db:"is_starred"`
	IsImportant      bool      `db:"is_important"`
	MessageCount     int       `db:"message_count"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r *threadRow) toDomain() *domain.Thread {
	return &domain.Thread{
		ID:               r.ID,
		UserID:           r.UserID,
		ExternalThreadID: r.ExternalThreadID,
		Subject:          r.Subject,
		Snippet:          r.Snippet,
		LastMessageAt:    r.LastMessageAt,
		IsRead:           r.IsRead,
		IsStarred:        r.IsStarred,
		IsImportant:      r.IsImportant,
		MessageCount:     r.MessageCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (t *txAdapter) GetThreadByExternalID(ctx context.Context, userID uuid.UUID, externalThreadID string) (*domain.Thread, error) {
	var row threadRow
	err := t.tx.QueryRowxContext(t.ctx, `
		SELECT id, user_id, external_thread_id, subject, snippet, last_message_at,
			is_read, is_starred, is_important, message_count, created_at, updated_at
		FROM mail_threads
		WHERE user_id = $1 AND external_thread_id = $2`,
		userID, externalThreadID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (t *txAdapter) CreateThread(ctx context.Context, thread *domain.Thread) error {
	return t.tx.QueryRowxContext(t.ctx, `
		INSERT INTO mail_threads (
			user_id, external_thread_id, subject, snippet, last_message_at,
			is_read, is_starred, is_important, message_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, NOW(), NOW())
		RETURNING id`,
		thread.UserID, thread.ExternalThreadID, thread.Subject, thread.Snippet,
		thread.LastMessageAt, thread.IsRead, thread.IsStarred, thread.IsImportant,
	).Scan(&thread.ID)
}

func (t *txAdapter) RefreshThread(ctx context.Context, threadID int64, flags domain.MessageFlags, snippet string, lastMessageAt time.Time) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE mail_threads SET
			snippet = $2,
			last_message_at = GREATEST(last_message_at, $3),
			is_read = $4,
			is_starred = $5,
			is_important = $6,
			updated_at = NOW()
		WHERE id = $1`,
		threadID, snippet, lastMessageAt, !flags.IsUnread, flags.IsStarred, flags.IsImportant)
	return err
}

func (t *txAdapter) UpsertMessage(ctx context.Context, msg *domain.Message) (bool, error) {
	// xmax = 0 distinguishes a fresh insert from a conflict update.
	var created bool
	err := t.tx.QueryRowxContext(t.ctx, `
		INSERT INTO mail_messages (
			user_id, thread_id, external_id,
			from_header, to_header, cc_header, bcc_header,
			subject, snippet, labels, body_text, body_html_key,
			sent_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		ON CONFLICT (user_id, external_id) DO UPDATE SET
			snippet = EXCLUDED.snippet,
			updated_at = NOW()
		RETURNING id, (xmax = 0)`,
		msg.UserID, msg.ThreadID, msg.ExternalID,
		msg.FromHeader, msg.ToHeader, msg.CcHeader, msg.BccHeader,
		msg.Subject, msg.Snippet, pq.StringArray(msg.Labels), msg.BodyText,
		nullString(msg.BodyHTMLKey), msg.SentAt,
	).Scan(&msg.ID, &created)
	if err != nil {
		return false, err
	}

	if created {
		if _, err := t.tx.ExecContext(t.ctx, `
			UPDATE mail_threads SET message_count = message_count + 1, updated_at = NOW()
			WHERE id = $1`, msg.ThreadID); err != nil {
			return false, fmt.Errorf("bump message count: %w", err)
		}
	}
	return created, nil
}

func (t *txAdapter) CreateAttachments(ctx context.Context, messageID int64, attachments []domain.Attachment) error {
	for _, att := range attachments {
		if _, err := t.tx.ExecContext(t.ctx, `
			INSERT INTO mail_attachments (
				message_id, filename, mime_type, size, content_id, is_inline, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			messageID, att.Filename, att.MimeType, att.Size,
			nullString(att.ContentID), att.IsInline); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ out.SyncStore = (*StoreAdapter)(nil)
var _ out.SyncTx = (*txAdapter)(nil)
