package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

// =============================================================================
// ThreadAdapter - read access to the mirrored rows
// =============================================================================

// ThreadAdapter implements out.ThreadRepository.
type ThreadAdapter struct {
	db *sqlx.DB
}

func NewThreadAdapter(db *sqlx.DB) *ThreadAdapter {
	return &ThreadAdapter{db: db}
}

type messageRow struct {
	ID          int64          `db:"id"`
	UserID      uuid.UUID      `db:"user_id"`
	ThreadID    int64          `db:"thread_id"`
	ExternalID  string         `db:"external_id"`
	FromHeader  string         `db:"from_header"`
	ToHeader    string         `db:"to_header"`
	CcHeader    sql.NullString `db:"cc_header"`
	BccHeader   sql.NullString `db:"bcc_header"`
	Subject     string         `db:"subject"`
	Snippet     string         `db:"snippet"`
	Labels      pq.StringArray `db:"labels"`
	BodyText    string         `db:"body_text"`
	BodyHTMLKey sql.NullString `db:"body_html_key"`
	SentAt      time.Time      `db:"sent_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *messageRow) toDomain() *domain.Message {
	return &domain.Message{
		ID:          r.ID,
		UserID:      r.UserID,
		ThreadID:    r.ThreadID,
		ExternalID:  r.ExternalID,
		FromHeader:  r.FromHeader,
		ToHeader:    r.ToHeader,
		CcHeader:    r.CcHeader.String,
		BccHeader:   r.BccHeader.String,
		Subject:     r.Subject,
		Snippet:     r.Snippet,
		Labels:      r.Labels,
		BodyText:    r.BodyText,
		BodyHTMLKey: r.BodyHTMLKey.String,
		SentAt:      r.SentAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const threadSelectColumns = `
	id, user_id, external_thread_id, subject, snippet, last_message_at,
	is_read, is_starred, is_important, message_count, created_at, updated_at`

const messageSelectColumns = `
	id, user_id, thread_id, external_id,
	from_header, to_header, cc_header, bcc_header,
	subject, snippet, labels, body_text, body_html_key,
	sent_at, created_at, updated_at`

// ListThreads returns a page of the user's threads, newest first, plus the
// total thread count for pagination.
func (a *ThreadAdapter) ListThreads(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Thread, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := a.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM mail_threads WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := a.db.QueryxContext(ctx, `
		SELECT `+threadSelectColumns+`
		FROM mail_threads
		WHERE user_id = $1
		ORDER BY last_message_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var threads []*domain.Thread
	for rows.Next() {
		var row threadRow
		if err := rows.StructScan(&row); err != nil {
			return nil, 0, err
		}
		threads = append(threads, row.toDomain())
	}
	return threads, total, rows.Err()
}

func (a *ThreadAdapter) GetThread(ctx context.Context, userID uuid.UUID, threadID int64) (*domain.Thread, error) {
	var row threadRow
	err := a.db.QueryRowxContext(ctx, `
		SELECT `+threadSelectColumns+`
		FROM mail_threads
		WHERE user_id = $1 AND id = $2`,
		userID, threadID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *ThreadAdapter) ListThreadMessages(ctx context.Context, userID uuid.UUID, threadID int64) ([]*domain.Message, error) {
	rows, err := a.db.QueryxContext(ctx, `
		SELECT `+messageSelectColumns+`
		FROM mail_messages
		WHERE user_id = $1 AND thread_id = $2
		ORDER BY sent_at ASC, id ASC`,
		userID, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		var row messageRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		messages = append(messages, row.toDomain())
	}
	return messages, rows.Err()
}

func (a *ThreadAdapter) GetMessage(ctx context.Context, userID uuid.UUID, messageID int64) (*domain.Message, error) {
	var row messageRow
	err := a.db.QueryRowxContext(ctx, `
		SELECT `+messageSelectColumns+`
		FROM mail_messages
		WHERE user_id = $1 AND id = $2`,
		userID, messageID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	msg := row.toDomain()
	msg.Attachments, err = a.listAttachments(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (a *ThreadAdapter) GetMessageByExternalID(ctx context.Context, userID uuid.UUID, externalID string) (*domain.Message, error) {
	var row messageRow
	err := a.db.QueryRowxContext(ctx, `
		SELECT `+messageSelectColumns+`
		FROM mail_messages
		WHERE user_id = $1 AND external_id = $2`,
		userID, externalID).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *ThreadAdapter) listAttachments(ctx context.Context, messageID int64) ([]domain.Attachment, error) {
	rows, err := a.db.QueryxContext(ctx, `
		SELECT id, message_id, filename, mime_type, size, content_id, is_inline
		FROM mail_attachments
		WHERE message_id = $1
		ORDER BY id`,
		messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var att domain.Attachment
		var contentID sql.NullString
		if err := rows.Scan(&att.ID, &att.MessageID, &att.Filename, &att.MimeType,
			&att.Size, &contentID, &att.IsInline); err != nil {
			return nil, err
		}
		att.ContentID = contentID.String
		attachments = append(attachments, att)
	}
	return attachments, rows.Err()
}

var _ out.ThreadRepository = (*ThreadAdapter)(nil)
