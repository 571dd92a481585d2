package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mailsync_server/config"
	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"
)

// =============================================================================
// Persister - transactional thread/message reconciliation
// =============================================================================

// Persister writes fetched messages into the local mirror in chunk-sized
// transactions. A single bad message is counted and skipped; a failed chunk
// transaction is fatal for the sync call.
type Persister struct {
	store     out.SyncStore
	bodies    out.BodyStore
	chunkSize int
}

// NewPersister creates a persister. bodies may be nil for plain-text-only
// operation.
func NewPersister(store out.SyncStore, bodies out.BodyStore, cfg config.SyncConfig) *Persister {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 10
	}
	return &Persister{
		store:     store,
		bodies:    bodies,
		chunkSize: chunkSize,
	}
}

// PersistMessages reconciles messages for one user in chunks. The returned
// result counts persisted and per-message failed items; the error is non-nil
// only when a chunk transaction failed as a unit.
func (p *Persister) PersistMessages(ctx context.Context, userID uuid.UUID, messages []*out.ProviderMessage) (domain.SyncResult, error) {
	var total domain.SyncResult

	for start := 0; start < len(messages); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(messages) {
			end = len(messages)
		}
		chunk := messages[start:end]

		var chunkResult domain.SyncResult
		err := p.store.RunChunkTx(ctx, func(tx out.SyncTx) error {
			for _, msg := range chunk {
				if err := p.persistOne(ctx, tx, userID, msg); err != nil {
					chunkResult.Errors++
					logger.WithError(err).WithField("message_id", msg.ID).
						Warn("[Persister] message upsert failed, continuing chunk")
					continue
				}
				chunkResult.Synced++
			}
			return nil
		})
		if err != nil {
			// The chunk failed as a unit; previously committed chunks stand.
			return total, err
		}
		total.Add(chunkResult)
	}

	return total, nil
}

// persistOne reconciles the thread row and upserts the message row for one
// parsed message.
func (p *Persister) persistOne(ctx context.Context, tx out.SyncTx, userID uuid.UUID, pm *out.ProviderMessage) error {
	var headers ParsedHeaders
	var html, text string
	var attachments []domain.Attachment
	if pm.Payload != nil {
		headers = ExtractHeaders(pm.Payload.Headers)
		html, text = ExtractBody(pm.Payload)
		attachments = ExtractAttachments(pm.Payload)
	}

	flags := domain.FlagsFromLabels(pm.Labels)
	sentAt := time.UnixMilli(pm.InternalDate)

	externalThreadID := pm.ThreadID
	if externalThreadID == "" {
		externalThreadID = pm.ID
	}

	thread, err := tx.GetThreadByExternalID(ctx, userID, externalThreadID)
	if err != nil {
		return fmt.Errorf("thread lookup: %w", err)
	}
	if thread == nil {
		thread = &domain.Thread{
			UserID:           userID,
			ExternalThreadID: externalThreadID,
			Subject:          headers.Subject,
			Snippet:          pm.Snippet,
			LastMessageAt:    sentAt,
			IsRead:           !flags.IsUnread,
			IsStarred:        flags.IsStarred,
			IsImportant:      flags.IsImportant,
		}
		if err := tx.CreateThread(ctx, thread); err != nil {
			return fmt.Errorf("thread create: %w", err)
		}
	} else {
		// Subject stays as first seen; flags follow the message being
		// processed, so the last message in the chunk wins.
		if err := tx.RefreshThread(ctx, thread.ID, flags, pm.Snippet, sentAt); err != nil {
			return fmt.Errorf("thread refresh: %w", err)
		}
	}

	msg := &domain.Message{
		UserID:     userID,
		ThreadID:   thread.ID,
		ExternalID: pm.ID,
		FromHeader: headers.From,
		ToHeader:   headers.To,
		CcHeader:   headers.Cc,
		BccHeader:  headers.Bcc,
		Subject:    headers.Subject,
		Snippet:    pm.Snippet,
		Labels:     pm.Labels,
		BodyText:   text,
		SentAt:     sentAt,
	}

	if html != "" && p.bodies != nil {
		key, err := p.bodies.Put(ctx, bodyKey(userID, pm.ID), html)
		if err != nil {
			// The blob store is optional; a failed put degrades to text-only.
			logger.WithError(err).WithField("message_id", pm.ID).
				Warn("[Persister] html body store failed")
		} else {
			msg.BodyHTMLKey = key
		}
	}

	created, err := tx.UpsertMessage(ctx, msg)
	if err != nil {
		return fmt.Errorf("message upsert: %w", err)
	}
	if created && len(attachments) > 0 {
		if err := tx.CreateAttachments(ctx, msg.ID, attachments); err != nil {
			return fmt.Errorf("attachments create: %w", err)
		}
	}

	return nil
}

func bodyKey(userID uuid.UUID, externalID string) string {
	return fmt.Sprintf("body/%s/%s", userID, externalID)
}
