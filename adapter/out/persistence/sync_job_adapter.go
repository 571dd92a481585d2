package persistence

import (
	"context"

	"github.com/jmoiron/sqlx"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

// =============================================================================
// SyncJobAdapter - background continuation records
// =============================================================================

// SyncJobAdapter implements out.SyncJobRepository.
type SyncJobAdapter struct {
	db *sqlx.DB
}

func NewSyncJobAdapter(db *sqlx.DB) *SyncJobAdapter {
	return &SyncJobAdapter{db: db}
}

func (a *SyncJobAdapter) Create(ctx context.Context, job *domain.SyncJob) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (
			id, user_id, status, page_cursor, pages_done, synced, errors, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.UserID, string(job.Status), job.PageCursor,
		job.PagesDone, job.Synced, job.Errors, job.StartedAt)
	return err
}

func (a *SyncJobAdapter) Update(ctx context.Context, job *domain.SyncJob) error {
	result, err := a.db.ExecContext(ctx, `
		UPDATE sync_jobs SET
			status = $2,
			pages_done = $3,
			synced = $4,
			errors = $5,
			last_error = NULLIF($6, ''),
			finished_at = $7
		WHERE id = $1`,
		job.ID, string(job.Status), job.PagesDone, job.Synced,
		job.Errors, job.LastError, job.FinishedAt)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ out.SyncJobRepository = (*SyncJobAdapter)(nil)
