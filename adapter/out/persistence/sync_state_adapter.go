package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

// =============================================================================
// SyncStateAdapter - per (user, provider, address) bookkeeping
// =============================================================================

// SyncStateAdapter implements out.SyncStateRepository.
type SyncStateAdapter struct {
	db *sqlx.DB
}

func NewSyncStateAdapter(db *sqlx.DB) *SyncStateAdapter {
	return &SyncStateAdapter{db: db}
}

type syncStateRow struct {
	ID              int64     `db:"id"`
	UserID          uuid.UUID `db:"user_id"`
	Provider        string    `db:"provider"`
	EmailAddress    string    `db:"email_address"`
	HistoryID       int64     `db:"history_id"`
	LastFullSyncAt  sql.NullTime `db:"last_full_sync_at"`
	LastDeltaSyncAt sql.NullTime `db:"last_delta_sync_at"`
	TotalSynced     int64     `db:"total_synced"`
	LastSyncCount   int       `db:"last_sync_count"`
	LastSyncAt      sql.NullTime `db:"last_sync_at"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r *syncStateRow) toDomain() *domain.SyncState {
	state := &domain.SyncState{
		ID:            r.ID,
		UserID:        r.UserID,
		Provider:      domain.Provider(r.Provider),
		EmailAddress:  r.EmailAddress,
		HistoryID:     uint64(r.HistoryID),
		TotalSynced:   r.TotalSynced,
		LastSyncCount: r.LastSyncCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.LastFullSyncAt.Valid {
		state.LastFullSyncAt = r.LastFullSyncAt.Time
	}
	if r.LastDeltaSyncAt.Valid {
		state.LastDeltaSyncAt = r.LastDeltaSyncAt.Time
	}
	if r.LastSyncAt.Valid {
		state.LastSyncAt = r.LastSyncAt.Time
	}
	return state
}

// Get returns the stored state, or a zero-valued state when none exists yet.
func (a *SyncStateAdapter) Get(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string) (*domain.SyncState, error) {
	var row syncStateRow
	err := a.db.QueryRowxContext(ctx, `
		SELECT id, user_id, provider, email_address, history_id,
			last_full_sync_at, last_delta_sync_at,
			total_synced, last_sync_count, last_sync_at, created_at, updated_at
		FROM sync_states
		WHERE user_id = $1 AND provider = $2 AND email_address = $3`,
		userID, string(provider), address).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.SyncState{UserID: userID, Provider: provider, EmailAddress: address}, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// TouchFullSync upserts the row and stamps last_full_sync_at.
func (a *SyncStateAdapter) TouchFullSync(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string, synced int) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO sync_states (
			user_id, provider, email_address, history_id,
			last_full_sync_at, total_synced, last_sync_count, last_sync_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, 0, NOW(), $4, $4, NOW(), NOW(), NOW())
		ON CONFLICT (user_id, provider, email_address) DO UPDATE SET
			last_full_sync_at = NOW(),
			total_synced = sync_states.total_synced + EXCLUDED.last_sync_count,
			last_sync_count = EXCLUDED.last_sync_count,
			last_sync_at = NOW(),
			updated_at = NOW()`,
		userID, string(provider), address, synced)
	return err
}

// TouchDeltaSync upserts the row and stamps last_delta_sync_at.
func (a *SyncStateAdapter) TouchDeltaSync(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string, synced int) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO sync_states (
			user_id, provider, email_address, history_id,
			last_delta_sync_at, total_synced, last_sync_count, last_sync_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, 0, NOW(), $4, $4, NOW(), NOW(), NOW())
		ON CONFLICT (user_id, provider, email_address) DO UPDATE SET
			last_delta_sync_at = NOW(),
			total_synced = sync_states.total_synced + EXCLUDED.last_sync_count,
			last_sync_count = EXCLUDED.last_sync_count,
			last_sync_at = NOW(),
			updated_at = NOW()`,
		userID, string(provider), address, synced)
	return err
}

// AdvanceHistoryID moves the stored cursor forward. GREATEST guards against
// regression when pushes arrive out of order.
func (a *SyncStateAdapter) AdvanceHistoryID(ctx context.Context, userID uuid.UUID, provider domain.Provider, address string, historyID uint64) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO sync_states (
			user_id, provider, email_address, history_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id, provider, email_address) DO UPDATE SET
			history_id = GREATEST(sync_states.history_id, EXCLUDED.history_id),
			updated_at = NOW()`,
		userID, string(provider), address, int64(historyID))
	return err
}

var _ out.SyncStateRepository = (*SyncStateAdapter)(nil)
