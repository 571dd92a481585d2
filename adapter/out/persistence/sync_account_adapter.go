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
// AccountAdapter
// =============================================================================

// AccountAdapter implements out.AccountRepository.
type AccountAdapter struct {
	db *sqlx.DB
}

func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db}
}

type accountRow struct {
	ID           int64          `db:"id"`
	UserID       uuid.UUID      `db:"user_id"`
	Provider     string         `db:"provider"`
	EmailAddress string         `db:"email_address"`
	AccessToken  sql.NullString `db:"access_token"`
	RefreshToken sql.NullString `db:"refresh_token"`
	TokenExpiry  sql.NullTime   `db:"token_expiry"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *accountRow) toDomain() *domain.MailAccount {
	account := &domain.MailAccount{
		ID:           r.ID,
		UserID:       r.UserID,
		Provider:     domain.Provider(r.Provider),
		EmailAddress: r.EmailAddress,
		AccessToken:  r.AccessToken.String,
		RefreshToken: r.RefreshToken.String,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.TokenExpiry.Valid {
		account.TokenExpiry = r.TokenExpiry.Time
	}
	return account
}

const accountSelectColumns = `
	id, user_id, provider, email_address,
	access_token, refresh_token, token_expiry, created_at, updated_at`

func (a *AccountAdapter) GetByUserProvider(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.MailAccount, error) {
	var row accountRow
	err := a.db.QueryRowxContext(ctx, `
		SELECT `+accountSelectColumns+`
		FROM mail_accounts
		WHERE user_id = $1 AND provider = $2`,
		userID, string(provider)).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// An account row without credentials; the service rejects it
			// with a credentials error rather than a lookup failure.
			return &domain.MailAccount{UserID: userID, Provider: provider}, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *AccountAdapter) GetByEmailAddress(ctx context.Context, address string) (*domain.MailAccount, error) {
	var row accountRow
	err := a.db.QueryRowxContext(ctx, `
		SELECT `+accountSelectColumns+`
		FROM mail_accounts
		WHERE email_address = $1`,
		address).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (a *AccountAdapter) ListConnected(ctx context.Context) ([]*domain.MailAccount, error) {
	rows, err := a.db.QueryxContext(ctx, `
		SELECT `+accountSelectColumns+`
		FROM mail_accounts
		WHERE access_token IS NOT NULL OR refresh_token IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.MailAccount
	for rows.Next() {
		var row accountRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		accounts = append(accounts, row.toDomain())
	}
	return accounts, rows.Err()
}

func (a *AccountAdapter) UpdateTokens(ctx context.Context, accountID int64, accessToken, refreshToken string, expiry time.Time) error {
	result, err := a.db.ExecContext(ctx, `
		UPDATE mail_accounts SET
			access_token = $2,
			refresh_token = $3,
			token_expiry = $4,
			updated_at = NOW()
		WHERE id = $1`,
		accountID, accessToken, refreshToken, expiry)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ out.AccountRepository = (*AccountAdapter)(nil)
