package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies an upstream mail provider.
type Provider string

const (
	ProviderGmail Provider = "gmail"
)

// MailAccount is a user's connected upstream mailbox.
type MailAccount struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Provider     Provider  `json:"provider"`
	EmailAddress string    `json:"email_address"`

	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCredentials reports whether the account carries a usable token pair.
func (a *MailAccount) HasCredentials() bool {
	return a != nil && (a.AccessToken != "" || a.RefreshToken != "")
}
