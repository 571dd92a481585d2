// Package provider builds provider connections for connected accounts.
package provider

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"mailsync_server/adapter/out/provider/gmail"
	"mailsync_server/config"
	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

// =============================================================================
// Provider Factory
// =============================================================================

// Factory opens MailProvider connections from stored account credentials.
// Every connection is wrapped with the circuit breaker decorator.
type Factory struct {
	oauthConfig *oauth2.Config
	accounts    out.AccountRepository
}

// NewFactory creates the factory from the application OAuth configuration.
func NewFactory(cfg *config.Config, accounts out.AccountRepository) *Factory {
	return &Factory{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes: []string{
				gmailapi.GmailReadonlyScope,
				gmailapi.GmailLabelsScope,
			},
			Endpoint: google.Endpoint,
		},
		accounts: accounts,
	}
}

// ProviderFor opens a provider connection for one account. Token refreshes
// performed by the OAuth transport are persisted back to the account row.
func (f *Factory) ProviderFor(ctx context.Context, account *domain.MailAccount) (out.MailProvider, error) {
	switch account.Provider {
	case domain.ProviderGmail:
		ts := newPersistingTokenSource(ctx, f.oauthConfig, account, f.accounts)
		client, err := gmail.NewClient(ctx, ts)
		if err != nil {
			return nil, err
		}
		return NewBreaker(fmt.Sprintf("gmail-%d", account.ID), client), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", account.Provider)
	}
}
