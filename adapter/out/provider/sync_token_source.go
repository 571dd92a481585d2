package provider

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/logger"
)

// persistingTokenSource wraps the standard refreshing token source and writes
// refreshed tokens back to the account row, so the next connection starts
// from a live token instead of re-refreshing.
type persistingTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	last     *oauth2.Token
	account  *domain.MailAccount
	accounts out.AccountRepository
}

func newPersistingTokenSource(ctx context.Context, cfg *oauth2.Config, account *domain.MailAccount, accounts out.AccountRepository) oauth2.TokenSource {
	stored := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       account.TokenExpiry,
	}
	return &persistingTokenSource{
		src:      cfg.TokenSource(ctx, stored),
		last:     stored,
		account:  account,
		accounts: accounts,
	}
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	if token.AccessToken != s.last.AccessToken {
		refreshToken := token.RefreshToken
		if refreshToken == "" {
			refreshToken = s.last.RefreshToken
		}
		// Persistence failure is not fatal: the refreshed token still works
		// for this connection, the next one just re-refreshes.
		if err := s.accounts.UpdateTokens(context.Background(), s.account.ID, token.AccessToken, refreshToken, token.Expiry); err != nil {
			logger.WithError(err).WithField("account_id", s.account.ID).
				Warn("[TokenSource] refreshed token persist failed")
		}
		s.last = token
	}

	return token, nil
}
