// Package gmail adapts the Gmail API to the engine's provider port.
package gmail

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

// Client implements out.MailProvider for Gmail.
type Client struct {
	service *gmail.Service
}

// NewClient creates a Gmail client bound to one token source. Refreshed
// tokens flow through the source, so callers can observe and persist them.
func NewClient(ctx context.Context, ts oauth2.TokenSource) (*Client, error) {
	service, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Client{service: service}, nil
}

// ListMessageIDs returns one page of message ids from the mailbox.
func (c *Client) ListMessageIDs(ctx context.Context, pageSize int, pageToken string) (*out.MessageIDPage, error) {
	req := c.service.Users.Messages.List("me")
	if pageSize > 0 {
		req = req.MaxResults(int64(pageSize))
	}
	if pageToken != "" {
		req = req.PageToken(pageToken)
	}

	resp, err := req.Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, "list messages")
	}

	page := &out.MessageIDPage{
		IDs:           make([]string, 0, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// GetMessage retrieves one full message.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*out.ProviderMessage, error) {
	msg, err := c.service.Users.Messages.Get("me", messageID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError(err, "get message")
	}

	return &out.ProviderMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Labels:       msg.LabelIds,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
		Payload:      convertPart(msg.Payload),
	}, nil
}

// GetLabel returns label metadata including its message total.
func (c *Client) GetLabel(ctx context.Context, name string) (*out.ProviderLabel, error) {
	label, err := c.service.Users.Labels.Get("me", name).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, "get label")
	}
	return &out.ProviderLabel{
		ID:            label.Id,
		Name:          label.Name,
		MessagesTotal: label.MessagesTotal,
	}, nil
}

// ListHistory returns "message added" records since startCursor. A 404 from
// the history endpoint means the cursor expired upstream and a full sync is
// required; that maps to a non-retryable not-found.
func (c *Client) ListHistory(ctx context.Context, startCursor uint64) (*out.HistoryResult, error) {
	resp, err := c.service.Users.History.List("me").
		StartHistoryId(startCursor).
		HistoryTypes("messageAdded").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError(err, "list history")
	}

	result := &out.HistoryResult{NextCursor: resp.HistoryId}
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message != nil {
				result.AddedIDs = append(result.AddedIDs, added.Message.Id)
			}
		}
		for _, m := range h.Messages {
			result.MessageIDs = append(result.MessageIDs, m.Id)
		}
	}
	return result, nil
}

// Profile returns the mailbox address and its current history cursor.
func (c *Client) Profile(ctx context.Context) (*out.ProviderProfile, error) {
	profile, err := c.service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, "get profile")
	}
	return &out.ProviderProfile{
		EmailAddress: profile.EmailAddress,
		HistoryID:    profile.HistoryId,
	}, nil
}

// Watch registers the Pub/Sub push channel for INBOX changes. Gmail expires
// watches after 7 days, so this has to be re-invoked periodically.
func (c *Client) Watch(ctx context.Context, topic string) (*domain.WatchRegistration, error) {
	req := &gmail.WatchRequest{
		TopicName: topic,
		LabelIds:  []string{"INBOX"},
	}

	resp, err := c.service.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, "watch")
	}
	return &domain.WatchRegistration{
		HistoryID: resp.HistoryId,
		ExpiresAt: time.Unix(resp.Expiration/1000, 0),
	}, nil
}

// =============================================================================
// Conversion helpers
// =============================================================================

func convertPart(part *gmail.MessagePart) *out.ProviderPart {
	if part == nil {
		return nil
	}

	converted := &out.ProviderPart{
		MimeType: part.MimeType,
		Filename: part.Filename,
		Headers:  make([]out.ProviderHeader, 0, len(part.Headers)),
	}
	for _, h := range part.Headers {
		converted.Headers = append(converted.Headers, out.ProviderHeader{Name: h.Name, Value: h.Value})
	}
	if part.Body != nil {
		converted.Data = part.Body.Data
		converted.Size = part.Body.Size
	}
	for _, child := range part.Parts {
		converted.Parts = append(converted.Parts, convertPart(child))
	}
	return converted
}

func wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	apiErr, ok := err.(*googleapi.Error)
	if !ok {
		return out.NewProviderError(out.ProviderErrNetwork, 0, operation+" failed", err)
	}

	switch apiErr.Code {
	case http.StatusUnauthorized:
		return out.NewProviderError(out.ProviderErrAuth, apiErr.Code, "token expired or revoked", err)
	case http.StatusForbidden:
		if strings.Contains(apiErr.Message, "Rate Limit") || strings.Contains(apiErr.Message, "rateLimitExceeded") {
			return rateLimited(apiErr, err)
		}
		return out.NewProviderError(out.ProviderErrAuth, apiErr.Code, "access denied", err)
	case http.StatusNotFound:
		return out.NewProviderError(out.ProviderErrNotFound, apiErr.Code, operation+": not found", err)
	case http.StatusTooManyRequests:
		return rateLimited(apiErr, err)
	}
	if apiErr.Code >= 500 {
		return out.NewProviderError(out.ProviderErrServer, apiErr.Code, "upstream server error", err)
	}
	return out.NewProviderError(out.ProviderErrClient, apiErr.Code, operation+" failed", err)
}

func rateLimited(apiErr *googleapi.Error, err error) *out.ProviderError {
	pe := out.NewProviderError(out.ProviderErrRateLimited, apiErr.Code, "rate limit exceeded", err)
	pe.RetryAfter = retryAfterHint(apiErr.Header)
	return pe
}

// retryAfterHint parses the Retry-After header, which carries either a delay
// in seconds or an HTTP date.
func retryAfterHint(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

var _ out.MailProvider = (*Client)(nil)
