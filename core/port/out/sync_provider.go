// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"fmt"
	"time"

	"mailsync_server/core/domain"
)

// =============================================================================
// Mail Provider Port
// =============================================================================

// MailProvider is the upstream mailbox API the engine consumes. One adapter
// per real SDK; tests use a deterministic fake.
type MailProvider interface {
	// ListMessageIDs returns one page of message ids. An empty page with an
	// empty next token signals exhaustion.
	ListMessageIDs(ctx context.Context, pageSize int, pageToken string) (*MessageIDPage, error)

	// GetMessage retrieves one full message by upstream id.
	GetMessage(ctx context.Context, messageID string) (*ProviderMessage, error)

	// GetLabel returns metadata for a label, including its total count.
	GetLabel(ctx context.Context, name string) (*ProviderLabel, error)

	// ListHistory returns change-log records added since the start cursor.
	ListHistory(ctx context.Context, startCursor uint64) (*HistoryResult, error)

	// Profile returns the mailbox address the provider is bound to.
	Profile(ctx context.Context) (*ProviderProfile, error)

	// Watch registers the push notification channel on the given topic and
	// returns the baseline cursor pushes will be reported against.
	Watch(ctx context.Context, topic string) (*domain.WatchRegistration, error)
}

// MessageIDPage is one page of upstream message ids.
type MessageIDPage struct {
	IDs           []string
	NextPageToken string
}

// ProviderHeader is one raw name/value header pair.
type ProviderHeader struct {
	Name  string
	Value string
}

// ProviderPart is one node of the MIME-like part tree. Data is the upstream
// body payload, base64url-encoded as delivered.
type ProviderPart struct {
	MimeType  string
	Filename  string
	Headers   []ProviderHeader
	Data      string
	Size      int64
	ContentID string
	Parts     []*ProviderPart
}

// ProviderMessage is one full upstream message.
type ProviderMessage struct {
	ID           string
	ThreadID     string
	Labels       []string
	Snippet      string
	InternalDate int64 // epoch millis
	Payload      *ProviderPart
}

// ProviderLabel is upstream label metadata.
type ProviderLabel struct {
	ID            string
	Name          string
	MessagesTotal int64
}

// HistoryResult holds "message added" records since a cursor. AddedIDs is the
// dedicated added-list; MessageIDs is the general list some providers also
// populate; callers de-duplicate across both.
type HistoryResult struct {
	AddedIDs   []string
	MessageIDs []string
	NextCursor uint64
}

// ProviderProfile identifies the upstream mailbox.
type ProviderProfile struct {
	EmailAddress string
	HistoryID    uint64
}

// =============================================================================
// Provider errors - closed variant set the backoff policy dispatches on
// =============================================================================

// ProviderErrorCode classifies an upstream call failure.
type ProviderErrorCode string

const (
	ProviderErrRateLimited ProviderErrorCode = "rate_limited" // 429
	ProviderErrServer      ProviderErrorCode = "server_error" // >= 500
	ProviderErrClient      ProviderErrorCode = "client_error" // other 4xx
	ProviderErrNotFound    ProviderErrorCode = "not_found"
	ProviderErrAuth        ProviderErrorCode = "auth_error"
	ProviderErrNetwork     ProviderErrorCode = "network_error"
)

// ProviderError is a tagged upstream failure.
type ProviderError struct {
	Code       ProviderErrorCode
	StatusCode int
	// RetryAfter is the upstream-supplied wait hint, zero when absent.
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s (status %d): %s: %v", e.Code, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the backoff executor may retry this failure.
func (e *ProviderError) Retryable() bool {
	return e.Code == ProviderErrRateLimited || e.Code == ProviderErrServer
}

// NewProviderError creates a tagged provider error.
func NewProviderError(code ProviderErrorCode, status int, message string, err error) *ProviderError {
	return &ProviderError{
		Code:       code,
		StatusCode: status,
		Message:    message,
		Err:        err,
	}
}
