// Package domain holds the core mail mirror entities.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Thread / Message - the local mirror of an upstream mailbox
// =============================================================================

// Thread is one conversation, unique per (user, external thread id).
type Thread struct {
	ID               int64     `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	ExternalThreadID string    `json:"external_thread_id"`
	Subject          string    `json:"subject"`
	Snippet          string    `json:"snippet"`
	LastMessageAt    time.Time `json:"last_message_at"`

	IsRead      bool `json:"is_read"`
	IsStarred   bool `json:"is_starred"`
	IsImportant bool `json:"is_important"`

	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one mail item, unique per (user, external message id).
// Header fields keep the raw upstream header values.
type Message struct {
	ID         int64     `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	ThreadID   int64     `json:"thread_id"`
	ExternalID string    `json:"external_id"`

	FromHeader string `json:"from"`
	ToHeader   string `json:"to"`
	CcHeader   string `json:"cc,omitempty"`
	BccHeader  string `json:"bcc,omitempty"`
	Subject    string `json:"subject"`
	Snippet    string `json:"snippet"`

	// Labels keeps the raw upstream label set.
	Labels []string `json:"labels,omitempty"`

	BodyText string `json:"body_text,omitempty"`
	// BodyHTMLKey references the externally stored HTML body, if any.
	BodyHTMLKey string `json:"body_html_key,omitempty"`

	SentAt    time.Time `json:"sent_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is metadata for a message attachment; the content itself
// stays upstream or in the blob store.
type Attachment struct {
	ID        int64  `json:"id"`
	MessageID int64  `json:"message_id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	BlobKey   string `json:"blob_key,omitempty"`
	ContentID string `json:"content_id,omitempty"`
	IsInline  bool   `json:"is_inline"`
}

// =============================================================================
// Label-derived flags
// =============================================================================

// Upstream label markers recognized by the flag derivation.
const (
	LabelUnread    = "UNREAD"
	LabelStarred   = "STARRED"
	LabelImportant = "IMPORTANT"
)

// MessageFlags are the three flags derived from a message's label set.
type MessageFlags struct {
	IsUnread    bool
	IsStarred   bool
	IsImportant bool
}

// FlagsFromLabels derives flags from the upstream label set. A nil or empty
// label set means read, not starred, not important.
func FlagsFromLabels(labels []string) MessageFlags {
	var f MessageFlags
	for _, l := range labels {
		switch l {
		case LabelUnread:
			f.IsUnread = true
		case LabelStarred:
			f.IsStarred = true
		case LabelImportant:
			f.IsImportant = true
		}
	}
	return f
}
