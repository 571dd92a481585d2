package sync

import (
	"encoding/base64"
	"strings"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

// =============================================================================
// Header extraction
// =============================================================================

// ParsedHeaders is the normalized header record for one message.
type ParsedHeaders struct {
	From    string
	To      string
	Cc      string
	Bcc     string
	Subject string
	Date    string
}

// ExtractHeaders collapses raw name/value pairs into a normalized record.
// Names are case-insensitive; if a name repeats, the last occurrence wins.
// Absent headers stay empty.
func ExtractHeaders(headers []out.ProviderHeader) ParsedHeaders {
	collapsed := make(map[string]string, len(headers))
	for _, h := range headers {
		collapsed[strings.ToLower(h.Name)] = h.Value
	}

	return ParsedHeaders{
		From:    collapsed["from"],
		To:      collapsed["to"],
		Cc:      collapsed["cc"],
		Bcc:     collapsed["bcc"],
		Subject: collapsed["subject"],
		Date:    collapsed["date"],
	}
}

// =============================================================================
// Body extraction
// =============================================================================

// ExtractBody walks the part tree depth-first and returns the first HTML and
// plain-text bodies found. A value found at an outer node is never overwritten
// by a nested part. A tree with no decodable body yields two empty strings.
func ExtractBody(payload *out.ProviderPart) (html, text string) {
	if payload == nil {
		return "", ""
	}

	switch {
	case payload.MimeType == "text/html" && payload.Data != "":
		html = decodeBody(payload.Data)
	case payload.MimeType == "text/plain" && payload.Data != "":
		text = decodeBody(payload.Data)
	case len(payload.Parts) == 0 && payload.Data != "":
		// Partless payload with an unrecognized MIME type: classify by the
		// content-type header.
		if strings.Contains(strings.ToLower(headerValue(payload.Headers, "content-type")), "html") {
			html = decodeBody(payload.Data)
		} else {
			text = decodeBody(payload.Data)
		}
	}

	for _, part := range payload.Parts {
		h, t := ExtractBody(part)
		if html == "" && h != "" {
			html = h
		}
		if text == "" && t != "" {
			text = t
		}
	}

	return html, text
}

// ExtractAttachments collects attachment metadata from the part tree.
// A part with a filename is an attachment; an inline part is marked by its
// Content-ID header.
func ExtractAttachments(payload *out.ProviderPart) []domain.Attachment {
	if payload == nil {
		return nil
	}

	var attachments []domain.Attachment
	if payload.Filename != "" {
		att := domain.Attachment{
			Filename: payload.Filename,
			MimeType: payload.MimeType,
			Size:     payload.Size,
		}
		if cid := headerValue(payload.Headers, "content-id"); cid != "" {
			att.ContentID = cid
			att.IsInline = true
		}
		attachments = append(attachments, att)
	}

	for _, part := range payload.Parts {
		attachments = append(attachments, ExtractAttachments(part)...)
	}

	return attachments
}

func headerValue(headers []out.ProviderHeader, name string) string {
	value := ""
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			value = h.Value
		}
	}
	return value
}

// decodeBody decodes base64url body data, tolerating missing padding.
// Undecodable data yields an empty string rather than an error.
func decodeBody(data string) string {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}
