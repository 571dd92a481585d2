package sync

import (
	"encoding/base64"
	"testing"

	"mailsync_server/core/port/out"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers []out.ProviderHeader
		want    ParsedHeaders
	}{
		{
			name: "normal set",
			headers: []out.ProviderHeader{
				{Name: "From", Value: "alice@example.com"},
				{Name: "To", Value: "bob@example.com"},
				{Name: "Subject", Value: "hello"},
				{Name: "Date", Value: "Mon, 1 Sep 2025 10:00:00 +0000"},
			},
			want: ParsedHeaders{
				From:    "alice@example.com",
				To:      "bob@example.com",
				Subject: "hello",
				Date:    "Mon, 1 Sep 2025 10:00:00 +0000",
			},
		},
		{
			name: "case insensitive names",
			headers: []out.ProviderHeader{
				{Name: "FROM", Value: "alice@example.com"},
				{Name: "subject", Value: "mixed"},
				{Name: "cC", Value: "carol@example.com"},
			},
			want: ParsedHeaders{
				From:    "alice@example.com",
				Subject: "mixed",
				Cc:      "carol@example.com",
			},
		},
		{
			name: "duplicate name last wins",
			headers: []out.ProviderHeader{
				{Name: "Subject", Value: "first"},
				{Name: "Subject", Value: "second"},
			},
			want: ParsedHeaders{Subject: "second"},
		},
		{
			name:    "absent headers stay empty",
			headers: []out.ProviderHeader{{Name: "X-Custom", Value: "x"}},
			want:    ParsedHeaders{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractHeaders(tt.headers); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name     string
		payload  *out.ProviderPart
		wantHTML string
		wantText string
	}{
		{
			name:    "nil payload",
			payload: nil,
		},
		{
			name:     "single html part",
			payload:  &out.ProviderPart{MimeType: "text/html", Data: b64("<p>hi</p>")},
			wantHTML: "<p>hi</p>",
		},
		{
			name:     "single plain part",
			payload:  &out.ProviderPart{MimeType: "text/plain", Data: b64("hi")},
			wantText: "hi",
		},
		{
			name: "multipart alternative yields both",
			payload: &out.ProviderPart{
				MimeType: "multipart/alternative",
				Parts: []*out.ProviderPart{
					{MimeType: "text/plain", Data: b64("plain")},
					{MimeType: "text/html", Data: b64("<b>rich</b>")},
				},
			},
			wantHTML: "<b>rich</b>",
			wantText: "plain",
		},
		{
			name: "outer body beats nested",
			payload: &out.ProviderPart{
				MimeType: "text/plain",
				Data:     b64("outer"),
				Parts: []*out.ProviderPart{
					{MimeType: "text/plain", Data: b64("nested")},
				},
			},
			wantText: "outer",
		},
		{
			name: "first found wins among siblings",
			payload: &out.ProviderPart{
				MimeType: "multipart/mixed",
				Parts: []*out.ProviderPart{
					{MimeType: "text/html", Data: b64("first")},
					{MimeType: "text/html", Data: b64("second")},
				},
			},
			wantHTML: "first",
		},
		{
			name: "nested multipart tree",
			payload: &out.ProviderPart{
				MimeType: "multipart/mixed",
				Parts: []*out.ProviderPart{
					{
						MimeType: "multipart/alternative",
						Parts: []*out.ProviderPart{
							{MimeType: "text/plain", Data: b64("deep plain")},
							{MimeType: "text/html", Data: b64("deep html")},
						},
					},
					{MimeType: "application/pdf", Filename: "doc.pdf"},
				},
			},
			wantHTML: "deep html",
			wantText: "deep plain",
		},
		{
			name: "partless unknown mime sniffed via content-type",
			payload: &out.ProviderPart{
				MimeType: "message/rfc822",
				Headers:  []out.ProviderHeader{{Name: "Content-Type", Value: "text/HTML; charset=utf-8"}},
				Data:     b64("<div>sniffed</div>"),
			},
			wantHTML: "<div>sniffed</div>",
		},
		{
			name: "partless unknown mime defaults to text",
			payload: &out.ProviderPart{
				MimeType: "application/octet-stream",
				Data:     b64("raw"),
			},
			wantText: "raw",
		},
		{
			name: "undecodable data yields empty",
			payload: &out.ProviderPart{
				MimeType: "text/plain",
				Data:     "!!not-base64!!",
			},
		},
		{
			name: "raw base64url without padding decodes",
			payload: &out.ProviderPart{
				MimeType: "text/plain",
				Data:     base64.RawURLEncoding.EncodeToString([]byte("unpadded")),
			},
			wantText: "unpadded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html, text := ExtractBody(tt.payload)
			if html != tt.wantHTML {
				t.Errorf("html = %q, want %q", html, tt.wantHTML)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestExtractAttachments(t *testing.T) {
	payload := &out.ProviderPart{
		MimeType: "multipart/mixed",
		Parts: []*out.ProviderPart{
			{MimeType: "text/plain", Data: b64("body")},
			{MimeType: "application/pdf", Filename: "report.pdf", Size: 2048},
			{
				MimeType: "image/png",
				Filename: "logo.png",
				Size:     512,
				Headers:  []out.ProviderHeader{{Name: "Content-ID", Value: "<logo@local>"}},
			},
		},
	}

	attachments := ExtractAttachments(payload)
	if len(attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(attachments))
	}

	if attachments[0].Filename != "report.pdf" || attachments[0].IsInline {
		t.Errorf("first attachment = %+v, want non-inline report.pdf", attachments[0])
	}
	if attachments[1].Filename != "logo.png" || !attachments[1].IsInline || attachments[1].ContentID != "<logo@local>" {
		t.Errorf("second attachment = %+v, want inline logo.png", attachments[1])
	}
}

func TestExtractAttachments_NoFilenames(t *testing.T) {
	payload := &out.ProviderPart{
		MimeType: "multipart/alternative",
		Parts: []*out.ProviderPart{
			{MimeType: "text/plain", Data: b64("a")},
			{MimeType: "text/html", Data: b64("b")},
		},
	}
	if got := ExtractAttachments(payload); len(got) != 0 {
		t.Errorf("attachments = %d, want 0", len(got))
	}
}
