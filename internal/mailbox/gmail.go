package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUserID = "me"

// GmailSource implements Source on the Gmail API.
type GmailSource struct {
	svc *gmail.Service
}

// NewGmailSource creates a Gmail-backed source. Credentials come in through
// the client options (OAuth token source or ADC).
func NewGmailSource(ctx context.Context, opts ...option.ClientOption) (*GmailSource, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGmailSource: creating gmail service: %w", err)
	}
	return &GmailSource{svc: svc}, nil
}

// Search lists the ids of all messages matching a Gmail search query,
// following result pages to the end.
func (s *GmailSource) Search(ctx context.Context, query string) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		call := s.svc.Users.Messages.List(gmailUserID).Q(query).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("mailbox: searching %q: %w", query, err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

// Fetch retrieves one message in full format and extracts its HTML part.
func (s *GmailSource) Fetch(ctx context.Context, id string) (*Message, error) {
	msg, err := s.svc.Users.Messages.Get(gmailUserID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("mailbox: fetching message %s: %w", id, err)
	}

	body, err := decodeHTMLPart(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("mailbox: message %s: %w", id, err)
	}

	return &Message{
		ID:           msg.Id,
		InternalDate: time.UnixMilli(msg.InternalDate),
		Subject:      headerValue(msg.Payload, "Subject"),
		HTMLBody:     body,
	}, nil
}

// decodeHTMLPart walks the MIME tree depth-first for the first text/html part
// and decodes its base64url body.
func decodeHTMLPart(payload *gmail.MessagePart) ([]byte, error) {
	encoded := findHTMLPart(payload)
	if encoded == "" {
		return nil, fmt.Errorf("no text/html part found")
	}
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		// Gmail omits padding on some parts.
		data, err = base64.RawURLEncoding.DecodeString(encoded)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding html part: %w", err)
	}
	return data, nil
}

func findHTMLPart(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" {
		return part.Body.Data
	}
	for _, p := range part.Parts {
		if data := findHTMLPart(p); data != "" {
			return data
		}
	}
	return ""
}

func headerValue(part *gmail.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}
