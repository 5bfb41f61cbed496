// Package mailbox provides the email document source the bank-payment
// extractor pulls notification emails from.
package mailbox

import (
	"context"
	"time"
)

// Message is one fetched email with its HTML body already located and decoded.
type Message struct {
	ID           string
	InternalDate time.Time
	Subject      string
	HTMLBody     []byte
}

// Source searches for message ids matching a query and fetches messages.
type Source interface {
	Search(ctx context.Context, query string) ([]string, error)
	Fetch(ctx context.Context, id string) (*Message, error)
}
