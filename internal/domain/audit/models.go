// Package audit records one event per proxied operation and delivers it to
// the configured sinks off the request path.
package audit

import (
	"context"
	"time"
)

// Operation names used in events.
const (
	OpCreateLinkToken       = "create_link_token"
	OpExchangePublicToken   = "exchange_public_token"
	OpCreateUpdateLinkToken = "create_update_link_token"
	OpGetTransactions       = "get_transactions"
)

// Event describes the outcome of a single facade operation. It never holds a
// token or credential; ItemFingerprint identifies the item without exposing
// its access token.
type Event struct {
	ID              string    `json:"id"`
	RequestID       string    `json:"request_id,omitempty"`
	Operation       string    `json:"operation"`
	Status          int       `json:"status"`
	Outcome         string    `json:"outcome"`
	ErrorCode       string    `json:"error_code,omitempty"`
	ItemFingerprint string    `json:"item_fingerprint,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Sink persists or forwards audit events.
type Sink interface {
	Name() string
	Write(ctx context.Context, e *Event) error
}

// Reader reads back persisted events.
type Reader interface {
	ListRecent(ctx context.Context, limit int) ([]*Event, error)
	Count(ctx context.Context) (int64, error)
}
