package taler

import (
	"encoding/json"
	"time"
)

// Webhook event types emitted by the merchant backend.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// Timestamp is the Taler protocol timestamp object ({"t_s": <seconds>}).
type Timestamp struct {
	TS int64 `json:"t_s"`
}

// TimestampAt converts a wall-clock time into a protocol timestamp.
func TimestampAt(t time.Time) *Timestamp {
	return &Timestamp{TS: t.Unix()}
}

// Time returns the wall-clock time the timestamp denotes.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.TS, 0)
}

// OrderRequest describes a new order to submit to the merchant backend.
// Amount is required; when its currency is empty the client default applies.
// Everything else is optional; the backend generates an order id when none
// is supplied.
type OrderRequest struct {
	Amount           Amount
	OrderID          string
	Summary          string
	FulfillmentURL   string
	PublicReorderURL string
	Metadata         map[string]any
	PayDeadline      *Timestamp
	RefundDeadline   *Timestamp
	AutoRefund       *Timestamp
}

// OrderResult is the client's view of a backend order. Raw carries the full
// backend payload untouched for callers that need fields the client does not
// interpret.
type OrderResult struct {
	OrderID    string
	PaymentURI string
	Raw        json.RawMessage
}

// RefundRequest asks the backend to refund an order. An empty Amount means a
// full refund; the value is a bare decimal string, mirroring the refund wire
// field.
type RefundRequest struct {
	OrderID string
	Amount  string
	Reason  string
}

// RefundResult is the backend's refund confirmation.
type RefundResult struct {
	RefundID string
	Raw      json.RawMessage
}

// WebhookEvent is a decoded, signature-verified backend notification. The
// client never acts on events itself; dispatching them is the caller's job.
type WebhookEvent struct {
	Type    string
	OrderID string
	Raw     json.RawMessage
}
