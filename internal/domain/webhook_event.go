package domain

import (
	"time"

	"github.com/google/uuid"
)

// Webhook event types accepted from the provider.
const (
	EventPixReceived       = "pix.received"
	EventOrderFilled       = "order.filled"
	EventWithdrawConfirmed = "withdrawal.confirmed"
)

// WebhookEventStatus is the processing status of an inbound webhook record.
type WebhookEventStatus string

const (
	WebhookReceived  WebhookEventStatus = "RECEIVED"
	WebhookProcessed WebhookEventStatus = "PROCESSED"
	WebhookFailed    WebhookEventStatus = "FAILED"
)

// WebhookEvent is the append-only record of a raw inbound notification. The
// provider event id is unique and serves as the sole dedup mechanism; the row
// is never mutated except to advance its processing status. Processed events
// are purged by the reconciliation sweep after the retention window.
type WebhookEvent struct {
	ID              uuid.UUID          `json:"id"`
	ProviderEventID string             `json:"provider_event_id"`
	EventType       string             `json:"event_type"`
	RawPayload      []byte             `json:"raw_payload"`
	Signature       string             `json:"signature"`
	Status          WebhookEventStatus `json:"status"`
	DonationID      *uuid.UUID         `json:"donation_id,omitempty"`
	Error           *string            `json:"error,omitempty"`
	ReceivedAt      time.Time          `json:"received_at"`
	ProcessedAt     *time.Time         `json:"processed_at,omitempty"`
}

// WebhookPayload is the signed JSON body the provider posts to the webhook
// endpoint.
type WebhookPayload struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	Timestamp string             `json:"timestamp"`
	Data      WebhookPayloadData `json:"data"`
}

// WebhookPayloadData carries the event-type-specific fields. All fields are
// optional at the schema level; each handler validates the ones it needs.
type WebhookPayloadData struct {
	TransactionID string `json:"transactionId,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
	WithdrawalID  string `json:"withdrawalId,omitempty"`
	AmountBRL     string `json:"amountBrl,omitempty"`
	PayerName     string `json:"payerName,omitempty"`
	PayerDocument string `json:"payerDocument,omitempty"`
	PixKey        string `json:"pixKey,omitempty"`
}
