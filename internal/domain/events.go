/**
 * @description
 * Message payloads published to RabbitMQ as the donation chain progresses.
 * Downstream consumers (dashboard, accounting exports) subscribe to the
 * `donation_events` topic exchange.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for lifecycle events on the donation_events exchange.
const (
	RoutingDonationReceived  = "donation.received"
	RoutingDonationProcessed = "donation.processed"
	RoutingDonationFailed    = "donation.failed"
	RoutingWithdrawConfirmed = "withdrawal.confirmed"
)

// DonationLifecycleEvent is published when a donation enters or leaves the
// pipeline.
type DonationLifecycleEvent struct {
	DonationID   uuid.UUID `json:"donation_id"`
	ProviderTxID string    `json:"provider_tx_id"`
	AmountBRL    string    `json:"amount_brl"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

// WithdrawalConfirmedEvent is published once on-chain delivery is confirmed.
type WithdrawalConfirmedEvent struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	OrderID      uuid.UUID `json:"order_id"`
	Asset        string    `json:"asset"`
	Network      string    `json:"network"`
	Amount       string    `json:"amount"`
	TxHash       *string   `json:"tx_hash,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
