/**
 * @description
 * This file defines the core domain models for the donation pipeline.
 * These structs represent the main entities used throughout the service's
 * business logic, database interactions, and API layers.
 *
 * @notes
 * - Monetary amounts use shopspring/decimal to avoid floating-point
 *   inaccuracies with financial data; the provider reports arbitrary-precision
 *   decimal strings.
 * - Optional relations (a Donation may have no Order yet, an Order may have no
 *   Withdrawal yet) are resolved by lookup, never embedded pointers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DonationStatus is the lifecycle status of a Donation.
type DonationStatus string

const (
	DonationPending    DonationStatus = "PENDING"
	DonationProcessing DonationStatus = "PROCESSING"
	DonationProcessed  DonationStatus = "PROCESSED"
	DonationFailed     DonationStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s DonationStatus) Terminal() bool {
	return s == DonationProcessed || s == DonationFailed
}

// Donation represents one inbound PIX payment. The provider transaction id is
// the idempotency anchor: at most one Donation exists per provider tx id,
// enforced by a unique constraint in the store.
type Donation struct {
	ID            uuid.UUID       `json:"id"`
	ProviderTxID  string          `json:"provider_tx_id"`
	AmountBRL     decimal.Decimal `json:"amount_brl"`
	PayerName     *string         `json:"payer_name,omitempty"`
	PayerDocument *string         `json:"payer_document,omitempty"`
	PixKey        *string         `json:"pix_key,omitempty"`
	Status        DonationStatus  `json:"status"`
	ReceivedAt    time.Time       `json:"received_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DonationListOptions controls filtering and pagination for the dashboard API.
type DonationListOptions struct {
	Status    DonationStatus
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	Limit     int
}

// DonationStats aggregates totals for a filtered donation listing.
type DonationStats struct {
	TotalAmountBRL decimal.Decimal `json:"total_amount_brl"`
	TotalDonations int64           `json:"total_donations"`
}

// DonationDetail is a Donation with its optional order/withdrawal chain and
// the webhook events that produced it, as served to the dashboard.
type DonationDetail struct {
	Donation   Donation       `json:"donation"`
	Order      *Order         `json:"order,omitempty"`
	Withdrawal *Withdrawal    `json:"withdrawal,omitempty"`
	Events     []WebhookEvent `json:"webhook_events,omitempty"`
}
