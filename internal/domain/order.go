package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the internal status vocabulary for buy orders. Provider
// status strings are mapped into this set at the gateway boundary and never
// leak past it.
type OrderStatus string

const (
	OrderPlaced    OrderStatus = "PLACED"
	OrderFilled    OrderStatus = "FILLED"
	OrderPartial   OrderStatus = "PARTIAL"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFailed    OrderStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderFailed
}

// Order represents one market buy converting a Donation's BRL amount into the
// target asset. At most one Order exists per Donation (unique donation_id).
// An Order transitions only from the provider's authoritative status; the
// system never locally infers "filled".
type Order struct {
	ID              uuid.UUID        `json:"id"`
	DonationID      uuid.UUID        `json:"donation_id"`
	ProviderOrderID *string          `json:"provider_order_id,omitempty"`
	Pair            string           `json:"pair"`
	Side            string           `json:"side"`
	AmountBRL       decimal.Decimal  `json:"amount_brl"`
	FilledAmount    *decimal.Decimal `json:"filled_amount,omitempty"`
	ExecutedPrice   *decimal.Decimal `json:"executed_price,omitempty"`
	Status          OrderStatus      `json:"status"`
	PlacedAt        time.Time        `json:"placed_at"`
	FilledAt        *time.Time       `json:"filled_at,omitempty"`
	RetryCount      int              `json:"retry_count"`
	LastError       *string          `json:"last_error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
