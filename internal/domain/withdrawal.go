package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus is the internal status vocabulary for on-chain withdrawals.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalSent       WithdrawalStatus = "SENT"
	WithdrawalConfirmed  WithdrawalStatus = "CONFIRMED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
// FAILED withdrawals can still be revived by an explicit manual retry.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalConfirmed || s == WithdrawalFailed
}

// Withdrawal represents one transfer of the filled asset to the operator's
// fixed wallet. At most one Withdrawal exists per Order (unique order_id).
type Withdrawal struct {
	ID                   uuid.UUID        `json:"id"`
	OrderID              uuid.UUID        `json:"order_id"`
	ProviderWithdrawalID *string          `json:"provider_withdrawal_id,omitempty"`
	Asset                string           `json:"asset"`
	Network              string           `json:"network"`
	Amount               decimal.Decimal  `json:"amount"`
	Address              string           `json:"address"`
	Status               WithdrawalStatus `json:"status"`
	TxHash               *string          `json:"tx_hash,omitempty"`
	Fee                  *decimal.Decimal `json:"fee,omitempty"`
	SentAt               *time.Time       `json:"sent_at,omitempty"`
	ConfirmedAt          *time.Time       `json:"confirmed_at,omitempty"`
	RetryCount           int              `json:"retry_count"`
	LastError            *string          `json:"last_error,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}
