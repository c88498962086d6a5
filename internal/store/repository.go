/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the donation pipeline. Defining
 * an interface decouples the business logic from the PostgreSQL implementation
 * and lets tests substitute hand-rolled stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For entity identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/resgateprime/donation-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Donation methods
	// CreateDonation is idempotent on provider tx id: when a row already
	// exists the existing donation is returned with created=false.
	CreateDonation(ctx context.Context, donation *domain.Donation) (*domain.Donation, bool, error)
	FindDonationByID(ctx context.Context, donationID uuid.UUID) (*domain.Donation, error)
	FindDonationByProviderTxID(ctx context.Context, providerTxID string) (*domain.Donation, error)
	UpdateDonationStatus(ctx context.Context, donationID uuid.UUID, status domain.DonationStatus) error
	ListDonations(ctx context.Context, opts domain.DonationListOptions) ([]domain.Donation, int64, error)
	GetDonationStats(ctx context.Context, opts domain.DonationListOptions) (*domain.DonationStats, error)

	// Order methods
	// CreateOrder relies on the unique donation_id constraint: a concurrent
	// duplicate create converges on the existing row (created=false).
	CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, bool, error)
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	FindOrderByDonationID(ctx context.Context, donationID uuid.UUID) (*domain.Order, error)
	// UpdateOrderFromProvider applies a provider status snapshot. Rows already
	// in a terminal status are left untouched and returned as-is, which keeps
	// order state monotonic under replayed checks.
	UpdateOrderFromProvider(ctx context.Context, orderID uuid.UUID, params UpdateOrderParams) (*domain.Order, error)
	IncrementOrderRetry(ctx context.Context, orderID uuid.UUID, lastError string) (int, error)
	MarkOrderCancelled(ctx context.Context, orderID uuid.UUID, reason string) error
	ListOrdersByStatus(ctx context.Context, statuses []domain.OrderStatus, limit int) ([]domain.Order, error)
	ListStuckOrders(ctx context.Context, placedBefore time.Time, limit int) ([]domain.Order, error)

	// Withdrawal methods
	CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) (*domain.Withdrawal, bool, error)
	FindWithdrawalByID(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error)
	FindWithdrawalByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Withdrawal, error)
	UpdateWithdrawalFromProvider(ctx context.Context, withdrawalID uuid.UUID, params UpdateWithdrawalParams) (*domain.Withdrawal, error)
	// ReviveWithdrawal resets a FAILED or PENDING withdrawal for a manual
	// retry, attaching the new provider reference.
	ReviveWithdrawal(ctx context.Context, withdrawalID uuid.UUID, params UpdateWithdrawalParams) (*domain.Withdrawal, error)
	IncrementWithdrawalRetry(ctx context.Context, withdrawalID uuid.UUID, lastError string) (int, error)
	ListWithdrawalsByStatus(ctx context.Context, statuses []domain.WithdrawalStatus, limit int) ([]domain.Withdrawal, error)

	// Webhook event methods
	// CreateWebhookEvent is the idempotency gate: provider_event_id is unique
	// and a duplicate insert returns the existing row with created=false.
	CreateWebhookEvent(ctx context.Context, event *domain.WebhookEvent) (*domain.WebhookEvent, bool, error)
	FindWebhookEventByProviderID(ctx context.Context, providerEventID string) (*domain.WebhookEvent, error)
	MarkWebhookEventProcessed(ctx context.Context, eventID uuid.UUID, donationID *uuid.UUID) error
	MarkWebhookEventFailed(ctx context.Context, eventID uuid.UUID, errText string) error
	ListWebhookEventsByDonationID(ctx context.Context, donationID uuid.UUID) ([]domain.WebhookEvent, error)
	PurgeProcessedWebhookEvents(ctx context.Context, receivedBefore time.Time) (int64, error)
}

// UpdateOrderParams carries a provider order snapshot into the store. Nil
// fields are left unchanged.
type UpdateOrderParams struct {
	Status          domain.OrderStatus
	ProviderOrderID *string
	FilledAmount    *decimal.Decimal
	ExecutedPrice   *decimal.Decimal
	LastError       *string
}

// UpdateWithdrawalParams carries a provider withdrawal snapshot into the
// store. Nil fields are left unchanged.
type UpdateWithdrawalParams struct {
	Status               domain.WithdrawalStatus
	ProviderWithdrawalID *string
	TxHash               *string
	Fee                  *decimal.Decimal
	LastError            *string
}
