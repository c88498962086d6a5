/**
 * @description
 * Order management for the BRL -> USDT conversion leg. An order belongs to
 * exactly one donation; creation is idempotent on the donation id, status
 * updates come from provider snapshots and can never regress a terminal
 * status (the store enforces the monotonic guard).
 */

package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/resgateprime/donation-service/internal/apperr"
	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/store"
	"github.com/resgateprime/donation-service/pkg/providerclient"
)

const orderPair = "USDT-BRL"

// providerclient statuses map 1:1 onto the domain's order vocabulary; the
// table keeps the conversion explicit so a new provider status cannot leak
// through as a raw string.
var orderStatusFromProvider = map[providerclient.OrderStatus]domain.OrderStatus{
	providerclient.OrderPlaced:    domain.OrderPlaced,
	providerclient.OrderFilled:    domain.OrderFilled,
	providerclient.OrderPartial:   domain.OrderPartial,
	providerclient.OrderCancelled: domain.OrderCancelled,
}

func mapOrderStatus(status providerclient.OrderStatus) domain.OrderStatus {
	if mapped, ok := orderStatusFromProvider[status]; ok {
		return mapped
	}
	return domain.OrderPlaced
}

// CreateOrder places a market buy order for the donation's BRL amount. When
// an order already exists for the donation it is returned unchanged.
func (s *Service) CreateOrder(ctx context.Context, donationID uuid.UUID, amountBRL decimal.Decimal) (*domain.Order, error) {
	log := s.logger.With("service", "orders", "donationId", donationID)

	existing, err := s.repo.FindOrderByDonationID(ctx, donationID)
	if err == nil {
		log.Warn("order already exists for donation", "orderId", existing.ID, "status", existing.Status)
		return existing, nil
	}
	if !errors.Is(err, store.ErrOrderNotFound) {
		return nil, err
	}

	log.Info("placing conversion order", "amountBrl", amountBRL.String())
	providerOrder, err := s.provider.PlaceOrder(ctx, providerclient.OrderRequest{
		Pair:      orderPair,
		Side:      "BUY",
		Type:      "MARKET",
		AmountBRL: amountBRL,
	})
	if err != nil {
		log.Error("provider rejected order", "error", err)
		// Record the failure so the donation chain is inspectable even when
		// the provider is down.
		failMsg := err.Error()
		if _, _, createErr := s.repo.CreateOrder(ctx, &domain.Order{
			DonationID: donationID,
			Pair:       orderPair,
			Side:       "BUY",
			AmountBRL:  amountBRL,
			Status:     domain.OrderFailed,
			LastError:  &failMsg,
			PlacedAt:   time.Now().UTC(),
		}); createErr != nil {
			log.Error("failed to record failed order", "error", createErr)
		}
		return nil, apperr.Provider(err)
	}

	order := &domain.Order{
		DonationID:      donationID,
		ProviderOrderID: &providerOrder.ID,
		Pair:            orderPair,
		Side:            "BUY",
		AmountBRL:       amountBRL,
		FilledAmount:    providerOrder.ExecutedAmount,
		ExecutedPrice:   providerOrder.ExecutedPrice,
		Status:          mapOrderStatus(providerOrder.Status),
		PlacedAt:        time.Now().UTC(),
	}
	saved, created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if !created {
		log.Warn("lost order creation race, using existing row", "orderId", saved.ID)
		return saved, nil
	}

	if err := s.repo.UpdateDonationStatus(ctx, donationID, domain.DonationProcessing); err != nil {
		log.Error("failed to mark donation processing", "error", err)
	}
	log.Info("order placed", "orderId", saved.ID, "providerOrderId", providerOrder.ID, "status", saved.Status)
	return saved, nil
}

// CheckOrderStatus fetches the provider's view of the order and applies it.
// A provider failure increments the order's retry counter and is returned as
// a retryable error.
func (s *Service) CheckOrderStatus(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	log := s.logger.With("service", "orders", "orderId", orderID)

	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return order, nil
	}
	if order.ProviderOrderID == nil {
		return nil, apperr.Validation("order %s has no provider order id", orderID)
	}

	providerOrder, err := s.provider.GetOrder(ctx, *order.ProviderOrderID)
	if err != nil {
		if _, retryErr := s.repo.IncrementOrderRetry(ctx, orderID, err.Error()); retryErr != nil {
			log.Error("failed to record order retry", "error", retryErr)
		}
		return nil, apperr.Provider(err)
	}

	updated, err := s.repo.UpdateOrderFromProvider(ctx, orderID, store.UpdateOrderParams{
		Status:        mapOrderStatus(providerOrder.Status),
		FilledAmount:  providerOrder.ExecutedAmount,
		ExecutedPrice: providerOrder.ExecutedPrice,
	})
	if err != nil {
		return nil, err
	}
	log.Info("order status refreshed", "status", updated.Status)
	return updated, nil
}

// CancelOrder marks the order cancelled. Filled orders cannot be cancelled.
func (s *Service) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == domain.OrderFilled {
		return apperr.Validation("cannot cancel an already filled order")
	}
	if err := s.repo.MarkOrderCancelled(ctx, orderID, reason); err != nil {
		if errors.Is(err, store.ErrOrderTerminal) {
			return apperr.Validation("order %s is already terminal", orderID)
		}
		return err
	}
	s.logger.Info("order cancelled", "orderId", orderID, "reason", reason)
	return nil
}
