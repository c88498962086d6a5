/**
 * @description
 * Webhook intake: the entry point of the donation pipeline. Every verified
 * notification is persisted as a WebhookEvent before any processing happens;
 * the unique provider event id makes replays observable and harmless. The
 * pix.received handler creates the donation and enqueues the async chain,
 * the order/withdrawal handlers just schedule status checks.
 */

package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/resgateprime/donation-service/internal/apperr"
	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/queue"
)

// IngestResult reports the outcome of a webhook delivery.
type IngestResult struct {
	EventID   uuid.UUID
	Duplicate bool
}

// IngestWebhook persists and dispatches one verified webhook payload. The
// raw body and signature are stored with the event for audit. Duplicate
// deliveries short-circuit without side effects.
func (s *Service) IngestWebhook(ctx context.Context, payload domain.WebhookPayload, rawBody []byte, signature string) (*IngestResult, error) {
	log := s.logger.With("service", "intake", "eventId", payload.ID, "eventType", payload.Type)

	switch payload.Type {
	case domain.EventPixReceived, domain.EventOrderFilled, domain.EventWithdrawConfirmed:
	default:
		return nil, apperr.Validation("unsupported event type %q", payload.Type)
	}

	event, created, err := s.repo.CreateWebhookEvent(ctx, &domain.WebhookEvent{
		ProviderEventID: payload.ID,
		EventType:       payload.Type,
		RawPayload:      rawBody,
		Signature:       signature,
		Status:          domain.WebhookReceived,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		log.Info("duplicate webhook delivery ignored")
		return &IngestResult{EventID: event.ID, Duplicate: true}, nil
	}

	var handlerErr error
	switch payload.Type {
	case domain.EventPixReceived:
		handlerErr = s.handlePixReceived(ctx, payload, event.ID)
	case domain.EventOrderFilled:
		handlerErr = s.handleOrderFilled(ctx, payload, event.ID)
	case domain.EventWithdrawConfirmed:
		handlerErr = s.handleWithdrawalConfirmed(ctx, payload, event.ID)
	}
	if handlerErr != nil {
		if markErr := s.repo.MarkWebhookEventFailed(ctx, event.ID, handlerErr.Error()); markErr != nil {
			log.Error("failed to mark webhook event failed", "error", markErr)
		}
		return nil, handlerErr
	}
	return &IngestResult{EventID: event.ID}, nil
}

// handlePixReceived creates the donation and kicks off async processing.
func (s *Service) handlePixReceived(ctx context.Context, payload domain.WebhookPayload, eventID uuid.UUID) error {
	log := s.logger.With("handler", "pixReceived", "eventId", eventID)

	if payload.Data.TransactionID == "" || payload.Data.AmountBRL == "" {
		return apperr.Validation("pix.received requires transactionId and amountBrl")
	}
	amount, err := decimal.NewFromString(payload.Data.AmountBRL)
	if err != nil {
		return apperr.Validation("invalid amountBrl %q", payload.Data.AmountBRL)
	}
	minAmount := decimal.NewFromFloat(s.cfg.MinDonationBRL)
	maxAmount := decimal.NewFromFloat(s.cfg.MaxDonationBRL)
	if amount.LessThan(minAmount) || amount.GreaterThan(maxAmount) {
		return apperr.Validation("donation amount %s outside accepted bounds [%s, %s]",
			amount, minAmount, maxAmount)
	}

	receivedAt := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
		receivedAt = ts
	}

	donation := &domain.Donation{
		ProviderTxID: payload.Data.TransactionID,
		AmountBRL:    amount,
		Status:       domain.DonationPending,
		ReceivedAt:   receivedAt,
	}
	if payload.Data.PayerName != "" {
		donation.PayerName = &payload.Data.PayerName
	}
	if payload.Data.PayerDocument != "" {
		donation.PayerDocument = &payload.Data.PayerDocument
	}
	if payload.Data.PixKey != "" {
		donation.PixKey = &payload.Data.PixKey
	}

	saved, created, err := s.repo.CreateDonation(ctx, donation)
	if err != nil {
		return err
	}
	if !created {
		log.Info("donation already exists for provider transaction", "donationId", saved.ID)
	} else {
		log.Info("donation created", "donationId", saved.ID, "amountBrl", amount.String())
		s.publishDonationEvent(ctx, domain.RoutingDonationReceived, saved)
		if _, err := s.queue.Enqueue(ctx, JobProcessDonation, ProcessDonationJob{DonationID: saved.ID}, queue.Options{}); err != nil {
			return err
		}
	}
	return s.repo.MarkWebhookEventProcessed(ctx, eventID, &saved.ID)
}

// handleOrderFilled schedules a status check for the referenced order.
func (s *Service) handleOrderFilled(ctx context.Context, payload domain.WebhookPayload, eventID uuid.UUID) error {
	if payload.Data.OrderID == "" {
		return apperr.Validation("order.filled requires orderId")
	}
	orderID, err := uuid.Parse(payload.Data.OrderID)
	if err != nil {
		return apperr.Validation("invalid orderId %q", payload.Data.OrderID)
	}
	if _, _, err := s.queue.EnqueueUnique(ctx, JobCheckOrderStatus, orderID.String(),
		CheckOrderJob{OrderID: orderID}, queue.Options{}); err != nil {
		return err
	}
	s.logger.Info("order check scheduled from webhook", "orderId", orderID)
	return s.repo.MarkWebhookEventProcessed(ctx, eventID, nil)
}

// handleWithdrawalConfirmed schedules a status check for the referenced
// withdrawal.
func (s *Service) handleWithdrawalConfirmed(ctx context.Context, payload domain.WebhookPayload, eventID uuid.UUID) error {
	if payload.Data.WithdrawalID == "" {
		return apperr.Validation("withdrawal.confirmed requires withdrawalId")
	}
	withdrawalID, err := uuid.Parse(payload.Data.WithdrawalID)
	if err != nil {
		return apperr.Validation("invalid withdrawalId %q", payload.Data.WithdrawalID)
	}
	if _, _, err := s.queue.EnqueueUnique(ctx, JobCheckWithdrawalStatus, withdrawalID.String(),
		CheckWithdrawalJob{WithdrawalID: withdrawalID}, queue.Options{}); err != nil {
		return err
	}
	s.logger.Info("withdrawal check scheduled from webhook", "withdrawalId", withdrawalID)
	return s.repo.MarkWebhookEventProcessed(ctx, eventID, nil)
}
