/**
 * @description
 * Queue workers for the asynchronous donation chain. Jobs are dispatched by
 * type: process-donation drives a donation through order creation into
 * withdrawal, check-order-status and check-withdrawal-status poll the
 * provider until the entity settles. Pollers re-enqueue themselves with
 * fixed delays (30s for orders, 60s for pending withdrawals, 120s once
 * sent) and use dedup markers so overlapping webhooks and sweeps cannot
 * pile up duplicate checks for the same entity.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/queue"
	"github.com/resgateprime/donation-service/internal/store"
)

// Queue job types.
const (
	JobProcessDonation       = "process-donation"
	JobCheckOrderStatus      = "check-order-status"
	JobCheckWithdrawalStatus = "check-withdrawal-status"
)

// Poller re-check delays.
const (
	orderCheckDelay        = 30 * time.Second
	withdrawalCheckDelay   = 60 * time.Second
	withdrawalConfirmDelay = 120 * time.Second
)

// ProcessDonationJob is the payload for JobProcessDonation.
type ProcessDonationJob struct {
	DonationID uuid.UUID `json:"donationId"`
}

// CheckOrderJob is the payload for JobCheckOrderStatus.
type CheckOrderJob struct {
	OrderID uuid.UUID `json:"orderId"`
}

// CheckWithdrawalJob is the payload for JobCheckWithdrawalStatus.
type CheckWithdrawalJob struct {
	WithdrawalID uuid.UUID `json:"withdrawalId"`
}

// HandleJob routes a dequeued job to its handler. Unknown job types are
// logged and dropped rather than retried.
func (s *Service) HandleJob(ctx context.Context, job *queue.Job) error {
	log := s.logger.With("worker", "dispatcher", "jobId", job.ID, "jobType", job.Type)
	log.Info("processing job", "attempt", job.Attempts+1, "maxAttempts", job.MaxAttempts)

	switch job.Type {
	case JobProcessDonation:
		var payload ProcessDonationJob
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return s.processDonation(ctx, payload.DonationID)
	case JobCheckOrderStatus:
		var payload CheckOrderJob
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return s.runOrderCheck(ctx, payload.OrderID)
	case JobCheckWithdrawalStatus:
		var payload CheckWithdrawalJob
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		return s.runWithdrawalCheck(ctx, payload.WithdrawalID)
	default:
		log.Warn("unknown job type, dropping")
		return nil
	}
}

// processDonation drives one donation as far as it can go right now: ensure
// the order exists, then either wait on the order, fail the donation, or
// create the withdrawal.
func (s *Service) processDonation(ctx context.Context, donationID uuid.UUID) error {
	log := s.logger.With("worker", "processDonation", "donationId", donationID)

	donation, err := s.repo.FindDonationByID(ctx, donationID)
	if err != nil {
		return err
	}
	if donation.Status == domain.DonationProcessed {
		log.Info("donation already processed")
		return nil
	}

	order, err := s.repo.FindOrderByDonationID(ctx, donationID)
	if errors.Is(err, store.ErrOrderNotFound) {
		order, err = s.CreateOrder(ctx, donationID, donation.AmountBRL)
	}
	if err != nil {
		s.failDonation(ctx, donation, err)
		return err
	}

	switch order.Status {
	case domain.OrderPlaced, domain.OrderPartial:
		log.Info("order not filled yet, scheduling check", "orderId", order.ID)
		_, _, err := s.queue.EnqueueUnique(ctx, JobCheckOrderStatus, order.ID.String(),
			CheckOrderJob{OrderID: order.ID}, queue.Options{Delay: orderCheckDelay})
		return err

	case domain.OrderFailed, domain.OrderCancelled:
		log.Error("order terminal without fill", "orderId", order.ID, "status", order.Status)
		s.failDonation(ctx, donation, fmt.Errorf("order %s ended %s", order.ID, order.Status))
		return nil

	case domain.OrderFilled:
		if order.FilledAmount == nil {
			err := fmt.Errorf("order %s is FILLED but has no filled amount", order.ID)
			s.failDonation(ctx, donation, err)
			return err
		}
		withdrawal, err := s.CreateWithdrawal(ctx, order.ID, *order.FilledAmount)
		if err != nil {
			s.failDonation(ctx, donation, err)
			return err
		}
		if withdrawal.Status != domain.WithdrawalConfirmed {
			if _, _, err := s.queue.EnqueueUnique(ctx, JobCheckWithdrawalStatus, withdrawal.ID.String(),
				CheckWithdrawalJob{WithdrawalID: withdrawal.ID}, queue.Options{Delay: withdrawalCheckDelay}); err != nil {
				return err
			}
		}
		log.Info("donation advanced to withdrawal", "withdrawalId", withdrawal.ID)
		return nil
	}
	return nil
}

// failDonation marks the donation FAILED and publishes the event. A later
// successful retry revives it to PROCESSING.
func (s *Service) failDonation(ctx context.Context, donation *domain.Donation, cause error) {
	s.logger.Error("donation processing failed", "donationId", donation.ID, "error", cause)
	if err := s.repo.UpdateDonationStatus(ctx, donation.ID, domain.DonationFailed); err != nil {
		s.logger.Error("failed to mark donation failed", "donationId", donation.ID, "error", err)
		return
	}
	donation.Status = domain.DonationFailed
	s.publishDonationEvent(ctx, domain.RoutingDonationFailed, donation)
}

// runOrderCheck refreshes an order from the provider and decides the next
// step: keep polling, or hand a filled order back to processDonation.
func (s *Service) runOrderCheck(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.CheckOrderStatus(ctx, orderID)
	if err != nil {
		return err
	}

	switch order.Status {
	case domain.OrderPlaced, domain.OrderPartial:
		_, _, err := s.queue.EnqueueUnique(ctx, JobCheckOrderStatus, order.ID.String(),
			CheckOrderJob{OrderID: order.ID}, queue.Options{Delay: orderCheckDelay})
		return err
	case domain.OrderFilled:
		_, err := s.queue.Enqueue(ctx, JobProcessDonation,
			ProcessDonationJob{DonationID: order.DonationID}, queue.Options{})
		return err
	}
	return nil
}

// runWithdrawalCheck refreshes a withdrawal from the provider and keeps
// polling until it settles: 60s while the provider is still working, 120s
// once the transfer is on-chain awaiting confirmations.
func (s *Service) runWithdrawalCheck(ctx context.Context, withdrawalID uuid.UUID) error {
	withdrawal, err := s.CheckWithdrawalStatus(ctx, withdrawalID)
	if err != nil {
		return err
	}

	switch withdrawal.Status {
	case domain.WithdrawalPending, domain.WithdrawalProcessing:
		_, _, err := s.queue.EnqueueUnique(ctx, JobCheckWithdrawalStatus, withdrawal.ID.String(),
			CheckWithdrawalJob{WithdrawalID: withdrawal.ID}, queue.Options{Delay: withdrawalCheckDelay})
		return err
	case domain.WithdrawalSent:
		_, _, err := s.queue.EnqueueUnique(ctx, JobCheckWithdrawalStatus, withdrawal.ID.String(),
			CheckWithdrawalJob{WithdrawalID: withdrawal.ID}, queue.Options{Delay: withdrawalConfirmDelay})
		return err
	case domain.WithdrawalConfirmed:
		s.logger.Info("withdrawal confirmed", "withdrawalId", withdrawal.ID)
	}
	return nil
}

// RunQueues drains up to batchSize jobs from each queue. Failed jobs are
// reported back to the queue for backoff or dead-lettering; the drain keeps
// going so one poisoned job cannot stall a batch.
func (s *Service) RunQueues(ctx context.Context, batchSize int) (int, error) {
	processed := 0
	for _, jobType := range []string{JobProcessDonation, JobCheckOrderStatus, JobCheckWithdrawalStatus} {
		for i := 0; i < batchSize; i++ {
			job, err := s.queue.Dequeue(ctx, jobType)
			if err != nil {
				return processed, err
			}
			if job == nil {
				break
			}
			if err := s.HandleJob(ctx, job); err != nil {
				if _, failErr := s.queue.ReportFailure(ctx, job, err); failErr != nil {
					s.logger.Error("failed to report job failure", "jobId", job.ID, "error", failErr)
				}
				continue
			}
			processed++
		}
	}
	return processed, nil
}
