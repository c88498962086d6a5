/**
 * @description
 * Reconciliation sweep: the safety net under the webhook-driven flow. It
 * re-checks every non-terminal order and withdrawal straight against the
 * provider, alerts on orders stuck past the threshold, and purges processed
 * webhook events older than the retention window. Per-item failures are
 * collected, never propagated, so one bad entity cannot abort the sweep.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/queue"
	"github.com/resgateprime/donation-service/pkg/alerts"
)

const (
	stuckOrderThreshold  = 15 * time.Minute
	webhookRetentionDays = 30
)

// ReconcileResult summarizes one sweep.
type ReconcileResult struct {
	OrdersChecked      int      `json:"orders_checked"`
	WithdrawalsChecked int      `json:"withdrawals_checked"`
	Reconciled         int      `json:"reconciled"`
	StuckOrders        int      `json:"stuck_orders"`
	PurgedEvents       int64    `json:"purged_events"`
	Errors             []string `json:"errors,omitempty"`
}

// Reconcile runs one full sweep, bounded by the configured batch size.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	log := s.logger.With("service", "reconcile")
	log.Info("reconciliation sweep started")

	result := &ReconcileResult{}
	batch := s.cfg.ReconcileBatchSize

	orders, err := s.repo.ListOrdersByStatus(ctx,
		[]domain.OrderStatus{domain.OrderPlaced, domain.OrderPartial}, batch)
	if err != nil {
		return nil, err
	}
	result.OrdersChecked = len(orders)
	for _, order := range orders {
		if _, err := s.CheckOrderStatus(ctx, order.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("order %s: %v", order.ID, err))
			continue
		}
		result.Reconciled++
	}

	withdrawals, err := s.repo.ListWithdrawalsByStatus(ctx,
		[]domain.WithdrawalStatus{domain.WithdrawalPending, domain.WithdrawalProcessing, domain.WithdrawalSent}, batch)
	if err != nil {
		return nil, err
	}
	result.WithdrawalsChecked = len(withdrawals)
	for _, withdrawal := range withdrawals {
		// Manual-release rows have no provider id yet and are skipped.
		if withdrawal.ProviderWithdrawalID == nil {
			continue
		}
		if _, err := s.CheckWithdrawalStatus(ctx, withdrawal.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("withdrawal %s: %v", withdrawal.ID, err))
			continue
		}
		result.Reconciled++
	}

	stuck, err := s.monitorStuckOrders(ctx, batch)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("stuck order scan: %v", err))
	}
	result.StuckOrders = stuck

	cutoff := time.Now().UTC().AddDate(0, 0, -webhookRetentionDays)
	purged, err := s.repo.PurgeProcessedWebhookEvents(ctx, cutoff)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("webhook purge: %v", err))
	}
	result.PurgedEvents = purged

	log.Info("reconciliation sweep finished",
		"ordersChecked", result.OrdersChecked,
		"withdrawalsChecked", result.WithdrawalsChecked,
		"reconciled", result.Reconciled,
		"stuckOrders", result.StuckOrders,
		"purgedEvents", result.PurgedEvents,
		"errors", len(result.Errors))
	return result, nil
}

// monitorStuckOrders alerts on orders pending past the threshold and forces
// a fresh provider check on each.
func (s *Service) monitorStuckOrders(ctx context.Context, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-stuckOrderThreshold)
	stuckOrders, err := s.repo.ListStuckOrders(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	for _, order := range stuckOrders {
		minutes := int(time.Since(order.PlacedAt).Minutes())
		s.logger.Warn("stuck order detected", "orderId", order.ID, "donationId", order.DonationID, "minutes", minutes)
		alerts.OrderStuck(ctx, s.notifier, order.ID.String(), minutes)
		if _, err := s.CheckOrderStatus(ctx, order.ID); err != nil {
			s.logger.Error("failed to refresh stuck order", "orderId", order.ID, "error", err)
		}
	}
	return len(stuckOrders), nil
}

// EnqueueChecks schedules a status check job for every pending order and
// withdrawal. It is the async counterpart to Reconcile, used by the admin
// endpoint so the HTTP request returns immediately.
func (s *Service) EnqueueChecks(ctx context.Context) (orders, withdrawals int, err error) {
	pendingOrders, err := s.repo.ListOrdersByStatus(ctx,
		[]domain.OrderStatus{domain.OrderPlaced, domain.OrderPartial}, s.cfg.ReconcileBatchSize)
	if err != nil {
		return 0, 0, err
	}
	for _, order := range pendingOrders {
		if _, _, err := s.queue.EnqueueUnique(ctx, JobCheckOrderStatus, order.ID.String(),
			CheckOrderJob{OrderID: order.ID}, queue.Options{}); err != nil {
			return orders, withdrawals, err
		}
		orders++
	}

	pendingWithdrawals, err := s.repo.ListWithdrawalsByStatus(ctx,
		[]domain.WithdrawalStatus{domain.WithdrawalPending, domain.WithdrawalProcessing, domain.WithdrawalSent},
		s.cfg.ReconcileBatchSize)
	if err != nil {
		return orders, 0, err
	}
	for _, withdrawal := range pendingWithdrawals {
		if withdrawal.ProviderWithdrawalID == nil {
			continue
		}
		if _, _, err := s.queue.EnqueueUnique(ctx, JobCheckWithdrawalStatus, withdrawal.ID.String(),
			CheckWithdrawalJob{WithdrawalID: withdrawal.ID}, queue.Options{}); err != nil {
			return orders, withdrawals, err
		}
		withdrawals++
	}
	return orders, withdrawals, nil
}
