/**
 * @description
 * Withdrawal management for the USDT delivery leg. A withdrawal belongs to
 * exactly one order and always targets the operator's configured wallet.
 * Creation validates the wallet address against the configured network and
 * honors the auto-withdraw feature flag: with the flag off, the withdrawal is
 * recorded as PENDING and waits for a manual release.
 */

package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/resgateprime/donation-service/internal/apperr"
	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/store"
	"github.com/resgateprime/donation-service/pkg/alerts"
	"github.com/resgateprime/donation-service/pkg/providerclient"
)

const withdrawalAsset = "USDT"

var withdrawalStatusFromProvider = map[providerclient.WithdrawalStatus]domain.WithdrawalStatus{
	providerclient.WithdrawalPending:    domain.WithdrawalPending,
	providerclient.WithdrawalProcessing: domain.WithdrawalProcessing,
	providerclient.WithdrawalSent:       domain.WithdrawalSent,
	providerclient.WithdrawalConfirmed:  domain.WithdrawalConfirmed,
	providerclient.WithdrawalFailed:     domain.WithdrawalFailed,
}

func mapWithdrawalStatus(status providerclient.WithdrawalStatus) domain.WithdrawalStatus {
	if mapped, ok := withdrawalStatusFromProvider[status]; ok {
		return mapped
	}
	return domain.WithdrawalPending
}

// validateWalletAddress checks the destination address against the network's
// basic shape before any funds move.
func validateWalletAddress(address, network string) error {
	if len(address) < 20 {
		return apperr.Validation("wallet address is too short")
	}
	switch network {
	case "TRC20":
		if !strings.HasPrefix(address, "T") {
			return apperr.Validation("TRC20 address must start with T")
		}
	case "ERC20", "POLYGON":
		if !strings.HasPrefix(address, "0x") {
			return apperr.Validation("%s address must start with 0x", network)
		}
	}
	return nil
}

// CreateWithdrawal moves the filled USDT amount to the configured wallet.
// When a withdrawal already exists for the order it is returned unchanged.
func (s *Service) CreateWithdrawal(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*domain.Withdrawal, error) {
	log := s.logger.With("service", "withdrawals", "orderId", orderID)

	existing, err := s.repo.FindWithdrawalByOrderID(ctx, orderID)
	if err == nil {
		log.Warn("withdrawal already exists for order", "withdrawalId", existing.ID, "status", existing.Status)
		return existing, nil
	}
	if !errors.Is(err, store.ErrWithdrawalNotFound) {
		return nil, err
	}

	if err := validateWalletAddress(s.cfg.USDTWalletAddress, s.cfg.USDTNetwork); err != nil {
		return nil, err
	}

	if !s.cfg.EnableAutoWithdraw {
		log.Warn("auto-withdraw disabled, recording withdrawal as pending manual release")
		saved, _, err := s.repo.CreateWithdrawal(ctx, &domain.Withdrawal{
			OrderID: orderID,
			Asset:   withdrawalAsset,
			Network: s.cfg.USDTNetwork,
			Amount:  amount,
			Address: s.cfg.USDTWalletAddress,
			Status:  domain.WithdrawalPending,
		})
		return saved, err
	}

	log.Info("creating provider withdrawal", "amount", amount.String(), "network", s.cfg.USDTNetwork)
	providerWithdrawal, err := s.provider.CreateWithdrawal(ctx, providerclient.WithdrawalRequest{
		Asset:   withdrawalAsset,
		Network: s.cfg.USDTNetwork,
		Amount:  amount,
		Address: s.cfg.USDTWalletAddress,
	})
	if err != nil {
		log.Error("provider rejected withdrawal", "error", err)
		failMsg := err.Error()
		if _, _, createErr := s.repo.CreateWithdrawal(ctx, &domain.Withdrawal{
			OrderID:   orderID,
			Asset:     withdrawalAsset,
			Network:   s.cfg.USDTNetwork,
			Amount:    amount,
			Address:   s.cfg.USDTWalletAddress,
			Status:    domain.WithdrawalFailed,
			LastError: &failMsg,
		}); createErr != nil {
			log.Error("failed to record failed withdrawal", "error", createErr)
		}
		return nil, apperr.Provider(err)
	}

	status := mapWithdrawalStatus(providerWithdrawal.Status)
	withdrawal := &domain.Withdrawal{
		OrderID:              orderID,
		ProviderWithdrawalID: &providerWithdrawal.ID,
		Asset:                withdrawalAsset,
		Network:              s.cfg.USDTNetwork,
		Amount:               amount,
		Address:              s.cfg.USDTWalletAddress,
		Status:               status,
		TxHash:               providerWithdrawal.TxHash,
		Fee:                  providerWithdrawal.Fee,
	}
	if status == domain.WithdrawalSent {
		now := time.Now().UTC()
		withdrawal.SentAt = &now
	}
	saved, created, err := s.repo.CreateWithdrawal(ctx, withdrawal)
	if err != nil {
		return nil, err
	}
	if !created {
		log.Warn("lost withdrawal creation race, using existing row", "withdrawalId", saved.ID)
		return saved, nil
	}

	if saved.Status == domain.WithdrawalSent || saved.Status == domain.WithdrawalConfirmed {
		s.markDonationProcessed(ctx, orderID)
	}
	log.Info("withdrawal created", "withdrawalId", saved.ID, "providerWithdrawalId", providerWithdrawal.ID, "status", saved.Status)
	return saved, nil
}

// markDonationProcessed promotes the donation behind orderID to PROCESSED
// and publishes the terminal lifecycle event.
func (s *Service) markDonationProcessed(ctx context.Context, orderID uuid.UUID) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		s.logger.Error("failed to load order for donation promotion", "orderId", orderID, "error", err)
		return
	}
	donation, err := s.repo.FindDonationByID(ctx, order.DonationID)
	if err != nil {
		s.logger.Error("failed to load donation for promotion", "donationId", order.DonationID, "error", err)
		return
	}
	if donation.Status == domain.DonationProcessed {
		return
	}
	if err := s.repo.UpdateDonationStatus(ctx, donation.ID, domain.DonationProcessed); err != nil {
		s.logger.Error("failed to mark donation processed", "donationId", donation.ID, "error", err)
		return
	}
	donation.Status = domain.DonationProcessed
	s.publishDonationEvent(ctx, domain.RoutingDonationProcessed, donation)
}

// CheckWithdrawalStatus fetches the provider's view of the withdrawal and
// applies it. A provider failure increments the retry counter; the critical
// alert fires exactly once, on the attempt that reaches the retry ceiling.
func (s *Service) CheckWithdrawalStatus(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	log := s.logger.With("service", "withdrawals", "withdrawalId", withdrawalID)

	withdrawal, err := s.repo.FindWithdrawalByID(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if withdrawal.Status.Terminal() {
		return withdrawal, nil
	}
	if withdrawal.ProviderWithdrawalID == nil {
		return nil, apperr.Validation("withdrawal %s has no provider withdrawal id", withdrawalID)
	}

	providerWithdrawal, err := s.provider.GetWithdrawal(ctx, *withdrawal.ProviderWithdrawalID)
	if err != nil {
		count, retryErr := s.repo.IncrementWithdrawalRetry(ctx, withdrawalID, err.Error())
		if retryErr != nil {
			log.Error("failed to record withdrawal retry", "error", retryErr)
		} else if count == 3 {
			alerts.WithdrawalFailed(ctx, s.notifier, withdrawalID.String(), err.Error(), count)
		}
		return nil, apperr.Provider(err)
	}

	updated, err := s.repo.UpdateWithdrawalFromProvider(ctx, withdrawalID, store.UpdateWithdrawalParams{
		Status: mapWithdrawalStatus(providerWithdrawal.Status),
		TxHash: providerWithdrawal.TxHash,
		Fee:    providerWithdrawal.Fee,
	})
	if err != nil {
		return nil, err
	}
	log.Info("withdrawal status refreshed", "status", updated.Status)

	if updated.Status == domain.WithdrawalConfirmed && withdrawal.Status != domain.WithdrawalConfirmed {
		s.markDonationProcessed(ctx, updated.OrderID)
		s.publishWithdrawalConfirmed(ctx, updated)
	}
	return updated, nil
}

func (s *Service) publishWithdrawalConfirmed(ctx context.Context, w *domain.Withdrawal) {
	event := domain.WithdrawalConfirmedEvent{
		WithdrawalID: w.ID,
		OrderID:      w.OrderID,
		Asset:        w.Asset,
		Network:      w.Network,
		Amount:       w.Amount.String(),
		TxHash:       w.TxHash,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.events.PublishWithdrawalConfirmed(ctx, event); err != nil {
		s.logger.Error("failed to publish withdrawal confirmed event", "withdrawalId", w.ID, "error", err)
	}
}

// RetryWithdrawal re-submits a FAILED or PENDING withdrawal to the provider.
// Any other status is rejected.
func (s *Service) RetryWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	log := s.logger.With("service", "withdrawals", "withdrawalId", withdrawalID)

	withdrawal, err := s.repo.FindWithdrawalByID(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if withdrawal.Status != domain.WithdrawalFailed && withdrawal.Status != domain.WithdrawalPending {
		return nil, apperr.Validation("only FAILED or PENDING withdrawals can be retried")
	}
	if err := validateWalletAddress(withdrawal.Address, withdrawal.Network); err != nil {
		return nil, err
	}

	log.Info("retrying withdrawal", "attempt", withdrawal.RetryCount+1)
	providerWithdrawal, err := s.provider.CreateWithdrawal(ctx, providerclient.WithdrawalRequest{
		Asset:   withdrawal.Asset,
		Network: withdrawal.Network,
		Amount:  withdrawal.Amount,
		Address: withdrawal.Address,
	})
	if err != nil {
		if _, retryErr := s.repo.IncrementWithdrawalRetry(ctx, withdrawalID, err.Error()); retryErr != nil {
			log.Error("failed to record withdrawal retry", "error", retryErr)
		}
		return nil, apperr.Provider(err)
	}

	revived, err := s.repo.ReviveWithdrawal(ctx, withdrawalID, store.UpdateWithdrawalParams{
		Status:               mapWithdrawalStatus(providerWithdrawal.Status),
		ProviderWithdrawalID: &providerWithdrawal.ID,
		TxHash:               providerWithdrawal.TxHash,
		Fee:                  providerWithdrawal.Fee,
	})
	if err != nil {
		if errors.Is(err, store.ErrWithdrawalNotRetryable) {
			return nil, apperr.Validation("withdrawal %s is no longer retryable", withdrawalID)
		}
		return nil, err
	}
	log.Info("withdrawal retried", "providerWithdrawalId", providerWithdrawal.ID, "status", revived.Status)
	return revived, nil
}
