/**
 * @description
 * Dashboard read models: paginated donation listings with aggregate stats,
 * and the full detail view assembling a donation with its order, withdrawal
 * and webhook history.
 */

package app

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/resgateprime/donation-service/internal/apperr"
	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/store"
)

// DonationPage is a filtered donation listing plus pagination metadata and
// aggregate stats over the same filter.
type DonationPage struct {
	Donations  []domain.Donation    `json:"donations"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	Total      int64                `json:"total"`
	TotalPages int64                `json:"total_pages"`
	Stats      domain.DonationStats `json:"stats"`
}

// ListDonations serves the dashboard listing.
func (s *Service) ListDonations(ctx context.Context, opts domain.DonationListOptions) (*DonationPage, error) {
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	donations, total, err := s.repo.ListDonations(ctx, opts)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.GetDonationStats(ctx, opts)
	if err != nil {
		return nil, err
	}

	totalPages := total / int64(opts.Limit)
	if total%int64(opts.Limit) != 0 {
		totalPages++
	}
	return &DonationPage{
		Donations:  donations,
		Page:       opts.Page,
		Limit:      opts.Limit,
		Total:      total,
		TotalPages: totalPages,
		Stats:      *stats,
	}, nil
}

// GetDonationDetail assembles a donation with its order/withdrawal chain and
// webhook history. Missing chain links are simply absent, not errors.
func (s *Service) GetDonationDetail(ctx context.Context, donationID uuid.UUID) (*domain.DonationDetail, error) {
	donation, err := s.repo.FindDonationByID(ctx, donationID)
	if errors.Is(err, store.ErrDonationNotFound) {
		return nil, apperr.NotFound("donation")
	}
	if err != nil {
		return nil, err
	}
	detail := &domain.DonationDetail{Donation: *donation}

	order, err := s.repo.FindOrderByDonationID(ctx, donationID)
	if err != nil && !errors.Is(err, store.ErrOrderNotFound) {
		return nil, err
	}
	if order != nil {
		detail.Order = order
		withdrawal, err := s.repo.FindWithdrawalByOrderID(ctx, order.ID)
		if err != nil && !errors.Is(err, store.ErrWithdrawalNotFound) {
			return nil, err
		}
		detail.Withdrawal = withdrawal
	}

	events, err := s.repo.ListWebhookEventsByDonationID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	detail.Events = events
	return detail, nil
}
