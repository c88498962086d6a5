/**
 * @description
 * This file defines the application service for the donation pipeline and its
 * dependencies. The service owns all business logic: webhook intake, the
 * donation -> order -> withdrawal chain, queue workers and the reconciliation
 * sweep. Every external system enters through an interface so tests can stub
 * the store, the provider, the queue and the alert channel independently.
 *
 * @dependencies
 * - internal/store: Persistence interface.
 * - internal/queue: Job queue types.
 * - pkg/providerclient: Exchange gateway.
 * - pkg/alerts: Operational alerting.
 * - pkg/rabbitmq: Lifecycle event publishing.
 */

package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/resgateprime/donation-service/internal/config"
	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/queue"
	"github.com/resgateprime/donation-service/internal/store"
	"github.com/resgateprime/donation-service/pkg/alerts"
	"github.com/resgateprime/donation-service/pkg/providerclient"
	"github.com/resgateprime/donation-service/pkg/rabbitmq"
)

// JobQueue is the queue surface the service depends on. The Redis queue
// satisfies it; tests inject in-memory fakes.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType string, payload any, opts queue.Options) (uuid.UUID, error)
	EnqueueUnique(ctx context.Context, jobType, entity string, payload any, opts queue.Options) (uuid.UUID, bool, error)
	Dequeue(ctx context.Context, jobType string) (*queue.Job, error)
	ReportFailure(ctx context.Context, job *queue.Job, jobErr error) (bool, error)
}

// Service implements the donation pipeline's business logic.
type Service struct {
	repo     store.Repository
	provider providerclient.Gateway
	queue    JobQueue
	notifier alerts.Notifier
	events   rabbitmq.Publisher
	cfg      config.Config
	logger   *slog.Logger
}

// NewService wires the application service.
func NewService(
	repo store.Repository,
	provider providerclient.Gateway,
	jobQueue JobQueue,
	notifier alerts.Notifier,
	events rabbitmq.Publisher,
	cfg config.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		queue:    jobQueue,
		notifier: notifier,
		events:   events,
		cfg:      cfg,
		logger:   logger,
	}
}

// publishDonationEvent emits a lifecycle event; publish failures are logged
// and never fail the operation that triggered them.
func (s *Service) publishDonationEvent(ctx context.Context, routingKey string, d *domain.Donation) {
	event := domain.DonationLifecycleEvent{
		DonationID:   d.ID,
		ProviderTxID: d.ProviderTxID,
		AmountBRL:    d.AmountBRL.String(),
		Status:       string(d.Status),
		Timestamp:    time.Now().UTC(),
	}
	if err := s.events.PublishDonationEvent(ctx, routingKey, event); err != nil {
		s.logger.Error("failed to publish donation event",
			"routingKey", routingKey, "donationId", d.ID, "error", err)
	}
}
