/**
 * @description
 * Cron scheduler driving the queue drain and the reconciliation sweep when
 * the service runs its own background loop (as opposed to being poked via
 * the /cron HTTP endpoints by an external scheduler).
 */

package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/resgateprime/donation-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *slog.Logger
	config  config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(service *Service, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:    c,
		service: service,
		logger:  logger,
		config:  cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.WorkerSchedule, s.runWorker); err != nil {
		s.logger.Error("failed to schedule queue worker", "error", err)
	} else {
		s.logger.Info("scheduled queue worker", "schedule", s.config.WorkerSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.ReconcileSchedule, s.runReconcile); err != nil {
		s.logger.Error("failed to schedule reconciliation sweep", "error", err)
	} else {
		s.logger.Info("scheduled reconciliation sweep", "schedule", s.config.ReconcileSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runWorker() {
	ctx := context.Background()
	processed, err := s.service.RunQueues(ctx, s.config.WorkerBatchSize)
	if err != nil {
		s.logger.Error("queue drain failed", "error", err)
		return
	}
	if processed > 0 {
		s.logger.Info("queue drain finished", "processed", processed)
	}
}

func (s *Scheduler) runReconcile() {
	if _, err := s.service.Reconcile(context.Background()); err != nil {
		s.logger.Error("reconciliation sweep failed", "error", err)
	}
}
