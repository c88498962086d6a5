package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/queue"
	"github.com/resgateprime/donation-service/internal/store"
	"github.com/resgateprime/donation-service/pkg/providerclient"
)

type workerRepoStub struct {
	store.Repository

	donation   *domain.Donation
	order      *domain.Order
	withdrawal *domain.Withdrawal

	donationUpdates    []domain.DonationStatus
	createdWithdrawals []*domain.Withdrawal
}

func (s *workerRepoStub) FindDonationByID(ctx context.Context, donationID uuid.UUID) (*domain.Donation, error) {
	if s.donation == nil {
		return nil, store.ErrDonationNotFound
	}
	return s.donation, nil
}

func (s *workerRepoStub) FindOrderByDonationID(ctx context.Context, donationID uuid.UUID) (*domain.Order, error) {
	if s.order == nil {
		return nil, store.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *workerRepoStub) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	if s.order == nil {
		return nil, store.ErrOrderNotFound
	}
	return s.order, nil
}

func (s *workerRepoStub) FindWithdrawalByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Withdrawal, error) {
	if s.withdrawal == nil {
		return nil, store.ErrWithdrawalNotFound
	}
	return s.withdrawal, nil
}

func (s *workerRepoStub) FindWithdrawalByID(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	if s.withdrawal == nil {
		return nil, store.ErrWithdrawalNotFound
	}
	return s.withdrawal, nil
}

func (s *workerRepoStub) CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) (*domain.Withdrawal, bool, error) {
	withdrawal.ID = uuid.New()
	s.createdWithdrawals = append(s.createdWithdrawals, withdrawal)
	return withdrawal, true, nil
}

func (s *workerRepoStub) UpdateDonationStatus(ctx context.Context, donationID uuid.UUID, status domain.DonationStatus) error {
	s.donationUpdates = append(s.donationUpdates, status)
	return nil
}

func (s *workerRepoStub) UpdateOrderFromProvider(ctx context.Context, orderID uuid.UUID, params store.UpdateOrderParams) (*domain.Order, error) {
	updated := *s.order
	updated.Status = params.Status
	return &updated, nil
}

func (s *workerRepoStub) UpdateWithdrawalFromProvider(ctx context.Context, withdrawalID uuid.UUID, params store.UpdateWithdrawalParams) (*domain.Withdrawal, error) {
	updated := *s.withdrawal
	updated.Status = params.Status
	return &updated, nil
}

func TestProcessDonationSchedulesOrderCheckWhilePending(t *testing.T) {
	donationID := uuid.New()
	repo := &workerRepoStub{
		donation: &domain.Donation{ID: donationID, Status: domain.DonationProcessing, AmountBRL: decimal.NewFromInt(100)},
		order:    &domain.Order{ID: uuid.New(), DonationID: donationID, Status: domain.OrderPlaced},
	}
	q := newStubQueue()
	svc, _ := newTestService(t, repo, &stubGateway{}, q, serviceOverrides{})

	if err := svc.processDonation(context.Background(), donationID); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	checks := q.jobsOfType(JobCheckOrderStatus)
	if len(checks) != 1 {
		t.Fatalf("expected one order check job, got %d", len(checks))
	}
	if checks[0].opts.Delay != 30*time.Second {
		t.Fatalf("expected 30s delay, got %s", checks[0].opts.Delay)
	}
	if checks[0].entity != repo.order.ID.String() {
		t.Fatalf("expected dedup entity %s, got %s", repo.order.ID, checks[0].entity)
	}
}

func TestProcessDonationFailsDonationOnCancelledOrder(t *testing.T) {
	donationID := uuid.New()
	repo := &workerRepoStub{
		donation: &domain.Donation{ID: donationID, Status: domain.DonationProcessing, AmountBRL: decimal.NewFromInt(100)},
		order:    &domain.Order{ID: uuid.New(), DonationID: donationID, Status: domain.OrderCancelled},
	}
	svc, events := newTestService(t, repo, &stubGateway{}, newStubQueue(), serviceOverrides{})

	if err := svc.processDonation(context.Background(), donationID); err != nil {
		t.Fatalf("expected nil error for a cleanly failed donation, got %v", err)
	}
	if len(repo.donationUpdates) != 1 || repo.donationUpdates[0] != domain.DonationFailed {
		t.Fatalf("expected donation marked FAILED, got %v", repo.donationUpdates)
	}
	if len(events.donationEvents) != 1 || events.donationEvents[0] != domain.RoutingDonationFailed {
		t.Fatalf("expected donation.failed event, got %v", events.donationEvents)
	}
}

func TestProcessDonationAdvancesFilledOrderToWithdrawal(t *testing.T) {
	donationID := uuid.New()
	filled := decimal.NewFromFloat(18.5)
	repo := &workerRepoStub{
		donation: &domain.Donation{ID: donationID, Status: domain.DonationProcessing, AmountBRL: decimal.NewFromInt(100)},
		order:    &domain.Order{ID: uuid.New(), DonationID: donationID, Status: domain.OrderFilled, FilledAmount: &filled},
	}
	gateway := &stubGateway{
		createWithdrawalFn: func(ctx context.Context, req providerclient.WithdrawalRequest) (*providerclient.WithdrawalResult, error) {
			if !req.Amount.Equal(filled) {
				t.Fatalf("expected withdrawal amount %s, got %s", filled, req.Amount)
			}
			return &providerclient.WithdrawalResult{ID: "wd_1", Status: providerclient.WithdrawalPending}, nil
		},
	}
	q := newStubQueue()
	svc, _ := newTestService(t, repo, gateway, q, serviceOverrides{})

	if err := svc.processDonation(context.Background(), donationID); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(repo.createdWithdrawals) != 1 {
		t.Fatalf("expected one withdrawal, got %d", len(repo.createdWithdrawals))
	}
	checks := q.jobsOfType(JobCheckWithdrawalStatus)
	if len(checks) != 1 {
		t.Fatalf("expected one withdrawal check job, got %d", len(checks))
	}
	if checks[0].opts.Delay != 60*time.Second {
		t.Fatalf("expected 60s delay, got %s", checks[0].opts.Delay)
	}
}

func TestRunWithdrawalCheckSlowsDownOnceSent(t *testing.T) {
	providerID := "wd_sent"
	repo := &workerRepoStub{
		withdrawal: &domain.Withdrawal{
			ID:                   uuid.New(),
			Status:               domain.WithdrawalSent,
			ProviderWithdrawalID: &providerID,
		},
	}
	gateway := &stubGateway{
		getWithdrawalFn: func(ctx context.Context, withdrawalID string) (*providerclient.WithdrawalResult, error) {
			return &providerclient.WithdrawalResult{ID: providerID, Status: providerclient.WithdrawalSent}, nil
		},
	}
	q := newStubQueue()
	svc, _ := newTestService(t, repo, gateway, q, serviceOverrides{})

	if err := svc.runWithdrawalCheck(context.Background(), repo.withdrawal.ID); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	checks := q.jobsOfType(JobCheckWithdrawalStatus)
	if len(checks) != 1 {
		t.Fatalf("expected one re-check job, got %d", len(checks))
	}
	if checks[0].opts.Delay != 120*time.Second {
		t.Fatalf("expected 120s delay for an on-chain transfer, got %s", checks[0].opts.Delay)
	}
}

func TestHandleJobDropsUnknownType(t *testing.T) {
	svc, _ := newTestService(t, &workerRepoStub{}, &stubGateway{}, newStubQueue(), serviceOverrides{})

	job := &queue.Job{ID: uuid.New(), Type: "definitely-not-a-job", Payload: json.RawMessage(`{}`)}
	if err := svc.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("expected unknown job types to be dropped, got %v", err)
	}
}

func TestOrderPollingChainSurvivesRepeatedChecks(t *testing.T) {
	donationID := uuid.New()
	providerID := "ord_pending"
	repo := &workerRepoStub{
		donation: &domain.Donation{ID: donationID, Status: domain.DonationProcessing, AmountBRL: decimal.NewFromInt(100)},
		order: &domain.Order{
			ID:              uuid.New(),
			DonationID:      donationID,
			Status:          domain.OrderPlaced,
			ProviderOrderID: &providerID,
		},
	}
	gateway := &stubGateway{
		getOrderFn: func(ctx context.Context, orderID string) (*providerclient.OrderResult, error) {
			return &providerclient.OrderResult{ID: providerID, Status: providerclient.OrderPlaced}, nil
		},
	}
	q := newStubQueue()
	svc, _ := newTestService(t, repo, gateway, q, serviceOverrides{})
	ctx := context.Background()

	if err := svc.processDonation(ctx, donationID); err != nil {
		t.Fatalf("processDonation: %v", err)
	}

	// Drain the scheduled check twice; each pickup must let the handler
	// schedule the next one for the same order.
	for hop := 1; hop <= 2; hop++ {
		q.deliver(t, JobCheckOrderStatus)
		processed, err := svc.RunQueues(ctx, 10)
		if err != nil {
			t.Fatalf("hop %d RunQueues: %v", hop, err)
		}
		if processed != 1 {
			t.Fatalf("hop %d: processed = %d, want 1", hop, processed)
		}
		checks := q.jobsOfType(JobCheckOrderStatus)
		if len(checks) != hop+1 {
			t.Fatalf("hop %d: order checks = %d, want %d (chain died)", hop, len(checks), hop+1)
		}
	}
}

func TestRunQueuesReportsFailuresAndKeepsDraining(t *testing.T) {
	donationID := uuid.New()
	repo := &workerRepoStub{
		donation: &domain.Donation{ID: donationID, Status: domain.DonationProcessed, AmountBRL: decimal.NewFromInt(100)},
	}
	q := newStubQueue()

	goodPayload, _ := json.Marshal(ProcessDonationJob{DonationID: donationID})
	badPayload := json.RawMessage(`{not json`)
	q.pending[JobProcessDonation] = []*queue.Job{
		{ID: uuid.New(), Type: JobProcessDonation, Payload: badPayload, MaxAttempts: 3},
		{ID: uuid.New(), Type: JobProcessDonation, Payload: goodPayload, MaxAttempts: 3},
	}

	svc, _ := newTestService(t, repo, &stubGateway{}, q, serviceOverrides{})

	processed, err := svc.RunQueues(context.Background(), 10)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected 1 processed job, got %d", processed)
	}
	if len(q.failures) != 1 {
		t.Fatalf("expected 1 reported failure, got %d", len(q.failures))
	}
}
