package app

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/store"
)

type intakeRepoStub struct {
	store.Repository

	existingEvent *domain.WebhookEvent

	createdEvents    []*domain.WebhookEvent
	createdDonations []*domain.Donation
	processedEvents  []uuid.UUID
	processedLinks   []*uuid.UUID
	failedEvents     []uuid.UUID
}

func (s *intakeRepoStub) CreateWebhookEvent(ctx context.Context, event *domain.WebhookEvent) (*domain.WebhookEvent, bool, error) {
	if s.existingEvent != nil {
		return s.existingEvent, false, nil
	}
	event.ID = uuid.New()
	s.createdEvents = append(s.createdEvents, event)
	return event, true, nil
}

func (s *intakeRepoStub) CreateDonation(ctx context.Context, donation *domain.Donation) (*domain.Donation, bool, error) {
	donation.ID = uuid.New()
	s.createdDonations = append(s.createdDonations, donation)
	return donation, true, nil
}

func (s *intakeRepoStub) MarkWebhookEventProcessed(ctx context.Context, eventID uuid.UUID, donationID *uuid.UUID) error {
	s.processedEvents = append(s.processedEvents, eventID)
	s.processedLinks = append(s.processedLinks, donationID)
	return nil
}

func (s *intakeRepoStub) MarkWebhookEventFailed(ctx context.Context, eventID uuid.UUID, errText string) error {
	s.failedEvents = append(s.failedEvents, eventID)
	return nil
}

func pixPayload(eventID, txID, amount string) domain.WebhookPayload {
	return domain.WebhookPayload{
		ID:        eventID,
		Type:      domain.EventPixReceived,
		Timestamp: "2026-09-01T12:00:00Z",
		Data: domain.WebhookPayloadData{
			TransactionID: txID,
			AmountBRL:     amount,
			PayerName:     "Maria Silva",
		},
	}
}

func TestIngestWebhookRejectsUnknownEventType(t *testing.T) {
	repo := &intakeRepoStub{}
	svc, _ := newTestService(t, repo, &stubGateway{}, newStubQueue(), serviceOverrides{})

	payload := domain.WebhookPayload{ID: "evt_1", Type: "account.updated"}
	if _, err := svc.IngestWebhook(context.Background(), payload, []byte(`{}`), "sig"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
	if len(repo.createdEvents) != 0 {
		t.Fatal("unknown event types must not be persisted")
	}
}

func TestIngestWebhookDuplicateShortCircuits(t *testing.T) {
	repo := &intakeRepoStub{
		existingEvent: &domain.WebhookEvent{ID: uuid.New(), ProviderEventID: "evt_dup"},
	}
	q := newStubQueue()
	svc, _ := newTestService(t, repo, &stubGateway{}, q, serviceOverrides{})

	result, err := svc.IngestWebhook(context.Background(), pixPayload("evt_dup", "tx_1", "50.00"), []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !result.Duplicate {
		t.Fatal("expected duplicate flag on replayed delivery")
	}
	if len(repo.createdDonations) != 0 {
		t.Fatal("duplicate deliveries must not create donations")
	}
	if len(q.enqueued) != 0 {
		t.Fatal("duplicate deliveries must not enqueue jobs")
	}
}

func TestIngestWebhookCreatesDonationAndEnqueuesProcessing(t *testing.T) {
	repo := &intakeRepoStub{}
	q := newStubQueue()
	svc, events := newTestService(t, repo, &stubGateway{}, q, serviceOverrides{})

	result, err := svc.IngestWebhook(context.Background(), pixPayload("evt_2", "tx_2", "50.00"), []byte(`{"id":"evt_2"}`), "sig")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Duplicate {
		t.Fatal("did not expect duplicate flag")
	}
	if len(repo.createdDonations) != 1 {
		t.Fatalf("expected one donation, got %d", len(repo.createdDonations))
	}
	donation := repo.createdDonations[0]
	if donation.ProviderTxID != "tx_2" || donation.Status != domain.DonationPending {
		t.Fatalf("unexpected donation %+v", donation)
	}
	if donation.PayerName == nil || *donation.PayerName != "Maria Silva" {
		t.Fatal("expected payer name on donation")
	}
	if jobs := q.jobsOfType(JobProcessDonation); len(jobs) != 1 {
		t.Fatalf("expected one process-donation job, got %d", len(jobs))
	}
	if len(events.donationEvents) != 1 || events.donationEvents[0] != domain.RoutingDonationReceived {
		t.Fatalf("expected donation.received event, got %v", events.donationEvents)
	}
	if len(repo.processedLinks) != 1 || repo.processedLinks[0] == nil || *repo.processedLinks[0] != donation.ID {
		t.Fatal("expected webhook event marked processed with donation link")
	}
}

func TestIngestWebhookRejectsAmountOutOfBounds(t *testing.T) {
	tests := []struct {
		name   string
		amount string
	}{
		{"below minimum", "0.50"},
		{"above maximum", "10000.01"},
		{"not a number", "ten reais"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &intakeRepoStub{}
			svc, _ := newTestService(t, repo, &stubGateway{}, newStubQueue(), serviceOverrides{})

			_, err := svc.IngestWebhook(context.Background(), pixPayload("evt_3", "tx_3", tt.amount), []byte(`{}`), "sig")
			if err == nil {
				t.Fatal("expected validation error")
			}
			if len(repo.createdDonations) != 0 {
				t.Fatal("invalid amounts must not create donations")
			}
			if len(repo.failedEvents) != 1 {
				t.Fatalf("expected the webhook event marked failed, got %d", len(repo.failedEvents))
			}
		})
	}
}

func TestIngestWebhookSchedulesChecksForStatusEvents(t *testing.T) {
	orderID := uuid.New()
	repo := &intakeRepoStub{}
	q := newStubQueue()
	svc, _ := newTestService(t, repo, &stubGateway{}, q, serviceOverrides{})

	payload := domain.WebhookPayload{
		ID:   "evt_4",
		Type: domain.EventOrderFilled,
		Data: domain.WebhookPayloadData{OrderID: orderID.String()},
	}
	if _, err := svc.IngestWebhook(context.Background(), payload, []byte(`{}`), "sig"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	checks := q.jobsOfType(JobCheckOrderStatus)
	if len(checks) != 1 || checks[0].entity != orderID.String() {
		t.Fatalf("expected one order check keyed by order id, got %+v", checks)
	}
	if len(repo.processedLinks) != 1 || repo.processedLinks[0] != nil {
		t.Fatal("status events must be marked processed without a donation link")
	}
}
