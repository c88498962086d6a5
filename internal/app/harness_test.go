package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/resgateprime/donation-service/internal/apperr"
	"github.com/resgateprime/donation-service/internal/config"
	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/queue"
	"github.com/resgateprime/donation-service/internal/store"
	"github.com/resgateprime/donation-service/pkg/alerts"
	"github.com/resgateprime/donation-service/pkg/providerclient"
)

// stubGateway lets each test script provider behavior per call. Unset
// functions fail loudly so a test cannot silently hit the provider.
type stubGateway struct {
	placeOrderFn       func(ctx context.Context, req providerclient.OrderRequest) (*providerclient.OrderResult, error)
	getOrderFn         func(ctx context.Context, orderID string) (*providerclient.OrderResult, error)
	createWithdrawalFn func(ctx context.Context, req providerclient.WithdrawalRequest) (*providerclient.WithdrawalResult, error)
	getWithdrawalFn    func(ctx context.Context, withdrawalID string) (*providerclient.WithdrawalResult, error)

	placeOrderCalls       int
	createWithdrawalCalls int
}

var errStubNotScripted = errors.New("provider call not scripted in test")

func (g *stubGateway) PlaceOrder(ctx context.Context, req providerclient.OrderRequest) (*providerclient.OrderResult, error) {
	g.placeOrderCalls++
	if g.placeOrderFn == nil {
		return nil, errStubNotScripted
	}
	return g.placeOrderFn(ctx, req)
}

func (g *stubGateway) GetOrder(ctx context.Context, orderID string) (*providerclient.OrderResult, error) {
	if g.getOrderFn == nil {
		return nil, errStubNotScripted
	}
	return g.getOrderFn(ctx, orderID)
}

func (g *stubGateway) CreateWithdrawal(ctx context.Context, req providerclient.WithdrawalRequest) (*providerclient.WithdrawalResult, error) {
	g.createWithdrawalCalls++
	if g.createWithdrawalFn == nil {
		return nil, errStubNotScripted
	}
	return g.createWithdrawalFn(ctx, req)
}

func (g *stubGateway) GetWithdrawal(ctx context.Context, withdrawalID string) (*providerclient.WithdrawalResult, error) {
	if g.getWithdrawalFn == nil {
		return nil, errStubNotScripted
	}
	return g.getWithdrawalFn(ctx, withdrawalID)
}

func (g *stubGateway) GetBalance(ctx context.Context, asset string) (*providerclient.Balance, error) {
	return nil, errStubNotScripted
}

// enqueuedJob records one queue submission for assertions.
type enqueuedJob struct {
	jobType string
	entity  string
	payload any
	opts    queue.Options
}

// stubQueue is an in-memory JobQueue. EnqueueUnique honors the dedup
// contract, including clearing the marker on pickup, so requeue tests see
// realistic behavior.
type stubQueue struct {
	enqueued []enqueuedJob
	seen     map[string]bool
	pending  map[string][]*queue.Job
	failures []*queue.Job
}

func newStubQueue() *stubQueue {
	return &stubQueue{
		seen:    make(map[string]bool),
		pending: make(map[string][]*queue.Job),
	}
}

func (q *stubQueue) Enqueue(ctx context.Context, jobType string, payload any, opts queue.Options) (uuid.UUID, error) {
	q.enqueued = append(q.enqueued, enqueuedJob{jobType: jobType, payload: payload, opts: opts})
	return uuid.New(), nil
}

func (q *stubQueue) EnqueueUnique(ctx context.Context, jobType, entity string, payload any, opts queue.Options) (uuid.UUID, bool, error) {
	key := jobType + ":" + entity
	if q.seen[key] {
		return uuid.Nil, false, nil
	}
	q.seen[key] = true
	q.enqueued = append(q.enqueued, enqueuedJob{jobType: jobType, entity: entity, payload: payload, opts: opts})
	return uuid.New(), true, nil
}

func (q *stubQueue) Dequeue(ctx context.Context, jobType string) (*queue.Job, error) {
	jobs := q.pending[jobType]
	if len(jobs) == 0 {
		return nil, nil
	}
	job := jobs[0]
	q.pending[jobType] = jobs[1:]
	if job.Entity != "" {
		delete(q.seen, job.Type+":"+job.Entity)
	}
	return job, nil
}

func (q *stubQueue) ReportFailure(ctx context.Context, job *queue.Job, jobErr error) (bool, error) {
	job.Attempts++
	q.failures = append(q.failures, job)
	return job.Attempts >= job.MaxAttempts || !apperr.IsRetryable(jobErr), nil
}

// deliver moves the most recent enqueued job of jobType onto the pending
// list, the way the drain would pick it up from Redis.
func (q *stubQueue) deliver(t *testing.T, jobType string) {
	t.Helper()
	jobs := q.jobsOfType(jobType)
	if len(jobs) == 0 {
		t.Fatalf("no %s job enqueued to deliver", jobType)
	}
	last := jobs[len(jobs)-1]
	raw, err := json.Marshal(last.payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", jobType, err)
	}
	q.pending[jobType] = append(q.pending[jobType], &queue.Job{
		ID:          uuid.New(),
		Type:        jobType,
		Entity:      last.entity,
		Payload:     raw,
		MaxAttempts: queue.DefaultMaxAttempts,
	})
}

func (q *stubQueue) jobsOfType(jobType string) []enqueuedJob {
	var out []enqueuedJob
	for _, j := range q.enqueued {
		if j.jobType == jobType {
			out = append(out, j)
		}
	}
	return out
}

// stubNotifier collects every alert.
type stubNotifier struct {
	alerts []alerts.Alert
}

func (n *stubNotifier) Send(ctx context.Context, alert alerts.Alert) {
	n.alerts = append(n.alerts, alert)
}

// stubPublisher collects lifecycle events by routing key.
type stubPublisher struct {
	donationEvents    []string
	withdrawalsEvents int
}

func (p *stubPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	return nil
}

func (p *stubPublisher) PublishDonationEvent(ctx context.Context, routingKey string, event domain.DonationLifecycleEvent) error {
	p.donationEvents = append(p.donationEvents, routingKey)
	return nil
}

func (p *stubPublisher) PublishWithdrawalConfirmed(ctx context.Context, event domain.WithdrawalConfirmedEvent) error {
	p.withdrawalsEvents++
	return nil
}

func (p *stubPublisher) Close() {}

func testConfig() config.Config {
	return config.Config{
		ProviderName:       "mercadobitcoin",
		USDTWalletAddress:  "TXYZa1b2c3d4e5f6g7h8i9j0klmnopqrst",
		USDTNetwork:        "TRC20",
		EnableAutoWithdraw: true,
		MinDonationBRL:     1,
		MaxDonationBRL:     10000,
		WorkerBatchSize:    25,
		ReconcileBatchSize: 50,
	}
}

type serviceOverrides struct {
	cfg      *config.Config
	notifier alerts.Notifier
	events   *stubPublisher
}

func newTestService(t *testing.T, repo store.Repository, gateway providerclient.Gateway, q JobQueue, overrides serviceOverrides) (*Service, *stubPublisher) {
	t.Helper()

	cfg := testConfig()
	if overrides.cfg != nil {
		cfg = *overrides.cfg
	}
	notifier := overrides.notifier
	if notifier == nil {
		notifier = &stubNotifier{}
	}
	events := overrides.events
	if events == nil {
		events = &stubPublisher{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewService(repo, gateway, q, notifier, events, cfg, logger), events
}
