/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed for the donation, order,
 * withdrawal and webhook-event tables.
 *
 * The uniqueness invariants the pipeline depends on live here as database
 * constraints, not application checks:
 *   - donations.provider_tx_id UNIQUE       (webhook idempotency anchor)
 *   - orders.donation_id UNIQUE             (at most one order per donation)
 *   - withdrawals.order_id UNIQUE           (at most one withdrawal per order)
 *   - webhook_events.provider_event_id UNIQUE
 * Creates use INSERT ... ON CONFLICT DO NOTHING and converge on the existing
 * row, so concurrently replayed jobs cannot produce duplicates.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Arbitrary-precision monetary columns.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/resgateprime/donation-service/internal/domain"
)

var (
	ErrDonationNotFound       = errors.New("donation not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrWithdrawalNotFound     = errors.New("withdrawal not found")
	ErrWebhookEventNotFound   = errors.New("webhook event not found")
	ErrOrderTerminal          = errors.New("order is in a terminal status")
	ErrWithdrawalNotRetryable = errors.New("withdrawal is not in a retryable status")
)

// PostgresRepository is a concrete implementation of the Repository interface
// for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const donationColumns = `id, provider_tx_id, amount_brl, payer_name, payer_document, pix_key, status, received_at, created_at, updated_at`

func scanDonation(row pgx.Row) (*domain.Donation, error) {
	var d domain.Donation
	err := row.Scan(
		&d.ID, &d.ProviderTxID, &d.AmountBRL, &d.PayerName, &d.PayerDocument,
		&d.PixKey, &d.Status, &d.ReceivedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDonation inserts a donation, converging on the existing row when the
// provider transaction id was already recorded.
func (r *PostgresRepository) CreateDonation(ctx context.Context, donation *domain.Donation) (*domain.Donation, bool, error) {
	if donation.ID == uuid.Nil {
		donation.ID = uuid.New()
	}
	query := `
		INSERT INTO donations (id, provider_tx_id, amount_brl, payer_name, payer_document, pix_key, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider_tx_id) DO NOTHING
		RETURNING ` + donationColumns
	created, err := scanDonation(r.db.QueryRow(ctx, query,
		donation.ID, donation.ProviderTxID, donation.AmountBRL, donation.PayerName,
		donation.PayerDocument, donation.PixKey, donation.Status, donation.ReceivedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	existing, err := r.FindDonationByProviderTxID(ctx, donation.ProviderTxID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) FindDonationByID(ctx context.Context, donationID uuid.UUID) (*domain.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE id = $1`
	d, err := scanDonation(r.db.QueryRow(ctx, query, donationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDonationNotFound
	}
	return d, err
}

func (r *PostgresRepository) FindDonationByProviderTxID(ctx context.Context, providerTxID string) (*domain.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations WHERE provider_tx_id = $1`
	d, err := scanDonation(r.db.QueryRow(ctx, query, providerTxID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDonationNotFound
	}
	return d, err
}

func (r *PostgresRepository) UpdateDonationStatus(ctx context.Context, donationID uuid.UUID, status domain.DonationStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE donations SET status = $2, updated_at = now() WHERE id = $1`,
		donationID, status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDonationNotFound
	}
	return nil
}

func donationListFilter(opts domain.DonationListOptions) (string, []any) {
	clauses := []string{}
	args := []any{}
	if opts.Status != "" {
		args = append(args, opts.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.StartDate != nil {
		args = append(args, *opts.StartDate)
		clauses = append(clauses, fmt.Sprintf("received_at >= $%d", len(args)))
	}
	if opts.EndDate != nil {
		args = append(args, *opts.EndDate)
		clauses = append(clauses, fmt.Sprintf("received_at <= $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListDonations returns a page of donations (newest first) and the total row
// count for the same filter.
func (r *PostgresRepository) ListDonations(ctx context.Context, opts domain.DonationListOptions) ([]domain.Donation, int64, error) {
	where, args := donationListFilter(opts)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM donations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(
		`SELECT `+donationColumns+` FROM donations`+where+` ORDER BY received_at DESC LIMIT $%d OFFSET $%d`,
		len(args)-1, len(args),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var donations []domain.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, 0, err
		}
		donations = append(donations, *d)
	}
	return donations, total, rows.Err()
}

func (r *PostgresRepository) GetDonationStats(ctx context.Context, opts domain.DonationListOptions) (*domain.DonationStats, error) {
	where, args := donationListFilter(opts)
	var stats domain.DonationStats
	query := `SELECT COALESCE(sum(amount_brl), 0), count(*) FROM donations` + where
	if err := r.db.QueryRow(ctx, query, args...).Scan(&stats.TotalAmountBRL, &stats.TotalDonations); err != nil {
		return nil, err
	}
	return &stats, nil
}

const orderColumns = `id, donation_id, provider_order_id, pair, side, amount_brl, filled_amount, executed_price, status, placed_at, filled_at, retry_count, last_error, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var filled, price decimal.NullDecimal
	err := row.Scan(
		&o.ID, &o.DonationID, &o.ProviderOrderID, &o.Pair, &o.Side, &o.AmountBRL,
		&filled, &price, &o.Status, &o.PlacedAt, &o.FilledAt, &o.RetryCount,
		&o.LastError, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if filled.Valid {
		o.FilledAmount = &filled.Decimal
	}
	if price.Valid {
		o.ExecutedPrice = &price.Decimal
	}
	return &o, nil
}

// CreateOrder inserts an order, converging on the existing row when the
// donation already has one. This is the storage-level guard against two
// concurrent processDonation jobs racing to create duplicates.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, bool, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	query := `
		INSERT INTO orders (id, donation_id, provider_order_id, pair, side, amount_brl, filled_amount, executed_price, status, placed_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (donation_id) DO NOTHING
		RETURNING ` + orderColumns
	created, err := scanOrder(r.db.QueryRow(ctx, query,
		order.ID, order.DonationID, order.ProviderOrderID, order.Pair, order.Side,
		order.AmountBRL, decimal.NullDecimal{Decimal: deref(order.FilledAmount), Valid: order.FilledAmount != nil},
		decimal.NullDecimal{Decimal: deref(order.ExecutedPrice), Valid: order.ExecutedPrice != nil},
		order.Status, order.PlacedAt, order.LastError,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	existing, err := r.FindOrderByDonationID(ctx, order.DonationID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Decimal{}
	}
	return *d
}

func (r *PostgresRepository) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(r.db.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (r *PostgresRepository) FindOrderByDonationID(ctx context.Context, donationID uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE donation_id = $1`
	o, err := scanOrder(r.db.QueryRow(ctx, query, donationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// UpdateOrderFromProvider applies a provider snapshot. The WHERE clause
// refuses to touch terminal rows, so a replayed check can never regress
// FILLED/CANCELLED/FAILED; in that case the current row is returned as-is.
// filled_at is stamped once, on the first transition into FILLED.
func (r *PostgresRepository) UpdateOrderFromProvider(ctx context.Context, orderID uuid.UUID, params UpdateOrderParams) (*domain.Order, error) {
	query := `
		UPDATE orders SET
			status = $2,
			provider_order_id = COALESCE($3, provider_order_id),
			filled_amount = COALESCE($4, filled_amount),
			executed_price = COALESCE($5, executed_price),
			last_error = COALESCE($6, last_error),
			filled_at = CASE WHEN $2 = 'FILLED' AND filled_at IS NULL THEN now() ELSE filled_at END,
			updated_at = now()
		WHERE id = $1 AND status NOT IN ('FILLED', 'CANCELLED', 'FAILED')
		RETURNING ` + orderColumns
	o, err := scanOrder(r.db.QueryRow(ctx, query,
		orderID, params.Status, params.ProviderOrderID,
		decimal.NullDecimal{Decimal: deref(params.FilledAmount), Valid: params.FilledAmount != nil},
		decimal.NullDecimal{Decimal: deref(params.ExecutedPrice), Valid: params.ExecutedPrice != nil},
		params.LastError,
	))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return r.FindOrderByID(ctx, orderID)
}

func (r *PostgresRepository) IncrementOrderRetry(ctx context.Context, orderID uuid.UUID, lastError string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`UPDATE orders SET retry_count = retry_count + 1, last_error = $2, updated_at = now() WHERE id = $1 RETURNING retry_count`,
		orderID, lastError,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrOrderNotFound
	}
	return count, err
}

func (r *PostgresRepository) MarkOrderCancelled(ctx context.Context, orderID uuid.UUID, reason string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = 'CANCELLED', last_error = $2, updated_at = now()
		 WHERE id = $1 AND status NOT IN ('FILLED', 'CANCELLED', 'FAILED')`,
		orderID, reason,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, findErr := r.FindOrderByID(ctx, orderID); findErr != nil {
			return findErr
		}
		return ErrOrderTerminal
	}
	return nil
}

func (r *PostgresRepository) ListOrdersByStatus(ctx context.Context, statuses []domain.OrderStatus, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = ANY($1) ORDER BY placed_at ASC LIMIT $2`
	rows, err := r.db.Query(ctx, query, statusStrings(statuses), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *PostgresRepository) ListStuckOrders(ctx context.Context, placedBefore time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE status IN ('PLACED', 'PARTIAL') AND placed_at < $1
		ORDER BY placed_at ASC LIMIT $2`
	rows, err := r.db.Query(ctx, query, placedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func statusStrings[T ~string](statuses []T) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

const withdrawalColumns = `id, order_id, provider_withdrawal_id, asset, network, amount, address, status, tx_hash, fee, sent_at, confirmed_at, retry_count, last_error, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	var fee decimal.NullDecimal
	err := row.Scan(
		&w.ID, &w.OrderID, &w.ProviderWithdrawalID, &w.Asset, &w.Network,
		&w.Amount, &w.Address, &w.Status, &w.TxHash, &fee, &w.SentAt,
		&w.ConfirmedAt, &w.RetryCount, &w.LastError, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fee.Valid {
		w.Fee = &fee.Decimal
	}
	return &w, nil
}

// CreateWithdrawal inserts a withdrawal, converging on the existing row when
// the order already has one.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, withdrawal *domain.Withdrawal) (*domain.Withdrawal, bool, error) {
	if withdrawal.ID == uuid.Nil {
		withdrawal.ID = uuid.New()
	}
	query := `
		INSERT INTO withdrawals (id, order_id, provider_withdrawal_id, asset, network, amount, address, status, tx_hash, fee, sent_at, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING ` + withdrawalColumns
	created, err := scanWithdrawal(r.db.QueryRow(ctx, query,
		withdrawal.ID, withdrawal.OrderID, withdrawal.ProviderWithdrawalID,
		withdrawal.Asset, withdrawal.Network, withdrawal.Amount, withdrawal.Address,
		withdrawal.Status, withdrawal.TxHash,
		decimal.NullDecimal{Decimal: deref(withdrawal.Fee), Valid: withdrawal.Fee != nil},
		withdrawal.SentAt, withdrawal.LastError,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	existing, err := r.FindWithdrawalByOrderID(ctx, withdrawal.OrderID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) FindWithdrawalByID(ctx context.Context, withdrawalID uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`
	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, withdrawalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	return w, err
}

func (r *PostgresRepository) FindWithdrawalByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE order_id = $1`
	w, err := scanWithdrawal(r.db.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	return w, err
}

// UpdateWithdrawalFromProvider applies a provider snapshot. Terminal rows
// (CONFIRMED, FAILED) are left untouched and returned as-is; sent_at and
// confirmed_at are stamped once on the first transition into those states.
func (r *PostgresRepository) UpdateWithdrawalFromProvider(ctx context.Context, withdrawalID uuid.UUID, params UpdateWithdrawalParams) (*domain.Withdrawal, error) {
	query := `
		UPDATE withdrawals SET
			status = $2,
			provider_withdrawal_id = COALESCE($3, provider_withdrawal_id),
			tx_hash = COALESCE($4, tx_hash),
			fee = COALESCE($5, fee),
			last_error = COALESCE($6, last_error),
			sent_at = CASE WHEN $2 IN ('SENT', 'CONFIRMED') AND sent_at IS NULL THEN now() ELSE sent_at END,
			confirmed_at = CASE WHEN $2 = 'CONFIRMED' AND confirmed_at IS NULL THEN now() ELSE confirmed_at END,
			updated_at = now()
		WHERE id = $1 AND status NOT IN ('CONFIRMED', 'FAILED')
		RETURNING ` + withdrawalColumns
	w, err := scanWithdrawal(r.db.QueryRow(ctx, query,
		withdrawalID, params.Status, params.ProviderWithdrawalID, params.TxHash,
		decimal.NullDecimal{Decimal: deref(params.Fee), Valid: params.Fee != nil},
		params.LastError,
	))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return r.FindWithdrawalByID(ctx, withdrawalID)
}

// ReviveWithdrawal is the manual-retry path: only FAILED and PENDING rows may
// be re-submitted to the provider.
func (r *PostgresRepository) ReviveWithdrawal(ctx context.Context, withdrawalID uuid.UUID, params UpdateWithdrawalParams) (*domain.Withdrawal, error) {
	query := `
		UPDATE withdrawals SET
			status = $2,
			provider_withdrawal_id = COALESCE($3, provider_withdrawal_id),
			tx_hash = COALESCE($4, tx_hash),
			fee = COALESCE($5, fee),
			last_error = NULL,
			updated_at = now()
		WHERE id = $1 AND status IN ('FAILED', 'PENDING')
		RETURNING ` + withdrawalColumns
	w, err := scanWithdrawal(r.db.QueryRow(ctx, query,
		withdrawalID, params.Status, params.ProviderWithdrawalID, params.TxHash,
		decimal.NullDecimal{Decimal: deref(params.Fee), Valid: params.Fee != nil},
	))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, findErr := r.FindWithdrawalByID(ctx, withdrawalID); findErr != nil {
		return nil, findErr
	}
	return nil, ErrWithdrawalNotRetryable
}

func (r *PostgresRepository) IncrementWithdrawalRetry(ctx context.Context, withdrawalID uuid.UUID, lastError string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`UPDATE withdrawals SET retry_count = retry_count + 1, last_error = $2, updated_at = now() WHERE id = $1 RETURNING retry_count`,
		withdrawalID, lastError,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrWithdrawalNotFound
	}
	return count, err
}

func (r *PostgresRepository) ListWithdrawalsByStatus(ctx context.Context, statuses []domain.WithdrawalStatus, limit int) ([]domain.Withdrawal, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE status = ANY($1) ORDER BY created_at ASC LIMIT $2`
	rows, err := r.db.Query(ctx, query, statusStrings(statuses), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []domain.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, *w)
	}
	return withdrawals, rows.Err()
}

const webhookEventColumns = `id, provider_event_id, event_type, raw_payload, signature, status, donation_id, error, received_at, processed_at`

func scanWebhookEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	err := row.Scan(
		&e.ID, &e.ProviderEventID, &e.EventType, &e.RawPayload, &e.Signature,
		&e.Status, &e.DonationID, &e.Error, &e.ReceivedAt, &e.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateWebhookEvent persists an inbound notification. The unique
// provider_event_id constraint is the sole dedup mechanism for webhooks.
func (r *PostgresRepository) CreateWebhookEvent(ctx context.Context, event *domain.WebhookEvent) (*domain.WebhookEvent, bool, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO webhook_events (id, provider_event_id, event_type, raw_payload, signature, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_event_id) DO NOTHING
		RETURNING ` + webhookEventColumns
	created, err := scanWebhookEvent(r.db.QueryRow(ctx, query,
		event.ID, event.ProviderEventID, event.EventType, event.RawPayload,
		event.Signature, event.Status,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	existing, err := r.FindWebhookEventByProviderID(ctx, event.ProviderEventID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepository) FindWebhookEventByProviderID(ctx context.Context, providerEventID string) (*domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE provider_event_id = $1`
	e, err := scanWebhookEvent(r.db.QueryRow(ctx, query, providerEventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWebhookEventNotFound
	}
	return e, err
}

func (r *PostgresRepository) MarkWebhookEventProcessed(ctx context.Context, eventID uuid.UUID, donationID *uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE webhook_events SET status = 'PROCESSED', donation_id = COALESCE($2, donation_id), processed_at = now() WHERE id = $1`,
		eventID, donationID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWebhookEventNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkWebhookEventFailed(ctx context.Context, eventID uuid.UUID, errText string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE webhook_events SET status = 'FAILED', error = $2 WHERE id = $1`,
		eventID, errText,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWebhookEventNotFound
	}
	return nil
}

func (r *PostgresRepository) ListWebhookEventsByDonationID(ctx context.Context, donationID uuid.UUID) ([]domain.WebhookEvent, error) {
	query := `SELECT ` + webhookEventColumns + ` FROM webhook_events WHERE donation_id = $1 ORDER BY received_at DESC`
	rows, err := r.db.Query(ctx, query, donationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// PurgeProcessedWebhookEvents deletes processed events older than the
// retention cutoff and reports how many rows were removed.
func (r *PostgresRepository) PurgeProcessedWebhookEvents(ctx context.Context, receivedBefore time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM webhook_events WHERE status = 'PROCESSED' AND received_at < $1`,
		receivedBefore,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
