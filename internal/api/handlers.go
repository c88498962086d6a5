/**
 * @description
 * This file contains the HTTP handlers for the donation-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/apperr: For service logic, models,
 *   and the error taxonomy.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/resgateprime/donation-service/internal/app"
	"github.com/resgateprime/donation-service/internal/apperr"
	"github.com/resgateprime/donation-service/internal/config"
	"github.com/resgateprime/donation-service/internal/domain"
	"github.com/resgateprime/donation-service/internal/pix"
)

// Limit webhook bodies so a hostile sender cannot exhaust memory.
const maxWebhookBodyBytes = 1 << 20

// DonationHandlers holds the application service that handlers will use.
type DonationHandlers struct {
	service *app.Service
	limiter *app.RedisRateLimiter
	cfg     config.Config
	logger  *slog.Logger
}

// NewDonationHandlers creates a new instance of DonationHandlers.
func NewDonationHandlers(service *app.Service, limiter *app.RedisRateLimiter, cfg config.Config, logger *slog.Logger) *DonationHandlers {
	return &DonationHandlers{
		service: service,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// PixWebhookHandler receives payment notifications from the PIX provider.
// Deliveries are rate limited per source IP, authenticated by HMAC signature
// and only then handed to the intake pipeline. Invalid payloads are rejected
// before anything is persisted.
func (h *DonationHandlers) PixWebhookHandler(w http.ResponseWriter, r *http.Request) {
	subject := clientIP(r)

	allowed, retryAfter, err := h.limiter.Allow(r.Context(), subject, h.cfg.RateLimitMaxRequests, h.cfg.RateLimitWindow())
	if err != nil {
		h.logger.Error("rate limiter unavailable, allowing request", "error", err)
	}
	if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	if !verifyWebhookSignature(r, body, h.cfg.WebhookSecret) {
		h.logger.Warn("webhook rejected", "reason", "invalid signature or timestamp", "ip", subject)
		h.writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var payload domain.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "Malformed JSON payload")
		return
	}
	if payload.ID == "" || payload.Type == "" {
		h.writeError(w, http.StatusBadRequest, "Payload requires id and type")
		return
	}

	result, err := h.service.IngestWebhook(r.Context(), payload, body, r.Header.Get(webhookSignatureHeader))
	if err != nil {
		h.logger.Error("webhook ingestion failed", "eventId", payload.ID, "error", err)
		h.writeError(w, apperr.StatusCode(err), errorMessage(err, "Failed to process webhook"))
		return
	}

	response := map[string]any{"received": true}
	if result.Duplicate {
		response["duplicate"] = true
	}
	h.writeJSON(w, http.StatusOK, response)
}

// AdminReconcileHandler lets operators force a reconciliation sweep. The
// checks are enqueued rather than run inline so the request returns fast.
func (h *DonationHandlers) AdminReconcileHandler(w http.ResponseWriter, r *http.Request) {
	orders, withdrawals, err := h.service.EnqueueChecks(r.Context())
	if err != nil {
		h.logger.Error("reconcile enqueue failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to enqueue reconciliation checks")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"reconciled": map[string]int{
			"orders":      orders,
			"withdrawals": withdrawals,
		},
	})
}

// CronWorkerHandler drains the job queues. It backs deployments where the
// worker is driven by an external cron service instead of the in-process
// scheduler.
func (h *DonationHandlers) CronWorkerHandler(w http.ResponseWriter, r *http.Request) {
	processed, err := h.service.RunQueues(r.Context(), h.cfg.WorkerBatchSize)
	if err != nil {
		h.logger.Error("cron worker run failed", "processed", processed, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Worker run failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": processed,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// CronReconcileHandler runs a full reconciliation sweep inline.
func (h *DonationHandlers) CronReconcileHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.logger.Error("cron reconcile run failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Reconciliation run failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"result":    result,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListDonationsHandler serves the paginated dashboard listing with optional
// status and date-range filters.
func (h *DonationHandlers) ListDonationsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := domain.DonationListOptions{
		Status: domain.DonationStatus(query.Get("status")),
	}
	if page, err := strconv.Atoi(query.Get("page")); err == nil {
		opts.Page = page
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		opts.Limit = limit
	}
	if start, err := time.Parse(time.RFC3339, query.Get("startDate")); err == nil {
		opts.StartDate = &start
	}
	if end, err := time.Parse(time.RFC3339, query.Get("endDate")); err == nil {
		opts.EndDate = &end
	}

	pageResult, err := h.service.ListDonations(r.Context(), opts)
	if err != nil {
		h.logger.Error("donation listing failed", "error", err)
		h.writeError(w, apperr.StatusCode(err), "Failed to list donations")
		return
	}

	h.writeJSON(w, http.StatusOK, pageResult)
}

// GetDonationHandler serves the full detail view for a single donation.
func (h *DonationHandlers) GetDonationHandler(w http.ResponseWriter, r *http.Request) {
	donationID, err := uuid.Parse(chi.URLParam(r, "donationID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid donation ID format")
		return
	}

	detail, err := h.service.GetDonationDetail(r.Context(), donationID)
	if err != nil {
		h.writeError(w, apperr.StatusCode(err), errorMessage(err, "Failed to load donation"))
		return
	}

	h.writeJSON(w, http.StatusOK, detail)
}

// PixKeyHandler exposes the configured PIX key together with a ready-to-use
// EMV "copia e cola" payload so the frontend can render a QR code.
func (h *DonationHandlers) PixKeyHandler(w http.ResponseWriter, r *http.Request) {
	if h.cfg.PixKey == "" {
		h.writeError(w, http.StatusNotFound, "PIX key is not configured")
		return
	}

	payload := pix.GeneratePayload(pix.Data{
		PixKey:       h.cfg.PixKey,
		MerchantName: h.cfg.MerchantName,
		MerchantCity: h.cfg.MerchantCity,
	})

	h.writeJSON(w, http.StatusOK, map[string]string{
		"pixKey":  h.cfg.PixKey,
		"payload": payload,
	})
}

// clientIP resolves the originating IP, honouring the forwarding headers set
// by the reverse proxy in front of the service.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}

// writeJSON is a helper for writing JSON responses.
func (h *DonationHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Error("failed to encode response", "error", err)
		}
	}
}

// writeError writes a standard JSON error response.
func (h *DonationHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// errorMessage exposes classified error messages to the client and hides
// everything else behind the fallback.
func errorMessage(err error, fallback string) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return fallback
}
