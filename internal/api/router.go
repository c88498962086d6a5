/**
 * @description
 * This file sets up the HTTP router for the donation-service using the chi
 * library. It defines the API routes and wires them to their corresponding
 * handlers, applying authentication middleware per route group.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight, idiomatic router for Go HTTP services.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures a new chi router with all application routes.
func NewRouter(handlers *DonationHandlers, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Standard middleware stack.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint for monitoring.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public endpoints. Webhooks carry their own HMAC authentication and the
	// PIX key is intentionally world-readable.
	r.Post("/webhooks/pix", handlers.PixWebhookHandler)
	r.Get("/pix-key", handlers.PixKeyHandler)

	// Internal admin endpoints, guarded by the shared service secret.
	r.Group(func(r chi.Router) {
		r.Use(BearerTokenMiddleware(cfg.InternalAPISecret))
		r.Post("/admin/reconcile", handlers.AdminReconcileHandler)
	})

	// Cron trigger endpoints for externally scheduled runs.
	r.Group(func(r chi.Router) {
		r.Use(BearerTokenMiddleware(cfg.CronSecret))
		r.Get("/cron/worker", handlers.CronWorkerHandler)
		r.Get("/cron/reconcile", handlers.CronReconcileHandler)
	})

	// Dashboard read endpoints, reachable with either the internal secret or
	// a dashboard JWT.
	r.Group(func(r chi.Router) {
		r.Use(DashboardAuthMiddleware(cfg.InternalAPISecret, cfg.DashboardJWTSecret))
		r.Get("/donations", handlers.ListDonationsHandler)
		r.Get("/donations/{donationID}", handlers.GetDonationHandler)
	})

	return r
}

// RouterConfig carries the secrets the route groups authenticate with.
type RouterConfig struct {
	InternalAPISecret  string
	CronSecret         string
	DashboardJWTSecret string
}
