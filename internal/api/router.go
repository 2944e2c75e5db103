/**
 * @description
 * This file sets up the HTTP router for the fees-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * middleware for logging, panic recovery, timeouts, and CORS. All operation
 * endpoints are POST: each request is a command against the ledger, not a
 * resource fetch.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser frontend.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the fees-service routes.
func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Fees service is healthy"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/students", h.CreateStudentHandler)
		r.Post("/payments/cash", h.CashPaymentHandler)
		r.Post("/adjustments", h.FeeAdjustmentHandler)
		r.Post("/config", h.UpdateConfigHandler)
		r.Post("/users/password", h.ChangePasswordHandler)

		r.Route("/payments/zbpay", func(r chi.Router) {
			r.Post("/initiate", h.InitiateZbPayHandler)
			r.Post("/status", h.CheckZbPayStatusHandler)
			r.Post("/webhook", h.ZbPayWebhookHandler)
		})
	})

	return r
}
