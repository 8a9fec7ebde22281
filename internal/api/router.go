/**
 * @description
 * This file sets up the HTTP router for the ledger service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * the standard middleware stack plus JWT authorization.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authorization.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Route("/cases", func(r chi.Router) {
			r.Post("/", h.CreateCaseHandler)
			r.Get("/{id}", h.GetCaseHandler)
			r.Get("/{id}/transitions", h.GetCaseTransitionsHandler)
			r.Get("/{id}/status", h.GetCaseStatusHistoryHandler)
			r.Patch("/{id}/status", h.ChangeCaseStatusHandler)
			r.Post("/{id}/status", h.CaseStatusActionHandler)
			r.Get("/{id}/contributions", h.ListCaseContributionsHandler)
			r.Post("/{id}/reconcile", h.ReconcileCaseHandler)
		})

		r.Route("/contributions", func(r chi.Router) {
			r.Post("/", h.CreateContributionHandler)
			r.Post("/batch", h.BatchDecisionHandler)
		})
	})

	return r
}
