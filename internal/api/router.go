/**
 * @description
 * This file sets up the HTTP router for the cash-transfer-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * shared middleware stack.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// TransferRoutes creates and returns a new router for the cash-transfer service.
func TransferRoutes(h *TransferHandlers, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for request ids, logging, panic recovery, and timeouts.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/transfers", func(r chi.Router) {
		r.Post("/", h.CreateTransferHandler)
		r.Get("/fee", h.PreviewFeeHandler)
		r.Get("/limits", h.TransferLimitsHandler)
		r.Get("/{transactionID}", h.GetTransferHandler)
	})

	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Get("/daily-summary", h.DailySummaryHandler)
		r.Get("/transfers", h.ListTransfersHandler)
	})

	r.Get("/recipients/{phone}", h.LookupRecipientHandler)

	return r
}
