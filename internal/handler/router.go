package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the API router with the global middleware stack.
func NewRouter(h *RegistrationHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(logger))          // structured access log
	r.Use(CORS)

	r.Get("/health", HealthCheck)
	r.Get("/workshops", h.ListWorkshops)
	r.Post("/fees/quote", h.Quote)

	r.Route("/registrants", func(r chi.Router) {
		r.Post("/", h.CreateRegistrant)
		r.Get("/{id}", h.GetRegistrant)
		r.Get("/{id}/quote", h.QuoteRegistrant)
		r.Put("/{id}/workshops", h.SelectWorkshops)
		r.Post("/{id}/cancel", h.CancelRegistrant)
		r.Post("/{id}/checkout", h.Checkout)
		r.Post("/{id}/payments/confirm", h.ConfirmPayment)
	})

	r.Post("/payments/callback", h.PaymentCallback)

	return r
}
