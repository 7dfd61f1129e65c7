package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the loopback router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/pending", h.Pending)
		r.Post("/sync", h.TriggerSync)
		r.Post("/bootstrap", h.Bootstrap)
		r.Post("/retry", h.RetryFailed)
		r.Post("/media/{id}/retry", h.RetryMedia)
	})

	return r
}
