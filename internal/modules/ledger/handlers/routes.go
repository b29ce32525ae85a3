package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/pool", h.HandleGetPool)
		r.Get("/rate", h.HandleGetRate)
		r.Get("/holders/{account}", h.HandleGetHolder)
		r.Get("/events", h.HandleGetEvents)
	})
}
