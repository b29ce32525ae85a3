package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all harvest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/harvest", func(r chi.Router) {
		r.Get("/state", h.HandleGetState)
		r.Get("/pending", h.HandleGetPending)
		r.Get("/history", h.HandleGetHistory)
	})
}
