package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all router routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/router", func(r chi.Router) {
		r.Get("/state", h.HandleGetState)
		r.Get("/dispatches", h.HandleGetDispatches)
	})
}
