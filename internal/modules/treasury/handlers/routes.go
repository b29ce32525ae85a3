package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all treasury routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/treasury", func(r chi.Router) {
		r.Get("/state", h.HandleGetState)
		r.Get("/partners", h.HandleGetPartners)
		r.Get("/epochs", h.HandleGetEpochs)
		r.Get("/epochs/{id}/payouts", h.HandleGetEpochPayouts)
	})
}
