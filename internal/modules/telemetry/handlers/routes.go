package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the telemetry routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/telemetry", func(r chi.Router) {
		r.Get("/observations", h.HandleGetObservations)
		r.Get("/snapshots", h.HandleGetSnapshots)
		r.Post("/preview", h.HandlePreview)
	})
}
