package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the settings routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.HandleGetAll)
		r.Put("/{key}", h.HandleUpdate)
		r.Post("/restart-service", h.HandleRestartService)
		r.Get("/cache-stats", h.HandleGetCacheStats)
		r.Post("/reset-cache", h.HandleResetCache)
	})
}
