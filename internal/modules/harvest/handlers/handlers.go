// Package handlers provides HTTP handlers for harvest state queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/modules/harvest"
)

// Handler handles harvest HTTP requests
type Handler struct {
	service *harvest.Service
	log     zerolog.Logger
}

// NewHandler creates a new harvest handler
func NewHandler(service *harvest.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "harvest").Logger(),
	}
}

// HandleGetState handles GET /api/harvest/state
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.State()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read harvest state")
		http.Error(w, "Failed to read harvest state", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"threshold":           state.Threshold.String(),
			"last_harvest_marker": state.LastHarvestMarker,
			"lifetime_harvested":  state.LifetimeHarvested.String(),
			"updated_at":          state.UpdatedAt,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetPending handles GET /api/harvest/pending.
// Reads the upstream reward source, so it can fail with 502.
func (h *Handler) HandleGetPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.PendingReward(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read pending reward")
		http.Error(w, "Failed to read pending reward", http.StatusBadGateway)
		return
	}

	state, err := h.service.State()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read harvest state")
		http.Error(w, "Failed to read harvest state", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"pending":   pending.String(),
			"threshold": state.Threshold.String(),
			"ready":     pending.Cmp(state.Threshold) >= 0,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetHistory handles GET /api/harvest/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	records, err := h.service.Repo().ListHarvests(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query harvest history")
		http.Error(w, "Failed to query harvest history", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		items = append(items, map[string]interface{}{
			"id":         rec.ID,
			"gross":      rec.Gross.String(),
			"fee":        rec.Fee.String(),
			"net":        rec.Net.String(),
			"marker":     rec.Marker,
			"created_at": rec.CreatedAt,
		})
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"harvests": items,
			"count":    len(items),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
