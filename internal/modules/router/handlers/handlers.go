// Package handlers provides HTTP handlers for capital routing queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/modules/router"
)

// Handler handles router HTTP requests
type Handler struct {
	service *router.Service
	log     zerolog.Logger
}

// NewHandler creates a new router handler
func NewHandler(service *router.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "router").Logger(),
	}
}

// HandleGetState handles GET /api/router/state
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.State()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read router state")
		http.Error(w, "Failed to read router state", http.StatusInternalServerError)
		return
	}

	venueA, venueB := h.service.Venues()

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"execution_count":       state.ExecutionCount,
			"last_execution_marker": state.LastExecutionMarker,
			"updated_at":            state.UpdatedAt,
			"venues": []map[string]interface{}{
				{"id": venueA.ID, "destination": venueA.Destination, "fee_bps": venueA.FeeBps},
				{"id": venueB.ID, "destination": venueB.Destination, "fee_bps": venueB.FeeBps},
			},
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetDispatches handles GET /api/router/dispatches
func (h *Handler) HandleGetDispatches(w http.ResponseWriter, r *http.Request) {
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	venue := r.URL.Query().Get("venue")

	dispatches, err := h.service.Repo().ListDispatches(venue, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query dispatch journal")
		http.Error(w, "Failed to query dispatch journal", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(dispatches))
	for _, d := range dispatches {
		items = append(items, map[string]interface{}{
			"id":               d.ID,
			"venue":            d.Venue,
			"destination":      d.Destination,
			"beneficiary":      d.Beneficiary,
			"amount":           d.Amount.String(),
			"execution_budget": d.ExecutionBudget.String(),
			"status":           d.Status,
			"created_at":       d.CreatedAt,
		})
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"dispatches": items,
			"count":      len(items),
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
