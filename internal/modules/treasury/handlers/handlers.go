// Package handlers provides HTTP handlers for treasury and partner queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/modules/treasury"
)

// Handler handles treasury HTTP requests
type Handler struct {
	service *treasury.Service
	log     zerolog.Logger
}

// NewHandler creates a new treasury handler
func NewHandler(service *treasury.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "treasury").Logger(),
	}
}

// HandleGetState handles GET /api/treasury/state
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.State()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read treasury state")
		http.Error(w, "Failed to read treasury state", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"reserve":           state.Reserve.String(),
			"last_epoch_marker": state.LastEpochMarker,
			"epoch_count":       state.EpochCount,
			"epoch_interval":    state.EpochInterval,
			"next_epoch_at":     state.LastEpochMarker + state.EpochInterval,
			"updated_at":        state.UpdatedAt,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetPartners handles GET /api/treasury/partners
func (h *Handler) HandleGetPartners(w http.ResponseWriter, r *http.Request) {
	partners, err := h.service.Repo().ListPartners()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query partners")
		http.Error(w, "Failed to query partners", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(partners))
	for _, p := range partners {
		items = append(items, map[string]interface{}{
			"partner_id":     p.ID,
			"boost_rate_bps": p.BoostRateBps,
			"active":         p.Active,
			"lifetime_units": p.LifetimeUnits.String(),
			"position":       p.Position,
			"added_at":       p.AddedAt,
		})
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"partners": items,
			"count":    len(items),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetEpochs handles GET /api/treasury/epochs
func (h *Handler) HandleGetEpochs(w http.ResponseWriter, r *http.Request) {
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	epochs, err := h.service.Repo().ListEpochs(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query epochs")
		http.Error(w, "Failed to query epochs", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(epochs))
	for _, e := range epochs {
		items = append(items, map[string]interface{}{
			"id":              e.ID,
			"reserve_spent":   e.ReserveSpent.String(),
			"units_purchased": e.UnitsPurchased.String(),
			"partner_count":   e.PartnerCount,
			"per_partner":     e.PerPartner.String(),
			"remainder":       e.Remainder.String(),
			"settled_at":      e.SettledAt,
		})
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"epochs": items,
			"count":  len(items),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetEpochPayouts handles GET /api/treasury/epochs/{id}/payouts
func (h *Handler) HandleGetEpochPayouts(w http.ResponseWriter, r *http.Request) {
	epochID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid epoch id", http.StatusBadRequest)
		return
	}

	payouts, err := h.service.Repo().ListPayouts(epochID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query epoch payouts")
		http.Error(w, "Failed to query epoch payouts", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(payouts))
	for _, p := range payouts {
		items = append(items, map[string]interface{}{
			"partner_id": p.PartnerID,
			"units":      p.Units.String(),
			"created_at": p.CreatedAt,
		})
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"epoch_id": epochID,
			"payouts":  items,
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
