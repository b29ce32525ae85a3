// Package handlers exposes the telemetry read surface and the allocation
// preview dry-run.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/internal/modules/telemetry"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Handler handles telemetry HTTP requests
type Handler struct {
	service *telemetry.Service
	log     zerolog.Logger
}

// NewHandler creates a new telemetry handler
func NewHandler(service *telemetry.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "telemetry").Logger(),
	}
}

// HandleGetObservations handles GET /api/telemetry/observations?venue=&limit=
func (h *Handler) HandleGetObservations(w http.ResponseWriter, r *http.Request) {
	venue := r.URL.Query().Get("venue")
	if venue == "" {
		http.Error(w, "venue parameter is required", http.StatusBadRequest)
		return
	}

	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	observations, err := h.service.Observations(venue, limit)
	if err != nil {
		h.log.Error().Err(err).Str("venue", venue).Msg("Failed to query observations")
		http.Error(w, "Failed to query observations", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"venue":        venue,
			"observations": observations,
			"count":        len(observations),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetSnapshots handles GET /api/telemetry/snapshots?venue=&limit=
func (h *Handler) HandleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	venue := r.URL.Query().Get("venue")

	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	snapshots, err := h.service.Snapshots(venue, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query snapshots")
		http.Error(w, "Failed to query snapshots", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"snapshots": snapshots,
			"count":     len(snapshots),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// PreviewRequest is the POST /api/telemetry/preview body
type PreviewRequest struct {
	Principal         string `json:"principal"`
	ProjectionPeriods uint32 `json:"projection_periods,omitempty"`
}

// HandlePreview handles POST /api/telemetry/preview: a dry allocation run
// over current telemetry, touching no state.
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	principal, err := fixedmath.ParseAmount(req.Principal)
	if err != nil {
		http.Error(w, "Invalid principal", http.StatusBadRequest)
		return
	}
	periods := req.ProjectionPeriods
	if periods == 0 {
		periods = 12
	}

	optReq, resp, err := h.service.Preview(r.Context(), principal, periods)
	if err != nil {
		status := http.StatusInternalServerError
		switch domain.Classify(err) {
		case domain.KindValidation:
			status = http.StatusBadRequest
		case domain.KindPrecondition:
			status = http.StatusConflict
		}
		h.log.Warn().Err(err).Msg("Allocation preview failed")
		http.Error(w, err.Error(), status)
		return
	}

	amountA, amountB, err := resp.SplitAmount(principal)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to slice preview amounts")
		http.Error(w, "Failed to compute preview", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"pct_a":            resp.PctA,
			"pct_b":            resp.PctB,
			"amount_a":         amountA.String(),
			"amount_b":         amountB.String(),
			"blended_rate_bps": resp.BlendedRateBps,
			"expected_yield":   resp.ExpectedYield.String(),
			"inputs": map[string]interface{}{
				"rate_a_bps": optReq.RateABps,
				"rate_b_bps": optReq.RateBBps,
				"fee_a_bps":  optReq.FeeABps,
				"fee_b_bps":  optReq.FeeBBps,
				"risk_a":     optReq.RiskA,
				"risk_b":     optReq.RiskB,
			},
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
