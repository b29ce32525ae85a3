// Package handlers provides HTTP handlers for share ledger queries.
package handlers

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/polkapulse/vault/internal/modules/ledger"
	"github.com/polkapulse/vault/internal/modules/settings"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service         *ledger.Service
	settingsService *settings.Service
	log             zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

// SetSettingsService wires the settings service used for display formatting
func (h *Handler) SetSettingsService(s *settings.Service) {
	h.settingsService = s
}

// displayDecimals reads the display_decimals setting, defaulting to 4
func (h *Handler) displayDecimals() int32 {
	if h.settingsService == nil {
		return 4
	}
	v, err := h.settingsService.Get("display_decimals")
	if err != nil {
		return 4
	}
	if f, ok := v.(float64); ok && f >= 0 && f <= fixedmath.Decimals {
		return int32(f)
	}
	return 4
}

// formatAmount renders a base-unit amount as a decimal string
func formatAmount(a *big.Int, places int32) string {
	return decimal.NewFromBigInt(a, -fixedmath.Decimals).StringFixed(places)
}

// HandleGetPool handles GET /api/ledger/pool
func (h *Handler) HandleGetPool(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read pool state")
		http.Error(w, "Failed to read pool state", http.StatusInternalServerError)
		return
	}

	places := h.displayDecimals()
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"total_shares":                snap.TotalShares.String(),
			"total_managed_asset":         snap.TotalManagedAsset.String(),
			"exchange_rate":               snap.ExchangeRate.String(),
			"total_shares_display":        formatAmount(snap.TotalShares, places),
			"total_managed_asset_display": formatAmount(snap.TotalManagedAsset, places),
			"exchange_rate_display":       formatAmount(snap.ExchangeRate, places),
			"holder_count":                snap.HolderCount,
			"updated_at":                  snap.UpdatedAt,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetRate handles GET /api/ledger/rate
func (h *Handler) HandleGetRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.service.CurrentRate()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute exchange rate")
		http.Error(w, "Failed to compute exchange rate", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"exchange_rate":         rate.String(),
			"exchange_rate_display": formatAmount(rate, h.displayDecimals()),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetHolder handles GET /api/ledger/holders/{account}
func (h *Handler) HandleGetHolder(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	if account == "" {
		http.Error(w, "Account is required", http.StatusBadRequest)
		return
	}

	shares, assetValue, err := h.service.HolderPosition(account)
	if err != nil {
		h.log.Error().Err(err).Str("account", account).Msg("Failed to read holder position")
		http.Error(w, "Failed to read holder position", http.StatusInternalServerError)
		return
	}

	places := h.displayDecimals()
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"account":             account,
			"shares":              shares.String(),
			"asset_value":         assetValue.String(),
			"shares_display":      formatAmount(shares, places),
			"asset_value_display": formatAmount(assetValue, places),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetEvents handles GET /api/ledger/events
func (h *Handler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	account := r.URL.Query().Get("account")

	events, err := h.service.Repo().ListShareEvents(account, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query share events")
		http.Error(w, "Failed to query share events", http.StatusInternalServerError)
		return
	}

	places := h.displayDecimals()
	items := make([]map[string]interface{}, 0, len(events))
	for _, ev := range events {
		items = append(items, map[string]interface{}{
			"id":                    ev.ID,
			"kind":                  ev.Kind,
			"account":               ev.Account,
			"shares":                ev.Shares.String(),
			"asset":                 ev.Asset.String(),
			"exchange_rate":         ev.ExchangeRate.String(),
			"exchange_rate_display": formatAmount(ev.ExchangeRate, places),
			"created_at":            ev.CreatedAt,
		})
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"events":  items,
			"count":   len(items),
			"account": account,
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
