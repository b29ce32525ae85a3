// Package handlers exposes the vault entry points over HTTP: deposit,
// withdraw, the yield loop, the treasury epoch trigger, and the governance
// setters. Errors map to status codes through the domain taxonomy.
package handlers

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/internal/modules/orchestrator"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Handler handles vault HTTP requests
type Handler struct {
	service *orchestrator.Service
	log     zerolog.Logger
}

// NewHandler creates a new vault handler
func NewHandler(service *orchestrator.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "vault").Logger(),
	}
}

// statusFromError maps the domain taxonomy onto HTTP status codes:
// validation 400, precondition and slippage 409, external 502.
func statusFromError(err error) int {
	switch domain.Classify(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindPrecondition, domain.KindSlippage:
		return http.StatusConflict
	case domain.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseAmount parses a required base-unit amount field
func parseAmount(s string) (*big.Int, error) {
	return fixedmath.ParseAmount(s)
}

// parseOptionalAmount parses an optional base-unit amount field; empty
// means no minimum.
func parseOptionalAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return fixedmath.ParseAmount(s)
}

// DepositRequest is the POST /api/vault/deposit body
type DepositRequest struct {
	Account      string `json:"account"`
	Amount       string `json:"amount"`
	MinSharesOut string `json:"min_shares_out,omitempty"`
	Deadline     int64  `json:"deadline"`
}

// HandleDeposit handles POST /api/vault/deposit
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}
	minSharesOut, err := parseOptionalAmount(req.MinSharesOut)
	if err != nil {
		http.Error(w, "Invalid min_shares_out", http.StatusBadRequest)
		return
	}

	receipt, err := h.service.Deposit(r.Context(), req.Account, amount, minSharesOut, req.Deadline, time.Now().Unix())
	if err != nil {
		h.log.Warn().Err(err).Str("account", req.Account).Msg("Deposit rejected")
		http.Error(w, err.Error(), statusFromError(err))
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"shares_minted": receipt.SharesMinted.String(),
			"exchange_rate": receipt.ExchangeRate.String(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// WithdrawRequest is the POST /api/vault/withdraw body
type WithdrawRequest struct {
	Account     string `json:"account"`
	Shares      string `json:"shares"`
	MinAssetOut string `json:"min_asset_out,omitempty"`
	Deadline    int64  `json:"deadline"`
}

// HandleWithdraw handles POST /api/vault/withdraw
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	shares, err := parseAmount(req.Shares)
	if err != nil {
		http.Error(w, "Invalid shares", http.StatusBadRequest)
		return
	}
	minAssetOut, err := parseOptionalAmount(req.MinAssetOut)
	if err != nil {
		http.Error(w, "Invalid min_asset_out", http.StatusBadRequest)
		return
	}

	receipt, err := h.service.Withdraw(r.Context(), req.Account, shares, minAssetOut, req.Deadline, time.Now().Unix())
	if err != nil {
		h.log.Warn().Err(err).Str("account", req.Account).Msg("Withdrawal rejected")
		http.Error(w, err.Error(), statusFromError(err))
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"asset_out":     receipt.AssetOut.String(),
			"exchange_rate": receipt.ExchangeRate.String(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleRunYieldLoop handles POST /api/vault/yield-loop
func (h *Handler) HandleRunYieldLoop(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunYieldLoop(r.Context(), time.Now().Unix())
	if err != nil {
		h.log.Warn().Err(err).Msg("Yield loop failed")
		http.Error(w, err.Error(), statusFromError(err))
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"harvested":        result.Harvested.String(),
			"fee":              result.Fee.String(),
			"skimmed":          result.Skimmed.String(),
			"credited":         result.Credited.String(),
			"amount_a":         result.Routed.AmountA.String(),
			"amount_b":         result.Routed.AmountB.String(),
			"blended_rate_bps": result.Routed.BlendedRateBps,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// EpochRequest is the POST /api/vault/epoch body
type EpochRequest struct {
	MinAcceptableUnits string `json:"min_acceptable_units,omitempty"`
}

// HandleTriggerEpoch handles POST /api/vault/epoch
func (h *Handler) HandleTriggerEpoch(w http.ResponseWriter, r *http.Request) {
	var req EpochRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	minUnits, err := parseOptionalAmount(req.MinAcceptableUnits)
	if err != nil {
		http.Error(w, "Invalid min_acceptable_units", http.StatusBadRequest)
		return
	}

	settlement, err := h.service.TriggerTreasuryEpoch(r.Context(), minUnits, time.Now().Unix())
	if err != nil {
		h.log.Warn().Err(err).Msg("Epoch trigger failed")
		http.Error(w, err.Error(), statusFromError(err))
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"epoch_id":        settlement.EpochID,
			"reserve_spent":   settlement.ReserveSpent.String(),
			"units_purchased": settlement.UnitsPurchased.String(),
			"partner_count":   settlement.PartnerCount,
			"per_partner":     settlement.PerPartner.String(),
			"remainder":       settlement.Remainder.String(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetStatus handles GET /api/vault/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.State()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read core state")
		http.Error(w, "Failed to read core state", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"paused":                 state.Paused,
			"yield_loop_running":     state.YieldLoopRunning,
			"last_yield_loop_marker": state.LastYieldLoopMarker,
			"accrued_fees":           state.AccruedFees.String(),
			"fee_rate_bps":           state.FeeRateBps,
			"fee_recipient":          state.FeeRecipient,
			"treasury_bps":           state.TreasuryBps,
			"min_deposit":            state.MinDeposit.String(),
			"compound_periods":       state.CompoundPeriods,
			"updated_at":             state.UpdatedAt,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetFees handles GET /api/vault/fees
func (h *Handler) HandleGetFees(w http.ResponseWriter, r *http.Request) {
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	transfers, err := h.service.Repo().ListFeeTransfers(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query fee transfers")
		http.Error(w, "Failed to query fee transfers", http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(transfers))
	for _, ft := range transfers {
		items = append(items, map[string]interface{}{
			"id":         ft.ID,
			"amount":     ft.Amount.String(),
			"recipient":  ft.Recipient,
			"created_at": ft.CreatedAt,
		})
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"fee_transfers": items,
			"count":         len(items),
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
