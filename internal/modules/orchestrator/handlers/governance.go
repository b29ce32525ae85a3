package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ThresholdRequest is the POST /api/governance/threshold body
type ThresholdRequest struct {
	Value string `json:"value"`
}

// HandleSetThreshold handles POST /api/governance/threshold
func (h *Handler) HandleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req ThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	value, err := parseAmount(req.Value)
	if err != nil {
		http.Error(w, "Invalid value", http.StatusBadRequest)
		return
	}

	if err := h.service.SetHarvestThreshold(value, time.Now().Unix()); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.log.Info().Str("threshold", value.String()).Msg("Harvest threshold updated")
	h.writeAck(w, "threshold updated")
}

// FeeRequest is the POST /api/governance/fee body
type FeeRequest struct {
	FeeRateBps uint32 `json:"fee_rate_bps"`
	Recipient  string `json:"recipient"`
}

// HandleSetFeeRate handles POST /api/governance/fee
func (h *Handler) HandleSetFeeRate(w http.ResponseWriter, r *http.Request) {
	var req FeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.SetFeeRate(req.FeeRateBps, req.Recipient, time.Now().Unix()); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.log.Info().Uint32("fee_rate_bps", req.FeeRateBps).Str("recipient", req.Recipient).Msg("Fee config updated")
	h.writeAck(w, "fee config updated")
}

// TreasuryFractionRequest is the POST /api/governance/treasury-fraction body
type TreasuryFractionRequest struct {
	TreasuryBps uint32 `json:"treasury_bps"`
}

// HandleSetTreasuryFraction handles POST /api/governance/treasury-fraction
func (h *Handler) HandleSetTreasuryFraction(w http.ResponseWriter, r *http.Request) {
	var req TreasuryFractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.SetTreasuryFraction(req.TreasuryBps, time.Now().Unix()); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.log.Info().Uint32("treasury_bps", req.TreasuryBps).Msg("Treasury fraction updated")
	h.writeAck(w, "treasury fraction updated")
}

// MinDepositRequest is the POST /api/governance/min-deposit body
type MinDepositRequest struct {
	Amount string `json:"amount"`
}

// HandleSetMinDeposit handles POST /api/governance/min-deposit
func (h *Handler) HandleSetMinDeposit(w http.ResponseWriter, r *http.Request) {
	var req MinDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	if err := h.service.SetMinDeposit(amount, time.Now().Unix()); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.log.Info().Str("min_deposit", amount.String()).Msg("Minimum deposit updated")
	h.writeAck(w, "minimum deposit updated")
}

// CompoundPeriodsRequest is the POST /api/governance/compound-periods body
type CompoundPeriodsRequest struct {
	Periods uint32 `json:"periods"`
}

// HandleSetCompoundPeriods handles POST /api/governance/compound-periods
func (h *Handler) HandleSetCompoundPeriods(w http.ResponseWriter, r *http.Request) {
	var req CompoundPeriodsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.SetCompoundPeriods(req.Periods, time.Now().Unix()); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.log.Info().Uint32("periods", req.Periods).Msg("Compound periods updated")
	h.writeAck(w, "compound periods updated")
}

// PartnerRequest is the POST /api/governance/partners body
type PartnerRequest struct {
	PartnerID    string `json:"partner_id"`
	BoostRateBps uint32 `json:"boost_rate_bps"`
}

// HandleAddPartner handles POST /api/governance/partners
func (h *Handler) HandleAddPartner(w http.ResponseWriter, r *http.Request) {
	var req PartnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.AddPartner(req.PartnerID, req.BoostRateBps, time.Now().Unix()); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.log.Info().Str("partner_id", req.PartnerID).Uint32("boost_rate_bps", req.BoostRateBps).Msg("Partner added")
	h.writeAck(w, "partner added")
}

// HandleRemovePartner handles DELETE /api/governance/partners/{id}
func (h *Handler) HandleRemovePartner(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "id")
	if partnerID == "" {
		http.Error(w, "Missing partner id", http.StatusBadRequest)
		return
	}

	if err := h.service.RemovePartner(partnerID, time.Now().Unix()); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.log.Info().Str("partner_id", partnerID).Msg("Partner removed")
	h.writeAck(w, "partner removed")
}

// HandlePause handles POST /api/governance/pause
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Pause(time.Now().Unix()); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.writeAck(w, "vault paused")
}

// HandleUnpause handles POST /api/governance/unpause
func (h *Handler) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unpause(time.Now().Unix()); err != nil {
		http.Error(w, err.Error(), statusFromError(err))
		return
	}
	h.writeAck(w, "vault unpaused")
}

// writeAck writes a minimal success acknowledgement
func (h *Handler) writeAck(w http.ResponseWriter, message string) {
	response := map[string]interface{}{
		"data": map[string]interface{}{
			"status":  "ok",
			"message": message,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	h.writeJSON(w, http.StatusOK, response)
}
