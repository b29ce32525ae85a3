package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the vault operation routes. The operator
// middleware guards the keeper entry points only; deposit and withdraw
// stay open because any account moves its own capital through them.
func (h *Handler) RegisterRoutes(r chi.Router, operator func(http.Handler) http.Handler) {
	r.Route("/vault", func(r chi.Router) {
		r.Post("/deposit", h.HandleDeposit)
		r.Post("/withdraw", h.HandleWithdraw)
		r.Get("/status", h.HandleGetStatus)
		r.Get("/fees", h.HandleGetFees)

		r.Group(func(r chi.Router) {
			r.Use(operator)
			r.Post("/yield-loop", h.HandleRunYieldLoop)
			r.Post("/epoch", h.HandleTriggerEpoch)
		})
	})
}

// RegisterGovernanceRoutes registers the governance routes separately so the
// server can wrap them in the governance capability middleware.
func (h *Handler) RegisterGovernanceRoutes(r chi.Router) {
	r.Route("/governance", func(r chi.Router) {
		r.Post("/threshold", h.HandleSetThreshold)
		r.Post("/fee", h.HandleSetFeeRate)
		r.Post("/treasury-fraction", h.HandleSetTreasuryFraction)
		r.Post("/min-deposit", h.HandleSetMinDeposit)
		r.Post("/compound-periods", h.HandleSetCompoundPeriods)
		r.Post("/partners", h.HandleAddPartner)
		r.Delete("/partners/{id}", h.HandleRemovePartner)
		r.Post("/pause", h.HandlePause)
		r.Post("/unpause", h.HandleUnpause)
	})
}
