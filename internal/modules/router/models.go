// Package router splits harvested capital across the two external venues
// per the optimizer's recommendation and dispatches the deployment
// requests. Execution state is journaled before anything leaves the vault.
package router

import "math/big"

// State is the singleton router row in vault.db
type State struct {
	ExecutionCount      int64
	LastExecutionMarker int64
	UpdatedAt           int64
}

// Dispatch statuses
const (
	StatusSubmitted = "submitted"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Dispatch is one journaled remote-deployment request
type Dispatch struct {
	ID              string
	Venue           string
	Destination     string
	Beneficiary     string
	Amount          *big.Int
	ExecutionBudget *big.Int
	Status          string
	CreatedAt       int64
}

// Result is what one routing pass produced
type Result struct {
	AmountA        *big.Int
	AmountB        *big.Int
	BlendedRateBps uint32
	DispatchIDs    []string
}
