package domain

import (
	"context"
	"math/big"
)

// RewardSource is the upstream staking position the harvest gate tracks.
// PendingReward is a pure read; ClaimReward moves the accrued reward into
// the vault's custody and returns the harvested amount.
type RewardSource interface {
	PendingReward(ctx context.Context, account string) (*big.Int, error)
	ClaimReward(ctx context.Context) (*big.Int, error)
}

// AssetSurface is the balance/transfer surface of the base asset.
// Transfer moves funds out of the vault account; Pull collects a deposit
// from a holder's funded gateway balance into the vault account.
type AssetSurface interface {
	BalanceOf(ctx context.Context, account string) (*big.Int, error)
	Transfer(ctx context.Context, to string, amount *big.Int) error
	Pull(ctx context.Context, from string, amount *big.Int) error
}

// DispatchRequest is one self-contained remote-deployment instruction.
// The core fills in every field; encoding and transport happen downstream.
type DispatchRequest struct {
	ID              string   // unique request id, journaled before submission
	Venue           string   // venue identifier the capital is deployed to
	Destination     string   // remote system address understood by the executor
	Beneficiary     string   // account credited on the remote side
	Amount          *big.Int // capital to deploy, 18-decimal fixed point
	ExecutionBudget *big.Int // fee budget for remote execution
}

// RemoteExecutor carries deployment instructions to external venues.
// Submission is fire-and-forget: the only signal back is whether the
// request was accepted.
type RemoteExecutor interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}

// UnitPurchaser executes the treasury's recurring infrastructure purchase,
// spending the full amount and returning the number of units acquired.
type UnitPurchaser interface {
	PurchaseUnits(ctx context.Context, spend *big.Int) (*big.Int, error)
}

// RateSample is one observed gross yield rate for a venue, quoted over the
// venue's native observation window.
type RateSample struct {
	Venue         string // venue identifier
	GrossRateBps  uint32 // gross yield over the window, basis points
	PeriodSeconds uint64 // observation window length
}

// RateOracle reports current venue yield telemetry. One sample per venue
// per call; sampling cadence is the caller's concern.
type RateOracle interface {
	VenueRates(ctx context.Context) ([]RateSample, error)
}
