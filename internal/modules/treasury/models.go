// Package treasury accumulates a skimmed fraction of each harvest into a
// reserve and, on a fixed cadence, spends the whole reserve on an external
// unit purchase distributed across the partner registry.
//
// Settlement follows the same intent-first discipline as the harvest gate:
// the reserve is zeroed and the epoch marker advanced before the external
// purchase goes out, and the surrounding transaction unwinds the advance if
// the purchase fails or underruns the caller's minimum.
package treasury

import "math/big"

// State is the singleton treasury row in vault.db.
type State struct {
	Reserve         *big.Int
	LastEpochMarker int64
	EpochCount      int64
	EpochInterval   int64
	UpdatedAt       int64
}

// Partner is one registry entry. Registration is append-only by id:
// removal flips Active and never deletes history, so Position and
// LifetimeUnits survive deactivation.
type Partner struct {
	ID            string
	BoostRateBps  uint32
	Active        bool
	LifetimeUnits *big.Int
	Position      int64
	AddedAt       int64
	UpdatedAt     int64
}

// Epoch is one settled epoch as journaled.
type Epoch struct {
	ID             int64
	ReserveSpent   *big.Int
	UnitsPurchased *big.Int
	PartnerCount   int64
	PerPartner     *big.Int
	Remainder      *big.Int
	SettledAt      int64
}

// Payout is one partner's share of a settled epoch.
type Payout struct {
	ID        int64
	EpochID   int64
	PartnerID string
	Units     *big.Int
	CreatedAt int64
}

// Settlement summarizes a completed TriggerEpoch call.
type Settlement struct {
	EpochID        int64
	ReserveSpent   *big.Int
	UnitsPurchased *big.Int
	PartnerCount   int
	PerPartner     *big.Int
	Remainder      *big.Int
}
