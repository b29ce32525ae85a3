// Package optimizer computes the capital allocation split between the two
// external venues. It is a pure function of its inputs: zero storage reads,
// zero external calls, no clock, no floating point. Identical inputs always
// produce identical outputs, which is what makes yield-loop decisions
// auditable by replay.
package optimizer

import "math/big"

// Request carries every market input the optimizer needs. The caller
// assembles it; the optimizer never fetches data itself.
//
// Rates and fees are basis points. Risk scores are integers in [0, 10000].
// PeriodSeconds is the observation window each venue's rate was measured
// over; rates are normalized to a common annual basis before any
// comparison, so venues reporting over different windows stay comparable.
type Request struct {
	// Principal being allocated this cycle, 18-decimal fixed point.
	Principal *big.Int

	// Per-venue gross yield rates over their observation windows.
	RateABps uint32
	RateBBps uint32

	// Per-venue fees applied to gross yield.
	FeeABps uint32
	FeeBBps uint32

	// Per-venue risk scores. Higher = riskier; 10,000 wipes the venue out.
	RiskA uint32
	RiskB uint32

	// Observation window behind each venue's rate, in seconds.
	PeriodASeconds uint64
	PeriodBSeconds uint64

	// Number of discrete compounding intervals to project over.
	// 365 for daily compounding over one year, 12 for monthly.
	ProjectionPeriods uint32
}

// Response is the allocation recommendation the yield router acts on.
type Response struct {
	// Whether to dispatch capital to each venue.
	UseVenueA bool
	UseVenueB bool

	// Allocation percentages. PctA + PctB == 100 always.
	PctA uint64
	PctB uint64

	// Capital-weighted blended net annual rate across both venues.
	BlendedRateBps uint32

	// Expected absolute yield over the projection window, 18-decimal
	// fixed point. Total return for the window, not annualized.
	ExpectedYield *big.Int
}
