package optimizer

import (
	"math/big"

	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Optimize runs the five-step allocation pipeline:
//
//  1. Deduct each venue's fee from its gross rate.
//  2. Normalize both net rates to a common annual basis.
//  3. Compute the risk-adjusted split (percentages summing to exactly 100).
//  4. Project absolute yield per venue via checked compound growth.
//  5. Blend the two net rates into one capital-weighted figure.
//
// Every intermediate value uses checked arithmetic; on any error the caller
// aborts the current cycle rather than proceeding on corrupt math.
func Optimize(req Request) (*Response, error) {
	if req.Principal == nil || req.Principal.Sign() == 0 {
		return nil, fixedmath.ErrInvalidInput
	}
	if !fixedmath.ValidAmount(req.Principal) {
		return nil, fixedmath.ErrInvalidInput
	}
	if req.ProjectionPeriods == 0 {
		return nil, fixedmath.ErrInvalidInput
	}
	if !fixedmath.ValidBps(req.FeeABps) || !fixedmath.ValidBps(req.FeeBBps) {
		return nil, fixedmath.ErrInvalidInput
	}

	// Step 1: fees come off the rate, never the principal
	netA := netRateBps(req.RateABps, req.FeeABps)
	netB := netRateBps(req.RateBBps, req.FeeBBps)

	// Step 2: annualize before comparing
	annualA, err := fixedmath.Annualize(netA, req.PeriodASeconds)
	if err != nil {
		return nil, err
	}
	annualB, err := fixedmath.Annualize(netB, req.PeriodBSeconds)
	if err != nil {
		return nil, err
	}

	// Step 3: risk-adjusted split
	pctA, pctB, err := fixedmath.OptimalSplit(annualA, annualB, req.RiskA, req.RiskB)
	if err != nil {
		return nil, err
	}

	// Step 4: project each leg at its net annual rate.
	// Venue B takes the subtraction remainder so the legs sum to the
	// principal exactly.
	principalA, err := fixedmath.MulDiv(req.Principal, new(big.Int).SetUint64(pctA), big.NewInt(100))
	if err != nil {
		return nil, err
	}
	principalB, err := fixedmath.CheckedSub(req.Principal, principalA)
	if err != nil {
		return nil, err
	}

	finalA, err := fixedmath.Compound(principalA, annualA, req.ProjectionPeriods)
	if err != nil {
		return nil, err
	}
	finalB, err := fixedmath.Compound(principalB, annualB, req.ProjectionPeriods)
	if err != nil {
		return nil, err
	}
	total, err := fixedmath.CheckedAdd(finalA, finalB)
	if err != nil {
		return nil, err
	}
	expectedYield, err := fixedmath.CheckedSub(total, req.Principal)
	if err != nil {
		return nil, err
	}

	// Step 5: capital-weighted blended rate
	blended, err := fixedmath.WeightedAverage(
		[]*big.Int{new(big.Int).SetUint64(uint64(annualA)), new(big.Int).SetUint64(uint64(annualB))},
		[]*big.Int{new(big.Int).SetUint64(pctA), new(big.Int).SetUint64(pctB)},
	)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		UseVenueA:      pctA > 0,
		UseVenueB:      pctB > 0,
		PctA:           pctA,
		PctB:           pctB,
		BlendedRateBps: uint32(blended.Uint64()),
		ExpectedYield:  expectedYield,
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Validate checks the structural invariants every recommendation must hold.
// The router re-runs this on anything it receives before moving capital.
func (r *Response) Validate() error {
	if r.PctA+r.PctB != 100 {
		return domain.ErrInvalidAllocation
	}
	if !r.UseVenueA && !r.UseVenueB {
		return domain.ErrInvalidAllocation
	}
	if r.UseVenueA != (r.PctA > 0) || r.UseVenueB != (r.PctB > 0) {
		return domain.ErrInvalidAllocation
	}
	return nil
}

// SplitAmount slices a total by the allocation percentages. Venue B takes
// the subtraction remainder so the parts always sum to the input exactly.
func (r *Response) SplitAmount(total *big.Int) (*big.Int, *big.Int, error) {
	amountA, err := fixedmath.MulDiv(total, new(big.Int).SetUint64(r.PctA), big.NewInt(100))
	if err != nil {
		return nil, nil, err
	}
	amountB, err := fixedmath.CheckedSub(total, amountA)
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// netRateBps deducts a venue fee from its gross rate. The result can never
// exceed the gross rate, so uint64 intermediates suffice.
func netRateBps(grossBps, feeBps uint32) uint32 {
	fee := uint64(grossBps) * uint64(feeBps) / fixedmath.BpsDenominator
	return grossBps - uint32(fee)
}
