package fixedmath

import (
	"math"
	"math/big"
)

// Compound computes discrete compound growth: A = P × (1 + r/n)^n.
//
// principal is a fixed-point amount, rateBps the rate over the whole window
// in basis points, and periods the number of compounding intervals
// (365 for daily, 52 for weekly, 12 for monthly).
//
// The implementation multiplies iteratively instead of exponentiating so the
// cost per step stays flat and intermediate values stay inside the 128-bit
// ceiling. Each step applies
//
//	amount = amount × (10,000 × periods + rateBps) / (10,000 × periods)
//
// Zero principal returns zero; zero rate or zero periods returns the
// principal unchanged. The result includes the principal; subtract it to
// isolate the yield.
func Compound(principal *big.Int, rateBps uint32, periods uint32) (*big.Int, error) {
	if principal.Sign() == 0 {
		return Zero(), nil
	}
	if rateBps == 0 || periods == 0 {
		return new(big.Int).Set(principal), nil
	}

	denominator := new(big.Int).Mul(big.NewInt(BpsDenominator), big.NewInt(int64(periods)))
	numerator := new(big.Int).Add(denominator, big.NewInt(int64(rateBps)))

	amount := new(big.Int).Set(principal)
	for i := uint32(0); i < periods; i++ {
		product, err := CheckedMul(amount, numerator)
		if err != nil {
			return nil, err
		}
		amount.Quo(product, denominator)
	}

	return amount, nil
}

// Annualize converts a rate observed over an arbitrary window into an annual
// rate in basis points. Venues report yield over different windows (per block,
// per epoch, per week); no two rates may be compared before both are on the
// same annual axis.
//
//	annualBps = rateBps × SecondsPerYear / periodSeconds
//
// A zero window is a division error. A result above the uint32 ceiling means
// the observation is garbage and is rejected as overflow.
func Annualize(rateBps uint32, periodSeconds uint64) (uint32, error) {
	if periodSeconds == 0 {
		return 0, ErrDivisionByZero
	}

	annual := uint64(rateBps) * SecondsPerYear / periodSeconds
	if annual > math.MaxUint32 {
		return 0, ErrOverflow
	}

	return uint32(annual), nil
}

// FeeAdjustedYield deducts a venue's fee from a gross yield figure:
//
//	net = gross − gross × feeBps / 10,000
//
// Fees apply to yield only, never to principal. A fee above 100% is invalid.
func FeeAdjustedYield(gross *big.Int, feeBps uint32) (*big.Int, error) {
	if !ValidBps(feeBps) {
		return nil, ErrInvalidInput
	}
	if gross.Sign() == 0 || feeBps == 0 {
		return new(big.Int).Set(gross), nil
	}

	fee, err := MulBps(gross, feeBps)
	if err != nil {
		return nil, err
	}

	return CheckedSub(gross, fee)
}

// WeightedAverage computes Σ(value × weight) / Σweight.
//
// Used for the blended rate of a split allocation: 60% of capital at 1,200 bps
// and 40% at 900 bps blends to 1,080 bps. Slices must be non-empty and equal
// length; an all-zero weight vector is a division error.
func WeightedAverage(values, weights []*big.Int) (*big.Int, error) {
	if len(values) == 0 || len(values) != len(weights) {
		return nil, ErrInvalidInput
	}

	weightedSum := Zero()
	totalWeight := Zero()

	for i, v := range values {
		product, err := CheckedMul(v, weights[i])
		if err != nil {
			return nil, err
		}
		if weightedSum, err = CheckedAdd(weightedSum, product); err != nil {
			return nil, err
		}
		if totalWeight, err = CheckedAdd(totalWeight, weights[i]); err != nil {
			return nil, err
		}
	}

	if totalWeight.Sign() == 0 {
		return nil, ErrDivisionByZero
	}

	return new(big.Int).Quo(weightedSum, totalWeight), nil
}

// OptimalSplit computes the capital split between two venues as a percentage
// pair that sums to exactly 100.
//
// Each venue's yield is penalized proportionally to its risk score:
//
//	adjusted = yield × (10,000 − risk) / 10,000
//
// and the split is set proportional to the adjusted yields, with the second
// venue receiving the integer-division remainder so the pair always sums to
// 100 with no rounding drift. If both adjusted yields are zero the split
// falls back to 50/50 rather than failing, letting the caller proceed with a
// neutral allocation. Risk scores above MaxRiskScore are invalid.
func OptimalSplit(yieldABps, yieldBBps, riskA, riskB uint32) (uint64, uint64, error) {
	if riskA > MaxRiskScore || riskB > MaxRiskScore {
		return 0, 0, ErrInvalidInput
	}

	adjA := uint64(yieldABps) * uint64(MaxRiskScore-riskA) / MaxRiskScore
	adjB := uint64(yieldBBps) * uint64(MaxRiskScore-riskB) / MaxRiskScore

	total := adjA + adjB
	if total == 0 {
		return 50, 50, nil
	}

	pctA := adjA * 100 / total
	pctB := 100 - pctA

	return pctA, pctB, nil
}
