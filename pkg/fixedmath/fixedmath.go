// Package fixedmath implements checked unsigned 128-bit fixed-point arithmetic
// for vault accounting.
//
// All monetary amounts are integers with 18 decimal places of precision
// (1 token = 1e18 units), held as *big.Int and bounded to [0, 2^128).
// Rates and fees are expressed in basis points out of 10,000. Every operation
// uses explicit overflow/underflow checks and integer arithmetic only.
// Floating point never enters accounting: results must reproduce exactly
// on replay.
package fixedmath

import (
	"errors"
	"fmt"
	"math/big"
)

// Precision is the fixed-point scale denominator. 1 token = Precision units.
var Precision = new(big.Int).SetUint64(1_000_000_000_000_000_000)

// Decimals is the number of fractional digits behind Precision.
const Decimals = 18

// BpsDenominator converts basis points to fractions. 100% = 10,000 bps.
const BpsDenominator = 10_000

// SecondsPerYear is the annualization basis (365 days).
const SecondsPerYear = 31_536_000

// MaxRiskScore is the upper bound of the venue risk scale.
// 0 = riskless, 10,000 = total loss expected.
const MaxRiskScore = 10_000

// maxUint128 = 2^128 - 1, the ceiling for every amount in the system.
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

var bpsDenominatorBig = big.NewInt(BpsDenominator)

var (
	// ErrOverflow - an operation would have exceeded the 128-bit amount ceiling.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrUnderflow - an operation would have produced a negative amount.
	ErrUnderflow = errors.New("arithmetic underflow")
	// ErrDivisionByZero - a divisor was zero.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrInvalidInput - inputs are logically invalid (e.g. fee above 100%).
	ErrInvalidInput = errors.New("invalid input")
)

// Zero returns a fresh zero amount.
func Zero() *big.Int {
	return new(big.Int)
}

// Units returns n whole tokens as a fixed-point amount (n × 1e18).
func Units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Precision)
}

// ValidAmount reports whether a is a well-formed amount: non-nil,
// non-negative, and within the 128-bit ceiling.
func ValidAmount(a *big.Int) bool {
	return a != nil && a.Sign() >= 0 && a.Cmp(maxUint128) <= 0
}

// ValidBps reports whether v is a well-formed basis-point value (≤ 10,000).
func ValidBps(v uint32) bool {
	return v <= BpsDenominator
}

// ParseAmount parses a base-10 amount string into a bounded amount.
// Used when scanning TEXT columns and decoding request bodies.
func ParseAmount(s string) (*big.Int, error) {
	a, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q: %w", s, ErrInvalidInput)
	}
	if !ValidAmount(a) {
		return nil, fmt.Errorf("amount %q out of range: %w", s, ErrInvalidInput)
	}
	return a, nil
}

// CheckedAdd returns a + b or ErrOverflow past the 128-bit ceiling.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if sum.Cmp(maxUint128) > 0 {
		return nil, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a - b or ErrUnderflow if b exceeds a.
func CheckedSub(a, b *big.Int) (*big.Int, error) {
	if a.Cmp(b) < 0 {
		return nil, ErrUnderflow
	}
	return new(big.Int).Sub(a, b), nil
}

// CheckedMul returns a × b or ErrOverflow past the 128-bit ceiling.
func CheckedMul(a, b *big.Int) (*big.Int, error) {
	product := new(big.Int).Mul(a, b)
	if product.Cmp(maxUint128) > 0 {
		return nil, ErrOverflow
	}
	return product, nil
}

// CheckedDiv returns a / b (truncated) or ErrDivisionByZero.
func CheckedDiv(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	return new(big.Int).Quo(a, b), nil
}

// MulBps returns amount × bps / 10,000 with intermediate overflow checks.
// This is the canonical "take a basis-point slice of an amount" operation
// used by fee deduction and treasury skimming.
func MulBps(amount *big.Int, bps uint32) (*big.Int, error) {
	if !ValidBps(bps) {
		return nil, ErrInvalidInput
	}
	product, err := CheckedMul(amount, big.NewInt(int64(bps)))
	if err != nil {
		return nil, err
	}
	return CheckedDiv(product, bpsDenominatorBig)
}

// MulDiv returns a × b / den with an unbounded intermediate product.
// Share⇄asset conversions need this: amount × Precision briefly exceeds
// the 128-bit ceiling even though the quotient is back in range. Only
// the result is bounds-checked.
func MulDiv(a, b, den *big.Int) (*big.Int, error) {
	if den.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	out := new(big.Int).Mul(a, b)
	out.Quo(out, den)
	if !ValidAmount(out) {
		return nil, ErrOverflow
	}
	return out, nil
}
