// Package domain provides the shared contracts of the vault core:
// collaborator interfaces, the error taxonomy, and common value types.
package domain

import (
	"errors"

	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Validation errors. Checked first on every entry point, never retried,
// surfaced straight back to the caller.
var (
	ErrZeroAmount          = errors.New("amount must be greater than zero")
	ErrZeroIdentity        = errors.New("identity must not be empty")
	ErrDeadlineExpired     = errors.New("deadline expired")
	ErrInvalidBasisPoints  = errors.New("basis points out of range")
	ErrBelowMinimumDeposit = errors.New("amount below minimum deposit")
)

// State-precondition errors. Expected, non-exceptional outcomes; callers
// probe the matching read-only predicate before invoking.
var (
	ErrBelowThreshold      = errors.New("pending reward below harvest threshold")
	ErrEpochNotReady       = errors.New("epoch interval has not elapsed")
	ErrEmptyReserve        = errors.New("treasury reserve is empty")
	ErrNoActivePartners    = errors.New("no active partners registered")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrInsufficientBalance = errors.New("external balance insufficient")
	ErrLoopAlreadyRunning  = errors.New("yield loop already running")
	ErrPaused              = errors.New("vault is paused")
	ErrZeroExchangeRate    = errors.New("exchange rate computed as zero")
	ErrAlreadyRegistered   = errors.New("partner already registered")
	ErrNotRegistered       = errors.New("partner not registered")
	ErrNoTelemetry         = errors.New("venue telemetry not yet collected")
)

// External-collaborator failures. Fatal to the current invocation; the
// surrounding transaction unwinds entirely, no partial commit.
var (
	ErrExternalClaimFailed      = errors.New("reward claim failed upstream")
	ErrExternalTransferFailed   = errors.New("asset transfer failed upstream")
	ErrPurchaseFailed           = errors.New("unit purchase failed upstream")
	ErrDispatchRejected         = errors.New("remote dispatch rejected")
	ErrOptimizerCallFailed      = errors.New("allocation optimizer call failed")
	ErrInvalidOptimizerResponse = errors.New("allocation optimizer response invalid")
	ErrZeroAllocation           = errors.New("allocation amount is zero")
	ErrInvalidAllocation        = errors.New("allocation selects no venue")
)

// Slippage failures. Checked after computing the would-be result and before
// any external transfer, so the caller gets a clean abort with no side effects.
var (
	ErrSlippageExceeded     = errors.New("output below caller minimum")
	ErrPurchaseBelowMinimum = errors.New("purchased units below caller minimum")
)

// ErrorKind buckets an error for transport-level mapping.
type ErrorKind int

const (
	// KindInternal - unclassified failure, maps to HTTP 500.
	KindInternal ErrorKind = iota
	// KindValidation - malformed caller input, maps to HTTP 400.
	KindValidation
	// KindPrecondition - state not ready, maps to HTTP 409.
	KindPrecondition
	// KindExternal - an upstream collaborator failed, maps to HTTP 502.
	KindExternal
	// KindSlippage - output fell below the caller's minimum, maps to HTTP 409.
	KindSlippage
)

var (
	validationErrors = []error{
		ErrZeroAmount, ErrZeroIdentity, ErrDeadlineExpired,
		ErrInvalidBasisPoints, ErrBelowMinimumDeposit,
		fixedmath.ErrInvalidInput,
	}
	preconditionErrors = []error{
		ErrBelowThreshold, ErrEpochNotReady, ErrEmptyReserve,
		ErrNoActivePartners, ErrInsufficientShares, ErrInsufficientBalance,
		ErrLoopAlreadyRunning, ErrPaused, ErrZeroExchangeRate,
		ErrAlreadyRegistered, ErrNotRegistered, ErrNoTelemetry,
	}
	externalErrors = []error{
		ErrExternalClaimFailed, ErrExternalTransferFailed, ErrPurchaseFailed,
		ErrDispatchRejected, ErrOptimizerCallFailed,
		ErrInvalidOptimizerResponse, ErrZeroAllocation, ErrInvalidAllocation,
	}
	slippageErrors = []error{
		ErrSlippageExceeded, ErrPurchaseBelowMinimum,
	}
)

// Classify maps an error (possibly wrapped) to its taxonomy bucket.
func Classify(err error) ErrorKind {
	for _, e := range validationErrors {
		if errors.Is(err, e) {
			return KindValidation
		}
	}
	for _, e := range preconditionErrors {
		if errors.Is(err, e) {
			return KindPrecondition
		}
	}
	for _, e := range externalErrors {
		if errors.Is(err, e) {
			return KindExternal
		}
	}
	for _, e := range slippageErrors {
		if errors.Is(err, e) {
			return KindSlippage
		}
	}
	return KindInternal
}
