package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polkapulse/vault/pkg/fixedmath"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{"zero amount is validation", ErrZeroAmount, KindValidation},
		{"expired deadline is validation", ErrDeadlineExpired, KindValidation},
		{"malformed amount is validation", fixedmath.ErrInvalidInput, KindValidation},
		{"below threshold is precondition", ErrBelowThreshold, KindPrecondition},
		{"insufficient balance is precondition", ErrInsufficientBalance, KindPrecondition},
		{"loop running is precondition", ErrLoopAlreadyRunning, KindPrecondition},
		{"paused is precondition", ErrPaused, KindPrecondition},
		{"claim failure is external", ErrExternalClaimFailed, KindExternal},
		{"dispatch rejection is external", ErrDispatchRejected, KindExternal},
		{"slippage is slippage", ErrSlippageExceeded, KindSlippage},
		{"purchase minimum is slippage", ErrPurchaseBelowMinimum, KindSlippage},
		{"unknown is internal", fmt.Errorf("boom"), KindInternal},
		{"nil is internal", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestClassifySeesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("failed to settle deposit: %w", ErrSlippageExceeded)
	assert.Equal(t, KindSlippage, Classify(wrapped))

	doubleWrapped := fmt.Errorf("failed to run yield loop: %w",
		fmt.Errorf("failed to harvest: %w", ErrBelowThreshold))
	assert.Equal(t, KindPrecondition, Classify(doubleWrapped))
}
