// Package orchestrator is the single entry point of the vault core. It owns
// the per-invocation transaction on vault.db and composes the ledger,
// harvest, treasury, and router modules into the deposit, withdraw, and
// yield-loop sequences.
//
// Every public operation runs all-or-nothing: one transaction per entry
// point, external calls inside it, rollback on any failure. The yield loop
// carries a second in-memory guard against concurrent invocation on top of
// the persisted flag.
package orchestrator

import (
	"math/big"

	"github.com/polkapulse/vault/internal/modules/router"
)

// CoreState is the singleton protocol row in vault.db: the loop flag and
// every governed parameter.
type CoreState struct {
	YieldLoopRunning    bool
	LastYieldLoopMarker int64
	AccruedFees         *big.Int
	FeeRateBps          uint32
	FeeRecipient        string
	TreasuryBps         uint32
	MinDeposit          *big.Int
	CompoundPeriods     uint32
	Paused              bool
	UpdatedAt           int64
}

// FeeTransfer is one journaled protocol-fee payout.
type FeeTransfer struct {
	ID        int64
	Amount    *big.Int
	Recipient string
	CreatedAt int64
}

// DepositReceipt reports a settled deposit. ExchangeRate is the pre-deposit
// rate the shares were priced at.
type DepositReceipt struct {
	SharesMinted *big.Int
	ExchangeRate *big.Int
}

// WithdrawReceipt reports a settled withdrawal.
type WithdrawReceipt struct {
	AssetOut     *big.Int
	ExchangeRate *big.Int
}

// LoopResult reports one completed yield loop: the harvested gross and how
// it split across fee, treasury skim, and the credited remainder.
type LoopResult struct {
	Harvested *big.Int
	Fee       *big.Int
	Skimmed   *big.Int
	Credited  *big.Int
	Routed    *router.Result
}
