// Package ledger implements the pooled-capital share ledger.
// Depositors hold shares; the pool holds assets. The exchange rate
// between them only ever moves up, and only when yield is credited.
package ledger

import "math/big"

// PoolState is the single-row pool accounting record
type PoolState struct {
	TotalShares       *big.Int
	TotalManagedAsset *big.Int
	UpdatedAt         int64
}

// Holder is one account's share position. Asset value is always derived
// from shares at the current exchange rate, never stored.
type Holder struct {
	Account   string
	Shares    *big.Int
	UpdatedAt int64
}

// Share event kinds recorded in the audit journal
const (
	EventMint       = "mint"
	EventBurn       = "burn"
	EventYield      = "yield"
	EventDeposit    = "deposit"
	EventWithdrawal = "withdrawal"
)

// ShareEvent is one append-only journal row
type ShareEvent struct {
	ID           int64
	Kind         string
	Account      string
	Shares       *big.Int
	Asset        *big.Int
	ExchangeRate *big.Int
	CreatedAt    int64
}

// PoolSnapshot is the read-model served over HTTP
type PoolSnapshot struct {
	TotalShares       *big.Int
	TotalManagedAsset *big.Int
	ExchangeRate      *big.Int
	HolderCount       int
	UpdatedAt         int64
}
