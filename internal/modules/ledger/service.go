package ledger

import (
	"database/sql"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// ExchangeRate returns the share price in asset terms, scaled by
// fixedmath.Precision. An empty pool floors at exactly 1.0 so the first
// depositor mints shares 1:1.
func ExchangeRate(totalShares, totalManagedAsset *big.Int) (*big.Int, error) {
	if totalShares.Sign() == 0 {
		return new(big.Int).Set(fixedmath.Precision), nil
	}
	return fixedmath.MulDiv(totalManagedAsset, fixedmath.Precision, totalShares)
}

// AssetToShares converts an asset amount to shares at the given rate
func AssetToShares(amount, rate *big.Int) (*big.Int, error) {
	if rate.Sign() == 0 {
		return nil, domain.ErrZeroExchangeRate
	}
	return fixedmath.MulDiv(amount, fixedmath.Precision, rate)
}

// SharesToAsset converts a share amount to assets at the given rate
func SharesToAsset(shares, rate *big.Int) (*big.Int, error) {
	return fixedmath.MulDiv(shares, rate, fixedmath.Precision)
}

// Service implements the share ledger operations. All mutations run
// inside the caller's vault.db transaction; the orchestrator is the
// single mutating caller and supplies one timestamp per entry point so
// every row written by an operation carries the same instant.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new ledger service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "ledger").Logger(),
	}
}

// Repo exposes the repository for read-only collaborators
func (s *Service) Repo() *Repository {
	return s.repo
}

// CurrentRate returns the exchange rate outside any transaction
func (s *Service) CurrentRate() (*big.Int, error) {
	state, err := s.repo.GetPoolState()
	if err != nil {
		return nil, err
	}
	return ExchangeRate(state.TotalShares, state.TotalManagedAsset)
}

// RateTx returns the exchange rate inside the caller's transaction
func (s *Service) RateTx(tx *sql.Tx) (*big.Int, error) {
	state, err := s.repo.GetPoolStateTx(tx)
	if err != nil {
		return nil, err
	}
	return ExchangeRate(state.TotalShares, state.TotalManagedAsset)
}

// MintShares credits newly issued shares to an account.
// Mint alone never moves the exchange rate; the orchestrator pairs it
// with RecordDeposit so the two effects cancel exactly.
func (s *Service) MintShares(tx *sql.Tx, to string, shares *big.Int, now int64) error {
	if to == "" {
		return domain.ErrZeroIdentity
	}
	if shares == nil || shares.Sign() == 0 {
		return domain.ErrZeroAmount
	}

	state, err := s.repo.GetPoolStateTx(tx)
	if err != nil {
		return err
	}
	rate, err := ExchangeRate(state.TotalShares, state.TotalManagedAsset)
	if err != nil {
		return err
	}

	newTotal, err := fixedmath.CheckedAdd(state.TotalShares, shares)
	if err != nil {
		return err
	}
	held, err := s.repo.GetHolderSharesTx(tx, to)
	if err != nil {
		return err
	}
	newHeld, err := fixedmath.CheckedAdd(held, shares)
	if err != nil {
		return err
	}

	if err := s.repo.SetPoolStateTx(tx, newTotal, state.TotalManagedAsset, now); err != nil {
		return err
	}
	if err := s.repo.SetHolderSharesTx(tx, to, newHeld, now); err != nil {
		return err
	}
	return s.repo.InsertShareEventTx(tx, ShareEvent{
		Kind:         EventMint,
		Account:      to,
		Shares:       shares,
		Asset:        fixedmath.Zero(),
		ExchangeRate: rate,
		CreatedAt:    now,
	})
}

// BurnShares destroys shares held by an account
func (s *Service) BurnShares(tx *sql.Tx, from string, shares *big.Int, now int64) error {
	if from == "" {
		return domain.ErrZeroIdentity
	}
	if shares == nil || shares.Sign() == 0 {
		return domain.ErrZeroAmount
	}

	held, err := s.repo.GetHolderSharesTx(tx, from)
	if err != nil {
		return err
	}
	if held.Cmp(shares) < 0 {
		return domain.ErrInsufficientShares
	}

	state, err := s.repo.GetPoolStateTx(tx)
	if err != nil {
		return err
	}
	rate, err := ExchangeRate(state.TotalShares, state.TotalManagedAsset)
	if err != nil {
		return err
	}

	newTotal, err := fixedmath.CheckedSub(state.TotalShares, shares)
	if err != nil {
		return err
	}
	newHeld := new(big.Int).Sub(held, shares)

	if err := s.repo.SetPoolStateTx(tx, newTotal, state.TotalManagedAsset, now); err != nil {
		return err
	}
	if err := s.repo.SetHolderSharesTx(tx, from, newHeld, now); err != nil {
		return err
	}
	return s.repo.InsertShareEventTx(tx, ShareEvent{
		Kind:         EventBurn,
		Account:      from,
		Shares:       shares,
		Asset:        fixedmath.Zero(),
		ExchangeRate: rate,
		CreatedAt:    now,
	})
}

// CreditYield adds harvested yield to the managed asset total.
// This is the only operation that raises the exchange rate.
func (s *Service) CreditYield(tx *sql.Tx, amount *big.Int, now int64) error {
	return s.adjustManagedAsset(tx, EventYield, amount, now)
}

// RecordDeposit adds deposited principal to the managed asset total
func (s *Service) RecordDeposit(tx *sql.Tx, amount *big.Int, now int64) error {
	return s.adjustManagedAsset(tx, EventDeposit, amount, now)
}

// RecordWithdrawal removes withdrawn principal from the managed asset total
func (s *Service) RecordWithdrawal(tx *sql.Tx, amount *big.Int, now int64) error {
	return s.adjustManagedAsset(tx, EventWithdrawal, amount, now)
}

func (s *Service) adjustManagedAsset(tx *sql.Tx, kind string, amount *big.Int, now int64) error {
	if amount == nil || amount.Sign() == 0 {
		return domain.ErrZeroAmount
	}

	state, err := s.repo.GetPoolStateTx(tx)
	if err != nil {
		return err
	}
	rate, err := ExchangeRate(state.TotalShares, state.TotalManagedAsset)
	if err != nil {
		return err
	}

	var newManaged *big.Int
	if kind == EventWithdrawal {
		newManaged, err = fixedmath.CheckedSub(state.TotalManagedAsset, amount)
	} else {
		newManaged, err = fixedmath.CheckedAdd(state.TotalManagedAsset, amount)
	}
	if err != nil {
		return err
	}

	if err := s.repo.SetPoolStateTx(tx, state.TotalShares, newManaged, now); err != nil {
		return err
	}
	return s.repo.InsertShareEventTx(tx, ShareEvent{
		Kind:         kind,
		Shares:       fixedmath.Zero(),
		Asset:        amount,
		ExchangeRate: rate,
		CreatedAt:    now,
	})
}

// HolderPosition returns an account's shares and their derived asset value
func (s *Service) HolderPosition(account string) (shares, assetValue *big.Int, err error) {
	shares, err = s.repo.GetHolderShares(account)
	if err != nil {
		return nil, nil, err
	}
	rate, err := s.CurrentRate()
	if err != nil {
		return nil, nil, err
	}
	assetValue, err = SharesToAsset(shares, rate)
	if err != nil {
		return nil, nil, err
	}
	return shares, assetValue, nil
}

// Snapshot returns the pool read-model served over HTTP
func (s *Service) Snapshot() (*PoolSnapshot, error) {
	state, err := s.repo.GetPoolState()
	if err != nil {
		return nil, err
	}
	rate, err := ExchangeRate(state.TotalShares, state.TotalManagedAsset)
	if err != nil {
		return nil, err
	}
	holders, err := s.repo.CountHolders()
	if err != nil {
		return nil, err
	}
	return &PoolSnapshot{
		TotalShares:       state.TotalShares,
		TotalManagedAsset: state.TotalManagedAsset,
		ExchangeRate:      rate,
		HolderCount:       holders,
		UpdatedAt:         state.UpdatedAt,
	}, nil
}
