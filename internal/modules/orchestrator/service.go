package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/database"
	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/internal/modules/harvest"
	"github.com/polkapulse/vault/internal/modules/ledger"
	"github.com/polkapulse/vault/internal/modules/optimizer"
	"github.com/polkapulse/vault/internal/modules/router"
	"github.com/polkapulse/vault/internal/modules/treasury"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// VenueAdvisor assembles the optimizer request for a routing decision from
// whatever venue intelligence is available. Principal and horizon come from
// the caller; rates, fees, risk scores, and observation windows come from
// the advisor.
type VenueAdvisor interface {
	AdviseRequest(ctx context.Context, principal *big.Int, projectionPeriods uint32) (optimizer.Request, error)
}

// Service composes the vault core. It is the only component that opens
// transactions; every module underneath takes the transaction it hands down.
type Service struct {
	db              *sql.DB
	repo            *Repository
	ledgerService   *ledger.Service
	harvestService  *harvest.Service
	treasuryService *treasury.Service
	routerService   *router.Service
	assets          domain.AssetSurface
	advisor         VenueAdvisor
	loopActive      atomic.Bool
	log             zerolog.Logger
}

// NewService creates the orchestrator over its collaborating modules
func NewService(
	db *sql.DB,
	repo *Repository,
	ledgerService *ledger.Service,
	harvestService *harvest.Service,
	treasuryService *treasury.Service,
	routerService *router.Service,
	assets domain.AssetSurface,
	advisor VenueAdvisor,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:              db,
		repo:            repo,
		ledgerService:   ledgerService,
		harvestService:  harvestService,
		treasuryService: treasuryService,
		routerService:   routerService,
		assets:          assets,
		advisor:         advisor,
		log:             log.With().Str("service", "orchestrator").Logger(),
	}
}

// Repo exposes the repository for read-only query surfaces
func (s *Service) Repo() *Repository {
	return s.repo
}

// Deposit settles a deposit: price shares at the current rate, guard
// slippage before anything moves, pull the asset, then record and mint.
func (s *Service) Deposit(ctx context.Context, account string, amount, minSharesOut *big.Int, deadline, now int64) (*DepositReceipt, error) {
	if account == "" {
		return nil, domain.ErrZeroIdentity
	}
	if amount == nil || amount.Sign() == 0 {
		return nil, domain.ErrZeroAmount
	}
	if !fixedmath.ValidAmount(amount) {
		return nil, fixedmath.ErrInvalidInput
	}
	if now > deadline {
		return nil, domain.ErrDeadlineExpired
	}
	if minSharesOut == nil {
		minSharesOut = fixedmath.Zero()
	}

	var receipt *DepositReceipt
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		state, err := s.repo.GetStateTx(tx)
		if err != nil {
			return err
		}
		if state.Paused {
			return domain.ErrPaused
		}
		if amount.Cmp(state.MinDeposit) < 0 {
			return domain.ErrBelowMinimumDeposit
		}

		rate, err := s.ledgerService.RateTx(tx)
		if err != nil {
			return err
		}
		shares, err := ledger.AssetToShares(amount, rate)
		if err != nil {
			return err
		}
		// Judged before any state moves, so the depositor's own transaction
		// cannot shift the rate against them
		if shares.Cmp(minSharesOut) < 0 {
			return fmt.Errorf("%w: %s shares, minimum %s",
				domain.ErrSlippageExceeded, shares.String(), minSharesOut.String())
		}

		balance, err := s.assets.BalanceOf(ctx, account)
		if err != nil {
			return fmt.Errorf("failed to verify balance: %w", err)
		}
		if balance.Cmp(amount) < 0 {
			return domain.ErrInsufficientBalance
		}
		if err := s.assets.Pull(ctx, account, amount); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrExternalTransferFailed, err)
		}

		if err := s.ledgerService.RecordDeposit(tx, amount, now); err != nil {
			return err
		}
		if err := s.ledgerService.MintShares(tx, account, shares, now); err != nil {
			return err
		}

		receipt = &DepositReceipt{SharesMinted: shares, ExchangeRate: rate}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account", account).
		Str("amount", amount.String()).
		Str("shares", receipt.SharesMinted.String()).
		Msg("Deposit settled")
	return receipt, nil
}

// Withdraw settles a withdrawal: price the burn at the current rate, guard
// slippage, then record the managed-asset reduction, burn, and transfer out.
// The reduction lands before the burn so the rate derived by any concurrent
// read stays consistent with the committed burn.
func (s *Service) Withdraw(ctx context.Context, account string, shares, minAssetOut *big.Int, deadline, now int64) (*WithdrawReceipt, error) {
	if account == "" {
		return nil, domain.ErrZeroIdentity
	}
	if shares == nil || shares.Sign() == 0 {
		return nil, domain.ErrZeroAmount
	}
	if !fixedmath.ValidAmount(shares) {
		return nil, fixedmath.ErrInvalidInput
	}
	if now > deadline {
		return nil, domain.ErrDeadlineExpired
	}
	if minAssetOut == nil {
		minAssetOut = fixedmath.Zero()
	}

	var receipt *WithdrawReceipt
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		state, err := s.repo.GetStateTx(tx)
		if err != nil {
			return err
		}
		if state.Paused {
			return domain.ErrPaused
		}

		rate, err := s.ledgerService.RateTx(tx)
		if err != nil {
			return err
		}
		assetOut, err := ledger.SharesToAsset(shares, rate)
		if err != nil {
			return err
		}
		if assetOut.Cmp(minAssetOut) < 0 {
			return fmt.Errorf("%w: %s out, minimum %s",
				domain.ErrSlippageExceeded, assetOut.String(), minAssetOut.String())
		}

		if err := s.ledgerService.RecordWithdrawal(tx, assetOut, now); err != nil {
			return err
		}
		if err := s.ledgerService.BurnShares(tx, account, shares, now); err != nil {
			return err
		}
		if err := s.assets.Transfer(ctx, account, assetOut); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrExternalTransferFailed, err)
		}

		receipt = &WithdrawReceipt{AssetOut: assetOut, ExchangeRate: rate}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account", account).
		Str("shares", shares.String()).
		Str("asset_out", receipt.AssetOut.String()).
		Msg("Withdrawal settled")
	return receipt, nil
}

// LoopReady reports whether a RunYieldLoop call would pass its gates.
func (s *Service) LoopReady(ctx context.Context) (bool, error) {
	if s.loopActive.Load() {
		return false, nil
	}
	state, err := s.repo.GetState()
	if err != nil {
		return false, err
	}
	if state.Paused || state.YieldLoopRunning {
		return false, nil
	}
	return s.harvestService.ShouldHarvest(ctx)
}

// EpochReady reports whether a TriggerTreasuryEpoch call would pass its
// gates.
func (s *Service) EpochReady(now int64) (bool, error) {
	state, err := s.repo.GetState()
	if err != nil {
		return false, err
	}
	if state.Paused {
		return false, nil
	}
	return s.treasuryService.EpochReady(now)
}

// RunYieldLoop runs the end-to-end yield sequence as one transaction:
// harvest, protocol fee out, treasury skim, remote deployment of the
// remainder, and the rate credit. Any failure rolls the whole sequence
// back, the loop flag included.
func (s *Service) RunYieldLoop(ctx context.Context, now int64) (*LoopResult, error) {
	// Coarse guard against concurrent invocation through indirect paths;
	// the persisted flag below is the second layer
	if !s.loopActive.CompareAndSwap(false, true) {
		return nil, domain.ErrLoopAlreadyRunning
	}
	defer s.loopActive.Store(false)

	var result *LoopResult
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		state, err := s.repo.GetStateTx(tx)
		if err != nil {
			return err
		}
		if state.Paused {
			return domain.ErrPaused
		}
		if state.YieldLoopRunning {
			return domain.ErrLoopAlreadyRunning
		}
		if err := s.repo.SetLoopRunningTx(tx, now); err != nil {
			return err
		}

		gross, err := s.harvestService.Harvest(ctx, tx, now)
		if err != nil {
			return err
		}

		fee := fixedmath.Zero()
		if state.FeeRateBps > 0 {
			fee, err = fixedmath.MulBps(gross, state.FeeRateBps)
			if err != nil {
				return err
			}
		}
		if fee.Sign() > 0 {
			if state.FeeRecipient == "" {
				return fmt.Errorf("fee recipient unset: %w", domain.ErrZeroIdentity)
			}
			// Intent first, external call second
			if err := s.repo.AddAccruedFeesTx(tx, fee, now); err != nil {
				return err
			}
			if err := s.repo.InsertFeeTransferTx(tx, fee, state.FeeRecipient, now); err != nil {
				return err
			}
			if err := s.assets.Transfer(ctx, state.FeeRecipient, fee); err != nil {
				return fmt.Errorf("%w: fee payout: %v", domain.ErrExternalTransferFailed, err)
			}
		}

		net, err := fixedmath.CheckedSub(gross, fee)
		if err != nil {
			return err
		}
		if err := s.harvestService.Repo().LogHarvestTx(tx, gross, fee, net, now, now); err != nil {
			return err
		}

		skim := fixedmath.Zero()
		if net.Sign() > 0 {
			skim, err = s.treasuryService.Accumulate(tx, net, state.TreasuryBps, now)
			if err != nil {
				return err
			}
		}
		remainder, err := fixedmath.CheckedSub(net, skim)
		if err != nil {
			return err
		}

		req, err := s.advisor.AdviseRequest(ctx, remainder, state.CompoundPeriods)
		if err != nil {
			return fmt.Errorf("failed to assemble allocation request: %w", err)
		}
		routed, err := s.routerService.Route(ctx, tx, remainder, req, now)
		if err != nil {
			return err
		}

		if err := s.ledgerService.CreditYield(tx, remainder, now); err != nil {
			return err
		}

		if err := s.repo.EndLoopTx(tx, now, now); err != nil {
			return err
		}

		result = &LoopResult{
			Harvested: gross,
			Fee:       fee,
			Skimmed:   skim,
			Credited:  remainder,
			Routed:    routed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("harvested", result.Harvested.String()).
		Str("fee", result.Fee.String()).
		Str("skimmed", result.Skimmed.String()).
		Str("credited", result.Credited.String()).
		Msg("Yield loop settled")
	return result, nil
}

// TriggerTreasuryEpoch runs one treasury settlement as its own transaction.
func (s *Service) TriggerTreasuryEpoch(ctx context.Context, minAcceptableUnits *big.Int, now int64) (*treasury.Settlement, error) {
	var settlement *treasury.Settlement
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		state, err := s.repo.GetStateTx(tx)
		if err != nil {
			return err
		}
		if state.Paused {
			return domain.ErrPaused
		}
		settlement, err = s.treasuryService.TriggerEpoch(ctx, tx, minAcceptableUnits, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// SetHarvestThreshold updates the harvest threshold
func (s *Service) SetHarvestThreshold(value *big.Int, now int64) error {
	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.harvestService.SetThreshold(tx, value, now)
	})
}

// SetFeeRate updates the protocol fee rate and recipient together. A
// non-zero rate with no recipient is rejected so the loop can never reach
// a fee payout with nowhere to send it.
func (s *Service) SetFeeRate(feeRateBps uint32, recipient string, now int64) error {
	if !fixedmath.ValidBps(feeRateBps) {
		return domain.ErrInvalidBasisPoints
	}
	if feeRateBps > 0 && recipient == "" {
		return domain.ErrZeroIdentity
	}
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.repo.SetFeeConfigTx(tx, feeRateBps, recipient, now)
	})
	if err != nil {
		return err
	}
	s.log.Info().Uint32("fee_rate_bps", feeRateBps).Str("recipient", recipient).Msg("Fee config updated")
	return nil
}

// SetTreasuryFraction updates the treasury skim fraction
func (s *Service) SetTreasuryFraction(treasuryBps uint32, now int64) error {
	if !fixedmath.ValidBps(treasuryBps) {
		return domain.ErrInvalidBasisPoints
	}
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.repo.SetTreasuryBpsTx(tx, treasuryBps, now)
	})
	if err != nil {
		return err
	}
	s.log.Info().Uint32("treasury_bps", treasuryBps).Msg("Treasury fraction updated")
	return nil
}

// SetMinDeposit updates the deposit floor. Zero disables the floor.
func (s *Service) SetMinDeposit(amount *big.Int, now int64) error {
	if amount == nil {
		return domain.ErrZeroAmount
	}
	if !fixedmath.ValidAmount(amount) {
		return fixedmath.ErrInvalidInput
	}
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.repo.SetMinDepositTx(tx, amount, now)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("min_deposit", amount.String()).Msg("Minimum deposit updated")
	return nil
}

// SetCompoundPeriods updates the projection horizon fed to the optimizer
func (s *Service) SetCompoundPeriods(periods uint32, now int64) error {
	if periods == 0 {
		return fixedmath.ErrInvalidInput
	}
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.repo.SetCompoundPeriodsTx(tx, periods, now)
	})
	if err != nil {
		return err
	}
	s.log.Info().Uint32("compound_periods", periods).Msg("Compound periods updated")
	return nil
}

// AddPartner registers a treasury partner
func (s *Service) AddPartner(id string, boostRateBps uint32, now int64) error {
	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.treasuryService.AddPartner(tx, id, boostRateBps, now)
	})
}

// RemovePartner deactivates a treasury partner
func (s *Service) RemovePartner(id string, now int64) error {
	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.treasuryService.RemovePartner(tx, id, now)
	})
}

// Pause suspends deposits, withdrawals, the yield loop, and epoch triggers
func (s *Service) Pause(now int64) error {
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.repo.SetPausedTx(tx, true, now)
	})
	if err != nil {
		return err
	}
	s.log.Warn().Msg("Vault paused")
	return nil
}

// Unpause lifts the suspension
func (s *Service) Unpause(now int64) error {
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		return s.repo.SetPausedTx(tx, false, now)
	})
	if err != nil {
		return err
	}
	s.log.Info().Msg("Vault unpaused")
	return nil
}

// State returns the current core state
func (s *Service) State() (*CoreState, error) {
	return s.repo.GetState()
}
