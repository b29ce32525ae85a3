package orchestrator

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Repository handles core protocol state in vault.db. Mutating methods take
// the caller's transaction.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new orchestrator repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "orchestrator").Logger(),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCoreState(row rowScanner) (*CoreState, error) {
	var state CoreState
	var feesStr, minDepositStr string
	var running, paused int

	err := row.Scan(&running, &state.LastYieldLoopMarker, &feesStr, &state.FeeRateBps,
		&state.FeeRecipient, &state.TreasuryBps, &minDepositStr, &state.CompoundPeriods,
		&paused, &state.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan core state: %w", err)
	}
	state.YieldLoopRunning = running != 0
	state.Paused = paused != 0

	state.AccruedFees, err = fixedmath.ParseAmount(feesStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt accrued_fees: %w", err)
	}
	state.MinDeposit, err = fixedmath.ParseAmount(minDepositStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt min_deposit: %w", err)
	}
	return &state, nil
}

const coreStateQuery = `SELECT yield_loop_running, last_yield_loop_marker, accrued_fees,
                               fee_rate_bps, fee_recipient, treasury_bps, min_deposit,
                               compound_periods, paused, updated_at
                        FROM core_state WHERE id = 1`

// GetState returns the core state outside any transaction
func (r *Repository) GetState() (*CoreState, error) {
	return scanCoreState(r.db.QueryRow(coreStateQuery))
}

// GetStateTx returns the core state inside the caller's transaction
func (r *Repository) GetStateTx(tx *sql.Tx) (*CoreState, error) {
	return scanCoreState(tx.QueryRow(coreStateQuery))
}

// SetLoopRunningTx raises the yield-loop flag
func (r *Repository) SetLoopRunningTx(tx *sql.Tx, now int64) error {
	_, err := tx.Exec(
		`UPDATE core_state SET yield_loop_running = 1, updated_at = ? WHERE id = 1`,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to raise yield loop flag: %w", err)
	}
	return nil
}

// EndLoopTx clears the yield-loop flag and advances the loop marker
func (r *Repository) EndLoopTx(tx *sql.Tx, marker int64, now int64) error {
	_, err := tx.Exec(
		`UPDATE core_state SET yield_loop_running = 0, last_yield_loop_marker = ?, updated_at = ?
		 WHERE id = 1`,
		marker, now,
	)
	if err != nil {
		return fmt.Errorf("failed to clear yield loop flag: %w", err)
	}
	return nil
}

// AddAccruedFeesTx accumulates a protocol fee into the lifetime total
func (r *Repository) AddAccruedFeesTx(tx *sql.Tx, fee *big.Int, now int64) error {
	state, err := r.GetStateTx(tx)
	if err != nil {
		return err
	}
	total, err := fixedmath.CheckedAdd(state.AccruedFees, fee)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`UPDATE core_state SET accrued_fees = ?, updated_at = ? WHERE id = 1`,
		total.String(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to update accrued fees: %w", err)
	}
	return nil
}

// SetFeeConfigTx writes the fee rate and recipient together
func (r *Repository) SetFeeConfigTx(tx *sql.Tx, feeRateBps uint32, recipient string, now int64) error {
	_, err := tx.Exec(
		`UPDATE core_state SET fee_rate_bps = ?, fee_recipient = ?, updated_at = ? WHERE id = 1`,
		feeRateBps, recipient, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update fee config: %w", err)
	}
	return nil
}

// SetTreasuryBpsTx updates the treasury skim fraction
func (r *Repository) SetTreasuryBpsTx(tx *sql.Tx, treasuryBps uint32, now int64) error {
	_, err := tx.Exec(
		`UPDATE core_state SET treasury_bps = ?, updated_at = ? WHERE id = 1`,
		treasuryBps, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update treasury fraction: %w", err)
	}
	return nil
}

// SetMinDepositTx updates the deposit floor
func (r *Repository) SetMinDepositTx(tx *sql.Tx, minDeposit *big.Int, now int64) error {
	_, err := tx.Exec(
		`UPDATE core_state SET min_deposit = ?, updated_at = ? WHERE id = 1`,
		minDeposit.String(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to update minimum deposit: %w", err)
	}
	return nil
}

// SetCompoundPeriodsTx updates the projection horizon fed to the optimizer
func (r *Repository) SetCompoundPeriodsTx(tx *sql.Tx, periods uint32, now int64) error {
	_, err := tx.Exec(
		`UPDATE core_state SET compound_periods = ?, updated_at = ? WHERE id = 1`,
		periods, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update compound periods: %w", err)
	}
	return nil
}

// SetPausedTx flips the pause flag
func (r *Repository) SetPausedTx(tx *sql.Tx, paused bool, now int64) error {
	pausedInt := 0
	if paused {
		pausedInt = 1
	}
	_, err := tx.Exec(
		`UPDATE core_state SET paused = ?, updated_at = ? WHERE id = 1`,
		pausedInt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update pause flag: %w", err)
	}
	return nil
}

// InsertFeeTransferTx journals one protocol-fee payout
func (r *Repository) InsertFeeTransferTx(tx *sql.Tx, amount *big.Int, recipient string, now int64) error {
	_, err := tx.Exec(
		`INSERT INTO fee_transfers (amount, recipient, created_at) VALUES (?, ?, ?)`,
		amount.String(), recipient, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fee transfer: %w", err)
	}
	return nil
}

// ListFeeTransfers returns recent fee payouts, newest first
func (r *Repository) ListFeeTransfers(limit int) ([]FeeTransfer, error) {
	rows, err := r.db.Query(
		`SELECT id, amount, recipient, created_at
		 FROM fee_transfers ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee transfers: %w", err)
	}
	defer rows.Close()

	transfers := make([]FeeTransfer, 0)
	for rows.Next() {
		var ft FeeTransfer
		var amountStr string
		if err := rows.Scan(&ft.ID, &amountStr, &ft.Recipient, &ft.CreatedAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan fee transfer row")
			continue
		}
		if ft.Amount, err = fixedmath.ParseAmount(amountStr); err != nil {
			r.log.Warn().Err(err).Int64("id", ft.ID).Msg("Corrupt amount in fee transfer")
			continue
		}
		transfers = append(transfers, ft)
	}
	return transfers, rows.Err()
}
