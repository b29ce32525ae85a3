package treasury

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Repository handles treasury state, the partner registry, and the epoch
// journal in vault.db. Mutating methods take the caller's transaction.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new treasury repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "treasury").Logger(),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*State, error) {
	var reserveStr string
	var state State

	err := row.Scan(&reserveStr, &state.LastEpochMarker, &state.EpochCount,
		&state.EpochInterval, &state.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan treasury state: %w", err)
	}

	state.Reserve, err = fixedmath.ParseAmount(reserveStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt reserve: %w", err)
	}
	return &state, nil
}

const stateQuery = `SELECT reserve, last_epoch_marker, epoch_count, epoch_interval, updated_at
                    FROM treasury_state WHERE id = 1`

// GetState returns the treasury state outside any transaction
func (r *Repository) GetState() (*State, error) {
	return scanState(r.db.QueryRow(stateQuery))
}

// GetStateTx returns the treasury state inside the caller's transaction
func (r *Repository) GetStateTx(tx *sql.Tx) (*State, error) {
	return scanState(tx.QueryRow(stateQuery))
}

// AddToReserveTx accumulates a skimmed amount into the reserve
func (r *Repository) AddToReserveTx(tx *sql.Tx, amount *big.Int, now int64) error {
	state, err := r.GetStateTx(tx)
	if err != nil {
		return err
	}
	reserve, err := fixedmath.CheckedAdd(state.Reserve, amount)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`UPDATE treasury_state SET reserve = ?, updated_at = ? WHERE id = 1`,
		reserve.String(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to update treasury reserve: %w", err)
	}
	return nil
}

// SettleStateTx zeroes the reserve, advances the epoch marker, and bumps
// the epoch count in one statement
func (r *Repository) SettleStateTx(tx *sql.Tx, marker int64, now int64) error {
	_, err := tx.Exec(
		`UPDATE treasury_state
		 SET reserve = '0', last_epoch_marker = ?, epoch_count = epoch_count + 1, updated_at = ?
		 WHERE id = 1`,
		marker, now,
	)
	if err != nil {
		return fmt.Errorf("failed to settle treasury state: %w", err)
	}
	return nil
}

// SetEpochIntervalTx updates the epoch cadence
func (r *Repository) SetEpochIntervalTx(tx *sql.Tx, interval int64, now int64) error {
	_, err := tx.Exec(
		`UPDATE treasury_state SET epoch_interval = ?, updated_at = ? WHERE id = 1`,
		interval, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update epoch interval: %w", err)
	}
	return nil
}

func scanPartner(row rowScanner) (*Partner, error) {
	var p Partner
	var unitsStr string
	var active int

	err := row.Scan(&p.ID, &p.BoostRateBps, &active, &unitsStr, &p.Position, &p.AddedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Active = active != 0

	p.LifetimeUnits, err = fixedmath.ParseAmount(unitsStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt lifetime_units: %w", err)
	}
	return &p, nil
}

const partnerColumns = `partner_id, boost_rate_bps, active, lifetime_units, position, added_at, updated_at`

// GetPartnerTx looks up one partner by id inside the caller's transaction.
// Returns (nil, nil) when the id has never been registered.
func (r *Repository) GetPartnerTx(tx *sql.Tx, id string) (*Partner, error) {
	p, err := scanPartner(tx.QueryRow(
		`SELECT `+partnerColumns+` FROM partners WHERE partner_id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query partner %s: %w", id, err)
	}
	return p, nil
}

// InsertPartnerTx registers a new partner at the next position
func (r *Repository) InsertPartnerTx(tx *sql.Tx, id string, boostRateBps uint32, now int64) error {
	_, err := tx.Exec(
		`INSERT INTO partners (partner_id, boost_rate_bps, active, lifetime_units, position, added_at, updated_at)
		 VALUES (?, ?, 1, '0', (SELECT COALESCE(MAX(position), 0) + 1 FROM partners), ?, ?)`,
		id, boostRateBps, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert partner %s: %w", id, err)
	}
	return nil
}

// SetPartnerActiveTx flips a partner's active flag. Reactivation refreshes
// the committed boost rate but keeps position and lifetime units.
func (r *Repository) SetPartnerActiveTx(tx *sql.Tx, id string, active bool, boostRateBps uint32, now int64) error {
	activeInt := 0
	if active {
		activeInt = 1
	}
	_, err := tx.Exec(
		`UPDATE partners SET active = ?, boost_rate_bps = ?, updated_at = ? WHERE partner_id = ?`,
		activeInt, boostRateBps, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update partner %s: %w", id, err)
	}
	return nil
}

// AddPartnerUnitsTx accumulates distributed units into a partner's lifetime total
func (r *Repository) AddPartnerUnitsTx(tx *sql.Tx, id string, units *big.Int, now int64) error {
	p, err := r.GetPartnerTx(tx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("failed to credit units: partner %s not found", id)
	}
	lifetime, err := fixedmath.CheckedAdd(p.LifetimeUnits, units)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`UPDATE partners SET lifetime_units = ?, updated_at = ? WHERE partner_id = ?`,
		lifetime.String(), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update lifetime units for %s: %w", id, err)
	}
	return nil
}

// ListActivePartnersTx returns active partners in registration order
func (r *Repository) ListActivePartnersTx(tx *sql.Tx) ([]Partner, error) {
	rows, err := tx.Query(
		`SELECT ` + partnerColumns + ` FROM partners WHERE active = 1 ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active partners: %w", err)
	}
	defer rows.Close()
	return r.collectPartners(rows)
}

// ListPartners returns the whole registry, active and removed, in registration order
func (r *Repository) ListPartners() ([]Partner, error) {
	rows, err := r.db.Query(
		`SELECT ` + partnerColumns + ` FROM partners ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query partners: %w", err)
	}
	defer rows.Close()
	return r.collectPartners(rows)
}

func (r *Repository) collectPartners(rows *sql.Rows) ([]Partner, error) {
	partners := make([]Partner, 0)
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan partner row")
			continue
		}
		partners = append(partners, *p)
	}
	return partners, rows.Err()
}

// InsertEpochTx journals a settled epoch and returns its id
func (r *Repository) InsertEpochTx(tx *sql.Tx, reserveSpent, unitsPurchased *big.Int, partnerCount int, perPartner, remainder *big.Int, now int64) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO epochs (reserve_spent, units_purchased, partner_count, per_partner, remainder, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		reserveSpent.String(), unitsPurchased.String(), partnerCount,
		perPartner.String(), remainder.String(), now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert epoch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read epoch id: %w", err)
	}
	return id, nil
}

// InsertPayoutTx journals one partner's share of an epoch
func (r *Repository) InsertPayoutTx(tx *sql.Tx, epochID int64, partnerID string, units *big.Int, now int64) error {
	_, err := tx.Exec(
		`INSERT INTO epoch_payouts (epoch_id, partner_id, units, created_at) VALUES (?, ?, ?, ?)`,
		epochID, partnerID, units.String(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert epoch payout: %w", err)
	}
	return nil
}

// ListEpochs returns settled epochs, newest first
func (r *Repository) ListEpochs(limit int) ([]Epoch, error) {
	rows, err := r.db.Query(
		`SELECT id, reserve_spent, units_purchased, partner_count, per_partner, remainder, settled_at
		 FROM epochs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	epochs := make([]Epoch, 0)
	for rows.Next() {
		var e Epoch
		var spentStr, unitsStr, perStr, remStr string
		if err := rows.Scan(&e.ID, &spentStr, &unitsStr, &e.PartnerCount, &perStr, &remStr, &e.SettledAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan epoch row")
			continue
		}
		if e.ReserveSpent, err = fixedmath.ParseAmount(spentStr); err != nil {
			r.log.Warn().Err(err).Int64("id", e.ID).Msg("Corrupt reserve_spent in epoch")
			continue
		}
		if e.UnitsPurchased, err = fixedmath.ParseAmount(unitsStr); err != nil {
			r.log.Warn().Err(err).Int64("id", e.ID).Msg("Corrupt units_purchased in epoch")
			continue
		}
		if e.PerPartner, err = fixedmath.ParseAmount(perStr); err != nil {
			r.log.Warn().Err(err).Int64("id", e.ID).Msg("Corrupt per_partner in epoch")
			continue
		}
		if e.Remainder, err = fixedmath.ParseAmount(remStr); err != nil {
			r.log.Warn().Err(err).Int64("id", e.ID).Msg("Corrupt remainder in epoch")
			continue
		}
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

// ListPayouts returns the payouts of one epoch in partner order
func (r *Repository) ListPayouts(epochID int64) ([]Payout, error) {
	rows, err := r.db.Query(
		`SELECT id, epoch_id, partner_id, units, created_at
		 FROM epoch_payouts WHERE epoch_id = ? ORDER BY id`, epochID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query epoch payouts: %w", err)
	}
	defer rows.Close()

	payouts := make([]Payout, 0)
	for rows.Next() {
		var p Payout
		var unitsStr string
		if err := rows.Scan(&p.ID, &p.EpochID, &p.PartnerID, &unitsStr, &p.CreatedAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan payout row")
			continue
		}
		if p.Units, err = fixedmath.ParseAmount(unitsStr); err != nil {
			r.log.Warn().Err(err).Int64("id", p.ID).Msg("Corrupt units in payout")
			continue
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}
