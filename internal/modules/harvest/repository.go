package harvest

import (
	"database/sql"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Repository handles harvest state persistence in vault.db.
// Mutating methods take the caller's transaction.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new harvest repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "harvest").Logger(),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*State, error) {
	var thresholdStr, lifetimeStr string
	var state State

	err := row.Scan(&thresholdStr, &state.LastHarvestMarker, &lifetimeStr, &state.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan harvest state: %w", err)
	}

	state.Threshold, err = fixedmath.ParseAmount(thresholdStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt threshold: %w", err)
	}
	state.LifetimeHarvested, err = fixedmath.ParseAmount(lifetimeStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt lifetime_harvested: %w", err)
	}
	return &state, nil
}

const stateQuery = `SELECT threshold, last_harvest_marker, lifetime_harvested, updated_at
                    FROM harvest_state WHERE id = 1`

// GetState returns the harvest state outside any transaction
func (r *Repository) GetState() (*State, error) {
	return scanState(r.db.QueryRow(stateQuery))
}

// GetStateTx returns the harvest state inside the caller's transaction
func (r *Repository) GetStateTx(tx *sql.Tx) (*State, error) {
	return scanState(tx.QueryRow(stateQuery))
}

// SetThresholdTx updates the harvest threshold
func (r *Repository) SetThresholdTx(tx *sql.Tx, threshold *big.Int, now int64) error {
	_, err := tx.Exec(
		`UPDATE harvest_state SET threshold = ?, updated_at = ? WHERE id = 1`,
		threshold.String(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to update harvest threshold: %w", err)
	}
	return nil
}

// SetMarkerTx advances the last-harvest marker
func (r *Repository) SetMarkerTx(tx *sql.Tx, marker int64, now int64) error {
	_, err := tx.Exec(
		`UPDATE harvest_state SET last_harvest_marker = ?, updated_at = ? WHERE id = 1`,
		marker, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update harvest marker: %w", err)
	}
	return nil
}

// AddLifetimeTx accumulates a harvested amount into the lifetime total
func (r *Repository) AddLifetimeTx(tx *sql.Tx, amount *big.Int, now int64) error {
	state, err := r.GetStateTx(tx)
	if err != nil {
		return err
	}
	lifetime, err := fixedmath.CheckedAdd(state.LifetimeHarvested, amount)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`UPDATE harvest_state SET lifetime_harvested = ?, updated_at = ? WHERE id = 1`,
		lifetime.String(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to update lifetime harvested: %w", err)
	}
	return nil
}

// LogHarvestTx appends one completed harvest to the log
func (r *Repository) LogHarvestTx(tx *sql.Tx, gross, fee, net *big.Int, marker int64, now int64) error {
	_, err := tx.Exec(
		`INSERT INTO harvest_log (gross, fee, net, marker, created_at) VALUES (?, ?, ?, ?, ?)`,
		gross.String(), fee.String(), net.String(), marker, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert harvest log entry: %w", err)
	}
	return nil
}

// ListHarvests returns recent harvests, newest first
func (r *Repository) ListHarvests(limit int) ([]Record, error) {
	rows, err := r.db.Query(
		`SELECT id, gross, fee, net, marker, created_at
		 FROM harvest_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query harvest log: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var grossStr, feeStr, netStr string
		if err := rows.Scan(&rec.ID, &grossStr, &feeStr, &netStr, &rec.Marker, &rec.CreatedAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan harvest log row")
			continue
		}
		if rec.Gross, err = fixedmath.ParseAmount(grossStr); err != nil {
			r.log.Warn().Err(err).Int64("id", rec.ID).Msg("Corrupt gross amount in harvest log")
			continue
		}
		if rec.Fee, err = fixedmath.ParseAmount(feeStr); err != nil {
			r.log.Warn().Err(err).Int64("id", rec.ID).Msg("Corrupt fee amount in harvest log")
			continue
		}
		if rec.Net, err = fixedmath.ParseAmount(netStr); err != nil {
			r.log.Warn().Err(err).Int64("id", rec.ID).Msg("Corrupt net amount in harvest log")
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
