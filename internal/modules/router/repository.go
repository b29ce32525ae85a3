package router

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/pkg/fixedmath"
)

// Repository handles router state persistence in vault.db
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new router repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "router").Logger(),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row rowScanner) (*State, error) {
	var state State
	err := row.Scan(&state.ExecutionCount, &state.LastExecutionMarker, &state.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan router state: %w", err)
	}
	return &state, nil
}

const stateQuery = `SELECT execution_count, last_execution_marker, updated_at
                    FROM router_state WHERE id = 1`

// GetState returns the router state outside any transaction
func (r *Repository) GetState() (*State, error) {
	return scanState(r.db.QueryRow(stateQuery))
}

// GetStateTx returns the router state inside the caller's transaction
func (r *Repository) GetStateTx(tx *sql.Tx) (*State, error) {
	return scanState(tx.QueryRow(stateQuery))
}

// AdvanceTx increments the execution counter and moves the marker
func (r *Repository) AdvanceTx(tx *sql.Tx, marker int64, now int64) error {
	_, err := tx.Exec(
		`UPDATE router_state
		 SET execution_count = execution_count + 1, last_execution_marker = ?, updated_at = ?
		 WHERE id = 1`,
		marker, now,
	)
	if err != nil {
		return fmt.Errorf("failed to advance router state: %w", err)
	}
	return nil
}

// InsertDispatchTx journals one dispatch request
func (r *Repository) InsertDispatchTx(tx *sql.Tx, d Dispatch) error {
	_, err := tx.Exec(
		`INSERT INTO dispatches (id, venue, destination, beneficiary, amount, execution_budget, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Venue, d.Destination, d.Beneficiary,
		d.Amount.String(), d.ExecutionBudget.String(), d.Status, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dispatch %s: %w", d.ID, err)
	}
	return nil
}

// SetDispatchStatusTx updates a journaled dispatch's status
func (r *Repository) SetDispatchStatusTx(tx *sql.Tx, id, status string) error {
	_, err := tx.Exec(`UPDATE dispatches SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update dispatch %s status: %w", id, err)
	}
	return nil
}

// ListDispatches returns recent dispatches, newest first, optionally
// filtered by venue
func (r *Repository) ListDispatches(venue string, limit int) ([]Dispatch, error) {
	query := `SELECT id, venue, destination, beneficiary, amount, execution_budget, status, created_at
	          FROM dispatches`
	args := []interface{}{}
	if venue != "" {
		query += ` WHERE venue = ?`
		args = append(args, venue)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatches: %w", err)
	}
	defer rows.Close()

	dispatches := make([]Dispatch, 0)
	for rows.Next() {
		var d Dispatch
		var amountStr, budgetStr string
		if err := rows.Scan(&d.ID, &d.Venue, &d.Destination, &d.Beneficiary,
			&amountStr, &budgetStr, &d.Status, &d.CreatedAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan dispatch row")
			continue
		}
		if d.Amount, err = fixedmath.ParseAmount(amountStr); err != nil {
			r.log.Warn().Err(err).Str("id", d.ID).Msg("Corrupt amount in dispatch journal")
			continue
		}
		if d.ExecutionBudget, err = fixedmath.ParseAmount(budgetStr); err != nil {
			r.log.Warn().Err(err).Str("id", d.ID).Msg("Corrupt execution budget in dispatch journal")
			continue
		}
		dispatches = append(dispatches, d)
	}
	return dispatches, rows.Err()
}
