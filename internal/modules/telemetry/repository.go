package telemetry

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Repository persists observations and snapshots in telemetry.db.
// Nothing here joins a core vault transaction, so every method runs
// directly against the connection.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new telemetry repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "telemetry").Logger(),
	}
}

// InsertObservation appends one raw venue rate sample
func (r *Repository) InsertObservation(venue string, grossRateBps uint32, periodSeconds uint64, observedAt int64) error {
	_, err := r.db.Exec(
		`INSERT INTO venue_observations (venue, gross_rate_bps, period_seconds, observed_at)
		 VALUES (?, ?, ?, ?)`,
		venue, grossRateBps, periodSeconds, observedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert venue observation: %w", err)
	}
	return nil
}

// RecentObservations returns the latest samples for a venue, newest first
func (r *Repository) RecentObservations(venue string, limit int) ([]Observation, error) {
	rows, err := r.db.Query(
		`SELECT id, venue, gross_rate_bps, period_seconds, observed_at
		 FROM venue_observations WHERE venue = ?
		 ORDER BY observed_at DESC, id DESC LIMIT ?`,
		venue, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query venue observations: %w", err)
	}
	defer rows.Close()

	observations := make([]Observation, 0)
	for rows.Next() {
		var obs Observation
		if err := rows.Scan(&obs.ID, &obs.Venue, &obs.GrossRateBps, &obs.PeriodSeconds, &obs.ObservedAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan venue observation row")
			continue
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// PruneObservations deletes samples observed before the cutoff and
// returns how many rows went away.
func (r *Repository) PruneObservations(cutoff int64) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM venue_observations WHERE observed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune venue observations: %w", err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned observations: %w", err)
	}
	return pruned, nil
}

// InsertSnapshot appends one derived per-venue sample
func (r *Repository) InsertSnapshot(snap *Snapshot) error {
	_, err := r.db.Exec(
		`INSERT INTO venue_snapshots (venue, smoothed_bps, annualized_bps, risk_score, window_size, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.Venue, snap.SmoothedBps, snap.AnnualizedBps, snap.RiskScore, snap.WindowSize, snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert venue snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `id, venue, smoothed_bps, annualized_bps, risk_score, window_size, computed_at`

// LatestSnapshot returns the newest snapshot for a venue, nil when none exists
func (r *Repository) LatestSnapshot(venue string) (*Snapshot, error) {
	row := r.db.QueryRow(
		`SELECT `+snapshotColumns+` FROM venue_snapshots
		 WHERE venue = ? ORDER BY computed_at DESC, id DESC LIMIT 1`,
		venue,
	)

	var snap Snapshot
	err := row.Scan(&snap.ID, &snap.Venue, &snap.SmoothedBps, &snap.AnnualizedBps,
		&snap.RiskScore, &snap.WindowSize, &snap.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan venue snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns recent snapshots, newest first. Empty venue
// means all venues.
func (r *Repository) ListSnapshots(venue string, limit int) ([]Snapshot, error) {
	var rows *sql.Rows
	var err error
	if venue != "" {
		rows, err = r.db.Query(
			`SELECT `+snapshotColumns+` FROM venue_snapshots
			 WHERE venue = ? ORDER BY id DESC LIMIT ?`, venue, limit)
	} else {
		rows, err = r.db.Query(
			`SELECT `+snapshotColumns+` FROM venue_snapshots
			 ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query venue snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0)
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.Venue, &snap.SmoothedBps, &snap.AnnualizedBps,
			&snap.RiskScore, &snap.WindowSize, &snap.ComputedAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan venue snapshot row")
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}
