package scheduler

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/modules/settings"
)

// historyRetentionDays is how long finished runs stay queryable before
// Prune removes them.
const historyRetentionDays = 14

// JobRun is one recorded execution of a scheduled job.
type JobRun struct {
	ID          int64  `json:"id"`
	JobName     string `json:"job_name"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt int64  `json:"completed_at,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
}

// History records job runs in the job_history table of cache.db so
// operators can see what the keeper has been doing and what failed.
// It doubles as the cache maintainer behind the settings cache endpoints.
type History struct {
	db  *sql.DB
	log zerolog.Logger

	mu     sync.Mutex
	pruned int
}

// NewHistory creates a run history backed by the cache database.
func NewHistory(db *sql.DB, log zerolog.Logger) *History {
	return &History{
		db:  db,
		log: log.With().Str("component", "job_history").Logger(),
	}
}

// RecordStart inserts a started row for the named job and returns its id.
func (h *History) RecordStart(jobName string, start time.Time) (int64, error) {
	result, err := h.db.Exec(`
		INSERT INTO job_history (job_name, status, started_at)
		VALUES (?, 'started', ?)
	`, jobName, start.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to record job start: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read job history id: %w", err)
	}
	return id, nil
}

// RecordResult finalizes a run row with its outcome. A nil runErr marks
// the run completed, anything else marks it failed with the error text.
func (h *History) RecordResult(id int64, start time.Time, runErr error) error {
	status := "completed"
	var message interface{}
	if runErr != nil {
		status = "failed"
		message = runErr.Error()
	}

	completed := time.Now()
	_, err := h.db.Exec(`
		UPDATE job_history
		SET status = ?, message = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?
	`, status, message, completed.Unix(), completed.Sub(start).Milliseconds(), id)
	if err != nil {
		return fmt.Errorf("failed to record job result: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs for one job, newest first.
func (h *History) RecentRuns(jobName string, limit int) ([]JobRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.Query(`
		SELECT id, job_name, status, COALESCE(message, ''), started_at,
		       COALESCE(completed_at, 0), COALESCE(duration_ms, 0)
		FROM job_history
		WHERE job_name = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job history: %w", err)
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		var run JobRun
		if err := rows.Scan(&run.ID, &run.JobName, &run.Status, &run.Message,
			&run.StartedAt, &run.CompletedAt, &run.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan job history row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job history rows: %w", err)
	}
	return runs, nil
}

// Stats reports the cache maintenance view of the history table.
func (h *History) Stats() (settings.CacheStats, error) {
	var entries int
	if err := h.db.QueryRow(`SELECT COUNT(*) FROM job_history`).Scan(&entries); err != nil {
		return settings.CacheStats{}, fmt.Errorf("failed to count job history: %w", err)
	}

	h.mu.Lock()
	pruned := h.pruned
	h.mu.Unlock()

	return settings.CacheStats{
		JobHistory: settings.JobHistoryStats{
			Entries: entries,
			Pruned:  pruned,
		},
	}, nil
}

// Prune deletes runs whose start fell outside the retention window and
// returns how many rows went.
func (h *History) Prune() (int, error) {
	cutoff := time.Now().AddDate(0, 0, -historyRetentionDays).Unix()

	result, err := h.db.Exec(`DELETE FROM job_history WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune job history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned job history rows: %w", err)
	}

	h.mu.Lock()
	h.pruned += int(deleted)
	h.mu.Unlock()

	if deleted > 0 {
		h.log.Debug().Int64("pruned", deleted).Msg("Job history pruned")
	}
	return int(deleted), nil
}
