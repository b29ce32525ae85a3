package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ObservationPruner is the slice of the telemetry service retention needs.
type ObservationPruner interface {
	PruneStale(now int64) (int64, error)
}

// RetentionJob enforces the data retention windows: raw telemetry
// observations past their horizon and finished job history rows.
type RetentionJob struct {
	telemetry ObservationPruner
	history   *History
	log       zerolog.Logger
}

// NewRetentionJob creates a new retention job
func NewRetentionJob(telemetry ObservationPruner, history *History, log zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		telemetry: telemetry,
		history:   history,
		log:       log.With().Str("job", "retention").Logger(),
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "retention"
}

// Run prunes both stores, attempting each even when the other fails
func (j *RetentionJob) Run() error {
	var firstErr error

	if j.telemetry != nil {
		pruned, err := j.telemetry.PruneStale(time.Now().Unix())
		if err != nil {
			j.log.Error().Err(err).Msg("Telemetry prune failed")
			firstErr = fmt.Errorf("telemetry prune failed: %w", err)
		} else if pruned > 0 {
			j.log.Info().Int64("pruned", pruned).Msg("Stale observations pruned")
		}
	}

	if j.history != nil {
		pruned, err := j.history.Prune()
		if err != nil {
			j.log.Error().Err(err).Msg("Job history prune failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("job history prune failed: %w", err)
			}
		} else if pruned > 0 {
			j.log.Info().Int("pruned", pruned).Msg("Job history pruned")
		}
	}

	return firstErr
}
