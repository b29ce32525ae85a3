// Package scheduler runs the keeper jobs that drive the vault between
// requests: probing harvest and epoch readiness, polling venue telemetry,
// pruning aged rows, and kicking off backups. Every run is recorded in
// the job history table in cache.db.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/events"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron    *cron.Cron
	history *History
	events  *events.Manager
	log     zerolog.Logger
}

// New creates a new scheduler. Overlapping runs of the same job are
// skipped rather than queued. Both history and eventManager may be nil.
func New(history *History, eventManager *events.Manager, log zerolog.Logger) *Scheduler {
	scoped := log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: scoped})),
		),
		history: history,
		events:  eventManager,
		log:     scoped,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 0 3 * * *"        - 3 AM daily
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.run(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.run(job)
}

// run executes a job, records the outcome in the run history, and emits
// the job lifecycle events the SSE stream surfaces.
func (s *Scheduler) run(job Job) error {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	start := time.Now()
	runID := s.recordStart(job.Name(), start)
	s.emit(events.JobStarted, job.Name(), nil)

	err := job.Run()
	s.recordResult(runID, start, err)

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Msg("Job failed")
		s.emit(events.JobFailed, job.Name(), map[string]interface{}{"error": err.Error()})
		return err
	}

	s.log.Debug().
		Str("job", job.Name()).
		Dur("duration", time.Since(start)).
		Msg("Job completed")
	s.emit(events.JobCompleted, job.Name(), map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

func (s *Scheduler) emit(eventType events.EventType, jobName string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["job"] = jobName
	s.events.Emit(eventType, "scheduler", data)
}

// History recording must never break a job run, so failures here only warn.
func (s *Scheduler) recordStart(name string, start time.Time) int64 {
	if s.history == nil {
		return 0
	}
	id, err := s.history.RecordStart(name, start)
	if err != nil {
		s.log.Warn().Err(err).Str("job", name).Msg("Failed to record job start")
		return 0
	}
	return id
}

func (s *Scheduler) recordResult(id int64, start time.Time, runErr error) {
	if s.history == nil || id == 0 {
		return
	}
	if err := s.history.RecordResult(id, start, runErr); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record job result")
	}
}

// cronLogger adapts zerolog to the cron logger interface so overlap skips
// show up in the main log.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
