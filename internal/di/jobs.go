// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/config"
	"github.com/polkapulse/vault/internal/database"
	"github.com/polkapulse/vault/internal/reliability"
	"github.com/polkapulse/vault/internal/scheduler"
)

// Cron schedules use the six-field form (with seconds). Backup tiers
// and maintenance are staggered through the night so they never
// contend for the same database.
const (
	scheduleHarvestProbe  = "0 */10 * * * *" // every 10 minutes
	scheduleEpochProbe    = "0 */30 * * * *" // every 30 minutes
	scheduleTelemetryPoll = "0 */5 * * * *"  // every 5 minutes
	scheduleRetention     = "0 0 4 * * *"    // 4 AM daily

	scheduleHourlyBackup       = "0 0 * * * *"  // top of every hour
	scheduleDailyBackup        = "0 0 1 * * *"  // 1 AM daily
	scheduleWeeklyBackup       = "0 0 1 * * 0"  // 1 AM Sunday
	scheduleOffsiteBackup      = "0 30 1 * * *" // 1:30 AM daily, after the daily tier
	scheduleDailyMaintenance   = "0 0 2 * * *"  // 2 AM daily
	scheduleWeeklyMaintenance  = "0 30 3 * * 0" // 3:30 AM Sunday
	scheduleMonthlyMaintenance = "0 0 4 1 * *"  // 4 AM on the 1st
)

// RegisterJobs creates the scheduler, constructs every job and
// registers its cron schedule. Returns JobInstances for manual
// triggering via the API.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	container.Scheduler = scheduler.New(container.JobHistory, container.EventManager, log)
	instances := &JobInstances{}

	// ==========================================
	// Keeper jobs
	// ==========================================
	instances.HarvestProbe = scheduler.NewHarvestProbeJob(container.OrchestratorService, log)
	instances.EpochProbe = scheduler.NewEpochProbeJob(container.OrchestratorService, log)
	instances.TelemetryPoll = scheduler.NewTelemetryPollJob(container.TelemetryService, container.FeedClient, log)
	instances.Retention = scheduler.NewRetentionJob(container.TelemetryService, container.JobHistory, log)

	// ==========================================
	// Reliability jobs
	// ==========================================
	databases := map[string]*database.DB{
		"vault":     container.VaultDB,
		"telemetry": container.TelemetryDB,
		"config":    container.ConfigDB,
		"cache":     container.CacheDB,
	}
	backupDir := cfg.DataDir + "/backups"

	instances.HourlyBackup = reliability.NewHourlyBackupJob(container.BackupService)
	instances.DailyBackup = reliability.NewDailyBackupJob(container.BackupService)
	instances.WeeklyBackup = reliability.NewWeeklyBackupJob(container.BackupService)
	instances.OffsiteBackup = reliability.NewOffsiteBackupJob(container.OffsiteBackupService, log)

	instances.DailyMaintenance = reliability.NewDailyMaintenanceJob(databases, container.HealthServices, backupDir, log)
	instances.WeeklyMaintenance = reliability.NewWeeklyMaintenanceJob(databases, log)
	instances.MonthlyMaintenance = reliability.NewMonthlyMaintenanceJob(databases, container.HealthServices, backupDir, log)

	schedules := []struct {
		spec string
		job  scheduler.Job
	}{
		{scheduleHarvestProbe, instances.HarvestProbe},
		{scheduleEpochProbe, instances.EpochProbe},
		{scheduleTelemetryPoll, instances.TelemetryPoll},
		{scheduleRetention, instances.Retention},
		{scheduleHourlyBackup, instances.HourlyBackup},
		{scheduleDailyBackup, instances.DailyBackup},
		{scheduleWeeklyBackup, instances.WeeklyBackup},
		{scheduleOffsiteBackup, instances.OffsiteBackup},
		{scheduleDailyMaintenance, instances.DailyMaintenance},
		{scheduleWeeklyMaintenance, instances.WeeklyMaintenance},
		{scheduleMonthlyMaintenance, instances.MonthlyMaintenance},
	}
	for _, s := range schedules {
		if err := container.Scheduler.AddJob(s.spec, s.job); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", s.job.Name(), err)
		}
	}

	log.Info().Int("jobs", len(schedules)).Msg("Scheduler jobs registered")

	return instances, nil
}
