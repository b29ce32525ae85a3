// Package di provides dependency injection type definitions.
//
// The Container is the single source of truth for all service instances.
// It is created by Wire() and handed to the HTTP server for access to
// services; JobInstances holds the scheduled jobs for manual triggering.
package di

import (
	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/clients/feed"
	"github.com/polkapulse/vault/internal/clients/gateway"
	"github.com/polkapulse/vault/internal/database"
	"github.com/polkapulse/vault/internal/events"
	"github.com/polkapulse/vault/internal/modules/harvest"
	"github.com/polkapulse/vault/internal/modules/ledger"
	"github.com/polkapulse/vault/internal/modules/orchestrator"
	"github.com/polkapulse/vault/internal/modules/router"
	"github.com/polkapulse/vault/internal/modules/settings"
	"github.com/polkapulse/vault/internal/modules/telemetry"
	"github.com/polkapulse/vault/internal/modules/treasury"
	"github.com/polkapulse/vault/internal/reliability"
	"github.com/polkapulse/vault/internal/scheduler"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases (4-database architecture)
	VaultDB     *database.DB // Core protocol state (shares, harvest, router, treasury, orchestrator)
	TelemetryDB *database.DB // Venue rate observations and snapshots
	ConfigDB    *database.DB // Application settings (key-value)
	CacheDB     *database.DB // Ephemeral operational data (job history)

	// Clients
	GatewayClient *gateway.Client // Chain gateway (rewards, balances, transfers, dispatches)
	FeedClient    *feed.Client    // Venue telemetry websocket subscriber

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	LedgerRepo    *ledger.Repository
	HarvestRepo   *harvest.Repository
	RouterRepo    *router.Repository
	TreasuryRepo  *treasury.Repository
	CoreRepo      *orchestrator.Repository
	TelemetryRepo *telemetry.Repository
	SettingsRepo  *settings.Repository

	// Services
	LedgerService       *ledger.Service
	HarvestService      *harvest.Service
	RouterService       *router.Service
	TreasuryService     *treasury.Service
	TelemetryService    *telemetry.Service
	OrchestratorService *orchestrator.Service
	SettingsService     *settings.Service

	// Reliability
	BackupService        *reliability.BackupService
	OffsiteBackupService *reliability.OffsiteBackupService
	HealthServices       map[string]*reliability.DatabaseHealthService

	// Scheduler
	Scheduler  *scheduler.Scheduler
	JobHistory *scheduler.History
}

// CloseDatabases closes every open database. Wire error paths and
// main's shutdown both funnel through here so no handle leaks.
func (c *Container) CloseDatabases(log zerolog.Logger) {
	for _, db := range []*database.DB{c.VaultDB, c.TelemetryDB, c.ConfigDB, c.CacheDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to close database")
		}
	}
}

// JobInstances holds references to all registered jobs for manual
// triggering via the API.
type JobInstances struct {
	// Keeper jobs
	HarvestProbe  scheduler.Job
	EpochProbe    scheduler.Job
	TelemetryPoll scheduler.Job
	Retention     scheduler.Job

	// Reliability jobs
	HourlyBackup       scheduler.Job
	DailyBackup        scheduler.Job
	WeeklyBackup       scheduler.Job
	OffsiteBackup      scheduler.Job
	DailyMaintenance   scheduler.Job
	WeeklyMaintenance  scheduler.Job
	MonthlyMaintenance scheduler.Job
}

// All returns every registered job, for bulk handoff to the server's
// trigger endpoint.
func (j *JobInstances) All() []scheduler.Job {
	return []scheduler.Job{
		j.HarvestProbe,
		j.EpochProbe,
		j.TelemetryPoll,
		j.Retention,
		j.HourlyBackup,
		j.DailyBackup,
		j.WeeklyBackup,
		j.OffsiteBackup,
		j.DailyMaintenance,
		j.WeeklyMaintenance,
		j.MonthlyMaintenance,
	}
}
