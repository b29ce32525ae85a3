// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/modules/harvest"
	"github.com/polkapulse/vault/internal/modules/ledger"
	"github.com/polkapulse/vault/internal/modules/orchestrator"
	"github.com/polkapulse/vault/internal/modules/router"
	"github.com/polkapulse/vault/internal/modules/settings"
	"github.com/polkapulse/vault/internal/modules/telemetry"
	"github.com/polkapulse/vault/internal/modules/treasury"
	"github.com/polkapulse/vault/internal/scheduler"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	vaultConn := container.VaultDB.Conn()

	// Core protocol repositories all share vault.db so the orchestrator
	// can span them with a single transaction.
	container.LedgerRepo = ledger.NewRepository(vaultConn, log)
	container.HarvestRepo = harvest.NewRepository(vaultConn, log)
	container.RouterRepo = router.NewRepository(vaultConn, log)
	container.TreasuryRepo = treasury.NewRepository(vaultConn, log)
	container.CoreRepo = orchestrator.NewRepository(vaultConn, log)

	// Venue observations live apart from protocol state.
	container.TelemetryRepo = telemetry.NewRepository(container.TelemetryDB.Conn(), log)

	// Settings (needs configDB)
	container.SettingsRepo = settings.NewRepository(container.ConfigDB.Conn(), log)

	// Job run history (needs cacheDB)
	container.JobHistory = scheduler.NewHistory(container.CacheDB.Conn(), log)

	log.Debug().Msg("Repositories initialized")

	return nil
}
