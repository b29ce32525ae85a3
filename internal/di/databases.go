// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/config"
	"github.com/polkapulse/vault/internal/database"
)

// InitializeDatabases opens all four databases and applies schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. vault.db - core protocol state. Every public entry point mutates
	// this database inside one transaction, so it runs the ledger profile.
	vaultDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/vault.db",
		Profile: database.ProfileLedger,
		Name:    "vault",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault database: %w", err)
	}
	container.VaultDB = vaultDB

	// 2. telemetry.db - venue rate observations and computed snapshots
	telemetryDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/telemetry.db",
		Profile: database.ProfileStandard,
		Name:    "telemetry",
	})
	if err != nil {
		container.CloseDatabases(log)
		return nil, fmt.Errorf("failed to initialize telemetry database: %w", err)
	}
	container.TelemetryDB = telemetryDB

	// 3. config.db - application settings
	configDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/config.db",
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		container.CloseDatabases(log)
		return nil, fmt.Errorf("failed to initialize config database: %w", err)
	}
	container.ConfigDB = configDB

	// 4. cache.db - ephemeral operational data (job history)
	cacheDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/cache.db",
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		container.CloseDatabases(log)
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	// Apply schemas to all databases (single source of truth)
	for _, db := range []*database.DB{vaultDB, telemetryDB, configDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			container.CloseDatabases(log)
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("All databases initialized and schemas applied")

	return container, nil
}
