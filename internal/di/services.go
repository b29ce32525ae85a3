// Package di provides dependency injection for service implementations.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/clients/feed"
	"github.com/polkapulse/vault/internal/clients/gateway"
	"github.com/polkapulse/vault/internal/config"
	"github.com/polkapulse/vault/internal/database"
	"github.com/polkapulse/vault/internal/domain"
	"github.com/polkapulse/vault/internal/events"
	"github.com/polkapulse/vault/internal/modules/harvest"
	"github.com/polkapulse/vault/internal/modules/ledger"
	"github.com/polkapulse/vault/internal/modules/orchestrator"
	"github.com/polkapulse/vault/internal/modules/router"
	"github.com/polkapulse/vault/internal/modules/settings"
	"github.com/polkapulse/vault/internal/modules/telemetry"
	"github.com/polkapulse/vault/internal/modules/treasury"
	"github.com/polkapulse/vault/internal/reliability"
)

// InitializeServices creates all services and stores them in the container.
//
// The gateway client carries every external chain surface the modules
// need (rewards, balances, transfers, reserve pulls, dispatches, unit
// purchases), so it is injected directly wherever a domain interface is
// required; no adapters sit in between.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// ==========================================
	// STEP 1: Events
	// ==========================================
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// ==========================================
	// STEP 2: Settings
	// ==========================================
	// Created first: the gateway, feed, telemetry and offsite backup
	// services all read runtime settings through it.
	container.SettingsService = settings.NewService(container.SettingsRepo, log)

	// ==========================================
	// STEP 3: Clients
	// ==========================================
	container.GatewayClient = gateway.NewClient(
		cfg.GatewayURL,
		cfg.GatewayAPIKey,
		container.SettingsService,
		log,
	)
	log.Info().Str("url", cfg.GatewayURL).Msg("Gateway client initialized")

	venueA := domain.Venue{
		ID:          cfg.Venues.VenueAID,
		Destination: cfg.Venues.VenueADestination,
		FeeBps:      cfg.Venues.VenueAFeeBps,
	}
	venueB := domain.Venue{
		ID:          cfg.Venues.VenueBID,
		Destination: cfg.Venues.VenueBDestination,
		FeeBps:      cfg.Venues.VenueBFeeBps,
	}

	// ==========================================
	// STEP 4: Telemetry
	// ==========================================
	// Needs the gateway as its polling oracle; doubles as the sample
	// sink for the feed client and the venue advisor for the
	// orchestrator.
	container.TelemetryService = telemetry.NewService(
		container.TelemetryRepo,
		container.GatewayClient,
		container.SettingsService,
		venueA,
		venueB,
		log,
	)

	container.FeedClient = feed.NewClient(
		cfg.FeedURL,
		cfg.GatewayAPIKey,
		container.SettingsService,
		container.TelemetryService,
		log,
	)
	if cfg.FeedURL == "" {
		log.Info().Msg("No feed URL configured, telemetry relies on gateway polling only")
	}

	// ==========================================
	// STEP 5: Protocol module services
	// ==========================================
	container.LedgerService = ledger.NewService(container.LedgerRepo, log)
	container.HarvestService = harvest.NewService(
		container.HarvestRepo,
		container.GatewayClient,
		cfg.VaultAccount,
		log,
	)
	container.RouterService = router.NewService(
		container.RouterRepo,
		container.GatewayClient,
		venueA,
		venueB,
		cfg.VaultAccount,
		log,
	)
	container.TreasuryService = treasury.NewService(
		container.TreasuryRepo,
		container.GatewayClient,
		log,
	)

	// ==========================================
	// STEP 6: Orchestrator
	// ==========================================
	// Owns the vault.db transaction that spans the module services.
	container.OrchestratorService = orchestrator.NewService(
		container.VaultDB.Conn(),
		container.CoreRepo,
		container.LedgerService,
		container.HarvestService,
		container.TreasuryService,
		container.RouterService,
		container.GatewayClient,
		container.TelemetryService,
		log,
	)

	// ==========================================
	// STEP 7: Reliability services
	// ==========================================
	databases := map[string]*database.DB{
		"vault":     container.VaultDB,
		"telemetry": container.TelemetryDB,
		"config":    container.ConfigDB,
		"cache":     container.CacheDB,
	}

	backupDir := cfg.DataDir + "/backups"
	container.BackupService = reliability.NewBackupService(databases, backupDir, log)

	container.HealthServices = make(map[string]*reliability.DatabaseHealthService)
	for name, db := range databases {
		container.HealthServices[name] = reliability.NewDatabaseHealthService(db, container.BackupService, log)
	}

	// Always constructed; Enabled() consults settings on every run, so
	// operators can switch offsite backups on without a restart.
	container.OffsiteBackupService = reliability.NewOffsiteBackupService(
		container.BackupService,
		container.SettingsService,
		container.EventManager,
		cfg.DataDir,
		log,
	)

	// ==========================================
	// STEP 8: First-boot parameter seeding
	// ==========================================
	if err := seedProtocolState(container, cfg, log); err != nil {
		return fmt.Errorf("failed to seed protocol state: %w", err)
	}

	log.Info().Msg("Services initialized")

	return nil
}
