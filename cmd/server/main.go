// Package main is the entry point for the vault service: a pooled-capital
// yield vault that mints and burns pool shares, harvests staking rewards,
// routes capital across two deployment venues, and settles treasury
// epochs, with a keeper scheduler standing in for external callers.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polkapulse/vault/internal/config"
	"github.com/polkapulse/vault/internal/di"
	"github.com/polkapulse/vault/internal/server"
	"github.com/polkapulse/vault/internal/version"
	"github.com/polkapulse/vault/pkg/logger"
)

// main orchestrates the startup sequence:
// 1. Loads configuration from environment variables
// 2. Initializes logging
// 3. Wires all dependencies via the DI container (databases, repositories,
//    services, scheduler jobs, first-boot parameter seeding)
// 4. Updates configuration from the settings database (credentials, tokens)
// 5. Starts the HTTP server and the keeper scheduler
// 6. Waits for shutdown signal and performs graceful shutdown
//
// The application uses a 4-database architecture:
// - vault.db: core protocol state (shares, harvest, router, treasury, orchestrator)
// - telemetry.db: venue rate observations and snapshots
// - config.db: application settings
// - cache.db: ephemeral operational data (job history)
func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().Str("version", version.Version).Msg("Starting vault")

	// Wire all dependencies using DI container.
	// This initializes databases, repositories, services and scheduler
	// jobs, and seeds the protocol parameters on first boot.
	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// All databases must be properly closed on exit so WAL checkpoints
	// are written. Deferred so cleanup happens even on panic.
	defer container.CloseDatabases(log)

	// Settings database takes precedence over environment variables for
	// credentials and capability tokens, so operators can rotate them
	// via the API without a restart.
	if err := cfg.UpdateFromSettings(container.SettingsRepo); err != nil {
		log.Warn().Err(err).Msg("Failed to update config from settings DB, using environment variables")
	}

	// Start the telemetry feed subscriber. Without a feed URL the
	// telemetry poll job covers rate observations on its own.
	if cfg.FeedURL != "" {
		if err := container.FeedClient.Start(); err != nil {
			log.Warn().Err(err).Msg("Feed client failed to start, falling back to gateway polling")
		}
	}

	srv := server.New(server.Config{
		Log:         log,
		VaultDB:     container.VaultDB,
		TelemetryDB: container.TelemetryDB,
		ConfigDB:    container.ConfigDB,
		CacheDB:     container.CacheDB,
		Config:      cfg,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		Container:   container,
	})

	// Hand the scheduled jobs to the server so operators can trigger
	// any of them immediately via POST /api/system/jobs/{name}.
	srv.SetJobs(container.Scheduler, jobs.All()...)

	// Start server in goroutine so the scheduler and signal handling
	// run on the main thread.
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	container.Scheduler.Start()

	log.Info().Int("port", cfg.Port).Msg("Vault started successfully")

	// Block until SIGINT (Ctrl+C) or SIGTERM (systemd stop).
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop the scheduler first: it waits for running jobs, so no yield
	// loop or backup is cut off mid-transaction.
	container.Scheduler.Stop()

	if cfg.FeedURL != "" {
		if err := container.FeedClient.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping feed client")
		}
	}

	// The HTTP server gets up to 10 seconds to finish in-flight
	// requests before being forced down.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Vault stopped")
}
