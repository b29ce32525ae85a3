package di

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polkapulse/vault/internal/config"
	"github.com/polkapulse/vault/internal/database"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:      t.TempDir(),
		Host:         "127.0.0.1",
		Port:         0,
		GatewayURL:   "http://localhost:9944",
		VaultAccount: "vault-pool",
		FeeRecipient: "vault-fees",
		Venues: &config.VenuesConfig{
			VenueAID:          "venue-a",
			VenueADestination: "2034",
			VenueBID:          "venue-b",
			VenueBDestination: "2032",
		},
		Bootstrap: &config.BootstrapConfig{
			HarvestThreshold:   "2000000000000000000",
			PerformanceFeeBps:  1500,
			TreasuryReserveBps: 700,
			EpochInterval:      3600,
			MinDeposit:         "1000000000000000000",
			CompoundPeriods:    6,
		},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.Nop()

	container, jobs, err := Wire(cfg, log)
	require.NoError(t, err)
	defer container.CloseDatabases(log)

	// Every dependency the server pulls out of the container must be set.
	assert.NotNil(t, container.VaultDB)
	assert.NotNil(t, container.TelemetryDB)
	assert.NotNil(t, container.ConfigDB)
	assert.NotNil(t, container.CacheDB)
	assert.NotNil(t, container.GatewayClient)
	assert.NotNil(t, container.FeedClient)
	assert.NotNil(t, container.EventBus)
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.LedgerService)
	assert.NotNil(t, container.HarvestService)
	assert.NotNil(t, container.RouterService)
	assert.NotNil(t, container.TreasuryService)
	assert.NotNil(t, container.TelemetryService)
	assert.NotNil(t, container.OrchestratorService)
	assert.NotNil(t, container.SettingsService)
	assert.NotNil(t, container.BackupService)
	assert.NotNil(t, container.OffsiteBackupService)
	assert.Len(t, container.HealthServices, 4)
	assert.NotNil(t, container.Scheduler)
	assert.NotNil(t, container.JobHistory)

	for _, job := range jobs.All() {
		require.NotNil(t, job)
		assert.NotEmpty(t, job.Name())
	}
}

func TestWire_SeedsBootstrapParameters(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.Nop()

	container, _, err := Wire(cfg, log)
	require.NoError(t, err)
	defer container.CloseDatabases(log)

	core, err := container.CoreRepo.GetState()
	require.NoError(t, err)
	assert.Equal(t, uint32(1500), core.FeeRateBps)
	assert.Equal(t, "vault-fees", core.FeeRecipient)
	assert.Equal(t, uint32(700), core.TreasuryBps)
	assert.Equal(t, "1000000000000000000", core.MinDeposit.String())
	assert.Equal(t, uint32(6), core.CompoundPeriods)
	assert.NotZero(t, core.UpdatedAt)

	hs, err := container.HarvestRepo.GetState()
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", hs.Threshold.String())

	ts, err := container.TreasuryRepo.GetState()
	require.NoError(t, err)
	assert.Equal(t, int64(3600), ts.EpochInterval)
}

func TestWire_SecondBootKeepsStoredParameters(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.Nop()

	container, _, err := Wire(cfg, log)
	require.NoError(t, err)

	// Govern a parameter after the first boot.
	err = database.WithTransaction(container.VaultDB.Conn(), func(tx *sql.Tx) error {
		return container.CoreRepo.SetTreasuryBpsTx(tx, 999, 42)
	})
	require.NoError(t, err)
	container.CloseDatabases(log)

	// Same data dir, different env bootstrap values.
	cfg.Bootstrap.TreasuryReserveBps = 100
	container2, _, err := Wire(cfg, log)
	require.NoError(t, err)
	defer container2.CloseDatabases(log)

	core, err := container2.CoreRepo.GetState()
	require.NoError(t, err)
	assert.Equal(t, uint32(999), core.TreasuryBps, "stored parameters must survive a restart")
}

func TestWire_RejectsMalformedBootstrapAmount(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bootstrap.HarvestThreshold = "not-a-number"

	_, _, err := Wire(cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOOTSTRAP_HARVEST_THRESHOLD")
}
