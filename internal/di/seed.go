package di

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/config"
	"github.com/polkapulse/vault/internal/database"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

// seedProtocolState writes the bootstrap parameters into vault.db on
// first boot. The schema creates the singleton state rows with
// updated_at 0; a non-zero core_state.updated_at means the parameters
// were already seeded (or governed since), so env values are ignored
// and the stored ones stand.
func seedProtocolState(container *Container, cfg *config.Config, log zerolog.Logger) error {
	state, err := container.CoreRepo.GetState()
	if err != nil {
		return fmt.Errorf("failed to read core state: %w", err)
	}
	if state.UpdatedAt != 0 {
		log.Debug().Msg("Protocol state already seeded, keeping stored parameters")
		return nil
	}

	threshold, err := fixedmath.ParseAmount(cfg.Bootstrap.HarvestThreshold)
	if err != nil {
		return fmt.Errorf("invalid BOOTSTRAP_HARVEST_THRESHOLD: %w", err)
	}
	minDeposit, err := fixedmath.ParseAmount(cfg.Bootstrap.MinDeposit)
	if err != nil {
		return fmt.Errorf("invalid BOOTSTRAP_MIN_DEPOSIT: %w", err)
	}

	now := time.Now().Unix()
	err = database.WithTransaction(container.VaultDB.Conn(), func(tx *sql.Tx) error {
		if err := container.CoreRepo.SetFeeConfigTx(tx, cfg.Bootstrap.PerformanceFeeBps, cfg.FeeRecipient, now); err != nil {
			return err
		}
		if err := container.CoreRepo.SetTreasuryBpsTx(tx, cfg.Bootstrap.TreasuryReserveBps, now); err != nil {
			return err
		}
		if err := container.CoreRepo.SetMinDepositTx(tx, minDeposit, now); err != nil {
			return err
		}
		if err := container.CoreRepo.SetCompoundPeriodsTx(tx, cfg.Bootstrap.CompoundPeriods, now); err != nil {
			return err
		}
		if err := container.HarvestRepo.SetThresholdTx(tx, threshold, now); err != nil {
			return err
		}
		return container.TreasuryRepo.SetEpochIntervalTx(tx, cfg.Bootstrap.EpochInterval, now)
	})
	if err != nil {
		return err
	}

	log.Info().
		Uint32("fee_bps", cfg.Bootstrap.PerformanceFeeBps).
		Uint32("treasury_bps", cfg.Bootstrap.TreasuryReserveBps).
		Str("harvest_threshold", threshold.String()).
		Str("min_deposit", minDeposit.String()).
		Int64("epoch_interval", cfg.Bootstrap.EpochInterval).
		Uint32("compound_periods", cfg.Bootstrap.CompoundPeriods).
		Msg("Seeded protocol parameters from bootstrap config")

	return nil
}
