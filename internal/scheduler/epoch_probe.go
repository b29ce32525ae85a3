package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/modules/treasury"
)

// EpochRunner is the slice of the orchestrator the epoch probe needs.
type EpochRunner interface {
	EpochReady(now int64) (bool, error)
	TriggerTreasuryEpoch(ctx context.Context, minAcceptableUnits *big.Int, now int64) (*treasury.Settlement, error)
}

// EpochProbeJob checks whether the treasury epoch interval has elapsed and
// settles the epoch when it has. Epochs triggered here run without a
// minimum-units bound since there is no caller to protect from slippage.
type EpochProbeJob struct {
	orchestrator EpochRunner
	log          zerolog.Logger
}

// NewEpochProbeJob creates a new epoch probe job
func NewEpochProbeJob(orch EpochRunner, log zerolog.Logger) *EpochProbeJob {
	return &EpochProbeJob{
		orchestrator: orch,
		log:          log.With().Str("job", "epoch_probe").Logger(),
	}
}

// Name returns the job name
func (j *EpochProbeJob) Name() string {
	return "epoch_probe"
}

// Run probes epoch readiness and settles when due
func (j *EpochProbeJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	now := time.Now().Unix()

	ready, err := j.orchestrator.EpochReady(now)
	if err != nil {
		return fmt.Errorf("failed to probe epoch readiness: %w", err)
	}
	if !ready {
		j.log.Debug().Msg("Epoch not due, skipping settlement")
		return nil
	}

	settlement, err := j.orchestrator.TriggerTreasuryEpoch(ctx, nil, now)
	if err != nil {
		return fmt.Errorf("epoch settlement failed: %w", err)
	}

	j.log.Info().
		Int64("epoch_id", settlement.EpochID).
		Str("reserve_spent", settlement.ReserveSpent.String()).
		Str("units_purchased", settlement.UnitsPurchased.String()).
		Int("partner_count", settlement.PartnerCount).
		Msg("Treasury epoch settled")

	return nil
}
