package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/polkapulse/vault/internal/modules/orchestrator"
)

// probeTimeout bounds one probe run including any loop or epoch it triggers.
const probeTimeout = 2 * time.Minute

// YieldLoopRunner is the slice of the orchestrator the harvest probe needs.
type YieldLoopRunner interface {
	LoopReady(ctx context.Context) (bool, error)
	RunYieldLoop(ctx context.Context, now int64) (*orchestrator.LoopResult, error)
}

// HarvestProbeJob periodically checks whether pending rewards have crossed
// the harvest threshold and runs the full yield loop when they have. This
// is the keeper that stands in for an external caller poking the vault.
type HarvestProbeJob struct {
	orchestrator YieldLoopRunner
	log          zerolog.Logger
}

// NewHarvestProbeJob creates a new harvest probe job
func NewHarvestProbeJob(orch YieldLoopRunner, log zerolog.Logger) *HarvestProbeJob {
	return &HarvestProbeJob{
		orchestrator: orch,
		log:          log.With().Str("job", "harvest_probe").Logger(),
	}
}

// Name returns the job name
func (j *HarvestProbeJob) Name() string {
	return "harvest_probe"
}

// Run probes readiness and triggers the yield loop when warranted
func (j *HarvestProbeJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	ready, err := j.orchestrator.LoopReady(ctx)
	if err != nil {
		return fmt.Errorf("failed to probe harvest readiness: %w", err)
	}
	if !ready {
		j.log.Debug().Msg("Harvest not ready, skipping yield loop")
		return nil
	}

	result, err := j.orchestrator.RunYieldLoop(ctx, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("yield loop failed: %w", err)
	}

	j.log.Info().
		Str("harvested", result.Harvested.String()).
		Str("fee", result.Fee.String()).
		Str("skimmed", result.Skimmed.String()).
		Str("credited", result.Credited.String()).
		Msg("Yield loop completed")

	return nil
}
