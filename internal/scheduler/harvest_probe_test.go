package scheduler

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polkapulse/vault/internal/modules/orchestrator"
)

type stubYieldRunner struct {
	ready    bool
	readyErr error
	result   *orchestrator.LoopResult
	runErr   error
	loops    int
}

func (s *stubYieldRunner) LoopReady(ctx context.Context) (bool, error) {
	return s.ready, s.readyErr
}

func (s *stubYieldRunner) RunYieldLoop(ctx context.Context, now int64) (*orchestrator.LoopResult, error) {
	s.loops++
	return s.result, s.runErr
}

func loopResultFixture() *orchestrator.LoopResult {
	return &orchestrator.LoopResult{
		Harvested: big.NewInt(1000),
		Fee:       big.NewInt(100),
		Skimmed:   big.NewInt(90),
		Credited:  big.NewInt(810),
	}
}

func TestHarvestProbe_SkipsWhenNotReady(t *testing.T) {
	runner := &stubYieldRunner{ready: false}
	job := NewHarvestProbeJob(runner, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 0, runner.loops)
}

func TestHarvestProbe_RunsLoopWhenReady(t *testing.T) {
	runner := &stubYieldRunner{ready: true, result: loopResultFixture()}
	job := NewHarvestProbeJob(runner, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, runner.loops)
}

func TestHarvestProbe_ReadinessError(t *testing.T) {
	runner := &stubYieldRunner{readyErr: errors.New("state unavailable")}
	job := NewHarvestProbeJob(runner, zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to probe harvest readiness")
	assert.Equal(t, 0, runner.loops)
}

func TestHarvestProbe_LoopError(t *testing.T) {
	runner := &stubYieldRunner{ready: true, runErr: errors.New("claim reverted")}
	job := NewHarvestProbeJob(runner, zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yield loop failed")
}

func TestHarvestProbe_Name(t *testing.T) {
	job := NewHarvestProbeJob(&stubYieldRunner{}, zerolog.Nop())
	assert.Equal(t, "harvest_probe", job.Name())
}
