package scheduler

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polkapulse/vault/internal/modules/treasury"
)

type stubEpochRunner struct {
	ready      bool
	readyErr   error
	settlement *treasury.Settlement
	trigErr    error
	triggers   int
	gotMin     *big.Int
}

func (s *stubEpochRunner) EpochReady(now int64) (bool, error) {
	return s.ready, s.readyErr
}

func (s *stubEpochRunner) TriggerTreasuryEpoch(ctx context.Context, minAcceptableUnits *big.Int, now int64) (*treasury.Settlement, error) {
	s.triggers++
	s.gotMin = minAcceptableUnits
	return s.settlement, s.trigErr
}

func settlementFixture() *treasury.Settlement {
	return &treasury.Settlement{
		EpochID:        3,
		ReserveSpent:   big.NewInt(5000),
		UnitsPurchased: big.NewInt(40),
		PartnerCount:   2,
		PerPartner:     big.NewInt(20),
		Remainder:      big.NewInt(0),
	}
}

func TestEpochProbe_SkipsWhenNotDue(t *testing.T) {
	runner := &stubEpochRunner{ready: false}
	job := NewEpochProbeJob(runner, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 0, runner.triggers)
}

func TestEpochProbe_SettlesWhenDue(t *testing.T) {
	runner := &stubEpochRunner{ready: true, settlement: settlementFixture()}
	job := NewEpochProbeJob(runner, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 1, runner.triggers)
	// Keeper-triggered epochs carry no slippage bound.
	assert.Nil(t, runner.gotMin)
}

func TestEpochProbe_ReadinessError(t *testing.T) {
	runner := &stubEpochRunner{readyErr: errors.New("state unavailable")}
	job := NewEpochProbeJob(runner, zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to probe epoch readiness")
	assert.Equal(t, 0, runner.triggers)
}

func TestEpochProbe_SettlementError(t *testing.T) {
	runner := &stubEpochRunner{ready: true, trigErr: errors.New("purchase failed")}
	job := NewEpochProbeJob(runner, zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epoch settlement failed")
}

func TestEpochProbe_Name(t *testing.T) {
	job := NewEpochProbeJob(&stubEpochRunner{}, zerolog.Nop())
	assert.Equal(t, "epoch_probe", job.Name())
}
