package treasury

import (
	"context"
	"database/sql"
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polkapulse/vault/internal/database"
	"github.com/polkapulse/vault/internal/domain"
	testingpkg "github.com/polkapulse/vault/internal/testing"
	"github.com/polkapulse/vault/pkg/fixedmath"
)

func newTestService(t *testing.T) (*Service, *testingpkg.MockUnitPurchaser, *sql.DB, func()) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "vault")
	purchaser := testingpkg.NewMockUnitPurchaser()
	repo := NewRepository(db.Conn(), zerolog.Nop())
	svc := NewService(repo, purchaser, zerolog.Nop())
	return svc, purchaser, db.Conn(), cleanup
}

func inTx(t *testing.T, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	return database.WithTransaction(conn, fn)
}

// seedReserve accumulates enough yield that the reserve holds exactly the
// given number of whole tokens (skimmed at 50%).
func seedReserve(t *testing.T, svc *Service, conn *sql.DB, tokens int64) {
	t.Helper()
	err := inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.Accumulate(tx, fixedmath.Units(tokens*2), 5000, 100)
		return err
	})
	require.NoError(t, err)
}

func TestAccumulate_SkimsBpsSlice(t *testing.T) {
	svc, _, conn, cleanup := newTestService(t)
	defer cleanup()

	// 10% of 100 tokens
	var skim *big.Int
	err := inTx(t, conn, func(tx *sql.Tx) error {
		var err error
		skim, err = svc.Accumulate(tx, fixedmath.Units(100), 1000, 100)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, skim.Cmp(fixedmath.Units(10)))

	state, err := svc.State()
	require.NoError(t, err)
	assert.Equal(t, 0, state.Reserve.Cmp(fixedmath.Units(10)))

	// Second accumulation adds to the running reserve
	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.Accumulate(tx, fixedmath.Units(50), 1000, 200)
		return err
	})
	require.NoError(t, err)

	state, err = svc.State()
	require.NoError(t, err)
	assert.Equal(t, 0, state.Reserve.Cmp(fixedmath.Units(15)))
}

func TestAccumulate_Validation(t *testing.T) {
	svc, _, conn, cleanup := newTestService(t)
	defer cleanup()

	err := inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.Accumulate(tx, fixedmath.Zero(), 1000, 100)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.Accumulate(tx, nil, 1000, 100)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.Accumulate(tx, fixedmath.Units(100), 10_001, 100)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBasisPoints)
}

func TestAccumulate_ZeroBpsSkimsNothing(t *testing.T) {
	svc, _, conn, cleanup := newTestService(t)
	defer cleanup()

	var skim *big.Int
	err := inTx(t, conn, func(tx *sql.Tx) error {
		var err error
		skim, err = svc.Accumulate(tx, fixedmath.Units(100), 0, 100)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, skim.Sign())

	state, err := svc.State()
	require.NoError(t, err)
	assert.Equal(t, 0, state.Reserve.Sign())
}

func TestEpochReady_RequiresAllGates(t *testing.T) {
	svc, _, conn, cleanup := newTestService(t)
	defer cleanup()

	// Default interval is 86400 with marker 0: cadence alone is not enough
	ready, err := svc.EpochReady(100_000)
	require.NoError(t, err)
	assert.False(t, ready, "empty reserve")

	seedReserve(t, svc, conn, 10)
	ready, err = svc.EpochReady(100_000)
	require.NoError(t, err)
	assert.False(t, ready, "no active partners")

	err = inTx(t, conn, func(tx *sql.Tx) error {
		return svc.AddPartner(tx, "partner-1", 500, 100)
	})
	require.NoError(t, err)

	ready, err = svc.EpochReady(100_000)
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = svc.EpochReady(50_000)
	require.NoError(t, err)
	assert.False(t, ready, "cadence not elapsed")
}

func TestTriggerEpoch_Preconditions(t *testing.T) {
	svc, purchaser, conn, cleanup := newTestService(t)
	defer cleanup()

	// Cadence not elapsed
	err := inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.TriggerEpoch(context.Background(), tx, nil, 50_000)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrEpochNotReady)

	// Cadence elapsed, reserve empty
	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.TriggerEpoch(context.Background(), tx, nil, 100_000)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrEmptyReserve)

	// Reserve funded, no partners
	seedReserve(t, svc, conn, 10)
	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.TriggerEpoch(context.Background(), tx, nil, 100_000)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNoActivePartners)

	assert.Empty(t, purchaser.Purchases())
}

func TestTriggerEpoch_SettlesAndDistributes(t *testing.T) {
	svc, purchaser, conn, cleanup := newTestService(t)
	defer cleanup()

	seedReserve(t, svc, conn, 10)
	err := inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.AddPartner(tx, "partner-1", 500, 100); err != nil {
			return err
		}
		return svc.AddPartner(tx, "partner-2", 900, 100)
	})
	require.NoError(t, err)

	// 101 units across two partners: 50 each, odd unit to partner-1
	purchaser.SetUnitsOut(big.NewInt(101))

	var settlement *Settlement
	err = inTx(t, conn, func(tx *sql.Tx) error {
		var err error
		settlement, err = svc.TriggerEpoch(context.Background(), tx, big.NewInt(100), 100_000)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 0, settlement.ReserveSpent.Cmp(fixedmath.Units(10)))
	assert.Equal(t, int64(101), settlement.UnitsPurchased.Int64())
	assert.Equal(t, 2, settlement.PartnerCount)
	assert.Equal(t, int64(50), settlement.PerPartner.Int64())
	assert.Equal(t, int64(1), settlement.Remainder.Int64())

	// Full reserve spent upstream
	purchases := purchaser.Purchases()
	require.Len(t, purchases, 1)
	assert.Equal(t, 0, purchases[0].Cmp(fixedmath.Units(10)))

	// State drained and advanced
	state, err := svc.State()
	require.NoError(t, err)
	assert.Equal(t, 0, state.Reserve.Sign())
	assert.Equal(t, int64(100_000), state.LastEpochMarker)
	assert.Equal(t, int64(1), state.EpochCount)

	// Registration order wins the remainder
	partners, err := svc.Repo().ListPartners()
	require.NoError(t, err)
	require.Len(t, partners, 2)
	assert.Equal(t, int64(51), partners[0].LifetimeUnits.Int64())
	assert.Equal(t, int64(50), partners[1].LifetimeUnits.Int64())

	payouts, err := svc.Repo().ListPayouts(settlement.EpochID)
	require.NoError(t, err)
	require.Len(t, payouts, 2)
	assert.Equal(t, "partner-1", payouts[0].PartnerID)
	assert.Equal(t, int64(51), payouts[0].Units.Int64())
	assert.Equal(t, "partner-2", payouts[1].PartnerID)
	assert.Equal(t, int64(50), payouts[1].Units.Int64())
}

func TestTriggerEpoch_PurchaseFailureUnwinds(t *testing.T) {
	svc, purchaser, conn, cleanup := newTestService(t)
	defer cleanup()

	seedReserve(t, svc, conn, 10)
	err := inTx(t, conn, func(tx *sql.Tx) error {
		return svc.AddPartner(tx, "partner-1", 500, 100)
	})
	require.NoError(t, err)

	purchaser.SetError(errors.New("venue unreachable"))

	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.TriggerEpoch(context.Background(), tx, nil, 100_000)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrPurchaseFailed)

	// The committed intent rolls back with the transaction
	state, err := svc.State()
	require.NoError(t, err)
	assert.Equal(t, 0, state.Reserve.Cmp(fixedmath.Units(10)))
	assert.Equal(t, int64(0), state.EpochCount)
	assert.Equal(t, int64(0), state.LastEpochMarker)
}

func TestTriggerEpoch_BelowMinimumUnwinds(t *testing.T) {
	svc, purchaser, conn, cleanup := newTestService(t)
	defer cleanup()

	seedReserve(t, svc, conn, 10)
	err := inTx(t, conn, func(tx *sql.Tx) error {
		return svc.AddPartner(tx, "partner-1", 500, 100)
	})
	require.NoError(t, err)

	purchaser.SetUnitsOut(big.NewInt(99))

	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.TriggerEpoch(context.Background(), tx, big.NewInt(100), 100_000)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrPurchaseBelowMinimum)

	state, err := svc.State()
	require.NoError(t, err)
	assert.Equal(t, 0, state.Reserve.Cmp(fixedmath.Units(10)))
	assert.Equal(t, int64(0), state.EpochCount)

	epochs, err := svc.Repo().ListEpochs(10)
	require.NoError(t, err)
	assert.Empty(t, epochs)
}

func TestAddPartner_Validation(t *testing.T) {
	svc, _, conn, cleanup := newTestService(t)
	defer cleanup()

	err := inTx(t, conn, func(tx *sql.Tx) error {
		return svc.AddPartner(tx, "", 500, 100)
	})
	assert.ErrorIs(t, err, domain.ErrZeroIdentity)

	err = inTx(t, conn, func(tx *sql.Tx) error {
		return svc.AddPartner(tx, "partner-1", 10_001, 100)
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBasisPoints)
}

func TestAddPartner_DuplicateRejected(t *testing.T) {
	svc, _, conn, cleanup := newTestService(t)
	defer cleanup()

	err := inTx(t, conn, func(tx *sql.Tx) error {
		return svc.AddPartner(tx, "partner-1", 500, 100)
	})
	require.NoError(t, err)

	err = inTx(t, conn, func(tx *sql.Tx) error {
		return svc.AddPartner(tx, "partner-1", 900, 200)
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyRegistered)
}

func TestRemovePartner_NotRegistered(t *testing.T) {
	svc, _, conn, cleanup := newTestService(t)
	defer cleanup()

	err := inTx(t, conn, func(tx *sql.Tx) error {
		return svc.RemovePartner(tx, "ghost", 100)
	})
	assert.ErrorIs(t, err, domain.ErrNotRegistered)

	err = inTx(t, conn, func(tx *sql.Tx) error {
		return svc.AddPartner(tx, "partner-1", 500, 100)
	})
	require.NoError(t, err)
	err = inTx(t, conn, func(tx *sql.Tx) error {
		return svc.RemovePartner(tx, "partner-1", 200)
	})
	require.NoError(t, err)

	// Second removal of the same id fails
	err = inTx(t, conn, func(tx *sql.Tx) error {
		return svc.RemovePartner(tx, "partner-1", 300)
	})
	assert.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestPartner_ReactivationKeepsHistory(t *testing.T) {
	svc, purchaser, conn, cleanup := newTestService(t)
	defer cleanup()

	err := inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.AddPartner(tx, "partner-1", 500, 100); err != nil {
			return err
		}
		return svc.AddPartner(tx, "partner-2", 900, 100)
	})
	require.NoError(t, err)

	// One epoch credits partner-1 with 6 units, partner-2 with 5
	seedReserve(t, svc, conn, 10)
	purchaser.SetUnitsOut(big.NewInt(11))
	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.TriggerEpoch(context.Background(), tx, nil, 100_000)
		return err
	})
	require.NoError(t, err)

	// Remove and re-add with a new rate
	err = inTx(t, conn, func(tx *sql.Tx) error {
		return svc.RemovePartner(tx, "partner-1", 200_000)
	})
	require.NoError(t, err)
	err = inTx(t, conn, func(tx *sql.Tx) error {
		return svc.AddPartner(tx, "partner-1", 1200, 300_000)
	})
	require.NoError(t, err)

	partners, err := svc.Repo().ListPartners()
	require.NoError(t, err)
	require.Len(t, partners, 2)
	assert.Equal(t, "partner-1", partners[0].ID)
	assert.True(t, partners[0].Active)
	assert.Equal(t, uint32(1200), partners[0].BoostRateBps)
	assert.Equal(t, int64(1), partners[0].Position)
	assert.Equal(t, int64(6), partners[0].LifetimeUnits.Int64())

	// Still first in registration order: next remainder lands on it again
	seedReserve(t, svc, conn, 10)
	purchaser.SetUnitsOut(big.NewInt(3))
	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.TriggerEpoch(context.Background(), tx, nil, 300_000)
		return err
	})
	require.NoError(t, err)

	partners, err = svc.Repo().ListPartners()
	require.NoError(t, err)
	assert.Equal(t, int64(8), partners[0].LifetimeUnits.Int64())
	assert.Equal(t, int64(6), partners[1].LifetimeUnits.Int64())
}

func TestListEpochs_NewestFirst(t *testing.T) {
	svc, purchaser, conn, cleanup := newTestService(t)
	defer cleanup()

	err := inTx(t, conn, func(tx *sql.Tx) error {
		return svc.AddPartner(tx, "partner-1", 500, 100)
	})
	require.NoError(t, err)

	purchaser.SetUnitsOut(big.NewInt(10))
	seedReserve(t, svc, conn, 5)
	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.TriggerEpoch(context.Background(), tx, nil, 100_000)
		return err
	})
	require.NoError(t, err)

	purchaser.SetUnitsOut(big.NewInt(20))
	seedReserve(t, svc, conn, 7)
	err = inTx(t, conn, func(tx *sql.Tx) error {
		_, err := svc.TriggerEpoch(context.Background(), tx, nil, 200_000)
		return err
	})
	require.NoError(t, err)

	epochs, err := svc.Repo().ListEpochs(10)
	require.NoError(t, err)
	require.Len(t, epochs, 2)
	assert.Equal(t, int64(20), epochs[0].UnitsPurchased.Int64())
	assert.Equal(t, 0, epochs[0].ReserveSpent.Cmp(fixedmath.Units(7)))
	assert.Equal(t, int64(10), epochs[1].UnitsPurchased.Int64())
}
