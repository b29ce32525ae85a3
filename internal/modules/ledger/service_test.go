package ledger

import (
	"database/sql"
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

func newTestService(t *testing.T) (*Service, *sql.DB, func()) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "vault")
	repo := NewRepository(db.Conn(), zerolog.Nop())
	return NewService(repo, zerolog.Nop()), db.Conn(), cleanup
}

func inTx(t *testing.T, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	return database.WithTransaction(conn, fn)
}

func TestExchangeRate_EmptyPoolFloorsAtOne(t *testing.T) {
	rate, err := ExchangeRate(fixedmath.Zero(), fixedmath.Zero())
	require.NoError(t, err)
	assert.Equal(t, 0, rate.Cmp(fixedmath.Precision), "empty pool should price shares at exactly 1.0")

	// Stranded assets with no shares outstanding still floor at 1.0
	rate, err = ExchangeRate(fixedmath.Zero(), fixedmath.Units(500))
	require.NoError(t, err)
	assert.Equal(t, 0, rate.Cmp(fixedmath.Precision))
}

func TestExchangeRate_TracksManagedAssetOverShares(t *testing.T) {
	// 100 shares backing 110 units of asset prices each share at 1.1
	rate, err := ExchangeRate(fixedmath.Units(100), fixedmath.Units(110))
	require.NoError(t, err)

	expected := new(big.Int).Mul(fixedmath.Precision, big.NewInt(11))
	expected.Quo(expected, big.NewInt(10))
	assert.Equal(t, 0, rate.Cmp(expected))
}

func TestAssetToShares_RejectsZeroRate(t *testing.T) {
	_, err := AssetToShares(fixedmath.Units(10), big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrZeroExchangeRate)
}

func TestShareConversions_RoundTrip(t *testing.T) {
	// At a 1.1 rate, 110 units buys 100 shares and 100 shares redeems 110 units
	rate, err := ExchangeRate(fixedmath.Units(100), fixedmath.Units(110))
	require.NoError(t, err)

	shares, err := AssetToShares(fixedmath.Units(110), rate)
	require.NoError(t, err)
	assert.Equal(t, 0, shares.Cmp(fixedmath.Units(100)))

	asset, err := SharesToAsset(shares, rate)
	require.NoError(t, err)
	assert.Equal(t, 0, asset.Cmp(fixedmath.Units(110)))
}

func TestMintShares_FirstDepositMintsAtPar(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	err := inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.RecordDeposit(tx, fixedmath.Units(100), 1000); err != nil {
			return err
		}
		return svc.MintShares(tx, "alice", fixedmath.Units(100), 1000)
	})
	require.NoError(t, err)

	rate, err := svc.CurrentRate()
	require.NoError(t, err)
	assert.Equal(t, 0, rate.Cmp(fixedmath.Precision), "deposit paired with mint must not move the rate")

	held, err := svc.Repo().GetHolderShares("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, held.Cmp(fixedmath.Units(100)))
}

func TestMintShares_Validation(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	err := inTx(t, conn, func(tx *sql.Tx) error {
		return svc.MintShares(tx, "", fixedmath.Units(1), 1000)
	})
	assert.ErrorIs(t, err, domain.ErrZeroIdentity)

	err = inTx(t, conn, func(tx *sql.Tx) error {
		return svc.MintShares(tx, "alice", fixedmath.Zero(), 1000)
	})
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestBurnShares_InsufficientBalance(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	err := inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.MintShares(tx, "alice", fixedmath.Units(10), 1000); err != nil {
			return err
		}
		return svc.BurnShares(tx, "alice", fixedmath.Units(11), 1001)
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	// The failed transaction must roll back the mint as well
	held, err := svc.Repo().GetHolderShares("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, held.Sign())
}

func TestCreditYield_RaisesExchangeRate(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.RecordDeposit(tx, fixedmath.Units(100), 1000); err != nil {
			return err
		}
		return svc.MintShares(tx, "alice", fixedmath.Units(100), 1000)
	}))

	before, err := svc.CurrentRate()
	require.NoError(t, err)

	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		return svc.CreditYield(tx, fixedmath.Units(10), 2000)
	}))

	after, err := svc.CurrentRate()
	require.NoError(t, err)
	assert.Equal(t, 1, after.Cmp(before), "yield must raise the rate")

	// 110 asset over 100 shares = 1.1
	expected := new(big.Int).Mul(fixedmath.Precision, big.NewInt(11))
	expected.Quo(expected, big.NewInt(10))
	assert.Equal(t, 0, after.Cmp(expected))
}

func TestDepositAfterYield_MintsFewerShares(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	// Alice seeds the pool at par, then yield lifts the rate to 1.1
	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.RecordDeposit(tx, fixedmath.Units(100), 1000); err != nil {
			return err
		}
		if err := svc.MintShares(tx, "alice", fixedmath.Units(100), 1000); err != nil {
			return err
		}
		return svc.CreditYield(tx, fixedmath.Units(10), 1000)
	}))

	rate, err := svc.CurrentRate()
	require.NoError(t, err)

	shares, err := AssetToShares(fixedmath.Units(110), rate)
	require.NoError(t, err)
	assert.Equal(t, 0, shares.Cmp(fixedmath.Units(100)), "110 units at 1.1 buys 100 shares")

	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.RecordDeposit(tx, fixedmath.Units(110), 2000); err != nil {
			return err
		}
		return svc.MintShares(tx, "bob", shares, 2000)
	}))

	// Bob's deposit must leave the rate where yield put it
	after, err := svc.CurrentRate()
	require.NoError(t, err)
	assert.Equal(t, 0, after.Cmp(rate))
}

func TestWithdrawFlow_RateUnchanged(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.RecordDeposit(tx, fixedmath.Units(100), 1000); err != nil {
			return err
		}
		if err := svc.MintShares(tx, "alice", fixedmath.Units(100), 1000); err != nil {
			return err
		}
		return svc.CreditYield(tx, fixedmath.Units(20), 1000)
	}))

	before, err := svc.CurrentRate()
	require.NoError(t, err)

	// Alice redeems half her shares at the current rate
	payout, err := SharesToAsset(fixedmath.Units(50), before)
	require.NoError(t, err)
	assert.Equal(t, 0, payout.Cmp(fixedmath.Units(60)), "50 shares at 1.2 redeems 60 units")

	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.BurnShares(tx, "alice", fixedmath.Units(50), 2000); err != nil {
			return err
		}
		return svc.RecordWithdrawal(tx, payout, 2000)
	}))

	after, err := svc.CurrentRate()
	require.NoError(t, err)
	assert.Equal(t, 0, after.Cmp(before), "withdrawal must not move the rate")
}

func TestRecordWithdrawal_Underflows(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		return svc.RecordDeposit(tx, fixedmath.Units(10), 1000)
	}))

	err := inTx(t, conn, func(tx *sql.Tx) error {
		return svc.RecordWithdrawal(tx, fixedmath.Units(11), 2000)
	})
	assert.ErrorIs(t, err, fixedmath.ErrUnderflow)
}

func TestListShareEvents_NewestFirst(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.RecordDeposit(tx, fixedmath.Units(100), 1000); err != nil {
			return err
		}
		return svc.MintShares(tx, "alice", fixedmath.Units(100), 1000)
	}))
	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		return svc.CreditYield(tx, fixedmath.Units(5), 2000)
	}))

	events, err := svc.Repo().ListShareEvents("", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventYield, events[0].Kind)

	// Filtering by account drops the pool-level yield event
	aliceEvents, err := svc.Repo().ListShareEvents("alice", 10)
	require.NoError(t, err)
	require.Len(t, aliceEvents, 1)
	assert.Equal(t, EventMint, aliceEvents[0].Kind)
	assert.Equal(t, "alice", aliceEvents[0].Account)
}

func TestHolderPosition_DerivesAssetValue(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.RecordDeposit(tx, fixedmath.Units(100), 1000); err != nil {
			return err
		}
		if err := svc.MintShares(tx, "alice", fixedmath.Units(100), 1000); err != nil {
			return err
		}
		return svc.CreditYield(tx, fixedmath.Units(10), 1000)
	}))

	shares, assetValue, err := svc.HolderPosition("alice")
	require.NoError(t, err)
	assert.Equal(t, 0, shares.Cmp(fixedmath.Units(100)))
	assert.Equal(t, 0, assetValue.Cmp(fixedmath.Units(110)), "position value follows the rate")

	// Unknown accounts read as empty positions, not errors
	shares, assetValue, err = svc.HolderPosition("nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, shares.Sign())
	assert.Equal(t, 0, assetValue.Sign())
}

func TestSnapshot_CountsNonZeroHolders(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.MintShares(tx, "alice", fixedmath.Units(10), 1000); err != nil {
			return err
		}
		return svc.MintShares(tx, "bob", fixedmath.Units(10), 1000)
	}))
	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		return svc.BurnShares(tx, "bob", fixedmath.Units(10), 2000)
	}))

	snap, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.HolderCount, "fully redeemed holders drop out of the count")
	assert.Equal(t, 0, snap.TotalShares.Cmp(fixedmath.Units(10)))
	assert.Equal(t, int64(2000), snap.UpdatedAt)
}

func TestExchangeRate_MonotonicUnderMixedTraffic(t *testing.T) {
	svc, conn, cleanup := newTestService(t)
	defer cleanup()

	require.NoError(t, inTx(t, conn, func(tx *sql.Tx) error {
		if err := svc.RecordDeposit(tx, fixedmath.Units(1000), 1000); err != nil {
			return err
		}
		return svc.MintShares(tx, "alice", fixedmath.Units(1000), 1000)
	}))

	last, err := svc.CurrentRate()
	require.NoError(t, err)

	steps := []func(tx *sql.Tx) error{
		func(tx *sql.Tx) error { return svc.CreditYield(tx, fixedmath.Units(7), 2000) },
		func(tx *sql.Tx) error {
			rate, err := svc.RateTx(tx)
			if err != nil {
				return err
			}
			shares, err := AssetToShares(fixedmath.Units(50), rate)
			if err != nil {
				return err
			}
			if err := svc.RecordDeposit(tx, fixedmath.Units(50), 3000); err != nil {
				return err
			}
			return svc.MintShares(tx, "bob", shares, 3000)
		},
		func(tx *sql.Tx) error { return svc.CreditYield(tx, fixedmath.Units(3), 4000) },
		func(tx *sql.Tx) error {
			rate, err := svc.RateTx(tx)
			if err != nil {
				return err
			}
			payout, err := SharesToAsset(fixedmath.Units(100), rate)
			if err != nil {
				return err
			}
			if err := svc.BurnShares(tx, "alice", fixedmath.Units(100), 5000); err != nil {
				return err
			}
			return svc.RecordWithdrawal(tx, payout, 5000)
		},
	}

	for i, step := range steps {
		require.NoError(t, inTx(t, conn, step), "step %d", i)
		rate, err := svc.CurrentRate()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rate.Cmp(last), 0, "rate regressed at step %d", i)
		last = rate
	}
}
