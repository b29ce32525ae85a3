package fixedmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnits(t *testing.T) {
	assert.Equal(t, "100000000000000000000", Units(100).String())
	assert.Equal(t, "0", Units(0).String())
}

func TestValidAmount(t *testing.T) {
	maxU128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	tests := []struct {
		name  string
		value *big.Int
		valid bool
	}{
		{"zero", big.NewInt(0), true},
		{"one token", Units(1), true},
		{"max uint128", maxU128, true},
		{"above max uint128", new(big.Int).Add(maxU128, big.NewInt(1)), false},
		{"negative", big.NewInt(-1), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidAmount(tt.value))
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain integer", "1000000000000000000", false},
		{"zero", "0", false},
		{"negative rejected", "-5", true},
		{"garbage rejected", "12abc", true},
		{"empty rejected", "", true},
		{"above 128-bit ceiling rejected", "340282366920938463463374607431768211456", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseAmount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, a.String())
		})
	}
}

func TestCheckedAdd(t *testing.T) {
	sum, err := CheckedAdd(Units(1), Units(2))
	require.NoError(t, err)
	assert.Equal(t, Units(3), sum)

	maxU128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	_, err = CheckedAdd(maxU128, big.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedSub(t *testing.T) {
	diff, err := CheckedSub(Units(3), Units(1))
	require.NoError(t, err)
	assert.Equal(t, Units(2), diff)

	_, err = CheckedSub(Units(1), Units(2))
	assert.ErrorIs(t, err, ErrUnderflow)
}

func TestCheckedMul(t *testing.T) {
	product, err := CheckedMul(big.NewInt(6), big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, int64(42), product.Int64())

	maxU128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	_, err = CheckedMul(maxU128, big.NewInt(2))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedDiv(t *testing.T) {
	quotient, err := CheckedDiv(big.NewInt(10), big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), quotient.Int64())

	_, err = CheckedDiv(big.NewInt(10), big.NewInt(0))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulBps(t *testing.T) {
	tests := []struct {
		name     string
		amount   *big.Int
		bps      uint32
		expected *big.Int
		wantErr  error
	}{
		{"5% of 100 tokens", Units(100), 500, Units(5), nil},
		{"100% is identity", Units(42), 10_000, Units(42), nil},
		{"zero bps", Units(42), 0, Units(0), nil},
		{"zero amount", Units(0), 500, Units(0), nil},
		{"above 100% rejected", Units(1), 10_001, nil, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulBps(tt.amount, tt.bps)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMulBpsDoesNotMutateInput(t *testing.T) {
	amount := Units(100)
	_, err := MulBps(amount, 500)
	require.NoError(t, err)
	assert.Equal(t, Units(100), amount)
}
