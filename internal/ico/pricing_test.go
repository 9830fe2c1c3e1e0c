package ico

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseCost_Linear(t *testing.T) {
	for _, amount := range []uint64{1, 2, 10, 999, 1_000_000} {
		cost, err := PurchaseCost(amount)
		require.NoError(t, err)
		assert.Equal(t, amount*LamportsPerToken, cost)

		double, err := PurchaseCost(2 * amount)
		require.NoError(t, err)
		assert.Equal(t, 2*cost, double, "price must scale linearly")
	}
}

func TestPurchaseCost_Rejects(t *testing.T) {
	_, err := PurchaseCost(0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = PurchaseCost(math.MaxUint64/LamportsPerToken + 1)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = RequiredBalance(math.MaxUint64/LamportsPerToken + 1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRequiredBalance_LargestAmount(t *testing.T) {
	amount := uint64(math.MaxUint64 / LamportsPerToken)

	cost, err := PurchaseCost(amount)
	require.NoError(t, err)
	assert.Equal(t, uint64(18_446_744_073_709_000_000), cost)

	// The largest cost leaves room for the fee reserve.
	got, err := RequiredBalance(amount)
	require.NoError(t, err)
	assert.Equal(t, cost+FeeReserveLamports, got)
}

func TestRequiredBalance(t *testing.T) {
	got, err := RequiredBalance(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_005_000), got)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"1", 1, false},
		{"  42 ", 42, false},
		{"18446744073709551615", math.MaxUint64, false},
		{"", 0, true},
		{"0", 0, true},
		{"-5", 0, true},
		{"+5", 0, true},
		{"1.5", 0, true},
		{"1e3", 0, true},
		{"12abc", 0, true},
		{"1 000", 0, true},
		{"18446744073709551616", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSOL(t *testing.T) {
	assert.Equal(t, "0", FormatSOL(0))
	assert.Equal(t, "0.001", FormatSOL(LamportsPerToken))
	assert.Equal(t, "1.5", FormatSOL(1_500_000_000))
	assert.Equal(t, "0.000005", FormatSOL(FeeReserveLamports))
}
