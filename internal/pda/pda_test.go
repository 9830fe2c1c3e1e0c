package pda

import (
	"bytes"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testProgram = solanago.MustPublicKeyFromBase58("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")
	testWallet  = solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	testMint    = solanago.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

func TestFindProgramAddress_MatchesSolanaGo(t *testing.T) {
	tests := []struct {
		name  string
		seeds [][]byte
	}{
		{"data seed", [][]byte{[]byte("data"), testWallet[:]}},
		{"mint seed", [][]byte{testMint[:]}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, bump, err := FindProgramAddress(tt.seeds, testProgram)
			require.NoError(t, err)

			want, wantBump, err := solanago.FindProgramAddress(tt.seeds, testProgram)
			require.NoError(t, err)

			assert.Equal(t, want, got)
			assert.Equal(t, wantBump, bump)
			assert.False(t, isOnCurve(got[:]))
		})
	}
}

func TestFindProgramAddress_Deterministic(t *testing.T) {
	seeds := [][]byte{[]byte("data"), testWallet[:]}
	a, _, err := FindProgramAddress(seeds, testProgram)
	require.NoError(t, err)
	b, _, err := FindProgramAddress(seeds, testProgram)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, _, err := FindProgramAddress([][]byte{[]byte("data"), testMint[:]}, testProgram)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestCreateProgramAddress_Bump(t *testing.T) {
	seeds := [][]byte{[]byte("data"), testWallet[:]}
	addr, bump, err := FindProgramAddress(seeds, testProgram)
	require.NoError(t, err)

	got, err := CreateProgramAddress(append(seeds, []byte{bump}), testProgram)
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}

func TestCreateProgramAddress_SeedLimits(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)}, testProgram)
	assert.ErrorIs(t, err, ErrMaxSeedLength)

	many := make([][]byte, MaxSeeds+1)
	for i := range many {
		many[i] = []byte{byte(i)}
	}
	_, err = CreateProgramAddress(many, testProgram)
	assert.ErrorIs(t, err, ErrTooManySeeds)

	_, _, err = FindProgramAddress(many[:MaxSeeds], testProgram)
	assert.ErrorIs(t, err, ErrTooManySeeds)
}

func TestFindAssociatedTokenAddress_MatchesSolanaGo(t *testing.T) {
	got, bump, err := FindAssociatedTokenAddress(testWallet, testMint)
	require.NoError(t, err)

	want, wantBump, err := solanago.FindAssociatedTokenAddress(testWallet, testMint)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, wantBump, bump)
}

func TestIsOnCurve(t *testing.T) {
	// A freshly generated public key is a curve point.
	assert.True(t, isOnCurve(solanago.NewWallet().PublicKey().Bytes()))
	assert.False(t, isOnCurve([]byte{1, 2, 3}))
}
