package wallet

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-ico/internal/config"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestKeygenFile_RoundTrip(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, kp.WriteKeygenFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadKeygenFile(path)
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), loaded.PublicKey())

	// Refuses to clobber an existing key.
	assert.Error(t, kp.WriteKeygenFile(path))
}

func TestLoadKeygenFile_Missing(t *testing.T) {
	_, err := LoadKeygenFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestFromBase58(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	decoded, err := FromBase58(kp.SecretBase58())
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), decoded.PublicKey())

	_, err = FromBase58("0OIl")
	assert.ErrorIs(t, err, ErrInvalidSecretKey)

	_, err = FromBase58(kp.PublicKey().String())
	assert.ErrorIs(t, err, ErrInvalidSecretKey)
}

func TestFromMnemonic(t *testing.T) {
	a, err := FromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	b, err := FromMnemonic("  "+strings.ReplaceAll(testMnemonic, " ", "  ")+"\n", "")
	require.NoError(t, err)
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	withPass, err := FromMnemonic(testMnemonic, "hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicKey(), withPass.PublicKey())

	_, err = FromMnemonic("abandon abandon abandon", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestNewMnemonic(t *testing.T) {
	m, err := NewMnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 12)

	_, err = FromMnemonic(m, "")
	assert.NoError(t, err)
}

func TestLoad(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, kp.WriteKeygenFile(path))

	fromMnemonic, err := FromMnemonic(testMnemonic, "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     config.WalletConfig
		want    solanago.PublicKey
		wantErr error
	}{
		{"secret key wins", config.WalletConfig{SecretKey: kp.SecretBase58(), Mnemonic: testMnemonic, KeypairPath: "/nonexistent"}, kp.PublicKey(), nil},
		{"mnemonic before file", config.WalletConfig{Mnemonic: testMnemonic, KeypairPath: "/nonexistent"}, fromMnemonic.PublicKey(), nil},
		{"file", config.WalletConfig{KeypairPath: path}, kp.PublicKey(), nil},
		{"nothing", config.WalletConfig{}, solanago.PublicKey{}, ErrNoKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.PublicKey())
		})
	}
}

func TestSignTransaction(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	ix := solanago.NewInstruction(solanago.SystemProgramID, solanago.AccountMetaSlice{
		solanago.NewAccountMeta(kp.PublicKey(), true, true),
	}, []byte{})
	tx, err := solanago.NewTransaction([]solanago.Instruction{ix}, solanago.Hash{}, solanago.TransactionPayer(kp.PublicKey()))
	require.NoError(t, err)

	require.NoError(t, kp.SignTransaction(context.Background(), tx))
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
}

func TestSignTransaction_ForeignSigner(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)
	other, err := NewKeypair()
	require.NoError(t, err)

	ix := solanago.NewInstruction(solanago.SystemProgramID, solanago.AccountMetaSlice{
		solanago.NewAccountMeta(other.PublicKey(), true, true),
	}, []byte{})
	tx, err := solanago.NewTransaction([]solanago.Instruction{ix}, solanago.Hash{}, solanago.TransactionPayer(other.PublicKey()))
	require.NoError(t, err)

	assert.Error(t, kp.SignTransaction(context.Background(), tx))
}

func TestSignTransaction_Cancelled(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, kp.SignTransaction(ctx, &solanago.Transaction{}), context.Canceled)
}
