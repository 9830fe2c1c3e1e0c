package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-ico/internal/config"
	"solana-ico/internal/wallet"
)

func TestLoadRelayWallet(t *testing.T) {
	dir := t.TempDir()

	_, err := loadRelayWallet(config.WalletConfig{KeypairPath: filepath.Join(dir, "missing.json")})
	assert.True(t, errors.Is(err, wallet.ErrNoKey))

	_, err = loadRelayWallet(config.WalletConfig{})
	assert.True(t, errors.Is(err, wallet.ErrNoKey))

	kp, err := wallet.NewKeypair()
	require.NoError(t, err)
	path := filepath.Join(dir, "relay.json")
	require.NoError(t, kp.WriteKeygenFile(path))

	loaded, err := loadRelayWallet(config.WalletConfig{KeypairPath: path})
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), loaded.PublicKey())

	loaded, err = loadRelayWallet(config.WalletConfig{SecretKey: kp.SecretBase58(), KeypairPath: filepath.Join(dir, "missing.json")})
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), loaded.PublicKey())
}
