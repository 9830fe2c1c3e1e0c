package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-ico/internal/ico"
	"solana-ico/internal/ico/icotest"
	"solana-ico/internal/wallet"
)

const sol = 1_000_000_000

type cliEnv struct {
	chain   *icotest.Chain
	kp      *wallet.Keypair
	keyPath string
	dbPath  string
}

func newCLIEnv(t *testing.T, lamports uint64) *cliEnv {
	t.Helper()
	chain := icotest.NewChain(t)
	kp := chain.NewKeypair(t, lamports)
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id.json")
	require.NoError(t, kp.WriteKeygenFile(keyPath))
	return &cliEnv{chain: chain, kp: kp, keyPath: keyPath, dbPath: filepath.Join(dir, "history.db")}
}

// run executes the CLI against the simulated chain.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{rpc: e.chain.RPC}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{
		"--program-id", e.chain.Program.ID.String(),
		"--mint", e.chain.Program.Mint.String(),
		"--keypair", e.keyPath,
		"--storage", "sqlite",
		"--history-db", e.dbPath,
		"--log-level", "error",
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatus_NotInitialized(t *testing.T) {
	env := newCLIEnv(t, sol)
	out, err := env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not initialized")
	assert.Contains(t, out, env.chain.Program.ID.String())
}

func TestStatus_ShowsSale(t *testing.T) {
	env := newCLIEnv(t, sol)
	addr := env.chain.PutSale(t, env.chain.NewKeypair(t, 0).PublicKey(), 1000, 400)

	out, err := env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, addr)
	assert.Contains(t, out, "Remaining: 600 tokens")
	assert.Contains(t, out, "0.001 SOL per token")
}

func TestInitBuyHistory(t *testing.T) {
	env := newCLIEnv(t, sol)

	out, err := env.run(t, "check-admin")
	require.NoError(t, err)
	assert.Contains(t, out, "Can initialize: true")

	out, err = env.run(t, "init", "--amount", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized:")
	assert.Contains(t, out, "Total:     1000 tokens")

	out, err = env.run(t, "buy", "--amount", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Token account created:")
	assert.Contains(t, out, "Paid:      0.01 SOL for 10 tokens")
	assert.Contains(t, out, "Sold:      10 tokens")

	out, err = env.run(t, "balance")
	require.NoError(t, err)
	assert.Contains(t, out, "Tokens:  10")

	out, err = env.run(t, "history")
	require.NoError(t, err)
	for _, kind := range []string{"initialize", "create_token_account", "buy"} {
		assert.Contains(t, out, kind)
	}

	out, err = env.run(t, "report", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Token Sale Report")
}

func TestBuy_InvalidAmount(t *testing.T) {
	env := newCLIEnv(t, sol)
	env.chain.PutSale(t, env.chain.NewKeypair(t, 0).PublicKey(), 1000, 0)

	_, err := env.run(t, "buy", "--amount", "-3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ico.ErrInvalidAmount)
	assert.True(t, strings.HasPrefix(err.Error(), "Please enter a valid amount"))

	out, err := env.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "failed")
}

func TestBuy_RequiresAmountFlag(t *testing.T) {
	env := newCLIEnv(t, sol)
	_, err := env.run(t, "buy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount")
}

func TestReport_CSVToFile(t *testing.T) {
	env := newCLIEnv(t, sol)
	path := filepath.Join(t.TempDir(), "report.csv")

	out, err := env.run(t, "report", "--format", "csv", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestReport_UnknownFormat(t *testing.T) {
	env := newCLIEnv(t, sol)
	_, err := env.run(t, "report", "--format", "pdf")
	assert.Error(t, err)
}

func TestKeygenAndAddress(t *testing.T) {
	env := newCLIEnv(t, 0)
	path := filepath.Join(t.TempDir(), "new.json")

	out, err := env.run(t, "keygen", "--outfile", path)
	require.NoError(t, err)
	kp, err := wallet.LoadKeygenFile(path)
	require.NoError(t, err)
	assert.Contains(t, out, kp.PublicKey().String())

	out, err = env.run(t, "keygen", "--mnemonic")
	require.NoError(t, err)
	assert.Contains(t, out, "Mnemonic:")

	out, err = env.run(t, "address")
	require.NoError(t, err)
	dataAddr, err := env.chain.Program.DataAddress(env.kp.PublicKey())
	require.NoError(t, err)
	assert.Contains(t, out, env.kp.PublicKey().String())
	assert.Contains(t, out, dataAddr.String())
}

func TestMissingProgramID(t *testing.T) {
	env := newCLIEnv(t, 0)
	a := &app{rpc: env.chain.RPC}
	root := newRootCmd(a)
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--keypair", env.keyPath, "--storage", "memory", "status"})
	t.Setenv("ICO_PROGRAM_ID", "")
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ICO_PROGRAM_ID")
}
