package ico_test

import (
	"context"
	"errors"
	"math"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"solana-ico/internal/ico"
	"solana-ico/internal/ico/icotest"
)

const sol = 1_000_000_000

func TestCheckAdmin(t *testing.T) {
	ctx := context.Background()

	t.Run("own sale", func(t *testing.T) {
		chain := icotest.NewChain(t)
		admin := chain.NewKeypair(t, sol)
		addr := chain.PutSale(t, admin.PublicKey(), 1000, 0)

		status, err := chain.NewClient(admin).CheckAdmin(ctx)
		require.NoError(t, err)
		assert.True(t, status.IsAdmin)
		assert.False(t, status.CanInitialize)
		require.NotNil(t, status.Sale)
		assert.Equal(t, addr, status.Sale.Address)
	})

	t.Run("no sale yet", func(t *testing.T) {
		chain := icotest.NewChain(t)
		user := chain.NewKeypair(t, sol)

		status, err := chain.NewClient(user).CheckAdmin(ctx)
		require.NoError(t, err)
		assert.True(t, status.IsAdmin)
		assert.True(t, status.CanInitialize)
		assert.Nil(t, status.Sale)
	})

	t.Run("someone else's sale", func(t *testing.T) {
		chain := icotest.NewChain(t)
		admin := chain.NewKeypair(t, sol)
		user := chain.NewKeypair(t, sol)
		addr := chain.PutSale(t, admin.PublicKey(), 1000, 10)

		status, err := chain.NewClient(user).CheckAdmin(ctx)
		require.NoError(t, err)
		assert.False(t, status.IsAdmin)
		assert.False(t, status.CanInitialize)
		require.NotNil(t, status.Sale)
		assert.Equal(t, addr, status.Sale.Address)
		assert.Equal(t, admin.PublicKey().String(), status.Sale.Admin)
	})

	t.Run("rpc failure is not a missing record", func(t *testing.T) {
		chain := icotest.NewChain(t)
		user := chain.NewKeypair(t, sol)
		chain.RPC.Err = errors.New("node unavailable")

		status, err := chain.NewClient(user).CheckAdmin(ctx)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ico.ErrSaleNotInitialized)
		assert.Nil(t, status)
	})

	t.Run("no wallet", func(t *testing.T) {
		chain := icotest.NewChain(t)
		_, err := chain.NewClient(nil).CheckAdmin(ctx)
		assert.ErrorIs(t, err, ico.ErrWalletNotConnected)
	})
}

func TestInitializeAndDeposit(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)
	client := chain.NewClient(admin)

	r, err := client.InitializeSale(ctx, 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, r.Signature)

	sale, err := client.FetchSale(ctx, admin.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), sale.TotalTokens)

	_, err = client.Deposit(ctx, 500)
	require.NoError(t, err)

	sale, err = client.FetchSale(ctx, admin.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1500), sale.TotalTokens)
	assert.Len(t, chain.RPC.SentTransactions(), 2)
}

func TestActions_RejectNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)
	chain.PutSale(t, admin.PublicKey(), 1000, 0)
	client := chain.NewClient(admin)
	sale, err := client.FetchSale(ctx, admin.PublicKey())
	require.NoError(t, err)

	_, err = client.InitializeSale(ctx, 0)
	assert.ErrorIs(t, err, ico.ErrInvalidAmount)
	_, err = client.Deposit(ctx, 0)
	assert.ErrorIs(t, err, ico.ErrInvalidAmount)
	_, err = client.Buy(ctx, sale, 0)
	assert.ErrorIs(t, err, ico.ErrInvalidAmount)

	assert.Empty(t, chain.RPC.SentTransactions())
}

func TestBuy_SpanRecordsFullAmount(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)
	chain.PutSale(t, admin.PublicKey(), 1000, 0)
	client := chain.NewClient(chain.NewKeypair(t, sol))
	sale, err := client.CurrentSale(ctx)
	require.NoError(t, err)

	_, err = client.Buy(ctx, sale, math.MaxUint64)
	assert.ErrorIs(t, err, ico.ErrInvalidAmount)

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() != "ico.Buy" {
			continue
		}
		found = true
		assert.Contains(t, span.Attributes(), attribute.String("ico.amount", "18446744073709551615"))
	}
	assert.True(t, found, "ico.Buy span not recorded")
}

func TestDeposit_ProgramErrorIsDecoded(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)
	chain.PutSale(t, admin.PublicKey(), 1000, 0)
	chain.FailCode = 6001

	_, err := chain.NewClient(admin).Deposit(ctx, 5)

	var perr *ico.ProgramError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, "InvalidAdmin", perr.Name)
	assert.NotEmpty(t, perr.Logs)
}

func TestBuy_CreatesTokenAccountWhenAbsent(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)
	buyer := chain.NewKeypair(t, sol)
	chain.PutSale(t, admin.PublicKey(), 1000, 0)

	client := chain.NewClient(buyer)
	sale, err := client.CurrentSale(ctx)
	require.NoError(t, err)

	p, err := client.Buy(ctx, sale, 10)
	require.NoError(t, err)
	require.NotNil(t, p.TokenAccountCreation)
	assert.Equal(t, uint64(10_000_000), p.Lamports)

	sent := chain.RPC.SentTransactions()
	require.Len(t, sent, 2)
	assert.Len(t, icotest.ProgramInstructions(sent[0], solanago.SPLAssociatedTokenAccountProgramID), 1)
	assert.Empty(t, icotest.ProgramInstructions(sent[0], chain.Program.ID))
	assert.Len(t, icotest.ProgramInstructions(sent[1], chain.Program.ID), 1)
	assert.Equal(t, p.TokenAccountCreation.Signature, sent[0].Signatures[0].String())
	assert.Equal(t, p.Signature, sent[1].Signatures[0].String())

	bal, err := client.TokenBalance(ctx, buyer.PublicKey())
	require.NoError(t, err)
	assert.True(t, bal.Exists)
	assert.Equal(t, uint64(10), bal.Tokens())

	sale, err = client.FetchSale(ctx, admin.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), sale.TokensSold)
}

func TestBuy_SkipsTokenAccountWhenPresent(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)
	buyer := chain.NewKeypair(t, sol)
	chain.PutSale(t, admin.PublicKey(), 1000, 0)
	chain.PutTokenAccount(t, buyer.PublicKey(), 3*ico.TokenDecimals)

	client := chain.NewClient(buyer)
	sale, err := client.CurrentSale(ctx)
	require.NoError(t, err)

	p, err := client.Buy(ctx, sale, 2)
	require.NoError(t, err)
	assert.Nil(t, p.TokenAccountCreation)

	sent := chain.RPC.SentTransactions()
	require.Len(t, sent, 1)
	assert.Empty(t, icotest.ProgramInstructions(sent[0], solanago.SPLAssociatedTokenAccountProgramID))

	bal, err := client.TokenBalance(ctx, buyer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), bal.Tokens())
}

func TestBuy_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)
	// Exactly the price, without the fee reserve.
	buyer := chain.NewKeypair(t, 10*ico.LamportsPerToken)
	chain.PutSale(t, admin.PublicKey(), 1000, 0)

	client := chain.NewClient(buyer)
	sale, err := client.CurrentSale(ctx)
	require.NoError(t, err)

	_, err = client.Buy(ctx, sale, 10)
	assert.ErrorIs(t, err, ico.ErrInsufficientBalance)
	assert.Empty(t, chain.RPC.SentTransactions())

	chain.RPC.SetBalance(buyer.PublicKey().String(), 10*ico.LamportsPerToken+ico.FeeReserveLamports)
	_, err = client.Buy(ctx, sale, 10)
	assert.NoError(t, err)
}

func TestBuy_Preconditions(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	buyer := chain.NewKeypair(t, sol)

	_, err := chain.NewClient(buyer).Buy(ctx, nil, 1)
	assert.ErrorIs(t, err, ico.ErrSaleNotInitialized)

	_, err = chain.NewClient(nil).CurrentSale(ctx)
	assert.ErrorIs(t, err, ico.ErrSaleNotInitialized)
}

func TestTokenBalance_Missing(t *testing.T) {
	chain := icotest.NewChain(t)
	owner := solanago.NewWallet().PublicKey()

	bal, err := chain.NewClient(nil).TokenBalance(context.Background(), owner)
	require.NoError(t, err)
	assert.False(t, bal.Exists)
	assert.Zero(t, bal.Amount)
	assert.Equal(t, owner.String(), bal.Owner)
}

func TestListSales_SkipsForeignAccounts(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	chain.PutSale(t, solanago.NewWallet().PublicKey(), 10, 0)
	chain.PutSale(t, solanago.NewWallet().PublicKey(), 20, 0)
	chain.PutTokenAccount(t, solanago.NewWallet().PublicKey(), 5)

	sales, err := chain.NewClient(nil).ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Less(t, sales[0].Address, sales[1].Address)
}
