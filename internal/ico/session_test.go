package ico_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-ico/internal/domain"
	"solana-ico/internal/ico"
	"solana-ico/internal/ico/icotest"
	"solana-ico/internal/storage/memory"
)

func fixedClock() time.Time { return time.UnixMilli(1704067200000) }

func TestSession_Refresh(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, 2*sol)
	chain.PutSale(t, admin.PublicKey(), 1000, 40)
	chain.PutTokenAccount(t, admin.PublicKey(), 7*ico.TokenDecimals)

	s := ico.NewSession(chain.NewClient(admin), ico.WithClock(fixedClock))
	require.NoError(t, s.Refresh(ctx))

	st := s.State()
	assert.True(t, st.Connected)
	assert.Equal(t, admin.PublicKey().String(), st.Wallet)
	assert.True(t, st.IsAdmin)
	require.NotNil(t, st.Sale)
	assert.Equal(t, uint64(960), st.Sale.Remaining())
	require.NotNil(t, st.TokenBalance)
	assert.Equal(t, uint64(7), st.TokenBalance.Tokens())
	assert.Equal(t, uint64(2*sol), st.SOLBalance)
	assert.Equal(t, int64(1704067200000), st.RefreshedAt)
}

func TestSession_RefreshWithoutWallet(t *testing.T) {
	chain := icotest.NewChain(t)
	chain.PutSale(t, chain.NewKeypair(t, 0).PublicKey(), 50, 0)

	s := ico.NewSession(chain.NewClient(nil))
	require.NoError(t, s.Refresh(context.Background()))

	st := s.State()
	assert.False(t, st.Connected)
	require.NotNil(t, st.Sale)
	assert.Equal(t, uint64(50), st.Sale.TotalTokens)
}

func TestSession_BuyRecordsActions(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)
	buyer := chain.NewKeypair(t, sol)
	chain.PutSale(t, admin.PublicKey(), 1000, 0)
	store := memory.NewActionStore()

	s := ico.NewSession(chain.NewClient(buyer), ico.WithActionStore(store), ico.WithClock(fixedClock))
	require.NoError(t, s.Refresh(ctx))

	s.SetAmount("25")
	p, err := s.Buy(ctx)
	require.NoError(t, err)
	assert.NotNil(t, p.TokenAccountCreation)

	st := s.State()
	assert.False(t, st.Loading)
	assert.Equal(t, uint64(25), st.Sale.TokensSold)
	assert.Equal(t, uint64(25), st.TokenBalance.Tokens())
	assert.Empty(t, st.LastError)

	actions, err := store.ListByWallet(ctx, buyer.PublicKey().String(), 0)
	require.NoError(t, err)
	require.Len(t, actions, 2)

	kinds := map[domain.ActionKind]*domain.Action{}
	for _, a := range actions {
		kinds[a.Kind] = a
	}
	buy := kinds[domain.ActionBuy]
	require.NotNil(t, buy)
	assert.Equal(t, domain.ActionConfirmed, buy.Status)
	assert.Equal(t, uint64(25), buy.Amount)
	assert.Equal(t, uint64(25_000_000), buy.Lamports)
	assert.Equal(t, p.Signature, buy.Signature)
	require.NotNil(t, kinds[domain.ActionCreateTokenAccount])
}

func TestSession_FailedActionIsRecorded(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)
	store := memory.NewActionStore()

	s := ico.NewSession(chain.NewClient(admin), ico.WithActionStore(store), ico.WithClock(fixedClock))
	s.SetAmount("-3")

	_, err := s.Deposit(ctx)
	assert.ErrorIs(t, err, ico.ErrInvalidAmount)
	assert.Equal(t, "Please enter a valid amount", s.State().LastError)

	actions, err := store.ListByWallet(ctx, admin.PublicKey().String(), 0)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionFailed, actions[0].Status)
	assert.Equal(t, domain.ActionDeposit, actions[0].Kind)
	assert.NotEmpty(t, actions[0].Error)
	assert.Empty(t, chain.RPC.SentTransactions())
}

func TestSession_InitializeThenDeposit(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)

	s := ico.NewSession(chain.NewClient(admin))
	require.NoError(t, s.Refresh(ctx))
	assert.True(t, s.State().CanInitialize)

	s.SetAmount("100")
	_, err := s.InitializeSale(ctx)
	require.NoError(t, err)

	st := s.State()
	assert.False(t, st.CanInitialize)
	assert.True(t, st.IsAdmin)
	assert.Equal(t, uint64(100), st.Sale.TotalTokens)

	_, err = s.Deposit(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), s.State().Sale.TotalTokens)
}

func TestSession_RejectsConcurrentActions(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	admin := chain.NewKeypair(t, sol)
	chain.PutSale(t, admin.PublicKey(), 1000, 0)

	s := ico.NewSession(chain.NewClient(admin))
	s.SetAmount("5")
	chain.Block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Deposit(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return s.State().Loading }, time.Second, time.Millisecond)

	_, err := s.Buy(ctx)
	assert.ErrorIs(t, err, ico.ErrBusy)

	close(chain.Block)
	require.NoError(t, <-done)
	assert.False(t, s.State().Loading)
}

func TestSession_ConnectAndDisconnect(t *testing.T) {
	ctx := context.Background()
	chain := icotest.NewChain(t)
	user := chain.NewKeypair(t, sol)

	s := ico.NewSession(chain.NewClient(nil))
	assert.ErrorIs(t, s.Connect(ctx, nil), ico.ErrWalletNotConnected)

	require.NoError(t, s.Connect(ctx, user))
	st := s.State()
	assert.True(t, st.Connected)
	assert.Equal(t, user.PublicKey().String(), st.Wallet)
	assert.Equal(t, uint64(sol), st.SOLBalance)

	s.Disconnect()
	st = s.State()
	assert.False(t, st.Connected)
	assert.Empty(t, st.Wallet)

	s.SetAmount("1")
	_, err := s.Buy(ctx)
	assert.ErrorIs(t, err, ico.ErrWalletNotConnected)
}
