package ico

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-ico/internal/domain"
	"solana-ico/internal/idhash"
	"solana-ico/internal/observability"
	"solana-ico/internal/storage"
	"solana-ico/internal/wallet"
)

// State is what the session shows: the result of the most recent
// successful fetch plus the pending input amount.
type State struct {
	Loading       bool                 `json:"loading"`
	Connected     bool                 `json:"connected"`
	Wallet        string               `json:"wallet,omitempty"`
	IsAdmin       bool                 `json:"isAdmin"`
	CanInitialize bool                 `json:"canInitialize"`
	Sale          *domain.Sale         `json:"sale,omitempty"`
	Amount        string               `json:"amount"`
	TokenBalance  *domain.TokenBalance `json:"tokenBalance,omitempty"`
	SOLBalance    uint64               `json:"solBalance"`
	LastError     string               `json:"lastError,omitempty"`
	RefreshedAt   int64                `json:"refreshedAt,omitempty"` // Unix ms
}

// Session holds the state of one connected wallet and runs its actions one
// at a time.
type Session struct {
	mu     sync.RWMutex
	client *Client
	state  State

	busy    atomic.Bool
	actions storage.ActionStore
	logger  *zap.Logger
	now     func() time.Time
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithActionStore records every action into store.
func WithActionStore(store storage.ActionStore) SessionOption {
	return func(s *Session) { s.actions = store }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithClock sets the time source for action timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session over client. It is connected when client has a signer.
func NewSession(client *Client, opts ...SessionOption) *Session {
	s := &Session{
		client: client,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if pub, err := client.Wallet(); err == nil {
		s.state.Connected = true
		s.state.Wallet = pub.String()
	}
	return s
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	st.Loading = s.busy.Load()
	if st.Sale != nil {
		sale := *st.Sale
		st.Sale = &sale
	}
	if st.TokenBalance != nil {
		bal := *st.TokenBalance
		st.TokenBalance = &bal
	}
	return st
}

// Connect switches the session to signer and refreshes.
func (s *Session) Connect(ctx context.Context, signer wallet.Signer) error {
	if signer == nil {
		return ErrWalletNotConnected
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	s.mu.Lock()
	s.client = s.client.WithSigner(signer)
	s.state = State{Connected: true, Wallet: signer.PublicKey().String(), Amount: s.state.Amount}
	s.mu.Unlock()
	s.busy.Store(false)

	return s.Refresh(ctx)
}

// Disconnect drops the signer and clears wallet-specific state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = s.client.WithSigner(nil)
	s.state = State{Amount: s.state.Amount}
}

// SetAmount stores the raw input amount. It is validated when an action runs.
func (s *Session) SetAmount(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Amount = raw
}

// Refresh re-runs check-admin and fetches the wallet's balances concurrently.
// Without a wallet only the sale record is fetched.
func (s *Session) Refresh(ctx context.Context) error {
	client := s.currentClient()
	owner, err := client.Wallet()
	if err != nil {
		sale, err := client.CurrentSale(ctx)
		if err != nil && !errors.Is(err, ErrSaleNotInitialized) {
			return s.fail(err)
		}
		s.mu.Lock()
		s.state.Sale = sale
		s.state.RefreshedAt = s.now().UnixMilli()
		s.mu.Unlock()
		s.publishSale(sale)
		return nil
	}

	var (
		admin    *AdminStatus
		tokenBal *domain.TokenBalance
		lamports uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		admin, err = client.CheckAdmin(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		tokenBal, err = client.TokenBalance(gctx, owner)
		return err
	})
	g.Go(func() error {
		var err error
		lamports, err = client.SOLBalance(gctx, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return s.fail(err)
	}

	now := s.now()
	s.mu.Lock()
	s.state.IsAdmin = admin.IsAdmin
	s.state.CanInitialize = admin.CanInitialize
	s.state.Sale = admin.Sale
	s.state.TokenBalance = tokenBal
	s.state.SOLBalance = lamports
	s.state.LastError = ""
	s.state.RefreshedAt = now.UnixMilli()
	s.mu.Unlock()

	s.publishSale(admin.Sale)
	observability.RecordRefresh(now.Unix())
	return nil
}

// InitializeSale creates the sale with the current amount.
func (s *Session) InitializeSale(ctx context.Context) (*Receipt, error) {
	var receipt *Receipt
	err := s.run(ctx, domain.ActionInitialize, func(ctx context.Context, c *Client, amount uint64) (*Receipt, uint64, error) {
		r, err := c.InitializeSale(ctx, amount)
		receipt = r
		return r, 0, err
	})
	return receipt, err
}

// Deposit adds the current amount of tokens to the sale.
func (s *Session) Deposit(ctx context.Context) (*Receipt, error) {
	var receipt *Receipt
	err := s.run(ctx, domain.ActionDeposit, func(ctx context.Context, c *Client, amount uint64) (*Receipt, uint64, error) {
		r, err := c.Deposit(ctx, amount)
		receipt = r
		return r, 0, err
	})
	return receipt, err
}

// Buy purchases the current amount of tokens from the last fetched sale.
func (s *Session) Buy(ctx context.Context) (*Purchase, error) {
	var purchase *Purchase
	err := s.run(ctx, domain.ActionBuy, func(ctx context.Context, c *Client, amount uint64) (*Receipt, uint64, error) {
		s.mu.RLock()
		sale := s.state.Sale
		s.mu.RUnlock()

		p, err := c.Buy(ctx, sale, amount)
		purchase = p
		if p == nil {
			return nil, 0, err
		}
		if p.TokenAccountCreation != nil {
			s.record(domain.ActionCreateTokenAccount, c, 0, 0, p.TokenAccountCreation, nil)
		}
		if err != nil {
			return nil, p.Lamports, err
		}
		observability.RecordPurchase(p.Amount, p.Lamports)
		return &p.Receipt, p.Lamports, nil
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

type actionFunc func(ctx context.Context, c *Client, amount uint64) (*Receipt, uint64, error)

// run executes one action: busy guard, amount parsing, recording, metrics
// and the follow-up refresh.
func (s *Session) run(ctx context.Context, kind domain.ActionKind, fn actionFunc) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	start := time.Now()
	client := s.currentClient()
	s.mu.RLock()
	raw := s.state.Amount
	s.mu.RUnlock()

	amount, err := ParseAmount(raw)
	var (
		receipt  *Receipt
		lamports uint64
	)
	if err == nil {
		receipt, lamports, err = fn(ctx, client, amount)
	}

	status := domain.ActionConfirmed
	if err != nil {
		status = domain.ActionFailed
	}
	observability.RecordAction(kind.String(), status.String(), time.Since(start).Seconds())
	s.record(kind, client, amount, lamports, receipt, err)

	if err != nil {
		s.logger.Warn("action failed", zap.String("kind", kind.String()), zap.Error(err))
		return s.fail(err)
	}

	if rerr := s.Refresh(ctx); rerr != nil {
		s.logger.Warn("refresh after action failed", zap.String("kind", kind.String()), zap.Error(rerr))
	}
	return nil
}

// record stores an action when an action store is configured and a wallet is connected.
func (s *Session) record(kind domain.ActionKind, c *Client, amount, lamports uint64, r *Receipt, actionErr error) {
	if s.actions == nil {
		return
	}
	owner, err := c.Wallet()
	if err != nil {
		return
	}

	a := &domain.Action{
		Kind:      kind,
		Wallet:    owner.String(),
		Amount:    amount,
		Lamports:  lamports,
		Status:    domain.ActionConfirmed,
		CreatedAt: s.now().UnixMilli(),
	}
	if r != nil {
		a.Signature = r.Signature
	}
	if actionErr != nil {
		a.Status = domain.ActionFailed
		a.Error = actionErr.Error()
	}
	a.ActionID = idhash.ComputeActionID(a.Kind, a.Wallet, a.Amount, a.Signature, a.CreatedAt)

	// Failed actions are often failed because ctx was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.actions.Insert(ctx, a); err != nil {
		s.logger.Error("failed to record action",
			zap.String("kind", kind.String()),
			zap.String("action_id", a.ActionID),
			zap.Error(err),
		)
	}
}

func (s *Session) currentClient() *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.state.LastError = UserMessage(err)
	s.mu.Unlock()
	return err
}

func (s *Session) publishSale(sale *domain.Sale) {
	if sale != nil {
		observability.UpdateSale(sale.TotalTokens, sale.TokensSold)
	}
}
