package ico

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"solana-ico/internal/domain"
	"solana-ico/internal/solana"
	"solana-ico/internal/wallet"
)

const tracerName = "solana-ico/internal/ico"

// Receipt identifies a confirmed transaction.
type Receipt struct {
	Signature string
	Slot      int64
}

// Purchase is the outcome of a confirmed buy.
type Purchase struct {
	Receipt
	Amount   uint64
	Lamports uint64

	// TokenAccountCreation is set when the buyer's token account had to be
	// created first.
	TokenAccountCreation *Receipt
}

// AdminStatus is the result of CheckAdmin.
type AdminStatus struct {
	// IsAdmin is true when the wallet administers the sale, or when no sale
	// exists yet and the wallet may initialize one.
	IsAdmin bool
	// CanInitialize is true when no sale record exists.
	CanInitialize bool
	// Sale is the wallet's own sale, or the first existing sale otherwise.
	Sale *domain.Sale
}

// Client talks to the sale program through an RPC node.
type Client struct {
	rpc       solana.RPCClient
	program   *Program
	signer    wallet.Signer
	confirmer *Confirmer
	logger    *zap.Logger
	tracer    trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSigner sets the connected wallet.
func WithSigner(s wallet.Signer) ClientOption {
	return func(c *Client) { c.signer = s }
}

// WithConfirmer sets how submitted transactions are confirmed.
func WithConfirmer(conf *Confirmer) ClientOption {
	return func(c *Client) { c.confirmer = conf }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Client. Without WithConfirmer, transactions are
// confirmed at "confirmed" by polling with no timeout beyond ctx.
func NewClient(rpc solana.RPCClient, program *Program, opts ...ClientOption) *Client {
	c := &Client{
		rpc:     rpc,
		program: program,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.confirmer == nil {
		c.confirmer = NewConfirmer(rpc, solana.CommitmentConfirmed, 0)
	}
	return c
}

// WithSigner returns a copy of c that signs with s.
func (c *Client) WithSigner(s wallet.Signer) *Client {
	cp := *c
	cp.signer = s
	return &cp
}

// Program returns the program deployment the client targets.
func (c *Client) Program() *Program {
	return c.program
}

// Wallet returns the connected wallet address, or ErrWalletNotConnected.
func (c *Client) Wallet() (solanago.PublicKey, error) {
	if c.signer == nil {
		return solanago.PublicKey{}, ErrWalletNotConnected
	}
	return c.signer.PublicKey(), nil
}

// CheckAdmin reports whether the connected wallet administers the sale.
// A missing record for the wallet falls back to listing all records; RPC
// failures are returned, never treated as a missing record.
func (c *Client) CheckAdmin(ctx context.Context) (status *AdminStatus, err error) {
	ctx, span := c.tracer.Start(ctx, "ico.CheckAdmin")
	defer func() { endSpan(span, err) }()

	owner, err := c.Wallet()
	if err != nil {
		return nil, err
	}

	sale, err := c.FetchSale(ctx, owner)
	switch {
	case err == nil:
		return &AdminStatus{IsAdmin: sale.Admin == owner.String(), Sale: sale}, nil
	case !errors.Is(err, ErrSaleNotInitialized):
		return nil, err
	}

	sales, err := c.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return &AdminStatus{IsAdmin: true, CanInitialize: true}, nil
	}
	return &AdminStatus{Sale: sales[0]}, nil
}

// FetchSale fetches the sale record administered by admin. Returns
// ErrSaleNotInitialized when the record does not exist.
func (c *Client) FetchSale(ctx context.Context, admin solanago.PublicKey) (*domain.Sale, error) {
	addr, err := c.program.DataAddress(admin)
	if err != nil {
		return nil, err
	}
	info, err := c.rpc.GetAccountInfo(ctx, addr.String())
	if err != nil {
		return nil, fmt.Errorf("fetch sale record: %w", err)
	}
	if info == nil {
		return nil, ErrSaleNotInitialized
	}
	sale, err := c.program.DecodeSale(addr.String(), info.Data)
	if err != nil {
		return nil, fmt.Errorf("decode sale record %s: %w", addr, err)
	}
	return sale, nil
}

// ListSales lists every sale record of the program, ordered by address.
func (c *Client) ListSales(ctx context.Context) ([]*domain.Sale, error) {
	filters, err := c.program.IDL.AccountFilters(DataAccount)
	if err != nil {
		return nil, err
	}
	accounts, err := c.rpc.GetProgramAccounts(ctx, c.program.ID.String(), filters...)
	if err != nil {
		return nil, fmt.Errorf("list sale records: %w", err)
	}

	sales := make([]*domain.Sale, 0, len(accounts))
	for _, acc := range accounts {
		sale, err := c.program.DecodeSale(acc.Pubkey, acc.Account.Data)
		if err != nil {
			c.logger.Warn("skipping undecodable sale record",
				zap.String("address", acc.Pubkey),
				zap.Error(err),
			)
			continue
		}
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].Address < sales[j].Address })
	return sales, nil
}

// CurrentSale returns the first sale record of the program.
func (c *Client) CurrentSale(ctx context.Context) (*domain.Sale, error) {
	sales, err := c.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, ErrSaleNotInitialized
	}
	return sales[0], nil
}

// InitializeSale creates the sale with amount whole tokens from the
// connected wallet, which becomes its admin.
func (c *Client) InitializeSale(ctx context.Context, amount uint64) (r *Receipt, err error) {
	ctx, span := c.tracer.Start(ctx, "ico.InitializeSale", trace.WithAttributes(attribute.String("ico.amount", strconv.FormatUint(amount, 10))))
	defer func() { endSpan(span, err) }()

	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	admin, err := c.Wallet()
	if err != nil {
		return nil, err
	}
	ix, err := c.program.CreateSaleInstruction(admin, amount)
	if err != nil {
		return nil, err
	}
	r, err = c.submit(ctx, "initialize", ix)
	if err != nil {
		return nil, err
	}
	c.logger.Info("sale initialized",
		zap.String("admin", admin.String()),
		zap.Uint64("amount", amount),
		zap.String("signature", r.Signature),
	)
	return r, nil
}

// Deposit adds amount whole tokens to the connected admin's sale.
func (c *Client) Deposit(ctx context.Context, amount uint64) (r *Receipt, err error) {
	ctx, span := c.tracer.Start(ctx, "ico.Deposit", trace.WithAttributes(attribute.String("ico.amount", strconv.FormatUint(amount, 10))))
	defer func() { endSpan(span, err) }()

	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	admin, err := c.Wallet()
	if err != nil {
		return nil, err
	}
	ix, err := c.program.DepositInstruction(admin, amount)
	if err != nil {
		return nil, err
	}
	r, err = c.submit(ctx, "deposit", ix)
	if err != nil {
		return nil, err
	}
	c.logger.Info("tokens deposited",
		zap.String("admin", admin.String()),
		zap.Uint64("amount", amount),
		zap.String("signature", r.Signature),
	)
	return r, nil
}

// Buy purchases amount whole tokens from sale. The buyer's token account is
// created first, and confirmed, only when it does not exist yet.
func (c *Client) Buy(ctx context.Context, sale *domain.Sale, amount uint64) (p *Purchase, err error) {
	ctx, span := c.tracer.Start(ctx, "ico.Buy", trace.WithAttributes(attribute.String("ico.amount", strconv.FormatUint(amount, 10))))
	defer func() { endSpan(span, err) }()

	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	user, err := c.Wallet()
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, ErrSaleNotInitialized
	}
	admin, err := solanago.PublicKeyFromBase58(sale.Admin)
	if err != nil {
		return nil, fmt.Errorf("parse sale admin: %w", err)
	}

	cost, err := PurchaseCost(amount)
	if err != nil {
		return nil, err
	}
	required, err := RequiredBalance(amount)
	if err != nil {
		return nil, err
	}
	balance, err := c.rpc.GetBalance(ctx, user.String())
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	if balance < required {
		return nil, fmt.Errorf("%w: need %s SOL plus fee, have %s SOL",
			ErrInsufficientBalance, FormatSOL(cost), FormatSOL(balance))
	}

	p = &Purchase{Amount: amount, Lamports: cost}

	ata, err := c.program.TokenAccount(user)
	if err != nil {
		return nil, err
	}
	info, err := c.rpc.GetAccountInfo(ctx, ata.String())
	if err != nil {
		return nil, fmt.Errorf("get token account: %w", err)
	}
	if info == nil {
		create := associatedtokenaccount.NewCreateInstruction(user, user, c.program.Mint).Build()
		created, err := c.submit(ctx, "create_token_account", create)
		if err != nil {
			return nil, fmt.Errorf("create token account: %w", err)
		}
		c.logger.Info("token account created",
			zap.String("owner", user.String()),
			zap.String("account", ata.String()),
			zap.String("signature", created.Signature),
		)
		p.TokenAccountCreation = created
	}

	ix, err := c.program.BuyInstruction(user, admin, amount)
	if err != nil {
		return p, err
	}
	r, err := c.submit(ctx, "buy", ix)
	if err != nil {
		return p, err
	}
	p.Receipt = *r

	c.logger.Info("tokens purchased",
		zap.String("buyer", user.String()),
		zap.Uint64("amount", amount),
		zap.Uint64("lamports", cost),
		zap.String("signature", r.Signature),
	)
	return p, nil
}

// TokenBalance returns owner's balance of the sale token.
func (c *Client) TokenBalance(ctx context.Context, owner solanago.PublicKey) (*domain.TokenBalance, error) {
	ata, err := c.program.TokenAccount(owner)
	if err != nil {
		return nil, err
	}
	bal := &domain.TokenBalance{Owner: owner.String(), Account: ata.String()}

	info, err := c.rpc.GetAccountInfo(ctx, ata.String())
	if err != nil {
		return nil, fmt.Errorf("get token account: %w", err)
	}
	if info == nil {
		return bal, nil
	}

	var acct token.Account
	if err := bin.NewBinDecoder(info.Data).Decode(&acct); err != nil {
		return nil, fmt.Errorf("decode token account %s: %w", ata, err)
	}
	bal.Amount = acct.Amount
	bal.Exists = true
	return bal, nil
}

// SOLBalance returns owner's lamport balance.
func (c *Client) SOLBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error) {
	lamports, err := c.rpc.GetBalance(ctx, owner.String())
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return lamports, nil
}

// submit signs, sends and confirms a transaction paid by the connected wallet.
func (c *Client) submit(ctx context.Context, op string, ixs ...solanago.Instruction) (r *Receipt, err error) {
	ctx, span := c.tracer.Start(ctx, "ico.submit", trace.WithAttributes(attribute.String("ico.op", op)))
	defer func() { endSpan(span, err) }()

	payer, err := c.Wallet()
	if err != nil {
		return nil, err
	}

	bh, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}
	hash, err := solanago.HashFromBase58(bh.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse blockhash: %w", err)
	}

	tx, err := solanago.NewTransaction(ixs, hash, solanago.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if err := c.signer.SignTransaction(ctx, tx); err != nil {
		return nil, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	sig, err := c.rpc.SendTransaction(ctx, raw)
	if err != nil {
		return nil, mapSendError(c.program.IDL, fmt.Errorf("send transaction: %w", err))
	}
	span.SetAttributes(attribute.String("solana.signature", sig))
	c.logger.Debug("transaction sent", zap.String("op", op), zap.String("signature", sig))

	status, err := c.confirmer.Wait(ctx, sig)
	if err != nil {
		return nil, err
	}
	if status.Err != nil {
		return nil, transactionError(c.program.IDL, status.Err, nil)
	}
	return &Receipt{Signature: sig, Slot: status.Slot}, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
