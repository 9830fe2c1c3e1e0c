package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"solana-ico/internal/config"
	"solana-ico/internal/ico"
	"solana-ico/internal/logging"
	"solana-ico/internal/solana"
	"solana-ico/internal/storage/backend"
	"solana-ico/internal/wallet"
)

// app carries settings and shared dependencies for every subcommand.
type app struct {
	configPath  string
	rpcEndpoint string
	commitment  string
	programID   string
	mint        string
	keypairPath string
	storage     string
	sqlitePath  string
	logLevel    string

	cfg    *config.Config
	logger *zap.Logger

	// rpc replaces the HTTP client when set.
	rpc solana.RPCClient
}

// load builds the configuration and logger. It runs before every subcommand.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	if a.rpcEndpoint != "" {
		cfg.Solana.RPCEndpoint = a.rpcEndpoint
		ws, err := config.DeriveWSEndpoint(a.rpcEndpoint)
		if err != nil {
			return err
		}
		cfg.Solana.WSEndpoint = ws
	}
	if a.commitment != "" {
		cfg.Solana.Commitment = a.commitment
	}
	if a.programID != "" {
		cfg.Sale.ProgramID = a.programID
	}
	if a.mint != "" {
		cfg.Sale.Mint = a.mint
	}
	if a.keypairPath != "" {
		cfg.Wallet = config.WalletConfig{KeypairPath: a.keypairPath}
	}
	if a.storage != "" {
		cfg.Storage.Backend = a.storage
	}
	if a.sqlitePath != "" {
		cfg.Storage.SQLitePath = a.sqlitePath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger.Named("ico")
	return nil
}

func (a *app) program() (*ico.Program, error) {
	programID, mint, err := a.cfg.SaleAddresses()
	if err != nil {
		return nil, err
	}
	return ico.NewProgram(programID, mint)
}

func (a *app) rpcClient() solana.RPCClient {
	if a.rpc != nil {
		return a.rpc
	}
	sc := a.cfg.Solana
	return solana.NewHTTPClient(sc.RPCEndpoint,
		solana.WithTimeout(sc.Timeout),
		solana.WithMaxRetries(sc.MaxRetries),
		solana.WithCommitment(sc.Commitment),
		solana.WithRateLimit(sc.RateLimit, sc.RateBurst),
	)
}

// wallet loads the configured signing key.
func (a *app) wallet() (*wallet.Keypair, error) {
	kp, err := wallet.Load(a.cfg.Wallet)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	return kp, nil
}

// client builds a sale client. When withWS is set and the node's WebSocket
// endpoint is reachable, confirmations use signature subscriptions.
// The returned function releases the WebSocket connection.
func (a *app) client(ctx context.Context, signer wallet.Signer, withWS bool) (*ico.Client, func(), error) {
	program, err := a.program()
	if err != nil {
		return nil, nil, err
	}
	rpc := a.rpcClient()
	cleanup := func() {}

	confirmOpts := []ico.ConfirmerOption{ico.WithConfirmLogger(a.logger.Named("confirm"))}
	if withWS && a.rpc == nil {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = a.logger.Named("ws")
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		ws, err := solana.NewWSClient(dialCtx, a.cfg.Solana.WSEndpoint, &wsCfg)
		cancel()
		if err != nil {
			a.logger.Warn("websocket unavailable, confirming by polling", zap.Error(err))
		} else {
			confirmOpts = append(confirmOpts, ico.WithWebSocket(ws))
			cleanup = func() { ws.Close() }
		}
	}
	confirmer := ico.NewConfirmer(rpc, a.cfg.Solana.Commitment, a.cfg.Solana.ConfirmTimeout, confirmOpts...)

	opts := []ico.ClientOption{ico.WithConfirmer(confirmer), ico.WithLogger(a.logger.Named("client"))}
	if signer != nil {
		opts = append(opts, ico.WithSigner(signer))
	}
	return ico.NewClient(rpc, program, opts...), cleanup, nil
}

func (a *app) stores(ctx context.Context) (*backend.Stores, error) {
	return backend.Open(ctx, a.cfg.Storage, false)
}
