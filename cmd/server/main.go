// Package main runs the relay server: the JSON API over a session signed
// by the relay wallet, and the sale watcher that stores snapshots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-ico/internal/config"
	"solana-ico/internal/httpapi"
	"solana-ico/internal/ico"
	"solana-ico/internal/logging"
	"solana-ico/internal/observability"
	"solana-ico/internal/solana"
	"solana-ico/internal/storage/backend"
	"solana-ico/internal/wallet"
	"solana-ico/internal/watch"
)

const shutdownTimeout = 30 * time.Second

// Server holds all components of the relay service.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	stores  *backend.Stores
	rpc     solana.RPCClient
	session *ico.Session
	watcher *watch.Watcher
	api     *httpapi.Server

	closers []func() error
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides ICO_HTTP_ADDR)")
	storageBackend := flag.String("storage", "", "action history backend: memory, sqlite, postgres")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage for actions and snapshots")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *storageBackend != "" {
		cfg.Storage.Backend = *storageBackend
	}
	if *useMemory {
		cfg.Storage.Backend = config.BackendMemory
		cfg.Storage.ClickHouseDSN = ""
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer baseLogger.Sync()
	logger := baseLogger.Named("server")

	ctx, cancel := context.WithCancel(context.Background())

	shutdownTracing, err := observability.SetupTracing(ctx, "solana-ico-relay", cfg.Server.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	server, err := newServer(ctx, cfg, baseLogger)
	if err != nil {
		logger.Fatal("failed to create server", zap.Error(err))
	}

	// Channel to signal completion
	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(shutdownTimeout):
			logger.Error("graceful shutdown timed out, forcing exit", zap.Duration("timeout", shutdownTimeout))
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()

	server.Close()
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("flush traces", zap.Error(err))
	}
	flushCancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newServer opens stores and connections and wires the components.
func newServer(ctx context.Context, cfg *config.Config, baseLogger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: baseLogger.Named("server")}

	programID, mint, err := cfg.SaleAddresses()
	if err != nil {
		return nil, err
	}
	program, err := ico.NewProgram(programID, mint)
	if err != nil {
		return nil, err
	}

	stores, err := backend.Open(ctx, cfg.Storage, true)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	s.stores = stores
	s.closers = append(s.closers, stores.Close)

	sc := cfg.Solana
	s.rpc = solana.NewHTTPClient(sc.RPCEndpoint,
		solana.WithTimeout(sc.Timeout),
		solana.WithMaxRetries(sc.MaxRetries),
		solana.WithCommitment(sc.Commitment),
		solana.WithRateLimit(sc.RateLimit, sc.RateBurst),
	)

	// Confirmations and program logs use separate connections.
	confirmWS, err := s.dialWS(ctx, "confirm-ws")
	if err != nil {
		s.Close()
		return nil, err
	}
	logsWS, err := s.dialWS(ctx, "logs-ws")
	if err != nil {
		s.Close()
		return nil, err
	}

	confirmer := ico.NewConfirmer(s.rpc, sc.Commitment, sc.ConfirmTimeout,
		ico.WithWebSocket(confirmWS),
		ico.WithConfirmLogger(baseLogger.Named("confirm")),
	)
	clientOpts := []ico.ClientOption{
		ico.WithConfirmer(confirmer),
		ico.WithLogger(baseLogger.Named("client")),
	}

	relay, err := loadRelayWallet(cfg.Wallet)
	switch {
	case err == nil:
		clientOpts = append(clientOpts, ico.WithSigner(relay))
		s.logger.Info("relay wallet loaded", zap.String("wallet", relay.PublicKey().String()))
	case errors.Is(err, wallet.ErrNoKey):
		s.logger.Warn("no relay wallet configured, actions are disabled")
	default:
		s.Close()
		return nil, fmt.Errorf("load relay wallet: %w", err)
	}
	client := ico.NewClient(s.rpc, program, clientOpts...)

	s.session = ico.NewSession(client,
		ico.WithActionStore(stores.Actions),
		ico.WithSessionLogger(baseLogger.Named("session")),
	)
	s.watcher = watch.New(watch.Options{
		Client:   client,
		WS:       logsWS,
		Store:    stores.Snapshots,
		Interval: cfg.Server.WatchInterval,
		Logger:   baseLogger.Named("watch"),
	})
	s.api = httpapi.New(s.session,
		httpapi.WithActionStore(stores.Actions),
		httpapi.WithSnapshotStore(stores.Snapshots),
		httpapi.WithLogger(baseLogger.Named("relay")),
		httpapi.WithStatus(func() interface{} {
			return map[string]interface{}{"watcher": s.watcher.Stats()}
		}),
	)
	return s, nil
}

// loadRelayWallet treats a missing default keypair file as no wallet.
func loadRelayWallet(cfg config.WalletConfig) (*wallet.Keypair, error) {
	if cfg.SecretKey == "" && cfg.Mnemonic == "" && cfg.KeypairPath != "" {
		if _, err := os.Stat(cfg.KeypairPath); errors.Is(err, fs.ErrNotExist) {
			return nil, wallet.ErrNoKey
		}
	}
	return wallet.Load(cfg)
}

func (s *Server) dialWS(ctx context.Context, name string) (solana.WSClient, error) {
	wsCfg := solana.DefaultWSConfig()
	wsCfg.Logger = s.logger.Named(name)
	ws, err := solana.NewWSClient(ctx, s.cfg.Solana.WSEndpoint, &wsCfg)
	if err != nil {
		return nil, fmt.Errorf("create websocket client %s: %w", name, err)
	}
	s.closers = append(s.closers, ws.Close)
	return ws, nil
}

// Run starts the HTTP server and the watcher and blocks until ctx is
// cancelled or a component fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting relay server")

	if err := s.session.Refresh(ctx); err != nil {
		s.logger.Warn("initial refresh failed", zap.Error(err))
	}

	errCh := make(chan error, 2)

	go func() {
		err := s.watcher.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("watcher: %w", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              s.cfg.Server.HTTPAddr,
		Handler:           s.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		s.logger.Warn("http shutdown", zap.Error(serr))
	}
	return err
}

// Close releases connections in reverse order of creation.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close", zap.Error(err))
		}
	}
	s.closers = nil
}
