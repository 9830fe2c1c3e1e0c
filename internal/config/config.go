// Package config loads settings for the ico commands.
//
// Values are layered: built-in defaults, then an optional YAML file, then a
// .env file in the working directory (never overriding variables already
// set), then the process environment. Command-line flags are applied last by
// the commands themselves.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the full configuration.
type Config struct {
	Solana  SolanaConfig  `yaml:"solana"`
	Sale    SaleConfig    `yaml:"sale"`
	Wallet  WalletConfig  `yaml:"wallet"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// SolanaConfig configures the node connection.
type SolanaConfig struct {
	RPCEndpoint    string        `yaml:"rpc_endpoint" env:"SOLANA_RPC_ENDPOINT"`
	WSEndpoint     string        `yaml:"ws_endpoint" env:"SOLANA_WS_ENDPOINT"`
	Commitment     string        `yaml:"commitment" env:"SOLANA_COMMITMENT"`
	Timeout        time.Duration `yaml:"timeout" env:"SOLANA_RPC_TIMEOUT"`
	MaxRetries     int           `yaml:"max_retries" env:"SOLANA_RPC_MAX_RETRIES"`
	RateLimit      float64       `yaml:"rate_limit" env:"SOLANA_RPC_RATE_LIMIT"`
	RateBurst      int           `yaml:"rate_burst" env:"SOLANA_RPC_RATE_BURST"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout" env:"SOLANA_CONFIRM_TIMEOUT"`
}

// SaleConfig holds the deployment addresses.
type SaleConfig struct {
	ProgramID string `yaml:"program_id" env:"ICO_PROGRAM_ID"`
	Mint      string `yaml:"mint" env:"ICO_MINT"`
}

// WalletConfig selects the signing key. The first non-empty source wins:
// secret key, mnemonic, keypair file.
type WalletConfig struct {
	KeypairPath string `yaml:"keypair" env:"ICO_KEYPAIR"`
	SecretKey   string `yaml:"-" env:"ICO_SECRET_KEY"`
	Mnemonic    string `yaml:"-" env:"ICO_MNEMONIC"`
	Passphrase  string `yaml:"-" env:"ICO_MNEMONIC_PASSPHRASE"`
}

// StorageConfig selects where action history and snapshots go.
type StorageConfig struct {
	Backend       string `yaml:"backend" env:"ICO_STORAGE"`
	SQLitePath    string `yaml:"sqlite_path" env:"ICO_SQLITE_PATH"`
	PostgresDSN   string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	ClickHouseDSN string `yaml:"clickhouse_dsn" env:"CLICKHOUSE_DSN"`
}

// ServerConfig configures cmd/server.
type ServerConfig struct {
	HTTPAddr      string        `yaml:"http_addr" env:"ICO_HTTP_ADDR"`
	WatchInterval time.Duration `yaml:"watch_interval" env:"ICO_WATCH_INTERVAL"`
	OTLPEndpoint  string        `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Default returns the built-in defaults.
func Default() *Config {
	keypair := ""
	if home, err := os.UserHomeDir(); err == nil {
		keypair = filepath.Join(home, ".config", "solana", "id.json")
	}

	return &Config{
		Solana: SolanaConfig{
			RPCEndpoint:    "https://api.devnet.solana.com",
			Commitment:     "confirmed",
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			RateLimit:      10,
			RateBurst:      5,
			ConfirmTimeout: 60 * time.Second,
		},
		Wallet: WalletConfig{
			KeypairPath: keypair,
		},
		Storage: StorageConfig{
			Backend:    BackendSQLite,
			SQLitePath: "ico-history.db",
		},
		Server: ServerConfig{
			HTTPAddr:      ":8080",
			WatchInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Solana.WSEndpoint == "" {
		ws, err := DeriveWSEndpoint(cfg.Solana.RPCEndpoint)
		if err != nil {
			return nil, err
		}
		cfg.Solana.WSEndpoint = ws
	}

	return cfg, nil
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	if c.Solana.RPCEndpoint == "" {
		return errors.New("solana rpc endpoint is required")
	}
	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("invalid commitment %q", c.Solana.Commitment)
	}
	if c.Solana.ConfirmTimeout <= 0 {
		return errors.New("confirm timeout must be positive")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("postgres dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// SaleAddresses parses the program id and mint.
func (c *Config) SaleAddresses() (programID, mint solanago.PublicKey, err error) {
	if c.Sale.ProgramID == "" {
		return programID, mint, errors.New("ICO_PROGRAM_ID is required")
	}
	if c.Sale.Mint == "" {
		return programID, mint, errors.New("ICO_MINT is required")
	}
	programID, err = solanago.PublicKeyFromBase58(c.Sale.ProgramID)
	if err != nil {
		return programID, mint, fmt.Errorf("parse program id: %w", err)
	}
	mint, err = solanago.PublicKeyFromBase58(c.Sale.Mint)
	if err != nil {
		return programID, mint, fmt.Errorf("parse mint: %w", err)
	}
	return programID, mint, nil
}

// DeriveWSEndpoint maps an http(s) RPC endpoint to its ws(s) counterpart.
func DeriveWSEndpoint(rpcEndpoint string) (string, error) {
	u, err := url.Parse(rpcEndpoint)
	if err != nil {
		return "", fmt.Errorf("parse rpc endpoint: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
		// Local validators serve WebSocket on the next port.
		if port := u.Port(); port == "8899" {
			u.Host = u.Hostname() + ":8900"
		}
	default:
		return "", fmt.Errorf("unsupported rpc scheme %q", u.Scheme)
	}
	return u.String(), nil
}
