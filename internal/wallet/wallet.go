// Package wallet provides transaction signers backed by local keys.
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"

	"solana-ico/internal/config"
)

var (
	// ErrInvalidMnemonic is returned for mnemonics failing the BIP-39 checksum.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	// ErrInvalidSecretKey is returned for secret keys of the wrong shape.
	ErrInvalidSecretKey = errors.New("invalid secret key")
	// ErrNoKey is returned when no key source is configured.
	ErrNoKey = errors.New("no wallet key configured")
)

// Signer supplies the connected public key and signs transactions.
type Signer interface {
	PublicKey() solanago.PublicKey
	SignTransaction(ctx context.Context, tx *solanago.Transaction) error
}

// Keypair is an ed25519 key held in memory.
type Keypair struct {
	key solanago.PrivateKey
}

// Compile-time interface check.
var _ Signer = (*Keypair)(nil)

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	key, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keypair{key: key}, nil
}

// FromPrivateKey wraps an existing private key.
func FromPrivateKey(key solanago.PrivateKey) (*Keypair, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSecretKey, ed25519.PrivateKeySize, len(key))
	}
	return &Keypair{key: key}, nil
}

// LoadKeygenFile reads a solana-keygen JSON keypair file.
func LoadKeygenFile(path string) (*Keypair, error) {
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return FromPrivateKey(key)
}

// FromBase58 decodes a base58 64-byte secret key, as exported by wallets.
func FromBase58(secret string) (*Keypair, error) {
	raw, err := base58.Decode(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecretKey, err)
	}
	return FromPrivateKey(solanago.PrivateKey(raw))
}

// FromMnemonic derives the key the way solana-keygen does without a
// derivation path: the first 32 bytes of the BIP-39 seed are the ed25519 seed.
func FromMnemonic(mnemonic, passphrase string) (*Keypair, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	return &Keypair{key: solanago.PrivateKey(priv)}, nil
}

// NewMnemonic returns a fresh 12-word mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// Load picks the first configured key source: secret key, mnemonic, then
// keypair file.
func Load(cfg config.WalletConfig) (*Keypair, error) {
	switch {
	case cfg.SecretKey != "":
		return FromBase58(cfg.SecretKey)
	case cfg.Mnemonic != "":
		return FromMnemonic(cfg.Mnemonic, cfg.Passphrase)
	case cfg.KeypairPath != "":
		return LoadKeygenFile(cfg.KeypairPath)
	default:
		return nil, ErrNoKey
	}
}

// PublicKey returns the wallet address.
func (k *Keypair) PublicKey() solanago.PublicKey {
	return k.key.PublicKey()
}

// SecretBase58 returns the 64-byte secret key in base58.
func (k *Keypair) SecretBase58() string {
	return base58.Encode(k.key)
}

// SignTransaction adds this key's signature to tx. Transactions that need
// other signers fail.
func (k *Keypair) SignTransaction(ctx context.Context, tx *solanago.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pub := k.PublicKey()
	_, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(pub) {
			return &k.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}

// WriteKeygenFile stores the key as a solana-keygen JSON array, readable
// only by the owner. Existing files are not overwritten.
func (k *Keypair) WriteKeygenFile(path string) error {
	ints := make([]int, len(k.key))
	for i, b := range k.key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create keypair file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write keypair file: %w", err)
	}
	return f.Close()
}
