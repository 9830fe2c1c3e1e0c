package stub

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"solana-ico/internal/solana"
)

// DefaultBlockhash is a valid all-zero blockhash.
const DefaultBlockhash = "11111111111111111111111111111111"

// RPCClient implements solana.RPCClient in memory for testing.
// Submitted transactions are decoded and kept in Sent.
type RPCClient struct {
	mu sync.Mutex

	Accounts  map[string]*solana.AccountInfo
	Balances  map[string]uint64
	Statuses  map[string]*solana.SignatureStatus
	Blockhash string
	Sent      []*solanago.Transaction

	// Err is returned by every read when set.
	Err error
	// SendErr is returned by SendTransaction when set.
	SendErr error
	// OnSend runs for each decoded transaction before it is acknowledged;
	// tests use it to apply the transaction's effects.
	OnSend func(c *RPCClient, tx *solanago.Transaction) error
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:  make(map[string]*solana.AccountInfo),
		Balances:  make(map[string]uint64),
		Statuses:  make(map[string]*solana.SignatureStatus),
		Blockhash: DefaultBlockhash,
	}
}

// SetAccount stores an account. Caller must not hold the lock.
func (c *RPCClient) SetAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setAccountLocked(pubkey, info)
}

func (c *RPCClient) setAccountLocked(pubkey string, info *solana.AccountInfo) {
	if info == nil {
		delete(c.Accounts, pubkey)
		return
	}
	cp := *info
	cp.Data = append([]byte(nil), info.Data...)
	c.Accounts[pubkey] = &cp
}

// PutAccount stores an account from inside an OnSend hook, where the lock is held.
func (c *RPCClient) PutAccount(pubkey string, info *solana.AccountInfo) {
	c.setAccountLocked(pubkey, info)
}

// SetBalance stores a lamport balance.
func (c *RPCClient) SetBalance(pubkey string, lamports uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[pubkey] = lamports
}

// SetStatus stores the status reported for signature.
func (c *RPCClient) SetStatus(signature string, st *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = st
}

// SentTransactions returns a copy of the submitted transactions.
func (c *RPCClient) SentTransactions() []*solanago.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*solanago.Transaction(nil), c.Sent...)
}

// GetAccountInfo returns the stubbed account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	info, ok := c.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

// GetProgramAccounts filters stubbed accounts by owner, size and memcmp.
func (c *RPCClient) GetProgramAccounts(_ context.Context, programID string, filters ...solana.AccountFilter) ([]solana.ProgramAccount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}

	var out []solana.ProgramAccount
	for key, info := range c.Accounts {
		if info.Owner != programID {
			continue
		}
		match, err := matches(info.Data, filters)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, solana.ProgramAccount{Pubkey: key, Account: *info})
		}
	}
	return out, nil
}

func matches(data []byte, filters []solana.AccountFilter) (bool, error) {
	for _, f := range filters {
		if f.Memcmp != nil {
			want, err := base58.Decode(f.Memcmp.Bytes)
			if err != nil {
				return false, fmt.Errorf("decode memcmp bytes: %w", err)
			}
			end := int(f.Memcmp.Offset) + len(want)
			if end > len(data) || !bytes.Equal(data[f.Memcmp.Offset:end], want) {
				return false, nil
			}
			continue
		}
		if f.DataSize > 0 && uint64(len(data)) != f.DataSize {
			return false, nil
		}
	}
	return true, nil
}

// GetBalance returns the stubbed balance (zero when unset).
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return 0, c.Err
	}
	return c.Balances[pubkey], nil
}

// GetLatestBlockhash returns the stubbed blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	return &solana.Blockhash{Blockhash: c.Blockhash, LastValidBlockHeight: 1000}, nil
}

// SendTransaction decodes the transaction, records it and marks it confirmed.
func (c *RPCClient) SendTransaction(_ context.Context, rawTx []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return "", c.SendErr
	}

	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(rawTx))
	if err != nil {
		return "", fmt.Errorf("decode transaction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return "", fmt.Errorf("transaction is not signed")
	}

	if c.OnSend != nil {
		if err := c.OnSend(c, tx); err != nil {
			return "", err
		}
	}

	c.Sent = append(c.Sent, tx)
	sig := tx.Signatures[0].String()
	c.Statuses[sig] = &solana.SignatureStatus{
		Slot:               int64(len(c.Sent)),
		ConfirmationStatus: solana.CommitmentConfirmed,
	}
	return sig, nil
}

// GetSignatureStatuses returns stubbed statuses; unknown signatures are nil.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures ...string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}
