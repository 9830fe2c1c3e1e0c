package solana

import "context"

// Commitment levels accepted by the RPC node.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// RPCClient defines the Solana RPC HTTP interface used by the sale client.
type RPCClient interface {
	// GetAccountInfo retrieves an account. Returns nil, nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetProgramAccounts lists accounts owned by a program matching all filters.
	GetProgramAccounts(ctx context.Context, programID string, filters ...AccountFilter) ([]ProgramAccount, error)

	// GetBalance retrieves the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetLatestBlockhash retrieves a recent blockhash for transaction building.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a signed, serialized transaction and returns its signature.
	SendTransaction(ctx context.Context, rawTx []byte) (string, error)

	// GetSignatureStatuses retrieves statuses for signatures. Unknown signatures yield nil entries.
	GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error)
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte
	Executable bool
	RentEpoch  uint64
	Slot       int64 // context slot of the read
}

// ProgramAccount is one entry of getProgramAccounts.
type ProgramAccount struct {
	Pubkey  string
	Account AccountInfo
}

// AccountFilter restricts getProgramAccounts results.
// Exactly one of DataSize or Memcmp should be set.
type AccountFilter struct {
	DataSize uint64
	Memcmp   *Memcmp
}

// Memcmp compares base58 Bytes against account data at Offset.
type Memcmp struct {
	Offset uint64
	Bytes  string
}

// Blockhash from getLatestBlockhash.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}
