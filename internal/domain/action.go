package domain

// ActionKind identifies a wallet-initiated sale action.
type ActionKind string

const (
	ActionInitialize         ActionKind = "initialize"
	ActionDeposit            ActionKind = "deposit"
	ActionBuy                ActionKind = "buy"
	ActionCreateTokenAccount ActionKind = "create_token_account"
)

// String returns the string representation of ActionKind.
func (k ActionKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a valid value.
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionInitialize, ActionDeposit, ActionBuy, ActionCreateTokenAccount:
		return true
	}
	return false
}

// ActionStatus is the outcome of an action.
type ActionStatus string

const (
	ActionConfirmed ActionStatus = "confirmed"
	ActionFailed    ActionStatus = "failed"
)

// String returns the string representation of ActionStatus.
func (s ActionStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s ActionStatus) IsValid() bool {
	return s == ActionConfirmed || s == ActionFailed
}

// Action is one recorded sale action.
// Corresponds to actions table in PostgreSQL/SQLite.
type Action struct {
	ActionID  string       // PRIMARY KEY, deterministic hash
	Kind      ActionKind   // initialize | deposit | buy | create_token_account
	Wallet    string       // signing wallet address
	Amount    uint64       // whole tokens requested
	Lamports  uint64       // purchase cost, buys only
	Signature string       // transaction signature, empty when never submitted
	Status    ActionStatus // confirmed | failed
	Error     string       // failure message
	CreatedAt int64        // Unix timestamp in milliseconds
}
