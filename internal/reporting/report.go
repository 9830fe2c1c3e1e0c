package reporting

import "time"

// Report summarizes sale activity over a time range.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RangeStart  int64 // Unix ms, inclusive
	RangeEnd    int64 // Unix ms, inclusive

	// Sale is the current on-chain record, nil when no sale exists.
	Sale *SaleSection

	Summary Summary

	// Buyers sorted by tokens bought DESC, wallet ASC.
	Buyers []BuyerRow

	// Failures in created_at order.
	Failures []FailureRow

	// Snapshots recorded by the watcher in the range, nil without a snapshot store.
	Snapshots *SnapshotSection

	// Actions in created_at order, the CSV body.
	Actions []ActionRow
}

// SaleSection describes the sale record.
type SaleSection struct {
	Address     string
	Admin       string
	TotalTokens uint64
	TokensSold  uint64
	Remaining   uint64
	SoldPct     float64 // tokens_sold / total_tokens * 100, 0 if total is 0
}

// Summary contains confirmed totals; failures are counted separately.
type Summary struct {
	Purchases            int
	TokensBought         uint64
	LamportsSpent        uint64
	UniqueBuyers         int
	Initializations      int
	Deposits             int
	TokensDeposited      uint64
	TokenAccountsCreated int
	Failures             int
}

// BuyerRow aggregates confirmed purchases of one wallet.
type BuyerRow struct {
	Wallet    string
	Purchases int
	Tokens    uint64
	Lamports  uint64
}

// FailureRow lists one failed action.
type FailureRow struct {
	CreatedAt int64
	Kind      string
	Wallet    string
	Amount    uint64
	Error     string
}

// SnapshotSection compares the first and last snapshot in range.
type SnapshotSection struct {
	Count           int
	FirstTokensSold uint64
	LastTokensSold  uint64
	SoldInRange     uint64
}

// ActionRow is one action as exported to CSV.
type ActionRow struct {
	ActionID  string
	CreatedAt int64
	Kind      string
	Wallet    string
	Amount    uint64
	Lamports  uint64
	Status    string
	Signature string
	Error     string
}
