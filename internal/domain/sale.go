package domain

// Sale is the decoded sale record (the program's Data account).
// Token quantities are whole tokens, as the program counts them.
type Sale struct {
	Address     string // data account address
	Admin       string // admin wallet address
	TotalTokens uint64 // tokens deposited into the vault
	TokensSold  uint64 // tokens bought by users
}

// Remaining returns the number of tokens still for sale.
func (s *Sale) Remaining() uint64 {
	if s.TokensSold >= s.TotalTokens {
		return 0
	}
	return s.TotalTokens - s.TokensSold
}

// SaleSnapshot is a point-in-time copy of a Sale.
// Corresponds to sale_snapshots table in ClickHouse.
type SaleSnapshot struct {
	SaleAddress string
	Admin       string
	TotalTokens uint64
	TokensSold  uint64
	Slot        int64 // slot of the triggering transaction, 0 for periodic snapshots
	Signature   string
	TimestampMs int64
}

// NewSaleSnapshot copies sale at the given slot and time.
func NewSaleSnapshot(sale *Sale, slot int64, signature string, timestampMs int64) *SaleSnapshot {
	return &SaleSnapshot{
		SaleAddress: sale.Address,
		Admin:       sale.Admin,
		TotalTokens: sale.TotalTokens,
		TokensSold:  sale.TokensSold,
		Slot:        slot,
		Signature:   signature,
		TimestampMs: timestampMs,
	}
}
