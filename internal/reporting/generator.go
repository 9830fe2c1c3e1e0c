package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"solana-ico/internal/domain"
	"solana-ico/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	actionStore   storage.ActionStore
	snapshotStore storage.SnapshotStore
	now           func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. snapshotStore may be nil.
func NewGenerator(actionStore storage.ActionStore, snapshotStore storage.SnapshotStore) *Generator {
	return &Generator{
		actionStore:   actionStore,
		snapshotStore: snapshotStore,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report of actions created within [start, end] for sale,
// which may be nil.
func (g *Generator) Generate(ctx context.Context, sale *domain.Sale, start, end int64) (*Report, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range: end %d before start %d", end, start)
	}

	actions, err := g.actionStore.ListByTimeRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}

	r := &Report{
		GeneratedAt: g.now(),
		RangeStart:  start,
		RangeEnd:    end,
		Sale:        saleSection(sale),
	}
	r.Summary, r.Buyers, r.Failures = summarize(actions)
	r.Actions = actionRows(actions)

	if g.snapshotStore != nil && sale != nil {
		snaps, err := g.snapshotStore.GetByTimeRange(ctx, sale.Address, start, end)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load snapshots: %w", err)
		}
		r.Snapshots = snapshotSection(snaps)
	}

	return r, nil
}

func saleSection(sale *domain.Sale) *SaleSection {
	if sale == nil {
		return nil
	}
	s := &SaleSection{
		Address:     sale.Address,
		Admin:       sale.Admin,
		TotalTokens: sale.TotalTokens,
		TokensSold:  sale.TokensSold,
		Remaining:   sale.Remaining(),
	}
	if sale.TotalTokens > 0 {
		s.SoldPct = float64(sale.TokensSold) / float64(sale.TotalTokens) * 100
	}
	return s
}

func summarize(actions []*domain.Action) (Summary, []BuyerRow, []FailureRow) {
	var sum Summary
	var failures []FailureRow
	buyers := make(map[string]*BuyerRow)

	for _, a := range actions {
		if a.Status == domain.ActionFailed {
			sum.Failures++
			failures = append(failures, FailureRow{
				CreatedAt: a.CreatedAt,
				Kind:      a.Kind.String(),
				Wallet:    a.Wallet,
				Amount:    a.Amount,
				Error:     a.Error,
			})
			continue
		}

		switch a.Kind {
		case domain.ActionBuy:
			sum.Purchases++
			sum.TokensBought += a.Amount
			sum.LamportsSpent += a.Lamports
			b := buyers[a.Wallet]
			if b == nil {
				b = &BuyerRow{Wallet: a.Wallet}
				buyers[a.Wallet] = b
			}
			b.Purchases++
			b.Tokens += a.Amount
			b.Lamports += a.Lamports
		case domain.ActionInitialize:
			sum.Initializations++
			sum.TokensDeposited += a.Amount
		case domain.ActionDeposit:
			sum.Deposits++
			sum.TokensDeposited += a.Amount
		case domain.ActionCreateTokenAccount:
			sum.TokenAccountsCreated++
		}
	}

	rows := make([]BuyerRow, 0, len(buyers))
	for _, b := range buyers {
		rows = append(rows, *b)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Tokens != rows[j].Tokens {
			return rows[i].Tokens > rows[j].Tokens
		}
		return rows[i].Wallet < rows[j].Wallet
	})
	sum.UniqueBuyers = len(rows)

	return sum, rows, failures
}

func snapshotSection(snaps []*domain.SaleSnapshot) *SnapshotSection {
	s := &SnapshotSection{Count: len(snaps)}
	if len(snaps) == 0 {
		return s
	}
	s.FirstTokensSold = snaps[0].TokensSold
	s.LastTokensSold = snaps[len(snaps)-1].TokensSold
	if s.LastTokensSold > s.FirstTokensSold {
		s.SoldInRange = s.LastTokensSold - s.FirstTokensSold
	}
	return s
}

func actionRows(actions []*domain.Action) []ActionRow {
	rows := make([]ActionRow, len(actions))
	for i, a := range actions {
		rows[i] = ActionRow{
			ActionID:  a.ActionID,
			CreatedAt: a.CreatedAt,
			Kind:      a.Kind.String(),
			Wallet:    a.Wallet,
			Amount:    a.Amount,
			Lamports:  a.Lamports,
			Status:    a.Status.String(),
			Signature: a.Signature,
			Error:     a.Error,
		}
	}
	return rows
}
