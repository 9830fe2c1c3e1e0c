// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"solana-ico/internal/domain"
	"solana-ico/internal/idhash"
	"solana-ico/internal/storage"
)

// NewAction builds a valid action for tests.
func NewAction(kind domain.ActionKind, wallet string, amount uint64, createdAt int64) *domain.Action {
	sig := fmt.Sprintf("sig-%s-%d", kind, createdAt)
	return &domain.Action{
		ActionID:  idhash.ComputeActionID(kind, wallet, amount, sig, createdAt),
		Kind:      kind,
		Wallet:    wallet,
		Amount:    amount,
		Signature: sig,
		Status:    domain.ActionConfirmed,
		CreatedAt: createdAt,
	}
}

// RunActionStore exercises an ActionStore. newStore must return an empty store.
func RunActionStore(t *testing.T, newStore func(t *testing.T) storage.ActionStore) {
	t.Run("InsertAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		a := NewAction(domain.ActionBuy, "wallet1", 10, 1704067200000)
		a.Lamports = 10_000_000

		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		got, err := store.GetByID(ctx, a.ActionID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if *got != *a {
			t.Errorf("GetByID mismatch: got %+v, want %+v", got, a)
		}
	})

	t.Run("FailedActionKeepsError", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		a := NewAction(domain.ActionDeposit, "admin", 5, 1704067200000)
		a.Signature = ""
		a.Status = domain.ActionFailed
		a.Error = "program error 6001: Invalid admin"

		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		got, err := store.GetByID(ctx, a.ActionID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if got.Status != domain.ActionFailed || got.Error != a.Error || got.Signature != "" {
			t.Errorf("unexpected failed action: %+v", got)
		}
	})

	t.Run("DuplicateKey", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		a := NewAction(domain.ActionBuy, "wallet1", 1, 1704067200000)
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("first insert failed: %v", err)
		}
		if err := store.Insert(ctx, a); !errors.Is(err, storage.ErrDuplicateKey) {
			t.Errorf("expected ErrDuplicateKey, got %v", err)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("nil: expected ErrInvalidInput, got %v", err)
		}
		bad := NewAction(domain.ActionKind("withdraw"), "wallet1", 1, 1)
		if err := store.Insert(ctx, bad); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("bad kind: expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetByID(context.Background(), "missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListByWallet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i, ts := range []int64{3000, 1000, 2000} {
			if err := store.Insert(ctx, NewAction(domain.ActionBuy, "alice", uint64(i+1), ts)); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
		}
		if err := store.Insert(ctx, NewAction(domain.ActionBuy, "bob", 1, 1500)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		all, err := store.ListByWallet(ctx, "alice", 0)
		if err != nil {
			t.Fatalf("ListByWallet failed: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 actions, got %d", len(all))
		}
		for i, want := range []int64{1000, 2000, 3000} {
			if all[i].CreatedAt != want {
				t.Errorf("position %d: got %d, want %d", i, all[i].CreatedAt, want)
			}
		}

		recent, err := store.ListByWallet(ctx, "alice", 2)
		if err != nil {
			t.Fatalf("ListByWallet with limit failed: %v", err)
		}
		if len(recent) != 2 || recent[0].CreatedAt != 2000 || recent[1].CreatedAt != 3000 {
			t.Errorf("expected the two most recent actions in order, got %+v", recent)
		}

		none, err := store.ListByWallet(ctx, "carol", 0)
		if err != nil {
			t.Fatalf("ListByWallet failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no actions, got %d", len(none))
		}
	})

	t.Run("ListByTimeRange", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, ts := range []int64{1000, 2000, 3000, 4000} {
			if err := store.Insert(ctx, NewAction(domain.ActionBuy, "alice", 1, ts)); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
		}

		got, err := store.ListByTimeRange(ctx, 2000, 3000)
		if err != nil {
			t.Fatalf("ListByTimeRange failed: %v", err)
		}
		if len(got) != 2 || got[0].CreatedAt != 2000 || got[1].CreatedAt != 3000 {
			t.Errorf("expected inclusive range [2000, 3000], got %+v", got)
		}
	})

	t.Run("ConcurrentInsert", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- store.Insert(ctx, NewAction(domain.ActionBuy, "alice", uint64(i), int64(1000+i)))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("concurrent insert failed: %v", err)
			}
		}

		all, err := store.ListByWallet(ctx, "alice", 0)
		if err != nil {
			t.Fatalf("ListByWallet failed: %v", err)
		}
		if len(all) != 20 {
			t.Errorf("expected 20 actions, got %d", len(all))
		}
	})
}

// RunSnapshotStore exercises a SnapshotStore. newStore must return an empty store.
func RunSnapshotStore(t *testing.T, newStore func(t *testing.T) storage.SnapshotStore) {
	snap := func(sale string, sold uint64, ts int64) *domain.SaleSnapshot {
		return &domain.SaleSnapshot{
			SaleAddress: sale,
			Admin:       "admin",
			TotalTokens: 1000,
			TokensSold:  sold,
			Slot:        ts / 400,
			Signature:   fmt.Sprintf("sig-%d", ts),
			TimestampMs: ts,
		}
	}

	t.Run("InsertAndLatest", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i, ts := range []int64{2000, 1000, 3000} {
			if err := store.Insert(ctx, snap("sale1", uint64(i*10), ts)); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
		}

		latest, err := store.GetLatest(ctx, "sale1")
		if err != nil {
			t.Fatalf("GetLatest failed: %v", err)
		}
		want := snap("sale1", 20, 3000)
		if *latest != *want {
			t.Errorf("GetLatest mismatch: got %+v, want %+v", latest, want)
		}
	})

	t.Run("DuplicateKey", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.Insert(ctx, snap("sale1", 0, 1000)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if err := store.Insert(ctx, snap("sale1", 5, 1000)); !errors.Is(err, storage.ErrDuplicateKey) {
			t.Errorf("expected ErrDuplicateKey, got %v", err)
		}
		// Same timestamp on another sale is fine.
		if err := store.Insert(ctx, snap("sale2", 0, 1000)); err != nil {
			t.Errorf("insert for other sale failed: %v", err)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		store := newStore(t)
		if err := store.Insert(context.Background(), &domain.SaleSnapshot{}); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("LatestNotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetLatest(context.Background(), "missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetByTimeRange", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, ts := range []int64{1000, 2000, 3000, 4000} {
			if err := store.Insert(ctx, snap("sale1", 0, ts)); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
		}
		if err := store.Insert(ctx, snap("sale2", 0, 2500)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		got, err := store.GetByTimeRange(ctx, "sale1", 2000, 3000)
		if err != nil {
			t.Fatalf("GetByTimeRange failed: %v", err)
		}
		if len(got) != 2 || got[0].TimestampMs != 2000 || got[1].TimestampMs != 3000 {
			t.Errorf("expected inclusive range [2000, 3000], got %+v", got)
		}
	})
}
