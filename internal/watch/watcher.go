// Package watch follows the sale program and stores snapshots of the sale
// record whenever it changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"solana-ico/internal/domain"
	"solana-ico/internal/ico"
	"solana-ico/internal/observability"
	"solana-ico/internal/solana"
	"solana-ico/internal/storage"
)

// Watcher snapshots the sale after every successful program transaction
// and on a fixed interval.
type Watcher struct {
	client   *ico.Client
	ws       solana.WSClient
	store    storage.SnapshotStore
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	stats Stats
}

// Options contains configuration for creating a Watcher.
type Options struct {
	Client   *ico.Client
	WS       solana.WSClient       // optional; without it the watcher only polls
	Store    storage.SnapshotStore // optional; without it only gauges are updated
	Interval time.Duration         // Default: 30s
	Logger   *zap.Logger
	Now      func() time.Time
}

// Stats describes the watcher for the status endpoint.
type Stats struct {
	Running       bool         `json:"running"`
	Subscribed    bool         `json:"subscribed"`
	StartedAt     time.Time    `json:"started_at"`
	LastSnapshot  time.Time    `json:"last_snapshot,omitempty"`
	Snapshots     int          `json:"snapshots"`
	Notifications int          `json:"notifications"`
	Errors        int          `json:"errors"`
	Sale          *domain.Sale `json:"sale,omitempty"`
}

// New creates a watcher.
func New(opts Options) *Watcher {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Watcher{
		client:   opts.Client,
		ws:       opts.WS,
		store:    opts.Store,
		interval: interval,
		logger:   logger,
		now:      now,
	}
}

// Run watches until ctx is cancelled. A closed log subscription falls back
// to polling.
func (w *Watcher) Run(ctx context.Context) error {
	var logs <-chan solana.LogNotification
	if w.ws != nil {
		programID := w.client.Program().ID.String()
		ch, err := w.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{programID}})
		if err != nil {
			return fmt.Errorf("subscribe to program logs: %w", err)
		}
		logs = ch
		w.logger.Info("subscribed to program logs", zap.String("program", programID))
	}

	w.mu.Lock()
	w.stats.Running = true
	w.stats.Subscribed = logs != nil
	w.stats.StartedAt = w.now()
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.stats.Running = false
		w.stats.Subscribed = false
		w.mu.Unlock()
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("watcher started", zap.Duration("interval", w.interval))
	w.snapshotAndLog(ctx, 0, "")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return ctx.Err()

		case note, ok := <-logs:
			if !ok {
				w.logger.Warn("program log subscription closed, polling only")
				logs = nil
				w.mu.Lock()
				w.stats.Subscribed = false
				w.mu.Unlock()
				continue
			}
			w.mu.Lock()
			w.stats.Notifications++
			w.mu.Unlock()
			if note.Err != nil {
				w.logger.Debug("skipping failed transaction", zap.String("signature", note.Signature))
				continue
			}
			w.snapshotAndLog(ctx, note.Slot, note.Signature)

		case <-ticker.C:
			w.snapshotAndLog(ctx, 0, "")
		}
	}
}

func (w *Watcher) snapshotAndLog(ctx context.Context, slot int64, signature string) {
	if err := w.Snapshot(ctx, slot, signature); err != nil && ctx.Err() == nil {
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		w.logger.Warn("snapshot failed",
			zap.Int64("slot", slot),
			zap.String("signature", signature),
			zap.Error(err),
		)
	}
}

// Snapshot fetches the current sale and stores it. slot and signature
// identify the triggering transaction and are empty for periodic snapshots.
// A missing sale is not an error.
func (w *Watcher) Snapshot(ctx context.Context, slot int64, signature string) error {
	sale, err := w.client.CurrentSale(ctx)
	if errors.Is(err, ico.ErrSaleNotInitialized) {
		w.logger.Debug("no sale to snapshot")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch sale: %w", err)
	}
	observability.UpdateSale(sale.TotalTokens, sale.TokensSold)

	now := w.now()
	w.mu.Lock()
	cp := *sale
	w.stats.Sale = &cp
	w.mu.Unlock()

	if w.store == nil {
		return nil
	}

	snap := domain.NewSaleSnapshot(sale, slot, signature, now.UnixMilli())
	if err := w.store.Insert(ctx, snap); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("store snapshot: %w", err)
	}

	w.mu.Lock()
	w.stats.Snapshots++
	w.stats.LastSnapshot = now
	w.mu.Unlock()
	observability.RecordSnapshot(now.Unix())

	w.logger.Debug("sale snapshot stored",
		zap.String("sale", sale.Address),
		zap.Uint64("total_tokens", sale.TotalTokens),
		zap.Uint64("tokens_sold", sale.TokensSold),
		zap.Int64("slot", slot),
	)
	return nil
}

// Stats returns a copy of the watcher's counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.stats
	if st.Sale != nil {
		sale := *st.Sale
		st.Sale = &sale
	}
	return st
}
