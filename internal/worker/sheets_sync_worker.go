package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mentorledger/internal/amqp"
	"mentorledger/internal/core"
	"mentorledger/internal/sheets"
)

// LedgerSource supplies the ledger summaries to mirror.
type LedgerSource interface {
	GetLedger(ctx context.Context, id string) (core.LedgerSummary, error)
	ListLedgers(ctx context.Context) ([]core.LedgerSummary, error)
}

// SyncConfig holds configuration for the sheets sync worker.
type SyncConfig struct {
	// ResyncInterval is how often the full mirror is rebuilt (default: 15m).
	ResyncInterval time.Duration
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{ResyncInterval: 15 * time.Minute}
}

// SheetsSyncWorker keeps a spreadsheet mirror of ledger summaries up to date.
// Events update single rows; a periodic resync repairs anything missed.
type SheetsSyncWorker struct {
	source LedgerSource
	mirror sheets.LedgerRowWriter
	config SyncConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSheetsSyncWorker(source LedgerSource, mirror sheets.LedgerRowWriter, config SyncConfig) *SheetsSyncWorker {
	if config.ResyncInterval <= 0 {
		config.ResyncInterval = DefaultSyncConfig().ResyncInterval
	}
	return &SheetsSyncWorker{
		source: source,
		mirror: mirror,
		config: config,
	}
}

// HandleEvent applies one ledger event to the mirror. It matches
// amqp.EventHandler, so a returned error requeues the message.
func (w *SheetsSyncWorker) HandleEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"type", event.Type,
		"ledger_id", event.LedgerID,
		"version", event.Version)

	switch event.Type {
	case amqp.EventLedgerDeleted:
		return w.deleteRow(ctx, event.LedgerID)
	case amqp.EventLedgerCreated, amqp.EventLedgerUpdated,
		amqp.EventInstallmentUpdated, amqp.EventInstallmentOverdue:
		return w.syncLedger(ctx, event.LedgerID)
	default:
		slog.WarnContext(ctx, "Ignoring unknown ledger event", "type", event.Type, "ledger_id", event.LedgerID)
		return nil
	}
}

func (w *SheetsSyncWorker) syncLedger(ctx context.Context, ledgerID string) error {
	summary, err := w.source.GetLedger(ctx, ledgerID)
	if errors.Is(err, core.ErrNotFound) {
		// deleted after the event was published
		return w.deleteRow(ctx, ledgerID)
	}
	if err != nil {
		return fmt.Errorf("load ledger %s: %w", ledgerID, err)
	}
	if err := w.mirror.UpsertLedgerRow(ctx, sheets.RowFromSummary(summary)); err != nil {
		return fmt.Errorf("mirror ledger %s: %w", ledgerID, err)
	}
	slog.InfoContext(ctx, "Ledger mirrored", "ledger_id", ledgerID, "version", summary.Ledger.Version)
	return nil
}

func (w *SheetsSyncWorker) deleteRow(ctx context.Context, ledgerID string) error {
	if err := w.mirror.DeleteLedgerRow(ctx, ledgerID); err != nil {
		return fmt.Errorf("remove ledger row %s: %w", ledgerID, err)
	}
	slog.InfoContext(ctx, "Ledger row removed", "ledger_id", ledgerID)
	return nil
}

// Resync rewrites every ledger row and, when the mirror can list its rows,
// removes rows whose ledger no longer exists. It returns the number of rows
// written.
func (w *SheetsSyncWorker) Resync(ctx context.Context) (int, error) {
	summaries, err := w.source.ListLedgers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list ledgers: %w", err)
	}

	live := make(map[string]struct{}, len(summaries))
	synced, failed := 0, 0
	for _, s := range summaries {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		live[s.Ledger.ID] = struct{}{}
		if err := w.mirror.UpsertLedgerRow(ctx, sheets.RowFromSummary(s)); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror ledger", "ledger_id", s.Ledger.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	pruned := 0
	if lister, ok := w.mirror.(sheets.LedgerRowLister); ok {
		rows, err := lister.ListLedgerRows(ctx)
		if err != nil {
			return synced, fmt.Errorf("list mirrored rows: %w", err)
		}
		for _, row := range rows {
			if _, ok := live[row.LedgerID]; ok {
				continue
			}
			if err := w.mirror.DeleteLedgerRow(ctx, row.LedgerID); err != nil {
				slog.ErrorContext(ctx, "Failed to prune orphan row", "ledger_id", row.LedgerID, "error", err)
				failed++
				continue
			}
			pruned++
		}
	}

	slog.InfoContext(ctx, "Ledger mirror resync completed",
		"total", len(summaries),
		"synced", synced,
		"pruned", pruned,
		"errors", failed)

	if failed > 0 {
		return synced, fmt.Errorf("resync: %d operations failed", failed)
	}
	return synced, nil
}

// Start begins the periodic resync loop. Returns an error if already running.
func (w *SheetsSyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sheets sync worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stop, done := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stop, done)

	slog.InfoContext(ctx, "Sheets sync worker started", "resync_interval", w.config.ResyncInterval)
	return nil
}

// Stop signals the loop and waits for it, bounded by ctx. After a timeout
// the worker still counts as running and Stop may be called again.
func (w *SheetsSyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
	done := w.doneCh
	w.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Sheets sync worker stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sheets sync worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *SheetsSyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *SheetsSyncWorker) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.ResyncInterval)
	defer ticker.Stop()

	w.resyncAndLog(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.resyncAndLog(ctx)
		}
	}
}

func (w *SheetsSyncWorker) resyncAndLog(ctx context.Context) {
	if _, err := w.Resync(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Ledger mirror resync failed", "error", err)
	}
}
