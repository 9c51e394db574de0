package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mentorledger/internal/amqp"
	"mentorledger/internal/cache"
	"mentorledger/internal/core"
	"mentorledger/internal/repo"
)

const reminderCacheSize = 10000

// OverdueProcessor publishes reminders for pending installments past their
// due date. Each installment is announced at most once per reminder window.
type OverdueProcessor struct {
	store     repo.LedgerStore
	publisher EventPublisher
	sent      *cache.LRUCache[time.Time]
}

// NewOverdueProcessor creates a processor whose reminder window is reminderTTL.
func NewOverdueProcessor(store repo.LedgerStore, publisher EventPublisher, reminderTTL time.Duration, opts ...cache.Option) *OverdueProcessor {
	return &OverdueProcessor{
		store:     store,
		publisher: publisher,
		sent:      cache.NewLRUCache[time.Time](reminderCacheSize, reminderTTL, opts...),
	}
}

// Sent exposes the dedup cache so callers can register it for cleanup.
func (p *OverdueProcessor) Sent() *cache.LRUCache[time.Time] {
	return p.sent
}

// Process scans every ledger and returns the number of reminders published.
func (p *OverdueProcessor) Process(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	if p.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping overdue scan")
		return 0, nil
	}

	ledgers, installments, err := p.store.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot ledgers: %w", err)
	}

	today := core.DateOf(now.UTC())
	slog.InfoContext(ctx, "Scanning for overdue installments",
		"ledgers", len(ledgers),
		"processing_date", today.String())

	published, overdue := 0, 0
	for _, l := range ledgers {
		for _, inst := range installments[l.ID] {
			if !IsOverdue(inst, today) {
				continue
			}
			overdue++

			key := reminderKey(inst)
			if !p.sent.SetIfAbsent(key, now) {
				continue
			}

			event := amqp.NewLedgerEvent(amqp.EventInstallmentOverdue, l.ID, l.EnrollmentID, l.Version).WithInstallment(inst.ID)
			if err := p.publisher.PublishEvent(ctx, event); err != nil {
				p.sent.Delete(key)
				if ctx.Err() != nil {
					return published, ctx.Err()
				}
				slog.ErrorContext(ctx, "Failed to publish overdue reminder",
					"installment_id", inst.ID,
					"ledger_id", l.ID,
					"error", err)
				continue
			}

			published++
			slog.InfoContext(ctx, "Overdue reminder published",
				"installment_id", inst.ID,
				"ledger_id", l.ID,
				"enrollment_id", l.EnrollmentID,
				"due_date", inst.DueDate.String(),
				"amount_minor", inst.Amount.Minor,
				"currency", inst.Amount.Currency)
		}
	}

	slog.InfoContext(ctx, "Overdue scan complete",
		"overdue", overdue,
		"published", published)

	return published, nil
}

// reminderKey includes the due date so rescheduling an installment re-arms its reminder.
func reminderKey(inst core.Installment) string {
	return inst.ID + "@" + inst.DueDate.String()
}
