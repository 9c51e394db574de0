package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"mentorledger/internal/core"
)

// ListLedgers returns every ledger with its aggregates, oldest first.
func (s *LedgerService) ListLedgers(ctx context.Context) ([]core.LedgerSummary, error) {
	var (
		ledgers      []core.Ledger
		installments map[string][]core.Installment
		enrollments  map[string]core.Enrollment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ledgers, installments, err = s.store.Snapshot(gctx)
		if err != nil {
			return fmt.Errorf("snapshot ledgers: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		enrollments, err = s.enrollmentIndex(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	today := s.today()
	summaries := make([]core.LedgerSummary, 0, len(ledgers))
	for _, l := range ledgers {
		e, ok := enrollments[l.EnrollmentID]
		if !ok {
			e = core.Enrollment{ID: l.EnrollmentID}
		}
		summaries = append(summaries, summarize(l, e, installments[l.ID], today))
	}
	return summaries, nil
}

// PortfolioTotals aggregates every ledger, grouped by currency.
func (s *LedgerService) PortfolioTotals(ctx context.Context) (core.PortfolioTotals, error) {
	summaries, err := s.ListLedgers(ctx)
	if err != nil {
		return core.PortfolioTotals{}, err
	}
	return core.ComputePortfolioTotals(summaries, s.now()), nil
}

// GetLedgerForEnrollment answers the mentee view. An enrollment without a
// ledger is reported as not configured; when several exist the newest wins.
func (s *LedgerService) GetLedgerForEnrollment(ctx context.Context, enrollmentID string) (core.EnrollmentLedger, error) {
	enrollmentID = strings.TrimSpace(enrollmentID)
	if enrollmentID == "" {
		return core.EnrollmentLedger{}, core.NewValidationError("enrollment", core.ErrEmptyEnrollment)
	}

	ledgers, err := s.store.LedgersForEnrollment(ctx, enrollmentID)
	if err != nil {
		return core.EnrollmentLedger{}, fmt.Errorf("list ledgers for enrollment: %w", err)
	}
	if len(ledgers) == 0 {
		return core.EnrollmentLedger{EnrollmentID: enrollmentID}, nil
	}

	summary, err := s.loadSummary(ctx, ledgers[0].ID)
	if err != nil {
		return core.EnrollmentLedger{}, err
	}
	return core.EnrollmentLedger{EnrollmentID: enrollmentID, Configured: true, Summary: &summary}, nil
}

// loadSummary reads the ledger and its installments together, so a
// concurrent regeneration can never pair one version with the other's rows.
func (s *LedgerService) loadSummary(ctx context.Context, id string) (core.LedgerSummary, error) {
	l, installments, err := s.store.LoadLedger(ctx, id)
	if err != nil {
		return core.LedgerSummary{}, err
	}
	e := core.Enrollment{ID: l.EnrollmentID}
	if s.directory != nil {
		found, err := s.directory.GetEnrollment(ctx, l.EnrollmentID)
		switch {
		case err == nil:
			e = found
		case !errors.Is(err, core.ErrNotFound):
			return core.LedgerSummary{}, fmt.Errorf("lookup enrollment: %w", err)
		}
	}
	return summarize(l, e, installments, s.today()), nil
}

func (s *LedgerService) enrollmentIndex(ctx context.Context) (map[string]core.Enrollment, error) {
	out := map[string]core.Enrollment{}
	if s.directory == nil {
		return out, nil
	}
	list, err := s.directory.ListEnrollments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	for _, e := range list {
		out[e.ID] = e
	}
	return out, nil
}

// summarize computes the aggregates of one ledger as of today.
func summarize(l core.Ledger, e core.Enrollment, installments []core.Installment, today core.Date) core.LedgerSummary {
	currency := l.Currency()
	sum := core.LedgerSummary{
		Ledger:        l,
		Enrollment:    e,
		Installments:  installments,
		PaidAmount:    core.Money{Currency: currency},
		PendingAmount: core.Money{Currency: currency},
		OverdueAmount: core.Money{Currency: currency},
	}
	if sum.Installments == nil {
		sum.Installments = []core.Installment{}
	}

	// amounts in another currency are counted but not summed; CheckBalance
	// reports them as drift
	add := func(dst *core.Money, m core.Money) {
		if next, err := dst.Add(m); err == nil {
			*dst = next
		}
	}
	for _, inst := range installments {
		switch DueState(inst, today) {
		case DuePaid:
			sum.PaidCount++
			add(&sum.PaidAmount, inst.Amount)
			continue
		case DueOverdue:
			sum.OverdueCount++
			add(&sum.OverdueAmount, inst.Amount)
		}
		sum.PendingCount++
		add(&sum.PendingAmount, inst.Amount)
	}

	sum.PercentPaid = core.PercentPaid(sum.PaidCount, len(installments))
	sum.State = core.DeriveState(sum.PaidCount, len(installments))
	sum.NextDue = NextDue(installments, today)
	sum.Drift = core.CheckBalance(l, installments)
	return sum
}
