package core

import (
	"fmt"
	"sort"
	"time"
)

// LedgerState is derived from installment statuses and never stored.
type LedgerState string

const (
	StateUnfunded      LedgerState = "unfunded"
	StatePartiallyPaid LedgerState = "partially_paid"
	StateFullyPaid     LedgerState = "fully_paid"
)

// DeriveState maps paid/total counts to a ledger state.
func DeriveState(paid, total int) LedgerState {
	switch {
	case total == 0 || paid == 0:
		return StateUnfunded
	case paid >= total:
		return StateFullyPaid
	default:
		return StatePartiallyPaid
	}
}

// PercentPaid returns paid/total*100, or 0 when there are no installments.
func PercentPaid(paid, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(paid) / float64(total) * 100
}

// LedgerSummary is a ledger annotated with its computed aggregates.
type LedgerSummary struct {
	Ledger       Ledger
	Enrollment   Enrollment
	Installments []Installment

	PaidCount     int
	PendingCount  int
	OverdueCount  int
	PaidAmount    Money
	PendingAmount Money
	OverdueAmount Money
	PercentPaid   float64
	State         LedgerState

	NextDue *Installment
	Drift   *ConsistencyWarning
}

// StatusLine is the short financial status shown on the mentee dashboard.
func (s LedgerSummary) StatusLine() string {
	return fmt.Sprintf("%d/%d installments paid", s.PaidCount, len(s.Installments))
}

// NotConfiguredStatus is shown when an enrollment has no ledger yet.
const NotConfiguredStatus = "not configured"

// EnrollmentLedger answers the mentee detail view. Configured is false when
// no ledger exists for the enrollment, which is not an error.
type EnrollmentLedger struct {
	EnrollmentID string
	Configured   bool
	Summary      *LedgerSummary
}

func (e EnrollmentLedger) StatusLine() string {
	if !e.Configured || e.Summary == nil {
		return NotConfiguredStatus
	}
	return e.Summary.StatusLine()
}

// CurrencyTotals holds portfolio sums for one currency.
type CurrencyTotals struct {
	Currency         CurrencyCode
	LedgerCount      int
	TotalRevenue     Money
	TotalReceived    Money
	TotalOutstanding Money
}

// PortfolioTotals is the admin financial summary. Amounts are grouped by
// currency because ledgers in different currencies cannot be summed.
type PortfolioTotals struct {
	ByCurrency              []CurrencyTotals
	LedgerCount             int
	PaidInstallmentCount    int
	PendingInstallmentCount int
	TotalInstallmentCount   int
	OverdueInstallmentCount int
	PaidThisMonthCount      int
}

// Currency returns the totals for code, zero-valued when absent.
func (p PortfolioTotals) Currency(code CurrencyCode) CurrencyTotals {
	for _, ct := range p.ByCurrency {
		if ct.Currency == code {
			return ct
		}
	}
	zero := Money{Currency: code}
	return CurrencyTotals{Currency: code, TotalRevenue: zero, TotalReceived: zero, TotalOutstanding: zero}
}

// ComputePortfolioTotals folds ledger summaries into portfolio totals.
// now decides which payments count for the current calendar month.
func ComputePortfolioTotals(summaries []LedgerSummary, now time.Time) PortfolioTotals {
	var totals PortfolioTotals
	byCurrency := map[CurrencyCode]*CurrencyTotals{}

	for _, s := range summaries {
		code := s.Ledger.Currency()
		ct, ok := byCurrency[code]
		if !ok {
			zero := Money{Currency: code}
			ct = &CurrencyTotals{Currency: code, TotalRevenue: zero, TotalReceived: zero, TotalOutstanding: zero}
			byCurrency[code] = ct
		}
		ct.LedgerCount++
		// PaidAmount shares the ledger currency, so neither sum can mismatch.
		ct.TotalRevenue, _ = ct.TotalRevenue.Add(s.Ledger.Total)
		ct.TotalReceived, _ = ct.TotalReceived.Add(s.PaidAmount)

		totals.LedgerCount++
		totals.PaidInstallmentCount += s.PaidCount
		totals.PendingInstallmentCount += s.PendingCount
		totals.TotalInstallmentCount += len(s.Installments)
		totals.OverdueInstallmentCount += s.OverdueCount

		for _, inst := range s.Installments {
			if inst.IsPaid() && inst.PaymentDate != nil && sameMonth(*inst.PaymentDate, now) {
				totals.PaidThisMonthCount++
			}
		}
	}

	for _, ct := range byCurrency {
		ct.TotalOutstanding, _ = ct.TotalRevenue.Sub(ct.TotalReceived)
		totals.ByCurrency = append(totals.ByCurrency, *ct)
	}
	sort.Slice(totals.ByCurrency, func(i, j int) bool {
		return totals.ByCurrency[i].Currency < totals.ByCurrency[j].Currency
	})
	return totals
}

func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}
