package http

import (
	"time"

	"mentorledger/internal/core"
	"mentorledger/internal/services"
)

// JSON shapes of the API. Amounts are decimal strings in the ledger currency.

type ledgerView struct {
	ID               string     `json:"id"`
	EnrollmentID     string     `json:"enrollment_id"`
	MenteeName       string     `json:"mentee_name,omitempty"`
	ProgramName      string     `json:"program_name,omitempty"`
	Currency         string     `json:"currency"`
	TotalAmount      string     `json:"total_amount"`
	PaymentMethod    string     `json:"payment_method"`
	InstallmentCount int        `json:"installment_count"`
	AnchorDate       core.Date  `json:"anchor_date"`
	PaymentDate      *time.Time `json:"payment_date,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type installmentView struct {
	ID            string     `json:"id"`
	LedgerID      string     `json:"ledger_id"`
	LedgerVersion int64      `json:"ledger_version"`
	Sequence      int        `json:"sequence"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	DueDate       core.Date  `json:"due_date"`
	Status        string     `json:"status"`
	DueState      string     `json:"due_state"`
	PaymentDate   *time.Time `json:"payment_date,omitempty"`
}

type driftView struct {
	Total          string `json:"total_amount"`
	InstallmentSum string `json:"installment_sum"`
	Drift          string `json:"drift"`
	Message        string `json:"message"`
}

type summaryView struct {
	Ledger        ledgerView        `json:"ledger"`
	Installments  []installmentView `json:"installments"`
	PaidCount     int               `json:"paid_count"`
	PendingCount  int               `json:"pending_count"`
	OverdueCount  int               `json:"overdue_count"`
	PaidAmount    string            `json:"paid_amount"`
	PendingAmount string            `json:"pending_amount"`
	OverdueAmount string            `json:"overdue_amount"`
	PercentPaid   float64           `json:"percent_paid"`
	State         string            `json:"state"`
	StatusLine    string            `json:"status_line"`
	NextDue       *installmentView  `json:"next_due,omitempty"`
	Drift         *driftView        `json:"drift,omitempty"`
}

type enrollmentLedgerView struct {
	EnrollmentID string       `json:"enrollment_id"`
	Configured   bool         `json:"configured"`
	StatusLine   string       `json:"status_line"`
	Summary      *summaryView `json:"summary,omitempty"`
}

type installmentResultView struct {
	Installment installmentView `json:"installment"`
	Warning     *driftView      `json:"warning,omitempty"`
}

type currencyTotalsView struct {
	Currency         string `json:"currency"`
	Symbol           string `json:"symbol"`
	LedgerCount      int    `json:"ledger_count"`
	TotalRevenue     string `json:"total_revenue"`
	TotalReceived    string `json:"total_received"`
	TotalOutstanding string `json:"total_outstanding"`
	// OutstandingLabel is TotalOutstanding with the currency symbol.
	OutstandingLabel string `json:"outstanding_label"`
}

type totalsView struct {
	ByCurrency              []currencyTotalsView `json:"by_currency"`
	LedgerCount             int                  `json:"ledger_count"`
	PaidInstallmentCount    int                  `json:"paid_installment_count"`
	PendingInstallmentCount int                  `json:"pending_installment_count"`
	TotalInstallmentCount   int                  `json:"total_installment_count"`
	OverdueInstallmentCount int                  `json:"overdue_installment_count"`
	PaidThisMonthCount      int                  `json:"paid_this_month_count"`
}

type enrollmentView struct {
	ID          string `json:"id"`
	MenteeName  string `json:"mentee_name"`
	ProgramName string `json:"program_name"`
	Active      bool   `json:"active"`
}

func newLedgerView(l core.Ledger, e core.Enrollment) ledgerView {
	return ledgerView{
		ID:               l.ID,
		EnrollmentID:     l.EnrollmentID,
		MenteeName:       e.MenteeName,
		ProgramName:      e.ProgramName,
		Currency:         string(l.Currency()),
		TotalAmount:      l.Total.String(),
		PaymentMethod:    string(l.PaymentMethod),
		InstallmentCount: l.InstallmentCount,
		AnchorDate:       l.AnchorDate,
		PaymentDate:      l.PaymentDate,
		Notes:            l.Notes,
		Version:          l.Version,
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

func newInstallmentView(inst core.Installment, today core.Date) installmentView {
	return installmentView{
		ID:            inst.ID,
		LedgerID:      inst.LedgerID,
		LedgerVersion: inst.LedgerVersion,
		Sequence:      inst.Sequence,
		Amount:        inst.Amount.String(),
		Currency:      string(inst.Amount.Currency),
		DueDate:       inst.DueDate,
		Status:        string(inst.Status),
		DueState:      string(services.DueState(inst, today)),
		PaymentDate:   inst.PaymentDate,
	}
}

func newDriftView(w *core.ConsistencyWarning) *driftView {
	if w == nil {
		return nil
	}
	return &driftView{
		Total:          w.Total.String(),
		InstallmentSum: w.InstallmentSum.String(),
		Drift:          w.Drift.String(),
		Message:        w.String(),
	}
}

func newSummaryView(s core.LedgerSummary, today core.Date) summaryView {
	v := summaryView{
		Ledger:        newLedgerView(s.Ledger, s.Enrollment),
		Installments:  make([]installmentView, 0, len(s.Installments)),
		PaidCount:     s.PaidCount,
		PendingCount:  s.PendingCount,
		OverdueCount:  s.OverdueCount,
		PaidAmount:    s.PaidAmount.String(),
		PendingAmount: s.PendingAmount.String(),
		OverdueAmount: s.OverdueAmount.String(),
		PercentPaid:   s.PercentPaid,
		State:         string(s.State),
		StatusLine:    s.StatusLine(),
		Drift:         newDriftView(s.Drift),
	}
	for _, inst := range s.Installments {
		v.Installments = append(v.Installments, newInstallmentView(inst, today))
	}
	if s.NextDue != nil {
		next := newInstallmentView(*s.NextDue, today)
		v.NextDue = &next
	}
	return v
}

func newEnrollmentLedgerView(e core.EnrollmentLedger, today core.Date) enrollmentLedgerView {
	v := enrollmentLedgerView{
		EnrollmentID: e.EnrollmentID,
		Configured:   e.Configured,
		StatusLine:   e.StatusLine(),
	}
	if e.Summary != nil {
		s := newSummaryView(*e.Summary, today)
		v.Summary = &s
	}
	return v
}

func newTotalsView(t core.PortfolioTotals) totalsView {
	v := totalsView{
		ByCurrency:              make([]currencyTotalsView, 0, len(t.ByCurrency)),
		LedgerCount:             t.LedgerCount,
		PaidInstallmentCount:    t.PaidInstallmentCount,
		PendingInstallmentCount: t.PendingInstallmentCount,
		TotalInstallmentCount:   t.TotalInstallmentCount,
		OverdueInstallmentCount: t.OverdueInstallmentCount,
		PaidThisMonthCount:      t.PaidThisMonthCount,
	}
	for _, ct := range t.ByCurrency {
		v.ByCurrency = append(v.ByCurrency, currencyTotalsView{
			Currency:         string(ct.Currency),
			Symbol:           ct.Currency.Symbol(),
			LedgerCount:      ct.LedgerCount,
			TotalRevenue:     ct.TotalRevenue.String(),
			TotalReceived:    ct.TotalReceived.String(),
			TotalOutstanding: ct.TotalOutstanding.String(),
			OutstandingLabel: ct.TotalOutstanding.Display(),
		})
	}
	return v
}
