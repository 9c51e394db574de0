package sheets

import (
	"context"
	"strconv"

	"mentorledger/internal/core"
)

// Header is the first row of the ledger mirror sheet. Column A holds the
// ledger id and is the row key.
var Header = []string{
	"Ledger ID",
	"Enrollment ID",
	"Mentee",
	"Program",
	"Currency",
	"Total",
	"Received",
	"Outstanding",
	"Payment Method",
	"Installments",
	"Paid",
	"Overdue",
	"Status",
	"Next Due",
	"Version",
	"Updated At",
}

// LedgerRow is one ledger summary flattened for a spreadsheet.
// Amounts are decimal strings in the ledger currency.
type LedgerRow struct {
	LedgerID         string
	EnrollmentID     string
	MenteeName       string
	ProgramName      string
	Currency         string
	Total            string
	Received         string
	Outstanding      string
	PaymentMethod    string
	InstallmentCount int
	PaidCount        int
	OverdueCount     int
	Status           string
	NextDue          string
	Version          int64
	UpdatedAt        string
}

// RowFromSummary flattens a ledger summary.
func RowFromSummary(s core.LedgerSummary) LedgerRow {
	outstanding, err := s.Ledger.Total.Sub(s.PaidAmount)
	if err != nil {
		outstanding = s.Ledger.Total
	}
	row := LedgerRow{
		LedgerID:         s.Ledger.ID,
		EnrollmentID:     s.Ledger.EnrollmentID,
		MenteeName:       s.Enrollment.MenteeName,
		ProgramName:      s.Enrollment.ProgramName,
		Currency:         string(s.Ledger.Currency()),
		Total:            s.Ledger.Total.String(),
		Received:         s.PaidAmount.String(),
		Outstanding:      outstanding.String(),
		PaymentMethod:    string(s.Ledger.PaymentMethod),
		InstallmentCount: len(s.Installments),
		PaidCount:        s.PaidCount,
		OverdueCount:     s.OverdueCount,
		Status:           s.StatusLine(),
		Version:          s.Ledger.Version,
		UpdatedAt:        s.Ledger.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
	if s.NextDue != nil {
		row.NextDue = s.NextDue.DueDate.String()
	}
	return row
}

// Values returns the row in Header order.
func (r LedgerRow) Values() []interface{} {
	return []interface{}{
		r.LedgerID,
		r.EnrollmentID,
		r.MenteeName,
		r.ProgramName,
		r.Currency,
		r.Total,
		r.Received,
		r.Outstanding,
		r.PaymentMethod,
		r.InstallmentCount,
		r.PaidCount,
		r.OverdueCount,
		r.Status,
		r.NextDue,
		r.Version,
		r.UpdatedAt,
	}
}

// RowFromValues is the inverse of Values for cells read back from a sheet.
// Missing trailing cells are left empty.
func RowFromValues(cells []string) LedgerRow {
	get := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	atoi := func(i int) int {
		n, _ := strconv.Atoi(get(i))
		return n
	}
	version, _ := strconv.ParseInt(get(14), 10, 64)
	return LedgerRow{
		LedgerID:         get(0),
		EnrollmentID:     get(1),
		MenteeName:       get(2),
		ProgramName:      get(3),
		Currency:         get(4),
		Total:            get(5),
		Received:         get(6),
		Outstanding:      get(7),
		PaymentMethod:    get(8),
		InstallmentCount: atoi(9),
		PaidCount:        atoi(10),
		OverdueCount:     atoi(11),
		Status:           get(12),
		NextDue:          get(13),
		Version:          version,
		UpdatedAt:        get(15),
	}
}

// Ports for outbound adapters.
type (
	// LedgerRowWriter mirrors ledger summaries, one row per ledger.
	LedgerRowWriter interface {
		// UpsertLedgerRow replaces the row keyed by row.LedgerID or appends it.
		UpsertLedgerRow(ctx context.Context, row LedgerRow) error
		// DeleteLedgerRow removes the row; a missing row is not an error.
		DeleteLedgerRow(ctx context.Context, ledgerID string) error
	}

	// LedgerRowLister reads the mirrored rows back.
	LedgerRowLister interface {
		ListLedgerRows(ctx context.Context) ([]LedgerRow, error)
	}

	// LedgerMirror is implemented by every adapter in this package tree.
	LedgerMirror interface {
		LedgerRowWriter
		LedgerRowLister
	}
)
