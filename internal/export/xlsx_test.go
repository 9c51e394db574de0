package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"mentorledger/internal/core"
)

func TestWritePortfolioXLSX(t *testing.T) {
	paidAt := time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC)
	brl := func(minor int64) core.Money { return core.Money{Minor: minor, Currency: "BRL"} }
	summaries := []core.LedgerSummary{
		{
			Ledger:     core.Ledger{ID: "led-1", EnrollmentID: "enr-1", Total: brl(20000), PaymentMethod: core.PaymentPix, Version: 1},
			Enrollment: core.Enrollment{ID: "enr-1", MenteeName: "Ana"},
			Installments: []core.Installment{
				{ID: "i1", LedgerID: "led-1", Sequence: 1, Amount: brl(10000), DueDate: core.NewDate(2024, 1, 10), Status: core.StatusPaid, PaymentDate: &paidAt},
				{ID: "i2", LedgerID: "led-1", Sequence: 2, Amount: brl(10000), DueDate: core.NewDate(2024, 2, 10), Status: core.StatusPending},
			},
			PaidCount:  1,
			PaidAmount: brl(10000),
		},
		{
			Ledger:     core.Ledger{ID: "led-2", EnrollmentID: "enr-2", Total: core.Money{Minor: 5000, Currency: "USD"}},
			Enrollment: core.Enrollment{ID: "enr-2", MenteeName: "Bruno"},
		},
	}
	totals := core.ComputePortfolioTotals(summaries, paidAt)

	var buf bytes.Buffer
	if err := WritePortfolioXLSX(&buf, summaries, totals); err != nil {
		t.Fatalf("WritePortfolioXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 3 || got[0] != ledgersSheet {
		t.Fatalf("sheets = %v", got)
	}

	ledgers, err := f.GetRows(ledgersSheet)
	if err != nil {
		t.Fatalf("read ledgers: %v", err)
	}
	if len(ledgers) != 3 || ledgers[0][0] != "Ledger ID" || ledgers[1][0] != "led-1" || ledgers[2][2] != "Bruno" {
		t.Fatalf("unexpected ledger rows %v", ledgers)
	}

	installments, err := f.GetRows(installmentsSheet)
	if err != nil {
		t.Fatalf("read installments: %v", err)
	}
	if len(installments) != 3 {
		t.Fatalf("installment rows = %d, want header + 2", len(installments))
	}
	if installments[1][3] != "2024-01-10" || installments[1][6] != "paid" || installments[1][7] != "2024-01-12" {
		t.Errorf("unexpected first installment row %v", installments[1])
	}

	totalRows, err := f.GetRows(totalsSheet)
	if err != nil {
		t.Fatalf("read totals: %v", err)
	}
	if len(totalRows) != 3 || totalRows[1][0] != "BRL" || totalRows[2][0] != "USD" {
		t.Fatalf("unexpected totals rows %v", totalRows)
	}
}
