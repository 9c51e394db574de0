package sheets

import (
	"testing"
	"time"

	"mentorledger/internal/core"
)

func TestRowFromSummary(t *testing.T) {
	brl := func(minor int64) core.Money { return core.Money{Minor: minor, Currency: "BRL"} }
	next := core.Installment{DueDate: core.NewDate(2024, 4, 15)}
	s := core.LedgerSummary{
		Ledger: core.Ledger{
			ID:            "led-1",
			EnrollmentID:  "enr-1",
			Total:         brl(100000),
			PaymentMethod: core.PaymentPix,
			Version:       3,
			UpdatedAt:     time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		},
		Enrollment:   core.Enrollment{ID: "enr-1", MenteeName: "Ana", ProgramName: "Go"},
		Installments: make([]core.Installment, 4),
		PaidCount:    1,
		OverdueCount: 1,
		PaidAmount:   brl(25000),
		NextDue:      &next,
	}

	row := RowFromSummary(s)
	if row.Total != "1000.00" || row.Received != "250.00" || row.Outstanding != "750.00" {
		t.Errorf("unexpected amounts: %+v", row)
	}
	if row.Status != "1/4 installments paid" {
		t.Errorf("Status = %q", row.Status)
	}
	if row.NextDue != "2024-04-15" {
		t.Errorf("NextDue = %q", row.NextDue)
	}
	if row.UpdatedAt != "2024-03-01 10:30:00" {
		t.Errorf("UpdatedAt = %q", row.UpdatedAt)
	}
	if got := len(row.Values()); got != len(Header) {
		t.Fatalf("Values has %d cells, header has %d", got, len(Header))
	}
}

func TestRowFromValuesShortRow(t *testing.T) {
	row := RowFromValues([]string{"led-1", "enr-1", "Ana", "Go", "BRL", "10.00", "0.00", "10.00", "pix", "2", "0", "1"})
	if row.LedgerID != "led-1" || row.InstallmentCount != 2 || row.OverdueCount != 1 {
		t.Fatalf("unexpected row: %+v", row)
	}
	if row.Status != "" || row.Version != 0 {
		t.Fatalf("missing cells should be empty: %+v", row)
	}
}
