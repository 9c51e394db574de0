// Package export renders ledger portfolios as spreadsheet files.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"mentorledger/internal/core"
	"mentorledger/internal/sheets"
)

const (
	ledgersSheet      = "Ledgers"
	installmentsSheet = "Installments"
	totalsSheet       = "Totals"

	// ContentType is the MIME type of WritePortfolioXLSX output.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	installmentHeader = []string{"Ledger ID", "Mentee", "Sequence", "Due Date", "Amount", "Currency", "Status", "Payment Date"}
	totalsHeader      = []string{"Currency", "Ledgers", "Total Revenue", "Total Received", "Total Outstanding"}
)

// WritePortfolioXLSX writes one workbook with a row per ledger, a row per
// installment and the per-currency totals.
func WritePortfolioXLSX(w io.Writer, summaries []core.LedgerSummary, totals core.PortfolioTotals) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ledgersSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{installmentsSheet, totalsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	if err := writeRow(f, ledgersSheet, 1, stringsToCells(sheets.Header)); err != nil {
		return err
	}
	if err := writeRow(f, installmentsSheet, 1, stringsToCells(installmentHeader)); err != nil {
		return err
	}
	if err := writeRow(f, totalsSheet, 1, stringsToCells(totalsHeader)); err != nil {
		return err
	}

	instRow := 2
	for i, s := range summaries {
		if err := writeRow(f, ledgersSheet, i+2, sheets.RowFromSummary(s).Values()); err != nil {
			return err
		}
		for _, inst := range s.Installments {
			payment := ""
			if inst.PaymentDate != nil {
				payment = core.DateOf(*inst.PaymentDate).String()
			}
			cells := []interface{}{
				s.Ledger.ID,
				s.Enrollment.MenteeName,
				inst.Sequence,
				inst.DueDate.String(),
				inst.Amount.Float(),
				string(inst.Amount.Currency),
				string(inst.Status),
				payment,
			}
			if err := writeRow(f, installmentsSheet, instRow, cells); err != nil {
				return err
			}
			instRow++
		}
	}

	for i, ct := range totals.ByCurrency {
		cells := []interface{}{
			string(ct.Currency),
			ct.LedgerCount,
			ct.TotalRevenue.Float(),
			ct.TotalReceived.Float(),
			ct.TotalOutstanding.Float(),
		}
		if err := writeRow(f, totalsSheet, i+2, cells); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
	}
	return nil
}

func stringsToCells(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
