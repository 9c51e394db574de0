package storage

import (
	"database/sql"
	"fmt"
	"time"

	"mentorledger/internal/core"
)

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		// rows written by hand or older tooling
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullTimestamp(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}

func parseNullTimestamp(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTimestamp(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func ledgerToRow(l core.Ledger) LedgerRow {
	return LedgerRow{
		ID:               l.ID,
		EnrollmentID:     l.EnrollmentID,
		TotalMinor:       l.Total.Minor,
		Currency:         string(l.Currency()),
		PaymentMethod:    string(l.PaymentMethod),
		InstallmentCount: int64(l.InstallmentCount),
		AnchorDate:       l.AnchorDate.String(),
		PaymentDate:      nullTimestamp(l.PaymentDate),
		Notes:            l.Notes,
		Version:          l.Version,
		CreatedAt:        formatTimestamp(l.CreatedAt),
		UpdatedAt:        formatTimestamp(l.UpdatedAt),
	}
}

func rowToLedger(row LedgerRow) (core.Ledger, error) {
	anchor, err := core.ParseDate(row.AnchorDate)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("ledger %s: anchor date %q: %w", row.ID, row.AnchorDate, err)
	}
	paymentDate, err := parseNullTimestamp(row.PaymentDate)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("ledger %s: payment date: %w", row.ID, err)
	}
	createdAt, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("ledger %s: created_at: %w", row.ID, err)
	}
	updatedAt, err := parseTimestamp(row.UpdatedAt)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("ledger %s: updated_at: %w", row.ID, err)
	}
	return core.Ledger{
		ID:               row.ID,
		EnrollmentID:     row.EnrollmentID,
		Total:            core.NewMoney(row.TotalMinor, core.CurrencyCode(row.Currency)),
		PaymentMethod:    core.PaymentMethod(row.PaymentMethod),
		InstallmentCount: int(row.InstallmentCount),
		AnchorDate:       anchor,
		PaymentDate:      paymentDate,
		Notes:            row.Notes,
		Version:          row.Version,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}, nil
}

func rowsToLedgers(rows []LedgerRow) ([]core.Ledger, error) {
	out := make([]core.Ledger, 0, len(rows))
	for _, row := range rows {
		l, err := rowToLedger(row)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func installmentToRow(i core.Installment) InstallmentRow {
	return InstallmentRow{
		ID:            i.ID,
		LedgerID:      i.LedgerID,
		LedgerVersion: i.LedgerVersion,
		Sequence:      int64(i.Sequence),
		AmountMinor:   i.Amount.Minor,
		Currency:      string(i.Amount.Currency),
		DueDate:       i.DueDate.String(),
		Status:        string(i.Status),
		PaymentDate:   nullTimestamp(i.PaymentDate),
		CreatedAt:     formatTimestamp(i.CreatedAt),
		UpdatedAt:     formatTimestamp(i.UpdatedAt),
	}
}

func rowToInstallment(row InstallmentRow) (core.Installment, error) {
	due, err := core.ParseDate(row.DueDate)
	if err != nil {
		return core.Installment{}, fmt.Errorf("installment %s: due date %q: %w", row.ID, row.DueDate, err)
	}
	paymentDate, err := parseNullTimestamp(row.PaymentDate)
	if err != nil {
		return core.Installment{}, fmt.Errorf("installment %s: payment date: %w", row.ID, err)
	}
	createdAt, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.Installment{}, fmt.Errorf("installment %s: created_at: %w", row.ID, err)
	}
	updatedAt, err := parseTimestamp(row.UpdatedAt)
	if err != nil {
		return core.Installment{}, fmt.Errorf("installment %s: updated_at: %w", row.ID, err)
	}
	return core.Installment{
		ID:            row.ID,
		LedgerID:      row.LedgerID,
		LedgerVersion: row.LedgerVersion,
		Sequence:      int(row.Sequence),
		Amount:        core.NewMoney(row.AmountMinor, core.CurrencyCode(row.Currency)),
		DueDate:       due,
		Status:        core.InstallmentStatus(row.Status),
		PaymentDate:   paymentDate,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}

func rowsToInstallments(rows []InstallmentRow) ([]core.Installment, error) {
	out := make([]core.Installment, 0, len(rows))
	for _, row := range rows {
		inst, err := rowToInstallment(row)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func rowToEnrollment(row EnrollmentRow) core.Enrollment {
	return core.Enrollment{
		ID:          row.ID,
		MenteeName:  row.MenteeName,
		ProgramName: row.ProgramName,
		Active:      row.Active != 0,
	}
}
