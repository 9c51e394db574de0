package core

// GenerateInstallments splits total into count monthly installments.
//
// Every installment receives floor(total/count) minor units and the
// remainder is added to installment 1, so the amounts always sum to total
// exactly. Installment k is due anchor + (k-1) months, each offset computed
// from the anchor so a clamped month never shifts the following ones
// (Jan 31, Feb 29, Mar 31).
func GenerateInstallments(total Money, count int, anchor Date) ([]InstallmentDraft, error) {
	if count < 1 {
		return nil, NewValidationError("installment_count", ErrInvalidInstallmentCount)
	}
	if total.Minor < 0 {
		return nil, NewValidationError("total_amount", ErrInvalidAmount)
	}
	if err := anchor.Validate(); err != nil {
		return nil, NewValidationError("anchor_date", err)
	}

	share := total.Minor / int64(count)
	remainder := total.Minor - share*int64(count)

	drafts := make([]InstallmentDraft, count)
	for k := 1; k <= count; k++ {
		amount := share
		if k == 1 {
			amount += remainder
		}
		drafts[k-1] = InstallmentDraft{
			Sequence: k,
			Amount:   Money{Minor: amount, Currency: total.Currency},
			DueDate:  anchor.AddMonths(k - 1),
		}
	}
	return drafts, nil
}

// SumInstallments totals installment amounts in currency.
// Installments in another currency are skipped.
func SumInstallments(installments []Installment, currency CurrencyCode) Money {
	sum := Money{Currency: currency}
	for _, inst := range installments {
		if next, err := sum.Add(inst.Amount); err == nil {
			sum = next
		}
	}
	return sum
}

// CheckBalance compares the installment sum with the ledger total and returns
// a warning when they differ.
func CheckBalance(l Ledger, installments []Installment) *ConsistencyWarning {
	sum := SumInstallments(installments, l.Currency())
	drift, err := sum.Sub(l.Total)
	if err != nil || drift.IsZero() {
		return nil
	}
	return &ConsistencyWarning{
		LedgerID:       l.ID,
		Total:          l.Total,
		InstallmentSum: sum,
		Drift:          drift,
	}
}
