package services

import (
	"testing"

	"mentorledger/internal/core"
)

func TestDueState(t *testing.T) {
	today := core.NewDate(2024, 3, 15)

	tests := []struct {
		name   string
		status core.InstallmentStatus
		due    core.Date
		want   DueStatus
	}{
		{"paid before due date", core.StatusPaid, core.NewDate(2024, 4, 1), DuePaid},
		{"paid long after due date", core.StatusPaid, core.NewDate(2023, 1, 1), DuePaid},
		{"pending in the future", core.StatusPending, core.NewDate(2024, 3, 16), DueUpcoming},
		{"pending due today", core.StatusPending, today, DueToday},
		{"pending yesterday", core.StatusPending, core.NewDate(2024, 3, 14), DueOverdue},
		{"unknown status treated as pending", core.InstallmentStatus("waived"), core.NewDate(2024, 1, 1), DueOverdue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := core.Installment{Status: tt.status, DueDate: tt.due}
			if got := DueState(inst, today); got != tt.want {
				t.Errorf("DueState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetDueStateChecker(t *testing.T) {
	for _, status := range []core.InstallmentStatus{core.StatusPaid, core.StatusPending} {
		if _, err := GetDueStateChecker(status); err != nil {
			t.Errorf("GetDueStateChecker(%s) error = %v", status, err)
		}
	}
	if _, err := GetDueStateChecker("refunded"); err == nil {
		t.Error("GetDueStateChecker should reject an unknown status")
	}
}

type alwaysOverdue struct{}

func (alwaysOverdue) State(core.Installment, core.Date) DueStatus { return DueOverdue }

func TestCustomDueStateChecker(t *testing.T) {
	const disputed core.InstallmentStatus = "disputed"
	dueStateStrategies[disputed] = alwaysOverdue{}
	defer delete(dueStateStrategies, disputed)

	inst := core.Installment{Status: disputed, DueDate: core.NewDate(2030, 1, 1)}
	if got := DueState(inst, core.NewDate(2024, 1, 1)); got != DueOverdue {
		t.Errorf("custom checker not used, got %v", got)
	}
}

func TestNextDue(t *testing.T) {
	today := core.NewDate(2024, 3, 15)
	installments := []core.Installment{
		{ID: "a", Sequence: 1, DueDate: core.NewDate(2024, 1, 15), Status: core.StatusPaid},
		{ID: "c", Sequence: 3, DueDate: core.NewDate(2024, 3, 15), Status: core.StatusPending},
		{ID: "b", Sequence: 2, DueDate: core.NewDate(2024, 2, 15), Status: core.StatusPending},
	}

	next := NextDue(installments, today)
	if next == nil || next.ID != "b" {
		t.Fatalf("NextDue = %+v, want installment b", next)
	}

	installments[1].Status = core.StatusPaid
	installments[2].Status = core.StatusPaid
	if next := NextDue(installments, today); next != nil {
		t.Errorf("NextDue on a settled ledger = %+v, want nil", next)
	}
	if next := NextDue(nil, today); next != nil {
		t.Errorf("NextDue(nil) = %+v, want nil", next)
	}
}
