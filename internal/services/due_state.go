// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for installment due-state
// classification. Each installment status has its own strategy deciding
// whether the installment is settled, upcoming, due today or overdue.

package services

import (
	"fmt"
	"sort"

	"mentorledger/internal/core"
)

// DueStatus classifies an installment against a calendar day.
type DueStatus string

const (
	DuePaid     DueStatus = "paid"
	DueUpcoming DueStatus = "upcoming"
	DueToday    DueStatus = "due_today"
	DueOverdue  DueStatus = "overdue"
)

// DueStateChecker is the strategy interface for classifying an installment.
type DueStateChecker interface {
	State(inst core.Installment, today core.Date) DueStatus
}

// PaidChecker implements DueStateChecker for settled installments.
type PaidChecker struct{}

// State is always DuePaid, whatever the due date.
func (PaidChecker) State(core.Installment, core.Date) DueStatus {
	return DuePaid
}

// PendingChecker implements DueStateChecker for installments still owed.
type PendingChecker struct{}

// State compares the due date with today.
func (PendingChecker) State(inst core.Installment, today core.Date) DueStatus {
	due := inst.DueDate.String()
	day := today.String()
	switch {
	case due < day:
		return DueOverdue
	case due == day:
		return DueToday
	default:
		return DueUpcoming
	}
}

// dueStateStrategies maps installment statuses to their checkers.
var dueStateStrategies = map[core.InstallmentStatus]DueStateChecker{
	core.StatusPaid:    PaidChecker{},
	core.StatusPending: PendingChecker{},
}

// GetDueStateChecker returns the checker for status, or an error for an
// unsupported status.
func GetDueStateChecker(status core.InstallmentStatus) (DueStateChecker, error) {
	checker, ok := dueStateStrategies[status]
	if !ok {
		return nil, fmt.Errorf("unknown installment status: %s", status)
	}
	return checker, nil
}

// DueState classifies inst on today. Unknown statuses are treated as pending.
func DueState(inst core.Installment, today core.Date) DueStatus {
	checker, err := GetDueStateChecker(inst.Status)
	if err != nil {
		checker = PendingChecker{}
	}
	return checker.State(inst, today)
}

// IsOverdue reports whether inst is pending and past its due date.
func IsOverdue(inst core.Installment, today core.Date) bool {
	return DueState(inst, today) == DueOverdue
}

// NextDue returns the earliest installment that is not paid, or nil when
// everything is settled. Ties on due date resolve by sequence.
func NextDue(installments []core.Installment, today core.Date) *core.Installment {
	var open []core.Installment
	for _, inst := range installments {
		if DueState(inst, today) != DuePaid {
			open = append(open, inst)
		}
	}
	if len(open) == 0 {
		return nil
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].DueDate.Equal(open[j].DueDate.Time) {
			return open[i].Sequence < open[j].Sequence
		}
		return open[i].DueDate.Before(open[j].DueDate.Time)
	})
	next := open[0]
	return &next
}
