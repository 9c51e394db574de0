package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mentorledger/internal/core"
)

func ledgerWith(id string, created time.Time, n int) (core.Ledger, []core.Installment) {
	l := core.Ledger{
		ID:               id,
		EnrollmentID:     "enr-1",
		Total:            core.NewMoney(int64(n)*1000, "BRL"),
		PaymentMethod:    core.PaymentPix,
		InstallmentCount: n,
		AnchorDate:       core.NewDate(2024, 1, 15),
		Version:          1,
		CreatedAt:        created,
	}
	insts := make([]core.Installment, n)
	for i := range insts {
		insts[n-1-i] = core.Installment{
			ID:       id + "-" + string(rune('a'+i)),
			LedgerID: id,
			Sequence: i + 1,
			Amount:   core.NewMoney(1000, "BRL"),
			DueDate:  l.AnchorDate.AddMonths(i),
			Status:   core.StatusPending,
		}
	}
	return l, insts
}

func TestStore_ListInstallmentsBySequence(t *testing.T) {
	s := New()
	ctx := context.Background()
	l, insts := ledgerWith("l1", time.Now(), 4)
	if err := s.CreateLedger(ctx, l, insts); err != nil {
		t.Fatal(err)
	}
	got, err := s.ListInstallments(ctx, "l1")
	if err != nil {
		t.Fatal(err)
	}
	for i, inst := range got {
		if inst.Sequence != i+1 {
			t.Fatalf("position %d has sequence %d", i, inst.Sequence)
		}
	}
}

func TestStore_EnrollmentOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		l, insts := ledgerWith(id, base.Add(time.Duration(i)*time.Hour), 1)
		_ = s.CreateLedger(ctx, l, insts)
	}

	all, _ := s.ListLedgers(ctx)
	if all[0].ID != "first" || all[2].ID != "third" {
		t.Errorf("ListLedgers order = %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}
	newest, _ := s.LedgersForEnrollment(ctx, "enr-1")
	if newest[0].ID != "third" {
		t.Errorf("LedgersForEnrollment first = %s, want third", newest[0].ID)
	}
	none, _ := s.LedgersForEnrollment(ctx, "other")
	if len(none) != 0 {
		t.Errorf("unexpected ledgers for unknown enrollment: %d", len(none))
	}
}

func TestStore_UpdateLedger(t *testing.T) {
	s := New()
	ctx := context.Background()
	l, insts := ledgerWith("l1", time.Now(), 3)
	_ = s.CreateLedger(ctx, l, insts)

	tests := []struct {
		name     string
		expected int64
		wantErr  error
	}{
		{"stale version", 7, core.ErrConflict},
		{"version check skipped", 0, nil},
		{"matching version", 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.UpdateLedger(ctx, "l1", tt.expected, func(l *core.Ledger) ([]core.Installment, error) {
				l.Notes = tt.name
				return nil, nil
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	regen := []core.Installment{{ID: "n1", LedgerID: "l1", Sequence: 1, Status: core.StatusPending}}
	if _, err := s.UpdateLedger(ctx, "l1", 0, func(l *core.Ledger) ([]core.Installment, error) {
		l.Version++
		return regen, nil
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetInstallment(ctx, insts[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("old installment survived regeneration: %v", err)
	}
	got, _ := s.ListInstallments(ctx, "l1")
	if len(got) != 1 || got[0].ID != "n1" {
		t.Errorf("unexpected installments after regeneration: %+v", got)
	}

	if _, err := s.UpdateLedger(ctx, "missing", 0, nil); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing ledger: got %v", err)
	}
}

func TestStore_UpdateInstallmentConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	l, insts := ledgerWith("l1", time.Now(), 1)
	_ = s.CreateLedger(ctx, l, insts)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.UpdateInstallment(ctx, insts[0].ID, 1, func(_ core.Ledger, inst *core.Installment, _ []core.Installment) error {
				inst.Toggle(time.Now())
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.GetInstallment(ctx, insts[0].ID)
	if got.IsPaid() {
		t.Errorf("an even number of toggles should leave the installment pending")
	}
}

func TestStore_DeleteLedger(t *testing.T) {
	s := New()
	ctx := context.Background()
	l, insts := ledgerWith("l1", time.Now(), 2)
	_ = s.CreateLedger(ctx, l, insts)

	if err := s.DeleteLedger(ctx, "l1"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteLedger(ctx, "l1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
	ledgers, all, _ := s.Snapshot(ctx)
	if len(ledgers) != 0 || len(all) != 0 {
		t.Errorf("left behind: ledgers %v installments %v", ledgers, all)
	}
}

func TestStore_Enrollments(t *testing.T) {
	s := NewWithEnrollments(
		core.Enrollment{ID: "b", MenteeName: "Bruno"},
		core.Enrollment{ID: "a", MenteeName: "Ana"},
	)
	ctx := context.Background()
	list, _ := s.ListEnrollments(ctx)
	if len(list) != 2 || list[0].ID != "a" {
		t.Fatalf("unexpected enrollments %+v", list)
	}
	if _, err := s.GetEnrollment(ctx, "c"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
