package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mentorledger/internal/amqp"
	"mentorledger/internal/core"
	"mentorledger/internal/repo/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, e *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *e)
	return nil
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	svc   *LedgerService
	store *memory.Store
	pub   *recordingPublisher
	now   time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewWithEnrollments(core.Enrollment{ID: "enr-1", MenteeName: "Ana", ProgramName: "Go", Active: true}),
		pub:   &recordingPublisher{},
		now:   time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
	}
	n := 0
	base := []Option{
		WithClock(func() time.Time { return f.now }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%03d", n) }),
	}
	f.svc = NewLedgerService(f.store, f.store, f.pub, append(base, opts...)...)
	return f
}

func (f *fixture) create(t *testing.T, minor int64, count int, anchor core.Date) core.LedgerSummary {
	t.Helper()
	s, err := f.svc.CreateLedger(context.Background(), CreateLedgerInput{
		EnrollmentID:     "enr-1",
		Total:            core.NewMoney(minor, ""),
		PaymentMethod:    core.PaymentPix,
		InstallmentCount: count,
		AnchorDate:       anchor,
	})
	if err != nil {
		t.Fatalf("CreateLedger: %v", err)
	}
	return s
}

func TestLedgerService_CreateLedger(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, 60000, 3, core.NewDate(2024, 1, 15))

	if s.Ledger.Currency() != core.DefaultCurrency {
		t.Errorf("currency = %s, want default %s", s.Ledger.Currency(), core.DefaultCurrency)
	}
	if s.Ledger.Version != 1 {
		t.Errorf("version = %d, want 1", s.Ledger.Version)
	}
	if s.Enrollment.MenteeName != "Ana" {
		t.Errorf("enrollment labels not resolved: %+v", s.Enrollment)
	}
	wantDue := []string{"2024-01-15", "2024-02-15", "2024-03-15"}
	if len(s.Installments) != 3 {
		t.Fatalf("installments = %d, want 3", len(s.Installments))
	}
	for i, inst := range s.Installments {
		if inst.Amount.Minor != 20000 || inst.DueDate.String() != wantDue[i] || inst.Status != core.StatusPending {
			t.Errorf("installment %d = %+v", i+1, inst)
		}
	}
	if s.State != core.StateUnfunded || s.PercentPaid != 0 || s.Drift != nil {
		t.Errorf("unexpected aggregates state=%s percent=%v drift=%v", s.State, s.PercentPaid, s.Drift)
	}
	if got := f.pub.types(); len(got) != 1 || got[0] != amqp.EventLedgerCreated {
		t.Errorf("events = %v", got)
	}
}

func TestLedgerService_CreateLedgerValidation(t *testing.T) {
	valid := CreateLedgerInput{
		EnrollmentID:     "enr-1",
		Total:            core.NewMoney(10000, "BRL"),
		PaymentMethod:    core.PaymentCreditCard,
		InstallmentCount: 2,
		AnchorDate:       core.NewDate(2024, 1, 1),
	}

	tests := []struct {
		name   string
		mutate func(*CreateLedgerInput)
		field  string
	}{
		{"unknown enrollment", func(in *CreateLedgerInput) { in.EnrollmentID = "ghost" }, "enrollment"},
		{"empty enrollment", func(in *CreateLedgerInput) { in.EnrollmentID = "  " }, "enrollment"},
		{"zero total", func(in *CreateLedgerInput) { in.Total.Minor = 0 }, "total_amount"},
		{"unknown currency", func(in *CreateLedgerInput) { in.Total.Currency = "XYZ" }, "currency"},
		{"zero installments", func(in *CreateLedgerInput) { in.InstallmentCount = 0 }, "installment_count"},
		{"bad payment method", func(in *CreateLedgerInput) { in.PaymentMethod = "cash" }, "payment_method"},
		{"missing anchor", func(in *CreateLedgerInput) { in.AnchorDate = core.Date{} }, "anchor_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := valid
			tt.mutate(&in)
			_, err := f.svc.CreateLedger(context.Background(), in)
			var ve *core.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("got %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %s, want %s", ve.Field, tt.field)
			}
			all, _ := f.store.ListLedgers(context.Background())
			if len(all) != 0 {
				t.Error("invalid ledger must not be stored")
			}
		})
	}
}

func TestLedgerService_RegenerationResetsPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, 60000, 3, core.NewDate(2024, 1, 15))

	if _, err := f.svc.ToggleInstallmentStatus(ctx, s.Installments[0].ID, 1); err != nil {
		t.Fatal(err)
	}

	count := 5
	updated, err := f.svc.UpdateLedger(ctx, s.Ledger.ID, LedgerPatch{InstallmentCount: &count, ExpectedVersion: 1})
	if err != nil {
		t.Fatalf("UpdateLedger: %v", err)
	}
	if updated.Ledger.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Ledger.Version)
	}
	if len(updated.Installments) != 5 {
		t.Fatalf("installments = %d, want 5", len(updated.Installments))
	}
	for _, inst := range updated.Installments {
		if inst.Status != core.StatusPending || inst.PaymentDate != nil || inst.LedgerVersion != 2 {
			t.Errorf("regenerated installment not reset: %+v", inst)
		}
		if inst.Amount.Minor != 12000 {
			t.Errorf("amount = %d, want 12000", inst.Amount.Minor)
		}
	}

	// the toggle was made against version 1
	_, err = f.svc.ToggleInstallmentStatus(ctx, updated.Installments[0].ID, 1)
	if !errors.Is(err, core.ErrConflict) {
		t.Errorf("stale toggle: got %v, want ErrConflict", err)
	}
	_, err = f.svc.ToggleInstallmentStatus(ctx, s.Installments[0].ID, 0)
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("regenerated-away installment: got %v, want ErrNotFound", err)
	}
}

func TestLedgerService_UpdateWithoutRegeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, 30000, 3, core.NewDate(2024, 1, 15))
	paid, _ := f.svc.ToggleInstallmentStatus(ctx, s.Installments[0].ID, 0)

	notes := "paid via bank app"
	method := core.PaymentBankDeposit
	updated, err := f.svc.UpdateLedger(ctx, s.Ledger.ID, LedgerPatch{Notes: &notes, PaymentMethod: &method})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Ledger.Version != 1 {
		t.Errorf("version bumped without regeneration: %d", updated.Ledger.Version)
	}
	if updated.Installments[0].ID != paid.ID || !updated.Installments[0].IsPaid() {
		t.Error("installments must survive a notes-only update")
	}
	if updated.Ledger.Notes != notes || updated.Ledger.PaymentMethod != method {
		t.Errorf("patch not applied: %+v", updated.Ledger)
	}
}

func TestLedgerService_UpdateLedgerErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, 30000, 3, core.NewDate(2024, 1, 15))

	zero := 0
	if _, err := f.svc.UpdateLedger(ctx, s.Ledger.ID, LedgerPatch{InstallmentCount: &zero}); !errors.Is(err, core.ErrInvalidInstallmentCount) {
		t.Errorf("zero count: got %v", err)
	}
	if _, err := f.svc.UpdateLedger(ctx, s.Ledger.ID, LedgerPatch{ExpectedVersion: 9}); !errors.Is(err, core.ErrConflict) {
		t.Errorf("stale version: got %v", err)
	}
	if _, err := f.svc.UpdateLedger(ctx, "missing", LedgerPatch{}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing ledger: got %v", err)
	}

	usd := core.CurrencyCode("USD")
	eur := core.NewMoney(100, "EUR")
	if _, err := f.svc.UpdateLedger(ctx, s.Ledger.ID, LedgerPatch{Currency: &usd, Total: &eur}); !errors.Is(err, core.ErrCurrencyMismatch) {
		t.Errorf("mismatched currency: got %v", err)
	}
}

func TestLedgerService_CurrencyChangeRequantizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, 10050, 2, core.NewDate(2024, 1, 15))

	jpy := core.CurrencyCode("JPY")
	updated, err := f.svc.UpdateLedger(ctx, s.Ledger.ID, LedgerPatch{Currency: &jpy})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Ledger.Total.Minor != 101 || updated.Ledger.Currency() != jpy {
		t.Errorf("total = %+v, want 101 JPY", updated.Ledger.Total)
	}
	if updated.Ledger.Version != 2 || updated.Installments[0].Amount.Currency != jpy {
		t.Error("currency change must regenerate installments")
	}
}

func TestLedgerService_DeleteLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, 30000, 3, core.NewDate(2024, 1, 15))

	if err := f.svc.DeleteLedger(ctx, s.Ledger.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteLedger(ctx, s.Ledger.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
	if _, err := f.svc.ToggleInstallmentStatus(ctx, s.Installments[0].ID, 0); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("installment of deleted ledger: got %v", err)
	}
	got := f.pub.types()
	if got[len(got)-1] != amqp.EventLedgerDeleted {
		t.Errorf("last event = %s, want %s", got[len(got)-1], amqp.EventLedgerDeleted)
	}
}

func TestLedgerService_ToggleRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, 30000, 3, core.NewDate(2024, 1, 15))
	id := s.Installments[1].ID

	paid, err := f.svc.ToggleInstallmentStatus(ctx, id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !paid.IsPaid() || paid.PaymentDate == nil || !paid.PaymentDate.Equal(f.now) {
		t.Fatalf("toggle to paid = %+v", paid)
	}

	pending, err := f.svc.ToggleInstallmentStatus(ctx, id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if pending.IsPaid() || pending.PaymentDate != nil {
		t.Fatalf("toggle back = %+v, want pending without payment date", pending)
	}

	if _, err := f.svc.ToggleInstallmentStatus(ctx, "nope", 0); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown installment: got %v", err)
	}
}

func TestLedgerService_EditInstallmentDrift(t *testing.T) {
	ctx := context.Background()
	amount := core.NewMoney(25000, "")

	t.Run("warning by default", func(t *testing.T) {
		f := newFixture(t)
		s := f.create(t, 60000, 3, core.NewDate(2024, 1, 15))

		inst, warning, err := f.svc.EditInstallment(ctx, s.Installments[0].ID, InstallmentPatch{Amount: &amount})
		if err != nil {
			t.Fatal(err)
		}
		if inst.Amount.Minor != 25000 {
			t.Errorf("amount = %d, want 25000", inst.Amount.Minor)
		}
		if warning == nil || warning.Drift.Minor != 5000 {
			t.Fatalf("warning = %+v, want drift 5000", warning)
		}

		summary, _ := f.svc.GetLedger(ctx, s.Ledger.ID)
		if summary.Drift == nil || summary.Drift.Drift.Minor != 5000 {
			t.Errorf("summary drift = %+v", summary.Drift)
		}
	})

	t.Run("rejected when enforced", func(t *testing.T) {
		f := newFixture(t, WithBalanceEnforcement(true))
		s := f.create(t, 60000, 3, core.NewDate(2024, 1, 15))

		_, _, err := f.svc.EditInstallment(ctx, s.Installments[0].ID, InstallmentPatch{Amount: &amount})
		if !errors.Is(err, core.ErrUnbalancedInstallments) {
			t.Fatalf("got %v, want ErrUnbalancedInstallments", err)
		}
		stored, _ := f.store.GetInstallment(ctx, s.Installments[0].ID)
		if stored.Amount.Minor != 20000 {
			t.Errorf("rejected edit was stored: %d", stored.Amount.Minor)
		}
	})

	t.Run("balanced edit has no warning", func(t *testing.T) {
		f := newFixture(t)
		s := f.create(t, 60000, 3, core.NewDate(2024, 1, 15))
		due := core.NewDate(2024, 1, 20)

		_, warning, err := f.svc.EditInstallment(ctx, s.Installments[0].ID, InstallmentPatch{DueDate: &due})
		if err != nil || warning != nil {
			t.Fatalf("err=%v warning=%v", err, warning)
		}
	})
}

func TestLedgerService_EditInstallmentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, 60000, 3, core.NewDate(2024, 1, 15))
	id := s.Installments[0].ID

	paid := core.StatusPaid
	pending := core.StatusPending
	when := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	inst, _, err := f.svc.EditInstallment(ctx, id, InstallmentPatch{Status: &paid, PaymentDate: &when})
	if err != nil {
		t.Fatal(err)
	}
	if inst.PaymentDate == nil || !inst.PaymentDate.Equal(when) {
		t.Errorf("explicit payment date lost: %v", inst.PaymentDate)
	}

	inst, _, err = f.svc.EditInstallment(ctx, id, InstallmentPatch{Status: &pending})
	if err != nil {
		t.Fatal(err)
	}
	if inst.PaymentDate != nil {
		t.Error("pending installment must not keep a payment date")
	}

	_, _, err = f.svc.EditInstallment(ctx, id, InstallmentPatch{PaymentDate: &when})
	if !errors.Is(err, core.ErrPaymentDateNotPaid) {
		t.Errorf("payment date on pending: got %v", err)
	}

	inst, _, err = f.svc.EditInstallment(ctx, id, InstallmentPatch{Status: &paid})
	if err != nil {
		t.Fatal(err)
	}
	if inst.PaymentDate == nil || !inst.PaymentDate.Equal(f.now) {
		t.Errorf("paid without date should stamp now, got %v", inst.PaymentDate)
	}

	usd := core.NewMoney(100, "USD")
	if _, _, err := f.svc.EditInstallment(ctx, id, InstallmentPatch{Amount: &usd}); !errors.Is(err, core.ErrCurrencyMismatch) {
		t.Errorf("foreign currency amount: got %v", err)
	}
}

func TestLedgerService_Scenario100Over3(t *testing.T) {
	f := newFixture(t)
	s := f.create(t, 10000, 3, core.NewDate(2024, 1, 31))

	want := []int64{3334, 3333, 3333}
	for i, inst := range s.Installments {
		if inst.Amount.Minor != want[i] {
			t.Errorf("installment %d = %d, want %d", i+1, inst.Amount.Minor, want[i])
		}
	}
	if s.Installments[1].DueDate.String() != "2024-02-29" {
		t.Errorf("Feb due date = %s, want clamped 2024-02-29", s.Installments[1].DueDate)
	}
}

func TestLedgerService_PublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	f.create(t, 10000, 1, core.NewDate(2024, 1, 1))

	svc := NewLedgerService(f.store, f.store, nil)
	if _, err := svc.CreateLedger(context.Background(), CreateLedgerInput{
		EnrollmentID:     "enr-1",
		Total:            core.NewMoney(500, "USD"),
		PaymentMethod:    core.PaymentPayPal,
		InstallmentCount: 1,
		AnchorDate:       core.NewDate(2024, 1, 1),
	}); err != nil {
		t.Fatalf("nil publisher: %v", err)
	}
}

func TestLedgerService_RegisterEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.RegisterEnrollment(ctx, core.Enrollment{ID: " "}); !errors.Is(err, core.ErrEmptyEnrollment) {
		t.Errorf("empty id: got %v", err)
	}
	if err := f.svc.RegisterEnrollment(ctx, core.Enrollment{ID: "enr-2", MenteeName: "Bia"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.GetEnrollment(ctx, "enr-2"); err != nil {
		t.Errorf("enrollment not stored: %v", err)
	}
}
