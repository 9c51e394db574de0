package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"mentorledger/internal/amqp"
	"mentorledger/internal/core"
	"mentorledger/internal/repo"
)

// EventPublisher sends ledger change notifications. *amqp.Client implements it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

// LedgerService orchestrates ledger operations across the store and AMQP.
type LedgerService struct {
	store           repo.LedgerStore
	directory       repo.EnrollmentDirectory
	publisher       EventPublisher
	now             func() time.Time
	newID           func() string
	enforceBalance  bool
	defaultCurrency core.CurrencyCode
}

type Option func(*LedgerService)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *LedgerService) { s.newID = newID }
}

// WithBalanceEnforcement rejects installment edits that make the
// installments drift from the ledger total.
func WithBalanceEnforcement(enforce bool) Option {
	return func(s *LedgerService) { s.enforceBalance = enforce }
}

// WithDefaultCurrency sets the currency used when a ledger names none.
func WithDefaultCurrency(code core.CurrencyCode) Option {
	return func(s *LedgerService) { s.defaultCurrency = code }
}

// NewLedgerService wires the service. publisher may be nil, in which case
// events are skipped.
func NewLedgerService(store repo.LedgerStore, directory repo.EnrollmentDirectory, publisher EventPublisher, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:           store,
		directory:       directory,
		publisher:       publisher,
		now:             time.Now,
		newID:           uuid.NewString,
		defaultCurrency: core.DefaultCurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type (
	// CreateLedgerInput carries the fields of a new ledger. An empty
	// Total.Currency selects the service default.
	CreateLedgerInput struct {
		EnrollmentID     string
		Total            core.Money
		PaymentMethod    core.PaymentMethod
		InstallmentCount int
		AnchorDate       core.Date
		PaymentDate      *time.Time
		Notes            string
	}

	// LedgerPatch lists the fields to change; nil leaves a field untouched.
	// Changing Total, Currency, InstallmentCount or AnchorDate regenerates
	// every installment as pending and bumps the version.
	LedgerPatch struct {
		Total            *core.Money
		Currency         *core.CurrencyCode
		PaymentMethod    *core.PaymentMethod
		InstallmentCount *int
		AnchorDate       *core.Date
		PaymentDate      *time.Time
		ClearPaymentDate bool
		Notes            *string
		ExpectedVersion  int64
	}

	// InstallmentPatch edits a single installment without touching its siblings.
	InstallmentPatch struct {
		Amount                *core.Money
		DueDate               *core.Date
		Status                *core.InstallmentStatus
		PaymentDate           *time.Time
		ClearPaymentDate      bool
		ExpectedLedgerVersion int64
	}
)

// CreateLedger validates the input, generates the installment schedule and
// stores both atomically.
func (s *LedgerService) CreateLedger(ctx context.Context, in CreateLedgerInput) (core.LedgerSummary, error) {
	now := s.now().UTC()

	currency, err := s.currencyOrDefault(in.Total.Currency)
	if err != nil {
		return core.LedgerSummary{}, core.NewValidationError("currency", err)
	}

	l := core.Ledger{
		ID:               s.newID(),
		EnrollmentID:     strings.TrimSpace(in.EnrollmentID),
		Total:            core.NewMoney(in.Total.Minor, currency),
		PaymentMethod:    in.PaymentMethod,
		InstallmentCount: in.InstallmentCount,
		AnchorDate:       in.AnchorDate,
		PaymentDate:      in.PaymentDate,
		Notes:            in.Notes,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := l.Validate(); err != nil {
		return core.LedgerSummary{}, err
	}

	enrollment, err := s.lookupEnrollment(ctx, l.EnrollmentID)
	if err != nil {
		return core.LedgerSummary{}, err
	}

	installments, err := s.schedule(l, now)
	if err != nil {
		return core.LedgerSummary{}, err
	}

	if err := s.store.CreateLedger(ctx, l, installments); err != nil {
		return core.LedgerSummary{}, fmt.Errorf("save ledger: %w", err)
	}

	slog.InfoContext(ctx, "Ledger created",
		"ledger_id", l.ID,
		"enrollment_id", l.EnrollmentID,
		"amount_minor", l.Total.Minor,
		"currency", l.Currency(),
		"installments", len(installments))

	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventLedgerCreated, l.ID, l.EnrollmentID, l.Version))

	return summarize(l, enrollment, installments, s.today()), nil
}

// GetLedger returns one ledger with its aggregates.
func (s *LedgerService) GetLedger(ctx context.Context, id string) (core.LedgerSummary, error) {
	return s.loadSummary(ctx, id)
}

// GetInstallment returns a single installment.
func (s *LedgerService) GetInstallment(ctx context.Context, id string) (core.Installment, error) {
	return s.store.GetInstallment(ctx, id)
}

// UpdateLedger applies patch. See LedgerPatch for when installments are regenerated.
func (s *LedgerService) UpdateLedger(ctx context.Context, id string, patch LedgerPatch) (core.LedgerSummary, error) {
	now := s.now().UTC()
	regenerated := false

	l, err := s.store.UpdateLedger(ctx, id, patch.ExpectedVersion, func(l *core.Ledger) ([]core.Installment, error) {
		before := *l
		if err := s.applyLedgerPatch(l, patch); err != nil {
			return nil, err
		}
		if err := l.Validate(); err != nil {
			return nil, err
		}
		l.UpdatedAt = now

		if !needsRegeneration(before, *l) {
			return nil, nil
		}
		l.Version++
		regenerated = true
		return s.schedule(*l, now)
	})
	if err != nil {
		return core.LedgerSummary{}, err
	}

	slog.InfoContext(ctx, "Ledger updated",
		"ledger_id", l.ID,
		"version", l.Version,
		"regenerated", regenerated)

	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventLedgerUpdated, l.ID, l.EnrollmentID, l.Version))

	return s.loadSummary(ctx, l.ID)
}

func (s *LedgerService) applyLedgerPatch(l *core.Ledger, patch LedgerPatch) error {
	currency := l.Currency()
	if patch.Currency != nil {
		code, err := s.currencyOrDefault(*patch.Currency)
		if err != nil {
			return core.NewValidationError("currency", err)
		}
		currency = code
	}

	switch {
	case patch.Total != nil:
		total := *patch.Total
		if total.Currency == "" {
			total.Currency = currency
		}
		if total.Currency != currency {
			return core.NewValidationError("currency", core.ErrCurrencyMismatch)
		}
		l.Total = total
	case currency != l.Currency():
		// re-quantize the existing total for the new minor unit
		converted, err := core.FromDecimal(l.Total.Decimal(), currency)
		if err != nil {
			return core.NewValidationError("total_amount", err)
		}
		l.Total = converted
	}

	if patch.PaymentMethod != nil {
		l.PaymentMethod = *patch.PaymentMethod
	}
	if patch.InstallmentCount != nil {
		l.InstallmentCount = *patch.InstallmentCount
	}
	if patch.AnchorDate != nil {
		l.AnchorDate = *patch.AnchorDate
	}
	if patch.ClearPaymentDate {
		l.PaymentDate = nil
	} else if patch.PaymentDate != nil {
		t := patch.PaymentDate.UTC()
		l.PaymentDate = &t
	}
	if patch.Notes != nil {
		l.Notes = *patch.Notes
	}
	return nil
}

func needsRegeneration(before, after core.Ledger) bool {
	return before.Total != after.Total ||
		before.InstallmentCount != after.InstallmentCount ||
		!before.AnchorDate.Equal(after.AnchorDate.Time)
}

// DeleteLedger removes a ledger and its installments.
func (s *LedgerService) DeleteLedger(ctx context.Context, id string) error {
	l, err := s.store.GetLedger(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLedger(ctx, id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Ledger deleted", "ledger_id", id, "enrollment_id", l.EnrollmentID)

	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventLedgerDeleted, l.ID, l.EnrollmentID, l.Version))
	return nil
}

// ToggleInstallmentStatus flips pending and paid. Marking paid stamps the
// current time as payment date; reverting clears it. A positive
// expectedLedgerVersion guards against toggling a regenerated schedule.
func (s *LedgerService) ToggleInstallmentStatus(ctx context.Context, id string, expectedLedgerVersion int64) (core.Installment, error) {
	now := s.now().UTC()
	var ledger core.Ledger

	inst, err := s.store.UpdateInstallment(ctx, id, expectedLedgerVersion, func(l core.Ledger, inst *core.Installment, _ []core.Installment) error {
		ledger = l
		inst.Toggle(now)
		inst.UpdatedAt = now
		return nil
	})
	if err != nil {
		return core.Installment{}, err
	}

	slog.InfoContext(ctx, "Installment status toggled",
		"installment_id", inst.ID,
		"ledger_id", inst.LedgerID,
		"status", inst.Status)

	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventInstallmentUpdated, ledger.ID, ledger.EnrollmentID, ledger.Version).WithInstallment(inst.ID))
	return inst, nil
}

// EditInstallment changes one installment. When the edit leaves the
// installments summing to something other than the ledger total a
// ConsistencyWarning is returned with the saved installment, unless balance
// enforcement is on, in which case the edit is rejected.
func (s *LedgerService) EditInstallment(ctx context.Context, id string, patch InstallmentPatch) (core.Installment, *core.ConsistencyWarning, error) {
	now := s.now().UTC()
	var (
		ledger  core.Ledger
		warning *core.ConsistencyWarning
	)

	inst, err := s.store.UpdateInstallment(ctx, id, patch.ExpectedLedgerVersion, func(l core.Ledger, inst *core.Installment, siblings []core.Installment) error {
		ledger = l
		if err := applyInstallmentPatch(l, inst, patch, now); err != nil {
			return err
		}
		inst.UpdatedAt = now

		after := make([]core.Installment, len(siblings))
		for i, sib := range siblings {
			if sib.ID == inst.ID {
				sib = *inst
			}
			after[i] = sib
		}
		warning = core.CheckBalance(l, after)
		if warning != nil && s.enforceBalance {
			return core.NewValidationError("amount", fmt.Errorf("%w: %s", core.ErrUnbalancedInstallments, warning))
		}
		return nil
	})
	if err != nil {
		return core.Installment{}, nil, err
	}

	if warning != nil {
		slog.WarnContext(ctx, "Installment edit left ledger unbalanced",
			"installment_id", inst.ID,
			"ledger_id", ledger.ID,
			"total_minor", warning.Total.Minor,
			"installment_sum_minor", warning.InstallmentSum.Minor,
			"drift_minor", warning.Drift.Minor)
	} else {
		slog.InfoContext(ctx, "Installment edited", "installment_id", inst.ID, "ledger_id", ledger.ID)
	}

	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventInstallmentUpdated, ledger.ID, ledger.EnrollmentID, ledger.Version).WithInstallment(inst.ID))
	return inst, warning, nil
}

func applyInstallmentPatch(l core.Ledger, inst *core.Installment, patch InstallmentPatch, now time.Time) error {
	if patch.Amount != nil {
		amount := *patch.Amount
		if amount.Currency == "" {
			amount.Currency = l.Currency()
		}
		if amount.Currency != l.Currency() {
			return core.NewValidationError("amount", core.ErrCurrencyMismatch)
		}
		inst.Amount = amount
	}
	if patch.DueDate != nil {
		inst.DueDate = *patch.DueDate
	}
	if patch.Status != nil {
		switch *patch.Status {
		case core.StatusPaid:
			if patch.PaymentDate != nil {
				t := patch.PaymentDate.UTC()
				inst.PaymentDate = &t
			}
			inst.MarkPaid(now)
		case core.StatusPending:
			inst.MarkPending()
		default:
			return core.NewValidationError("status", core.ErrInvalidStatus)
		}
	}
	if patch.ClearPaymentDate {
		inst.PaymentDate = nil
		if inst.IsPaid() {
			inst.MarkPaid(now)
		}
	} else if patch.PaymentDate != nil {
		if !inst.IsPaid() {
			return core.NewValidationError("payment_date", core.ErrPaymentDateNotPaid)
		}
		t := patch.PaymentDate.UTC()
		inst.PaymentDate = &t
	}
	return inst.Validate()
}

// lookupEnrollment returns the enrollment, or a ValidationError when the
// directory does not know it. A nil directory accepts any id.
func (s *LedgerService) lookupEnrollment(ctx context.Context, id string) (core.Enrollment, error) {
	if s.directory == nil {
		return core.Enrollment{ID: id}, nil
	}
	e, err := s.directory.GetEnrollment(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.Enrollment{}, core.NewValidationError("enrollment", core.ErrUnknownEnrollment)
	}
	if err != nil {
		return core.Enrollment{}, fmt.Errorf("lookup enrollment: %w", err)
	}
	return e, nil
}

// RegisterEnrollment creates or relabels an enrollment in the directory.
func (s *LedgerService) RegisterEnrollment(ctx context.Context, e core.Enrollment) error {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		return core.NewValidationError("enrollment", core.ErrEmptyEnrollment)
	}
	if s.directory == nil {
		return errors.New("enrollment directory not configured")
	}
	if err := s.directory.UpsertEnrollment(ctx, e); err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	slog.InfoContext(ctx, "Enrollment registered", "enrollment_id", e.ID, "active", e.Active)
	return nil
}

// DefaultCurrency is applied to ledgers created without a currency.
func (s *LedgerService) DefaultCurrency() core.CurrencyCode {
	return s.defaultCurrency
}

func (s *LedgerService) currencyOrDefault(code core.CurrencyCode) (core.CurrencyCode, error) {
	if strings.TrimSpace(string(code)) == "" {
		code = s.defaultCurrency
	}
	return core.NormalizeCurrency(code)
}

// schedule generates the installments of l under its current version.
func (s *LedgerService) schedule(l core.Ledger, now time.Time) ([]core.Installment, error) {
	drafts, err := core.GenerateInstallments(l.Total, l.InstallmentCount, l.AnchorDate)
	if err != nil {
		return nil, err
	}
	installments := make([]core.Installment, len(drafts))
	for i, d := range drafts {
		installments[i] = core.Installment{
			ID:            s.newID(),
			LedgerID:      l.ID,
			LedgerVersion: l.Version,
			Sequence:      d.Sequence,
			Amount:        d.Amount,
			DueDate:       d.DueDate,
			Status:        core.StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	return installments, nil
}

func (s *LedgerService) today() core.Date {
	return core.DateOf(s.now().UTC())
}

func (s *LedgerService) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping ledger event",
			"type", event.Type,
			"ledger_id", event.LedgerID)
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		// the mutation is already committed
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", event.Type,
			"ledger_id", event.LedgerID,
			"error", err)
	}
}
