package core

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

const (
	PaymentCreditCard        PaymentMethod = "credit_card"
	PaymentBankDeposit       PaymentMethod = "bank_deposit"
	PaymentPix               PaymentMethod = "pix"
	PaymentPayPal            PaymentMethod = "paypal"
	PaymentDirectInstallment PaymentMethod = "direct_special_installment"
)

const (
	StatusPending InstallmentStatus = "pending"
	StatusPaid    InstallmentStatus = "paid"
)

type (
	PaymentMethod string

	InstallmentStatus string

	// Date is a calendar day in UTC.
	Date struct {
		time.Time
	}

	// Enrollment associates a mentee with a mentoring program.
	Enrollment struct {
		ID          string
		MenteeName  string
		ProgramName string
		Active      bool
	}

	// Ledger is one payment plan for one enrollment.
	Ledger struct {
		ID               string
		EnrollmentID     string
		Total            Money
		PaymentMethod    PaymentMethod
		InstallmentCount int
		AnchorDate       Date
		PaymentDate      *time.Time
		Notes            string
		Version          int64 // bumped on every installment regeneration
		CreatedAt        time.Time
		UpdatedAt        time.Time
	}

	// Installment is one payable unit of a ledger.
	Installment struct {
		ID            string
		LedgerID      string
		LedgerVersion int64
		Sequence      int
		Amount        Money
		DueDate       Date
		Status        InstallmentStatus
		PaymentDate   *time.Time
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// InstallmentDraft is a generated installment before ids are assigned.
	InstallmentDraft struct {
		Sequence int
		Amount   Money
		DueDate  Date
	}
)

var paymentMethods = []PaymentMethod{
	PaymentCreditCard,
	PaymentBankDeposit,
	PaymentPix,
	PaymentPayPal,
	PaymentDirectInstallment,
}

// PaymentMethods lists the accepted payment method tags.
func PaymentMethods() []PaymentMethod {
	return append([]PaymentMethod(nil), paymentMethods...)
}

func (p PaymentMethod) Valid() bool {
	for _, m := range paymentMethods {
		if p == m {
			return true
		}
	}
	return false
}

// ParsePaymentMethod accepts the tag case-insensitively.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	p := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", ErrInvalidPaymentMethod
	}
	return p, nil
}

func (s InstallmentStatus) Valid() bool {
	return s == StatusPending || s == StatusPaid
}

// ParseStatus accepts "pending" or "paid".
func ParseStatus(s string) (InstallmentStatus, error) {
	st := InstallmentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddMonths moves d by n calendar months. When the day does not exist in the
// target month it is clamped to that month's last day (Jan 31 + 1 = Feb 28/29).
func (d Date) AddMonths(n int) Date {
	y, m, day := d.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	lastDay := time.Date(target.Year(), target.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return NewDate(target.Year(), int(target.Month()), day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Currency returns the ledger currency.
func (l Ledger) Currency() CurrencyCode {
	return l.Total.Currency
}

// Validate checks the fields required to create or regenerate a ledger.
func (l Ledger) Validate() error {
	if strings.TrimSpace(l.EnrollmentID) == "" {
		return NewValidationError("enrollment", ErrEmptyEnrollment)
	}
	if _, ok := LookupCurrency(l.Total.Currency); !ok {
		return NewValidationError("currency", ErrUnknownCurrency)
	}
	if l.Total.Minor <= 0 {
		return NewValidationError("total_amount", ErrInvalidAmount)
	}
	if !l.PaymentMethod.Valid() {
		return NewValidationError("payment_method", ErrInvalidPaymentMethod)
	}
	if l.InstallmentCount < 1 {
		return NewValidationError("installment_count", ErrInvalidInstallmentCount)
	}
	if err := l.AnchorDate.Validate(); err != nil {
		return NewValidationError("anchor_date", err)
	}
	if len(l.Notes) > 2000 {
		return NewValidationError("notes", ErrNotesTooLong)
	}
	return nil
}

// IsPaid reports whether the installment is marked paid.
func (i Installment) IsPaid() bool {
	return i.Status == StatusPaid
}

func (i Installment) Validate() error {
	if err := i.Amount.Validate(); err != nil {
		return NewValidationError("amount", err)
	}
	if err := i.DueDate.Validate(); err != nil {
		return NewValidationError("due_date", err)
	}
	if !i.Status.Valid() {
		return NewValidationError("status", ErrInvalidStatus)
	}
	return nil
}

// MarkPaid sets status to paid, stamping at when no payment date is known.
func (i *Installment) MarkPaid(at time.Time) {
	i.Status = StatusPaid
	if i.PaymentDate == nil {
		t := at.UTC()
		i.PaymentDate = &t
	}
}

// MarkPending reverts to pending and clears the payment date.
func (i *Installment) MarkPending() {
	i.Status = StatusPending
	i.PaymentDate = nil
}

// Toggle flips pending and paid.
func (i *Installment) Toggle(now time.Time) {
	if i.IsPaid() {
		i.MarkPending()
		return
	}
	i.PaymentDate = nil
	i.MarkPaid(now)
}
