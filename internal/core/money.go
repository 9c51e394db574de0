// Package core provides money parsing and handling utilities.
//
// Amounts are stored as integer minor units tagged with a currency code.
// Decimal conversion goes through shopspring/decimal so no float ever
// touches a stored value.
package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyCode is an ISO 4217 code such as "BRL".
type CurrencyCode string

// DefaultCurrency is used when a ledger is created without a currency.
const DefaultCurrency CurrencyCode = "BRL"

// DefaultSymbol is displayed for codes missing from the currency table.
const DefaultSymbol = "R$"

// Currency describes a supported currency.
type Currency struct {
	Code     CurrencyCode `json:"code"`
	Symbol   string       `json:"symbol"`
	Name     string       `json:"name"`
	Exponent int32        `json:"exponent"` // digits in the minor unit
}

var currencies = map[CurrencyCode]Currency{
	"BRL": {Code: "BRL", Symbol: "R$", Name: "Brazilian real", Exponent: 2},
	"USD": {Code: "USD", Symbol: "$", Name: "US dollar", Exponent: 2},
	"EUR": {Code: "EUR", Symbol: "€", Name: "Euro", Exponent: 2},
	"JPY": {Code: "JPY", Symbol: "¥", Name: "Japanese yen", Exponent: 0},
	"GBP": {Code: "GBP", Symbol: "£", Name: "Pound sterling", Exponent: 2},
	"CAD": {Code: "CAD", Symbol: "C$", Name: "Canadian dollar", Exponent: 2},
	"AUD": {Code: "AUD", Symbol: "A$", Name: "Australian dollar", Exponent: 2},
	"CHF": {Code: "CHF", Symbol: "CHF", Name: "Swiss franc", Exponent: 2},
	"MXN": {Code: "MXN", Symbol: "MX$", Name: "Mexican peso", Exponent: 2},
	"ARS": {Code: "ARS", Symbol: "AR$", Name: "Argentine peso", Exponent: 2},
	"CLP": {Code: "CLP", Symbol: "CL$", Name: "Chilean peso", Exponent: 0},
	"COP": {Code: "COP", Symbol: "CO$", Name: "Colombian peso", Exponent: 2},
	"PEN": {Code: "PEN", Symbol: "S/", Name: "Peruvian sol", Exponent: 2},
	"CNY": {Code: "CNY", Symbol: "¥", Name: "Chinese yuan", Exponent: 2},
	"KRW": {Code: "KRW", Symbol: "₩", Name: "South Korean won", Exponent: 0},
	"INR": {Code: "INR", Symbol: "₹", Name: "Indian rupee", Exponent: 2},
}

// LookupCurrency returns the table entry for code.
func LookupCurrency(code CurrencyCode) (Currency, bool) {
	c, ok := currencies[CurrencyCode(strings.ToUpper(strings.TrimSpace(string(code))))]
	return c, ok
}

// Currencies returns the supported currencies sorted by code.
func Currencies() []Currency {
	out := make([]Currency, 0, len(currencies))
	for _, c := range currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// NormalizeCurrency upper-cases code, applies the default for an empty code
// and rejects codes outside the table.
func NormalizeCurrency(code CurrencyCode) (CurrencyCode, error) {
	if strings.TrimSpace(string(code)) == "" {
		return DefaultCurrency, nil
	}
	c, ok := LookupCurrency(code)
	if !ok {
		return "", ErrUnknownCurrency
	}
	return c.Code, nil
}

// Symbol returns the display symbol, falling back to DefaultSymbol.
func (c CurrencyCode) Symbol() string {
	if cur, ok := LookupCurrency(c); ok {
		return cur.Symbol
	}
	return DefaultSymbol
}

// Exponent returns the number of minor-unit digits. Unknown codes use 2.
func (c CurrencyCode) Exponent() int32 {
	if cur, ok := LookupCurrency(c); ok {
		return cur.Exponent
	}
	return 2
}

// Money is an amount in minor units (cents for BRL) of a currency.
type Money struct {
	Minor    int64
	Currency CurrencyCode
}

// NewMoney builds a Money from minor units.
func NewMoney(minor int64, currency CurrencyCode) Money {
	return Money{Minor: minor, Currency: currency}
}

// ParseAmount converts a decimal string into Money for the given currency.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Digits beyond
// the currency's minor unit are rounded half-up. Negative values are rejected;
// zero is allowed here and refused by the callers that need a positive total.
//
//	ParseAmount("12.345", "BRL") -> 1235 minor units
//	ParseAmount("1500", "JPY")   -> 1500 minor units
func ParseAmount(s string, currency CurrencyCode) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return FromDecimal(d, currency)
}

// FromDecimal quantizes d to the currency minor unit.
func FromDecimal(d decimal.Decimal, currency CurrencyCode) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	exp := currency.Exponent()
	minor := d.Round(exp).Shift(exp)
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(1<<62)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Minor: minor.IntPart(), Currency: currency}, nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Minor, -m.Currency.Exponent())
}

// String renders the amount with exactly the currency's minor digits, e.g. "100.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(m.Currency.Exponent())
}

// Display renders the amount with its symbol, e.g. "R$ 100.00".
func (m Money) Display() string {
	if m.Minor < 0 {
		return "-" + m.Currency.Symbol() + " " + Money{Minor: -m.Minor, Currency: m.Currency}.String()
	}
	return m.Currency.Symbol() + " " + m.String()
}

func (m Money) IsZero() bool { return m.Minor == 0 }

// Validate rejects negative amounts.
func (m Money) Validate() error {
	if m.Minor < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add sums two amounts of the same currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Minor: m.Minor + o.Minor, Currency: m.Currency}, nil
}

// Sub subtracts o from m. The result may be negative.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Minor: m.Minor - o.Minor, Currency: m.Currency}, nil
}

// Float returns the value in major units for spreadsheet cells.
// Calculations must stay on Minor.
func (m Money) Float() float64 {
	f, _ := m.Decimal().Float64()
	return f
}
