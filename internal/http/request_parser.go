// Package http provides the JSON API of the ledger service.
//
// This file implements utilities for parsing and validating request bodies.
// Field-level problems become core.ValidationError values; unreadable bodies
// become requestError values and map to 400.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mentorledger/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// requestError reports a body that could not be decoded at all.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

// DecodeJSON reads r's body into dst. An empty body leaves dst untouched
// when allowEmpty is set.
func DecodeJSON(r *http.Request, dst interface{}, allowEmpty bool) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return &requestError{msg: "could not read request body"}
	}
	if len(body) > maxBodyBytes {
		return &requestError{msg: "request body too large"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return nil
		}
		return &requestError{msg: "request body is empty"}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return core.NewValidationError(typeErr.Field, fmt.Errorf("expected %s", typeErr.Type))
		}
		return &requestError{msg: "malformed JSON: " + err.Error()}
	}
	if dec.More() {
		return &requestError{msg: "request body must hold a single JSON object"}
	}
	return nil
}

// DecimalString accepts an amount written as a JSON string ("100.00") or
// a JSON number (100.5).
type DecimalString string

func (d *DecimalString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = DecimalString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a decimal string or number")
	}
	*d = DecimalString(n.String())
	return nil
}

// ParseMoney converts a decimal amount for the given currency.
func ParseMoney(field string, amount DecimalString, currency core.CurrencyCode) (core.Money, error) {
	m, err := core.ParseAmount(string(amount), currency)
	if err != nil {
		return core.Money{}, core.NewValidationError(field, err)
	}
	return m, nil
}

// ParseDateField parses a YYYY-MM-DD value.
func ParseDateField(field, value string) (core.Date, error) {
	d, err := core.ParseDate(strings.TrimSpace(value))
	if err != nil {
		return core.Date{}, core.NewValidationError(field, err)
	}
	return d, nil
}

// ParseTimestampField accepts RFC 3339 timestamps and plain dates, which are
// read as midnight UTC.
func ParseTimestampField(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if d, err := core.ParseDate(value); err == nil {
		return d.Time, nil
	}
	return time.Time{}, core.NewValidationError(field, fmt.Errorf("expected RFC 3339 timestamp or YYYY-MM-DD, got %q", value))
}

// ParseExpectedVersion reads an optional ?expected_version= query value.
func ParseExpectedVersion(r *http.Request) (int64, error) {
	v := strings.TrimSpace(r.URL.Query().Get("expected_version"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, core.NewValidationError("expected_version", fmt.Errorf("must be a non-negative integer"))
	}
	return n, nil
}

// PathID returns the {id} path value, sanitized.
func PathID(r *http.Request) string {
	return sanitizeInput(r.PathValue("id"))
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
