package http

import (
	"net/http"
	"strings"

	"mentorledger/internal/core"
	applog "mentorledger/internal/log"
	"mentorledger/internal/services"
)

type createLedgerRequest struct {
	EnrollmentID     string        `json:"enrollment_id"`
	TotalAmount      DecimalString `json:"total_amount"`
	Currency         string        `json:"currency"`
	PaymentMethod    string        `json:"payment_method"`
	InstallmentCount int           `json:"installment_count"`
	AnchorDate       string        `json:"anchor_date"`
	PaymentDate      string        `json:"payment_date"`
	Notes            string        `json:"notes"`
}

// toInput validates the request fields the service cannot see, such as
// date syntax and the currency used to quantize the amount.
func (req createLedgerRequest) toInput(defaultCurrency core.CurrencyCode) (services.CreateLedgerInput, error) {
	code := core.CurrencyCode(req.Currency)
	if strings.TrimSpace(req.Currency) == "" {
		code = defaultCurrency
	}
	currency, err := core.NormalizeCurrency(code)
	if err != nil {
		return services.CreateLedgerInput{}, core.NewValidationError("currency", err)
	}
	total, err := ParseMoney("total_amount", req.TotalAmount, currency)
	if err != nil {
		return services.CreateLedgerInput{}, err
	}
	method, err := core.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return services.CreateLedgerInput{}, core.NewValidationError("payment_method", err)
	}
	anchor, err := ParseDateField("anchor_date", req.AnchorDate)
	if err != nil {
		return services.CreateLedgerInput{}, err
	}

	in := services.CreateLedgerInput{
		EnrollmentID:     sanitizeInput(req.EnrollmentID),
		Total:            total,
		PaymentMethod:    method,
		InstallmentCount: req.InstallmentCount,
		AnchorDate:       anchor,
		Notes:            sanitizeInput(req.Notes),
	}
	if strings.TrimSpace(req.PaymentDate) != "" {
		t, err := ParseTimestampField("payment_date", req.PaymentDate)
		if err != nil {
			return services.CreateLedgerInput{}, err
		}
		in.PaymentDate = &t
	}
	return in, nil
}

func (s *Server) handleCreateLedger(w http.ResponseWriter, r *http.Request) {
	var req createLedgerRequest
	if err := DecodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err, applog.OpCreate, nil)
		return
	}
	in, err := req.toInput(s.ledgers.DefaultCurrency())
	if err != nil {
		s.fail(w, r, err, applog.OpCreate, nil)
		return
	}

	summary, err := s.ledgers.CreateLedger(r.Context(), in)
	if err != nil {
		s.fail(w, r, err, applog.OpCreate, applog.NewFields().WithLedger("", in.EnrollmentID, 0))
		return
	}
	s.invalidateTotals()
	l := summary.Ledger
	requestEvents(r).LogLedgerMutation(r.Context(), applog.OpCreate, l.ID, l.EnrollmentID, l.Version)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/ledgers/"+l.ID).
		JSON(newSummaryView(summary, s.today())).
		Write(w)
}

func (s *Server) handleListLedgers(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.ledgers.ListLedgers(r.Context())
	if err != nil {
		s.fail(w, r, err, applog.OpList, nil)
		return
	}
	today := s.today()
	out := make([]summaryView, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, newSummaryView(sum, today))
	}
	NewJSONResponse().JSON(map[string]interface{}{"ledgers": out}).Write(w)
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	id := PathID(r)
	summary, err := s.ledgers.GetLedger(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, applog.OpRead, applog.NewFields().WithLedger(id, "", 0))
		return
	}
	NewJSONResponse().JSON(newSummaryView(summary, s.today())).Write(w)
}

type updateLedgerRequest struct {
	TotalAmount      *DecimalString `json:"total_amount"`
	Currency         *string        `json:"currency"`
	PaymentMethod    *string        `json:"payment_method"`
	InstallmentCount *int           `json:"installment_count"`
	AnchorDate       *string        `json:"anchor_date"`
	PaymentDate      *string        `json:"payment_date"`
	ClearPaymentDate bool           `json:"clear_payment_date"`
	Notes            *string        `json:"notes"`
	ExpectedVersion  int64          `json:"expected_version"`
}

// toPatch converts the request. currency is the ledger's current currency,
// used to quantize a new total when the request names none.
func (req updateLedgerRequest) toPatch(current core.CurrencyCode) (services.LedgerPatch, error) {
	patch := services.LedgerPatch{
		ClearPaymentDate: req.ClearPaymentDate,
		ExpectedVersion:  req.ExpectedVersion,
	}

	currency := current
	if req.Currency != nil {
		code, err := core.NormalizeCurrency(core.CurrencyCode(*req.Currency))
		if err != nil {
			return patch, core.NewValidationError("currency", err)
		}
		currency = code
		patch.Currency = &code
	}
	if req.TotalAmount != nil {
		total, err := ParseMoney("total_amount", *req.TotalAmount, currency)
		if err != nil {
			return patch, err
		}
		patch.Total = &total
	}
	if req.PaymentMethod != nil {
		method, err := core.ParsePaymentMethod(*req.PaymentMethod)
		if err != nil {
			return patch, core.NewValidationError("payment_method", err)
		}
		patch.PaymentMethod = &method
	}
	if req.InstallmentCount != nil {
		n := *req.InstallmentCount
		patch.InstallmentCount = &n
	}
	if req.AnchorDate != nil {
		anchor, err := ParseDateField("anchor_date", *req.AnchorDate)
		if err != nil {
			return patch, err
		}
		patch.AnchorDate = &anchor
	}
	if req.PaymentDate != nil && !req.ClearPaymentDate {
		t, err := ParseTimestampField("payment_date", *req.PaymentDate)
		if err != nil {
			return patch, err
		}
		patch.PaymentDate = &t
	}
	if req.Notes != nil {
		notes := sanitizeInput(*req.Notes)
		patch.Notes = &notes
	}
	return patch, nil
}

func (s *Server) handleUpdateLedger(w http.ResponseWriter, r *http.Request) {
	id := PathID(r)
	fields := applog.NewFields().WithLedger(id, "", 0)

	var req updateLedgerRequest
	if err := DecodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err, applog.OpUpdate, fields)
		return
	}
	if req.ExpectedVersion == 0 {
		v, err := ParseExpectedVersion(r)
		if err != nil {
			s.fail(w, r, err, applog.OpUpdate, fields)
			return
		}
		req.ExpectedVersion = v
	}

	var current core.CurrencyCode
	if req.TotalAmount != nil && req.Currency == nil {
		existing, err := s.ledgers.GetLedger(r.Context(), id)
		if err != nil {
			s.fail(w, r, err, applog.OpUpdate, fields)
			return
		}
		current = existing.Ledger.Currency()
	}
	patch, err := req.toPatch(current)
	if err != nil {
		s.fail(w, r, err, applog.OpUpdate, fields)
		return
	}

	summary, err := s.ledgers.UpdateLedger(r.Context(), id, patch)
	if err != nil {
		s.fail(w, r, err, applog.OpUpdate, fields)
		return
	}
	s.invalidateTotals()
	l := summary.Ledger
	requestEvents(r).LogLedgerMutation(r.Context(), applog.OpUpdate, l.ID, l.EnrollmentID, l.Version)

	NewJSONResponse().JSON(newSummaryView(summary, s.today())).Write(w)
}

func (s *Server) handleDeleteLedger(w http.ResponseWriter, r *http.Request) {
	id := PathID(r)
	if err := s.ledgers.DeleteLedger(r.Context(), id); err != nil {
		s.fail(w, r, err, applog.OpDelete, applog.NewFields().WithLedger(id, "", 0))
		return
	}
	s.invalidateTotals()
	requestEvents(r).LogLedgerMutation(r.Context(), applog.OpDelete, id, "", 0)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
