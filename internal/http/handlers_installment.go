package http

import (
	"net/http"

	"mentorledger/internal/core"
	applog "mentorledger/internal/log"
	"mentorledger/internal/services"
)

type toggleRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
}

func (s *Server) handleToggleInstallment(w http.ResponseWriter, r *http.Request) {
	id := PathID(r)
	fields := applog.NewFields().WithInstallment(id)

	var req toggleRequest
	if err := DecodeJSON(r, &req, true); err != nil {
		s.fail(w, r, err, applog.OpToggle, fields)
		return
	}
	if req.ExpectedVersion == 0 {
		v, err := ParseExpectedVersion(r)
		if err != nil {
			s.fail(w, r, err, applog.OpToggle, fields)
			return
		}
		req.ExpectedVersion = v
	}

	inst, err := s.ledgers.ToggleInstallmentStatus(r.Context(), id, req.ExpectedVersion)
	if err != nil {
		s.fail(w, r, err, applog.OpToggle, fields)
		return
	}
	s.invalidateTotals()
	requestEvents(r).LogLedgerMutation(r.Context(), applog.OpToggle, inst.LedgerID, "", inst.LedgerVersion)

	NewJSONResponse().JSON(installmentResultView{Installment: newInstallmentView(inst, s.today())}).Write(w)
}

type editInstallmentRequest struct {
	Amount           *DecimalString `json:"amount"`
	DueDate          *string        `json:"due_date"`
	Status           *string        `json:"status"`
	PaymentDate      *string        `json:"payment_date"`
	ClearPaymentDate bool           `json:"clear_payment_date"`
	ExpectedVersion  int64          `json:"expected_version"`
}

// toPatch converts the request. currency is the installment's currency.
func (req editInstallmentRequest) toPatch(currency core.CurrencyCode) (services.InstallmentPatch, error) {
	patch := services.InstallmentPatch{
		ClearPaymentDate:      req.ClearPaymentDate,
		ExpectedLedgerVersion: req.ExpectedVersion,
	}
	if req.Amount != nil {
		amount, err := ParseMoney("amount", *req.Amount, currency)
		if err != nil {
			return patch, err
		}
		patch.Amount = &amount
	}
	if req.DueDate != nil {
		due, err := ParseDateField("due_date", *req.DueDate)
		if err != nil {
			return patch, err
		}
		patch.DueDate = &due
	}
	if req.Status != nil {
		status, err := core.ParseStatus(*req.Status)
		if err != nil {
			return patch, core.NewValidationError("status", err)
		}
		patch.Status = &status
	}
	if req.PaymentDate != nil && !req.ClearPaymentDate {
		t, err := ParseTimestampField("payment_date", *req.PaymentDate)
		if err != nil {
			return patch, err
		}
		patch.PaymentDate = &t
	}
	return patch, nil
}

func (s *Server) handleEditInstallment(w http.ResponseWriter, r *http.Request) {
	id := PathID(r)
	fields := applog.NewFields().WithInstallment(id)

	var req editInstallmentRequest
	if err := DecodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err, applog.OpUpdate, fields)
		return
	}

	var currency core.CurrencyCode
	if req.Amount != nil {
		existing, err := s.ledgers.GetInstallment(r.Context(), id)
		if err != nil {
			s.fail(w, r, err, applog.OpUpdate, fields)
			return
		}
		currency = existing.Amount.Currency
	}
	patch, err := req.toPatch(currency)
	if err != nil {
		s.fail(w, r, err, applog.OpUpdate, fields)
		return
	}

	inst, warning, err := s.ledgers.EditInstallment(r.Context(), id, patch)
	if err != nil {
		s.fail(w, r, err, applog.OpUpdate, fields)
		return
	}
	s.invalidateTotals()
	requestEvents(r).LogLedgerMutation(r.Context(), applog.OpUpdate, inst.LedgerID, "", inst.LedgerVersion)

	NewJSONResponse().JSON(installmentResultView{
		Installment: newInstallmentView(inst, s.today()),
		Warning:     newDriftView(warning),
	}).Write(w)
}
