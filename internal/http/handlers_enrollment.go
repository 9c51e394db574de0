package http

import (
	"net/http"

	"mentorledger/internal/core"
	applog "mentorledger/internal/log"
)

type registerEnrollmentRequest struct {
	MenteeName  string `json:"mentee_name"`
	ProgramName string `json:"program_name"`
	Active      *bool  `json:"active"`
}

func (s *Server) handleRegisterEnrollment(w http.ResponseWriter, r *http.Request) {
	id := PathID(r)
	var req registerEnrollmentRequest
	if err := DecodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err, applog.OpUpdate, nil)
		return
	}

	e := core.Enrollment{
		ID:          id,
		MenteeName:  sanitizeInput(req.MenteeName),
		ProgramName: sanitizeInput(req.ProgramName),
		Active:      req.Active == nil || *req.Active,
	}
	if err := s.ledgers.RegisterEnrollment(r.Context(), e); err != nil {
		s.fail(w, r, err, applog.OpUpdate, nil)
		return
	}
	NewJSONResponse().JSON(enrollmentView{
		ID:          e.ID,
		MenteeName:  e.MenteeName,
		ProgramName: e.ProgramName,
		Active:      e.Active,
	}).Write(w)
}

func (s *Server) handleEnrollmentLedger(w http.ResponseWriter, r *http.Request) {
	id := PathID(r)
	el, err := s.ledgers.GetLedgerForEnrollment(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, applog.OpRead, nil)
		return
	}
	NewJSONResponse().JSON(newEnrollmentLedgerView(el, s.today())).Write(w)
}
