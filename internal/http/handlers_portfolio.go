package http

import (
	"bytes"
	"net/http"
	"strconv"

	"mentorledger/internal/core"
	"mentorledger/internal/export"
	applog "mentorledger/internal/log"
)

func handleCurrencies(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		JSON(map[string]interface{}{
			"currencies":      core.Currencies(),
			"default":         core.DefaultCurrency,
			"payment_methods": core.PaymentMethods(),
		}).
		Write(w)
}

func (s *Server) handlePortfolioTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.portfolioTotals(r.Context())
	if err != nil {
		s.fail(w, r, err, applog.OpRead, nil)
		return
	}
	NewJSONResponse().JSON(newTotalsView(totals)).Write(w)
}

func (s *Server) handlePortfolioExport(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.ledgers.ListLedgers(r.Context())
	if err != nil {
		s.fail(w, r, err, applog.OpExport, nil)
		return
	}
	totals := core.ComputePortfolioTotals(summaries, s.now())

	var buf bytes.Buffer
	if err := export.WritePortfolioXLSX(&buf, summaries, totals); err != nil {
		s.fail(w, r, err, applog.OpExport, nil)
		return
	}

	name := "portfolio-" + s.today().String() + ".xlsx"
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
