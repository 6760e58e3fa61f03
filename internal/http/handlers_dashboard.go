package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"tablero/internal/core"
	"tablero/internal/services"
)

type link struct {
	Label  string
	Href   string
	Active bool
}

type sortOption struct {
	Value  string
	Label  string
	Active bool
}

var sortLabels = []struct {
	order services.SortOrder
	label string
}{
	{services.SortAscending, "Ascendente"},
	{services.SortDescending, "Descendente"},
	{services.SortChronological, "Cronológico"},
}

// fairRow joins the participant and revenue charts for the per-fair table.
type fairRow struct {
	Label        string
	Participants int
	Revenue      decimal.Decimal
}

type applicationPage struct {
	pageMeta
	Report services.ApplicationReport
}

type fairPage struct {
	pageMeta
	Selection services.Selection
	YearParam string
	YearLabel string
	YearLinks []link
	Venues    []core.Venue
	Sorts     []sortOption
	Report    services.FairReport
	FairRows  []fairRow
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request) {
	page := applicationPage{pageMeta: s.meta("PACHAMBEAR", "pachambear")}
	page.Charts = true

	report, err := s.apps.Report(r.Context())
	status := s.applyError(r, &page.pageMeta, err)
	if err == nil {
		page.Report = report
	}
	s.render(w, r, "pachambear.html", status, page)
}

func (s *Server) handleApplicationSummary(w http.ResponseWriter, r *http.Request) {
	report, err := s.apps.Report(r.Context())
	if err != nil {
		s.writeSummaryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newApplicationSummary(report))
}

func (s *Server) newFairPage(sel services.Selection) fairPage {
	page := fairPage{
		pageMeta:  s.meta("Ferias", "ferias"),
		Selection: sel,
		Venues:    s.fairs.Venues(),
	}
	page.Charts = true

	if sel.Historical() {
		page.YearParam, page.YearLabel = "historico", "Histórico"
	} else {
		page.YearParam = strconv.Itoa(sel.Year)
		page.YearLabel = page.YearParam
	}

	for _, y := range s.fairs.Years() {
		target := sel
		target.Year = y
		page.YearLinks = append(page.YearLinks, link{
			Label:  strconv.Itoa(y),
			Href:   "/ferias?" + selectionQuery(target).Encode(),
			Active: !sel.Historical() && sel.Year == y,
		})
	}
	historical := sel
	historical.Year = services.HistoricalYear
	page.YearLinks = append(page.YearLinks, link{
		Label:  "Histórico",
		Href:   "/ferias?" + selectionQuery(historical).Encode(),
		Active: sel.Historical(),
	})

	for _, o := range sortLabels {
		page.Sorts = append(page.Sorts, sortOption{Value: string(o.order), Label: o.label, Active: sel.Sort == o.order})
	}
	return page
}

func fairRows(r services.FairReport) []fairRow {
	participants := make(map[string]int, len(r.ParticipantsByFair))
	for _, row := range r.ParticipantsByFair {
		participants[row.Key] = row.Count
	}
	out := make([]fairRow, 0, len(r.RevenueByFair))
	for _, row := range r.RevenueByFair {
		out = append(out, fairRow{Label: row.Key, Participants: participants[row.Key], Revenue: row.Amount})
	}
	return out
}

func (s *Server) handleFairs(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelection(r.URL.Query(), s.defaultYear)
	page := s.newFairPage(sel)
	if err != nil {
		s.render(w, r, "ferias.html", s.applyError(r, &page.pageMeta, err), page)
		return
	}

	report, err := s.fairs.Report(r.Context(), sel)
	status := s.applyError(r, &page.pageMeta, err)
	if err == nil {
		page.Report = report
		page.FairRows = fairRows(report)
	}
	s.render(w, r, "ferias.html", status, page)
}

func (s *Server) handleFairSummary(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelection(r.URL.Query(), s.defaultYear)
	if err != nil {
		s.writeSummaryError(w, r, err)
		return
	}
	report, err := s.fairs.Report(r.Context(), sel)
	if err != nil {
		s.writeSummaryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFairSummary(report))
}

// writeSummaryError answers a summary request that produced no report. A
// selection without data is a normal, empty answer.
func (s *Server) writeSummaryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrNoData) {
		writeJSON(w, http.StatusOK, errorBody{Empty: true})
		return
	}
	var meta pageMeta
	status := s.applyError(r, &meta, err)
	writeJSON(w, status, errorBody{Error: err.Error()})
}
