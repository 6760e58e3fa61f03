package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"tablero/internal/core"
	"tablero/internal/services"
	"tablero/internal/storage"
)

// chartRow is one bar, slice or point of a dashboard chart.
type chartRow struct {
	Label  string  `json:"label"`
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
	Date   string  `json:"date,omitempty"`
}

type loadSummary struct {
	Rows         int `json:"rows"`
	SkippedCells int `json:"skipped_cells"`
	NullDates    int `json:"null_dates"`
	Defaulted    int `json:"defaulted"`
}

type applicationSummary struct {
	Total         int         `json:"total"`
	Categories    int         `json:"categories"`
	From          string      `json:"from,omitempty"`
	To            string      `json:"to,omitempty"`
	ByCategory    []chartRow  `json:"by_category"`
	ByCertificate []chartRow  `json:"by_certificate"`
	MonthlyTrend  []chartRow  `json:"monthly_trend"`
	Load          loadSummary `json:"load"`
}

type paymentRow struct {
	Entity   string  `json:"entity"`
	Category string  `json:"category"`
	Venue    string  `json:"venue"`
	Year     int     `json:"year"`
	Paid     int     `json:"paid"`
	Periods  int     `json:"periods"`
	Total    float64 `json:"total"`
	Status   string  `json:"status"`
}

type fairSummary struct {
	Year               int          `json:"year"`
	Historical         bool         `json:"historical"`
	Venue              string       `json:"venue,omitempty"`
	Sort               string       `json:"sort"`
	Years              []int        `json:"years"`
	Fairs              int          `json:"fairs"`
	Participants       int          `json:"participants"`
	Categories         int          `json:"categories"`
	Revenue            float64      `json:"revenue"`
	ParticipantsByFair []chartRow   `json:"participants_by_fair"`
	RevenueByFair      []chartRow   `json:"revenue_by_fair"`
	TopCategories      []chartRow   `json:"top_categories"`
	MonthlyTrend       []chartRow   `json:"monthly_trend"`
	ParticipantsByYear []chartRow   `json:"participants_by_year,omitempty"`
	StatusDistribution []chartRow   `json:"status_distribution,omitempty"`
	Payments           []paymentRow `json:"payments,omitempty"`
	Load               loadSummary  `json:"load"`
}

type importView struct {
	ID          string     `json:"id"`
	Dataset     string     `json:"dataset"`
	Year        int        `json:"year,omitempty"`
	Venue       string     `json:"venue,omitempty"`
	Filename    string     `json:"filename"`
	Status      string     `json:"status"`
	Rows        int        `json:"rows"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type errorBody struct {
	Error string `json:"error,omitempty"`
	Empty bool   `json:"empty,omitempty"`
}

func chartRows(rows []core.AggregateRow, label func(string) string) []chartRow {
	out := make([]chartRow, 0, len(rows))
	for _, r := range rows {
		key := r.Key
		if label != nil {
			key = label(key)
		}
		row := chartRow{Label: key, Count: r.Count, Amount: r.Amount.InexactFloat64()}
		if !r.Date.IsEmpty() {
			row.Date = r.Date.Format(time.DateOnly)
		}
		out = append(out, row)
	}
	return out
}

func newLoadSummary(r core.LoadReport) loadSummary {
	return loadSummary{Rows: r.Rows, SkippedCells: r.SkippedCells, NullDates: r.NullDates, Defaulted: r.Defaulted}
}

func newApplicationSummary(r services.ApplicationReport) applicationSummary {
	s := applicationSummary{
		Total:         r.Total,
		Categories:    r.Categories,
		ByCategory:    chartRows(r.ByCategory, nil),
		ByCertificate: chartRows(r.ByCertificate, nil),
		MonthlyTrend:  chartRows(r.MonthlyTrend, services.MonthLabel),
		Load:          newLoadSummary(r.Load),
	}
	if !r.From.IsEmpty() {
		s.From = r.From.Format(time.DateOnly)
		s.To = r.To.Format(time.DateOnly)
	}
	return s
}

func newFairSummary(r services.FairReport) fairSummary {
	s := fairSummary{
		Year:               r.Selection.Year,
		Historical:         r.Selection.Historical(),
		Venue:              r.Selection.Venue,
		Sort:               string(r.Selection.Sort),
		Years:              r.Years,
		Fairs:              r.Fairs,
		Participants:       r.Participants,
		Categories:         r.Categories,
		Revenue:            r.Revenue.InexactFloat64(),
		ParticipantsByFair: chartRows(r.ParticipantsByFair, nil),
		RevenueByFair:      chartRows(r.RevenueByFair, nil),
		TopCategories:      chartRows(r.TopCategories, nil),
		MonthlyTrend:       chartRows(r.MonthlyTrend, services.MonthLabel),
		Load:               newLoadSummary(r.Load),
	}
	if r.Selection.Historical() {
		s.ParticipantsByYear = chartRows(r.ParticipantsByYear, nil)
	}
	if len(r.Payments) > 0 {
		s.StatusDistribution = chartRows(r.StatusDistribution, nil)
		s.Payments = make([]paymentRow, 0, len(r.Payments))
		for _, p := range r.Payments {
			s.Payments = append(s.Payments, paymentRow{
				Entity:   p.Entity,
				Category: p.Category,
				Venue:    p.Venue,
				Year:     p.Year,
				Paid:     p.Paid,
				Periods:  p.Periods,
				Total:    p.Total.InexactFloat64(),
				Status:   p.Status.String(),
			})
		}
	}
	return s
}

func newImportView(imp storage.Import) importView {
	v := importView{
		ID:        imp.ID,
		Dataset:   string(imp.Dataset),
		Year:      imp.Year,
		Venue:     imp.Venue,
		Filename:  imp.Filename,
		Status:    string(imp.Status),
		Rows:      imp.Rows,
		Error:     imp.Error,
		CreatedAt: imp.CreatedAt,
	}
	if !imp.CompletedAt.IsZero() {
		completed := imp.CompletedAt
		v.CompletedAt = &completed
	}
	return v
}

// writeJSON encodes v before writing so an encoding failure still yields a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
