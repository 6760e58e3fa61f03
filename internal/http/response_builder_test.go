package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/core"
	"tablero/internal/services"
	"tablero/internal/storage"
)

func TestFormatSoles(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "S/ 0.00"},
		{"12.5", "S/ 12.50"},
		{"999.999", "S/ 1,000.00"},
		{"1234567.891", "S/ 1,234,567.89"},
		{"-1500", "-S/ 1,500.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSoles(decimal.RequireFromString(tt.in)), tt.in)
	}
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "7", formatCount(7))
	assert.Equal(t, "1,000", formatCount(1000))
	assert.Equal(t, "12,345,678", formatCount(12345678))
	assert.Equal(t, "-4,200", formatCount(-4200))
}

func TestNewFairSummary(t *testing.T) {
	report := services.FairReport{
		Selection: services.Selection{Year: 2024, Sort: services.SortDescending},
		Years:     []int{2024},
		Fairs:     1,
		Revenue:   decimal.RequireFromString("35.5"),
		MonthlyTrend: []core.AggregateRow{
			{Key: "2024-03", Count: 2, Amount: decimal.NewFromInt(10), Date: core.NewDate(2024, 3, 1)},
		},
		ParticipantsByYear: []core.AggregateRow{{Key: "2024", Count: 9}},
		Payments: []core.EntityPayment{
			{Entity: "Pedro", Paid: 3, Periods: 3, Total: decimal.NewFromInt(35), Status: core.PaidAll},
		},
		StatusDistribution: []core.AggregateRow{{Key: core.PaidAll.String(), Count: 1}},
	}

	s := newFairSummary(report)
	assert.False(t, s.Historical)
	assert.Equal(t, "desc", s.Sort)
	assert.InDelta(t, 35.5, s.Revenue, 1e-9)
	require.Len(t, s.MonthlyTrend, 1)
	assert.Equal(t, chartRow{Label: "Mar 2024", Count: 2, Amount: 10, Date: "2024-03-01"}, s.MonthlyTrend[0])
	assert.Nil(t, s.ParticipantsByYear, "per-year rows only for historical selections")
	require.Len(t, s.Payments, 1)
	assert.Equal(t, "Paid All", s.Payments[0].Status)
}

func TestNewImportView(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	v := newImportView(storage.Import{ID: "a", Dataset: core.DatasetRegistrations, Status: storage.StatusPending, CreatedAt: created})
	assert.Nil(t, v.CompletedAt)
	assert.Equal(t, "ferias", v.Dataset)

	v = newImportView(storage.Import{ID: "a", Status: storage.StatusCompleted, CreatedAt: created, CompletedAt: created.Add(time.Second)})
	require.NotNil(t, v.CompletedAt)
	assert.Equal(t, created.Add(time.Second), *v.CompletedAt)
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusAccepted, errorBody{Empty: true})
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"empty":true}`, rr.Body.String())

	rr = httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]any{"bad": make(chan int)})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, errorStatus(core.ErrNoData))
	assert.Equal(t, http.StatusBadRequest, errorStatus(core.ErrUnknownVenue))
	assert.Equal(t, http.StatusNotFound, errorStatus(storage.ErrImportNotFound))
	assert.Equal(t, http.StatusRequestEntityTooLarge, errorStatus(errUploadTooLarge))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(assert.AnError))
}
