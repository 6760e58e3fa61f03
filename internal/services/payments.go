package services

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"tablero/internal/core"
)

// ClassifyEntities computes the yearly payment status of every entity of a wide
// sheet. Rows that share an entity are merged month by month before counting.
// When fixed is set the denominator is always twelve; otherwise it is the number
// of month columns the sheet carries.
func ClassifyEntities(sheet core.MonthlySheet, fixed bool) []core.EntityPayment {
	type entry struct {
		category string
		months   [12]decimal.Decimal
		total    decimal.Decimal
	}
	entries := make(map[string]*entry)
	order := make([]string, 0, len(sheet.Rows))

	source := core.GroupLabel(sheet.Venue.Label, sheet.Year)
	for _, row := range sheet.Rows {
		key := core.EntityKey(row.Entity, source, row.Line)
		e, ok := entries[key]
		if !ok {
			e = &entry{category: core.NormalizeCategory(row.Category)}
			entries[key] = e
			order = append(order, key)
		}
		for _, m := range sheet.Periods {
			if !m.Valid() {
				continue
			}
			v := core.ParseAmount(row.Cells[m-1].Value).OrZero()
			e.months[m-1] = e.months[m-1].Add(v)
			e.total = e.total.Add(v)
		}
	}

	periods := sheet.PeriodCount(fixed)
	out := make([]core.EntityPayment, 0, len(order))
	for _, key := range order {
		e := entries[key]
		paid := 0
		for _, m := range sheet.Periods {
			if m.Valid() && e.months[m-1].IsPositive() {
				paid++
			}
		}
		out = append(out, core.EntityPayment{
			Entity:   key,
			Category: e.category,
			Venue:    sheet.Venue.Label,
			Year:     sheet.Year,
			Paid:     paid,
			Periods:  periods,
			Total:    e.total,
			Status:   core.ClassifyCount(paid, periods),
		})
	}

	slices.SortStableFunc(out, func(a, b core.EntityPayment) int {
		if a.Status != b.Status {
			return int(b.Status) - int(a.Status)
		}
		return strings.Compare(a.Entity, b.Entity)
	})
	return out
}

// StatusDistribution counts entities per payment status. Every status is listed,
// in bucket order, so charts keep a stable legend.
func StatusDistribution(payments []core.EntityPayment) []core.AggregateRow {
	counts := make(map[core.PaymentStatus]int)
	totals := make(map[core.PaymentStatus]decimal.Decimal)
	for _, p := range payments {
		counts[p.Status]++
		totals[p.Status] = totals[p.Status].Add(p.Total)
	}

	statuses := core.PaymentStatuses()
	rows := make([]core.AggregateRow, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, core.AggregateRow{Key: s.String(), Count: counts[s], Amount: totals[s]})
	}
	return rows
}
