package services

import (
	"strings"

	"tablero/internal/core"
)

// Reshape turns the rows of a wide export into one fact per (row, month with activity).
//
// Months are visited in the order given, which callers keep in calendar order. A
// blank cell emits nothing. A cell that does not parse emits nothing and is counted
// in the report. When the export carries attendance columns, a marked attendance
// with no amount still yields an "attended, did not pay" fact. A year that cannot
// be dated keeps the fact with a null date.
func Reshape(rows []core.RawMonthlyRecord, year int, venue string, months []core.Month) ([]core.Fact, core.LoadReport) {
	report := core.LoadReport{Rows: len(rows)}
	group := core.GroupLabel(venue, year)
	facts := make([]core.Fact, 0, len(rows))

	for _, row := range rows {
		category := core.NormalizeCategory(row.Category)
		if category == core.OtherCategory && strings.TrimSpace(row.Category) == "" {
			report.Defaulted++
		}
		entity := core.EntityKey(row.Entity, group, row.Line)

		for _, m := range months {
			if !m.Valid() {
				continue
			}
			cell := row.Cells[m-1]
			amount, attended, ok := reconcileCell(cell)
			if !ok {
				if !core.IsBlank(cell.Value) {
					report.SkippedCells++
				}
				continue
			}

			date := core.FirstOfMonth(year, m)
			if date.IsEmpty() {
				report.NullDates++
			}
			facts = append(facts, core.Fact{
				Kind:         core.KindMonthlyPayment,
				Group:        group,
				Venue:        strings.TrimSpace(venue),
				Entity:       entity,
				Category:     category,
				Year:         year,
				Month:        m,
				Amount:       amount.OrZero(),
				Participated: amount.Positive(),
				Attended:     attended,
				Date:         date,
			})
		}
	}
	return facts, report
}

// reconcileCell folds the amount cell and the optional attendance cell of one month
// into a single observation. ok is false when the month had no activity.
func reconcileCell(cell core.MonthCell) (amount core.Amount, attended bool, ok bool) {
	mark, hasMark := attendanceMark(cell.Attended)

	if core.IsBlank(cell.Value) {
		if hasMark && mark {
			return core.Amount{}, true, true
		}
		return core.Amount{}, false, false
	}

	amount = core.ParseAmount(cell.Value)
	if !amount.Valid {
		if hasMark && mark {
			return core.Amount{}, true, true
		}
		return core.Amount{}, false, false
	}

	switch {
	case amount.Positive():
		attended = true
	case hasMark:
		attended = mark
	default:
		attended = true
	}
	return amount, attended, true
}

// attendanceMark reads an attendance cell. known is false for a blank cell.
func attendanceMark(s string) (present bool, known bool) {
	switch core.FoldKey(s) {
	case "":
		return false, false
	case "X", "SI", "S", "1", "ASISTIO", "A", "P", "PRESENTE":
		return true, true
	default:
		return false, true
	}
}
