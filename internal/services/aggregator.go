package services

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"tablero/internal/core"
)

// CountMode selects how AggregateBy counts the facts of a group.
type CountMode int

const (
	// CountFacts counts every included fact.
	CountFacts CountMode = iota
	// CountDistinct counts each (group, entity) pair once.
	CountDistinct
)

// SortOrder is one of the three orderings offered by the dashboards.
type SortOrder string

const (
	SortAscending     SortOrder = "asc"
	SortDescending    SortOrder = "desc"
	SortChronological SortOrder = "date"
)

// Metric selects the value ascending/descending orders compare.
type Metric int

const (
	MetricCount Metric = iota
	MetricAmount
)

// AggregateOptions tunes AggregateBy.
type AggregateOptions struct {
	Mode CountMode
	// Include restricts which facts are counted. Amounts and dates always use
	// every fact of the group. nil counts all facts.
	Include func(core.Fact) bool
}

// PayingParticipant counts only facts with a positive amount.
func PayingParticipant(f core.Fact) bool {
	return f.Participated
}

// ParseSortOrder maps a query value to a SortOrder, defaulting to ascending.
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortDescending:
		return SortDescending
	case SortChronological, "fecha", "chrono":
		return SortChronological
	default:
		return SortAscending
	}
}

// AggregateBy groups facts by key and computes count, summed amount and the
// representative date of each group. Rows come back ordered by key.
func AggregateBy(facts []core.Fact, key func(core.Fact) string, opts AggregateOptions) []core.AggregateRow {
	type bucket struct {
		row   core.AggregateRow
		dates []core.Date
		seen  map[string]struct{}
	}
	buckets := make(map[string]*bucket)

	for _, f := range facts {
		k := key(f)
		b, ok := buckets[k]
		if !ok {
			b = &bucket{row: core.AggregateRow{Key: k, Amount: decimal.Zero}}
			buckets[k] = b
		}
		b.row.Amount = b.row.Amount.Add(f.Amount)
		b.dates = append(b.dates, f.Date)

		if opts.Include != nil && !opts.Include(f) {
			continue
		}
		switch opts.Mode {
		case CountDistinct:
			if b.seen == nil {
				b.seen = make(map[string]struct{})
			}
			if _, dup := b.seen[f.Entity]; dup {
				continue
			}
			b.seen[f.Entity] = struct{}{}
			b.row.Count++
		default:
			b.row.Count++
		}
	}

	rows := make([]core.AggregateRow, 0, len(buckets))
	for _, b := range buckets {
		b.row.Date = RepresentativeDate(b.dates)
		rows = append(rows, b.row)
	}
	slices.SortFunc(rows, func(a, b core.AggregateRow) int { return strings.Compare(a.Key, b.Key) })
	return rows
}

// RepresentativeDate returns the most frequent non-null date. When no date repeats,
// or several dates share the highest frequency, it falls back to the earliest
// non-null date. It returns the null date when there is none.
func RepresentativeDate(dates []core.Date) core.Date {
	counts := make(map[int64]int)
	byDay := make(map[int64]core.Date)
	var earliest core.Date
	for _, d := range dates {
		if d.IsEmpty() {
			continue
		}
		day := d.Unix()
		counts[day]++
		byDay[day] = d
		if earliest.IsEmpty() || d.Before(earliest.Time) {
			earliest = d
		}
	}
	if len(counts) == 0 {
		return core.Date{}
	}

	var mode int64
	best, ties := 0, 0
	for day, n := range counts {
		switch {
		case n > best:
			mode, best, ties = day, n, 1
		case n == best:
			ties++
		}
	}
	if best > 1 && ties == 1 {
		return byDay[mode]
	}
	return earliest
}

// SortRows orders rows in place. Every order breaks ties by key so output is
// deterministic. Chronological order puts undated groups last.
func SortRows(rows []core.AggregateRow, order SortOrder, metric Metric) {
	byKey := func(a, b core.AggregateRow) int { return strings.Compare(a.Key, b.Key) }
	byMetric := func(a, b core.AggregateRow) int {
		if metric == MetricAmount {
			return a.Amount.Cmp(b.Amount)
		}
		return cmp.Compare(a.Count, b.Count)
	}

	switch order {
	case SortDescending:
		slices.SortStableFunc(rows, func(a, b core.AggregateRow) int {
			if c := byMetric(b, a); c != 0 {
				return c
			}
			return byKey(a, b)
		})
	case SortChronological:
		slices.SortStableFunc(rows, func(a, b core.AggregateRow) int {
			switch {
			case a.Date.IsEmpty() && b.Date.IsEmpty():
				return byKey(a, b)
			case a.Date.IsEmpty():
				return 1
			case b.Date.IsEmpty():
				return -1
			}
			if c := a.Date.Compare(b.Date.Time); c != 0 {
				return c
			}
			return byKey(a, b)
		})
	default:
		slices.SortStableFunc(rows, func(a, b core.AggregateRow) int {
			if c := byMetric(a, b); c != 0 {
				return c
			}
			return byKey(a, b)
		})
	}
}

// TopN keeps the n rows with the highest count.
func TopN(rows []core.AggregateRow, n int) []core.AggregateRow {
	out := slices.Clone(rows)
	SortRows(out, SortDescending, MetricCount)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// MonthKey groups dated facts by calendar month ("2024-03"). Undated facts share
// the empty key.
func MonthKey(f core.Fact) string {
	if f.Date.IsEmpty() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", f.Date.Year(), int(f.Date.Month()))
}

// MonthLabel renders a MonthKey as "Mar 2024".
func MonthLabel(key string) string {
	var year, month int
	if _, err := fmt.Sscanf(key, "%d-%d", &year, &month); err != nil {
		return key
	}
	return core.Month(month).Short() + " " + fmt.Sprint(year)
}
