package core

import "github.com/shopspring/decimal"

// AggregateRow is one group of facts after aggregation.
type AggregateRow struct {
	Key    string
	Count  int
	Amount decimal.Decimal
	Date   Date // representative date; zero when no fact in the group is dated
}

// EntityPayment is the yearly payment classification of one entity of a wide export.
type EntityPayment struct {
	Entity   string
	Category string
	Venue    string
	Year     int
	Paid     int
	Periods  int
	Total    decimal.Decimal
	Status   PaymentStatus
}

// LoadReport records per-row anomalies absorbed while loading a file.
type LoadReport struct {
	Source       string
	Rows         int
	SkippedCells int
	NullDates    int
	Defaulted    int // rows whose category fell back to the sentinel
}

// Add merges another report into r.
func (r *LoadReport) Add(o LoadReport) {
	r.Rows += o.Rows
	r.SkippedCells += o.SkippedCells
	r.NullDates += o.NullDates
	r.Defaulted += o.Defaulted
}
