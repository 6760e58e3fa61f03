package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/core"
)

func fact(group, entity string, amount int64, date core.Date) core.Fact {
	a := decimal.NewFromInt(amount)
	return core.Fact{
		Group:        group,
		Entity:       entity,
		Amount:       a,
		Participated: a.IsPositive(),
		Date:         date,
	}
}

func byGroup(f core.Fact) string { return f.Group }

func keys(rows []core.AggregateRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}

func TestRepresentativeDate(t *testing.T) {
	jan := core.NewDate(2024, 1, 1)
	feb := core.NewDate(2024, 2, 1)
	mar := core.NewDate(2024, 3, 1)

	cases := []struct {
		name  string
		dates []core.Date
		want  core.Date
	}{
		{"mode", []core.Date{feb, jan, jan}, jan},
		{"mode later than earliest", []core.Date{jan, mar, mar}, mar},
		{"no repeat falls back to earliest", []core.Date{feb, jan}, jan},
		{"tied modes fall back to earliest", []core.Date{mar, mar, feb, feb}, feb},
		{"nulls ignored", []core.Date{{}, {}, {}, feb}, feb},
		{"all null", []core.Date{{}, {}}, core.Date{}},
		{"empty", nil, core.Date{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RepresentativeDate(tc.dates)
			assert.True(t, tc.want.Equal(got.Time), "want %s got %s", tc.want, got)
			assert.Equal(t, tc.want.IsEmpty(), got.IsEmpty())
		})
	}
}

func TestAggregateByCountsAndSums(t *testing.T) {
	jan := core.NewDate(2024, 1, 1)
	facts := []core.Fact{
		fact("B", "x", 10, jan),
		fact("A", "x", 5, jan),
		fact("B", "y", 0, jan),
	}

	rows := AggregateBy(facts, byGroup, AggregateOptions{})

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"A", "B"}, keys(rows))
	assert.Equal(t, 2, rows[1].Count)
	assert.True(t, decimal.NewFromInt(10).Equal(rows[1].Amount))
}

func TestAggregateByDistinctParticipants(t *testing.T) {
	jan := core.NewDate(2024, 1, 1)
	feb := core.NewDate(2024, 2, 1)
	facts := []core.Fact{
		fact("Manchay 2024", "ANA", 20, jan),
		fact("Manchay 2024", "ANA", 20, feb),
		fact("Manchay 2024", "LUIS", 0, jan),
		fact("Plaza 2024", "ANA", 15, feb),
	}

	paying := AggregateBy(facts, byGroup, AggregateOptions{Mode: CountDistinct, Include: PayingParticipant})
	require.Len(t, paying, 2)
	assert.Equal(t, 1, paying[0].Count)
	assert.True(t, decimal.NewFromInt(40).Equal(paying[0].Amount))
	assert.Equal(t, 1, paying[1].Count)

	anyone := AggregateBy(facts, byGroup, AggregateOptions{Mode: CountDistinct})
	assert.Equal(t, 2, anyone[0].Count)

	raw := AggregateBy(facts, byGroup, AggregateOptions{})
	assert.Equal(t, 3, raw[0].Count)
}

func TestSortRows(t *testing.T) {
	jan := core.NewDate(2024, 1, 1)
	mar := core.NewDate(2024, 3, 1)
	base := []core.AggregateRow{
		{Key: "Delta", Count: 2, Amount: decimal.NewFromInt(1), Date: mar},
		{Key: "Alpha", Count: 2, Amount: decimal.NewFromInt(9)},
		{Key: "Charlie", Count: 5, Amount: decimal.NewFromInt(3), Date: jan},
		{Key: "Bravo", Count: 1, Amount: decimal.NewFromInt(3), Date: mar},
	}

	cases := []struct {
		name   string
		order  SortOrder
		metric Metric
		want   []string
	}{
		{"ascending count", SortAscending, MetricCount, []string{"Bravo", "Alpha", "Delta", "Charlie"}},
		{"descending count", SortDescending, MetricCount, []string{"Charlie", "Alpha", "Delta", "Bravo"}},
		{"descending amount", SortDescending, MetricAmount, []string{"Alpha", "Bravo", "Charlie", "Delta"}},
		{"chronological", SortChronological, MetricCount, []string{"Charlie", "Bravo", "Delta", "Alpha"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows := append([]core.AggregateRow(nil), base...)
			SortRows(rows, tc.order, tc.metric)
			assert.Equal(t, tc.want, keys(rows))
		})
	}
}

func TestSortRowsChronologicalUndatedLast(t *testing.T) {
	rows := AggregateBy([]core.Fact{
		fact("Z", "a", 1, core.NewDate(2023, 5, 1)),
		fact("A", "a", 1, core.Date{}),
		fact("B", "a", 1, core.Date{}),
	}, byGroup, AggregateOptions{})

	SortRows(rows, SortChronological, MetricCount)

	assert.Equal(t, []string{"Z", "A", "B"}, keys(rows))
	assert.True(t, rows[1].Date.IsEmpty())
}

func TestParseSortOrder(t *testing.T) {
	assert.Equal(t, SortAscending, ParseSortOrder(""))
	assert.Equal(t, SortAscending, ParseSortOrder("bogus"))
	assert.Equal(t, SortDescending, ParseSortOrder(" DESC "))
	assert.Equal(t, SortChronological, ParseSortOrder("date"))
	assert.Equal(t, SortChronological, ParseSortOrder("fecha"))
}

func TestTopN(t *testing.T) {
	rows := []core.AggregateRow{{Key: "a", Count: 1}, {Key: "b", Count: 3}, {Key: "c", Count: 2}}

	top := TopN(rows, 2)

	assert.Equal(t, []string{"b", "c"}, keys(top))
	assert.Equal(t, "a", rows[0].Key)
	assert.Len(t, TopN(rows, 0), 3)
}

func TestMonthKeyAndLabel(t *testing.T) {
	f := core.Fact{Date: core.NewDate(2024, 3, 9)}
	assert.Equal(t, "2024-03", MonthKey(f))
	assert.Equal(t, "", MonthKey(core.Fact{}))
	assert.Equal(t, "Mar 2024", MonthLabel("2024-03"))
	assert.Equal(t, "Sep 2023", MonthLabel("2023-09"))
	assert.Equal(t, "", MonthLabel(""))
}
