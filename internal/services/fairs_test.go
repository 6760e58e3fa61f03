package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/core"
	"tablero/internal/sheets"
	"tablero/internal/sheets/memory"
)

var (
	testManchay = core.Venue{Slug: "manchay", Label: "Manchay", Aliases: []string{"Feria Manchay"}, Monthly: true}
	testPlaza   = core.Venue{Slug: "plaza", Label: "Plaza Norte"}
)

func registration(fair, entity, category string, amount int64, date core.Date, year int) core.Fact {
	a := decimal.NewFromInt(amount)
	return core.Fact{
		Kind:         core.KindRegistration,
		Group:        fair,
		Venue:        fair,
		Entity:       entity,
		Category:     category,
		Year:         year,
		Month:        date.Month(),
		Amount:       a,
		Participated: a.IsPositive(),
		Attended:     true,
		Date:         date,
	}
}

func fairStore() *memory.Store {
	store := memory.New()
	store.AddRegistrations(2023,
		registration("Feria Plaza Norte", "ANA", "COMIDA", 30, core.NewDate(2023, 5, 2), 2023),
		registration("Feria Plaza Norte", "LUIS", "ROPA", 20, core.NewDate(2023, 5, 2), 2023),
	)
	store.AddRegistrations(2024,
		registration("Feria Plaza Norte", "ANA", "COMIDA", 30, core.NewDate(2024, 2, 1), 2024),
		registration("Feria Manchay", "RITA", "ROPA", 0, core.Date{}, 2024),
	)
	store.SetMonthlySheet(core.MonthlySheet{
		Venue:   testManchay,
		Year:    2024,
		Periods: []core.Month{1, 2, 3},
		Rows: []core.RawMonthlyRecord{
			wideRow(2, "Pedro", "abarrotes", map[core.Month]string{1: "10", 2: "10", 3: "15"}),
			wideRow(3, "Juana", "ropa", map[core.Month]string{1: "0", 2: "", 3: "x"}),
		},
	})
	return store
}

func newFairService(store *memory.Store) *FairService {
	return NewFairService(store, store, FairOptions{
		Years:  []int{2024, 2023, 2025, 2024},
		Venues: []core.Venue{testManchay, testPlaza},
	})
}

func TestFairServiceYears(t *testing.T) {
	svc := newFairService(memory.New())
	assert.Equal(t, []int{2023, 2024, 2025}, svc.Years())
}

func TestFairReportSingleYear(t *testing.T) {
	svc := newFairService(fairStore())

	r, err := svc.Report(context.Background(), Selection{Year: 2024, Sort: SortDescending})

	require.NoError(t, err)
	assert.Equal(t, []int{2024}, r.Years)
	assert.Equal(t, 3, r.Fairs)
	// ANA and RITA register; PEDRO pays; JUANA never pays.
	assert.Equal(t, 3, r.Participants)
	assert.True(t, decimal.NewFromInt(65).Equal(r.Revenue))
	assert.Equal(t, []string{"Feria Manchay", "Feria Plaza Norte", "Manchay 2024"}, keys(r.ParticipantsByFair))
	assert.Equal(t, "Manchay 2024", r.RevenueByFair[0].Key)
	assert.Nil(t, r.ParticipantsByYear)

	require.Len(t, r.Payments, 2)
	assert.Equal(t, "PEDRO", r.Payments[0].Entity)
	assert.Equal(t, core.PaidAll, r.Payments[0].Status)
	assert.Equal(t, core.NoPayment, r.Payments[1].Status)
	require.Len(t, r.StatusDistribution, 5)
	assert.Equal(t, 1, r.StatusDistribution[0].Count)
	assert.Equal(t, 1, r.Load.SkippedCells)
}

func TestFairReportHistorical(t *testing.T) {
	svc := newFairService(fairStore())

	r, err := svc.Report(context.Background(), Selection{Year: HistoricalYear})

	require.NoError(t, err)
	assert.Equal(t, []int{2023, 2024, 2025}, r.Years)
	require.Len(t, r.ParticipantsByYear, 2)
	assert.Equal(t, "2023", r.ParticipantsByYear[0].Key)
	assert.Equal(t, 2, r.ParticipantsByYear[0].Count)
	assert.Equal(t, 3, r.ParticipantsByYear[1].Count)
	assert.Equal(t, "2023-05", r.MonthlyTrend[0].Key)
}

func TestFairReportVenueFilter(t *testing.T) {
	svc := newFairService(fairStore())

	r, err := svc.Report(context.Background(), Selection{Year: 2024, Venue: "MANCHAY"})

	require.NoError(t, err)
	assert.Equal(t, []string{"Feria Manchay", "Manchay 2024"}, keys(r.ParticipantsByFair))
}

func TestFairReportErrors(t *testing.T) {
	svc := newFairService(fairStore())
	ctx := context.Background()

	_, err := svc.Report(ctx, Selection{Year: 2019})
	assert.ErrorIs(t, err, core.ErrInvalidYear)

	_, err = svc.Report(ctx, Selection{Year: 2024, Venue: "nowhere"})
	assert.ErrorIs(t, err, core.ErrUnknownVenue)

	_, err = svc.Report(ctx, Selection{Year: 2025})
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestFairReportStructuralErrorPropagates(t *testing.T) {
	store := fairStore()
	store.Fail("monthly/manchay/2024", core.ErrInvalidCSV)
	svc := newFairService(store)

	_, err := svc.Report(context.Background(), Selection{Year: HistoricalYear})

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidCSV)
	assert.False(t, errors.Is(err, core.ErrNoData))
}

func TestFairReportConcurrentCallers(t *testing.T) {
	svc := newFairService(fairStore())

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.Report(context.Background(), Selection{Year: 2024})
			if err == nil {
				results[i] = r.Participants
			}
		}()
	}
	wg.Wait()

	for _, n := range results {
		assert.Equal(t, 3, n)
	}
}

func TestBuildFairReportSortModes(t *testing.T) {
	facts := []core.Fact{
		registration("B", "x", "ROPA", 50, core.NewDate(2024, 1, 1), 2024),
		registration("A", "x", "ROPA", 5, core.NewDate(2024, 3, 1), 2024),
		registration("A", "y", "COMIDA", 5, core.NewDate(2024, 3, 1), 2024),
		registration("C", "z", "COMIDA", 1, core.Date{}, 2024),
	}

	asc := BuildFairReport(facts, nil, Selection{Year: 2024, Sort: SortAscending})
	assert.Equal(t, []string{"B", "C", "A"}, keys(asc.ParticipantsByFair))
	assert.Equal(t, []string{"C", "A", "B"}, keys(asc.RevenueByFair))

	desc := BuildFairReport(facts, nil, Selection{Year: 2024, Sort: SortDescending})
	assert.Equal(t, []string{"A", "B", "C"}, keys(desc.ParticipantsByFair))
	assert.Equal(t, []string{"B", "A", "C"}, keys(desc.RevenueByFair))

	chrono := BuildFairReport(facts, nil, Selection{Year: 2024, Sort: SortChronological})
	assert.Equal(t, []string{"B", "A", "C"}, keys(chrono.ParticipantsByFair))

	assert.Equal(t, []string{"COMIDA", "ROPA"}, keys(asc.TopCategories))
	assert.Nil(t, asc.Payments)
	assert.Nil(t, asc.StatusDistribution)
}

func TestFairReportHistoricalKeepsAnonymousRowsApart(t *testing.T) {
	rows := [][]string{
		{"FERIA", "MACRO_CATEGORIA", "MONTO", "INGRESO", "NOMBRE"},
		{"Feria Manchay", "Comida", "10", "05/03/2023", ""},
		{"Feria Manchay", "Ropa", "10", "05/03/2023", ""},
		{"Feria Manchay", "Comida", "10", "05/03/2023", ""},
	}
	store := memory.New()
	for _, year := range []int{2023, 2024} {
		facts, _, err := sheets.ParseRegistrations(rows, year)
		require.NoError(t, err)
		store.AddRegistrations(year, facts...)
	}
	store.SetMonthlySheet(core.MonthlySheet{
		Venue:   testManchay,
		Year:    2024,
		Periods: []core.Month{1},
		Rows:    []core.RawMonthlyRecord{wideRow(2, "", "abarrotes", map[core.Month]string{1: "5"})},
	})
	svc := newFairService(store)

	r, err := svc.Report(context.Background(), Selection{Year: HistoricalYear})

	require.NoError(t, err)
	assert.Equal(t, 7, r.Participants)
	byFair := make(map[string]int)
	for _, row := range r.ParticipantsByFair {
		byFair[row.Key] = row.Count
	}
	assert.Equal(t, 6, byFair["Feria Manchay"])
	assert.Equal(t, 1, byFair["Manchay 2024"])
	require.Len(t, r.ParticipantsByYear, 2)
	assert.Equal(t, 3, r.ParticipantsByYear[0].Count)
	assert.Equal(t, 4, r.ParticipantsByYear[1].Count)
	require.Len(t, r.Payments, 1)
	assert.Equal(t, "Sin nombre (Manchay 2024, fila 2)", r.Payments[0].Entity)
}

// blockingRegistrations holds every read until release is closed or the read's
// context ends.
type blockingRegistrations struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingRegistrations) ListRegistrations(ctx context.Context, year int) ([]core.Fact, core.LoadReport, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, core.LoadReport{}, ctx.Err()
	}
	f := registration("Feria Manchay", "ANA", "COMIDA", 10, core.NewDate(year, 3, 5), year)
	return []core.Fact{f}, core.LoadReport{Rows: 1}, nil
}

func TestFairReportSharedLoadSurvivesCancelledCaller(t *testing.T) {
	reader := &blockingRegistrations{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewFairService(reader, nil, FairOptions{Years: []int{2024}})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Report(ctxA, Selection{Year: 2024})
		errA <- err
	}()
	<-reader.entered

	type result struct {
		report FairReport
		err    error
	}
	resB := make(chan result, 1)
	go func() {
		r, err := svc.Report(context.Background(), Selection{Year: 2024})
		resB <- result{r, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(reader.release)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, 1, b.report.Participants)
}

func TestBuildFairReportTopCategoriesCountRows(t *testing.T) {
	facts := []core.Fact{
		registration("A", "ANA", "ROPA", 10, core.NewDate(2024, 1, 1), 2024),
		registration("A", "ANA", "ROPA", 10, core.NewDate(2024, 2, 1), 2024),
		registration("B", "ANA", "ROPA", 0, core.NewDate(2024, 3, 1), 2024),
		registration("A", "LUIS", "COMIDA", 10, core.NewDate(2024, 1, 1), 2024),
		registration("B", "RITA", "COMIDA", 10, core.NewDate(2024, 1, 1), 2024),
	}

	r := BuildFairReport(facts, nil, Selection{Year: 2024, Sort: SortAscending})

	require.Len(t, r.TopCategories, 2)
	assert.Equal(t, "ROPA", r.TopCategories[0].Key)
	assert.Equal(t, 3, r.TopCategories[0].Count)
	assert.Equal(t, "COMIDA", r.TopCategories[1].Key)
	assert.Equal(t, 2, r.TopCategories[1].Count)
}
