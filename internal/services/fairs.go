package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"tablero/internal/core"
	applog "tablero/internal/log"
	"tablero/internal/sheets"
)

// HistoricalYear selects the union of every configured year.
const HistoricalYear = 0

// TopCategoryLimit bounds the category chart.
const TopCategoryLimit = 10

// Selection is the filter state of the fairs dashboard.
type Selection struct {
	Year  int    // HistoricalYear for the union of all years
	Venue string // venue slug, empty for every venue
	Sort  SortOrder
}

// Historical reports whether the selection spans every year.
func (s Selection) Historical() bool {
	return s.Year == HistoricalYear
}

// FairReport is the fairs dashboard for one selection.
type FairReport struct {
	Selection Selection
	Years     []int

	Fairs        int
	Participants int
	Categories   int
	Revenue      decimal.Decimal

	ParticipantsByFair []core.AggregateRow
	RevenueByFair      []core.AggregateRow
	TopCategories      []core.AggregateRow
	MonthlyTrend       []core.AggregateRow // keyed by MonthKey, chronological
	ParticipantsByYear []core.AggregateRow // historical selections only
	StatusDistribution []core.AggregateRow
	Payments           []core.EntityPayment

	Load core.LoadReport
}

// FairOptions configures a FairService.
type FairOptions struct {
	Years        []int
	Venues       []core.Venue
	FixedPeriods bool // classify against twelve months instead of the columns present
	Logger       *applog.Logger
}

// FairService builds the fairs dashboard from registration and monthly exports.
// Every call re-reads the sources; concurrent identical loads share one read.
type FairService struct {
	registrations sheets.RegistrationReader
	monthly       sheets.MonthlyReader
	years         []int
	venues        []core.Venue
	fixedPeriods  bool
	log           *applog.StructuredLogger
	loads         singleflight.Group
}

func NewFairService(registrations sheets.RegistrationReader, monthly sheets.MonthlyReader, opts FairOptions) *FairService {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	years := slices.Clone(opts.Years)
	slices.Sort(years)
	return &FairService{
		registrations: registrations,
		monthly:       monthly,
		years:         slices.Compact(years),
		venues:        slices.Clone(opts.Venues),
		fixedPeriods:  opts.FixedPeriods,
		log:           applog.NewStructuredLogger(logger),
	}
}

// Years lists the selectable years, oldest first.
func (s *FairService) Years() []int {
	return slices.Clone(s.years)
}

// Venues lists the venue catalog.
func (s *FairService) Venues() []core.Venue {
	return slices.Clone(s.venues)
}

// Venue resolves a slug against the catalog.
func (s *FairService) Venue(slug string) (core.Venue, bool) {
	for _, v := range s.venues {
		if strings.EqualFold(v.Slug, strings.TrimSpace(slug)) {
			return v, true
		}
	}
	return core.Venue{}, false
}

type fairLoad struct {
	facts    []core.Fact
	payments []core.EntityPayment
	report   core.LoadReport
}

// Report loads the selection and aggregates it. It returns core.ErrNoData when no
// source holds data for the selection.
func (s *FairService) Report(ctx context.Context, sel Selection) (FairReport, error) {
	if sel.Sort == "" {
		sel.Sort = SortAscending
	}
	years, err := s.selectedYears(sel)
	if err != nil {
		return FairReport{Selection: sel}, err
	}
	var venue *core.Venue
	if sel.Venue != "" {
		v, ok := s.Venue(sel.Venue)
		if !ok {
			return FairReport{Selection: sel}, fmt.Errorf("%w: %s", core.ErrUnknownVenue, sel.Venue)
		}
		venue = &v
	}

	key := fmt.Sprintf("%v|%s", years, strings.ToLower(sel.Venue))
	load, err := sharedLoad(ctx, &s.loads, key, func(ctx context.Context) (fairLoad, error) {
		return s.load(ctx, years, venue)
	})
	if err != nil {
		return FairReport{Selection: sel}, err
	}
	if len(load.facts) == 0 && len(load.payments) == 0 {
		return FairReport{Selection: sel, Years: years, Load: load.report}, core.ErrNoData
	}

	r := BuildFairReport(load.facts, load.payments, sel)
	r.Years = years
	r.Load = load.report
	return r, nil
}

func (s *FairService) selectedYears(sel Selection) ([]int, error) {
	if sel.Historical() {
		if len(s.years) == 0 {
			return nil, core.ErrNoData
		}
		return slices.Clone(s.years), nil
	}
	if !slices.Contains(s.years, sel.Year) {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidYear, sel.Year)
	}
	return []int{sel.Year}, nil
}

// load reads every year concurrently. Missing sources are skipped; any other
// failure aborts the whole load.
func (s *FairService) load(ctx context.Context, years []int, venue *core.Venue) (fairLoad, error) {
	results := make([]fairLoad, len(years))
	g, gctx := errgroup.WithContext(ctx)
	for i, year := range years {
		g.Go(func() error {
			res, err := s.loadYear(gctx, year, venue)
			if err != nil {
				return fmt.Errorf("year %d: %w", year, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fairLoad{}, err
	}

	var out fairLoad
	for _, res := range results {
		out.facts = append(out.facts, res.facts...)
		out.payments = append(out.payments, res.payments...)
		out.report.Add(res.report)
	}
	return out, nil
}

func (s *FairService) loadYear(ctx context.Context, year int, venue *core.Venue) (fairLoad, error) {
	var out fairLoad

	if s.registrations != nil {
		facts, report, err := s.registrations.ListRegistrations(ctx, year)
		switch {
		case errors.Is(err, core.ErrNoData):
		case err != nil:
			return out, err
		default:
			s.log.LogLoad(ctx, "ferias", year, "", report)
			out.report.Add(report)
			for _, f := range facts {
				if venue == nil || venue.Matches(f.Group) {
					out.facts = append(out.facts, f)
				}
			}
		}
	}

	if s.monthly == nil {
		return out, nil
	}
	for _, v := range s.venues {
		if !v.Monthly || (venue != nil && v.Slug != venue.Slug) {
			continue
		}
		sheet, report, err := s.monthly.ReadMonthlySheet(ctx, v, year)
		if errors.Is(err, core.ErrNoData) {
			continue
		}
		if err != nil {
			return out, err
		}
		facts, reshaped := Reshape(sheet.Rows, year, v.Label, sheet.Periods)
		report.SkippedCells += reshaped.SkippedCells
		report.NullDates += reshaped.NullDates
		report.Defaulted += reshaped.Defaulted
		s.log.LogLoad(ctx, "ferias", year, v.Slug, report)

		out.report.Add(report)
		out.facts = append(out.facts, facts...)
		out.payments = append(out.payments, ClassifyEntities(sheet, s.fixedPeriods)...)
	}
	return out, nil
}

// Participant reports whether a fact counts towards participants: any registrant
// of a fair, or a paying entity of a monthly export.
func Participant(f core.Fact) bool {
	if f.Kind == core.KindMonthlyPayment {
		return f.Participated
	}
	return true
}

// BuildFairReport aggregates already loaded facts for a selection.
func BuildFairReport(facts []core.Fact, payments []core.EntityPayment, sel Selection) FairReport {
	r := FairReport{Selection: sel, Revenue: decimal.Zero}
	byGroup := func(f core.Fact) string { return f.Group }
	participants := AggregateOptions{Mode: CountDistinct, Include: Participant}

	groups := make(map[string]struct{})
	categories := make(map[string]struct{})
	entities := make(map[string]struct{})
	for _, f := range facts {
		groups[f.Group] = struct{}{}
		categories[f.Category] = struct{}{}
		if Participant(f) {
			entities[f.Entity] = struct{}{}
		}
		r.Revenue = r.Revenue.Add(f.Amount)
	}
	r.Fairs = len(groups)
	r.Categories = len(categories)
	r.Participants = len(entities)

	r.ParticipantsByFair = AggregateBy(facts, byGroup, participants)
	SortRows(r.ParticipantsByFair, sel.Sort, MetricCount)

	r.RevenueByFair = AggregateBy(facts, byGroup, AggregateOptions{})
	SortRows(r.RevenueByFair, sel.Sort, MetricAmount)

	r.TopCategories = TopN(AggregateBy(facts, func(f core.Fact) string { return f.Category }, AggregateOptions{}), TopCategoryLimit)

	r.MonthlyTrend = AggregateBy(dated(facts), MonthKey, AggregateOptions{})
	SortRows(r.MonthlyTrend, SortChronological, MetricCount)

	if sel.Historical() {
		r.ParticipantsByYear = AggregateBy(facts, func(f core.Fact) string { return strconv.Itoa(f.Year) }, participants)
	}

	if len(payments) > 0 {
		r.Payments = payments
		r.StatusDistribution = StatusDistribution(payments)
	}
	return r
}
