package services

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/sync/singleflight"

	"tablero/internal/core"
	applog "tablero/internal/log"
	"tablero/internal/sheets"
)

// ApplicationReport is the PACHAMBEAR dashboard.
type ApplicationReport struct {
	Total         int
	Categories    int
	From, To      core.Date
	ByCategory    []core.AggregateRow
	ByCertificate []core.AggregateRow
	MonthlyTrend  []core.AggregateRow // keyed by MonthKey, chronological
	Applications  []core.Application
	Load          core.LoadReport
}

// ApplicationService builds the PACHAMBEAR report from its export.
type ApplicationService struct {
	reader sheets.ApplicationReader
	log    *applog.StructuredLogger
	loads  singleflight.Group
}

func NewApplicationService(reader sheets.ApplicationReader, logger *applog.Logger) *ApplicationService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ApplicationService{reader: reader, log: applog.NewStructuredLogger(logger)}
}

type applicationLoad struct {
	apps   []core.Application
	report core.LoadReport
}

// Report re-reads the export and aggregates it. A missing export yields
// core.ErrNoData.
func (s *ApplicationService) Report(ctx context.Context) (ApplicationReport, error) {
	load, err := sharedLoad(ctx, &s.loads, "applications", func(ctx context.Context) (applicationLoad, error) {
		apps, report, err := s.reader.ListApplications(ctx)
		if err != nil {
			return applicationLoad{}, err
		}
		s.log.LogLoad(ctx, "pachambear", 0, "", report)
		return applicationLoad{apps: apps, report: report}, nil
	})
	if err != nil {
		return ApplicationReport{}, fmt.Errorf("load applications: %w", err)
	}
	if len(load.apps) == 0 {
		return ApplicationReport{Load: load.report}, core.ErrNoData
	}
	return BuildApplicationReport(load.apps, load.report), nil
}

// BuildApplicationReport aggregates already loaded applications.
func BuildApplicationReport(apps []core.Application, load core.LoadReport) ApplicationReport {
	facts := ApplicationFacts(apps)
	r := ApplicationReport{
		Total:        len(apps),
		Applications: apps,
		Load:         load,
	}

	for _, f := range facts {
		if f.Date.IsEmpty() {
			continue
		}
		if r.From.IsEmpty() || f.Date.Before(r.From.Time) {
			r.From = f.Date
		}
		if r.To.IsEmpty() || f.Date.After(r.To.Time) {
			r.To = f.Date
		}
	}

	r.ByCategory = AggregateBy(facts, func(f core.Fact) string { return f.Category }, AggregateOptions{})
	SortRows(r.ByCategory, SortDescending, MetricCount)
	r.Categories = len(r.ByCategory)

	r.ByCertificate = AggregateBy(facts, func(f core.Fact) string { return f.Status }, AggregateOptions{})
	SortRows(r.ByCertificate, SortDescending, MetricCount)

	r.MonthlyTrend = AggregateBy(dated(facts), MonthKey, AggregateOptions{})
	SortRows(r.MonthlyTrend, SortChronological, MetricCount)
	return r
}

// ApplicationFacts turns applications into facts grouped by category.
func ApplicationFacts(apps []core.Application) []core.Fact {
	out := make([]core.Fact, 0, len(apps))
	for _, a := range apps {
		year := 0
		if !a.Date.IsEmpty() {
			year = a.Date.Year()
		}
		out = append(out, core.Fact{
			Kind:     core.KindApplication,
			Group:    a.Category,
			Entity:   "fila " + strconv.Itoa(a.Line),
			Category: a.Category,
			Status:   a.Certificate,
			Year:     year,
			Month:    a.Date.Month(),
			Date:     a.Date,
		})
	}
	return out
}

func dated(facts []core.Fact) []core.Fact {
	out := make([]core.Fact, 0, len(facts))
	for _, f := range facts {
		if !f.Date.IsEmpty() {
			out = append(out, f)
		}
	}
	return out
}
