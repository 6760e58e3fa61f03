package memory

import (
	"context"
	"strconv"
	"sync"

	"tablero/internal/core"
	ports "tablero/internal/sheets"
)

// Ensure interface conformance
var (
	_ ports.ApplicationReader  = (*Store)(nil)
	_ ports.RegistrationReader = (*Store)(nil)
	_ ports.MonthlyReader      = (*Store)(nil)
)

// Store keeps parsed exports in memory. Datasets that were never added read as
// core.ErrNoData, like a missing file.
type Store struct {
	mu            sync.Mutex
	applications  []core.Application
	hasApps       bool
	registrations map[int][]core.Fact
	monthly       map[string]core.MonthlySheet
	failures      map[string]error
}

func New() *Store {
	return &Store{
		registrations: make(map[int][]core.Fact),
		monthly:       make(map[string]core.MonthlySheet),
		failures:      make(map[string]error),
	}
}

func monthlyKey(slug string, year int) string {
	return slug + "/" + strconv.Itoa(year)
}

// SetApplications replaces the PACHAMBEAR dataset.
func (s *Store) SetApplications(apps []core.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applications = append([]core.Application(nil), apps...)
	s.hasApps = true
}

// AddRegistrations appends registration facts for a year.
func (s *Store) AddRegistrations(year int, facts ...core.Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations[year] = append(s.registrations[year], facts...)
}

// SetMonthlySheet stores the wide export of sheet.Venue for sheet.Year.
func (s *Store) SetMonthlySheet(sheet core.MonthlySheet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monthly[monthlyKey(sheet.Venue.Slug, sheet.Year)] = sheet
}

// Fail makes every read of dataset return err. Dataset names are "applications",
// "registrations/<year>" and "monthly/<slug>/<year>".
func (s *Store) Fail(dataset string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[dataset] = err
}

func (s *Store) ListApplications(_ context.Context) ([]core.Application, core.LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report := core.LoadReport{Source: "memory:applications"}
	if err := s.failures["applications"]; err != nil {
		return nil, report, err
	}
	if !s.hasApps {
		return nil, report, core.ErrNoData
	}
	report.Rows = len(s.applications)
	return append([]core.Application(nil), s.applications...), report, nil
}

func (s *Store) ListRegistrations(_ context.Context, year int) ([]core.Fact, core.LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := "registrations/" + strconv.Itoa(year)
	report := core.LoadReport{Source: "memory:" + name}
	if err := s.failures[name]; err != nil {
		return nil, report, err
	}
	facts, ok := s.registrations[year]
	if !ok {
		return nil, report, core.ErrNoData
	}
	report.Rows = len(facts)
	return append([]core.Fact(nil), facts...), report, nil
}

func (s *Store) ReadMonthlySheet(_ context.Context, venue core.Venue, year int) (core.MonthlySheet, core.LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := monthlyKey(venue.Slug, year)
	report := core.LoadReport{Source: "memory:monthly/" + key}
	if err := s.failures["monthly/"+key]; err != nil {
		return core.MonthlySheet{Venue: venue, Year: year}, report, err
	}
	sheet, ok := s.monthly[key]
	if !ok {
		return core.MonthlySheet{Venue: venue, Year: year}, report, core.ErrNoData
	}
	report.Rows = len(sheet.Rows)
	return sheet, report, nil
}
