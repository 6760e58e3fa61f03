package core

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// OtherCategory is the sentinel category for rows with a blank trade/sector.
	OtherCategory = "OTHERS"
	// ApplicationOtherCategory is the PACHAMBEAR default; that export keeps mixed-case labels.
	ApplicationOtherCategory = "Otros"
	// UnknownCertificate is used when an application carries no CUL status.
	UnknownCertificate = "Sin estado"
)

const (
	KindApplication    FactKind = "application"
	KindRegistration   FactKind = "registration"
	KindMonthlyPayment FactKind = "monthly_payment"
)

type (
	FactKind string

	// Date is a calendar day. The zero value means "no date".
	Date struct {
		time.Time
	}

	// MonthCell is one raw month value of a wide export, before parsing.
	MonthCell struct {
		Value    string
		Present  bool   // the column exists in the source
		Attended string // raw attendance mark, when the source carries one
	}

	// RawMonthlyRecord is one row of a wide per-entity export.
	RawMonthlyRecord struct {
		Line     int
		Entity   string
		Category string
		Cells    [12]MonthCell
	}

	// MonthlySheet is a whole wide export for one venue and year.
	MonthlySheet struct {
		Venue   Venue
		Year    int
		Periods []Month // month columns present in the header, calendar order
		Rows    []RawMonthlyRecord
	}

	// Fact is a normalized observation shared by every dataset: one registration row,
	// or one (entity, month) with activity in a wide export.
	Fact struct {
		Kind         FactKind
		Group        string
		Venue        string
		Entity       string
		Category     string
		Status       string
		Year         int
		Month        Month
		Amount       decimal.Decimal
		Participated bool // amount > 0
		Attended     bool
		Date         Date
	}

	// Application is one PACHAMBEAR job-placement request.
	Application struct {
		Line        int
		Date        Date
		Category    string
		Certificate string
		Attributes  map[string]string
	}

	// Venue is a fair location (sede) from the venue catalog.
	Venue struct {
		Slug    string
		Label   string
		Aliases []string
		Monthly bool // publishes a wide monthly-payment export
	}
)

var (
	ErrNoData         = errors.New("no data for selection")
	ErrInvalidCSV     = errors.New("invalid csv")
	ErrMissingColumn  = errors.New("missing required column")
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrUnknownVenue   = errors.New("unknown venue")
	ErrInvalidYear    = errors.New("invalid year")
	ErrInvalidMonth   = errors.New("invalid month")
)

// NewDate creates a Date from year, month, day. It returns the zero Date when the
// combination does not exist on the calendar (time.Date would silently normalize it).
func NewDate(year, month, day int) Date {
	if year < 1 || month < 1 || month > 12 || day < 1 {
		return Date{}
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return Date{}
	}
	return Date{Time: t}
}

// FirstOfMonth is the date synthesized for a wide-export period.
func FirstOfMonth(year int, m Month) Date {
	if !m.Valid() {
		return Date{}
	}
	return NewDate(year, int(m), 1)
}

// ParseDayFirst parses DD/MM/YYYY (also D/M/YYYY, dashes, and an optional time suffix).
func ParseDayFirst(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "-", "/")
	for _, layout := range []string{"2/1/2006", "02/01/2006", "2/1/06", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t}, true
		}
	}
	return Date{}, false
}

// IsEmpty returns true if the date is the null date.
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// Month returns the lexicon month of the date.
func (d Date) Month() Month {
	if d.IsZero() {
		return 0
	}
	return Month(d.Time.Month())
}

// String formats the date day-first, as the exports do.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("02/01/2006")
}

// NormalizeCategory trims and upper-cases a trade label, defaulting to OtherCategory.
func NormalizeCategory(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return OtherCategory
	}
	return s
}

// EntityKey identifies a participant by name. Rows without a name are kept apart
// by their source and file line, so anonymous rows of different files, years or
// datasets are never merged.
func EntityKey(name, source string, line int) string {
	if name = strings.Join(strings.Fields(name), " "); name != "" {
		return strings.ToUpper(name)
	}
	if source = strings.TrimSpace(source); source != "" {
		return "Sin nombre (" + source + ", fila " + strconv.Itoa(line) + ")"
	}
	return "Sin nombre (fila " + strconv.Itoa(line) + ")"
}

// RegistrationSource names the registrations export of a year for EntityKey.
func RegistrationSource(year int) string {
	return "ferias " + strconv.Itoa(year)
}

// GroupLabel is the fixed "<Venue> <Year>" template used for wide-export facts.
func GroupLabel(venue string, year int) string {
	if year <= 0 {
		return strings.TrimSpace(venue)
	}
	return strings.TrimSpace(venue) + " " + strconv.Itoa(year)
}

// Validate checks the venue carries both a slug and a label.
func (v Venue) Validate() error {
	if strings.TrimSpace(v.Slug) == "" {
		return errors.New("venue slug cannot be empty")
	}
	if strings.TrimSpace(v.Label) == "" {
		return errors.New("venue label cannot be empty")
	}
	return nil
}

// Matches reports whether a free-text fair name refers to this venue.
func (v Venue) Matches(name string) bool {
	key := FoldKey(name)
	if key == "" {
		return false
	}
	for _, candidate := range append([]string{v.Slug, v.Label}, v.Aliases...) {
		c := FoldKey(candidate)
		if c != "" && strings.Contains(key, c) {
			return true
		}
	}
	return false
}

// PeriodCount is the classifier denominator for the sheet.
func (s MonthlySheet) PeriodCount(fixed bool) int {
	if fixed {
		return 12
	}
	return len(s.Periods)
}
