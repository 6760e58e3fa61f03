package sheets

import (
	"fmt"
	"strings"

	"tablero/internal/core"
)

// Header names accepted for each logical column, compared after folding case,
// accents and underscores.
var (
	applicationDateColumns        = []string{"FECHA", "FECHA DE REGISTRO", "FECHA REGISTRO"}
	applicationCategoryColumns    = []string{"CATEGORIA"}
	applicationCertificateColumns = []string{"CUL", "ESTADO CUL"}

	fairColumns          = []string{"FERIA", "NOMBRE FERIA", "NOMBRE DE FERIA"}
	macroCategoryColumns = []string{"MACRO CATEGORIA", "MACROCATEGORIA", "CATEGORIA"}
	amountColumns        = []string{"MONTO", "IMPORTE", "PAGO"}
	admissionColumns     = []string{"INGRESO", "FECHA DE INGRESO", "FECHA INGRESO", "FECHA"}

	entityColumns = []string{
		"NOMBRE", "NOMBRES", "NOMBRE Y APELLIDOS", "APELLIDOS Y NOMBRES",
		"NOMBRES Y APELLIDOS", "RAZON SOCIAL", "COMERCIANTE", "SOCIO", "PARTICIPANTE",
	}
	tradeColumns = []string{"GIRO", "RUBRO", "MACRO CATEGORIA", "CATEGORIA"}
)

// Header maps folded column names to their index.
type Header map[string]int

// NewHeader indexes a header row. The first occurrence of a name wins.
func NewHeader(row []string) Header {
	h := make(Header, len(row))
	for i, name := range row {
		key := HeaderKey(name)
		if key == "" {
			continue
		}
		if _, dup := h[key]; !dup {
			h[key] = i
		}
	}
	return h
}

// HeaderKey folds a column name for lookups.
func HeaderKey(name string) string {
	return core.FoldKey(strings.ReplaceAll(strings.TrimPrefix(name, "\ufeff"), "_", " "))
}

// Find returns the index of the first candidate present in the header, or -1.
func (h Header) Find(candidates ...string) int {
	for _, c := range candidates {
		if i, ok := h[HeaderKey(c)]; ok {
			return i
		}
	}
	return -1
}

func missingColumn(name string) error {
	return fmt.Errorf("%w: %w: %s", core.ErrInvalidCSV, core.ErrMissingColumn, name)
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseApplications reads a PACHAMBEAR export. rows[0] is the header; line numbers
// in the result are 1-based file lines.
func ParseApplications(rows [][]string) ([]core.Application, core.LoadReport, error) {
	var report core.LoadReport
	if len(rows) == 0 {
		return nil, report, core.ErrNoData
	}
	header := rows[0]
	h := NewHeader(header)
	dateCol := h.Find(applicationDateColumns...)
	if dateCol < 0 {
		return nil, report, missingColumn("FECHA")
	}
	categoryCol := h.Find(applicationCategoryColumns...)
	certCol := h.Find(applicationCertificateColumns...)

	out := make([]core.Application, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		report.Rows++
		app := core.Application{
			Line:        i + 2,
			Category:    cell(row, categoryCol),
			Certificate: cell(row, certCol),
			Attributes:  make(map[string]string, len(header)),
		}
		if d, ok := core.ParseDayFirst(cell(row, dateCol)); ok {
			app.Date = d
		} else {
			report.NullDates++
		}
		if app.Category == "" {
			app.Category = core.ApplicationOtherCategory
			report.Defaulted++
		}
		if app.Certificate == "" {
			app.Certificate = core.UnknownCertificate
		}
		for j, name := range header {
			if j == dateCol || j == categoryCol || j == certCol {
				continue
			}
			if name = strings.TrimSpace(name); name != "" {
				app.Attributes[name] = cell(row, j)
			}
		}
		out = append(out, app)
	}
	return out, report, nil
}

// ParseRegistrations reads a one-row-per-registration fair export into facts for year.
func ParseRegistrations(rows [][]string, year int) ([]core.Fact, core.LoadReport, error) {
	var report core.LoadReport
	if len(rows) == 0 {
		return nil, report, core.ErrNoData
	}
	h := NewHeader(rows[0])
	fairCol := h.Find(fairColumns...)
	if fairCol < 0 {
		return nil, report, missingColumn("FERIA")
	}
	categoryCol := h.Find(macroCategoryColumns...)
	amountCol := h.Find(amountColumns...)
	dateCol := h.Find(admissionColumns...)
	entityCol := h.Find(entityColumns...)

	source := core.RegistrationSource(year)
	out := make([]core.Fact, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		report.Rows++
		line := i + 2

		rawCategory := cell(row, categoryCol)
		if rawCategory == "" {
			report.Defaulted++
		}
		rawAmount := cell(row, amountCol)
		amount := core.ParseAmount(rawAmount)
		if !amount.Valid && !core.IsBlank(rawAmount) {
			report.SkippedCells++
		}
		date, ok := core.ParseDayFirst(cell(row, dateCol))
		if !ok {
			report.NullDates++
		}

		fair := strings.Join(strings.Fields(cell(row, fairCol)), " ")
		out = append(out, core.Fact{
			Kind:         core.KindRegistration,
			Group:        fair,
			Venue:        fair,
			Entity:       core.EntityKey(cell(row, entityCol), source, line),
			Category:     core.NormalizeCategory(rawCategory),
			Year:         year,
			Month:        date.Month(),
			Amount:       amount.OrZero(),
			Participated: amount.Positive(),
			Attended:     true,
			Date:         date,
		})
	}
	return out, report, nil
}

// ParseMonthlySheet reads a wide per-entity export. Month columns are recognized
// by name; attendance columns such as "ASIST ENERO" or "ENERO ASISTENCIA" are
// attached to the same month. A file without any month column is invalid.
func ParseMonthlySheet(rows [][]string, venue core.Venue, year int) (core.MonthlySheet, core.LoadReport, error) {
	sheet := core.MonthlySheet{Venue: venue, Year: year}
	var report core.LoadReport
	if len(rows) == 0 {
		return sheet, report, core.ErrNoData
	}

	h := NewHeader(rows[0])
	entityCol := h.Find(entityColumns...)
	categoryCol := h.Find(tradeColumns...)

	var amountCols, attendCols [12]int
	for i := range amountCols {
		amountCols[i], attendCols[i] = -1, -1
	}
	for i, name := range rows[0] {
		m, attendance, ok := MonthColumn(name)
		if !ok {
			continue
		}
		switch {
		case attendance && attendCols[m-1] < 0:
			attendCols[m-1] = i
		case !attendance && amountCols[m-1] < 0:
			amountCols[m-1] = i
		}
	}
	for _, m := range core.AllMonths() {
		if amountCols[m-1] >= 0 || attendCols[m-1] >= 0 {
			sheet.Periods = append(sheet.Periods, m)
		}
	}
	if len(sheet.Periods) == 0 {
		return sheet, report, missingColumn("ENERO..DICIEMBRE")
	}

	for i, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rec := core.RawMonthlyRecord{
			Line:     i + 2,
			Entity:   cell(row, entityCol),
			Category: cell(row, categoryCol),
		}
		for _, m := range sheet.Periods {
			rec.Cells[m-1] = core.MonthCell{
				Value:    cell(row, amountCols[m-1]),
				Present:  true,
				Attended: cell(row, attendCols[m-1]),
			}
		}
		sheet.Rows = append(sheet.Rows, rec)
	}
	report.Rows = len(sheet.Rows)
	return sheet, report, nil
}

// MonthColumn recognizes a month header. attendance is true for headers that
// carry an "ASIST..." token next to the month name.
func MonthColumn(name string) (m core.Month, attendance bool, ok bool) {
	fields := strings.Fields(HeaderKey(name))
	if len(fields) == 0 || len(fields) > 2 {
		return 0, false, false
	}
	if len(fields) == 1 {
		m, ok = core.MonthFromName(fields[0])
		return m, false, ok
	}
	for i, f := range fields {
		if strings.HasPrefix(f, "ASIST") {
			m, ok = core.MonthFromName(fields[1-i])
			return m, true, ok
		}
	}
	return 0, false, false
}
