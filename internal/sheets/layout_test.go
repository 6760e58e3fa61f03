package sheets

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/core"
)

var manchay = core.Venue{Slug: "manchay", Label: "Manchay", Monthly: true}

func TestParseApplications(t *testing.T) {
	rows := [][]string{
		{"\ufeffFecha", "Categoría", "CUL", "DNI"},
		{"05/03/2024", " Construcción ", "Emitido", "123"},
		{"", "", "", ""},
		{"no es fecha", "", "", "456"},
	}

	apps, report, err := ParseApplications(rows)

	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, core.NewDate(2024, 3, 5), apps[0].Date)
	assert.Equal(t, "Construcción", apps[0].Category)
	assert.Equal(t, "Emitido", apps[0].Certificate)
	assert.Equal(t, map[string]string{"DNI": "123"}, apps[0].Attributes)
	assert.Equal(t, 4, apps[1].Line)
	assert.True(t, apps[1].Date.IsEmpty())
	assert.Equal(t, core.ApplicationOtherCategory, apps[1].Category)
	assert.Equal(t, core.UnknownCertificate, apps[1].Certificate)
	assert.Equal(t, core.LoadReport{Rows: 2, NullDates: 1, Defaulted: 1}, report)
}

func TestParseApplicationsMissingDate(t *testing.T) {
	_, _, err := ParseApplications([][]string{{"CATEGORIA", "CUL"}})

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidCSV)
	assert.ErrorIs(t, err, core.ErrMissingColumn)
}

func TestParseRegistrations(t *testing.T) {
	rows := [][]string{
		{"FERIA", "MACRO_CATEGORIA", "MONTO", "FECHA DE INGRESO", "NOMBRES"},
		{" Feria  Manchay ", "comida", "25,50", "12/05/2024", "ana"},
		{"Feria Manchay", "", "abc", "", ""},
	}

	facts, report, err := ParseRegistrations(rows, 2024)

	require.NoError(t, err)
	require.Len(t, facts, 2)
	f := facts[0]
	assert.Equal(t, core.KindRegistration, f.Kind)
	assert.Equal(t, "Feria Manchay", f.Group)
	assert.Equal(t, "ANA", f.Entity)
	assert.Equal(t, "COMIDA", f.Category)
	assert.True(t, decimal.RequireFromString("25.5").Equal(f.Amount))
	assert.True(t, f.Participated)
	assert.Equal(t, core.Month(5), f.Month)
	assert.Equal(t, 2024, f.Year)

	g := facts[1]
	assert.Equal(t, core.OtherCategory, g.Category)
	assert.Equal(t, "Sin nombre (ferias 2024, fila 3)", g.Entity)
	assert.True(t, g.Amount.IsZero())
	assert.True(t, g.Date.IsEmpty())
	assert.Equal(t, core.LoadReport{Rows: 2, SkippedCells: 1, NullDates: 1, Defaulted: 1}, report)
}

func TestParseRegistrationsMissingFair(t *testing.T) {
	_, _, err := ParseRegistrations([][]string{{"MONTO"}, {"1"}}, 2024)
	assert.ErrorIs(t, err, core.ErrInvalidCSV)
}

func TestParseMonthlySheet(t *testing.T) {
	rows := [][]string{
		{"N°", "Nombre", "Giro", "ENERO", "ASIST ENERO", "Febrero", "FEBRERO ASISTENCIA", "Setiembre", "TOTAL"},
		{"1", "Ana", "Ropa", "20", "X", "", "x", "10", "30"},
		{";", "", "", "", "", "", "", "", ""},
	}

	sheet, report, err := ParseMonthlySheet(rows, manchay, 2025)

	require.NoError(t, err)
	assert.Equal(t, []core.Month{1, 2, 9}, sheet.Periods)
	assert.Equal(t, 2025, sheet.Year)
	require.Len(t, sheet.Rows, 2)
	r := sheet.Rows[0]
	assert.Equal(t, "Ana", r.Entity)
	assert.Equal(t, "Ropa", r.Category)
	assert.Equal(t, core.MonthCell{Value: "20", Present: true, Attended: "X"}, r.Cells[0])
	assert.Equal(t, core.MonthCell{Value: "", Present: true, Attended: "x"}, r.Cells[1])
	assert.Equal(t, "10", r.Cells[8].Value)
	assert.False(t, r.Cells[2].Present)
	assert.Equal(t, 2, report.Rows)
}

func TestParseMonthlySheetWithoutMonths(t *testing.T) {
	_, _, err := ParseMonthlySheet([][]string{{"NOMBRE", "GIRO"}, {"a", "b"}}, manchay, 2025)
	assert.ErrorIs(t, err, core.ErrMissingColumn)
}

func TestMonthColumn(t *testing.T) {
	cases := []struct {
		header     string
		month      core.Month
		attendance bool
		ok         bool
	}{
		{"ENERO", 1, false, true},
		{"marzo", 3, false, true},
		{"SETIEMBRE", 9, false, true},
		{"ASIST ABRIL", 4, true, true},
		{"Mayo Asistencia", 5, true, true},
		{"ASISTENCIA_DIC", 12, true, true},
		{"TOTAL", 0, false, false},
		{"ENERO FEBRERO", 0, false, false},
		{"", 0, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			m, attendance, ok := MonthColumn(tc.header)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.month, m)
				assert.Equal(t, tc.attendance, attendance)
			}
		})
	}
}
