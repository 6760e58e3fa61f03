package google

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/core"
)

type fakeValues struct {
	ranges []string
	values [][]interface{}
	err    error
}

func (f *fakeValues) Values(_ context.Context, _ string, rng string) ([][]interface{}, error) {
	f.ranges = append(f.ranges, rng)
	return f.values, f.err
}

var manchay = core.Venue{Slug: "manchay", Label: "Manchay"}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Options{SpreadsheetID: "sheet"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestReadMonthlySheet(t *testing.T) {
	fake := &fakeValues{values: [][]interface{}{
		{"NOMBRE", "GIRO", "ENERO", "FEBRERO", "ASIST FEBRERO"},
		{"Ana", "Ropa", 20.0, "", "X"},
		{"Luis", nil, 12.5},
	}}
	c := &Client{values: fake, spreadsheetID: "id", logger: slog.Default()}

	sheet, report, err := c.ReadMonthlySheet(context.Background(), manchay, 2024)

	require.NoError(t, err)
	assert.Equal(t, []string{"'2024 Manchay'!A:AZ"}, fake.ranges)
	assert.Equal(t, "sheets:2024 Manchay", report.Source)
	assert.Equal(t, []core.Month{1, 2}, sheet.Periods)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "20", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, "X", sheet.Rows[0].Cells[1].Attended)
	assert.Equal(t, "12.5", sheet.Rows[1].Cells[0].Value)
	assert.Equal(t, "", sheet.Rows[1].Category)
}

func TestReadMonthlySheetMissingTab(t *testing.T) {
	fake := &fakeValues{err: errors.New("googleapi: Error 400: Unable to parse range: '2023 Manchay'!A:AZ, badRequest")}
	c := &Client{values: fake, spreadsheetID: "id", logger: slog.Default()}

	_, _, err := c.ReadMonthlySheet(context.Background(), manchay, 2023)

	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestReadMonthlySheetAPIError(t *testing.T) {
	fake := &fakeValues{err: errors.New("googleapi: Error 403: forbidden")}
	c := &Client{values: fake, spreadsheetID: "id", logger: slog.Default()}

	_, _, err := c.ReadMonthlySheet(context.Background(), manchay, 2023)

	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrNoData)
}

func TestReadMonthlySheetEmptyTab(t *testing.T) {
	c := &Client{values: &fakeValues{}, spreadsheetID: "id", logger: slog.Default()}

	_, _, err := c.ReadMonthlySheet(context.Background(), manchay, 2023)

	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestTabName(t *testing.T) {
	assert.Equal(t, "2025 Manchay", TabName(manchay, 2025))
	assert.Equal(t, "2024 Plaza Norte", TabName(core.Venue{Label: "2024 Plaza Norte"}, 2025))
	assert.Equal(t, "", TabName(core.Venue{}, 2025))
}

func TestToStrings(t *testing.T) {
	got := toStrings([]interface{}{20.0, 12.5, " a ", nil, true})
	assert.Equal(t, []string{"20", "12.5", "a", "", "true"}, got)
}
