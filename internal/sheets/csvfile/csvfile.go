// Package csvfile reads the municipal exports from a data directory.
//
// Exports are semicolon-delimited CSV files, UTF-8 by default or Latin-1 when the
// office spreadsheet saved them that way. When a CSV is absent but an .xlsx with
// the same base name exists, the first worksheet of the workbook is read instead.
package csvfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"tablero/internal/core"
	ports "tablero/internal/sheets"
)

// Encoding of the CSV files on disk.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "latin1"
)

// Comma is the field delimiter of every export.
const Comma = ';'

// Ensure interface conformance
var (
	_ ports.ApplicationReader  = (*Store)(nil)
	_ ports.RegistrationReader = (*Store)(nil)
	_ ports.MonthlyReader      = (*Store)(nil)
)

// Store reads exports below a data directory.
type Store struct {
	dir      string
	encoding Encoding
	logger   *slog.Logger
}

// New creates a Store rooted at dir.
func New(dir string, encoding Encoding, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if encoding == "" {
		encoding = EncodingUTF8
	}
	return &Store{dir: dir, encoding: encoding, logger: logger}
}

// ApplicationsFile is the PACHAMBEAR export, relative to the data directory.
func ApplicationsFile() string {
	return "reporte_pachambear2.csv"
}

// RegistrationsFile is the fair registration export for a year.
func RegistrationsFile(year int) string {
	return filepath.Join("ferias", strconv.Itoa(year)+"_ferias_macro.csv")
}

// MonthlyFile is the wide monthly-payment export of a venue for a year.
func MonthlyFile(year int, slug string) string {
	return filepath.Join("ferias", fmt.Sprintf("%d_ferias_%s.csv", year, slug))
}

func (s *Store) ListApplications(ctx context.Context) ([]core.Application, core.LoadReport, error) {
	rows, source, err := s.load(ctx, ApplicationsFile())
	if err != nil {
		return nil, core.LoadReport{Source: source}, err
	}
	apps, report, err := ports.ParseApplications(rows)
	report.Source = source
	if err != nil {
		return nil, report, fmt.Errorf("%s: %w", source, err)
	}
	return apps, report, nil
}

func (s *Store) ListRegistrations(ctx context.Context, year int) ([]core.Fact, core.LoadReport, error) {
	rows, source, err := s.load(ctx, RegistrationsFile(year))
	if err != nil {
		return nil, core.LoadReport{Source: source}, err
	}
	facts, report, err := ports.ParseRegistrations(rows, year)
	report.Source = source
	if err != nil {
		return nil, report, fmt.Errorf("%s: %w", source, err)
	}
	return facts, report, nil
}

func (s *Store) ReadMonthlySheet(ctx context.Context, venue core.Venue, year int) (core.MonthlySheet, core.LoadReport, error) {
	rows, source, err := s.load(ctx, MonthlyFile(year, venue.Slug))
	if err != nil {
		return core.MonthlySheet{Venue: venue, Year: year}, core.LoadReport{Source: source}, err
	}
	sheet, report, err := ports.ParseMonthlySheet(rows, venue, year)
	report.Source = source
	if err != nil {
		return sheet, report, fmt.Errorf("%s: %w", source, err)
	}
	return sheet, report, nil
}

// load reads name, falling back to the .xlsx sibling. A missing file maps to
// core.ErrNoData.
func (s *Store) load(ctx context.Context, name string) ([][]string, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, name, err
	}
	path := filepath.Join(s.dir, name)

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		rows, err := ReadCSV(f, s.encoding)
		if err != nil {
			return nil, path, fmt.Errorf("%s: %w", path, err)
		}
		return rows, path, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, path, fmt.Errorf("open %s: %w", path, err)
	}

	xlsx := strings.TrimSuffix(path, filepath.Ext(path)) + ".xlsx"
	data, err := os.ReadFile(xlsx)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.DebugContext(ctx, "Export not found", "path", path)
		return nil, path, fmt.Errorf("%s: %w", path, core.ErrNoData)
	}
	if err != nil {
		return nil, xlsx, fmt.Errorf("read %s: %w", xlsx, err)
	}
	rows, err := ReadXLSX(data)
	if err != nil {
		return nil, xlsx, fmt.Errorf("%s: %w", xlsx, err)
	}
	s.logger.InfoContext(ctx, "Read workbook in place of CSV", "path", xlsx)
	return rows, xlsx, nil
}

// ReadCSV parses a semicolon-delimited export. Rows may have different lengths.
// A header without any semicolon that still contains commas is taken as a file
// saved with the wrong delimiter and rejected.
func ReadCSV(r io.Reader, encoding Encoding) ([][]string, error) {
	var src io.Reader
	switch encoding {
	case EncodingLatin1:
		src = transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	case EncodingUTF8, "":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: not valid UTF-8 (try CSV_ENCODING=latin1)", core.ErrInvalidCSV)
		}
		src = bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}

	reader := csv.NewReader(src)
	reader.Comma = Comma
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidCSV, err)
	}
	if len(rows) == 0 {
		return nil, core.ErrNoData
	}
	if len(rows[0]) == 1 && strings.Contains(rows[0][0], ",") {
		return nil, fmt.Errorf("%w: header has no ';' delimiter", core.ErrInvalidCSV)
	}
	return rows, nil
}

// ReadXLSX returns the rows of the first worksheet of a workbook.
func ReadXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %v", core.ErrInvalidCSV, err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("%w: xlsx has no sheets", core.ErrInvalidCSV)
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("%w: read xlsx rows: %v", core.ErrInvalidCSV, err)
	}
	if len(rows) == 0 {
		return nil, core.ErrNoData
	}
	return rows, nil
}

// ReadUpload parses an uploaded export by file extension.
func ReadUpload(filename string, data []byte, encoding Encoding) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return ReadXLSX(data)
	case ".csv", ".txt", "":
		return ReadCSV(bytes.NewReader(data), encoding)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", core.ErrInvalidCSV, filepath.Ext(filename))
	}
}
