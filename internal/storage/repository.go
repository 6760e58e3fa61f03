package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tablero/internal/core"
	ports "tablero/internal/sheets"

	_ "modernc.org/sqlite"
)

// Ensure interface conformance
var (
	_ ports.ApplicationReader  = (*SQLiteRepository)(nil)
	_ ports.RegistrationReader = (*SQLiteRepository)(nil)
	_ ports.MonthlyReader      = (*SQLiteRepository)(nil)
)

var (
	ErrImportNotFound   = errors.New("import not found")
	ErrImportNotPending = errors.New("import is not pending")
)

type ImportStatus string

const (
	StatusPending    ImportStatus = "pending"
	StatusCompleted  ImportStatus = "completed"
	StatusFailed     ImportStatus = "failed"
	StatusSuperseded ImportStatus = "superseded"
)

// Import is one uploaded export and its processing state. Only the newest
// completed import of a (dataset, year, venue) source is read by the dashboards.
type Import struct {
	ID          string
	Dataset     core.Dataset
	Year        int
	Venue       string
	Filename    string
	Status      ImportStatus
	Rows        int
	Error       string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// ImportRequest describes an upload before it is processed.
type ImportRequest struct {
	Dataset  core.Dataset
	Year     int
	Venue    string
	Filename string
}

// Validate checks that the request names a complete source.
func (r ImportRequest) Validate() error {
	if _, err := core.ParseDataset(string(r.Dataset)); err != nil {
		return err
	}
	if r.Dataset.Yearly() && (r.Year < 2000 || r.Year > 2100) {
		return fmt.Errorf("%w: %d", core.ErrInvalidYear, r.Year)
	}
	if r.Dataset.PerVenue() && r.Venue == "" {
		return fmt.Errorf("%w: venue is required for %s", core.ErrUnknownVenue, r.Dataset)
	}
	if r.Filename == "" {
		return errors.New("filename cannot be empty")
	}
	return nil
}

// sourceKey normalizes the parts of a request that do not apply to its dataset.
func sourceKey(dataset core.Dataset, year int, venue string) SourceParams {
	p := SourceParams{Dataset: string(dataset)}
	if dataset.Yearly() {
		p.Year = int64(year)
	}
	if dataset.PerVenue() {
		p.Venue = venue
	}
	return p
}

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(timeLayout)
}

// CreateImport records a pending import and returns it with a fresh ID.
func (r *SQLiteRepository) CreateImport(ctx context.Context, req ImportRequest) (Import, error) {
	if err := req.Validate(); err != nil {
		return Import{}, err
	}
	key := sourceKey(req.Dataset, req.Year, req.Venue)
	params := CreateImportParams{
		ID:        uuid.NewString(),
		Dataset:   key.Dataset,
		Year:      key.Year,
		Venue:     key.Venue,
		Filename:  req.Filename,
		CreatedAt: r.timestamp(),
	}
	if err := r.queries.CreateImport(ctx, params); err != nil {
		return Import{}, fmt.Errorf("create import: %w", err)
	}

	slog.InfoContext(ctx, "Import recorded",
		"import_id", params.ID,
		"dataset", params.Dataset,
		"year", params.Year,
		"venue", params.Venue)

	return r.GetImport(ctx, params.ID)
}

// CompleteImport stores the raw rows of a pending import and makes it the current
// version of its source. Earlier versions are marked superseded and their rows dropped.
func (r *SQLiteRepository) CompleteImport(ctx context.Context, id string, rows [][]string) (Import, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Import{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	rec, err := q.GetImport(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Import{}, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	if err != nil {
		return Import{}, fmt.Errorf("get import: %w", err)
	}
	if ImportStatus(rec.Status) != StatusPending {
		return Import{}, fmt.Errorf("%w: %s is %s", ErrImportNotPending, id, rec.Status)
	}

	for i, row := range rows {
		cells, err := json.Marshal(row)
		if err != nil {
			return Import{}, fmt.Errorf("encode row %d: %w", i, err)
		}
		if err := q.InsertImportRow(ctx, InsertImportRowParams{ImportID: id, Line: int64(i), Cells: string(cells)}); err != nil {
			return Import{}, fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	dataRows := max(len(rows)-1, 0)
	if _, err := q.CompleteImport(ctx, CompleteImportParams{ID: id, RowCount: int64(dataRows), CompletedAt: r.timestamp()}); err != nil {
		return Import{}, fmt.Errorf("complete import: %w", err)
	}
	if err := q.SupersedeImports(ctx, SupersedeImportsParams{Dataset: rec.Dataset, Year: rec.Year, Venue: rec.Venue, KeepID: id}); err != nil {
		return Import{}, fmt.Errorf("supersede imports: %w", err)
	}
	if err := q.DeleteSupersededRows(ctx); err != nil {
		return Import{}, fmt.Errorf("delete superseded rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Import{}, fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Import completed",
		"import_id", id,
		"dataset", rec.Dataset,
		"rows", dataRows)

	return r.GetImport(ctx, id)
}

// FailImport marks a pending import as failed with the cause.
func (r *SQLiteRepository) FailImport(ctx context.Context, id string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	n, err := r.queries.FailImport(ctx, FailImportParams{ID: id, Error: msg, CompletedAt: r.timestamp()})
	if err != nil {
		return fmt.Errorf("fail import: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrImportNotPending, id)
	}

	slog.WarnContext(ctx, "Import failed", "import_id", id, "error", msg)
	return nil
}

func (r *SQLiteRepository) GetImport(ctx context.Context, id string) (Import, error) {
	rec, err := r.queries.GetImport(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Import{}, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	if err != nil {
		return Import{}, fmt.Errorf("get import: %w", err)
	}
	return toImport(rec), nil
}

// ListImports returns the newest imports first.
func (r *SQLiteRepository) ListImports(ctx context.Context, limit int) ([]Import, error) {
	if limit <= 0 {
		limit = 50
	}
	recs, err := r.queries.ListImports(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	out := make([]Import, len(recs))
	for i, rec := range recs {
		out[i] = toImport(rec)
	}
	return out, nil
}

// PendingImports returns imports still pending after minAge, oldest first. These
// are uploads whose queue message was lost or whose worker died mid-import.
func (r *SQLiteRepository) PendingImports(ctx context.Context, minAge time.Duration, limit int) ([]Import, error) {
	recs, err := r.queries.ListPendingImports(ctx, ListPendingImportsParams{
		CreatedBefore: r.now().Add(-minAge).UTC().Format(timeLayout),
		Limit:         int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list pending imports: %w", err)
	}
	out := make([]Import, len(recs))
	for i, rec := range recs {
		out[i] = toImport(rec)
	}
	return out, nil
}

func toImport(rec ImportRecord) Import {
	imp := Import{
		ID:       rec.ID,
		Dataset:  core.Dataset(rec.Dataset),
		Year:     int(rec.Year),
		Venue:    rec.Venue,
		Filename: rec.Filename,
		Status:   ImportStatus(rec.Status),
		Rows:     int(rec.RowCount),
		Error:    rec.Error,
	}
	imp.CreatedAt, _ = time.Parse(timeLayout, rec.CreatedAt)
	if rec.CompletedAt.Valid {
		imp.CompletedAt, _ = time.Parse(timeLayout, rec.CompletedAt.String)
	}
	return imp
}

// Rows returns the raw matrix of the current version of a source, header first.
// A source that was never imported yields core.ErrNoData.
func (r *SQLiteRepository) Rows(ctx context.Context, dataset core.Dataset, year int, venue string) ([][]string, Import, error) {
	rec, err := r.queries.LatestCompletedImport(ctx, sourceKey(dataset, year, venue))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, Import{}, core.ErrNoData
	}
	if err != nil {
		return nil, Import{}, fmt.Errorf("latest import: %w", err)
	}

	encoded, err := r.queries.ListImportRows(ctx, rec.ID)
	if err != nil {
		return nil, Import{}, fmt.Errorf("list import rows: %w", err)
	}
	rows := make([][]string, len(encoded))
	for i, cells := range encoded {
		if err := json.Unmarshal([]byte(cells), &rows[i]); err != nil {
			return nil, Import{}, fmt.Errorf("decode row %d of import %s: %w", i, rec.ID, err)
		}
	}
	return rows, toImport(rec), nil
}

func source(imp Import) string {
	return "sqlite:" + imp.ID
}

func (r *SQLiteRepository) ListApplications(ctx context.Context) ([]core.Application, core.LoadReport, error) {
	rows, imp, err := r.Rows(ctx, core.DatasetApplications, 0, "")
	if err != nil {
		return nil, core.LoadReport{}, err
	}
	apps, report, err := ports.ParseApplications(rows)
	report.Source = source(imp)
	if err != nil {
		return nil, report, fmt.Errorf("%s: %w", report.Source, err)
	}
	return apps, report, nil
}

func (r *SQLiteRepository) ListRegistrations(ctx context.Context, year int) ([]core.Fact, core.LoadReport, error) {
	rows, imp, err := r.Rows(ctx, core.DatasetRegistrations, year, "")
	if err != nil {
		return nil, core.LoadReport{}, err
	}
	facts, report, err := ports.ParseRegistrations(rows, year)
	report.Source = source(imp)
	if err != nil {
		return nil, report, fmt.Errorf("%s: %w", report.Source, err)
	}
	return facts, report, nil
}

func (r *SQLiteRepository) ReadMonthlySheet(ctx context.Context, venue core.Venue, year int) (core.MonthlySheet, core.LoadReport, error) {
	rows, imp, err := r.Rows(ctx, core.DatasetMonthly, year, venue.Slug)
	if err != nil {
		return core.MonthlySheet{Venue: venue, Year: year}, core.LoadReport{}, err
	}
	sheet, report, err := ports.ParseMonthlySheet(rows, venue, year)
	report.Source = source(imp)
	if err != nil {
		return sheet, report, fmt.Errorf("%s: %w", report.Source, err)
	}
	return sheet, report, nil
}
