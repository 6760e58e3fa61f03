package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// ImportRecord is one row of the imports table.
type ImportRecord struct {
	ID          string
	Dataset     string
	Year        int64
	Venue       string
	Filename    string
	Status      string
	RowCount    int64
	Error       string
	CreatedAt   string
	CompletedAt sql.NullString
}

const importColumns = `id, dataset, year, venue, filename, status, row_count, error, created_at, completed_at`

func scanImport(row interface{ Scan(...any) error }) (ImportRecord, error) {
	var i ImportRecord
	err := row.Scan(
		&i.ID,
		&i.Dataset,
		&i.Year,
		&i.Venue,
		&i.Filename,
		&i.Status,
		&i.RowCount,
		&i.Error,
		&i.CreatedAt,
		&i.CompletedAt,
	)
	return i, err
}

type CreateImportParams struct {
	ID        string
	Dataset   string
	Year      int64
	Venue     string
	Filename  string
	CreatedAt string
}

const createImport = `INSERT INTO imports (id, dataset, year, venue, filename, status, created_at)
VALUES (?, ?, ?, ?, ?, 'pending', ?)`

func (q *Queries) CreateImport(ctx context.Context, arg CreateImportParams) error {
	_, err := q.db.ExecContext(ctx, createImport,
		arg.ID,
		arg.Dataset,
		arg.Year,
		arg.Venue,
		arg.Filename,
		arg.CreatedAt,
	)
	return err
}

const getImport = `SELECT ` + importColumns + ` FROM imports WHERE id = ?`

func (q *Queries) GetImport(ctx context.Context, id string) (ImportRecord, error) {
	return scanImport(q.db.QueryRowContext(ctx, getImport, id))
}

const listImports = `SELECT ` + importColumns + ` FROM imports ORDER BY created_at DESC, id LIMIT ?`

func (q *Queries) ListImports(ctx context.Context, limit int64) ([]ImportRecord, error) {
	rows, err := q.db.QueryContext(ctx, listImports, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportRecord
	for rows.Next() {
		i, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type SourceParams struct {
	Dataset string
	Year    int64
	Venue   string
}

const latestCompletedImport = `SELECT ` + importColumns + ` FROM imports
WHERE dataset = ? AND year = ? AND venue = ? AND status = 'completed'
ORDER BY completed_at DESC, created_at DESC
LIMIT 1`

func (q *Queries) LatestCompletedImport(ctx context.Context, arg SourceParams) (ImportRecord, error) {
	return scanImport(q.db.QueryRowContext(ctx, latestCompletedImport, arg.Dataset, arg.Year, arg.Venue))
}

type InsertImportRowParams struct {
	ImportID string
	Line     int64
	Cells    string
}

const insertImportRow = `INSERT INTO import_rows (import_id, line, cells) VALUES (?, ?, ?)`

func (q *Queries) InsertImportRow(ctx context.Context, arg InsertImportRowParams) error {
	_, err := q.db.ExecContext(ctx, insertImportRow, arg.ImportID, arg.Line, arg.Cells)
	return err
}

const listImportRows = `SELECT cells FROM import_rows WHERE import_id = ? ORDER BY line`

func (q *Queries) ListImportRows(ctx context.Context, importID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listImportRows, importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var cells string
		if err := rows.Scan(&cells); err != nil {
			return nil, err
		}
		items = append(items, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type CompleteImportParams struct {
	ID          string
	RowCount    int64
	CompletedAt string
}

const completeImport = `UPDATE imports SET status = 'completed', row_count = ?, error = '', completed_at = ?
WHERE id = ? AND status = 'pending'`

func (q *Queries) CompleteImport(ctx context.Context, arg CompleteImportParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, completeImport, arg.RowCount, arg.CompletedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type FailImportParams struct {
	ID          string
	Error       string
	CompletedAt string
}

const failImport = `UPDATE imports SET status = 'failed', error = ?, completed_at = ?
WHERE id = ? AND status = 'pending'`

func (q *Queries) FailImport(ctx context.Context, arg FailImportParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, failImport, arg.Error, arg.CompletedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type SupersedeImportsParams struct {
	Dataset string
	Year    int64
	Venue   string
	KeepID  string
}

const supersedeImports = `UPDATE imports SET status = 'superseded'
WHERE dataset = ? AND year = ? AND venue = ? AND status = 'completed' AND id <> ?`

func (q *Queries) SupersedeImports(ctx context.Context, arg SupersedeImportsParams) error {
	_, err := q.db.ExecContext(ctx, supersedeImports, arg.Dataset, arg.Year, arg.Venue, arg.KeepID)
	return err
}

const deleteSupersededRows = `DELETE FROM import_rows
WHERE import_id IN (SELECT id FROM imports WHERE status IN ('superseded', 'failed'))`

func (q *Queries) DeleteSupersededRows(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteSupersededRows)
	return err
}

type ListPendingImportsParams struct {
	CreatedBefore string
	Limit         int64
}

const listPendingImports = `SELECT ` + importColumns + ` FROM imports
WHERE status = 'pending' AND created_at < ?
ORDER BY created_at
LIMIT ?`

func (q *Queries) ListPendingImports(ctx context.Context, arg ListPendingImportsParams) ([]ImportRecord, error) {
	rows, err := q.db.QueryContext(ctx, listPendingImports, arg.CreatedBefore, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportRecord
	for rows.Next() {
		i, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
