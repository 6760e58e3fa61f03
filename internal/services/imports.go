package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tablero/internal/amqp"
	"tablero/internal/core"
	applog "tablero/internal/log"
	"tablero/internal/sheets"
	"tablero/internal/sheets/csvfile"
	"tablero/internal/storage"
)

// ImportStore persists uploads and their raw rows.
type ImportStore interface {
	CreateImport(ctx context.Context, req storage.ImportRequest) (storage.Import, error)
	CompleteImport(ctx context.Context, id string, rows [][]string) (storage.Import, error)
	FailImport(ctx context.Context, id string, cause error) error
	GetImport(ctx context.Context, id string) (storage.Import, error)
	ListImports(ctx context.Context, limit int) ([]storage.Import, error)
}

// ImportPublisher hands an import to the background worker.
type ImportPublisher interface {
	PublishImport(ctx context.Context, msg *amqp.ImportMessage) error
}

// ImportService accepts uploaded exports. With a publisher the upload is queued
// for the worker; without one it is processed before Submit returns.
type ImportService struct {
	store      ImportStore
	publisher  ImportPublisher
	uploadsDir string
	encoding   csvfile.Encoding
	venues     []core.Venue
	log        *applog.StructuredLogger
}

// ImportOptions configures an ImportService.
type ImportOptions struct {
	UploadsDir string
	Encoding   csvfile.Encoding
	Venues     []core.Venue
	Publisher  ImportPublisher // nil processes uploads inline
	Logger     *applog.Logger
}

func NewImportService(store ImportStore, opts ImportOptions) *ImportService {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ImportService{
		store:      store,
		publisher:  opts.Publisher,
		uploadsDir: opts.UploadsDir,
		encoding:   opts.Encoding,
		venues:     opts.Venues,
		log:        applog.NewStructuredLogger(logger),
	}
}

func (s *ImportService) venue(slug string) (core.Venue, error) {
	for _, v := range s.venues {
		if strings.EqualFold(v.Slug, slug) {
			return v, nil
		}
	}
	return core.Venue{}, fmt.Errorf("%w: %s", core.ErrUnknownVenue, slug)
}

// Submit records the upload, writes it under the uploads directory and either
// queues or processes it. The returned import reflects the state after Submit.
func (s *ImportService) Submit(ctx context.Context, req storage.ImportRequest, data []byte) (storage.Import, error) {
	if req.Dataset.PerVenue() {
		if _, err := s.venue(req.Venue); err != nil {
			return storage.Import{}, err
		}
	}
	switch ext := strings.ToLower(filepath.Ext(req.Filename)); ext {
	case ".csv", ".txt", ".xlsx":
	default:
		return storage.Import{}, fmt.Errorf("%w: unsupported file type %q", core.ErrInvalidCSV, ext)
	}

	imp, err := s.store.CreateImport(ctx, req)
	if err != nil {
		return storage.Import{}, err
	}

	if err := os.MkdirAll(s.uploadsDir, 0755); err != nil {
		return imp, s.fail(ctx, imp, fmt.Errorf("create uploads directory: %w", err))
	}
	path := filepath.Join(s.uploadsDir, imp.ID+strings.ToLower(filepath.Ext(req.Filename)))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return imp, s.fail(ctx, imp, fmt.Errorf("write upload: %w", err))
	}

	msg := amqp.NewImportMessage(imp.ID, string(imp.Dataset), imp.Year, imp.Venue, path, string(s.encoding))
	if s.publisher != nil {
		err := s.publisher.PublishImport(ctx, msg)
		if err == nil {
			return imp, nil
		}
		// Queue unavailable: the upload is still processed.
		s.log.LogError(ctx, "Publish failed, importing inline", err, applog.ComponentAMQP, applog.OpImport,
			applog.NewFields().WithImportID(imp.ID))
	}

	if err := s.Process(ctx, msg); err != nil {
		return imp, err
	}
	return s.store.GetImport(ctx, imp.ID)
}

// Get returns one import.
func (s *ImportService) Get(ctx context.Context, id string) (storage.Import, error) {
	return s.store.GetImport(ctx, id)
}

// Recent lists the newest imports.
func (s *ImportService) Recent(ctx context.Context, limit int) ([]storage.Import, error) {
	return s.store.ListImports(ctx, limit)
}

func (s *ImportService) fail(ctx context.Context, imp storage.Import, cause error) error {
	if err := s.store.FailImport(ctx, imp.ID, cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Process loads a queued upload. Invalid files mark the import failed and return
// nil, since retrying cannot fix them; storage errors are returned for a retry.
func (s *ImportService) Process(ctx context.Context, msg *amqp.ImportMessage) error {
	dataset, err := core.ParseDataset(msg.Dataset)
	if err != nil {
		return s.reject(ctx, msg, err)
	}

	data, err := os.ReadFile(msg.Path)
	if err != nil {
		return s.reject(ctx, msg, fmt.Errorf("read upload: %w", err))
	}

	encoding := csvfile.Encoding(msg.Encoding)
	if encoding == "" {
		encoding = s.encoding
	}
	rows, err := csvfile.ReadUpload(msg.Path, data, encoding)
	if err != nil {
		return s.reject(ctx, msg, err)
	}

	n, err := s.validate(dataset, msg, rows)
	if err != nil {
		return s.reject(ctx, msg, err)
	}

	if _, err := s.store.CompleteImport(ctx, msg.ImportID, rows); err != nil {
		if errors.Is(err, storage.ErrImportNotPending) {
			// Redelivered message for an import that already finished.
			return nil
		}
		return fmt.Errorf("complete import %s: %w", msg.ImportID, err)
	}
	s.log.LogImport(ctx, msg.ImportID, msg.Dataset, msg.Year, msg.Venue, n, nil)
	return nil
}

// validate parses the rows with the same layout rules the dashboards use, so a
// structurally broken file never becomes the current version of a source.
func (s *ImportService) validate(dataset core.Dataset, msg *amqp.ImportMessage, rows [][]string) (int, error) {
	var report core.LoadReport
	var err error
	switch dataset {
	case core.DatasetApplications:
		_, report, err = sheets.ParseApplications(rows)
	case core.DatasetRegistrations:
		_, report, err = sheets.ParseRegistrations(rows, msg.Year)
	case core.DatasetMonthly:
		venue, verr := s.venue(msg.Venue)
		if verr != nil {
			return 0, verr
		}
		_, report, err = sheets.ParseMonthlySheet(rows, venue, msg.Year)
	}
	return report.Rows, err
}

func (s *ImportService) reject(ctx context.Context, msg *amqp.ImportMessage, cause error) error {
	s.log.LogImport(ctx, msg.ImportID, msg.Dataset, msg.Year, msg.Venue, 0, cause)
	if err := s.store.FailImport(ctx, msg.ImportID, cause); err != nil && !errors.Is(err, storage.ErrImportNotPending) {
		return fmt.Errorf("mark import %s failed: %w", msg.ImportID, err)
	}
	return nil
}
