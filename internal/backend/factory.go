package backend

import (
	"context"
	"fmt"
	"log/slog"

	"tablero/internal/amqp"
	"tablero/internal/core"
	applog "tablero/internal/log"
	"tablero/internal/services"
	"tablero/internal/sheets/csvfile"
	gsheet "tablero/internal/sheets/google"
	"tablero/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case CSVBackend:
		return f.createCSVBackend(config)
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) csvStore(config Config) *csvfile.Store {
	return csvfile.New(config.DataDirectory, csvfile.Encoding(config.Encoding), f.logger.Logger)
}

func (f *DefaultFactory) createCSVBackend(config Config) (*BackendResult, error) {
	store := f.csvStore(config)

	f.logger.Info("Initialized CSV backend", "data_directory", config.DataDirectory, "encoding", config.Encoding)

	return &BackendResult{
		Backend: store,
		Ready:   func(context.Context) error { return nil },
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	// Initialize SQLite repository
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// Initialize AMQP client (optional)
	var amqpClient *amqp.Client
	var publisher services.ImportPublisher
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, importing inline", "error", err)
		} else {
			publisher = amqpClient
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	imports := services.NewImportService(sqliteRepo, services.ImportOptions{
		UploadsDir: config.UploadsDirectory(),
		Encoding:   csvfile.Encoding(config.Encoding),
		Venues:     config.Venues,
		Publisher:  publisher,
		Logger:     f.logger,
	})

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Backend: sqliteRepo,
		Imports: imports,
		Ready:   sqliteRepo.Ping,
		Cleanup: func() error {
			if amqpClient != nil {
				if err := amqpClient.Close(); err != nil {
					slog.Warn("Failed to close AMQP client", "error", err)
				}
			}
			return sqliteRepo.Close()
		},
	}, nil
}

// sheetsBackend reads wide payments from a spreadsheet and the remaining
// datasets from the data directory.
type sheetsBackend struct {
	*csvfile.Store
	monthly *gsheet.Client
}

func (b sheetsBackend) ReadMonthlySheet(ctx context.Context, venue core.Venue, year int) (core.MonthlySheet, core.LoadReport, error) {
	return b.monthly.ReadMonthlySheet(ctx, venue, year)
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
		OAuthClientFile:    config.GoogleOAuthClientFile,
		OAuthTokenFile:     config.GoogleOAuthTokenFile,
		Logger:             f.logger.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)

	return &BackendResult{
		Backend: sheetsBackend{Store: f.csvStore(config), monthly: cli},
		Ready:   func(context.Context) error { return nil },
	}, nil
}
