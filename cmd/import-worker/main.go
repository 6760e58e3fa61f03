package main

import (
	"context"
	"errors"
	"os"
	"time"

	"tablero/internal/amqp"
	"tablero/internal/backend"
	"tablero/internal/cli"
	applog "tablero/internal/log"
	"tablero/internal/services"
	"tablero/internal/sheets/csvfile"
	"tablero/internal/storage"
	"tablero/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	settings, err := cli.LoadSettings()
	if err != nil {
		cli.SetupLogger("info", "text", applog.ComponentWorker).Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	cfg := settings.Config
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, applog.ComponentWorker)
	logger.Info("Starting import-worker")

	bc, err := backend.FromAppConfig(cfg, settings.Venues)
	cli.MustStart(logger, "config", err)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	cli.MustStart(logger, "sqlite", err)
	defer repo.Close()

	// The worker is the consumer: it never republishes, so imports run in place.
	importer := services.NewImportService(repo, services.ImportOptions{
		UploadsDir: bc.UploadsDirectory(),
		Encoding:   csvfile.Encoding(cfg.CSVEncoding),
		Venues:     settings.Venues,
		Logger:     logger,
	})
	w := worker.NewImportWorker(importer, repo, bc.UploadsDirectory(), cfg.CSVEncoding, 10)

	var client *amqp.Client
	if cfg.AMQPURL != "" {
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		cli.MustStart(logger, "amqp", err)
		defer client.Close()
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided, sweeping pending imports only")
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownGrace, nil)

	// Uploads accepted while the worker was down are picked up first.
	if n, err := w.ProcessPendingImports(ctx, 0); err != nil {
		logger.Error("Startup sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("Startup sweep processed imports", "count", n)
	}

	if client != nil {
		go func() {
			if err := w.Run(ctx, client, cfg.WorkerPrefetch); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	}

	ticker := time.NewTicker(cfg.PendingSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-done
			logger.Info("Worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessPendingImports(ctx, cfg.PendingMinAge); err != nil {
				logger.Error("Periodic sweep failed", "error", err)
			}
		}
	}
}
