package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"tablero/internal/amqp"
	"tablero/internal/storage"
)

// Importer processes one queued upload.
type Importer interface {
	Process(ctx context.Context, msg *amqp.ImportMessage) error
}

// PendingLister finds uploads left pending.
type PendingLister interface {
	PendingImports(ctx context.Context, minAge time.Duration, limit int) ([]storage.Import, error)
}

// Consumer delivers queued import messages.
type Consumer interface {
	ConsumeImports(ctx context.Context, prefetch int, handler func(context.Context, *amqp.ImportMessage) error) error
}

// ImportWorker loads uploaded exports into storage from the queue, and
// recovers uploads whose messages were lost.
type ImportWorker struct {
	importer   Importer
	pending    PendingLister
	uploadsDir string
	encoding   string
	batchSize  int
}

func NewImportWorker(importer Importer, pending PendingLister, uploadsDir, encoding string, batchSize int) *ImportWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &ImportWorker{
		importer:   importer,
		pending:    pending,
		uploadsDir: uploadsDir,
		encoding:   encoding,
		batchSize:  batchSize,
	}
}

// HandleImportMessage processes a single import message from AMQP
func (w *ImportWorker) HandleImportMessage(ctx context.Context, msg *amqp.ImportMessage) error {
	slog.InfoContext(ctx, "Processing import message",
		"import_id", msg.ImportID,
		"dataset", msg.Dataset,
		"queued_for", time.Since(msg.Timestamp).Round(time.Millisecond))

	if err := w.importer.Process(ctx, msg); err != nil {
		return fmt.Errorf("process import %s: %w", msg.ImportID, err)
	}
	return nil
}

// Run consumes the queue until ctx ends.
func (w *ImportWorker) Run(ctx context.Context, consumer Consumer, prefetch int) error {
	err := consumer.ConsumeImports(ctx, prefetch, w.HandleImportMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ProcessPendingImports re-runs imports still pending after minAge. This is a
// backup for messages lost between the upload and the queue.
func (w *ImportWorker) ProcessPendingImports(ctx context.Context, minAge time.Duration) (int, error) {
	pending, err := w.pending.PendingImports(ctx, minAge, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending imports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending imports", "count", len(pending))

	processed := 0
	for _, imp := range pending {
		if err := w.HandleImportMessage(ctx, w.message(imp)); err != nil {
			slog.ErrorContext(ctx, "Failed to process pending import", "import_id", imp.ID, "error", err)
			continue
		}
		processed++
	}
	return processed, nil
}

// message rebuilds the queue message of a stored import.
func (w *ImportWorker) message(imp storage.Import) *amqp.ImportMessage {
	path := filepath.Join(w.uploadsDir, imp.ID+strings.ToLower(filepath.Ext(imp.Filename)))
	msg := amqp.NewImportMessage(imp.ID, string(imp.Dataset), imp.Year, imp.Venue, path, w.encoding)
	msg.Timestamp = imp.CreatedAt
	return msg
}
