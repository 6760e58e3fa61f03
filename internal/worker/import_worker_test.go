package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/amqp"
	"tablero/internal/core"
	"tablero/internal/storage"
)

type recordingImporter struct {
	messages []*amqp.ImportMessage
	failFor  string
}

func (r *recordingImporter) Process(_ context.Context, msg *amqp.ImportMessage) error {
	r.messages = append(r.messages, msg)
	if msg.ImportID == r.failFor {
		return errors.New("database is locked")
	}
	return nil
}

type stubPending struct {
	imports []storage.Import
	minAge  time.Duration
	limit   int
}

func (s *stubPending) PendingImports(_ context.Context, minAge time.Duration, limit int) ([]storage.Import, error) {
	s.minAge, s.limit = minAge, limit
	return s.imports, nil
}

type stubConsumer struct {
	deliveries []*amqp.ImportMessage
	errs       []error
}

func (c *stubConsumer) ConsumeImports(ctx context.Context, _ int, handler func(context.Context, *amqp.ImportMessage) error) error {
	for _, msg := range c.deliveries {
		c.errs = append(c.errs, handler(ctx, msg))
	}
	return context.Canceled
}

func TestHandleImportMessage(t *testing.T) {
	importer := &recordingImporter{failFor: "bad"}
	w := NewImportWorker(importer, &stubPending{}, "/uploads", "utf-8", 0)

	require.NoError(t, w.HandleImportMessage(context.Background(), amqp.NewImportMessage("ok", "ferias", 2024, "", "/uploads/ok.csv", "")))

	err := w.HandleImportMessage(context.Background(), amqp.NewImportMessage("bad", "ferias", 2024, "", "/uploads/bad.csv", ""))
	assert.ErrorContains(t, err, "process import bad")
}

func TestRunTreatsCancellationAsCleanStop(t *testing.T) {
	importer := &recordingImporter{failFor: "b"}
	consumer := &stubConsumer{deliveries: []*amqp.ImportMessage{
		amqp.NewImportMessage("a", "pachambear", 0, "", "/u/a.csv", ""),
		amqp.NewImportMessage("b", "pachambear", 0, "", "/u/b.csv", ""),
	}}
	w := NewImportWorker(importer, &stubPending{}, "/u", "", 1)

	require.NoError(t, w.Run(context.Background(), consumer, 1))
	require.Len(t, consumer.errs, 2)
	assert.NoError(t, consumer.errs[0])
	assert.Error(t, consumer.errs[1], "failures reach the consumer so it can requeue")
}

func TestProcessPendingImports(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	pending := &stubPending{imports: []storage.Import{
		{ID: "p1", Dataset: core.DatasetMonthly, Year: 2024, Venue: "manchay", Filename: "Manchay.XLSX", CreatedAt: created},
		{ID: "p2", Dataset: core.DatasetApplications, Filename: "reporte.csv", CreatedAt: created},
	}}
	importer := &recordingImporter{failFor: "p2"}
	w := NewImportWorker(importer, pending, "/data/uploads", "latin1", 25)

	n, err := w.ProcessPendingImports(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 5*time.Minute, pending.minAge)
	assert.Equal(t, 25, pending.limit)

	require.Len(t, importer.messages, 2)
	msg := importer.messages[0]
	assert.Equal(t, filepath.Join("/data/uploads", "p1.xlsx"), msg.Path)
	assert.Equal(t, "mensual", msg.Dataset)
	assert.Equal(t, "manchay", msg.Venue)
	assert.Equal(t, "latin1", msg.Encoding)
	assert.Equal(t, created, msg.Timestamp)
}
