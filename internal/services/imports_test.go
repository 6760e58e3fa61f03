package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablero/internal/amqp"
	"tablero/internal/core"
	"tablero/internal/storage"
)

type fakePublisher struct {
	messages []*amqp.ImportMessage
	err      error
}

func (p *fakePublisher) PublishImport(_ context.Context, msg *amqp.ImportMessage) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func newImportFixture(t *testing.T, publisher ImportPublisher) (*ImportService, *storage.SQLiteRepository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "tablero.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	uploads := filepath.Join(dir, "uploads")
	svc := NewImportService(repo, ImportOptions{
		UploadsDir: uploads,
		Encoding:   "utf-8",
		Venues:     []core.Venue{testManchay},
		Publisher:  publisher,
	})
	return svc, repo, uploads
}

const registrationsCSV = "FERIA;MACRO_CATEGORIA;MONTO;INGRESO\nFeria Manchay;Textil;10;05/03/2024\nFeria Norte;Comida;20;06/03/2024\n"

func TestImportInline(t *testing.T) {
	svc, repo, uploads := newImportFixture(t, nil)
	ctx := context.Background()

	imp, err := svc.Submit(ctx, storage.ImportRequest{Dataset: core.DatasetRegistrations, Year: 2024, Filename: "2024_ferias_macro.csv"}, []byte(registrationsCSV))
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, imp.Status)
	assert.Equal(t, 2, imp.Rows)
	assert.FileExists(t, filepath.Join(uploads, imp.ID+".csv"))

	facts, _, err := repo.ListRegistrations(ctx, 2024)
	require.NoError(t, err)
	assert.Len(t, facts, 2)
}

func TestImportQueued(t *testing.T) {
	pub := &fakePublisher{}
	svc, repo, _ := newImportFixture(t, pub)
	ctx := context.Background()

	imp, err := svc.Submit(ctx, storage.ImportRequest{Dataset: core.DatasetRegistrations, Year: 2024, Filename: "macro.CSV"}, []byte(registrationsCSV))
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPending, imp.Status)
	require.Len(t, pub.messages, 1)

	msg := pub.messages[0]
	assert.Equal(t, imp.ID, msg.ImportID)
	assert.Equal(t, "ferias", msg.Dataset)
	assert.Equal(t, ".csv", filepath.Ext(msg.Path))

	_, _, err = repo.ListRegistrations(ctx, 2024)
	assert.ErrorIs(t, err, core.ErrNoData, "nothing is readable before the worker runs")

	require.NoError(t, svc.Process(ctx, msg))
	require.NoError(t, svc.Process(ctx, msg), "redelivery of a finished import is acknowledged")

	got, err := repo.GetImport(ctx, imp.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, got.Status)
}

func TestImportPublishFailureFallsBackInline(t *testing.T) {
	svc, _, _ := newImportFixture(t, &fakePublisher{err: errors.New("connection refused")})

	imp, err := svc.Submit(context.Background(), storage.ImportRequest{Dataset: core.DatasetRegistrations, Year: 2024, Filename: "macro.csv"}, []byte(registrationsCSV))
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, imp.Status)
}

func TestImportInvalidFileIsMarkedFailed(t *testing.T) {
	svc, repo, _ := newImportFixture(t, nil)
	ctx := context.Background()

	imp, err := svc.Submit(ctx, storage.ImportRequest{Dataset: core.DatasetRegistrations, Year: 2024, Filename: "macro.csv"}, []byte("NOMBRE;MONTO\nAna;10\n"))
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, imp.Status)
	assert.Contains(t, imp.Error, "FERIA")

	_, _, err = repo.ListRegistrations(ctx, 2024)
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestImportMonthlySheet(t *testing.T) {
	svc, repo, _ := newImportFixture(t, nil)
	ctx := context.Background()

	data := []byte("NOMBRE;GIRO;ENERO;FEBRERO\nAna;Textil;10;\n")
	imp, err := svc.Submit(ctx, storage.ImportRequest{Dataset: core.DatasetMonthly, Year: 2024, Venue: "manchay", Filename: "2024_ferias_manchay.csv"}, data)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, imp.Status)

	sheet, _, err := repo.ReadMonthlySheet(ctx, testManchay, 2024)
	require.NoError(t, err)
	assert.Len(t, sheet.Rows, 1)
}

func TestImportRejectsBadRequests(t *testing.T) {
	svc, _, _ := newImportFixture(t, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, storage.ImportRequest{Dataset: core.DatasetMonthly, Year: 2024, Venue: "lima", Filename: "a.csv"}, nil)
	assert.ErrorIs(t, err, core.ErrUnknownVenue)

	_, err = svc.Submit(ctx, storage.ImportRequest{Dataset: core.DatasetApplications, Filename: "a.pdf"}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidCSV)

	_, err = svc.Submit(ctx, storage.ImportRequest{Dataset: core.DatasetRegistrations, Filename: "a.csv"}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidYear)
}

func TestProcessMissingUpload(t *testing.T) {
	svc, repo, uploads := newImportFixture(t, &fakePublisher{})
	ctx := context.Background()

	imp, err := svc.Submit(ctx, storage.ImportRequest{Dataset: core.DatasetApplications, Filename: "p.csv"}, []byte("FECHA;CATEGORIA\n01/02/2025;Cocina\n"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(uploads, imp.ID+".csv")))

	msg := amqp.NewImportMessage(imp.ID, "pachambear", 0, "", filepath.Join(uploads, imp.ID+".csv"), "")
	require.NoError(t, svc.Process(ctx, msg))

	got, err := repo.GetImport(ctx, imp.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "read upload")
}

func TestImportHistory(t *testing.T) {
	svc, _, _ := newImportFixture(t, nil)
	ctx := context.Background()

	imp, err := svc.Submit(ctx, storage.ImportRequest{Dataset: core.DatasetRegistrations, Year: 2024, Filename: "macro.csv"}, []byte(registrationsCSV))
	require.NoError(t, err)

	recent, err := svc.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, imp.ID, recent[0].ID)

	got, err := svc.Get(ctx, imp.ID)
	require.NoError(t, err)
	assert.Equal(t, "macro.csv", got.Filename)
}
