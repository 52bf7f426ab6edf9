package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/ibms-erp/ibms/internal/invoices"
	"github.com/ibms-erp/ibms/internal/shared"
)

type overdueOnlyRepo struct {
	reminders []invoices.Reminder
	fail      error
	calls     int
}

func (r *overdueOnlyRepo) List(ctx context.Context, f invoices.ListFilter) ([]invoices.Invoice, int, error) {
	return nil, 0, nil
}

func (r *overdueOnlyRepo) FindByID(ctx context.Context, id int64) (*invoices.Invoice, error) {
	return nil, shared.ErrNotFound
}

func (r *overdueOnlyRepo) Create(ctx context.Context, inv invoices.Invoice) (*invoices.Invoice, error) {
	return nil, errors.New("not implemented")
}

func (r *overdueOnlyRepo) Update(ctx context.Context, inv invoices.Invoice) error {
	return errors.New("not implemented")
}

func (r *overdueOnlyRepo) UpdateStatus(ctx context.Context, id int64, status invoices.Status) error {
	return errors.New("not implemented")
}

func (r *overdueOnlyRepo) DeleteDraft(ctx context.Context, id int64) error {
	return errors.New("not implemented")
}

func (r *overdueOnlyRepo) MarkOverdue(ctx context.Context, asOf time.Time) ([]invoices.Reminder, error) {
	r.calls++
	if r.fail != nil {
		return nil, r.fail
	}
	out := r.reminders
	r.reminders = nil
	return out, nil
}

var _ invoices.Repository = (*overdueOnlyRepo)(nil)

func TestOverdueScanHandlesFlips(t *testing.T) {
	repo := &overdueOnlyRepo{reminders: []invoices.Reminder{
		{InvoiceID: 1, Number: "INV-2026080001", Total: 27.50, ClientName: "Acme", ClientEmail: "billing@acme.example"},
	}}
	job := NewOverdueScanJob(invoices.NewService(repo, nil, slog.Default()), nil, slog.Default())

	require.NoError(t, job.Handle(context.Background(), NewOverdueScanTask()))
	require.Equal(t, 1, repo.calls)

	// Nothing left to flip on the next run.
	require.NoError(t, job.Handle(context.Background(), NewOverdueScanTask()))
	require.Equal(t, 2, repo.calls)
}

func TestOverdueScanPropagatesRepoErrors(t *testing.T) {
	repo := &overdueOnlyRepo{fail: errors.New("connection refused")}
	job := NewOverdueScanJob(invoices.NewService(repo, nil, slog.Default()), nil, slog.Default())

	require.Error(t, job.Handle(context.Background(), NewOverdueScanTask()))
}

func TestOverdueScanRejectsMissingService(t *testing.T) {
	job := &OverdueScanJob{Logger: slog.Default()}
	require.Error(t, job.Handle(context.Background(), NewOverdueScanTask()))
}

func TestSendEmailTaskRoundTrip(t *testing.T) {
	payload := SendEmailPayload{
		Kind:          EmailKindOverdueReminder,
		To:            "billing@acme.example",
		Name:          "Acme",
		InvoiceNumber: "INV-2026080001",
		Total:         "27.50",
	}
	task, err := NewSendEmailTask(payload)
	require.NoError(t, err)
	require.Equal(t, TaskTypeSendEmail, task.Type())

	var decoded SendEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, payload, decoded)
}

func TestSendEmailJobSkipsMalformedPayloads(t *testing.T) {
	job := &SendEmailJob{Logger: slog.Default()}

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSendEmailJobSkipsUnknownKinds(t *testing.T) {
	job := &SendEmailJob{Logger: slog.Default()}

	task, err := NewSendEmailTask(SendEmailPayload{Kind: "newsletter", To: "x@example.com"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
