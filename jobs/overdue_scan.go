package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ibms-erp/ibms/internal/invoices"
	jobmetrics "github.com/ibms-erp/ibms/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// OverdueScanJob moves pending invoices past their due date into the overdue
// state and queues one reminder email per flipped invoice.
type OverdueScanJob struct {
	Invoices *invoices.Service
	Enqueuer *Client
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewOverdueScanJob initialises the overdue scan handler.
func NewOverdueScanJob(invoiceSvc *invoices.Service, enqueuer *Client, logger *slog.Logger) *OverdueScanJob {
	return &OverdueScanJob{
		Invoices: invoiceSvc,
		Enqueuer: enqueuer,
		Logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the overdue scan.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Invoices == nil {
		return errors.New("overdue scan: handler not configured")
	}
	tracker := j.metrics().Track(TaskTypeOverdueScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.clock()
	reminders, err := j.Invoices.MarkOverdue(ctx, now)
	if err != nil {
		j.Logger.Error("overdue scan failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("overdue scan finished", slog.Int("flipped", len(reminders)))
	j.metrics().AddOverdue(len(reminders))

	if j.Enqueuer == nil {
		return nil
	}
	enqueued := 0
	for _, rem := range reminders {
		payload := SendEmailPayload{
			Kind:          EmailKindOverdueReminder,
			To:            rem.ClientEmail,
			Name:          rem.ClientName,
			InvoiceNumber: rem.Number,
			Total:         fmt.Sprintf("%.2f", rem.Total),
		}
		if _, err := j.Enqueuer.EnqueueSendEmail(ctx, payload); err != nil {
			j.Logger.Error("enqueue overdue reminder",
				slog.String("invoice", rem.Number),
				slog.Any("error", err))
			continue
		}
		enqueued++
	}
	j.metrics().AddReminders(enqueued)
	return nil
}

func (j *OverdueScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
