package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ibms-erp/ibms/internal/jobs"
	"github.com/ibms-erp/ibms/internal/mailer"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeOverdueScan flips pending invoices past their due date.
	TaskTypeOverdueScan = "invoice:overdue-scan"
)

// SendEmailPayload describes one queued transactional email.
type SendEmailPayload struct {
	Kind          string `json:"kind"`
	To            string `json:"to"`
	Name          string `json:"name"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Total         string `json:"total,omitempty"`
}

// EmailKindOverdueReminder identifies the overdue invoice reminder email.
const EmailKindOverdueReminder = "overdue_reminder"

// NewSendEmailTask constructs a mail:send task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewOverdueScanTask constructs an invoice:overdue-scan task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeOverdueScan, nil)
}

// SendEmailJob delivers queued emails over SMTP.
type SendEmailJob struct {
	Mailer  *mailer.Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskTypeSendEmail tasks.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskTypeSendEmail)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	switch payload.Kind {
	case EmailKindOverdueReminder:
		return j.Mailer.SendOverdueReminder(ctx, payload.To, payload.Name, payload.InvoiceNumber, payload.Total)
	default:
		j.Logger.Warn("unknown email kind", slog.String("kind", payload.Kind))
		return asynq.SkipRetry
	}
}

func (j *SendEmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
