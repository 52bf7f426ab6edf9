package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	BaseURL  string
}

// Mailer sends transactional email over SMTP.
type Mailer struct {
	client *mail.Client
	cfg    Config
	logger *slog.Logger
}

// New dials nothing; the client connects per send.
func New(cfg Config, logger *slog.Logger) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &Mailer{client: client, cfg: cfg, logger: logger}, nil
}

// SendVerification emails the account activation link.
func (m *Mailer) SendVerification(ctx context.Context, to, name, token string) error {
	link := m.cfg.BaseURL + "/verify?token=" + token
	body, err := renderTemplate("verification", emailData{Name: name, Link: link})
	if err != nil {
		return err
	}
	return m.send(ctx, to, "Verify your email address", body)
}

// SendPasswordReset emails the time-bounded reset link.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	link := m.cfg.BaseURL + "/reset-password?token=" + token
	body, err := renderTemplate("password_reset", emailData{Name: name, Link: link})
	if err != nil {
		return err
	}
	return m.send(ctx, to, "Password reset instructions", body)
}

// SendWelcomeCredentials emails initial credentials for admin-created accounts.
func (m *Mailer) SendWelcomeCredentials(ctx context.Context, to, name, password string) error {
	body, err := renderTemplate("welcome", emailData{Name: name, Email: to, Password: password, Link: m.cfg.BaseURL + "/login"})
	if err != nil {
		return err
	}
	return m.send(ctx, to, "Your account is ready", body)
}

// SendOverdueReminder notifies a client that an invoice is past due.
func (m *Mailer) SendOverdueReminder(ctx context.Context, to, name, invoiceNumber string, total string) error {
	body, err := renderTemplate("overdue", emailData{Name: name, InvoiceNumber: invoiceNumber, Total: total, Link: m.cfg.BaseURL + "/login"})
	if err != nil {
		return err
	}
	return m.send(ctx, to, "Invoice "+invoiceNumber+" is overdue", body)
}

func (m *Mailer) send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	m.logger.Info("email sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}
