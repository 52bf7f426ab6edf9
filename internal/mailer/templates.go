package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

type emailData struct {
	Name          string
	Email         string
	Password      string
	Link          string
	InvoiceNumber string
	Total         string
}

const emailLayout = `<!DOCTYPE html>
<html>
<body style="font-family:Arial,sans-serif;color:#333;max-width:560px;margin:0 auto;padding:24px;">
{{template "content" .}}
<p style="color:#999;font-size:12px;margin-top:32px;">This is an automated message, please do not reply.</p>
</body>
</html>`

var emailBodies = map[string]string{
	"verification": `{{define "content"}}
<h2>Hello {{.Name}},</h2>
<p>Thanks for registering. Please confirm your email address to activate your account:</p>
<p><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 18px;text-decoration:none;border-radius:4px;">Verify Email</a></p>
<p>If the button does not work, copy this link into your browser:<br>{{.Link}}</p>
{{end}}`,
	"password_reset": `{{define "content"}}
<h2>Hello {{.Name}},</h2>
<p>We received a request to reset your password. The link below is valid for one hour:</p>
<p><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 18px;text-decoration:none;border-radius:4px;">Reset Password</a></p>
<p>If you did not request this, you can safely ignore this email.</p>
{{end}}`,
	"welcome": `{{define "content"}}
<h2>Hello {{.Name}},</h2>
<p>An account has been created for you. Your initial credentials are:</p>
<p>Email: <strong>{{.Email}}</strong><br>Password: <strong>{{.Password}}</strong></p>
<p>Please <a href="{{.Link}}">log in</a> and change your password.</p>
{{end}}`,
	"overdue": `{{define "content"}}
<h2>Hello {{.Name}},</h2>
<p>Invoice <strong>{{.InvoiceNumber}}</strong> for <strong>{{.Total}}</strong> is past its due date.</p>
<p>Please <a href="{{.Link}}">log in</a> to review the invoice and arrange payment.</p>
{{end}}`,
}

var emailTemplates = func() map[string]*template.Template {
	out := make(map[string]*template.Template, len(emailBodies))
	for name, body := range emailBodies {
		out[name] = template.Must(template.Must(template.New(name).Parse(emailLayout)).Parse(body))
	}
	return out
}()

func renderTemplate(name string, data emailData) (string, error) {
	tpl, ok := emailTemplates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
