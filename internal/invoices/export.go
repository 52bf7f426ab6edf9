package invoices

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ibms-erp/ibms/report"
	"github.com/ibms-erp/ibms/web"
)

// PDFExporter renders an invoice into a downloadable PDF through Gotenberg.
type PDFExporter struct {
	client    *report.Client
	templates *template.Template
}

// NewPDFExporter parses the invoice print template.
func NewPDFExporter(client *report.Client) (*PDFExporter, error) {
	printer := message.NewPrinter(language.English)
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
		"formatMoney": func(v float64) string {
			return printer.Sprintf("%.2f", v)
		},
	}
	tpl, err := template.New("invoice_pdf.html").Funcs(funcMap).ParseFS(web.Templates, "templates/reports/invoice_pdf.html")
	if err != nil {
		return nil, fmt.Errorf("parse invoice pdf template: %w", err)
	}
	return &PDFExporter{client: client, templates: tpl}, nil
}

// RenderInvoice produces the PDF bytes for one invoice.
func (e *PDFExporter) RenderInvoice(ctx context.Context, inv *Invoice) ([]byte, error) {
	if e == nil || e.client == nil {
		return nil, fmt.Errorf("pdf renderer not configured")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, "invoice_pdf.html", inv); err != nil {
		return nil, fmt.Errorf("render invoice template: %w", err)
	}
	return e.client.RenderHTML(ctx, buf.String())
}
