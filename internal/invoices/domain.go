package invoices

import (
	"math"
	"time"
)

// Status enumerates the invoice lifecycle.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// Statuses lists all lifecycle states in display order.
func Statuses() []Status {
	return []Status{StatusDraft, StatusPending, StatusPaid, StatusOverdue, StatusCancelled}
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	switch s {
	case StatusDraft, StatusPending, StatusPaid, StatusOverdue, StatusCancelled:
		return s, true
	}
	return "", false
}

// TaxRate is the flat tax applied to every invoice subtotal.
const TaxRate = 0.10

// Invoice is a billing document with line items.
type Invoice struct {
	ID         int64
	Number     string
	ClientID   int64
	ClientName string
	Status     Status
	IssueDate  time.Time
	DueDate    time.Time
	Subtotal   float64
	TaxAmount  float64
	Total      float64
	Notes      string
	CreatedBy  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Items      []Item
}

// Item is one line of an invoice.
type Item struct {
	ID          int64
	InvoiceID   int64
	Description string
	Quantity    float64
	UnitPrice   float64
	LineTotal   float64
}

// ItemInput carries one validated line-item row.
type ItemInput struct {
	Description string  `validate:"required,max=300"`
	Quantity    float64 `validate:"required,gt=0"`
	UnitPrice   float64 `validate:"gte=0"`
}

// InvoiceInput carries a validated invoice form.
type InvoiceInput struct {
	ClientID  int64       `validate:"required,gt=0"`
	Status    Status      `validate:"required"`
	IssueDate time.Time   `validate:"required"`
	DueDate   time.Time   `validate:"required"`
	Notes     string      `validate:"max=1000"`
	Items     []ItemInput `validate:"required,min=1,dive"`
}

// Totals holds the derived money amounts of an invoice.
type Totals struct {
	Subtotal  float64
	TaxAmount float64
	Total     float64
}

// ComputeTotals derives subtotal, tax and grand total from the line items.
// Each amount is rounded to cents independently so the printed figures add up.
func ComputeTotals(items []ItemInput) Totals {
	var subtotal float64
	for _, it := range items {
		subtotal += roundCents(it.Quantity * it.UnitPrice)
	}
	subtotal = roundCents(subtotal)
	tax := roundCents(subtotal * TaxRate)
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     roundCents(subtotal + tax),
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
