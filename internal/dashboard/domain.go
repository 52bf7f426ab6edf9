package dashboard

import "github.com/ibms-erp/ibms/internal/invoices"

// Stats summarises the numbers shown on the dashboard cards. For client
// accounts every figure is scoped to their own invoices.
type Stats struct {
	InvoiceCount int
	ClientCount  int
	Revenue      float64
	Outstanding  float64
	OverdueCount int
}

// RevenuePoint is one month of paid revenue.
type RevenuePoint struct {
	Month  string
	Amount float64
}

// StatusCount is one slice of the status distribution chart.
type StatusCount struct {
	Status invoices.Status
	Count  int
}

// Overview aggregates everything the dashboard page renders.
type Overview struct {
	Stats          Stats
	RecentInvoices []invoices.Invoice
	Revenue        []RevenuePoint
	Distribution   []StatusCount
}
