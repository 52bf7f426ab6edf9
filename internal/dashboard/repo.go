package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibms-erp/ibms/internal/invoices"
)

// Repository runs the dashboard aggregate queries. Every method accepts an
// optional client scope; nil means all clients.
type Repository interface {
	Stats(ctx context.Context, scope *int64) (Stats, error)
	RecentInvoices(ctx context.Context, scope *int64, limit int) ([]invoices.Invoice, error)
	MonthlyRevenue(ctx context.Context, scope *int64, months int) ([]RevenuePoint, error)
	StatusDistribution(ctx context.Context, scope *int64) ([]StatusCount, error)
}

// PGRepository is the PostgreSQL Repository implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository builds a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Stats(ctx context.Context, scope *int64) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(total) FILTER (WHERE status = 'paid'), 0),
		        COALESCE(SUM(total) FILTER (WHERE status IN ('pending', 'overdue')), 0),
		        COUNT(*) FILTER (WHERE status = 'overdue')
		 FROM invoices
		 WHERE $1::bigint IS NULL OR client_id = $1`, scope,
	).Scan(&s.InvoiceCount, &s.Revenue, &s.Outstanding, &s.OverdueCount)
	if err != nil {
		return Stats{}, fmt.Errorf("invoice stats: %w", err)
	}
	if scope == nil {
		if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients`).Scan(&s.ClientCount); err != nil {
			return Stats{}, fmt.Errorf("client count: %w", err)
		}
	}
	return s, nil
}

func (r *PGRepository) RecentInvoices(ctx context.Context, scope *int64, limit int) ([]invoices.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT i.id, i.number, c.name, i.status, i.issue_date, i.due_date, i.total
		 FROM invoices i JOIN clients c ON c.id = i.client_id
		 WHERE $1::bigint IS NULL OR i.client_id = $1
		 ORDER BY i.created_at DESC
		 LIMIT $2`, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("recent invoices: %w", err)
	}
	defer rows.Close()

	var out []invoices.Invoice
	for rows.Next() {
		var inv invoices.Invoice
		var status string
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.ClientName, &status, &inv.IssueDate, &inv.DueDate, &inv.Total); err != nil {
			return nil, fmt.Errorf("scan recent invoice: %w", err)
		}
		inv.Status = invoices.Status(status)
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *PGRepository) MonthlyRevenue(ctx context.Context, scope *int64, months int) ([]RevenuePoint, error) {
	since := time.Now().AddDate(0, -months+1, 0)
	since = time.Date(since.Year(), since.Month(), 1, 0, 0, 0, 0, time.UTC)
	rows, err := r.pool.Query(ctx,
		`SELECT to_char(date_trunc('month', issue_date), 'YYYY-MM'), COALESCE(SUM(total), 0)
		 FROM invoices
		 WHERE status = 'paid' AND issue_date >= $1
		   AND ($2::bigint IS NULL OR client_id = $2)
		 GROUP BY 1
		 ORDER BY 1`, since, scope)
	if err != nil {
		return nil, fmt.Errorf("monthly revenue: %w", err)
	}
	defer rows.Close()

	var out []RevenuePoint
	for rows.Next() {
		var p RevenuePoint
		if err := rows.Scan(&p.Month, &p.Amount); err != nil {
			return nil, fmt.Errorf("scan revenue point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PGRepository) StatusDistribution(ctx context.Context, scope *int64) ([]StatusCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*)
		 FROM invoices
		 WHERE $1::bigint IS NULL OR client_id = $1
		 GROUP BY status
		 ORDER BY status`, scope)
	if err != nil {
		return nil, fmt.Errorf("status distribution: %w", err)
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		var status string
		if err := rows.Scan(&status, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		sc.Status = invoices.Status(status)
		out = append(out, sc)
	}
	return out, rows.Err()
}
