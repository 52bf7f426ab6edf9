package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibms-erp/ibms/internal/platform/db"
	"github.com/ibms-erp/ibms/internal/shared"
)

// ListFilter narrows invoice listings.
type ListFilter struct {
	ClientID *int64
	Status   Status
	Search   string
	Limit    int
	Offset   int
}

// Reminder describes an invoice that just became overdue, with enough
// client context to send the notification email.
type Reminder struct {
	InvoiceID   int64
	Number      string
	Total       float64
	ClientName  string
	ClientEmail string
}

// Repository provides invoice persistence.
type Repository interface {
	List(ctx context.Context, f ListFilter) ([]Invoice, int, error)
	FindByID(ctx context.Context, id int64) (*Invoice, error)
	Create(ctx context.Context, inv Invoice) (*Invoice, error)
	Update(ctx context.Context, inv Invoice) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	DeleteDraft(ctx context.Context, id int64) error
	MarkOverdue(ctx context.Context, asOf time.Time) ([]Reminder, error)
}

// PGRepository is the PostgreSQL Repository implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository builds a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const invoiceColumns = `i.id, i.number, i.client_id, c.name, i.status, i.issue_date, i.due_date,
	i.subtotal, i.tax_amount, i.total, COALESCE(i.notes, ''), i.created_by, i.created_at, i.updated_at`

// List returns one page of invoices plus the total match count.
func (r *PGRepository) List(ctx context.Context, f ListFilter) ([]Invoice, int, error) {
	where := ` WHERE ($1::bigint IS NULL OR i.client_id = $1)
		AND ($2 = '' OR i.status = $2)
		AND ($3 = '' OR i.number ILIKE '%' || $3 || '%' OR c.name ILIKE '%' || $3 || '%')`
	args := []any{f.ClientID, string(f.Status), f.Search}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices i JOIN clients c ON c.id = i.client_id`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices i JOIN clients c ON c.id = i.client_id`+where+`
		 ORDER BY i.issue_date DESC, i.id DESC
		 LIMIT $4 OFFSET $5`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inv)
	}
	return out, total, rows.Err()
}

// FindByID loads an invoice header with its line items.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices i JOIN clients c ON c.id = i.client_id WHERE i.id = $1`, id))
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, invoice_id, description, quantity, unit_price, line_total
		 FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("load invoice items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		inv.Items = append(inv.Items, it)
	}
	return inv, rows.Err()
}

// Create inserts the header and all items in one transaction. The invoice
// number is derived inside the same transaction; a unique-number collision
// under concurrency is retried with a fresh sequence value.
func (r *PGRepository) Create(ctx context.Context, inv Invoice) (*Invoice, error) {
	const attempts = 3
	var lastErr error
	for i := 0; i < attempts; i++ {
		created, err := r.tryCreate(ctx, inv)
		if err == nil {
			return created, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("allocate invoice number: %w", lastErr)
}

func (r *PGRepository) tryCreate(ctx context.Context, inv Invoice) (*Invoice, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		number, err := nextNumber(ctx, tx, inv.IssueDate)
		if err != nil {
			return err
		}
		inv.Number = number
		err = tx.QueryRow(ctx,
			`INSERT INTO invoices (number, client_id, status, issue_date, due_date, subtotal, tax_amount, total, notes, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
			 RETURNING id, created_at, updated_at`,
			inv.Number, inv.ClientID, string(inv.Status), inv.IssueDate, inv.DueDate,
			money(inv.Subtotal), money(inv.TaxAmount), money(inv.Total), inv.Notes, inv.CreatedBy,
		).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			return err
		}
		return insertItems(ctx, tx, inv.ID, inv.Items)
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Update rewrites the header and replaces all line items in one transaction.
func (r *PGRepository) Update(ctx context.Context, inv Invoice) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE invoices
			 SET client_id = $1, status = $2, issue_date = $3, due_date = $4,
			     subtotal = $5, tax_amount = $6, total = $7, notes = NULLIF($8, ''), updated_at = NOW()
			 WHERE id = $9`,
			inv.ClientID, string(inv.Status), inv.IssueDate, inv.DueDate,
			money(inv.Subtotal), money(inv.TaxAmount), money(inv.Total), inv.Notes, inv.ID)
		if err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
			return fmt.Errorf("clear invoice items: %w", err)
		}
		return insertItems(ctx, tx, inv.ID, inv.Items)
	})
}

// UpdateStatus moves an invoice to a new lifecycle state.
func (r *PGRepository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteDraft removes an invoice only while it is still a draft. Items go
// with it via ON DELETE CASCADE.
func (r *PGRepository) DeleteDraft(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check invoice: %w", err)
	}
	if exists {
		return shared.ErrConflict
	}
	return shared.ErrNotFound
}

// MarkOverdue flips every pending invoice past its due date to overdue and
// returns reminder rows for notification.
func (r *PGRepository) MarkOverdue(ctx context.Context, asOf time.Time) ([]Reminder, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE invoices i
		 SET status = 'overdue', updated_at = NOW()
		 FROM clients c
		 WHERE c.id = i.client_id AND i.status = 'pending' AND i.due_date < $1
		 RETURNING i.id, i.number, i.total, c.name, c.email`, asOf)
	if err != nil {
		return nil, fmt.Errorf("mark overdue: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(&rem.InvoiceID, &rem.Number, &rem.Total, &rem.ClientName, &rem.ClientEmail); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

// nextNumber allocates the next INV-YYYYMM#### number within the open
// transaction. Month sequence restarts every calendar month.
func nextNumber(ctx context.Context, tx pgx.Tx, issueDate time.Time) (string, error) {
	prefix := "INV-" + issueDate.Format("200601")
	var count int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE number LIKE $1 || '%'`, prefix).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("count month invoices: %w", err)
	}
	return fmt.Sprintf("%s%04d", prefix, count+1), nil
}

func insertItems(ctx context.Context, tx pgx.Tx, invoiceID int64, items []Item) error {
	for _, it := range items {
		_, err := tx.Exec(ctx,
			`INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, line_total)
			 VALUES ($1, $2, $3, $4, $5)`,
			invoiceID, it.Description, it.Quantity, money(it.UnitPrice), money(it.LineTotal))
		if err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.Number, &inv.ClientID, &inv.ClientName, &status,
		&inv.IssueDate, &inv.DueDate, &inv.Subtotal, &inv.TaxAmount, &inv.Total,
		&inv.Notes, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	inv.Status = Status(status)
	return &inv, nil
}

// money renders a float amount as a fixed two-decimal literal for numeric
// columns.
func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
