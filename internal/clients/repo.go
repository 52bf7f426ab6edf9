package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibms-erp/ibms/internal/shared"
)

// Repository provides client persistence.
type Repository interface {
	List(ctx context.Context, search string, limit, offset int) ([]Client, int, error)
	All(ctx context.Context) ([]Client, error)
	FindByID(ctx context.Context, id int64) (*Client, error)
	FindByUserID(ctx context.Context, userID int64) (*Client, error)
	Create(ctx context.Context, c Client) (int64, error)
	Update(ctx context.Context, c Client) error
	Delete(ctx context.Context, id int64) error
}

// PGRepository is the PostgreSQL Repository implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository builds a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const clientColumns = `id, name, email, COALESCE(phone, ''), COALESCE(address, ''), user_id, created_at, updated_at`

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// List returns a page of clients plus the total match count. An empty search
// matches everything.
func (r *PGRepository) List(ctx context.Context, search string, limit, offset int) ([]Client, int, error) {
	pattern := "%" + search + "%"
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM clients WHERE $1 = '%%' OR name ILIKE $1 OR email ILIKE $1`, pattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+clientColumns+` FROM clients
		 WHERE $1 = '%%' OR name ILIKE $1 OR email ILIKE $1
		 ORDER BY name ASC
		 LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// All returns every client ordered by name, for form dropdowns.
func (r *PGRepository) All(ctx context.Context) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("load clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.UserID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
}

// FindByUserID resolves the client record linked to a login account.
func (r *PGRepository) FindByUserID(ctx context.Context, userID int64) (*Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE user_id = $1`, userID))
}

func (r *PGRepository) Create(ctx context.Context, c Client) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO clients (name, email, phone, address, user_id)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		 RETURNING id`,
		c.Name, c.Email, c.Phone, c.Address, c.UserID,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrEmailTaken
		}
		return 0, fmt.Errorf("insert client: %w", err)
	}
	return id, nil
}

func (r *PGRepository) Update(ctx context.Context, c Client) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE clients
		 SET name = $1, email = $2, phone = NULLIF($3, ''), address = NULLIF($4, ''), user_id = $5, updated_at = NOW()
		 WHERE id = $6`,
		c.Name, c.Email, c.Phone, c.Address, c.UserID, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrEmailTaken
		}
		return fmt.Errorf("update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a client. The invoices foreign key is RESTRICT, so a client
// that still owns invoices surfaces as ErrConflict.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return shared.ErrConflict
		}
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
