package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/shared"
)

// Repository provides account persistence for the admin screens.
type Repository interface {
	List(ctx context.Context, limit, offset int) ([]User, int, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, u User, passwordHash string) (int64, error)
	Update(ctx context.Context, u User) error
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

const userColumns = `id, full_name, email, role, is_active, email_verified, created_at, updated_at`

func (r *PGRepository) List(ctx context.Context, limit, offset int) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var role string
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &role, &u.IsActive, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		u.Role = authz.Role(role)
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	var u User
	var role string
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.FullName, &u.Email, &role, &u.IsActive, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	u.Role = authz.Role(role)
	return &u, nil
}

func (r *PGRepository) Create(ctx context.Context, u User, passwordHash string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (full_name, email, password_hash, role, is_active, email_verified)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		u.FullName, u.Email, passwordHash, string(u.Role), u.IsActive, u.EmailVerified,
	).Scan(&id)
	if err != nil {
		if isPGCode(err, "23505") {
			return 0, shared.ErrEmailTaken
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (r *PGRepository) Update(ctx context.Context, u User) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET full_name = $1, email = $2, role = $3, is_active = $4, updated_at = NOW()
		 WHERE id = $5`,
		u.FullName, u.Email, string(u.Role), u.IsActive, u.ID)
	if err != nil {
		if isPGCode(err, "23505") {
			return shared.ErrEmailTaken
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an account. Accounts referenced by invoices or linked
// clients surface as ErrConflict through the RESTRICT foreign keys.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if isPGCode(err, "23503") {
			return shared.ErrConflict
		}
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func isPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
