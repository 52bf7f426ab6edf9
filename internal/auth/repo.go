package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibms-erp/ibms/internal/shared"
)

// Repository defines persistence operations for the auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, user User) (int64, error)
	SetVerificationToken(ctx context.Context, userID int64, token string) error
	ConsumeVerificationToken(ctx context.Context, token string) error
	SetResetToken(ctx context.Context, email, token string, expires time.Time) (bool, error)
	ConsumeResetToken(ctx context.Context, token, passwordHash string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, full_name, email, password_hash, role, is_active, email_verified, verification_token, reset_token, reset_token_expires, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &user.Role,
		&user.IsActive, &user.EmailVerified, &user.VerificationToken,
		&user.ResetToken, &user.ResetTokenExpires, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// Create inserts a new account. Duplicate emails surface as shared.ErrEmailTaken;
// the unique constraint, not application locking, serialises concurrent signups.
func (r *PGRepository) Create(ctx context.Context, user User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (full_name, email, password_hash, role, is_active, email_verified, verification_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		user.FullName, user.Email, user.PasswordHash, user.Role, user.IsActive, user.EmailVerified, user.VerificationToken,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrEmailTaken
		}
		return 0, err
	}
	return id, nil
}

// SetVerificationToken stores a fresh verification token for an unverified account.
func (r *PGRepository) SetVerificationToken(ctx context.Context, userID int64, token string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET verification_token = $1, updated_at = NOW() WHERE id = $2 AND email_verified = FALSE`,
		token, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ConsumeVerificationToken marks the account verified and nulls the token.
// The update is conditional on the token still being present so that only
// the first of two racing consumers succeeds.
func (r *PGRepository) ConsumeVerificationToken(ctx context.Context, token string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET email_verified = TRUE, verification_token = NULL, updated_at = NOW() WHERE verification_token = $1`,
		token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrTokenInvalid
	}
	return nil
}

// SetResetToken stores a reset token for the account with the given email.
// The boolean reports whether such an account exists; callers must respond
// identically either way.
func (r *PGRepository) SetResetToken(ctx context.Context, email, token string, expires time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET reset_token = $1, reset_token_expires = $2, updated_at = NOW() WHERE email = $3`,
		token, expires, email)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ConsumeResetToken replaces the password hash and nulls the token in one
// conditional update. Expired, consumed and unknown tokens all fail the
// WHERE clause and report shared.ErrTokenInvalid.
func (r *PGRepository) ConsumeResetToken(ctx context.Context, token, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, reset_token = NULL, reset_token_expires = NULL, updated_at = NOW()
		 WHERE reset_token = $2 AND reset_token_expires > NOW()`,
		passwordHash, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrTokenInvalid
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PGRepository)(nil)
