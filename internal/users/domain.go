package users

import (
	"time"

	"github.com/ibms-erp/ibms/internal/authz"
)

// User is an account row as seen by the admin screens.
type User struct {
	ID            int64
	FullName      string
	Email         string
	Role          authz.Role
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateInput carries a validated admin create-user form.
type CreateInput struct {
	FullName string `validate:"required,min=2,max=120"`
	Email    string `validate:"required,email"`
	Role     string `validate:"required"`
	// SendCredentials emails a generated password; the account is created
	// pre-verified so the recipient can log in straight away.
	SendCredentials bool
}

// UpdateInput carries a validated admin edit-user form.
type UpdateInput struct {
	FullName string `validate:"required,min=2,max=120"`
	Email    string `validate:"required,email"`
	Role     string `validate:"required"`
	IsActive bool
}
