package auth

import (
	"time"

	"github.com/ibms-erp/ibms/internal/authz"
)

// User represents a user account.
type User struct {
	ID                int64
	FullName          string
	Email             string
	PasswordHash      string
	Role              authz.Role
	IsActive          bool
	EmailVerified     bool
	VerificationToken *string
	ResetToken        *string
	ResetTokenExpires *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
