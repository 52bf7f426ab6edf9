package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailUnverified indicates login before email verification.
	ErrEmailUnverified = errors.New("email not verified")
	// ErrEmailTaken indicates a duplicate email on registration.
	ErrEmailTaken = errors.New("email already registered")
	// ErrTokenInvalid indicates a consumed, expired or unknown single-use token.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrConflict indicates a referential conflict (e.g. deleting a client with invoices).
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates a request that failed input validation.
	ErrValidation = errors.New("validation failed")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps an internal error to text that can be shown to the
// user without leaking infrastructure details.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials"
	case errors.Is(err, ErrEmailUnverified):
		return "Please verify your email before logging in."
	case errors.Is(err, ErrEmailTaken):
		return "An account with this email already exists."
	case errors.Is(err, ErrTokenInvalid):
		return "Invalid or expired token."
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrConflict):
		return "The record is referenced by other data and cannot be changed."
	case errors.Is(err, ErrValidation):
		return "Please check the highlighted fields and try again."
	default:
		return "Something went wrong. Please try again."
	}
}
