package httpx

import (
	"errors"
	"net/http"

	"github.com/ibms-erp/ibms/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Infrastructure errors collapse to a generic 500 without detail.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrEmailTaken), errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrTokenInvalid):
		Problem(w, http.StatusBadRequest, "Invalid Token", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrEmailUnverified):
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
