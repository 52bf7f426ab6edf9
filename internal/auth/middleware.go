package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/platform/httpx"
)

// Gate is the authentication middleware guarding every protected page. It
// resolves the current user or ends the request; capability checks happen
// separately in the authz middleware.
type Gate struct {
	Service *Service
	Logger  *slog.Logger
	Secure  bool
}

// RequireUser resolves the bearer token into a principal stored in context.
// A missing or invalid token clears the stale cookie and redirects browser
// requests to the login page; API requests receive a 401 problem body.
func (g Gate) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			g.reject(w, r)
			return
		}
		user, err := g.Service.ResolveToken(r.Context(), token)
		if err != nil {
			g.reject(w, r)
			return
		}
		principal := &authz.Principal{
			ID:       user.ID,
			FullName: user.FullName,
			Email:    user.Email,
			Role:     user.Role,
		}
		next.ServeHTTP(w, r.WithContext(authz.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (g Gate) reject(w http.ResponseWriter, r *http.Request) {
	ClearTokenCookie(w, g.Secure)
	if wantsJSON(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
