package authz

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware wires capability checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// Require ensures the current principal holds at least one of the given
// capabilities. Browser requests are redirected to the dashboard; API
// requests receive a bare 403.
func (m Middleware) Require(caps ...Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, c := range caps {
				if p.Can(c) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Warn("capability denied",
					slog.Int64("user_id", p.ID),
					slog.String("role", string(p.Role)),
					slog.String("path", r.URL.Path))
			}
			if wantsJSON(r) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		})
	}
}

func wantsJSON(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
