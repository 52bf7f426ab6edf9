package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ibms-erp/ibms/internal/shared"
)

func newStackRouter(t *testing.T) (chi.Router, *shared.CSRFManager) {
	t.Helper()
	csrf := shared.NewCSRFManager("middleware-test-secret", false)
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      slog.Default(),
		Config:      &Config{AppEnv: "development"},
		CSRFManager: csrf,
	}) {
		r.Use(mw)
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	return r, csrf
}

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	router, _ := newStackRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "default-src 'self'", rr.Header().Get("Content-Security-Policy"))
}

func TestMiddlewareSkipsCSRFForReads(t *testing.T) {
	router, _ := newStackRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddlewareRejectsPostWithoutCSRFToken(t *testing.T) {
	router, _ := newStackRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMiddlewareAcceptsPostWithCSRFToken(t *testing.T) {
	router, csrf := newStackRouter(t)

	// Mint a token the same way a GET page render would.
	mintRR := httptest.NewRecorder()
	token, err := csrf.EnsureToken(mintRR, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	var cookie *http.Cookie
	for _, c := range mintRR.Result().Cookies() {
		if c.Name == shared.CSRFCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	form := url.Values{shared.CSRFFormField: {token}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)
}
