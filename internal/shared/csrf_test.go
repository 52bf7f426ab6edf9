package shared

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func issueToken(t *testing.T, m *CSRFManager) (string, *http.Cookie) {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	token, err := m.EnsureToken(rr, req)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	for _, c := range rr.Result().Cookies() {
		if c.Name == CSRFCookieName {
			return token, c
		}
	}
	t.Fatal("csrf cookie not set")
	return "", nil
}

func TestEnsureTokenReusesValidCookie(t *testing.T) {
	m := NewCSRFManager("csrf-secret", false)
	token, cookie := issueToken(t, m)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(cookie)
	again, err := m.EnsureToken(rr, req)
	require.NoError(t, err)
	require.Equal(t, token, again)
	require.Empty(t, rr.Result().Cookies(), "valid cookie should not be reissued")
}

func TestEnsureTokenReplacesForgedCookie(t *testing.T) {
	m := NewCSRFManager("csrf-secret", false)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "forged-value"})
	token, err := m.EnsureToken(rr, req)
	require.NoError(t, err)
	require.NotEqual(t, "forged-value", token)
}

func postWithToken(cookie *http.Cookie, field, header string) *http.Request {
	form := url.Values{}
	if field != "" {
		form.Set(CSRFFormField, field)
	}
	req := httptest.NewRequest(http.MethodPost, "/clients", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if header != "" {
		req.Header.Set(CSRFHeader, header)
	}
	return req
}

func TestVerifyRequestAcceptsFormField(t *testing.T) {
	m := NewCSRFManager("csrf-secret", false)
	token, cookie := issueToken(t, m)

	require.NoError(t, m.VerifyRequest(postWithToken(cookie, token, "")))
}

func TestVerifyRequestAcceptsHeader(t *testing.T) {
	m := NewCSRFManager("csrf-secret", false)
	token, cookie := issueToken(t, m)

	require.NoError(t, m.VerifyRequest(postWithToken(cookie, "", token)))
}

func TestVerifyRequestRejectsMissingPieces(t *testing.T) {
	m := NewCSRFManager("csrf-secret", false)
	token, cookie := issueToken(t, m)

	require.ErrorIs(t, m.VerifyRequest(postWithToken(nil, token, "")), ErrCSRFTokenMissing)
	require.ErrorIs(t, m.VerifyRequest(postWithToken(cookie, "", "")), ErrCSRFTokenMissing)
}

func TestVerifyRequestRejectsMismatchedToken(t *testing.T) {
	m := NewCSRFManager("csrf-secret", false)
	token, cookie := issueToken(t, m)

	other, _ := issueToken(t, m)
	require.NotEqual(t, token, other)
	require.ErrorIs(t, m.VerifyRequest(postWithToken(cookie, other, "")), ErrCSRFTokenMismatch)
}

func TestVerifyRequestRejectsForeignSecret(t *testing.T) {
	mint := NewCSRFManager("one-secret", false)
	verify := NewCSRFManager("another-secret", false)
	token, cookie := issueToken(t, mint)

	require.ErrorIs(t, verify.VerifyRequest(postWithToken(cookie, token, "")), ErrCSRFTokenMismatch)
}
