package auth

import (
	"strconv"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ibms-erp/ibms/internal/shared"
)

const testSecret = "token-test-secret"

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour, 30*24*time.Hour)

	token, expiresAt, err := tm.Issue(42, false)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.NotEmpty(t, claims.ID)
}

func TestIssueRememberUsesExtendedWindow(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour, 30*24*time.Hour)

	_, short, err := tm.Issue(1, false)
	require.NoError(t, err)
	_, long, err := tm.Issue(1, true)
	require.NoError(t, err)

	require.True(t, long.After(short.Add(24*time.Hour)), "remember me window should be much longer")
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour, 0)

	token, _, err := tm.Issue(7, false)
	require.NoError(t, err)

	_, err = tm.Verify(token + "x")
	require.ErrorIs(t, err, shared.ErrTokenInvalid)

	_, err = tm.Verify("not-a-token")
	require.ErrorIs(t, err, shared.ErrTokenInvalid)

	_, err = tm.Verify("")
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	issuer := NewTokenManager("other-secret", time.Hour, 0)
	verifier := NewTokenManager(testSecret, time.Hour, 0)

	token, _, err := issuer.Issue(7, false)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour, 0)

	claims := &Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "expired",
			Subject:   strconv.FormatInt(7, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = tm.Verify(token)
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestVerifyRejectsUnexpectedSigningMethod(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour, 0)

	claims := &Claims{
		UserID: 7,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "hs512",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = tm.Verify(token)
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour, 0)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "no-user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = tm.Verify(token)
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
}
