package auth

import (
	"errors"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ibms-erp/ibms/internal/shared"
)

// TokenManager issues and verifies the signed bearer tokens carried in the
// auth cookie.
type TokenManager struct {
	secret      []byte
	ttl         time.Duration
	rememberTTL time.Duration
}

// NewTokenManager builds a manager with the default and "remember me" windows.
func NewTokenManager(secret string, ttl, rememberTTL time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if rememberTTL <= 0 {
		rememberTTL = 30 * 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, rememberTTL: rememberTTL}
}

// Claims describes the token payload.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Issue signs a token for the user. The validity window is the remember
// window when remember is set, the default window otherwise.
func (tm *TokenManager) Issue(userID int64, remember bool) (string, time.Time, error) {
	now := time.Now()
	ttl := tm.ttl
	if remember {
		ttl = tm.rememberTTL
	}
	expiresAt := now.Add(ttl)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry. Malformed, tampered and expired tokens
// all collapse to shared.ErrTokenInvalid so callers cannot tell which check
// failed.
func (tm *TokenManager) Verify(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, shared.ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID <= 0 {
		return nil, shared.ErrTokenInvalid
	}
	return claims, nil
}

// TTL exposes the default validity window.
func (tm *TokenManager) TTL() time.Duration { return tm.ttl }

// RememberTTL exposes the extended validity window.
func (tm *TokenManager) RememberTTL() time.Duration { return tm.rememberTTL }
