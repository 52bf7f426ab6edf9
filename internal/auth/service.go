package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/shared"
)

const resetTokenValidity = time.Hour

// Mailer dispatches the transactional emails owned by the auth flows.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *TokenManager
	revoker  *Revoker
	mailer   Mailer
	activity *shared.ActivityLogger
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenManager, revoker *Revoker, mailer Mailer, activity *shared.ActivityLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, revoker: revoker, mailer: mailer, activity: activity, logger: logger}
}

// RegisterInput carries a validated registration form.
type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

// Register creates an unverified client account and dispatches the
// verification email. The second return reports whether that email went out;
// a failed send does not roll back the account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, bool, error) {
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, false, err
	}
	token, err := randomToken()
	if err != nil {
		return nil, false, err
	}
	user := User{
		FullName:          strings.TrimSpace(in.FullName),
		Email:             normalizeEmail(in.Email),
		PasswordHash:      hash,
		Role:              authz.RoleClient,
		IsActive:          true,
		EmailVerified:     false,
		VerificationToken: &token,
	}
	id, err := s.repo.Create(ctx, user)
	if err != nil {
		return nil, false, err
	}
	user.ID = id

	mailOK := true
	if err := s.mailer.SendVerification(ctx, user.Email, user.FullName, token); err != nil {
		mailOK = false
		s.log().Error("send verification email", slog.Any("error", err))
	}
	s.record(ctx, id, "user.register", "user", id, map[string]any{"email": user.Email})
	return &user, mailOK, nil
}

// Authenticate validates email/password credentials. Missing accounts,
// inactive accounts and wrong passwords all yield the same error; only a
// correct password against an unverified account is distinguishable, so the
// UI can offer to resend the verification email.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return nil, shared.ErrEmailUnverified
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string, remember bool) (*User, string, time.Time, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	token, expiresAt, err := s.tokens.Issue(user.ID, remember)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	s.record(ctx, user.ID, "user.login", "user", user.ID, map[string]any{"remember": remember})
	return user, token, expiresAt, nil
}

// Logout denylists the presented token for its remaining lifetime.
func (s *Service) Logout(ctx context.Context, rawToken string) {
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return
	}
	if err := s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.log().Warn("revoke token", slog.Any("error", err))
	}
	s.record(ctx, claims.UserID, "user.logout", "user", claims.UserID, nil)
}

// ResolveToken verifies the bearer token, checks the revocation list and
// loads the account behind it.
func (s *Service) ResolveToken(ctx context.Context, rawToken string) (*User, error) {
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.log().Warn("revocation check", slog.Any("error", err))
	}
	if revoked {
		return nil, shared.ErrTokenInvalid
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, shared.ErrTokenInvalid
	}
	if !user.IsActive || !user.EmailVerified {
		return nil, shared.ErrTokenInvalid
	}
	return user, nil
}

// VerifyEmail consumes a verification token. A second use of the same token
// fails because the first consumption nulled it.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return shared.ErrTokenInvalid
	}
	if err := s.repo.ConsumeVerificationToken(ctx, token); err != nil {
		return err
	}
	s.record(ctx, 0, "user.verify_email", "user", 0, nil)
	return nil
}

// ResendVerification issues a fresh verification token when the email
// belongs to an unverified account. The caller's response must not depend on
// the outcome.
func (s *Service) ResendVerification(ctx context.Context, email string) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil || user.EmailVerified {
		return
	}
	token, err := randomToken()
	if err != nil {
		s.log().Error("generate verification token", slog.Any("error", err))
		return
	}
	if err := s.repo.SetVerificationToken(ctx, user.ID, token); err != nil {
		s.log().Warn("store verification token", slog.Any("error", err))
		return
	}
	if err := s.mailer.SendVerification(ctx, user.Email, user.FullName, token); err != nil {
		s.log().Error("send verification email", slog.Any("error", err))
	}
}

// RequestPasswordReset stores a time-bounded reset token and emails it when
// the account exists. It never reports whether the email was known.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) {
	token, err := randomToken()
	if err != nil {
		s.log().Error("generate reset token", slog.Any("error", err))
		return
	}
	expires := time.Now().Add(resetTokenValidity)
	found, err := s.repo.SetResetToken(ctx, normalizeEmail(email), token, expires)
	if err != nil {
		s.log().Error("store reset token", slog.Any("error", err))
		return
	}
	if !found {
		return
	}
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return
	}
	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.FullName, token); err != nil {
		s.log().Error("send reset email", slog.Any("error", err))
	}
	s.record(ctx, user.ID, "user.reset_requested", "user", user.ID, nil)
}

// ResetPassword consumes the reset token and installs the new password.
// Exactly one of two concurrent submissions with the same token succeeds;
// the other sees shared.ErrTokenInvalid from the conditional update.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return shared.ErrTokenInvalid
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.ConsumeResetToken(ctx, token, hash); err != nil {
		return err
	}
	s.record(ctx, 0, "user.reset_password", "user", 0, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.activity == nil {
		return
	}
	err := s.activity.Record(ctx, shared.ActivityLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.log().Warn("record activity", slog.Any("error", err))
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// randomToken returns a 32-character hex token for verification/reset links.
func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
