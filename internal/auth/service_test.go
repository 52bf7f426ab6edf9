package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/shared"
)

type memoryAuthRepo struct {
	mu     sync.Mutex
	users  map[int64]*User
	nextID int64
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{users: make(map[int64]*User)}
}

func (r *memoryAuthRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryAuthRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memoryAuthRepo) Create(ctx context.Context, user User) (int64, error) {
	for _, u := range r.users {
		if u.Email == user.Email {
			return 0, shared.ErrEmailTaken
		}
	}
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = &user
	return user.ID, nil
}

func (r *memoryAuthRepo) SetVerificationToken(ctx context.Context, userID int64, token string) error {
	u, ok := r.users[userID]
	if !ok || u.EmailVerified {
		return shared.ErrNotFound
	}
	u.VerificationToken = &token
	return nil
}

func (r *memoryAuthRepo) ConsumeVerificationToken(ctx context.Context, token string) error {
	for _, u := range r.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			u.EmailVerified = true
			u.VerificationToken = nil
			return nil
		}
	}
	return shared.ErrTokenInvalid
}

func (r *memoryAuthRepo) SetResetToken(ctx context.Context, email, token string, expires time.Time) (bool, error) {
	for _, u := range r.users {
		if u.Email == email {
			u.ResetToken = &token
			u.ResetTokenExpires = &expires
			return true, nil
		}
	}
	return false, nil
}

// ConsumeResetToken serializes callers the way the conditional UPDATE it
// stands in for does: the first consumer clears the token, later ones miss.
func (r *memoryAuthRepo) ConsumeResetToken(ctx context.Context, token, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ResetToken != nil && *u.ResetToken == token && u.ResetTokenExpires != nil && u.ResetTokenExpires.After(time.Now()) {
			u.PasswordHash = passwordHash
			u.ResetToken = nil
			u.ResetTokenExpires = nil
			return nil
		}
	}
	return shared.ErrTokenInvalid
}

var _ Repository = (*memoryAuthRepo)(nil)

type recordingMailer struct {
	verifications []string
	resets        []string
	lastToken     string
	failSend      bool
}

func (m *recordingMailer) SendVerification(ctx context.Context, to, name, token string) error {
	if m.failSend {
		return errors.New("smtp down")
	}
	m.verifications = append(m.verifications, to)
	m.lastToken = token
	return nil
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	if m.failSend {
		return errors.New("smtp down")
	}
	m.resets = append(m.resets, to)
	m.lastToken = token
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryAuthRepo, *recordingMailer) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryAuthRepo()
	mailer := &recordingMailer{}
	tokens := NewTokenManager(testSecret, time.Hour, 30*24*time.Hour)
	service := NewService(repo, tokens, NewRevoker(client), mailer, nil, slog.Default())
	return service, repo, mailer
}

func seedUser(t *testing.T, repo *memoryAuthRepo, email, password string, verified bool) *User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	id, err := repo.Create(context.Background(), User{
		FullName:      "Test User",
		Email:         email,
		PasswordHash:  hash,
		Role:          authz.RoleClient,
		IsActive:      true,
		EmailVerified: verified,
	})
	require.NoError(t, err)
	return repo.users[id]
}

func TestRegisterCreatesUnverifiedClient(t *testing.T) {
	service, repo, mailer := newTestService(t)

	user, mailOK, err := service.Register(context.Background(), RegisterInput{
		FullName: "Jordan Pike",
		Email:    "  Jordan@Example.COM ",
		Password: "supersecret",
	})
	require.NoError(t, err)
	require.True(t, mailOK)
	require.Equal(t, "jordan@example.com", user.Email)
	require.Equal(t, authz.RoleClient, user.Role)
	require.False(t, user.EmailVerified)
	require.NotNil(t, repo.users[user.ID].VerificationToken)
	require.Equal(t, []string{"jordan@example.com"}, mailer.verifications)
}

func TestRegisterSurvivesMailFailure(t *testing.T) {
	service, repo, mailer := newTestService(t)
	mailer.failSend = true

	user, mailOK, err := service.Register(context.Background(), RegisterInput{
		FullName: "Jordan Pike",
		Email:    "jordan@example.com",
		Password: "supersecret",
	})
	require.NoError(t, err)
	require.False(t, mailOK)
	require.Contains(t, repo.users, user.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	service, repo, _ := newTestService(t)
	seedUser(t, repo, "jordan@example.com", "supersecret", true)

	_, _, err := service.Register(context.Background(), RegisterInput{
		FullName: "Jordan Pike",
		Email:    "jordan@example.com",
		Password: "supersecret",
	})
	require.ErrorIs(t, err, shared.ErrEmailTaken)
}

func TestAuthenticateCollapsesFailureModes(t *testing.T) {
	service, repo, _ := newTestService(t)
	user := seedUser(t, repo, "jordan@example.com", "supersecret", true)

	_, err := service.Authenticate(context.Background(), "nobody@example.com", "supersecret")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = service.Authenticate(context.Background(), "jordan@example.com", "wrongpass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	user.IsActive = false
	_, err = service.Authenticate(context.Background(), "jordan@example.com", "supersecret")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	user.IsActive = true

	got, err := service.Authenticate(context.Background(), "Jordan@Example.com", "supersecret")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestAuthenticateUnverifiedIsDistinguishable(t *testing.T) {
	service, repo, _ := newTestService(t)
	seedUser(t, repo, "jordan@example.com", "supersecret", false)

	// Wrong password against an unverified account must not reveal the
	// verification state.
	_, err := service.Authenticate(context.Background(), "jordan@example.com", "wrongpass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = service.Authenticate(context.Background(), "jordan@example.com", "supersecret")
	require.ErrorIs(t, err, shared.ErrEmailUnverified)
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	service, repo, _ := newTestService(t)
	user := seedUser(t, repo, "jordan@example.com", "supersecret", true)

	_, token, expiresAt, err := service.Login(context.Background(), "jordan@example.com", "supersecret", false)
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	resolved, err := service.ResolveToken(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)
}

func TestLogoutRevokesToken(t *testing.T) {
	service, repo, _ := newTestService(t)
	seedUser(t, repo, "jordan@example.com", "supersecret", true)

	_, token, _, err := service.Login(context.Background(), "jordan@example.com", "supersecret", false)
	require.NoError(t, err)

	service.Logout(context.Background(), token)

	_, err = service.ResolveToken(context.Background(), token)
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestResolveTokenRejectsDeactivatedAccount(t *testing.T) {
	service, repo, _ := newTestService(t)
	user := seedUser(t, repo, "jordan@example.com", "supersecret", true)

	_, token, _, err := service.Login(context.Background(), "jordan@example.com", "supersecret", false)
	require.NoError(t, err)

	user.IsActive = false
	_, err = service.ResolveToken(context.Background(), token)
	require.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestVerifyEmailIsSingleUse(t *testing.T) {
	service, repo, _ := newTestService(t)
	user := seedUser(t, repo, "jordan@example.com", "supersecret", false)
	token := "abcdefabcdefabcdefabcdefabcdef12"
	user.VerificationToken = &token

	require.NoError(t, service.VerifyEmail(context.Background(), token))
	require.True(t, repo.users[user.ID].EmailVerified)

	require.ErrorIs(t, service.VerifyEmail(context.Background(), token), shared.ErrTokenInvalid)
	require.ErrorIs(t, service.VerifyEmail(context.Background(), ""), shared.ErrTokenInvalid)
}

func TestResendVerificationSkipsVerifiedAccounts(t *testing.T) {
	service, repo, mailer := newTestService(t)
	seedUser(t, repo, "verified@example.com", "supersecret", true)
	seedUser(t, repo, "pending@example.com", "supersecret", false)

	service.ResendVerification(context.Background(), "verified@example.com")
	service.ResendVerification(context.Background(), "missing@example.com")
	require.Empty(t, mailer.verifications)

	service.ResendVerification(context.Background(), "pending@example.com")
	require.Equal(t, []string{"pending@example.com"}, mailer.verifications)
}

func TestRequestPasswordResetNeverRevealsAccounts(t *testing.T) {
	service, repo, mailer := newTestService(t)
	seedUser(t, repo, "jordan@example.com", "supersecret", true)

	service.RequestPasswordReset(context.Background(), "missing@example.com")
	require.Empty(t, mailer.resets)

	service.RequestPasswordReset(context.Background(), "jordan@example.com")
	require.Equal(t, []string{"jordan@example.com"}, mailer.resets)
	require.NotEmpty(t, mailer.lastToken)
}

func TestResetPasswordIsSingleUse(t *testing.T) {
	service, repo, mailer := newTestService(t)
	user := seedUser(t, repo, "jordan@example.com", "supersecret", true)

	service.RequestPasswordReset(context.Background(), "jordan@example.com")
	token := mailer.lastToken
	require.NotEmpty(t, token)

	require.NoError(t, service.ResetPassword(context.Background(), token, "newpassword"))
	require.NoError(t, ComparePassword(repo.users[user.ID].PasswordHash, "newpassword"))

	// The first consumption nulled the token, so a replay fails.
	require.ErrorIs(t, service.ResetPassword(context.Background(), token, "anotherpass"), shared.ErrTokenInvalid)
}

func TestResetPasswordConcurrentSubmissions(t *testing.T) {
	service, repo, mailer := newTestService(t)
	user := seedUser(t, repo, "jordan@example.com", "supersecret", true)

	service.RequestPasswordReset(context.Background(), "jordan@example.com")
	token := mailer.lastToken
	require.NotEmpty(t, token)

	passwords := []string{"firstchoice", "secondchoice"}
	start := make(chan struct{})
	results := make(chan error, len(passwords))
	for _, password := range passwords {
		go func(p string) {
			<-start
			results <- service.ResetPassword(context.Background(), token, p)
		}(password)
	}
	close(start)

	var rejected int
	for range passwords {
		if err := <-results; err != nil {
			require.ErrorIs(t, err, shared.ErrTokenInvalid)
			rejected++
		}
	}
	require.Equal(t, 1, rejected, "exactly one submission may win")

	require.Nil(t, repo.users[user.ID].ResetToken)
	hash := repo.users[user.ID].PasswordHash
	winner := ComparePassword(hash, passwords[0]) == nil || ComparePassword(hash, passwords[1]) == nil
	require.True(t, winner, "stored hash belongs to the winning submission")
}

func TestResetPasswordRejectsExpiredToken(t *testing.T) {
	service, repo, _ := newTestService(t)
	user := seedUser(t, repo, "jordan@example.com", "supersecret", true)

	token := "deadbeefdeadbeefdeadbeefdeadbeef"
	expired := time.Now().Add(-time.Minute)
	user.ResetToken = &token
	user.ResetTokenExpires = &expired

	require.ErrorIs(t, service.ResetPassword(context.Background(), token, "newpassword"), shared.ErrTokenInvalid)
	require.NoError(t, ComparePassword(repo.users[user.ID].PasswordHash, "supersecret"))
}
