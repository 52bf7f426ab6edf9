package users

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ibms-erp/ibms/internal/auth"
	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/shared"
)

type memoryUserRepo struct {
	users      map[int64]*User
	hashes     map[int64]string
	referenced map[int64]bool
	nextID     int64
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		users:      make(map[int64]*User),
		hashes:     make(map[int64]string),
		referenced: make(map[int64]bool),
	}
}

func (r *memoryUserRepo) List(ctx context.Context, limit, offset int) ([]User, int, error) {
	var out []User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memoryUserRepo) Create(ctx context.Context, u User, passwordHash string) (int64, error) {
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return 0, shared.ErrEmailTaken
		}
	}
	r.nextID++
	u.ID = r.nextID
	r.users[u.ID] = &u
	r.hashes[u.ID] = passwordHash
	return u.ID, nil
}

func (r *memoryUserRepo) Update(ctx context.Context, u User) error {
	stored, ok := r.users[u.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.FullName = u.FullName
	stored.Email = u.Email
	stored.Role = u.Role
	stored.IsActive = u.IsActive
	return nil
}

func (r *memoryUserRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.users[id]; !ok {
		return shared.ErrNotFound
	}
	if r.referenced[id] {
		return shared.ErrConflict
	}
	delete(r.users, id)
	return nil
}

var _ Repository = (*memoryUserRepo)(nil)

type welcomeMailer struct {
	sent      []string
	passwords []string
}

func (m *welcomeMailer) SendWelcomeCredentials(ctx context.Context, to, name, password string) error {
	m.sent = append(m.sent, to)
	m.passwords = append(m.passwords, password)
	return nil
}

func newTestUserService() (*Service, *memoryUserRepo, *welcomeMailer) {
	repo := newMemoryUserRepo()
	mailer := &welcomeMailer{}
	return NewService(repo, mailer, nil, slog.Default()), repo, mailer
}

func TestCreateWithCredentialsEmailsPassword(t *testing.T) {
	service, repo, mailer := newTestUserService()

	created, err := service.Create(context.Background(), 1, CreateInput{
		FullName:        "Alice Ledger",
		Email:           "Alice@Example.com",
		Role:            "accountant",
		SendCredentials: true,
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", created.Email)
	require.Equal(t, authz.RoleAccountant, created.Role)
	require.True(t, created.EmailVerified, "credentialed accounts start verified")
	require.Equal(t, []string{"alice@example.com"}, mailer.sent)

	// The emailed password matches the stored hash.
	require.Len(t, mailer.passwords, 1)
	require.Len(t, mailer.passwords[0], 16)
	require.NoError(t, auth.ComparePassword(repo.hashes[created.ID], mailer.passwords[0]))
}

func TestCreateWithoutCredentialsStaysUnverified(t *testing.T) {
	service, _, mailer := newTestUserService()

	created, err := service.Create(context.Background(), 1, CreateInput{
		FullName: "Alice Ledger",
		Email:    "alice@example.com",
		Role:     "client",
	})
	require.NoError(t, err)
	require.False(t, created.EmailVerified)
	require.Empty(t, mailer.sent)
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	service, _, _ := newTestUserService()

	_, err := service.Create(context.Background(), 1, CreateInput{
		FullName: "Alice Ledger",
		Email:    "alice@example.com",
		Role:     "superuser",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateChangesRoleAndActivity(t *testing.T) {
	service, repo, _ := newTestUserService()
	created, err := service.Create(context.Background(), 1, CreateInput{
		FullName: "Alice Ledger",
		Email:    "alice@example.com",
		Role:     "client",
	})
	require.NoError(t, err)

	require.NoError(t, service.Update(context.Background(), 1, created.ID, UpdateInput{
		FullName: "Alice B. Ledger",
		Email:    "alice@example.com",
		Role:     "admin",
		IsActive: false,
	}))
	stored := repo.users[created.ID]
	require.Equal(t, authz.RoleAdmin, stored.Role)
	require.False(t, stored.IsActive)

	require.ErrorIs(t, service.Update(context.Background(), 1, created.ID, UpdateInput{
		FullName: "Alice",
		Email:    "alice@example.com",
		Role:     "bogus",
	}), shared.ErrValidation)
}

func TestDeleteForbidsSelfDeletion(t *testing.T) {
	service, repo, _ := newTestUserService()
	created, err := service.Create(context.Background(), 1, CreateInput{
		FullName: "Alice Ledger",
		Email:    "alice@example.com",
		Role:     "accountant",
	})
	require.NoError(t, err)

	require.ErrorIs(t, service.Delete(context.Background(), created.ID, created.ID), shared.ErrConflict)
	require.Contains(t, repo.users, created.ID)

	require.NoError(t, service.Delete(context.Background(), 99, created.ID))
	require.NotContains(t, repo.users, created.ID)
}

func TestDeleteKeepsReferencedAccounts(t *testing.T) {
	service, repo, _ := newTestUserService()
	created, err := service.Create(context.Background(), 1, CreateInput{
		FullName: "Alice Ledger",
		Email:    "alice@example.com",
		Role:     "accountant",
	})
	require.NoError(t, err)

	repo.referenced[created.ID] = true
	require.ErrorIs(t, service.Delete(context.Background(), 99, created.ID), shared.ErrConflict)
	require.Contains(t, repo.users, created.ID)
}
