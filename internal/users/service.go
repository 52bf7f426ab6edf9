package users

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ibms-erp/ibms/internal/auth"
	"github.com/ibms-erp/ibms/internal/authz"
	"github.com/ibms-erp/ibms/internal/shared"
)

// Mailer delivers initial credentials for admin-created accounts.
type Mailer interface {
	SendWelcomeCredentials(ctx context.Context, to, name, password string) error
}

// Service wraps account administration rules.
type Service struct {
	repo     Repository
	mailer   Mailer
	activity *shared.ActivityLogger
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, mailer Mailer, activity *shared.ActivityLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, mailer: mailer, activity: activity, logger: logger}
}

// List returns a page of accounts.
func (s *Service) List(ctx context.Context, page int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, 0, 0)
	items, total, err := s.repo.List(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// Get loads one account.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// Create stores a new account with a generated password. When
// SendCredentials is set, the password is emailed and the account is created
// pre-verified.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (*User, error) {
	role, ok := authz.ParseRole(in.Role)
	if !ok {
		return nil, shared.ErrValidation
	}
	password, err := generatePassword()
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := User{
		FullName:      strings.TrimSpace(in.FullName),
		Email:         strings.ToLower(strings.TrimSpace(in.Email)),
		Role:          role,
		IsActive:      true,
		EmailVerified: in.SendCredentials,
	}
	id, err := s.repo.Create(ctx, u, hash)
	if err != nil {
		return nil, err
	}
	u.ID = id

	if in.SendCredentials {
		if err := s.mailer.SendWelcomeCredentials(ctx, u.Email, u.FullName, password); err != nil {
			s.logger.Error("send credentials email", slog.Int64("user_id", id), slog.Any("error", err))
		}
	}
	s.record(ctx, actorID, "user.create", id, map[string]any{"role": string(role)})
	return &u, nil
}

// Update applies a validated admin form to an account.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) error {
	role, ok := authz.ParseRole(in.Role)
	if !ok {
		return shared.ErrValidation
	}
	u := User{
		ID:       id,
		FullName: strings.TrimSpace(in.FullName),
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Role:     role,
		IsActive: in.IsActive,
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.update", id, map[string]any{"role": string(role), "active": in.IsActive})
	return nil
}

// Delete removes an account. Admins cannot delete themselves.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return shared.ErrConflict
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.activity == nil {
		return
	}
	err := s.activity.Record(ctx, shared.ActivityLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("record activity", slog.Any("error", err))
	}
}

// generatePassword returns a 16-character URL-safe random password.
func generatePassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
