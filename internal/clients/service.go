package clients

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ibms-erp/ibms/internal/shared"
)

// Service wraps client business rules.
type Service struct {
	repo     Repository
	activity *shared.ActivityLogger
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, activity *shared.ActivityLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, activity: activity, logger: logger}
}

// List returns a page of clients matching the search term.
func (s *Service) List(ctx context.Context, search string, page int) ([]Client, shared.Pagination, error) {
	p := shared.NewPagination(page, 0, 0)
	items, total, err := s.repo.List(ctx, strings.TrimSpace(search), p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// All returns every client for selection lists.
func (s *Service) All(ctx context.Context) ([]Client, error) {
	return s.repo.All(ctx)
}

// Get loads a single client.
func (s *Service) Get(ctx context.Context, id int64) (*Client, error) {
	return s.repo.FindByID(ctx, id)
}

// ForUser resolves the client record linked to a portal account.
func (s *Service) ForUser(ctx context.Context, userID int64) (*Client, error) {
	return s.repo.FindByUserID(ctx, userID)
}

// Create stores a new client.
func (s *Service) Create(ctx context.Context, actorID int64, in ClientInput) (*Client, error) {
	c := Client{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:   strings.TrimSpace(in.Phone),
		Address: strings.TrimSpace(in.Address),
		UserID:  in.UserID,
	}
	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	s.record(ctx, actorID, "client.create", id, map[string]any{"name": c.Name})
	return &c, nil
}

// Update applies a validated form to an existing client.
func (s *Service) Update(ctx context.Context, actorID, id int64, in ClientInput) error {
	c := Client{
		ID:      id,
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:   strings.TrimSpace(in.Phone),
		Address: strings.TrimSpace(in.Address),
		UserID:  in.UserID,
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}
	s.record(ctx, actorID, "client.update", id, map[string]any{"name": c.Name})
	return nil
}

// Delete removes a client without invoices. Clients with invoices return
// shared.ErrConflict.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "client.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.activity == nil {
		return
	}
	err := s.activity.Record(ctx, shared.ActivityLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "client",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("record activity", slog.Any("error", err))
	}
}
