package invoices

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ibms-erp/ibms/internal/shared"
)

// Service wraps invoice business rules.
type Service struct {
	repo     Repository
	activity *shared.ActivityLogger
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, activity *shared.ActivityLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, activity: activity, logger: logger}
}

// ListOptions carries the listing request. A non-nil ClientScope restricts
// results to that client regardless of the other filters; it is how portal
// accounts are boxed into their own invoices.
type ListOptions struct {
	ClientScope *int64
	Status      string
	Search      string
	Page        int
}

// List returns a page of invoices.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Invoice, shared.Pagination, error) {
	p := shared.NewPagination(opts.Page, 0, 0)
	filter := ListFilter{
		ClientID: opts.ClientScope,
		Search:   strings.TrimSpace(opts.Search),
		Limit:    p.PerPage,
		Offset:   p.Offset(),
	}
	if status, ok := ParseStatus(opts.Status); ok {
		filter.Status = status
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// Get loads an invoice. When clientScope is set, invoices of other clients
// surface as not found rather than forbidden.
func (s *Service) Get(ctx context.Context, id int64, clientScope *int64) (*Invoice, error) {
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if clientScope != nil && inv.ClientID != *clientScope {
		return nil, shared.ErrNotFound
	}
	return inv, nil
}

// Create computes totals, allocates the number and stores header plus items
// atomically.
func (s *Service) Create(ctx context.Context, actorID int64, in InvoiceInput) (*Invoice, error) {
	inv := s.build(in)
	inv.CreatedBy = actorID
	created, err := s.repo.Create(ctx, inv)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "invoice.create", created.ID, map[string]any{"number": created.Number, "total": created.Total})
	return created, nil
}

// Update recomputes totals and replaces the stored header and items.
func (s *Service) Update(ctx context.Context, actorID, id int64, in InvoiceInput) error {
	inv := s.build(in)
	inv.ID = id
	if err := s.repo.Update(ctx, inv); err != nil {
		return err
	}
	s.record(ctx, actorID, "invoice.update", id, map[string]any{"total": inv.Total})
	return nil
}

// SetStatus moves an invoice into a new lifecycle state.
func (s *Service) SetStatus(ctx context.Context, actorID, id int64, raw string) error {
	status, ok := ParseStatus(raw)
	if !ok {
		return shared.ErrValidation
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.record(ctx, actorID, "invoice.status", id, map[string]any{"status": string(status)})
	return nil
}

// Delete removes a draft invoice. Issued invoices cannot be deleted and
// return shared.ErrConflict.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteDraft(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "invoice.delete", id, nil)
	return nil
}

// MarkOverdue flips pending invoices past their due date and reports who to
// remind.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) ([]Reminder, error) {
	reminders, err := s.repo.MarkOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}
	for _, rem := range reminders {
		s.record(ctx, 0, "invoice.overdue", rem.InvoiceID, map[string]any{"number": rem.Number})
	}
	return reminders, nil
}

func (s *Service) build(in InvoiceInput) Invoice {
	items := make([]Item, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, Item{
			Description: strings.TrimSpace(it.Description),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   roundCents(it.Quantity * it.UnitPrice),
		})
	}
	totals := ComputeTotals(in.Items)
	return Invoice{
		ClientID:  in.ClientID,
		Status:    in.Status,
		IssueDate: in.IssueDate,
		DueDate:   in.DueDate,
		Subtotal:  totals.Subtotal,
		TaxAmount: totals.TaxAmount,
		Total:     totals.Total,
		Notes:     strings.TrimSpace(in.Notes),
		Items:     items,
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.activity == nil {
		return
	}
	err := s.activity.Record(ctx, shared.ActivityLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("record activity", slog.Any("error", err))
	}
}
