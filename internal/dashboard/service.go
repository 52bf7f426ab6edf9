package dashboard

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ibms-erp/ibms/internal/invoices"
)

const (
	recentInvoiceLimit = 5
	revenueMonths      = 6
)

// Service aggregates the dashboard queries.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Overview runs the four dashboard queries concurrently. A non-nil scope
// limits every figure to one client.
func (s *Service) Overview(ctx context.Context, scope *int64) (*Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stats, err := s.repo.Stats(gctx, scope)
		if err != nil {
			return err
		}
		out.Stats = stats
		return nil
	})
	g.Go(func() error {
		recent, err := s.repo.RecentInvoices(gctx, scope, recentInvoiceLimit)
		if err != nil {
			return err
		}
		out.RecentInvoices = recent
		return nil
	})
	g.Go(func() error {
		revenue, err := s.repo.MonthlyRevenue(gctx, scope, revenueMonths)
		if err != nil {
			return err
		}
		out.Revenue = revenue
		return nil
	})
	g.Go(func() error {
		dist, err := s.repo.StatusDistribution(gctx, scope)
		if err != nil {
			return err
		}
		out.Distribution = dist
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if out.RecentInvoices == nil {
		out.RecentInvoices = []invoices.Invoice{}
	}
	return &out, nil
}
