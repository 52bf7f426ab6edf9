package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ibms-erp/ibms/internal/invoices"
)

type stubDashboardRepo struct {
	stats        Stats
	recent       []invoices.Invoice
	revenue      []RevenuePoint
	distribution []StatusCount
	failRevenue  error
	seenScopes   []*int64
}

func (r *stubDashboardRepo) Stats(ctx context.Context, scope *int64) (Stats, error) {
	r.seenScopes = append(r.seenScopes, scope)
	return r.stats, nil
}

func (r *stubDashboardRepo) RecentInvoices(ctx context.Context, scope *int64, limit int) ([]invoices.Invoice, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	return r.recent, nil
}

func (r *stubDashboardRepo) MonthlyRevenue(ctx context.Context, scope *int64, months int) ([]RevenuePoint, error) {
	if r.failRevenue != nil {
		return nil, r.failRevenue
	}
	return r.revenue, nil
}

func (r *stubDashboardRepo) StatusDistribution(ctx context.Context, scope *int64) ([]StatusCount, error) {
	return r.distribution, nil
}

var _ Repository = (*stubDashboardRepo)(nil)

func TestOverviewAggregatesAllQueries(t *testing.T) {
	repo := &stubDashboardRepo{
		stats:   Stats{InvoiceCount: 12, ClientCount: 4, Revenue: 1050.50, Outstanding: 320, OverdueCount: 2},
		recent:  []invoices.Invoice{{ID: 1, Number: "INV-2026080001"}},
		revenue: []RevenuePoint{{Month: "2026-08", Amount: 1050.50}},
		distribution: []StatusCount{
			{Status: invoices.StatusPaid, Count: 8},
			{Status: invoices.StatusPending, Count: 4},
		},
	}
	service := NewService(repo, slog.Default())

	overview, err := service.Overview(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 12, overview.Stats.InvoiceCount)
	require.Len(t, overview.RecentInvoices, 1)
	require.Len(t, overview.Revenue, 1)
	require.Len(t, overview.Distribution, 2)
}

func TestOverviewPropagatesQueryErrors(t *testing.T) {
	repo := &stubDashboardRepo{failRevenue: errors.New("connection reset")}
	service := NewService(repo, slog.Default())

	_, err := service.Overview(context.Background(), nil)
	require.Error(t, err)
}

func TestOverviewNeverReturnsNilRecentList(t *testing.T) {
	service := NewService(&stubDashboardRepo{}, slog.Default())

	overview, err := service.Overview(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, overview.RecentInvoices)
	require.Empty(t, overview.RecentInvoices)
}

func TestOverviewPassesClientScope(t *testing.T) {
	repo := &stubDashboardRepo{}
	service := NewService(repo, slog.Default())

	scope := int64(3)
	_, err := service.Overview(context.Background(), &scope)
	require.NoError(t, err)
	require.Len(t, repo.seenScopes, 1)
	require.NotNil(t, repo.seenScopes[0])
	require.Equal(t, int64(3), *repo.seenScopes[0])
}
