package analytics

import (
	"context"
	"time"

	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const defaultMonths = 12

var timeNow = time.Now

// Service assembles dashboards from independent queries run concurrently.
type Service struct {
	repo Repository
}

// NewService creates the analytics service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Collector builds the caller's collector dashboard.
func (s *Service) Collector(ctx context.Context, identity httpkit.Identity, req DashboardRequest) (CollectorDashboard, error) {
	if !identity.HasRole(httpkit.RoleCollector) {
		return CollectorDashboard{}, apperr.Forbidden("collector analytics are only available to collectors")
	}
	id := identity.UserID()
	now := timeNow().UTC()
	since, months := window(now, req.Months)

	var out CollectorDashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.repo.CollectorTotals(gctx, id)
		out.Totals = t
		return err
	})
	g.Go(func() error {
		c, err := s.repo.CollectorCategories(gctx, id)
		out.ByCategory = c
		return err
	})
	g.Go(func() error {
		m, err := s.repo.CollectorMonthly(gctx, id, since)
		out.Monthly = fillMonths(since, months, m)
		return err
	})
	if err := g.Wait(); err != nil {
		return CollectorDashboard{}, err
	}
	out.GeneratedAt = now
	return out, nil
}

// Brand builds the caller's brand dashboard.
func (s *Service) Brand(ctx context.Context, identity httpkit.Identity, req DashboardRequest) (BrandDashboard, error) {
	if !identity.HasRole(httpkit.RoleBrand) {
		return BrandDashboard{}, apperr.Forbidden("brand analytics are only available to brands")
	}
	return s.brand(ctx, identity.UserID(), req)
}

// BrandFor builds a brand dashboard on behalf of an admin.
func (s *Service) BrandFor(ctx context.Context, brandID uuid.UUID, req DashboardRequest) (BrandDashboard, error) {
	return s.brand(ctx, brandID, req)
}

func (s *Service) brand(ctx context.Context, id uuid.UUID, req DashboardRequest) (BrandDashboard, error) {
	now := timeNow().UTC()
	since, months := window(now, req.Months)

	var out BrandDashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.repo.BrandTotals(gctx, id)
		out.Totals = t
		return err
	})
	g.Go(func() error {
		c, err := s.repo.BrandCategories(gctx, id)
		out.ByCategory = c
		return err
	})
	g.Go(func() error {
		m, err := s.repo.BrandMonthly(gctx, id, since)
		out.Monthly = fillMonths(since, months, m)
		return err
	})
	if err := g.Wait(); err != nil {
		return BrandDashboard{}, err
	}
	out.GeneratedAt = now
	return out, nil
}

// Inventory reports marketplace-wide available weight per category.
func (s *Service) Inventory(ctx context.Context) (InventoryReport, error) {
	rows, err := s.repo.Inventory(ctx)
	if err != nil {
		return InventoryReport{}, err
	}
	out := InventoryReport{Categories: rows, TotalAvailable: decimal.Zero, GeneratedAt: timeNow().UTC()}
	for _, r := range rows {
		out.TotalAvailable = out.TotalAvailable.Add(r.Available)
	}
	return out, nil
}

// window returns the first day of the oldest month in the series.
func window(now time.Time, months int) (time.Time, int) {
	if months <= 0 {
		months = defaultMonths
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -(months - 1), 0), months
}

// fillMonths returns one point per month from since, with zeros where the
// query had no rows.
func fillMonths(since time.Time, months int, points []MonthlyPoint) []MonthlyPoint {
	byMonth := make(map[string]MonthlyPoint, len(points))
	for _, p := range points {
		byMonth[p.Month] = p
	}
	out := make([]MonthlyPoint, 0, months)
	for i := 0; i < months; i++ {
		key := since.AddDate(0, i, 0).Format("2006-01")
		p, ok := byMonth[key]
		if !ok {
			p = MonthlyPoint{Month: key, Weight: decimal.Zero, Amount: decimal.Zero}
		}
		out = append(out, p)
	}
	return out
}
