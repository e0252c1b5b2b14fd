package analytics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeRepo struct {
	calls      atomic.Int32
	monthlyErr error
	since      time.Time
}

func (r *fakeRepo) CollectorTotals(context.Context, uuid.UUID) (CollectorTotals, error) {
	r.calls.Add(1)
	return CollectorTotals{TotalPickups: 4, PaidPickups: 2, TotalWeight: decimal.RequireFromString("31.5")}, nil
}

func (r *fakeRepo) CollectorCategories(context.Context, uuid.UUID) ([]CategoryBreakdown, error) {
	r.calls.Add(1)
	return []CategoryBreakdown{{Category: "PET", Count: 2, Weight: decimal.RequireFromString("20")}}, nil
}

func (r *fakeRepo) CollectorMonthly(_ context.Context, _ uuid.UUID, since time.Time) ([]MonthlyPoint, error) {
	r.calls.Add(1)
	r.since = since
	if r.monthlyErr != nil {
		return nil, r.monthlyErr
	}
	return []MonthlyPoint{{Month: "2026-09", Weight: decimal.RequireFromString("12"), Amount: decimal.RequireFromString("36000")}}, nil
}

func (r *fakeRepo) BrandTotals(context.Context, uuid.UUID) (BrandTotals, error) {
	r.calls.Add(1)
	return BrandTotals{TotalOrders: 3}, nil
}

func (r *fakeRepo) BrandCategories(context.Context, uuid.UUID) ([]CategoryBreakdown, error) {
	r.calls.Add(1)
	return nil, nil
}

func (r *fakeRepo) BrandMonthly(context.Context, uuid.UUID, time.Time) ([]MonthlyPoint, error) {
	r.calls.Add(1)
	return nil, nil
}

func (r *fakeRepo) Inventory(context.Context) ([]InventoryRow, error) {
	return []InventoryRow{
		{Category: "HDPE", Pickups: 1, Available: decimal.RequireFromString("2.5")},
		{Category: "PET", Pickups: 3, Available: decimal.RequireFromString("7")},
	}, nil
}

func fixClock(t *testing.T, now time.Time) {
	t.Helper()
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = time.Now })
}

func TestCollectorDashboard(t *testing.T) {
	fixClock(t, time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC))
	repo := &fakeRepo{}
	svc := NewService(repo)
	collector := httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector)

	d, err := svc.Collector(context.Background(), collector, DashboardRequest{Months: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.calls.Load() != 3 {
		t.Fatalf("expected three queries, got %d", repo.calls.Load())
	}
	if !repo.since.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("series starts %s, want 2026-08-01", repo.since)
	}
	if len(d.Monthly) != 3 || d.Monthly[0].Month != "2026-08" || d.Monthly[2].Month != "2026-10" {
		t.Fatalf("unexpected series %+v", d.Monthly)
	}
	if !d.Monthly[1].Amount.Equal(decimal.NewFromInt(36000)) || !d.Monthly[0].Weight.IsZero() {
		t.Fatalf("series values not placed by month: %+v", d.Monthly)
	}
	if d.Totals.TotalPickups != 4 || len(d.ByCategory) != 1 {
		t.Fatalf("unexpected dashboard %+v", d)
	}
}

func TestDashboardQueryFailure(t *testing.T) {
	repo := &fakeRepo{monthlyErr: errors.New("statement timeout")}
	svc := NewService(repo)
	collector := httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector)

	if _, err := svc.Collector(context.Background(), collector, DashboardRequest{}); err == nil {
		t.Fatal("expected the failing query to fail the dashboard")
	}
}

func TestDashboardsAreRoleScoped(t *testing.T) {
	svc := NewService(&fakeRepo{})
	brand := httpkit.NewIdentity(uuid.New(), httpkit.RoleBrand)
	collector := httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector)

	if _, err := svc.Collector(context.Background(), brand, DashboardRequest{}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("brand on collector dashboard: expected forbidden, got %v", err)
	}
	if _, err := svc.Brand(context.Background(), collector, DashboardRequest{}); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("collector on brand dashboard: expected forbidden, got %v", err)
	}
	d, err := svc.Brand(context.Background(), brand, DashboardRequest{})
	if err != nil {
		t.Fatalf("brand dashboard: %v", err)
	}
	if len(d.Monthly) != defaultMonths {
		t.Fatalf("default series length = %d, want %d", len(d.Monthly), defaultMonths)
	}
}

func TestInventoryTotals(t *testing.T) {
	report, err := NewService(&fakeRepo{}).Inventory(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.TotalAvailable.Equal(decimal.RequireFromString("9.5")) {
		t.Fatalf("total available = %s, want 9.5", report.TotalAvailable)
	}
}
