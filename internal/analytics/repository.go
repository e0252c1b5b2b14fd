package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	collectorTotalsQuery = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'verified'),
			COUNT(*) FILTER (WHERE status = 'paid'),
			COUNT(*) FILTER (WHERE status = 'rejected'),
			COALESCE(SUM(COALESCE(actual_weight, estimated_weight)) FILTER (WHERE status IN ('verified', 'paid')), 0)::text,
			(SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE payee_id = $1 AND status = 'completed')::text,
			COALESCE((SELECT balance_after FROM eko_token_transactions WHERE collector_id = $1 ORDER BY seq DESC LIMIT 1), 0)::text
		FROM pickups WHERE collector_id = $1`

	collectorCategoriesQuery = `
		SELECT category, COUNT(*), COALESCE(SUM(COALESCE(actual_weight, estimated_weight)), 0)::text
		FROM pickups
		WHERE collector_id = $1 AND status IN ('verified', 'paid')
		GROUP BY category ORDER BY category`

	// Weight is bucketed by submission month, earnings by completion month.
	collectorMonthlyQuery = `
		WITH weights AS (
			SELECT to_char(date_trunc('month', created_at), 'YYYY-MM') AS month,
			       SUM(COALESCE(actual_weight, estimated_weight)) AS weight
			FROM pickups
			WHERE collector_id = $1 AND status IN ('verified', 'paid') AND created_at >= $2
			GROUP BY 1
		), earnings AS (
			SELECT to_char(date_trunc('month', completed_at), 'YYYY-MM') AS month, SUM(amount) AS amount
			FROM transactions
			WHERE payee_id = $1 AND status = 'completed' AND completed_at >= $2
			GROUP BY 1
		)
		SELECT COALESCE(w.month, e.month), COALESCE(w.weight, 0)::text, COALESCE(e.amount, 0)::text
		FROM weights w FULL OUTER JOIN earnings e ON e.month = w.month
		ORDER BY 1`

	brandTotalsQuery = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('pending', 'confirmed', 'processing', 'shipped')),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(quantity) FILTER (WHERE status <> 'cancelled'), 0)::text,
			(SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE payer_id = $1 AND status = 'completed')::text
		FROM orders WHERE brand_id = $1`

	brandCategoriesQuery = `
		SELECT category, COUNT(*), COALESCE(SUM(quantity), 0)::text
		FROM orders
		WHERE brand_id = $1 AND status <> 'cancelled'
		GROUP BY category ORDER BY category`

	brandMonthlyQuery = `
		SELECT to_char(date_trunc('month', created_at), 'YYYY-MM'), SUM(quantity)::text, SUM(total_amount)::text
		FROM orders
		WHERE brand_id = $1 AND status <> 'cancelled' AND created_at >= $2
		GROUP BY 1 ORDER BY 1`

	inventoryQuery = `
		SELECT category, COUNT(*),
		       SUM(GREATEST(COALESCE(actual_weight, estimated_weight) - committed_weight, 0))::text
		FROM pickups
		WHERE status IN ('pending', 'verified')
		GROUP BY category ORDER BY category`
)

// Repository runs the read-only analytics queries.
type Repository interface {
	CollectorTotals(ctx context.Context, collectorID uuid.UUID) (CollectorTotals, error)
	CollectorCategories(ctx context.Context, collectorID uuid.UUID) ([]CategoryBreakdown, error)
	CollectorMonthly(ctx context.Context, collectorID uuid.UUID, since time.Time) ([]MonthlyPoint, error)
	BrandTotals(ctx context.Context, brandID uuid.UUID) (BrandTotals, error)
	BrandCategories(ctx context.Context, brandID uuid.UUID) ([]CategoryBreakdown, error)
	BrandMonthly(ctx context.Context, brandID uuid.UUID, since time.Time) ([]MonthlyPoint, error)
	Inventory(ctx context.Context) ([]InventoryRow, error)
}

// Repo is the Postgres analytics reader.
type Repo struct {
	pool *pgxpool.Pool
}

var _ Repository = (*Repo)(nil)

// NewRepository creates the analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) CollectorTotals(ctx context.Context, collectorID uuid.UUID) (CollectorTotals, error) {
	var (
		t                         CollectorTotals
		weight, earnings, balance string
	)
	err := r.pool.QueryRow(ctx, collectorTotalsQuery, collectorID).Scan(
		&t.TotalPickups, &t.PendingPickups, &t.VerifiedPickups, &t.PaidPickups, &t.RejectedPickups,
		&weight, &earnings, &balance,
	)
	if err != nil {
		return CollectorTotals{}, fmt.Errorf("collector totals: %w", err)
	}
	if err := parseInto(field{&t.TotalWeight, weight}, field{&t.TotalEarnings, earnings}, field{&t.TokenBalance, balance}); err != nil {
		return CollectorTotals{}, err
	}
	return t, nil
}

func (r *Repo) CollectorCategories(ctx context.Context, collectorID uuid.UUID) ([]CategoryBreakdown, error) {
	return r.categories(ctx, collectorCategoriesQuery, collectorID)
}

func (r *Repo) CollectorMonthly(ctx context.Context, collectorID uuid.UUID, since time.Time) ([]MonthlyPoint, error) {
	return r.monthly(ctx, collectorMonthlyQuery, collectorID, since)
}

func (r *Repo) BrandTotals(ctx context.Context, brandID uuid.UUID) (BrandTotals, error) {
	var (
		t                BrandTotals
		purchased, spent string
	)
	err := r.pool.QueryRow(ctx, brandTotalsQuery, brandID).Scan(
		&t.TotalOrders, &t.ActiveOrders, &t.DeliveredOrders, &t.CancelledOrders, &purchased, &spent,
	)
	if err != nil {
		return BrandTotals{}, fmt.Errorf("brand totals: %w", err)
	}
	if err := parseInto(field{&t.TotalPurchased, purchased}, field{&t.TotalSpent, spent}); err != nil {
		return BrandTotals{}, err
	}
	return t, nil
}

func (r *Repo) BrandCategories(ctx context.Context, brandID uuid.UUID) ([]CategoryBreakdown, error) {
	return r.categories(ctx, brandCategoriesQuery, brandID)
}

func (r *Repo) BrandMonthly(ctx context.Context, brandID uuid.UUID, since time.Time) ([]MonthlyPoint, error) {
	return r.monthly(ctx, brandMonthlyQuery, brandID, since)
}

func (r *Repo) Inventory(ctx context.Context) ([]InventoryRow, error) {
	rows, err := r.pool.Query(ctx, inventoryQuery)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (InventoryRow, error) {
		var (
			out       InventoryRow
			available string
		)
		if err := row.Scan(&out.Category, &out.Pickups, &available); err != nil {
			return InventoryRow{}, err
		}
		var err error
		out.Available, err = decimal.NewFromString(available)
		return out, err
	})
}

func (r *Repo) categories(ctx context.Context, query string, id uuid.UUID) ([]CategoryBreakdown, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CategoryBreakdown, error) {
		var (
			out    CategoryBreakdown
			weight string
		)
		if err := row.Scan(&out.Category, &out.Count, &weight); err != nil {
			return CategoryBreakdown{}, err
		}
		var err error
		out.Weight, err = decimal.NewFromString(weight)
		return out, err
	})
}

func (r *Repo) monthly(ctx context.Context, query string, id uuid.UUID, since time.Time) ([]MonthlyPoint, error) {
	rows, err := r.pool.Query(ctx, query, id, since)
	if err != nil {
		return nil, fmt.Errorf("monthly series: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MonthlyPoint, error) {
		var (
			out            MonthlyPoint
			weight, amount string
		)
		if err := row.Scan(&out.Month, &weight, &amount); err != nil {
			return MonthlyPoint{}, err
		}
		if err := parseInto(field{&out.Weight, weight}, field{&out.Amount, amount}); err != nil {
			return MonthlyPoint{}, err
		}
		return out, nil
	})
}

// field pairs a decimal destination with its numeric::text source.
type field struct {
	dst *decimal.Decimal
	raw string
}

func parseInto(fields ...field) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("parse numeric %q: %w", f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
