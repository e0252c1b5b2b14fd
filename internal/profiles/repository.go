package profiles

import (
	"context"
	"errors"
	"fmt"

	"ekomarket_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	collectorColumns = `user_id, display_name, phone, address,
		total_pickups, verified_pickups, total_weight::text, total_earnings::text, token_balance::text,
		stats_refreshed_at, created_at, updated_at`

	brandColumns = `user_id, display_name, company_name, phone, address,
		total_orders, delivered_orders, total_purchased::text, total_spent::text,
		stats_refreshed_at, created_at, updated_at`

	getCollectorQuery = `SELECT ` + collectorColumns + ` FROM collector_profiles WHERE user_id = $1`
	getBrandQuery     = `SELECT ` + brandColumns + ` FROM brand_profiles WHERE user_id = $1`

	upsertCollectorQuery = `
		INSERT INTO collector_profiles (user_id, display_name, phone, address)
		VALUES ($1, COALESCE($2, ''), $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = COALESCE($2, collector_profiles.display_name),
			phone = COALESCE($3, collector_profiles.phone),
			address = COALESCE($4, collector_profiles.address),
			updated_at = now()
		RETURNING ` + collectorColumns

	upsertBrandQuery = `
		INSERT INTO brand_profiles (user_id, display_name, company_name, phone, address)
		VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = COALESCE($2, brand_profiles.display_name),
			company_name = COALESCE($3, brand_profiles.company_name),
			phone = COALESCE($4, brand_profiles.phone),
			address = COALESCE($5, brand_profiles.address),
			updated_at = now()
		RETURNING ` + brandColumns

	ensureCollectorQuery = `INSERT INTO collector_profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	ensureBrandQuery     = `INSERT INTO brand_profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`

	// Verified pickups count once verified and stay counted once paid.
	recomputeCollectorQuery = `
		UPDATE collector_profiles SET
			total_pickups = (SELECT COUNT(*) FROM pickups WHERE collector_id = $1),
			verified_pickups = (SELECT COUNT(*) FROM pickups WHERE collector_id = $1 AND status IN ('verified', 'paid')),
			total_weight = (SELECT COALESCE(SUM(COALESCE(actual_weight, estimated_weight)), 0)
				FROM pickups WHERE collector_id = $1 AND status IN ('verified', 'paid')),
			total_earnings = (SELECT COALESCE(SUM(amount), 0)
				FROM transactions WHERE payee_id = $1 AND status = 'completed'),
			token_balance = COALESCE((SELECT balance_after FROM eko_token_transactions
				WHERE collector_id = $1 ORDER BY seq DESC LIMIT 1), 0),
			stats_refreshed_at = now()
		WHERE user_id = $1
		RETURNING total_pickups, verified_pickups, total_weight::text, total_earnings::text, token_balance::text, stats_refreshed_at`

	recomputeBrandQuery = `
		UPDATE brand_profiles SET
			total_orders = (SELECT COUNT(*) FROM orders WHERE brand_id = $1),
			delivered_orders = (SELECT COUNT(*) FROM orders WHERE brand_id = $1 AND status = 'delivered'),
			total_purchased = (SELECT COALESCE(SUM(quantity), 0)
				FROM orders WHERE brand_id = $1 AND status <> 'cancelled'),
			total_spent = (SELECT COALESCE(SUM(amount), 0)
				FROM transactions WHERE payer_id = $1 AND status = 'completed'),
			stats_refreshed_at = now()
		WHERE user_id = $1
		RETURNING total_orders, delivered_orders, total_purchased::text, total_spent::text, stats_refreshed_at`

	collectorIDsQuery = `SELECT user_id FROM collector_profiles UNION SELECT DISTINCT collector_id FROM pickups`
	brandIDsQuery     = `SELECT user_id FROM brand_profiles UNION SELECT DISTINCT brand_id FROM orders`
)

// Repository stores profiles and their materialised stats.
type Repository interface {
	// GetCollector returns nil when no profile row exists.
	GetCollector(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetBrand(ctx context.Context, id uuid.UUID) (*Profile, error)
	UpsertCollector(ctx context.Context, id uuid.UUID, f Fields) (Profile, error)
	UpsertBrand(ctx context.Context, id uuid.UUID, f Fields) (Profile, error)
	RecomputeCollectorStats(ctx context.Context, id uuid.UUID) (CollectorStats, error)
	RecomputeBrandStats(ctx context.Context, id uuid.UUID) (BrandStats, error)
	CollectorIDs(ctx context.Context) ([]uuid.UUID, error)
	BrandIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Repo is the Postgres profile store.
type Repo struct {
	pool *pgxpool.Pool
}

var _ Repository = (*Repo)(nil)

// NewRepository creates the profile repository.
func NewRepository(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) GetCollector(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := scanCollector(r.pool.QueryRow(ctx, getCollectorQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collector profile: %w", err)
	}
	return &p, nil
}

func (r *Repo) GetBrand(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := scanBrand(r.pool.QueryRow(ctx, getBrandQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get brand profile: %w", err)
	}
	return &p, nil
}

func (r *Repo) UpsertCollector(ctx context.Context, id uuid.UUID, f Fields) (Profile, error) {
	p, err := scanCollector(r.pool.QueryRow(ctx, upsertCollectorQuery, id, f.DisplayName, f.Phone, f.Address))
	if err != nil {
		return Profile{}, fmt.Errorf("upsert collector profile: %w", err)
	}
	return p, nil
}

func (r *Repo) UpsertBrand(ctx context.Context, id uuid.UUID, f Fields) (Profile, error) {
	p, err := scanBrand(r.pool.QueryRow(ctx, upsertBrandQuery, id, f.DisplayName, f.CompanyName, f.Phone, f.Address))
	if err != nil {
		return Profile{}, fmt.Errorf("upsert brand profile: %w", err)
	}
	return p, nil
}

// RecomputeCollectorStats rebuilds the collector's stats from the source tables.
func (r *Repo) RecomputeCollectorStats(ctx context.Context, id uuid.UUID) (CollectorStats, error) {
	var stats CollectorStats
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureCollectorQuery, id); err != nil {
			return fmt.Errorf("ensure collector profile: %w", err)
		}
		var weight, earnings, balance string
		if err := tx.QueryRow(ctx, recomputeCollectorQuery, id).Scan(
			&stats.TotalPickups, &stats.VerifiedPickups, &weight, &earnings, &balance, &stats.RefreshedAt,
		); err != nil {
			return fmt.Errorf("recompute collector stats: %w", err)
		}
		var err error
		if stats.TotalWeight, err = decimal.NewFromString(weight); err != nil {
			return err
		}
		if stats.TotalEarnings, err = decimal.NewFromString(earnings); err != nil {
			return err
		}
		stats.TokenBalance, err = decimal.NewFromString(balance)
		return err
	})
	return stats, err
}

// RecomputeBrandStats rebuilds the brand's stats from the source tables.
func (r *Repo) RecomputeBrandStats(ctx context.Context, id uuid.UUID) (BrandStats, error) {
	var stats BrandStats
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureBrandQuery, id); err != nil {
			return fmt.Errorf("ensure brand profile: %w", err)
		}
		var purchased, spent string
		if err := tx.QueryRow(ctx, recomputeBrandQuery, id).Scan(
			&stats.TotalOrders, &stats.DeliveredOrders, &purchased, &spent, &stats.RefreshedAt,
		); err != nil {
			return fmt.Errorf("recompute brand stats: %w", err)
		}
		var err error
		if stats.TotalPurchased, err = decimal.NewFromString(purchased); err != nil {
			return err
		}
		stats.TotalSpent, err = decimal.NewFromString(spent)
		return err
	})
	return stats, err
}

func (r *Repo) CollectorIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.ids(ctx, collectorIDsQuery)
}

func (r *Repo) BrandIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.ids(ctx, brandIDsQuery)
}

func (r *Repo) ids(ctx context.Context, query string) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list profile ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func scanCollector(row pgx.Row) (Profile, error) {
	var (
		p                        Profile
		s                        CollectorStats
		weight, earnings, tokens string
	)
	if err := row.Scan(&p.UserID, &p.DisplayName, &p.Phone, &p.Address,
		&s.TotalPickups, &s.VerifiedPickups, &weight, &earnings, &tokens,
		&s.RefreshedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	s.TotalWeight = decimal.RequireFromString(weight)
	s.TotalEarnings = decimal.RequireFromString(earnings)
	s.TokenBalance = decimal.RequireFromString(tokens)
	p.Role = RoleCollector
	p.CollectorStats = &s
	return p, nil
}

func scanBrand(row pgx.Row) (Profile, error) {
	var (
		p                Profile
		s                BrandStats
		purchased, spent string
	)
	if err := row.Scan(&p.UserID, &p.DisplayName, &p.CompanyName, &p.Phone, &p.Address,
		&s.TotalOrders, &s.DeliveredOrders, &purchased, &spent,
		&s.RefreshedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	s.TotalPurchased = decimal.RequireFromString(purchased)
	s.TotalSpent = decimal.RequireFromString(spent)
	p.Role = RoleBrand
	p.BrandStats = &s
	return p, nil
}
