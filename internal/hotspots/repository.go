package hotspots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pickupdomain "ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/db"
	"ekomarket_backend/platform/geo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const hotspotNotFoundMsg = "hotspot not found"

const hotspotColumns = `id, reported_by, name, description, address, lat, lng, status, expires_at, created_at, updated_at`

const (
	insertHotspotQuery = `
		INSERT INTO waste_hotspots (id, reported_by, name, description, address, lat, lng, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', $8)
		RETURNING created_at, updated_at`

	insertAvailableQuery = `INSERT INTO hotspot_available (hotspot_id, category, weight) VALUES ($1, $2, $3::numeric)`

	getHotspotQuery       = `SELECT ` + hotspotColumns + ` FROM waste_hotspots WHERE id = $1`
	getHotspotLockedQuery = `SELECT ` + hotspotColumns + ` FROM waste_hotspots WHERE id = $1 FOR UPDATE`

	availableQuery = `
		SELECT hotspot_id, category, weight::text FROM hotspot_available
		WHERE hotspot_id = ANY($1) ORDER BY hotspot_id, category`

	historyQuery = `
		SELECT seq, category, weight::text, collector_id, pickup_id, collected_at
		FROM hotspot_collections WHERE hotspot_id = $1 ORDER BY seq`

	upsertAvailableQuery = `
		INSERT INTO hotspot_available (hotspot_id, category, weight) VALUES ($1, $2, $3::numeric)
		ON CONFLICT (hotspot_id, category) DO UPDATE SET weight = EXCLUDED.weight`

	insertCollectionQuery = `
		INSERT INTO hotspot_collections (hotspot_id, seq, category, weight, collector_id, pickup_id, collected_at)
		SELECT $1, COALESCE(MAX(seq), -1) + 1, $2, $3::numeric, $4, $5, $6
		FROM hotspot_collections WHERE hotspot_id = $1
		RETURNING seq`

	setStatusQuery = `
		UPDATE waste_hotspots SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	expireOneQuery = `
		UPDATE waste_hotspots SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'active' AND expires_at <= $2`

	expireDueQuery = `
		UPDATE waste_hotspots SET status = 'expired', updated_at = now()
		WHERE status = 'active' AND expires_at <= $1`
)

// ListParams filters the map query.
type ListParams struct {
	Bounds *geo.Box
	Status *Status
	Limit  int
}

// NewCollection is a collection to append.
type NewCollection struct {
	Category    pickupdomain.Category
	Weight      decimal.Decimal
	CollectorID uuid.UUID
	PickupID    *uuid.UUID
	CollectedAt time.Time
}

// Repository persists hotspots.
type Repository interface {
	Create(ctx context.Context, h Hotspot) (Hotspot, error)
	GetByID(ctx context.Context, id uuid.UUID) (Hotspot, error)
	List(ctx context.Context, params ListParams) ([]Hotspot, error)
	// RecordCollection locks the hotspot, applies the collection and appends it
	// to the history in one transaction. It returns the updated hotspot and
	// the status it had before.
	RecordCollection(ctx context.Context, id uuid.UUID, c NewCollection) (Hotspot, Status, error)
	// Expire marks one hotspot expired if it is active and past expiry.
	Expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// ExpireDue marks every active hotspot past expiry as expired.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// Repo is the Postgres hotspot store.
type Repo struct {
	pool *pgxpool.Pool
}

var _ Repository = (*Repo)(nil)

// NewRepository creates the hotspot repository.
func NewRepository(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Create(ctx context.Context, h Hotspot) (Hotspot, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertHotspotQuery, h.ID, h.ReportedBy, h.Name, h.Description, h.Location.Address,
			h.Location.Lat, h.Location.Lng, h.ExpiresAt).Scan(&h.CreatedAt, &h.UpdatedAt); err != nil {
			return fmt.Errorf("insert hotspot: %w", err)
		}
		for _, a := range h.EstimatedAvailable {
			if _, err := tx.Exec(ctx, insertAvailableQuery, h.ID, string(a.Category), a.Weight.String()); err != nil {
				return fmt.Errorf("insert hotspot availability: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Hotspot{}, err
	}
	h.Status = StatusActive
	return h, nil
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Hotspot, error) {
	return loadFull(ctx, r.pool, getHotspotQuery, id)
}

func (r *Repo) List(ctx context.Context, params ListParams) ([]Hotspot, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, values ...any) {
		for _, v := range values {
			args = append(args, v)
			cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(args)), 1)
		}
		conds = append(conds, cond)
	}
	if params.Status != nil {
		add("status = ?", string(*params.Status))
	}
	if b := params.Bounds; b != nil {
		add("lat BETWEEN ? AND ?", b.MinLat, b.MaxLat)
		add("lng BETWEEN ? AND ?", b.MinLng, b.MaxLng)
	}
	query := `SELECT ` + hotspotColumns + ` FROM waste_hotspots`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list hotspots: %w", err)
	}
	defer rows.Close()

	var out []Hotspot
	for rows.Next() {
		h, err := scanHotspot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hotspot: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachAvailability(ctx, r.pool, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) RecordCollection(ctx context.Context, id uuid.UUID, c NewCollection) (Hotspot, Status, error) {
	var (
		updated Hotspot
		before  Status
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		h, err := loadFull(ctx, tx, getHotspotLockedQuery, id)
		if err != nil {
			return err
		}
		before = h.Status

		res, err := ApplyCollection(h, c.Category, c.Weight, c.CollectedAt)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertAvailableQuery, id, string(c.Category), res.Remaining.String()); err != nil {
			return fmt.Errorf("update hotspot availability: %w", err)
		}
		if _, err := tx.Exec(ctx, insertCollectionQuery, id, string(c.Category), c.Weight.String(), c.CollectorID, c.PickupID, c.CollectedAt); err != nil {
			return fmt.Errorf("append hotspot collection: %w", err)
		}
		if res.Status != h.Status {
			if _, err := tx.Exec(ctx, setStatusQuery, id, string(h.Status), string(res.Status)); err != nil {
				return fmt.Errorf("update hotspot status: %w", err)
			}
		}

		updated, err = loadFull(ctx, tx, getHotspotQuery, id)
		return err
	})
	if err != nil {
		return Hotspot{}, "", err
	}
	return updated, before, nil
}

func (r *Repo) Expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, expireOneQuery, id, now)
	if err != nil {
		return false, fmt.Errorf("expire hotspot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, expireDueQuery, now)
	if err != nil {
		return 0, fmt.Errorf("expire hotspots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func loadFull(ctx context.Context, q db.Querier, query string, id uuid.UUID) (Hotspot, error) {
	h, err := scanHotspot(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Hotspot{}, apperr.NotFound(hotspotNotFoundMsg)
	}
	if err != nil {
		return Hotspot{}, fmt.Errorf("get hotspot: %w", err)
	}

	list := []Hotspot{h}
	if err := attachAvailability(ctx, q, list); err != nil {
		return Hotspot{}, err
	}
	h = list[0]

	rows, err := q.Query(ctx, historyQuery, id)
	if err != nil {
		return Hotspot{}, fmt.Errorf("load hotspot history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c        Collection
			category string
			weight   string
		)
		if err := rows.Scan(&c.Seq, &category, &weight, &c.CollectorID, &c.PickupID, &c.CollectedAt); err != nil {
			return Hotspot{}, fmt.Errorf("scan hotspot collection: %w", err)
		}
		c.Category = pickupdomain.Category(category)
		if c.Weight, err = decimal.NewFromString(weight); err != nil {
			return Hotspot{}, err
		}
		h.CollectionHistory = append(h.CollectionHistory, c)
	}
	return h, rows.Err()
}

func attachAvailability(ctx context.Context, q db.Querier, list []Hotspot) error {
	if len(list) == 0 {
		return nil
	}
	index := make(map[uuid.UUID]int, len(list))
	ids := make([]uuid.UUID, len(list))
	for i, h := range list {
		index[h.ID] = i
		ids[i] = h.ID
	}

	rows, err := q.Query(ctx, availableQuery, ids)
	if err != nil {
		return fmt.Errorf("load hotspot availability: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id       uuid.UUID
			category string
			weight   string
		)
		if err := rows.Scan(&id, &category, &weight); err != nil {
			return fmt.Errorf("scan hotspot availability: %w", err)
		}
		w, err := decimal.NewFromString(weight)
		if err != nil {
			return err
		}
		i := index[id]
		list[i].EstimatedAvailable = append(list[i].EstimatedAvailable, Availability{Category: pickupdomain.Category(category), Weight: w})
	}
	return rows.Err()
}

func scanHotspot(row pgx.Row) (Hotspot, error) {
	var (
		h      Hotspot
		status string
	)
	if err := row.Scan(&h.ID, &h.ReportedBy, &h.Name, &h.Description, &h.Location.Address, &h.Location.Lat, &h.Location.Lng,
		&status, &h.ExpiresAt, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return Hotspot{}, err
	}
	h.Status = Status(status)
	return h, nil
}
