package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const pickupNotFoundMsg = "pickup not found"

const pickupColumns = `
	id, collector_id, category, estimated_weight::text, actual_weight::text,
	committed_weight::text, status, address, lat, lng, before_photo, after_photo,
	ai_confidence, ai_category, ai_weight::text, manual_review, verified_by,
	verified_at, rejection_reason, notes, created_at, updated_at`

const (
	insertPickupQuery = `
		INSERT INTO pickups (
			id, collector_id, category, estimated_weight, status, address, lat, lng,
			before_photo, after_photo, ai_confidence, ai_category, ai_weight,
			manual_review, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)`

	insertHistoryQuery = `
		INSERT INTO pickup_status_history (pickup_id, seq, status, notes, changed_by, created_at)
		SELECT $1, COALESCE(MAX(seq), -1) + 1, $2, $3, $4, now()
		FROM pickup_status_history WHERE pickup_id = $1
		RETURNING seq, created_at`

	selectPickupQuery = `SELECT` + pickupColumns + ` FROM pickups WHERE id = $1`

	selectHistoryQuery = `
		SELECT seq, status, created_at, notes, changed_by
		FROM pickup_status_history
		WHERE pickup_id = $1
		ORDER BY seq ASC`

	updateDetailsQuery = `
		UPDATE pickups SET
			category = COALESCE($3, category),
			estimated_weight = COALESCE($4::numeric, estimated_weight),
			notes = COALESCE($5, notes),
			address = COALESCE($6, address),
			lat = COALESCE($7, lat),
			lng = COALESCE($8, lng),
			updated_at = now()
		WHERE id = $1 AND collector_id = $2 AND status = 'pending'
		  AND COALESCE($4::numeric, estimated_weight) >= committed_weight
		RETURNING id`

	selectAfterPhotoQuery = `SELECT after_photo FROM pickups WHERE id = $1 AND collector_id = $2 FOR UPDATE`

	updateAfterPhotoQuery = `UPDATE pickups SET after_photo = $2, updated_at = now() WHERE id = $1`

	flagManualReviewQuery = `
		UPDATE pickups SET
			manual_review = TRUE,
			ai_confidence = $2,
			ai_category = $3,
			ai_weight = $4::numeric,
			updated_at = now()
		WHERE id = $1 AND status = 'pending'`
)

// Repo is the Postgres pickup store.
type Repo struct {
	pool *pgxpool.Pool
}

var _ Repository = (*Repo)(nil)

// New creates a pickup repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// photoRecord is the JSONB shape of a photo reference.
type photoRecord struct {
	BlobID      string     `json:"blobId"`
	URL         string     `json:"url"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Format      string     `json:"format"`
	Bytes       int64      `json:"bytes"`
	ContentHash string     `json:"contentHash,omitempty"`
	CapturedAt  *time.Time `json:"capturedAt,omitempty"`
	GPSLat      *float64   `json:"gpsLat,omitempty"`
	GPSLng      *float64   `json:"gpsLng,omitempty"`
}

func toPhotoRecord(p domain.Photo) photoRecord {
	return photoRecord(p)
}

func marshalPhoto(p *domain.Photo) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(toPhotoRecord(*p))
}

func unmarshalPhoto(raw []byte) (*domain.Photo, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rec photoRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	photo := domain.Photo(rec)
	return &photo, nil
}

// Create inserts the pickup with its first history entry.
func (r *Repo) Create(ctx context.Context, pickup domain.Pickup) (domain.Pickup, error) {
	before, err := marshalPhoto(&pickup.Photos.Before)
	if err != nil {
		return domain.Pickup{}, err
	}
	after, err := marshalPhoto(pickup.Photos.After)
	if err != nil {
		return domain.Pickup{}, err
	}
	if pickup.CreatedAt.IsZero() {
		pickup.CreatedAt = time.Now().UTC()
	}
	pickup.UpdatedAt = pickup.CreatedAt
	pickup.Status = domain.StatusPending

	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertPickupQuery,
			pickup.ID, pickup.CollectorID, string(pickup.Category), pickup.EstimatedWeight.String(),
			string(pickup.Status), pickup.Location.Address, pickup.Location.Lat, pickup.Location.Lng,
			before, after, pickup.Verification.AIConfidence, categoryArg(pickup.Verification.AICategory),
			decimalArg(pickup.Verification.AIWeight), pickup.Verification.ManualReview,
			nullableString(pickup.Notes), pickup.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert pickup: %w", err)
		}

		entry, err := insertHistory(ctx, tx, pickup.ID, domain.StatusPending, "submitted", &pickup.CollectorID)
		if err != nil {
			return err
		}
		pickup.StatusHistory = []domain.HistoryEntry{entry}
		return nil
	})
	if err != nil {
		return domain.Pickup{}, err
	}
	return pickup, nil
}

func insertHistory(ctx context.Context, q db.Querier, pickupID uuid.UUID, status domain.Status, notes string, changedBy *uuid.UUID) (domain.HistoryEntry, error) {
	entry := domain.HistoryEntry{Status: status, Notes: notes, ChangedBy: changedBy}
	if err := q.QueryRow(ctx, insertHistoryQuery, pickupID, string(status), nullableString(notes), changedBy).
		Scan(&entry.Seq, &entry.Timestamp); err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("insert pickup history: %w", err)
	}
	return entry, nil
}

// GetByID loads a pickup with its status history.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (domain.Pickup, error) {
	return getByID(ctx, r.pool, id)
}

func getByID(ctx context.Context, q db.Querier, id uuid.UUID) (domain.Pickup, error) {
	pickup, err := scanPickup(q.QueryRow(ctx, selectPickupQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pickup{}, apperr.NotFound(pickupNotFoundMsg)
	}
	if err != nil {
		return domain.Pickup{}, fmt.Errorf("get pickup: %w", err)
	}

	history, err := loadHistory(ctx, q, id)
	if err != nil {
		return domain.Pickup{}, err
	}
	pickup.StatusHistory = history
	return pickup, nil
}

func loadHistory(ctx context.Context, q db.Querier, id uuid.UUID) ([]domain.HistoryEntry, error) {
	rows, err := q.Query(ctx, selectHistoryQuery, id)
	if err != nil {
		return nil, fmt.Errorf("list pickup history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.HistoryEntry, 0, 4)
	for rows.Next() {
		var (
			entry  domain.HistoryEntry
			status string
			notes  *string
		)
		if err := rows.Scan(&entry.Seq, &status, &entry.Timestamp, &notes, &entry.ChangedBy); err != nil {
			return nil, fmt.Errorf("scan pickup history: %w", err)
		}
		entry.Status = domain.Status(status)
		if notes != nil {
			entry.Notes = *notes
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// List returns one page of pickups and the total match count. History is not
// loaded for list rows.
func (r *Repo) List(ctx context.Context, params ListParams) ([]domain.Pickup, int, error) {
	where, args := buildListFilter(params)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM pickups"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pickups: %w", err)
	}

	page, pageSize := normalizePage(params.Page, params.PageSize)
	query := fmt.Sprintf("SELECT%s FROM pickups%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		pickupColumns, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pickups: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Pickup, 0, pageSize)
	for rows.Next() {
		pickup, err := scanPickup(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan pickup: %w", err)
		}
		items = append(items, pickup)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list pickups: %w", err)
	}
	return items, total, nil
}

func buildListFilter(params ListParams) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, values ...any) {
		for i := range values {
			clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(args)+i+1), 1)
		}
		clauses = append(clauses, clause)
		args = append(args, values...)
	}

	if params.CollectorID != nil {
		add("collector_id = ?", *params.CollectorID)
	}
	if params.Status != nil {
		add("status = ?", string(*params.Status))
	}
	if params.Category != nil {
		add("category = ?", string(*params.Category))
	}
	if b := params.Bounds; b != nil {
		add("lat BETWEEN ? AND ?", b.MinLat, b.MaxLat)
		add("lng BETWEEN ? AND ?", b.MinLng, b.MaxLng)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// UpdateDetails applies owner edits while the pickup is pending.
func (r *Repo) UpdateDetails(ctx context.Context, params UpdateDetailsParams) (domain.Pickup, error) {
	var (
		address  *string
		lat, lng *float64
	)
	if loc := params.Location; loc != nil {
		address, lat, lng = &loc.Address, &loc.Lat, &loc.Lng
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx, updateDetailsQuery,
		params.ID, params.CollectorID, categoryArg(params.Category), decimalArg(params.EstimatedWeight),
		params.Notes, address, lat, lng,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.GetByID(ctx, params.ID)
		if getErr != nil {
			return domain.Pickup{}, getErr
		}
		if current.CollectorID != params.CollectorID {
			return domain.Pickup{}, apperr.NotFound(pickupNotFoundMsg)
		}
		if current.Status == domain.StatusPending && params.EstimatedWeight != nil {
			return domain.Pickup{}, BelowCommitted("estimatedWeight", *params.EstimatedWeight, current.CommittedWeight)
		}
		return domain.Pickup{}, apperr.Conflict("pickup can only be edited while pending").
			WithDetails(apperr.TransitionDetails{Current: string(current.Status), Requested: "edit"})
	}
	if err != nil {
		return domain.Pickup{}, fmt.Errorf("update pickup: %w", err)
	}
	return r.GetByID(ctx, id)
}

// SetAfterPhoto stores the after photo for the owner's pickup.
func (r *Repo) SetAfterPhoto(ctx context.Context, id, collectorID uuid.UUID, photo domain.Photo) (*domain.Photo, error) {
	raw, err := marshalPhoto(&photo)
	if err != nil {
		return nil, err
	}

	var previous *domain.Photo
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var current []byte
		if err := tx.QueryRow(ctx, selectAfterPhotoQuery, id, collectorID).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound(pickupNotFoundMsg)
			}
			return fmt.Errorf("lock pickup: %w", err)
		}
		old, err := unmarshalPhoto(current)
		if err != nil {
			return err
		}
		previous = old

		if _, err := tx.Exec(ctx, updateAfterPhotoQuery, id, raw); err != nil {
			return fmt.Errorf("update after photo: %w", err)
		}
		return nil
	})
	return previous, err
}

// FlagManualReview records an undecided AI verification on a pending pickup.
func (r *Repo) FlagManualReview(ctx context.Context, params ManualReviewParams) error {
	tag, err := r.pool.Exec(ctx, flagManualReviewQuery,
		params.ID, params.AIConfidence, categoryArg(params.AICategory), decimalArg(params.AIWeight))
	if err != nil {
		return fmt.Errorf("flag manual review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(pickupNotFoundMsg)
	}
	return nil
}

func scanPickup(row pgx.Row) (domain.Pickup, error) {
	var (
		p                            domain.Pickup
		category, status             string
		estimated, committed         string
		actual, aiWeight, aiCategory *string
		notes, rejection             *string
		before, after                []byte
	)
	if err := row.Scan(
		&p.ID, &p.CollectorID, &category, &estimated, &actual,
		&committed, &status, &p.Location.Address, &p.Location.Lat, &p.Location.Lng, &before, &after,
		&p.Verification.AIConfidence, &aiCategory, &aiWeight, &p.Verification.ManualReview, &p.Verification.VerifiedBy,
		&p.Verification.VerifiedAt, &rejection, &notes, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Pickup{}, err
	}

	p.Category = domain.Category(category)
	p.Status = domain.Status(status)

	var err error
	if p.EstimatedWeight, err = decimal.NewFromString(estimated); err != nil {
		return domain.Pickup{}, fmt.Errorf("parse estimated weight %q: %w", estimated, err)
	}
	if p.CommittedWeight, err = decimal.NewFromString(committed); err != nil {
		return domain.Pickup{}, fmt.Errorf("parse committed weight %q: %w", committed, err)
	}
	if p.ActualWeight, err = parseDecimalPtr(actual); err != nil {
		return domain.Pickup{}, err
	}
	if p.Verification.AIWeight, err = parseDecimalPtr(aiWeight); err != nil {
		return domain.Pickup{}, err
	}
	if aiCategory != nil {
		c := domain.Category(*aiCategory)
		p.Verification.AICategory = &c
	}
	if rejection != nil {
		p.Verification.RejectionReason = *rejection
	}
	if notes != nil {
		p.Notes = *notes
	}

	beforePhoto, err := unmarshalPhoto(before)
	if err != nil {
		return domain.Pickup{}, err
	}
	if beforePhoto != nil {
		p.Photos.Before = *beforePhoto
	}
	if p.Photos.After, err = unmarshalPhoto(after); err != nil {
		return domain.Pickup{}, err
	}
	return p, nil
}

func parseDecimalPtr(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", *raw, err)
	}
	return &d, nil
}

func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func categoryArg(c *domain.Category) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

func nullableString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
