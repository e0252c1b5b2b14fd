package repository

import (
	"context"

	"ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Reader loads pickups.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Pickup, error)
	List(ctx context.Context, params ListParams) ([]domain.Pickup, int, error)
}

// Writer persists pickup creation and pending-state edits.
type Writer interface {
	// Create inserts the pickup and statusHistory[0] in one transaction.
	Create(ctx context.Context, pickup domain.Pickup) (domain.Pickup, error)
	UpdateDetails(ctx context.Context, params UpdateDetailsParams) (domain.Pickup, error)
	// SetAfterPhoto stores the after photo and returns the replaced one.
	SetAfterPhoto(ctx context.Context, id, collectorID uuid.UUID, photo domain.Photo) (*domain.Photo, error)
	FlagManualReview(ctx context.Context, params ManualReviewParams) error
}

// Transitioner moves a pickup along its lifecycle with a check-and-set update.
type Transitioner interface {
	Transition(ctx context.Context, params TransitionParams) (domain.Pickup, error)
	// TransitionTx runs inside the caller's transaction.
	TransitionTx(ctx context.Context, tx pgx.Tx, params TransitionParams) (domain.Pickup, error)
}

// Inventory commits and releases pickup weight for orders. Both run inside
// the order module's transaction.
type Inventory interface {
	Reserve(ctx context.Context, q db.Querier, pickupID uuid.UUID, quantity decimal.Decimal) (domain.Pickup, error)
	Release(ctx context.Context, q db.Querier, pickupID uuid.UUID, quantity decimal.Decimal) error
}

// Repository is the full pickup store.
type Repository interface {
	Reader
	Writer
	Transitioner
	Inventory
}

// ListParams filters pickup listings. Nil fields are not applied.
type ListParams struct {
	CollectorID *uuid.UUID
	Status      *domain.Status
	Category    *domain.Category
	// Bounds restricts results to a lat/lng box.
	Bounds   *Bounds
	Page     int
	PageSize int
}

// Bounds is a lat/lng bounding box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// UpdateDetailsParams holds owner edits applied while the pickup is pending.
type UpdateDetailsParams struct {
	ID              uuid.UUID
	CollectorID     uuid.UUID
	Category        *domain.Category
	EstimatedWeight *decimal.Decimal
	Notes           *string
	Location        *domain.Location
}

// ManualReviewParams records an AI verification that did not decide.
type ManualReviewParams struct {
	ID           uuid.UUID
	AIConfidence float64
	AICategory   *domain.Category
	AIWeight     *decimal.Decimal
}

// TransitionParams describes one lifecycle move and the fields it sets.
type TransitionParams struct {
	PickupID  uuid.UUID
	From      domain.Status
	To        domain.Status
	ChangedBy *uuid.UUID
	Notes     string

	ActualWeight    *decimal.Decimal
	Category        *domain.Category
	VerifiedBy      *uuid.UUID
	RejectionReason *string
	AIConfidence    *float64
	AICategory      *domain.Category
	AIWeight        *decimal.Decimal
}
