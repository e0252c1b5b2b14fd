package repository

import (
	"context"

	"ekomarket_backend/internal/orders/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository is the order store.
type Repository interface {
	// Create reserves the pickup weight and inserts the order with its first
	// history entry in one transaction.
	Create(ctx context.Context, params CreateParams) (domain.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error)
	List(ctx context.Context, params ListParams) ([]domain.Order, int, error)
	// Transition applies a fulfilment move. Cancellation releases the
	// committed weight in the same transaction.
	Transition(ctx context.Context, params TransitionParams) (domain.Order, error)
	UpdatePayment(ctx context.Context, params PaymentParams) (domain.Order, error)
	// Apply runs both moves in one transaction. Either may be nil.
	Apply(ctx context.Context, transition *TransitionParams, payment *PaymentParams) (domain.Order, error)
	// UpdatePaymentTx runs inside the caller's transaction.
	UpdatePaymentTx(ctx context.Context, tx pgx.Tx, params PaymentParams) (domain.Order, error)
	// GetForUpdate locks the order row inside tx.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (domain.Order, error)
}

// CreateParams is a validated order request. Category and collector come
// from the reserved pickup.
type CreateParams struct {
	ID              uuid.UUID
	OrderNumber     string
	BrandID         uuid.UUID
	PickupID        uuid.UUID
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	ShippingAddress string
	Notes           string
}

// ListParams filters listings. Nil fields are not applied.
type ListParams struct {
	BrandID     *uuid.UUID
	CollectorID *uuid.UUID
	PickupID    *uuid.UUID
	Status      *domain.Status
	Page        int
	PageSize    int
}

// TransitionParams is a check-and-set fulfilment move.
type TransitionParams struct {
	OrderID            uuid.UUID
	From               domain.Status
	To                 domain.Status
	Notes              string
	ChangedBy          uuid.UUID
	ChangedByRole      domain.Role
	CancellationReason *string
	TrackingNumber     *string
}

// PaymentParams is a check-and-set payment move.
type PaymentParams struct {
	OrderID       uuid.UUID
	From          domain.PaymentStatus
	To            domain.PaymentStatus
	Notes         string
	ChangedBy     *uuid.UUID
	ChangedByRole domain.Role
}
