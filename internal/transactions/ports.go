package transactions

import (
	"context"

	"ekomarket_backend/internal/events"
	orderdomain "ekomarket_backend/internal/orders/domain"
	pickupdomain "ekomarket_backend/internal/pickups/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Pickups is what completing a pickup payment needs from the pickups module.
type Pickups interface {
	GetByID(ctx context.Context, id uuid.UUID) (pickupdomain.Pickup, error)
}

// PickupPayments marks a pickup paid inside the completing transaction.
type PickupPayments interface {
	MarkPaid(ctx context.Context, tx pgx.Tx, pickupID, transactionID uuid.UUID) (events.PickupPaid, error)
}

// Orders is what the transactions module needs from the orders module.
type Orders interface {
	Lookup(ctx context.Context, id uuid.UUID) (orderdomain.Order, error)
	HasActiveOrder(ctx context.Context, brandID, pickupID uuid.UUID) (bool, error)
	SettlePayment(ctx context.Context, tx pgx.Tx, orderID, transactionID uuid.UUID) (events.OrderStatusChanged, error)
}
