// Package ports defines what the orders module needs from other modules.
package ports

import (
	"context"

	pickupdomain "ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/db"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Inventory commits pickup weight to orders. Both calls run on the order's
// transaction.
type Inventory interface {
	Reserve(ctx context.Context, q db.Querier, pickupID uuid.UUID, quantity decimal.Decimal) (pickupdomain.Pickup, error)
	Release(ctx context.Context, q db.Querier, pickupID uuid.UUID, quantity decimal.Decimal) error
}
