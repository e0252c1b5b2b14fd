// Package ports defines what the pickups domain needs from other modules.
package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// RewardLedger credits EkoTokens for a paid pickup. The credit joins the
// caller's transaction so payment and reward commit together.
type RewardLedger interface {
	CreditPickupReward(ctx context.Context, tx pgx.Tx, collectorID, pickupID uuid.UUID, amount decimal.Decimal) error
}
