package tokens

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reason classifies a ledger entry.
type Reason string

const (
	ReasonPickupReward Reason = "pickup_reward"
	ReasonRedemption   Reason = "redemption"
	ReasonAdjustment   Reason = "adjustment"
)

// Entry is one append-only EkoToken ledger row.
type Entry struct {
	CollectorID  uuid.UUID       `json:"collectorId"`
	Seq          int             `json:"seq"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	Reason       Reason          `json:"reason"`
	PickupID     *uuid.UUID      `json:"pickupId,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// NewEntry is an entry to append. Seq and BalanceAfter are assigned under
// the collector's ledger lock.
type NewEntry struct {
	CollectorID uuid.UUID
	Amount      decimal.Decimal
	Reason      Reason
	PickupID    *uuid.UUID
	Notes       string
}

// RedeemRequest spends tokens.
type RedeemRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Notes  string  `json:"notes" validate:"max=500"`
}

// ListLedgerRequest pages through the ledger, newest first.
type ListLedgerRequest struct {
	Limit  int `form:"limit" validate:"omitempty,min=1,max=200"`
	Offset int `form:"offset" validate:"omitempty,min=0"`
}

// BalanceResponse is the collector's current balance.
type BalanceResponse struct {
	CollectorID uuid.UUID       `json:"collectorId"`
	Balance     decimal.Decimal `json:"balance"`
	LastSeq     int             `json:"lastSeq"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

// LedgerResponse is one page of entries.
type LedgerResponse struct {
	Items  []Entry `json:"items"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// ReconcileResult compares the latest balance with the sum of amounts.
type ReconcileResult struct {
	CollectorID   uuid.UUID       `json:"collectorId"`
	LatestBalance decimal.Decimal `json:"latestBalance"`
	Sum           decimal.Decimal `json:"sum"`
	Entries       int             `json:"entries"`
	Consistent    bool            `json:"consistent"`
}
