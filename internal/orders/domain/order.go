// Package domain holds the order entities, the fulfilment and payment state
// graphs and the actor capabilities.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a brand's purchase of weight from a pickup.
type Order struct {
	ID                 uuid.UUID
	OrderNumber        string
	BrandID            uuid.UUID
	CollectorID        uuid.UUID
	PickupID           uuid.UUID
	Category           string
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	TotalAmount        decimal.Decimal
	Status             Status
	PaymentStatus      PaymentStatus
	ShippingAddress    string
	Notes              string
	CancellationReason string
	TrackingNumber     string
	StatusHistory      []HistoryEntry
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HistoryEntry records one fulfilment or payment change.
type HistoryEntry struct {
	Seq           int
	Status        Status
	PaymentStatus PaymentStatus
	Timestamp     time.Time
	Notes         string
	ChangedBy     *uuid.UUID
	ChangedByRole Role
}

// Total is quantity × unit price rounded to the currency unit.
func Total(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(2)
}

// AmountConsistent reports whether the stored total matches quantity × price.
func (o Order) AmountConsistent() bool {
	return o.TotalAmount.Equal(Total(o.Quantity, o.UnitPrice))
}

// IsParticipant reports whether userID is the brand or the collector.
func (o Order) IsParticipant(userID uuid.UUID) bool {
	return o.BrandID == userID || o.CollectorID == userID
}

// NewOrderNumber builds ORD-YYYYMMDD-XXXXXX from now and a random suffix.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}
