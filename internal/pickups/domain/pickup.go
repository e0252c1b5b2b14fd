package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pickup is a collector's submitted batch of plastic waste.
type Pickup struct {
	ID              uuid.UUID
	CollectorID     uuid.UUID
	Category        Category
	EstimatedWeight decimal.Decimal
	ActualWeight    *decimal.Decimal
	// CommittedWeight is the sum of quantities of non-cancelled orders.
	CommittedWeight decimal.Decimal
	Status          Status
	Location        Location
	Photos          Photos
	Verification    Verification
	Notes           string
	StatusHistory   []HistoryEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Location is a coordinate pair with its address.
type Location struct {
	Lat     float64
	Lng     float64
	Address string
}

// Photo references a stored image.
type Photo struct {
	BlobID      string
	URL         string
	Width       int
	Height      int
	Format      string
	Bytes       int64
	ContentHash string
	CapturedAt  *time.Time
	GPSLat      *float64
	GPSLng      *float64
}

// Photos groups the before (required) and after (optional) images.
type Photos struct {
	Before Photo
	After  *Photo
}

// Verification holds AI and manual verification data.
type Verification struct {
	AIConfidence    *float64
	AICategory      *Category
	AIWeight        *decimal.Decimal
	ManualReview    bool
	VerifiedBy      *uuid.UUID
	VerifiedAt      *time.Time
	RejectionReason string
}

// HistoryEntry is one status-change record. Entries are never rewritten.
type HistoryEntry struct {
	Seq       int
	Status    Status
	Timestamp time.Time
	Notes     string
	ChangedBy *uuid.UUID
}

// BaseWeight is the actual weight once verified, else the estimate.
func (p Pickup) BaseWeight() decimal.Decimal {
	if p.ActualWeight != nil {
		return *p.ActualWeight
	}
	return p.EstimatedWeight
}

// AvailableWeight is the weight not yet committed to non-cancelled orders.
func (p Pickup) AvailableWeight() decimal.Decimal {
	available := p.BaseWeight().Sub(p.CommittedWeight)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// CoversCommitted reports whether weight still backs every committed order.
func (p Pickup) CoversCommitted(weight decimal.Decimal) bool {
	return weight.GreaterThanOrEqual(p.CommittedWeight)
}
