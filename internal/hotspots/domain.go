package hotspots

import (
	"fmt"
	"sort"
	"time"

	pickupdomain "ekomarket_backend/internal/pickups/domain"
	"ekomarket_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PollIntervalSeconds is how often map clients refresh hotspots.
const PollIntervalSeconds = 120

// Status is the hotspot lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusDepleted Status = "depleted"
	StatusExpired  Status = "expired"
)

// ParseStatus maps a raw value onto a Status.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusActive, StatusDepleted, StatusExpired:
		return s, true
	}
	return "", false
}

// Location is where the hotspot was reported.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// Availability is the estimated weight still collectable for one category.
type Availability struct {
	Category pickupdomain.Category `json:"category"`
	Weight   decimal.Decimal       `json:"weight"`
}

// Collection is one append-only entry of a hotspot's collection history.
type Collection struct {
	Seq         int                   `json:"seq"`
	Category    pickupdomain.Category `json:"category"`
	Weight      decimal.Decimal       `json:"weight"`
	CollectorID uuid.UUID             `json:"collectorId"`
	PickupID    *uuid.UUID            `json:"pickupId,omitempty"`
	CollectedAt time.Time             `json:"collectedAt"`
}

// Hotspot is a community-reported location with collectable waste.
type Hotspot struct {
	ID                 uuid.UUID      `json:"id"`
	ReportedBy         uuid.UUID      `json:"reportedBy"`
	Name               string         `json:"name"`
	Description        *string        `json:"description,omitempty"`
	Location           Location       `json:"location"`
	EstimatedAvailable []Availability `json:"estimatedAvailable"`
	Status             Status         `json:"status"`
	ExpiresAt          time.Time      `json:"expiresAt"`
	CollectionHistory  []Collection   `json:"collectionHistory,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// TotalAvailable sums the available weight over all categories.
func (h Hotspot) TotalAvailable() decimal.Decimal {
	total := decimal.Zero
	for _, a := range h.EstimatedAvailable {
		total = total.Add(a.Weight)
	}
	return total
}

// CollectionResult is the state after a collection is applied.
type CollectionResult struct {
	Category  pickupdomain.Category
	Remaining decimal.Decimal
	Status    Status
}

// ApplyCollection reduces the category's available weight by weight, clamped
// at zero. The hotspot becomes depleted once nothing is left in any category.
func ApplyCollection(h Hotspot, category pickupdomain.Category, weight decimal.Decimal, now time.Time) (CollectionResult, error) {
	if h.Status != StatusActive {
		return CollectionResult{}, notCollectable(h.Status)
	}
	if !now.Before(h.ExpiresAt) {
		return CollectionResult{}, notCollectable(StatusExpired)
	}
	if !weight.IsPositive() {
		return CollectionResult{}, apperr.Fields([]apperr.FieldError{{Field: "weight", Message: "must be positive"}})
	}

	res := CollectionResult{Category: category, Remaining: decimal.Zero, Status: StatusActive}
	total := decimal.Zero
	for _, a := range h.EstimatedAvailable {
		w := a.Weight
		if a.Category == category {
			w = decimal.Max(w.Sub(weight), decimal.Zero)
			res.Remaining = w
		}
		total = total.Add(w)
	}
	if !total.IsPositive() {
		res.Status = StatusDepleted
	}
	return res, nil
}

func notCollectable(current Status) *apperr.Error {
	return apperr.Conflict(fmt.Sprintf("hotspot is %s and no longer accepts collections", current)).
		WithCode(apperr.CodeInvalidTransition).
		WithDetails(apperr.TransitionDetails{Current: string(current), Requested: "collect"})
}

// MergeAvailability normalises categories and sums duplicates. Unknown
// categories or negative weights come back as field errors.
func MergeAvailability(in []AvailabilityInput) ([]Availability, error) {
	sums := map[pickupdomain.Category]decimal.Decimal{}
	var problems []apperr.FieldError
	for i, a := range in {
		category, ok := pickupdomain.ParseCategory(a.Category)
		if !ok {
			problems = append(problems, apperr.FieldError{Field: fmt.Sprintf("estimatedAvailable[%d].category", i), Message: "is invalid"})
			continue
		}
		if a.Weight.IsNegative() {
			problems = append(problems, apperr.FieldError{Field: fmt.Sprintf("estimatedAvailable[%d].weight", i), Message: "must not be negative"})
			continue
		}
		sums[category] = sums[category].Add(a.Weight.Round(3))
	}
	if len(problems) > 0 {
		return nil, apperr.Fields(problems)
	}

	out := make([]Availability, 0, len(sums))
	for category, weight := range sums {
		out = append(out, Availability{Category: category, Weight: weight})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// AvailabilityInput is one category estimate in a report.
type AvailabilityInput struct {
	Category string          `json:"category" validate:"required"`
	Weight   decimal.Decimal `json:"weight"`
}

// ReportHotspotRequest reports a new hotspot.
type ReportHotspotRequest struct {
	Name               string              `json:"name" validate:"required,max=200"`
	Description        *string             `json:"description" validate:"omitempty,max=2000"`
	Address            string              `json:"address" validate:"max=500"`
	Lat                *float64            `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng                *float64            `json:"lng" validate:"required,gte=-180,lte=180"`
	EstimatedAvailable []AvailabilityInput `json:"estimatedAvailable" validate:"required,min=1,dive"`
	TTLHours           *int                `json:"ttlHours" validate:"omitempty,min=1,max=720"`
}

// ListHotspotsRequest is the map query.
type ListHotspotsRequest struct {
	Lat      *float64 `form:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng      *float64 `form:"lng" validate:"omitempty,gte=-180,lte=180"`
	RadiusKm float64  `form:"radiusKm" validate:"omitempty,gt=0,lte=500"`
	Status   string   `form:"status" validate:"omitempty"`
}

// RecordCollectionRequest records waste taken from a hotspot.
type RecordCollectionRequest struct {
	Category string          `json:"category" validate:"required"`
	Weight   decimal.Decimal `json:"weight"`
	PickupID *string         `json:"pickupId" validate:"omitempty,uuid"`
}

// HotspotListResponse is one map refresh.
type HotspotListResponse struct {
	Items               []Hotspot `json:"items"`
	PollIntervalSeconds int       `json:"pollIntervalSeconds"`
}
