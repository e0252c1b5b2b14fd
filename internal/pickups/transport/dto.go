package transport

import (
	"time"

	"ekomarket_backend/internal/classification"
	"ekomarket_backend/internal/pickups/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Upload is one multipart file read into memory.
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// CreatePickupForm holds the raw multipart fields of a submission. Values are
// coerced and validated server-side; nothing from the client is trusted.
type CreatePickupForm struct {
	Before *Upload
	After  *Upload

	Category             string
	EstimatedWeight      string
	Notes                string
	Address              string
	Lat                  string
	Lng                  string
	AIConfidence         string
	AICategory           string
	AIWeight             string
	ManualReviewRequired string
}

// UpdatePickupRequest is the owner edit of a pending pickup.
type UpdatePickupRequest struct {
	Category        *string  `json:"category" validate:"omitempty,plastic_category"`
	EstimatedWeight *float64 `json:"estimatedWeight" validate:"omitempty,gt=0,lte=100000"`
	Notes           *string  `json:"notes" validate:"omitempty,max=1000"`
	Address         *string  `json:"address" validate:"omitempty,min=1,max=500"`
	Lat             *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng             *float64 `json:"lng" validate:"omitempty,gte=-180,lte=180"`
}

// VerifyPickupRequest is a manual verification.
type VerifyPickupRequest struct {
	ActualWeight float64 `json:"actualWeight" validate:"required,gt=0,lte=100000"`
	Category     *string `json:"category" validate:"omitempty,plastic_category"`
	Notes        string  `json:"notes" validate:"max=1000"`
}

// RejectPickupRequest is a manual rejection.
type RejectPickupRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
	Notes  string `json:"notes" validate:"max=1000"`
}

// ListPickupsRequest is bound from the query string.
type ListPickupsRequest struct {
	Status   string   `form:"status" validate:"omitempty,oneof=pending verified rejected paid"`
	Category string   `form:"category" validate:"omitempty,plastic_category"`
	Lat      *float64 `form:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng      *float64 `form:"lng" validate:"omitempty,gte=-180,lte=180"`
	RadiusKm float64  `form:"radiusKm" validate:"omitempty,gt=0,lte=500"`
	Page     int      `form:"page" validate:"omitempty,min=1"`
	PageSize int      `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// DetectResponse is the classification result plus pipeline hints.
type DetectResponse struct {
	Classification classification.Result `json:"classification"`
	// AutoFill tells the client to pre-fill the category and weight fields.
	AutoFill bool `json:"autoFill"`
	// ManualReview is the flag the eventual pickup will carry.
	ManualReview bool `json:"manualReview"`
}

type PhotoResponse struct {
	ID          string     `json:"id"`
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

type PhotosResponse struct {
	Before PhotoResponse  `json:"before"`
	After  *PhotoResponse `json:"after,omitempty"`
}

type LocationResponse struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type VerificationResponse struct {
	AIConfidence    *float64         `json:"aiConfidence,omitempty"`
	AICategory      *string          `json:"aiCategory,omitempty"`
	AIWeight        *decimal.Decimal `json:"aiWeight,omitempty"`
	ManualReview    bool             `json:"manualReview"`
	VerifiedBy      *uuid.UUID       `json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time       `json:"verifiedAt,omitempty"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
}

type HistoryEntryResponse struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Notes     string     `json:"notes,omitempty"`
	ChangedBy *uuid.UUID `json:"changedBy,omitempty"`
}

type PickupResponse struct {
	ID              uuid.UUID              `json:"id"`
	CollectorID     uuid.UUID              `json:"collectorId"`
	Category        string                 `json:"category"`
	EstimatedWeight decimal.Decimal        `json:"estimatedWeight"`
	ActualWeight    *decimal.Decimal       `json:"actualWeight,omitempty"`
	CommittedWeight decimal.Decimal        `json:"committedWeight"`
	AvailableWeight decimal.Decimal        `json:"availableWeight"`
	Status          string                 `json:"status"`
	Location        LocationResponse       `json:"location"`
	Photos          PhotosResponse         `json:"photos"`
	Verification    VerificationResponse   `json:"verification"`
	Notes           string                 `json:"notes,omitempty"`
	StatusHistory   []HistoryEntryResponse `json:"statusHistory"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

type PickupListResponse struct {
	Items    []PickupResponse `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// AIVerifyResponse reports the decision of an AI-assisted verification.
type AIVerifyResponse struct {
	Outcome        string                `json:"outcome"`
	Pickup         PickupResponse        `json:"pickup"`
	Classification classification.Result `json:"classification"`
}

// ToPickupResponse maps the domain record to its wire shape.
func ToPickupResponse(p domain.Pickup) PickupResponse {
	resp := PickupResponse{
		ID:              p.ID,
		CollectorID:     p.CollectorID,
		Category:        string(p.Category),
		EstimatedWeight: p.EstimatedWeight,
		ActualWeight:    p.ActualWeight,
		CommittedWeight: p.CommittedWeight,
		AvailableWeight: p.AvailableWeight(),
		Status:          string(p.Status),
		Location:        LocationResponse{Lat: p.Location.Lat, Lng: p.Location.Lng, Address: p.Location.Address},
		Photos:          PhotosResponse{Before: toPhotoResponse(p.Photos.Before)},
		Verification: VerificationResponse{
			AIConfidence:    p.Verification.AIConfidence,
			AIWeight:        p.Verification.AIWeight,
			ManualReview:    p.Verification.ManualReview,
			VerifiedBy:      p.Verification.VerifiedBy,
			VerifiedAt:      p.Verification.VerifiedAt,
			RejectionReason: p.Verification.RejectionReason,
		},
		Notes:         p.Notes,
		StatusHistory: make([]HistoryEntryResponse, 0, len(p.StatusHistory)),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.Photos.After != nil {
		after := toPhotoResponse(*p.Photos.After)
		resp.Photos.After = &after
	}
	if p.Verification.AICategory != nil {
		c := string(*p.Verification.AICategory)
		resp.Verification.AICategory = &c
	}
	for _, h := range p.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, HistoryEntryResponse{
			Status:    string(h.Status),
			Timestamp: h.Timestamp,
			Notes:     h.Notes,
			ChangedBy: h.ChangedBy,
		})
	}
	return resp
}

func toPhotoResponse(p domain.Photo) PhotoResponse {
	return PhotoResponse{
		ID:          p.BlobID,
		URL:         p.URL,
		Width:       p.Width,
		Height:      p.Height,
		Format:      p.Format,
		Bytes:       p.Bytes,
		ContentHash: p.ContentHash,
		CapturedAt:  p.CapturedAt,
		GPSLat:      p.GPSLat,
		GPSLng:      p.GPSLng,
	}
}
