package profiles

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Profile roles.
const (
	RoleCollector = "collector"
	RoleBrand     = "brand"
)

// CollectorStats is the materialised summary of a collector's activity.
type CollectorStats struct {
	TotalPickups    int             `json:"totalPickups"`
	VerifiedPickups int             `json:"verifiedPickups"`
	TotalWeight     decimal.Decimal `json:"totalWeight"`
	TotalEarnings   decimal.Decimal `json:"totalEarnings"`
	TokenBalance    decimal.Decimal `json:"tokenBalance"`
	RefreshedAt     *time.Time      `json:"refreshedAt,omitempty"`
}

// BrandStats is the materialised summary of a brand's purchasing.
type BrandStats struct {
	TotalOrders     int             `json:"totalOrders"`
	DeliveredOrders int             `json:"deliveredOrders"`
	TotalPurchased  decimal.Decimal `json:"totalPurchased"`
	TotalSpent      decimal.Decimal `json:"totalSpent"`
	RefreshedAt     *time.Time      `json:"refreshedAt,omitempty"`
}

// Profile is a collector or brand account profile.
type Profile struct {
	UserID         uuid.UUID       `json:"userId"`
	Role           string          `json:"role"`
	DisplayName    string          `json:"displayName"`
	CompanyName    string          `json:"companyName,omitempty"`
	Phone          *string         `json:"phone,omitempty"`
	Address        *string         `json:"address,omitempty"`
	CollectorStats *CollectorStats `json:"collectorStats,omitempty"`
	BrandStats     *BrandStats     `json:"brandStats,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Public strips contact details.
func (p Profile) Public() Profile {
	p.Phone = nil
	p.Address = nil
	return p
}

// Fields are the editable profile columns. Nil leaves a column unchanged.
type Fields struct {
	DisplayName *string
	CompanyName *string
	Phone       *string
	Address     *string
}

// UpdateProfileRequest edits the caller's profile.
type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=120"`
	Phone       *string `json:"phone" validate:"omitempty,max=32"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	CompanyName *string `json:"companyName" validate:"omitempty,max=200"`
}
