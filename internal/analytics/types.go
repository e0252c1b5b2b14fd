package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// CollectorTotals are lifetime figures for one collector.
type CollectorTotals struct {
	TotalPickups    int             `json:"totalPickups"`
	PendingPickups  int             `json:"pendingPickups"`
	VerifiedPickups int             `json:"verifiedPickups"`
	PaidPickups     int             `json:"paidPickups"`
	RejectedPickups int             `json:"rejectedPickups"`
	TotalWeight     decimal.Decimal `json:"totalWeight"`
	TotalEarnings   decimal.Decimal `json:"totalEarnings"`
	TokenBalance    decimal.Decimal `json:"tokenBalance"`
}

// BrandTotals are lifetime figures for one brand.
type BrandTotals struct {
	TotalOrders     int             `json:"totalOrders"`
	ActiveOrders    int             `json:"activeOrders"`
	DeliveredOrders int             `json:"deliveredOrders"`
	CancelledOrders int             `json:"cancelledOrders"`
	TotalPurchased  decimal.Decimal `json:"totalPurchased"`
	TotalSpent      decimal.Decimal `json:"totalSpent"`
}

// CategoryBreakdown is weight and record count for one plastic category.
type CategoryBreakdown struct {
	Category string          `json:"category"`
	Count    int             `json:"count"`
	Weight   decimal.Decimal `json:"weight"`
}

// MonthlyPoint is one month of a series. Month is YYYY-MM.
type MonthlyPoint struct {
	Month  string          `json:"month"`
	Weight decimal.Decimal `json:"weight"`
	Amount decimal.Decimal `json:"amount"`
}

// InventoryRow is marketplace-wide availability for one category.
type InventoryRow struct {
	Category  string          `json:"category"`
	Pickups   int             `json:"pickups"`
	Available decimal.Decimal `json:"available"`
}

// DashboardRequest selects the length of the monthly series.
type DashboardRequest struct {
	Months int `form:"months" validate:"omitempty,min=1,max=36"`
}

// CollectorDashboard is the collector analytics view.
type CollectorDashboard struct {
	Totals      CollectorTotals     `json:"totals"`
	ByCategory  []CategoryBreakdown `json:"byCategory"`
	Monthly     []MonthlyPoint      `json:"monthly"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// BrandDashboard is the brand analytics view.
type BrandDashboard struct {
	Totals      BrandTotals         `json:"totals"`
	ByCategory  []CategoryBreakdown `json:"byCategory"`
	Monthly     []MonthlyPoint      `json:"monthly"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// InventoryReport is the marketplace inventory view.
type InventoryReport struct {
	Categories     []InventoryRow  `json:"categories"`
	TotalAvailable decimal.Decimal `json:"totalAvailable"`
	GeneratedAt    time.Time       `json:"generatedAt"`
}
