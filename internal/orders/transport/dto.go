package transport

import (
	"time"

	"ekomarket_backend/internal/orders/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateOrderRequest is a brand's order against a pickup. Quantity and price
// are range-checked by the service so they can report their own codes.
type CreateOrderRequest struct {
	PickupID        string          `json:"pickupId" validate:"required,uuid"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	ShippingAddress string          `json:"shippingAddress" validate:"required,min=3,max=500"`
	Notes           string          `json:"notes" validate:"max=1000"`
}

// UpdateOrderRequest applies a fulfilment action and/or a payment change.
type UpdateOrderRequest struct {
	Action             *string `json:"action" validate:"omitempty,oneof=confirm process ship deliver cancel"`
	PaymentStatus      *string `json:"paymentStatus" validate:"omitempty,oneof=pending paid partial refunded failed"`
	Notes              string  `json:"notes" validate:"max=1000"`
	CancellationReason *string `json:"cancellationReason" validate:"omitempty,max=500"`
	TrackingNumber     *string `json:"trackingNumber" validate:"omitempty,max=100"`
}

// ListOrdersRequest filters the caller's orders.
type ListOrdersRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=pending confirmed processing shipped delivered cancelled"`
	PickupID string `form:"pickupId" validate:"omitempty,uuid"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// HistoryEntryResponse is one order history row.
type HistoryEntryResponse struct {
	Status        domain.Status        `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	Timestamp     time.Time            `json:"timestamp"`
	Notes         string               `json:"notes,omitempty"`
	ChangedBy     *uuid.UUID           `json:"changedBy,omitempty"`
	ChangedByRole domain.Role          `json:"changedByRole"`
}

// OrderResponse is the public order shape.
type OrderResponse struct {
	ID                 uuid.UUID              `json:"id"`
	OrderID            string                 `json:"orderId"`
	BrandID            uuid.UUID              `json:"brandId"`
	CollectorID        uuid.UUID              `json:"collectorId"`
	PickupID           uuid.UUID              `json:"pickupId"`
	Category           string                 `json:"category"`
	Quantity           decimal.Decimal        `json:"quantity"`
	UnitPrice          decimal.Decimal        `json:"unitPrice"`
	TotalAmount        decimal.Decimal        `json:"totalAmount"`
	Status             domain.Status          `json:"status"`
	PaymentStatus      domain.PaymentStatus   `json:"paymentStatus"`
	ShippingAddress    string                 `json:"shippingAddress"`
	Notes              string                 `json:"notes,omitempty"`
	CancellationReason string                 `json:"cancellationReason,omitempty"`
	TrackingNumber     string                 `json:"trackingNumber,omitempty"`
	StatusHistory      []HistoryEntryResponse `json:"statusHistory"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
}

// OrderListResponse is one page of orders.
type OrderListResponse struct {
	Items    []OrderResponse `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// ToOrderResponse maps the domain order.
func ToOrderResponse(o domain.Order) OrderResponse {
	history := make([]HistoryEntryResponse, 0, len(o.StatusHistory))
	for _, h := range o.StatusHistory {
		history = append(history, HistoryEntryResponse{
			Status:        h.Status,
			PaymentStatus: h.PaymentStatus,
			Timestamp:     h.Timestamp,
			Notes:         h.Notes,
			ChangedBy:     h.ChangedBy,
			ChangedByRole: h.ChangedByRole,
		})
	}
	return OrderResponse{
		ID:                 o.ID,
		OrderID:            o.OrderNumber,
		BrandID:            o.BrandID,
		CollectorID:        o.CollectorID,
		PickupID:           o.PickupID,
		Category:           o.Category,
		Quantity:           o.Quantity,
		UnitPrice:          o.UnitPrice,
		TotalAmount:        o.TotalAmount,
		Status:             o.Status,
		PaymentStatus:      o.PaymentStatus,
		ShippingAddress:    o.ShippingAddress,
		Notes:              o.Notes,
		CancellationReason: o.CancellationReason,
		TrackingNumber:     o.TrackingNumber,
		StatusHistory:      history,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}
