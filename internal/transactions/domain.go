package transactions

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the state of a payment attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether from -> to is allowed. Terminal states never move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is final.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ParseStatus validates s.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return Status(s), true
	default:
		return "", false
	}
}

// Transaction is a payment attempt for a pickup or an order.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID string          `json:"transactionId"`
	PayerID       uuid.UUID       `json:"payerId"`
	PayeeID       uuid.UUID       `json:"payeeId"`
	PickupID      *uuid.UUID      `json:"pickupId,omitempty"`
	OrderID       *uuid.UUID      `json:"orderId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        Status          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// IsParticipant reports whether userID pays or receives.
func (t Transaction) IsParticipant(userID uuid.UUID) bool {
	return t.PayerID == userID || t.PayeeID == userID
}

// NewReference builds a TRX-YYYYMMDD-XXXXXXXX reference for attempts that
// arrive without an external id.
func NewReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TRX-%s-%s", now.UTC().Format("20060102"), suffix)
}

// CreateTransactionRequest opens a payment attempt. Exactly one of OrderID
// and PickupID is set.
type CreateTransactionRequest struct {
	OrderID       *string          `json:"orderId" validate:"omitempty,uuid"`
	PickupID      *string          `json:"pickupId" validate:"omitempty,uuid"`
	Amount        *decimal.Decimal `json:"amount"`
	PaymentMethod string           `json:"paymentMethod" validate:"required,oneof=bank_transfer e_wallet cash qris virtual_account"`
	TransactionID string           `json:"transactionId" validate:"omitempty,min=4,max=100"`
	Notes         string           `json:"notes" validate:"max=1000"`
}

// UpdateTransactionRequest moves the attempt.
type UpdateTransactionRequest struct {
	Status string `json:"status" validate:"required,oneof=processing completed failed cancelled"`
	Notes  string `json:"notes" validate:"max=1000"`
}

// ListTransactionsRequest filters the caller's transactions.
type ListTransactionsRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=pending processing completed failed cancelled"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// ListResponse is one page of transactions.
type ListResponse struct {
	Items    []Transaction `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}
