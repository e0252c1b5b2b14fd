// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"ekomarket_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// Event names, used by subscribers.
const (
	NamePickupCreated        = "pickups.pickup.created"
	NamePickupVerified       = "pickups.pickup.verified"
	NamePickupRejected       = "pickups.pickup.rejected"
	NamePickupPaid           = "pickups.pickup.paid"
	NameOrderCreated         = "orders.order.created"
	NameOrderStatusChanged   = "orders.order.status_changed"
	NameTransactionCompleted = "transactions.transaction.completed"
	NameTokensCredited       = "tokens.ledger.credited"
	NameMessageSent          = "messaging.message.sent"
	NameHotspotReported      = "hotspots.hotspot.reported"
)

// =============================================================================
// Pickup Domain Events
// =============================================================================

// PickupCreated is published after a submission is persisted.
type PickupCreated struct {
	BaseEvent
	PickupID     uuid.UUID `json:"pickupId"`
	CollectorID  uuid.UUID `json:"collectorId"`
	Category     string    `json:"category"`
	ManualReview bool      `json:"manualReview"`
}

func (e PickupCreated) EventName() string { return NamePickupCreated }

// PickupVerified is published when a pickup moves to verified.
type PickupVerified struct {
	BaseEvent
	PickupID    uuid.UUID `json:"pickupId"`
	CollectorID uuid.UUID `json:"collectorId"`
	VerifiedBy  uuid.UUID `json:"verifiedBy"`
	// ByAI is true when the AI-assisted path made the decision.
	ByAI bool `json:"byAi"`
}

func (e PickupVerified) EventName() string { return NamePickupVerified }

// PickupRejected is published when a pickup moves to rejected.
type PickupRejected struct {
	BaseEvent
	PickupID    uuid.UUID `json:"pickupId"`
	CollectorID uuid.UUID `json:"collectorId"`
	Reason      string    `json:"reason"`
}

func (e PickupRejected) EventName() string { return NamePickupRejected }

// PickupPaid is published after the payment transaction for a pickup completes.
type PickupPaid struct {
	BaseEvent
	PickupID      uuid.UUID `json:"pickupId"`
	CollectorID   uuid.UUID `json:"collectorId"`
	TransactionID uuid.UUID `json:"transactionId"`
	RewardTokens  string    `json:"rewardTokens"`
}

func (e PickupPaid) EventName() string { return NamePickupPaid }

// =============================================================================
// Order Domain Events
// =============================================================================

// OrderCreated is published after a brand places an order.
type OrderCreated struct {
	BaseEvent
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	BrandID     uuid.UUID `json:"brandId"`
	CollectorID uuid.UUID `json:"collectorId"`
	PickupID    uuid.UUID `json:"pickupId"`
}

func (e OrderCreated) EventName() string { return NameOrderCreated }

// OrderStatusChanged is published for every fulfilment or payment change.
type OrderStatusChanged struct {
	BaseEvent
	OrderID       uuid.UUID `json:"orderId"`
	BrandID       uuid.UUID `json:"brandId"`
	CollectorID   uuid.UUID `json:"collectorId"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	ChangedByRole string    `json:"changedByRole"`
}

func (e OrderStatusChanged) EventName() string { return NameOrderStatusChanged }

// =============================================================================
// Transaction, Token and Messaging Events
// =============================================================================

// TransactionCompleted is published when a payment transaction completes.
type TransactionCompleted struct {
	BaseEvent
	TransactionID uuid.UUID  `json:"transactionId"`
	PayerID       uuid.UUID  `json:"payerId"`
	PayeeID       uuid.UUID  `json:"payeeId"`
	PickupID      *uuid.UUID `json:"pickupId,omitempty"`
	OrderID       *uuid.UUID `json:"orderId,omitempty"`
	Amount        string     `json:"amount"`
}

func (e TransactionCompleted) EventName() string { return NameTransactionCompleted }

// TokensCredited is published after a ledger append.
type TokensCredited struct {
	BaseEvent
	CollectorID  uuid.UUID `json:"collectorId"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balanceAfter"`
	Reason       string    `json:"reason"`
}

func (e TokensCredited) EventName() string { return NameTokensCredited }

// MessageSent is published after a chat message is stored.
type MessageSent struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      uuid.UUID `json:"messageId"`
	SenderID       uuid.UUID `json:"senderId"`
	RecipientID    uuid.UUID `json:"recipientId"`
}

func (e MessageSent) EventName() string { return NameMessageSent }

// HotspotReported is published when a hotspot is created.
type HotspotReported struct {
	BaseEvent
	HotspotID  uuid.UUID `json:"hotspotId"`
	ReportedBy uuid.UUID `json:"reportedBy"`
}

func (e HotspotReported) EventName() string { return NameHotspotReported }
