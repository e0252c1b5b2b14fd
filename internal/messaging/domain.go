package messaging

import (
	"time"

	"github.com/google/uuid"
)

// PollIntervalSeconds is how often clients poll for new messages.
const PollIntervalSeconds = 10

// Role is the side a participant speaks for.
type Role string

const (
	RoleCollector Role = "collector"
	RoleBrand     Role = "brand"
)

// Conversation is the thread between one collector and one brand, optionally
// about a pickup or an order.
type Conversation struct {
	ID              uuid.UUID
	CollectorID     uuid.UUID
	BrandID         uuid.UUID
	PickupID        *uuid.UUID
	OrderID         *uuid.UUID
	LastMessage     string
	LastMessageAt   *time.Time
	UnreadCollector int
	UnreadBrand     int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Message is append-only.
type Message struct {
	ID              uuid.UUID  `json:"id"`
	ConversationID  uuid.UUID  `json:"conversationId"`
	SenderID        uuid.UUID  `json:"senderId"`
	SenderRole      Role       `json:"senderRole"`
	Body            string     `json:"body"`
	ReadAtCollector *time.Time `json:"readAtCollector,omitempty"`
	ReadAtBrand     *time.Time `json:"readAtBrand,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Key identifies a conversation for find-or-create.
type Key struct {
	CollectorID uuid.UUID
	BrandID     uuid.UUID
	PickupID    *uuid.UUID
	OrderID     *uuid.UUID
}

// Participant is the caller resolved against a conversation.
type Participant struct {
	ID   uuid.UUID
	Role Role
}

// In reports whether p takes part in c.
func (p Participant) In(c Conversation) bool {
	switch p.Role {
	case RoleCollector:
		return c.CollectorID == p.ID
	case RoleBrand:
		return c.BrandID == p.ID
	}
	return false
}

// Unread is c's unread counter for p's side.
func (p Participant) Unread(c Conversation) int {
	if p.Role == RoleCollector {
		return c.UnreadCollector
	}
	return c.UnreadBrand
}

// Counterpart is the other participant of c.
func (p Participant) Counterpart(c Conversation) uuid.UUID {
	if p.Role == RoleCollector {
		return c.BrandID
	}
	return c.CollectorID
}

// StartConversationRequest opens or finds a thread.
type StartConversationRequest struct {
	ParticipantID string  `json:"participantId" validate:"required,uuid"`
	PickupID      *string `json:"pickupId" validate:"omitempty,uuid"`
	OrderID       *string `json:"orderId" validate:"omitempty,uuid"`
}

// SendMessageRequest posts a message.
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// ListMessagesRequest polls for messages after a point in time.
type ListMessagesRequest struct {
	After string `form:"after" validate:"omitempty"`
	Limit int    `form:"limit" validate:"omitempty,min=1,max=200"`
}

// ConversationResponse is a conversation seen by one participant.
type ConversationResponse struct {
	ID                  uuid.UUID  `json:"id"`
	CollectorID         uuid.UUID  `json:"collectorId"`
	BrandID             uuid.UUID  `json:"brandId"`
	ParticipantID       uuid.UUID  `json:"participantId"`
	PickupID            *uuid.UUID `json:"pickupId,omitempty"`
	OrderID             *uuid.UUID `json:"orderId,omitempty"`
	LastMessage         string     `json:"lastMessage,omitempty"`
	LastMessageAt       *time.Time `json:"lastMessageAt,omitempty"`
	UnreadCount         int        `json:"unreadCount"`
	CreatedAt           time.Time  `json:"createdAt"`
	PollIntervalSeconds int        `json:"pollIntervalSeconds"`
}

// MessagesResponse is one polled page.
type MessagesResponse struct {
	Items               []Message `json:"items"`
	PollIntervalSeconds int       `json:"pollIntervalSeconds"`
}

func toResponse(p Participant, c Conversation) ConversationResponse {
	return ConversationResponse{
		ID:                  c.ID,
		CollectorID:         c.CollectorID,
		BrandID:             c.BrandID,
		ParticipantID:       p.Counterpart(c),
		PickupID:            c.PickupID,
		OrderID:             c.OrderID,
		LastMessage:         c.LastMessage,
		LastMessageAt:       c.LastMessageAt,
		UnreadCount:         p.Unread(c),
		CreatedAt:           c.CreatedAt,
		PollIntervalSeconds: PollIntervalSeconds,
	}
}
