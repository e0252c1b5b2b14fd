package messaging

import (
	"context"
	"time"
	"unicode/utf8"

	"ekomarket_backend/internal/events"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	maxBodyRunes         = 2000
	defaultMessagesLimit = 50
	maxMessagesLimit     = 200
	conversationsLimit   = 100
)

// Service runs chat between collectors and brands.
type Service struct {
	repo Repository
	bus  events.Bus
	log  *logger.Logger
}

// NewService creates the messaging service.
func NewService(repo Repository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

func participantFor(identity httpkit.Identity) (Participant, error) {
	switch identity.Role() {
	case httpkit.RoleCollector:
		return Participant{ID: identity.UserID(), Role: RoleCollector}, nil
	case httpkit.RoleBrand:
		return Participant{ID: identity.UserID(), Role: RoleBrand}, nil
	}
	return Participant{}, apperr.Forbidden("only collectors and brands can use messaging")
}

// Start finds or creates the conversation between the caller and the other
// party, optionally scoped to a pickup or an order.
func (s *Service) Start(ctx context.Context, identity httpkit.Identity, req StartConversationRequest) (ConversationResponse, error) {
	p, err := participantFor(identity)
	if err != nil {
		return ConversationResponse{}, err
	}
	other, err := uuid.Parse(req.ParticipantID)
	if err != nil {
		return ConversationResponse{}, apperr.Fields([]apperr.FieldError{{Field: "participantId", Message: "must be a uuid"}})
	}
	if other == p.ID {
		return ConversationResponse{}, apperr.Fields([]apperr.FieldError{{Field: "participantId", Message: "cannot start a conversation with yourself"}})
	}

	key := Key{CollectorID: p.ID, BrandID: other}
	if p.Role == RoleBrand {
		key = Key{CollectorID: other, BrandID: p.ID}
	}
	if key.PickupID, err = optionalID("pickupId", req.PickupID); err != nil {
		return ConversationResponse{}, err
	}
	if key.OrderID, err = optionalID("orderId", req.OrderID); err != nil {
		return ConversationResponse{}, err
	}

	conv, err := s.repo.FindOrCreate(ctx, uuid.New(), key)
	if err != nil {
		return ConversationResponse{}, err
	}
	return toResponse(p, conv), nil
}

// List returns the caller's conversations with their own unread counter.
func (s *Service) List(ctx context.Context, identity httpkit.Identity) ([]ConversationResponse, error) {
	p, err := participantFor(identity)
	if err != nil {
		return nil, err
	}
	convs, err := s.repo.List(ctx, p, conversationsLimit, 0)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationResponse, 0, len(convs))
	for _, c := range convs {
		out = append(out, toResponse(p, c))
	}
	return out, nil
}

// Get returns one conversation. Non-participants see not found.
func (s *Service) Get(ctx context.Context, identity httpkit.Identity, id uuid.UUID) (ConversationResponse, error) {
	p, conv, err := s.load(ctx, identity, id)
	if err != nil {
		return ConversationResponse{}, err
	}
	return toResponse(p, conv), nil
}

// Messages polls a conversation for messages newer than req.After.
func (s *Service) Messages(ctx context.Context, identity httpkit.Identity, id uuid.UUID, req ListMessagesRequest) (MessagesResponse, error) {
	_, conv, err := s.load(ctx, identity, id)
	if err != nil {
		return MessagesResponse{}, err
	}

	var after time.Time
	if req.After != "" {
		if after, err = time.Parse(time.RFC3339Nano, req.After); err != nil {
			return MessagesResponse{}, apperr.Fields([]apperr.FieldError{{Field: "after", Message: "must be an RFC3339 timestamp"}})
		}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultMessagesLimit
	}
	if limit > maxMessagesLimit {
		limit = maxMessagesLimit
	}

	items, err := s.repo.Messages(ctx, conv.ID, after, limit)
	if err != nil {
		return MessagesResponse{}, err
	}
	return MessagesResponse{Items: items, PollIntervalSeconds: PollIntervalSeconds}, nil
}

// Send appends a message from the caller.
func (s *Service) Send(ctx context.Context, identity httpkit.Identity, id uuid.UUID, req SendMessageRequest) (Message, error) {
	p, conv, err := s.load(ctx, identity, id)
	if err != nil {
		return Message{}, err
	}
	body := sanitize.Body(req.Body)
	if n := utf8.RuneCountInString(body); n == 0 || n > maxBodyRunes {
		return Message{}, apperr.Fields([]apperr.FieldError{{Field: "body", Message: "must be between 1 and 2000 characters"}})
	}

	msg, _, err := s.repo.Append(ctx, Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       p.ID,
		SenderRole:     p.Role,
		Body:           body,
	})
	if err != nil {
		return Message{}, err
	}
	s.log.Debug("message sent", "conversationId", conv.ID, "messageId", msg.ID, "senderRole", string(p.Role))

	if s.bus != nil {
		s.bus.Publish(ctx, events.MessageSent{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			SenderID:       p.ID,
			RecipientID:    p.Counterpart(conv),
		})
	}
	return msg, nil
}

// MarkRead marks all messages read for the caller's side.
func (s *Service) MarkRead(ctx context.Context, identity httpkit.Identity, id uuid.UUID) (ConversationResponse, error) {
	p, conv, err := s.load(ctx, identity, id)
	if err != nil {
		return ConversationResponse{}, err
	}
	updated, err := s.repo.MarkRead(ctx, conv.ID, p.Role)
	if err != nil {
		return ConversationResponse{}, err
	}
	return toResponse(p, updated), nil
}

// UnreadCount totals the caller's unread messages.
func (s *Service) UnreadCount(ctx context.Context, identity httpkit.Identity) (int, error) {
	p, err := participantFor(identity)
	if err != nil {
		return 0, err
	}
	return s.repo.UnreadTotal(ctx, p)
}

func (s *Service) load(ctx context.Context, identity httpkit.Identity, id uuid.UUID) (Participant, Conversation, error) {
	p, err := participantFor(identity)
	if err != nil {
		return Participant{}, Conversation{}, err
	}
	conv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Participant{}, Conversation{}, err
	}
	if !p.In(conv) {
		return Participant{}, Conversation{}, apperr.NotFound(conversationNotFoundMsg)
	}
	return p, conv, nil
}

func optionalID(field string, raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, apperr.Fields([]apperr.FieldError{{Field: field, Message: "must be a uuid"}})
	}
	return &id, nil
}
