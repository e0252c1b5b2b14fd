package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"ekomarket_backend/internal/events"
	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/httpkit"
	"ekomarket_backend/platform/logger"
	"ekomarket_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memoryRepo reproduces the unique pair index and the unread recount.
type memoryRepo struct {
	mu       sync.Mutex
	now      time.Time
	convs    map[uuid.UUID]*Conversation
	messages []Message
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		now:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		convs: map[uuid.UUID]*Conversation{},
	}
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *memoryRepo) FindOrCreate(_ context.Context, id uuid.UUID, key Key) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.CollectorID == key.CollectorID && c.BrandID == key.BrandID && sameID(c.PickupID, key.PickupID) && sameID(c.OrderID, key.OrderID) {
			return *c, nil
		}
	}
	c := &Conversation{ID: id, CollectorID: key.CollectorID, BrandID: key.BrandID, PickupID: key.PickupID, OrderID: key.OrderID, CreatedAt: r.now, UpdatedAt: r.now}
	r.convs[id] = c
	return *c, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return Conversation{}, apperr.NotFound(conversationNotFoundMsg)
	}
	return *c, nil
}

func (r *memoryRepo) List(_ context.Context, p Participant, limit, offset int) ([]Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Conversation
	for _, c := range r.convs {
		if p.In(*c) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memoryRepo) recount(c *Conversation) {
	c.UnreadCollector, c.UnreadBrand = 0, 0
	for _, m := range r.messages {
		if m.ConversationID != c.ID {
			continue
		}
		if m.ReadAtCollector == nil {
			c.UnreadCollector++
		}
		if m.ReadAtBrand == nil {
			c.UnreadBrand++
		}
	}
}

func (r *memoryRepo) Append(_ context.Context, msg Message) (Message, Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[msg.ConversationID]
	if !ok {
		return Message{}, Conversation{}, apperr.NotFound(conversationNotFoundMsg)
	}
	r.now = r.now.Add(time.Second)
	msg.CreatedAt = r.now
	readAt := r.now
	if msg.SenderRole == RoleCollector {
		msg.ReadAtCollector = &readAt
	} else {
		msg.ReadAtBrand = &readAt
	}
	r.messages = append(r.messages, msg)
	c.LastMessage = msg.Body
	c.LastMessageAt = &msg.CreatedAt
	r.recount(c)
	return msg, *c, nil
}

func (r *memoryRepo) Messages(_ context.Context, conversationID uuid.UUID, after time.Time, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID && m.CreatedAt.After(after) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) MarkRead(_ context.Context, conversationID uuid.UUID, role Role) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[conversationID]
	if !ok {
		return Conversation{}, apperr.NotFound(conversationNotFoundMsg)
	}
	now := r.now
	for i := range r.messages {
		m := &r.messages[i]
		if m.ConversationID != conversationID {
			continue
		}
		if role == RoleCollector && m.ReadAtCollector == nil {
			m.ReadAtCollector = &now
		}
		if role == RoleBrand && m.ReadAtBrand == nil {
			m.ReadAtBrand = &now
		}
	}
	r.recount(c)
	return *c, nil
}

func (r *memoryRepo) UnreadTotal(_ context.Context, p Participant) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, c := range r.convs {
		if p.In(*c) {
			total += p.Unread(*c)
		}
	}
	return total, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

type fixture struct {
	svc       *Service
	repo      *memoryRepo
	bus       *recordingBus
	collector httpkit.Identity
	brand     httpkit.Identity
}

func newFixture() fixture {
	repo := newMemoryRepo()
	bus := &recordingBus{}
	return fixture{
		svc:       NewService(repo, bus, logger.Nop()),
		repo:      repo,
		bus:       bus,
		collector: httpkit.NewIdentity(uuid.New(), httpkit.RoleCollector),
		brand:     httpkit.NewIdentity(uuid.New(), httpkit.RoleBrand),
	}
}

func (f fixture) start(t *testing.T) ConversationResponse {
	t.Helper()
	conv, err := f.svc.Start(context.Background(), f.brand, StartConversationRequest{ParticipantID: f.collector.UserID().String()})
	if err != nil {
		t.Fatalf("start conversation: %v", err)
	}
	return conv
}

func TestStartFindsExistingConversation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.start(t)
	again, err := f.svc.Start(ctx, f.collector, StartConversationRequest{ParticipantID: f.brand.UserID().String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected the same conversation from either side, got %s and %s", first.ID, again.ID)
	}
	if first.ParticipantID != f.collector.UserID() || again.ParticipantID != f.brand.UserID() {
		t.Fatal("participantId must name the other party")
	}

	pickup := uuid.New().String()
	scoped, err := f.svc.Start(ctx, f.brand, StartConversationRequest{ParticipantID: f.collector.UserID().String(), PickupID: &pickup})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scoped.ID == first.ID {
		t.Fatal("a pickup-scoped thread must be separate")
	}
	if first.PollIntervalSeconds != 10 {
		t.Fatalf("pollIntervalSeconds = %d, want 10", first.PollIntervalSeconds)
	}
}

func TestStartRejectsBadInput(t *testing.T) {
	f := newFixture()
	bad := "not-a-uuid"
	tests := []struct {
		name     string
		identity httpkit.Identity
		req      StartConversationRequest
		kind     apperr.Kind
	}{
		{"self", f.brand, StartConversationRequest{ParticipantID: f.brand.UserID().String()}, apperr.KindValidation},
		{"bad pickup", f.brand, StartConversationRequest{ParticipantID: f.collector.UserID().String(), PickupID: &bad}, apperr.KindValidation},
		{"admin", httpkit.NewIdentity(uuid.New(), httpkit.RoleAdmin), StartConversationRequest{ParticipantID: f.collector.UserID().String()}, apperr.KindForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Start(context.Background(), tc.identity, tc.req)
			if !apperr.Is(err, tc.kind) {
				t.Fatalf("expected kind %v, got %v", tc.kind, err)
			}
		})
	}
}

func TestTwoMessagesWithinOnePollInterval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv := f.start(t)

	if _, err := f.svc.Send(ctx, f.collector, conv.ID, SendMessageRequest{Body: "Hi, 20kg PET ready"}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := f.svc.Send(ctx, f.collector, conv.ID, SendMessageRequest{Body: "Pickup after 3pm?"}); err != nil {
		t.Fatalf("second send: %v", err)
	}

	brandView, err := f.svc.Get(ctx, f.brand, conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if brandView.LastMessage != "Pickup after 3pm?" {
		t.Fatalf("lastMessage = %q, want the latest", brandView.LastMessage)
	}
	if brandView.UnreadCount != 2 {
		t.Fatalf("brand unread = %d, want 2", brandView.UnreadCount)
	}
	collectorView, _ := f.svc.Get(ctx, f.collector, conv.ID)
	if collectorView.UnreadCount != 0 {
		t.Fatalf("sender unread = %d, want 0", collectorView.UnreadCount)
	}

	page, err := f.svc.Messages(ctx, f.brand, conv.ID, ListMessagesRequest{})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Body != "Hi, 20kg PET ready" || page.Items[1].Body != "Pickup after 3pm?" {
		t.Fatalf("unexpected messages %+v", page.Items)
	}

	after := page.Items[0].CreatedAt.Format(time.RFC3339Nano)
	newer, err := f.svc.Messages(ctx, f.brand, conv.ID, ListMessagesRequest{After: after})
	if err != nil {
		t.Fatalf("poll after: %v", err)
	}
	if len(newer.Items) != 1 || newer.Items[0].Body != "Pickup after 3pm?" {
		t.Fatalf("poll after first message = %+v", newer.Items)
	}

	total, _ := f.svc.UnreadCount(ctx, f.brand)
	if total != 2 {
		t.Fatalf("unread total = %d, want 2", total)
	}
	read, err := f.svc.MarkRead(ctx, f.brand, conv.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if read.UnreadCount != 0 {
		t.Fatalf("unread after read = %d, want 0", read.UnreadCount)
	}

	if len(f.bus.events) != 2 {
		t.Fatalf("expected 2 MessageSent events, got %d", len(f.bus.events))
	}
	sent := f.bus.events[0].(events.MessageSent)
	if sent.RecipientID != f.brand.UserID() {
		t.Fatalf("recipient = %s, want brand", sent.RecipientID)
	}
}

func TestSendValidatesBody(t *testing.T) {
	f := newFixture()
	conv := f.start(t)

	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"markup only", "<b></b>", false},
		{"too long", strings.Repeat("a", 2001), false},
		{"limit", strings.Repeat("a", 2000), true},
		{"stripped", "<script>x</script>hello", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := f.svc.Send(context.Background(), f.brand, conv.ID, SendMessageRequest{Body: tc.body})
			if (err == nil) != tc.ok {
				t.Fatalf("err = %v, ok %v", err, tc.ok)
			}
			if err == nil && strings.Contains(msg.Body, "<") {
				t.Fatalf("markup survived: %q", msg.Body)
			}
		})
	}
}

func TestOutsidersSeeNotFound(t *testing.T) {
	f := newFixture()
	conv := f.start(t)
	outsider := httpkit.NewIdentity(uuid.New(), httpkit.RoleBrand)
	ctx := context.Background()

	if _, err := f.svc.Get(ctx, outsider, conv.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("get: expected not found, got %v", err)
	}
	if _, err := f.svc.Send(ctx, outsider, conv.ID, SendMessageRequest{Body: "hello"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("send: expected not found, got %v", err)
	}
	if _, err := f.svc.Messages(ctx, f.brand, conv.ID, ListMessagesRequest{After: "yesterday"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("bad after: expected validation, got %v", err)
	}
}

func TestHandlerUnreadCount(t *testing.T) {
	f := newFixture()
	conv := f.start(t)
	if _, err := f.svc.Send(context.Background(), f.collector, conv.ID, SendMessageRequest{Body: "ping"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	h := NewHandler(f.svc, validator.New())
	engine := gin.New()
	engine.GET("/unread-count", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, f.brand.UserID())
		c.Set(httpkit.ContextRoleKey, httpkit.RoleBrand)
	}, h.UnreadCount)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unread-count", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Success             bool `json:"success"`
		UnreadCount         int  `json:"unreadCount"`
		PollIntervalSeconds int  `json:"pollIntervalSeconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.UnreadCount != 1 || body.PollIntervalSeconds != 10 {
		t.Fatalf("unexpected body %+v", body)
	}
}
