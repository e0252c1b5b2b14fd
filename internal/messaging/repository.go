package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ekomarket_backend/platform/apperr"
	"ekomarket_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const conversationNotFoundMsg = "conversation not found"

const conversationColumns = `
	id, collector_id, brand_id, pickup_id, order_id, last_message, last_message_at,
	unread_collector, unread_brand, created_at, updated_at`

// recountUnread rebuilds both counters from the messages table.
const recountUnread = `
	unread_collector = (SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND read_at_collector IS NULL),
	unread_brand = (SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND read_at_brand IS NULL),
	updated_at = now()`

const (
	insertConversationQuery = `
		INSERT INTO conversations (id, collector_id, brand_id, pickup_id, order_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING` + conversationColumns

	selectByKeyQuery = `
		SELECT` + conversationColumns + ` FROM conversations
		WHERE collector_id = $1 AND brand_id = $2
		  AND pickup_id IS NOT DISTINCT FROM $3
		  AND order_id IS NOT DISTINCT FROM $4`

	selectConversationQuery = `SELECT` + conversationColumns + ` FROM conversations WHERE id = $1`

	lockConversationQuery = `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`

	listCollectorConversationsQuery = `
		SELECT` + conversationColumns + ` FROM conversations
		WHERE collector_id = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC
		LIMIT $2 OFFSET $3`

	listBrandConversationsQuery = `
		SELECT` + conversationColumns + ` FROM conversations
		WHERE brand_id = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC
		LIMIT $2 OFFSET $3`

	insertCollectorMessageQuery = `
		INSERT INTO messages (id, conversation_id, sender_id, sender_role, body, read_at_collector)
		VALUES ($1, $2, $3, 'collector', $4, clock_timestamp())
		RETURNING created_at, read_at_collector, read_at_brand`

	insertBrandMessageQuery = `
		INSERT INTO messages (id, conversation_id, sender_id, sender_role, body, read_at_brand)
		VALUES ($1, $2, $3, 'brand', $4, clock_timestamp())
		RETURNING created_at, read_at_collector, read_at_brand`

	updateAfterMessageQuery = `
		UPDATE conversations SET
			last_message = $2,
			last_message_at = $3,` + recountUnread + `
		WHERE id = $1
		RETURNING` + conversationColumns

	markCollectorReadQuery = `UPDATE messages SET read_at_collector = now() WHERE conversation_id = $1 AND read_at_collector IS NULL`
	markBrandReadQuery     = `UPDATE messages SET read_at_brand = now() WHERE conversation_id = $1 AND read_at_brand IS NULL`

	updateCountersQuery = `UPDATE conversations SET` + recountUnread + ` WHERE id = $1 RETURNING` + conversationColumns

	listMessagesQuery = `
		SELECT id, conversation_id, sender_id, sender_role, body, read_at_collector, read_at_brand, created_at
		FROM messages
		WHERE conversation_id = $1 AND created_at > $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3`

	collectorUnreadQuery = `SELECT COALESCE(SUM(unread_collector), 0) FROM conversations WHERE collector_id = $1`
	brandUnreadQuery     = `SELECT COALESCE(SUM(unread_brand), 0) FROM conversations WHERE brand_id = $1`
)

// Repository is the conversation store.
type Repository interface {
	// FindOrCreate returns the existing conversation for key or inserts one.
	FindOrCreate(ctx context.Context, id uuid.UUID, key Key) (Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (Conversation, error)
	List(ctx context.Context, p Participant, limit, offset int) ([]Conversation, error)
	// Append inserts the message read by its sender, updates lastMessage and
	// recounts unread counters in one transaction.
	Append(ctx context.Context, msg Message) (Message, Conversation, error)
	Messages(ctx context.Context, conversationID uuid.UUID, after time.Time, limit int) ([]Message, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, role Role) (Conversation, error)
	UnreadTotal(ctx context.Context, p Participant) (int, error)
}

// Repo is the Postgres conversation store.
type Repo struct {
	pool *pgxpool.Pool
}

var _ Repository = (*Repo)(nil)

// NewRepository creates the conversation repository.
func NewRepository(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// FindOrCreate relies on the unique pair+context index; a lost race falls
// through to the select.
func (r *Repo) FindOrCreate(ctx context.Context, id uuid.UUID, key Key) (Conversation, error) {
	c, err := scanConversation(r.pool.QueryRow(ctx, insertConversationQuery, id, key.CollectorID, key.BrandID, key.PickupID, key.OrderID))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	c, err = scanConversation(r.pool.QueryRow(ctx, selectByKeyQuery, key.CollectorID, key.BrandID, key.PickupID, key.OrderID))
	if err != nil {
		return Conversation{}, fmt.Errorf("find conversation: %w", err)
	}
	return c, nil
}

// GetByID loads a conversation.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Conversation, error) {
	c, err := scanConversation(r.pool.QueryRow(ctx, selectConversationQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, apperr.NotFound(conversationNotFoundMsg)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// List returns the participant's conversations, most recent activity first.
func (r *Repo) List(ctx context.Context, p Participant, limit, offset int) ([]Conversation, error) {
	query := listBrandConversationsQuery
	if p.Role == RoleCollector {
		query = listCollectorConversationsQuery
	}
	rows, err := r.pool.Query(ctx, query, p.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Append writes the message and refreshes the conversation summary.
func (r *Repo) Append(ctx context.Context, msg Message) (Message, Conversation, error) {
	insert := insertBrandMessageQuery
	if msg.SenderRole == RoleCollector {
		insert = insertCollectorMessageQuery
	}

	var conv Conversation
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var id uuid.UUID
		if err := tx.QueryRow(ctx, lockConversationQuery, msg.ConversationID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound(conversationNotFoundMsg)
			}
			return fmt.Errorf("lock conversation: %w", err)
		}
		if err := tx.QueryRow(ctx, insert, msg.ID, msg.ConversationID, msg.SenderID, msg.Body).
			Scan(&msg.CreatedAt, &msg.ReadAtCollector, &msg.ReadAtBrand); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		c, err := scanConversation(tx.QueryRow(ctx, updateAfterMessageQuery, msg.ConversationID, msg.Body, msg.CreatedAt))
		if err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}
		conv = c
		return nil
	})
	if err != nil {
		return Message{}, Conversation{}, err
	}
	return msg, conv, nil
}

// Messages lists messages created after the given time, oldest first.
func (r *Repo) Messages(ctx context.Context, conversationID uuid.UUID, after time.Time, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, listMessagesQuery, conversationID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var (
			m    Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &role, &m.Body, &m.ReadAtCollector, &m.ReadAtBrand, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SenderRole = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkRead marks every message read for role and recounts.
func (r *Repo) MarkRead(ctx context.Context, conversationID uuid.UUID, role Role) (Conversation, error) {
	mark := markBrandReadQuery
	if role == RoleCollector {
		mark = markCollectorReadQuery
	}

	var conv Conversation
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mark, conversationID); err != nil {
			return fmt.Errorf("mark messages read: %w", err)
		}
		c, err := scanConversation(tx.QueryRow(ctx, updateCountersQuery, conversationID))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(conversationNotFoundMsg)
		}
		if err != nil {
			return fmt.Errorf("recount unread: %w", err)
		}
		conv = c
		return nil
	})
	return conv, err
}

// UnreadTotal sums the participant's unread counters.
func (r *Repo) UnreadTotal(ctx context.Context, p Participant) (int, error) {
	query := brandUnreadQuery
	if p.Role == RoleCollector {
		query = collectorUnreadQuery
	}
	var total int
	if err := r.pool.QueryRow(ctx, query, p.ID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return total, nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		c    Conversation
		last *string
	)
	if err := row.Scan(&c.ID, &c.CollectorID, &c.BrandID, &c.PickupID, &c.OrderID, &last, &c.LastMessageAt,
		&c.UnreadCollector, &c.UnreadBrand, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Conversation{}, err
	}
	if last != nil {
		c.LastMessage = *last
	}
	return c, nil
}
