package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"paperchat/internal/models"
)

type ConversationRepo struct {
	db *DB
}

func NewConversationRepo(db *DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) CreateConversation(ctx context.Context, c models.Conversation) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO conversations (conversation_id, collection_id, owner_id, title)
VALUES ($1::uuid, $2::uuid, $3, NULLIF($4,''))`,
		c.ConversationID, c.CollectionID, c.OwnerID, c.Title)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var c models.Conversation
	err := r.db.Pool.QueryRow(ctx, `
SELECT conversation_id::text, collection_id::text, owner_id, COALESCE(title,''), created_at, last_active_at
FROM conversations
WHERE conversation_id=$1::uuid`, conversationID).
		Scan(&c.ConversationID, &c.CollectionID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.LastActiveAt)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) ListConversations(ctx context.Context, collectionID string) ([]models.Conversation, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT conversation_id::text, collection_id::text, owner_id, COALESCE(title,''), created_at, last_active_at
FROM conversations
WHERE collection_id=$1::uuid
ORDER BY last_active_at DESC`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	out := make([]models.Conversation, 0)
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ConversationID, &c.CollectionID, &c.OwnerID, &c.Title, &c.CreatedAt, &c.LastActiveAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ConversationRepo) AppendMessage(ctx context.Context, m models.Message) error {
	var grounding []byte
	if m.Grounding != nil {
		b, err := json.Marshal(m.Grounding)
		if err != nil {
			return fmt.Errorf("marshal grounding: %w", err)
		}
		grounding = b
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx append message: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `
INSERT INTO messages (message_id, conversation_id, role, content, grounding)
VALUES ($1::uuid, $2::uuid, $3, $4, $5)`,
		m.MessageID, m.ConversationID, m.Role, m.Content, grounding); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET last_active_at=NOW() WHERE conversation_id=$1::uuid`, m.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit message tx: %w", err)
	}
	return nil
}

// ListRecentMessages returns the newest messages in chronological
// order, limited to the given window.
func (r *ConversationRepo) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT message_id::text, conversation_id::text, role, content, grounding, created_at
FROM (
    SELECT * FROM messages
    WHERE conversation_id=$1::uuid
    ORDER BY created_at DESC
    LIMIT $2
) recent
ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *ConversationRepo) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT message_id::text, conversation_id::text, role, content, grounding, created_at
FROM messages
WHERE conversation_id=$1::uuid
ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]models.Message, error) {
	out := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		var grounding []byte
		if err := rows.Scan(&m.MessageID, &m.ConversationID, &m.Role, &m.Content, &grounding, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(grounding) > 0 {
			var g models.Grounding
			if err := json.Unmarshal(grounding, &g); err != nil {
				return nil, fmt.Errorf("decode grounding: %w", err)
			}
			m.Grounding = &g
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
