package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"taskchat/app/core/orchestrator/db"
)

// Conversation groups the messages of one chat session for one owner.
type Conversation struct {
	ID        string
	UserID    string
	CreatedAt int64
	UpdatedAt int64
}

// ChatMessage is one immutable turn of a conversation. ToolCalls holds the
// serialized tool-call records of an assistant turn, empty otherwise.
type ChatMessage struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	ToolCalls      string
	CreatedAt      int64
	Seq            int64
}

const maxContentRunes = 10000

type Store struct {
	db      *db.DB
	counter uint64
}

func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// GetOrCreate returns the owner's conversation with the given id, or a fresh
// one when the id is empty, unknown, or owned by someone else. Another
// owner's conversation is never returned. The returned conversation's
// updated_at is touched.
func (s *Store) GetOrCreate(ctx context.Context, userID string, conversationID string) (Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Conversation{}, fmt.Errorf("user_id is required")
	}
	now := time.Now().Unix()

	if id := strings.TrimSpace(conversationID); id != "" {
		var c Conversation
		err := s.db.Conn().QueryRowContext(ctx,
			`SELECT id, user_id, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?`,
			id, userID,
		).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
		if err == nil {
			if _, err := s.db.Conn().ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, c.ID); err != nil {
				return Conversation{}, err
			}
			c.UpdatedAt = now
			return c, nil
		}
		if err != sql.ErrNoRows {
			return Conversation{}, err
		}
	}

	c := Conversation{
		ID:        s.newID("conv"),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.UserID, c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// Append persists one turn and touches the parent conversation inside a
// single transaction. The user turn is appended before the model is invoked,
// so a crash mid-processing never loses the user's input.
func (s *Store) Append(ctx context.Context, conversationID string, role string, content string, toolCalls string) (ChatMessage, error) {
	if strings.TrimSpace(conversationID) == "" {
		return ChatMessage{}, fmt.Errorf("conversation_id is required")
	}
	if utf8.RuneCountInString(content) > maxContentRunes {
		return ChatMessage{}, fmt.Errorf("message content exceeds %d characters", maxContentRunes)
	}

	now := time.Now().Unix()
	msg := ChatMessage{
		ID:             s.newID("msg"),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ToolCalls:      toolCalls,
		CreatedAt:      now,
	}

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return ChatMessage{}, err
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&maxSeq); err != nil {
		return ChatMessage{}, err
	}
	msg.Seq = maxSeq.Int64 + 1

	var calls interface{}
	if strings.TrimSpace(toolCalls) != "" {
		calls = toolCalls
	}
	insert := `INSERT INTO messages (id, conversation_id, role, content, tool_calls, created_at, seq) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, msg.ID, msg.ConversationID, msg.Role, msg.Content, calls, msg.CreatedAt, msg.Seq); err != nil {
		return ChatMessage{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID); err != nil {
		return ChatMessage{}, err
	}

	if err := tx.Commit(); err != nil {
		return ChatMessage{}, err
	}
	return msg, nil
}

// History returns the conversation's messages in ascending creation order,
// the sequence handed to the model. Ownership is checked via the join so one
// owner can never read another's history.
func (s *Store) History(ctx context.Context, userID string, conversationID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT m.id, m.conversation_id, m.role, m.content, COALESCE(m.tool_calls, ''), m.created_at, m.seq
FROM messages m
JOIN conversations c ON c.id = m.conversation_id
WHERE m.conversation_id = ? AND c.user_id = ?
ORDER BY m.created_at DESC, m.seq DESC
LIMIT ?`
	rows, err := s.db.Conn().QueryContext(ctx, query, conversationID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]ChatMessage, 0, limit)
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ToolCalls, &m.CreatedAt, &m.Seq); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse to chronological order
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *Store) newID(prefix string) string {
	seq := atomic.AddUint64(&s.counter, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq)
}
