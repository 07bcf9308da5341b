package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConversationDeleted is returned when the thread exists but was
// soft-deleted; the API maps it to 404.
var ErrConversationDeleted = errors.New("conversation deleted")

// ErrConversationNotFound is returned when no conversation row exists.
var ErrConversationNotFound = errors.New("conversation not found")

// Conversation is one persisted chat thread.
type Conversation struct {
	ThreadID      string    `json:"threadId"`
	UserID        string    `json:"-"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	MessagesCount int       `json:"messagesCount"`
}

// StoredMessage is one persisted message row.
type StoredMessage struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationStore persists conversations and their messages.
type ConversationStore struct {
	pool *pgxpool.Pool
}

// NewConversationStore creates a store over the given pool.
func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

// EnsureConversation creates the conversation row if it does not exist
// and rejects soft-deleted threads. The first user message doubles as
// the title, truncated to fit the sidebar.
func (s *ConversationStore) EnsureConversation(ctx context.Context, threadID, userID, firstMessage string) error {
	var isDeleted bool
	err := s.pool.QueryRow(ctx,
		`SELECT is_deleted FROM conversations WHERE thread_id = $1`,
		threadID,
	).Scan(&isDeleted)

	if err == nil {
		if isDeleted {
			return ErrConversationDeleted
		}
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("conversation lookup failed: %w", err)
	}

	title := titleFromMessage(firstMessage)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversations (thread_id, user_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (thread_id) DO NOTHING`,
		threadID, userID, title,
	)
	if err != nil {
		return fmt.Errorf("conversation create failed: %w", err)
	}
	return nil
}

// AppendMessage writes one message row for the thread.
func (s *ConversationStore) AppendMessage(ctx context.Context, threadID, role, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, thread_id, role, content, timestamp)
		 VALUES ($1, $2, $3, $4, now())`,
		uuid.NewString(), threadID, role, content,
	)
	if err != nil {
		return fmt.Errorf("message insert failed: %w", err)
	}
	return nil
}

// CountUserMessages returns the number of user messages in the thread.
func (s *ConversationStore) CountUserMessages(ctx context.Context, threadID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM messages WHERE thread_id = $1 AND role = 'user'`,
		threadID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("message count failed: %w", err)
	}
	return count, nil
}

// Touch bumps the conversation's updated-at so it sorts to the top.
func (s *ConversationStore) Touch(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE thread_id = $1`,
		threadID,
	)
	if err != nil {
		return fmt.Errorf("conversation touch failed: %w", err)
	}
	return nil
}

// ListConversations returns the user's live conversations, newest first,
// optionally filtered by a title substring.
func (s *ConversationStore) ListConversations(ctx context.Context, userID, search string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.thread_id, c.title, c.created_at, c.updated_at,
		        (SELECT count(*) FROM messages m WHERE m.thread_id = c.thread_id)
		 FROM conversations c
		 WHERE c.user_id = $1 AND c.is_deleted = false
		   AND ($2 = '' OR c.title ILIKE '%' || $2 || '%')
		 ORDER BY c.updated_at DESC`,
		userID, search,
	)
	if err != nil {
		return nil, fmt.Errorf("conversation list failed: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ThreadID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.MessagesCount); err != nil {
			return nil, fmt.Errorf("conversation scan failed: %w", err)
		}
		if c.Title == "" {
			c.Title = "Untitled Chat"
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// ListMessages returns the thread's messages in order, failing on
// unknown or soft-deleted threads.
func (s *ConversationStore) ListMessages(ctx context.Context, userID, threadID string) ([]StoredMessage, error) {
	var isDeleted bool
	err := s.pool.QueryRow(ctx,
		`SELECT is_deleted FROM conversations WHERE thread_id = $1 AND user_id = $2`,
		threadID, userID,
	).Scan(&isDeleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation lookup failed: %w", err)
	}
	if isDeleted {
		return nil, ErrConversationDeleted
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, role, content, timestamp
		 FROM messages WHERE thread_id = $1 ORDER BY timestamp ASC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("message list failed: %w", err)
	}
	defer rows.Close()

	var messages []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("message scan failed: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// titleFromMessage derives the conversation title from the first user
// message, truncated on a rune boundary so multi-byte text survives.
func titleFromMessage(message string) string {
	const maxTitleBytes = 50
	if len(message) <= maxTitleBytes {
		return message
	}
	cut := maxTitleBytes
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}

// SoftDeleteConversation marks the conversation deleted without
// touching its message rows.
func (s *ConversationStore) SoftDeleteConversation(ctx context.Context, userID, threadID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET is_deleted = true, deleted_at = now()
		 WHERE thread_id = $1 AND user_id = $2`,
		threadID, userID,
	)
	if err != nil {
		return fmt.Errorf("conversation delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}
