// Package conversation persists conversations and messages and derives
// the per-conversation sliding-window rate limit.
//
// The gateway fails soft everywhere: the rate check fails open, history
// loads degrade to empty, and message saves are best-effort. Only
// conversation creation surfaces its error, and even that is advisory
// for the caller; the messages table does not require the parent row to
// exist before a turn is processed.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the Store uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config tunes the sliding-window rate limit.
type Config struct {
	RateLimitMessages int           // max messages per window, all roles
	RateLimitWindow   time.Duration // window duration
}

// Store is the conversation/rate-limit gateway. Safe for concurrent use.
type Store struct {
	db     Querier
	cfg    Config
	logger *slog.Logger
}

// New creates a Store.
func New(db Querier, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, cfg: cfg, logger: logger}
}

// Limit returns the configured maximum messages per window.
func (s *Store) Limit() int { return s.cfg.RateLimitMessages }

// Window returns the configured window duration.
func (s *Store) Window() time.Duration { return s.cfg.RateLimitWindow }

// CheckRateLimit evaluates the sliding window over the conversation's
// recent message timestamps. All roles count: a conversation with the
// configured maximum of messages inside the window is blocked no matter
// who wrote them. On any failure it fails open: the request is allowed
// with the full quota reported remaining.
func (s *Store) CheckRateLimit(ctx context.Context, conversationID string) RateLimitStatus {
	windowStart := time.Now().Add(-s.cfg.RateLimitWindow)

	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1
		  AND created_at > $2`,
		conversationID, windowStart).Scan(&count)
	if err != nil {
		s.logger.Error("rate limit check failed, failing open",
			"conversation_id", conversationID,
			"error", err,
		)
		return RateLimitStatus{Allowed: true, Remaining: s.cfg.RateLimitMessages}
	}

	remaining := s.cfg.RateLimitMessages - count
	if remaining < 0 {
		remaining = 0
	}
	return RateLimitStatus{
		Allowed:   count < s.cfg.RateLimitMessages,
		Remaining: remaining,
	}
}

// EnsureConversation creates the conversation if it does not exist.
// Idempotent: the primary key on conversations.id is the source of
// truth, and ON CONFLICT DO NOTHING makes concurrent first messages for
// the same new conversation both succeed with exactly one row visible.
func (s *Store) EnsureConversation(ctx context.Context, conversationID, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversations (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`,
		conversationID, userID)
	if err != nil {
		return fmt.Errorf("ensuring conversation %q: %w", conversationID, err)
	}
	return nil
}

// LoadHistory returns the most recent limit messages in chronological
// order (the query returns newest-first; this reverses). Returns an
// empty slice on any failure; answering works without history.
func (s *Store) LoadHistory(ctx context.Context, conversationID string, limit int) []Message {
	rows, err := s.db.Query(ctx, `
		SELECT role, content, COALESCE(agent, ''), created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		conversationID, limit)
	if err != nil {
		s.logger.Error("loading history failed, continuing without",
			"conversation_id", conversationID,
			"error", err,
		)
		return nil
	}
	defer rows.Close()

	var newest []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.Agent, &m.CreatedAt); err != nil {
			s.logger.Error("scanning history row failed, continuing without",
				"conversation_id", conversationID,
				"error", err,
			)
			return nil
		}
		newest = append(newest, m)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("reading history rows failed, continuing without",
			"conversation_id", conversationID,
			"error", err,
		)
		return nil
	}

	// Reverse newest-first to chronological.
	history := make([]Message, len(newest))
	for i, m := range newest {
		history[len(newest)-1-i] = m
	}

	s.logger.Debug("history loaded",
		"conversation_id", conversationID,
		"messages", len(history),
	)
	return history
}

// SaveMessage appends one message. Persistence is best-effort relative
// to the response already given to the caller; failures are for the
// caller to log, not to surface to the user.
func (s *Store) SaveMessage(ctx context.Context, conversationID, role, content, agent string) error {
	var agentVal any
	if agent != "" {
		agentVal = agent
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, agent)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), conversationID, role, content, agentVal)
	if err != nil {
		return fmt.Errorf("saving %s message to conversation %q: %w", role, conversationID, err)
	}
	return nil
}

// CountMessages returns the number of persisted messages in a
// conversation. Used by tests and ingestion tooling.
func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`,
		conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}
