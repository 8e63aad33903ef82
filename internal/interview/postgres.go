package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresStore persists the conversation log in PostgreSQL. The database
// itself is the final arbiter for both uniqueness constraints: the
// per-interview sequence index and the assistant-scoped content index.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initConversationSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initConversationSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id TEXT PRIMARY KEY,
			interview_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_conversation_messages_seq
			ON conversation_messages (interview_id, sequence_number);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_conversation_messages_assistant_content
			ON conversation_messages (interview_id, content) WHERE role = 'assistant';`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init conversation schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) PersistUserMessage(ctx context.Context, interviewID, content string) (*Message, error) {
	return s.persist(ctx, interviewID, RoleUser, content)
}

func (s *PostgresStore) PersistAssistantMessage(ctx context.Context, interviewID, content string) (*Message, error) {
	return s.persist(ctx, interviewID, RoleAssistant, content)
}

func (s *PostgresStore) persist(ctx context.Context, interviewID, role, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	// Fast-path idempotence: an identical resend of the latest turn returns
	// the stored row unchanged.
	latest, err := s.latestMessage(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Role == role && strings.TrimSpace(latest.Content) == content {
		return latest, nil
	}

	// Assistant turns dedup against the whole interview, not just the latest
	// row: two racing generation attempts may land out of order.
	if role == RoleAssistant {
		existing, err := s.findAssistantByContent(ctx, interviewID, content)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	op := func(ctx context.Context) (*Message, error) {
		return s.insertNext(ctx, interviewID, role, content)
	}
	resolve := func(ctx context.Context) (*Message, error) {
		if role == RoleAssistant {
			if existing, err := s.findAssistantByContent(ctx, interviewID, content); err == nil && existing != nil {
				return existing, nil
			}
		}
		return s.latestMessage(ctx, interviewID)
	}
	return persistWithRetry(ctx, op, isUniqueViolation, resolve)
}

// insertNext computes the next sequence number and inserts in one
// transaction. The read is not serialized against concurrent writers; a lost
// race surfaces as a uniqueness violation handled by the caller.
func (s *PostgresStore) insertNext(ctx context.Context, interviewID, role, content string) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM conversation_messages WHERE interview_id = $1`,
		interviewID,
	).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}

	msg := &Message{
		ID:             uuid.NewString(),
		InterviewID:    interviewID,
		Role:           role,
		Content:        content,
		SequenceNumber: next,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO conversation_messages (id, interview_id, role, content, sequence_number, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.InterviewID, msg.Role, msg.Content, msg.SequenceNumber, msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *PostgresStore) latestMessage(ctx context.Context, interviewID string) (*Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, interview_id, role, content, sequence_number, created_at
		 FROM conversation_messages WHERE interview_id = $1
		 ORDER BY sequence_number DESC LIMIT 1`,
		interviewID,
	)
	return scanMessage(row)
}

func (s *PostgresStore) findAssistantByContent(ctx context.Context, interviewID, content string) (*Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, interview_id, role, content, sequence_number, created_at
		 FROM conversation_messages
		 WHERE interview_id = $1 AND role = $2 AND content = $3
		 LIMIT 1`,
		interviewID, RoleAssistant, content,
	)
	return scanMessage(row)
}

func (s *PostgresStore) ListMessages(ctx context.Context, interviewID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, interview_id, role, content, sequence_number, created_at
		 FROM conversation_messages WHERE interview_id = $1
		 ORDER BY sequence_number ASC`,
		interviewID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.InterviewID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool so read-only collaborators (the interview
// directory) can share one connection pool.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.InterviewID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &m, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
