package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads interviews and candidate invite tokens owned by the
// outer platform. Read-only: schema and writes belong to the platform's own
// migrations.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) GetInterview(ctx context.Context, id string) (*Interview, error) {
	var (
		iv        Interview
		dialogRaw []byte
	)
	err := d.pool.QueryRow(ctx,
		`SELECT id, job_id, candidate_id, language, max_questions, dialog_config
		 FROM interviews WHERE id = $1`,
		id,
	).Scan(&iv.ID, &iv.JobID, &iv.CandidateID, &iv.Language, &iv.MaxQuestions, &dialogRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get interview: %w", err)
	}
	if len(dialogRaw) > 0 {
		if err := json.Unmarshal(dialogRaw, &iv.Dialog); err != nil {
			return nil, fmt.Errorf("decode dialog config: %w", err)
		}
	}
	if iv.Dialog.MaxQuestions == 0 {
		iv.Dialog.MaxQuestions = iv.MaxQuestions
	}
	return &iv, nil
}

func (d *PostgresDirectory) ValidateCandidateToken(ctx context.Context, interviewID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenInvalid
	}

	var expiresAt time.Time
	err := d.pool.QueryRow(ctx,
		`SELECT expires_at FROM candidate_tokens WHERE interview_id = $1 AND token = $2`,
		interviewID, token,
	).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("validate candidate token: %w", err)
	}
	if time.Now().After(expiresAt) {
		return ErrTokenExpired
	}
	return nil
}

// InMemoryDirectory serves interviews from a local map, for dev mode and
// tests.
type InMemoryDirectory struct {
	mu         sync.RWMutex
	interviews map[string]*Interview
	tokens     map[string]CandidateToken
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		interviews: make(map[string]*Interview),
		tokens:     make(map[string]CandidateToken),
	}
}

func (d *InMemoryDirectory) Add(iv Interview, token CandidateToken) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interviews[iv.ID] = &iv
	if token.Token != "" {
		d.tokens[iv.ID] = token
	}
}

func (d *InMemoryDirectory) GetInterview(_ context.Context, id string) (*Interview, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	iv, ok := d.interviews[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *iv
	return &copied, nil
}

func (d *InMemoryDirectory) ValidateCandidateToken(_ context.Context, interviewID, token string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	stored, ok := d.tokens[interviewID]
	if !ok || strings.TrimSpace(token) == "" || stored.Token != token {
		return ErrTokenInvalid
	}
	if !stored.ExpiresAt.IsZero() && time.Now().After(stored.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}

var _ Directory = (*PostgresDirectory)(nil)
var _ Directory = (*InMemoryDirectory)(nil)
