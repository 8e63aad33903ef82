package interview

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore implements the conversation log contract without a database,
// for local/dev use and tests. Same idempotence and dedup semantics as the
// Postgres store; a single mutex stands in for the uniqueness constraints.
type InMemoryStore struct {
	mu       sync.Mutex
	messages map[string][]Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{messages: make(map[string][]Message)}
}

func (s *InMemoryStore) PersistUserMessage(_ context.Context, interviewID, content string) (*Message, error) {
	return s.persist(interviewID, RoleUser, content)
}

func (s *InMemoryStore) PersistAssistantMessage(_ context.Context, interviewID, content string) (*Message, error) {
	return s.persist(interviewID, RoleAssistant, content)
}

func (s *InMemoryStore) persist(interviewID, role, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.messages[interviewID]
	if n := len(log); n > 0 {
		last := log[n-1]
		if last.Role == role && strings.TrimSpace(last.Content) == content {
			return &last, nil
		}
	}
	if role == RoleAssistant {
		for i := range log {
			if log[i].Role == RoleAssistant && log[i].Content == content {
				m := log[i]
				return &m, nil
			}
		}
	}

	next := 0
	for i := range log {
		if log[i].SequenceNumber > next {
			next = log[i].SequenceNumber
		}
	}
	msg := Message{
		ID:             uuid.NewString(),
		InterviewID:    interviewID,
		Role:           role,
		Content:        content,
		SequenceNumber: next + 1,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages[interviewID] = append(log, msg)
	return &msg, nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, interviewID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.messages[interviewID]
	out := make([]Message, len(log))
	copy(out, log)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
