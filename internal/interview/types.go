package interview

import (
	"context"
	"errors"
	"time"

	"github.com/intervyn/intervyn/internal/dialog"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

var (
	ErrNotFound     = errors.New("interview not found")
	ErrTokenInvalid = errors.New("candidate token invalid")
	ErrTokenExpired = errors.New("candidate token expired")
)

// Message is one turn in an interview's transcript. Messages are append-only:
// never updated in place, never deleted by this layer.
type Message struct {
	ID             string    `json:"id"`
	InterviewID    string    `json:"interview_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SequenceNumber int       `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the durable, strictly ordered conversation log. It is the only
// place sequence numbers are assigned and the only authoritative
// deduplication point.
type Store interface {
	// PersistUserMessage appends a user turn. Empty (post-trim) content is a
	// no-op returning (nil, nil). A resubmission identical to the latest
	// message returns the existing row.
	PersistUserMessage(ctx context.Context, interviewID, content string) (*Message, error)
	// PersistAssistantMessage appends an assistant turn with the same
	// contract, plus whole-interview content dedup across assistant rows.
	PersistAssistantMessage(ctx context.Context, interviewID, content string) (*Message, error)
	// ListMessages returns the full log in sequence order.
	ListMessages(ctx context.Context, interviewID string) ([]Message, error)
	Close() error
}

// Interview is the read-only projection of an interview this core needs.
type Interview struct {
	ID           string
	JobID        string
	CandidateID  string
	Language     string
	MaxQuestions int
	Dialog       dialog.Config
}

// CandidateToken is a tokenized invite bound to one interview.
type CandidateToken struct {
	Token     string
	ExpiresAt time.Time
}

// Directory is the external interview/candidate lookup collaborator. "Not
// found" is a validation failure for callers, never a crash.
type Directory interface {
	GetInterview(ctx context.Context, id string) (*Interview, error)
	// ValidateCandidateToken returns ErrTokenInvalid or ErrTokenExpired when
	// the supplied token does not grant access to the interview.
	ValidateCandidateToken(ctx context.Context, interviewID, token string) error
}
