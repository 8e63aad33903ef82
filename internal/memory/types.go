package memory

import "context"

const (
	// LastTurnsCapacity bounds the per-interview rolling turn buffer.
	LastTurnsCapacity = 40

	summaryMaxLen = 4000
	factMaxLen    = 1000
)

// TurnEntry is one (role, text) pair in the rolling turn buffer.
type TurnEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Snapshot is a read-only view of one interview's session memory. It is
// advisory generation context, never authoritative transcript data, and is
// always re-derivable from the persisted message log.
type Snapshot struct {
	RollingSummary string            `json:"rolling_summary"`
	Facts          map[string]string `json:"facts"`
	LastTurns      []TurnEntry       `json:"last_turns"`
}

// Mirror is an optional shared cross-process side-store for session memory.
type Mirror interface {
	Save(ctx context.Context, interviewID string, snap Snapshot) error
	Load(ctx context.Context, interviewID string) (Snapshot, bool, error)
}

// MirrorPolicy decides how mirror failures are handled.
type MirrorPolicy int

const (
	// MirrorBestEffort swallows mirror failures; only the in-process copy is
	// guaranteed for the lifetime of the process. Memory is an optimization,
	// not a correctness requirement.
	MirrorBestEffort MirrorPolicy = iota
	// MirrorRequired propagates mirror failures to callers. Used in tests.
	MirrorRequired
)
