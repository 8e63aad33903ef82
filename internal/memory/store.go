package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type sessionState struct {
	rollingSummary string
	facts          map[string]string
	lastTurns      []TurnEntry
}

// Store holds per-interview session memory: a rolling summary, extracted
// facts and a bounded buffer of recent turns. State lives in-process and is
// mirrored to an optional shared side-store for cross-instance reads. The
// mirror and the local copy are only eventually consistent; callers must
// tolerate staleness.
type Store struct {
	mu     sync.RWMutex
	local  map[string]*sessionState
	mirror Mirror
	policy MirrorPolicy
	logger *zap.Logger
}

// NewStore builds a session memory store. mirror may be nil, in which case
// state is process-local only.
func NewStore(mirror Mirror, policy MirrorPolicy, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		local:  make(map[string]*sessionState),
		mirror: mirror,
		policy: policy,
		logger: logger,
	}
}

// RecordTurn appends to the bounded last-turns buffer, dropping the oldest
// entry once capacity is reached.
func (s *Store) RecordTurn(ctx context.Context, interviewID, role, text string) error {
	s.mu.Lock()
	state := s.stateLocked(interviewID)
	state.lastTurns = append(state.lastTurns, TurnEntry{Role: role, Text: text})
	if len(state.lastTurns) > LastTurnsCapacity {
		state.lastTurns = state.lastTurns[len(state.lastTurns)-LastTurnsCapacity:]
	}
	snap := snapshotLocked(state)
	s.mu.Unlock()

	return s.mirrorSave(ctx, interviewID, snap)
}

// UpdateSummary overwrites the rolling summary, last write wins.
func (s *Store) UpdateSummary(ctx context.Context, interviewID, summary string) error {
	s.mu.Lock()
	state := s.stateLocked(interviewID)
	state.rollingSummary = truncate(summary, summaryMaxLen)
	snap := snapshotLocked(state)
	s.mu.Unlock()

	return s.mirrorSave(ctx, interviewID, snap)
}

// UpsertFact sets one fact by key, last write wins per key.
func (s *Store) UpsertFact(ctx context.Context, interviewID, key, value string) error {
	if key == "" {
		return nil
	}
	s.mu.Lock()
	state := s.stateLocked(interviewID)
	state.facts[key] = truncate(value, factMaxLen)
	snap := snapshotLocked(state)
	s.mu.Unlock()

	return s.mirrorSave(ctx, interviewID, snap)
}

// Snapshot returns a read-only view, preferring the shared mirror when it has
// a copy and falling back to process-local state otherwise.
func (s *Store) Snapshot(ctx context.Context, interviewID string) Snapshot {
	if s.mirror != nil {
		snap, ok, err := s.mirror.Load(ctx, interviewID)
		if err != nil {
			s.logger.Debug("memory mirror load failed", zap.String("interview_id", interviewID), zap.Error(err))
		} else if ok {
			return snap
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.local[interviewID]
	if !ok {
		return Snapshot{Facts: map[string]string{}}
	}
	return snapshotLocked(state)
}

func (s *Store) stateLocked(interviewID string) *sessionState {
	state, ok := s.local[interviewID]
	if !ok {
		state = &sessionState{facts: make(map[string]string)}
		s.local[interviewID] = state
	}
	return state
}

func (s *Store) mirrorSave(ctx context.Context, interviewID string, snap Snapshot) error {
	if s.mirror == nil {
		return nil
	}
	err := s.mirror.Save(ctx, interviewID, snap)
	if err == nil {
		return nil
	}
	if s.policy == MirrorRequired {
		return err
	}
	s.logger.Debug("memory mirror save failed", zap.String("interview_id", interviewID), zap.Error(err))
	return nil
}

func snapshotLocked(state *sessionState) Snapshot {
	facts := make(map[string]string, len(state.facts))
	for k, v := range state.facts {
		facts[k] = v
	}
	turns := make([]TurnEntry, len(state.lastTurns))
	copy(turns, state.lastTurns)
	return Snapshot{
		RollingSummary: state.rollingSummary,
		Facts:          facts,
		LastTurns:      turns,
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
