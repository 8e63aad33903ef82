package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror keeps a TTL-bounded copy of session memory in Redis so any
// instance can serve a snapshot for an interview it has not seen locally.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisMirror{client: client, ttl: ttl}
}

func (m *RedisMirror) Save(ctx context.Context, interviewID string, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal memory snapshot: %w", err)
	}
	if err := m.client.Set(ctx, mirrorKey(interviewID), payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("mirror save: %w", err)
	}
	return nil
}

func (m *RedisMirror) Load(ctx context.Context, interviewID string) (Snapshot, bool, error) {
	payload, err := m.client.Get(ctx, mirrorKey(interviewID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("mirror load: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal memory snapshot: %w", err)
	}
	if snap.Facts == nil {
		snap.Facts = map[string]string{}
	}
	return snap, true, nil
}

func mirrorKey(interviewID string) string {
	return "interview:memory:" + interviewID
}
