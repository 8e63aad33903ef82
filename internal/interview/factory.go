package interview

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed conversation log when configured,
// otherwise an in-memory one for local/dev use.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
