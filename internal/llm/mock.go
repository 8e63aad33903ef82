package llm

import (
	"context"
	"strings"
)

// MockProvider returns deterministic local replies when no real provider is
// configured. Useful for development and tests.
type MockProvider struct {
	Reply string
}

func NewMockProvider(reply string) *MockProvider {
	return &MockProvider{Reply: reply}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Generate(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	reply := strings.TrimSpace(p.Reply)
	if reply == "" {
		reply = "Biraz daha detay paylaşabilir misiniz?"
	}
	return Response{Content: reply, Provider: p.Name()}, nil
}
