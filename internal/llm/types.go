package llm

import "context"

// Message roles mirror the wire roles of the chat providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prompt entry sent to a provider.
type Message struct {
	Role    string
	Content string
}

// Request is a provider-agnostic generation request.
type Request struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
}

// Response is the final generated text with its originating provider.
type Response struct {
	Content  string
	Provider string
}

// DeltaHandler receives streamed text fragments as they arrive.
type DeltaHandler func(delta string) error

// Provider generates a full completion in one call. Implementations may fail;
// callers are expected to wrap providers in a fallback chain.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// StreamingProvider is implemented by providers that can push token deltas.
type StreamingProvider interface {
	Provider
	GenerateStream(ctx context.Context, req Request, onDelta DeltaHandler) (Response, error)
}
