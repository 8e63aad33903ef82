package transcribe

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/intervyn/intervyn/internal/observability"
)

// Provider converts one audio answer to text. An empty transcript with a nil
// error means no speech was detected.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

// Chain tries providers in order and sticks with the one that last worked.
// After a failover the backup stays active until it fails, then earlier
// providers are retried.
type Chain struct {
	providers []Provider
	active    atomic.Int32
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewChain(logger *zap.Logger, metrics *observability.Metrics, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{providers: providers, logger: logger, metrics: metrics}
}

// Transcribe returns the transcript and the name of the provider that
// produced it.
func (c *Chain) Transcribe(ctx context.Context, audio []byte, contentType string) (string, string, error) {
	if len(c.providers) == 0 {
		return "", "", fmt.Errorf("no transcription providers configured")
	}
	if len(audio) == 0 {
		return "", "", nil
	}

	start := int(c.active.Load())
	if start >= len(c.providers) {
		start = 0
	}

	var errs []string
	for i := 0; i < len(c.providers); i++ {
		idx := (start + i) % len(c.providers)
		p := c.providers[idx]

		text, err := p.Transcribe(ctx, audio, contentType)
		if err == nil {
			c.active.Store(int32(idx))
			return strings.TrimSpace(text), p.Name(), nil
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		c.logger.Warn("transcription provider failed",
			zap.String("provider", p.Name()),
			zap.Error(err))
		if c.metrics != nil {
			c.metrics.ProviderErrors.WithLabelValues(p.Name(), "transcribe").Inc()
		}
		errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
	}
	return "", "", fmt.Errorf("all transcription providers failed: %s", strings.Join(errs, "; "))
}
