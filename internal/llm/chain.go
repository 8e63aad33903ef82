package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intervyn/intervyn/internal/observability"
	"github.com/intervyn/intervyn/internal/reliability"
)

// Chain tries an ordered list of providers, falling through on provider
// failure. A preferred-provider hint reorders the chain without changing its
// membership. Every provider call carries the chain's timeout.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewChain(timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics, providers ...Provider) *Chain {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{providers: providers, timeout: timeout, logger: logger, metrics: metrics}
}

// Providers returns the chain's current default ordering.
func (c *Chain) Providers() []Provider {
	out := make([]Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

// Generate returns the first non-empty completion in chain order. Caller
// cancellation propagates immediately; provider failures fall through to the
// next tier with a short capped backoff.
func (c *Chain) Generate(ctx context.Context, req Request, preferred string) (Response, error) {
	ordered := c.ordered(preferred)
	if len(ordered) == 0 {
		return Response{}, fmt.Errorf("llm chain has no providers")
	}

	var failures []string
	for i, provider := range ordered {
		if i > 0 {
			if err := sleepCtx(ctx, reliability.Backoff(i-1, 100*time.Millisecond, time.Second)); err != nil {
				return Response{}, err
			}
		}

		resp, err := c.callOne(ctx, provider, req)
		if err == nil {
			return resp, nil
		}
		if !reliability.IsProviderFailure(err) {
			return Response{}, err
		}
		c.logger.Warn("llm provider failed",
			zap.String("provider", provider.Name()),
			zap.Error(err))
		c.countError(provider.Name(), "generate")
		failures = append(failures, fmt.Sprintf("%s: %v", provider.Name(), err))
	}
	return Response{}, fmt.Errorf("all llm providers failed: %s", strings.Join(failures, "; "))
}

// GenerateStream streams deltas from the first provider that can serve the
// request. Providers without streaming support emit their full completion as
// a single delta. Once any delta has reached the handler the chain stops
// failing over: retrying another tier would duplicate already-delivered text,
// so the partial result and the error are returned to the caller instead.
func (c *Chain) GenerateStream(ctx context.Context, req Request, preferred string, onDelta DeltaHandler) (Response, error) {
	ordered := c.ordered(preferred)
	if len(ordered) == 0 {
		return Response{}, fmt.Errorf("llm chain has no providers")
	}

	var failures []string
	for _, provider := range ordered {
		delivered := false
		guard := func(delta string) error {
			if delta == "" {
				return nil
			}
			delivered = true
			if onDelta == nil {
				return nil
			}
			return onDelta(delta)
		}

		resp, err := c.streamOne(ctx, provider, req, guard)
		if err == nil {
			return resp, nil
		}
		if delivered || !reliability.IsProviderFailure(err) {
			return resp, err
		}
		c.logger.Warn("llm provider stream failed",
			zap.String("provider", provider.Name()),
			zap.Error(err))
		c.countError(provider.Name(), "stream")
		failures = append(failures, fmt.Sprintf("%s: %v", provider.Name(), err))
	}
	return Response{}, fmt.Errorf("all llm providers failed: %s", strings.Join(failures, "; "))
}

func (c *Chain) callOne(ctx context.Context, provider Provider, req Request) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := provider.Generate(callCtx, req)
	if err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Response{}, fmt.Errorf("empty completion")
	}
	return resp, nil
}

func (c *Chain) streamOne(ctx context.Context, provider Provider, req Request, onDelta DeltaHandler) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if sp, ok := provider.(StreamingProvider); ok {
		return sp.GenerateStream(callCtx, req, onDelta)
	}

	resp, err := provider.Generate(callCtx, req)
	if err != nil {
		return Response{}, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Response{}, fmt.Errorf("empty completion")
	}
	if err := onDelta(resp.Content); err != nil {
		return resp, err
	}
	return resp, nil
}

func (c *Chain) countError(provider, code string) {
	if c.metrics != nil {
		c.metrics.ProviderErrors.WithLabelValues(provider, code).Inc()
	}
}

func (c *Chain) ordered(preferred string) []Provider {
	ordered := make([]Provider, 0, len(c.providers))
	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		for _, p := range c.providers {
			if strings.EqualFold(p.Name(), preferred) {
				ordered = append(ordered, p)
			}
		}
	}
	for _, p := range c.providers {
		if len(ordered) > 0 && strings.EqualFold(p.Name(), preferred) {
			continue
		}
		ordered = append(ordered, p)
	}
	return ordered
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
