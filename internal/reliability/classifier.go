package reliability

import (
	"context"
	"errors"
	"time"
)

// IsRetryableHTTPStatus classifies provider HTTP status codes worth retrying
// on another provider tier.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsProviderFailure reports whether err looks like a provider availability
// problem (timeout, network error) rather than a caller mistake. Caller
// cancellation is not a provider failure: falling through to another tier
// after the request is gone only wastes work.
func IsProviderFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Backoff computes a deterministic capped exponential backoff duration.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
