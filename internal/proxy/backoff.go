// Package proxy forwards admitted requests to the upstream provider with
// retries, exponential backoff, and a per-provider circuit breaker.
package proxy

import (
	"math"
	"math/rand"
	"time"

	"github.com/aegisgw/admission-gateway/internal/config"
)

// RetryConfig controls the retry loop for one request. Callers may override
// the defaults per request via headers.
type RetryConfig struct {
	MaxRetries int           // additional attempts after the first
	Factor     float64       // exponential growth factor
	MinTimeout time.Duration // delay before the first retry
	MaxTimeout time.Duration // cap on any single delay
}

// DefaultRetryConfig returns the server-wide retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: config.DefaultMaxRetries,
		Factor:     config.DefaultRetryFactor,
		MinTimeout: config.DefaultRetryMinTimeout,
		MaxTimeout: config.DefaultRetryMaxTimeout,
	}
}

// Delay returns the backoff before retry attempt i (0-based): min*factor^i
// clamped to [min, max], with up to 25% random jitter added to decorrelate
// concurrent retries.
func (c RetryConfig) Delay(attempt int) time.Duration {
	d := float64(c.MinTimeout) * math.Pow(c.Factor, float64(attempt))
	if d > float64(c.MaxTimeout) {
		d = float64(c.MaxTimeout)
	}
	if d < float64(c.MinTimeout) {
		d = float64(c.MinTimeout)
	}
	jitter := d * 0.25 * rand.Float64()
	return time.Duration(d + jitter)
}
