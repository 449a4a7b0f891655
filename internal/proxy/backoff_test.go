package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryConfig_DelayBounds(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries: 5,
		Factor:     2.0,
		MinTimeout: 100 * time.Millisecond,
		MaxTimeout: 1 * time.Second,
	}

	for attempt := 0; attempt < 10; attempt++ {
		d := cfg.Delay(attempt)
		assert.GreaterOrEqual(t, d, cfg.MinTimeout, "attempt %d", attempt)
		// Up to 25% jitter above the cap.
		assert.LessOrEqual(t, d, cfg.MaxTimeout+cfg.MaxTimeout/4, "attempt %d", attempt)
	}
}

func TestRetryConfig_DelayGrows(t *testing.T) {
	cfg := RetryConfig{
		Factor:     2.0,
		MinTimeout: 100 * time.Millisecond,
		MaxTimeout: 100 * time.Second, // effectively uncapped
	}

	// Jitter adds at most 25%, so base growth of 2x always dominates.
	first := cfg.Delay(0)
	third := cfg.Delay(2)
	assert.Greater(t, third, first)
}

func TestRetryConfig_DelayCapped(t *testing.T) {
	cfg := RetryConfig{
		Factor:     2.0,
		MinTimeout: 100 * time.Millisecond,
		MaxTimeout: 300 * time.Millisecond,
	}

	d := cfg.Delay(10)
	assert.LessOrEqual(t, d, cfg.MaxTimeout+cfg.MaxTimeout/4)
}
