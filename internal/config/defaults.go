// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token.
// Used for rough token counting when exact counts aren't available.
const TokenEstimateRatio = 4

// DefaultMaxOutputTokens is assumed for cost estimation when the request
// does not declare max_tokens.
const DefaultMaxOutputTokens = 1024

// =============================================================================
// RETRY AND CIRCUIT BREAKER
// =============================================================================

// DefaultMaxRetries is the number of retries after the initial attempt.
const DefaultMaxRetries = 3

// DefaultRetryFactor is the exponential backoff multiplier.
const DefaultRetryFactor = 2.0

// DefaultRetryMinTimeout is the base delay between attempts.
const DefaultRetryMinTimeout = 1 * time.Second

// DefaultRetryMaxTimeout caps the delay between attempts.
const DefaultRetryMaxTimeout = 10 * time.Second

// DefaultBreakerThreshold is the consecutive-failure count that opens a
// provider circuit.
const DefaultBreakerThreshold = 5

// DefaultBreakerResetTimeout is how long a circuit stays open before a
// half-open probe is admitted.
const DefaultBreakerResetTimeout = 60 * time.Second

// DefaultRequestTimeout bounds the entire outbound call, all retry attempts
// combined.
const DefaultRequestTimeout = 120 * time.Second

// =============================================================================
// CACHE
// =============================================================================

// DefaultCacheTTL is how long cached responses stay valid.
const DefaultCacheTTL = 1 * time.Hour

// DefaultSimilarityThreshold is the minimum semantic similarity for a
// near-match cache hit.
const DefaultSimilarityThreshold = 0.85

// DefaultCleanupInterval is the frequency for background cleanup goroutines.
const DefaultCleanupInterval = 5 * time.Minute

// =============================================================================
// FIREWALL
// =============================================================================

// DefaultSandboxThreshold is the risk score at which requests are tagged for
// extra monitoring.
const DefaultSandboxThreshold = 0.3

// DefaultReviewThreshold is the risk score at which requests are deferred to
// human review.
const DefaultReviewThreshold = 0.7

// DefaultBlockThreshold is the risk score at which requests are rejected.
const DefaultBlockThreshold = 0.9

// DefaultReviewTTL is how long pending review records are retained.
const DefaultReviewTTL = 24 * time.Hour

// =============================================================================
// RATE LIMITING
// =============================================================================

// DefaultRateLimit is requests per second per IP.
const DefaultRateLimit = 100

// MaxRateLimitBuckets prevents memory exhaustion from too many IP buckets.
const MaxRateLimitBuckets = 10000

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultDialTimeout is the TCP dial timeout.
const DefaultDialTimeout = 30 * time.Second

// MaxRequestBodySize is the maximum allowed request body (50MB).
const MaxRequestBodySize = 50 * 1024 * 1024

// MaxResponseSize is the maximum allowed upstream response body (50MB).
const MaxResponseSize = 50 * 1024 * 1024

// MaxErrorBodyLogLen limits error response body in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// DefaultServerWriteTimeout for the HTTP server.
const DefaultServerWriteTimeout = 10 * time.Minute

// =============================================================================
// ANALYTICS
// =============================================================================

// DefaultAnalyticsQueueSize is the bounded event queue between the pipeline
// and the analytics recorder. Events are dropped, never blocked on, when full.
const DefaultAnalyticsQueueSize = 1024
