package proxy

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/adapters"
)

// BreakerState is the lifecycle state of a circuit breaker.
type BreakerState string

const (
	// StateClosed passes requests through while counting failures.
	StateClosed BreakerState = "closed"

	// StateOpen rejects requests until the reset timeout elapses.
	StateOpen BreakerState = "open"

	// StateHalfOpen admits a single probe request.
	StateHalfOpen BreakerState = "half_open"
)

// CircuitOpenError is returned when the breaker rejects a request without
// contacting the provider.
type CircuitOpenError struct {
	Provider   adapters.Provider
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for provider %s, retry after %s", e.Provider, e.RetryAfter.Round(time.Second))
}

// Breaker is a per-provider circuit breaker. Consecutive failures at or above
// the threshold open the circuit; after the reset timeout a single probe is
// admitted, and its outcome closes or re-opens the circuit.
type Breaker struct {
	provider     adapters.Provider
	threshold    int
	resetTimeout time.Duration

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

// NewBreaker creates a closed breaker for provider.
func NewBreaker(provider adapters.Provider, threshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		provider:     provider,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Allow reports whether a request may proceed. When the circuit is open it
// returns a *CircuitOpenError carrying the time until the next probe window.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := time.Since(b.openedAt)
		if elapsed >= b.resetTimeout {
			b.state = StateHalfOpen
			b.probeInFlight = true
			log.Info().Str("provider", string(b.provider)).Msg("circuit half-open, admitting probe")
			return nil
		}
		return &CircuitOpenError{Provider: b.provider, RetryAfter: b.resetTimeout - elapsed}
	case StateHalfOpen:
		if b.probeInFlight {
			return &CircuitOpenError{Provider: b.provider, RetryAfter: b.resetTimeout}
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess resets the failure count and closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		log.Info().Str("provider", string(b.provider)).Msg("circuit closed")
	}
	b.state = StateClosed
	b.failures = 0
	b.probeInFlight = false
}

// RecordFailure counts a failure. In half-open it re-opens immediately; in
// closed it opens once the consecutive-failure threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.open()
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.open()
		}
	}
	b.probeInFlight = false
}

// open transitions to StateOpen. Caller holds b.mu.
func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = time.Now()
	log.Warn().
		Str("provider", string(b.provider)).
		Int("failures", b.failures).
		Dur("reset_timeout", b.resetTimeout).
		Msg("circuit opened")
}

// State returns the current state, accounting for an elapsed reset timeout.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// BreakerRegistry hands out one breaker per provider.
type BreakerRegistry struct {
	mu           sync.Mutex
	breakers     map[adapters.Provider]*Breaker
	threshold    int
	resetTimeout time.Duration
}

// NewBreakerRegistry creates a registry with shared breaker settings.
func NewBreakerRegistry(threshold int, resetTimeout time.Duration) *BreakerRegistry {
	return &BreakerRegistry{
		breakers:     make(map[adapters.Provider]*Breaker),
		threshold:    threshold,
		resetTimeout: resetTimeout,
	}
}

// Get returns the breaker for provider, creating it on first use.
func (r *BreakerRegistry) Get(provider adapters.Provider) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[provider]
	if !ok {
		b = NewBreaker(provider, r.threshold, r.resetTimeout)
		r.breakers[provider] = b
	}
	return b
}
