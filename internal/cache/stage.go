package cache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/adapters"
)

// Scope controls which requests may share cached responses.
type Scope string

const (
	// ScopeGlobal shares entries across all callers.
	ScopeGlobal Scope = "global"

	// ScopeUser partitions entries by user id. Requests without a user id
	// fall back to a private partition keyed by the empty id.
	ScopeUser Scope = "user"
)

// Hit describes a successful cache lookup.
type Hit struct {
	Body       []byte
	StatusCode int
	Exact      bool
	Similarity float64 // 1.0 for exact hits
	Age        time.Duration
}

// Stage is the semantic cache lookup/store step.
type Stage struct {
	store     *MemoryStore
	scope     Scope
	threshold float64
	failOpen  bool
}

// NewStage creates a cache stage backed by store.
func NewStage(store *MemoryStore, scope Scope, threshold float64, failOpen bool) *Stage {
	return &Stage{store: store, scope: scope, threshold: threshold, failOpen: failOpen}
}

// FailOpen reports whether cache failures bypass the cache.
func (s *Stage) FailOpen() bool { return s.failOpen }

// Lookup checks for a cached response. exactOnly suppresses the similarity
// scan (set when the caller disables semantic matching). Returns nil on miss.
func (s *Stage) Lookup(promptText, model string, provider adapters.Provider, userID string, exactOnly bool) *Hit {
	scope := s.scopeKey(userID)
	fp := Fingerprint(promptText, model, provider)

	if entry := s.store.Get(scope, fp); entry != nil {
		return &Hit{
			Body:       entry.Body,
			StatusCode: entry.StatusCode,
			Exact:      true,
			Similarity: 1.0,
			Age:        time.Since(entry.StoredAt),
		}
	}

	if exactOnly {
		return nil
	}

	entry, score := s.store.FindSimilar(scope, promptText, model, provider, s.threshold)
	if entry == nil {
		return nil
	}
	log.Debug().
		Float64("similarity", score).
		Str("model", model).
		Msg("cache: similarity hit")
	return &Hit{
		Body:       entry.Body,
		StatusCode: entry.StatusCode,
		Similarity: score,
		Age:        time.Since(entry.StoredAt),
	}
}

// Store records a successful provider response asynchronously so the caller's
// response path never waits on the cache.
func (s *Stage) Store(promptText, model string, provider adapters.Provider, userID string, statusCode int, body []byte) {
	// Only cache successful responses.
	if statusCode < 200 || statusCode >= 300 {
		return
	}

	scope := s.scopeKey(userID)
	entry := &Entry{
		Fingerprint: Fingerprint(promptText, model, provider),
		PromptText:  promptText,
		Model:       model,
		Provider:    provider,
		Body:        body,
		StatusCode:  statusCode,
	}
	go s.store.Put(scope, entry)
}

func (s *Stage) scopeKey(userID string) string {
	if s.scope == ScopeUser {
		return fmt.Sprintf("user:%s", userID)
	}
	return string(ScopeGlobal)
}
