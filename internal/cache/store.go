package cache

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/adapters"
)

// Entry is a cached provider response.
type Entry struct {
	Fingerprint string
	PromptText  string
	Model       string
	Provider    adapters.Provider
	Body        []byte
	StatusCode  int
	StoredAt    time.Time
	ExpiresAt   time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// MemoryStore keeps cache entries in process memory, partitioned by scope key.
// Lookups try the exact fingerprint first, then scan the scope partition for a
// token-overlap match above the similarity threshold.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]map[string]*Entry // scope -> fingerprint -> entry

	ttl      time.Duration
	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryStore creates a store whose entries live for ttl. A background
// janitor evicts expired entries.
func NewMemoryStore(ttl time.Duration, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		scopes: make(map[string]map[string]*Entry),
		ttl:    ttl,
		stop:   make(chan struct{}),
	}
	go s.janitor(cleanupInterval)
	return s
}

// Stop terminates the janitor goroutine.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Get returns the entry for the exact fingerprint in the given scope, or nil.
func (s *MemoryStore) Get(scope, fingerprint string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partition, ok := s.scopes[scope]
	if !ok {
		return nil
	}
	entry, ok := partition[fingerprint]
	if !ok || entry.expired(time.Now()) {
		return nil
	}
	return entry
}

// FindSimilar scans the scope partition for the entry whose prompt has the
// highest token overlap with promptText, requiring the same model and provider
// and a score of at least threshold. Returns the entry and its score, or nil.
func (s *MemoryStore) FindSimilar(scope, promptText, model string, provider adapters.Provider, threshold float64) (*Entry, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partition, ok := s.scopes[scope]
	if !ok {
		return nil, 0
	}

	query := tokenSet(promptText)
	now := time.Now()

	var best *Entry
	bestScore := 0.0
	for _, entry := range partition {
		if entry.expired(now) || entry.Model != model || entry.Provider != provider {
			continue
		}
		score := jaccard(query, tokenSet(entry.PromptText))
		if score >= threshold && score > bestScore {
			best = entry
			bestScore = score
		}
	}
	return best, bestScore
}

// Put stores an entry under its fingerprint in the given scope.
func (s *MemoryStore) Put(scope string, entry *Entry) {
	now := time.Now()
	entry.StoredAt = now
	entry.ExpiresAt = now.Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	partition, ok := s.scopes[scope]
	if !ok {
		partition = make(map[string]*Entry)
		s.scopes[scope] = partition
	}
	partition[entry.Fingerprint] = entry
}

// Len reports the number of live entries across all scopes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	now := time.Now()
	for _, partition := range s.scopes {
		for _, entry := range partition {
			if !entry.expired(now) {
				n++
			}
		}
	}
	return n
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	evicted := 0
	for scope, partition := range s.scopes {
		for fp, entry := range partition {
			if entry.expired(now) {
				delete(partition, fp)
				evicted++
			}
		}
		if len(partition) == 0 {
			delete(s.scopes, scope)
		}
	}
	if evicted > 0 {
		log.Debug().Int("evicted", evicted).Msg("cache: expired entries removed")
	}
}
