// Package cache implements the semantic response cache: exact fingerprint
// lookup plus a token-overlap similarity fallback, scoped globally or per user.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/aegisgw/admission-gateway/internal/adapters"
)

// Fingerprint derives the exact-match cache key from the normalized prompt
// plus the model and provider. Two requests with the same fingerprint are
// interchangeable for caching purposes.
func Fingerprint(promptText, model string, provider adapters.Provider) string {
	h := sha256.New()
	h.Write([]byte(normalize(promptText)))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(provider))
	return hex.EncodeToString(h.Sum(nil))
}

// normalize lowercases and collapses whitespace so trivial formatting
// differences still hit the cache.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenSet splits normalized text into a set of words for similarity scoring.
func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard computes |a ∩ b| / |a ∪ b| over two token sets. Returns 0 for two
// empty sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
