package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aegisgw/admission-gateway/internal/config"
)

// ipLimiter hands out one token bucket per client IP. The map is bounded: at
// capacity, unknown IPs share a fallback limiter instead of growing the map
// without limit.
type ipLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucketEntry
	rps      rate.Limit
	burst    int
	fallback *rate.Limiter
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		buckets:  make(map[string]*bucketEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		fallback: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Allow reports whether a request from addr may proceed.
func (l *ipLimiter) Allow(addr string) bool {
	ip := addr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		ip = host
	}

	l.mu.Lock()
	entry, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) >= config.MaxRateLimitBuckets {
			l.mu.Unlock()
			return l.fallback.Allow()
		}
		entry = &bucketEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow()
}

// evictIdle removes buckets not seen within maxIdle.
func (l *ipLimiter) evictIdle(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, entry := range l.buckets {
		if entry.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

func (l *ipLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// rateLimitMiddleware rejects over-limit requests with 429.
func rateLimitMiddleware(limiter *ipLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
