// Package gateway is the HTTP surface: routing, per-request header parsing,
// rate limiting, and response writing around the admission pipeline.
package gateway

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegisgw/admission-gateway/internal/adapters"
	"github.com/aegisgw/admission-gateway/internal/analytics"
	"github.com/aegisgw/admission-gateway/internal/config"
	"github.com/aegisgw/admission-gateway/internal/moderation"
	"github.com/aegisgw/admission-gateway/internal/pipeline"
	"github.com/aegisgw/admission-gateway/internal/proxy"
	"github.com/aegisgw/admission-gateway/internal/utils"
)

// Gateway wires the HTTP mux to the pipeline.
type Gateway struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	adapters *adapters.Registry
	stats    *analytics.Stats
	limiter  *ipLimiter

	healthCheck func(context.Context) error

	defaultRetry      proxy.RetryConfig
	defaultModeration moderation.Config
}

// SetHealthCheck registers a dependency probe consulted by /health.
func (g *Gateway) SetHealthCheck(fn func(context.Context) error) { g.healthCheck = fn }

// New creates a gateway.
func New(cfg *config.Config, p *pipeline.Pipeline, reg *adapters.Registry, stats *analytics.Stats) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		pipeline: p,
		adapters: reg,
		stats:    stats,
		defaultRetry: proxy.RetryConfig{
			MaxRetries: cfg.Retry.MaxRetries,
			Factor:     cfg.Retry.Factor,
			MinTimeout: cfg.Retry.MinTimeout,
			MaxTimeout: cfg.Retry.MaxTimeout,
		},
		defaultModeration: moderation.Config{
			Enabled:   cfg.Moderation.Enabled,
			Threshold: cfg.Moderation.Threshold,
			Action:    moderation.ParseAction(cfg.Moderation.Action),
		},
	}
	if g.limiterEnabled() {
		g.limiter = newIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		go g.limiterJanitor()
	}
	return g
}

func (g *Gateway) limiterEnabled() bool { return g.cfg.RateLimit.Enabled }

func (g *Gateway) limiterJanitor() {
	ticker := time.NewTicker(config.DefaultCleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		g.limiter.evictIdle(10 * time.Minute)
	}
}

// Routes returns the HTTP handler tree.
func (g *Gateway) Routes(promReg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/stats", g.handleStats)
	if promReg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", g.handleProxy)

	var handler http.Handler = mux
	if g.limiter != nil {
		handler = rateLimitMiddleware(g.limiter, handler)
	}
	return handler
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if g.healthCheck != nil {
		if err := g.healthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"detail": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats serves in-process counters. Loopback only: operational detail,
// not caller-facing.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !isLoopback(r.RemoteAddr) {
		writeError(w, http.StatusForbidden, "forbidden", "stats endpoint is local-only", nil)
		return
	}
	writeJSON(w, http.StatusOK, g.stats.Snapshot())
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := utils.MarshalNoEscape(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, errType, message string, details map[string]any) {
	payload := map[string]any{"type": errType, "message": message}
	for k, v := range details {
		payload[k] = v
	}
	writeJSON(w, status, map[string]any{"error": payload})
}
