package gateway

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/adapters"
	"github.com/aegisgw/admission-gateway/internal/config"
	"github.com/aegisgw/admission-gateway/internal/moderation"
	"github.com/aegisgw/admission-gateway/internal/pipeline"
	"github.com/aegisgw/admission-gateway/internal/proxy"
)

func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is supported", nil)
		return
	}

	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds the size limit", nil)
		return
	}

	provider, adapter := adapters.IdentifyAndGetAdapter(g.adapters, r.URL.Path, r.Header)
	if adapter == nil {
		writeError(w, http.StatusBadRequest, "unknown_provider",
			"could not identify target provider from path or headers", nil)
		return
	}

	model := adapter.ExtractModel(body)
	if override := r.Header.Get("X-Model-Override"); override != "" {
		patched, err := adapter.OverrideModel(body, override)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "model override failed", nil)
			return
		}
		body = patched
		model = override
	}

	promptText, _ := adapter.ExtractPromptText(body)

	rc := &pipeline.RequestContext{
		RequestID:      requestID,
		StartTime:      time.Now(),
		UserID:         r.Header.Get("X-User-ID"),
		WorkspaceID:    r.Header.Get("X-Workspace-ID"),
		BudgetID:       r.Header.Get("X-Budget-ID"),
		Provider:       provider,
		Adapter:        adapter,
		Model:          model,
		Path:           r.URL.Path,
		Header:         r.Header,
		Body:           body,
		PromptText:     promptText,
		Tools:          adapter.ExtractToolDeclarations(body),
		MaxTokens:      adapter.ExtractMaxTokens(body),
		RetryConfig:    g.retryConfigFor(r),
		CacheExactOnly: headerBool(r, "X-Disable-Semantic-Cache"),
		Moderation:     g.moderationConfigFor(r),
	}

	resp := g.pipeline.Handle(r.Context(), rc)

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		log.Debug().Err(err).Str("request_id", requestID).Msg("gateway: client went away")
	}
}

// retryConfigFor overlays per-request header overrides on the server defaults.
func (g *Gateway) retryConfigFor(r *http.Request) proxy.RetryConfig {
	cfg := g.defaultRetry
	if v := r.Header.Get("X-Retry-Count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 10 {
			cfg.MaxRetries = n
		}
	}
	if v := r.Header.Get("X-Retry-Factor"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 1 {
			cfg.Factor = f
		}
	}
	if v := r.Header.Get("X-Retry-Min-Timeout"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.MinTimeout = d
		}
	}
	if v := r.Header.Get("X-Retry-Max-Timeout"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= cfg.MinTimeout {
			cfg.MaxTimeout = d
		}
	}
	if cfg.MaxTimeout < cfg.MinTimeout {
		cfg.MaxTimeout = cfg.MinTimeout
	}
	return cfg
}

func (g *Gateway) moderationConfigFor(r *http.Request) moderation.Config {
	cfg := g.defaultModeration
	if v := r.Header.Get("X-Output-Moderation-Enabled"); v != "" {
		cfg.Enabled = v == "true" || v == "1"
	}
	if v := r.Header.Get("X-Toxicity-Threshold"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Threshold = f
		}
	}
	if v := r.Header.Get("X-Moderation-Action"); v != "" {
		cfg.Action = moderation.ParseAction(v)
	}
	return cfg
}

func headerBool(r *http.Request, name string) bool {
	v := r.Header.Get(name)
	return v == "true" || v == "1"
}
