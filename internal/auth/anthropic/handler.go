// Package anthropic implements Anthropic API authentication.
package anthropic

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/auth/types"
	"github.com/aegisgw/admission-gateway/internal/utils"
)

// DefaultAPIVersion is sent when the caller did not supply anthropic-version.
const DefaultAPIVersion = "2023-06-01"

// Handler authenticates outbound Anthropic requests with an API key.
type Handler struct {
	cfg types.AuthConfig
}

// NewHandler creates an Anthropic auth handler.
func NewHandler() *Handler { return &Handler{} }

func (h *Handler) Name() string { return "anthropic" }

func (h *Handler) Initialize(cfg types.AuthConfig) error {
	if cfg.Mode == types.AuthModeAPIKey && cfg.APIKey == "" {
		return fmt.Errorf("anthropic: api_key mode requires a key")
	}
	h.cfg = cfg
	log.Debug().Str("mode", string(cfg.Mode)).Str("key", utils.MaskKey(cfg.APIKey)).
		Msg("anthropic auth initialized")
	return nil
}

func (h *Handler) Apply(_ context.Context, req *http.Request, _ []byte) error {
	if h.cfg.Mode == types.AuthModeAPIKey {
		req.Header.Set("x-api-key", h.cfg.APIKey)
		req.Header.Del("Authorization")
	}
	if req.Header.Get("anthropic-version") == "" {
		req.Header.Set("anthropic-version", DefaultAPIVersion)
	}
	return nil
}

func (h *Handler) Stop() {}
