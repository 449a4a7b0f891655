// Package openai implements OpenAI API authentication.
package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/auth/types"
	"github.com/aegisgw/admission-gateway/internal/utils"
)

// Handler authenticates outbound OpenAI requests with a bearer API key.
type Handler struct {
	cfg types.AuthConfig
}

// NewHandler creates an OpenAI auth handler.
func NewHandler() *Handler { return &Handler{} }

func (h *Handler) Name() string { return "openai" }

func (h *Handler) Initialize(cfg types.AuthConfig) error {
	if cfg.Mode == types.AuthModeAPIKey && cfg.APIKey == "" {
		return fmt.Errorf("openai: api_key mode requires a key")
	}
	h.cfg = cfg
	log.Debug().Str("mode", string(cfg.Mode)).Str("key", utils.MaskKey(cfg.APIKey)).
		Msg("openai auth initialized")
	return nil
}

func (h *Handler) Apply(_ context.Context, req *http.Request, _ []byte) error {
	if h.cfg.Mode == types.AuthModeAPIKey {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}
	return nil
}

func (h *Handler) Stop() {}
