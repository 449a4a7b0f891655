package auth

import (
	"context"
	"net/http"

	"github.com/aegisgw/admission-gateway/internal/auth/types"
)

// PassthroughHandler forwards the caller's own credential headers unchanged.
// Used when the gateway holds no credential of its own for a provider.
type PassthroughHandler struct {
	provider string
}

// NewPassthroughHandler creates a passthrough handler for a provider.
func NewPassthroughHandler(provider string) *PassthroughHandler {
	return &PassthroughHandler{provider: provider}
}

func (h *PassthroughHandler) Name() string { return h.provider }

func (h *PassthroughHandler) Initialize(_ types.AuthConfig) error { return nil }

// Apply is a no-op: the caller's Authorization/x-api-key headers were already
// copied onto the outbound request by the executor.
func (h *PassthroughHandler) Apply(_ context.Context, _ *http.Request, _ []byte) error {
	return nil
}

func (h *PassthroughHandler) Stop() {}
