// Package types defines common authentication interfaces and types.
package types

import (
	"context"
	"net/http"
	"strings"
)

// AuthMode defines the authentication strategy for a provider.
type AuthMode string

const (
	// AuthModeAPIKey injects a configured API key.
	AuthModeAPIKey AuthMode = "api_key"

	// AuthModePassthrough forwards the caller's own credential headers.
	AuthModePassthrough AuthMode = "passthrough"

	// AuthModeSigV4 signs the outbound request with AWS SigV4 (Bedrock).
	AuthModeSigV4 AuthMode = "sigv4"
)

// ParseAuthMode converts a string to AuthMode.
func ParseAuthMode(s string) AuthMode {
	switch strings.ToLower(s) {
	case "passthrough":
		return AuthModePassthrough
	case "sigv4":
		return AuthModeSigV4
	default:
		return AuthModeAPIKey
	}
}

// AuthConfig contains authentication configuration for a provider.
type AuthConfig struct {
	// Mode specifies the auth strategy.
	Mode AuthMode

	// APIKey is the credential used when Mode is AuthModeAPIKey.
	APIKey string

	// Region is the AWS region used when Mode is AuthModeSigV4.
	Region string
}

// Handler defines the interface for provider-specific auth handling.
type Handler interface {
	// Name returns the provider name ("anthropic", "openai", etc.).
	Name() string

	// Initialize sets up the handler with configuration.
	Initialize(cfg AuthConfig) error

	// Apply sets auth headers (or signs) the outbound request. body is the
	// exact payload that will be sent; SigV4 needs it for the content hash.
	Apply(ctx context.Context, req *http.Request, body []byte) error

	// Stop releases handler resources.
	Stop()
}
