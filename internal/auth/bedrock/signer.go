// Package bedrock implements AWS SigV4 signing for Bedrock runtime requests.
package bedrock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/auth/types"
)

const serviceName = "bedrock"

// Handler signs outbound Bedrock requests with the default AWS credential
// chain (env, shared config, IMDS).
type Handler struct {
	region string
	creds  aws.CredentialsProvider
	signer *v4.Signer
}

// NewHandler creates a Bedrock SigV4 handler.
func NewHandler() *Handler { return &Handler{} }

func (h *Handler) Name() string { return "bedrock" }

func (h *Handler) Initialize(cfg types.AuthConfig) error {
	if cfg.Mode != types.AuthModeSigV4 {
		return fmt.Errorf("bedrock: only sigv4 auth is supported, got %q", cfg.Mode)
	}
	if cfg.Region == "" {
		return fmt.Errorf("bedrock: region is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("bedrock: load aws config: %w", err)
	}

	h.region = cfg.Region
	h.creds = awsCfg.Credentials
	h.signer = v4.NewSigner()
	log.Debug().Str("region", cfg.Region).Msg("bedrock sigv4 auth initialized")
	return nil
}

func (h *Handler) Apply(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := h.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("bedrock: retrieve credentials: %w", err)
	}

	// Caller credentials must not leak into the signed request.
	req.Header.Del("Authorization")
	req.Header.Del("x-api-key")

	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])

	if err := h.signer.SignHTTP(ctx, creds, req, payloadHash, serviceName, h.region, time.Now()); err != nil {
		return fmt.Errorf("bedrock: sign request: %w", err)
	}
	return nil
}

func (h *Handler) Stop() {}
