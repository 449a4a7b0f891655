package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Firewall.Enabled)
	assert.True(t, cfg.Firewall.FailOpen)
	assert.Equal(t, DefaultSimilarityThreshold, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, DefaultMaxRetries, cfg.Retry.MaxRetries)
	assert.Equal(t, DefaultBreakerThreshold, cfg.Breaker.Threshold)
	assert.False(t, cfg.Moderation.Enabled)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
cache:
  similarity_threshold: 0.9
providers:
  openai:
    base_url: https://api.openai.com
    auth: api_key
    api_key: sk-test
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.9, cfg.Cache.SimilarityThreshold)
	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultMaxRetries, cfg.Retry.MaxRetries)
	assert.Equal(t, "https://api.openai.com", cfg.Providers["openai"].BaseURL)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_GW_KEY", "sk-from-env")
	path := writeConfig(t, `
providers:
  openai:
    base_url: https://api.openai.com
    auth: api_key
    api_key: ${TEST_GW_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Providers["openai"].APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad similarity", func(c *Config) { c.Cache.SimilarityThreshold = 1.5 }},
		{"bad scope", func(c *Config) { c.Cache.Scope = "tenant" }},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }},
		{"factor below one", func(c *Config) { c.Retry.Factor = 0.5 }},
		{"max below min timeout", func(c *Config) { c.Retry.MaxTimeout = c.Retry.MinTimeout - time.Millisecond }},
		{"zero breaker threshold", func(c *Config) { c.Breaker.Threshold = 0 }},
		{"bad moderation action", func(c *Config) { c.Moderation.Action = "quarantine" }},
		{"provider without base_url", func(c *Config) {
			c.Providers = map[string]ProviderConfig{"openai": {Auth: "api_key"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
