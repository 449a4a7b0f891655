// Package config loads and validates gateway configuration.
//
// DESIGN: YAML file with nested sections per subsystem. Environment variables
// referenced as ${VAR} in string values are expanded at load time so API keys
// never live in the config file itself.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root gateway configuration.
type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Firewall   FirewallConfig            `yaml:"firewall"`
	Budget     BudgetConfig              `yaml:"budget"`
	Cache      CacheConfig               `yaml:"cache"`
	Retry      RetryConfig               `yaml:"retry"`
	Breaker    BreakerConfig             `yaml:"breaker"`
	Moderation ModerationConfig          `yaml:"moderation"`
	Analytics  AnalyticsConfig           `yaml:"analytics"`
	RateLimit  RateLimitConfig           `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ProviderConfig describes one upstream provider. Providers are selected by
// explicit registration here, never by sniffing URL hostnames.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	Auth    string `yaml:"auth"`    // api_key, passthrough, sigv4
	APIKey  string `yaml:"api_key"` // supports ${ENV_VAR} expansion
	Region  string `yaml:"region"`  // sigv4 only
}

// FirewallConfig controls the inbound prompt firewall.
type FirewallConfig struct {
	Enabled          bool           `yaml:"enabled"`
	FailOpen         bool           `yaml:"fail_open"`
	SandboxThreshold float64        `yaml:"sandbox_threshold"`
	ReviewThreshold  float64        `yaml:"review_threshold"`
	BlockThreshold   float64        `yaml:"block_threshold"`
	Rules            []FirewallRule `yaml:"rules"` // appended to the built-in set
}

// FirewallRule declares one additional detection pattern.
type FirewallRule struct {
	Name     string  `yaml:"name"`
	Pattern  string  `yaml:"pattern"`
	Category string  `yaml:"category"`
	Weight   float64 `yaml:"weight"`
}

// BudgetConfig controls pre-flight cost enforcement.
type BudgetConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FailOpen bool   `yaml:"fail_open"`
	DBPath   string `yaml:"db_path"`
}

// CacheConfig controls the semantic response cache.
type CacheConfig struct {
	Enabled             bool          `yaml:"enabled"`
	FailOpen            bool          `yaml:"fail_open"`
	TTL                 time.Duration `yaml:"ttl"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	Scope               string        `yaml:"scope"` // "user" or "global"
}

// RetryConfig holds default retry settings; callers may override per request.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Factor     float64       `yaml:"factor"`
	MinTimeout time.Duration `yaml:"min_timeout"`
	MaxTimeout time.Duration `yaml:"max_timeout"`
	Timeout    time.Duration `yaml:"timeout"` // total deadline across attempts
}

// BreakerConfig holds per-provider circuit breaker settings.
type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ModerationConfig controls output moderation. Disabled by default.
type ModerationConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
	Action    string  `yaml:"action"` // allow, annotate, redact, block
}

// AnalyticsConfig controls the fire-and-forget usage recorder.
type AnalyticsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	LogPath   string `yaml:"log_path"`
	QueueSize int    `yaml:"queue_size"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// Load reads, expands, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand ${VAR} references so secrets stay in the environment.
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config populated with safe defaults. Callers overlay YAML
// on top of it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Firewall: FirewallConfig{
			Enabled:          true,
			FailOpen:         true,
			SandboxThreshold: DefaultSandboxThreshold,
			ReviewThreshold:  DefaultReviewThreshold,
			BlockThreshold:   DefaultBlockThreshold,
		},
		Budget: BudgetConfig{
			Enabled:  true,
			FailOpen: true,
			DBPath:   "gateway.db",
		},
		Cache: CacheConfig{
			Enabled:             true,
			FailOpen:            true,
			TTL:                 DefaultCacheTTL,
			SimilarityThreshold: DefaultSimilarityThreshold,
			Scope:               "user",
		},
		Retry: RetryConfig{
			MaxRetries: DefaultMaxRetries,
			Factor:     DefaultRetryFactor,
			MinTimeout: DefaultRetryMinTimeout,
			MaxTimeout: DefaultRetryMaxTimeout,
			Timeout:    DefaultRequestTimeout,
		},
		Breaker: BreakerConfig{
			Threshold:    DefaultBreakerThreshold,
			ResetTimeout: DefaultBreakerResetTimeout,
		},
		Moderation: ModerationConfig{
			Enabled:   false,
			Threshold: 0.7,
			Action:    "block",
		},
		Analytics: AnalyticsConfig{
			Enabled:   true,
			QueueSize: DefaultAnalyticsQueueSize,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     DefaultRateLimit,
			Burst:   DefaultRateLimit,
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be in [0,1], got %f", c.Cache.SimilarityThreshold)
	}
	if c.Cache.Scope != "" && c.Cache.Scope != "user" && c.Cache.Scope != "global" {
		return fmt.Errorf("cache.scope must be \"user\" or \"global\", got %q", c.Cache.Scope)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("retry.factor must be >= 1, got %f", c.Retry.Factor)
	}
	if c.Retry.MinTimeout <= 0 || c.Retry.MaxTimeout < c.Retry.MinTimeout {
		return fmt.Errorf("retry timeouts invalid: min=%s max=%s", c.Retry.MinTimeout, c.Retry.MaxTimeout)
	}
	if c.Breaker.Threshold <= 0 {
		return fmt.Errorf("breaker.threshold must be > 0, got %d", c.Breaker.Threshold)
	}
	switch c.Moderation.Action {
	case "", "allow", "annotate", "redact", "block":
	default:
		return fmt.Errorf("moderation.action must be one of allow/annotate/redact/block, got %q", c.Moderation.Action)
	}
	for name, p := range c.Providers {
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", name)
		}
	}
	return nil
}
