package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/adapters"
	"github.com/aegisgw/admission-gateway/internal/analytics"
	"github.com/aegisgw/admission-gateway/internal/auth"
	authanthropic "github.com/aegisgw/admission-gateway/internal/auth/anthropic"
	authbedrock "github.com/aegisgw/admission-gateway/internal/auth/bedrock"
	authopenai "github.com/aegisgw/admission-gateway/internal/auth/openai"
	"github.com/aegisgw/admission-gateway/internal/auth/types"
	"github.com/aegisgw/admission-gateway/internal/budget"
	"github.com/aegisgw/admission-gateway/internal/cache"
	"github.com/aegisgw/admission-gateway/internal/config"
	"github.com/aegisgw/admission-gateway/internal/firewall"
	"github.com/aegisgw/admission-gateway/internal/gateway"
	"github.com/aegisgw/admission-gateway/internal/moderation"
	"github.com/aegisgw/admission-gateway/internal/pipeline"
	"github.com/aegisgw/admission-gateway/internal/proxy"
	"github.com/aegisgw/admission-gateway/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Firewall
	var fw *firewall.Stage
	var reviews *firewall.ReviewRegistry
	if cfg.Firewall.Enabled {
		rules := firewall.DefaultRules()
		for _, r := range cfg.Firewall.Rules {
			rules = append(rules, firewall.Rule{
				Name:     r.Name,
				Pattern:  r.Pattern,
				Category: r.Category,
				Weight:   r.Weight,
			})
		}
		scanner, err := firewall.NewRuleScanner(rules)
		if err != nil {
			return fmt.Errorf("firewall rules: %w", err)
		}
		reviews = firewall.NewReviewRegistry(config.DefaultReviewTTL, config.DefaultCleanupInterval)
		defer reviews.Stop()
		fw = firewall.NewStage(scanner, reviews, firewall.Thresholds{
			Sandbox: cfg.Firewall.SandboxThreshold,
			Review:  cfg.Firewall.ReviewThreshold,
			Block:   cfg.Firewall.BlockThreshold,
		}, cfg.Firewall.FailOpen)
	}

	// Budget ledger
	var bd *budget.Stage
	var ledger *budget.SQLiteLedger
	if cfg.Budget.Enabled {
		var err error
		ledger, err = budget.NewSQLiteLedger(cfg.Budget.DBPath)
		if err != nil {
			return fmt.Errorf("open budget ledger: %w", err)
		}
		defer ledger.Close()
		bd = budget.NewStage(budget.NewEstimator(), ledger, cfg.Budget.FailOpen)
	}

	// Semantic cache
	var ca *cache.Stage
	if cfg.Cache.Enabled {
		store := cache.NewMemoryStore(cfg.Cache.TTL, config.DefaultCleanupInterval)
		defer store.Stop()
		scope := cache.ScopeUser
		if cfg.Cache.Scope == "global" {
			scope = cache.ScopeGlobal
		}
		ca = cache.NewStage(store, scope, cfg.Cache.SimilarityThreshold, cfg.Cache.FailOpen)
	}

	// Upstream auth + targets
	authReg := auth.NewRegistry()
	authConfigs := make(map[adapters.Provider]types.AuthConfig)
	targets := make(map[string]proxy.Target)
	for name, pc := range cfg.Providers {
		provider := adapters.ProviderFromString(name)
		if provider == adapters.ProviderUnknown {
			return fmt.Errorf("unknown provider %q in config", name)
		}
		targets[name] = proxy.Target{Provider: provider, BaseURL: pc.BaseURL}
		authConfigs[provider] = types.AuthConfig{
			Mode:   types.ParseAuthMode(pc.Auth),
			APIKey: pc.APIKey,
			Region: pc.Region,
		}
		switch provider {
		case adapters.ProviderAnthropic:
			authReg.Register(provider, authanthropic.NewHandler())
		case adapters.ProviderOpenAI:
			authReg.Register(provider, authopenai.NewHandler())
		case adapters.ProviderBedrock:
			authReg.Register(provider, authbedrock.NewHandler())
		}
		log.Info().
			Str("provider", name).
			Str("base_url", pc.BaseURL).
			Str("auth", pc.Auth).
			Str("api_key", utils.MaskKey(pc.APIKey)).
			Msg("provider configured")
	}
	if err := authReg.Initialize(authConfigs); err != nil {
		return err
	}
	defer authReg.Stop()

	// Proxy executor
	breakers := proxy.NewBreakerRegistry(cfg.Breaker.Threshold, cfg.Breaker.ResetTimeout)
	client := &http.Client{
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: config.DefaultDialTimeout}).DialContext,
			MaxIdleConnsPerHost: 32,
		},
	}
	executor := proxy.NewExecutor(client, authReg, breakers, cfg.Retry.Timeout)

	// Analytics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := analytics.NewStats()

	var recorder *analytics.Recorder
	if cfg.Analytics.Enabled {
		metrics := analytics.NewMetrics(promReg)
		var err error
		recorder, err = analytics.NewRecorder(cfg.Analytics.LogPath, cfg.Analytics.QueueSize, stats, metrics)
		if err != nil {
			return fmt.Errorf("open analytics sink: %w", err)
		}
		defer recorder.Close()
	}

	p := pipeline.New(fw, bd, ca, executor, moderation.NewStage(), recorder, targets)
	gw := gateway.New(cfg, p, adapters.NewRegistry(), stats)
	if ledger != nil {
		gw.SetHealthCheck(ledger.Ping)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      gw.Routes(promReg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
