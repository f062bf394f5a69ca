package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/annacore/internal/config"
	"github.com/haasonsaas/annacore/internal/cron"
	"github.com/haasonsaas/annacore/internal/llm"
	"github.com/haasonsaas/annacore/internal/memory"
	"github.com/haasonsaas/annacore/internal/memoryadapter"
	"github.com/haasonsaas/annacore/internal/models"
	"github.com/haasonsaas/annacore/internal/observability"
	"github.com/haasonsaas/annacore/internal/scheduler"
	"github.com/haasonsaas/annacore/internal/thoughts"
	"github.com/haasonsaas/annacore/internal/toolmgr"
)

// runCore implements the run command: it loads configuration, wires every
// core component, and runs the scheduler until ctx is cancelled.
func runCore(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}
	logger := slog.Default()

	logger.Info("starting annacore core", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	buffer := thoughts.New(thoughts.Config{
		Capacity:            cfg.Core.Thoughts.Capacity,
		DedupWindow:         cfg.Core.Thoughts.DedupWindow,
		SourceQuotaFraction: cfg.Core.Thoughts.SourceQuotaFrac,
		DecayAlpha:          cfg.Core.Thoughts.DecayAlpha,
	})

	tools := toolmgr.NewRegistry(toolmgr.Config{
		DefaultCooldown:           cfg.Core.ToolMgr.DefaultCooldown,
		ExecuteTimeout:            cfg.Core.ToolMgr.ExecuteTimeout,
		InstructionTTL:            cfg.Core.ToolMgr.InstructionTTL,
		MaxConcurrentContextLoops: cfg.Core.ToolMgr.MaxConcurrentCtx,
		Logger:                    logger,
	})

	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build LLM provider: %w", err)
	}

	mem := memoryadapter.Adapter(memoryadapter.NullAdapter{})
	if cfg.Memory.Enabled {
		memMgr, err := memory.NewManager(&cfg.Memory)
		if err != nil {
			return fmt.Errorf("failed to build memory manager: %w", err)
		}
		mem = memoryadapter.NewVectorAdapter(memMgr, cfg.Core.AgentID)
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer tools.Shutdown()

	if cfg.Cron.Enabled {
		reminders, err := cron.NewScheduler(cfg.Cron, cron.WithThoughtProducer(buffer), cron.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to build cron scheduler: %w", err)
		}
		if err := tools.Register(runCtx, toolmgr.Tool{Name: cron.ToolName, Impl: cron.NewTool(reminders)}, buffer); err != nil {
			return fmt.Errorf("failed to register reminders tool: %w", err)
		}
		if err := reminders.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start cron scheduler: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = reminders.Stop(stopCtx)
		}()
	}

	metrics := observability.NewMetrics()
	stopObservability := startObservabilityServer(cfg.Observability.MetricsAddr, logger)
	defer stopObservability()

	sched := scheduler.New(buffer, mem, tools, provider, scheduler.Options{
		TokenBudget:       cfg.Core.Scheduler.ContextTokenBudget,
		LMTimeout:         cfg.Core.Scheduler.LMDeadline,
		IdleTick:          cfg.Core.Scheduler.IdlePollInterval,
		MaintenanceEvery:  cfg.Core.Scheduler.MaintenanceEvery,
		ConcurrentActions: cfg.Core.Scheduler.ConcurrentActions,
		DefaultModel:      resolveModel(cfg, cfg.LLM.DefaultProvider),
		Logger:            logger,
		OnReply: func(focus *thoughts.Thought, reply string) {
			logger.Info("cycle produced a reply", "focus_source", focus.Source, "reply_chars", len(reply))
		},
		OnLLMCall: func(model, status string, duration time.Duration) {
			metrics.RecordLLMRequest(cfg.LLM.DefaultProvider, model, status, duration.Seconds(), 0, 0)
		},
		OnToolResult: func(tool, status string, duration time.Duration) {
			metrics.RecordToolExecution(tool, status, duration.Seconds())
		},
	})

	logger.Info("annacore core started")
	err = sched.Run(runCtx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown signal received, core stopped")
		return nil
	}
	return err
}

// buildProvider wires every LLM backend with a configured API key into a
// fallback chain rooted at cfg.LLM.DefaultProvider.
func buildProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	providers := make(map[string]llm.Provider)

	if cfg.LLM.Anthropic.APIKey != "" {
		p, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:       cfg.LLM.Anthropic.APIKey,
			DefaultModel: cfg.LLM.Anthropic.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		providers["anthropic"] = llm.Buffer(p)
	}
	if cfg.LLM.OpenAI.APIKey != "" {
		p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:       cfg.LLM.OpenAI.APIKey,
			BaseURL:      cfg.LLM.OpenAI.BaseURL,
			DefaultModel: cfg.LLM.OpenAI.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		providers["openai"] = llm.Buffer(p)
	}
	if cfg.LLM.Venice.APIKey != "" {
		p, err := llm.NewVeniceProvider(llm.VeniceConfig{
			APIKey:       cfg.LLM.Venice.APIKey,
			DefaultModel: cfg.LLM.Venice.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("venice: %w", err)
		}
		providers["venice"] = llm.Buffer(p)
	}

	if len(providers) == 0 {
		return nil, errors.New("no LLM provider configured: set at least one of anthropic/openai/venice api_key")
	}
	if _, ok := providers[cfg.LLM.DefaultProvider]; !ok {
		return nil, fmt.Errorf("llm.default_provider %q has no matching configured provider", cfg.LLM.DefaultProvider)
	}

	chain := llm.NewFallbackChain(providers, &models.FallbackConfig{
		PrimaryProvider: cfg.LLM.DefaultProvider,
		PrimaryModel:    resolveModel(cfg, cfg.LLM.DefaultProvider),
		Fallbacks:       cfg.LLM.FallbackChain,
	}, logger)
	return chain.AsProvider(), nil
}

// resolveModel returns the configured default model for the named provider.
func resolveModel(cfg *config.Config, provider string) string {
	switch provider {
	case "anthropic":
		return cfg.LLM.Anthropic.Model
	case "openai":
		return cfg.LLM.OpenAI.Model
	case "venice":
		return cfg.LLM.Venice.Model
	default:
		return ""
	}
}

// startObservabilityServer starts an HTTP server exposing /healthz and
// /metrics, returning a function that shuts it down. A blank addr disables
// the server.
func startObservabilityServer(addr string, logger *slog.Logger) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("observability server exited", "error", err)
		}
	}()
	logger.Info("observability server listening", "addr", addr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

// runHealthcheck implements the healthcheck command: a single GET against
// the target core's /healthz, exiting non-zero on any failure.
func runHealthcheck(ctx context.Context, addr string, timeout time.Duration) error {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fmt.Sprintf("http://%s/healthz", addr), nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}
