package config

import (
	"fmt"
	"time"

	"github.com/haasonsaas/annacore/internal/memory"
)

// Config is the root configuration for the annacore process.
type Config struct {
	Core          CoreConfig          `yaml:"core"`
	LLM           LLMConfig           `yaml:"llm"`
	Observability ObservabilityConfig `yaml:"observability"`
	Jobs          JobsConfig          `yaml:"jobs"`
	Cron          CronConfig          `yaml:"cron"`
	Memory        memory.Config       `yaml:"memory"`
}

// CoreConfig tunes the cognitive core: thought buffer, scheduler, and tool manager.
type CoreConfig struct {
	AgentID   string          `yaml:"agent_id"`
	Thoughts  ThoughtsConfig  `yaml:"thoughts"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	ToolMgr   ToolMgrConfig   `yaml:"tool_manager"`
}

// ThoughtsConfig tunes the thought buffer: ceilings, quotas, dedup and decay.
type ThoughtsConfig struct {
	Capacity        int           `yaml:"capacity"`
	DedupWindow     time.Duration `yaml:"dedup_window"`
	SourceQuotaFrac float64       `yaml:"source_quota_fraction"`
	DecayAlpha      float64       `yaml:"decay_alpha"`
}

// SchedulerConfig tunes the cognitive scheduler's cycle behaviour.
type SchedulerConfig struct {
	CycleTimeout       time.Duration `yaml:"cycle_timeout"`
	LMDeadline         time.Duration `yaml:"lm_deadline"`
	ContextTokenBudget int           `yaml:"context_token_budget"`
	IdlePollInterval   time.Duration `yaml:"idle_poll_interval"`
	UnresponsiveAfter  int           `yaml:"unresponsive_cycle_count"`
	ConcurrentActions  bool          `yaml:"concurrent_actions"`
	MaintenanceEvery   int           `yaml:"maintenance_every_cycles"`
}

// ToolMgrConfig tunes the tool manager's lifecycle and dispatch behaviour.
type ToolMgrConfig struct {
	InstallDir        string        `yaml:"install_dir"`
	DiscoveryWatch    bool          `yaml:"discovery_watch"`
	DefaultCooldown   time.Duration `yaml:"default_cooldown"`
	ExecuteTimeout    time.Duration `yaml:"execute_timeout"`
	InstructionTTL    time.Duration `yaml:"instruction_ttl"`
	MaxConcurrentCtx  int           `yaml:"max_concurrent_context_loops"`
}

// LLMConfig selects and configures the language-model providers the scheduler calls.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	FallbackChain   []string             `yaml:"fallback_chain"`
	Anthropic       AnthropicConfig      `yaml:"anthropic"`
	OpenAI          OpenAIConfig         `yaml:"openai"`
	Venice          VeniceConfig         `yaml:"venice"`
}

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// VeniceConfig configures the Venice provider.
type VeniceConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ObservabilityConfig tunes metrics and tracing emission.
type ObservabilityConfig struct {
	MetricsAddr    string  `yaml:"metrics_addr"`
	TracingEnabled bool    `yaml:"tracing_enabled"`
	TracingSampler float64 `yaml:"tracing_sampler"`
}

// JobsConfig selects the async job store backing tool dispatch.
type JobsConfig struct {
	Backend string `yaml:"backend"` // "memory" or "cockroach"
	DSN     string `yaml:"dsn,omitempty"`
}

// CronConfig configures the reminder/webhook/custom jobs the cron scheduler
// fires on a timer, feeding the thought buffer's `reminder` source.
type CronConfig struct {
	Enabled bool            `yaml:"enabled"`
	Jobs    []CronJobConfig `yaml:"jobs"`
}

// CronJobConfig describes a single scheduled job.
type CronJobConfig struct {
	ID       string              `yaml:"id"`
	Name     string              `yaml:"name"`
	Type     string              `yaml:"type"` // "reminder", "webhook", or "custom"
	Enabled  bool                `yaml:"enabled"`
	Schedule CronScheduleConfig  `yaml:"schedule"`
	Message  *CronMessageConfig  `yaml:"reminder,omitempty"`
	Webhook  *CronWebhookConfig  `yaml:"webhook,omitempty"`
	Custom   *CronCustomConfig   `yaml:"custom,omitempty"`
	Retry    CronRetryConfig     `yaml:"retry"`
}

// CronScheduleConfig describes when a job fires: exactly one of Cron, Every,
// or At should be set.
type CronScheduleConfig struct {
	Cron     string        `yaml:"cron,omitempty"`
	Every    time.Duration `yaml:"every,omitempty"`
	At       string        `yaml:"at,omitempty"`
	Timezone string        `yaml:"timezone,omitempty"`
}

// CronMessageConfig is the payload for a "reminder" job: the content
// enqueued into the thought buffer when the job fires.
type CronMessageConfig struct {
	Content  string         `yaml:"content,omitempty"`
	Template string         `yaml:"template,omitempty"`
	Data     map[string]any `yaml:"data,omitempty"`
	Priority string         `yaml:"priority,omitempty"` // thoughts.Priority name, defaults to "high"
}

// CronWebhookConfig is the payload for a "webhook" job: an outbound HTTP
// call fired on schedule.
type CronWebhookConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Auth    *CronWebhookAuth  `yaml:"auth,omitempty"`
}

// CronWebhookAuth configures authentication for a webhook job.
type CronWebhookAuth struct {
	Type   string `yaml:"type"` // "bearer", "basic", or "api_key"
	Token  string `yaml:"token,omitempty"`
	User   string `yaml:"user,omitempty"`
	Pass   string `yaml:"pass,omitempty"`
	Header string `yaml:"header,omitempty"`
}

// CronCustomConfig is the payload for a "custom" job: dispatch to a handler
// registered by name at startup.
type CronCustomConfig struct {
	Handler string         `yaml:"handler"`
	Args    map[string]any `yaml:"args,omitempty"`
}

// CronRetryConfig configures retry backoff for failed job executions.
type CronRetryConfig struct {
	MaxRetries int           `yaml:"max_retries,omitempty"`
	Backoff    time.Duration `yaml:"backoff,omitempty"`
	MaxBackoff time.Duration `yaml:"max_backoff,omitempty"`
}

// Load reads, resolves includes, and decodes the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core.AgentID == "" {
		cfg.Core.AgentID = "annacore"
	}
	if cfg.Core.Thoughts.Capacity == 0 {
		cfg.Core.Thoughts.Capacity = 500
	}
	if cfg.Core.Thoughts.DedupWindow == 0 {
		cfg.Core.Thoughts.DedupWindow = 5 * time.Second
	}
	if cfg.Core.Thoughts.SourceQuotaFrac == 0 {
		cfg.Core.Thoughts.SourceQuotaFrac = 0.4
	}
	if cfg.Core.Thoughts.DecayAlpha == 0 {
		cfg.Core.Thoughts.DecayAlpha = 0.01
	}
	if cfg.Core.Scheduler.CycleTimeout == 0 {
		cfg.Core.Scheduler.CycleTimeout = 30 * time.Second
	}
	if cfg.Core.Scheduler.LMDeadline == 0 {
		cfg.Core.Scheduler.LMDeadline = 20 * time.Second
	}
	if cfg.Core.Scheduler.ContextTokenBudget == 0 {
		cfg.Core.Scheduler.ContextTokenBudget = 8000
	}
	if cfg.Core.Scheduler.IdlePollInterval == 0 {
		cfg.Core.Scheduler.IdlePollInterval = 2 * time.Second
	}
	if cfg.Core.Scheduler.UnresponsiveAfter == 0 {
		cfg.Core.Scheduler.UnresponsiveAfter = 3
	}
	if cfg.Core.Scheduler.MaintenanceEvery == 0 {
		cfg.Core.Scheduler.MaintenanceEvery = 20
	}
	if cfg.Core.ToolMgr.DefaultCooldown == 0 {
		cfg.Core.ToolMgr.DefaultCooldown = 1 * time.Second
	}
	if cfg.Core.ToolMgr.ExecuteTimeout == 0 {
		cfg.Core.ToolMgr.ExecuteTimeout = 15 * time.Second
	}
	if cfg.Core.ToolMgr.InstructionTTL == 0 {
		cfg.Core.ToolMgr.InstructionTTL = 10 * time.Minute
	}
	if cfg.Core.ToolMgr.MaxConcurrentCtx == 0 {
		cfg.Core.ToolMgr.MaxConcurrentCtx = 8
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Jobs.Backend == "" {
		cfg.Jobs.Backend = "memory"
	}
}

// Validate checks invariants that cannot be expressed as YAML defaults.
func (c *Config) Validate() error {
	if c.Core.Thoughts.SourceQuotaFrac <= 0 || c.Core.Thoughts.SourceQuotaFrac > 1 {
		return fmt.Errorf("core.thoughts.source_quota_fraction must be in (0, 1]")
	}
	if c.Core.Thoughts.Capacity <= 0 {
		return fmt.Errorf("core.thoughts.capacity must be positive")
	}
	switch c.Jobs.Backend {
	case "memory":
	case "cockroach":
		if c.Jobs.DSN == "" {
			return fmt.Errorf("jobs.dsn is required when jobs.backend is cockroach")
		}
	default:
		return fmt.Errorf("jobs.backend %q is not recognized", c.Jobs.Backend)
	}
	return nil
}
