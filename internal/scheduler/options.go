package scheduler

import (
	"log/slog"
	"time"

	"github.com/haasonsaas/annacore/internal/backoff"
	"github.com/haasonsaas/annacore/internal/thoughts"
)

// Options configures a Scheduler's cycle behavior.
type Options struct {
	// DrainLimit is K, the maximum thoughts drained per cycle.
	DrainLimit int

	// TokenBudget bounds the assembled context window, counted with
	// TokenCounter.
	TokenBudget int

	// LMTimeout bounds each LM call; on expiry the call is cancelled and a
	// lm_timeout system_notice is enqueued instead.
	LMTimeout time.Duration

	// IdleTick is how often the scheduler wakes on its own when nothing
	// else has woken it, to consider low-priority work and reflection.
	IdleTick time.Duration

	// MaintenanceEvery runs a maintenance cycle every N cycles (0 disables
	// periodic maintenance).
	MaintenanceEvery int

	// RecentConsumedWindow bounds how far back assembleContext looks for
	// recently-consumed thoughts (for LM replay) via Buffer.RecentConsumed.
	RecentConsumedWindow time.Duration

	// ConcurrentActions switches action dispatch from sequential
	// (emission-order, the default) to errgroup-based concurrent dispatch
	// (completion-order tool_result enqueue).
	ConcurrentActions bool

	// BackoffPolicy governs the delay applied after an unresponsive cycle.
	BackoffPolicy backoff.BackoffPolicy

	// BackpressureFillThreshold is the buffer fill ratio (0-1) that starts
	// the backpressure window.
	BackpressureFillThreshold float64

	// BackpressureWindow is how long fill must stay above threshold before
	// the scheduler shortens its idle tick and raises the drain gate.
	BackpressureWindow time.Duration

	// DefaultModel is used for LM calls.
	DefaultModel string

	// SystemPrompt seeds every assembled context window.
	SystemPrompt string

	// TokenCounter estimates context window size; defaults to a
	// whitespace heuristic.
	TokenCounter TokenCounter

	// Logger receives cycle diagnostics.
	Logger *slog.Logger

	// OnReply is called with the cycle's focus thought and visible reply
	// text. Delivering the reply to an output sink is an external
	// concern; this hook is the scheduler's only touchpoint with it.
	OnReply func(focus *thoughts.Thought, reply string)

	// OnLLMCall is called after every Generate attempt, successful or not,
	// for metrics emission.
	OnLLMCall func(model, status string, duration time.Duration)

	// OnToolResult is called after every tool dispatch, successful or
	// not, for metrics emission.
	OnToolResult func(tool, status string, duration time.Duration)
}

// DefaultOptions returns the baseline scheduler configuration.
func DefaultOptions() Options {
	return Options{
		DrainLimit:                8,
		TokenBudget:               8000,
		LMTimeout:                 60 * time.Second,
		IdleTick:                  3 * time.Second,
		MaintenanceEvery:          20,
		RecentConsumedWindow:      2 * time.Minute,
		ConcurrentActions:         false,
		BackoffPolicy:             backoff.DefaultPolicy(),
		BackpressureFillThreshold: 0.8,
		BackpressureWindow:        30 * time.Second,
		TokenCounter:              wordCounter{},
		Logger:                    slog.Default(),
	}
}

func mergeOptions(base, override Options) Options {
	merged := base
	if override.DrainLimit > 0 {
		merged.DrainLimit = override.DrainLimit
	}
	if override.TokenBudget > 0 {
		merged.TokenBudget = override.TokenBudget
	}
	if override.LMTimeout > 0 {
		merged.LMTimeout = override.LMTimeout
	}
	if override.IdleTick > 0 {
		merged.IdleTick = override.IdleTick
	}
	if override.MaintenanceEvery > 0 {
		merged.MaintenanceEvery = override.MaintenanceEvery
	}
	if override.RecentConsumedWindow > 0 {
		merged.RecentConsumedWindow = override.RecentConsumedWindow
	}
	if override.ConcurrentActions {
		merged.ConcurrentActions = true
	}
	if override.BackoffPolicy != (backoff.BackoffPolicy{}) {
		merged.BackoffPolicy = override.BackoffPolicy
	}
	if override.BackpressureFillThreshold > 0 {
		merged.BackpressureFillThreshold = override.BackpressureFillThreshold
	}
	if override.BackpressureWindow > 0 {
		merged.BackpressureWindow = override.BackpressureWindow
	}
	if override.DefaultModel != "" {
		merged.DefaultModel = override.DefaultModel
	}
	if override.SystemPrompt != "" {
		merged.SystemPrompt = override.SystemPrompt
	}
	if override.TokenCounter != nil {
		merged.TokenCounter = override.TokenCounter
	}
	if override.Logger != nil {
		merged.Logger = override.Logger
	}
	if override.OnReply != nil {
		merged.OnReply = override.OnReply
	}
	if override.OnLLMCall != nil {
		merged.OnLLMCall = override.OnLLMCall
	}
	if override.OnToolResult != nil {
		merged.OnToolResult = override.OnToolResult
	}
	return merged
}
