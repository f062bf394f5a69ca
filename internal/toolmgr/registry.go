package toolmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/annacore/internal/instructions"
	"github.com/haasonsaas/annacore/internal/ratelimit"
)

// entry is a registry slot tracking one tool's lifecycle state.
type entry struct {
	mu     sync.Mutex
	tool   Tool
	state  State
	cancel context.CancelFunc
}

// Config tunes the Registry's dispatch and lifecycle behavior.
type Config struct {
	// DefaultCooldown gates how often any single tool may be dispatched.
	DefaultCooldown time.Duration

	// ExecuteTimeout bounds a single Execute call.
	ExecuteTimeout time.Duration

	// InstructionTTL is forwarded to the instructions.Tracker.
	InstructionTTL time.Duration

	// MaxConcurrentContextLoops caps how many tool context loops may run
	// concurrently.
	MaxConcurrentContextLoops int

	Logger *slog.Logger
}

// Registry manages registered tools through the lifecycle state machine and
// dispatches Execute calls through the cooldown/deadline/instruction-renewal
// pipeline. Steady-state lookups (Get) take only a read lock, matching the
// spec's requirement that the registry stay read-only/lock-free in the
// common case.
type Registry struct {
	mu           sync.RWMutex
	entries      map[string]*entry
	cooldowns    *ratelimit.Limiter
	instructions *instructions.Tracker
	cfg          Config
	logger       *slog.Logger

	ctxLoopSem chan struct{}
	ctxLoopWG  sync.WaitGroup
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = time.Second
	}
	if cfg.ExecuteTimeout <= 0 {
		cfg.ExecuteTimeout = 15 * time.Second
	}
	if cfg.MaxConcurrentContextLoops <= 0 {
		cfg.MaxConcurrentContextLoops = 8
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	requestsPerSecond := 1.0 / cfg.DefaultCooldown.Seconds()
	return &Registry{
		entries: make(map[string]*entry),
		cooldowns: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: requestsPerSecond,
			BurstSize:         1,
			Enabled:           true,
		}),
		instructions: instructions.NewTracker(cfg.InstructionTTL),
		cfg:          cfg,
		logger:       logger,
		ctxLoopSem:   make(chan struct{}, cfg.MaxConcurrentContextLoops),
	}
}

// Register runs a tool through unregistered -> initializing ->
// registered_{available,unavailable}, starting its context loop if it has
// one.
func (r *Registry) Register(ctx context.Context, tool Tool, producer ThoughtProducer) error {
	if tool.Name == "" {
		return fmt.Errorf("toolmgr: tool name is required")
	}

	r.mu.Lock()
	if _, exists := r.entries[tool.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("toolmgr: tool %q already registered", tool.Name)
	}
	e := &entry{tool: tool, state: StateUnregistered}
	r.entries[tool.Name] = e
	r.mu.Unlock()

	if err := e.transition(StateInitializing); err != nil {
		return err
	}

	if err := tool.Impl.Initialize(ctx); err != nil {
		_ = e.transition(StateUnregistered)
		r.mu.Lock()
		delete(r.entries, tool.Name)
		r.mu.Unlock()
		return fmt.Errorf("toolmgr: initialize %q: %w", tool.Name, err)
	}

	next := StateRegisteredUnavailable
	if tool.Impl.IsAvailable() {
		next = StateRegisteredAvailable
	}
	if err := e.transition(next); err != nil {
		return err
	}

	r.instructions.Register(tool.Name, tool.Impl.InstructionBlob())

	if tool.Impl.HasContextLoop() {
		r.startContextLoop(e, producer)
	}

	return nil
}

// Unregister tears a tool down: cancels its context loop, calls Cleanup,
// and removes it from the registry.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("toolmgr: tool %q not registered", name)
	}
	delete(r.entries, name)
	r.mu.Unlock()

	if err := e.transition(StateTearingDown); err != nil {
		return err
	}

	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	err := e.tool.Impl.Cleanup(ctx)
	_ = e.transition(StateUnregistered)
	r.instructions.Forget(name)
	if err != nil {
		return fmt.Errorf("toolmgr: cleanup %q: %w", name, err)
	}
	return nil
}

// RefreshAvailability re-polls every registered tool's IsAvailable and
// transitions its state accordingly. Intended to be called by the
// scheduler's maintenance mode.
func (r *Registry) RefreshAvailability() {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		current := e.state
		e.mu.Unlock()
		if current != StateRegisteredAvailable && current != StateRegisteredUnavailable {
			continue
		}
		want := StateRegisteredUnavailable
		if e.tool.Impl.IsAvailable() {
			want = StateRegisteredAvailable
		}
		if want != current {
			_ = e.transition(want)
		}
	}
}

// Get returns the registered tool entry's current name and state.
func (r *Registry) Get(name string) (Tool, State, bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Tool{}, "", false
	}
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	return e.tool, state, true
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Instructions exposes the registry's instruction tracker, for the
// scheduler's context assembly step.
func (r *Registry) Instructions() *instructions.Tracker {
	return r.instructions
}

// Shutdown waits for all running context loops to observe cancellation.
func (r *Registry) Shutdown() {
	r.ctxLoopWG.Wait()
}

func (r *Registry) startContextLoop(e *entry, producer ThoughtProducer) {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	r.ctxLoopWG.Add(1)
	go func() {
		defer r.ctxLoopWG.Done()
		select {
		case r.ctxLoopSem <- struct{}{}:
			defer func() { <-r.ctxLoopSem }()
		case <-ctx.Done():
			return
		}
		if err := e.tool.Impl.ContextLoop(ctx, producer); err != nil && ctx.Err() == nil {
			r.logger.Warn("tool context loop exited with error", "tool", e.tool.Name, "error", err)
		}
	}()
}

// transition moves the entry to `to`, rejecting illegal edges.
func (e *entry) transition(to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !canTransition(e.state, to) {
		return fmt.Errorf("toolmgr: illegal transition %s -> %s for tool %q", e.state, to, e.tool.Name)
	}
	e.state = to
	return nil
}
