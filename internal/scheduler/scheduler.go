// Package scheduler implements the cognitive core's thinking loop: a
// cooperative single-threaded cycle that drains the thought buffer,
// assembles a context window, calls a language model, parses the
// resulting actions, and dispatches them back through the tool manager.
//
// Scheduler is modeled after the reference agentic loop/runtime pair: a
// small driver that owns the single-active-cycle invariant and coalesces
// repeated wakes into exactly one more cycle, rather than a worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/annacore/internal/actions"
	"github.com/haasonsaas/annacore/internal/backoff"
	"github.com/haasonsaas/annacore/internal/coreerr"
	"github.com/haasonsaas/annacore/internal/llm"
	"github.com/haasonsaas/annacore/internal/memoryadapter"
	"github.com/haasonsaas/annacore/internal/thoughts"
	"github.com/haasonsaas/annacore/internal/toolmgr"
)

// maintenanceSummaryMaxChars caps the size of a maintenance reflection, so
// a long run of consumed thoughts can't grow it unboundedly.
const maintenanceSummaryMaxChars = 4000

// Scheduler drives the thinking loop against a thought buffer, tool
// registry, memory adapter, and LM provider.
type Scheduler struct {
	buffer   *thoughts.Buffer
	mem      memoryadapter.Adapter
	tools    *toolmgr.Registry
	provider llm.Provider

	opts Options

	running     atomic.Bool
	wakeCh      chan struct{}
	cycleCount  int
	unresponsiveAttempt int
	highFillSince       time.Time
	recentConsumed      []string
	bufferOverflowNotified bool

	logger *slog.Logger
}

// New creates a Scheduler. opts is merged over DefaultOptions().
func New(buffer *thoughts.Buffer, mem memoryadapter.Adapter, tools *toolmgr.Registry, provider llm.Provider, opts Options) *Scheduler {
	merged := mergeOptions(DefaultOptions(), opts)
	if mem == nil {
		mem = memoryadapter.NullAdapter{}
	}
	return &Scheduler{
		buffer:   buffer,
		mem:      mem,
		tools:    tools,
		provider: provider,
		opts:     merged,
		wakeCh:   make(chan struct{}, 1),
		logger:   merged.Logger,
	}
}

// Running reports whether a cycle is currently executing.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Wake requests a cycle. If a cycle is already running or already
// pending, the request is coalesced into "one more cycle" rather than
// queued, matching spec.md §4.2's "pending wake" reentrancy rule.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Run starts the event loop: it wakes on buffer events (Medium+ thoughts),
// explicit Wake() calls, and an idle tick, running at most one cycle at a
// time. Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.buffer.OnEvent(func(t *thoughts.Thought, event string) {
		if event == "added" && t.Priority >= thoughts.Medium {
			s.Wake()
		}
	})

	timer := time.NewTimer(s.opts.IdleTick)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			s.runCycleGuarded(ctx)
		case <-s.wakeCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			s.runCycleGuarded(ctx)
		}
		timer.Reset(s.currentIdleTick())
	}
}

// currentIdleTick shortens the idle tick while the buffer sustains high
// fill, per spec.md §4.2 backpressure.
func (s *Scheduler) currentIdleTick() time.Duration {
	if s.backpressureActive(s.buffer.Stats()) {
		d := s.opts.IdleTick / 4
		if d < 100*time.Millisecond {
			d = 100 * time.Millisecond
		}
		return d
	}
	return s.opts.IdleTick
}

func (s *Scheduler) backpressureActive(stats thoughts.Stats) bool {
	if stats.Capacity == 0 {
		return false
	}
	fill := float64(stats.Total) / float64(stats.Capacity)
	now := time.Now()
	if fill <= s.opts.BackpressureFillThreshold {
		s.highFillSince = time.Time{}
		return false
	}
	if s.highFillSince.IsZero() {
		s.highFillSince = now
		return false
	}
	return now.Sub(s.highFillSince) >= s.opts.BackpressureWindow
}

func (s *Scheduler) runCycleGuarded(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)
	s.cycleCount++
	if err := s.runCycle(ctx); err != nil {
		s.logger.Warn("scheduler: cycle error", "cycle", s.cycleCount, "error", err)
	}
}

// runCycle executes one pass of the per-cycle algorithm (spec.md §4.2
// steps 1-11).
func (s *Scheduler) runCycle(ctx context.Context) error {
	stats := s.buffer.Stats()
	s.checkBufferOverflow()
	mode := selectMode(stats, s.cycleCount, s.opts.MaintenanceEvery)

	minPriority := minPriorityFor(mode)
	if s.backpressureActive(stats) && minPriority < thoughts.Medium {
		minPriority = thoughts.Medium
	}

	drained := s.buffer.DrainMinPriority(s.opts.DrainLimit, minPriority)

	if mode == Maintenance {
		return s.runMaintenance(drained)
	}

	if len(drained) == 0 {
		return nil
	}

	focus := drained[0]

	window, err := assembleContext(ctx, drained, s.buffer, s.mem, s.tools.Instructions(), s.opts.SystemPrompt, s.opts.TokenBudget, s.opts.TokenCounter, s.opts.RecentConsumedWindow)
	if err != nil {
		return fmt.Errorf("scheduler: assemble context: %w", err)
	}

	lmCtx, cancel := context.WithTimeout(ctx, s.opts.LMTimeout)
	callStart := time.Now()
	resp, err := s.provider.Generate(lmCtx, window.toRequest(s.opts.DefaultModel))
	lmDuration := time.Since(callStart)
	cancel()
	if err != nil {
		s.recordLLMCall(lmDuration, "error")
		if errors.Is(lmCtx.Err(), context.DeadlineExceeded) {
			s.enqueueSystemNotice("lm_timeout", fmt.Sprintf("LM call exceeded deadline of %s", s.opts.LMTimeout))
			return nil
		}
		return fmt.Errorf("scheduler: lm call: %w", err)
	}
	s.recordLLMCall(lmDuration, "success")

	parsed := actions.Parse(resp.Text)
	for _, f := range parsed.Failures {
		s.enqueueSystemNotice("lm_malformed", f.Err.Error())
	}

	if parsed.Reply != "" && s.opts.OnReply != nil {
		s.opts.OnReply(focus, parsed.Reply)
	}

	s.dispatchActions(ctx, parsed.Actions)

	if parsed.Reply == "" && len(parsed.Actions) == 0 && focus.Priority >= thoughts.High {
		s.handleUnresponsiveCycle(ctx)
	} else {
		s.unresponsiveAttempt = 0
	}

	return nil
}

// dispatchActions runs parsed actions through the tool manager, in
// emission order by default. ConcurrentActions switches to an
// errgroup-based fan-out where tool_result enqueue order follows
// completion order instead.
func (s *Scheduler) dispatchActions(ctx context.Context, acts []actions.Action) {
	if !s.opts.ConcurrentActions {
		for _, a := range acts {
			s.dispatchOne(ctx, a)
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range acts {
		a := a
		g.Go(func() error {
			s.dispatchOne(gctx, a)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) dispatchOne(ctx context.Context, a actions.Action) {
	dispatchStart := time.Now()
	result, err := s.tools.Dispatch(ctx, a.Tool, a.Command, a.Args)
	dispatchDuration := time.Since(dispatchStart)

	content := result.Content
	metadata := map[string]any{}
	for k, v := range result.Metadata {
		metadata[k] = v
	}
	if a.Command != "" {
		metadata["command"] = a.Command
	}
	if result.Guidance != "" {
		metadata["guidance"] = result.Guidance
	}
	if err != nil {
		content = err.Error()
		if kind := coreerr.KindOf(err); kind != "" {
			metadata["error_kind"] = string(kind)
		}
		s.recordToolResult(a.Tool, dispatchDuration, "error")
	} else {
		metadata["success"] = result.Success
		s.recordToolResult(a.Tool, dispatchDuration, "success")
	}

	if _, addErr := s.buffer.Add(&thoughts.Thought{
		Source:    thoughts.SourceTool,
		OriginTag: a.Tool,
		Content:   content,
		Priority:  thoughts.Medium,
		Metadata:  metadata,
	}); addErr != nil {
		s.logger.Warn("scheduler: failed to enqueue tool_result", "tool", a.Tool, "error", addErr)
	}
}

func (s *Scheduler) handleUnresponsiveCycle(ctx context.Context) {
	s.enqueueSystemNotice("unresponsive_cycle", "cycle consumed a high-priority focus without a reply or actions")
	s.unresponsiveAttempt++
	_ = backoff.SleepWithBackoff(ctx, s.opts.BackoffPolicy, s.unresponsiveAttempt)
}

func (s *Scheduler) recordLLMCall(duration time.Duration, status string) {
	if s.opts.OnLLMCall != nil {
		s.opts.OnLLMCall(s.opts.DefaultModel, status, duration)
	}
}

func (s *Scheduler) recordToolResult(tool string, duration time.Duration, status string) {
	if s.opts.OnToolResult != nil {
		s.opts.OnToolResult(tool, status, duration)
	}
}

// checkBufferOverflow enqueues a one-shot buffer_overflow system_notice the
// first time the buffer reports sustained CRITICAL-eviction pressure
// (spec.md §4.1), classified via coreerr.BufferOverflow.
func (s *Scheduler) checkBufferOverflow() {
	if s.bufferOverflowNotified || !s.buffer.SustainedBufferOverflow() {
		return
	}
	s.bufferOverflowNotified = true
	ce := coreerr.New(coreerr.BufferOverflow, "", "sustained CRITICAL-eviction pressure: buffer cannot make room for new thoughts", nil)
	s.enqueueSystemNotice("buffer_overflow", ce.Error())
}

func (s *Scheduler) enqueueSystemNotice(kind, message string) {
	_, _ = s.buffer.Add(&thoughts.Thought{
		Source:    thoughts.SourceSystem,
		OriginTag: kind,
		Content:   message,
		Priority:  thoughts.Low,
	})
}

// runMaintenance summarizes recently consumed thoughts into a background
// reflection and prunes expired instruction records.
func (s *Scheduler) runMaintenance(drained []*thoughts.Thought) error {
	for _, t := range drained {
		s.recentConsumed = append(s.recentConsumed, t.Content)
	}
	const recentConsumedCap = 50
	if over := len(s.recentConsumed) - recentConsumedCap; over > 0 {
		s.recentConsumed = s.recentConsumed[over:]
	}

	pruned := s.tools.Instructions().Prune()

	if len(s.recentConsumed) == 0 {
		return nil
	}

	summary := strings.Join(s.recentConsumed, "; ")
	if len(summary) > maintenanceSummaryMaxChars {
		summary = summary[:maintenanceSummaryMaxChars]
	}

	_, err := s.buffer.Add(&thoughts.Thought{
		Source:    thoughts.SourceSelf,
		OriginTag: "maintenance",
		Content:   fmt.Sprintf("maintenance reflection (%d instruction records pruned): %s", pruned, summary),
		Priority:  thoughts.Background,
	})
	return err
}
