package toolmgr

import (
	"context"
	"errors"

	"github.com/haasonsaas/annacore/internal/coreerr"
	"github.com/haasonsaas/annacore/internal/ratelimit"
)

// Dispatch runs the tool manager's dispatch pipeline for a single action:
// resolve the tool, check availability, check cooldown, execute under a
// deadline, and renew its instruction TTL on success.
func (r *Registry) Dispatch(ctx context.Context, toolName, command string, args []any) (Result, error) {
	tool, state, ok := r.Get(toolName)
	if !ok {
		return Result{}, coreerr.New(coreerr.UnknownTool, toolName, "tool is not registered", nil)
	}
	if !state.Available() {
		return Result{}, coreerr.New(coreerr.ToolUnavailable, toolName, string(state), nil)
	}
	if !r.cooldowns.Allow(toolName) {
		wait := r.cooldowns.WaitTime(toolName)
		return Result{}, coreerr.New(coreerr.RateLimited, toolName, wait.String()+" until next allowed call", nil)
	}

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.ExecuteTimeout)
	defer cancel()

	result, err := tool.Impl.Execute(execCtx, command, args)
	if err != nil {
		return Result{}, classifyExecuteError(toolName, command, execCtx, err)
	}

	r.instructions.Renew(toolName)
	return result, nil
}

// classifyExecuteError folds a tool's raw Execute error into the shared
// error taxonomy. Errors already carrying a *coreerr.Error (e.g. an
// unknown-command classification the tool made itself) pass through with
// their tool/command reference filled in if missing.
func classifyExecuteError(toolName, command string, ctx context.Context, err error) error {
	if ce, ok := coreerr.As(err); ok {
		if ce.Tool == "" {
			ce.Tool = toolName
		}
		if ce.Command == "" {
			ce.Command = command
		}
		return ce
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return coreerr.New(coreerr.Timeout, toolName, "execute deadline exceeded", err).WithCommand(command)
	}
	return coreerr.New(coreerr.ToolInternalError, toolName, err.Error(), err).WithCommand(command)
}

// CooldownStatus reports a tool's current cooldown bucket state, for
// scheduler-level backpressure decisions before attempting dispatch.
func (r *Registry) CooldownStatus(toolName string) ratelimit.Status {
	return r.cooldowns.GetStatus(toolName)
}
