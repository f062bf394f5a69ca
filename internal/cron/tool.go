package cron

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/annacore/internal/coreerr"
	"github.com/haasonsaas/annacore/internal/toolmgr"
)

// ToolName is the name "reminders" jobs are registered and dispatched
// under, e.g. `{"tool": "reminders", "command": "list", "args": []}`.
const ToolName = "reminders"

// Tool exposes the cron scheduler's reminder jobs to the LM: listing,
// creating, and cancelling them by name. It has no context loop of its
// own — fired reminders reach the thought buffer through the scheduler's
// configured ThoughtProducer, not through a dispatched Execute call.
type Tool struct {
	scheduler *Scheduler
}

// NewTool wraps a Scheduler as a dispatchable toolmgr.Implementation.
func NewTool(scheduler *Scheduler) *Tool {
	return &Tool{scheduler: scheduler}
}

var _ toolmgr.Implementation = (*Tool)(nil)

// Initialize is a no-op: the scheduler is already running by the time the
// tool is registered.
func (t *Tool) Initialize(ctx context.Context) error { return nil }

// Cleanup is a no-op; the scheduler's own lifecycle is owned by whoever
// constructed it.
func (t *Tool) Cleanup(ctx context.Context) error { return nil }

// IsAvailable reports whether a scheduler is attached.
func (t *Tool) IsAvailable() bool { return t.scheduler != nil }

// HasContextLoop is false: reminders reach the buffer via the scheduler's
// own ticking loop, not a tool context loop.
func (t *Tool) HasContextLoop() bool { return false }

// ContextLoop is never called since HasContextLoop returns false.
func (t *Tool) ContextLoop(ctx context.Context, producer toolmgr.ThoughtProducer) error {
	return nil
}

// Execute dispatches "list", "create", and "cancel" commands.
func (t *Tool) Execute(ctx context.Context, command string, args []any) (toolmgr.Result, error) {
	var content string
	var err error
	switch command {
	case "list", "":
		content, err = t.list()
	case "create":
		content, err = t.create(args)
	case "cancel":
		content, err = t.cancel(args)
	default:
		return toolmgr.Result{}, coreerr.New(coreerr.UnknownCommand, ToolName, fmt.Sprintf("unknown command %q", command), nil).WithCommand(command)
	}
	if err != nil {
		return toolmgr.Result{}, err
	}
	return toolmgr.Result{Success: true, Content: content, Metadata: map[string]any{"command": command}}, nil
}

type jobSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
	NextRun string `json:"next_run,omitempty"`
}

func (t *Tool) list() (string, error) {
	jobs := t.scheduler.Jobs()
	summaries := make([]jobSummary, 0, len(jobs))
	for _, job := range jobs {
		s := jobSummary{ID: job.ID, Name: job.Name, Type: string(job.Type), Enabled: job.Enabled}
		if !job.NextRun.IsZero() {
			s.NextRun = job.NextRun.Format("2006-01-02T15:04:05Z07:00")
		}
		summaries = append(summaries, s)
	}
	out, err := json.Marshal(summaries)
	if err != nil {
		return "", coreerr.New(coreerr.ToolInternalError, ToolName, "marshal jobs", err).WithCommand("list")
	}
	return string(out), nil
}

func (t *Tool) create(args []any) (string, error) {
	if len(args) == 0 {
		return "", coreerr.New(coreerr.InvalidArgs, ToolName, "create requires a job object as the first argument", nil).WithCommand("create")
	}
	raw, ok := args[0].(map[string]any)
	if !ok {
		return "", coreerr.New(coreerr.InvalidArgs, ToolName, "create's first argument must be a job object", nil).WithCommand("create")
	}

	create := NormalizeCronJobCreate(raw)
	jobCfg, err := create.ToJobConfig()
	if err != nil {
		return "", coreerr.New(coreerr.InvalidArgs, ToolName, err.Error(), err).WithCommand("create")
	}

	job, err := t.scheduler.RegisterJob(jobCfg)
	if err != nil {
		return "", coreerr.New(coreerr.ToolInternalError, ToolName, "register job", err).WithCommand("create")
	}
	return fmt.Sprintf("reminder %q scheduled", job.ID), nil
}

func (t *Tool) cancel(args []any) (string, error) {
	if len(args) == 0 {
		return "", coreerr.New(coreerr.InvalidArgs, ToolName, "cancel requires a job id as the first argument", nil).WithCommand("cancel")
	}
	id, ok := args[0].(string)
	if !ok || id == "" {
		return "", coreerr.New(coreerr.InvalidArgs, ToolName, "cancel's first argument must be a non-empty job id", nil).WithCommand("cancel")
	}
	if !t.scheduler.UnregisterJob(id) {
		return "", coreerr.New(coreerr.InvalidArgs, ToolName, fmt.Sprintf("no reminder with id %q", id), nil).WithCommand("cancel")
	}
	return fmt.Sprintf("reminder %q cancelled", id), nil
}

// InstructionBlob describes the reminders tool's command surface, installed
// in the instruction tracker on first successful dispatch.
func (t *Tool) InstructionBlob() string {
	return `reminders: manage scheduled reminders.
  reminders.list - list all configured reminders.
  reminders.create {"id": "...", "enabled": true, "schedule": {"kind": "cron"|"every"|"at", "expr": "...", "everyMs": ..., "atMs": ...}, "payload": {"kind": "reminder", "text": "..."}} - schedule a new reminder.
  reminders.cancel "<id>" - cancel a reminder by id.`
}
