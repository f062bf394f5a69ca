// Package toolmgr implements the tool manager and lifecycle state machine:
// registration, availability tracking, cooldown-gated dispatch, and
// cooperative background context loops.
package toolmgr

import (
	"context"

	"github.com/haasonsaas/annacore/internal/thoughts"
)

// Tool is the contract every registered capability implements.
type Tool struct {
	// Name is the tool's registered name, referenced by actions.Action.Tool.
	Name string

	// Impl is the concrete behavior backing this tool.
	Impl Implementation
}

// Implementation is the behavioral contract a Tool must satisfy.
type Implementation interface {
	// Initialize prepares the tool for use (opening connections, warming
	// caches, etc). Called once during the unregistered->initializing
	// transition.
	Initialize(ctx context.Context) error

	// Cleanup releases resources. Called once during tearing_down.
	Cleanup(ctx context.Context) error

	// IsAvailable reports whether the tool can currently serve requests.
	// Polled after Initialize and consulted on every dispatch.
	IsAvailable() bool

	// HasContextLoop reports whether this tool runs a cooperative
	// background task that produces its own thoughts.
	HasContextLoop() bool

	// ContextLoop runs the tool's background task, if HasContextLoop is
	// true. It may only enqueue thoughts via producer; it must never call
	// back into the tool manager's Dispatch. ContextLoop must return
	// promptly when ctx is cancelled.
	ContextLoop(ctx context.Context, producer ThoughtProducer) error

	// Execute runs a single command with positional args and returns its
	// structured result.
	Execute(ctx context.Context, command string, args []any) (Result, error)

	// InstructionBlob returns the tool's full command surface description,
	// installed in the instruction tracker on first successful dispatch.
	InstructionBlob() string
}

// Result is a tool's structured execution outcome: the visible content a
// tool_result thought carries, plus side-channel metadata and guidance
// that don't belong in Content itself.
type Result struct {
	// Success reports whether the command completed as the tool intended.
	// A tool may report Success=false without returning an error when the
	// outcome is a normal, expected "no" (e.g. a lookup that found
	// nothing) rather than a failure worth the error taxonomy.
	Success bool

	// Content is the textual result enqueued as a tool_result thought.
	Content string

	// Metadata carries structured, tool-specific detail about the call
	// (e.g. a command name, a record count) alongside Content.
	Metadata map[string]any

	// Guidance is optional follow-up advice for the LM on its next cycle
	// (e.g. "retry with a narrower date range"), kept distinct from
	// Content so callers can render it separately.
	Guidance string
}

// ThoughtProducer is the narrow interface a tool's context loop is given:
// it can enqueue thoughts but cannot dispatch tool calls or drain the
// buffer, preserving the single-active-cycle invariant.
type ThoughtProducer interface {
	Add(t *thoughts.Thought) (*thoughts.Thought, error)
}
