// Package coreerr defines the cognitive core's shared error taxonomy, used
// to classify failures from action parsing, tool dispatch, and LM calls so
// the scheduler can decide whether a failure is scoped to a single action
// or should abort the cycle.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a core error for retry logic and scheduler decisions.
type Kind string

const (
	UnknownTool       Kind = "unknown_tool"
	UnknownCommand    Kind = "unknown_command"
	InvalidArgs       Kind = "invalid_args"
	ToolUnavailable   Kind = "tool_unavailable"
	RateLimited       Kind = "rate_limited"
	Timeout           Kind = "timeout"
	ToolInternalError Kind = "tool_internal_error"
	LMTimeout         Kind = "lm_timeout"
	LMMalformed       Kind = "lm_malformed"
	BufferOverflow    Kind = "buffer_overflow"
)

// IsRetryable reports whether retrying the originating operation may help.
func (k Kind) IsRetryable() bool {
	switch k {
	case RateLimited, Timeout, LMTimeout:
		return true
	default:
		return false
	}
}

// Scoped reports whether a failure of this kind is confined to a single
// action (true) or invalidates the whole LM response / cycle (false).
func (k Kind) Scoped() bool {
	switch k {
	case LMMalformed:
		return false
	default:
		return true
	}
}

// Error is a structured, classified core error.
type Error struct {
	Kind    Kind
	Tool    string
	Command string
	Message string
	Cause   error
}

// New builds an Error of the given kind.
func New(kind Kind, tool, message string, cause error) *Error {
	return &Error{Kind: kind, Tool: tool, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	ref := e.Tool
	if e.Command != "" {
		ref = fmt.Sprintf("%s.%s", e.Tool, e.Command)
	}
	switch {
	case ref != "" && e.Message != "":
		return fmt.Sprintf("[%s:%s] %s", e.Kind, ref, e.Message)
	case ref != "":
		return fmt.Sprintf("[%s:%s]", e.Kind, ref)
	case e.Message != "":
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCommand sets the sub-command reference for tool.command errors.
func (e *Error) WithCommand(cmd string) *Error {
	e.Command = cmd
	return e
}

// As extracts a *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it wraps a *Error, or "" otherwise.
func KindOf(err error) Kind {
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return ""
}
