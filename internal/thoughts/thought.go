// Package thoughts implements the cognitive core's thought buffer: a
// bounded, priority-classified, deduplicating inbox that candidate thoughts
// are added to and the scheduler drains in priority/FIFO order.
package thoughts

import (
	"strings"
	"time"
)

// Priority classifies how urgently a thought needs the scheduler's attention.
type Priority int

const (
	Background Priority = iota
	Low
	Medium
	High
	Critical
)

// String renders the priority for logs and metrics labels.
func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Source identifies what produced a thought, used for per-source quotas.
type Source string

const (
	SourcePlatformChat    Source = "platform_chat"
	SourceTool            Source = "tool"
	SourceReminder        Source = "reminder"
	SourceSystem          Source = "system"
	SourceSelf            Source = "self"
	SourceUserInput       Source = "user_input"
	SourceVisionResult    Source = "vision_result"
	SourceInternalReflect Source = "internal_reflection"
	SourceContextLoop     Source = "context_loop"
)

// defaultPriority maps each Source to the priority a producer gets when it
// doesn't supply a PriorityOverride. vision_result's urgency-dependent split
// (HIGH at urgency>=7, MEDIUM below) is the caller's responsibility since
// urgency lives in Metadata, not the Source itself; this table holds its
// MEDIUM base case.
var defaultPriority = map[Source]Priority{
	SourceUserInput:       High,
	SourceReminder:        High,
	SourceVisionResult:    Medium,
	SourceTool:            Medium,
	SourcePlatformChat:    Medium,
	SourceContextLoop:     Low,
	SourceInternalReflect: Low,
	SourceSelf:            Low,
	SourceSystem:          Background,
}

// DefaultPriority returns the table priority for source, or Medium if the
// source is unrecognized.
func DefaultPriority(source Source) Priority {
	if p, ok := defaultPriority[source]; ok {
		return p
	}
	return Medium
}

// Thought is a single candidate for the scheduler's attention.
type Thought struct {
	// ID is a unique identifier assigned at insertion time.
	ID string `json:"id"`

	// Source identifies the producer, used for per-source quota enforcement.
	Source Source `json:"source"`

	// OriginTag optionally names the specific tool/channel within Source,
	// e.g. the tool name for a SourceTool thought. Dedup and per-source
	// quotas key on the (Source, OriginTag) pair, not Source alone.
	OriginTag string `json:"origin_tag,omitempty"`

	// Content is the thought's textual payload, considered for deduplication
	// after whitespace normalization.
	Content string `json:"content"`

	// Priority governs drain order and decay rate. New sets it from
	// PriorityOverride when non-nil, else from defaultPriority[Source].
	Priority Priority `json:"priority"`

	// PriorityOverride, when set, is the caller-supplied explicit priority
	// for this thought, taking precedence over defaultPriority[Source]. It
	// is consulted once at construction time and has no further effect on
	// eviction: CRITICAL protection is unconditional on Priority, not on
	// whether it came from an override.
	PriorityOverride *Priority `json:"-"`

	// Metadata carries producer-specific context merged on dedup.
	Metadata map[string]any `json:"metadata,omitempty"`

	// InsertedAt records when the thought entered the buffer.
	InsertedAt time.Time `json:"inserted_at"`

	// seq breaks FIFO ties within a priority tier; assigned by the buffer.
	seq uint64
}

// normalizedContent collapses runs of whitespace for dedup comparison.
func normalizedContent(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// ageScore computes the decay-eviction priority: lower scores are evicted
// first. age_score = priority_rank - alpha*seconds_since_insert.
func ageScore(p Priority, insertedAt time.Time, alpha float64, now time.Time) float64 {
	elapsed := now.Sub(insertedAt).Seconds()
	return float64(p) - alpha*elapsed
}
