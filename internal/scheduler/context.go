package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/annacore/internal/instructions"
	"github.com/haasonsaas/annacore/internal/llm"
	"github.com/haasonsaas/annacore/internal/memoryadapter"
	"github.com/haasonsaas/annacore/internal/thoughts"
)

// ErrNoFocus is returned when assembleContext is called with no drained
// thoughts to build a focus from.
var ErrNoFocus = errors.New("scheduler: no drained thoughts to assemble a focus from")

// ContextWindow is the assembled per-cycle context (spec.md §3.4): one
// focus thought, supporting thoughts, retrieved memory snippets, and live
// tool instruction blobs.
type ContextWindow struct {
	System           string
	Focus            *thoughts.Thought
	Supporting       []*thoughts.Thought
	Retrieved        []memoryadapter.Snippet
	InstructionBlobs []instructions.Record

	// RecentlyConsumed holds thoughts drained within RecentConsumedWindow
	// of now, for LM replay per spec.md §3.4 ("unconsumed + recently
	// consumed thoughts"). It is never trimmed by trimToBudget: replay
	// context is a best-effort addition, not part of the budgeted core.
	RecentlyConsumed []*thoughts.Thought
}

// assembleContext builds a ContextWindow from a drain, querying the memory
// adapter with the focus's content and trimming supporting context and
// retrieval snippets to fit budget — never the focus or system prompt.
// Instruction blobs are appended after trimming, unbudgeted, matching
// spec.md §4.2 steps 5-6.
func assembleContext(ctx context.Context, drained []*thoughts.Thought, buffer *thoughts.Buffer, mem memoryadapter.Adapter, tracker *instructions.Tracker, systemPrompt string, budget int, counter TokenCounter, recentConsumedWindow time.Duration) (*ContextWindow, error) {
	if len(drained) == 0 {
		return nil, ErrNoFocus
	}

	focus := drained[0]
	supporting := append([]*thoughts.Thought(nil), drained[1:]...)

	snippets, err := mem.Retrieve(ctx, focus.Content, 5)
	if err != nil {
		snippets = nil
	}

	w := &ContextWindow{
		System:     systemPrompt,
		Focus:      focus,
		Supporting: supporting,
		Retrieved:  snippets,
	}
	trimToBudget(w, budget, counter)
	w.InstructionBlobs = tracker.Live()
	if buffer != nil {
		w.RecentlyConsumed = buffer.RecentConsumed(recentConsumedWindow)
	}
	return w, nil
}

// trimToBudget drops the lowest-ranked supporting thought first, then the
// oldest retrieval snippet, until the window fits budget. The focus and
// system prompt are never dropped.
func trimToBudget(w *ContextWindow, budget int, counter TokenCounter) {
	if budget <= 0 {
		return
	}
	used := counter.Count(w.System) + counter.Count(w.Focus.Content)
	for _, t := range w.Supporting {
		used += counter.Count(t.Content)
	}
	for _, s := range w.Retrieved {
		used += counter.Count(s.Content)
	}

	for used > budget && len(w.Supporting) > 0 {
		last := w.Supporting[len(w.Supporting)-1]
		used -= counter.Count(last.Content)
		w.Supporting = w.Supporting[:len(w.Supporting)-1]
	}
	for used > budget && len(w.Retrieved) > 0 {
		last := w.Retrieved[len(w.Retrieved)-1]
		used -= counter.Count(last.Content)
		w.Retrieved = w.Retrieved[:len(w.Retrieved)-1]
	}
}

// toRequest renders the window into an llm.Request: instruction blobs and
// retrieval snippets fold into the system prompt, supporting thoughts and
// the focus become the user-turn messages, focus last.
func (w *ContextWindow) toRequest(model string) *llm.Request {
	var sys strings.Builder
	sys.WriteString(w.System)

	if len(w.InstructionBlobs) > 0 {
		sys.WriteString("\n\nLive tool instructions:\n")
		for _, rec := range w.InstructionBlobs {
			fmt.Fprintf(&sys, "- %s: %s\n", rec.ToolName, rec.Blob)
		}
	}
	if len(w.Retrieved) > 0 {
		sys.WriteString("\n\nRelevant memory:\n")
		for _, s := range w.Retrieved {
			fmt.Fprintf(&sys, "- %s\n", s.Content)
		}
	}
	if len(w.RecentlyConsumed) > 0 {
		sys.WriteString("\n\nRecently handled:\n")
		for _, t := range w.RecentlyConsumed {
			fmt.Fprintf(&sys, "- [%s] %s\n", t.Source, t.Content)
		}
	}

	messages := make([]llm.Message, 0, len(w.Supporting)+1)
	for _, t := range w.Supporting {
		messages = append(messages, llm.Message{
			Role:    "user",
			Content: fmt.Sprintf("[%s/%s] %s", t.Source, t.Priority, t.Content),
		})
	}
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: fmt.Sprintf("[%s/%s] %s", w.Focus.Source, w.Focus.Priority, w.Focus.Content),
	})

	return &llm.Request{
		Model:    model,
		System:   sys.String(),
		Messages: messages,
	}
}
