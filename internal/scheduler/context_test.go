package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/annacore/internal/instructions"
	"github.com/haasonsaas/annacore/internal/memoryadapter"
	"github.com/haasonsaas/annacore/internal/thoughts"
)

type fakeMemoryAdapter struct {
	snippets []memoryadapter.Snippet
}

func (f fakeMemoryAdapter) Retrieve(ctx context.Context, query string, k int) ([]memoryadapter.Snippet, error) {
	return f.snippets, nil
}

type charCounter struct{}

func (charCounter) Count(s string) int { return len(s) }

func TestAssembleContext_TrimsSupportingThenRetrieved(t *testing.T) {
	focus := &thoughts.Thought{Source: thoughts.SourcePlatformChat, Content: "focus", Priority: thoughts.High}
	supporting := &thoughts.Thought{Source: thoughts.SourceSystem, Content: "supporting content that is long", Priority: thoughts.Low}
	drained := []*thoughts.Thought{focus, supporting}

	tracker := instructions.NewTracker(time.Minute)
	adapter := fakeMemoryAdapter{snippets: []memoryadapter.Snippet{{Content: "snippet one"}, {Content: "snippet two"}}}

	budget := len(focus.Content)
	w, err := assembleContext(context.Background(), drained, nil, adapter, tracker, "", budget, charCounter{}, time.Minute)
	if err != nil {
		t.Fatalf("assembleContext: %v", err)
	}
	if len(w.Supporting) != 0 {
		t.Errorf("expected supporting thoughts trimmed to fit budget, got %d", len(w.Supporting))
	}
	if len(w.Retrieved) != 0 {
		t.Errorf("expected retrieved snippets trimmed to fit budget, got %d", len(w.Retrieved))
	}
	if w.Focus != focus {
		t.Error("focus must never be dropped")
	}
}

func TestAssembleContext_NoDrainedIsError(t *testing.T) {
	tracker := instructions.NewTracker(time.Minute)
	_, err := assembleContext(context.Background(), nil, nil, memoryadapter.NullAdapter{}, tracker, "", 100, wordCounter{}, time.Minute)
	if !errors.Is(err, ErrNoFocus) {
		t.Errorf("expected ErrNoFocus, got %v", err)
	}
}

func TestAssembleContext_IncludesLiveInstructions(t *testing.T) {
	focus := &thoughts.Thought{Source: thoughts.SourcePlatformChat, Content: "focus", Priority: thoughts.High}
	tracker := instructions.NewTracker(time.Minute)
	tracker.Register("echo", "echo <text>")
	tracker.Renew("echo")

	w, err := assembleContext(context.Background(), []*thoughts.Thought{focus}, nil, memoryadapter.NullAdapter{}, tracker, "", 0, wordCounter{}, time.Minute)
	if err != nil {
		t.Fatalf("assembleContext: %v", err)
	}
	if len(w.InstructionBlobs) != 1 || w.InstructionBlobs[0].ToolName != "echo" {
		t.Errorf("expected live echo instruction record, got %+v", w.InstructionBlobs)
	}
}

func TestContextWindow_ToRequest(t *testing.T) {
	focus := &thoughts.Thought{Source: thoughts.SourcePlatformChat, Content: "hello", Priority: thoughts.High}
	w := &ContextWindow{System: "sys", Focus: focus}
	req := w.toRequest("claude-x")
	if req.Model != "claude-x" {
		t.Errorf("Model = %q, want claude-x", req.Model)
	}
	if len(req.Messages) != 1 {
		t.Fatalf("expected exactly one message for the focus, got %d", len(req.Messages))
	}
	if req.Messages[0].Content == "" {
		t.Error("expected focus message to carry content")
	}
}
