package thoughts

import (
	"errors"
	"testing"
	"time"
)

func TestBuffer_AddAndDrain(t *testing.T) {
	b := New(Config{Capacity: 10, DedupWindow: 5 * time.Second, SourceQuotaFraction: 0.4, DecayAlpha: 0.01})

	if _, err := b.Add(&Thought{Source: SourceSystem, Content: "low", Priority: Low}); err != nil {
		t.Fatalf("Add low: %v", err)
	}
	if _, err := b.Add(&Thought{Source: SourceSystem, Content: "critical", Priority: Critical}); err != nil {
		t.Fatalf("Add critical: %v", err)
	}
	if _, err := b.Add(&Thought{Source: SourceSystem, Content: "medium", Priority: Medium}); err != nil {
		t.Fatalf("Add medium: %v", err)
	}

	drained := b.Drain(0)
	if len(drained) != 3 {
		t.Fatalf("len(drained) = %d, want 3", len(drained))
	}
	if drained[0].Priority != Critical || drained[1].Priority != Medium || drained[2].Priority != Low {
		t.Errorf("drain order = %v, %v, %v; want critical, medium, low",
			drained[0].Priority, drained[1].Priority, drained[2].Priority)
	}
	if b.Len() != 0 {
		t.Errorf("Len() after drain = %d, want 0", b.Len())
	}
}

func TestBuffer_DrainIsFIFOWithinPriority(t *testing.T) {
	b := New(Config{Capacity: 10, SourceQuotaFraction: 0.4})

	for _, content := range []string{"first", "second", "third"} {
		if _, err := b.Add(&Thought{Source: SourceSystem, Content: content, Priority: Medium}); err != nil {
			t.Fatalf("Add %q: %v", content, err)
		}
	}

	drained := b.Drain(0)
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if drained[i].Content != w {
			t.Errorf("drained[%d].Content = %q, want %q", i, drained[i].Content, w)
		}
	}
}

func TestBuffer_DedupMergesWithinWindow(t *testing.T) {
	b := New(Config{Capacity: 10, DedupWindow: time.Minute, SourceQuotaFraction: 0.4})

	first, err := b.Add(&Thought{Source: SourceTool, Content: "build   failed", Priority: Low, Metadata: map[string]any{"a": 1}})
	if err != nil {
		t.Fatalf("Add first: %v", err)
	}
	second, err := b.Add(&Thought{Source: SourceTool, Content: "build failed", Priority: High, Metadata: map[string]any{"b": 2}})
	if err != nil {
		t.Fatalf("Add second: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("dedup should return the same thought, got different IDs %q vs %q", first.ID, second.ID)
	}
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after dedup merge", b.Len())
	}
	if first.Priority != High {
		t.Errorf("merged priority = %v, want High (max of Low, High)", first.Priority)
	}
	if first.Metadata["a"] != 1 || first.Metadata["b"] != 2 {
		t.Errorf("merged metadata = %v, want both keys present", first.Metadata)
	}
}

func TestBuffer_DedupWindowExpires(t *testing.T) {
	b := New(Config{Capacity: 10, DedupWindow: time.Millisecond, SourceQuotaFraction: 0.4})

	base := time.Now()
	b.clock = func() time.Time { return base }
	if _, err := b.Add(&Thought{Source: SourceTool, Content: "ping", Priority: Low}); err != nil {
		t.Fatalf("Add first: %v", err)
	}

	b.clock = func() time.Time { return base.Add(time.Second) }
	if _, err := b.Add(&Thought{Source: SourceTool, Content: "ping", Priority: Low}); err != nil {
		t.Fatalf("Add second: %v", err)
	}

	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2 once the dedup window has elapsed", b.Len())
	}
}

func TestBuffer_SourceQuotaEvictsWithinSource(t *testing.T) {
	b := New(Config{Capacity: 100, SourceQuotaFraction: 0.1}) // quota = 10

	for i := 0; i < 10; i++ {
		if _, err := b.Add(&Thought{Source: SourceTool, Content: uniqueContent(i), Priority: Low}); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	if _, err := b.Add(&Thought{Source: SourceTool, Content: "overflow", Priority: Critical}); err != nil {
		t.Fatalf("Add overflow victim should free a slot: %v", err)
	}

	// A different source is untouched by the tool source's quota.
	if _, err := b.Add(&Thought{Source: SourceSystem, Content: "system thought", Priority: Low}); err != nil {
		t.Fatalf("Add from a different source should not be quota-limited: %v", err)
	}
}

func TestBuffer_PriorityOverrideDoesNotProtectFromEviction(t *testing.T) {
	b := New(Config{Capacity: 1, SourceQuotaFraction: 1})

	low := High
	if _, err := b.Add(&Thought{Source: SourceSystem, Content: "overridden", Priority: Low, PriorityOverride: &low}); err != nil {
		t.Fatalf("Add overridden: %v", err)
	}

	// A non-CRITICAL priority_override is not an eviction-exemption flag:
	// a CRITICAL add must still be able to evict it to make room.
	second, err := b.Add(&Thought{Source: SourceSystem, Content: "second", Priority: Critical})
	if err != nil {
		t.Fatalf("Add critical should evict the overridden thought: %v", err)
	}
	if b.Len() != 1 || b.Peek()[0].ID != second.ID {
		t.Fatalf("expected only the critical thought to remain, got %+v", b.Peek())
	}
}

func TestBuffer_CriticalThoughtNeverEvicted(t *testing.T) {
	b := New(Config{Capacity: 1, SourceQuotaFraction: 1})

	if _, err := b.Add(&Thought{Source: SourceSystem, Content: "protected", Priority: Critical}); err != nil {
		t.Fatalf("Add critical: %v", err)
	}

	_, err := b.Add(&Thought{Source: SourceSystem, Content: "second", Priority: Critical})
	if !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("err = %v, want ErrBufferOverflow: CRITICAL thoughts must never be evicted while unconsumed", err)
	}
	if got := b.Stats().CriticalEvictionAttempts; got == 0 {
		t.Errorf("CriticalEvictionAttempts = %d, want > 0", got)
	}
}

func TestBuffer_PriorityOverrideSetsResolvedPriority(t *testing.T) {
	b := New(Config{Capacity: 10, SourceQuotaFraction: 0.4})

	override := Critical
	added, err := b.Add(&Thought{Source: SourceTool, Content: "elevated", Priority: Low, PriorityOverride: &override})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.Priority != Critical {
		t.Errorf("Priority = %v, want Critical from PriorityOverride", added.Priority)
	}
}

func TestBuffer_DrainNotReentrant(t *testing.T) {
	b := New(Config{Capacity: 10, SourceQuotaFraction: 0.4})
	b.mu.Lock()
	b.draining = true
	b.mu.Unlock()

	defer func() {
		if recover() == nil {
			t.Fatal("expected Drain to panic on re-entry")
		}
	}()
	b.Drain(0)
}

func TestBuffer_DrainRespectsLimit(t *testing.T) {
	b := New(Config{Capacity: 10, SourceQuotaFraction: 0.4})
	for i := 0; i < 5; i++ {
		if _, err := b.Add(&Thought{Source: SourceSystem, Content: uniqueContent(i), Priority: Medium}); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	drained := b.Drain(2)
	if len(drained) != 2 {
		t.Fatalf("len(drained) = %d, want 2", len(drained))
	}
	if b.Len() != 3 {
		t.Fatalf("Len() after partial drain = %d, want 3", b.Len())
	}
}

func TestBuffer_DedupKeysByOriginTagToo(t *testing.T) {
	b := New(Config{Capacity: 10, DedupWindow: time.Minute, SourceQuotaFraction: 0.4})

	if _, err := b.Add(&Thought{Source: SourceTool, OriginTag: "weather", Content: "done"}); err != nil {
		t.Fatalf("Add weather: %v", err)
	}
	if _, err := b.Add(&Thought{Source: SourceTool, OriginTag: "clock", Content: "done"}); err != nil {
		t.Fatalf("Add clock: %v", err)
	}

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2: same content/source but different origin_tag must not collapse", b.Len())
	}
	if got := b.Stats().DroppedDuplicates; got != 0 {
		t.Errorf("DroppedDuplicates = %d, want 0", got)
	}
}

func TestBuffer_DedupCountsDroppedDuplicates(t *testing.T) {
	b := New(Config{Capacity: 10, DedupWindow: time.Minute, SourceQuotaFraction: 0.4})

	if _, err := b.Add(&Thought{Source: SourcePlatformChat, OriginTag: "twitch:alice", Content: "hello"}); err != nil {
		t.Fatalf("Add first: %v", err)
	}
	if _, err := b.Add(&Thought{Source: SourcePlatformChat, OriginTag: "twitch:alice", Content: "hello"}); err != nil {
		t.Fatalf("Add second: %v", err)
	}

	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
	if got := b.Stats().DroppedDuplicates; got != 1 {
		t.Errorf("DroppedDuplicates = %d, want 1", got)
	}
}

func TestBuffer_QuotaKeysByOriginTagToo(t *testing.T) {
	b := New(Config{Capacity: 100, SourceQuotaFraction: 0.1}) // quota = 10 per (source, origin_tag)

	for i := 0; i < 10; i++ {
		if _, err := b.Add(&Thought{Source: SourceContextLoop, OriginTag: "tool-a", Content: uniqueContent(i), Priority: Low}); err != nil {
			t.Fatalf("Add tool-a %d: %v", i, err)
		}
	}
	// tool-b has its own quota bucket and is unaffected by tool-a's fill.
	if _, err := b.Add(&Thought{Source: SourceContextLoop, OriginTag: "tool-b", Content: "b-thought", Priority: Low}); err != nil {
		t.Fatalf("Add tool-b should not be quota-limited by tool-a: %v", err)
	}
	if b.Len() != 11 {
		t.Fatalf("Len() = %d, want 11", b.Len())
	}

	// An 11th tool-a thought must evict one of tool-a's own, not tool-b's.
	if _, err := b.Add(&Thought{Source: SourceContextLoop, OriginTag: "tool-a", Content: "overflow", Priority: Critical}); err != nil {
		t.Fatalf("Add overflow victim should free a slot within tool-a's quota: %v", err)
	}
	found := false
	for _, th := range b.Peek() {
		if th.OriginTag == "tool-b" {
			found = true
		}
	}
	if !found {
		t.Error("tool-b's thought should survive tool-a's quota eviction")
	}
}

func TestBuffer_RecentConsumedReturnsDrained(t *testing.T) {
	b := New(Config{Capacity: 10, SourceQuotaFraction: 0.4})
	if _, err := b.Add(&Thought{Source: SourceSystem, Content: "replay me", Priority: Medium}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	drained := b.Drain(0)
	if len(drained) != 1 {
		t.Fatalf("len(drained) = %d, want 1", len(drained))
	}

	recent := b.RecentConsumed(time.Hour)
	if len(recent) != 1 || recent[0].Content != "replay me" {
		t.Fatalf("RecentConsumed = %+v, want the just-drained thought", recent)
	}

	if got := b.RecentConsumed(0); len(got) != 1 {
		t.Errorf("RecentConsumed(0) (no window limit) = %d entries, want 1", len(got))
	}
}

func uniqueContent(i int) string {
	return "content-" + string(rune('a'+i))
}
