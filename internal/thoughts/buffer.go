package thoughts

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/annacore/internal/coreerr"
)

// ErrBufferOverflow is returned when a thought cannot be admitted because
// the buffer is at capacity (or the producer's (source, origin_tag) pair is
// at quota) and no evictable victim could be found to make room. It wraps a
// *coreerr.Error of kind coreerr.BufferOverflow so callers can classify it
// alongside other core errors.
var ErrBufferOverflow = errors.New("thoughts: buffer overflow")

// dedupKey identifies a content-merge bucket: same source, same origin tag,
// same normalized content.
type dedupKey struct {
	source    Source
	originTag string
	content   string
}

// quotaKey identifies a per-producer occupancy bucket for quota enforcement.
type quotaKey struct {
	source    Source
	originTag string
}

// consumedRecord is an entry in the bounded replay ring fed by drain.
type consumedRecord struct {
	t          *Thought
	consumedAt time.Time
}

// consumedRetention bounds how long RecentConsumed entries are kept before
// being pruned, independent of how large a window callers ask for.
const consumedRetention = 30 * time.Minute

// criticalEvictionNoticeThreshold is how many blocked-by-CRITICAL eviction
// attempts within a buffer's lifetime trigger a "buffer_overflow" event,
// surfacing sustained pressure rather than a single transient one.
const criticalEvictionNoticeThreshold = 3

// Config tunes a Buffer's capacity, dedup window, quotas and decay rate.
type Config struct {
	// Capacity is the hard ceiling on the number of live thoughts.
	Capacity int

	// DedupWindow is how long a recent thought's content stays eligible
	// for merge-on-match against an incoming thought.
	DedupWindow time.Duration

	// SourceQuotaFraction caps any single source's live share of Capacity,
	// e.g. 0.4 for 40%.
	SourceQuotaFraction float64

	// DecayAlpha is the per-second age-score decay coefficient used to
	// pick eviction victims under pressure.
	DecayAlpha float64
}

// Handler is notified of buffer lifecycle events.
type Handler func(t *Thought, event string)

// Buffer is a bounded, priority-classified, deduplicating thought inbox.
// It never blocks: Add and Drain only ever take a short, synchronous
// critical section under mu.
type Buffer struct {
	mu         sync.Mutex
	cfg        Config
	items      map[string]*Thought
	dedupIndex map[dedupKey]*Thought
	handlers   []Handler
	nextSeq    uint64
	sourceCnt  map[quotaKey]int
	draining   bool
	clock      func() time.Time
	consumed   []consumedRecord

	droppedDuplicates        uint64
	droppedQuota             uint64
	evicted                  uint64
	criticalEvictionAttempts uint64
}

// New creates a Buffer with the given configuration.
func New(cfg Config) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 500
	}
	if cfg.SourceQuotaFraction <= 0 || cfg.SourceQuotaFraction > 1 {
		cfg.SourceQuotaFraction = 0.4
	}
	return &Buffer{
		cfg:        cfg,
		items:      make(map[string]*Thought),
		dedupIndex: make(map[dedupKey]*Thought),
		sourceCnt:  make(map[quotaKey]int),
		clock:      time.Now,
	}
}

// OnEvent registers a handler for add/merge/evict/drain events.
func (b *Buffer) OnEvent(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Len reports the number of live thoughts.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Add admits a thought, deduplicating against recent same-content thoughts
// and evicting lower-priority victims if the buffer or the thought's source
// is at capacity. It returns the live Thought (which may be a pre-existing,
// merged one) or ErrBufferOverflow if no room could be made.
func (b *Buffer) Add(t *Thought) (*Thought, error) {
	if t == nil {
		return nil, fmt.Errorf("thoughts: nil thought")
	}
	if t.PriorityOverride != nil {
		t.Priority = *t.PriorityOverride
	}
	now := b.clock()

	b.mu.Lock()

	norm := normalizedContent(t.Content)
	dk := dedupKey{source: t.Source, originTag: t.OriginTag, content: norm}
	if existing, ok := b.dedupIndex[dk]; ok && now.Sub(existing.InsertedAt) <= b.cfg.DedupWindow {
		if t.Priority > existing.Priority {
			existing.Priority = t.Priority
		}
		if existing.Metadata == nil {
			existing.Metadata = map[string]any{}
		}
		for k, v := range t.Metadata {
			existing.Metadata[k] = v
		}
		b.droppedDuplicates++
		b.mu.Unlock()
		b.notify(existing, "merged")
		return existing, nil
	}

	var events []event

	qk := quotaKey{source: t.Source, originTag: t.OriginTag}
	quota := b.sourceQuota()
	if b.sourceCnt[qk] >= quota {
		victim, ok := b.evictWorstLocked(now, func(c *Thought) bool {
			return c.Source == t.Source && c.OriginTag == t.OriginTag
		})
		if !ok {
			b.droppedQuota++
			b.mu.Unlock()
			for _, e := range events {
				b.notify(e.t, e.kind)
			}
			return nil, b.overflowErr(fmt.Sprintf("source %q origin_tag %q at quota", t.Source, t.OriginTag))
		}
		events = append(events, event{victim, "evicted"})
	}

	if len(b.items) >= b.cfg.Capacity {
		victim, ok := b.evictWorstLocked(now, func(*Thought) bool { return true })
		if !ok {
			b.mu.Unlock()
			for _, e := range events {
				b.notify(e.t, e.kind)
			}
			return nil, b.overflowErr(fmt.Sprintf("capacity %d reached", b.cfg.Capacity))
		}
		events = append(events, event{victim, "evicted"})
	}

	if t.ID == "" {
		b.nextSeq++
		t.ID = fmt.Sprintf("th-%d-%d", now.UnixNano(), b.nextSeq)
	}
	if t.InsertedAt.IsZero() {
		t.InsertedAt = now
	}
	b.nextSeq++
	t.seq = b.nextSeq

	b.items[t.ID] = t
	b.dedupIndex[dk] = t
	b.sourceCnt[qk]++
	events = append(events, event{t, "added"})

	b.mu.Unlock()
	for _, e := range events {
		b.notify(e.t, e.kind)
	}
	return t, nil
}

// overflowErr builds a *coreerr.Error of kind coreerr.BufferOverflow wrapping
// ErrBufferOverflow, so scheduler-level handling can classify it via
// coreerr.KindOf while errors.Is(err, ErrBufferOverflow) still holds.
func (b *Buffer) overflowErr(reason string) error {
	return coreerr.New(coreerr.BufferOverflow, "", reason, ErrBufferOverflow)
}

type event struct {
	t    *Thought
	kind string
}

// sourceQuota is the maximum number of live thoughts any one source may hold.
func (b *Buffer) sourceQuota() int {
	q := int(float64(b.cfg.Capacity) * b.cfg.SourceQuotaFraction)
	if q < 1 {
		q = 1
	}
	return q
}

// evictWorstLocked removes the lowest age-score unconsumed thought matching
// filter, returning it (or ok=false if none qualified). CRITICAL thoughts
// are never evicted regardless of filter; when one is the only candidate
// filter would otherwise have accepted, criticalEvictionAttempts counts the
// blocked attempt. Caller must hold mu.
func (b *Buffer) evictWorstLocked(now time.Time, filter func(*Thought) bool) (victim *Thought, ok bool) {
	var victimScore float64
	blockedByCritical := false
	for _, c := range b.items {
		if !filter(c) {
			continue
		}
		if c.Priority == Critical {
			blockedByCritical = true
			continue
		}
		score := ageScore(c.Priority, c.InsertedAt, b.cfg.DecayAlpha, now)
		if victim == nil || score < victimScore {
			victim = c
			victimScore = score
		}
	}
	if victim == nil {
		if blockedByCritical {
			b.criticalEvictionAttempts++
		}
		return nil, false
	}
	b.removeLocked(victim)
	b.evicted++
	return victim, true
}

// removeLocked deletes a thought from all indices. Caller must hold mu.
func (b *Buffer) removeLocked(t *Thought) {
	delete(b.items, t.ID)
	b.sourceCnt[quotaKey{source: t.Source, originTag: t.OriginTag}]--
	norm := normalizedContent(t.Content)
	dk := dedupKey{source: t.Source, originTag: t.OriginTag, content: norm}
	if cur, ok := b.dedupIndex[dk]; ok && cur.ID == t.ID {
		delete(b.dedupIndex, dk)
	}
}

// Drain removes and returns up to limit thoughts in priority-descending,
// FIFO-within-priority order (limit <= 0 drains everything currently held).
// Drain is not re-entrant: calling it while a prior Drain on the same
// Buffer is still running panics, since the scheduler's single-active-cycle
// invariant guarantees this can never happen in correct use.
func (b *Buffer) Drain(limit int) []*Thought {
	return b.drain(limit, Background)
}

// DrainMinPriority is Drain gated by a minimum priority: thoughts below
// minPriority are left in the buffer. The scheduler uses this to honor
// each mode's drain gate (e.g. reactive mode only drains Medium+).
func (b *Buffer) DrainMinPriority(limit int, minPriority Priority) []*Thought {
	return b.drain(limit, minPriority)
}

func (b *Buffer) drain(limit int, minPriority Priority) []*Thought {
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		panic("thoughts: re-entrant Drain")
	}
	b.draining = true
	defer func() {
		b.mu.Lock()
		b.draining = false
		b.mu.Unlock()
	}()

	all := make([]*Thought, 0, len(b.items))
	for _, t := range b.items {
		if t.Priority < minPriority {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].seq < all[j].seq
	})
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	now := b.clock()
	for _, t := range all {
		b.removeLocked(t)
		b.consumed = append(b.consumed, consumedRecord{t: t, consumedAt: now})
	}
	b.pruneConsumedLocked(now)
	b.mu.Unlock()

	for _, t := range all {
		b.notify(t, "drained")
	}
	return all
}

// pruneConsumedLocked drops consumed-ring entries older than
// consumedRetention. Caller must hold mu.
func (b *Buffer) pruneConsumedLocked(now time.Time) {
	cut := 0
	for cut < len(b.consumed) && now.Sub(b.consumed[cut].consumedAt) > consumedRetention {
		cut++
	}
	if cut > 0 {
		b.consumed = append([]consumedRecord(nil), b.consumed[cut:]...)
	}
}

// RecentConsumed returns thoughts drained within window of now, oldest
// first, for LM replay. window <= 0 returns everything still retained
// (bounded by consumedRetention).
func (b *Buffer) RecentConsumed(window time.Duration) []*Thought {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock()
	out := make([]*Thought, 0, len(b.consumed))
	for _, c := range b.consumed {
		if window <= 0 || now.Sub(c.consumedAt) <= window {
			out = append(out, c.t)
		}
	}
	return out
}

// Stats summarizes the buffer's live contents by priority and source, plus
// cumulative lifecycle counters, for the scheduler's mode selection,
// backpressure decisions, and buffer_overflow system notices.
type Stats struct {
	Total      int
	Capacity   int
	ByPriority map[Priority]int
	BySource   map[Source]int

	// DroppedDuplicates is the cumulative count of Add calls that merged
	// into an existing thought instead of being admitted separately.
	DroppedDuplicates uint64
	// DroppedQuota is the cumulative count of Add calls rejected because
	// their (source, origin_tag) pair was at quota with no evictable
	// victim.
	DroppedQuota uint64
	// Evicted is the cumulative count of thoughts removed by
	// evictWorstLocked to make room for an incoming one.
	Evicted uint64
	// CriticalEvictionAttempts is the cumulative count of eviction
	// attempts that found no victim because every otherwise-eligible
	// candidate was CRITICAL and unconsumed.
	CriticalEvictionAttempts uint64
}

// Stats returns a snapshot of the buffer's current occupancy.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Stats{
		Total:                    len(b.items),
		Capacity:                 b.cfg.Capacity,
		ByPriority:               make(map[Priority]int),
		BySource:                 make(map[Source]int),
		DroppedDuplicates:        b.droppedDuplicates,
		DroppedQuota:             b.droppedQuota,
		Evicted:                  b.evicted,
		CriticalEvictionAttempts: b.criticalEvictionAttempts,
	}
	for _, t := range b.items {
		st.ByPriority[t.Priority]++
	}
	for qk, n := range b.sourceCnt {
		st.BySource[qk.source] += n
	}
	return st
}

// SustainedBufferOverflow reports whether CriticalEvictionAttempts has
// crossed the threshold that should surface as a buffer_overflow
// system_notice (spec.md §4.1: "cause a counter to increment, surfaced as a
// system notice if sustained").
func (b *Buffer) SustainedBufferOverflow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.criticalEvictionAttempts >= criticalEvictionNoticeThreshold
}

// Peek returns a priority/FIFO-ordered snapshot without removing anything.
func (b *Buffer) Peek() []*Thought {
	b.mu.Lock()
	defer b.mu.Unlock()
	all := make([]*Thought, 0, len(b.items))
	for _, t := range b.items {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].seq < all[j].seq
	})
	return all
}

func (b *Buffer) notify(t *Thought, event string) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()
	for _, h := range handlers {
		h(t, event)
	}
}
