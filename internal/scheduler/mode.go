package scheduler

import "github.com/haasonsaas/annacore/internal/thoughts"

// Mode is one of the scheduler's enumerated operating modes. Mode
// selection is a pure function of buffer state and cycle counter, so it
// stays deterministic given the same inputs.
type Mode string

const (
	// Reactive is chosen when a High+ thought is waiting: respond promptly
	// with a tight, drain-gated context.
	Reactive Mode = "reactive"

	// Deliberative is chosen when nothing urgent is waiting but the buffer
	// holds lower-priority work: build a richer context, possibly
	// producing only an internal reflection.
	Deliberative Mode = "deliberative"

	// Idle means there is nothing to do this cycle; no LM call is made.
	Idle Mode = "idle"

	// Maintenance runs periodically to summarize recently consumed
	// thoughts and prune expired instruction records.
	Maintenance Mode = "maintenance"
)

// selectMode picks a mode from buffer stats and the current cycle count.
// maintenanceEvery of 0 disables periodic maintenance cycles.
func selectMode(stats thoughts.Stats, cycleCount, maintenanceEvery int) Mode {
	if maintenanceEvery > 0 && cycleCount > 0 && cycleCount%maintenanceEvery == 0 {
		return Maintenance
	}
	if stats.ByPriority[thoughts.Critical] > 0 || stats.ByPriority[thoughts.High] > 0 {
		return Reactive
	}
	if stats.Total == 0 {
		return Idle
	}
	return Deliberative
}

// minPriorityFor returns the drain gate for a mode: the lowest priority a
// thought may have and still be drained this cycle.
func minPriorityFor(mode Mode) thoughts.Priority {
	if mode == Reactive {
		return thoughts.Medium
	}
	return thoughts.Background
}
