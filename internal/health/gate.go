// Package health decides whether each source delivered enough events this
// run. Every source carries a baseline floor calibrated against a 60-day
// window; the gate scales that floor to the requested window, compares it
// with the delivered count, and classifies the source. It also persists
// cross-run counters and raises the rate-limit quorum alert when several
// big feeders come up short together.
package health

import (
	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

// baselineWindowDays is the window the per-source floors are calibrated
// against.
const baselineWindowDays = 60

// ExpectedFloor scales a source's 60-day baseline floor to the given
// window, rounding up. Every source is expected to produce at least one
// event, including the sporadic ones whose baseline is zero.
func ExpectedFloor(baseFloor, windowDays int) int {
	if baseFloor < 0 {
		baseFloor = 0
	}
	if windowDays < 1 {
		windowDays = 1
	}
	scaled := (baseFloor*windowDays + baselineWindowDays - 1) / baselineWindowDays
	if scaled < 1 {
		return 1
	}
	return scaled
}

// Classify returns the source status given its final delivered count. A
// source that met its floor is still degraded when it needed its fallback
// and is marked to degrade on shortfall: the fallback's static schedule is
// a stopgap, not parity with the live feed.
func Classify(actual, expected int, fallbackUsed, degradeOnShortfall bool) calendar.Status {
	if actual < expected {
		return calendar.StatusDegraded
	}
	if fallbackUsed && degradeOnShortfall {
		return calendar.StatusDegraded
	}
	return calendar.StatusHealthy
}

// Overall reduces per-source outcomes to the run status: one degraded
// source degrades the run.
func Overall(sources []calendar.SourceMetadata) calendar.Status {
	for _, s := range sources {
		if s.Status == calendar.StatusDegraded {
			return calendar.StatusDegraded
		}
	}
	return calendar.StatusHealthy
}
