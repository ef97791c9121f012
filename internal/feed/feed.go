// Package feed folds the accumulated per-source event lists into the
// final calendar: duplicate collapse with revision tracking, the final
// window re-filter, and the stable chronological sort.
package feed

import (
	"sort"
	"time"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/health"
)

// Dedupe collapses events sharing an identity. The first occurrence keeps
// its list position. A later event with the same identity and an
// unchanged revision checksum is dropped as a plain duplicate; a changed
// checksum replaces the kept event in place, whole-record, annotated with
// the revision linkage. Field-by-field merging never happens.
func Dedupe(events []calendar.Event) []calendar.Event {
	out := make([]calendar.Event, 0, len(events))
	position := make(map[string]int, len(events))

	for _, event := range events {
		pos, seen := position[event.ID]
		if !seen {
			position[event.ID] = len(out)
			out = append(out, event)
			continue
		}

		kept := out[pos]
		keptChecksum := calendar.RevisionChecksum(kept.Title, kept.DateTimeUTC, kept.URL)
		nextChecksum := calendar.RevisionChecksum(event.Title, event.DateTimeUTC, event.URL)
		if keptChecksum == nextChecksum {
			continue
		}

		event.Tag(calendar.ExtraRevisedFrom, kept.ID)
		event.Tag(calendar.ExtraRevisionChecksum, nextChecksum)
		out[pos] = event
	}
	return out
}

// Aggregate re-filters events to the window and sorts them ascending by
// timestamp. The filter is deliberately redundant with per-adapter
// windowing; adapters are plugins and not trusted to get it right. The
// sort is stable: events at the same instant keep their relative order.
func Aggregate(events []calendar.Event, window calendar.Window) []calendar.Event {
	filtered := make([]calendar.Event, 0, len(events))
	for _, event := range events {
		if window.Contains(event.DateTimeUTC) {
			filtered = append(filtered, event)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].DateTimeUTC.Before(filtered[j].DateTimeUTC)
	})
	return filtered
}

// BuildReport assembles the run's health report from per-source outcomes.
func BuildReport(
	runID string,
	generatedAt time.Time,
	window calendar.Window,
	sources []calendar.SourceMetadata,
	alerts []calendar.QuorumAlert,
	totalEvents int,
) calendar.HealthReport {
	degraded := 0
	var breaks []string
	for _, source := range sources {
		if source.Status == calendar.StatusDegraded {
			degraded++
		}
		if source.SchemaBreak {
			breaks = append(breaks, source.Source)
		}
	}
	sort.Strings(breaks)

	// A quorum alert degrades the whole run even when every source cleared
	// its own floor: coordinated throttling taints the data either way.
	overall := health.Overall(sources)
	if len(alerts) > 0 {
		overall = calendar.StatusDegraded
	}

	return calendar.HealthReport{
		RunID:           runID,
		GeneratedAt:     generatedAt.UTC(),
		WindowSince:     window.Since,
		WindowUntil:     window.Until,
		Overall:         overall,
		Sources:         sources,
		QuorumAlerts:    alerts,
		SchemaBreaks:    breaks,
		TotalEvents:     totalEvents,
		DegradedSources: degraded,
	}
}
