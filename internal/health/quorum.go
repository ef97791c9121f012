package health

import (
	"sort"
	"time"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

// quorumSize is how many big feeders must come up short in the same run
// before the shortfall reads as coordinated throttling rather than
// independent outages.
const quorumSize = 2

// EvaluateQuorum compares each big feeder's raw pre-filter feed total with
// its threshold and raises one aggregated alert when at least quorumSize
// of them are under. Sources that never reported a raw total (blocked,
// crashed, served from LKG) do not participate.
func EvaluateQuorum(results []calendar.SourceMetadata, thresholds map[string]int, now time.Time) *calendar.QuorumAlert {
	var under []string
	for _, result := range results {
		threshold, ok := thresholds[result.Source]
		if !ok || !result.RawReported {
			continue
		}
		if result.RawTotal < threshold {
			under = append(under, result.Source)
		}
	}
	if len(under) < quorumSize {
		return nil
	}

	sort.Strings(under)
	return &calendar.QuorumAlert{
		Kind:      calendar.AlertRateLimitQuorum,
		Sources:   under,
		Timestamp: now.UTC(),
	}
}
