package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowDaysRoundsUpAndFloorsAtOne(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		until time.Time
		want  int
	}{
		{"thirty days", since.AddDate(0, 0, 30), 30},
		{"sixty days", since.AddDate(0, 0, 60), 60},
		{"partial day rounds up", since.Add(36 * time.Hour), 2},
		{"zero span floors at one", since, 1},
		{"inverted span floors at one", since.Add(-24 * time.Hour), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := Window{Since: since, Until: tc.until}
			require.Equal(t, tc.want, w.Days())
		})
	}
}

func TestWindowContainsIsInclusive(t *testing.T) {
	t.Parallel()

	w := Window{
		Since: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC),
	}
	require.True(t, w.Contains(w.Since))
	require.True(t, w.Contains(w.Until))
	require.True(t, w.Contains(w.Since.AddDate(0, 0, 15)))
	require.False(t, w.Contains(w.Since.Add(-time.Second)))
	require.False(t, w.Contains(w.Until.Add(time.Second)))
}

func TestClassifyImpact(t *testing.T) {
	t.Parallel()

	cases := []struct {
		title string
		want  string
	}{
		{"Consumer Price Index, March", ImpactHigh},
		{"GDP Growth Rate (Quarterly)", ImpactHigh},
		{"FOMC Meeting", ImpactHigh},
		{"Official Cash Rate decision", ImpactHigh},
		{"Labour Force Survey", ImpactMedium},
		{"Retail Sales", ImpactMedium},
		{"International Migration Statistics", ImpactLow},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyImpact(tc.title), "title %q", tc.title)
	}
}

func TestEventTagAllocatesExtras(t *testing.T) {
	t.Parallel()

	var ev Event
	ev.Tag(ExtraCached, "true")
	ev.Tag(ExtraDiscoveredVia, string(PathLKG))
	require.Equal(t, "true", ev.Extras[ExtraCached])
	require.Equal(t, "lkg", ev.Extras[ExtraDiscoveredVia])
}

func TestResponseOK(t *testing.T) {
	t.Parallel()

	require.True(t, Response{StatusCode: 200}.OK())
	require.True(t, Response{StatusCode: 204}.OK())
	require.False(t, Response{StatusCode: 304}.OK())
	require.False(t, Response{StatusCode: 403}.OK())
	require.False(t, Response{StatusCode: 500}.OK())
}
