package calendar

import (
	"math"
	"net/http"
	"time"
)

// Status reports whether a source (or the whole run) met its floor.
type Status string

// Source and run status values surfaced in health reports.
const (
	StatusHealthy  Status = "HEALTHY"
	StatusDegraded Status = "DEGRADED"
)

// DiscoveryPath records how a source's events were obtained this run.
type DiscoveryPath string

// Discovery path values, from best to worst.
const (
	PathPrimary     DiscoveryPath = "primary"
	PathFallback    DiscoveryPath = "fallback"
	PathLKG         DiscoveryPath = "lkg"
	PathUnavailable DiscoveryPath = "unavailable"
	PathNone        DiscoveryPath = "none"
)

// Extras keys stamped onto events by the engine.
const (
	ExtraCached           = "cached"
	ExtraDiscoveredVia    = "discovered_via"
	ExtraLKGTimestamp     = "lkg_timestamp"
	ExtraFallback         = "fallback"
	ExtraRevisedFrom      = "revised_from"
	ExtraRevisionChecksum = "revision_checksum"
)

// Event is one scheduled economic release or central-bank decision.
type Event struct {
	ID            string            `json:"id"`
	Source        string            `json:"source"`
	Agency        string            `json:"agency"`
	Country       string            `json:"country"`
	Title         string            `json:"title"`
	DateTimeUTC   time.Time         `json:"date_time_utc"`
	LocalTimezone string            `json:"event_local_tz"`
	Impact        string            `json:"impact"`
	URL           string            `json:"url"`
	Extras        map[string]string `json:"extras,omitempty"`
}

// NewEvent builds an Event with its content-derived ID and a keyword-based
// impact classification. The timestamp is normalized to UTC.
func NewEvent(source, agency, country, title string, at time.Time, localTZ, url string) Event {
	at = at.UTC()
	return Event{
		ID:            EventID(country, agency, title, at),
		Source:        source,
		Agency:        agency,
		Country:       country,
		Title:         title,
		DateTimeUTC:   at,
		LocalTimezone: localTZ,
		Impact:        ClassifyImpact(title),
		URL:           url,
	}
}

// Tag sets a provenance key on the event's extras map, allocating it if needed.
func (e *Event) Tag(key, value string) {
	if e.Extras == nil {
		e.Extras = make(map[string]string, 2)
	}
	e.Extras[key] = value
}

// Window is the inclusive UTC time range a collection run covers.
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// Days returns the window length in whole days, rounded up, never below one.
// Health floors scale on this value.
func (w Window) Days() int {
	span := w.Until.Sub(w.Since)
	if span <= 0 {
		return 1
	}
	days := int(math.Ceil(span.Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Since) && !t.After(w.Until)
}

// Request captures everything an Engine needs to fetch a URL, including the
// conditional headers the cache layer attaches.
type Request struct {
	URL    string
	Header http.Header
}

// Response is the uniform fetch result: the same shape whether the body came
// off the network, out of the conditional cache, or from a headless render.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	URL        string
	FromCache  bool
	Rendered   bool
}

// OK reports whether the response carries a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// SchemaCapture feeds the schema sentinel after a parse pass. Variant
// distinguishes locale or layout alternatives of the same source.
type SchemaCapture struct {
	Source      string
	Variant     string
	URL         string
	Content     []byte
	ParsedCount int
}

// SourceMetadata is the per-source outcome of one collection run.
type SourceMetadata struct {
	Source       string        `json:"source"`
	Path         DiscoveryPath `json:"path"`
	RawTotal     int           `json:"raw_total,omitempty"`
	RawReported  bool          `json:"-"`
	Actual       int           `json:"actual"`
	Expected     int           `json:"expected"`
	Status       Status        `json:"status"`
	FallbackUsed bool          `json:"fallback_used,omitempty"`
	LKGAgeDays   int           `json:"lkg_age_days,omitempty"`
	SchemaBreak  bool          `json:"schema_break,omitempty"`
	Error        string        `json:"error,omitempty"`
	DurationMs   int64         `json:"duration_ms"`
}

// QuorumAlert is raised once per run when multiple big feeders report raw
// feed totals under their thresholds, which usually means upstream throttling
// rather than independent outages.
type QuorumAlert struct {
	Kind      string    `json:"kind"`
	Sources   []string  `json:"sources"`
	Timestamp time.Time `json:"ts"`
}

// AlertRateLimitQuorum is the kind attached to quorum alerts.
const AlertRateLimitQuorum = "RATE_LIMIT_QUORUM"

// HealthReport summarizes a collection run.
type HealthReport struct {
	RunID           string           `json:"run_id"`
	GeneratedAt     time.Time        `json:"generated_at"`
	WindowSince     time.Time        `json:"window_since"`
	WindowUntil     time.Time        `json:"window_until"`
	Overall         Status           `json:"overall"`
	Sources         []SourceMetadata `json:"sources"`
	QuorumAlerts    []QuorumAlert    `json:"quorum_alerts,omitempty"`
	SchemaBreaks    []string         `json:"schema_breaks,omitempty"`
	TotalEvents     int              `json:"total_events"`
	DegradedSources int              `json:"degraded_sources"`
}
