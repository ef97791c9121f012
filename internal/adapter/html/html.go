// Package html scrapes release-calendar pages that publish no machine feed
// (ONS, ABS, central banks). Each source supplies a small selector table;
// pages that turn out to be JavaScript shells are retried through the
// headless renderer.
package html

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/headless/detector"
)

// Source describes one HTML release calendar and the selectors to read it.
type Source struct {
	// Key is the registry key stamped on events as their source.
	Key     string
	Country string
	Agency  string
	// Timezone is the agency's home IANA zone for wall-clock timestamps.
	Timezone string
	// URLs are the calendar pages. Multi-page sources accumulate across all
	// of them; duplicates collapse by event identity.
	URLs []string
	// RowSelector matches one release entry. Within a row, TimeSelector
	// finds the timestamp, TitleSelector the release name, and LinkSelector
	// the detail page. TitleSelector may be empty: the first link or heading
	// text inside the row is used instead.
	RowSelector   string
	TimeSelector  string
	TitleSelector string
	LinkSelector  string
	// FixedTitle switches the source to schedule mode: every timestamp on
	// the page becomes one event with this title (rate decisions, council
	// meetings). RowSelector is ignored.
	FixedTitle string
	// ValidPaths restricts detail links: a row is dropped unless its href
	// contains one of these fragments.
	ValidPaths []string
	// MaxRows caps how many rows are read per page. Zero means no cap.
	MaxRows int
	// DefaultHour/DefaultMinute is the local release time assumed when a
	// page only publishes a date. Zero means 10:00.
	DefaultHour   int
	DefaultMinute int
}

// Scraper fetches and parses one HTML source.
type Scraper struct {
	src      Source
	loc      *time.Location
	detector *detector.Heuristic
	hour     int
	minute   int
}

// New validates the source and resolves its timezone once. The detector may
// be nil, which disables headless promotion for this source.
func New(src Source, det *detector.Heuristic) (*Scraper, error) {
	if src.Key == "" {
		return nil, errors.New("html source key required")
	}
	if len(src.URLs) == 0 {
		return nil, fmt.Errorf("html source %s has no urls", src.Key)
	}
	if src.FixedTitle == "" && src.RowSelector == "" {
		return nil, fmt.Errorf("html source %s needs a row selector or a fixed title", src.Key)
	}
	loc, err := time.LoadLocation(src.Timezone)
	if err != nil {
		return nil, fmt.Errorf("html source %s timezone: %w", src.Key, err)
	}
	if src.TimeSelector == "" {
		src.TimeSelector = "time[datetime]"
	}
	if src.LinkSelector == "" {
		src.LinkSelector = "a[href]"
	}
	hour, minute := src.DefaultHour, src.DefaultMinute
	if hour == 0 && minute == 0 {
		hour = 10
	}
	return &Scraper{src: src, loc: loc, detector: det, hour: hour, minute: minute}, nil
}

// Fetch scrapes every configured page, promoting to a headless render when
// the static body looks like a script shell. The pre-window row count across
// all pages is reported as the source's raw total.
func (s *Scraper) Fetch(ctx context.Context, ses calendar.Session, window calendar.Window) ([]calendar.Event, error) {
	logger := ses.Logger()

	var (
		events  []calendar.Event
		seen    = make(map[string]struct{})
		total   int
		fetched bool
		lastErr error
	)

	for i, pageURL := range s.src.URLs {
		resp, err := ses.Get(ctx, pageURL)
		if err != nil {
			lastErr = err
			logger.Warn("calendar page fetch failed", zap.String("url", pageURL), zap.Error(err))
			continue
		}
		if s.detector != nil && s.detector.ShouldPromote(resp) {
			rendered, rerr := ses.GetRendered(ctx, pageURL)
			switch {
			case rerr != nil:
				logger.Warn("headless render unavailable, using static body",
					zap.String("url", pageURL), zap.Error(rerr))
			case rendered.OK():
				resp = rendered
			}
		}
		if !resp.OK() {
			logger.Warn("calendar page returned status",
				zap.String("url", pageURL),
				zap.Int("status", resp.StatusCode))
			continue
		}
		fetched = true

		entries := s.parse(resp.Body, pageURL)
		total += len(entries)
		ses.CaptureSchema(ctx, calendar.SchemaCapture{
			Variant:     pageVariant(i, len(s.src.URLs)),
			URL:         resp.URL,
			Content:     resp.Body,
			ParsedCount: len(entries),
		})

		inWindow := 0
		for _, en := range entries {
			at := en.at.UTC()
			if !window.Contains(at) {
				continue
			}
			ev := calendar.NewEvent(s.src.Key, s.src.Agency, s.src.Country, en.title, at, s.src.Timezone, en.href)
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			events = append(events, ev)
			inWindow++
		}
		logger.Info("calendar page parsed",
			zap.String("url", pageURL),
			zap.Int("rows", len(entries)),
			zap.Int("in_window", inWindow))
	}

	ses.ReportDiscovery(calendar.PathPrimary, total)
	if !fetched && lastErr != nil {
		return nil, lastErr
	}
	return events, nil
}

// entry is one timed row before window filtering.
type entry struct {
	title string
	href  string
	at    time.Time
}

func (s *Scraper) parse(body []byte, pageURL string) []entry {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var entries []entry
	if s.src.FixedTitle != "" {
		doc.Find(s.src.TimeSelector).EachWithBreak(func(i int, node *goquery.Selection) bool {
			if s.src.MaxRows > 0 && i >= s.src.MaxRows {
				return false
			}
			if at, ok := s.timestampOf(node); ok {
				entries = append(entries, entry{title: s.src.FixedTitle, href: pageURL, at: at})
			}
			return true
		})
		return entries
	}

	doc.Find(s.src.RowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		if s.src.MaxRows > 0 && i >= s.src.MaxRows {
			return false
		}
		node := row.Find(s.src.TimeSelector).First()
		if node.Length() == 0 {
			return true
		}
		at, ok := s.timestampOf(node)
		if !ok {
			return true
		}
		title := s.titleOf(row)
		if title == "" {
			return true
		}
		href := s.linkOf(row, base, pageURL)
		if len(s.src.ValidPaths) > 0 && !pathAllowed(href, s.src.ValidPaths) {
			return true
		}
		entries = append(entries, entry{title: title, href: href, at: at})
		return true
	})
	return entries
}

// timestampOf reads the node's datetime attribute, falling back to its text.
func (s *Scraper) timestampOf(node *goquery.Selection) (time.Time, bool) {
	stamp, ok := node.Attr("datetime")
	if !ok || strings.TrimSpace(stamp) == "" {
		stamp = node.Text()
	}
	at, err := parseWhen(strings.TrimSpace(stamp), s.loc, s.hour, s.minute)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func (s *Scraper) titleOf(row *goquery.Selection) string {
	if s.src.TitleSelector != "" {
		return cleanTitle(row.Find(s.src.TitleSelector).First().Text())
	}
	if title := cleanTitle(row.Find("a[href]").First().Text()); title != "" {
		return title
	}
	return cleanTitle(row.Find("h1, h2, h3, h4, strong").First().Text())
}

func (s *Scraper) linkOf(row *goquery.Selection, base *url.URL, pageURL string) string {
	href, ok := row.Find(s.src.LinkSelector).First().Attr("href")
	if !ok || href == "" {
		return pageURL
	}
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return pageURL
	}
	return base.ResolveReference(ref).String()
}

func pathAllowed(href string, fragments []string) bool {
	for _, fragment := range fragments {
		if strings.Contains(href, fragment) {
			return true
		}
	}
	return false
}

func cleanTitle(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// pageVariant keeps each page of a multi-page source under its own schema
// fingerprint.
func pageVariant(i, total int) string {
	if total == 1 {
		return ""
	}
	return "p" + strconv.Itoa(i)
}

// timeLayouts covers the stamp formats the tracked agencies publish, from
// full RFC 3339 down to bare dates. Date-only forms get the source's default
// release time.
var timeLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{layout: time.RFC3339},
	{layout: "2006-01-02T15:04:05"},
	{layout: "2006-01-02T15:04"},
	{layout: "2006-01-02 15:04"},
	{layout: "2006-01-02", dateOnly: true},
	{layout: "2 January 2006 15:04"},
	{layout: "2 January 2006", dateOnly: true},
	{layout: "January 2, 2006", dateOnly: true},
	{layout: "Monday, 2 January 2006, 15:04"},
	{layout: "Monday, 2 January 2006", dateOnly: true},
}

func parseWhen(stamp string, loc *time.Location, defaultHour, defaultMinute int) (time.Time, error) {
	for _, entry := range timeLayouts {
		at, err := time.ParseInLocation(entry.layout, stamp, loc)
		if err != nil {
			continue
		}
		if entry.dateOnly {
			at = time.Date(at.Year(), at.Month(), at.Day(), defaultHour, defaultMinute, 0, 0, loc)
		}
		return at, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", stamp)
}
