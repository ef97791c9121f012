// Package ics turns ICS release calendars (BLS, Eurostat, Stats NZ) into
// calendar events. The parser is deliberately small: the publishing agencies
// emit plain VEVENT lists, so full RFC 5545 recurrence handling is not
// needed.
package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

// Source describes one ICS-published release calendar.
type Source struct {
	// Key is the registry key stamped on events as their source.
	Key string
	// URL is the feed endpoint. AltURLs are tried in order when it yields
	// nothing; some agencies expose the same calendar on several paths.
	URL     string
	AltURLs []string
	Country string
	Agency  string
	// Timezone is the agency's home IANA zone, used for floating and
	// date-only DTSTART values and recorded on every event.
	Timezone string
	// DefaultHour/DefaultMinute is the local release time assumed for
	// date-only entries. Zero means 10:00.
	DefaultHour   int
	DefaultMinute int
	// ReleaseTimeLocal, when set, is stamped into event extras so consumers
	// see the agency's usual publication time.
	ReleaseTimeLocal string
}

// Calendar fetches and parses one ICS source.
type Calendar struct {
	src    Source
	loc    *time.Location
	hour   int
	minute int
}

// New validates the source and resolves its timezone once.
func New(src Source) (*Calendar, error) {
	if src.Key == "" {
		return nil, errors.New("ics source key required")
	}
	if src.URL == "" {
		return nil, fmt.Errorf("ics source %s has no url", src.Key)
	}
	loc, err := time.LoadLocation(src.Timezone)
	if err != nil {
		return nil, fmt.Errorf("ics source %s timezone: %w", src.Key, err)
	}
	hour, minute := src.DefaultHour, src.DefaultMinute
	if hour == 0 && minute == 0 {
		hour = 10
	}
	return &Calendar{src: src, loc: loc, hour: hour, minute: minute}, nil
}

// Fetch pulls the feed through the session, reports the raw VEVENT count for
// quorum detection, feeds the sentinel, and returns the in-window events.
// Alternate URLs are attempted until one produces events. A transport error
// is returned only when no endpoint could be fetched at all.
func (c *Calendar) Fetch(ctx context.Context, ses calendar.Session, window calendar.Window) ([]calendar.Event, error) {
	logger := ses.Logger()
	urls := append([]string{c.src.URL}, c.src.AltURLs...)

	var lastErr error
	fetched := false
	for i, url := range urls {
		resp, err := ses.Get(ctx, url)
		if err != nil {
			lastErr = err
			logger.Warn("ics fetch failed", zap.String("url", url), zap.Error(err))
			continue
		}
		if !resp.OK() {
			logger.Warn("ics fetch returned status",
				zap.String("url", url),
				zap.Int("status", resp.StatusCode))
			continue
		}
		fetched = true

		var items []item
		if looksLikeCalendar(resp.Body) {
			items = parseCalendar(resp.Body, c.loc, c.hour, c.minute)
		} else {
			logger.Warn("response is not an ICS calendar", zap.String("url", url))
		}

		ses.CaptureSchema(ctx, calendar.SchemaCapture{
			Variant:     variantFor(i),
			URL:         resp.URL,
			Content:     resp.Body,
			ParsedCount: len(items),
		})
		ses.ReportDiscovery(calendar.PathPrimary, len(items))

		events := c.build(items, window, url)
		logger.Info("ics feed parsed",
			zap.String("url", url),
			zap.Int("total", len(items)),
			zap.Int("in_window", len(events)))
		if len(events) > 0 {
			return events, nil
		}
	}

	if !fetched && lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (c *Calendar) build(items []item, window calendar.Window, feedURL string) []calendar.Event {
	events := make([]calendar.Event, 0, len(items))
	for _, it := range items {
		at := it.At.UTC()
		if !window.Contains(at) {
			continue
		}
		title := strings.Join(strings.Fields(it.Title), " ")
		if title == "" {
			title = "Untitled"
		}
		href := it.URL
		if href == "" {
			href = feedURL
		}
		ev := calendar.NewEvent(c.src.Key, c.src.Agency, c.src.Country, title, at, c.src.Timezone, href)
		if c.src.ReleaseTimeLocal != "" {
			ev.Tag("release_time_local", c.src.ReleaseTimeLocal)
		}
		events = append(events, ev)
	}
	return events
}

// looksLikeCalendar guards against agencies serving HTML error or consent
// pages with a 200 status.
func looksLikeCalendar(body []byte) bool {
	return bytes.Contains(body, []byte("BEGIN:VCALENDAR"))
}

// variantFor keeps alternate endpoints under their own schema fingerprint so
// switching URLs between runs cannot read as page drift.
func variantFor(i int) string {
	if i == 0 {
		return ""
	}
	return "alt" + strconv.Itoa(i)
}
