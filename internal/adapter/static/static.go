// Package static generates events from fixed, pre-announced release
// schedules. It backs sources whose live pages are too unreliable to scrape
// every run: SECO publishes its quarterly forecast dates a year ahead, and
// central-bank meeting calendars rarely move once announced.
package static

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

// Entry is one recurring release: the same month/day/time every year.
type Entry struct {
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Title  string
}

// Config describes a schedule-backed source.
type Config struct {
	// Key is the registry key stamped on events as their source.
	Key     string
	Country string
	Agency  string
	// Timezone is the zone the schedule's wall-clock times are announced in.
	Timezone string
	// URL is the page the schedule was transcribed from, recorded on every
	// event for traceability.
	URL     string
	Entries []Entry
	// Extras are stamped onto every generated event (e.g. estimated_date).
	Extras map[string]string
}

// Schedule expands the configured entries into whichever years the request
// window touches.
type Schedule struct {
	cfg Config
	loc *time.Location
}

// New validates the schedule and resolves its timezone once.
func New(cfg Config) (*Schedule, error) {
	if cfg.Key == "" {
		return nil, errors.New("static schedule key required")
	}
	if len(cfg.Entries) == 0 {
		return nil, fmt.Errorf("static schedule %s has no entries", cfg.Key)
	}
	for _, entry := range cfg.Entries {
		if entry.Title == "" {
			return nil, fmt.Errorf("static schedule %s has an untitled entry", cfg.Key)
		}
		if entry.Day < 1 || entry.Day > 31 {
			return nil, fmt.Errorf("static schedule %s: day %d out of range", cfg.Key, entry.Day)
		}
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("static schedule %s timezone: %w", cfg.Key, err)
	}
	return &Schedule{cfg: cfg, loc: loc}, nil
}

// Fetch generates the in-window events. Nothing is fetched over the network,
// so the schedule never reports a raw feed total and never fails.
func (s *Schedule) Fetch(_ context.Context, ses calendar.Session, window calendar.Window) ([]calendar.Event, error) {
	var events []calendar.Event
	for year := window.Since.Year(); year <= window.Until.Year(); year++ {
		for _, entry := range s.cfg.Entries {
			at := time.Date(year, entry.Month, entry.Day, entry.Hour, entry.Minute, 0, 0, s.loc).UTC()
			if !window.Contains(at) {
				continue
			}
			ev := calendar.NewEvent(s.cfg.Key, s.cfg.Agency, s.cfg.Country, entry.Title, at, s.cfg.Timezone, s.cfg.URL)
			for key, value := range s.cfg.Extras {
				ev.Tag(key, value)
			}
			events = append(events, ev)
		}
	}
	ses.Logger().Info("static schedule expanded",
		zap.String("source", s.cfg.Key),
		zap.Int("events", len(events)))
	return events, nil
}
