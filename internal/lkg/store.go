// Package lkg keeps one last-known-good snapshot per source: the most
// recent non-empty event list, held as a stopgap for runs where the
// source yields nothing. A snapshot is only ever consulted when the
// current result is empty and the snapshot is younger than the source's
// TTL.
package lkg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/metrics"
	"github.com/IntelliTrade-io/IntelliTrade/internal/state"
)

// DefaultTTLDays applies to sources without an explicit TTL.
const DefaultTTLDays = 30

// Snapshot is the persisted last-known-good record for one source.
type Snapshot struct {
	Source  string           `json:"source"`
	SavedAt time.Time        `json:"saved_at"`
	Events  []calendar.Event `json:"events"`
}

// Store reads and writes snapshots on the state store.
type Store struct {
	store  state.Store
	clock  calendar.Clock
	logger *zap.Logger
}

// NewStore creates a Store.
func NewStore(store state.Store, clock calendar.Clock, logger *zap.Logger) *Store {
	return &Store{store: store, clock: clock, logger: logger}
}

func key(source string) string {
	return "lkg/" + source
}

// Persist overwrites the snapshot for source. Empty results never persist:
// a source that produced nothing must not evict the last good data.
func (s *Store) Persist(ctx context.Context, source string, events []calendar.Event) error {
	if len(events) == 0 {
		return nil
	}
	snap := Snapshot{
		Source:  source,
		SavedAt: s.clock.Now().UTC(),
		Events:  events,
	}
	if err := s.store.Write(ctx, key(source), snap); err != nil {
		return fmt.Errorf("persisting snapshot for %s: %w", source, err)
	}
	return nil
}

// Load returns the snapshot for source, or nil when none exists.
func (s *Store) Load(ctx context.Context, source string) (*Snapshot, error) {
	var snap Snapshot
	if err := s.store.Read(ctx, key(source), &snap); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading snapshot for %s: %w", source, err)
	}
	return &snap, nil
}

// MergeResult reports what MergeIfStale decided.
type MergeResult struct {
	Events  []calendar.Event
	Merged  bool
	AgeDays int
}

// MergeIfStale substitutes the snapshot when the current result is empty.
// Snapshot events are re-filtered against the current window and tagged as
// cached before they are returned; anything else returns the input
// unchanged. Snapshot problems are logged, never escalated: a broken LKG
// slot must not take down an otherwise working source.
func (s *Store) MergeIfStale(ctx context.Context, source string, current []calendar.Event, window calendar.Window, ttlDays int) MergeResult {
	if len(current) > 0 {
		return MergeResult{Events: current}
	}
	if ttlDays <= 0 {
		ttlDays = DefaultTTLDays
	}

	snap, err := s.Load(ctx, source)
	if err != nil {
		s.logger.Warn("last-known-good read failed",
			zap.String("source", source),
			zap.Error(err))
		return MergeResult{Events: current}
	}
	if snap == nil {
		return MergeResult{Events: current}
	}

	ageDays := int(s.clock.Now().UTC().Sub(snap.SavedAt).Hours() / 24)
	if ageDays > ttlDays {
		s.logger.Info("last-known-good snapshot expired",
			zap.String("source", source),
			zap.Int("age_days", ageDays),
			zap.Int("ttl_days", ttlDays))
		return MergeResult{Events: current, AgeDays: ageDays}
	}

	savedAt := snap.SavedAt.UTC().Format(time.RFC3339)
	merged := make([]calendar.Event, 0, len(snap.Events))
	for _, ev := range snap.Events {
		if !window.Contains(ev.DateTimeUTC) {
			continue
		}
		ev.Tag(calendar.ExtraCached, "true")
		ev.Tag(calendar.ExtraDiscoveredVia, string(calendar.PathLKG))
		ev.Tag(calendar.ExtraLKGTimestamp, savedAt)
		merged = append(merged, ev)
	}
	if len(merged) == 0 {
		return MergeResult{Events: current, AgeDays: ageDays}
	}

	metrics.ObserveLKGMerge(source)
	s.logger.Info("serving last-known-good snapshot",
		zap.String("source", source),
		zap.Int("events", len(merged)),
		zap.Int("age_days", ageDays))
	return MergeResult{Events: merged, Merged: true, AgeDays: ageDays}
}
