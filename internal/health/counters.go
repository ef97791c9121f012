package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/state"
)

const countersKey = "health/counters"

// silentRunsWorthWarning is the zero-run streak at which a source stops
// looking like noise and starts looking dead.
const silentRunsWorthWarning = 3

// Counters are the cross-run per-source records that survive restarts.
type Counters struct {
	LastSuccessAt       map[string]time.Time `json:"last_success_at"`
	ConsecutiveZeroRuns map[string]int       `json:"consecutive_zero_runs"`
}

func newCounters() Counters {
	return Counters{
		LastSuccessAt:       make(map[string]time.Time),
		ConsecutiveZeroRuns: make(map[string]int),
	}
}

// CounterStore persists the counters on the state store.
type CounterStore struct {
	store  state.Store
	logger *zap.Logger
}

// NewCounterStore creates a CounterStore.
func NewCounterStore(store state.Store, logger *zap.Logger) *CounterStore {
	return &CounterStore{store: store, logger: logger}
}

// Load returns the persisted counters, empty when none exist yet.
func (c *CounterStore) Load(ctx context.Context) (Counters, error) {
	counters := newCounters()
	if err := c.store.Read(ctx, countersKey, &counters); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return newCounters(), nil
		}
		return newCounters(), fmt.Errorf("loading health counters: %w", err)
	}
	if counters.LastSuccessAt == nil {
		counters.LastSuccessAt = make(map[string]time.Time)
	}
	if counters.ConsecutiveZeroRuns == nil {
		counters.ConsecutiveZeroRuns = make(map[string]int)
	}
	return counters, nil
}

// Update folds this run's per-source outcomes into the counters and writes
// them back. Sources that delivered reset their zero-run streak; silent
// sources extend it.
func (c *CounterStore) Update(ctx context.Context, results []calendar.SourceMetadata, now time.Time) (Counters, error) {
	counters, err := c.Load(ctx)
	if err != nil {
		c.logger.Warn("health counters unreadable, starting fresh", zap.Error(err))
		counters = newCounters()
	}

	for _, result := range results {
		if result.Actual > 0 {
			counters.LastSuccessAt[result.Source] = now.UTC()
			counters.ConsecutiveZeroRuns[result.Source] = 0
			continue
		}
		counters.ConsecutiveZeroRuns[result.Source]++
		if streak := counters.ConsecutiveZeroRuns[result.Source]; streak >= silentRunsWorthWarning {
			c.logger.Warn("source silent across consecutive runs",
				zap.String("source", result.Source),
				zap.Int("runs", streak),
				zap.Time("last_success_at", counters.LastSuccessAt[result.Source]))
		}
	}

	if err := c.store.Write(ctx, countersKey, counters); err != nil {
		return counters, fmt.Errorf("persisting health counters: %w", err)
	}
	return counters, nil
}
