// Package collector orchestrates a collection run: it fans the registered
// source adapters out over a bounded worker pool, walls each one behind an
// error boundary, applies the health gate with its fallback and
// last-known-good recovery paths, and folds the survivors into the final
// deduplicated, sorted calendar with its health report.
package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/feed"
	"github.com/IntelliTrade-io/IntelliTrade/internal/health"
	"github.com/IntelliTrade-io/IntelliTrade/internal/lkg"
	"github.com/IntelliTrade-io/IntelliTrade/internal/logging"
	"github.com/IntelliTrade-io/IntelliTrade/internal/metrics"
	"github.com/IntelliTrade-io/IntelliTrade/internal/sentinel"
)

// defaultMaxConcurrent bounds the adapter fan-out. Politeness is enforced
// per host underneath; this cap only keeps slow sources from serializing
// the whole run while bounding total connection pressure.
const defaultMaxConcurrent = 6

// Config tunes the orchestrator.
type Config struct {
	MaxConcurrent int
}

// Result is a finished collection run.
type Result struct {
	Events []calendar.Event
	Report calendar.HealthReport
}

// Collector runs the registered sources and assembles the calendar.
type Collector struct {
	registry *Registry
	fetcher  Fetcher
	lkg      *lkg.Store
	sentinel *sentinel.Sentinel
	counters *health.CounterStore
	ids      calendar.IDGenerator
	clock    calendar.Clock
	logger   *zap.Logger
	cfg      Config
}

// New assembles a Collector.
func New(
	registry *Registry,
	fetcher Fetcher,
	lkgStore *lkg.Store,
	sen *sentinel.Sentinel,
	counters *health.CounterStore,
	ids calendar.IDGenerator,
	clock calendar.Clock,
	cfg Config,
	logger *zap.Logger,
) *Collector {
	return &Collector{
		registry: registry,
		fetcher:  fetcher,
		lkg:      lkgStore,
		sentinel: sen,
		counters: counters,
		ids:      ids,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// sourceOutcome is one worker's result, written into its own slot.
type sourceOutcome struct {
	events []calendar.Event
	meta   calendar.SourceMetadata
}

// Collect runs every registered source against the window.
func (c *Collector) Collect(ctx context.Context, window calendar.Window) (Result, error) {
	if window.Until.Before(window.Since) {
		return Result{}, fmt.Errorf("window end %s precedes start %s",
			window.Until.Format("2006-01-02"), window.Since.Format("2006-01-02"))
	}

	runID := c.newRunID()
	logger := logging.WithRun(c.logger, runID)
	started := c.clock.Now()

	regs := c.registry.Sources()
	logger.Info("collection run starting",
		zap.Time("since", window.Since),
		zap.Time("until", window.Until),
		zap.Int("window_days", window.Days()),
		zap.Int("sources", len(regs)))

	outcomes := make([]sourceOutcome, len(regs))
	var group errgroup.Group
	group.SetLimit(c.maxConcurrent())
	for i, reg := range regs {
		group.Go(func() error {
			outcomes[i] = c.runSource(ctx, runID, reg, window, logger)
			return nil
		})
	}
	// Workers never return errors; every failure mode is absorbed into the
	// source's own metadata.
	_ = group.Wait()

	var all []calendar.Event
	metas := make([]calendar.SourceMetadata, 0, len(outcomes))
	for _, outcome := range outcomes {
		all = append(all, outcome.events...)
		metas = append(metas, outcome.meta)
	}

	now := c.clock.Now()
	if c.counters != nil {
		if _, err := c.counters.Update(ctx, metas, now); err != nil {
			logger.Warn("health counter update failed", zap.Error(err))
		}
	}

	var alerts []calendar.QuorumAlert
	if alert := health.EvaluateQuorum(metas, c.registry.Thresholds(), now); alert != nil {
		alerts = append(alerts, *alert)
		metrics.ObserveQuorumAlert()
		logger.Warn("rate-limit quorum alert",
			zap.Strings("sources", alert.Sources))
	}

	events := feed.Aggregate(feed.Dedupe(all), window)
	report := feed.BuildReport(runID, now, window, metas, alerts, len(events))

	duration := c.clock.Now().Sub(started)
	metrics.ObserveRun(string(report.Overall), duration)
	logger.Info("collection run finished",
		zap.String("status", string(report.Overall)),
		zap.Int("events", len(events)),
		zap.Int("degraded_sources", report.DegradedSources),
		zap.Duration("duration", duration))

	return Result{Events: events, Report: report}, nil
}

// runSource executes one source end to end: adapter, snapshot persistence,
// health gate, fallback, last-known-good recovery, and metadata assembly.
// It never fails: a source that cannot deliver is recorded, not raised.
func (c *Collector) runSource(ctx context.Context, runID string, reg Registration, window calendar.Window, runLogger *zap.Logger) sourceOutcome {
	logger := logging.ForSource(runLogger, reg.Key)
	ses := newSourceSession(c.fetcher, c.sentinel, runID, reg.Key, logger)
	started := c.clock.Now()

	events, err := invokeAdapter(ctx, reg.Adapter, ses, window)
	if err != nil {
		events = nil
		logger.Error("adapter failed", zap.Error(err))
	}

	expected := health.ExpectedFloor(reg.BaseFloor, window.Days())

	fallbackUsed := false
	if len(events) < expected && reg.Fallback != nil {
		fallbackUsed = true
		metrics.ObserveFallback(reg.Key)
		logger.Info("floor missed, running fallback",
			zap.Int("primary_events", len(events)),
			zap.Int("expected", expected))

		fbEvents, fbErr := invokeAdapter(ctx, reg.Fallback, ses, window)
		if fbErr != nil {
			logger.Warn("fallback handler failed", zap.Error(fbErr))
		}
		for i := range fbEvents {
			fbEvents[i].Tag(calendar.ExtraFallback, "true")
			fbEvents[i].Tag(calendar.ExtraDiscoveredVia, string(calendar.PathFallback))
		}
		events = unionByID(events, fbEvents)
	}

	var merge lkg.MergeResult
	merge.Events = events
	if c.lkg != nil {
		merge = c.lkg.MergeIfStale(ctx, reg.Key, events, window, reg.LKGTTLDays)
	}
	events = merge.Events

	// The snapshot keeps whatever the source delivered this run, fallback
	// included; recycled snapshot data never re-saves.
	if len(events) > 0 && !merge.Merged && c.lkg != nil {
		if perr := c.lkg.Persist(ctx, reg.Key, events); perr != nil {
			logger.Warn("last-known-good persist failed", zap.Error(perr))
		}
	}

	actual := len(events)
	status := health.Classify(actual, expected, fallbackUsed, reg.DegradeOnShortfall)
	path := resolvePath(err, actual, fallbackUsed, merge.Merged)

	rawTotal, rawReported := ses.rawFeedTotal()
	meta := calendar.SourceMetadata{
		Source:       reg.Key,
		Path:         path,
		RawTotal:     rawTotal,
		RawReported:  rawReported,
		Actual:       actual,
		Expected:     expected,
		Status:       status,
		FallbackUsed: fallbackUsed,
		SchemaBreak:  ses.sawSchemaBreak(),
		DurationMs:   c.clock.Now().Sub(started).Milliseconds(),
	}
	if merge.Merged {
		meta.LKGAgeDays = merge.AgeDays
	}
	if err != nil {
		meta.Error = err.Error()
	}

	metrics.ObserveSourceEvents(reg.Key, string(path), actual)
	metrics.SetSourceDegraded(reg.Key, status == calendar.StatusDegraded)
	logger.Info("source collected",
		zap.Int("events", actual),
		zap.Int("expected", expected),
		zap.String("status", string(status)),
		zap.String("path", string(path)))

	return sourceOutcome{events: events, meta: meta}
}

func (c *Collector) maxConcurrent() int {
	if c.cfg.MaxConcurrent > 0 {
		return c.cfg.MaxConcurrent
	}
	return defaultMaxConcurrent
}

func (c *Collector) newRunID() string {
	id, err := c.ids.NewID()
	if err != nil {
		c.logger.Warn("run id generation failed", zap.Error(err))
		return fmt.Sprintf("run-%d", c.clock.Now().UnixNano())
	}
	return id
}

// invokeAdapter is the error boundary: a panicking adapter is converted
// into an error so one broken parser cannot take down the run.
func invokeAdapter(ctx context.Context, adapter calendar.AdapterFunc, ses calendar.Session, window calendar.Window) (events []calendar.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			events = nil
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return adapter(ctx, ses, window)
}

// unionByID appends extra events whose identity is not already present.
// Primary events keep their positions and win collisions.
func unionByID(primary, extra []calendar.Event) []calendar.Event {
	if len(extra) == 0 {
		return primary
	}
	seen := make(map[string]struct{}, len(primary))
	for _, ev := range primary {
		seen[ev.ID] = struct{}{}
	}
	out := primary
	for _, ev := range extra {
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// resolvePath names how the source's final events were obtained.
func resolvePath(adapterErr error, actual int, fallbackUsed, lkgMerged bool) calendar.DiscoveryPath {
	switch {
	case lkgMerged:
		return calendar.PathLKG
	case actual > 0 && fallbackUsed:
		return calendar.PathFallback
	case actual > 0:
		return calendar.PathPrimary
	case adapterErr != nil:
		return calendar.PathNone
	default:
		return calendar.PathUnavailable
	}
}
