// Package app wires the collector's object graph from configuration and owns
// the process lifecycle for one-shot runs and the HTTP service.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/api"
	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/clock/system"
	"github.com/IntelliTrade-io/IntelliTrade/internal/collector"
	"github.com/IntelliTrade-io/IntelliTrade/internal/config"
	collyfetcher "github.com/IntelliTrade-io/IntelliTrade/internal/fetcher/colly"
	"github.com/IntelliTrade-io/IntelliTrade/internal/fetcher/headless"
	stdfetcher "github.com/IntelliTrade-io/IntelliTrade/internal/fetcher/std"
	"github.com/IntelliTrade-io/IntelliTrade/internal/hash/sha256"
	"github.com/IntelliTrade-io/IntelliTrade/internal/headless/detector"
	"github.com/IntelliTrade-io/IntelliTrade/internal/health"
	"github.com/IntelliTrade-io/IntelliTrade/internal/id/uuid"
	"github.com/IntelliTrade-io/IntelliTrade/internal/lkg"
	"github.com/IntelliTrade-io/IntelliTrade/internal/logging"
	"github.com/IntelliTrade-io/IntelliTrade/internal/metrics"
	"github.com/IntelliTrade-io/IntelliTrade/internal/policy/ratelimit"
	"github.com/IntelliTrade-io/IntelliTrade/internal/policy/simple"
	memorypublisher "github.com/IntelliTrade-io/IntelliTrade/internal/publisher/memory"
	gcppublisher "github.com/IntelliTrade-io/IntelliTrade/internal/publisher/pubsub"
	"github.com/IntelliTrade-io/IntelliTrade/internal/sentinel"
	"github.com/IntelliTrade-io/IntelliTrade/internal/session"
	"github.com/IntelliTrade-io/IntelliTrade/internal/sink"
	"github.com/IntelliTrade-io/IntelliTrade/internal/sources"
	"github.com/IntelliTrade-io/IntelliTrade/internal/state"
	diskstate "github.com/IntelliTrade-io/IntelliTrade/internal/state/disk"
	memorystate "github.com/IntelliTrade-io/IntelliTrade/internal/state/memory"
	blobstorage "github.com/IntelliTrade-io/IntelliTrade/internal/storage"
	gcsstorage "github.com/IntelliTrade-io/IntelliTrade/internal/storage/gcs"
	localstorage "github.com/IntelliTrade-io/IntelliTrade/internal/storage/local"
	memorystorage "github.com/IntelliTrade-io/IntelliTrade/internal/storage/memory"
)

// defaultSummaryTopic is used when no Pub/Sub topic is configured, which
// only happens with the in-memory publisher.
const defaultSummaryTopic = "calendar-runs"

// App holds the assembled services for one process: the collector, the API
// server, the sinks, and the infrastructure clients that need closing.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	collector *collector.Collector
	apiServer *api.Server
	files     *sink.FileSink
	events    *sink.EventStore
	publisher calendar.Publisher

	renderer  *headless.Renderer
	gcsClient *storage.Client
	pubsubPub *gcppublisher.Publisher
}

// Logger returns the root zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Sink returns the file sink for feed and report artifacts.
func (a *App) Sink() *sink.FileSink {
	return a.files
}

// Build creates the full object graph from configuration. It fails fast:
// any service that cannot be initialized aborts the build.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("sources_concurrency", cfg.Collector.MaxConcurrent))

	stateStore, err := setupState(app)
	if err != nil {
		return nil, err
	}
	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	hasher := sha256.New()
	det := detector.NewHeuristic(cfg.Headless.PromotionThreshold)

	fetchClient := session.New(
		setupEngine(app),
		setupRenderer(app),
		stateStore,
		hasher,
		ratelimit.New(ratelimit.Config{
			DefaultInterval: time.Duration(cfg.Politeness.DefaultIntervalMs) * time.Millisecond,
			HostIntervals:   hostIntervals(cfg),
			JitterMin:       time.Duration(cfg.Politeness.JitterMinMs) * time.Millisecond,
			JitterMax:       time.Duration(cfg.Politeness.JitterMaxMs) * time.Millisecond,
		}),
		session.NewRobotsDirectory(cfg.HTTP.UserAgent, logger.Named("robots")),
		simple.NewRenderPolicy(cfg.Headless.RenderBudget),
		clock,
		session.Config{
			UserAgent:          cfg.HTTP.UserAgent,
			MaxAttempts:        cfg.HTTP.MaxAttempts,
			BaseDelay:          cfg.BackoffInitial(),
			MaxDelay:           cfg.BackoffMax(),
			RetryBudget:        cfg.HTTP.RetryBudget,
			ForbiddenThreshold: cfg.HTTP.ForbiddenThreshold,
		},
		logger.Named("session"),
	)

	regs, err := sources.Default(det)
	if err != nil {
		return nil, fmt.Errorf("source table init failed: %w", err)
	}
	registry, err := collector.NewRegistry(regs)
	if err != nil {
		return nil, fmt.Errorf("source registry init failed: %w", err)
	}

	app.collector = collector.New(
		registry,
		fetchClient,
		lkg.NewStore(stateStore, clock, logger.Named("lkg")),
		sentinel.New(stateStore, blobStore, hasher, clock, logger.Named("sentinel")),
		health.NewCounterStore(stateStore, logger.Named("health")),
		uuid.NewGenerator(),
		clock,
		collector.Config{MaxConcurrent: cfg.Collector.MaxConcurrent},
		logger.Named("collector"),
	)

	app.files, err = sink.NewFileSink(cfg.Sink.Dir, logger.Named("sink"))
	if err != nil {
		return nil, fmt.Errorf("file sink init failed: %w", err)
	}

	if cfg.Postgres.DSN != "" {
		app.events, err = sink.NewEventStore(ctx, sink.EventStoreConfig{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("event store init failed: %w", err)
		}
		app.logger.Info("postgres event sink initialized", zap.String("table", cfg.Postgres.Table))
	}

	app.publisher, err = setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	app.apiServer = api.NewServer(app, clock, cfg, logger.Named("api"))
	return app, nil
}

// Collect runs one collection for the window, then persists and announces
// the result. Sink and publish failures are logged, never fatal: a feed
// that was assembled should still reach the caller.
func (a *App) Collect(ctx context.Context, window calendar.Window) (collector.Result, error) {
	result, err := a.collector.Collect(ctx, window)
	if err != nil {
		return collector.Result{}, err
	}
	if a.events != nil {
		if err := a.events.StoreEvents(ctx, result.Report.RunID, result.Events); err != nil {
			a.logger.Error("event store write failed",
				zap.String("run_id", result.Report.RunID), zap.Error(err))
		}
	}
	a.publishSummary(ctx, result.Report)
	return result, nil
}

// Run serves the HTTP API until the context is canceled or a termination
// signal arrives, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close()
}

// Close releases infrastructure clients and flushes the logger.
func (a *App) Close() error {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.pubsubPub != nil {
		if err := a.pubsubPub.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.events != nil {
		a.events.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

// runSummary is the notification body announcing a finished run.
type runSummary struct {
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	WindowSince time.Time       `json:"window_since"`
	WindowUntil time.Time       `json:"window_until"`
	Overall     calendar.Status `json:"overall"`
	TotalEvents int             `json:"total_events"`
	Degraded    int             `json:"degraded_sources"`
}

func (a *App) publishSummary(ctx context.Context, report calendar.HealthReport) {
	if a.publisher == nil {
		return
	}
	payload, err := json.Marshal(runSummary{
		RunID:       report.RunID,
		GeneratedAt: report.GeneratedAt,
		WindowSince: report.WindowSince,
		WindowUntil: report.WindowUntil,
		Overall:     report.Overall,
		TotalEvents: report.TotalEvents,
		Degraded:    report.DegradedSources,
	})
	if err != nil {
		a.logger.Error("run summary marshal failed", zap.Error(err))
		return
	}
	topic := a.cfg.PubSub.TopicName
	if topic == "" {
		topic = defaultSummaryTopic
	}
	id, err := a.publisher.Publish(ctx, topic, payload)
	if err != nil {
		a.logger.Warn("run summary publish failed",
			zap.String("run_id", report.RunID), zap.Error(err))
		return
	}
	a.logger.Info("run summary published",
		zap.String("run_id", report.RunID),
		zap.String("topic", topic),
		zap.String("message_id", id))
}

func setupState(app *App) (state.Store, error) {
	switch app.cfg.State.Backend {
	case "disk":
		app.logger.Info("using disk state store", zap.String("dir", app.cfg.State.Dir))
		return diskstate.New(app.cfg.State.Dir)
	case "memory":
		app.logger.Info("using in-memory state store")
		return memorystate.New(), nil
	default:
		return nil, fmt.Errorf("unknown state backend: %s", app.cfg.State.Backend)
	}
}

func setupStorage(ctx context.Context, app *App) (blobstorage.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend", zap.String("bucket", app.cfg.Storage.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return store, nil
	case "local":
		app.logger.Info("using local storage backend", zap.String("dir", app.cfg.Storage.LocalDir))
		store, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupEngine(app *App) calendar.Engine {
	if app.cfg.HTTP.Engine == "std" {
		app.logger.Info("using net/http fetch engine", zap.String("user_agent", app.cfg.HTTP.UserAgent))
		return stdfetcher.New(stdfetcher.Config{
			UserAgent:    app.cfg.HTTP.UserAgent,
			Timeout:      app.cfg.FetchTimeout(),
			MaxBodyBytes: int64(app.cfg.HTTP.MaxBodyBytes),
		})
	}
	app.logger.Info("using colly fetch engine", zap.String("user_agent", app.cfg.HTTP.UserAgent))
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:    app.cfg.HTTP.UserAgent,
		Timeout:      app.cfg.FetchTimeout(),
		MaxBodyBytes: app.cfg.HTTP.MaxBodyBytes,
	})
}

func setupRenderer(app *App) calendar.Renderer {
	if !app.cfg.Headless.Enabled {
		return headless.NewNoop()
	}
	renderer, err := headless.NewChromedp(headless.Config{
		MaxParallel:       app.cfg.Headless.MaxParallel,
		UserAgent:         app.cfg.HTTP.UserAgent,
		NavigationTimeout: time.Duration(app.cfg.Headless.NavTimeoutSeconds) * time.Second,
	})
	if err != nil {
		app.logger.Warn("headless renderer init failed, rendering disabled", zap.Error(err))
		return headless.NewNoop()
	}
	app.renderer = renderer
	app.logger.Info("headless renderer enabled", zap.Int("max_parallel", app.cfg.Headless.MaxParallel))
	return renderer
}

func setupPublisher(ctx context.Context, app *App) (calendar.Publisher, error) {
	if app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no pub/sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.New(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.pubsubPub = pub
	app.logger.Info("pub/sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName))
	return pub, nil
}

// hostIntervals merges the built-in per-agency politeness table with
// configured overrides. Overrides win.
func hostIntervals(cfg config.Config) map[string]time.Duration {
	intervals := sources.HostIntervals()
	for host, ms := range cfg.Politeness.HostIntervalsMs {
		intervals[host] = time.Duration(ms) * time.Millisecond
	}
	return intervals
}
