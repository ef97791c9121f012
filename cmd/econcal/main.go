package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/app"
	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/config"
)

const dateLayout = "2006-01-02"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("econcal", flag.ContinueOnError)
	var (
		cfgPath    = fs.String("config", "", "path to a config file")
		sinceFlag  = fs.String("since", "", "window start (YYYY-MM-DD, default today)")
		untilFlag  = fs.String("until", "", "window end (YYYY-MM-DD, default start+window)")
		outPath    = fs.String("out", "feed.json", "feed artifact, relative to the sink dir")
		jsonlPath  = fs.String("jsonl", "", "optional JSONL feed artifact")
		healthPath = fs.String("health", "health.json", "health report artifact")
		serve      = fs.Bool("serve", false, "serve the HTTP API instead of a one-shot run")
		dev        = fs.Bool("dev", false, "force development logging")
		strict     = fs.Bool("strict", false, "exit non-zero when the run is DEGRADED")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	if *dev {
		cfg.Logging.Development = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		return 1
	}

	if *serve {
		if err := a.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "serve failed: %v\n", err)
			return 1
		}
		return 0
	}
	defer func() { _ = a.Close() }()

	window, err := parseWindow(*sinceFlag, *untilFlag, cfg.Collector.WindowDays, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	logger := a.Logger()
	result, err := a.Collect(ctx, window)
	if err != nil {
		logger.Error("collection failed", zap.Error(err))
		return 1
	}

	if _, err := a.Sink().SaveEvents(ctx, *outPath, result.Events); err != nil {
		logger.Error("feed write failed", zap.Error(err))
		return 1
	}
	if *jsonlPath != "" {
		if _, err := a.Sink().SaveEventsJSONL(ctx, *jsonlPath, result.Events); err != nil {
			logger.Error("jsonl write failed", zap.Error(err))
			return 1
		}
	}
	if _, err := a.Sink().SaveHealth(ctx, *healthPath, result.Report); err != nil {
		logger.Error("health report write failed", zap.Error(err))
		return 1
	}

	logger.Info("run complete",
		zap.String("run_id", result.Report.RunID),
		zap.String("status", string(result.Report.Overall)),
		zap.Int("events", len(result.Events)),
		zap.Int("degraded_sources", result.Report.DegradedSources))

	if *strict && result.Report.Overall == calendar.StatusDegraded {
		return 1
	}
	return 0
}

// parseWindow resolves the collection window from flags. Bare dates span
// whole days: the window starts at 00:00:00 UTC and ends at 23:59:59 UTC.
func parseWindow(sinceArg, untilArg string, windowDays int, now time.Time) (calendar.Window, error) {
	since := now.UTC().Truncate(24 * time.Hour)
	if sinceArg != "" {
		parsed, err := time.Parse(dateLayout, sinceArg)
		if err != nil {
			return calendar.Window{}, fmt.Errorf("invalid -since %q: %w", sinceArg, err)
		}
		since = parsed.UTC()
	}

	untilDay := since.AddDate(0, 0, windowDays)
	if untilArg != "" {
		parsed, err := time.Parse(dateLayout, untilArg)
		if err != nil {
			return calendar.Window{}, fmt.Errorf("invalid -until %q: %w", untilArg, err)
		}
		untilDay = parsed.UTC()
	}

	until := untilDay.Add(24*time.Hour - time.Second)
	if until.Before(since) {
		return calendar.Window{}, fmt.Errorf("-until %s precedes -since %s",
			untilDay.Format(dateLayout), since.Format(dateLayout))
	}
	return calendar.Window{Since: since, Until: until}, nil
}
