// Package sink persists collection output: event feeds for downstream
// consumers and health reports for operators.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

// FileSink writes feeds and reports to disk. Relative names land under the
// sink root; absolute paths are honored as given so the CLI can point output
// anywhere.
type FileSink struct {
	root   string
	logger *zap.Logger
}

// NewFileSink returns a sink rooted at dir.
func NewFileSink(root string, logger *zap.Logger) (*FileSink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir %s: %w", root, err)
	}
	return &FileSink{
		root:   root,
		logger: logger,
	}, nil
}

// SaveEvents writes the feed as an indented JSON array and returns the path.
func (s *FileSink) SaveEvents(ctx context.Context, name string, events []calendar.Event) (string, error) {
	if events == nil {
		events = []calendar.Event{}
	}
	payload, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal feed: %w", err)
	}
	target, err := s.write(ctx, name, payload)
	if err != nil {
		return "", err
	}
	s.logger.Info("feed written",
		zap.String("path", target),
		zap.Int("events", len(events)),
	)
	return target, nil
}

// SaveEventsJSONL writes one event per line, the shape line-oriented loaders
// ingest without buffering the whole feed.
func (s *FileSink) SaveEventsJSONL(ctx context.Context, name string, events []calendar.Event) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return "", fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
	}
	target, err := s.write(ctx, name, buf.Bytes())
	if err != nil {
		return "", err
	}
	s.logger.Info("feed written",
		zap.String("path", target),
		zap.Int("events", len(events)),
	)
	return target, nil
}

// SaveHealth writes the run's health report next to the feed.
func (s *FileSink) SaveHealth(ctx context.Context, name string, report calendar.HealthReport) (string, error) {
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal health report: %w", err)
	}
	target, err := s.write(ctx, name, payload)
	if err != nil {
		return "", err
	}
	s.logger.Info("health report written",
		zap.String("path", target),
		zap.String("overall", string(report.Overall)),
	)
	return target, nil
}

func (s *FileSink) write(ctx context.Context, name string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	target := name
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.root, target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("creating dir for %s: %w", target, err)
	}
	if err := os.WriteFile(target, payload, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", target, err)
	}
	return target, nil
}
