package collector

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/sentinel"
)

// Fetcher is the slice of the shared HTTP client the per-source session
// needs. The session client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) (calendar.Response, error)
	GetRendered(ctx context.Context, url string) (calendar.Response, error)
}

// sourceSession is the per-source view handed to an adapter. It scopes the
// shared fetch client, the schema sentinel, and the logger to one source,
// and collects what the adapter reports for the run metadata.
type sourceSession struct {
	fetcher  Fetcher
	sentinel *sentinel.Sentinel
	runID    string
	source   string
	logger   *zap.Logger

	mu          sync.Mutex
	rawTotal    int
	rawReported bool
	schemaBreak bool
}

func newSourceSession(fetcher Fetcher, sen *sentinel.Sentinel, runID, source string, logger *zap.Logger) *sourceSession {
	return &sourceSession{
		fetcher:  fetcher,
		sentinel: sen,
		runID:    runID,
		source:   source,
		logger:   logger,
	}
}

func (s *sourceSession) Get(ctx context.Context, url string) (calendar.Response, error) {
	return s.fetcher.Get(ctx, url)
}

func (s *sourceSession) GetRendered(ctx context.Context, url string) (calendar.Response, error) {
	return s.fetcher.GetRendered(ctx, url)
}

// CaptureSchema forwards the capture to the sentinel under this session's
// source key, remembering whether a break was flagged.
func (s *sourceSession) CaptureSchema(ctx context.Context, capture calendar.SchemaCapture) {
	if s.sentinel == nil {
		return
	}
	capture.Source = s.source
	if s.sentinel.Observe(ctx, s.runID, capture) {
		s.mu.Lock()
		s.schemaBreak = true
		s.mu.Unlock()
	}
}

// ReportDiscovery records the adapter's raw pre-filter feed size. The
// discovery path argument is advisory; the worker derives the final path
// from the run outcome.
func (s *sourceSession) ReportDiscovery(_ calendar.DiscoveryPath, rawTotal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawTotal = rawTotal
	s.rawReported = true
}

func (s *sourceSession) Logger() *zap.Logger {
	return s.logger
}

func (s *sourceSession) rawFeedTotal() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rawTotal, s.rawReported
}

func (s *sourceSession) sawSchemaBreak() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemaBreak
}
