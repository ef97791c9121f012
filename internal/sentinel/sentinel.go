// Package sentinel detects schema drift on source pages. Parsers fail in
// two very different ways: the page genuinely lists nothing, or the page
// was restructured and the selectors silently stopped matching. The
// sentinel tells them apart by fingerprinting the page's content container
// across runs: zero parsed events plus a changed fingerprint is a schema
// break worth waking someone up for.
package sentinel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/metrics"
	"github.com/IntelliTrade-io/IntelliTrade/internal/state"
	"github.com/IntelliTrade-io/IntelliTrade/internal/storage"
)

// containerSelectors are tried in order to isolate the page region worth
// fingerprinting. Navigation chrome and footers churn on every deploy;
// the content container only changes when the layout actually changes.
var containerSelectors = []string{"main", "#content", "body"}

// fingerprint is the persisted per-source page hash.
type fingerprint struct {
	Hash       string    `json:"hash"`
	CapturedAt time.Time `json:"captured_at"`
	URL        string    `json:"url"`
}

// Sentinel compares page fingerprints across runs and snapshots breakage.
type Sentinel struct {
	state  state.Store
	blobs  storage.BlobStore
	hasher calendar.Hasher
	clock  calendar.Clock
	logger *zap.Logger
}

// New creates a Sentinel.
func New(st state.Store, blobs storage.BlobStore, hasher calendar.Hasher, clock calendar.Clock, logger *zap.Logger) *Sentinel {
	return &Sentinel{state: st, blobs: blobs, hasher: hasher, clock: clock, logger: logger}
}

func fingerprintKey(capture calendar.SchemaCapture) string {
	if capture.Variant != "" {
		return "schema/" + capture.Source + "_" + capture.Variant
	}
	return "schema/" + capture.Source
}

// Observe fingerprints the capture, compares it with the previous run, and
// persists the new fingerprint. It reports true when the capture indicates
// a schema break: nothing parsed from a page whose container changed.
// Storage trouble is logged and absorbed; drift detection is advisory and
// must never fail a source.
func (s *Sentinel) Observe(ctx context.Context, runID string, capture calendar.SchemaCapture) bool {
	hash := s.hasher.Short(containerContent(capture.Content))
	key := fingerprintKey(capture)

	var previous fingerprint
	havePrevious := true
	if err := s.state.Read(ctx, key, &previous); err != nil {
		havePrevious = false
		if !errors.Is(err, state.ErrNotFound) {
			s.logger.Warn("schema fingerprint read failed",
				zap.String("source", capture.Source),
				zap.Error(err))
		}
	}

	next := fingerprint{
		Hash:       hash,
		CapturedAt: s.clock.Now().UTC(),
		URL:        capture.URL,
	}
	if err := s.state.Write(ctx, key, next); err != nil {
		s.logger.Warn("schema fingerprint write failed",
			zap.String("source", capture.Source),
			zap.Error(err))
	}

	isBreak := capture.ParsedCount == 0 && havePrevious && previous.Hash != hash
	if !isBreak {
		return false
	}

	metrics.ObserveSchemaBreak(capture.Source)
	s.logger.Warn("schema break detected",
		zap.String("source", capture.Source),
		zap.String("variant", capture.Variant),
		zap.String("url", capture.URL),
		zap.String("previous_hash", previous.Hash),
		zap.String("current_hash", hash))

	s.snapshotPage(ctx, runID, capture)
	return true
}

// snapshotPage persists the raw page for offline diagnosis of the break.
func (s *Sentinel) snapshotPage(ctx context.Context, runID string, capture calendar.SchemaCapture) {
	if s.blobs == nil {
		return
	}
	name := capture.Source
	if capture.Variant != "" {
		name += "_" + capture.Variant
	}
	path := fmt.Sprintf("snapshots/%s/%s.html", name, runID)

	uri, err := s.blobs.PutObject(ctx, path, "text/html", capture.Content)
	if err != nil {
		s.logger.Warn("schema snapshot write failed",
			zap.String("source", capture.Source),
			zap.String("path", path),
			zap.Error(err))
		return
	}
	s.logger.Info("schema snapshot saved",
		zap.String("source", capture.Source),
		zap.String("uri", uri))
}

// containerContent narrows the raw page to its content container. Pages
// that do not parse as HTML are fingerprinted whole.
func containerContent(content []byte) []byte {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return content
	}
	for _, selector := range containerSelectors {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		html, err := goquery.OuterHtml(sel.First())
		if err != nil {
			return content
		}
		return []byte(html)
	}
	return content
}
