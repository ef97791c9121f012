package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const (
	robotsFetchTimeout = 10 * time.Second
	robotsMaxBodySize  = 1 << 20 // 1MB
)

// RobotsDirectory fetches and caches robots.txt per host. The collector
// only consults the Crawl-delay directive; a host that cannot produce a
// parseable robots.txt simply yields no delay.
type RobotsDirectory struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	// cache maps host -> *robotstxt.RobotsData. A nil value records a
	// fetch or parse failure so the host is not re-fetched every request.
	cache sync.Map
}

// NewRobotsDirectory creates a directory identifying itself as userAgent.
func NewRobotsDirectory(userAgent string, logger *zap.Logger) *RobotsDirectory {
	return &RobotsDirectory{
		client:    &http.Client{Timeout: robotsFetchTimeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// CrawlDelay returns the Crawl-delay robots.txt advertises for the
// directory's user agent, or zero when the host declares none.
func (d *RobotsDirectory) CrawlDelay(ctx context.Context, scheme, host string) time.Duration {
	data := d.robotsData(ctx, scheme, host)
	if data == nil {
		return 0
	}
	group := data.FindGroup(d.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (d *RobotsDirectory) robotsData(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	if cached, ok := d.cache.Load(host); ok {
		data, _ := cached.(*robotstxt.RobotsData)
		return data
	}

	data, err := d.fetch(ctx, scheme, host)
	if err != nil {
		d.logger.Debug("robots.txt unavailable",
			zap.String("host", host),
			zap.Error(err))
		data = nil
	}
	d.cache.Store(host, data)
	return data
}

func (d *RobotsDirectory) fetch(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building robots request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", robotsURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", robotsURL, err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", robotsURL, err)
	}
	return data, nil
}
