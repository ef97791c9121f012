package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/metrics"
	"github.com/IntelliTrade-io/IntelliTrade/internal/policy/ratelimit"
	"github.com/IntelliTrade-io/IntelliTrade/internal/state"
)

var (
	// ErrHostBlocked is returned for requests to a host that exceeded the
	// forbidden-response threshold earlier in the run.
	ErrHostBlocked = errors.New("host blocked after repeated forbidden responses")

	// ErrRenderingDisabled is returned by GetRendered when the client was
	// built without a headless renderer.
	ErrRenderingDisabled = errors.New("headless rendering not configured")

	// ErrRenderBudgetExhausted is returned when the run has spent its
	// headless render allowance.
	ErrRenderBudgetExhausted = errors.New("render budget exhausted")
)

// RenderGate bounds how many headless renders a run may perform.
type RenderGate interface {
	AllowRender(host string) bool
}

// DelaySource reports the crawl delay a host advertises, zero for none.
type DelaySource interface {
	CrawlDelay(ctx context.Context, scheme, host string) time.Duration
}

// Config tunes the client's politeness and retry behaviour. Zero values
// fall back to the package defaults.
type Config struct {
	UserAgent          string
	MaxAttempts        int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	RetryBudget        int
	ForbiddenThreshold int
}

// Client is the shared fetch pipeline: blocker check, crawl-delay aware
// throttle, conditional request, bounded retries, and cache maintenance.
// One Client is shared by all adapters in a run; it is safe for
// concurrent use.
type Client struct {
	engine     calendar.Engine
	renderer   calendar.Renderer
	cache      *conditionalCache
	limiter    *ratelimit.HostLimiter
	robots     DelaySource
	renderGate RenderGate
	retry      *RetryPolicy
	budget     *retryBudget
	blocker    *hostBlocker
	clock      calendar.Clock
	logger     *zap.Logger

	// delayApplied tracks hosts whose robots Crawl-delay has already been
	// resolved and pinned on the limiter.
	delayApplied sync.Map
}

// New assembles a client from its collaborators.
func New(
	engine calendar.Engine,
	renderer calendar.Renderer,
	store state.Store,
	hasher calendar.Hasher,
	limiter *ratelimit.HostLimiter,
	robots DelaySource,
	renderGate RenderGate,
	clock calendar.Clock,
	cfg Config,
	logger *zap.Logger,
) *Client {
	return &Client{
		engine:     engine,
		renderer:   renderer,
		cache:      newConditionalCache(store, hasher),
		limiter:    limiter,
		robots:     robots,
		renderGate: renderGate,
		retry:      NewRetryPolicy(cfg.MaxAttempts, cfg.BaseDelay, cfg.MaxDelay),
		budget:     newRetryBudget(cfg.RetryBudget),
		blocker:    newHostBlocker(cfg.ForbiddenThreshold),
		clock:      clock,
		logger:     logger,
	}
}

// Get fetches the URL through the full politeness pipeline. A non-2xx
// final status is returned as a response with a nil error; the error
// return is reserved for blocked hosts, context cancellation, and
// transport failures that survived the retry policy.
func (c *Client) Get(ctx context.Context, rawURL string) (calendar.Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return calendar.Response{}, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return calendar.Response{}, fmt.Errorf("url %q has no host", rawURL)
	}

	if c.blocker.Blocked(host) {
		return calendar.Response{}, fmt.Errorf("%s: %w", host, ErrHostBlocked)
	}

	c.applyCrawlDelay(ctx, parsed.Scheme, host)
	if err := c.limiter.Wait(ctx, host); err != nil {
		return calendar.Response{}, fmt.Errorf("throttling %s: %w", host, err)
	}

	entry, err := c.cache.load(ctx, rawURL)
	if err != nil {
		c.logger.Warn("cache read failed",
			zap.String("url", rawURL),
			zap.Error(err))
		entry = nil
	}

	resp, err := c.fetchWithRetry(ctx, calendar.Request{
		URL:    rawURL,
		Header: conditionalHeaders(entry),
	}, host)
	if err != nil {
		return calendar.Response{}, err
	}

	if resp.StatusCode == http.StatusForbidden && c.blocker.MarkForbidden(host) {
		metrics.ObserveHostBlocked(host)
		c.logger.Warn("host blocked for remainder of run",
			zap.String("host", host),
			zap.String("url", rawURL))
	}

	if resp.StatusCode == http.StatusNotModified {
		if entry != nil {
			metrics.ObserveFetch(host, http.StatusOK, true, len(entry.Body))
			c.logger.Debug("not modified, serving cached body",
				zap.String("url", rawURL),
				zap.Time("cached_at", entry.FetchedAt))
			return calendar.Response{
				StatusCode: http.StatusOK,
				Body:       entry.Body,
				Headers:    resp.Headers,
				URL:        rawURL,
				FromCache:  true,
			}, nil
		}
		// 304 with nothing cached means the validators came from a store
		// that has since been cleared; the caller sees the bare 304.
		c.logger.Warn("not modified but cache entry missing",
			zap.String("url", rawURL))
	}

	if resp.OK() {
		if err := c.cache.save(ctx, rawURL, resp, c.clock.Now()); err != nil {
			c.logger.Warn("cache write failed",
				zap.String("url", rawURL),
				zap.Error(err))
		}
	}

	metrics.ObserveFetch(host, resp.StatusCode, false, len(resp.Body))
	return resp, nil
}

// GetRendered fetches the URL through the headless renderer, subject to
// the same blocker and throttle as plain requests plus the render budget.
// Rendered documents are not cached; the DOM is not stable enough for
// validator-based revalidation.
func (c *Client) GetRendered(ctx context.Context, rawURL string) (calendar.Response, error) {
	if c.renderer == nil {
		return calendar.Response{}, ErrRenderingDisabled
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return calendar.Response{}, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return calendar.Response{}, fmt.Errorf("url %q has no host", rawURL)
	}

	if c.blocker.Blocked(host) {
		return calendar.Response{}, fmt.Errorf("%s: %w", host, ErrHostBlocked)
	}
	if c.renderGate != nil && !c.renderGate.AllowRender(host) {
		return calendar.Response{}, fmt.Errorf("%s: %w", host, ErrRenderBudgetExhausted)
	}

	c.applyCrawlDelay(ctx, parsed.Scheme, host)
	if err := c.limiter.Wait(ctx, host); err != nil {
		return calendar.Response{}, fmt.Errorf("throttling %s: %w", host, err)
	}

	resp, err := c.renderer.Render(ctx, rawURL)
	if err != nil {
		return calendar.Response{}, fmt.Errorf("rendering %s: %w", rawURL, err)
	}
	metrics.ObserveRender(host, resp.StatusCode)
	return resp, nil
}

// applyCrawlDelay pins the robots.txt Crawl-delay on the limiter the first
// time a host is seen. Subsequent requests reuse the pinned interval.
func (c *Client) applyCrawlDelay(ctx context.Context, scheme, host string) {
	if c.robots == nil {
		return
	}
	if _, seen := c.delayApplied.LoadOrStore(host, struct{}{}); seen {
		return
	}
	delay := c.robots.CrawlDelay(ctx, scheme, host)
	if delay <= 0 {
		return
	}
	c.limiter.SetHostInterval(host, delay)
	c.logger.Debug("applying robots crawl-delay",
		zap.String("host", host),
		zap.Duration("delay", delay))
}

// fetchWithRetry runs the engine until the response is acceptable, the
// attempt ceiling is hit, or the run-wide retry budget is spent.
func (c *Client) fetchWithRetry(ctx context.Context, req calendar.Request, host string) (calendar.Response, error) {
	var (
		resp    calendar.Response
		lastErr error
	)

	for attempt := 0; ; attempt++ {
		resp, lastErr = c.engine.Fetch(ctx, req)

		retryable := false
		switch {
		case lastErr != nil:
			if !c.retry.RetryableError(lastErr) {
				return calendar.Response{}, fmt.Errorf("fetching %s: %w", req.URL, lastErr)
			}
			retryable = true
		case c.retry.RetryableStatus(resp.StatusCode):
			retryable = true
		}

		if !retryable || attempt+1 >= c.retry.MaxAttempts() {
			break
		}
		if !c.budget.take() {
			c.logger.Warn("retry budget exhausted, returning last result",
				zap.String("url", req.URL),
				zap.Int("attempt", attempt+1))
			break
		}

		delay := c.retry.Backoff(attempt)
		if lastErr == nil {
			if serverDelay, ok := RetryAfterDelay(resp.Headers, c.clock.Now()); ok && serverDelay > delay {
				delay = serverDelay
			}
		}

		metrics.ObserveRetry(host)
		c.logger.Debug("retrying fetch",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Int("status", resp.StatusCode),
			zap.Duration("backoff", delay),
			zap.Error(lastErr))

		if err := pause(ctx, delay); err != nil {
			return calendar.Response{}, err
		}
	}

	if lastErr != nil {
		return calendar.Response{}, fmt.Errorf("fetching %s: %w", req.URL, lastErr)
	}
	return resp, nil
}

// pause sleeps for the given duration unless the context ends first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
