// Package collyfetcher implements the fetch engine on the gocolly
// collector. It is the alternative to the plain net/http engine for
// sources whose sites behave better with a crawler-grade HTTP stack
// (cookie handling, charset detection, response size caps).
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Engine implements the fetch engine using a cloned Colly collector per
// request. Robots enforcement is off: the session layer owns politeness.
type Engine struct {
	cfg  Config
	base *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds an Engine.
func New(cfg Config) *Engine {
	base := colly.NewCollector(colly.Async(false))
	base.WithTransport(newHTTPTransport())
	base.IgnoreRobotsTxt = true
	base.AllowURLRevisit = true
	// Error statuses must surface as ordinary responses so the caller can
	// decide between caching, retrying, and blocking.
	base.ParseHTTPErrorResponse = true
	if cfg.MaxBodyBytes > 0 {
		base.MaxBodySize = cfg.MaxBodyBytes
	}
	return &Engine{cfg: cfg, base: base}
}

// Fetch executes a single GET using a collector clone.
func (e *Engine) Fetch(ctx context.Context, req calendar.Request) (calendar.Response, error) {
	var (
		result   calendar.Response
		captured bool
		fetchErr error
	)

	collector := e.buildCollector()
	e.configureHooks(collector, req, &result, &captured, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return calendar.Response{}, fmt.Errorf("fetch of %s canceled: %w", req.URL, ctx.Err())
	case err := <-done:
		if captured {
			return result, nil
		}
		if fetchErr != nil {
			return calendar.Response{}, fmt.Errorf("fetching %s: %w", req.URL, fetchErr)
		}
		if err != nil {
			return calendar.Response{}, fmt.Errorf("visiting %s: %w", req.URL, err)
		}
		return calendar.Response{}, fmt.Errorf("no response received for %s", req.URL)
	}
}

func (e *Engine) buildCollector() *colly.Collector {
	collector := e.base.Clone()
	if e.cfg.UserAgent != "" {
		collector.UserAgent = e.cfg.UserAgent
	}
	timeout := e.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)
	return collector
}

func (e *Engine) configureHooks(
	hooks collectorHooks,
	req calendar.Request,
	result *calendar.Response,
	captured *bool,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range req.Header {
			for _, value := range values {
				r.Headers.Set(key, value)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = calendar.Response{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Headers:    cloneHeaders(r.Headers),
			URL:        r.Request.URL.String(),
		}
		*captured = true
	})

	hooks.OnError(func(r *colly.Response, err error) {
		// Transport failures arrive here with a zero status; anything with
		// a real status is still a usable response.
		if r != nil && r.StatusCode > 0 {
			*result = calendar.Response{
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
				Headers:    cloneHeaders(r.Headers),
				URL:        req.URL,
			}
			*captured = true
			return
		}
		*fetchErr = err
	})
}

func cloneHeaders(h *http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h.Clone()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
