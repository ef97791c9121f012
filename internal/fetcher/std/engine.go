// Package stdengine implements the fetch engine on net/http. It is the
// default engine: calendar feeds are static documents and need neither
// link-following nor JavaScript.
package stdengine

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 10 << 20 // 10MB
)

// Config controls request behaviour.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Engine issues plain GET requests with a pooled transport.
type Engine struct {
	cfg    Config
	client *http.Client
}

// New builds an Engine.
func New(cfg Config) *Engine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Engine{
		cfg: cfg,
		client: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(),
		},
	}
}

// Fetch performs one GET. Any HTTP status is returned as a response with
// a nil error; errors are reserved for transport failures.
func (e *Engine) Fetch(ctx context.Context, req calendar.Request) (calendar.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return calendar.Response{}, fmt.Errorf("building request for %s: %w", req.URL, err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Set(key, value)
		}
	}
	if e.cfg.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return calendar.Response{}, fmt.Errorf("fetching %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	limit := e.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return calendar.Response{}, fmt.Errorf("reading body of %s: %w", req.URL, err)
	}

	return calendar.Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header.Clone(),
		URL:        resp.Request.URL.String(),
	}, nil
}

func newTransport() *http.Transport {
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
