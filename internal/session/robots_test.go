package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, string, *atomic.Int64) {
	t.Helper()

	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	return server, parsed.Host, &hits
}

func TestRobotsDirectoryReadsCrawlDelay(t *testing.T) {
	t.Parallel()

	_, host, hits := robotsServer(t, http.StatusOK, "User-agent: *\nCrawl-delay: 2\n")
	dir := NewRobotsDirectory("econcal-test/1.0", zap.NewNop())

	delay := dir.CrawlDelay(context.Background(), "http", host)
	require.Equal(t, 2*time.Second, delay)

	// Second lookup is served from the per-host cache.
	delay = dir.CrawlDelay(context.Background(), "http", host)
	require.Equal(t, 2*time.Second, delay)
	require.Equal(t, int64(1), hits.Load())
}

func TestRobotsDirectoryNoDelayDirective(t *testing.T) {
	t.Parallel()

	_, host, _ := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n")
	dir := NewRobotsDirectory("econcal-test/1.0", zap.NewNop())

	require.Zero(t, dir.CrawlDelay(context.Background(), "http", host))
}

func TestRobotsDirectoryMissingRobots(t *testing.T) {
	t.Parallel()

	_, host, _ := robotsServer(t, http.StatusNotFound, "not here")
	dir := NewRobotsDirectory("econcal-test/1.0", zap.NewNop())

	require.Zero(t, dir.CrawlDelay(context.Background(), "http", host))
}

func TestRobotsDirectoryUnreachableHost(t *testing.T) {
	t.Parallel()

	server, host, _ := robotsServer(t, http.StatusOK, "User-agent: *\nCrawl-delay: 9\n")
	server.Close()

	dir := NewRobotsDirectory("econcal-test/1.0", zap.NewNop())
	require.Zero(t, dir.CrawlDelay(context.Background(), "http", host))

	// The failure is cached, not retried on the next request.
	require.Zero(t, dir.CrawlDelay(context.Background(), "http", host))
}
