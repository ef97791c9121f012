package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/state"
)

// cacheEntry is the persisted record of the last successful fetch of a
// URL, carrying the validators plus the full body so a 304 can be served
// without re-downloading.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	Status       int       `json:"status"`
	Body         []byte    `json:"body"`
}

// conditionalCache stores one entry per URL under cache/<short-hash> and
// produces the If-None-Match / If-Modified-Since headers for revalidation.
type conditionalCache struct {
	store  state.Store
	hasher calendar.Hasher
}

func newConditionalCache(store state.Store, hasher calendar.Hasher) *conditionalCache {
	return &conditionalCache{store: store, hasher: hasher}
}

func (c *conditionalCache) key(url string) string {
	return "cache/" + c.hasher.Short([]byte(url))
}

// load returns the cached entry for the URL, or nil when none exists.
func (c *conditionalCache) load(ctx context.Context, url string) (*cacheEntry, error) {
	var entry cacheEntry
	if err := c.store.Read(ctx, c.key(url), &entry); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading cache entry for %s: %w", url, err)
	}
	return &entry, nil
}

// save overwrites the entry for the URL with the given successful response.
func (c *conditionalCache) save(ctx context.Context, url string, resp calendar.Response, fetchedAt time.Time) error {
	entry := cacheEntry{
		URL:          url,
		ETag:         resp.Headers.Get("ETag"),
		LastModified: resp.Headers.Get("Last-Modified"),
		FetchedAt:    fetchedAt,
		Status:       resp.StatusCode,
		Body:         resp.Body,
	}
	if err := c.store.Write(ctx, c.key(url), entry); err != nil {
		return fmt.Errorf("saving cache entry for %s: %w", url, err)
	}
	return nil
}

// conditionalHeaders returns the validator headers to attach to a request
// revalidating the given entry.
func conditionalHeaders(entry *cacheEntry) http.Header {
	headers := make(http.Header)
	if entry == nil {
		return headers
	}
	if entry.ETag != "" {
		headers.Set("If-None-Match", entry.ETag)
	}
	if entry.LastModified != "" {
		headers.Set("If-Modified-Since", entry.LastModified)
	}
	return headers
}
