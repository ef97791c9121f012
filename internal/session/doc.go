// Package session implements the polite HTTP client used by every source
// adapter: a per-host throttled, robots-aware fetcher with conditional
// request caching, bounded retries, and a forbidden-host blocker.
package session
