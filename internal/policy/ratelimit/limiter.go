// Package ratelimit paces outbound requests per host. Intervals come from
// robots.txt Crawl-delay when a host advertises one, otherwise from the
// per-host politeness table, otherwise from the global default. A small
// random jitter keeps request timing from looking mechanical.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/IntelliTrade-io/IntelliTrade/internal/metrics"
)

// Config holds host pacing configuration.
type Config struct {
	// DefaultInterval spaces requests to hosts with no specific entry.
	DefaultInterval time.Duration
	// HostIntervals overrides the default for specific hosts.
	HostIntervals map[string]time.Duration
	// JitterMin/JitterMax bound the random delay added to every wait.
	// JitterMax <= JitterMin disables jitter.
	JitterMin time.Duration
	JitterMax time.Duration
}

// HostLimiter manages one token bucket per host.
type HostLimiter struct {
	mu              sync.Mutex
	limiters        map[string]*rate.Limiter
	intervals       map[string]time.Duration
	hostDefaults    map[string]time.Duration
	defaultInterval time.Duration
	jitterMin       time.Duration
	jitterMax       time.Duration
}

// New creates a new HostLimiter.
func New(cfg Config) *HostLimiter {
	interval := cfg.DefaultInterval
	if interval < 0 {
		interval = 0
	}
	defaults := make(map[string]time.Duration, len(cfg.HostIntervals))
	for host, d := range cfg.HostIntervals {
		defaults[host] = d
	}
	return &HostLimiter{
		limiters:        make(map[string]*rate.Limiter),
		intervals:       make(map[string]time.Duration),
		hostDefaults:    defaults,
		defaultInterval: interval,
		jitterMin:       cfg.JitterMin,
		jitterMax:       cfg.JitterMax,
	}
}

// SetHostInterval pins a host's pacing interval, typically from a robots.txt
// Crawl-delay. The advertised value wins over the configured table.
func (l *HostLimiter) SetHostInterval(host string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.intervals[host]; ok && current == interval {
		return
	}
	l.intervals[host] = interval
	// Replace the bucket so the new spacing applies from the next request.
	l.limiters[host] = rate.NewLimiter(rate.Every(interval), 1)
}

// Interval reports the effective spacing for a host.
func (l *HostLimiter) Interval(host string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolveLocked(host)
}

func (l *HostLimiter) resolveLocked(host string) time.Duration {
	if d, ok := l.intervals[host]; ok {
		return d
	}
	if d, ok := l.hostDefaults[host]; ok {
		return d
	}
	return l.defaultInterval
}

func (l *HostLimiter) limiterLocked(host string) *rate.Limiter {
	limiter, ok := l.limiters[host]
	if ok {
		return limiter
	}
	interval := l.resolveLocked(host)
	if interval <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	} else {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	l.limiters[host] = limiter
	return limiter
}

// Wait blocks until the host's bucket yields a token, then sleeps the jitter,
// respecting the context throughout.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	l.mu.Lock()
	limiter := l.limiterLocked(host)
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait for %s: %w", host, err)
	}
	if err := l.sleepJitter(ctx); err != nil {
		return fmt.Errorf("throttle jitter for %s: %w", host, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveThrottleDelay(host, waited)
	}
	return nil
}

func (l *HostLimiter) sleepJitter(ctx context.Context) error {
	if l.jitterMax <= l.jitterMin {
		return nil
	}
	delay := l.jitterMin + rand.N(l.jitterMax-l.jitterMin)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
