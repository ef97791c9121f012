package session

import "sync"

// defaultForbiddenThreshold is how many requests may complete with a final
// 403 before the host is cut off for the rest of the run.
const defaultForbiddenThreshold = 3

// hostBlocker counts requests whose final status was 403 Forbidden and
// blocks a host once the count reaches the threshold. Blocked hosts stay
// blocked for the lifetime of the session.
type hostBlocker struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
	blocked   map[string]bool
}

func newHostBlocker(threshold int) *hostBlocker {
	if threshold <= 0 {
		threshold = defaultForbiddenThreshold
	}
	return &hostBlocker{
		threshold: threshold,
		counts:    make(map[string]int),
		blocked:   make(map[string]bool),
	}
}

// Blocked reports whether the host has been cut off.
func (b *hostBlocker) Blocked(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocked[host]
}

// MarkForbidden records one forbidden response for the host and returns
// true on the call that crosses the threshold.
func (b *hostBlocker) MarkForbidden(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.blocked[host] {
		return false
	}
	b.counts[host]++
	if b.counts[host] >= b.threshold {
		b.blocked[host] = true
		return true
	}
	return false
}
