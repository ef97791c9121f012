package session

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
	defaultRetryBudget = 20
)

// retryableStatuses are the transient responses worth another attempt. 403
// is included because several statistics agencies emit it from rate
// limiters rather than as a true permission failure.
var retryableStatuses = map[int]bool{
	http.StatusForbidden:           true,
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryPolicy decides whether a failed fetch should be retried and how
// long to back off between attempts.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewRetryPolicy creates a policy with the given attempt ceiling and
// backoff bounds. Non-positive arguments fall back to the defaults.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// MaxAttempts returns the total attempt ceiling, first try included.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// RetryableStatus reports whether the HTTP status warrants another attempt.
func (p *RetryPolicy) RetryableStatus(status int) bool {
	return retryableStatuses[status]
}

// RetryableError reports whether a transport error warrants another
// attempt. Context cancellation never does.
func (p *RetryPolicy) RetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return true
}

// Backoff computes the delay before the given retry (0-based attempt index
// of the request that just failed) using exponential growth with jitter.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.baseDelay * (1 << uint(attempt))
	if delay > p.maxDelay {
		delay = p.maxDelay
	}

	half := delay / 2
	jitter, err := rand.Int(rand.Reader, big.NewInt(int64(half)+1))
	if err != nil {
		return delay
	}
	return half + time.Duration(jitter.Int64())
}

// RetryAfterDelay parses a Retry-After header, which servers send either
// as a delay in seconds or as an HTTP date. The second return is false
// when the header is absent or unparseable.
func RetryAfterDelay(headers http.Header, now time.Time) (time.Duration, bool) {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// retryBudget caps the retries a whole run may spend across all hosts, so
// a run full of flapping sources cannot multiply its request volume.
type retryBudget struct {
	mu        sync.Mutex
	remaining int
}

func newRetryBudget(size int) *retryBudget {
	if size <= 0 {
		size = defaultRetryBudget
	}
	return &retryBudget{remaining: size}
}

// take consumes one retry from the budget, returning false once spent.
func (b *retryBudget) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}
