// Package simple contains small admission policies for expensive fetch
// paths.
package simple

import "sync"

// defaultRenderAllowance caps headless renders per run. Rendering is two
// orders of magnitude more expensive than a plain GET, so a run that
// suddenly wants many renders is almost always a parsing regression, not
// a legitimate need.
const defaultRenderAllowance = 12

// RenderPolicy grants a bounded number of headless renders per run.
type RenderPolicy struct {
	mu        sync.Mutex
	remaining int
	unlimited bool
	perHost   map[string]int
}

// NewRenderPolicy creates a policy allowing at most allowance renders.
// A negative allowance removes the cap; zero applies the default.
func NewRenderPolicy(allowance int) *RenderPolicy {
	if allowance == 0 {
		allowance = defaultRenderAllowance
	}
	return &RenderPolicy{
		remaining: allowance,
		unlimited: allowance < 0,
		perHost:   make(map[string]int),
	}
}

// AllowRender consumes one render from the allowance, returning false once
// the run has spent it.
func (p *RenderPolicy) AllowRender(host string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unlimited {
		p.perHost[host]++
		return true
	}
	if p.remaining <= 0 {
		return false
	}
	p.remaining--
	p.perHost[host]++
	return true
}

// RendersByHost reports how many renders each host consumed so far.
func (p *RenderPolicy) RendersByHost() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.perHost))
	for host, n := range p.perHost {
		out[host] = n
	}
	return out
}
