package collector

import (
	"errors"
	"fmt"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

// Registration describes one source: its adapter, its fallback, and the
// calibration the health gate uses to judge its output.
type Registration struct {
	// Key is the canonical source name (BLS, EUROSTAT, ...).
	Key     string
	Country string
	Agency  string

	// Adapter is the primary fetch path. Fallback, when set, runs only
	// when the primary output misses the scaled floor.
	Adapter  calendar.AdapterFunc
	Fallback calendar.AdapterFunc

	// DegradeOnShortfall marks sources whose fallback is a static
	// schedule: needing it degrades the source even if the union of
	// primary and fallback reaches the floor.
	DegradeOnShortfall bool

	// BaseFloor is the expected event count over a 60-day window. Zero
	// means the source is sporadic; it still owes one event per window.
	BaseFloor int

	// LKGTTLDays bounds how old a last-known-good snapshot may be before
	// it stops substituting for an empty result.
	LKGTTLDays int

	// BigFeederThreshold, when positive, enrolls the source in quorum
	// detection with this minimum raw feed size.
	BigFeederThreshold int

	// Aliases are retired names this source still answers to.
	Aliases []string
}

// Registry is the validated, ordered set of registrations. Validation is
// the only error surface at startup: a malformed registry is a programming
// mistake, not a runtime condition to degrade around.
type Registry struct {
	ordered []Registration
	byName  map[string]int
}

// NewRegistry validates registrations and indexes them by key and alias.
func NewRegistry(regs []Registration) (*Registry, error) {
	registry := &Registry{
		ordered: make([]Registration, 0, len(regs)),
		byName:  make(map[string]int, len(regs)),
	}
	for _, reg := range regs {
		if reg.Key == "" {
			return nil, errors.New("registration with empty key")
		}
		if reg.Adapter == nil {
			return nil, fmt.Errorf("source %s has no adapter", reg.Key)
		}
		if idx, dup := registry.byName[reg.Key]; dup {
			return nil, fmt.Errorf("source key %s already registered by %s", reg.Key, registry.ordered[idx].Key)
		}
		pos := len(registry.ordered)
		registry.ordered = append(registry.ordered, reg)
		registry.byName[reg.Key] = pos
		for _, alias := range reg.Aliases {
			if idx, dup := registry.byName[alias]; dup {
				return nil, fmt.Errorf("alias %s of %s collides with %s", alias, reg.Key, registry.ordered[idx].Key)
			}
			registry.byName[alias] = pos
		}
	}
	return registry, nil
}

// Sources returns the registrations in registration order.
func (r *Registry) Sources() []Registration {
	out := make([]Registration, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Resolve finds a registration by canonical key or alias.
func (r *Registry) Resolve(name string) (Registration, bool) {
	idx, ok := r.byName[name]
	if !ok {
		return Registration{}, false
	}
	return r.ordered[idx], true
}

// Thresholds returns the quorum thresholds of the big feeders.
func (r *Registry) Thresholds() map[string]int {
	out := make(map[string]int)
	for _, reg := range r.ordered {
		if reg.BigFeederThreshold > 0 {
			out[reg.Key] = reg.BigFeederThreshold
		}
	}
	return out
}
