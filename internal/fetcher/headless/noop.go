package headless

import (
	"context"
	"errors"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

// Noop implements the renderer but always returns an error, for builds and
// deployments without a browser.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render returns an error since this is a stub implementation.
func (Noop) Render(_ context.Context, _ string) (calendar.Response, error) {
	return calendar.Response{}, errors.New("headless renderer not available in this build")
}
