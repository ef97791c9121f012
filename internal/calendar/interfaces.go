package calendar

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Session is the per-source view adapters fetch through. Get routes through
// the conditional cache and politeness throttle; GetRendered goes through the
// headless renderer when a page turns out to be a JS shell. CaptureSchema
// feeds the drift sentinel and ReportDiscovery lets the adapter declare how
// it obtained its events (the raw total is the pre-window-filter feed size,
// used for quorum detection).
type Session interface {
	Get(ctx context.Context, url string) (Response, error)
	GetRendered(ctx context.Context, url string) (Response, error)
	CaptureSchema(ctx context.Context, capture SchemaCapture)
	ReportDiscovery(path DiscoveryPath, rawTotal int)
	Logger() *zap.Logger
}

// AdapterFunc fetches one source's events for the window. Fallback handlers
// share the signature.
type AdapterFunc func(ctx context.Context, session Session, window Window) ([]Event, error)

// Engine performs one HTTP fetch. Implementations must return non-2xx
// responses with a nil error; errors are reserved for transport failures.
type Engine interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}

// Renderer fetches a URL through a headless browser and returns the rendered
// DOM.
type Renderer interface {
	Render(ctx context.Context, url string) (Response, error)
}

// Hasher computes digests for cache keys and schema fingerprints. Short is
// the truncated 16-character form persisted state is keyed by.
type Hasher interface {
	Hash(data []byte) (string, error)
	Short(data []byte) string
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
