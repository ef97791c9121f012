// Package state defines the keyed record store the collector persists its
// cross-run state in: conditional-cache entries, last-known-good snapshots,
// schema fingerprints, and health counters. Records are small JSON documents
// addressed by slash-separated keys ("cache/<hash>", "lkg/<source>",
// "schema/<source>", "health/counters").
package state

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no record exists under a key. Callers treat it
// as absence, not failure.
var ErrNotFound = errors.New("state: record not found")

// Store persists keyed JSON records across runs.
type Store interface {
	Read(ctx context.Context, key string, v any) error
	Write(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}
