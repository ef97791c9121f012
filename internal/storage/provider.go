// Package storage defines the blob store seam for run artifacts: schema-break
// HTML snapshots and exported feeds. The abstraction keeps the collector
// independent of where artifacts land (Google Cloud Storage, the local
// filesystem, or memory in tests).
package storage

import "context"

// BlobStore writes a raw artifact and returns a URI locating it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// NoOpStore discards artifacts. Useful for dry runs where snapshots are not
// wanted.
type NoOpStore struct{}

// PutObject drops the data and returns an empty URI.
func (NoOpStore) PutObject(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}
