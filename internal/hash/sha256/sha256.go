// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// shortLen is the truncated digest length used for cache keys and schema
// fingerprints, long enough that collisions across a few dozen sources are
// not a concern.
const shortLen = 16

// Hasher implements calendar.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Short returns the first 16 hex characters of the digest. Cache entries and
// schema sentinels key on this form.
func (h *Hasher) Short(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:shortLen]
}
