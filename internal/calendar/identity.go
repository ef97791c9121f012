package calendar

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventID derives the content-addressed identity of an event from its
// country, agency, title, and second-truncated UTC timestamp. Two fetches of
// the same release always collide; any change to one of the four fields
// yields a new identity.
func EventID(country, agency, title string, at time.Time) string {
	ts := at.UTC().Truncate(time.Second).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(country + "|" + agency + "|" + title + "|" + ts))
	return hex.EncodeToString(sum[:])
}

// RevisionChecksum fingerprints the mutable half of an event. Sources
// sometimes reissue an entry under the same identity with a changed URL or
// retitled text; a checksum mismatch on a duplicate ID marks a silent
// revision.
func RevisionChecksum(title string, at time.Time, url string) string {
	ts := at.UTC().Truncate(time.Second).Format(time.RFC3339)
	sum := sha256.Sum256([]byte(title + "|" + ts + "|" + url))
	return hex.EncodeToString(sum[:])
}
