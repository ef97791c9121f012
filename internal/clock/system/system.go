// Package system provides the real clock implementation.
package system

import "time"

// Clock implements calendar.Clock using time.Now. Everything downstream
// (identity, windows, TTL math) works in UTC, so Now never returns local time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
