// Package system provides lead.Clock implementations.
package system

import "time"

// Clock implements lead.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a clock pinned to one instant, used for previews such as "due at".
type Fixed struct {
	At time.Time
}

// Now returns the pinned instant in UTC.
func (f Fixed) Now() time.Time {
	return f.At.UTC()
}
