// Package system provides the wall clock used by pipeline runs.
package system

import "time"

// Clock implements records.Clock using time.Now in the process's local zone.
// The last-updated marker and the current-year boundary are both local.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current local time.
func (Clock) Now() time.Time {
	return time.Now()
}

// Fixed is a Clock that always returns the same instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return time.Time(f)
}
