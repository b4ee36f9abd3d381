package types

import "time"

// Clock abstracts time for testability. Every component that reads the wall
// clock takes a Clock so tests can pin "now" and exercise window boundaries
// deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock implements Clock with a pinned time. Intended for tests.
type FixedClock struct {
	T time.Time
}

// Now returns the pinned time.
func (c FixedClock) Now() time.Time { return c.T }
