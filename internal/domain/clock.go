package domain

import "time"

// Clock provides the current time. Components take a Clock instead of
// calling time.Now so rate windows, cache TTLs, and token expiry are
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by the system clock.
type RealClock struct{}

var _ Clock = RealClock{}

func (RealClock) Now() time.Time { return time.Now() }

// NowUTCMillis returns the current wall clock as UTC milliseconds since
// epoch, the representation used for every persisted and wire timestamp.
func NowUTCMillis(c Clock) int64 {
	return c.Now().UTC().UnixMilli()
}

// FromMillis converts epoch milliseconds back to a UTC time.Time with no
// monotonic reading.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
