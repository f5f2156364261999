package shared

import "time"

// Clock supplies the current time so services stay deterministic in tests.
type Clock func() time.Time

// SystemClock returns the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// OrSystem falls back to SystemClock when no clock was injected.
func (c Clock) OrSystem() Clock {
	if c == nil {
		return SystemClock
	}
	return c
}
