// Package clock abstracts the wall clock so that time-driven components can be
// tested deterministically.
package clock

import "time"

// Clock is the only time source used by the automod components.
type Clock interface {
	Now() time.Time
	// After waits for the duration to elapse and then sends the current time on the returned channel.
	After(d time.Duration) <-chan time.Time
}

// RealClock delegates to package time.
type RealClock struct{}

var _ Clock = (*RealClock)(nil)

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
