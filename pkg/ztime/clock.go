package ztime

import "time"

// Clock supplies the current time and timer channels.
// Parsing reads Now; Wait and Loop also use After.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// After returns time.After(d).
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// FixedClock reports the same instant forever. Its timers still fire after
// the real delay has elapsed.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }

// After returns time.After(d).
func (FixedClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

var (
	_ Clock = SystemClock{}
	_ Clock = FixedClock{}
)
