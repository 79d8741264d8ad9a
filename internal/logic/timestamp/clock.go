package timestamp

import "time"

// SystemClock reads the host clocks.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Monotonic returns time elapsed on the monotonic clock (CLOCK_MONOTONIC on unix).
func (SystemClock) Monotonic() (time.Duration, error) { return monotonicNow() }

// FixedClock returns the same sample on every call.
type FixedClock struct {
	Wall time.Time
	Mono time.Duration
}

// Now returns the fixed wall-clock sample.
func (c FixedClock) Now() time.Time { return c.Wall }

// Monotonic returns the fixed monotonic sample.
func (c FixedClock) Monotonic() (time.Duration, error) { return c.Mono, nil }
