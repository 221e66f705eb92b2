// Package cycles is the monotonic tick source used for all time attribution
// in the runtime.
//
// On platforms without a portable way to read the hardware cycle counter the
// source is the process monotonic clock, so one tick equals one nanosecond.
// Readings are only ever compared and subtracted within a single process.
package cycles

import "time"

// Ticks is a reading of the monotonic tick source.
type Ticks uint64

// epoch anchors readings so that Ticks values stay small and monotonic.
var epoch = time.Now()

// ticksPerNanosecond is the calibrated ratio of the tick source. The
// monotonic-clock source ticks in nanoseconds, so the ratio is exactly one;
// it is kept as a named constant so report consumers can rely on the
// conversion being explicit.
const ticksPerNanosecond = 1

// Now returns the current reading of the tick source. Readings are strictly
// non-decreasing within a process.
func Now() Ticks {
	return Ticks(time.Since(epoch))
}

// Since returns the ticks elapsed since start, clamped at zero.
func Since(start Ticks) Ticks {
	now := Now()
	if now < start {
		return 0
	}
	return now - start
}

// ToNanoseconds converts a tick count to nanoseconds.
func ToNanoseconds(t Ticks) int64 {
	return int64(t) / ticksPerNanosecond
}

// ToDuration converts a tick count to a time.Duration for reporting.
func ToDuration(t Ticks) time.Duration {
	return time.Duration(ToNanoseconds(t))
}
