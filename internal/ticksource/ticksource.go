// Package ticksource bridges wall-clock time to the sample-count based
// Tick(samples int) calls a t30.Session expects, for callers that are not
// already running at a fixed audio sample rate (e.g. the faxctl demo
// harness driving two in-process sessions with no real modem beneath
// them).
package ticksource

/*------------------------------------------------------------------
 *
 * Purpose:	Convert elapsed monotonic time into a sample count, the
 *		way the teacher's ptt.go leans on unix ioctl calls for
 *		low-level timing rather than Go's wall-clock time.Now();
 *		here the equivalent primitive is CLOCK_MONOTONIC via
 *		golang.org/x/sys/unix, read once per Next() call.
 *
 *------------------------------------------------------------------*/

import (
	"golang.org/x/sys/unix"
)

// Source produces a monotonic nanosecond timestamp and converts the
// elapsed time since its last read into a sample count at a fixed rate.
type Source struct {
	sampleRate int
	lastNanos  int64
	started    bool
}

// New returns a Source ticking at sampleRate samples/sec (8000 if <= 0).
func New(sampleRate int) *Source {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	return &Source{sampleRate: sampleRate}
}

func monotonicNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Sec*1e9 + int64(ts.Nsec)
}

// Next reads the clock and returns how many samples have elapsed since the
// previous call (zero on the very first call, since there is no prior
// reading to measure from).
func (s *Source) Next() int {
	now := monotonicNanos()
	if !s.started {
		s.started = true
		s.lastNanos = now
		return 0
	}
	elapsed := now - s.lastNanos
	if elapsed <= 0 {
		return 0
	}
	s.lastNanos = now
	return int(elapsed * int64(s.sampleRate) / 1e9)
}

// Reset forgets the last reading, so the next Next() call returns 0 again.
func (s *Source) Reset() {
	s.started = false
}
