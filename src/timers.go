package t30

/*------------------------------------------------------------------
 *
 * Purpose:	The four logical timers (T0, T1, T2/T4 multiplexed, T3,
 *		T5) driven by a sample-tick counter rather than wall
 *		clock time, so the session has no hidden dependency on a
 *		real-time clock or goroutine scheduler.
 *
 * Description:	Each timer is a signed countdown in samples; positive
 *		means running.  T2 and T4 share one physical counter
 *		(spec §8 invariant 4: at most one of the two runs at a
 *		time) distinguished by the usingT4 flag.
 *
 *------------------------------------------------------------------*/

// Default timer durations in milliseconds, per spec §3.
const (
	DefaultT0Ms = 60000
	DefaultT1Ms = 35000
	DefaultT2Ms = 7000
	DefaultT3Ms = 15000
	DefaultT4Ms = 3450
	DefaultT5Ms = 65000

	// MaxMessageTries bounds the T4 retry loop (§4.3, §8 invariant 5).
	MaxMessageTries = 3
)

// T4Context distinguishes which outgoing command T4 is waiting on, so
// its expiry can raise the right state-specific status.
type T4Context int

const (
	T4ContextNone T4Context = iota
	T4ContextPhaseB
	T4ContextPhaseD
)

// TimerBase holds the countdowns, expressed in samples remaining.
type TimerBase struct {
	sampleRate int // samples/sec, used to convert ms -> samples

	t0 int
	t1 int
	t3 int
	t5 int

	t2t4      int // shared counter
	usingT4   bool
	t4Context T4Context

	// Overridable durations, in milliseconds.
	T0Ms, T1Ms, T2Ms, T3Ms, T4Ms, T5Ms int
}

// NewTimerBase constructs a TimerBase with default durations at the given
// sample rate (samples per second).
func NewTimerBase(sampleRate int) *TimerBase {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	return &TimerBase{
		sampleRate: sampleRate,
		T0Ms:       DefaultT0Ms,
		T1Ms:       DefaultT1Ms,
		T2Ms:       DefaultT2Ms,
		T3Ms:       DefaultT3Ms,
		T4Ms:       DefaultT4Ms,
		T5Ms:       DefaultT5Ms,
	}
}

func (tb *TimerBase) msToSamples(ms int) int {
	return ms * tb.sampleRate / 1000
}

// StartT0 arms the pre-contact timer.
func (tb *TimerBase) StartT0() { tb.t0 = tb.msToSamples(tb.T0Ms) }

// StartT1 arms the post-contact/pre-identify timer.
func (tb *TimerBase) StartT1() { tb.t1 = tb.msToSamples(tb.T1Ms) }

// StartT3 arms the operator-interrupt timer.
func (tb *TimerBase) StartT3() { tb.t3 = tb.msToSamples(tb.T3Ms) }

// StartT5 arms the receiver-not-ready tolerance timer.
func (tb *TimerBase) StartT5() { tb.t5 = tb.msToSamples(tb.T5Ms) }

// StopT0, StopT1, StopT3, StopT5 disarm their respective timers.
func (tb *TimerBase) StopT0() { tb.t0 = 0 }
func (tb *TimerBase) StopT1() { tb.t1 = 0 }
func (tb *TimerBase) StopT3() { tb.t3 = 0 }
func (tb *TimerBase) StopT5() { tb.t5 = 0 }

// StartT2 arms the command/response synchronization timer, stopping T4 if
// it was running (they share storage).
func (tb *TimerBase) StartT2() {
	tb.t2t4 = tb.msToSamples(tb.T2Ms)
	tb.usingT4 = false
}

// StartT4 arms the response-to-command wait timer for the given context,
// stopping T2 if it was running.
func (tb *TimerBase) StartT4(ctx T4Context) {
	tb.t2t4 = tb.msToSamples(tb.T4Ms)
	tb.usingT4 = true
	tb.t4Context = ctx
}

// StopT2T4 disarms whichever of T2/T4 is currently active.
func (tb *TimerBase) StopT2T4() {
	tb.t2t4 = 0
	tb.usingT4 = false
}

// T2Running / T4Running report which of the shared pair is live.
func (tb *TimerBase) T2Running() bool { return tb.t2t4 > 0 && !tb.usingT4 }
func (tb *TimerBase) T4Running() bool { return tb.t2t4 > 0 && tb.usingT4 }

// TimerEvent names which timer fired on a given Tick call.
type TimerEvent int

const (
	TimerEventNone TimerEvent = iota
	TimerEventT0
	TimerEventT1
	TimerEventT2
	TimerEventT3
	TimerEventT4
	TimerEventT5
)

// Tick decrements the running timers by samples, in the order T0, T1,
// T3, T5, T2/T4, and returns the first one observed to cross zero, along
// with its T4Context if applicable. It returns at that first expiry, so
// the timers after it in that order are not decremented on that call.
// Only one expiry is reported per call; Session.Tick handles that one
// event and does not call again within the same tick.
func (tb *TimerBase) Tick(samples int) (TimerEvent, T4Context) {
	if samples <= 0 {
		samples = 1
	}

	if tb.t0 > 0 {
		tb.t0 -= samples
		if tb.t0 <= 0 {
			tb.t0 = 0
			return TimerEventT0, T4ContextNone
		}
	}
	if tb.t1 > 0 {
		tb.t1 -= samples
		if tb.t1 <= 0 {
			tb.t1 = 0
			return TimerEventT1, T4ContextNone
		}
	}
	if tb.t3 > 0 {
		tb.t3 -= samples
		if tb.t3 <= 0 {
			tb.t3 = 0
			return TimerEventT3, T4ContextNone
		}
	}
	if tb.t5 > 0 {
		tb.t5 -= samples
		if tb.t5 <= 0 {
			tb.t5 = 0
			return TimerEventT5, T4ContextNone
		}
	}
	if tb.t2t4 > 0 {
		tb.t2t4 -= samples
		if tb.t2t4 <= 0 {
			ctx := tb.t4Context
			wasT4 := tb.usingT4
			tb.t2t4 = 0
			tb.usingT4 = false
			if wasT4 {
				return TimerEventT4, ctx
			}
			return TimerEventT2, T4ContextNone
		}
	}
	return TimerEventNone, T4ContextNone
}
