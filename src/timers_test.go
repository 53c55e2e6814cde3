package t30

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestTimerBaseT1Expiry(t *testing.T) {
	tb := NewTimerBase(8000)
	tb.T1Ms = 100
	tb.StartT1()

	event, _ := tb.Tick(tb.msToSamples(50))
	assert.Equal(t, TimerEventNone, event)

	event, _ = tb.Tick(tb.msToSamples(60))
	assert.Equal(t, TimerEventT1, event)
}

func TestTimerBaseT2T4AreExclusive(t *testing.T) {
	tb := NewTimerBase(8000)
	tb.StartT2()
	assert.True(t, tb.T2Running())
	assert.False(t, tb.T4Running())

	tb.StartT4(T4ContextPhaseD)
	assert.False(t, tb.T2Running())
	assert.True(t, tb.T4Running())
}

func TestTimerBaseT4CarriesContext(t *testing.T) {
	tb := NewTimerBase(8000)
	tb.T4Ms = 10
	tb.StartT4(T4ContextPhaseB)

	event, ctx := tb.Tick(tb.msToSamples(20))
	assert.Equal(t, TimerEventT4, event)
	assert.Equal(t, T4ContextPhaseB, ctx)
}

func TestTimerBaseStopDisarms(t *testing.T) {
	tb := NewTimerBase(8000)
	tb.StartT0()
	tb.StopT0()
	event, _ := tb.Tick(tb.msToSamples(tb.T0Ms + 1000))
	assert.NotEqual(t, TimerEventT0, event)
}

// TestTimerBaseExclusivity is a property test covering spec invariant 4:
// at every point in time at most one of T2/T4 reports running.
func TestTimerBaseExclusivity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tb := NewTimerBase(8000)
		steps := rapid.IntRange(1, 20).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				tb.StartT2()
			case 1:
				tb.StartT4(T4ContextPhaseD)
			case 2:
				tb.StopT2T4()
			}
			assert.False(rt, tb.T2Running() && tb.T4Running())
		}
	})
}
