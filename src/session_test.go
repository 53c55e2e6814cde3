package t30

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackEnv is a two-sided bus environment for driving two Sessions
// against each other from a single test, mirroring cmd/faxctl's
// busEnvironment but without any logging dependency. Each side owns only
// its own outbox; drain delivers whatever this side has sent into the
// Session passed in (almost always the peer).
type loopbackEnv struct {
	outbox    *[][]byte
	MorePages bool
}

func newLoopbackPair() (caller *loopbackEnv, answerer *loopbackEnv) {
	caller = &loopbackEnv{outbox: &[][]byte{}}
	answerer = &loopbackEnv{outbox: &[][]byte{}}
	return
}

func (e *loopbackEnv) SendHDLC(frame []byte) {
	if frame == nil {
		return
	}
	*e.outbox = append(*e.outbox, frame)
}
func (e *loopbackEnv) SetRxModem(modem ModemType, shortTrain, useHDLC bool) {}
func (e *loopbackEnv) SetTxModem(modem ModemType, shortTrain, useHDLC bool) {}
func (e *loopbackEnv) NotifyPhase(p Phase)                                  {}
func (e *loopbackEnv) DocumentHasMorePages() bool                           { return e.MorePages }

func (e *loopbackEnv) drain(into *Session) {
	for _, f := range *e.outbox {
		into.DeliverFrame(f)
	}
	*e.outbox = nil
}

func TestSessionFullHandshakeNonECM(t *testing.T) {
	callerEnv, answererEnv := newLoopbackPair()
	callerEnv.MorePages = false

	caller := NewSession(RoleCaller, callerEnv, FaxConfig{
		LocalID:     "CALLER",
		HasDocument: true,
		SampleRate:  8000,
	}, nil)
	answerer := NewSession(RoleAnswerer, answererEnv, FaxConfig{
		LocalID:    "ANSWERER",
		SampleRate: 8000,
	}, nil)

	// Answerer's initial DIS reaches the caller.
	answererEnv.drain(caller)
	require.Equal(t, FlowDPostTCF, caller.State())

	// Caller's TSI+DCS reaches the answerer.
	callerEnv.drain(answerer)
	require.Equal(t, FlowFTCF, answerer.State())
	require.False(t, answerer.ecmMode)

	// Simulate the TCF training interval: carrier up, a long run of
	// zero bits at least as long as the negotiated bit rate, carrier down.
	answerer.DeliverNonECMByte(-3)
	entry := FallbackLadder[answerer.fallbackIdx]
	for i := 0; i < entry.BitRate; i++ {
		answerer.DeliverNonECMByte(0)
	}
	answerer.DeliverNonECMByte(-4)
	require.Equal(t, FlowFDocNonEcm, answerer.State())

	// Answerer's CFR reaches the caller, who moves into the image phase.
	answererEnv.drain(caller)
	require.Equal(t, FlowI, caller.State())

	// Caller finishes "sending" the page and the answerer finishes
	// "receiving" it; the answerer reports good quality statistics.
	caller.DeliverNonECMByte(-5)
	require.Equal(t, FlowIIQ, caller.State())

	answerer.SetPageStatistics(0, 200)
	answerer.DeliverNonECMByte(-5)
	require.Equal(t, FlowFPostDocNonEcm, answerer.State())

	// Caller's EOP reaches the answerer, which judges the page Good and
	// replies MCF; the answerer's MCF reaches the caller, which ends the
	// call cleanly.
	callerEnv.drain(answerer)
	require.Equal(t, FlowCallFinished, answerer.State())
	assert.Equal(t, StatusOk, answerer.Status())

	answererEnv.drain(caller)
	assert.Equal(t, FlowCallFinished, caller.State())
	assert.Equal(t, StatusOk, caller.Status())
}

func TestSessionCallerNoDocumentHangsUpCleanly(t *testing.T) {
	callerEnv, answererEnv := newLoopbackPair()
	caller := NewSession(RoleCaller, callerEnv, FaxConfig{HasDocument: false, SampleRate: 8000}, nil)
	answerer := NewSession(RoleAnswerer, answererEnv, FaxConfig{SampleRate: 8000}, nil)

	answererEnv.drain(caller)
	assert.Equal(t, FlowCallFinished, caller.State())
	assert.Equal(t, StatusOk, caller.Status())

	callerEnv.drain(answerer)
	assert.Equal(t, FlowCallFinished, answerer.State())
	assert.Equal(t, StatusDcnWhyRx, answerer.Status())
}

func TestSessionDCNDuringPhaseBEndsCallWithStatus(t *testing.T) {
	env := &NopEnvironment{}
	s := NewSession(RoleCaller, env, FaxConfig{HasDocument: true, SampleRate: 8000}, nil)
	s.DeliverFrame(BuildSimpleFrame(FcfDCN, true, false))
	assert.Equal(t, StatusDcnWhyRx, s.Status())
	assert.Equal(t, FlowCallFinished, s.State())
}

func TestSessionIncompatibleCapabilitiesFailsCleanly(t *testing.T) {
	env := &NopEnvironment{}
	s := NewSession(RoleCaller, env, FaxConfig{HasDocument: true, SampleRate: 8000}, nil)
	s.permittedModems = 0 // nothing in common

	dis := NewCapabilityVector(FcfDIS)
	dis.SetSignallingField(FallbackLadder[0].DCSCode)
	frame := dis.Build(true, false)

	s.DeliverFrame(frame)
	assert.Equal(t, StatusIncompatible, s.Status())
	assert.Equal(t, FlowCallFinished, s.State())
	assert.Contains(t, fcfOf(t, env.Sent), byte(FcfDCN))
}

func TestSessionT1ExpiryOnCallerEndsCall(t *testing.T) {
	env := &NopEnvironment{}
	s := NewSession(RoleCaller, env, FaxConfig{HasDocument: true, SampleRate: 8000, T1Ms: 1}, nil)
	s.Tick(s.timers.msToSamples(5))
	assert.Equal(t, StatusT1Expired, s.Status())
	assert.Equal(t, FlowCallFinished, s.State())
}

func TestSessionRestartReturnsToInitialState(t *testing.T) {
	env := &NopEnvironment{}
	s := NewSession(RoleCaller, env, FaxConfig{HasDocument: true, SampleRate: 8000}, nil)
	s.DeliverFrame(BuildSimpleFrame(FcfDCN, true, false))
	require.Equal(t, FlowCallFinished, s.State())

	s.Restart()
	assert.Equal(t, FlowT, s.State())
	assert.Equal(t, StatusOk, s.Status())
}

func TestSessionECMBlockPPRRetransmitThenComplete(t *testing.T) {
	callerEnv, answererEnv := newLoopbackPair()
	callerEnv.MorePages = false

	caller := NewSession(RoleCaller, callerEnv, FaxConfig{
		LocalID:     "CALLER",
		HasDocument: true,
		ECMEnabled:  true,
		SampleRate:  8000,
	}, nil)
	answerer := NewSession(RoleAnswerer, answererEnv, FaxConfig{
		LocalID:    "ANSWERER",
		ECMEnabled: true,
		SampleRate: 8000,
	}, nil)

	answererEnv.drain(caller)
	require.Equal(t, FlowDPostTCF, caller.State())

	callerEnv.drain(answerer)
	require.Equal(t, FlowFTCF, answerer.State())
	require.True(t, answerer.ecmMode)

	answerer.DeliverNonECMByte(-3)
	entry := FallbackLadder[answerer.fallbackIdx]
	for i := 0; i < entry.BitRate; i++ {
		answerer.DeliverNonECMByte(0)
	}
	answerer.DeliverNonECMByte(-4)
	require.Equal(t, FlowFDocEcm, answerer.State())

	answererEnv.drain(caller)
	require.Equal(t, FlowIV, caller.State())

	// Send a two-frame block; drop frame 1 on the way to the answerer so
	// its first PPR has to ask for a retransmit.
	caller.SendECMBlock([][]byte{{0x01, 0x02}, {0x03, 0x04}}, 0, 0, PostPageEOP)
	require.Equal(t, FlowIVPPSQ, caller.State())
	dropFCDFrame(t, callerEnv, 1)

	callerEnv.drain(answerer)
	require.False(t, answerer.ecm.Complete())

	// The answerer's PPR reaches the caller, which resends the missing
	// frame and re-issues PPS; this round nothing is dropped.
	answererEnv.drain(caller)
	require.Equal(t, FlowIVPPSQ, caller.State())

	answerer.SetPageStatistics(0, 200)
	callerEnv.drain(answerer)
	require.True(t, answerer.ecm.Complete())
	require.Equal(t, FlowCallFinished, answerer.State())
	assert.Equal(t, StatusOk, answerer.Status())

	answererEnv.drain(caller)
	assert.Equal(t, FlowCallFinished, caller.State())
	assert.Equal(t, StatusOk, caller.Status())
}

func TestSessionECMPersistentPPRTriggersCTC(t *testing.T) {
	callerEnv, answererEnv := newLoopbackPair()
	callerEnv.MorePages = false

	caller := NewSession(RoleCaller, callerEnv, FaxConfig{
		LocalID:     "CALLER",
		HasDocument: true,
		ECMEnabled:  true,
		SampleRate:  8000,
	}, nil)
	answerer := NewSession(RoleAnswerer, answererEnv, FaxConfig{
		LocalID:    "ANSWERER",
		ECMEnabled: true,
		SampleRate: 8000,
	}, nil)

	answererEnv.drain(caller)
	callerEnv.drain(answerer)

	answerer.DeliverNonECMByte(-3)
	entry := FallbackLadder[answerer.fallbackIdx]
	for i := 0; i < entry.BitRate; i++ {
		answerer.DeliverNonECMByte(0)
	}
	answerer.DeliverNonECMByte(-4)
	answererEnv.drain(caller)
	require.Equal(t, FlowIV, caller.State())

	caller.SendECMBlock([][]byte{{0x01}}, 0, 0, PostPageEOP)

	// The single frame never makes it across for MaxPPRBurstsBeforeCTC
	// rounds in a row, so the caller must fall back via CTC instead of
	// retrying the same rate forever (§4.5/§5 PPR-burst bound).
	for i := 0; i < MaxPPRBurstsBeforeCTC+2 && caller.State() != FlowIVCTC; i++ {
		dropFCDFrame(t, callerEnv, 0)
		callerEnv.drain(answerer)
		answererEnv.drain(caller)
	}
	assert.Equal(t, FlowIVCTC, caller.State())
}

// dropFCDFrame removes the FCD frame carrying the given ECM sequence
// number from env's outbox before it is drained to the peer, simulating a
// frame lost in transit.
func dropFCDFrame(t *testing.T, env *loopbackEnv, seq byte) {
	t.Helper()
	kept := (*env.outbox)[:0]
	for _, f := range *env.outbox {
		fcf, ok := FrameFCF(f)
		if ok && FCF(fcf) == FcfFCD {
			payload := FramePayload(f)
			if len(payload) >= 1 && payload[0] == seq {
				continue
			}
		}
		kept = append(kept, f)
	}
	*env.outbox = kept
}

// fcfOf extracts the bare FCF command from every frame in frames that is
// long enough to have one.
func fcfOf(t *testing.T, frames [][]byte) []byte {
	t.Helper()
	var out []byte
	for _, f := range frames {
		if fcf, ok := FrameFCF(f); ok {
			out = append(out, fcf)
		}
	}
	return out
}
