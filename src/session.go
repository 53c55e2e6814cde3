package t30

/*------------------------------------------------------------------
 *
 * Purpose:	The Session Facade and the flow-chart state machine
 *		behind it (§2 "Session Facade", §4.5).
 *
 * Description:	A Session is a passive object driven by three entry
 *		points an owner must not overlap (§5): Tick, DeliverFrame
 *		and DeliverNonECMByte. Everything else -- Restart,
 *		FrontEndStatus, RepeatLastCommand, the configuration
 *		setters -- is safe to call between those.
 *
 *		Several flow-chart states named in §3 (II, III-Q-MCF,
 *		III-Q-RTP, III-Q-RTN, B, C, R) are transient processing
 *		labels rather than states the machine blocks on waiting
 *		for an event: II-Q is the one state that actually waits
 *		for a response to a post-page command, and the III-Q-*
 *		names describe which branch of that response is being
 *		processed, not a second wait. This implementation folds
 *		those into the handler for the state that does block,
 *		consistent with how the teacher collapses its own
 *		many-named C states into single Go dispatch functions.
 *
 *------------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
)

// Role identifies which party a Session plays.
type Role int

const (
	RoleCaller Role = iota
	RoleAnswerer
)

// FaxConfig carries the per-session settings a caller supplies, in the
// style of the teacher's audio_s/misc_config_s configuration structs.
type FaxConfig struct {
	LocalID    string
	RemoteID   string // expected remote station ID, optional, informational only
	Subaddress string
	Password   string
	NSFVendor  NSF

	ECMEnabled bool
	HasDocument bool // true if this session has a file queued to transmit

	// DocResolution/DocSizeClass describe the document's geometry; both
	// feed the §4.1/§4.5 "R" resolution-and-width validation against the
	// remote's DIS. DocResolution defaults to 204x98 (standard) and
	// DocSizeClass to 0 (A4/1728) when left zero.
	DocResolution Resolution
	DocSizeClass  int

	// ReceiverNotReadyCount simulates a receiver that is temporarily
	// unable to accept a page; it issues RNR this many times before
	// committing, per §4.5 "configurable pretend not ready counter".
	ReceiverNotReadyCount int

	SampleRate int // samples/sec for the TimerBase

	// Timer overrides, in milliseconds; zero means "use the default".
	T0Ms, T1Ms, T2Ms, T3Ms, T4Ms, T5Ms int
}

// Session is a single T.30 call, caller or answerer, fixed at creation.
type Session struct {
	role Role
	env  Environment
	log  *log.Logger
	cfg  FaxConfig

	timers *TimerBase
	phase  *PhaseController
	ecm    *ECMBuffer
	trace  traceRing

	state  FlowState
	status Status

	localCaps  *CapabilityVector
	remoteCaps *CapabilityVector

	fallbackIdx     int
	permittedModems ModemFamily
	ecmMode         bool

	// Resolved document resolution/width bits, computed by
	// validateDocumentCapabilities and consumed by buildDCS.
	docResBit, docResBit2, docWidthCode int

	retries      int
	lastCommand  []byte
	lastCommandCtx T4Context

	// TCF zero-bit counting state (answerer side).
	tcfRunning    bool
	tcfZeroRun    int
	tcfLongestRun int

	// Pending post-page command while awaiting a response (II-Q/IV-PPS-Q).
	pendingPostPage PostPageCommand

	// Last row statistics reported by the external T.4 receiver, consumed
	// by the page-quality judge at the next post-page decision.
	pendingBadRows, pendingTotalRows int

	// rxSignalPresent tracks the modem layer's carrier-detect state on the
	// receive side; its next transition to false is what latches a phase
	// queued with phase.QueuePhase (§8 invariant 7).
	rxSignalPresent bool

	closing bool
}

// NewSession constructs a Session for the given role, wiring env as its
// Environment. cfg.SampleRate defaults to 8000 if zero.
func NewSession(role Role, env Environment, cfg FaxConfig, logger *log.Logger) *Session {
	s := &Session{
		role: role,
		env:  env,
		log:  loggerFor(logger),
		cfg:  cfg,
	}
	s.Restart()
	return s
}

// Restart resets the session to its initial state, as if newly created,
// without discarding the configured environment/logger/config.
func (s *Session) Restart() {
	s.timers = NewTimerBase(s.cfg.SampleRate)
	applyTimerOverrides(s.timers, s.cfg)
	s.phase = NewPhaseController()
	s.ecm = NewECMBuffer()
	s.trace = traceRing{}
	s.status = StatusOk
	s.permittedModems = ModemFamilyAll
	s.fallbackIdx = -1
	s.ecmMode = false
	s.retries = 0
	s.lastCommand = nil
	s.tcfRunning = false
	s.tcfZeroRun = 0
	s.tcfLongestRun = 0
	s.rxSignalPresent = false
	s.closing = false
	s.pendingBadRows, s.pendingTotalRows = 0, 0
	s.docResBit, s.docResBit2, s.docWidthCode = 0, 0, 0

	if s.cfg.DocResolution == (Resolution{}) {
		s.cfg.DocResolution = Resolution{X: 204, Y: 98}
	}

	s.localCaps = s.buildLocalDIS()

	switch s.role {
	case RoleCaller:
		s.state = FlowT
		s.timers.StartT0()
		s.timers.StartT1()
		s.enterPhase(PhaseACNG, ModemSelection{Type: ModemNone}, ModemSelection{Type: ModemCNG})
	case RoleAnswerer:
		s.state = FlowAnswering
		s.timers.StartT0()
		s.timers.StartT1()
		s.enterPhase(PhaseACED, ModemSelection{Type: ModemNone}, ModemSelection{Type: ModemCED})
		s.sendDIS()
	}
}

func applyTimerOverrides(tb *TimerBase, cfg FaxConfig) {
	if cfg.T0Ms > 0 {
		tb.T0Ms = cfg.T0Ms
	}
	if cfg.T1Ms > 0 {
		tb.T1Ms = cfg.T1Ms
	}
	if cfg.T2Ms > 0 {
		tb.T2Ms = cfg.T2Ms
	}
	if cfg.T3Ms > 0 {
		tb.T3Ms = cfg.T3Ms
	}
	if cfg.T4Ms > 0 {
		tb.T4Ms = cfg.T4Ms
	}
	if cfg.T5Ms > 0 {
		tb.T5Ms = cfg.T5Ms
	}
}

// --- configuration setters (outside an active call, per §3) ------------

func (s *Session) SetLocalID(id string)           { s.cfg.LocalID = id }
func (s *Session) SetSubaddress(sub string)        { s.cfg.Subaddress = sub }
func (s *Session) SetPassword(pw string)           { s.cfg.Password = pw }
func (s *Session) SetECMEnabled(enabled bool)      { s.cfg.ECMEnabled = enabled }
func (s *Session) SetHasDocument(has bool)         { s.cfg.HasDocument = has }
func (s *Session) SetNSFVendor(n NSF)              { s.cfg.NSFVendor = n }
func (s *Session) SetReceiverNotReadyCount(n int) { s.cfg.ReceiverNotReadyCount = n }

// SetPageStatistics feeds the (badRows, totalRows) counts the external
// T.4 receiver observed for the page just finished, consumed by the next
// page-quality judgement (§4.5).
func (s *Session) SetPageStatistics(badRows, totalRows int) {
	s.pendingBadRows, s.pendingTotalRows = badRows, totalRows
}

// Status returns the session's current (or final) Status.
func (s *Session) Status() Status { return s.status }

// Phase returns the current call phase.
func (s *Session) Phase() Phase { return s.phase.Current() }

// State returns the current flow-chart state.
func (s *Session) State() FlowState { return s.state }

// Trace returns the recent transition history.
func (s *Session) Trace() []TraceEntry { return s.trace.Entries() }

// FrontEndStatus reports the current status to the caller, mirroring the
// teacher's front-end-status query entry point. It is also the entry point
// a polling owner uses to drain a phase queued with QueuePhase: if the
// receive-signal-present indicator is already down, any pending phase is
// installed here (§4.4 queue_phase, §8 invariant 7).
func (s *Session) FrontEndStatus() Status {
	if !s.rxSignalPresent {
		s.installPendingPhase()
	}
	return s.status
}

// installPendingPhase latches whatever phase was queued via
// phase.QueuePhase, now that rxSignalPresent has gone false. The session
// currently only ever defers the B-Rx (V.21/HDLC listen) transition that
// follows a received page, so the resolver is fixed to that selection.
func (s *Session) installPendingPhase() {
	s.phase.OnRxSignalDropped(s.env, func(Phase) (rx, tx ModemSelection) {
		return ModemSelection{Type: ModemV21, UseHDLC: true}, ModemSelection{Type: ModemNone}
	})
}

// Terminate forces the session into phase E / CallFinished. If the
// session was not already closing, it reports CallDropped (§5
// "Cancellation & timeouts").
func (s *Session) Terminate() {
	if !s.closing {
		s.status = StatusCallDropped
	}
	s.finish()
}

func (s *Session) finish() {
	s.closing = true
	s.state = FlowCallFinished
	s.enterPhase(PhaseE, ModemSelection{Type: ModemNone}, ModemSelection{Type: ModemNone})
	s.enterPhase(PhaseCallFinished, ModemSelection{Type: ModemDone}, ModemSelection{Type: ModemDone})
}

// --- local capability construction --------------------------------

func (s *Session) buildLocalDIS() *CapabilityVector {
	fcf := FcfDIS
	if s.role == RoleAnswerer {
		// DTC is used instead of DIS only when polling for a document
		// from the far end without having one to send; for this
		// session model DIS covers the answerer's normal advertise.
		fcf = FcfDIS
	}
	v := NewCapabilityVector(fcf)
	if s.cfg.ECMEnabled {
		v.SetBit(BitECM)
	}
	v.SetBit(BitFine)
	v.SetBit(BitSuperfine)
	idx, ok := HighestPermitted(s.permittedModems)
	if ok {
		v.SetSignallingField(FallbackLadder[idx].DCSCode)
	}
	v.Prune()
	return v
}

func (s *Session) sendDIS() {
	frame := s.localCaps.Build(true, false)
	s.env.SendHDLC(frame)
	s.env.SendHDLC(nil)
	s.lastCommand = frame
	s.lastCommandCtx = T4ContextPhaseB
	s.timers.StartT4(T4ContextPhaseB)
}

// --- small send helpers --------------------------------------------

func (s *Session) enterPhase(p Phase, rx, tx ModemSelection) {
	s.phase.Enter(s.env, p, rx, tx)
}

func (s *Session) sendSimple(fcf FCF, final, disReceived bool) {
	frame := BuildSimpleFrame(fcf, final, disReceived)
	s.env.SendHDLC(frame)
	if final {
		s.env.SendHDLC(nil)
	}
}

// sendCommand transmits frame, remembers it for CRP/T4 replay, and arms
// T4 under ctx.
func (s *Session) sendCommand(frame []byte, ctx T4Context) {
	s.env.SendHDLC(frame)
	s.env.SendHDLC(nil)
	s.lastCommand = frame
	s.lastCommandCtx = ctx
	s.timers.StartT4(ctx)
}

// RepeatLastCommand replays the last outgoing command for the current
// state, per §4.7. The session invokes it on a received CRP and on T4
// expiry under the retry limit.
func (s *Session) RepeatLastCommand() {
	if s.lastCommand == nil {
		return
	}
	s.env.SendHDLC(s.lastCommand)
	s.env.SendHDLC(nil)
	s.timers.StartT4(s.lastCommandCtx)
}

func (s *Session) sendDCN() {
	s.sendSimple(FcfDCN, true, false)
}

func (s *Session) fail(status Status) {
	s.status = status
	s.sendDCN()
	s.finish()
}

// --- fallback / DCS construction ------------------------------------

// pickFallbackForRemote chooses the fastest ladder entry compatible with
// the remote's advertised signalling-rate field, per §4.2/§4.5 "R".
func (s *Session) pickFallbackForRemote() (int, bool) {
	code := s.remoteCaps.SignallingField()
	idx, ok := FindFallbackByDCSCode(code)
	if !ok {
		return -1, false
	}
	// Never select a ladder entry our own permitted mask disallows.
	if FallbackLadder[idx].Modem&s.permittedModems == 0 {
		idx, ok = HighestPermitted(s.permittedModems)
		if !ok {
			return -1, false
		}
	}
	return idx, true
}

// validateDocumentCapabilities resolves the configured document resolution
// and width against the §4.1 lookup tables and the remote's advertised
// DIS, per §4.5 "R" ("validate resolution and width"). On success it
// caches the DCS bits in s.docResBit/docResBit2/docWidthCode for buildDCS;
// on failure it returns the Status the caller should fail the call with.
func (s *Session) validateDocumentCapabilities() Status {
	class, ok := resolutionClassIndex[s.cfg.DocResolution]
	if !ok {
		return StatusResolutionNotSupported
	}
	bit, bit2, ok := ResolveResolutionBits(s.cfg.DocResolution)
	if !ok {
		return StatusResolutionNotSupported
	}
	if bit != 0 && !s.remoteCaps.GetBit(bit) {
		return StatusResolutionNotSupported
	}
	if bit2 > 0 && !s.remoteCaps.GetBit(bit2) {
		return StatusResolutionNotSupported
	}
	code, ok := ResolveWidthCode(class, s.cfg.DocSizeClass)
	if !ok {
		return StatusSizeNotSupported
	}
	s.docResBit, s.docResBit2, s.docWidthCode = bit, bit2, code
	return StatusOk
}

// buildDCS builds the outgoing DCS from the intersection of our own
// capability vector and the remote's advertised DIS (§2, §4.5 "R"), with
// the validated resolution/width and the ECM/signalling-rate selection
// overlaid on top of the intersection.
func (s *Session) buildDCS(idx int) *CapabilityVector {
	v := Intersect(s.localCaps, s.remoteCaps)
	v.FCF = FcfDCS

	if s.ecmMode {
		v.SetBit(BitECM)
	} else {
		v.ClearBit(BitECM)
	}

	if s.docResBit != 0 {
		v.SetBit(s.docResBit)
	} else {
		v.ClearBit(BitFine)
		v.ClearBit(BitSuperfine)
	}
	if s.docResBit2 > 0 {
		v.SetBit(s.docResBit2)
	}
	v.SetField(BitScanLineLength0, 2, uint(s.docWidthCode))

	v.SetSignallingField(FallbackLadder[idx].DCSCode)
	v.Prune()
	return v
}

// imageModemFor maps a fallback entry to the ModemType used for TCF and
// the page itself.
func imageModemFor(e FallbackEntry) ModemType {
	switch {
	case e.Modem == ModemFamilyV17 && e.BitRate == 14400:
		return ModemV17_14400
	case e.Modem == ModemFamilyV17 && e.BitRate == 12000:
		return ModemV17_12000
	case e.Modem == ModemFamilyV17 && e.BitRate == 9600:
		return ModemV17_9600
	case e.Modem == ModemFamilyV17 && e.BitRate == 7200:
		return ModemV17_7200
	case e.Modem == ModemFamilyV29 && e.BitRate == 9600:
		return ModemV29_9600
	case e.Modem == ModemFamilyV29 && e.BitRate == 7200:
		return ModemV29_7200
	case e.Modem == ModemFamilyV27ter && e.BitRate == 4800:
		return ModemV27ter_4800
	default:
		return ModemV27ter_2400
	}
}

// sendDCSAndTrain emits PWD/SUB/TSI (if configured) followed by DCS, then
// transmits the TCF training interval and settles into FlowDPostTCF
// listening on V.21 for CFR/FTT/DIS.
func (s *Session) sendDCSAndTrain(idx int) {
	s.fallbackIdx = idx
	entry := FallbackLadder[idx]

	if s.cfg.LocalID != "" {
		s.env.SendHDLC(BuildIdentifierFrame(FcfTSI, false, false, s.cfg.LocalID))
	}
	if s.cfg.Subaddress != "" {
		s.env.SendHDLC(BuildIdentifierFrame(FcfSUB, false, false, s.cfg.Subaddress))
	}
	if s.cfg.Password != "" {
		s.env.SendHDLC(BuildIdentifierFrame(FcfPWD, false, false, s.cfg.Password))
	}

	dcs := s.buildDCS(idx)
	frame := dcs.Build(true, true)

	s.state = FlowDTCF
	s.enterPhase(PhaseDTx, ModemSelection{Type: ModemV21, UseHDLC: true}, ModemSelection{Type: imageModemFor(entry), ShortTrain: false})
	s.sendCommand(frame, T4ContextPhaseD)

	// The 1.5s zero-bit run and its detection live in the modem layer;
	// from the session's point of view DCS-then-TCF-then-listen is one
	// atomic step, so move straight to waiting for the response.
	s.state = FlowDPostTCF
	s.enterPhase(PhaseDRx, ModemSelection{Type: ModemV21, UseHDLC: true}, ModemSelection{Type: ModemNone})
}

// --- top-level HDLC frame dispatch ----------------------------------

// DeliverFrame feeds one decoded, FCS-verified HDLC frame to the session.
func (s *Session) DeliverFrame(frame []byte) {
	if s.closing {
		return
	}
	s.timers.StopT0()
	s.timers.StopT1()
	s.timers.StopT2T4()

	fcfByte, ok := FrameFCF(frame)
	if !ok {
		s.status = StatusUnexpectedFrameLength
		return
	}
	fcf := FCF(fcfByte)
	final := len(frame) >= 2 && IsFinalFrame(frame[1])

	s.log.Debug("deliver frame", "state", s.state.String(), "fcf", fcfByte, "final", final)

	if final {
		s.dispatchFinal(fcf, frame)
	} else {
		// Only final frames carry the DIS-received bit; non-final frames
		// are dispatched on the raw octet so RCP (0x61) is not folded
		// into FCD (0x60).
		s.handleNonFinalFrame(FCF(frame[2]), frame)
	}

	s.trace.push(TraceEntry{Phase: s.phase.Current(), State: s.state, FCF: fcfByte, Status: s.status})
}

func (s *Session) handleNonFinalFrame(fcf FCF, frame []byte) {
	payload := FramePayload(frame)
	switch fcf {
	case FcfTSI, FcfCSI, FcfCIG:
		s.log.Debug("station id", "fcf", byte(fcf), "id", DecodeIdentifier(payload))
	case FcfSUB, FcfPWD, FcfSEP, FcfPSA:
		s.log.Debug("aux id field", "fcf", byte(fcf), "value", DecodeIdentifier(payload))
	case FcfNSF, FcfNSC, FcfNSS:
		s.log.Debug("nsf", "nsf", DecodeNSF(payload))
	case FcfFCD:
		if s.state == FlowFDocEcm && len(payload) >= 1 {
			s.ecm.StoreFrame(int(payload[0]), payload[1:])
		}
	case FcfRCP:
		if s.state == FlowFDocEcm {
			s.state = FlowFPostDocEcm
		}
	default:
		s.log.Warn("unexpected non-final frame", "fcf", byte(fcf))
	}
}

func (s *Session) dispatchFinal(fcf FCF, frame []byte) {
	if fcf == FcfCRP {
		s.RepeatLastCommand()
		return
	}
	switch s.state {
	case FlowT:
		s.handleT(fcf, frame)
	case FlowDPostTCF, FlowDTCF:
		s.handleDPostTCF(fcf, frame)
	case FlowIIQ:
		s.handleIIQ(fcf, frame)
	case FlowIVPPSQ:
		s.handleIVPPSQ(fcf, frame)
	case FlowIVPPSRNR:
		s.handleIVPPSRNR(fcf, frame)
	case FlowIVCTC:
		s.handleIVCTC(fcf, frame)
	case FlowAnswering:
		s.handleAnswering(fcf, frame)
	case FlowFPostDocNonEcm:
		s.handleFPostDocNonEcm(fcf, frame)
	case FlowFDocEcm, FlowFPostDocEcm:
		s.handleFPPS(fcf, frame)
	default:
		s.log.Warn("unexpected final frame for state", "state", s.state.String(), "fcf", byte(fcf))
		s.status = StatusUnexpectedFinalFrame
	}
}

// --- caller side ------------------------------------------------------

func (s *Session) handleT(fcf FCF, frame []byte) {
	switch fcf {
	case FcfDIS, FcfDTC:
		s.remoteCaps = DecodeCapabilityVector(fcf, FramePayload(frame))
		s.ecmMode = s.remoteCaps.GetBit(BitECM) && s.cfg.ECMEnabled
		if !s.cfg.HasDocument {
			// Nothing to send: acknowledge and hang up cleanly.
			s.status = StatusOk
			s.sendDCN()
			s.finish()
			return
		}
		idx, ok := s.pickFallbackForRemote()
		if !ok {
			s.fail(StatusIncompatible)
			return
		}
		if st := s.validateDocumentCapabilities(); st != StatusOk {
			s.fail(st)
			return
		}
		s.retries = 0
		s.sendDCSAndTrain(idx)
	case FcfDCN:
		s.status = StatusDcnWhyRx
		s.finish()
	default:
		s.status = StatusUnexpectedFinalFrame
	}
}

func (s *Session) handleDPostTCF(fcf FCF, frame []byte) {
	switch fcf {
	case FcfCFR:
		s.retries = 0
		s.ecm.Clear()
		entry := FallbackLadder[s.fallbackIdx]
		if s.ecmMode {
			s.state = FlowIV
			s.enterPhase(PhaseCEcmTx, ModemSelection{Type: ModemNone}, ModemSelection{Type: imageModemFor(entry), UseHDLC: true})
		} else {
			s.state = FlowI
			s.enterPhase(PhaseCNonEcmTx, ModemSelection{Type: ModemNone}, ModemSelection{Type: imageModemFor(entry)})
		}
	case FcfFTT:
		next, ok := StepFallback(s.fallbackIdx, s.permittedModems)
		if !ok {
			s.fail(StatusCannotTrain)
			return
		}
		s.sendDCSAndTrain(next)
	case FcfDIS, FcfDTC:
		s.retries++
		if s.retries >= MaxMessageTries {
			s.fail(StatusPhBDeadTx)
			return
		}
		s.remoteCaps = DecodeCapabilityVector(fcf, FramePayload(frame))
		idx, ok := s.pickFallbackForRemote()
		if !ok {
			s.fail(StatusIncompatible)
			return
		}
		if st := s.validateDocumentCapabilities(); st != StatusOk {
			s.fail(st)
			return
		}
		s.sendDCSAndTrain(idx)
	case FcfDCN:
		s.status = StatusDcnWhyRx
		s.finish()
	default:
		s.status = StatusUnexpectedFinalFrame
	}
}

// postPageFor decides the next post-page command given whether the
// document has more pages, per §4.5 "I"/"IV".
func (s *Session) postPageFor() PostPageCommand {
	if s.env.DocumentHasMorePages() {
		return PostPageMPS
	}
	return PostPageEOP
}

// DeliverNonECMByte feeds one bit/byte/chunk (or a sentinel) from the
// non-ECM image stream, or signals transmit completion on the sending
// side, per §6.
func (s *Session) DeliverNonECMByte(value int) {
	if s.closing {
		return
	}
	switch s.state {
	case FlowFTCF:
		s.deliverTCFByte(value)
	case FlowFDocNonEcm, FlowFPostDocNonEcm:
		// The carrier-down sentinel can arrive after the end-of-data
		// sentinel already advanced the flow-chart state to
		// F-PostDoc-NonEcm; it still needs to reach deliverDocNonEcmByte
		// so the deferred phase transition gets latched (§8 invariant 7).
		s.deliverDocNonEcmByte(value)
	case FlowI:
		if value == -5 || value == 0x100 {
			s.pendingPostPage = s.postPageFor()
			frame := BuildSimpleFrame(FCF(s.pendingPostPage), true, true)
			s.sendCommand(frame, T4ContextPhaseD)
			s.state = FlowIIQ
			s.enterPhase(PhaseBTx, ModemSelection{Type: ModemV21, UseHDLC: true}, ModemSelection{Type: ModemV21, UseHDLC: true})
		}
	}
}

func (s *Session) deliverTCFByte(value int) {
	switch value {
	case -3: // carrier-up
		s.tcfRunning = true
		s.tcfZeroRun = 0
		s.tcfLongestRun = 0
	case -4, -1: // carrier-down or training-failed
		s.tcfRunning = false
		if s.tcfZeroRun > s.tcfLongestRun {
			s.tcfLongestRun = s.tcfZeroRun
		}
		entry := FallbackLadder[s.fallbackIdx]
		if s.tcfLongestRun >= entry.BitRate {
			s.sendSimple(FcfCFR, true, true)
			s.ecm.Clear()
			if s.ecmMode {
				s.state = FlowFDocEcm
				s.enterPhase(PhaseCEcmRx, ModemSelection{Type: imageModemFor(entry), UseHDLC: true}, ModemSelection{Type: ModemNone})
			} else {
				s.state = FlowFDocNonEcm
				s.rxSignalPresent = true
				s.enterPhase(PhaseCNonEcmRx, ModemSelection{Type: imageModemFor(entry)}, ModemSelection{Type: ModemNone})
				s.timers.StartT2()
			}
		} else {
			s.sendSimple(FcfFTT, true, true)
			s.state = FlowAnswering
			s.enterPhase(PhaseBRx, ModemSelection{Type: ModemV21, UseHDLC: true}, ModemSelection{Type: ModemNone})
		}
	case 0, 1:
		if !s.tcfRunning {
			return
		}
		if value == 0 {
			s.tcfZeroRun++
		} else {
			if s.tcfZeroRun > s.tcfLongestRun {
				s.tcfLongestRun = s.tcfZeroRun
			}
			s.tcfZeroRun = 0
		}
	}
}

func (s *Session) deliverDocNonEcmByte(value int) {
	switch value {
	case -3: // carrier-up
		s.rxSignalPresent = true
	case -5, 0x100:
		// The image data has logically ended, but the carrier may still
		// be present for a moment (trailing fill/flush); defer the
		// modem-layer phase change rather than installing it here, and
		// only latch it once rxSignalPresent actually drops (§4.4
		// queue_phase, §8 invariant 7).
		s.state = FlowFPostDocNonEcm
		s.phase.QueuePhase(PhaseBRx)
	case -4: // carrier-down
		s.rxSignalPresent = false
		s.installPendingPhase()
	}
}

func (s *Session) handleIIQ(fcf FCF, frame []byte) {
	switch fcf {
	case FcfMCF:
		s.onPageAcknowledged()
	case FcfRTP:
		s.onPageAcknowledged()
	case FcfRTN:
		s.retries = 0
		s.state = FlowDPostTCF
		entry := FallbackLadder[s.fallbackIdx]
		s.enterPhase(PhaseCNonEcmTx, ModemSelection{Type: ModemNone}, ModemSelection{Type: imageModemFor(entry)})
		s.state = FlowI // repeat the same page
	case FcfPIP, FcfPIN:
		s.timers.StartT3()
	case FcfDCN:
		s.status = StatusDcnFaxRx
		s.finish()
	default:
		s.status = StatusUnexpectedFinalFrame
	}
}

// onPageAcknowledged runs the shared "what happens after MCF/RTP" logic
// for both the non-ECM (II-Q) and ECM (IV-PPS-Q) transmit paths.
func (s *Session) onPageAcknowledged() {
	switch s.pendingPostPage {
	case PostPageEOP, PostPagePriEOP:
		s.status = StatusOk
		s.sendDCN()
		s.finish()
	default: // MPS, EOM and their PRI- variants: another page follows
		s.retries = 0
		entry := FallbackLadder[s.fallbackIdx]
		if s.ecmMode {
			s.state = FlowIV
			s.ecm.Clear()
			s.enterPhase(PhaseCEcmTx, ModemSelection{Type: ModemNone}, ModemSelection{Type: imageModemFor(entry), UseHDLC: true})
		} else {
			s.state = FlowI
			s.enterPhase(PhaseCNonEcmTx, ModemSelection{Type: ModemNone}, ModemSelection{Type: imageModemFor(entry)})
		}
	}
}

// SendECMBlock transmits one partial-page block: the given FCD payloads
// (already T.4/ECM encoded by the external codec), three trailing RCP
// frames, then a PPS frame whose FCF2 carries postPage, per §4.5 "IV".
func (s *Session) SendECMBlock(payloads [][]byte, page, block int, postPage PostPageCommand) {
	for seq, payload := range payloads {
		s.ecm.StoreFrame(seq, payload)
		body := append([]byte{byte(seq)}, payload...)
		s.env.SendHDLC(BuildVariableFrame(FcfFCD, false, false, body))
	}
	for i := 0; i < 3; i++ {
		s.env.SendHDLC(BuildSimpleFrame(FcfRCP, false, false))
	}
	s.ecm.Page, s.ecm.Block = page, block
	s.pendingPostPage = postPage
	frameCount := len(payloads)
	fc := byte(frameCount)
	if frameCount == 0 {
		fc = 0xFF
	}
	pps := []byte{byte(postPage), byte(page), byte(block), fc}
	s.state = FlowIVPPSQ
	s.sendCommand(BuildVariableFrame(FcfPPS, true, true, pps), T4ContextPhaseD)
}

func (s *Session) handleIVPPSQ(fcf FCF, frame []byte) {
	switch fcf {
	case FcfMCF:
		s.onPageAcknowledged()
	case FcfPPR:
		payload := FramePayload(frame)
		var bitmap [ecmBitmapBytes]byte
		copy(bitmap[:], payload)
		missing := ApplyPPR(bitmap, s.ecm.Frames)
		progressed := len(missing) < s.ecm.FramesThisBurst || s.ecm.FramesThisBurst == 0
		s.ecm.FramesThisBurst = len(missing)
		if s.ecm.NotePPRBurst(progressed) {
			s.sendCTC()
			return
		}
		for _, seq := range missing {
			payload, ok := s.ecm.Frame(seq)
			if !ok {
				continue
			}
			body := append([]byte{byte(seq)}, payload...)
			s.env.SendHDLC(BuildVariableFrame(FcfFCD, false, false, body))
		}
		for i := 0; i < 3; i++ {
			s.env.SendHDLC(BuildSimpleFrame(FcfRCP, false, false))
		}
		frameCount := byte(s.ecm.Frames)
		pps := []byte{byte(s.pendingPostPage), byte(s.ecm.Page), byte(s.ecm.Block), frameCount}
		s.sendCommand(BuildVariableFrame(FcfPPS, true, true, pps), T4ContextPhaseD)
	case FcfRNR:
		s.state = FlowIVPPSRNR
		s.timers.StartT5()
	case FcfPIP, FcfPIN:
		s.timers.StartT3()
	case FcfDCN:
		s.status = StatusDcnFaxRx
		s.finish()
	default:
		s.status = StatusUnexpectedFinalFrame
	}
}

func (s *Session) sendCTC() {
	next, ok := StepFallback(s.fallbackIdx, s.permittedModems)
	if !ok {
		s.fail(StatusCannotTrain)
		return
	}
	entry := FallbackLadder[next]
	body := []byte{entry.DCSCode}
	s.state = FlowIVCTC
	s.sendCommand(BuildVariableFrame(FcfCTC, true, true, body), T4ContextPhaseD)
}

func (s *Session) handleIVPPSRNR(fcf FCF, frame []byte) {
	switch fcf {
	case FcfMCF:
		s.timers.StopT5()
		s.onPageAcknowledged()
	case FcfDCN:
		s.status = StatusDcnFaxRx
		s.finish()
	default:
		s.status = StatusUnexpectedFinalFrame
	}
}

func (s *Session) handleIVCTC(fcf FCF, frame []byte) {
	switch fcf {
	case FcfCTR:
		payload := FramePayload(frame)
		if len(payload) >= 1 {
			if idx, ok := FindFallbackByDCSCode(payload[0]); ok {
				s.fallbackIdx = idx
			}
		}
		pps := []byte{byte(s.pendingPostPage), byte(s.ecm.Page), byte(s.ecm.Block), byte(s.ecm.Frames)}
		s.state = FlowIVPPSQ
		s.sendCommand(BuildVariableFrame(FcfPPS, true, true, pps), T4ContextPhaseD)
	case FcfDCN:
		s.status = StatusDcnFaxRx
		s.finish()
	default:
		s.status = StatusUnexpectedFinalFrame
	}
}

// --- answerer side ------------------------------------------------------

func (s *Session) handleAnswering(fcf FCF, frame []byte) {
	switch fcf {
	case FcfDCS:
		s.remoteCaps = DecodeCapabilityVector(fcf, FramePayload(frame))
		idx, ok := FindFallbackByDCSCode(s.remoteCaps.SignallingField())
		if !ok {
			s.fail(StatusIncompatible)
			return
		}
		s.fallbackIdx = idx
		s.ecmMode = s.remoteCaps.GetBit(BitECM) && s.cfg.ECMEnabled
		entry := FallbackLadder[idx]
		s.state = FlowFTCF
		s.tcfRunning = false
		s.tcfZeroRun, s.tcfLongestRun = 0, 0
		s.enterPhase(PhaseDRx, ModemSelection{Type: imageModemFor(entry)}, ModemSelection{Type: ModemNone})
	case FcfDIS, FcfDTC:
		s.timers.StartT1()
		s.sendDIS()
	case FcfDCN:
		s.status = StatusDcnWhyRx
		s.finish()
	default:
		s.status = StatusUnexpectedFinalFrame
	}
}

func (s *Session) handleFPostDocNonEcm(fcf FCF, frame []byte) {
	switch fcf {
	case FcfMPS, FcfEOM, FcfEOP, FcfPRIMPS, FcfPRIEOM, FcfPRIEOP:
		s.respondToPostPage(PostPageCommand(fcf))
	case FcfDCN:
		s.status = StatusDcnFaxRx
		s.finish()
	default:
		s.status = StatusUnexpectedFinalFrame
	}
}

// respondToPostPage judges quality and replies MCF/RTP/RTN, then moves to
// the next page, a fresh negotiation, or call end, per §4.5
// "F-PostDoc-NonEcm" / the PPS family.
func (s *Session) respondToPostPage(cmd PostPageCommand) {
	quality := JudgePageQuality(s.pendingBadRows, s.pendingTotalRows)
	s.pendingBadRows, s.pendingTotalRows = 0, 0

	switch quality {
	case QualityGood:
		s.sendSimple(FcfMCF, true, true)
	case QualityPoor:
		s.sendSimple(FcfRTP, true, true)
	case QualityBad:
		s.sendSimple(FcfRTN, true, true)
	}

	switch cmd {
	case PostPageEOP, PostPagePriEOP:
		if quality == QualityBad {
			s.nextPageOrRepeat(true)
			return
		}
		s.status = StatusOk
		s.finish()
	case PostPageEOM, PostPagePriEOM:
		s.state = FlowAnswering
		s.enterPhase(PhaseBRx, ModemSelection{Type: ModemV21, UseHDLC: true}, ModemSelection{Type: ModemNone})
	default: // MPS / PRI-MPS
		s.nextPageOrRepeat(quality == QualityBad)
	}
}

func (s *Session) nextPageOrRepeat(repeat bool) {
	entry := FallbackLadder[s.fallbackIdx]
	if s.ecmMode {
		s.ecm.Clear()
		s.state = FlowFDocEcm
		s.enterPhase(PhaseCEcmRx, ModemSelection{Type: imageModemFor(entry), UseHDLC: true}, ModemSelection{Type: ModemNone})
	} else {
		s.state = FlowFDocNonEcm
		s.rxSignalPresent = true
		s.enterPhase(PhaseCNonEcmRx, ModemSelection{Type: imageModemFor(entry)}, ModemSelection{Type: ModemNone})
		s.timers.StartT2()
	}
	_ = repeat // repeat vs continue differ only in which page data the external T.4/ECM layer re-feeds; the session's own state is identical either way.
}

// handleFPPS processes a PPS frame received while in FlowFDocEcm (mid
// document) or FlowFPostDocEcm (just after the trailing RCPs), per §4.5
// "PPS handling".
func (s *Session) handleFPPS(fcf FCF, frame []byte) {
	if fcf != FcfPPS {
		if fcf == FcfDCN {
			if s.state == FlowFDocEcm {
				s.status = StatusDcnDataRx
			} else {
				s.status = StatusDcnFaxRx
			}
			s.finish()
			return
		}
		s.status = StatusUnexpectedFinalFrame
		return
	}

	payload := FramePayload(frame)
	if len(payload) < 4 {
		s.status = StatusUnexpectedFrameLength
		return
	}
	fcf2 := payload[0]
	page := payload[1]
	block := payload[2]
	s.ecm.Page, s.ecm.Block = int(page), int(block)
	s.ecm.ReconcileFrameCount(payload[3])

	if s.cfg.ReceiverNotReadyCount > 0 {
		s.cfg.ReceiverNotReadyCount--
		s.sendSimple(FcfRNR, true, true)
		return
	}

	if s.ecm.Complete() && fcf2 != 0x00 {
		// Commit the partial page to the image decoder (external;
		// nothing further to do here but acknowledge) and move on.
		s.sendSimple(FcfMCF, true, true)
		s.ecm.PPRBurstCount = 0
		s.respondToPostPage(PostPageCommand(fcf2))
		return
	}

	bitmap := s.ecm.MissingBitmap()
	s.env.SendHDLC(BuildVariableFrame(FcfPPR, true, true, bitmap[:]))
	s.env.SendHDLC(nil)
	s.state = FlowFDocEcm
}

// --- timer tick ----------------------------------------------------

// Tick advances the timer base by samples and reacts to any expiry.
func (s *Session) Tick(samples int) {
	if s.closing {
		return
	}
	event, ctx := s.timers.Tick(samples)
	switch event {
	case TimerEventNone:
		return
	case TimerEventT0:
		s.status = StatusT0Expired
		s.finish()
	case TimerEventT1:
		s.status = StatusT1Expired
		if s.role == RoleCaller {
			s.finish()
		} else {
			s.sendDCN()
			s.finish()
		}
	case TimerEventT2:
		s.state = FlowAnswering
		s.enterPhase(PhaseBTx, ModemSelection{Type: ModemV21, UseHDLC: true}, ModemSelection{Type: ModemV21, UseHDLC: true})
		s.sendDIS()
	case TimerEventT3:
		s.status = StatusT3Expired
		s.finish()
	case TimerEventT5:
		s.status = StatusT5Expired
		s.finish()
	case TimerEventT4:
		s.onT4Expired(ctx)
	}
}

func (s *Session) onT4Expired(ctx T4Context) {
	s.retries++
	if s.retries >= MaxMessageTries {
		switch ctx {
		case T4ContextPhaseB:
			s.fail(StatusPhBDeadTx)
		case T4ContextPhaseD:
			s.fail(StatusPhDDeadTx)
		default:
			s.fail(StatusRetryDCN)
		}
		return
	}
	s.RepeatLastCommand()
}
