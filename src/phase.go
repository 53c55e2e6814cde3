package t30

/*------------------------------------------------------------------
 *
 * Purpose:	The five T.30 call phases (A..E) plus CallFinished, and
 *		the glue that reconfigures the modem layer whenever the
 *		session transitions between them.
 *
 * Description:	A phase selects one receive-modem type and one
 *		transmit-modem type (§4.4).  Transitions never send
 *		frames themselves -- they only call SetRxModem/SetTxModem
 *		on the Environment and reset phase-owned timers.  A
 *		pending transition can be deferred with QueuePhase until
 *		the current receive-signal-present indicator next drops,
 *		per §8 invariant 7.
 *
 *------------------------------------------------------------------*/

// Phase is one of the top-level T.30 call phases.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseACED
	PhaseACNG
	PhaseBRx
	PhaseBTx
	PhaseCNonEcmRx
	PhaseCNonEcmTx
	PhaseCEcmRx
	PhaseCEcmTx
	PhaseDRx
	PhaseDTx
	PhaseE
	PhaseCallFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseACED:
		return "A-CED"
	case PhaseACNG:
		return "A-CNG"
	case PhaseBRx:
		return "B-Rx"
	case PhaseBTx:
		return "B-Tx"
	case PhaseCNonEcmRx:
		return "C-NonEcm-Rx"
	case PhaseCNonEcmTx:
		return "C-NonEcm-Tx"
	case PhaseCEcmRx:
		return "C-Ecm-Rx"
	case PhaseCEcmTx:
		return "C-Ecm-Tx"
	case PhaseDRx:
		return "D-Rx"
	case PhaseDTx:
		return "D-Tx"
	case PhaseE:
		return "E"
	case PhaseCallFinished:
		return "CallFinished"
	default:
		return "Unknown"
	}
}

// ModemType enumerates what the lower layer should be configured to run,
// per spec §6.
type ModemType int

const (
	ModemNone ModemType = iota
	ModemCED
	ModemCNG
	ModemV21
	ModemV17_14400
	ModemV17_12000
	ModemV17_9600
	ModemV17_7200
	ModemV29_9600
	ModemV29_7200
	ModemV27ter_4800
	ModemV27ter_2400
	ModemPause
	ModemDone
)

// ModemSelection is what a phase asks the environment to configure for
// receive or transmit.
type ModemSelection struct {
	Type       ModemType
	ShortTrain bool // or pause duration when Type == ModemPause, via PauseMs
	UseHDLC    bool
	PauseMs    int
}

// fixedPhaseModem holds the (rx, tx) modem selection for a phase. The
// ECM/non-ECM image phases and D/D-Tx phases depend on the bit rate
// currently chosen by the fallback ladder, so those are resolved by the
// caller (Session) rather than hard-coded here; this table covers the
// phases with a fixed modem regardless of rate.
var fixedPhaseModem = map[Phase]struct{ rx, tx ModemSelection }{
	PhaseIdle:         {rx: ModemSelection{Type: ModemNone}, tx: ModemSelection{Type: ModemNone}},
	PhaseACED:         {rx: ModemSelection{Type: ModemNone}, tx: ModemSelection{Type: ModemCED}},
	PhaseACNG:         {rx: ModemSelection{Type: ModemNone}, tx: ModemSelection{Type: ModemCNG}},
	PhaseBRx:          {rx: ModemSelection{Type: ModemV21, UseHDLC: true}, tx: ModemSelection{Type: ModemNone}},
	PhaseBTx:          {rx: ModemSelection{Type: ModemV21, UseHDLC: true}, tx: ModemSelection{Type: ModemV21, UseHDLC: true}},
	PhaseE:            {rx: ModemSelection{Type: ModemNone}, tx: ModemSelection{Type: ModemNone}},
	PhaseCallFinished: {rx: ModemSelection{Type: ModemDone}, tx: ModemSelection{Type: ModemDone}},
}

// PhaseController owns the current/pending phase and drives the
// environment's modem-selection callbacks on transition.
type PhaseController struct {
	current Phase
	pending *Phase // deferred via QueuePhase, latched when rxSignalPresent next goes false
}

// NewPhaseController starts in PhaseIdle.
func NewPhaseController() *PhaseController {
	return &PhaseController{current: PhaseIdle}
}

// Current returns the active phase.
func (pc *PhaseController) Current() Phase { return pc.current }

// Enter transitions immediately to p, invoking env's modem-select
// callbacks according to the (rx, tx) ModemSelection supplied by the
// caller (which knows the current fallback bit rate for image phases).
func (pc *PhaseController) Enter(env Environment, p Phase, rx, tx ModemSelection) {
	pc.current = p
	pc.pending = nil
	if env != nil {
		env.SetRxModem(rx.Type, rx.ShortTrain, rx.UseHDLC)
		env.SetTxModem(tx.Type, tx.ShortTrain, tx.UseHDLC)
		env.NotifyPhase(p)
	}
}

// QueuePhase defers a transition until rxSignalPresent next transitions
// to false (§8 invariant 7). The deferred phase's modem selection is
// supplied lazily via the resolver closure so it is computed at the time
// the transition actually happens (the fallback rate may change between
// now and then is not expected, but this keeps the contract honest).
func (pc *PhaseController) QueuePhase(p Phase) {
	q := p
	pc.pending = &q
}

// HasPending reports whether a deferred phase is waiting to be installed.
func (pc *PhaseController) HasPending() bool { return pc.pending != nil }

// OnRxSignalDropped is called by the session whenever its receive-signal-
// present indicator transitions to false. If a phase is queued, this is
// the moment it gets installed.
func (pc *PhaseController) OnRxSignalDropped(env Environment, resolve func(Phase) (rx, tx ModemSelection)) {
	if pc.pending == nil {
		return
	}
	p := *pc.pending
	pc.pending = nil
	rx, tx := resolve(p)
	pc.Enter(env, p, rx, tx)
}
