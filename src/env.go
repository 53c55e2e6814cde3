package t30

/*------------------------------------------------------------------
 *
 * Purpose:	The single capability set a Session needs from its host,
 *		replacing the C function-pointer members the original
 *		implementation carried for HDLC send, modem-type change,
 *		and phase notification (spec §9 Design Notes).
 *
 * Description:	Handlers are invoked synchronously, in the same
 *		goroutine that called into the Session, and must not
 *		re-enter the session (§5 Concurrency & Resource Model).
 *
 *------------------------------------------------------------------*/

// Environment is implemented by whatever owns the modem/transport layer
// around a Session.
type Environment interface {
	// SendHDLC transmits a fully-built HDLC frame (as produced by
	// BuildSimpleFrame/BuildIdentifierFrame/BuildVariableFrame or
	// CapabilityVector.Build). A nil frame is the "flush and expect
	// response" terminator signal described in §4.8.
	SendHDLC(frame []byte)

	// SetRxModem and SetTxModem reconfigure the lower layer, mirroring
	// the set_rx_type/set_tx_type callbacks of §6.
	SetRxModem(modem ModemType, shortTrain bool, useHDLC bool)
	SetTxModem(modem ModemType, shortTrain bool, useHDLC bool)

	// NotifyPhase is called on entry to each phase, reporting the new
	// phase (the FCF that drove the transition, if any, is logged by
	// the session separately via the Logger).
	NotifyPhase(p Phase)

	// DocumentHasMorePages is queried when deciding between MPS, EOM
	// and EOP after a page completes on the transmit side.
	DocumentHasMorePages() bool
}

// NopEnvironment is a do-nothing Environment, useful for unit tests that
// only want to inspect Session's internal state transitions without a
// real transport.
type NopEnvironment struct {
	Sent       [][]byte
	RxModems   []ModemSelection
	TxModems   []ModemSelection
	Phases     []Phase
	MorePages  bool
}

func (e *NopEnvironment) SendHDLC(frame []byte) {
	e.Sent = append(e.Sent, frame)
}

func (e *NopEnvironment) SetRxModem(modem ModemType, shortTrain bool, useHDLC bool) {
	e.RxModems = append(e.RxModems, ModemSelection{Type: modem, ShortTrain: shortTrain, UseHDLC: useHDLC})
}

func (e *NopEnvironment) SetTxModem(modem ModemType, shortTrain bool, useHDLC bool) {
	e.TxModems = append(e.TxModems, ModemSelection{Type: modem, ShortTrain: shortTrain, UseHDLC: useHDLC})
}

func (e *NopEnvironment) NotifyPhase(p Phase) {
	e.Phases = append(e.Phases, p)
}

func (e *NopEnvironment) DocumentHasMorePages() bool {
	return e.MorePages
}
