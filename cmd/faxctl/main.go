package main

/*------------------------------------------------------------------
 *
 * Purpose:	Demo/harness binary that wires two t30.Session values --
 *		one caller, one answerer -- back to back over an
 *		in-process HDLC bus and drives a scripted page transfer,
 *		logging every transition as it happens.
 *
 *------------------------------------------------------------------*/

import (
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	t30 "github.com/kg7fax/gofax/src"
)

func main() {
	localID := pflag.StringP("local-id", "i", "15035551212", "Local station identifier (TSI/CSI), up to 20 characters.")
	ecm := pflag.BoolP("ecm", "e", true, "Enable ECM (error correction mode).")
	pages := pflag.IntP("pages", "n", 2, "Number of pages the caller has queued to send.")
	sampleRate := pflag.IntP("sample-rate", "r", 8000, "Simulated sample rate, samples/sec.")
	rnr := pflag.IntP("rnr-count", "R", 0, "Have the answerer issue this many RNR responses before accepting a block.")
	verbose := pflag.BoolP("verbose", "v", false, "Enable debug-level logging.")
	pflag.Parse()

	level := log.WarnLevel
	if *verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "faxctl", Level: level})

	bus := newLoopbackBus()

	callerCfg := t30.FaxConfig{
		LocalID:    *localID,
		ECMEnabled: *ecm,
		HasDocument: true,
		SampleRate: *sampleRate,
	}
	answererCfg := t30.FaxConfig{
		LocalID:               *localID + "-ANS",
		ECMEnabled:             *ecm,
		ReceiverNotReadyCount:  *rnr,
		SampleRate:             *sampleRate,
	}

	doc := &scriptedDocument{pagesRemaining: *pages}
	callerEnv := &busEnvironment{bus: bus, side: sideCaller, logger: logger, doc: doc}
	answererEnv := &busEnvironment{bus: bus, side: sideAnswerer, logger: logger, doc: doc}

	caller := t30.NewSession(t30.RoleCaller, callerEnv, callerCfg, logger.With("role", "caller"))
	answerer := t30.NewSession(t30.RoleAnswerer, answererEnv, answererCfg, logger.With("role", "answerer"))
	callerEnv.session = caller
	answererEnv.session = answerer

	source := 8000
	if *sampleRate > 0 {
		source = *sampleRate
	}

	const maxTicks = 2_000_000
	tickSamples := source / 100 // 10ms per tick
	if tickSamples <= 0 {
		tickSamples = 1
	}

	for i := 0; i < maxTicks; i++ {
		bus.deliver(caller, answerer)
		caller.Tick(tickSamples)
		answerer.Tick(tickSamples)

		if caller.State() == t30.FlowCallFinished && answerer.State() == t30.FlowCallFinished {
			break
		}
	}

	logger.Info("call finished", "caller_status", caller.Status().String(), "answerer_status", answerer.Status().String())
	for _, e := range caller.Trace() {
		logger.Debug("caller trace", "phase", e.Phase.String(), "state", e.State.String(), "fcf", strconv.Itoa(int(e.FCF)), "status", e.Status.String())
	}
}

type side int

const (
	sideCaller side = iota
	sideAnswerer
)

// loopbackBus is a zero-latency in-memory HDLC transport: frames sent by
// one side are queued for immediate delivery to the other.
type loopbackBus struct {
	toCaller   [][]byte
	toAnswerer [][]byte
}

func newLoopbackBus() *loopbackBus { return &loopbackBus{} }

func (b *loopbackBus) send(from side, frame []byte) {
	if frame == nil {
		return // nil is the "flush" terminator described in env.go; nothing to queue.
	}
	switch from {
	case sideCaller:
		b.toAnswerer = append(b.toAnswerer, frame)
	case sideAnswerer:
		b.toCaller = append(b.toCaller, frame)
	}
}

func (b *loopbackBus) deliver(caller, answerer *t30.Session) {
	for _, f := range b.toCaller {
		caller.DeliverFrame(f)
	}
	b.toCaller = nil
	for _, f := range b.toAnswerer {
		answerer.DeliverFrame(f)
	}
	b.toAnswerer = nil
}

// scriptedDocument is a fake multi-page document: each call to hasMore
// reports whether another page follows.
type scriptedDocument struct {
	pagesRemaining int
	block          int
}

func (d *scriptedDocument) hasMore() bool {
	if d.pagesRemaining > 0 {
		d.pagesRemaining--
	}
	return d.pagesRemaining > 0
}

// ecmBlockPayload is a placeholder partial-page block; the real T.4/ECM
// encoder lives outside this package, so the harness hands SendECMBlock a
// single fixed-size dummy frame per block just to exercise the wire path.
var ecmBlockPayload = []byte{0xAA, 0xBB, 0xCC, 0xDD}

// busEnvironment implements t30.Environment on top of a loopbackBus. It
// also plays the part of the external modem/T.4 layer: on each phase
// notification it feeds the Session whatever bytes or ECM blocks that
// layer would have produced, since this binary has no real audio path.
type busEnvironment struct {
	bus     *loopbackBus
	side    side
	logger  *log.Logger
	doc     *scriptedDocument
	session *t30.Session
}

func (e *busEnvironment) SendHDLC(frame []byte) { e.bus.send(e.side, frame) }

func (e *busEnvironment) SetRxModem(modem t30.ModemType, shortTrain bool, useHDLC bool) {
	e.logger.Debug("set rx modem", "side", e.side, "modem", modem)
}

func (e *busEnvironment) SetTxModem(modem t30.ModemType, shortTrain bool, useHDLC bool) {
	e.logger.Debug("set tx modem", "side", e.side, "modem", modem)
}

func (e *busEnvironment) NotifyPhase(p t30.Phase) {
	e.logger.Info("phase", "side", e.side, "phase", p.String())

	switch p {
	case t30.PhaseDRx:
		// The answerer just saw DCS and is now listening for TCF; the
		// real training tone and 1.5s zero-bit run live in the modem
		// layer, so simulate it here: carrier up, a zero-bit run well
		// past any fallback rung's bit rate, carrier down.
		if e.side == sideAnswerer && e.session.State() == t30.FlowFTCF {
			e.session.DeliverNonECMByte(-3)
			for i := 0; i < 20000; i++ {
				e.session.DeliverNonECMByte(0)
			}
			e.session.DeliverNonECMByte(-4)
		}
	case t30.PhaseCNonEcmTx:
		if e.side == sideCaller {
			// "Transmit" the whole page instantly; there is no real
			// image bitstream in this harness.
			e.session.DeliverNonECMByte(-5)
		}
	case t30.PhaseCNonEcmRx:
		if e.side == sideAnswerer {
			e.session.SetPageStatistics(0, 200)
			e.session.DeliverNonECMByte(-5)
			e.session.DeliverNonECMByte(-4)
		}
	case t30.PhaseCEcmTx:
		if e.side == sideCaller {
			postPage := t30.PostPageEOP
			if e.doc.hasMore() {
				postPage = t30.PostPageMPS
			}
			e.doc.block++
			e.session.SendECMBlock([][]byte{ecmBlockPayload}, 0, e.doc.block, postPage)
		}
	}
}

func (e *busEnvironment) DocumentHasMorePages() bool {
	return e.doc.hasMore()
}
