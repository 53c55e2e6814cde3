package t30

/*------------------------------------------------------------------
 *
 * Purpose:	Single enumeration covering every outcome a session can
 *		report, delivered to the phase-E handler when the call
 *		winds down.
 *
 * Description:	Recoverable conditions (CRP, PPR, FTT, RTN, timeouts
 *		under the retry limit) never appear here directly; they
 *		are handled locally by replaying or stepping the fallback
 *		ladder.  Status is mainly for conditions that end the
 *		call; the protocol-violation values UnexpectedFinalFrame
 *		and UnexpectedFrameLength are also recorded for a frame
 *		the session ignores without ending the call.
 *
 *------------------------------------------------------------------*/

// Status is the final (or current) outcome of a Session.
type Status int

const (
	StatusOk Status = iota

	// Timeouts
	StatusT0Expired
	StatusT1Expired
	StatusT3Expired
	StatusT5Expired
	StatusPhBDeadTx
	StatusPhDDeadTx
	StatusRetryDCN

	// Protocol violations
	StatusUnexpectedFinalFrame
	StatusUnexpectedNonFinalFrame
	StatusUnexpectedFrameLength
	StatusIncompatibleDIS
	StatusNoModemInCommon
	StatusDcnWhyRx
	StatusDcnDataRx
	StatusDcnFaxRx
	StatusDcnPhdRx
	StatusDcnRrdRx
	StatusDcnNoRtnRx

	// Capability mismatches
	StatusRxIncapable
	StatusTxIncapable
	StatusResolutionNotSupported
	StatusSizeNotSupported
	StatusIncompatible

	// File/image errors
	StatusFileError
	StatusBadTiffHdr
	StatusBadTag
	StatusNoPage

	// Training/carrier errors
	StatusCannotTrain
	StatusNoCarrierRx
	StatusBadDcsTx
	StatusBadPgTx
	StatusEcmPhdTx
	StatusEcmPhdRx
	StatusInvalRspTx
	StatusInvalCmdRx
	StatusCallDropped
)

var statusNames = map[Status]string{
	StatusOk:                      "Ok",
	StatusT0Expired:               "T0Expired",
	StatusT1Expired:               "T1Expired",
	StatusT3Expired:               "T3Expired",
	StatusT5Expired:               "T5Expired",
	StatusPhBDeadTx:               "PhBDeadTx",
	StatusPhDDeadTx:               "PhDDeadTx",
	StatusRetryDCN:                "RetryDCN",
	StatusUnexpectedFinalFrame:    "UnexpectedFinalFrame",
	StatusUnexpectedNonFinalFrame: "UnexpectedNonFinalFrame",
	StatusUnexpectedFrameLength:   "UnexpectedFrameLength",
	StatusIncompatibleDIS:         "IncompatibleDIS",
	StatusNoModemInCommon:         "NoModemInCommon",
	StatusDcnWhyRx:                "DcnWhyRx",
	StatusDcnDataRx:               "DcnDataRx",
	StatusDcnFaxRx:                "DcnFaxRx",
	StatusDcnPhdRx:                "DcnPhdRx",
	StatusDcnRrdRx:                "DcnRrdRx",
	StatusDcnNoRtnRx:              "DcnNoRtnRx",
	StatusRxIncapable:             "RxIncapable",
	StatusTxIncapable:             "TxIncapable",
	StatusResolutionNotSupported:  "ResolutionNotSupported",
	StatusSizeNotSupported:        "SizeNotSupported",
	StatusIncompatible:            "Incompatible",
	StatusFileError:               "FileError",
	StatusBadTiffHdr:              "BadTiffHdr",
	StatusBadTag:                  "BadTag",
	StatusNoPage:                  "NoPage",
	StatusCannotTrain:             "CannotTrain",
	StatusNoCarrierRx:             "NoCarrierRx",
	StatusBadDcsTx:                "BadDcsTx",
	StatusBadPgTx:                 "BadPgTx",
	StatusEcmPhdTx:                "EcmPhdTx",
	StatusEcmPhdRx:                "EcmPhdRx",
	StatusInvalRspTx:              "InvalRspTx",
	StatusInvalCmdRx:              "InvalCmdRx",
	StatusCallDropped:             "CallDropped",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UnknownStatus"
}

// IsOk reports whether the session ended (or currently stands) without error.
func (s Status) IsOk() bool {
	return s == StatusOk
}
