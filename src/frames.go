package t30

/*------------------------------------------------------------------
 *
 * Purpose:	FCF (facsimile control field) constants and the small
 *		set of primitives used to build and recognise outgoing
 *		HDLC frames.
 *
 * Description:	Every frame this session emits or expects begins with
 *		the two-octet prefix 0xFF 0x03 (or 0xFF 0x13 for a final
 *		frame) followed by the FCF octet.  The low bit of the
 *		FCF octet doubles as the "DIS received" flag;
 *		FrameCommand masks it off, so FCF values that differ
 *		only in that bit read as the same command -- see
 *		FrameCommand.
 *
 *------------------------------------------------------------------*/

// FCF is a facsimile control field value.
type FCF byte

const (
	FcfDIS     FCF = 0x80
	FcfDTC     FCF = 0x81
	FcfCSI     FCF = 0x40
	FcfCIG     FCF = 0x41
	FcfNSF     FCF = 0x20
	FcfNSC     FCF = 0x21
	FcfNSS     FCF = 0x22
	FcfDCS     FCF = 0x82
	FcfTSI     FCF = 0x42
	FcfSUB     FCF = 0xC2
	FcfPWD     FCF = 0xC3
	FcfSEP     FCF = 0xA1
	FcfPSA     FCF = 0xA3
	FcfSID     FCF = 0xA3
	FcfCFR     FCF = 0x84
	FcfFTT     FCF = 0x42
	FcfEOM     FCF = 0x8E
	FcfMPS     FCF = 0x8F
	FcfEOP     FCF = 0x8C
	FcfPRIEOM  FCF = 0x9E
	FcfPRIMPS  FCF = 0x9F
	FcfPRIEOP  FCF = 0x9C
	FcfPPS     FCF = 0xBC
	FcfEOR     FCF = 0xB2
	FcfCTC     FCF = 0xB2
	FcfRR      FCF = 0xB6
	FcfMCF     FCF = 0x8C
	FcfRTP     FCF = 0xCC
	FcfRTN     FCF = 0xCE
	FcfPIP     FCF = 0xAC
	FcfPIN     FCF = 0xA8
	FcfPPR     FCF = 0xBC
	FcfRNR     FCF = 0xB6
	FcfERR     FCF = 0xB8
	FcfDCN     FCF = 0xFA
	FcfCRP     FCF = 0x1A
	FcfFNV     FCF = 0xCA
	FcfFCD     FCF = 0x60
	FcfRCP     FCF = 0x61
	FcfCTR     FCF = 0xB8
	FcfCIA     FCF = 0x41
	FcfISP     FCF = 0x40
)

const (
	framePrefixA      byte = 0xFF
	frameControlNF    byte = 0x03 // non-final frame (more frames follow / no ack needed yet)
	frameControlFinal byte = 0x13 // final frame (expect a response)

	disReceivedBit byte = 0x01

	identifierLen = 20
)

// FrameCommand masks off the DIS-received bit from a received FCF octet,
// yielding the bare command for dispatch purposes (spec §4.5: "Frame
// command field is masked 0xFE to strip the DIS-received bit").
func FrameCommand(fcf byte) byte {
	return fcf &^ disReceivedBit
}

// IsFinalFrame reports whether the HDLC control octet (second byte of the
// frame) indicates a final frame expecting a response.
func IsFinalFrame(control byte) bool {
	return control&0x01 != 0
}

// BuildSimpleFrame constructs a 3-octet frame: prefix, control, FCF.
func BuildSimpleFrame(fcf FCF, final bool, disReceived bool) []byte {
	ctl := frameControlNF
	if final {
		ctl = frameControlFinal
	}
	b := byte(fcf)
	if disReceived {
		b |= disReceivedBit
	}
	return []byte{framePrefixA, ctl, b}
}

// BuildIdentifierFrame builds a 23-octet T30-ID style frame (TSI/CSI/CIG/
// PWD/SUB/SEP/PSA and similar): 3-octet prefix/FCF header followed by a
// 20-character identifier, ASCII-reversed and space-padded per §4.6.
func BuildIdentifierFrame(fcf FCF, final bool, disReceived bool, id string) []byte {
	frame := BuildSimpleFrame(fcf, final, disReceived)
	return append(frame, EncodeIdentifier(id)...)
}

// BuildVariableFrame builds a frame carrying an arbitrary payload (DCS/DIS
// capability octets, PPS, PPR, FCD, RCP, NSF/NSC/NSS).
func BuildVariableFrame(fcf FCF, final bool, disReceived bool, payload []byte) []byte {
	frame := BuildSimpleFrame(fcf, final, disReceived)
	return append(frame, payload...)
}

// FramePayload returns the bytes following the 3-octet header.
func FramePayload(frame []byte) []byte {
	if len(frame) <= 3 {
		return nil
	}
	return frame[3:]
}

// FrameFCF extracts the bare FCF command (DIS-received bit stripped) from
// a received frame. Returns 0, false if the frame is too short to have one.
func FrameFCF(frame []byte) (byte, bool) {
	if len(frame) < 3 {
		return 0, false
	}
	return FrameCommand(frame[2]), true
}

// FrameDisReceived reports the DIS-received bit of a received frame's FCF.
func FrameDisReceived(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	return frame[2]&disReceivedBit != 0
}
