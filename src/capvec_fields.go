package t30

/*------------------------------------------------------------------
 *
 * Purpose:	The one multi-bit field every fallback step needs to
 *		round-trip through a capability vector: the chosen
 *		bit-rate/modulation code from the fallback ladder.  Kept
 *		separate from capvec.go's generic bit helpers because it
 *		is the one place a raw FallbackEntry.DCSCode is written
 *		straight into wire octets.
 *
 *------------------------------------------------------------------*/

// signallingFieldOctet is the content-octet index (0-based) the
// signalling-rate/modem-selection code occupies.
const signallingFieldOctet = 1

// SetSignallingField writes a fallback entry's DCSCode into the
// capability vector's signalling-rate field.
func (v *CapabilityVector) SetSignallingField(code byte) {
	v.ensureOctet(signallingFieldOctet)
	v.Content[signallingFieldOctet] = (v.Content[signallingFieldOctet] &^ 0x7F) | (code & 0x7F)
}

// SignallingField reads back the signalling-rate field written by
// SetSignallingField.
func (v *CapabilityVector) SignallingField() byte {
	if len(v.Content) <= signallingFieldOctet {
		return 0
	}
	return v.Content[signallingFieldOctet] & 0x7F
}
