package t30

/*------------------------------------------------------------------
 *
 * Purpose:	The ordered list of (bit rate, modulation, family mask,
 *		DCS code) entries a sender steps down through when
 *		training fails.
 *
 * Description:	Stepping never raises the bit rate; it only moves to
 *		the next entry whose family mask intersects the
 *		currently-permitted set.  Reaching the end of the ladder
 *		without success means the session fails with
 *		StatusCannotTrain (§4.2).
 *
 *------------------------------------------------------------------*/

// ModemFamily identifies which modem standard a fallback entry uses.
type ModemFamily int

const (
	ModemFamilyV17 ModemFamily = 1 << iota
	ModemFamilyV29
	ModemFamilyV27ter
)

// ModemFamilyAll permits every family; used as the default "currently
// permitted" mask before any restriction has been applied.
const ModemFamilyAll = ModemFamilyV17 | ModemFamilyV29 | ModemFamilyV27ter

// FallbackEntry is one rung of the ladder.
type FallbackEntry struct {
	BitRate  int
	Modem    ModemFamily
	DCSCode  byte
}

// FallbackLadder is the static, ordered table from spec §3.
var FallbackLadder = []FallbackEntry{
	{BitRate: 14400, Modem: ModemFamilyV17, DCSCode: 0x20},
	{BitRate: 12000, Modem: ModemFamilyV17, DCSCode: 0x28},
	{BitRate: 9600, Modem: ModemFamilyV17, DCSCode: 0x24},
	{BitRate: 9600, Modem: ModemFamilyV29, DCSCode: 0x04},
	{BitRate: 7200, Modem: ModemFamilyV17, DCSCode: 0x2C},
	{BitRate: 7200, Modem: ModemFamilyV29, DCSCode: 0x0C},
	{BitRate: 4800, Modem: ModemFamilyV27ter, DCSCode: 0x08},
	{BitRate: 2400, Modem: ModemFamilyV27ter, DCSCode: 0x00},
}

// Starting indices into FallbackLadder for each modem family, per spec §3.
const (
	FallbackStartV17    = 0
	FallbackStartV29    = 3
	FallbackStartV27ter = 6
)

// FindFallbackByDCSCode does a linear search for the entry matching code.
// ok is false if the code is unrecognised (caller should raise
// StatusIncompatible).
func FindFallbackByDCSCode(code byte) (idx int, ok bool) {
	for i, e := range FallbackLadder {
		if e.DCSCode == code {
			return i, true
		}
	}
	return -1, false
}

// StepFallback advances from idx to the next entry whose Modem intersects
// permitted. ok is false once the ladder is exhausted (caller should end
// the call with StatusCannotTrain).
func StepFallback(idx int, permitted ModemFamily) (next int, ok bool) {
	for i := idx + 1; i < len(FallbackLadder); i++ {
		if FallbackLadder[i].Modem&permitted != 0 {
			return i, true
		}
	}
	return -1, false
}

// HighestPermitted returns the index of the fastest ladder entry whose
// Modem intersects permitted, used to pick the initial rate for R/DCS.
func HighestPermitted(permitted ModemFamily) (idx int, ok bool) {
	for i, e := range FallbackLadder {
		if e.Modem&permitted != 0 {
			return i, true
		}
	}
	return -1, false
}
