package t30

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSimpleFrameFinalBit(t *testing.T) {
	nonFinal := BuildSimpleFrame(FcfDCS, false, false)
	final := BuildSimpleFrame(FcfDCS, true, false)

	assert.False(t, IsFinalFrame(nonFinal[1]))
	assert.True(t, IsFinalFrame(final[1]))
}

func TestFrameCommandMasksDisReceivedBit(t *testing.T) {
	frame := BuildSimpleFrame(FcfMCF, true, true)
	fcf, ok := FrameFCF(frame)
	assert.True(t, ok)
	assert.Equal(t, byte(FcfMCF)&^byte(0x01), fcf)
	assert.True(t, FrameDisReceived(frame))
}

func TestFrameFCFTooShort(t *testing.T) {
	_, ok := FrameFCF([]byte{0xFF})
	assert.False(t, ok)
}

func TestBuildIdentifierFrameRoundTrip(t *testing.T) {
	frame := BuildIdentifierFrame(FcfTSI, true, false, "15035551212")
	payload := FramePayload(frame)
	assert.Equal(t, "15035551212", DecodeIdentifier(payload))
}

func TestIdentifierEncodeIsReversedAndPadded(t *testing.T) {
	encoded := EncodeIdentifier("AB")
	assert.Len(t, encoded, identifierLen)
	// "AB" is right-padded to 20 then the whole thing is byte-reversed, so
	// the original characters land at the end, in reverse order.
	assert.Equal(t, byte('B'), encoded[identifierLen-2])
	assert.Equal(t, byte('A'), encoded[identifierLen-1])
	assert.Equal(t, byte(' '), encoded[0])
}

func TestIdentifierRoundTripArbitraryStrings(t *testing.T) {
	for _, s := range []string{"", "A", "WB2OSZ-15", "12345678901234567890", "X"} {
		encoded := EncodeIdentifier(s)
		decoded := DecodeIdentifier(encoded)
		want := s
		if len(want) > identifierLen {
			want = want[:identifierLen]
		}
		assert.Equal(t, want, decoded)
	}
}

func TestNSFEncodeDecodeRoundTrip(t *testing.T) {
	n := NSF{CountryCode: 0xB5, Vendor: [3]byte{'G', 'F', 'X'}, Rest: []byte{1, 2, 3}}
	encoded := EncodeNSF(n)
	decoded := DecodeNSF(encoded)
	assert.Equal(t, n, decoded)
}

func TestDecodeNSFShortPayloadDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		n := DecodeNSF([]byte{0xB5})
		assert.Equal(t, byte(0xB5), n.CountryCode)
	})
	assert.NotPanics(t, func() {
		DecodeNSF(nil)
	})
}
