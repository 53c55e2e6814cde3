package t30

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestCapabilityVectorSetGetBit(t *testing.T) {
	v := NewCapabilityVector(FcfDIS)
	assert.False(t, v.GetBit(BitECM))
	v.SetBit(BitECM)
	assert.True(t, v.GetBit(BitECM))
	v.ClearBit(BitECM)
	assert.False(t, v.GetBit(BitECM))
}

func TestCapabilityVectorPruneStripsTrailingEmptyOctets(t *testing.T) {
	v := NewCapabilityVector(FcfDIS)
	v.SetBit(BitECM) // lives in octet 3 (bits 25-32)
	v.Prune()
	assert.Len(t, v.Content, 4)
	for i, o := range v.Content {
		if i < len(v.Content)-1 {
			assert.NotZero(t, o&0x80, "extension bit should be set on octet %d", i)
		}
	}
	assert.Zero(t, v.Content[len(v.Content)-1]&0x80, "last octet must not carry an extension bit")
}

func TestCapabilityVectorBuildDecodeRoundTrip(t *testing.T) {
	v := NewCapabilityVector(FcfDCS)
	v.SetBit(BitECM)
	v.SetBit(BitFine)
	v.SetSignallingField(FallbackLadder[FallbackStartV29].DCSCode)

	frame := v.Build(true, true)
	fcf, ok := FrameFCF(frame)
	assert.True(t, ok)
	assert.Equal(t, byte(FcfDCS), fcf)
	assert.True(t, IsFinalFrame(frame[1]))

	decoded := DecodeCapabilityVector(FCF(fcf), FramePayload(frame))
	assert.True(t, v.Equal(decoded))
	assert.Equal(t, FallbackLadder[FallbackStartV29].DCSCode, decoded.SignallingField())
}

func TestCapabilityVectorIntersect(t *testing.T) {
	local := NewCapabilityVector(FcfDIS)
	local.SetBit(BitECM)
	local.SetBit(BitFine)
	local.Prune()

	remote := NewCapabilityVector(FcfDIS)
	remote.SetBit(BitECM)
	remote.Prune()

	combined := Intersect(local, remote)
	assert.True(t, combined.GetBit(BitECM))
	assert.False(t, combined.GetBit(BitFine))
}

// TestCapabilityVectorBitFieldSymmetry is a property test covering spec
// invariant 1: any subset of information bits survives a Build/Prune then
// Decode round trip unchanged.
func TestCapabilityVectorBitFieldSymmetry(t *testing.T) {
	allBits := []int{
		BitStoreAndForward, BitReadyToPoll, BitReadyToReceive, BitRealTime,
		BitFine, Bit2DCoding, BitECM, BitFrameSize, BitT6Coding,
		BitSubaddressing, BitPassword, Bit300x300, BitSuperfine,
		BitLetterSize, BitLegalSize,
	}

	rapid.Check(t, func(rt *rapid.T) {
		v := NewCapabilityVector(FcfDIS)
		var chosen []int
		for _, bit := range allBits {
			if rapid.Bool().Draw(rt, "set") {
				v.SetBit(bit)
				chosen = append(chosen, bit)
			}
		}
		frame := v.Build(true, false)
		decoded := DecodeCapabilityVector(FcfDIS, FramePayload(frame))

		for _, bit := range allBits {
			want := false
			for _, c := range chosen {
				if c == bit {
					want = true
				}
			}
			assert.Equal(rt, want, decoded.GetBit(bit))
		}
	})
}

// TestCapabilityVectorExtensionBitIntegrity covers spec invariant 2: every
// octet up to the last non-empty one carries its extension bit after Prune.
func TestCapabilityVectorExtensionBitIntegrity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := NewCapabilityVector(FcfDIS)
		bit := rapid.IntRange(1, 58).Draw(rt, "bit")
		v.SetBit(bit)
		v.Prune()

		for i := 0; i < len(v.Content)-1; i++ {
			assert.NotZero(rt, v.Content[i]&0x80)
		}
		if len(v.Content) > 0 {
			assert.Zero(rt, v.Content[len(v.Content)-1]&0x80)
		}
	})
}
