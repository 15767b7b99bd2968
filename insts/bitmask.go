package insts

import (
	"github.com/S-YOU/nsemu/bitfield"
)

// DecodeBitMasks expands the (N, imms, immr) fields of a logical-immediate
// or bitfield instruction into its write mask and test mask, following the
// architecture's DecodeBitMasks pseudocode. With immediate set the all-ones
// element pattern is reserved. datasize is 32 or 64.
func DecodeBitMasks(n, imms, immr uint32, immediate bool, datasize int) (wmask, tmask uint64, err error) {
	// Highest set bit of N:NOT(imms). A zero field has no element size.
	combined := (n&1)<<6 | (^imms & 0x3F)
	length := 31 - bitfield.CountLeadingZeros32(combined)
	if length < 1 {
		return 0, 0, &DecodeError{Reason: "reserved bitmask element size"}
	}

	esize := 1 << uint(length)
	if esize > datasize {
		return 0, 0, &DecodeError{Reason: "bitmask element wider than register"}
	}

	levels := uint32(bitfield.Mask64(length))
	if immediate && imms&levels == levels {
		return 0, 0, &DecodeError{Reason: "reserved all-ones bitmask immediate"}
	}

	s := imms & levels
	r := immr & levels
	diff := (s - r) & levels

	welem := bitfield.Mask64(int(s) + 1)
	telem := bitfield.Mask64(int(diff) + 1)

	wmask = bitfield.Replicate64(bitfield.RotateRight(welem, int(r), esize), esize)
	tmask = bitfield.Replicate64(telem, esize)

	if datasize == 32 {
		wmask &= 0xFFFFFFFF
		tmask &= 0xFFFFFFFF
	}

	return wmask, tmask, nil
}
