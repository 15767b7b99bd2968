package emu

import (
	"math/bits"

	"github.com/S-YOU/nsemu/bitfield"
	"github.com/S-YOU/nsemu/insts"
)

// AddWithCarry returns x + y + carry truncated to the operation width,
// together with the NZCV flags the architecture defines for the sum.
// Subtraction x - y is AddWithCarry(x, ^y, true, is64).
func AddWithCarry(x, y uint64, carry bool, is64 bool) (uint64, PSTATE) {
	var c uint64
	if carry {
		c = 1
	}

	if is64 {
		result, carryOut := bits.Add64(x, y, c)
		return result, PSTATE{
			N: result>>63 == 1,
			Z: result == 0,
			C: carryOut == 1,
			// Overflow: operands share a sign the result does not.
			V: ((x^result)&(y^result))>>63 == 1,
		}
	}

	x32, y32 := uint32(x), uint32(y)
	result, carryOut := bits.Add32(x32, y32, uint32(c))
	return uint64(result), PSTATE{
		N: result>>31 == 1,
		Z: result == 0,
		C: carryOut == 1,
		V: ((x32^result)&(y32^result))>>31 == 1,
	}
}

// logicFlags returns NZ for a logical result; C and V are cleared.
func logicFlags(result uint64, is64 bool) PSTATE {
	return PSTATE{
		N: result>>(datasize(is64)-1)&1 == 1,
		Z: result&widthMask(is64) == 0,
	}
}

func datasize(is64 bool) int {
	if is64 {
		return 64
	}
	return 32
}

func widthMask(is64 bool) uint64 {
	if is64 {
		return ^uint64(0)
	}
	return 0xFFFFFFFF
}

// signExtend sign-extends the low n bits of v to 64 bits.
func signExtend(v uint64, n int) uint64 {
	return uint64(int64(v<<uint(64-n)) >> uint(64-n))
}

// applyShift shifts a register operand within the operation width. amount
// is taken modulo the width, as the variable shifts require.
func applyShift(value uint64, shiftType insts.ShiftType, amount uint8, is64 bool) uint64 {
	size := datasize(is64)
	value &= widthMask(is64)
	n := uint(amount) % uint(size)
	if n == 0 {
		return value
	}

	switch shiftType {
	case insts.ShiftLSL:
		return (value << n) & widthMask(is64)
	case insts.ShiftLSR:
		return value >> n
	case insts.ShiftASR:
		return uint64(int64(signExtend(value, size))>>n) & widthMask(is64)
	case insts.ShiftROR:
		return bitfield.RotateRight(value, int(n), size)
	default:
		return value
	}
}

// extendValue applies an extended-register option and left shift.
func extendValue(value uint64, ext insts.ExtendType, shift uint8, is64 bool) uint64 {
	var v uint64
	switch ext {
	case insts.ExtendUXTB:
		v = uint64(uint8(value))
	case insts.ExtendUXTH:
		v = uint64(uint16(value))
	case insts.ExtendUXTW:
		v = uint64(uint32(value))
	case insts.ExtendSXTB:
		v = signExtend(value, 8)
	case insts.ExtendSXTH:
		v = signExtend(value, 16)
	case insts.ExtendSXTW:
		v = signExtend(value, 32)
	default:
		v = value
	}
	return (v << shift) & widthMask(is64)
}

// bitfieldMove computes SBFM/BFM/UBFM from the precomputed wmask and tmask:
//
//	bot = (dst AND NOT wmask) OR (ROR(src, immr) AND wmask)
//	top = extend ? Replicate(src<imms>) : dst
//	result = (top AND NOT tmask) OR (bot AND tmask)
//
// SBFM and UBFM start from a zero destination.
func bitfieldMove(inst *insts.Instruction, dst, src uint64) uint64 {
	size := datasize(inst.Is64Bit)
	wmask, tmask := inst.Imm, inst.Imm2

	if inst.Op != insts.OpBFM {
		dst = 0
	}
	bot := (dst &^ wmask) | (bitfield.RotateRight(src, int(inst.Immr), size) & wmask)

	top := dst
	if inst.Op == insts.OpSBFM {
		top = 0
		if bitfield.Extract64(src, int(inst.Imms), 1) == 1 {
			top = ^uint64(0)
		}
	}

	return ((top &^ tmask) | (bot & tmask)) & widthMask(inst.Is64Bit)
}

// countLeadingSignBits counts the bits below the top bit that equal it.
func countLeadingSignBits(value uint64, is64 bool) uint64 {
	if is64 {
		v := (value >> 1) ^ (value & (^uint64(0) >> 1))
		return uint64(bitfield.CountLeadingZeros64(v) - 1)
	}
	x := uint32(value)
	v := (x >> 1) ^ (x & 0x7FFFFFFF)
	return uint64(bitfield.CountLeadingZeros32(v) - 1)
}

// signedMulHigh returns the high 64 bits of the 128-bit signed product.
func signedMulHigh(x, y uint64) uint64 {
	hi, _ := bits.Mul64(x, y)
	if int64(x) < 0 {
		hi -= y
	}
	if int64(y) < 0 {
		hi -= x
	}
	return hi
}
