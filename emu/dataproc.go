package emu

import (
	"math/bits"

	"github.com/S-YOU/nsemu/bitfield"
	"github.com/S-YOU/nsemu/insts"
)

// destRole is the role of Rd for forms where Rd=31 is SP unless the
// instruction sets flags (CMP, CMN, TST write XZR).
func destRole(inst *insts.Instruction) Role {
	if inst.SetFlags {
		return RoleZR
	}
	return RoleSP
}

// addSub computes ADD/SUB and their flags.
func addSub(op insts.Op, x, y uint64, is64 bool) (uint64, PSTATE) {
	if op == insts.OpSUB {
		return AddWithCarry(x, ^y, true, is64)
	}
	return AddWithCarry(x, y, false, is64)
}

// logical computes AND/ORR/EOR.
func logical(op insts.Op, x, y uint64) uint64 {
	switch op {
	case insts.OpORR:
		return x | y
	case insts.OpEOR:
		return x ^ y
	default:
		return x & y
	}
}

// writeResult writes the result of a data-processing instruction and, if
// requested, the flags.
func (e *Emulator) writeResult(inst *insts.Instruction, role Role, result uint64, flags PSTATE) {
	e.regFile.WriteAs(inst.Rd, role, result&widthMask(inst.Is64Bit))
	if inst.SetFlags {
		e.regFile.PSTATE = flags
	}
}

// executePCRel executes ADR and ADRP.
func (e *Emulator) executePCRel(inst *insts.Instruction) (effect, error) {
	base := e.regFile.PC
	if inst.Op == insts.OpADRP {
		base &^= 0xFFF
	}
	e.regFile.WriteAs(inst.Rd, RoleZR, uint64(int64(base)+inst.BranchOffset))
	return effect{}, nil
}

// executeAddSubImm executes ADD/ADDS/SUB/SUBS (immediate).
func (e *Emulator) executeAddSubImm(inst *insts.Instruction) (effect, error) {
	op1 := e.regFile.ReadAs(inst.Rn, RoleSP)
	result, flags := addSub(inst.Op, op1, inst.Imm, inst.Is64Bit)
	e.writeResult(inst, destRole(inst), result, flags)
	return effect{}, nil
}

// executeLogicalImm executes AND/ORR/EOR/ANDS (immediate).
func (e *Emulator) executeLogicalImm(inst *insts.Instruction) (effect, error) {
	op1 := e.regFile.ReadAs(inst.Rn, RoleZR)
	result := logical(inst.Op, op1, inst.Imm) & widthMask(inst.Is64Bit)
	e.writeResult(inst, destRole(inst), result, logicFlags(result, inst.Is64Bit))
	return effect{}, nil
}

// executeMoveWide executes MOVN/MOVZ/MOVK.
func (e *Emulator) executeMoveWide(inst *insts.Instruction) (effect, error) {
	imm := inst.Imm << inst.Shift

	var result uint64
	switch inst.Op {
	case insts.OpMOVN:
		result = ^imm
	case insts.OpMOVZ:
		result = imm
	case insts.OpMOVK:
		old := e.regFile.ReadAs(inst.Rd, RoleZR)
		result = (old &^ (0xFFFF << inst.Shift)) | imm
	}
	e.writeResult(inst, RoleZR, result, PSTATE{})
	return effect{}, nil
}

// executeBitfield executes SBFM/BFM/UBFM.
func (e *Emulator) executeBitfield(inst *insts.Instruction) (effect, error) {
	src := e.regFile.ReadAs(inst.Rn, RoleZR)
	dst := e.regFile.ReadAs(inst.Rd, RoleZR)
	e.writeResult(inst, RoleZR, bitfieldMove(inst, dst, src), PSTATE{})
	return effect{}, nil
}

// executeExtract executes EXTR: the datasize bits of Rn:Rm starting at lsb.
func (e *Emulator) executeExtract(inst *insts.Instruction) (effect, error) {
	size := uint(datasize(inst.Is64Bit))
	mask := widthMask(inst.Is64Bit)
	hi := e.regFile.ReadAs(inst.Rn, RoleZR) & mask
	lo := e.regFile.ReadAs(inst.Rm, RoleZR) & mask
	lsb := uint(inst.Imms)

	result := lo
	if lsb != 0 {
		result = (lo >> lsb) | (hi << (size - lsb))
	}
	e.writeResult(inst, RoleZR, result, PSTATE{})
	return effect{}, nil
}

// executeLogicalReg executes the shifted-register logical group.
func (e *Emulator) executeLogicalReg(inst *insts.Instruction) (effect, error) {
	op1 := e.regFile.ReadAs(inst.Rn, RoleZR)
	op2 := applyShift(e.regFile.ReadAs(inst.Rm, RoleZR), inst.ShiftType, inst.ShiftAmount, inst.Is64Bit)
	if inst.Invert {
		op2 = ^op2
	}
	result := logical(inst.Op, op1, op2) & widthMask(inst.Is64Bit)
	e.writeResult(inst, RoleZR, result, logicFlags(result, inst.Is64Bit))
	return effect{}, nil
}

// executeAddSubReg executes ADD/SUB (shifted register). Register 31 is XZR
// in every operand.
func (e *Emulator) executeAddSubReg(inst *insts.Instruction) (effect, error) {
	op1 := e.regFile.ReadAs(inst.Rn, RoleZR)
	op2 := applyShift(e.regFile.ReadAs(inst.Rm, RoleZR), inst.ShiftType, inst.ShiftAmount, inst.Is64Bit)
	result, flags := addSub(inst.Op, op1, op2, inst.Is64Bit)
	e.writeResult(inst, RoleZR, result, flags)
	return effect{}, nil
}

// executeAddSubExt executes ADD/SUB (extended register). Rn and Rd are SP
// capable; Rm is not.
func (e *Emulator) executeAddSubExt(inst *insts.Instruction) (effect, error) {
	op1 := e.regFile.ReadAs(inst.Rn, RoleSP)
	op2 := extendValue(e.regFile.ReadAs(inst.Rm, RoleZR), inst.Extend, inst.ShiftAmount, inst.Is64Bit)
	result, flags := addSub(inst.Op, op1, op2, inst.Is64Bit)
	e.writeResult(inst, destRole(inst), result, flags)
	return effect{}, nil
}

// executeAddSubCarry executes ADC/ADCS/SBC/SBCS.
func (e *Emulator) executeAddSubCarry(inst *insts.Instruction) (effect, error) {
	op1 := e.regFile.ReadAs(inst.Rn, RoleZR)
	op2 := e.regFile.ReadAs(inst.Rm, RoleZR)
	if inst.Op == insts.OpSBC {
		op2 = ^op2
	}
	result, flags := AddWithCarry(op1, op2, e.regFile.PSTATE.C, inst.Is64Bit)
	e.writeResult(inst, RoleZR, result, flags)
	return effect{}, nil
}

// executeCondCmp executes CCMN/CCMP. When the condition fails the flags
// are set from the encoded nzcv value.
func (e *Emulator) executeCondCmp(inst *insts.Instruction) (effect, error) {
	if !CheckCondition(e.regFile.PSTATE, inst.Cond) {
		e.regFile.PSTATE.SetNZCV(uint8(inst.Imm2))
		return effect{}, nil
	}

	op1 := e.regFile.ReadAs(inst.Rn, RoleZR)
	op2 := inst.Imm
	if !inst.CondImm {
		op2 = e.regFile.ReadAs(inst.Rm, RoleZR)
	}

	var flags PSTATE
	if inst.Op == insts.OpCCMP {
		_, flags = AddWithCarry(op1, ^op2, true, inst.Is64Bit)
	} else {
		_, flags = AddWithCarry(op1, op2, false, inst.Is64Bit)
	}
	e.regFile.PSTATE = flags
	return effect{}, nil
}

// executeCondSelect executes CSEL/CSINC/CSINV/CSNEG.
func (e *Emulator) executeCondSelect(inst *insts.Instruction) (effect, error) {
	var result uint64
	if CheckCondition(e.regFile.PSTATE, inst.Cond) {
		result = e.regFile.ReadAs(inst.Rn, RoleZR)
	} else {
		op2 := e.regFile.ReadAs(inst.Rm, RoleZR)
		switch inst.Op {
		case insts.OpCSEL:
			result = op2
		case insts.OpCSINC:
			result = op2 + 1
		case insts.OpCSINV:
			result = ^op2
		case insts.OpCSNEG:
			result = -op2
		}
	}
	e.writeResult(inst, RoleZR, result, PSTATE{})
	return effect{}, nil
}

// executeDataProc2Src executes UDIV/SDIV and the variable shifts. Division
// by zero yields zero.
func (e *Emulator) executeDataProc2Src(inst *insts.Instruction) (effect, error) {
	mask := widthMask(inst.Is64Bit)
	op1 := e.regFile.ReadAs(inst.Rn, RoleZR) & mask
	op2 := e.regFile.ReadAs(inst.Rm, RoleZR) & mask

	var result uint64
	switch inst.Op {
	case insts.OpUDIV:
		if op2 != 0 {
			result = op1 / op2
		}
	case insts.OpSDIV:
		result = signedDiv(op1, op2, inst.Is64Bit)
	case insts.OpLSLV:
		result = applyShift(op1, insts.ShiftLSL, uint8(op2&63), inst.Is64Bit)
	case insts.OpLSRV:
		result = applyShift(op1, insts.ShiftLSR, uint8(op2&63), inst.Is64Bit)
	case insts.OpASRV:
		result = applyShift(op1, insts.ShiftASR, uint8(op2&63), inst.Is64Bit)
	case insts.OpRORV:
		result = applyShift(op1, insts.ShiftROR, uint8(op2&63), inst.Is64Bit)
	}
	e.writeResult(inst, RoleZR, result, PSTATE{})
	return effect{}, nil
}

// signedDiv rounds toward zero. The most negative value divided by -1
// wraps to itself.
func signedDiv(x, y uint64, is64 bool) uint64 {
	if y == 0 {
		return 0
	}
	if is64 {
		return uint64(int64(x) / int64(y))
	}
	return uint64(uint32(int32(uint32(x)) / int32(uint32(y))))
}

// executeDataProc1Src executes RBIT/REV16/REV32/REV/CLZ/CLS.
func (e *Emulator) executeDataProc1Src(inst *insts.Instruction) (effect, error) {
	op := e.regFile.ReadAs(inst.Rn, RoleZR)

	var result uint64
	switch inst.Op {
	case insts.OpRBIT:
		if inst.Is64Bit {
			result = bits.Reverse64(op)
		} else {
			result = uint64(bits.Reverse32(uint32(op)))
		}
	case insts.OpREV16:
		result = ((op & 0x00FF00FF00FF00FF) << 8) | ((op >> 8) & 0x00FF00FF00FF00FF)
	case insts.OpREV32:
		result = uint64(bitfield.Swap32(uint32(op>>32)))<<32 | uint64(bitfield.Swap32(uint32(op)))
	case insts.OpREV:
		if inst.Is64Bit {
			result = bitfield.Swap64(op)
		} else {
			result = uint64(bitfield.Swap32(uint32(op)))
		}
	case insts.OpCLZ:
		if inst.Is64Bit {
			result = uint64(bitfield.CountLeadingZeros64(op))
		} else {
			result = uint64(bitfield.CountLeadingZeros32(uint32(op)))
		}
	case insts.OpCLS:
		result = countLeadingSignBits(op, inst.Is64Bit)
	}
	e.writeResult(inst, RoleZR, result, PSTATE{})
	return effect{}, nil
}

// executeDataProc3Src executes the multiply-accumulate family.
func (e *Emulator) executeDataProc3Src(inst *insts.Instruction) (effect, error) {
	op1 := e.regFile.ReadAs(inst.Rn, RoleZR)
	op2 := e.regFile.ReadAs(inst.Rm, RoleZR)
	acc := e.regFile.ReadAs(inst.Ra, RoleZR)

	var result uint64
	switch inst.Op {
	case insts.OpMADD:
		result = acc + op1*op2
	case insts.OpMSUB:
		result = acc - op1*op2
	case insts.OpSMADDL:
		result = acc + signExtend(op1, 32)*signExtend(op2, 32)
	case insts.OpSMSUBL:
		result = acc - signExtend(op1, 32)*signExtend(op2, 32)
	case insts.OpUMADDL:
		result = acc + uint64(uint32(op1))*uint64(uint32(op2))
	case insts.OpUMSUBL:
		result = acc - uint64(uint32(op1))*uint64(uint32(op2))
	case insts.OpSMULH:
		result = signedMulHigh(op1, op2)
	case insts.OpUMULH:
		result, _ = bits.Mul64(op1, op2)
	}
	e.writeResult(inst, RoleZR, result, PSTATE{})
	return effect{}, nil
}
