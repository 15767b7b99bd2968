package insts

import (
	"github.com/S-YOU/nsemu/bitfield"
)

// decodeBranchSys decodes the branches, exception generating and system
// instruction group.
func (d *Decoder) decodeBranchSys(word uint32, inst *Instruction) error {
	switch {
	case word&0x7C000000 == 0x14000000:
		return d.decodeBranchImm(word, inst)
	case word&0x7E000000 == 0x34000000:
		return d.decodeCompareBranch(word, inst)
	case word&0x7E000000 == 0x36000000:
		return d.decodeTestBranch(word, inst)
	case word&0xFF000010 == 0x54000000:
		return d.decodeBranchCond(word, inst)
	case word&0xFF000000 == 0xD4000000:
		return d.decodeException(word, inst)
	case word&0xFFFFF01F == 0xD503201F, word&0xFFFFF01F == 0xD503301F:
		// Hints execute as NOP; barriers have no effect on a single
		// in-order core.
		inst.Format = FormatSystem
		inst.Op = OpNOP
		return nil
	case word&0xFE000000 == 0xD6000000:
		return d.decodeBranchReg(word, inst)
	default:
		return unallocated(word, ClassBranchSys, "system instruction not implemented")
	}
}

// decodeBranchImm decodes B and BL.
// Format: op | 00101 | imm26
func (d *Decoder) decodeBranchImm(word uint32, inst *Instruction) error {
	inst.Format = FormatBranch
	inst.BranchOffset = int64(bitfield.SignedExtract32(word, 0, 26)) * 4

	if bit(word, 31) {
		inst.Op = OpBL
	} else {
		inst.Op = OpB
	}
	return nil
}

// decodeBranchCond decodes B.cond.
// Format: 0101010 | 0 | imm19 | 0 | cond
func (d *Decoder) decodeBranchCond(word uint32, inst *Instruction) error {
	inst.Format = FormatBranchCond
	inst.Op = OpBCond
	inst.BranchOffset = int64(bitfield.SignedExtract32(word, 5, 19)) * 4
	inst.Cond = Cond(bitfield.Extract32(word, 0, 4))
	return nil
}

// decodeCompareBranch decodes CBZ and CBNZ.
// Format: sf | 011010 | op | imm19 | Rt
func (d *Decoder) decodeCompareBranch(word uint32, inst *Instruction) error {
	inst.Format = FormatCompareBranch
	inst.Is64Bit = bit(word, 31)
	inst.Rd = field(word, 0, 5)
	inst.BranchOffset = int64(bitfield.SignedExtract32(word, 5, 19)) * 4

	if bit(word, 24) {
		inst.Op = OpCBNZ
	} else {
		inst.Op = OpCBZ
	}
	return nil
}

// decodeTestBranch decodes TBZ and TBNZ.
// Format: b5 | 011011 | op | b40 | imm14 | Rt
func (d *Decoder) decodeTestBranch(word uint32, inst *Instruction) error {
	inst.Format = FormatTestBranch
	inst.Rd = field(word, 0, 5)
	inst.BitNum = field(word, 31, 1)<<5 | field(word, 19, 5)
	inst.Is64Bit = inst.BitNum >= 32
	inst.BranchOffset = int64(bitfield.SignedExtract32(word, 5, 14)) * 4

	if bit(word, 24) {
		inst.Op = OpTBNZ
	} else {
		inst.Op = OpTBZ
	}
	return nil
}

// decodeException decodes SVC, BRK and HLT. Imm holds imm16.
// Format: 11010100 | opc | imm16 | op2 | LL
func (d *Decoder) decodeException(word uint32, inst *Instruction) error {
	inst.Format = FormatException
	inst.Imm = uint64(bitfield.Extract32(word, 5, 16))

	opc := bitfield.Extract32(word, 21, 3)
	op2 := bitfield.Extract32(word, 2, 3)
	ll := bitfield.Extract32(word, 0, 2)

	switch {
	case op2 != 0:
		return unallocated(word, ClassBranchSys, "exception op2=%d", op2)
	case opc == 0b000 && ll == 0b01:
		inst.Op = OpSVC
	case opc == 0b001 && ll == 0b00:
		inst.Op = OpBRK
	case opc == 0b010 && ll == 0b00:
		inst.Op = OpHLT
	default:
		return unallocated(word, ClassBranchSys, "exception opc=%d LL=%d", opc, ll)
	}
	return nil
}

// decodeBranchReg decodes BR, BLR and RET.
// Format: 1101011 | opc | op2 | op3 | Rn | op4
func (d *Decoder) decodeBranchReg(word uint32, inst *Instruction) error {
	inst.Format = FormatBranchReg
	inst.Is64Bit = true
	inst.Rn = field(word, 5, 5)

	if bitfield.Extract32(word, 16, 5) != 0b11111 ||
		bitfield.Extract32(word, 10, 6) != 0 ||
		bitfield.Extract32(word, 0, 5) != 0 {
		return unallocated(word, ClassBranchSys, "authenticated or reserved branch register form")
	}

	switch bitfield.Extract32(word, 21, 4) {
	case 0b0000:
		inst.Op = OpBR
	case 0b0001:
		inst.Op = OpBLR
	case 0b0010:
		inst.Op = OpRET
	default:
		return unallocated(word, ClassBranchSys, "branch register opc=%d", bitfield.Extract32(word, 21, 4))
	}
	return nil
}
