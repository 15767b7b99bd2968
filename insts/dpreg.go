package insts

import (
	"github.com/S-YOU/nsemu/bitfield"
)

// decodeDPReg decodes the data-processing (register) group.
func (d *Decoder) decodeDPReg(word uint32, inst *Instruction) error {
	inst.Is64Bit = bit(word, 31)
	inst.Rd = field(word, 0, 5)
	inst.Rn = field(word, 5, 5)
	inst.Rm = field(word, 16, 5)

	switch {
	case word&0x1F000000 == 0x0A000000:
		return d.decodeLogicalReg(word, inst)
	case word&0x1F200000 == 0x0B000000:
		return d.decodeAddSubReg(word, inst)
	case word&0x1F200000 == 0x0B200000:
		return d.decodeAddSubExt(word, inst)
	case word&0x1FE0FC00 == 0x1A000000:
		return d.decodeAddSubCarry(word, inst)
	case word&0x1FE00000 == 0x1A400000:
		return d.decodeCondCmp(word, inst)
	case word&0x1FE00000 == 0x1A800000:
		return d.decodeCondSelect(word, inst)
	case word&0x5FE00000 == 0x1AC00000:
		return d.decodeDataProc2Src(word, inst)
	case word&0x5FE00000 == 0x5AC00000:
		return d.decodeDataProc1Src(word, inst)
	case word&0x1F000000 == 0x1B000000:
		return d.decodeDataProc3Src(word, inst)
	default:
		return unallocated(word, ClassDPReg, "register form not implemented")
	}
}

// decodeShiftedOperand reads shift and imm6 shared by the shifted-register
// forms.
func (d *Decoder) decodeShiftedOperand(word uint32, inst *Instruction) error {
	inst.ShiftType = ShiftType(bitfield.Extract32(word, 22, 2))
	inst.ShiftAmount = field(word, 10, 6)
	if !inst.Is64Bit && inst.ShiftAmount > 31 {
		return unallocated(word, ClassDPReg, "32-bit shift amount %d", inst.ShiftAmount)
	}
	return nil
}

// decodeLogicalReg decodes AND/BIC/ORR/ORN/EOR/EON/ANDS/BICS.
// Format: sf | opc | 01010 | shift | N | Rm | imm6 | Rn | Rd
func (d *Decoder) decodeLogicalReg(word uint32, inst *Instruction) error {
	inst.Format = FormatLogicalReg
	inst.Invert = bit(word, 21)
	if err := d.decodeShiftedOperand(word, inst); err != nil {
		return err
	}

	switch bitfield.Extract32(word, 29, 2) {
	case 0b00:
		inst.Op = OpAND
	case 0b01:
		inst.Op = OpORR
	case 0b10:
		inst.Op = OpEOR
	case 0b11:
		inst.Op = OpAND
		inst.SetFlags = true
	}
	return nil
}

// decodeAddSubReg decodes ADD/ADDS/SUB/SUBS (shifted register).
// Format: sf | op | S | 01011 | shift | 0 | Rm | imm6 | Rn | Rd
func (d *Decoder) decodeAddSubReg(word uint32, inst *Instruction) error {
	inst.Format = FormatAddSubReg
	inst.SetFlags = bit(word, 29)
	if err := d.decodeShiftedOperand(word, inst); err != nil {
		return err
	}
	if inst.ShiftType == ShiftROR {
		return unallocated(word, ClassDPReg, "add/sub with ROR shift")
	}
	inst.Op = addSubOp(word)
	return nil
}

// decodeAddSubExt decodes ADD/ADDS/SUB/SUBS (extended register).
// Format: sf | op | S | 01011 | opt | 1 | Rm | option | imm3 | Rn | Rd
func (d *Decoder) decodeAddSubExt(word uint32, inst *Instruction) error {
	inst.Format = FormatAddSubExt
	inst.SetFlags = bit(word, 29)
	inst.Extend = ExtendType(bitfield.Extract32(word, 13, 3))
	inst.ShiftAmount = field(word, 10, 3)

	if bitfield.Extract32(word, 22, 2) != 0 {
		return unallocated(word, ClassDPReg, "extended register opt=%d", bitfield.Extract32(word, 22, 2))
	}
	if inst.ShiftAmount > 4 {
		return unallocated(word, ClassDPReg, "extended register shift %d", inst.ShiftAmount)
	}
	inst.Op = addSubOp(word)
	return nil
}

// decodeAddSubCarry decodes ADC/ADCS/SBC/SBCS.
// Format: sf | op | S | 11010000 | Rm | 000000 | Rn | Rd
func (d *Decoder) decodeAddSubCarry(word uint32, inst *Instruction) error {
	inst.Format = FormatAddSubCarry
	inst.SetFlags = bit(word, 29)
	if bit(word, 30) {
		inst.Op = OpSBC
	} else {
		inst.Op = OpADC
	}
	return nil
}

// decodeCondCmp decodes CCMN/CCMP in register and immediate forms.
// Format: sf | op | 1 | 11010010 | Rm/imm5 | cond | i | o2 | Rn | o3 | nzcv
func (d *Decoder) decodeCondCmp(word uint32, inst *Instruction) error {
	inst.Format = FormatCondCmp
	inst.SetFlags = true
	inst.Cond = Cond(bitfield.Extract32(word, 12, 4))
	inst.Imm2 = uint64(bitfield.Extract32(word, 0, 4))

	if !bit(word, 29) || bit(word, 10) || bit(word, 4) {
		return unallocated(word, ClassDPReg, "conditional compare S/o2/o3")
	}
	if bit(word, 11) {
		inst.CondImm = true
		inst.Imm = uint64(inst.Rm)
	}
	if bit(word, 30) {
		inst.Op = OpCCMP
	} else {
		inst.Op = OpCCMN
	}
	return nil
}

// decodeCondSelect decodes CSEL/CSINC/CSINV/CSNEG.
// Format: sf | op | S | 11010100 | Rm | cond | op2 | Rn | Rd
func (d *Decoder) decodeCondSelect(word uint32, inst *Instruction) error {
	inst.Format = FormatCondSelect
	inst.Cond = Cond(bitfield.Extract32(word, 12, 4))

	if bit(word, 29) {
		return unallocated(word, ClassDPReg, "conditional select with S=1")
	}

	switch op, op2 := bit(word, 30), bitfield.Extract32(word, 10, 2); {
	case !op && op2 == 0b00:
		inst.Op = OpCSEL
	case !op && op2 == 0b01:
		inst.Op = OpCSINC
	case op && op2 == 0b00:
		inst.Op = OpCSINV
	case op && op2 == 0b01:
		inst.Op = OpCSNEG
	default:
		return unallocated(word, ClassDPReg, "conditional select op2=%d", op2)
	}
	return nil
}

// decodeDataProc2Src decodes UDIV/SDIV and the variable shifts.
// Format: sf | 0 | S | 11010110 | Rm | opcode | Rn | Rd
func (d *Decoder) decodeDataProc2Src(word uint32, inst *Instruction) error {
	inst.Format = FormatDataProc2Src
	if bit(word, 29) {
		return unallocated(word, ClassDPReg, "2-source with S=1")
	}

	switch opcode := bitfield.Extract32(word, 10, 6); opcode {
	case 0b000010:
		inst.Op = OpUDIV
	case 0b000011:
		inst.Op = OpSDIV
	case 0b001000:
		inst.Op = OpLSLV
	case 0b001001:
		inst.Op = OpLSRV
	case 0b001010:
		inst.Op = OpASRV
	case 0b001011:
		inst.Op = OpRORV
	default:
		return unallocated(word, ClassDPReg, "2-source opcode %06b", opcode)
	}
	return nil
}

// decodeDataProc1Src decodes RBIT/REV16/REV32/REV/CLZ/CLS.
// Format: sf | 1 | S | 11010110 | opcode2 | opcode | Rn | Rd
func (d *Decoder) decodeDataProc1Src(word uint32, inst *Instruction) error {
	inst.Format = FormatDataProc1Src
	if bit(word, 29) || bitfield.Extract32(word, 16, 5) != 0 {
		return unallocated(word, ClassDPReg, "1-source S/opcode2")
	}

	switch opcode := bitfield.Extract32(word, 10, 6); {
	case opcode == 0b000000:
		inst.Op = OpRBIT
	case opcode == 0b000001:
		inst.Op = OpREV16
	case opcode == 0b000010 && inst.Is64Bit:
		inst.Op = OpREV32
	case opcode == 0b000010:
		inst.Op = OpREV
	case opcode == 0b000011 && inst.Is64Bit:
		inst.Op = OpREV
	case opcode == 0b000100:
		inst.Op = OpCLZ
	case opcode == 0b000101:
		inst.Op = OpCLS
	default:
		return unallocated(word, ClassDPReg, "1-source opcode %06b", opcode)
	}
	return nil
}

// decodeDataProc3Src decodes the multiply-accumulate family.
// Format: sf | op54 | 11011 | op31 | Rm | o0 | Ra | Rn | Rd
func (d *Decoder) decodeDataProc3Src(word uint32, inst *Instruction) error {
	inst.Format = FormatDataProc3Src
	inst.Ra = field(word, 10, 5)

	if bitfield.Extract32(word, 29, 2) != 0 {
		return unallocated(word, ClassDPReg, "3-source op54")
	}

	op31 := bitfield.Extract32(word, 21, 3)
	o0 := bit(word, 15)
	if op31 != 0 && !inst.Is64Bit {
		return unallocated(word, ClassDPReg, "32-bit long multiply")
	}

	switch {
	case op31 == 0b000 && !o0:
		inst.Op = OpMADD
	case op31 == 0b000 && o0:
		inst.Op = OpMSUB
	case op31 == 0b001 && !o0:
		inst.Op = OpSMADDL
	case op31 == 0b001 && o0:
		inst.Op = OpSMSUBL
	case op31 == 0b010 && !o0:
		inst.Op = OpSMULH
	case op31 == 0b101 && !o0:
		inst.Op = OpUMADDL
	case op31 == 0b101 && o0:
		inst.Op = OpUMSUBL
	case op31 == 0b110 && !o0:
		inst.Op = OpUMULH
	default:
		return unallocated(word, ClassDPReg, "3-source op31=%03b o0=%v", op31, o0)
	}
	return nil
}

func addSubOp(word uint32) Op {
	if bit(word, 30) {
		return OpSUB
	}
	return OpADD
}
