package insts

import (
	"errors"

	"github.com/S-YOU/nsemu/bitfield"
)

// decodeDPImm dispatches the data-processing (immediate) group on op0
// bits [25:23].
func (d *Decoder) decodeDPImm(word uint32, inst *Instruction) error {
	switch bitfield.Extract32(word, 23, 3) {
	case 0b000, 0b001:
		return d.decodePCRel(word, inst)
	case 0b010:
		return d.decodeAddSubImm(word, inst)
	case 0b100:
		return d.decodeLogicalImm(word, inst)
	case 0b101:
		return d.decodeMoveWide(word, inst)
	case 0b110:
		return d.decodeBitfield(word, inst)
	case 0b111:
		return d.decodeExtract(word, inst)
	default:
		return unallocated(word, ClassDPImm, "add/sub immediate with tags")
	}
}

// decodePCRel decodes ADR and ADRP.
// Format: op | immlo | 10000 | immhi | Rd
func (d *Decoder) decodePCRel(word uint32, inst *Instruction) error {
	inst.Format = FormatPCRel
	inst.Is64Bit = true
	inst.Rd = field(word, 0, 5)

	immlo := bitfield.Extract32(word, 29, 2)
	immhi := bitfield.Extract32(word, 5, 19)
	offset := int64(bitfield.SignedExtract32(immhi<<2|immlo, 0, 21))

	if bit(word, 31) {
		inst.Op = OpADRP
		inst.BranchOffset = offset << 12
	} else {
		inst.Op = OpADR
		inst.BranchOffset = offset
	}
	return nil
}

// decodeAddSubImm decodes ADD/ADDS/SUB/SUBS (immediate).
// Format: sf | op | S | 100010 | sh | imm12 | Rn | Rd
func (d *Decoder) decodeAddSubImm(word uint32, inst *Instruction) error {
	inst.Format = FormatAddSubImm
	inst.Is64Bit = bit(word, 31)
	inst.SetFlags = bit(word, 29)
	inst.Rd = field(word, 0, 5)
	inst.Rn = field(word, 5, 5)
	inst.Imm = uint64(bitfield.Extract32(word, 10, 12))

	if bit(word, 22) {
		inst.Imm <<= 12
	}

	if bit(word, 30) {
		inst.Op = OpSUB
	} else {
		inst.Op = OpADD
	}
	return nil
}

// decodeLogicalImm decodes AND/ORR/EOR/ANDS (immediate).
// Format: sf | opc | 100100 | N | immr | imms | Rn | Rd
func (d *Decoder) decodeLogicalImm(word uint32, inst *Instruction) error {
	inst.Format = FormatLogicalImm
	inst.Is64Bit = bit(word, 31)
	inst.Rd = field(word, 0, 5)
	inst.Rn = field(word, 5, 5)

	n := bitfield.Extract32(word, 22, 1)
	if !inst.Is64Bit && n == 1 {
		return unallocated(word, ClassDPImm, "logical immediate with sf=0 and N=1")
	}

	datasize := 32
	if inst.Is64Bit {
		datasize = 64
	}
	imm, _, err := DecodeBitMasks(n,
		bitfield.Extract32(word, 10, 6), bitfield.Extract32(word, 16, 6), true, datasize)
	if err != nil {
		return withWord(err, word, ClassDPImm)
	}
	inst.Imm = imm

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

// decodeMoveWide decodes MOVN/MOVZ/MOVK.
// Format: sf | opc | 100101 | hw | imm16 | Rd
func (d *Decoder) decodeMoveWide(word uint32, inst *Instruction) error {
	inst.Format = FormatMoveWide
	inst.Is64Bit = bit(word, 31)
	inst.Rd = field(word, 0, 5)
	inst.Imm = uint64(bitfield.Extract32(word, 5, 16))

	hw := bitfield.Extract32(word, 21, 2)
	if !inst.Is64Bit && hw > 1 {
		return unallocated(word, ClassDPImm, "32-bit move wide with hw=%d", hw)
	}
	inst.Shift = uint8(hw * 16)

	switch bitfield.Extract32(word, 29, 2) {
	case 0b00:
		inst.Op = OpMOVN
	case 0b10:
		inst.Op = OpMOVZ
	case 0b11:
		inst.Op = OpMOVK
	default:
		return unallocated(word, ClassDPImm, "move wide opc=01")
	}
	return nil
}

// decodeBitfield decodes SBFM/BFM/UBFM. Imm receives wmask, Imm2 tmask.
// Format: sf | opc | 100110 | N | immr | imms | Rn | Rd
func (d *Decoder) decodeBitfield(word uint32, inst *Instruction) error {
	inst.Format = FormatBitfield
	inst.Is64Bit = bit(word, 31)
	inst.Rd = field(word, 0, 5)
	inst.Rn = field(word, 5, 5)

	n := bitfield.Extract32(word, 22, 1)
	immr := bitfield.Extract32(word, 16, 6)
	imms := bitfield.Extract32(word, 10, 6)

	switch bitfield.Extract32(word, 29, 2) {
	case 0b00:
		inst.Op = OpSBFM
	case 0b01:
		inst.Op = OpBFM
	case 0b10:
		inst.Op = OpUBFM
	default:
		return unallocated(word, ClassDPImm, "bitfield opc=11")
	}

	datasize := 32
	if inst.Is64Bit {
		datasize = 64
	}
	if (n == 1) != inst.Is64Bit {
		return unallocated(word, ClassDPImm, "bitfield N does not match sf")
	}
	if !inst.Is64Bit && (immr > 31 || imms > 31) {
		return unallocated(word, ClassDPImm, "32-bit bitfield immr=%d imms=%d", immr, imms)
	}

	wmask, tmask, err := DecodeBitMasks(n, imms, immr, false, datasize)
	if err != nil {
		return withWord(err, word, ClassDPImm)
	}

	inst.Imm = wmask
	inst.Imm2 = tmask
	inst.Immr = uint8(immr)
	inst.Imms = uint8(imms)
	return nil
}

// decodeExtract decodes EXTR. Imms holds the lsb.
// Format: sf | op21 | 100111 | N | o0 | Rm | imms | Rn | Rd
func (d *Decoder) decodeExtract(word uint32, inst *Instruction) error {
	inst.Format = FormatExtract
	inst.Op = OpEXTR
	inst.Is64Bit = bit(word, 31)
	inst.Rd = field(word, 0, 5)
	inst.Rn = field(word, 5, 5)
	inst.Rm = field(word, 16, 5)
	inst.Imms = field(word, 10, 6)

	if bitfield.Extract32(word, 29, 2) != 0 || bit(word, 21) {
		return unallocated(word, ClassDPImm, "extract op21/o0")
	}
	if bit(word, 22) != inst.Is64Bit {
		return unallocated(word, ClassDPImm, "extract N does not match sf")
	}
	if !inst.Is64Bit && inst.Imms > 31 {
		return unallocated(word, ClassDPImm, "32-bit extract lsb=%d", inst.Imms)
	}
	return nil
}

// withWord fills in the word and class of a DecodeError raised by a helper
// that does not see the raw instruction.
func withWord(err error, word uint32, class Class) error {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		decodeErr.Word = word
		decodeErr.Class = class
	}
	return err
}
