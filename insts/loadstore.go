package insts

import (
	"github.com/S-YOU/nsemu/bitfield"
)

// decodeLoadStore decodes the general-register load/store forms.
func (d *Decoder) decodeLoadStore(word uint32, inst *Instruction) error {
	isLoadStoreForm := word&0x3B000000 == 0x18000000 || // literal
		word&0x3A000000 == 0x28000000 || // pair
		word&0x3B000000 == 0x38000000 || // register (imm9 / reg offset)
		word&0x3B000000 == 0x39000000 // register (unsigned offset)
	if isLoadStoreForm && bit(word, 26) {
		return unallocated(word, ClassLoadStore, "SIMD&FP load/store not implemented")
	}

	switch {
	case word&0x3B000000 == 0x18000000:
		return d.decodeLoadLiteral(word, inst)
	case word&0x3A000000 == 0x28000000:
		return d.decodeLoadStorePair(word, inst)
	case word&0x3B000000 == 0x39000000:
		return d.decodeLoadStoreUnsigned(word, inst)
	case word&0x3B200000 == 0x38000000:
		return d.decodeLoadStoreImm9(word, inst)
	case word&0x3B200C00 == 0x38200800:
		return d.decodeLoadStoreRegOffset(word, inst)
	default:
		return unallocated(word, ClassLoadStore, "load/store form not implemented")
	}
}

// decodeSizeOpc fills Op, Size, Signed and Is64Bit from the size and opc
// fields shared by the single-register forms. PRFM is only encodable where
// allowPrefetch is set.
func (d *Decoder) decodeSizeOpc(word uint32, inst *Instruction, allowPrefetch bool) error {
	size := bitfield.Extract32(word, 30, 2)
	opc := bitfield.Extract32(word, 22, 2)

	inst.Format = FormatLoadStore
	inst.Size = uint8(1) << size
	inst.Rd = field(word, 0, 5)
	inst.Rn = field(word, 5, 5)

	switch opc {
	case 0b00:
		inst.Op = OpSTR
		inst.Is64Bit = size == 3
	case 0b01:
		inst.Op = OpLDR
		inst.Is64Bit = size == 3
	case 0b10:
		if size == 3 {
			if !allowPrefetch {
				return unallocated(word, ClassLoadStore, "prefetch with writeback")
			}
			inst.Op = OpPRFM
			return nil
		}
		inst.Op = OpLDRS
		inst.Signed = true
		inst.Is64Bit = true
	case 0b11:
		if size >= 2 {
			return unallocated(word, ClassLoadStore, "sign-extending load size=%d opc=11", size)
		}
		inst.Op = OpLDRS
		inst.Signed = true
		inst.Is64Bit = false
	}
	return nil
}

// decodeLoadStoreUnsigned decodes LDR/STR (unsigned immediate).
// Format: size | 111 | V | 01 | opc | imm12 | Rn | Rt
func (d *Decoder) decodeLoadStoreUnsigned(word uint32, inst *Instruction) error {
	if err := d.decodeSizeOpc(word, inst, true); err != nil {
		return err
	}
	inst.IndexMode = IndexUnsigned
	inst.Imm = uint64(bitfield.Extract32(word, 10, 12)) << bitfield.Extract32(word, 30, 2)
	return nil
}

// decodeLoadStoreImm9 decodes the unscaled, post-index and pre-index forms.
// Format: size | 111 | V | 00 | opc | 0 | imm9 | mode | Rn | Rt
func (d *Decoder) decodeLoadStoreImm9(word uint32, inst *Instruction) error {
	mode := bitfield.Extract32(word, 10, 2)
	if mode == 0b10 {
		return unallocated(word, ClassLoadStore, "unprivileged load/store not implemented")
	}
	if err := d.decodeSizeOpc(word, inst, mode == 0b00); err != nil {
		return err
	}
	inst.SignedImm = int64(bitfield.SignedExtract32(word, 12, 9))

	switch mode {
	case 0b00:
		inst.IndexMode = IndexUnscaled
	case 0b01:
		inst.IndexMode = IndexPost
	case 0b11:
		inst.IndexMode = IndexPre
	}
	return d.checkWriteback(word, inst)
}

// decodeLoadStoreRegOffset decodes LDR/STR (register offset).
// Format: size | 111 | V | 00 | opc | 1 | Rm | option | S | 10 | Rn | Rt
func (d *Decoder) decodeLoadStoreRegOffset(word uint32, inst *Instruction) error {
	if err := d.decodeSizeOpc(word, inst, true); err != nil {
		return err
	}
	option := ExtendType(bitfield.Extract32(word, 13, 3))
	if option&0b010 == 0 {
		return unallocated(word, ClassLoadStore, "register offset option=%03b", option)
	}

	inst.IndexMode = IndexRegOffset
	inst.Rm = field(word, 16, 5)
	inst.Extend = option
	if bit(word, 12) {
		inst.ShiftAmount = uint8(bitfield.Extract32(word, 30, 2))
	}
	return nil
}

// decodeLoadStorePair decodes LDP/STP/LDPSW. Non-temporal pairs are treated
// as plain signed-offset pairs.
// Format: opc | 101 | V | mode | L | imm7 | Rt2 | Rn | Rt
func (d *Decoder) decodeLoadStorePair(word uint32, inst *Instruction) error {
	inst.Format = FormatLoadStorePair
	inst.Rd = field(word, 0, 5)
	inst.Rn = field(word, 5, 5)
	inst.Rt2 = field(word, 10, 5)

	load := bit(word, 22)
	var scale uint
	switch bitfield.Extract32(word, 30, 2) {
	case 0b00:
		scale = 2
	case 0b01:
		if !load {
			return unallocated(word, ClassLoadStore, "STGP not implemented")
		}
		scale = 2
		inst.Signed = true
		inst.Is64Bit = true
	case 0b10:
		scale = 3
		inst.Is64Bit = true
	default:
		return unallocated(word, ClassLoadStore, "pair opc=11")
	}
	inst.Size = uint8(1) << scale
	inst.SignedImm = int64(bitfield.SignedExtract32(word, 15, 7)) << scale

	switch bitfield.Extract32(word, 23, 2) {
	case 0b00, 0b10:
		inst.IndexMode = IndexSigned
	case 0b01:
		inst.IndexMode = IndexPost
	case 0b11:
		inst.IndexMode = IndexPre
	}

	if load {
		inst.Op = OpLDP
		if inst.Rd == inst.Rt2 {
			return unallocated(word, ClassLoadStore, "load pair with Rt == Rt2")
		}
	} else {
		inst.Op = OpSTP
	}
	return d.checkWriteback(word, inst)
}

// decodeLoadLiteral decodes LDR/LDRSW (literal) and PRFM (literal).
// Format: opc | 011 | V | 00 | imm19 | Rt
func (d *Decoder) decodeLoadLiteral(word uint32, inst *Instruction) error {
	inst.Format = FormatLoadLiteral
	inst.Rd = field(word, 0, 5)
	inst.BranchOffset = int64(bitfield.SignedExtract32(word, 5, 19)) * 4

	switch bitfield.Extract32(word, 30, 2) {
	case 0b00:
		inst.Op = OpLDRLit
		inst.Size = 4
	case 0b01:
		inst.Op = OpLDRLit
		inst.Size = 8
		inst.Is64Bit = true
	case 0b10:
		inst.Op = OpLDRLit
		inst.Size = 4
		inst.Signed = true
		inst.Is64Bit = true
	case 0b11:
		inst.Op = OpPRFM
	}
	return nil
}

// checkWriteback rejects loads that write back into a register they also
// load. The architecture leaves that CONSTRAINED UNPREDICTABLE.
func (d *Decoder) checkWriteback(word uint32, inst *Instruction) error {
	if !inst.Writeback() || inst.Rn == 31 {
		return nil
	}
	if inst.Op != OpLDR && inst.Op != OpLDRS && inst.Op != OpLDP {
		return nil
	}
	if inst.Rn == inst.Rd || (inst.Op == OpLDP && inst.Rn == inst.Rt2) {
		return unallocated(word, ClassLoadStore, "load with writeback into transfer register")
	}
	return nil
}
