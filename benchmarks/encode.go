package benchmarks

// Instruction encoders for the workloads. All operate on 64-bit registers.

const (
	condNE uint8 = 0x1
	condLT uint8 = 0xB
)

func addSubImm(base uint32, rd, rn uint8, imm uint16, setFlags bool) uint32 {
	inst := base
	if setFlags {
		inst |= 1 << 29 // S
	}
	inst |= uint32(imm&0xFFF) << 10
	inst |= uint32(rn&0x1F) << 5
	return inst | uint32(rd&0x1F)
}

func threeReg(base uint32, rd, rn, rm uint8) uint32 {
	return base | uint32(rm&0x1F)<<16 | uint32(rn&0x1F)<<5 | uint32(rd&0x1F)
}

// EncodeADDImm encodes ADD/ADDS immediate: Rd = Rn + imm12
func EncodeADDImm(rd, rn uint8, imm uint16, setFlags bool) uint32 {
	return addSubImm(0x91000000, rd, rn, imm, setFlags)
}

// EncodeSUBImm encodes SUB/SUBS immediate: Rd = Rn - imm12
func EncodeSUBImm(rd, rn uint8, imm uint16, setFlags bool) uint32 {
	return addSubImm(0xD1000000, rd, rn, imm, setFlags)
}

// EncodeCMPImm encodes CMP Xn, #imm, the alias of SUBS XZR, Xn, #imm.
func EncodeCMPImm(rn uint8, imm uint16) uint32 {
	return EncodeSUBImm(31, rn, imm, true)
}

// EncodeADDReg encodes ADD/ADDS shifted register with no shift: Rd = Rn + Rm
func EncodeADDReg(rd, rn, rm uint8, setFlags bool) uint32 {
	inst := threeReg(0x8B000000, rd, rn, rm)
	if setFlags {
		inst |= 1 << 29
	}
	return inst
}

// EncodeSUBReg encodes SUB/SUBS shifted register with no shift: Rd = Rn - Rm
func EncodeSUBReg(rd, rn, rm uint8, setFlags bool) uint32 {
	inst := threeReg(0xCB000000, rd, rn, rm)
	if setFlags {
		inst |= 1 << 29
	}
	return inst
}

// EncodeMUL encodes MUL Xd, Xn, Xm, the alias of MADD with Ra = XZR.
func EncodeMUL(rd, rn, rm uint8) uint32 {
	return threeReg(0x9B000000, rd, rn, rm) | 31<<10
}

// EncodeMOVZ encodes MOVZ Xd, #imm16 with no shift.
func EncodeMOVZ(rd uint8, imm uint16) uint32 {
	return 0xD2800000 | uint32(imm)<<5 | uint32(rd&0x1F)
}

// EncodeB encodes unconditional branch: B offset
func EncodeB(offset int32) uint32 {
	return 0x14000000 | uint32(offset/4)&0x3FFFFFF
}

// EncodeBL encodes branch with link: BL offset
func EncodeBL(offset int32) uint32 {
	return 0x94000000 | uint32(offset/4)&0x3FFFFFF
}

// EncodeBCond encodes conditional branch: B.cond offset
func EncodeBCond(offset int32, cond uint8) uint32 {
	return 0x54000000 | (uint32(offset/4)&0x7FFFF)<<5 | uint32(cond&0xF)
}

// EncodeRET encodes return: RET (X30)
func EncodeRET() uint32 {
	return 0xD65F0000 | 30<<5
}

// EncodeSVC encodes syscall: SVC #imm
func EncodeSVC(imm uint16) uint32 {
	return 0xD4000001 | uint32(imm)<<5
}

// EncodeSTR64 encodes STR Xt, [Xn, #imm12*8]
func EncodeSTR64(rt, rn uint8, imm12 uint16) uint32 {
	return addSubImm(0xF9000000, rt, rn, imm12, false)
}

// EncodeLDR64 encodes LDR Xt, [Xn, #imm12*8]
func EncodeLDR64(rt, rn uint8, imm12 uint16) uint32 {
	return addSubImm(0xF9400000, rt, rn, imm12, false)
}
