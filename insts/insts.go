// Package insts provides A64 instruction definitions and decoding.
//
// Decoding happens in two steps. Classify reads the top-level op0 field
// (bits [28:25]) and selects an instruction class; the class decoder then
// matches its masked sub-patterns, extracts every operand field and rejects
// unallocated or reserved combinations. A decoded Instruction is complete:
// executing it never needs to look at the raw word again.
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst, err := decoder.Decode(0x9100A820) // ADD X0, X1, #42
//	if err != nil {
//		return err
//	}
//	fmt.Printf("%v Rd=%d Rn=%d Imm=%d\n", inst.Op, inst.Rd, inst.Rn, inst.Imm)
package insts

// Op represents an A64 operation.
type Op uint16

// A64 operations. Aliases (MOV, CMP, LSL, ...) decode to their base
// operation.
const (
	OpUnknown Op = iota
	OpADR
	OpADRP
	OpADD
	OpSUB
	OpAND
	OpORR
	OpEOR
	OpMOVN
	OpMOVZ
	OpMOVK
	OpSBFM
	OpBFM
	OpUBFM
	OpEXTR
	OpB
	OpBL
	OpBCond
	OpCBZ
	OpCBNZ
	OpTBZ
	OpTBNZ
	OpBR
	OpBLR
	OpRET
	OpSVC
	OpBRK
	OpHLT
	OpNOP
	OpLDR
	OpLDRS
	OpSTR
	OpPRFM
	OpLDP
	OpSTP
	OpLDRLit
	OpADC
	OpSBC
	OpCCMN
	OpCCMP
	OpCSEL
	OpCSINC
	OpCSINV
	OpCSNEG
	OpUDIV
	OpSDIV
	OpLSLV
	OpLSRV
	OpASRV
	OpRORV
	OpRBIT
	OpREV16
	OpREV32
	OpREV
	OpCLZ
	OpCLS
	OpMADD
	OpMSUB
	OpSMADDL
	OpSMSUBL
	OpSMULH
	OpUMADDL
	OpUMSUBL
	OpUMULH
)

var opNames = [...]string{
	OpUnknown: "UNKNOWN",
	OpADR:     "ADR",
	OpADRP:    "ADRP",
	OpADD:     "ADD",
	OpSUB:     "SUB",
	OpAND:     "AND",
	OpORR:     "ORR",
	OpEOR:     "EOR",
	OpMOVN:    "MOVN",
	OpMOVZ:    "MOVZ",
	OpMOVK:    "MOVK",
	OpSBFM:    "SBFM",
	OpBFM:     "BFM",
	OpUBFM:    "UBFM",
	OpEXTR:    "EXTR",
	OpB:       "B",
	OpBL:      "BL",
	OpBCond:   "B.cond",
	OpCBZ:     "CBZ",
	OpCBNZ:    "CBNZ",
	OpTBZ:     "TBZ",
	OpTBNZ:    "TBNZ",
	OpBR:      "BR",
	OpBLR:     "BLR",
	OpRET:     "RET",
	OpSVC:     "SVC",
	OpBRK:     "BRK",
	OpHLT:     "HLT",
	OpNOP:     "NOP",
	OpLDR:     "LDR",
	OpLDRS:    "LDRS",
	OpSTR:     "STR",
	OpPRFM:    "PRFM",
	OpLDP:     "LDP",
	OpSTP:     "STP",
	OpLDRLit:  "LDR(literal)",
	OpADC:     "ADC",
	OpSBC:     "SBC",
	OpCCMN:    "CCMN",
	OpCCMP:    "CCMP",
	OpCSEL:    "CSEL",
	OpCSINC:   "CSINC",
	OpCSINV:   "CSINV",
	OpCSNEG:   "CSNEG",
	OpUDIV:    "UDIV",
	OpSDIV:    "SDIV",
	OpLSLV:    "LSLV",
	OpLSRV:    "LSRV",
	OpASRV:    "ASRV",
	OpRORV:    "RORV",
	OpRBIT:    "RBIT",
	OpREV16:   "REV16",
	OpREV32:   "REV32",
	OpREV:     "REV",
	OpCLZ:     "CLZ",
	OpCLS:     "CLS",
	OpMADD:    "MADD",
	OpMSUB:    "MSUB",
	OpSMADDL:  "SMADDL",
	OpSMSUBL:  "SMSUBL",
	OpSMULH:   "SMULH",
	OpUMADDL:  "UMADDL",
	OpUMSUBL:  "UMSUBL",
	OpUMULH:   "UMULH",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "UNKNOWN"
}

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown       Format = iota
	FormatPCRel                // PC-relative addressing
	FormatAddSubImm            // Add/Sub (immediate)
	FormatLogicalImm           // Logical (immediate)
	FormatMoveWide             // Move wide (immediate)
	FormatBitfield             // Bitfield
	FormatExtract              // Extract
	FormatBranch               // Unconditional branch (immediate)
	FormatBranchCond           // Conditional branch (immediate)
	FormatCompareBranch        // Compare and branch
	FormatTestBranch           // Test and branch
	FormatBranchReg            // Unconditional branch (register)
	FormatException            // Exception generation
	FormatSystem               // Hints and barriers
	FormatLoadStore            // Load/store register
	FormatLoadStorePair        // Load/store pair
	FormatLoadLiteral          // Load register (literal)
	FormatLogicalReg           // Logical (shifted register)
	FormatAddSubReg            // Add/Sub (shifted register)
	FormatAddSubExt            // Add/Sub (extended register)
	FormatAddSubCarry          // Add/Sub with carry
	FormatCondCmp              // Conditional compare
	FormatCondSelect           // Conditional select
	FormatDataProc1Src         // Data processing (1 source)
	FormatDataProc2Src         // Data processing (2 source)
	FormatDataProc3Src         // Data processing (3 source)
)

// Cond represents an A64 condition code.
type Cond uint8

// A64 condition codes.
const (
	CondEQ Cond = 0b0000 // Equal (Z == 1)
	CondNE Cond = 0b0001 // Not Equal (Z == 0)
	CondCS Cond = 0b0010 // Carry Set / Unsigned higher or same (C == 1)
	CondCC Cond = 0b0011 // Carry Clear / Unsigned lower (C == 0)
	CondMI Cond = 0b0100 // Minus / Negative (N == 1)
	CondPL Cond = 0b0101 // Plus / Positive or zero (N == 0)
	CondVS Cond = 0b0110 // Overflow (V == 1)
	CondVC Cond = 0b0111 // No overflow (V == 0)
	CondHI Cond = 0b1000 // Unsigned higher (C == 1 && Z == 0)
	CondLS Cond = 0b1001 // Unsigned lower or same (C == 0 || Z == 1)
	CondGE Cond = 0b1010 // Signed greater than or equal (N == V)
	CondLT Cond = 0b1011 // Signed less than (N != V)
	CondGT Cond = 0b1100 // Signed greater than (Z == 0 && N == V)
	CondLE Cond = 0b1101 // Signed less than or equal (Z == 1 || N != V)
	CondAL Cond = 0b1110 // Always
	CondNV Cond = 0b1111 // Always (behaves as AL in A64)
)

// ShiftType represents a shift type for register operands.
type ShiftType uint8

// Shift types.
const (
	ShiftLSL ShiftType = 0b00 // Logical shift left
	ShiftLSR ShiftType = 0b01 // Logical shift right
	ShiftASR ShiftType = 0b10 // Arithmetic shift right
	ShiftROR ShiftType = 0b11 // Rotate right
)

// ExtendType is the option field of extended-register operands.
type ExtendType uint8

// Extend types.
const (
	ExtendUXTB ExtendType = 0b000
	ExtendUXTH ExtendType = 0b001
	ExtendUXTW ExtendType = 0b010
	ExtendUXTX ExtendType = 0b011 // LSL when used as a load/store offset
	ExtendSXTB ExtendType = 0b100
	ExtendSXTH ExtendType = 0b101
	ExtendSXTW ExtendType = 0b110
	ExtendSXTX ExtendType = 0b111
)

// IndexMode describes how a load/store forms its address.
type IndexMode uint8

// Addressing modes.
const (
	IndexUnsigned  IndexMode = iota // base + scaled unsigned immediate
	IndexUnscaled                   // base + signed immediate, no writeback
	IndexPre                        // base + offset, write back before access
	IndexPost                       // base, write back base + offset after access
	IndexRegOffset                  // base + extended, shifted Rm
	IndexSigned                     // pair: base + scaled signed immediate
)

// Instruction represents a decoded A64 instruction.
type Instruction struct {
	Op     Op     // Operation code
	Format Format // Encoding format
	Word   uint32 // Raw instruction word

	// Common fields
	Is64Bit  bool  // 64-bit operation (X registers) or destination width for loads
	SetFlags bool  // Sets NZCV (S suffix)
	Rd       uint8 // Destination register (Rt for loads/stores and compare branches)
	Rn       uint8 // First source register / base register
	Rm       uint8 // Second source register
	Ra       uint8 // Addend register (3-source)
	Rt2      uint8 // Second transfer register (pairs)

	// Immediate operands. Imm holds the fully reconstructed value: shifted
	// add/sub immediates, expanded logical immediates, the bitfield wmask.
	Imm   uint64
	Imm2  uint64 // Bitfield tmask, CCMP nzcv
	Immr  uint8  // Bitfield rotation
	Imms  uint8  // Bitfield top bit / extract lsb
	Shift uint8  // Move wide shift (0, 16, 32, 48)

	// Branch fields
	BranchOffset int64 // Signed PC-relative offset in bytes
	Cond         Cond  // Condition code
	BitNum       uint8 // Bit tested by TBZ/TBNZ

	// Register operand modifiers
	ShiftType   ShiftType  // Shift applied to Rm
	ShiftAmount uint8      // Shift amount for Rm
	Extend      ExtendType // Extension applied to Rm
	Invert      bool       // Rm is inverted (BIC, ORN, EON, BICS)
	CondImm     bool       // CCMP/CCMN compares against Imm instead of Rm

	// Load/store fields
	IndexMode IndexMode
	SignedImm int64 // Signed byte offset (unscaled, pre, post, pair)
	Size      uint8 // Access size in bytes
	Signed    bool  // Sign-extend loaded value
}

// Writeback reports whether the instruction updates its base register.
func (i *Instruction) Writeback() bool {
	return i.IndexMode == IndexPre || i.IndexMode == IndexPost
}

// Branches reports whether the instruction may redirect the PC itself.
func (i *Instruction) Branches() bool {
	switch i.Format {
	case FormatBranch, FormatBranchCond, FormatCompareBranch,
		FormatTestBranch, FormatBranchReg:
		return true
	}
	return false
}
