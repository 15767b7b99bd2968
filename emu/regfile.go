// Package emu provides functional ARM64 emulation.
package emu

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Architectural register indices.
const (
	NumRegs = 32
	LR      = 30 // Link register
	SP      = 31 // Stack pointer, when the instruction form says so
	ZR      = 31 // Zero register, when the instruction form says so
)

// Role tells the register file what index 31 means for one operand. The
// instruction handler passes it at the call site; the storage is shared.
type Role uint8

// Register-31 roles.
const (
	RoleZR Role = iota // Index 31 reads as zero and discards writes
	RoleSP             // Index 31 is the stack pointer
)

// RegisterError reports an out-of-range register index.
type RegisterError struct {
	Index uint8
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("register index %d out of range [0,%d]", e.Index, NumRegs-1)
}

// RegFile represents the ARM64 register file: 32 flat 64-bit slots, the
// program counter and the condition flags.
type RegFile struct {
	// X holds the general-purpose registers. X[31] is one slot that serves
	// as SP or ZR depending on the Role of the access.
	X [NumRegs]uint64

	// PC is the program counter.
	PC uint64

	// PSTATE holds the processor state flags.
	PSTATE PSTATE

	written *bitset.BitSet
}

// PSTATE represents the processor state flags.
type PSTATE struct {
	// N is the negative flag.
	N bool
	// Z is the zero flag.
	Z bool
	// C is the carry flag.
	C bool
	// V is the overflow flag.
	V bool
}

// NZCV packs the flags into the low four bits, N in bit 3.
func (p PSTATE) NZCV() uint8 {
	var v uint8
	if p.N {
		v |= 0b1000
	}
	if p.Z {
		v |= 0b0100
	}
	if p.C {
		v |= 0b0010
	}
	if p.V {
		v |= 0b0001
	}
	return v
}

// SetNZCV unpacks the low four bits of v into the flags.
func (p *PSTATE) SetNZCV(v uint8) {
	p.N = v&0b1000 != 0
	p.Z = v&0b0100 != 0
	p.C = v&0b0010 != 0
	p.V = v&0b0001 != 0
}

func (p PSTATE) String() string {
	flags := []byte("nzcv")
	if p.N {
		flags[0] = 'N'
	}
	if p.Z {
		flags[1] = 'Z'
	}
	if p.C {
		flags[2] = 'C'
	}
	if p.V {
		flags[3] = 'V'
	}
	return string(flags)
}

// NewRegFile creates a register file reset to entry.
func NewRegFile(entry uint64) *RegFile {
	r := &RegFile{}
	r.Reset(entry)
	return r
}

// Reset zeroes every register and flag and sets the PC to entry.
func (r *RegFile) Reset(entry uint64) {
	r.X = [NumRegs]uint64{}
	r.PSTATE = PSTATE{}
	r.PC = entry
	r.ClearWritten()
}

// Read returns the raw value of slot index. Index 31 is plain storage.
func (r *RegFile) Read(index uint8) (uint64, error) {
	if index >= NumRegs {
		return 0, &RegisterError{Index: index}
	}
	return r.X[index], nil
}

// Write stores value into slot index. Index 31 is plain storage.
func (r *RegFile) Write(index uint8, value uint64) error {
	if index >= NumRegs {
		return &RegisterError{Index: index}
	}
	r.X[index] = value
	r.markWritten(index)
	return nil
}

// ReadAs reads index under the given role. Decoded register fields are
// five bits wide, so an out-of-range index is a programming error and
// panics with a *RegisterError.
func (r *RegFile) ReadAs(index uint8, role Role) uint64 {
	if index == ZR && role == RoleZR {
		return 0
	}
	v, err := r.Read(index)
	if err != nil {
		panic(err)
	}
	return v
}

// WriteAs writes index under the given role. Writes to ZR are discarded.
func (r *RegFile) WriteAs(index uint8, role Role, value uint64) {
	if index == ZR && role == RoleZR {
		return
	}
	if err := r.Write(index, value); err != nil {
		panic(err)
	}
}

// ReadReg reads a register with index 31 as XZR.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	return r.ReadAs(reg, RoleZR)
}

// WriteReg writes a register with index 31 as XZR.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	r.WriteAs(reg, RoleZR, value)
}

// SetSP sets the stack pointer.
func (r *RegFile) SetSP(value uint64) {
	r.X[SP] = value
	r.markWritten(SP)
}

// PCValue returns the program counter.
func (r *RegFile) PCValue() uint64 {
	return r.PC
}

// SetPC sets the program counter. Alignment is checked by the engine
// before the next fetch.
func (r *RegFile) SetPC(address uint64) {
	r.PC = address
}

// Written returns the indices written since the last ClearWritten, in
// ascending order.
func (r *RegFile) Written() []uint8 {
	if r.written == nil {
		return nil
	}
	var out []uint8
	for i, ok := r.written.NextSet(0); ok; i, ok = r.written.NextSet(i + 1) {
		out = append(out, uint8(i))
	}
	return out
}

// ClearWritten forgets the recorded write set.
func (r *RegFile) ClearWritten() {
	if r.written != nil {
		r.written.ClearAll()
	}
}

func (r *RegFile) markWritten(index uint8) {
	if r.written == nil {
		r.written = bitset.New(NumRegs)
	}
	r.written.Set(uint(index))
}
