package emu

import (
	"fmt"
	"strings"
)

// FaultKind classifies a fault.
type FaultKind uint8

// Fault kinds.
const (
	FaultDecode  FaultKind = iota + 1 // Unallocated encoding or primitive precondition
	FaultOperand                      // Register index out of range, misaligned PC
	FaultMemory                       // Fetch or data access rejected by memory
	FaultTrap                         // BRK software breakpoint
)

func (k FaultKind) String() string {
	switch k {
	case FaultDecode:
		return "decode"
	case FaultOperand:
		return "operand"
	case FaultMemory:
		return "memory"
	case FaultTrap:
		return "trap"
	default:
		return fmt.Sprintf("fault(%d)", uint8(k))
	}
}

// Fault is the fatal result of a run. It carries the CPU state at the
// faulting instruction.
type Fault struct {
	Kind  FaultKind
	PC    uint64
	Word  uint32 // Zero when the fetch itself failed
	Err   error
	State Snapshot
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%v fault at pc 0x%016x (word 0x%08x): %v", f.Kind, f.PC, f.Word, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Snapshot is a copy of the architectural state.
type Snapshot struct {
	X      [NumRegs]uint64
	PC     uint64
	PSTATE PSTATE
}

// Snapshot copies the current state.
func (r *RegFile) Snapshot() Snapshot {
	return Snapshot{X: r.X, PC: r.PC, PSTATE: r.PSTATE}
}

// String renders the snapshot in a fixed layout, two registers per line,
// so dumps from different runs diff cleanly.
func (s Snapshot) String() string {
	var b strings.Builder
	for i := 0; i < NumRegs; i += 2 {
		fmt.Fprintf(&b, "x%02d: 0x%016x  x%02d: 0x%016x\n", i, s.X[i], i+1, s.X[i+1])
	}
	fmt.Fprintf(&b, "pc:  0x%016x\n", s.PC)
	fmt.Fprintf(&b, "nzcv: %v\n", s.PSTATE)
	return b.String()
}
