package emu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/S-YOU/nsemu/bitfield"
	"github.com/S-YOU/nsemu/insts"
)

var (
	// ErrHalted is returned when stepping an engine that already stopped.
	ErrHalted = errors.New("emulator halted")

	// ErrMaxInstructions is returned when the instruction budget runs out.
	ErrMaxInstructions = errors.New("max instructions reached")
)

// AlignmentError reports a program counter that is not 4-byte aligned.
type AlignmentError struct {
	PC uint64
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("misaligned pc 0x%016x", e.PC)
}

// BreakpointError is raised by BRK.
type BreakpointError struct {
	Imm uint16
}

func (e *BreakpointError) Error() string {
	return fmt.Sprintf("breakpoint #0x%x", e.Imm)
}

// PreconditionError wraps a bitfield precondition violated while decoding
// or executing an instruction.
type PreconditionError struct {
	Err *bitfield.RangeError
}

func (e *PreconditionError) Error() string {
	return "precondition violated: " + e.Err.Error()
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program terminated cleanly (HLT or exit).
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64

	// Err is a *Fault, ErrHalted or ErrMaxInstructions.
	Err error
}

// effect is what a handler did besides writing registers.
type effect struct {
	branched bool
	exited   bool
	exitCode int64
}

// Emulator executes ARM64 instructions functionally.
type Emulator struct {
	regFile        *RegFile
	memory         Memory
	decoder        *insts.Decoder
	syscallHandler SyscallHandler
	sink           Sink

	// I/O for the default syscall handler
	stdout io.Writer
	stderr io.Writer

	// Execution state
	initialSP        uint64
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	halted           bool
	exitCode         int64
	fault            *Fault
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMemory sets the memory collaborator. The default is an empty
// SparseMemory.
func WithMemory(m Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = m
	}
}

// WithSink sets the diagnostics sink. The default discards everything.
func WithSink(s Sink) EmulatorOption {
	return func(e *Emulator) {
		e.sink = s
	}
}

// WithStdout sets the stdout writer of the default syscall handler.
func WithStdout(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stdout = w
	}
}

// WithStderr sets the stderr writer of the default syscall handler.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stderr = w
	}
}

// WithSyscallHandler sets a custom syscall handler.
func WithSyscallHandler(handler SyscallHandler) EmulatorOption {
	return func(e *Emulator) {
		e.syscallHandler = handler
	}
}

// WithStackPointer sets the initial stack pointer value. Reset restores it.
func WithStackPointer(sp uint64) EmulatorOption {
	return func(e *Emulator) {
		e.initialSP = sp
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates an emulator whose state is reset to entry.
func NewEmulator(entry uint64, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		decoder: insts.NewDecoder(),
		sink:    DiscardSink{},
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.memory == nil {
		e.memory = NewSparseMemory()
	}
	if e.syscallHandler == nil {
		e.syscallHandler = NewDefaultSyscallHandler(e.regFile, e.memory, e.stdout, e.stderr)
	}

	e.Reset(entry)
	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() Memory {
	return e.memory
}

// InstructionCount returns the number of instructions retired.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Halted reports whether the engine stopped, cleanly or by fault.
func (e *Emulator) Halted() bool {
	return e.halted
}

// Fault returns the fault that stopped the engine, if any.
func (e *Emulator) Fault() *Fault {
	return e.fault
}

// Reset zeroes the CPU state for a new run starting at entry. Memory is
// left as it is.
func (e *Emulator) Reset(entry uint64) {
	e.regFile.Reset(entry)
	if e.initialSP != 0 {
		e.regFile.SetSP(e.initialSP)
		e.regFile.ClearWritten()
	}
	e.instructionCount = 0
	e.halted = false
	e.exitCode = 0
	e.fault = nil
}

// Step executes a single instruction.
// Returns a StepResult indicating whether execution should continue.
func (e *Emulator) Step() StepResult {
	if e.halted {
		return StepResult{Err: ErrHalted}
	}
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	pc := e.regFile.PC
	e.regFile.ClearWritten()

	if pc&3 != 0 {
		return e.raise(FaultOperand, pc, 0, &AlignmentError{PC: pc})
	}

	// 1. Fetch
	word, err := e.memory.ReadWord32(pc)
	if err != nil {
		return e.raise(FaultMemory, pc, 0, err)
	}

	// 2. Decode and execute
	inst, eff, err := e.decodeAndExecute(word)
	if err != nil {
		return e.raise(faultKind(err), pc, word, err)
	}

	// 3. Advance
	if !eff.branched {
		e.regFile.PC = pc + 4
	}
	e.instructionCount++
	e.trace(pc, word, inst)

	if eff.exited {
		e.halted = true
		e.exitCode = eff.exitCode
		return StepResult{Exited: true, ExitCode: eff.exitCode}
	}
	return StepResult{}
}

// Run executes instructions until the program halts or faults. The
// context is checked between cycles. It returns the exit code of a clean
// halt, or -1 with ctx.Err(), ErrMaxInstructions or the *Fault.
func (e *Emulator) Run(ctx context.Context) (int64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return -1, err
		}
		result := e.Step()
		if result.Exited {
			return result.ExitCode, nil
		}
		if result.Err != nil {
			return -1, result.Err
		}
	}
}

// decodeAndExecute runs one instruction. Bitfield precondition and
// register index panics become errors; anything else is a bug and keeps
// panicking.
func (e *Emulator) decodeAndExecute(word uint32) (inst *insts.Instruction, eff effect, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch v := r.(type) {
		case *bitfield.RangeError:
			err = &PreconditionError{Err: v}
		case *RegisterError:
			err = v
		default:
			panic(r)
		}
	}()

	inst, err = e.decoder.Decode(word)
	if err != nil {
		return nil, effect{}, err
	}
	eff, err = e.execute(inst)
	return inst, eff, err
}

// execute dispatches a decoded instruction to its handler.
func (e *Emulator) execute(inst *insts.Instruction) (effect, error) {
	switch inst.Format {
	case insts.FormatPCRel:
		return e.executePCRel(inst)
	case insts.FormatAddSubImm:
		return e.executeAddSubImm(inst)
	case insts.FormatLogicalImm:
		return e.executeLogicalImm(inst)
	case insts.FormatMoveWide:
		return e.executeMoveWide(inst)
	case insts.FormatBitfield:
		return e.executeBitfield(inst)
	case insts.FormatExtract:
		return e.executeExtract(inst)
	case insts.FormatBranch:
		return e.executeBranch(inst)
	case insts.FormatBranchCond:
		return e.executeBranchCond(inst)
	case insts.FormatCompareBranch:
		return e.executeCompareBranch(inst)
	case insts.FormatTestBranch:
		return e.executeTestBranch(inst)
	case insts.FormatBranchReg:
		return e.executeBranchReg(inst)
	case insts.FormatException:
		return e.executeException(inst)
	case insts.FormatSystem:
		return effect{}, nil
	case insts.FormatLoadStore:
		return e.executeLoadStore(inst)
	case insts.FormatLoadStorePair:
		return e.executeLoadStorePair(inst)
	case insts.FormatLoadLiteral:
		return e.executeLoadLiteral(inst)
	case insts.FormatLogicalReg:
		return e.executeLogicalReg(inst)
	case insts.FormatAddSubReg:
		return e.executeAddSubReg(inst)
	case insts.FormatAddSubExt:
		return e.executeAddSubExt(inst)
	case insts.FormatAddSubCarry:
		return e.executeAddSubCarry(inst)
	case insts.FormatCondCmp:
		return e.executeCondCmp(inst)
	case insts.FormatCondSelect:
		return e.executeCondSelect(inst)
	case insts.FormatDataProc1Src:
		return e.executeDataProc1Src(inst)
	case insts.FormatDataProc2Src:
		return e.executeDataProc2Src(inst)
	case insts.FormatDataProc3Src:
		return e.executeDataProc3Src(inst)
	default:
		return effect{}, &insts.DecodeError{
			Word:   inst.Word,
			Reason: fmt.Sprintf("no handler for %v", inst.Op),
		}
	}
}

// executeException executes SVC, BRK and HLT.
func (e *Emulator) executeException(inst *insts.Instruction) (effect, error) {
	switch inst.Op {
	case insts.OpSVC:
		result := e.syscallHandler.Handle()
		return effect{exited: result.Exited, exitCode: result.ExitCode}, nil
	case insts.OpBRK:
		return effect{}, &BreakpointError{Imm: uint16(inst.Imm)}
	default:
		return effect{exited: true, exitCode: int64(inst.Imm)}, nil
	}
}

// raise halts the engine on a fault and reports it to the sink once.
func (e *Emulator) raise(kind FaultKind, pc uint64, word uint32, err error) StepResult {
	fault := &Fault{
		Kind:  kind,
		PC:    pc,
		Word:  word,
		Err:   err,
		State: e.regFile.Snapshot(),
	}
	e.halted = true
	e.fault = fault
	e.sink.Dump(fault.State, fault)
	return StepResult{Err: fault}
}

func faultKind(err error) FaultKind {
	var (
		memErr   *MemoryError
		regErr   *RegisterError
		alignErr *AlignmentError
		brkErr   *BreakpointError
	)
	switch {
	case errors.As(err, &memErr):
		return FaultMemory
	case errors.As(err, &regErr), errors.As(err, &alignErr):
		return FaultOperand
	case errors.As(err, &brkErr):
		return FaultTrap
	default:
		return FaultDecode
	}
}

func (e *Emulator) trace(pc uint64, word uint32, inst *insts.Instruction) {
	tracer, ok := e.sink.(StepTracer)
	if !ok || !tracer.TraceEnabled() {
		return
	}
	tracer.TraceStep(StepTrace{
		PC:      pc,
		Word:    word,
		Op:      inst.Op.String(),
		Written: e.regFile.Written(),
	})
}
