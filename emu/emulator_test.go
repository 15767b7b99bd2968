package emu_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/S-YOU/nsemu/emu"
	"github.com/S-YOU/nsemu/insts"
)

const (
	codeBase = 0x1000
	dataBase = 0x8000
)

// recordingSink counts dumps and keeps every per-cycle trace.
type recordingSink struct {
	dumps int
	state emu.Snapshot
	fault *emu.Fault
	steps []emu.StepTrace
}

func (s *recordingSink) Tracef(string, ...any) {}

func (s *recordingSink) Dump(state emu.Snapshot, fault *emu.Fault) {
	s.dumps++
	s.state = state
	s.fault = fault
}

func (s *recordingSink) TraceEnabled() bool { return true }

func (s *recordingSink) TraceStep(t emu.StepTrace) {
	s.steps = append(s.steps, t)
}

var _ = Describe("Emulator", func() {
	var (
		e         *emu.Emulator
		mem       *emu.SparseMemory
		sink      *recordingSink
		stdoutBuf *bytes.Buffer
	)

	BeforeEach(func() {
		mem = emu.NewSparseMemory()
		Expect(mem.Map(dataBase, emu.PageSize, emu.PermRW)).To(Succeed())
		sink = &recordingSink{}
		stdoutBuf = &bytes.Buffer{}
		e = emu.NewEmulator(codeBase,
			emu.WithMemory(mem),
			emu.WithSink(sink),
			emu.WithStdout(stdoutBuf),
		)
	})

	load := func(words ...uint32) {
		loadProgram(mem, codeBase, words...)
	}

	Describe("NewEmulator", func() {
		It("should start from a zeroed state at the entry point", func() {
			Expect(e.RegFile().PC).To(Equal(uint64(codeBase)))
			Expect(e.RegFile().X).To(Equal([emu.NumRegs]uint64{}))
			Expect(e.RegFile().PSTATE).To(Equal(emu.PSTATE{}))
			Expect(e.InstructionCount()).To(BeZero())
			Expect(e.Halted()).To(BeFalse())
			Expect(e.Fault()).To(BeNil())
		})

		It("should use the configured memory", func() {
			Expect(e.Memory()).To(BeIdenticalTo(mem))
		})

		It("should apply the initial stack pointer", func() {
			e = emu.NewEmulator(codeBase, emu.WithMemory(mem), emu.WithStackPointer(0x8FF0))

			Expect(e.RegFile().ReadAs(emu.SP, emu.RoleSP)).To(Equal(uint64(0x8FF0)))
		})
	})

	Describe("Reset", func() {
		It("should clear registers and keep memory", func() {
			load(encodeADDImm(0, 31, 7, false), 0xD4400000) // HLT #0
			Expect(mem.Write(dataBase, 8, 0x55)).To(Succeed())
			_, err := e.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			e.Reset(codeBase)

			Expect(e.RegFile().ReadReg(0)).To(BeZero())
			Expect(e.RegFile().PC).To(Equal(uint64(codeBase)))
			Expect(e.Halted()).To(BeFalse())
			Expect(mem.Read(dataBase, 8)).To(Equal(uint64(0x55)))
		})

		It("should restore the configured stack pointer", func() {
			e = emu.NewEmulator(codeBase, emu.WithMemory(mem), emu.WithStackPointer(0x8FF0))
			e.RegFile().SetSP(0)

			e.Reset(codeBase)

			Expect(e.RegFile().ReadAs(emu.SP, emu.RoleSP)).To(Equal(uint64(0x8FF0)))
			Expect(e.RegFile().Written()).To(BeEmpty())
		})
	})

	Describe("Step", func() {
		It("should advance to the next word and record the one written register", func() {
			// ADD X0, X1, #42
			load(encodeADDImm(0, 1, 42, false))
			e.RegFile().WriteReg(1, 100)

			result := e.Step()

			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Exited).To(BeFalse())
			Expect(e.RegFile().PC).To(Equal(uint64(codeBase + 4)))
			Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(142)))
			Expect(e.RegFile().Written()).To(Equal([]uint8{0}))
			Expect(e.InstructionCount()).To(Equal(uint64(1)))
		})

		It("should zero-extend 32-bit results", func() {
			// ADD W0, W1, #1
			load(encodeADDImm(0, 1, 1, false) &^ (1 << 31))
			e.RegFile().WriteReg(1, 0xFFFFFFFF_FFFFFFFF)

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(BeZero())
		})

		It("should report per-cycle traces to a tracing sink", func() {
			load(encodeADDImm(3, 31, 1, false))

			e.Step()

			Expect(sink.steps).To(HaveLen(1))
			Expect(sink.steps[0].PC).To(Equal(uint64(codeBase)))
			Expect(sink.steps[0].Op).To(Equal("ADD"))
			Expect(sink.steps[0].Written).To(Equal([]uint8{3}))
		})

		It("should execute NOP without side effects", func() {
			load(0xD503201F)

			Expect(e.Step().Err).NotTo(HaveOccurred())
			Expect(e.RegFile().PC).To(Equal(uint64(codeBase + 4)))
			Expect(e.RegFile().Written()).To(BeEmpty())
		})
	})

	Describe("Register 31", func() {
		It("should share one slot between SP and XZR", func() {
			Expect(e.RegFile().Write(31, 0xABCD)).To(Succeed())

			v, err := e.RegFile().Read(31)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0xABCD)))
			Expect(e.RegFile().ReadAs(31, emu.RoleZR)).To(BeZero())
			Expect(e.RegFile().ReadAs(31, emu.RoleSP)).To(Equal(uint64(0xABCD)))
		})

		It("should read SP for ADD immediate and XZR for ADD register", func() {
			// ADD SP, SP, #16 ; ADD X2, X3, XZR
			load(encodeADDImm(31, 31, 16, false), encodeADDReg(2, 3, 31, false))
			e.RegFile().SetSP(0x8000)
			e.RegFile().WriteReg(3, 9)

			e.Step()
			e.Step()

			Expect(e.RegFile().ReadAs(emu.SP, emu.RoleSP)).To(Equal(uint64(0x8010)))
			Expect(e.RegFile().ReadReg(2)).To(Equal(uint64(9)))
		})

		It("should discard flag-setting writes to XZR", func() {
			// CMP X1, #1 is SUBS XZR, X1, #1
			load(encodeSUBImm(31, 1, 1, true))
			e.RegFile().SetSP(0x8000)
			e.RegFile().WriteReg(1, 1)

			e.Step()

			Expect(e.RegFile().ReadAs(emu.SP, emu.RoleSP)).To(Equal(uint64(0x8000)))
			Expect(e.RegFile().PSTATE.Z).To(BeTrue())
			Expect(e.RegFile().PSTATE.C).To(BeTrue())
		})
	})

	Describe("Data processing", func() {
		It("should set N and V on signed 32-bit overflow", func() {
			// ADDS W0, W1, W2
			load(0x2B020020)
			e.RegFile().WriteReg(1, 0x7FFFFFFF)
			e.RegFile().WriteReg(2, 1)

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(0x80000000)))
			Expect(e.RegFile().PSTATE).To(Equal(emu.PSTATE{N: true, V: true}))
		})

		It("should execute MOVZ", func() {
			// MOVZ X0, #0x1234
			load(0xD2824680)

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(0x1234)))
		})

		It("should execute LSR as UBFM", func() {
			// LSR X0, X1, #4
			load(0xD344FC20)
			e.RegFile().WriteReg(1, 0xF0F0)

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(0x0F0F)))
		})
	})

	Describe("Load and store", func() {
		It("should execute LDR (64-bit)", func() {
			load(encodeLDR64(0, 1, 8))
			e.RegFile().WriteReg(1, dataBase)
			Expect(mem.Write(dataBase+8, 8, 0xDEADBEEFCAFEBABE)).To(Succeed())

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(0xDEADBEEFCAFEBABE)))
		})

		It("should execute STR (64-bit)", func() {
			load(encodeSTR64(0, 1, 16))
			e.RegFile().WriteReg(0, 0x123456789ABCDEF0)
			e.RegFile().WriteReg(1, dataBase)

			e.Step()

			Expect(mem.Read(dataBase+16, 8)).To(Equal(uint64(0x123456789ABCDEF0)))
		})

		It("should write back the base of a pre-indexed load", func() {
			// LDR X0, [X1, #8]!
			load(0xF8408C20)
			e.RegFile().WriteReg(1, dataBase)
			Expect(mem.Write(dataBase+8, 8, 77)).To(Succeed())

			e.Step()

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(77)))
			Expect(e.RegFile().ReadReg(1)).To(Equal(uint64(dataBase + 8)))
		})

		It("should push and pop a pair through SP", func() {
			// STP X0, X1, [SP, #-16]! ; LDP X2, X3, [SP], #16
			load(0xA9BF07E0, 0xA8C10FE2)
			e.RegFile().SetSP(dataBase + 0x100)
			e.RegFile().WriteReg(0, 1)
			e.RegFile().WriteReg(1, 2)

			e.Step()
			Expect(e.RegFile().ReadAs(emu.SP, emu.RoleSP)).To(Equal(uint64(dataBase + 0xF0)))
			e.Step()

			Expect(e.RegFile().ReadReg(2)).To(Equal(uint64(1)))
			Expect(e.RegFile().ReadReg(3)).To(Equal(uint64(2)))
			Expect(e.RegFile().ReadAs(emu.SP, emu.RoleSP)).To(Equal(uint64(dataBase + 0x100)))
		})
	})

	Describe("Branch instructions", func() {
		It("should execute B (unconditional branch)", func() {
			load(encodeB(8))

			e.Step()

			Expect(e.RegFile().PC).To(Equal(uint64(codeBase + 8)))
		})

		It("should execute BL (branch with link)", func() {
			load(encodeBL(12))

			e.Step()

			Expect(e.RegFile().PC).To(Equal(uint64(codeBase + 12)))
			Expect(e.RegFile().ReadReg(emu.LR)).To(Equal(uint64(codeBase + 4)))
		})

		It("should execute B.EQ when Z flag is set", func() {
			load(encodeBCond(8, insts.CondEQ))
			e.RegFile().PSTATE.Z = true

			e.Step()

			Expect(e.RegFile().PC).To(Equal(uint64(codeBase + 8)))
		})

		It("should not branch B.EQ when Z flag is clear", func() {
			load(encodeBCond(8, insts.CondEQ))

			e.Step()

			Expect(e.RegFile().PC).To(Equal(uint64(codeBase + 4)))
		})

		It("should execute RET", func() {
			load(encodeRET())
			e.RegFile().WriteReg(emu.LR, 0x2000)

			e.Step()

			Expect(e.RegFile().PC).To(Equal(uint64(0x2000)))
		})
	})

	Describe("Exceptions", func() {
		It("should halt cleanly on HLT with its immediate as exit code", func() {
			// HLT #0x2A
			load(0xD4400540)

			result := e.Step()

			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(42)))
			Expect(e.Halted()).To(BeTrue())
			Expect(e.Fault()).To(BeNil())
			Expect(e.Step().Err).To(MatchError(emu.ErrHalted))
		})

		It("should raise a trap fault on BRK", func() {
			// BRK #1
			load(0xD4200020)

			result := e.Step()

			var fault *emu.Fault
			Expect(errors.As(result.Err, &fault)).To(BeTrue())
			Expect(fault.Kind).To(Equal(emu.FaultTrap))
			var brk *emu.BreakpointError
			Expect(errors.As(result.Err, &brk)).To(BeTrue())
			Expect(brk.Imm).To(Equal(uint16(1)))
			Expect(e.RegFile().PC).To(Equal(uint64(codeBase)))
		})

		It("should handle exit syscall", func() {
			load(encodeSVC(0))
			e.RegFile().WriteReg(8, emu.SyscallExit)
			e.RegFile().WriteReg(0, 42)

			result := e.Step()

			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(42)))
		})

		It("should handle write syscall", func() {
			Expect(mem.LoadBytes(dataBase, []byte("Hello"))).To(Succeed())
			load(encodeSVC(0))
			e.RegFile().WriteReg(8, emu.SyscallWrite)
			e.RegFile().WriteReg(0, 1)
			e.RegFile().WriteReg(1, dataBase)
			e.RegFile().WriteReg(2, 5)

			result := e.Step()

			Expect(result.Exited).To(BeFalse())
			Expect(stdoutBuf.String()).To(Equal("Hello"))
		})
	})

	Describe("Faults", func() {
		expectFault := func(result emu.StepResult, kind emu.FaultKind) *emu.Fault {
			var fault *emu.Fault
			ExpectWithOffset(1, errors.As(result.Err, &fault)).To(BeTrue())
			ExpectWithOffset(1, fault.Kind).To(Equal(kind))
			ExpectWithOffset(1, sink.dumps).To(Equal(1))
			ExpectWithOffset(1, sink.fault).To(BeIdenticalTo(fault))
			ExpectWithOffset(1, e.Fault()).To(BeIdenticalTo(fault))
			ExpectWithOffset(1, e.Halted()).To(BeTrue())
			return fault
		}

		It("should raise a memory fault when fetching unmapped memory", func() {
			e.RegFile().WriteReg(5, 0x55)

			fault := expectFault(e.Step(), emu.FaultMemory)

			Expect(fault.PC).To(Equal(uint64(codeBase)))
			Expect(fault.Word).To(BeZero())
			Expect(sink.state.PC).To(Equal(uint64(codeBase)))
			Expect(sink.state.X[5]).To(Equal(uint64(0x55)))
		})

		It("should dump only once even when stepped again", func() {
			e.Step()
			Expect(e.Step().Err).To(MatchError(emu.ErrHalted))

			Expect(sink.dumps).To(Equal(1))
		})

		It("should raise a decode fault on an unallocated word", func() {
			load(0x00000000)

			fault := expectFault(e.Step(), emu.FaultDecode)

			Expect(errors.Is(fault, insts.ErrUnallocated)).To(BeTrue())
			Expect(e.InstructionCount()).To(BeZero())
		})

		It("should raise an operand fault on a misaligned PC", func() {
			load(0xD503201F, 0xD503201F)
			e.Reset(codeBase + 2)

			fault := expectFault(e.Step(), emu.FaultOperand)

			var alignErr *emu.AlignmentError
			Expect(errors.As(fault, &alignErr)).To(BeTrue())
			Expect(alignErr.PC).To(Equal(uint64(codeBase + 2)))
		})

		It("should fault on a branch to a misaligned target before fetching", func() {
			// BR X1
			load(0xD61F0020)
			e.RegFile().WriteReg(1, codeBase+6)

			Expect(e.Step().Err).NotTo(HaveOccurred())
			expectFault(e.Step(), emu.FaultOperand)
		})

		It("should leave registers untouched when a store faults", func() {
			// STR X0, [X1], #8 into read-only code
			load(0xF8008420)
			e.RegFile().WriteReg(0, 1)
			e.RegFile().WriteReg(1, codeBase)

			expectFault(e.Step(), emu.FaultMemory)

			Expect(e.RegFile().ReadReg(1)).To(Equal(uint64(codeBase)))
			Expect(e.RegFile().PC).To(Equal(uint64(codeBase)))
			Expect(mem.Read(codeBase, 4)).To(Equal(uint64(0xF8008420)))
		})

		It("should leave the destination untouched when a load faults", func() {
			load(encodeLDR64(0, 1, 0))
			e.RegFile().WriteReg(0, 3)
			e.RegFile().WriteReg(1, 0xFFFF0000)

			expectFault(e.Step(), emu.FaultMemory)

			Expect(e.RegFile().ReadReg(0)).To(Equal(uint64(3)))
		})
	})

	Describe("Run", func() {
		It("should execute until exit syscall", func() {
			load(
				encodeADDImm(8, 31, 93, false),
				encodeADDImm(0, 31, 42, false),
				encodeSVC(0),
			)

			exitCode, err := e.Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(exitCode).To(Equal(int64(42)))
		})

		It("should execute a simple computation before exit", func() {
			load(
				encodeADDImm(0, 31, 10, false),
				encodeADDImm(1, 31, 5, false),
				encodeADDReg(0, 0, 1, false),
				encodeADDImm(8, 31, 93, false),
				encodeSVC(0),
			)

			exitCode, err := e.Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(exitCode).To(Equal(int64(15)))
		})

		It("should handle branches in a loop", func() {
			load(
				encodeADDImm(0, 31, 3, false),
				encodeSUBImm(0, 0, 1, true),
				encodeBCond(-4, insts.CondNE),
				encodeADDImm(8, 31, 93, false),
				encodeSVC(0),
			)

			exitCode, err := e.Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(exitCode).To(Equal(int64(0)))
			Expect(e.InstructionCount()).To(Equal(uint64(9)))
		})

		It("should write output during execution", func() {
			Expect(mem.LoadBytes(dataBase, []byte("Hi"))).To(Succeed())
			e.RegFile().WriteReg(1, dataBase)
			load(
				encodeADDImm(8, 31, 64, false),
				encodeADDImm(0, 31, 1, false),
				encodeADDImm(2, 31, 2, false),
				encodeSVC(0),
				encodeADDImm(8, 31, 93, false),
				encodeADDImm(0, 31, 0, false),
				encodeSVC(0),
			)

			exitCode, err := e.Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(exitCode).To(Equal(int64(0)))
			Expect(stdoutBuf.String()).To(Equal("Hi"))
		})

		It("should return the fault that stopped the run", func() {
			load(encodeADDImm(0, 31, 1, false))

			exitCode, err := e.Run(context.Background())

			Expect(exitCode).To(Equal(int64(-1)))
			var fault *emu.Fault
			Expect(errors.As(err, &fault)).To(BeTrue())
			Expect(fault.PC).To(Equal(uint64(codeBase + 4)))
			Expect(fault.State.X[0]).To(Equal(uint64(1)))
		})

		It("should stop when the instruction budget runs out", func() {
			e = emu.NewEmulator(codeBase, emu.WithMemory(mem), emu.WithMaxInstructions(10))
			load(encodeB(0))

			_, err := e.Run(context.Background())

			Expect(err).To(MatchError(emu.ErrMaxInstructions))
			Expect(e.InstructionCount()).To(Equal(uint64(10)))
		})

		It("should stop between cycles when the context is cancelled", func() {
			load(encodeB(0))
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			exitCode, err := e.Run(ctx)

			Expect(exitCode).To(Equal(int64(-1)))
			Expect(err).To(MatchError(context.Canceled))
			Expect(e.InstructionCount()).To(BeZero())
		})
	})
})

func loadProgram(mem *emu.SparseMemory, base uint64, words ...uint32) {
	buf := make([]byte, 0, 4*len(words))
	for _, w := range words {
		buf = append(buf, uint32ToBytes(w)...)
	}
	ExpectWithOffset(2, mem.Map(base, uint64(len(buf)), emu.PermRX)).To(Succeed())
	ExpectWithOffset(2, mem.LoadBytes(base, buf)).To(Succeed())
}

// Helper functions to encode ARM64 instructions

func uint32ToBytes(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func encodeADDImm(rd, rn uint8, imm uint16, setFlags bool) uint32 {
	var inst uint32 = 0
	inst |= 1 << 31
	inst |= 0 << 30
	if setFlags {
		inst |= 1 << 29
	}
	inst |= 0b100010 << 23
	inst |= 0 << 22
	inst |= uint32(imm&0xFFF) << 10
	inst |= uint32(rn&0x1F) << 5
	inst |= uint32(rd & 0x1F)
	return inst
}

func encodeSUBImm(rd, rn uint8, imm uint16, setFlags bool) uint32 {
	var inst uint32 = 0
	inst |= 1 << 31
	inst |= 1 << 30
	if setFlags {
		inst |= 1 << 29
	}
	inst |= 0b100010 << 23
	inst |= 0 << 22
	inst |= uint32(imm&0xFFF) << 10
	inst |= uint32(rn&0x1F) << 5
	inst |= uint32(rd & 0x1F)
	return inst
}

func encodeADDReg(rd, rn, rm uint8, setFlags bool) uint32 {
	var inst uint32 = 0
	inst |= 1 << 31
	inst |= 0 << 30
	if setFlags {
		inst |= 1 << 29
	}
	inst |= 0b01011 << 24
	inst |= uint32(rm&0x1F) << 16
	inst |= uint32(rn&0x1F) << 5
	inst |= uint32(rd & 0x1F)
	return inst
}

func encodeLDR64(rd, rn uint8, offset uint16) uint32 {
	var inst uint32 = 0
	inst |= 0b11 << 30
	inst |= 0b111 << 27
	inst |= 0b01 << 24
	inst |= 0b01 << 22
	scaledOffset := offset / 8
	inst |= uint32(scaledOffset&0xFFF) << 10
	inst |= uint32(rn&0x1F) << 5
	inst |= uint32(rd & 0x1F)
	return inst
}

func encodeSTR64(rd, rn uint8, offset uint16) uint32 {
	var inst uint32 = 0
	inst |= 0b11 << 30
	inst |= 0b111 << 27
	inst |= 0b01 << 24
	scaledOffset := offset / 8
	inst |= uint32(scaledOffset&0xFFF) << 10
	inst |= uint32(rn&0x1F) << 5
	inst |= uint32(rd & 0x1F)
	return inst
}

func encodeB(offset int32) uint32 {
	var inst uint32 = 0
	inst |= 0b000101 << 26
	imm26 := uint32(offset/4) & 0x3FFFFFF
	inst |= imm26
	return inst
}

func encodeBL(offset int32) uint32 {
	var inst uint32 = 0
	inst |= 0b100101 << 26
	imm26 := uint32(offset/4) & 0x3FFFFFF
	inst |= imm26
	return inst
}

func encodeBCond(offset int32, cond insts.Cond) uint32 {
	var inst uint32 = 0
	inst |= 0b0101010 << 25
	imm19 := uint32(offset/4) & 0x7FFFF
	inst |= imm19 << 5
	inst |= uint32(cond & 0xF)
	return inst
}

func encodeRET() uint32 {
	var inst uint32 = 0
	inst |= 0b1101011 << 25
	inst |= 0b10 << 21
	inst |= 0b11111 << 16
	inst |= uint32(30) << 5
	return inst
}

func encodeSVC(imm uint16) uint32 {
	var inst uint32 = 0
	inst |= 0b11010100 << 24
	inst |= uint32(imm) << 5
	inst |= 0b00001
	return inst
}
