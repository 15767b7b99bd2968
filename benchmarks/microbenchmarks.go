package benchmarks

import (
	"github.com/S-YOU/nsemu/emu"
)

const (
	exitSyscall  = emu.SyscallExit
	writeSyscall = emu.SyscallWrite
)

// GetMicrobenchmarks returns the standard set of workloads. Each one
// exercises one group of instructions and exits with a known code.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		functionCalls(),
		branchTaken(),
		mixedOperations(),
		matrixMultiply2x2(),
		countedLoop(),
		compareLoop(),
		writeSyscallBench(),
	}
}

// GetCoreBenchmarks returns a minimal set of 3 core benchmarks for quick
// validation: a loop, a matrix multiply and branch-heavy code.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		countedLoop(),
		matrixMultiply2x2(),
		branchTaken(),
	}
}

// setRegs returns a Setup that writes the given register values.
func setRegs(values map[uint8]uint64) func(*emu.RegFile, *emu.SparseMemory) error {
	return func(regFile *emu.RegFile, _ *emu.SparseMemory) error {
		for reg, v := range values {
			regFile.WriteReg(reg, v)
		}
		return nil
	}
}

// storeWords writes consecutive 64-bit values starting at addr.
func storeWords(memory *emu.SparseMemory, addr uint64, values ...uint64) error {
	for i, v := range values {
		if err := memory.Write(addr+8*uint64(i), 8, v); err != nil {
			return err
		}
	}
	return nil
}

// 1. Arithmetic Sequential - independent ADDs across five registers
func arithmeticSequential() Benchmark {
	instrs := make([]uint32, 0, 21)
	for i := 0; i < 20; i++ {
		reg := uint8(i % 5)
		instrs = append(instrs, EncodeADDImm(reg, reg, 1, false))
	}
	instrs = append(instrs, EncodeSVC(0))

	return Benchmark{
		Name:         "arithmetic_sequential",
		Description:  "20 independent ADD operations over X0-X4",
		Setup:        setRegs(map[uint8]uint64{8: exitSyscall}),
		Program:      BuildProgram(instrs...),
		ExpectedExit: 4, // X0 = 0 + 4*1
	}
}

// 2. Dependency Chain - every ADD reads the previous result
func dependencyChain() Benchmark {
	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent ADDs (X0 = X0 + 1)",
		Setup:        setRegs(map[uint8]uint64{8: exitSyscall, 0: 0}),
		Program:      buildDependencyChain(20),
		ExpectedExit: 20,
	}
}

func buildDependencyChain(n int) []byte {
	instrs := make([]uint32, 0, n+1)
	for i := 0; i < n; i++ {
		instrs = append(instrs, EncodeADDImm(0, 0, 1, false))
	}
	instrs = append(instrs, EncodeSVC(0))
	return BuildProgram(instrs...)
}

// 3. Memory Sequential - store/load pairs to consecutive doublewords
func memorySequential() Benchmark {
	instrs := make([]uint32, 0, 21)
	for i := uint16(0); i < 10; i++ {
		instrs = append(instrs, EncodeSTR64(0, 1, i), EncodeLDR64(0, 1, i))
	}
	instrs = append(instrs, EncodeSVC(0))

	return Benchmark{
		Name:        "memory_sequential",
		Description: "10 store/load pairs to sequential addresses",
		Setup: setRegs(map[uint8]uint64{
			8: exitSyscall,
			1: DataBase,
			0: 42,
		}),
		Program:      BuildProgram(instrs...),
		ExpectedExit: 42, // the value survives every round trip
	}
}

// 4. Function Calls - BL/RET pairs into one leaf function
func functionCalls() Benchmark {
	return Benchmark{
		Name:        "function_calls",
		Description: "5 function calls (BL + RET pairs)",
		Setup:       setRegs(map[uint8]uint64{8: exitSyscall, 0: 0}),
		Program: BuildProgram(
			// main: call add_one 5 times
			EncodeBL(24),
			EncodeBL(20),
			EncodeBL(16),
			EncodeBL(12),
			EncodeBL(8),
			EncodeSVC(0),

			// add_one
			EncodeADDImm(0, 0, 1, false),
			EncodeRET(),
		),
		ExpectedExit: 5,
	}
}

// 5. Branch Taken - forward branches over dead instructions
func branchTaken() Benchmark {
	instrs := make([]uint32, 0, 16)
	for i := 0; i < 5; i++ {
		instrs = append(instrs,
			EncodeB(8),                    // skip next instr
			EncodeADDImm(1, 1, 99, false), // skipped
			EncodeADDImm(0, 0, 1, false),
		)
	}
	instrs = append(instrs, EncodeSVC(0))

	return Benchmark{
		Name:         "branch_taken",
		Description:  "5 unconditional forward branches",
		Setup:        setRegs(map[uint8]uint64{8: exitSyscall, 0: 0}),
		Program:      BuildProgram(instrs...),
		ExpectedExit: 5,
	}
}

// 6. Mixed Operations - ALU, memory and calls interleaved
func mixedOperations() Benchmark {
	return Benchmark{
		Name:        "mixed_operations",
		Description: "Mix of ADD, STR/LDR and BL",
		Setup: setRegs(map[uint8]uint64{
			8: exitSyscall,
			0: 0,
			1: DataBase,
		}),
		Program: BuildProgram(
			// Iteration 1: compute, store, load, call
			EncodeADDImm(2, 0, 10, false),
			EncodeSTR64(2, 1, 0),
			EncodeLDR64(3, 1, 0),
			EncodeADDReg(0, 0, 3, false),
			EncodeBL(44), // add_five

			// Iteration 2
			EncodeADDImm(2, 0, 10, false),
			EncodeSTR64(2, 1, 1),
			EncodeLDR64(3, 1, 1),
			EncodeADDReg(0, 0, 3, false),
			EncodeBL(24),

			// Iteration 3
			EncodeADDImm(2, 0, 10, false),
			EncodeSTR64(2, 1, 2),
			EncodeLDR64(3, 1, 2),
			EncodeADDReg(0, 0, 3, false),

			EncodeSVC(0),

			// add_five
			EncodeADDImm(0, 0, 5, false),
			EncodeRET(),
		),
		// iter1: X0 = 10 + 5 = 15
		// iter2: X0 = 15 + 25 + 5 = 45
		// iter3: X0 = 45 + 55 = 100
		ExpectedExit: 100,
	}
}

// 7. Matrix Multiply - C = A x B for 2x2 row-major matrices in memory
func matrixMultiply2x2() Benchmark {
	const (
		matA = DataBase
		matB = DataBase + 0x100
		matC = DataBase + 0x200
	)

	return Benchmark{
		Name:        "matrix_multiply",
		Description: "2x2 matrix multiply with MUL, loads and stores",
		Setup: func(regFile *emu.RegFile, memory *emu.SparseMemory) error {
			regFile.WriteReg(8, exitSyscall)
			regFile.WriteReg(1, matA)
			regFile.WriteReg(2, matB)
			regFile.WriteReg(3, matC)
			if err := storeWords(memory, matA, 1, 2, 3, 4); err != nil {
				return err
			}
			return storeWords(memory, matB, 5, 6, 7, 8)
		},
		// C = [19, 22; 43, 50], exit with the sum of C
		Program: BuildProgram(
			EncodeLDR64(10, 1, 0), // a00
			EncodeLDR64(11, 1, 1), // a01
			EncodeLDR64(12, 1, 2), // a10
			EncodeLDR64(13, 1, 3), // a11
			EncodeLDR64(14, 2, 0), // b00
			EncodeLDR64(15, 2, 1), // b01
			EncodeLDR64(16, 2, 2), // b10
			EncodeLDR64(17, 2, 3), // b11

			EncodeMUL(20, 10, 14),
			EncodeMUL(21, 11, 16),
			EncodeADDReg(20, 20, 21, false), // c00

			EncodeMUL(21, 10, 15),
			EncodeMUL(22, 11, 17),
			EncodeADDReg(21, 21, 22, false), // c01

			EncodeMUL(22, 12, 14),
			EncodeMUL(23, 13, 16),
			EncodeADDReg(22, 22, 23, false), // c10

			EncodeMUL(23, 12, 15),
			EncodeMUL(24, 13, 17),
			EncodeADDReg(23, 23, 24, false), // c11

			EncodeSTR64(20, 3, 0),
			EncodeSTR64(21, 3, 1),
			EncodeSTR64(22, 3, 2),
			EncodeSTR64(23, 3, 3),

			EncodeADDReg(0, 20, 21, false),
			EncodeADDReg(0, 0, 22, false),
			EncodeADDReg(0, 0, 23, false),
			EncodeSVC(0),
		),
		ExpectedExit: 134,
	}
}

// 8. Counted Loop - sum 10 down to 1 with SUBS and B.NE
func countedLoop() Benchmark {
	return Benchmark{
		Name:        "counted_loop",
		Description: "10-iteration countdown loop using flags",
		Setup:       setRegs(map[uint8]uint64{8: exitSyscall, 0: 0, 1: 10}),
		Program: BuildProgram(
			EncodeADDReg(0, 0, 1, false), // sum += i
			EncodeSUBImm(1, 1, 1, true),  // i--, set flags
			EncodeBCond(-8, condNE),
			EncodeSVC(0),
		),
		ExpectedExit: 55,
	}
}

// 9. Compare Loop - count up to a bound with CMP and B.LT
func compareLoop() Benchmark {
	return Benchmark{
		Name:        "compare_loop",
		Description: "Count to 20 with CMP and a signed branch",
		Setup:       setRegs(map[uint8]uint64{8: exitSyscall, 1: 0}),
		Program: BuildProgram(
			EncodeADDImm(1, 1, 1, false),
			EncodeCMPImm(1, 20),
			EncodeBCond(-8, condLT),
			EncodeSUBReg(0, 1, 31, false), // X0 = X1 - XZR
			EncodeSVC(0),
		),
		ExpectedExit: 20,
	}
}

// 10. Write Syscall - print a buffer, then exit with the byte count
func writeSyscallBench() Benchmark {
	msg := []byte("hello\n")

	return Benchmark{
		Name:        "write_syscall",
		Description: "write(1, buf, 6) followed by exit(X0)",
		Setup: func(regFile *emu.RegFile, memory *emu.SparseMemory) error {
			regFile.WriteReg(0, 1)
			regFile.WriteReg(1, DataBase)
			regFile.WriteReg(2, uint64(len(msg)))
			regFile.WriteReg(8, writeSyscall)
			return memory.LoadBytes(DataBase, msg)
		},
		Program: BuildProgram(
			EncodeSVC(0),
			EncodeMOVZ(8, uint16(exitSyscall)),
			EncodeSVC(0),
		),
		ExpectedExit: 6,
	}
}
