package emu_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/S-YOU/nsemu/emu"
)

var _ = Describe("Syscall Handler", func() {
	var (
		regFile *emu.RegFile
		memory  *emu.SparseMemory
		stdout  *bytes.Buffer
		stderr  *bytes.Buffer
		handler *emu.DefaultSyscallHandler
	)

	BeforeEach(func() {
		regFile = emu.NewRegFile(0)
		memory = emu.NewSparseMemory()
		Expect(memory.Map(0x2000, emu.PageSize, emu.PermRW)).To(Succeed())
		stdout = new(bytes.Buffer)
		stderr = new(bytes.Buffer)
		handler = emu.NewDefaultSyscallHandler(regFile, memory, stdout, stderr)
	})

	Describe("Unknown syscall", func() {
		It("should return ENOSYS for unknown syscall numbers", func() {
			regFile.WriteReg(8, 999)

			result := handler.Handle()

			Expect(result.Exited).To(BeFalse())
			var enosys int64 = emu.ENOSYS
			Expect(regFile.ReadReg(0)).To(Equal(uint64(-enosys)))
		})

		It("should treat read as unsupported", func() {
			regFile.WriteReg(8, 63)

			result := handler.Handle()

			Expect(result.Exited).To(BeFalse())
			var enosys int64 = emu.ENOSYS
			Expect(regFile.ReadReg(0)).To(Equal(uint64(-enosys)))
		})
	})

	Describe("Exit syscalls", func() {
		It("should exit with the code in X0", func() {
			regFile.WriteReg(8, emu.SyscallExit)
			regFile.WriteReg(0, 42)

			result := handler.Handle()

			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(42)))
		})

		It("should handle exit_group the same way", func() {
			regFile.WriteReg(8, emu.SyscallExitGroup)
			regFile.WriteReg(0, 3)

			result := handler.Handle()

			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int64(3)))
		})
	})

	Describe("Write syscall", func() {
		BeforeEach(func() {
			Expect(memory.LoadBytes(0x2000, []byte("hello\n"))).To(Succeed())
			regFile.WriteReg(8, emu.SyscallWrite)
			regFile.WriteReg(1, 0x2000)
			regFile.WriteReg(2, 6)
		})

		It("should write to stdout", func() {
			regFile.WriteReg(0, 1)

			result := handler.Handle()

			Expect(result.Exited).To(BeFalse())
			Expect(stdout.String()).To(Equal("hello\n"))
			Expect(regFile.ReadReg(0)).To(Equal(uint64(6)))
		})

		It("should write to stderr", func() {
			regFile.WriteReg(0, 2)

			handler.Handle()

			Expect(stderr.String()).To(Equal("hello\n"))
			Expect(stdout.Len()).To(BeZero())
		})

		It("should return EBADF for other descriptors", func() {
			regFile.WriteReg(0, 7)

			handler.Handle()

			var ebadf int64 = emu.EBADF
			Expect(regFile.ReadReg(0)).To(Equal(uint64(-ebadf)))
		})

		It("should return EFAULT for unmapped buffers", func() {
			regFile.WriteReg(0, 1)
			regFile.WriteReg(1, 0x9000)

			handler.Handle()

			var efault int64 = emu.EFAULT
			Expect(regFile.ReadReg(0)).To(Equal(uint64(-efault)))
			Expect(stdout.Len()).To(BeZero())
		})
	})
})
