package emu

import "io"

// ARM64 Linux syscall numbers.
const (
	SyscallWrite     uint64 = 64 // write(fd, buf, count)
	SyscallExit      uint64 = 93 // exit(status)
	SyscallExitGroup uint64 = 94 // exit_group(status)
)

// Linux error codes.
const (
	EIO    = 5  // I/O error
	EBADF  = 9  // Bad file descriptor
	EFAULT = 14 // Bad address
	ENOSYS = 38 // Function not implemented
)

// maxWriteCount bounds a single write syscall.
const maxWriteCount = 1 << 20

// SyscallResult represents the result of a syscall execution.
type SyscallResult struct {
	// Exited is true if the syscall caused program termination.
	Exited bool

	// ExitCode is the exit status if Exited is true.
	ExitCode int64
}

// SyscallHandler is the interface for handling ARM64 syscalls.
type SyscallHandler interface {
	// Handle executes the syscall indicated by the register file state.
	// ARM64 Linux syscall convention:
	//   - Syscall number in X8
	//   - Arguments in X0-X5
	//   - Return value in X0
	Handle() SyscallResult
}

// DefaultSyscallHandler supports exit, exit_group and write to the
// configured stdout and stderr. Every other number returns -ENOSYS.
type DefaultSyscallHandler struct {
	regFile *RegFile
	memory  Memory
	stdout  io.Writer
	stderr  io.Writer
}

// NewDefaultSyscallHandler creates a default syscall handler.
func NewDefaultSyscallHandler(regFile *RegFile, memory Memory, stdout, stderr io.Writer) *DefaultSyscallHandler {
	return &DefaultSyscallHandler{
		regFile: regFile,
		memory:  memory,
		stdout:  stdout,
		stderr:  stderr,
	}
}

// Handle executes the syscall indicated by the register file state.
func (h *DefaultSyscallHandler) Handle() SyscallResult {
	switch h.regFile.ReadReg(8) {
	case SyscallWrite:
		return h.handleWrite()
	case SyscallExit, SyscallExitGroup:
		return SyscallResult{
			Exited:   true,
			ExitCode: int64(h.regFile.ReadReg(0)),
		}
	default:
		h.setError(ENOSYS)
		return SyscallResult{}
	}
}

// handleWrite handles the write syscall (64).
func (h *DefaultSyscallHandler) handleWrite() SyscallResult {
	fd := h.regFile.ReadReg(0)
	bufPtr := h.regFile.ReadReg(1)
	count := h.regFile.ReadReg(2)

	var writer io.Writer
	switch fd {
	case 1:
		writer = h.stdout
	case 2:
		writer = h.stderr
	default:
		h.setError(EBADF)
		return SyscallResult{}
	}

	if count > maxWriteCount {
		count = maxWriteCount
	}
	buf := make([]byte, count)
	for i := range buf {
		b, err := h.memory.Read(bufPtr+uint64(i), 1)
		if err != nil {
			h.setError(EFAULT)
			return SyscallResult{}
		}
		buf[i] = byte(b)
	}

	n, err := writer.Write(buf)
	if err != nil {
		h.setError(EIO)
		return SyscallResult{}
	}

	h.regFile.WriteReg(0, uint64(n))
	return SyscallResult{}
}

// setError sets X0 to -errno (as two's complement).
func (h *DefaultSyscallHandler) setError(errno int) {
	h.regFile.WriteReg(0, uint64(-int64(errno)))
}
