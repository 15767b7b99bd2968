package emu_test

import (
	"bytes"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/S-YOU/nsemu/emu"
)

var _ = Describe("Snapshot", func() {
	It("should render sixteen register lines, the pc and the flags", func() {
		r := emu.NewRegFile(0x1000)
		r.WriteReg(0, 0xDEAD)
		r.WriteReg(31, 1)
		r.SetSP(0x8000)
		r.PSTATE.Z = true

		lines := strings.Split(strings.TrimSuffix(r.Snapshot().String(), "\n"), "\n")

		Expect(lines).To(HaveLen(18))
		Expect(lines[0]).To(Equal("x00: 0x000000000000dead  x01: 0x0000000000000000"))
		Expect(lines[15]).To(Equal("x30: 0x0000000000000000  x31: 0x0000000000008000"))
		Expect(lines[16]).To(Equal("pc:  0x0000000000001000"))
		Expect(lines[17]).To(Equal("nzcv: nZcv"))
	})
})

var _ = Describe("Fault", func() {
	It("should describe itself and unwrap its cause", func() {
		cause := &emu.AlignmentError{PC: 0x1002}
		f := &emu.Fault{Kind: emu.FaultOperand, PC: 0x1002, Err: cause}

		Expect(f.Error()).To(Equal(
			"operand fault at pc 0x0000000000001002 (word 0x00000000): misaligned pc 0x0000000000001002"))
		Expect(errors.Is(f, cause)).To(BeTrue())
	})
})

var _ = Describe("LogSink", func() {
	var (
		out    *bytes.Buffer
		logger *logrus.Logger
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		logger = logrus.New()
		logger.SetOutput(out)
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	})

	It("should drop trace lines in release runs", func() {
		sink := emu.NewLogSink(logger, emu.RunLevelRelease)

		sink.Tracef("step %d", 1)

		Expect(sink.TraceEnabled()).To(BeFalse())
		Expect(out.Len()).To(BeZero())
	})

	It("should emit trace lines in debug runs", func() {
		sink := emu.NewLogSink(logger, emu.RunLevelDebug)

		sink.Tracef("step %d", 1)
		sink.TraceStep(emu.StepTrace{PC: 0x1000, Word: 0xD503201F, Op: "NOP"})

		Expect(sink.Level()).To(Equal(emu.RunLevelDebug))
		Expect(out.String()).To(ContainSubstring("step 1"))
		Expect(out.String()).To(ContainSubstring("op=NOP"))
		Expect(out.String()).To(ContainSubstring("pc=0x0000000000001000"))
	})

	It("should log the fault and the register dump", func() {
		sink := emu.NewLogSink(logger, emu.RunLevelRelease)
		state := emu.NewRegFile(0x2000).Snapshot()
		fault := &emu.Fault{Kind: emu.FaultMemory, PC: 0x2000, Err: errors.New("unmapped"), State: state}

		sink.Dump(state, fault)

		Expect(out.String()).To(ContainSubstring("level=error"))
		Expect(out.String()).To(ContainSubstring("kind=memory"))
		Expect(out.String()).To(ContainSubstring("pc:  0x0000000000002000"))
		Expect(strings.Count(out.String(), "level=error")).To(Equal(19))
	})

	It("should show the faulting word in memory order", func() {
		sink := emu.NewLogSink(logger, emu.RunLevelRelease)
		state := emu.NewRegFile(0x2000).Snapshot()
		fault := &emu.Fault{Kind: emu.FaultDecode, PC: 0x2000, Word: 0xD2800540, Err: errors.New("bad"), State: state}

		sink.Dump(state, fault)

		Expect(out.String()).To(ContainSubstring(`bytes="40 05 80 d2"`))
	})
})

var _ = Describe("HexDump", func() {
	It("should print fifteen bytes per line", func() {
		data := make([]byte, 16)
		for i := range data {
			data[i] = byte(i)
		}
		var buf bytes.Buffer

		Expect(emu.HexDump(&buf, data)).To(Succeed())

		Expect(buf.String()).To(Equal(
			"00 01 02 03 04 05 06 07 08 09 0a 0b 0c 0d 0e\n0f\n"))
	})

	It("should print nothing for no data", func() {
		var buf bytes.Buffer

		Expect(emu.HexDump(&buf, nil)).To(Succeed())
		Expect(buf.Len()).To(BeZero())
	})
})
