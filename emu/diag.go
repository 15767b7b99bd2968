package emu

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// RunLevel selects how much the diagnostics sink emits.
type RunLevel uint8

// Run levels.
const (
	RunLevelRelease RunLevel = iota
	RunLevelDebug
)

func (l RunLevel) String() string {
	if l == RunLevelDebug {
		return "debug"
	}
	return "release"
}

// Sink receives trace lines and fault dumps from the engine.
type Sink interface {
	// Tracef emits a trace line. Sinks drop it outside debug runs.
	Tracef(format string, args ...any)

	// Dump reports a fault together with the CPU state at the fault.
	Dump(state Snapshot, fault *Fault)
}

// StepTrace describes one completed cycle.
type StepTrace struct {
	PC      uint64
	Word    uint32
	Op      string
	Written []uint8
}

// StepTracer is implemented by sinks that want structured per-cycle
// traces. The engine only builds a StepTrace when the sink asks for it.
type StepTracer interface {
	TraceEnabled() bool
	TraceStep(t StepTrace)
}

// LogSink is a Sink backed by a logrus logger.
type LogSink struct {
	logger *logrus.Logger
	level  RunLevel
}

// NewLogSink creates a sink writing to logger. At RunLevelDebug the logger
// is raised to debug level so that trace lines are emitted.
func NewLogSink(logger *logrus.Logger, level RunLevel) *LogSink {
	if level == RunLevelDebug && !logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.SetLevel(logrus.DebugLevel)
	}
	return &LogSink{logger: logger, level: level}
}

// Level returns the run level the sink was built with.
func (s *LogSink) Level() RunLevel {
	return s.level
}

// Tracef emits a debug line in debug runs.
func (s *LogSink) Tracef(format string, args ...any) {
	if s.level < RunLevelDebug {
		return
	}
	s.logger.Debugf(format, args...)
}

// TraceEnabled reports whether per-cycle traces are wanted.
func (s *LogSink) TraceEnabled() bool {
	return s.level >= RunLevelDebug
}

// TraceStep logs one cycle with structured fields.
func (s *LogSink) TraceStep(t StepTrace) {
	fields := logrus.Fields{
		"pc":   fmt.Sprintf("0x%016x", t.PC),
		"word": fmt.Sprintf("0x%08x", t.Word),
		"op":   t.Op,
	}
	if len(t.Written) > 0 {
		fields["written"] = registerNames(t.Written)
	}
	s.logger.WithFields(fields).Debug("CPU Step")
}

// Dump logs the fault at error level, with the raw bytes of the faulting
// word, followed by one error entry per snapshot line.
func (s *LogSink) Dump(state Snapshot, fault *Fault) {
	entry := s.logger.WithFields(logrus.Fields{
		"kind":  fault.Kind.String(),
		"pc":    fmt.Sprintf("0x%016x", fault.PC),
		"word":  fmt.Sprintf("0x%08x", fault.Word),
		"bytes": wordBytes(fault.Word),
	})
	entry.Error(fault.Err)

	for _, line := range strings.Split(strings.TrimSuffix(state.String(), "\n"), "\n") {
		s.logger.Error(line)
	}
}

// wordBytes renders an instruction word in memory order.
func wordBytes(word uint32) string {
	var b strings.Builder
	_ = HexDump(&b, []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)})
	return strings.TrimSuffix(b.String(), "\n")
}

// DiscardSink drops everything.
type DiscardSink struct{}

// Tracef drops the line.
func (DiscardSink) Tracef(string, ...any) {}

// Dump drops the dump.
func (DiscardSink) Dump(Snapshot, *Fault) {}

func registerNames(indices []uint8) []string {
	names := make([]string, len(indices))
	for i, idx := range indices {
		names[i] = fmt.Sprintf("x%d", idx)
	}
	return names
}

// hexDumpLine is the number of bytes HexDump prints per line.
const hexDumpLine = 15

// HexDump writes data as space-separated hex bytes, fifteen per line. The
// last line is newline-terminated.
func HexDump(w io.Writer, data []byte) error {
	for i, b := range data {
		sep := " "
		if (i+1)%hexDumpLine == 0 || i == len(data)-1 {
			sep = "\n"
		}
		if _, err := fmt.Fprintf(w, "%02x%s", b, sep); err != nil {
			return err
		}
	}
	return nil
}
