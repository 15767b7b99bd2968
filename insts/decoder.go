package insts

import (
	"errors"
	"fmt"

	"github.com/S-YOU/nsemu/bitfield"
)

// Class is the top-level A64 instruction group selected by op0.
type Class uint8

// Instruction classes.
const (
	ClassUnallocated Class = iota
	ClassDPImm             // Data processing -- immediate
	ClassBranchSys         // Branches, exception generating and system
	ClassLoadStore         // Loads and stores
	ClassDPReg             // Data processing -- register
	ClassSIMDFP            // Data processing -- scalar FP and advanced SIMD
)

var classNames = [...]string{
	ClassUnallocated: "unallocated",
	ClassDPImm:       "data-processing immediate",
	ClassBranchSys:   "branch/exception/system",
	ClassLoadStore:   "load/store",
	ClassDPReg:       "data-processing register",
	ClassSIMDFP:      "simd/fp",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unallocated"
}

// ErrUnallocated is wrapped by every DecodeError.
var ErrUnallocated = errors.New("unallocated or unsupported encoding")

// DecodeError reports a word that cannot be executed.
type DecodeError struct {
	Word   uint32
	Class  Class
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode 0x%08X (%v): %s", e.Word, e.Class, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return ErrUnallocated
}

func unallocated(word uint32, class Class, format string, args ...any) error {
	return &DecodeError{Word: word, Class: class, Reason: fmt.Sprintf(format, args...)}
}

// classPatterns maps op0 (bits [28:25]) to a class. The first match wins.
var classPatterns = []struct {
	mask  uint32
	value uint32
	class Class
}{
	{0x1C000000, 0x10000000, ClassDPImm},     // 100x
	{0x1C000000, 0x14000000, ClassBranchSys}, // 101x
	{0x0A000000, 0x08000000, ClassLoadStore}, // x1x0
	{0x0E000000, 0x0A000000, ClassDPReg},     // x101
	{0x0E000000, 0x0E000000, ClassSIMDFP},    // x111
}

// Classify returns the instruction class of word. The reserved (0000),
// SVE (0010) and unallocated op0 groups return ClassUnallocated.
func Classify(word uint32) Class {
	for _, p := range classPatterns {
		if word&p.mask == p.value {
			return p.class
		}
	}
	return ClassUnallocated
}

// Decoder decodes A64 machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new A64 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit A64 instruction word. Unrecognized classes are
// rejected before any class decoder runs.
func (d *Decoder) Decode(word uint32) (*Instruction, error) {
	inst := &Instruction{Op: OpUnknown, Format: FormatUnknown, Word: word}

	var err error
	switch class := Classify(word); class {
	case ClassDPImm:
		err = d.decodeDPImm(word, inst)
	case ClassBranchSys:
		err = d.decodeBranchSys(word, inst)
	case ClassLoadStore:
		err = d.decodeLoadStore(word, inst)
	case ClassDPReg:
		err = d.decodeDPReg(word, inst)
	case ClassSIMDFP:
		err = unallocated(word, class, "scalar FP and SIMD are not implemented")
	default:
		err = unallocated(word, class, "op0=0b%04b", bitfield.Extract32(word, 25, 4))
	}
	if err != nil {
		return nil, err
	}

	return inst, nil
}

// field is shorthand for bitfield.Extract32 narrowed to a register index
// or other small field.
func field(word uint32, from, length int) uint8 {
	return uint8(bitfield.Extract32(word, from, length))
}

func bit(word uint32, n int) bool {
	return bitfield.Extract32(word, n, 1) == 1
}
