// Package bitfield provides the bit-range primitives every A64 decode step is
// built on: extraction, sign extension, bit counting, masks and byte order.
//
// The range-checked functions are only ever called with offsets taken from
// the architecture manual, so a violated precondition is a programming error.
// It panics with a *RangeError rather than returning an error.
package bitfield

import (
	"fmt"
	"math/bits"
)

// RangeError reports a bit range that does not fit in the source word.
type RangeError struct {
	Func   string
	From   int
	Length int
	Width  int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("bitfield: %s: range from=%d length=%d does not fit in %d bits",
		e.Func, e.From, e.Length, e.Width)
}

func checkRange(fn string, from, length, width int) {
	if from < 0 || length <= 0 || from+length > width {
		panic(&RangeError{Func: fn, From: from, Length: length, Width: width})
	}
}

// Extract32 returns the length-bit unsigned field starting at bit from.
func Extract32(field uint32, from, length int) uint32 {
	checkRange("Extract32", from, length, 32)
	return (field >> uint(from)) & (^uint32(0) >> uint(32-length))
}

// Extract64 is the 64-bit form of Extract32.
func Extract64(field uint64, from, length int) uint64 {
	checkRange("Extract64", from, length, 64)
	return (field >> uint(from)) & (^uint64(0) >> uint(64-length))
}

// SignedExtract32 extracts a field and sign-extends it from bit
// from+length-1.
func SignedExtract32(field uint32, from, length int) int32 {
	checkRange("SignedExtract32", from, length, 32)
	return int32(field<<uint(32-from-length)) >> uint(32-length)
}

// SignedExtract64 is the 64-bit form of SignedExtract32.
func SignedExtract64(field uint64, from, length int) int64 {
	checkRange("SignedExtract64", from, length, 64)
	return int64(field<<uint(64-from-length)) >> uint(64-length)
}

// CountLeadingZeros32 returns 32 for a zero input.
func CountLeadingZeros32(field uint32) int {
	return bits.LeadingZeros32(field)
}

// CountLeadingZeros64 returns 64 for a zero input.
func CountLeadingZeros64(field uint64) int {
	return bits.LeadingZeros64(field)
}

// CountTrailingZeros32 returns 32 for a zero input.
func CountTrailingZeros32(field uint32) int {
	return bits.TrailingZeros32(field)
}

// CountTrailingZeros64 returns 64 for a zero input.
func CountTrailingZeros64(field uint64) int {
	return bits.TrailingZeros64(field)
}

// Mask64 returns a value with the bottom length bits set, 1 <= length <= 64.
func Mask64(length int) uint64 {
	if length <= 0 || length > 64 {
		panic(&RangeError{Func: "Mask64", From: 0, Length: length, Width: 64})
	}
	return ^uint64(0) >> uint(64-length)
}

// RotateRight rotates the low width bits of value right by amount.
// Bits above width are discarded.
func RotateRight(value uint64, amount, width int) uint64 {
	mask := Mask64(width)
	value &= mask
	amount %= width
	if amount == 0 {
		return value
	}
	return ((value >> uint(amount)) | (value << uint(width-amount))) & mask
}
