package bitfield

// Replicate64 copies the pattern held in the low width bits of mask upward
// until all 64 bits are filled, doubling the element width each step. width
// must be non-zero; callers pass architecture element sizes (2..64) that
// divide 64.
func Replicate64(mask uint64, width int) uint64 {
	if width <= 0 {
		panic(&RangeError{Func: "Replicate64", From: 0, Length: width, Width: 64})
	}
	for width < 64 {
		mask |= mask << uint(width)
		width *= 2
	}
	return mask
}
