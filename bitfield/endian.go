package bitfield

// Swap16 reverses the byte order of a halfword.
func Swap16(b uint16) uint16 {
	return b<<8 | b>>8
}

// Swap32 reverses the byte order of a word.
func Swap32(b uint32) uint32 {
	return (b>>24)&0xff | (b<<8)&0xff0000 | (b>>8)&0xff00 | (b<<24)&0xff000000
}

// Swap64 reverses the byte order of a doubleword.
func Swap64(b uint64) uint64 {
	return (b&0x00000000000000ff)<<56 |
		(b&0x000000000000ff00)<<40 |
		(b&0x0000000000ff0000)<<24 |
		(b&0x00000000ff000000)<<8 |
		(b&0x000000ff00000000)>>8 |
		(b&0x0000ff0000000000)>>24 |
		(b&0x00ff000000000000)>>40 |
		(b&0xff00000000000000)>>56
}

// Word32 interprets the first four bytes of b as a word in the given byte
// order. It panics if b is shorter than four bytes.
func Word32(b []byte, bigEndian bool) uint32 {
	_ = b[3]
	w := uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
	if bigEndian {
		return Swap32(w)
	}
	return w
}
