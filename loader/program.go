package loader

import (
	"fmt"
	"sort"

	"github.com/S-YOU/nsemu/emu"
)

// Initial stack placement for loaded programs.
const (
	DefaultStackTop  = 0x7ffffffff000
	DefaultStackSize = 8 << 20
)

// SegmentFlags is the R/W/X protection of a segment.
type SegmentFlags uint32

// Protection bits.
const (
	SegmentFlagExecute SegmentFlags = 1 << iota
	SegmentFlagWrite
	SegmentFlagRead
)

// Perm converts the flags to page permissions.
func (f SegmentFlags) Perm() emu.Perm {
	var p emu.Perm
	if f&SegmentFlagRead != 0 {
		p |= emu.PermRead
	}
	if f&SegmentFlagWrite != 0 {
		p |= emu.PermWrite
	}
	if f&SegmentFlagExecute != 0 {
		p |= emu.PermExec
	}
	return p
}

// Segment is one contiguous piece of the image. Data holds the bytes from
// the file; MemSize may exceed len(Data), and the rest reads as zero.
type Segment struct {
	VirtAddr uint64
	Data     []byte
	MemSize  uint64
	Flags    SegmentFlags
}

// Program is a parsed image: where to start, what to map, and where the
// stack pointer begins.
type Program struct {
	EntryPoint uint64
	Segments   []Segment
	InitialSP  uint64
}

// MapInto maps every segment into mem with its permissions, copies the file
// data and leaves the rest of each segment zeroed. Pages shared by two
// segments get the union of their permissions. A stack of stackSize bytes
// is mapped read-write just below InitialSP; a zero stackSize maps none.
func (p *Program) MapInto(mem *emu.SparseMemory, stackSize uint64) error {
	pages := make(map[uint64]emu.Perm)
	for _, seg := range p.Segments {
		if seg.MemSize == 0 {
			continue
		}
		last := seg.VirtAddr + seg.MemSize - 1
		if last < seg.VirtAddr {
			return fmt.Errorf("segment at 0x%x wraps the address space", seg.VirtAddr)
		}
		for base := seg.VirtAddr &^ (emu.PageSize - 1); ; base += emu.PageSize {
			pages[base] |= seg.Flags.Perm()
			if base == last&^(emu.PageSize-1) {
				break
			}
		}
	}

	if err := mapRuns(mem, pages); err != nil {
		return err
	}

	for _, seg := range p.Segments {
		if err := mem.LoadBytes(seg.VirtAddr, seg.Data); err != nil {
			return fmt.Errorf("failed to copy segment at 0x%x: %w", seg.VirtAddr, err)
		}
	}

	if stackSize == 0 {
		return nil
	}
	if stackSize > p.InitialSP {
		return fmt.Errorf("stack of 0x%x bytes does not fit below 0x%x", stackSize, p.InitialSP)
	}
	if err := mem.Map(p.InitialSP-stackSize, stackSize, emu.PermRW); err != nil {
		return fmt.Errorf("failed to map stack: %w", err)
	}
	return nil
}

// mapRuns maps contiguous pages with equal permissions as one region.
func mapRuns(mem *emu.SparseMemory, pages map[uint64]emu.Perm) error {
	bases := make([]uint64, 0, len(pages))
	for base := range pages {
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })

	for i := 0; i < len(bases); {
		start, perm := bases[i], pages[bases[i]]
		j := i + 1
		for j < len(bases) && bases[j] == bases[j-1]+emu.PageSize && pages[bases[j]] == perm {
			j++
		}
		size := uint64(j-i) * emu.PageSize
		if err := mem.Map(start, size, perm); err != nil {
			return fmt.Errorf("failed to map 0x%x (%v): %w", start, perm, err)
		}
		i = j
	}
	return nil
}
