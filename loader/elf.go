// Package loader reads AArch64 program images and maps them into emulator
// memory.
package loader

import (
	"debug/elf"
	"fmt"
	"io"
)

// Load reads a little-endian ELF64 AArch64 executable. Every PT_LOAD header
// becomes one Segment, in file order; other program headers are ignored.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := checkHeader(&f.FileHeader); err != nil {
		return nil, err
	}

	prog := &Program{EntryPoint: f.Entry, InitialSP: DefaultStackTop}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		seg, err := readSegment(p)
		if err != nil {
			return nil, err
		}
		prog.Segments = append(prog.Segments, seg)
	}
	return prog, nil
}

func checkHeader(h *elf.FileHeader) error {
	switch {
	case h.Class != elf.ELFCLASS64:
		return fmt.Errorf("not a 64-bit ELF file (class: %v)", h.Class)
	case h.Data != elf.ELFDATA2LSB:
		return fmt.Errorf("not a little-endian ELF file (data: %v)", h.Data)
	case h.Machine != elf.EM_AARCH64:
		return fmt.Errorf("not an ARM64 ELF file (machine type: %v)", h.Machine)
	}
	return nil
}

// readSegment copies the file-backed part of a PT_LOAD header. The tail up
// to Memsz is left for MapInto to zero.
func readSegment(p *elf.Prog) (Segment, error) {
	seg := Segment{VirtAddr: p.Vaddr, MemSize: p.Memsz, Flags: flagsOf(p.Flags)}
	if p.Filesz > p.Memsz {
		return seg, fmt.Errorf("segment at 0x%x: file size 0x%x exceeds memory size 0x%x",
			p.Vaddr, p.Filesz, p.Memsz)
	}

	seg.Data = make([]byte, p.Filesz)
	n, err := io.ReadFull(p.Open(), seg.Data)
	if err != nil {
		return seg, fmt.Errorf("segment at 0x%x: read %d of %d bytes: %w", p.Vaddr, n, p.Filesz, err)
	}
	return seg, nil
}

var elfFlags = []struct {
	elf elf.ProgFlag
	seg SegmentFlags
}{
	{elf.PF_R, SegmentFlagRead},
	{elf.PF_W, SegmentFlagWrite},
	{elf.PF_X, SegmentFlagExecute},
}

func flagsOf(pf elf.ProgFlag) SegmentFlags {
	var flags SegmentFlags
	for _, m := range elfFlags {
		if pf&m.elf != 0 {
			flags |= m.seg
		}
	}
	return flags
}
