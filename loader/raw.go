package loader

import (
	"fmt"
	"os"
)

// LoadRaw reads a flat binary image that is loaded at base and entered at
// its first byte. The image is mapped read-execute.
func LoadRaw(path string, base uint64) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("raw image %s is empty", path)
	}
	if base&3 != 0 {
		return nil, fmt.Errorf("load address 0x%x is not 4-byte aligned", base)
	}
	if base+uint64(len(data)) < base {
		return nil, fmt.Errorf("raw image of %d bytes at 0x%x wraps the address space", len(data), base)
	}

	return &Program{
		EntryPoint: base,
		InitialSP:  DefaultStackTop,
		Segments: []Segment{{
			VirtAddr: base,
			Data:     data,
			MemSize:  uint64(len(data)),
			Flags:    SegmentFlagRead | SegmentFlagExecute,
		}},
	}, nil
}
