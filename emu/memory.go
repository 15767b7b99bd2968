package emu

import (
	"fmt"
	"sort"
)

// Access is the kind of memory access being performed.
type Access uint8

// Memory access kinds.
const (
	AccessRead Access = iota
	AccessWrite
	AccessExec
)

func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessExec:
		return "exec"
	default:
		return fmt.Sprintf("access(%d)", uint8(a))
	}
}

// Perm is a set of region permissions.
type Perm uint8

// Region permissions.
const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec

	PermRW  = PermRead | PermWrite
	PermRX  = PermRead | PermExec
	PermRWX = PermRead | PermWrite | PermExec
)

func (p Perm) String() string {
	flags := []byte("---")
	if p&PermRead != 0 {
		flags[0] = 'r'
	}
	if p&PermWrite != 0 {
		flags[1] = 'w'
	}
	if p&PermExec != 0 {
		flags[2] = 'x'
	}
	return string(flags)
}

func (p Perm) allows(a Access) bool {
	switch a {
	case AccessRead:
		return p&PermRead != 0
	case AccessWrite:
		return p&PermWrite != 0
	case AccessExec:
		return p&PermExec != 0
	}
	return false
}

// MemoryError reports a failed memory access.
type MemoryError struct {
	Addr   uint64
	Size   int
	Access Access
	Reason string
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("%v of %d bytes at 0x%016x: %s", e.Access, e.Size, e.Addr, e.Reason)
}

// Memory is the memory-access collaborator of the engine. All multi-byte
// values are little-endian. Size is in bytes and is one of 1, 2, 4 or 8.
type Memory interface {
	// ReadWord32 fetches an instruction word.
	ReadWord32(addr uint64) (uint32, error)

	// Read loads size bytes as an unsigned value.
	Read(addr uint64, size int) (uint64, error)

	// Write stores the low size bytes of value.
	Write(addr uint64, size int, value uint64) error

	// Check reports whether the access would succeed without performing it.
	Check(addr uint64, size int, access Access) error
}

// PageSize is the granule of SparseMemory mappings.
const PageSize = 4096

const pageMask = PageSize - 1

type page struct {
	data [PageSize]byte
	perm Perm
}

// Region is one mapped address range.
type Region struct {
	Start uint64
	Size  uint64
	Perm  Perm
}

// End returns the first address after the region.
func (r Region) End() uint64 {
	return r.Start + r.Size
}

// SparseMemory is a paged little-endian memory in which only mapped pages
// exist. Accesses to unmapped or permission-denied addresses fail.
type SparseMemory struct {
	pages   map[uint64]*page
	regions []Region
}

// NewSparseMemory creates an empty memory.
func NewSparseMemory() *SparseMemory {
	return &SparseMemory{
		pages: make(map[uint64]*page),
	}
}

// Map makes [addr, addr+size) accessible with perm, rounded out to whole
// pages. Mapping an already mapped page replaces its permissions and keeps
// its contents.
func (m *SparseMemory) Map(addr, size uint64, perm Perm) error {
	if size == 0 {
		return fmt.Errorf("map 0x%x: empty region", addr)
	}
	last := addr + size - 1
	if last < addr {
		return fmt.Errorf("map 0x%x+0x%x: region wraps the address space", addr, size)
	}

	for base := addr &^ pageMask; ; base += PageSize {
		p, ok := m.pages[base]
		if !ok {
			p = &page{}
			m.pages[base] = p
		}
		p.perm = perm
		if base == last&^pageMask {
			break
		}
	}

	m.regions = append(m.regions, Region{Start: addr, Size: size, Perm: perm})
	return nil
}

// Regions returns the mappings in ascending address order.
func (m *SparseMemory) Regions() []Region {
	out := make([]Region, len(m.regions))
	copy(out, m.regions)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// LoadBytes copies data to addr regardless of permissions. Every byte must
// be mapped.
func (m *SparseMemory) LoadBytes(addr uint64, data []byte) error {
	for i := range data {
		a := addr + uint64(i)
		p, ok := m.pages[a&^pageMask]
		if !ok {
			return &MemoryError{Addr: a, Size: 1, Access: AccessWrite, Reason: "unmapped"}
		}
		p.data[a&pageMask] = data[i]
	}
	return nil
}

// ReadBytes copies n readable bytes starting at addr.
func (m *SparseMemory) ReadBytes(addr uint64, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		b, err := m.Read(addr+uint64(i), 1)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}

// Check reports whether every byte of the access is mapped with the
// required permission.
func (m *SparseMemory) Check(addr uint64, size int, access Access) error {
	if !validSize(size) {
		return &MemoryError{Addr: addr, Size: size, Access: access, Reason: "invalid access size"}
	}
	for i := 0; i < size; i++ {
		a := addr + uint64(i)
		p, ok := m.pages[a&^pageMask]
		if !ok {
			return &MemoryError{Addr: addr, Size: size, Access: access, Reason: "unmapped"}
		}
		if !p.perm.allows(access) {
			return &MemoryError{Addr: addr, Size: size, Access: access,
				Reason: fmt.Sprintf("permission denied (%v)", p.perm)}
		}
	}
	return nil
}

// ReadWord32 fetches an instruction word from executable memory.
func (m *SparseMemory) ReadWord32(addr uint64) (uint32, error) {
	v, err := m.access(addr, 4, AccessExec)
	return uint32(v), err
}

// Read loads size bytes from readable memory.
func (m *SparseMemory) Read(addr uint64, size int) (uint64, error) {
	return m.access(addr, size, AccessRead)
}

// Write stores the low size bytes of value into writable memory. Nothing is
// written unless the whole range is writable.
func (m *SparseMemory) Write(addr uint64, size int, value uint64) error {
	if err := m.Check(addr, size, AccessWrite); err != nil {
		return err
	}
	for i := 0; i < size; i++ {
		a := addr + uint64(i)
		m.pages[a&^pageMask].data[a&pageMask] = byte(value >> (8 * i))
	}
	return nil
}

func (m *SparseMemory) access(addr uint64, size int, access Access) (uint64, error) {
	if err := m.Check(addr, size, access); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < size; i++ {
		a := addr + uint64(i)
		v |= uint64(m.pages[a&^pageMask].data[a&pageMask]) << (8 * i)
	}
	return v, nil
}

func validSize(size int) bool {
	return size == 1 || size == 2 || size == 4 || size == 8
}
