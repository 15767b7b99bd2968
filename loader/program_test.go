package loader_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/S-YOU/nsemu/emu"
	"github.com/S-YOU/nsemu/loader"
)

var _ = Describe("LoadRaw", func() {
	var tempDir string

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
	})

	It("should load a flat image as one read-execute segment", func() {
		path := filepath.Join(tempDir, "prog.bin")
		Expect(os.WriteFile(path, []byte{0x1F, 0x20, 0x03, 0xD5}, 0644)).To(Succeed())

		prog, err := loader.LoadRaw(path, 0x10000)

		Expect(err).NotTo(HaveOccurred())
		Expect(prog.EntryPoint).To(Equal(uint64(0x10000)))
		Expect(prog.Segments).To(HaveLen(1))
		Expect(prog.Segments[0].Flags.Perm()).To(Equal(emu.PermRX))
		Expect(prog.Segments[0].MemSize).To(Equal(uint64(4)))
	})

	It("should reject an empty image", func() {
		path := filepath.Join(tempDir, "empty.bin")
		Expect(os.WriteFile(path, nil, 0644)).To(Succeed())

		_, err := loader.LoadRaw(path, 0x10000)
		Expect(err).To(MatchError(ContainSubstring("empty")))
	})

	It("should reject a misaligned load address", func() {
		path := filepath.Join(tempDir, "prog.bin")
		Expect(os.WriteFile(path, []byte{0, 0, 0, 0}, 0644)).To(Succeed())

		_, err := loader.LoadRaw(path, 0x10002)
		Expect(err).To(MatchError(ContainSubstring("aligned")))
	})

	It("should report a missing file", func() {
		_, err := loader.LoadRaw(filepath.Join(tempDir, "missing.bin"), 0)
		Expect(err).To(MatchError(os.ErrNotExist))
	})
})

var _ = Describe("Program.MapInto", func() {
	var mem *emu.SparseMemory

	BeforeEach(func() {
		mem = emu.NewSparseMemory()
	})

	It("should map segments with their permissions and zero the BSS", func() {
		prog := &loader.Program{
			EntryPoint: 0x400000,
			InitialSP:  0x800000,
			Segments: []loader.Segment{
				{VirtAddr: 0x400000, Data: []byte{1, 2, 3, 4}, MemSize: 4,
					Flags: loader.SegmentFlagRead | loader.SegmentFlagExecute},
				{VirtAddr: 0x600000, Data: []byte{5}, MemSize: 0x2000,
					Flags: loader.SegmentFlagRead | loader.SegmentFlagWrite},
			},
		}

		Expect(prog.MapInto(mem, 0x1000)).To(Succeed())

		Expect(mem.ReadWord32(0x400000)).To(Equal(uint32(0x04030201)))
		Expect(mem.Check(0x400000, 4, emu.AccessWrite)).To(HaveOccurred())
		Expect(mem.Read(0x600000, 1)).To(Equal(uint64(5)))
		Expect(mem.Read(0x601FF8, 8)).To(BeZero())
		Expect(mem.Check(0x600000, 1, emu.AccessExec)).To(HaveOccurred())

		regions := mem.Regions()
		Expect(regions).To(HaveLen(3))
		Expect(regions[1]).To(Equal(emu.Region{Start: 0x600000, Size: 0x2000, Perm: emu.PermRW}))
		Expect(regions[2]).To(Equal(emu.Region{Start: 0x7FF000, Size: 0x1000, Perm: emu.PermRW}))
	})

	It("should merge permissions of segments sharing a page", func() {
		prog := &loader.Program{
			Segments: []loader.Segment{
				{VirtAddr: 0x400000, Data: []byte{1}, MemSize: 1,
					Flags: loader.SegmentFlagRead | loader.SegmentFlagExecute},
				{VirtAddr: 0x400800, Data: []byte{2}, MemSize: 1,
					Flags: loader.SegmentFlagRead | loader.SegmentFlagWrite},
			},
		}

		Expect(prog.MapInto(mem, 0)).To(Succeed())

		Expect(mem.Regions()).To(Equal([]emu.Region{{Start: 0x400000, Size: emu.PageSize, Perm: emu.PermRWX}}))
		Expect(mem.Read(0x400800, 1)).To(Equal(uint64(2)))
	})

	It("should reject a stack larger than the space below it", func() {
		prog := &loader.Program{InitialSP: 0x1000}

		Expect(prog.MapInto(mem, 0x2000)).NotTo(Succeed())
	})
})
