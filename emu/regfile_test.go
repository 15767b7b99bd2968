package emu_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/S-YOU/nsemu/emu"
)

var _ = Describe("RegFile", func() {
	var r *emu.RegFile

	BeforeEach(func() {
		r = emu.NewRegFile(0x400000)
	})

	It("should reset to the entry point", func() {
		r.WriteReg(4, 9)
		r.PSTATE.C = true

		r.Reset(0x1000)

		Expect(r.PCValue()).To(Equal(uint64(0x1000)))
		Expect(r.ReadReg(4)).To(BeZero())
		Expect(r.PSTATE).To(Equal(emu.PSTATE{}))
		Expect(r.Written()).To(BeEmpty())
	})

	It("should reject indices past 31", func() {
		_, err := r.Read(32)

		var regErr *emu.RegisterError
		Expect(errors.As(err, &regErr)).To(BeTrue())
		Expect(regErr.Index).To(Equal(uint8(32)))
		Expect(r.Write(40, 1)).To(HaveOccurred())
	})

	It("should panic with a RegisterError on a bad role access", func() {
		Expect(func() { r.ReadAs(33, emu.RoleSP) }).To(PanicWith(&emu.RegisterError{Index: 33}))
	})

	It("should leave SetPC unconstrained", func() {
		r.SetPC(0x1002)

		Expect(r.PCValue()).To(Equal(uint64(0x1002)))
	})

	It("should share slot 31 between the SP and ZR roles", func() {
		r.WriteAs(31, emu.RoleSP, 0x9000)

		Expect(r.ReadAs(31, emu.RoleSP)).To(Equal(uint64(0x9000)))
		Expect(r.ReadAs(31, emu.RoleZR)).To(BeZero())
		Expect(r.Written()).To(Equal([]uint8{31}))
	})

	It("should discard zero-register writes", func() {
		r.SetSP(0x7000)

		r.WriteReg(31, 5)

		Expect(r.ReadAs(emu.SP, emu.RoleSP)).To(Equal(uint64(0x7000)))
		Expect(r.ReadReg(31)).To(BeZero())
		Expect(r.ReadAs(31, emu.RoleSP)).To(Equal(uint64(0x7000)))
	})

	It("should record written registers in ascending order", func() {
		r.WriteReg(9, 1)
		r.WriteReg(2, 1)
		r.WriteAs(31, emu.RoleSP, 1)
		r.WriteReg(31, 1)

		Expect(r.Written()).To(Equal([]uint8{2, 9, 31}))

		r.ClearWritten()
		Expect(r.Written()).To(BeEmpty())
	})

	Describe("PSTATE", func() {
		It("should pack and unpack NZCV", func() {
			var p emu.PSTATE
			p.SetNZCV(0b1010)

			Expect(p).To(Equal(emu.PSTATE{N: true, C: true}))
			Expect(p.NZCV()).To(Equal(uint8(0b1010)))
			Expect(p.String()).To(Equal("NzCv"))
		})
	})
})
