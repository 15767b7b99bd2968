package emu

import (
	"github.com/S-YOU/nsemu/insts"
)

// address returns the access address and the written-back base for a
// single-register load/store.
func (e *Emulator) address(inst *insts.Instruction) (addr, writeback uint64) {
	base := e.regFile.ReadAs(inst.Rn, RoleSP)

	switch inst.IndexMode {
	case insts.IndexUnsigned:
		addr = base + inst.Imm
	case insts.IndexUnscaled, insts.IndexSigned:
		addr = base + uint64(inst.SignedImm)
	case insts.IndexPre:
		addr = base + uint64(inst.SignedImm)
		writeback = addr
	case insts.IndexPost:
		addr = base
		writeback = base + uint64(inst.SignedImm)
	case insts.IndexRegOffset:
		offset := extendValue(e.regFile.ReadAs(inst.Rm, RoleZR), inst.Extend, inst.ShiftAmount, true)
		addr = base + offset
	}
	return addr, writeback
}

// loadValue extends a loaded value to the destination width.
func loadValue(inst *insts.Instruction, raw uint64) uint64 {
	if inst.Signed {
		raw = signExtend(raw, int(inst.Size)*8)
	}
	return raw & widthMask(inst.Is64Bit)
}

// executeLoadStore executes LDR/LDRS/STR/PRFM.
func (e *Emulator) executeLoadStore(inst *insts.Instruction) (effect, error) {
	if inst.Op == insts.OpPRFM {
		return effect{}, nil
	}

	addr, writeback := e.address(inst)
	size := int(inst.Size)

	switch inst.Op {
	case insts.OpSTR:
		value := e.regFile.ReadAs(inst.Rd, RoleZR)
		if err := e.memory.Check(addr, size, AccessWrite); err != nil {
			return effect{}, err
		}
		if err := e.memory.Write(addr, size, value); err != nil {
			return effect{}, err
		}
	default:
		raw, err := e.memory.Read(addr, size)
		if err != nil {
			return effect{}, err
		}
		e.regFile.WriteAs(inst.Rd, RoleZR, loadValue(inst, raw))
	}

	if inst.Writeback() {
		e.regFile.WriteAs(inst.Rn, RoleSP, writeback)
	}
	return effect{}, nil
}

// executeLoadStorePair executes LDP/STP/LDPSW.
func (e *Emulator) executeLoadStorePair(inst *insts.Instruction) (effect, error) {
	addr, writeback := e.address(inst)
	size := int(inst.Size)
	second := addr + uint64(size)

	if inst.Op == insts.OpSTP {
		v1 := e.regFile.ReadAs(inst.Rd, RoleZR)
		v2 := e.regFile.ReadAs(inst.Rt2, RoleZR)
		for _, a := range [2]uint64{addr, second} {
			if err := e.memory.Check(a, size, AccessWrite); err != nil {
				return effect{}, err
			}
		}
		if err := e.memory.Write(addr, size, v1); err != nil {
			return effect{}, err
		}
		if err := e.memory.Write(second, size, v2); err != nil {
			return effect{}, err
		}
	} else {
		raw1, err := e.memory.Read(addr, size)
		if err != nil {
			return effect{}, err
		}
		raw2, err := e.memory.Read(second, size)
		if err != nil {
			return effect{}, err
		}
		e.regFile.WriteAs(inst.Rd, RoleZR, loadValue(inst, raw1))
		e.regFile.WriteAs(inst.Rt2, RoleZR, loadValue(inst, raw2))
	}

	if inst.Writeback() {
		e.regFile.WriteAs(inst.Rn, RoleSP, writeback)
	}
	return effect{}, nil
}

// executeLoadLiteral executes LDR/LDRSW (literal). PRFM (literal) is a
// no-op.
func (e *Emulator) executeLoadLiteral(inst *insts.Instruction) (effect, error) {
	if inst.Op == insts.OpPRFM {
		return effect{}, nil
	}

	addr := uint64(int64(e.regFile.PC) + inst.BranchOffset)
	raw, err := e.memory.Read(addr, int(inst.Size))
	if err != nil {
		return effect{}, err
	}
	e.regFile.WriteAs(inst.Rd, RoleZR, loadValue(inst, raw))
	return effect{}, nil
}
