package emu

import (
	"github.com/S-YOU/nsemu/bitfield"
	"github.com/S-YOU/nsemu/insts"
)

// CheckCondition evaluates an ARM64 condition code against the flags.
func CheckCondition(pstate PSTATE, cond insts.Cond) bool {
	switch cond {
	case insts.CondEQ:
		// Equal: Z == 1
		return pstate.Z
	case insts.CondNE:
		// Not Equal: Z == 0
		return !pstate.Z
	case insts.CondCS:
		// Carry Set / Unsigned higher or same: C == 1
		return pstate.C
	case insts.CondCC:
		// Carry Clear / Unsigned lower: C == 0
		return !pstate.C
	case insts.CondMI:
		return pstate.N
	case insts.CondPL:
		return !pstate.N
	case insts.CondVS:
		return pstate.V
	case insts.CondVC:
		return !pstate.V
	case insts.CondHI:
		// Unsigned higher: C == 1 && Z == 0
		return pstate.C && !pstate.Z
	case insts.CondLS:
		// Unsigned lower or same: C == 0 || Z == 1
		return !pstate.C || pstate.Z
	case insts.CondGE:
		return pstate.N == pstate.V
	case insts.CondLT:
		return pstate.N != pstate.V
	case insts.CondGT:
		// Signed greater than: Z == 0 && N == V
		return !pstate.Z && (pstate.N == pstate.V)
	case insts.CondLE:
		// Signed less than or equal: Z == 1 || N != V
		return pstate.Z || (pstate.N != pstate.V)
	default:
		// AL and NV
		return true
	}
}

// branchTo redirects the PC relative to the current instruction.
func (e *Emulator) branchTo(offset int64) effect {
	e.regFile.SetPC(uint64(int64(e.regFile.PC) + offset))
	return effect{branched: true}
}

// executeBranch executes B and BL.
func (e *Emulator) executeBranch(inst *insts.Instruction) (effect, error) {
	if inst.Op == insts.OpBL {
		e.regFile.WriteAs(LR, RoleZR, e.regFile.PC+4)
	}
	return e.branchTo(inst.BranchOffset), nil
}

// executeBranchCond executes B.cond.
func (e *Emulator) executeBranchCond(inst *insts.Instruction) (effect, error) {
	if !CheckCondition(e.regFile.PSTATE, inst.Cond) {
		return effect{}, nil
	}
	return e.branchTo(inst.BranchOffset), nil
}

// executeCompareBranch executes CBZ and CBNZ.
func (e *Emulator) executeCompareBranch(inst *insts.Instruction) (effect, error) {
	isZero := e.regFile.ReadAs(inst.Rd, RoleZR)&widthMask(inst.Is64Bit) == 0
	if isZero != (inst.Op == insts.OpCBZ) {
		return effect{}, nil
	}
	return e.branchTo(inst.BranchOffset), nil
}

// executeTestBranch executes TBZ and TBNZ.
func (e *Emulator) executeTestBranch(inst *insts.Instruction) (effect, error) {
	bitSet := bitfield.Extract64(e.regFile.ReadAs(inst.Rd, RoleZR), int(inst.BitNum), 1) == 1
	if bitSet != (inst.Op == insts.OpTBNZ) {
		return effect{}, nil
	}
	return e.branchTo(inst.BranchOffset), nil
}

// executeBranchReg executes BR, BLR and RET. The target is read before
// the link register is written, so BLR X30 branches to the old X30.
func (e *Emulator) executeBranchReg(inst *insts.Instruction) (effect, error) {
	target := e.regFile.ReadAs(inst.Rn, RoleZR)
	if inst.Op == insts.OpBLR {
		e.regFile.WriteAs(LR, RoleZR, e.regFile.PC+4)
	}
	e.regFile.SetPC(target)
	return effect{branched: true}, nil
}
