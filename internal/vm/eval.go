package vm

import (
	"abilower/internal/ir"
)

// run executes frame until it returns or fails.
func (vm *VM) run(f *Frame) ([]uint64, *VMError) {
	for {
		inst := f.CurrentInst()
		if inst == nil {
			return nil, vm.eb.unimplemented("fell off the end of " + f.Block.String())
		}
		switch inst.Op {
		case ir.OpReturn:
			out := make([]uint64, len(inst.Args))
			for i, a := range inst.Args {
				out[i] = f.get(a)
			}
			return out, nil
		case ir.OpTrap:
			return nil, vm.eb.trap(inst.Trap)
		case ir.OpJump:
			f.jump(inst.Dest, vm.args(f, inst.Args))
			continue
		case ir.OpBrTable:
			jt := &f.Func.Tables[inst.Table]
			idx := f.get(inst.Args[0])
			dest := jt.Default
			if idx < uint64(len(jt.Targets)) {
				dest = jt.Targets[idx]
			}
			f.jump(dest, nil)
			continue
		}
		if err := vm.step(f, inst); err != nil {
			return nil, err
		}
		f.IP++
	}
}

func (vm *VM) args(f *Frame, vals []ir.Value) []uint64 {
	out := make([]uint64, len(vals))
	for i, v := range vals {
		out[i] = f.get(v)
	}
	return out
}

// step executes one non-terminator instruction.
func (vm *VM) step(f *Frame, inst *ir.Inst) *VMError {
	switch inst.Op {
	case ir.OpIconst:
		f.set(inst.Results[0], uint64(inst.Imm))
	case ir.OpIadd:
		f.set(inst.Results[0], f.get(inst.Args[0])+f.get(inst.Args[1]))
	case ir.OpIsub:
		f.set(inst.Results[0], f.get(inst.Args[0])-f.get(inst.Args[1]))
	case ir.OpImul:
		f.set(inst.Results[0], f.get(inst.Args[0])*f.get(inst.Args[1]))
	case ir.OpIaddImm:
		f.set(inst.Results[0], f.get(inst.Args[0])+uint64(inst.Imm))
	case ir.OpSextend:
		src := f.Func.ValueType(inst.Args[0])
		f.set(inst.Results[0], signExtend(f.get(inst.Args[0]), src))
	case ir.OpUextend, ir.OpIreduce:
		f.set(inst.Results[0], f.get(inst.Args[0]))
	case ir.OpLoad:
		addr := f.get(inst.Args[0]) + uint64(int64(inst.Offset))
		v, ok := vm.mem.load(addr, inst.Type)
		if !ok {
			return vm.eb.outOfBounds(addr, inst.Type.Bytes())
		}
		f.set(inst.Results[0], v)
	case ir.OpStore:
		t := f.Func.ValueType(inst.Args[0])
		addr := f.get(inst.Args[1]) + uint64(int64(inst.Offset))
		if !vm.mem.store(addr, t, f.get(inst.Args[0])) {
			return vm.eb.outOfBounds(addr, t.Bytes())
		}
	case ir.OpStackAddr:
		f.set(inst.Results[0], f.Slots[inst.Slot]+uint64(int64(inst.Offset)))
	case ir.OpFuncAddr:
		f.set(inst.Results[0], FuncAddr(f.Func.Ext[inst.Func].ID))
	case ir.OpCall:
		ext := &f.Func.Ext[inst.Func]
		res, err := vm.call(ext.ID, vm.args(f, inst.Args))
		if err != nil {
			return err
		}
		return vm.bindResults(f, inst, res)
	case ir.OpCallIndirect:
		addr := f.get(inst.Args[0])
		id, ok := vm.funcAt(addr)
		if !ok {
			return vm.eb.badIndirectCall("call_indirect through %#x, which is not a function", addr)
		}
		want := &f.Func.Sigs[inst.Sig]
		if decl := vm.M.Decl(id); !decl.Signature.Equal(want) {
			return vm.eb.badIndirectCall("call_indirect to %s with signature %s, callee has %s", decl.Name, want, decl.Signature)
		}
		res, err := vm.call(id, vm.args(f, inst.Args[1:]))
		if err != nil {
			return err
		}
		return vm.bindResults(f, inst, res)
	default:
		return vm.eb.unimplemented(inst.Op.String())
	}
	return nil
}

func (vm *VM) bindResults(f *Frame, inst *ir.Inst, res []uint64) *VMError {
	if len(res) != len(inst.Results) {
		return vm.eb.typeMismatch("call produced %d results, expected %d", len(res), len(inst.Results))
	}
	for i, r := range inst.Results {
		f.set(r, res[i])
	}
	return nil
}

func signExtend(v uint64, from ir.Type) uint64 {
	shift := uint(64 - from.Bits())
	return uint64(int64(v<<shift) >> shift)
}
