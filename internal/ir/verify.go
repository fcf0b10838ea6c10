package ir

import (
	"errors"
	"fmt"
)

// Verify checks structural and type invariants of a function body.
// ptr is the pointer type of the target module.
func Verify(f *Function, ptr Type) error {
	if f == nil {
		return nil
	}
	var errs []error
	if err := verifyEntry(f); err != nil {
		errs = append(errs, err)
	}
	if err := verifyBlocksTerminated(f); err != nil {
		errs = append(errs, err)
	}
	if err := verifyInsts(f, ptr); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("function %s: %w", f.Name, err)
	}
	return nil
}

func verifyEntry(f *Function) error {
	entry := f.Block(f.Entry())
	if entry == nil {
		return fmt.Errorf("no entry block")
	}
	if len(entry.Params) != len(f.Signature.Params) {
		return fmt.Errorf("entry block has %d params, signature has %d", len(entry.Params), len(f.Signature.Params))
	}
	for i, v := range entry.Params {
		if got, want := f.ValueType(v), f.Signature.Params[i].Type; got != want {
			return fmt.Errorf("entry param %d: %s has type %s, signature says %s", i, v, got, want)
		}
	}
	return nil
}

func verifyBlocksTerminated(f *Function) error {
	var errs []error
	for i := range f.Blocks {
		if !f.Blocks[i].Terminated() {
			errs = append(errs, fmt.Errorf("%s: unterminated block", Block(i)))
		}
	}
	return errors.Join(errs...)
}

type instChecker struct {
	f    *Function
	ptr  Type
	blk  Block
	errs []error
}

func (c *instChecker) errorf(format string, args ...any) {
	c.errs = append(c.errs, fmt.Errorf("%s: "+format, append([]any{c.blk}, args...)...))
}

func (c *instChecker) value(v Value) Type {
	t := c.f.ValueType(v)
	if t == TypeInvalid {
		c.errorf("use of undefined value %s", v)
	}
	return t
}

func (c *instChecker) expect(v Value, want Type, what string) {
	if got := c.value(v); got != TypeInvalid && got != want {
		c.errorf("%s: %s has type %s, want %s", what, v, got, want)
	}
}

func (c *instChecker) arity(inst *Inst, args, results int) bool {
	if len(inst.Args) != args || len(inst.Results) != results {
		c.errorf("%s: got %d args/%d results, want %d/%d", inst.Op, len(inst.Args), len(inst.Results), args, results)
		return false
	}
	return true
}

func (c *instChecker) branchArgs(dest Block, args []Value) {
	data := c.f.Block(dest)
	if data == nil {
		c.errorf("branch to unknown %s", dest)
		return
	}
	if len(args) != len(data.Params) {
		c.errorf("branch to %s passes %d args, block takes %d", dest, len(args), len(data.Params))
		return
	}
	for i, a := range args {
		c.expect(a, c.f.ValueType(data.Params[i]), fmt.Sprintf("arg %d to %s", i, dest))
	}
}

func (c *instChecker) callArgs(sig *Signature, args []Value, results []Value, what string) {
	if len(args) != len(sig.Params) {
		c.errorf("%s: %d args for %d params", what, len(args), len(sig.Params))
		return
	}
	for i, a := range args {
		c.expect(a, sig.Params[i].Type, fmt.Sprintf("%s arg %d", what, i))
	}
	if len(results) != len(sig.Returns) {
		c.errorf("%s: %d results for %d returns", what, len(results), len(sig.Returns))
	}
}

func verifyInsts(f *Function, ptr Type) error {
	c := &instChecker{f: f, ptr: ptr}
	for bi := range f.Blocks {
		c.blk = Block(bi)
		insts := f.Blocks[bi].Insts
		for ii := range insts {
			inst := &insts[ii]
			if inst.Op.IsTerminator() && ii != len(insts)-1 {
				c.errorf("%s is not the last instruction", inst.Op)
			}
			c.check(inst)
		}
	}
	return errors.Join(c.errs...)
}

func (c *instChecker) check(inst *Inst) {
	switch inst.Op {
	case OpIconst:
		if c.arity(inst, 0, 1) && inst.Type.Bytes() == 0 {
			c.errorf("iconst of invalid type")
		}
	case OpIadd, OpIsub, OpImul:
		if c.arity(inst, 2, 1) {
			t := c.value(inst.Args[0])
			c.expect(inst.Args[1], t, inst.Op.String())
		}
	case OpIaddImm:
		c.arity(inst, 1, 1)
	case OpSextend, OpUextend:
		if c.arity(inst, 1, 1) && c.value(inst.Args[0]).Bytes() >= inst.Type.Bytes() {
			c.errorf("%s to %s does not widen", inst.Op, inst.Type)
		}
	case OpIreduce:
		if c.arity(inst, 1, 1) && c.value(inst.Args[0]).Bytes() <= inst.Type.Bytes() {
			c.errorf("ireduce to %s does not narrow", inst.Type)
		}
	case OpLoad:
		if c.arity(inst, 1, 1) {
			c.expect(inst.Args[0], c.ptr, "load address")
		}
	case OpStore:
		if c.arity(inst, 2, 0) {
			c.value(inst.Args[0])
			c.expect(inst.Args[1], c.ptr, "store address")
		}
	case OpStackAddr:
		if c.arity(inst, 0, 1) {
			if inst.Slot < 0 || int(inst.Slot) >= len(c.f.Slots) {
				c.errorf("unknown %s", inst.Slot)
			} else if inst.Offset < 0 || int64(inst.Offset) > int64(c.f.Slots[inst.Slot].Size) {
				c.errorf("offset %d outside %s", inst.Offset, inst.Slot)
			}
		}
	case OpFuncAddr:
		if c.arity(inst, 0, 1) && (inst.Func < 0 || int(inst.Func) >= len(c.f.Ext)) {
			c.errorf("unknown %s", inst.Func)
		}
	case OpCall:
		if inst.Func < 0 || int(inst.Func) >= len(c.f.Ext) {
			c.errorf("call to unknown %s", inst.Func)
			return
		}
		ext := &c.f.Ext[inst.Func]
		c.callArgs(&ext.Signature, inst.Args, inst.Results, "call "+ext.Name)
	case OpCallIndirect:
		if inst.Sig < 0 || int(inst.Sig) >= len(c.f.Sigs) {
			c.errorf("call_indirect with unknown %s", inst.Sig)
			return
		}
		if len(inst.Args) == 0 {
			c.errorf("call_indirect without callee")
			return
		}
		c.expect(inst.Args[0], c.ptr, "call_indirect callee")
		c.callArgs(&c.f.Sigs[inst.Sig], inst.Args[1:], inst.Results, "call_indirect")
	case OpReturn:
		rets := c.f.Signature.Returns
		if len(inst.Args) != len(rets) {
			c.errorf("return of %d values, signature has %d", len(inst.Args), len(rets))
			return
		}
		for i, a := range inst.Args {
			c.expect(a, rets[i].Type, fmt.Sprintf("return value %d", i))
		}
	case OpTrap:
	case OpJump:
		c.branchArgs(inst.Dest, inst.Args)
	case OpBrTable:
		if len(inst.Args) != 1 {
			c.errorf("br_table needs one index")
			return
		}
		c.value(inst.Args[0])
		if inst.Table < 0 || int(inst.Table) >= len(c.f.Tables) {
			c.errorf("br_table with unknown %s", inst.Table)
			return
		}
		jt := &c.f.Tables[inst.Table]
		c.branchArgs(jt.Default, nil)
		for _, t := range jt.Targets {
			c.branchArgs(t, nil)
		}
	default:
		c.errorf("unknown opcode %s", inst.Op)
	}
}
