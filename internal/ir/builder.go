package ir

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
)

// FunctionBuilder appends blocks and instructions to a Function.
//
// Misuse (emitting without a current block, emitting after a terminator,
// referencing unknown entities) is recorded as the first error and reported
// by Finalize; later calls keep returning placeholder values so lowering code
// can stay linear.
type FunctionBuilder struct {
	fn     *Function
	cur    Block
	err    error
	closed bool
}

// NewFunctionBuilder starts a new function body for the given signature.
func NewFunctionBuilder(name string, sig Signature) *FunctionBuilder {
	return &FunctionBuilder{
		fn: &Function{
			Name:      name,
			Signature: sig.Clone(),
		},
		cur: NoBlock,
	}
}

// Func returns the function under construction.
func (b *FunctionBuilder) Func() *Function {
	return b.fn
}

// Err returns the first recorded builder error.
func (b *FunctionBuilder) Err() error {
	return b.err
}

func (b *FunctionBuilder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("%s: "+format, append([]any{b.fn.Name}, args...)...)
	}
}

// CreateBlock adds a new empty block.
func (b *FunctionBuilder) CreateBlock() Block {
	b.fn.Blocks = append(b.fn.Blocks, BlockData{})
	return Block(len(b.fn.Blocks) - 1)
}

// SwitchToBlock makes blk the insertion point.
func (b *FunctionBuilder) SwitchToBlock(blk Block) {
	if b.fn.Block(blk) == nil {
		b.fail("switch to unknown %s", blk)
		return
	}
	b.cur = blk
}

// CurrentBlock returns the insertion point.
func (b *FunctionBuilder) CurrentBlock() Block {
	return b.cur
}

// CurrentBlockTerminated reports whether the insertion point already ends in
// a terminator.
func (b *FunctionBuilder) CurrentBlockTerminated() bool {
	return b.fn.Block(b.cur).Terminated()
}

// SealBlock declares that all predecessors of blk are known.
func (b *FunctionBuilder) SealBlock(blk Block) {
	data := b.fn.Block(blk)
	if data == nil {
		b.fail("seal unknown %s", blk)
		return
	}
	data.Sealed = true
}

// SealAllBlocks seals every block created so far.
func (b *FunctionBuilder) SealAllBlocks() {
	for i := range b.fn.Blocks {
		b.fn.Blocks[i].Sealed = true
	}
}

func (b *FunctionBuilder) newValue(t Type) Value {
	b.fn.Values = append(b.fn.Values, t)
	return Value(len(b.fn.Values) - 1)
}

// AppendBlockParam adds a parameter of type t to blk.
func (b *FunctionBuilder) AppendBlockParam(blk Block, t Type) Value {
	data := b.fn.Block(blk)
	if data == nil {
		b.fail("append param to unknown %s", blk)
		return NoValue
	}
	v := b.newValue(t)
	data.Params = append(data.Params, v)
	return v
}

// AppendBlockParamsForFunctionParams mirrors the function signature onto blk.
func (b *FunctionBuilder) AppendBlockParamsForFunctionParams(blk Block) {
	for _, p := range b.fn.Signature.Params {
		b.AppendBlockParam(blk, p.Type)
	}
}

// BlockParams returns the parameters of blk.
func (b *FunctionBuilder) BlockParams(blk Block) []Value {
	data := b.fn.Block(blk)
	if data == nil {
		return nil
	}
	return data.Params
}

// ValueType returns the type of v.
func (b *FunctionBuilder) ValueType(v Value) Type {
	return b.fn.ValueType(v)
}

// SpecialParam returns the entry parameter with the given purpose.
func (b *FunctionBuilder) SpecialParam(purpose ArgumentPurpose) (Value, bool) {
	return b.fn.SpecialParam(purpose)
}

// CreateSizedStackSlot reserves size bytes aligned to 1<<alignShift.
func (b *FunctionBuilder) CreateSizedStackSlot(size uint32, alignShift uint8) StackSlot {
	b.fn.Slots = append(b.fn.Slots, StackSlotData{Size: size, AlignShift: alignShift})
	return StackSlot(len(b.fn.Slots) - 1)
}

// CreateJumpTable registers a branch table.
func (b *FunctionBuilder) CreateJumpTable(def Block, targets []Block) JumpTable {
	b.fn.Tables = append(b.fn.Tables, JumpTableData{
		Default: def,
		Targets: append([]Block(nil), targets...),
	})
	return JumpTable(len(b.fn.Tables) - 1)
}

// ImportSignature makes sig available to call_indirect.
func (b *FunctionBuilder) ImportSignature(sig Signature) SigRef {
	b.fn.Sigs = append(b.fn.Sigs, sig.Clone())
	return SigRef(len(b.fn.Sigs) - 1)
}

func (b *FunctionBuilder) importFunc(ext ExtFunc) FuncRef {
	for i := range b.fn.Ext {
		if b.fn.Ext[i].ID == ext.ID {
			return FuncRef(i)
		}
	}
	b.fn.Ext = append(b.fn.Ext, ext)
	return FuncRef(len(b.fn.Ext) - 1)
}

// Ins returns the instruction emitter for the current block.
func (b *FunctionBuilder) Ins() InstBuilder {
	return InstBuilder{b: b}
}

func (b *FunctionBuilder) emit(inst Inst) {
	if b.closed {
		b.fail("emit %s after finalize", inst.Op)
		return
	}
	data := b.fn.Block(b.cur)
	if data == nil {
		b.fail("emit %s without a current block", inst.Op)
		return
	}
	if data.Terminated() {
		b.fail("emit %s after terminator in %s", inst.Op, b.cur)
		return
	}
	data.Insts = append(data.Insts, inst)
}

// Finalize checks the function is complete. The builder must not be used
// afterwards.
func (b *FunctionBuilder) Finalize() error {
	if b.err != nil {
		return b.err
	}
	b.closed = true
	if len(b.fn.Blocks) == 0 {
		return fmt.Errorf("%s: function has no blocks", b.fn.Name)
	}
	var errs []error
	for i := range b.fn.Blocks {
		blk := &b.fn.Blocks[i]
		if !blk.Sealed {
			errs = append(errs, fmt.Errorf("%s: %s is not sealed", b.fn.Name, Block(i)))
		}
		if !blk.Terminated() {
			errs = append(errs, fmt.Errorf("%s: %s is not terminated", b.fn.Name, Block(i)))
		}
	}
	return errors.Join(errs...)
}

// InstBuilder emits instructions at the builder's insertion point.
type InstBuilder struct {
	b *FunctionBuilder
}

func (ib InstBuilder) unary(op Opcode, t Type, arg Value) Value {
	res := ib.b.newValue(t)
	ib.b.emit(Inst{Op: op, Type: t, Args: []Value{arg}, Results: []Value{res}})
	return res
}

func (ib InstBuilder) binary(op Opcode, x, y Value) Value {
	res := ib.b.newValue(ib.b.ValueType(x))
	ib.b.emit(Inst{Op: op, Args: []Value{x, y}, Results: []Value{res}})
	return res
}

// Iconst emits an integer constant of type t.
func (ib InstBuilder) Iconst(t Type, n int64) Value {
	res := ib.b.newValue(t)
	ib.b.emit(Inst{Op: OpIconst, Type: t, Imm: n, Results: []Value{res}})
	return res
}

// Iadd emits x + y.
func (ib InstBuilder) Iadd(x, y Value) Value { return ib.binary(OpIadd, x, y) }

// Isub emits x - y.
func (ib InstBuilder) Isub(x, y Value) Value { return ib.binary(OpIsub, x, y) }

// Imul emits x * y.
func (ib InstBuilder) Imul(x, y Value) Value { return ib.binary(OpImul, x, y) }

// IaddImm emits x + n.
func (ib InstBuilder) IaddImm(x Value, n int64) Value {
	res := ib.b.newValue(ib.b.ValueType(x))
	ib.b.emit(Inst{Op: OpIaddImm, Args: []Value{x}, Imm: n, Results: []Value{res}})
	return res
}

// Sextend sign-extends x to t.
func (ib InstBuilder) Sextend(t Type, x Value) Value { return ib.unary(OpSextend, t, x) }

// Uextend zero-extends x to t.
func (ib InstBuilder) Uextend(t Type, x Value) Value { return ib.unary(OpUextend, t, x) }

// Ireduce truncates x to t.
func (ib InstBuilder) Ireduce(t Type, x Value) Value { return ib.unary(OpIreduce, t, x) }

// Load reads a t from ptr+offset.
func (ib InstBuilder) Load(t Type, ptr Value, offset int32) Value {
	res := ib.b.newValue(t)
	ib.b.emit(Inst{Op: OpLoad, Type: t, Args: []Value{ptr}, Offset: offset, Results: []Value{res}})
	return res
}

// Store writes v to ptr+offset.
func (ib InstBuilder) Store(v, ptr Value, offset int32) {
	ib.b.emit(Inst{Op: OpStore, Args: []Value{v, ptr}, Offset: offset})
}

// StackAddr returns the address of slot+offset as a t.
func (ib InstBuilder) StackAddr(t Type, slot StackSlot, offset int32) Value {
	if slot < 0 || int(slot) >= len(ib.b.fn.Slots) {
		ib.b.fail("unknown %s", slot)
	}
	res := ib.b.newValue(t)
	ib.b.emit(Inst{Op: OpStackAddr, Type: t, Slot: slot, Offset: offset, Results: []Value{res}})
	return res
}

// FuncAddr returns the address of a referenced function as a t.
func (ib InstBuilder) FuncAddr(t Type, f FuncRef) Value {
	if f < 0 || int(f) >= len(ib.b.fn.Ext) {
		ib.b.fail("unknown %s", f)
	}
	res := ib.b.newValue(t)
	ib.b.emit(Inst{Op: OpFuncAddr, Type: t, Func: f, Results: []Value{res}})
	return res
}

// Call calls a referenced function and returns its results.
func (ib InstBuilder) Call(f FuncRef, args []Value) []Value {
	if f < 0 || int(f) >= len(ib.b.fn.Ext) {
		ib.b.fail("unknown %s", f)
		return nil
	}
	sig := &ib.b.fn.Ext[f].Signature
	results := make([]Value, len(sig.Returns))
	for i, r := range sig.Returns {
		results[i] = ib.b.newValue(r.Type)
	}
	ib.b.emit(Inst{Op: OpCall, Func: f, Args: append([]Value(nil), args...), Results: results})
	return results
}

// CallIndirect calls through callee using an imported signature.
func (ib InstBuilder) CallIndirect(sig SigRef, callee Value, args []Value) []Value {
	if sig < 0 || int(sig) >= len(ib.b.fn.Sigs) {
		ib.b.fail("unknown %s", sig)
		return nil
	}
	s := &ib.b.fn.Sigs[sig]
	results := make([]Value, len(s.Returns))
	for i, r := range s.Returns {
		results[i] = ib.b.newValue(r.Type)
	}
	all := make([]Value, 0, len(args)+1)
	all = append(all, callee)
	all = append(all, args...)
	ib.b.emit(Inst{Op: OpCallIndirect, Sig: sig, Args: all, Results: results})
	return results
}

// Return returns vals from the function.
func (ib InstBuilder) Return(vals []Value) {
	ib.b.emit(Inst{Op: OpReturn, Args: append([]Value(nil), vals...)})
}

// Trap terminates the block with a trap.
func (ib InstBuilder) Trap(code TrapCode) {
	ib.b.emit(Inst{Op: OpTrap, Trap: code})
}

// Jump branches to dest passing args as its block parameters.
func (ib InstBuilder) Jump(dest Block, args []Value) {
	ib.b.emit(Inst{Op: OpJump, Dest: dest, Args: append([]Value(nil), args...)})
}

// BrTable branches through table on index.
func (ib InstBuilder) BrTable(index Value, table JumpTable) {
	if table < 0 || int(table) >= len(ib.b.fn.Tables) {
		ib.b.fail("unknown %s", table)
	}
	ib.b.emit(Inst{Op: OpBrTable, Args: []Value{index}, Table: table})
}

// SlotAlignShift returns log2(align) for a power-of-two alignment.
func SlotAlignShift(align int) uint8 {
	shift := uint8(0)
	for a := 1; a < align && shift < 16; a <<= 1 {
		shift++
	}
	return shift
}

// SlotSize converts a layout size to a stack slot size.
func SlotSize(size int) (uint32, error) {
	return safecast.Conv[uint32](size)
}
