package lower

import (
	"fmt"

	"fortio.org/safecast"

	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/trace"
	"abilower/internal/types"
)

// FuncLower lowers one function body. It is only valid inside the BodyFunc
// passed to Unit.Define.
type FuncLower struct {
	unit *Unit
	b    *ir.FunctionBuilder
	fn   *layout.FuncLayout
	sret ir.Value
	span *trace.Span
}

// Unit returns the unit the function belongs to.
func (f *FuncLower) Unit() *Unit { return f.unit }

// Builder exposes the underlying ir builder for plain scalar code.
func (f *FuncLower) Builder() *ir.FunctionBuilder { return f.b }

// Table returns the unit's layout table.
func (f *FuncLower) Table() *layout.Table { return f.unit.table }

// Name returns the name of the function being lowered.
func (f *FuncLower) Name() string { return f.fn.Def.Name }

func (f *FuncLower) ptr() ir.Type { return f.unit.table.PointerType() }

func (f *FuncLower) fail(err error) error { return f.unit.fail(err) }

// entryParams creates and seals the entry block and rebuilds the declared
// parameters from its block parameters.
func (f *FuncLower) entryParams() ([]Value, error) {
	entry := f.b.CreateBlock()
	f.b.AppendBlockParamsForFunctionParams(entry)
	f.b.SwitchToBlock(entry)
	f.b.SealBlock(entry)

	raw := f.b.BlockParams(entry)
	idx := 0
	if f.fn.StructReturn {
		f.sret = raw[0]
		idx++
	}
	out := make([]Value, 0, len(f.fn.Def.Params))
	for _, p := range f.fn.Def.Params {
		if p.IsStruct() {
			mode, err := f.Table().PassingMode(p.Name)
			if err != nil {
				return nil, lookupErr("entry", p.Name, err)
			}
			if mode == layout.ByPointer {
				out = append(out, StackAggregate{T: p, Ptr: raw[idx]})
				idx++
				continue
			}
		}
		v, next, err := f.unflatten(p, raw, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		idx = next
	}
	return out, nil
}

// unflatten rebuilds a by-scalars value of type ty from vals[idx:]. Nested
// aggregates become unstable aggregates.
func (f *FuncLower) unflatten(ty types.Type, vals []ir.Value, idx int) (Value, int, error) {
	switch ty.Kind {
	case types.KindUnit:
		return UnitValue(), idx, nil
	case types.KindInt:
		if idx >= len(vals) {
			return nil, idx, contractf(ContractArity, "unflatten", ty.String(), "ran out of scalars at %d", idx)
		}
		return Scalar{V: vals[idx], T: ty}, idx + 1, nil
	case types.KindStruct:
		fields, err := f.Table().Fields(ty)
		if err != nil {
			return nil, idx, lookupErr("unflatten", ty.Name, err)
		}
		out := make([]Value, len(fields))
		for i, fd := range fields {
			out[i], idx, err = f.unflatten(fd.Type, vals, idx)
			if err != nil {
				return nil, idx, err
			}
		}
		return UnstableAggregate{T: ty, Fields: out}, idx, nil
	}
	return nil, idx, contractf(ContractShape, "unflatten", ty.String(), "cannot be passed by scalars")
}

func (f *FuncLower) finish(id ir.FuncID) error {
	if !f.b.CurrentBlockTerminated() {
		if !f.fn.Def.Result.IsUnit() {
			return contractf(ContractShape, "define", f.Name(), "body ends without returning %s", f.fn.Def.Result)
		}
		f.b.Ins().Return(nil)
	}
	f.b.SealAllBlocks()
	if err := f.b.Finalize(); err != nil {
		return &ContractError{Kind: ContractBackend, Op: "define", Name: f.Name(), Err: err}
	}
	if err := f.unit.mod.DefineFunction(id, f.b.Func()); err != nil {
		return &ContractError{Kind: ContractBackend, Op: "define", Name: f.Name(), Err: err}
	}
	return nil
}

// Int returns an i32 constant, the type of a plain `int`.
func (f *FuncLower) Int(n int64) Value {
	return Scalar{V: f.b.Ins().Iconst(ir.I32, n), T: types.I32()}
}

// IntOf returns a constant of integer type ty.
func (f *FuncLower) IntOf(ty types.Type, n int64) (Value, error) {
	st, err := layout.ScalarType(ty)
	if err != nil {
		return nil, f.fail(lookupErr("const", ty.String(), err))
	}
	return Scalar{V: f.b.Ins().Iconst(st, n), T: ty}, nil
}

// Add returns x + y for two scalars of the same integer type.
func (f *FuncLower) Add(x, y Value) (Value, error) {
	return f.binary("add", x, y, f.b.Ins().Iadd)
}

// Sub returns x - y for two scalars of the same integer type.
func (f *FuncLower) Sub(x, y Value) (Value, error) {
	return f.binary("sub", x, y, f.b.Ins().Isub)
}

func (f *FuncLower) binary(op string, x, y Value, emit func(a, b ir.Value) ir.Value) (Value, error) {
	if err := f.unit.err; err != nil {
		return nil, err
	}
	a, ok := x.(Scalar)
	if !ok {
		return nil, f.fail(contractf(ContractShape, op, x.Type().String(), "operand %s is not a scalar", x))
	}
	b, ok := y.(Scalar)
	if !ok {
		return nil, f.fail(contractf(ContractShape, op, y.Type().String(), "operand %s is not a scalar", y))
	}
	if a.T != b.T {
		return nil, f.fail(contractf(ContractType, op, a.T.String(), "operands %s and %s differ", a.T, b.T))
	}
	return Scalar{V: emit(a.V, b.V), T: a.T}, nil
}

// Terminated reports whether the current block already ends in a
// terminator, e.g. after Return or Match with no fall-through arm.
func (f *FuncLower) Terminated() bool {
	return f.b.CurrentBlockTerminated()
}

// alloc reserves a stack slot for a value of type ty and returns its address.
func (f *FuncLower) alloc(ty types.Type) (ir.Value, error) {
	size, err := f.Table().SizeOf(ty)
	if err != nil {
		return ir.NoValue, lookupErr("alloc", ty.String(), err)
	}
	align, err := f.Table().AlignOf(ty)
	if err != nil {
		return ir.NoValue, lookupErr("alloc", ty.String(), err)
	}
	return f.allocBytes(ty.String(), size, align)
}

func (f *FuncLower) allocBytes(what string, size, align int) (ir.Value, error) {
	n, err := ir.SlotSize(size)
	if err != nil {
		return ir.NoValue, &ContractError{Kind: ContractBackend, Op: "alloc", Name: what, Err: err}
	}
	slot := f.b.CreateSizedStackSlot(n, ir.SlotAlignShift(align))
	trace.Point(f.unit.tracer, trace.ScopeNode, "stack-slot", fmt.Sprintf("%s %s size=%d align=%d", slot, what, size, align), f.span.ID())
	return f.b.Ins().StackAddr(f.ptr(), slot, 0), nil
}

func offset32(base int32, off int) (int32, error) {
	o, err := safecast.Conv[int32](off)
	if err != nil {
		return 0, err
	}
	return base + o, nil
}

func sameType(v Value, want types.Type) bool {
	return v.Type() == want
}
