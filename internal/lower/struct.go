package lower

import (
	"fmt"
	"sort"

	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/trace"
	"abilower/internal/types"
)

// Construct builds an aggregate from named field values. Every declared field
// must be supplied exactly once; no memory is touched.
func (f *FuncLower) Construct(structName string, fields map[string]Value) (Value, error) {
	if err := f.unit.err; err != nil {
		return nil, err
	}
	ty := types.Struct(structName)
	decl, err := f.Table().Fields(ty)
	if err != nil {
		return nil, f.fail(lookupErr("construct", structName, err))
	}
	out := make([]Value, len(decl))
	for i, fd := range decl {
		v, ok := fields[fd.Name]
		if !ok {
			return nil, f.fail(contractf(ContractArity, "construct", structName, "missing field %s", fd.Name))
		}
		if !sameType(v, fd.Type) {
			return nil, f.fail(contractf(ContractType, "construct", structName+"."+fd.Name, "got %s, want %s", v.Type(), fd.Type))
		}
		out[i] = v
	}
	if len(fields) != len(decl) {
		return nil, f.fail(contractf(ContractArity, "construct", structName, "unknown fields %v", extraFields(fields, decl)))
	}
	return UnstableAggregate{T: ty, Fields: out}, nil
}

func extraFields(given map[string]Value, decl []layout.Field) []string {
	known := make(map[string]struct{}, len(decl))
	for _, fd := range decl {
		known[fd.Name] = struct{}{}
	}
	var extra []string
	for name := range given {
		if _, ok := known[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return extra
}

// Destructure returns field i of an aggregate. A scalar field of a stack
// aggregate is loaded; a nested aggregate field is the same pointer with a
// larger offset. Unstable aggregates hand out the stored value.
func (f *FuncLower) Destructure(v Value, i int) (Value, error) {
	if err := f.unit.err; err != nil {
		return nil, err
	}
	out, err := f.destructure(v, i)
	if err != nil {
		return nil, f.fail(err)
	}
	return out, nil
}

// DestructureByName is Destructure with a field name.
func (f *FuncLower) DestructureByName(v Value, field string) (Value, error) {
	if err := f.unit.err; err != nil {
		return nil, err
	}
	ty := v.Type()
	if !ty.IsStruct() {
		return nil, f.fail(contractf(ContractShape, "destructure", ty.String(), "field %s of a non-aggregate", field))
	}
	i, err := f.Table().FieldIndex(ty.Name, field)
	if err != nil {
		return nil, f.fail(lookupErr("destructure", ty.Name, err))
	}
	return f.Destructure(v, i)
}

func (f *FuncLower) destructure(v Value, i int) (Value, error) {
	switch v := v.(type) {
	case Scalar:
		return nil, contractf(ContractShape, "destructure", v.T.String(), "scalar %s has no fields", v.V)
	case UnstableAggregate:
		if i < 0 || i >= len(v.Fields) {
			return nil, contractf(ContractArity, "destructure", v.T.String(), "field #%d out of range", i)
		}
		return v.Fields[i], nil
	case StackAggregate:
		if !v.T.IsStruct() {
			return nil, contractf(ContractShape, "destructure", v.T.String(), "field #%d out of range", i)
		}
		fty, err := f.Table().FieldType(v.T.Name, i)
		if err != nil {
			return nil, lookupErr("destructure", v.T.Name, err)
		}
		fo, err := f.Table().OffsetOf(v.T.Name, i)
		if err != nil {
			return nil, lookupErr("destructure", v.T.Name, err)
		}
		off, err := offset32(v.Offset, fo)
		if err != nil {
			return nil, &ContractError{Kind: ContractBackend, Op: "destructure", Name: v.T.Name, Err: err}
		}
		switch fty.Kind {
		case types.KindUnit:
			return UnitValue(), nil
		case types.KindInt:
			st, err := layout.ScalarType(fty)
			if err != nil {
				return nil, lookupErr("destructure", v.T.Name, err)
			}
			return Scalar{V: f.b.Ins().Load(st, v.Ptr, off), T: fty}, nil
		case types.KindStruct:
			return StackAggregate{T: fty, Ptr: v.Ptr, Offset: off}, nil
		}
		return nil, contractf(ContractShape, "destructure", v.T.Name, "field #%d has type %s", i, fty)
	}
	return nil, contractf(ContractShape, "destructure", "", "unknown value %T", v)
}

// WriteField stores v into field i of the aggregate at dest.
func (f *FuncLower) WriteField(dest StackAggregate, i int, v Value) error {
	if err := f.unit.err; err != nil {
		return err
	}
	if !dest.T.IsStruct() {
		return f.fail(contractf(ContractShape, "write-field", dest.T.String(), "destination is not an aggregate"))
	}
	fty, err := f.Table().FieldType(dest.T.Name, i)
	if err != nil {
		return f.fail(lookupErr("write-field", dest.T.Name, err))
	}
	if !sameType(v, fty) {
		return f.fail(contractf(ContractType, "write-field", dest.T.Name, "field #%d is %s, got %s", i, fty, v.Type()))
	}
	fo, err := f.Table().OffsetOf(dest.T.Name, i)
	if err != nil {
		return f.fail(lookupErr("write-field", dest.T.Name, err))
	}
	off, err := offset32(dest.Offset, fo)
	if err != nil {
		return f.fail(&ContractError{Kind: ContractBackend, Op: "write-field", Name: dest.T.Name, Err: err})
	}
	if err := f.store(dest.Ptr, off, v); err != nil {
		return f.fail(err)
	}
	return nil
}

// Materialize commits v to memory. Stack aggregates are returned unchanged;
// unstable aggregates are written to a fresh stack slot.
func (f *FuncLower) Materialize(v Value) (StackAggregate, error) {
	if err := f.unit.err; err != nil {
		return StackAggregate{}, err
	}
	out, err := f.materialize(v)
	if err != nil {
		return StackAggregate{}, f.fail(err)
	}
	return out, nil
}

func (f *FuncLower) materialize(v Value) (StackAggregate, error) {
	switch v := v.(type) {
	case StackAggregate:
		return v, nil
	case UnstableAggregate:
		ptr, err := f.alloc(v.T)
		if err != nil {
			return StackAggregate{}, err
		}
		trace.Point(f.unit.tracer, trace.ScopeNode, "materialize", v.T.String(), f.span.ID())
		if err := f.store(ptr, 0, v); err != nil {
			return StackAggregate{}, err
		}
		return StackAggregate{T: v.T, Ptr: ptr}, nil
	case Scalar:
		return StackAggregate{}, contractf(ContractShape, "materialize", v.T.String(), "scalar %s is not an aggregate", v.V)
	}
	return StackAggregate{}, contractf(ContractShape, "materialize", "", "unknown value %T", v)
}

// store writes v at ptr+off. Nested unstable aggregates recurse per field;
// stack aggregates are copied scalar by scalar.
func (f *FuncLower) store(ptr ir.Value, off int32, v Value) error {
	switch v := v.(type) {
	case Scalar:
		f.b.Ins().Store(v.V, ptr, off)
		return nil
	case UnstableAggregate:
		if v.T.IsUnit() {
			return nil
		}
		if !v.T.IsStruct() {
			return contractf(ContractShape, "store", v.T.String(), "not an aggregate")
		}
		for i, fv := range v.Fields {
			fo, err := f.Table().OffsetOf(v.T.Name, i)
			if err != nil {
				return lookupErr("store", v.T.Name, err)
			}
			at, err := offset32(off, fo)
			if err != nil {
				return &ContractError{Kind: ContractBackend, Op: "store", Name: v.T.Name, Err: err}
			}
			if err := f.store(ptr, at, fv); err != nil {
				return err
			}
		}
		return nil
	case StackAggregate:
		return f.copy(ptr, off, v)
	}
	return contractf(ContractShape, "store", "", "unknown value %T", v)
}

// copy moves every leaf scalar of src to dest+off.
func (f *FuncLower) copy(dest ir.Value, off int32, src StackAggregate) error {
	if src.T.IsUnit() {
		return nil
	}
	sl, err := f.Table().Layout(src.T.Name)
	if err != nil {
		return lookupErr("copy", src.T.Name, err)
	}
	for i, s := range sl.Scalars {
		from, err := offset32(src.Offset, sl.ScalarOffsets[i])
		if err != nil {
			return &ContractError{Kind: ContractBackend, Op: "copy", Name: src.T.Name, Err: err}
		}
		to, err := offset32(off, sl.ScalarOffsets[i])
		if err != nil {
			return &ContractError{Kind: ContractBackend, Op: "copy", Name: src.T.Name, Err: err}
		}
		x := f.b.Ins().Load(s, src.Ptr, from)
		f.b.Ins().Store(x, dest, to)
	}
	return nil
}

// flatten returns the leaf scalars of v in declaration order, loading them
// when v lives in memory.
func (f *FuncLower) flatten(v Value) ([]ir.Value, error) {
	switch v := v.(type) {
	case Scalar:
		return []ir.Value{v.V}, nil
	case UnstableAggregate:
		var out []ir.Value
		for _, fv := range v.Fields {
			xs, err := f.flatten(fv)
			if err != nil {
				return nil, err
			}
			out = append(out, xs...)
		}
		return out, nil
	case StackAggregate:
		if v.T.IsUnit() {
			return nil, nil
		}
		sl, err := f.Table().Layout(v.T.Name)
		if err != nil {
			return nil, lookupErr("flatten", v.T.Name, err)
		}
		out := make([]ir.Value, len(sl.Scalars))
		for i, s := range sl.Scalars {
			at, err := offset32(v.Offset, sl.ScalarOffsets[i])
			if err != nil {
				return nil, &ContractError{Kind: ContractBackend, Op: "flatten", Name: v.T.Name, Err: err}
			}
			out[i] = f.b.Ins().Load(s, v.Ptr, at)
		}
		return out, nil
	}
	return nil, contractf(ContractShape, "flatten", "", "unknown value %T", v)
}

// address returns a pointer to v's first byte, materializing it if needed.
func (f *FuncLower) address(v Value) (ir.Value, error) {
	sa, err := f.materialize(v)
	if err != nil {
		return ir.NoValue, err
	}
	if sa.Offset == 0 {
		return sa.Ptr, nil
	}
	return f.b.Ins().IaddImm(sa.Ptr, int64(sa.Offset)), nil
}

// Shape names the representation of v.
func Shape(v Value) string {
	switch v.(type) {
	case Scalar:
		return "scalar"
	case StackAggregate:
		return "stack"
	case UnstableAggregate:
		return "unstable"
	}
	return fmt.Sprintf("%T", v)
}
