package lower

import (
	"fmt"
	"sort"
	"strings"

	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/trace"
	"abilower/internal/types"
)

// TrapUnreachable is the user trap code of an impossible union tag.
const TrapUnreachable uint8 = 100

// PayloadEncoding is how a variant's fields are carried in the pointer-wide
// payload word.
type PayloadEncoding uint8

const (
	// PayloadZero is a variant without fields; the payload is 0.
	PayloadZero PayloadEncoding = iota
	// PayloadInline is one field exactly as wide as a pointer.
	PayloadInline
	// PayloadInlineCasted is one narrower field, sign-extended to pointer width.
	PayloadInlineCasted
	// PayloadIndirect stores the fields in a stack slot; the payload is its address.
	PayloadIndirect
)

func (e PayloadEncoding) String() string {
	switch e {
	case PayloadZero:
		return "zero"
	case PayloadInline:
		return "inline"
	case PayloadInlineCasted:
		return "inline-casted"
	case PayloadIndirect:
		return "indirect"
	default:
		return fmt.Sprintf("encoding(%d)", uint8(e))
	}
}

// PayloadEncodingOf picks the encoding for a variant with the given field
// scalars on a target whose pointers have type ptr. It depends only on the
// field types, so construction and matching always agree.
func PayloadEncodingOf(ptr ir.Type, fields []ir.Type) PayloadEncoding {
	switch len(fields) {
	case 0:
		return PayloadZero
	case 1:
		switch {
		case fields[0].Bytes() < ptr.Bytes():
			return PayloadInlineCasted
		case fields[0].Bytes() == ptr.Bytes():
			return PayloadInline
		}
	}
	return PayloadIndirect
}

func variantScalars(v *layout.Variant) ([]ir.Type, error) {
	out := make([]ir.Type, len(v.Fields))
	for i, ft := range v.Fields {
		st, err := layout.ScalarType(ft)
		if err != nil {
			return nil, err
		}
		out[i] = st
	}
	return out, nil
}

// ConstructUnion builds the variant of a union from its field values.
func (f *FuncLower) ConstructUnion(unionName, variant string, fields []Value) (Tagged, error) {
	if err := f.unit.err; err != nil {
		return Tagged{}, err
	}
	out, err := f.constructUnion(unionName, variant, fields)
	if err != nil {
		return Tagged{}, f.fail(err)
	}
	return out, nil
}

func (f *FuncLower) constructUnion(unionName, variant string, fields []Value) (Tagged, error) {
	op := "construct-union"
	tag, v, err := f.Table().Variant(unionName, variant)
	if err != nil {
		return Tagged{}, lookupErr(op, unionName, err)
	}
	name := unionName + "::" + variant
	if len(fields) != len(v.Fields) {
		return Tagged{}, contractf(ContractArity, op, name, "takes %d fields, got %d", len(v.Fields), len(fields))
	}
	scalars, err := variantScalars(v)
	if err != nil {
		return Tagged{}, lookupErr(op, name, err)
	}
	vals := make([]ir.Value, len(fields))
	for i, fv := range fields {
		s, ok := fv.(Scalar)
		if !ok {
			return Tagged{}, contractf(ContractShape, op, name, "field %d is %s, not a scalar", i, Shape(fv))
		}
		if s.T != v.Fields[i] {
			return Tagged{}, contractf(ContractType, op, name, "field %d is %s, want %s", i, s.T, v.Fields[i])
		}
		vals[i] = s.V
	}

	ptr := f.ptr()
	var payload ir.Value
	switch enc := PayloadEncodingOf(ptr, scalars); enc {
	case PayloadZero:
		payload = f.b.Ins().Iconst(ptr, 0)
	case PayloadInline:
		payload = vals[0]
	case PayloadInlineCasted:
		payload = f.b.Ins().Sextend(ptr, vals[0])
	case PayloadIndirect:
		offsets, size, align := f.Table().ScalarOffsets(scalars)
		payload, err = f.allocBytes(name, size, align)
		if err != nil {
			return Tagged{}, err
		}
		for i, x := range vals {
			at, err := offset32(0, offsets[i])
			if err != nil {
				return Tagged{}, &ContractError{Kind: ContractBackend, Op: op, Name: name, Err: err}
			}
			f.b.Ins().Store(x, payload, at)
		}
	}
	return Tagged{
		T:       types.Union(unionName),
		Tag:     f.b.Ins().Iconst(layout.TagType, int64(tag)),
		Payload: payload,
	}, nil
}

// ReadPayload decodes the fields of variant from t's payload. The caller must
// already know t holds that variant, as inside a Match arm.
func (f *FuncLower) ReadPayload(t Tagged, variant string) ([]Value, error) {
	if err := f.unit.err; err != nil {
		return nil, err
	}
	out, err := f.readPayload(t, variant)
	if err != nil {
		return nil, f.fail(err)
	}
	return out, nil
}

func (f *FuncLower) readPayload(t Tagged, variant string) ([]Value, error) {
	op := "read-payload"
	_, v, err := f.Table().Variant(t.T.Name, variant)
	if err != nil {
		return nil, lookupErr(op, t.T.Name, err)
	}
	scalars, err := variantScalars(v)
	if err != nil {
		return nil, lookupErr(op, t.T.Name+"::"+variant, err)
	}
	out := make([]Value, len(scalars))
	switch PayloadEncodingOf(f.ptr(), scalars) {
	case PayloadZero:
	case PayloadInline:
		out[0] = Scalar{V: t.Payload, T: v.Fields[0]}
	case PayloadInlineCasted:
		out[0] = Scalar{V: f.b.Ins().Ireduce(scalars[0], t.Payload), T: v.Fields[0]}
	case PayloadIndirect:
		offsets, _, _ := f.Table().ScalarOffsets(scalars)
		for i, s := range scalars {
			at, err := offset32(0, offsets[i])
			if err != nil {
				return nil, &ContractError{Kind: ContractBackend, Op: op, Name: t.T.Name, Err: err}
			}
			out[i] = Scalar{V: f.b.Ins().Load(s, t.Payload, at), T: v.Fields[i]}
		}
	}
	return out, nil
}

// Arm lowers one match arm. fields are the decoded payload of the variant.
// An arm may return from the function or fall through to the code after
// the match.
type Arm func(fields []Value) error

// Match dispatches on t's tag through a jump table with one block per
// variant in tag order. arms must name every variant. The default target
// traps with TrapUnreachable. Arms that fall through continue in a shared
// join block, which becomes the current block; when no arm falls through
// the current block stays terminated.
func (f *FuncLower) Match(t Tagged, arms map[string]Arm) error {
	if err := f.unit.err; err != nil {
		return err
	}
	if err := f.match(t, arms); err != nil {
		return f.fail(err)
	}
	return nil
}

func (f *FuncLower) match(t Tagged, arms map[string]Arm) error {
	op := "match"
	def, err := f.Table().Union(t.T.Name)
	if err != nil {
		return lookupErr(op, t.T.Name, err)
	}
	if err := checkArms(t.T.Name, def, arms); err != nil {
		return err
	}

	targets := make([]ir.Block, len(def.Variants))
	for i := range targets {
		targets[i] = f.b.CreateBlock()
	}
	trap := f.b.CreateBlock()
	jt := f.b.CreateJumpTable(trap, targets)
	f.b.Ins().BrTable(t.Tag, jt)
	trace.Point(f.unit.tracer, trace.ScopeNode, "jump-table", fmt.Sprintf("%s %s cases=%d", jt, t.T.Name, len(targets)), f.span.ID())

	join := ir.NoBlock
	for i, blk := range targets {
		f.b.SwitchToBlock(blk)
		f.b.SealBlock(blk)
		name := def.Variants[i].Name
		fields, err := f.readPayload(t, name)
		if err != nil {
			return err
		}
		if err := arms[name](fields); err != nil {
			return err
		}
		if f.unit.err != nil {
			return f.unit.err
		}
		if !f.b.CurrentBlockTerminated() {
			if join == ir.NoBlock {
				join = f.b.CreateBlock()
			}
			f.b.Ins().Jump(join, nil)
		}
	}

	f.b.SwitchToBlock(trap)
	f.b.SealBlock(trap)
	f.b.Ins().Trap(ir.UserTrap(TrapUnreachable))

	if join != ir.NoBlock {
		f.b.SwitchToBlock(join)
		f.b.SealBlock(join)
	}
	return nil
}

func checkArms(unionName string, def *layout.UnionDef, arms map[string]Arm) error {
	known := make(map[string]struct{}, len(def.Variants))
	var missing []string
	for _, v := range def.Variants {
		known[v.Name] = struct{}{}
		if arms[v.Name] == nil {
			missing = append(missing, v.Name)
		}
	}
	if len(missing) > 0 {
		return contractf(ContractArity, "match", unionName, "non-exhaustive, missing %s", strings.Join(missing, ", "))
	}
	var extra []string
	for name := range arms {
		if _, ok := known[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return lookupErr("match", unionName, &layout.LayoutError{Kind: layout.LayoutErrUnknownVariant, Name: unionName, Member: extra[0]})
	}
	return nil
}
