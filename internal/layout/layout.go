package layout

import (
	"fmt"
	"sort"

	"abilower/internal/ir"
	"abilower/internal/types"
)

// Policy selects how aggregate fields are placed in memory.
type Policy uint8

const (
	// PolicyAligned pads every field to its natural alignment and the whole
	// aggregate to its largest field alignment.
	PolicyAligned Policy = iota
	// PolicyPacked places fields back to back with no padding.
	PolicyPacked
)

func (p Policy) String() string {
	switch p {
	case PolicyAligned:
		return "aligned"
	case PolicyPacked:
		return "packed"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParsePolicy reads "aligned" or "packed".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "aligned":
		return PolicyAligned, nil
	case "packed":
		return PolicyPacked, nil
	}
	return 0, fmt.Errorf("unknown layout policy %q (want aligned or packed)", s)
}

// PassingMode is how an aggregate crosses a call boundary.
type PassingMode uint8

const (
	// ByScalars flattens the aggregate into one primitive per leaf field.
	ByScalars PassingMode = iota
	// ByPointer materializes the aggregate in memory and passes its address.
	ByPointer
)

func (m PassingMode) String() string {
	if m == ByPointer {
		return "by-pointer"
	}
	return "by-scalars"
}

// DefaultMaxScalars is the largest flattened scalar count still passed by
// scalars.
const DefaultMaxScalars = 2

// Options configures a table. The zero value is x86_64, aligned, two scalars
// and the fast calling convention.
type Options struct {
	Target     Target
	Policy     Policy
	MaxScalars int
	CallConv   ir.CallConv
}

func (o Options) normalized() Options {
	if o.Target.PtrSize <= 0 {
		o.Target = X86_64LinuxGNU()
	}
	if o.Target.PtrAlign <= 0 {
		o.Target.PtrAlign = o.Target.PtrSize
	}
	if o.MaxScalars <= 0 {
		o.MaxScalars = DefaultMaxScalars
	}
	return o
}

// Field is one named member of an aggregate.
type Field struct {
	Name string
	Type types.Type
}

// StructDef is a named aggregate. Field order determines offsets.
type StructDef struct {
	Name   string
	Fields []Field
}

// Variant is one alternative of a tagged union. Its tag is its index.
type Variant struct {
	Name   string
	Fields []types.Type
}

// UnionDef is a named tagged union.
type UnionDef struct {
	Name     string
	Variants []Variant
}

// FuncDef is a declared function's source-level signature.
type FuncDef struct {
	Name   string
	Params []types.Type
	Result types.Type
}

// StructLayout is the derived memory and ABI shape of one aggregate.
type StructLayout struct {
	Size         int
	Align        int
	FieldOffsets []int

	// Leaf scalars in declaration order, recursing into nested aggregates,
	// with their byte offsets from the start of the aggregate.
	Scalars       []ir.Type
	ScalarOffsets []int

	Mode PassingMode
}

// UnionLayout is the in-memory shape of a tagged union value: an i32 tag
// followed by a pointer-wide payload.
type UnionLayout struct {
	Size          int
	Align         int
	TagType       ir.Type
	TagSize       int
	PayloadType   ir.Type
	PayloadOffset int
}

// TagType is the backend type of every union tag.
const TagType = ir.I32

// FuncLayout is the lowered signature of a declared function.
type FuncLayout struct {
	Def          FuncDef
	Signature    ir.Signature
	StructReturn bool
}

// Table is the immutable result of Builder.Build. All queries are pure
// reads and safe for concurrent use.
type Table struct {
	opts    Options
	structs map[string]*StructDef
	unions  map[string]*UnionDef
	funcs   map[string]*FuncDef
	cache   *cache
}

// Options returns the options the table was built with.
func (t *Table) Options() Options { return t.opts }

// Target returns the table's target.
func (t *Table) Target() Target { return t.opts.Target }

// PointerType returns the backend type of addresses on the table's target.
func (t *Table) PointerType() ir.Type { return t.opts.Target.PointerType() }

// Struct returns the definition of an aggregate.
func (t *Table) Struct(name string) (*StructDef, error) {
	def, ok := t.structs[name]
	if !ok {
		return nil, &LayoutError{Kind: LayoutErrUnknownStruct, Name: name}
	}
	return def, nil
}

// Union returns the definition of a tagged union.
func (t *Table) Union(name string) (*UnionDef, error) {
	def, ok := t.unions[name]
	if !ok {
		return nil, &LayoutError{Kind: LayoutErrUnknownUnion, Name: name}
	}
	return def, nil
}

// Func returns the lowered signature record of a declared function.
func (t *Table) Func(name string) (*FuncLayout, error) {
	fl, ok := t.cache.funcs[name]
	if !ok {
		return nil, &LayoutError{Kind: LayoutErrUnknownFunction, Name: name}
	}
	return fl, nil
}

// Layout returns the derived layout of an aggregate.
func (t *Table) Layout(name string) (*StructLayout, error) {
	sl, ok := t.cache.getStruct(name)
	if !ok {
		return nil, &LayoutError{Kind: LayoutErrUnknownStruct, Name: name}
	}
	return sl, nil
}

// UnionLayout returns the in-memory shape of a union value.
func (t *Table) UnionLayout(name string) (UnionLayout, error) {
	if _, err := t.Union(name); err != nil {
		return UnionLayout{}, err
	}
	return t.cache.union, nil
}

// PassingMode classifies an aggregate by its flattened scalar count.
func (t *Table) PassingMode(name string) (PassingMode, error) {
	sl, err := t.Layout(name)
	if err != nil {
		return ByScalars, err
	}
	return sl.Mode, nil
}

// PassingModeOf classifies any type. Integers and unit always travel by
// scalars.
func (t *Table) PassingModeOf(ty types.Type) (PassingMode, error) {
	switch ty.Kind {
	case types.KindInt, types.KindUnit:
		return ByScalars, nil
	case types.KindStruct:
		return t.PassingMode(ty.Name)
	}
	return ByScalars, t.unsupported(ty, "has no passing mode")
}

// Scalars returns the flattened leaf scalars of ty.
func (t *Table) Scalars(ty types.Type) ([]ir.Type, error) {
	switch ty.Kind {
	case types.KindUnit:
		return nil, nil
	case types.KindInt:
		st, err := ScalarType(ty)
		if err != nil {
			return nil, err
		}
		return []ir.Type{st}, nil
	case types.KindStruct:
		sl, err := t.Layout(ty.Name)
		if err != nil {
			return nil, err
		}
		return sl.Scalars, nil
	}
	return nil, t.unsupported(ty, "cannot be flattened")
}

// ScalarCount returns len(Scalars(ty)).
func (t *Table) ScalarCount(ty types.Type) (int, error) {
	s, err := t.Scalars(ty)
	return len(s), err
}

// SizeOf returns the size of ty in bytes under the table's policy.
func (t *Table) SizeOf(ty types.Type) (int, error) {
	switch ty.Kind {
	case types.KindUnit:
		return 0, nil
	case types.KindInt:
		if !ty.Width.Valid() {
			return 0, t.unsupported(ty, "invalid integer width")
		}
		return ty.Width.Bytes(), nil
	case types.KindStruct:
		sl, err := t.Layout(ty.Name)
		if err != nil {
			return 0, err
		}
		return sl.Size, nil
	case types.KindUnion:
		ul, err := t.UnionLayout(ty.Name)
		return ul.Size, err
	}
	return 0, t.unsupported(ty, "has no size")
}

// AlignOf returns the alignment of ty in bytes under the table's policy.
func (t *Table) AlignOf(ty types.Type) (int, error) {
	switch ty.Kind {
	case types.KindUnit:
		return 1, nil
	case types.KindInt:
		if t.opts.Policy == PolicyPacked {
			return 1, nil
		}
		if !ty.Width.Valid() {
			return 0, t.unsupported(ty, "invalid integer width")
		}
		return ty.Width.Bytes(), nil
	case types.KindStruct:
		sl, err := t.Layout(ty.Name)
		if err != nil {
			return 0, err
		}
		return sl.Align, nil
	case types.KindUnion:
		ul, err := t.UnionLayout(ty.Name)
		return ul.Align, err
	}
	return 0, t.unsupported(ty, "has no alignment")
}

// OffsetOf returns the byte offset of field i of an aggregate.
func (t *Table) OffsetOf(structName string, i int) (int, error) {
	sl, err := t.Layout(structName)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(sl.FieldOffsets) {
		return 0, &LayoutError{Kind: LayoutErrUnknownField, Name: structName, Member: fmt.Sprintf("#%d", i)}
	}
	return sl.FieldOffsets[i], nil
}

// FieldIndex returns the declaration index of a named field.
func (t *Table) FieldIndex(structName, field string) (int, error) {
	def, err := t.Struct(structName)
	if err != nil {
		return 0, err
	}
	for i := range def.Fields {
		if def.Fields[i].Name == field {
			return i, nil
		}
	}
	return 0, &LayoutError{Kind: LayoutErrUnknownField, Name: structName, Member: field}
}

// FieldType returns the type of field i of an aggregate.
func (t *Table) FieldType(structName string, i int) (types.Type, error) {
	def, err := t.Struct(structName)
	if err != nil {
		return types.Type{}, err
	}
	if i < 0 || i >= len(def.Fields) {
		return types.Type{}, &LayoutError{Kind: LayoutErrUnknownField, Name: structName, Member: fmt.Sprintf("#%d", i)}
	}
	return def.Fields[i].Type, nil
}

// Fields returns the declared fields of ty. Unit has none.
func (t *Table) Fields(ty types.Type) ([]Field, error) {
	switch ty.Kind {
	case types.KindUnit:
		return nil, nil
	case types.KindStruct:
		def, err := t.Struct(ty.Name)
		if err != nil {
			return nil, err
		}
		return def.Fields, nil
	}
	return nil, t.unsupported(ty, "has no fields")
}

// Variant returns the tag and definition of a union variant.
func (t *Table) Variant(unionName, variant string) (int, *Variant, error) {
	def, err := t.Union(unionName)
	if err != nil {
		return 0, nil, err
	}
	for i := range def.Variants {
		if def.Variants[i].Name == variant {
			return i, &def.Variants[i], nil
		}
	}
	return 0, nil, &LayoutError{Kind: LayoutErrUnknownVariant, Name: unionName, Member: variant}
}

// VariantAt returns the variant with the given tag.
func (t *Table) VariantAt(unionName string, tag int) (*Variant, error) {
	def, err := t.Union(unionName)
	if err != nil {
		return nil, err
	}
	if tag < 0 || tag >= len(def.Variants) {
		return nil, &LayoutError{Kind: LayoutErrUnknownVariant, Name: unionName, Member: fmt.Sprintf("#%d", tag)}
	}
	return &def.Variants[tag], nil
}

// Signature returns the lowered backend signature of a declared function.
func (t *Table) Signature(name string) (ir.Signature, error) {
	fl, err := t.Func(name)
	if err != nil {
		return ir.Signature{}, err
	}
	return fl.Signature.Clone(), nil
}

// SignatureFor lowers an arbitrary parameter/result list with the table's
// calling convention. It reports whether a struct-return parameter was added.
func (t *Table) SignatureFor(params []types.Type, result types.Type) (ir.Signature, bool, error) {
	return t.lowerSignature(params, result)
}

// ScalarOffsets packs a list of scalars the way an aggregate with those
// fields would be packed. It returns each scalar's offset and the total size
// and alignment.
func (t *Table) ScalarOffsets(scalars []ir.Type) (offsets []int, size, align int) {
	offsets = make([]int, len(scalars))
	align = 1
	for i, s := range scalars {
		a := t.scalarAlign(s)
		size = roundUp(size, a)
		offsets[i] = size
		size += s.Bytes()
		align = maxInt(align, a)
	}
	size = roundUp(size, align)
	return offsets, size, align
}

// StructNames returns all aggregate names in sorted order.
func (t *Table) StructNames() []string { return sortedKeys(t.structs) }

// UnionNames returns all union names in sorted order.
func (t *Table) UnionNames() []string { return sortedKeys(t.unions) }

// FuncNames returns all function names in sorted order.
func (t *Table) FuncNames() []string { return sortedKeys(t.funcs) }

// ScalarType maps an integer type to its backend scalar.
func ScalarType(ty types.Type) (ir.Type, error) {
	if ty.Kind != types.KindInt {
		return ir.TypeInvalid, &LayoutError{Kind: LayoutErrInvalidType, Name: ty.String(), Detail: "not a scalar"}
	}
	st, ok := ir.IntWithByteSize(ty.Width.Bytes())
	if !ok {
		return ir.TypeInvalid, &LayoutError{Kind: LayoutErrInvalidType, Name: ty.String(), Detail: "invalid integer width"}
	}
	return st, nil
}

func (t *Table) unsupported(ty types.Type, detail string) error {
	return &LayoutError{Kind: LayoutErrUnsupported, Name: ty.String(), Detail: detail}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
