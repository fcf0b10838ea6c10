package layout

import (
	"errors"

	"abilower/internal/types"
)

// Builder collects aggregate, union and function definitions. Build turns
// them into an immutable Table; the Builder must not be reused afterwards.
type Builder struct {
	opts    Options
	structs []StructDef
	unions  []UnionDef
	funcs   []FuncDef
}

// NewBuilder starts an empty table with the given options.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts.normalized()}
}

// Struct declares an aggregate.
func (b *Builder) Struct(name string, fields ...Field) *Builder {
	b.structs = append(b.structs, StructDef{Name: name, Fields: append([]Field(nil), fields...)})
	return b
}

// Union declares a tagged union. Variant tags follow declaration order.
func (b *Builder) Union(name string, variants ...Variant) *Builder {
	vs := make([]Variant, len(variants))
	for i, v := range variants {
		vs[i] = Variant{Name: v.Name, Fields: append([]types.Type(nil), v.Fields...)}
	}
	b.unions = append(b.unions, UnionDef{Name: name, Variants: vs})
	return b
}

// Func declares a function's source-level signature.
func (b *Builder) Func(name string, params []types.Type, result types.Type) *Builder {
	b.funcs = append(b.funcs, FuncDef{Name: name, Params: append([]types.Type(nil), params...), Result: result})
	return b
}

// F is shorthand for a Field.
func F(name string, ty types.Type) Field {
	return Field{Name: name, Type: ty}
}

// V is shorthand for a Variant.
func V(name string, fields ...types.Type) Variant {
	return Variant{Name: name, Fields: fields}
}

// Build validates every definition, computes all layouts and lowered
// signatures, and returns the table. All problems found are joined.
func (b *Builder) Build() (*Table, error) {
	t := &Table{
		opts:    b.opts,
		structs: make(map[string]*StructDef, len(b.structs)),
		unions:  make(map[string]*UnionDef, len(b.unions)),
		funcs:   make(map[string]*FuncDef, len(b.funcs)),
		cache:   newCache(),
	}
	var errs []error
	add := func(err *LayoutError) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	for i := range b.structs {
		def := &b.structs[i]
		if _, dup := t.structs[def.Name]; dup {
			add(&LayoutError{Kind: LayoutErrDuplicate, Name: def.Name})
			continue
		}
		t.structs[def.Name] = def
	}
	for i := range b.unions {
		def := &b.unions[i]
		if _, dup := t.structs[def.Name]; dup {
			add(&LayoutError{Kind: LayoutErrDuplicate, Name: def.Name, Detail: "union shares a name with a struct"})
			continue
		}
		if _, dup := t.unions[def.Name]; dup {
			add(&LayoutError{Kind: LayoutErrDuplicate, Name: def.Name})
			continue
		}
		t.unions[def.Name] = def
	}
	for i := range b.funcs {
		def := &b.funcs[i]
		if _, dup := t.funcs[def.Name]; dup {
			add(&LayoutError{Kind: LayoutErrDuplicate, Name: def.Name})
			continue
		}
		t.funcs[def.Name] = def
	}

	// Names parsed from text arrive as struct references; rebind the ones
	// that name unions so later checks see the right kind.
	for i := range b.structs {
		def := &b.structs[i]
		if t.structs[def.Name] != def {
			continue
		}
		seen := make(map[string]struct{}, len(def.Fields))
		for j := range def.Fields {
			f := &def.Fields[j]
			if _, dup := seen[f.Name]; dup {
				add(&LayoutError{Kind: LayoutErrDuplicate, Name: def.Name, Member: f.Name})
			}
			seen[f.Name] = struct{}{}
			f.Type = t.resolve(f.Type)
			add(t.checkRef(def.Name, f.Name, f.Type))
		}
	}
	for i := range b.unions {
		def := &b.unions[i]
		if t.unions[def.Name] != def {
			continue
		}
		seen := make(map[string]struct{}, len(def.Variants))
		for j := range def.Variants {
			v := &def.Variants[j]
			if _, dup := seen[v.Name]; dup {
				add(&LayoutError{Kind: LayoutErrDuplicate, Name: def.Name, Member: v.Name})
			}
			seen[v.Name] = struct{}{}
			for _, ft := range v.Fields {
				if ft.Kind != types.KindInt || !ft.Width.Valid() {
					add(&LayoutError{Kind: LayoutErrInvalidPayload, Name: def.Name, Member: v.Name, Detail: "got " + ft.String()})
				}
			}
		}
	}
	for i := range b.funcs {
		def := &b.funcs[i]
		if t.funcs[def.Name] != def {
			continue
		}
		for j := range def.Params {
			def.Params[j] = t.resolve(def.Params[j])
			add(t.checkRef(def.Name, "", def.Params[j]))
		}
		def.Result = t.resolve(def.Result)
		add(t.checkRef(def.Name, "", def.Result))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, name := range t.StructNames() {
		if _, err := t.structLayout(name, newLayoutState()); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	t.cache.union = t.computeUnionLayout()

	for _, name := range t.FuncNames() {
		def := t.funcs[name]
		sig, sret, err := t.lowerSignature(def.Params, def.Result)
		if err != nil {
			errs = append(errs, &LayoutError{Kind: LayoutErrUnsupported, Name: name, Detail: err.Error()})
			continue
		}
		t.cache.funcs[name] = &FuncLayout{Def: *def, Signature: sig, StructReturn: sret}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

func (t *Table) resolve(ty types.Type) types.Type {
	if ty.Kind == types.KindStruct {
		if _, ok := t.unions[ty.Name]; ok {
			return types.Union(ty.Name)
		}
	}
	return ty
}

func (t *Table) checkRef(owner, member string, ty types.Type) *LayoutError {
	switch ty.Kind {
	case types.KindUnit:
		return nil
	case types.KindInt:
		if !ty.Width.Valid() {
			return &LayoutError{Kind: LayoutErrInvalidType, Name: owner, Member: member, Detail: "invalid integer width"}
		}
		return nil
	case types.KindStruct:
		if _, ok := t.structs[ty.Name]; !ok {
			return &LayoutError{Kind: LayoutErrUnknownStruct, Name: ty.Name, Detail: "referenced from " + owner}
		}
		return nil
	case types.KindUnion:
		return &LayoutError{Kind: LayoutErrUnsupported, Name: owner, Member: member, Detail: "union " + ty.Name + " can only be used locally"}
	}
	return &LayoutError{Kind: LayoutErrInvalidType, Name: owner, Member: member}
}
