package layout

import (
	"fortio.org/safecast"

	"abilower/internal/ir"
	"abilower/internal/types"
)

type layoutState struct {
	stack []string
	index map[string]int
}

func newLayoutState() *layoutState {
	return &layoutState{
		stack: nil,
		index: make(map[string]int, 32),
	}
}

func (t *Table) structLayout(name string, state *layoutState) (*StructLayout, *LayoutError) {
	if cached, ok := t.cache.getStruct(name); ok {
		return cached, nil
	}
	if state == nil {
		state = newLayoutState()
	}
	if idx, ok := state.index[name]; ok {
		cycle := append([]string(nil), state.stack[idx:]...)
		cycle = append(cycle, name)
		return nil, &LayoutError{
			Kind:  LayoutErrRecursiveUnsized,
			Name:  name,
			Cycle: cycle,
		}
	}
	def, ok := t.structs[name]
	if !ok {
		return nil, &LayoutError{Kind: LayoutErrUnknownStruct, Name: name}
	}

	state.index[name] = len(state.stack)
	state.stack = append(state.stack, name)
	sl, err := t.computeStruct(def, state)
	state.stack = state.stack[:len(state.stack)-1]
	delete(state.index, name)
	if err != nil {
		return nil, err
	}
	t.cache.putStruct(name, sl)
	return sl, nil
}

func (t *Table) computeStruct(def *StructDef, state *layoutState) (*StructLayout, *LayoutError) {
	sl := &StructLayout{
		Align:        1,
		FieldOffsets: make([]int, len(def.Fields)),
	}
	size := 0
	for i := range def.Fields {
		f := &def.Fields[i]
		var (
			fSize, fAlign int
			scalars       []ir.Type
			scalarOffsets []int
		)
		switch f.Type.Kind {
		case types.KindUnit:
			fSize, fAlign = 0, 1
		case types.KindInt:
			st, err := ScalarType(f.Type)
			if err != nil {
				return nil, &LayoutError{Kind: LayoutErrInvalidType, Name: def.Name, Member: f.Name, Detail: err.Error()}
			}
			fSize, fAlign = st.Bytes(), t.scalarAlign(st)
			scalars, scalarOffsets = []ir.Type{st}, []int{0}
		case types.KindStruct:
			nested, err := t.structLayout(f.Type.Name, state)
			if err != nil {
				return nil, err
			}
			fSize, fAlign = nested.Size, nested.Align
			scalars, scalarOffsets = nested.Scalars, nested.ScalarOffsets
		default:
			return nil, &LayoutError{Kind: LayoutErrUnsupported, Name: def.Name, Member: f.Name, Detail: f.Type.String() + " cannot be an aggregate field"}
		}
		size = roundUp(size, fAlign)
		sl.FieldOffsets[i] = size
		for j, s := range scalars {
			sl.Scalars = append(sl.Scalars, s)
			sl.ScalarOffsets = append(sl.ScalarOffsets, size+scalarOffsets[j])
		}
		size += fSize
		sl.Align = maxInt(sl.Align, fAlign)
	}
	sl.Size = roundUp(size, sl.Align)
	if _, err := safecast.Conv[int32](sl.Size); err != nil {
		return nil, &LayoutError{Kind: LayoutErrSizeOverflow, Name: def.Name, Detail: err.Error()}
	}
	if len(sl.Scalars) > t.opts.MaxScalars {
		sl.Mode = ByPointer
	}
	return sl, nil
}

func (t *Table) scalarAlign(s ir.Type) int {
	if t.opts.Policy == PolicyPacked {
		return 1
	}
	return maxInt(1, s.Bytes())
}

func (t *Table) computeUnionLayout() UnionLayout {
	ptr := t.opts.Target
	tagSize := TagType.Bytes()
	tagAlign, payloadAlign := tagSize, ptr.PtrAlign
	if t.opts.Policy == PolicyPacked {
		tagAlign, payloadAlign = 1, 1
	}
	payloadOffset := roundUp(tagSize, payloadAlign)
	align := maxInt(tagAlign, payloadAlign)
	return UnionLayout{
		Size:          roundUp(payloadOffset+ptr.PtrSize, align),
		Align:         align,
		TagType:       TagType,
		TagSize:       tagSize,
		PayloadType:   ptr.PointerType(),
		PayloadOffset: payloadOffset,
	}
}

func (t *Table) lowerSignature(params []types.Type, result types.Type) (ir.Signature, bool, error) {
	sig := ir.NewSignature(t.opts.CallConv)
	ptr := t.PointerType()
	sret := false

	switch result.Kind {
	case types.KindUnit:
	case types.KindInt, types.KindStruct:
		mode, err := t.PassingModeOf(result)
		if err != nil {
			return ir.Signature{}, false, err
		}
		if mode == ByPointer {
			sig.Params = append(sig.Params, ir.Special(ptr, ir.PurposeStructReturn))
			sret = true
			break
		}
		scalars, err := t.Scalars(result)
		if err != nil {
			return ir.Signature{}, false, err
		}
		for _, s := range scalars {
			sig.Returns = append(sig.Returns, ir.Param(s))
		}
	default:
		return ir.Signature{}, false, t.unsupported(result, "cannot be returned")
	}

	for _, p := range params {
		switch p.Kind {
		case types.KindUnit, types.KindInt, types.KindStruct:
		default:
			return ir.Signature{}, false, t.unsupported(p, "cannot be a parameter")
		}
		mode, err := t.PassingModeOf(p)
		if err != nil {
			return ir.Signature{}, false, err
		}
		if mode == ByPointer {
			sig.Params = append(sig.Params, ir.Param(ptr))
			continue
		}
		scalars, err := t.Scalars(p)
		if err != nil {
			return ir.Signature{}, false, err
		}
		for _, s := range scalars {
			sig.Params = append(sig.Params, ir.Param(s))
		}
	}
	return sig, sret, nil
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
