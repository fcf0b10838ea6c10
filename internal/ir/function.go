package ir

// BlockData holds the parameters and instructions of one basic block.
type BlockData struct {
	Params []Value
	Insts  []Inst
	Sealed bool
}

// Terminated reports whether the block ends in a terminator.
func (b *BlockData) Terminated() bool {
	if b == nil || len(b.Insts) == 0 {
		return false
	}
	return b.Insts[len(b.Insts)-1].Op.IsTerminator()
}

// StackSlotData describes an explicit stack allocation.
type StackSlotData struct {
	Size       uint32
	AlignShift uint8
}

// JumpTableData lists the targets of a br_table: Targets[i] is taken for
// index i and Default for anything out of range.
type JumpTableData struct {
	Default Block
	Targets []Block
}

// ExtFunc is a function-local view of a module-level declaration.
type ExtFunc struct {
	ID        FuncID
	Name      string
	Signature Signature
}

// Function is the body of one defined function.
type Function struct {
	Name      string
	Signature Signature

	Blocks []BlockData
	Values []Type // type of each Value, indexed by Value
	Slots  []StackSlotData
	Ext    []ExtFunc // indexed by FuncRef
	Sigs   []Signature
	Tables []JumpTableData
}

// Entry returns the entry block. The first created block is the entry.
func (f *Function) Entry() Block {
	if f == nil || len(f.Blocks) == 0 {
		return NoBlock
	}
	return 0
}

// ValueType returns the type of v.
func (f *Function) ValueType(v Value) Type {
	if f == nil || v < 0 || int(v) >= len(f.Values) {
		return TypeInvalid
	}
	return f.Values[v]
}

// Block returns the data for b, or nil when b is out of range.
func (f *Function) Block(b Block) *BlockData {
	if f == nil || b < 0 || int(b) >= len(f.Blocks) {
		return nil
	}
	return &f.Blocks[b]
}

// SpecialParam returns the entry-block value bound to the first parameter
// with the given purpose.
func (f *Function) SpecialParam(purpose ArgumentPurpose) (Value, bool) {
	idx, ok := f.Signature.SpecialParamIndex(purpose)
	if !ok {
		return NoValue, false
	}
	entry := f.Block(f.Entry())
	if entry == nil || idx >= len(entry.Params) {
		return NoValue, false
	}
	return entry.Params[idx], true
}

// InstCount returns the number of instructions across all blocks.
func (f *Function) InstCount() int {
	n := 0
	for i := range f.Blocks {
		n += len(f.Blocks[i].Insts)
	}
	return n
}
