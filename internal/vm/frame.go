package vm

import (
	"abilower/internal/ir"
)

// Frame represents a function activation record on the call stack.
type Frame struct {
	Func   *ir.Function
	Block  ir.Block // Current basic block
	IP     int      // Instruction pointer within the block
	Values []uint64 // SSA values, indexed by ir.Value
	Slots  []uint64 // Base address of each stack slot
	SP     uint64   // Stack pointer to restore on return
}

// NewFrame creates a new frame for executing fn. Stack slots are assigned by
// the VM before the first instruction runs.
func NewFrame(fn *ir.Function) *Frame {
	return &Frame{
		Func:   fn,
		Block:  fn.Entry(),
		Values: make([]uint64, len(fn.Values)),
		Slots:  make([]uint64, len(fn.Slots)),
	}
}

// CurrentBlock returns the current basic block being executed.
func (f *Frame) CurrentBlock() *ir.BlockData {
	return f.Func.Block(f.Block)
}

// CurrentInst returns the current instruction, or nil past the end.
func (f *Frame) CurrentInst() *ir.Inst {
	block := f.CurrentBlock()
	if block == nil || f.IP >= len(block.Insts) {
		return nil
	}
	return &block.Insts[f.IP]
}

func (f *Frame) get(v ir.Value) uint64 {
	return f.Values[v]
}

func (f *Frame) set(v ir.Value, x uint64) {
	f.Values[v] = x & f.Func.ValueType(v).Mask()
}

func (f *Frame) jump(dest ir.Block, args []uint64) {
	params := f.Func.Block(dest).Params
	for i, p := range params {
		f.set(p, args[i])
	}
	f.Block = dest
	f.IP = 0
}
