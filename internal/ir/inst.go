package ir

import "fmt"

// Opcode enumerates instruction kinds.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	// OpIconst materializes an integer constant.
	OpIconst
	// OpIadd adds two integers of the same type.
	OpIadd
	// OpIaddImm adds an immediate to an integer.
	OpIaddImm
	// OpIsub subtracts two integers of the same type.
	OpIsub
	// OpImul multiplies two integers of the same type.
	OpImul
	// OpSextend sign-extends to a wider type.
	OpSextend
	// OpUextend zero-extends to a wider type.
	OpUextend
	// OpIreduce truncates to a narrower type.
	OpIreduce
	// OpLoad reads a scalar from pointer+offset.
	OpLoad
	// OpStore writes a scalar to pointer+offset.
	OpStore
	// OpStackAddr takes the address of a stack slot.
	OpStackAddr
	// OpFuncAddr takes the address of a referenced function.
	OpFuncAddr
	// OpCall calls a referenced function directly.
	OpCall
	// OpCallIndirect calls through a function pointer with an imported signature.
	OpCallIndirect
	// OpReturn returns from the function.
	OpReturn
	// OpTrap terminates the program abnormally.
	OpTrap
	// OpJump branches unconditionally, passing block arguments.
	OpJump
	// OpBrTable branches through a jump table keyed by an integer.
	OpBrTable
)

var opcodeNames = [...]string{
	OpInvalid:      "invalid",
	OpIconst:       "iconst",
	OpIadd:         "iadd",
	OpIaddImm:      "iadd_imm",
	OpIsub:         "isub",
	OpImul:         "imul",
	OpSextend:      "sextend",
	OpUextend:      "uextend",
	OpIreduce:      "ireduce",
	OpLoad:         "load",
	OpStore:        "store",
	OpStackAddr:    "stack_addr",
	OpFuncAddr:     "func_addr",
	OpCall:         "call",
	OpCallIndirect: "call_indirect",
	OpReturn:       "return",
	OpTrap:         "trap",
	OpJump:         "jump",
	OpBrTable:      "br_table",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsTerminator reports whether op ends a basic block.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpReturn, OpTrap, OpJump, OpBrTable:
		return true
	}
	return false
}

// Inst is one instruction. Only the fields relevant to Op are populated.
type Inst struct {
	Op      Opcode
	Type    Type // controlling type: iconst, extends, load, stack_addr, func_addr
	Args    []Value
	Results []Value

	Imm    int64
	Offset int32

	Slot  StackSlot
	Func  FuncRef
	Sig   SigRef
	Table JumpTable
	Dest  Block
	Trap  TrapCode
}
