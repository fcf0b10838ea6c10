package ir

import "fmt"

// Type is a primitive scalar type understood by the backend.
type Type uint8

const (
	TypeInvalid Type = iota
	I8
	I16
	I32
	I64
)

// Bytes returns the storage size of the type.
func (t Type) Bytes() int {
	switch t {
	case I8:
		return 1
	case I16:
		return 2
	case I32:
		return 4
	case I64:
		return 8
	default:
		return 0
	}
}

// Bits returns the bit width of the type.
func (t Type) Bits() int {
	return t.Bytes() * 8
}

// Mask returns the bit mask covering the type's width.
func (t Type) Mask() uint64 {
	if t == I64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(t.Bits())) - 1
}

func (t Type) String() string {
	switch t {
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// IntWithByteSize returns the integer type with the given byte size.
func IntWithByteSize(n int) (Type, bool) {
	switch n {
	case 1:
		return I8, true
	case 2:
		return I16, true
	case 4:
		return I32, true
	case 8:
		return I64, true
	}
	return TypeInvalid, false
}

// Value is an SSA value local to one Function.
type Value int32

// Block identifies a basic block local to one Function.
type Block int32

// StackSlot identifies a fixed-size stack region of one Function.
type StackSlot int32

// FuncRef is a function-local reference to a declared function.
type FuncRef int32

// SigRef is a function-local reference to an imported signature.
type SigRef int32

// JumpTable identifies a multi-way branch table of one Function.
type JumpTable int32

// FuncID identifies a declared function within a Module.
type FuncID int32

const (
	NoValue  Value  = -1
	NoBlock  Block  = -1
	NoFuncID FuncID = -1
)

func (v Value) String() string     { return fmt.Sprintf("v%d", int32(v)) }
func (b Block) String() string     { return fmt.Sprintf("block%d", int32(b)) }
func (s StackSlot) String() string { return fmt.Sprintf("ss%d", int32(s)) }
func (f FuncRef) String() string   { return fmt.Sprintf("fn%d", int32(f)) }
func (s SigRef) String() string    { return fmt.Sprintf("sig%d", int32(s)) }
func (j JumpTable) String() string { return fmt.Sprintf("jt%d", int32(j)) }

// TrapCode identifies why a trap instruction fired.
type TrapCode uint16

// TrapUserBase is where user-defined trap codes start; codes below it are
// reserved for the backend.
const TrapUserBase TrapCode = 1 << 8

// UserTrap returns the trap code for a user-chosen code.
func UserTrap(code uint8) TrapCode {
	return TrapUserBase + TrapCode(code)
}

// User reports the user code when c was produced by UserTrap.
func (c TrapCode) User() (uint8, bool) {
	if c < TrapUserBase || c > TrapUserBase+0xff {
		return 0, false
	}
	return uint8(c - TrapUserBase), true
}

func (c TrapCode) String() string {
	if u, ok := c.User(); ok {
		return fmt.Sprintf("user%d", u)
	}
	return fmt.Sprintf("trap%d", uint16(c))
}
