package vm

import (
	"fmt"
	"strings"

	"abilower/internal/ir"
)

// PanicCode identifies the type of VM panic.
type PanicCode int

// Stable panic codes - do not change values.
const (
	PanicTypeMismatch    PanicCode = 1003 // VM1003: argument count or type mismatch
	PanicOutOfBounds     PanicCode = 1004 // VM1004: memory access outside the stack
	PanicTrap            PanicCode = 1101 // VM1101: trap instruction executed
	PanicBadIndirectCall PanicCode = 1102 // VM1102: call_indirect through a bad pointer or signature
	PanicStackOverflow   PanicCode = 1103 // VM1103: call depth or stack size exceeded
	PanicUnresolved      PanicCode = 1104 // VM1104: call to a function without a body
	PanicUnimplemented   PanicCode = 1999 // VM1999: unimplemented opcode
)

// String returns the code as "VM1001" format.
func (c PanicCode) String() string {
	return fmt.Sprintf("VM%d", c)
}

// BacktraceFrame represents one frame in the panic backtrace.
type BacktraceFrame struct {
	FuncName string
	Block    ir.Block
	Inst     int
}

// VMError represents an abnormal termination of the executed program.
type VMError struct {
	Code      PanicCode
	Message   string
	Trap      ir.TrapCode      // for PanicTrap
	Backtrace []BacktraceFrame // Stack frames from top to bottom
}

// Error implements the error interface.
func (p *VMError) Error() string {
	return fmt.Sprintf("panic %s: %s", p.Code, p.Message)
}

// Format renders the panic with its backtrace.
func (p *VMError) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "panic %s: %s\n", p.Code, p.Message)
	if len(p.Backtrace) > 0 {
		sb.WriteString("backtrace:\n")
		for i, frame := range p.Backtrace {
			fmt.Fprintf(&sb, "  %d: %s at %s inst %d\n", i, frame.FuncName, frame.Block, frame.Inst)
		}
	}
	return sb.String()
}

// errorBuilder helps construct VMError values.
type errorBuilder struct {
	vm *VM
}

func (eb *errorBuilder) makeError(code PanicCode, msg string) *VMError {
	e := &VMError{
		Code:    code,
		Message: msg,
	}

	// Build backtrace from stack (top to bottom)
	stack := eb.vm.stack
	e.Backtrace = make([]BacktraceFrame, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		frame := stack[i]
		e.Backtrace[len(stack)-1-i] = BacktraceFrame{
			FuncName: frame.Func.Name,
			Block:    frame.Block,
			Inst:     frame.IP,
		}
	}

	return e
}

func (eb *errorBuilder) trap(code ir.TrapCode) *VMError {
	e := eb.makeError(PanicTrap, fmt.Sprintf("trap %s", code))
	e.Trap = code
	return e
}

func (eb *errorBuilder) typeMismatch(format string, args ...any) *VMError {
	return eb.makeError(PanicTypeMismatch, fmt.Sprintf(format, args...))
}

func (eb *errorBuilder) outOfBounds(addr uint64, size int) *VMError {
	return eb.makeError(PanicOutOfBounds, fmt.Sprintf("access of %d bytes at %#x is outside the stack", size, addr))
}

func (eb *errorBuilder) badIndirectCall(format string, args ...any) *VMError {
	return eb.makeError(PanicBadIndirectCall, fmt.Sprintf(format, args...))
}

func (eb *errorBuilder) stackOverflow(what string) *VMError {
	return eb.makeError(PanicStackOverflow, what)
}

func (eb *errorBuilder) unresolved(name string) *VMError {
	return eb.makeError(PanicUnresolved, fmt.Sprintf("function %q has no body", name))
}

func (eb *errorBuilder) unimplemented(what string) *VMError {
	return eb.makeError(PanicUnimplemented, fmt.Sprintf("unimplemented: %s", what))
}
