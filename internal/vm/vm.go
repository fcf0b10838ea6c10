package vm

import (
	"fmt"

	"abilower/internal/ir"
	"abilower/internal/trace"
)

// Options configures VM execution.
type Options struct {
	MaxDepth  int          // maximum call depth (default 1024)
	StackSize int          // bytes of stack memory (default 1 MiB)
	Tracer    trace.Tracer // optional; call spans are emitted at ScopeFunc
}

const (
	defaultMaxDepth  = 1024
	defaultStackSize = 1 << 20
)

// VM interprets a lowered ir.Module. Integers are held as uint64 masked to
// their type's width; memory is one little-endian stack shared by all frames.
type VM struct {
	M     *ir.Module
	opts  Options
	mem   *rawMemory
	stack []*Frame
	eb    *errorBuilder
}

// New creates a new VM for executing the given module.
func New(m *ir.Module, opts Options) *VM {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	if opts.StackSize <= 0 {
		opts.StackSize = defaultStackSize
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	vm := &VM{
		M:    m,
		opts: opts,
		mem:  newRawMemory(opts.StackSize),
	}
	vm.eb = &errorBuilder{vm: vm}
	return vm
}

// Call runs the named function with primitive arguments and returns its
// primitive results. A failed run returns a *VMError.
func (vm *VM) Call(name string, args ...uint64) ([]uint64, error) {
	id, ok := vm.M.FuncByName(name)
	if !ok {
		return nil, fmt.Errorf("vm: unknown function %q", name)
	}
	return vm.CallID(id, args)
}

// CallID runs a function by id.
func (vm *VM) CallID(id ir.FuncID, args []uint64) ([]uint64, error) {
	span := trace.Begin(vm.opts.Tracer, trace.ScopeFunc, "vm:call", 0)
	res, vmErr := vm.call(id, args)
	if vmErr != nil {
		span.WithExtra("code", vmErr.Code.String()).End(vmErr.Message)
		return nil, vmErr
	}
	span.WithExtra("peak_stack", fmt.Sprint(vm.PeakStack())).End(vm.M.Decls[id].Name)
	return res, nil
}

// PeakStack reports the largest number of stack bytes in use so far.
func (vm *VM) PeakStack() uint64 {
	return vm.mem.peak - StackBase
}

// Load reads a scalar of type t from memory.
func (vm *VM) Load(addr uint64, t ir.Type) (uint64, error) {
	v, ok := vm.mem.load(addr, t)
	if !ok {
		return 0, vm.eb.outOfBounds(addr, t.Bytes())
	}
	return v, nil
}

// FuncAddr returns the address func_addr produces for id.
func FuncAddr(id ir.FuncID) uint64 {
	return FuncAddrBase + uint64(id)*FuncAddrStride
}

func (vm *VM) funcAt(addr uint64) (ir.FuncID, bool) {
	if addr < FuncAddrBase || (addr-FuncAddrBase)%FuncAddrStride != 0 {
		return ir.NoFuncID, false
	}
	idx := (addr - FuncAddrBase) / FuncAddrStride
	if idx >= uint64(len(vm.M.Decls)) {
		return ir.NoFuncID, false
	}
	return ir.FuncID(idx), true
}

func (vm *VM) call(id ir.FuncID, args []uint64) ([]uint64, *VMError) {
	decl := vm.M.Decl(id)
	if decl == nil {
		return nil, vm.eb.badIndirectCall("unknown function id %d", id)
	}
	fn := vm.M.Function(id)
	if fn == nil {
		return nil, vm.eb.unresolved(decl.Name)
	}
	if len(args) != len(fn.Signature.Params) {
		return nil, vm.eb.typeMismatch("%s takes %d arguments, got %d", decl.Name, len(fn.Signature.Params), len(args))
	}
	if len(vm.stack) >= vm.opts.MaxDepth {
		return nil, vm.eb.stackOverflow(fmt.Sprintf("call depth exceeds %d entering %s", vm.opts.MaxDepth, decl.Name))
	}

	frame := NewFrame(fn)
	frame.SP = vm.mem.sp
	for i, s := range fn.Slots {
		base, ok := vm.mem.alloc(s.Size, uint64(1)<<s.AlignShift)
		if !ok {
			vm.mem.sp = frame.SP
			return nil, vm.eb.stackOverflow(fmt.Sprintf("stack of %d bytes exhausted in %s", len(vm.mem.data), decl.Name))
		}
		frame.Slots[i] = base
	}
	frame.jump(fn.Entry(), args)

	vm.stack = append(vm.stack, frame)
	res, err := vm.run(frame)
	vm.stack = vm.stack[:len(vm.stack)-1]
	vm.mem.sp = frame.SP
	return res, err
}

// Signed interprets a result of type t as a signed integer.
func Signed(v uint64, t ir.Type) int64 {
	return int64(signExtend(v&t.Mask(), t))
}
