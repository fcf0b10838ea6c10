package lower

import (
	"abilower/internal/ir"
	"abilower/internal/trace"
	"abilower/internal/types"
)

// ConstructClosure boxes captures on the stack and synthesizes a forwarding
// function for body. The captures bind body's leading parameters, which must
// be integers; the closure takes the remaining ones.
//
// The boxed captures live in the current frame, so the closure must not
// outlive it.
func (f *FuncLower) ConstructClosure(body string, captures []Value) (Closure, error) {
	if err := f.unit.err; err != nil {
		return Closure{}, err
	}
	c, err := f.constructClosure(body, captures)
	if err != nil {
		return Closure{}, f.fail(err)
	}
	return c, nil
}

func (f *FuncLower) constructClosure(body string, captures []Value) (Closure, error) {
	op := "closure"
	callee, err := f.Table().Func(body)
	if err != nil {
		return Closure{}, lookupErr(op, body, err)
	}
	params := callee.Def.Params
	if len(captures) > len(params) {
		return Closure{}, contractf(ContractArity, op, body, "takes %d parameters, got %d captures", len(params), len(captures))
	}
	scalars := make([]ir.Type, len(captures))
	vals := make([]ir.Value, len(captures))
	for i, c := range captures {
		s, ok := c.(Scalar)
		if !ok {
			return Closure{}, contractf(ContractShape, op, body, "capture %d is %s, captures must be scalars", i, Shape(c))
		}
		if s.T != params[i] {
			return Closure{}, contractf(ContractType, op, body, "capture %d is %s, want %s", i, s.T, params[i])
		}
		scalars[i] = f.b.ValueType(s.V)
		vals[i] = s.V
	}

	offsets, size, align := f.Table().ScalarOffsets(scalars)
	data, err := f.allocBytes("captures of "+body, size, align)
	if err != nil {
		return Closure{}, err
	}
	for i, x := range vals {
		at, err := offset32(0, offsets[i])
		if err != nil {
			return Closure{}, &ContractError{Kind: ContractBackend, Op: op, Name: body, Err: err}
		}
		f.b.Ins().Store(x, data, at)
	}

	bodyID, err := f.unit.Declare(body, ir.LinkageLocal)
	if err != nil {
		return Closure{}, err
	}
	name := f.unit.nextForwardName(body)
	sig := forwardSignature(f.unit.mod.Decl(bodyID).Signature, len(captures), f.ptr())
	fwdID, err := f.unit.defineForward(name, sig, bodyID, scalars, offsets)
	if err != nil {
		return Closure{}, err
	}
	trace.Point(f.unit.tracer, trace.ScopeNode, "forward", name+sig.String(), f.span.ID())

	ref := f.unit.mod.DeclareFuncInFunc(fwdID, f.b)
	return Closure{
		Data:    data,
		Func:    f.b.Ins().FuncAddr(f.ptr(), ref),
		Sig:     sig,
		Params:  append([]types.Type(nil), params[len(captures):]...),
		Result:  callee.Def.Result,
		Forward: name,
	}, nil
}

// forwardSignature replaces the n capture parameters of sig with one
// pointer. A struct-return parameter stays first.
func forwardSignature(sig ir.Signature, n int, ptr ir.Type) ir.Signature {
	out := ir.NewSignature(sig.CallConv)
	rest := sig.Params
	if sig.UsesStructReturnParam() {
		out.Params = append(out.Params, rest[0])
		rest = rest[1:]
	}
	out.Params = append(out.Params, ir.Param(ptr))
	out.Params = append(out.Params, rest[n:]...)
	out.Returns = append(out.Returns, sig.Returns...)
	return out
}

// defineForward emits a forwarding function: load the captures from the
// data pointer, call the body with them and the forwarded parameters, and
// return its results.
func (u *Unit) defineForward(name string, sig ir.Signature, body ir.FuncID, scalars []ir.Type, offsets []int) (ir.FuncID, error) {
	id, err := u.mod.DeclareFunction(name, ir.LinkageLocal, sig)
	if err != nil {
		return ir.NoFuncID, &ContractError{Kind: ContractBackend, Op: "closure", Name: name, Err: err}
	}
	b := ir.NewFunctionBuilder(name, sig)
	entry := b.CreateBlock()
	b.AppendBlockParamsForFunctionParams(entry)
	b.SwitchToBlock(entry)
	b.SealBlock(entry)

	params := b.BlockParams(entry)
	args := make([]ir.Value, 0, len(params)-1+len(scalars))
	if sig.UsesStructReturnParam() {
		args = append(args, params[0])
		params = params[1:]
	}
	data := params[0]
	for i, s := range scalars {
		at, err := offset32(0, offsets[i])
		if err != nil {
			return ir.NoFuncID, &ContractError{Kind: ContractBackend, Op: "closure", Name: name, Err: err}
		}
		args = append(args, b.Ins().Load(s, data, at))
	}
	args = append(args, params[1:]...)
	results := b.Ins().Call(u.mod.DeclareFuncInFunc(body, b), args)
	b.Ins().Return(results)

	if err := b.Finalize(); err != nil {
		return ir.NoFuncID, &ContractError{Kind: ContractBackend, Op: "closure", Name: name, Err: err}
	}
	if err := u.mod.DefineFunction(id, b.Func()); err != nil {
		return ir.NoFuncID, &ContractError{Kind: ContractBackend, Op: "closure", Name: name, Err: err}
	}
	return id, nil
}

// CallClosure invokes c indirectly, passing the boxed captures first.
func (f *FuncLower) CallClosure(c Closure, args []Value) (Value, error) {
	if err := f.unit.err; err != nil {
		return nil, err
	}
	argv, dest, err := f.marshalCall(c.Forward, c.Params, c.Result, c.StructReturn(), args, []ir.Value{c.Data})
	if err != nil {
		return nil, f.fail(err)
	}
	sig := f.b.ImportSignature(c.Sig)
	results := f.b.Ins().CallIndirect(sig, c.Func, argv)
	out, err := f.rebuildResult(c.Forward, c.Result, c.StructReturn(), dest, results)
	if err != nil {
		return nil, f.fail(err)
	}
	return out, nil
}
