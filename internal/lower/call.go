package lower

import (
	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/types"
)

// Call calls a table function with source-level arguments.
//
// When the callee returns by pointer the caller reserves the destination,
// passes it first, and the result is a stack aggregate over it. Otherwise
// the result is rebuilt from the returned scalars.
func (f *FuncLower) Call(name string, args []Value) (Value, error) {
	if err := f.unit.err; err != nil {
		return nil, err
	}
	callee, err := f.Table().Func(name)
	if err != nil {
		return nil, f.fail(lookupErr("call", name, err))
	}
	id, err := f.unit.Declare(name, ir.LinkageLocal)
	if err != nil {
		return nil, err
	}
	argv, dest, err := f.marshalCall(name, callee.Def.Params, callee.Def.Result, callee.StructReturn, args, nil)
	if err != nil {
		return nil, f.fail(err)
	}
	ref := f.unit.mod.DeclareFuncInFunc(id, f.b)
	results := f.b.Ins().Call(ref, argv)
	out, err := f.rebuildResult(name, callee.Def.Result, callee.StructReturn, dest, results)
	if err != nil {
		return nil, f.fail(err)
	}
	return out, nil
}

// marshalCall lowers a call's arguments. The struct-return destination, if
// any, goes first, then leading, then the marshalled args.
func (f *FuncLower) marshalCall(name string, params []types.Type, result types.Type, sret bool, args []Value, leading []ir.Value) ([]ir.Value, ir.Value, error) {
	if len(args) != len(params) {
		return nil, ir.NoValue, contractf(ContractArity, "call", name, "takes %d arguments, got %d", len(params), len(args))
	}
	var argv []ir.Value
	dest := ir.NoValue
	if sret {
		var err error
		dest, err = f.alloc(result)
		if err != nil {
			return nil, ir.NoValue, err
		}
		argv = append(argv, dest)
	}
	argv = append(argv, leading...)
	for i, a := range args {
		if !sameType(a, params[i]) {
			return nil, ir.NoValue, contractf(ContractType, "call", name, "argument %d is %s, want %s", i, a.Type(), params[i])
		}
		xs, err := f.marshalArg(a)
		if err != nil {
			return nil, ir.NoValue, err
		}
		argv = append(argv, xs...)
	}
	return argv, dest, nil
}

// marshalArg turns one argument into backend call arguments according to
// its passing mode.
func (f *FuncLower) marshalArg(v Value) ([]ir.Value, error) {
	mode, err := f.Table().PassingModeOf(v.Type())
	if err != nil {
		return nil, lookupErr("call", v.Type().String(), err)
	}
	if mode == layout.ByPointer {
		ptr, err := f.address(v)
		if err != nil {
			return nil, err
		}
		return []ir.Value{ptr}, nil
	}
	return f.flatten(v)
}

func (f *FuncLower) rebuildResult(name string, result types.Type, sret bool, dest ir.Value, results []ir.Value) (Value, error) {
	if sret {
		return StackAggregate{T: result, Ptr: dest}, nil
	}
	v, used, err := f.unflatten(result, results, 0)
	if err != nil {
		return nil, err
	}
	if used != len(results) {
		return nil, contractf(ContractArity, "call", name, "returned %d scalars, %s needs %d", len(results), result, used)
	}
	return v, nil
}

// Return returns v from the function being lowered. A by-pointer result is
// copied field by field through the struct-return parameter and the
// function returns no values.
func (f *FuncLower) Return(v Value) error {
	if err := f.unit.err; err != nil {
		return err
	}
	want := f.fn.Def.Result
	if !sameType(v, want) {
		return f.fail(contractf(ContractType, "return", f.Name(), "returns %s, got %s", want, v.Type()))
	}
	if f.fn.StructReturn {
		if err := f.store(f.sret, 0, v); err != nil {
			return f.fail(err)
		}
		f.b.Ins().Return(nil)
		return nil
	}
	vals, err := f.flatten(v)
	if err != nil {
		return f.fail(err)
	}
	f.b.Ins().Return(vals)
	return nil
}
