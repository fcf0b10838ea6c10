package lower

import (
	"fmt"
	"strconv"

	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/trace"
)

// BodyFunc lowers one function body. params holds the reconstructed
// source-level parameters in declaration order.
type BodyFunc func(f *FuncLower, params []Value) error

// Unit lowers the functions of one compilation unit into an ir.Module.
//
// The first contract violation fails the whole unit: it is recorded and every
// later operation returns it unchanged.
type Unit struct {
	table  *layout.Table
	mod    *ir.Module
	tracer trace.Tracer
	span   *trace.Span
	err    error

	closures int // forwarding functions created so far
}

// NewUnit starts a unit over a built layout table. tracer may be nil.
func NewUnit(name string, table *layout.Table, tracer trace.Tracer) *Unit {
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Unit{
		table:  table,
		mod:    ir.NewModule(name, table.PointerType()),
		tracer: tracer,
		span:   trace.Begin(tracer, trace.ScopeUnit, "lower:"+name, 0),
	}
}

// Table returns the layout table the unit lowers against.
func (u *Unit) Table() *layout.Table { return u.table }

// Module returns the module being built.
func (u *Unit) Module() *ir.Module { return u.mod }

// Err returns the error that failed the unit, if any.
func (u *Unit) Err() error { return u.err }

func (u *Unit) fail(err error) error {
	if u.err == nil {
		u.err = err
	}
	return u.err
}

// Declare declares a table function in the module and returns its id.
// Declaring twice returns the same id.
func (u *Unit) Declare(name string, linkage ir.Linkage) (ir.FuncID, error) {
	if u.err != nil {
		return ir.NoFuncID, u.err
	}
	fl, err := u.table.Func(name)
	if err != nil {
		return ir.NoFuncID, u.fail(lookupErr("declare", name, err))
	}
	id, err := u.mod.DeclareFunction(name, linkage, fl.Signature)
	if err != nil {
		return ir.NoFuncID, u.fail(&ContractError{Kind: ContractBackend, Op: "declare", Name: name, Err: err})
	}
	return id, nil
}

// Define lowers the body of a table function. A body that ends without a
// terminator gets an implicit return when the function returns unit.
func (u *Unit) Define(name string, linkage ir.Linkage, body BodyFunc) error {
	id, err := u.Declare(name, linkage)
	if err != nil {
		return err
	}
	fl, _ := u.table.Func(name)

	span := trace.Begin(u.tracer, trace.ScopeFunc, "lower:"+name, u.span.ID())
	f := &FuncLower{
		unit: u,
		b:    ir.NewFunctionBuilder(name, fl.Signature),
		fn:   fl,
		sret: ir.NoValue,
		span: span,
	}
	params, err := f.entryParams()
	if err == nil {
		err = body(f, params)
	}
	if err == nil {
		err = f.finish(id)
	}
	if err != nil {
		span.WithExtra("error", err.Error()).End("failed")
		return u.fail(err)
	}
	span.WithExtra("insts", strconv.Itoa(f.b.Func().InstCount())).
		WithExtra("slots", strconv.Itoa(len(f.b.Func().Slots))).
		End(fl.Signature.String())
	return nil
}

// Finish closes the unit and returns the module. Every locally declared
// function must have been defined.
func (u *Unit) Finish() (*ir.Module, error) {
	if u.err == nil {
		if missing := u.mod.Undefined(); len(missing) > 0 {
			u.fail(&ContractError{Kind: ContractLookup, Op: "finish", Name: missing[0], Detail: "declared but never defined"})
		}
	}
	if u.err != nil {
		u.span.WithExtra("error", u.err.Error()).End("failed")
		return nil, u.err
	}
	u.span.WithExtra("funcs", strconv.Itoa(len(u.mod.Decls))).End("ok")
	return u.mod, nil
}

func (u *Unit) nextForwardName(body string) string {
	name := fmt.Sprintf("closure_forward.%s.%d", body, u.closures)
	u.closures++
	return name
}
