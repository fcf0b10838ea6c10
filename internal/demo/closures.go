package demo

import (
	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/lower"
	"abilower/internal/types"
)

// closures: two closures of type int -> int over different captures.
//
//	let f0 = |x| a + x + 1;
//	let f1 = |x| a + x + b;
//	f0(3) + f1(3)
//
// with a = 1 and b = 2.
func init() {
	register(Demo{
		Name:        "closures",
		Description: "type-erased closures calling through forwarding functions",
		Want:        (1 + 3 + 1) + (1 + 3 + 2),
		table: func(opts layout.Options) *layout.Builder {
			i32 := types.I32()
			return layout.NewBuilder(opts).
				Func("f0", []types.Type{i32, i32}, i32).
				Func("f1", []types.Type{i32, i32, i32}, i32).
				Func(Entry, nil, i32)
		},
		define: defineClosures,
	})
}

func defineClosures(u *lower.Unit) error {
	err := u.Define("f0", ir.LinkageLocal, func(f *lower.FuncLower, p []lower.Value) error {
		total, err := sum(f, p[0], p[1], f.Int(1))
		if err != nil {
			return err
		}
		return f.Return(total)
	})
	if err != nil {
		return err
	}
	err = u.Define("f1", ir.LinkageLocal, func(f *lower.FuncLower, p []lower.Value) error {
		// captures a, b come first; x is the call argument
		total, err := sum(f, p[0], p[2], p[1])
		if err != nil {
			return err
		}
		return f.Return(total)
	})
	if err != nil {
		return err
	}
	return u.Define(Entry, ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
		a, b, x := f.Int(1), f.Int(2), f.Int(3)
		f0, err := f.ConstructClosure("f0", []lower.Value{a})
		if err != nil {
			return err
		}
		f1, err := f.ConstructClosure("f1", []lower.Value{a, b})
		if err != nil {
			return err
		}
		var results []lower.Value
		for _, c := range []lower.Closure{f0, f1} {
			r, err := f.CallClosure(c, []lower.Value{x})
			if err != nil {
				return err
			}
			results = append(results, r)
		}
		total, err := sum(f, results...)
		if err != nil {
			return err
		}
		return f.Return(total)
	})
}
