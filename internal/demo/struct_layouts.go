package demo

import (
	"strings"

	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/lower"
	"abilower/internal/types"
)

// struct-layouts: a two-field struct small enough for registers and a
// padded four-field one passed by pointer. Both are incremented field by
// field; main returns the sum of every resulting field.
func init() {
	register(Demo{
		Name:        "struct-layouts",
		Description: "small struct by scalars, padded struct by pointer",
		Want:        (6 + 7) + (2 + 3 + 4 + 5),
		table: func(opts layout.Options) *layout.Builder {
			small, large := types.Struct("Small"), types.Struct("Large")
			return layout.NewBuilder(opts).
				Struct("Small", layout.F("a", types.I32()), layout.F("b", types.I32())).
				Struct("Large",
					layout.F("a", types.I32()),
					layout.F("b", types.I8()),
					layout.F("c", types.I32()),
					layout.F("d", types.I16())).
				Func("inc_small", []types.Type{small}, small).
				Func("inc_large", []types.Type{large}, large).
				Func(Entry, nil, types.I32())
		},
		define: defineStructLayouts,
	})
}

func defineStructLayouts(u *lower.Unit) error {
	for _, name := range []string{"Small", "Large"} {
		if err := u.Define("inc_"+strings.ToLower(name), ir.LinkageLocal, incrementFields(name)); err != nil {
			return err
		}
	}
	return u.Define(Entry, ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
		small, err := f.Construct("Small", map[string]lower.Value{"a": f.Int(5), "b": f.Int(6)})
		if err != nil {
			return err
		}
		b, err := f.IntOf(types.I8(), 2)
		if err != nil {
			return err
		}
		d, err := f.IntOf(types.I16(), 4)
		if err != nil {
			return err
		}
		large, err := f.Construct("Large", map[string]lower.Value{"a": f.Int(1), "b": b, "c": f.Int(3), "d": d})
		if err != nil {
			return err
		}
		if large, err = f.Call("inc_large", []lower.Value{large}); err != nil {
			return err
		}
		if small, err = f.Call("inc_small", []lower.Value{small}); err != nil {
			return err
		}
		var fields []lower.Value
		for _, agg := range []lower.Value{small, large} {
			n, err := fieldCount(f, agg)
			if err != nil {
				return err
			}
			for i := 0; i < n; i++ {
				v, err := f.Destructure(agg, i)
				if err != nil {
					return err
				}
				fields = append(fields, v)
			}
		}
		total, err := sum(f, fields...)
		if err != nil {
			return err
		}
		return f.Return(total)
	})
}

// incrementFields returns a body adding one to every field of its struct
// parameter.
func incrementFields(structName string) lower.BodyFunc {
	return func(f *lower.FuncLower, params []lower.Value) error {
		fields, err := f.Table().Fields(types.Struct(structName))
		if err != nil {
			return err
		}
		out := make(map[string]lower.Value, len(fields))
		for i, fd := range fields {
			v, err := f.Destructure(params[0], i)
			if err != nil {
				return err
			}
			one, err := f.IntOf(fd.Type, 1)
			if err != nil {
				return err
			}
			if out[fd.Name], err = f.Add(v, one); err != nil {
				return err
			}
		}
		res, err := f.Construct(structName, out)
		if err != nil {
			return err
		}
		return f.Return(res)
	}
}

func fieldCount(f *lower.FuncLower, v lower.Value) (int, error) {
	fields, err := f.Table().Fields(v.Type())
	return len(fields), err
}
