package demo

import (
	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/lower"
	"abilower/internal/types"
)

// tagged-union: builds one value of each Packet variant and matches the
// data packet.
//
//	match Packet::Data(1, 2, 3) {
//	    Pending => 10,
//	    Data(x, y, z) => x + y + z,
//	    Failed(code) => code,
//	}
func init() {
	register(Demo{
		Name:        "tagged-union",
		Description: "tag plus payload unions matched through a jump table",
		Want:        1 + 2 + 3,
		table: func(opts layout.Options) *layout.Builder {
			i32 := types.I32()
			return layout.NewBuilder(opts).
				Union("Packet",
					layout.V("Pending"),
					layout.V("Data", i32, i32, i32),
					layout.V("Failed", i32)).
				Func(Entry, nil, i32)
		},
		define: defineTaggedUnion,
	})
}

func defineTaggedUnion(u *lower.Unit) error {
	return u.Define(Entry, ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
		data, err := f.ConstructUnion("Packet", "Data", []lower.Value{f.Int(1), f.Int(2), f.Int(3)})
		if err != nil {
			return err
		}
		if _, err := f.ConstructUnion("Packet", "Pending", nil); err != nil {
			return err
		}
		if _, err := f.ConstructUnion("Packet", "Failed", []lower.Value{f.Int(100)}); err != nil {
			return err
		}
		return f.Match(data, map[string]lower.Arm{
			"Pending": func([]lower.Value) error { return f.Return(f.Int(10)) },
			"Data": func(p []lower.Value) error {
				total, err := sum(f, p...)
				if err != nil {
					return err
				}
				return f.Return(total)
			},
			"Failed": func(p []lower.Value) error { return f.Return(p[0]) },
		})
	})
}
