package demo

import (
	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/lower"
	"abilower/internal/types"
)

// move-right: Player{id, position: Point{x, y}} crosses a call boundary by
// pointer at the default threshold and by scalars from three upwards. main
// returns id*10000 + x*100 + y of the moved player.
func init() {
	register(Demo{
		Name:        "move-right",
		Description: "nested struct through a call, by pointer or by scalars",
		Want:        5*10000 + 12*100 + 20,
		table: func(opts layout.Options) *layout.Builder {
			point, player := types.Struct("Point"), types.Struct("Player")
			return layout.NewBuilder(opts).
				Struct("Point", layout.F("x", types.I32()), layout.F("y", types.I32())).
				Struct("Player", layout.F("id", types.I32()), layout.F("position", point)).
				Func("move_right", []types.Type{player, types.I32()}, player).
				Func(Entry, nil, types.I32())
		},
		define: defineMoveRight,
	})
}

func defineMoveRight(u *lower.Unit) error {
	err := u.Define(Entry, ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
		pos, err := f.Construct("Point", map[string]lower.Value{"x": f.Int(10), "y": f.Int(20)})
		if err != nil {
			return err
		}
		p, err := f.Construct("Player", map[string]lower.Value{"id": f.Int(5), "position": pos})
		if err != nil {
			return err
		}
		moved, err := f.Call("move_right", []lower.Value{p, f.Int(2)})
		if err != nil {
			return err
		}
		id, err := f.DestructureByName(moved, "id")
		if err != nil {
			return err
		}
		mpos, err := f.DestructureByName(moved, "position")
		if err != nil {
			return err
		}
		x, err := f.DestructureByName(mpos, "x")
		if err != nil {
			return err
		}
		y, err := f.DestructureByName(mpos, "y")
		if err != nil {
			return err
		}
		if id, err = scale(f, id, 10000); err != nil {
			return err
		}
		if x, err = scale(f, x, 100); err != nil {
			return err
		}
		total, err := sum(f, id, x, y)
		if err != nil {
			return err
		}
		return f.Return(total)
	})
	if err != nil {
		return err
	}

	return u.Define("move_right", ir.LinkageLocal, func(f *lower.FuncLower, params []lower.Value) error {
		p, by := params[0], params[1]
		id, err := f.DestructureByName(p, "id")
		if err != nil {
			return err
		}
		pos, err := f.DestructureByName(p, "position")
		if err != nil {
			return err
		}
		x, err := f.DestructureByName(pos, "x")
		if err != nil {
			return err
		}
		y, err := f.DestructureByName(pos, "y")
		if err != nil {
			return err
		}
		if x, err = f.Add(x, by); err != nil {
			return err
		}
		moved, err := f.Construct("Point", map[string]lower.Value{"x": x, "y": y})
		if err != nil {
			return err
		}
		out, err := f.Construct("Player", map[string]lower.Value{"id": id, "position": moved})
		if err != nil {
			return err
		}
		return f.Return(out)
	})
}
