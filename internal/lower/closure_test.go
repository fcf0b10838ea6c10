package lower_test

import (
	"testing"

	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/lower"
	"abilower/internal/types"
)

func closureTable(t *testing.T, opts layout.Options) *layout.Table {
	i32 := types.I32()
	return build(t, gameBuilder(opts).
		Func("f0", []types.Type{i32, i32}, i32).
		Func("f1", []types.Type{i32, i32, i32}, i32).
		Func("spawn", []types.Type{i32, i32}, player).
		Func("run0", nil, i32).
		Func("run1", nil, i32).
		Func("run_both", nil, i32).
		Func("run_spawn", nil, i32))
}

// defineBodies lowers f0(a, x) = a+x+1, f1(a, b, x) = a+x+b and
// spawn(a, x) = Player{a, {x, a+x}}.
func defineBodies(t *testing.T, u *lower.Unit) {
	must(t, u.Define("f0", ir.LinkageLocal, func(f *lower.FuncLower, p []lower.Value) error {
		sum, err := f.Add(p[0], p[1])
		if err != nil {
			return err
		}
		if sum, err = f.Add(sum, f.Int(1)); err != nil {
			return err
		}
		return f.Return(sum)
	}))
	must(t, u.Define("f1", ir.LinkageLocal, func(f *lower.FuncLower, p []lower.Value) error {
		sum, err := f.Add(p[0], p[2])
		if err != nil {
			return err
		}
		if sum, err = f.Add(sum, p[1]); err != nil {
			return err
		}
		return f.Return(sum)
	}))
	must(t, u.Define("spawn", ir.LinkageLocal, func(f *lower.FuncLower, p []lower.Value) error {
		y, err := f.Add(p[0], p[1])
		if err != nil {
			return err
		}
		pos, err := f.Construct("Point", map[string]lower.Value{"x": p[1], "y": y})
		if err != nil {
			return err
		}
		out, err := f.Construct("Player", map[string]lower.Value{"id": p[0], "position": pos})
		if err != nil {
			return err
		}
		return f.Return(out)
	}))
}

func TestClosuresObserveOwnCaptures(t *testing.T) {
	u := lower.NewUnit("closures", closureTable(t, layout.Options{}), nil)
	defineBodies(t, u)

	var c0, c1 lower.Closure
	call := func(name, body string, captures func(f *lower.FuncLower) []lower.Value, out *lower.Closure) {
		must(t, u.Define(name, ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
			c, err := f.ConstructClosure(body, captures(f))
			if err != nil {
				return err
			}
			*out = c
			res, err := f.CallClosure(c, []lower.Value{f.Int(3)})
			if err != nil {
				return err
			}
			return f.Return(res)
		}))
	}
	call("run0", "f0", func(f *lower.FuncLower) []lower.Value { return []lower.Value{f.Int(1)} }, &c0)
	call("run1", "f1", func(f *lower.FuncLower) []lower.Value { return []lower.Value{f.Int(1), f.Int(2)} }, &c1)

	if !c0.Sig.Equal(&c1.Sig) {
		t.Fatalf("closure signatures differ: %s vs %s", c0.Sig, c1.Sig)
	}
	if c0.Forward != "closure_forward.f0.0" || c1.Forward != "closure_forward.f1.1" {
		t.Fatalf("forward names %q, %q", c0.Forward, c1.Forward)
	}
	m, err := u.Finish()
	must(t, err)
	if got := runModule(t, m, "run0"); got[0] != 5 {
		t.Errorf("run0 = %d, want 5", got[0])
	}
	if got := runModule(t, m, "run1"); got[0] != 6 {
		t.Errorf("run1 = %d, want 6", got[0])
	}
}

func TestClosuresOverOneBodyGetDistinctForwarders(t *testing.T) {
	u := lower.NewUnit("closures", closureTable(t, layout.Options{}), nil)
	defineBodies(t, u)
	must(t, u.Define("run_both", ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
		a, err := f.ConstructClosure("f0", []lower.Value{f.Int(1)})
		if err != nil {
			return err
		}
		b, err := f.ConstructClosure("f0", []lower.Value{f.Int(100)})
		if err != nil {
			return err
		}
		if a.Forward == b.Forward {
			t.Errorf("both closures use %s", a.Forward)
		}
		ra, err := f.CallClosure(a, []lower.Value{f.Int(3)})
		if err != nil {
			return err
		}
		rb, err := f.CallClosure(b, []lower.Value{f.Int(3)})
		if err != nil {
			return err
		}
		sum, err := f.Add(ra, rb)
		if err != nil {
			return err
		}
		return f.Return(sum)
	}))
	m, err := u.Finish()
	must(t, err)
	for _, name := range []string{"closure_forward.f0.0", "closure_forward.f0.1"} {
		id, ok := m.FuncByName(name)
		if !ok {
			t.Fatalf("missing %s", name)
		}
		if d := m.Decl(id); d.Linkage != ir.LinkageLocal || !d.Defined {
			t.Fatalf("%s: linkage %s defined %v", name, d.Linkage, d.Defined)
		}
	}
	// (1+3+1) + (100+3+1)
	if got := runModule(t, m, "run_both"); got[0] != 109 {
		t.Fatalf("run_both = %d, want 109", got[0])
	}
}

func TestClosureWithStructReturnBody(t *testing.T) {
	u := lower.NewUnit("closures", closureTable(t, layout.Options{}), nil)
	defineBodies(t, u)
	must(t, u.Define("run_spawn", ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
		c, err := f.ConstructClosure("spawn", []lower.Value{f.Int(4)})
		if err != nil {
			return err
		}
		if !c.StructReturn() {
			t.Errorf("forwarder %s should keep the struct-return parameter", c.Sig)
		}
		if first := c.Sig.Params[0]; first.Purpose != ir.PurposeStructReturn {
			t.Errorf("first forwarder param is %s", first)
		}
		p, err := f.CallClosure(c, []lower.Value{f.Int(6)})
		if err != nil {
			return err
		}
		return f.Return(encodePlayer(t, f, p))
	}))
	if got := run(t, u, "run_spawn"); got[0] != 40610 {
		t.Fatalf("run_spawn = %d, want 40610 (Player{4, {6, 10}})", got[0])
	}
}

func TestClosureCaptureContract(t *testing.T) {
	tests := []struct {
		name string
		kind lower.ContractKind
		caps func(f *lower.FuncLower) []lower.Value
	}{
		{"too many", lower.ContractArity, func(f *lower.FuncLower) []lower.Value {
			return []lower.Value{f.Int(1), f.Int(2), f.Int(3)}
		}},
		{"not scalar", lower.ContractShape, func(*lower.FuncLower) []lower.Value {
			return []lower.Value{lower.UnitValue()}
		}},
		{"wrong width", lower.ContractType, func(f *lower.FuncLower) []lower.Value {
			x, _ := f.IntOf(types.I8(), 1)
			return []lower.Value{x}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := lower.NewUnit("closures", closureTable(t, layout.Options{}), nil)
			err := u.Define("run0", ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
				_, err := f.ConstructClosure("f0", tt.caps(f))
				return err
			})
			if !lower.IsContract(err, tt.kind) {
				t.Fatalf("got %v, want %s violation", err, tt.kind)
			}
		})
	}
}
