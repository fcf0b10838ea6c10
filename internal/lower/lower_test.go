package lower_test

import (
	"errors"
	"testing"

	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/lower"
	"abilower/internal/trace"
	"abilower/internal/types"
	"abilower/internal/vm"
)

var (
	point  = types.Struct("Point")
	player = types.Struct("Player")
)

func gameBuilder(opts layout.Options) *layout.Builder {
	return layout.NewBuilder(opts).
		Struct("Point", layout.F("x", types.I32()), layout.F("y", types.I32())).
		Struct("Player", layout.F("id", types.I32()), layout.F("position", point)).
		Func("move_right", []types.Type{player, types.I32()}, player).
		Func("main", nil, types.I32())
}

func build(t *testing.T, b *layout.Builder) *layout.Table {
	t.Helper()
	table, err := b.Build()
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	return table
}

// run finishes u and calls entry in a fresh VM.
func run(t *testing.T, u *lower.Unit, entry string, args ...uint64) []uint64 {
	t.Helper()
	m, err := u.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	return runModule(t, m, entry, args...)
}

func runModule(t *testing.T, m *ir.Module, entry string, args ...uint64) []uint64 {
	t.Helper()
	res, err := vm.New(m, vm.Options{}).Call(entry, args...)
	if err != nil {
		t.Fatalf("vm %s: %v", entry, err)
	}
	return res
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func scalar(t *testing.T, v lower.Value) lower.Scalar {
	t.Helper()
	s, ok := v.(lower.Scalar)
	if !ok {
		t.Fatalf("%s is %s, want scalar", v, lower.Shape(v))
	}
	return s
}

func field(t *testing.T, f *lower.FuncLower, v lower.Value, name string) lower.Value {
	t.Helper()
	out, err := f.DestructureByName(v, name)
	must(t, err)
	return out
}

func mulConst(f *lower.FuncLower, v lower.Scalar, k int64) lower.Value {
	ins := f.Builder().Ins()
	return lower.Scalar{V: ins.Imul(v.V, ins.Iconst(f.Builder().ValueType(v.V), k)), T: v.T}
}

// encodePlayer folds a player into id*10000 + x*100 + y.
func encodePlayer(t *testing.T, f *lower.FuncLower, p lower.Value) lower.Value {
	t.Helper()
	pos := field(t, f, p, "position")
	id := mulConst(f, scalar(t, field(t, f, p, "id")), 10000)
	x := mulConst(f, scalar(t, field(t, f, pos, "x")), 100)
	sum, err := f.Add(id, x)
	must(t, err)
	sum, err = f.Add(sum, field(t, f, pos, "y"))
	must(t, err)
	return sum
}

func moveRight(t *testing.T) lower.BodyFunc {
	return func(f *lower.FuncLower, p []lower.Value) error {
		pos := field(t, f, p[0], "position")
		x, err := f.Add(field(t, f, pos, "x"), p[1])
		if err != nil {
			return err
		}
		moved, err := f.Construct("Point", map[string]lower.Value{"x": x, "y": field(t, f, pos, "y")})
		if err != nil {
			return err
		}
		out, err := f.Construct("Player", map[string]lower.Value{"id": field(t, f, p[0], "id"), "position": moved})
		if err != nil {
			return err
		}
		return f.Return(out)
	}
}

func TestMoveRightAcrossPassingModes(t *testing.T) {
	tests := []struct {
		name       string
		maxScalars int
		mode       layout.PassingMode
	}{
		{"by-pointer", 2, layout.ByPointer},
		{"by-scalars", 3, layout.ByScalars},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := build(t, gameBuilder(layout.Options{MaxScalars: tt.maxScalars}))
			if mode, _ := table.PassingMode("Player"); mode != tt.mode {
				t.Fatalf("Player mode = %s, want %s", mode, tt.mode)
			}
			u := lower.NewUnit("game", table, nil)
			must(t, u.Define("main", ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
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
				wantShape := "unstable"
				if tt.mode == layout.ByPointer {
					wantShape = "stack"
				}
				if got := lower.Shape(moved); got != wantShape {
					t.Errorf("call result shape = %s, want %s", got, wantShape)
				}
				return f.Return(encodePlayer(t, f, moved))
			}))
			must(t, u.Define("move_right", ir.LinkageLocal, moveRight(t)))

			if got := run(t, u, "main"); got[0] != 51220 {
				t.Fatalf("main = %d, want 51220 (Player{5, {12, 20}})", got[0])
			}
		})
	}
}

func TestByPointerCalleeWritesThroughStructReturn(t *testing.T) {
	table := build(t, gameBuilder(layout.Options{}))
	u := lower.NewUnit("game", table, nil)
	must(t, u.Define("move_right", ir.LinkageExport, moveRight(t)))
	m, err := u.Finish()
	must(t, err)
	id, _ := m.FuncByName("move_right")
	fn := m.Function(id)
	if !fn.Signature.UsesStructReturnParam() || len(fn.Signature.Returns) != 0 {
		t.Fatalf("signature %s, want sret and no returns", fn.Signature)
	}
	last := fn.Blocks[len(fn.Blocks)-1].Insts
	if ret := last[len(last)-1]; ret.Op != ir.OpReturn || len(ret.Args) != 0 {
		t.Fatalf("last instruction %s, want bare return", ir.FormatInst(fn, &ret))
	}
}

func roundTripTable(t *testing.T, opts layout.Options) *layout.Table {
	return build(t, layout.NewBuilder(opts).
		Struct("Inner", layout.F("p", types.I16()), layout.F("q", types.I64())).
		Struct("Outer",
			layout.F("a", types.I8()),
			layout.F("inner", types.Struct("Inner")),
			layout.F("u", types.Unit()),
			layout.F("z", types.I32())).
		Func("roundtrip", nil, types.I64()))
}

func TestRoundTrip(t *testing.T) {
	for _, policy := range []layout.Policy{layout.PolicyAligned, layout.PolicyPacked} {
		for _, materialize := range []bool{false, true} {
			name := policy.String() + "/unstable"
			if materialize {
				name = policy.String() + "/stack"
			}
			t.Run(name, func(t *testing.T) {
				u := lower.NewUnit("rt", roundTripTable(t, layout.Options{Policy: policy}), nil)
				must(t, u.Define("roundtrip", ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
					a, _ := f.IntOf(types.I8(), 7)
					p, _ := f.IntOf(types.I16(), -3)
					q, _ := f.IntOf(types.I64(), 1<<40)
					inner, err := f.Construct("Inner", map[string]lower.Value{"p": p, "q": q})
					if err != nil {
						return err
					}
					outer, err := f.Construct("Outer", map[string]lower.Value{
						"a": a, "inner": inner, "u": lower.UnitValue(), "z": f.Int(9),
					})
					if err != nil {
						return err
					}
					if materialize {
						if outer, err = f.Materialize(outer); err != nil {
							return err
						}
					}
					gotA := field(t, f, outer, "a")
					gotInner := field(t, f, outer, "inner")
					gotP := field(t, f, gotInner, "p")
					gotQ := field(t, f, gotInner, "q")
					gotZ := field(t, f, outer, "z")
					if got := field(t, f, outer, "u"); !got.Type().IsUnit() {
						t.Errorf("u = %s, want unit", got)
					}
					if !materialize && (gotA != a || gotP != p || gotQ != q) {
						t.Errorf("unstable destructure did not hand back the inputs")
					}
					if materialize && lower.Shape(gotInner) != "stack" {
						t.Errorf("nested field of a stack aggregate is %s", lower.Shape(gotInner))
					}
					ins := f.Builder().Ins()
					sum := ins.Iadd(ins.Sextend(ir.I64, scalar(t, gotA).V), ins.Sextend(ir.I64, scalar(t, gotP).V))
					sum = ins.Iadd(sum, scalar(t, gotQ).V)
					sum = ins.Iadd(sum, ins.Sextend(ir.I64, scalar(t, gotZ).V))
					return f.Return(lower.Scalar{V: sum, T: types.I64()})
				}))
				got := run(t, u, "roundtrip")
				if want := int64(7 - 3 + 1<<40 + 9); vm.Signed(got[0], ir.I64) != want {
					t.Fatalf("roundtrip = %d, want %d", vm.Signed(got[0], ir.I64), want)
				}
			})
		}
	}
}

func TestWriteFieldIntoMaterializedAggregate(t *testing.T) {
	table := build(t, gameBuilder(layout.Options{}).Func("patch", nil, types.I32()))
	u := lower.NewUnit("game", table, nil)
	must(t, u.Define("patch", ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
		pos, _ := f.Construct("Point", map[string]lower.Value{"x": f.Int(1), "y": f.Int(2)})
		p, _ := f.Construct("Player", map[string]lower.Value{"id": f.Int(3), "position": pos})
		dest, err := f.Materialize(p)
		if err != nil {
			return err
		}
		other, _ := f.Construct("Point", map[string]lower.Value{"x": f.Int(40), "y": f.Int(50)})
		otherMem, err := f.Materialize(other)
		if err != nil {
			return err
		}
		// Copy a stack aggregate into a nested field, then patch a scalar.
		if err := f.WriteField(dest, 1, otherMem); err != nil {
			return err
		}
		if err := f.WriteField(dest, 0, f.Int(9)); err != nil {
			return err
		}
		return f.Return(encodePlayer(t, f, dest))
	}))
	if got := run(t, u, "patch"); got[0] != 94050 {
		t.Fatalf("patch = %d, want 94050", got[0])
	}
}

func TestContractViolations(t *testing.T) {
	tests := []struct {
		name string
		kind lower.ContractKind
		body lower.BodyFunc
	}{
		{"destructure scalar", lower.ContractShape, func(f *lower.FuncLower, _ []lower.Value) error {
			_, err := f.Destructure(f.Int(1), 0)
			return err
		}},
		{"missing field", lower.ContractArity, func(f *lower.FuncLower, _ []lower.Value) error {
			_, err := f.Construct("Point", map[string]lower.Value{"x": f.Int(1)})
			return err
		}},
		{"extra field", lower.ContractArity, func(f *lower.FuncLower, _ []lower.Value) error {
			_, err := f.Construct("Point", map[string]lower.Value{"x": f.Int(1), "y": f.Int(2), "z": f.Int(3)})
			return err
		}},
		{"field type", lower.ContractType, func(f *lower.FuncLower, _ []lower.Value) error {
			wide, _ := f.IntOf(types.I64(), 1)
			_, err := f.Construct("Point", map[string]lower.Value{"x": wide, "y": f.Int(2)})
			return err
		}},
		{"unknown struct", lower.ContractLookup, func(f *lower.FuncLower, _ []lower.Value) error {
			_, err := f.Construct("Ghost", nil)
			return err
		}},
		{"unknown function", lower.ContractLookup, func(f *lower.FuncLower, _ []lower.Value) error {
			_, err := f.Call("ghost", nil)
			return err
		}},
		{"call arity", lower.ContractArity, func(f *lower.FuncLower, _ []lower.Value) error {
			_, err := f.Call("move_right", []lower.Value{f.Int(1)})
			return err
		}},
		{"return type", lower.ContractType, func(f *lower.FuncLower, _ []lower.Value) error {
			return f.Return(lower.UnitValue())
		}},
		{"falls through", lower.ContractShape, func(*lower.FuncLower, []lower.Value) error {
			return nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := lower.NewUnit("bad", build(t, gameBuilder(layout.Options{})), nil)
			err := u.Define("main", ir.LinkageExport, tt.body)
			if !lower.IsContract(err, tt.kind) {
				t.Fatalf("got %v, want %s violation", err, tt.kind)
			}
			// The unit stays failed.
			if _, ferr := u.Finish(); !errors.Is(ferr, err) {
				t.Fatalf("finish = %v, want the first error", ferr)
			}
			if again := u.Define("move_right", ir.LinkageExport, moveRight(t)); !errors.Is(again, err) {
				t.Fatalf("later define = %v, want the first error", again)
			}
		})
	}
}

func TestLookupErrorsWrapLayoutErrors(t *testing.T) {
	u := lower.NewUnit("bad", build(t, gameBuilder(layout.Options{})), nil)
	err := u.Define("nope", ir.LinkageExport, func(*lower.FuncLower, []lower.Value) error { return nil })
	var le *layout.LayoutError
	if !errors.As(err, &le) || le.Kind != layout.LayoutErrUnknownFunction || le.Name != "nope" {
		t.Fatalf("got %v, want wrapped unknown function", err)
	}
}

func TestFinishRejectsUndefinedCallee(t *testing.T) {
	u := lower.NewUnit("game", build(t, gameBuilder(layout.Options{})), nil)
	must(t, u.Define("main", ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
		pos, _ := f.Construct("Point", map[string]lower.Value{"x": f.Int(1), "y": f.Int(2)})
		p, _ := f.Construct("Player", map[string]lower.Value{"id": f.Int(3), "position": pos})
		if _, err := f.Call("move_right", []lower.Value{p, f.Int(1)}); err != nil {
			return err
		}
		return f.Return(f.Int(0))
	}))
	if _, err := u.Finish(); !lower.IsContract(err, lower.ContractLookup) {
		t.Fatalf("finish = %v, want undefined move_right", err)
	}
}

func TestUnitTracesFunctionsAndMaterialization(t *testing.T) {
	ring := trace.NewRingTracer(64, trace.LevelDebug)
	u := lower.NewUnit("game", build(t, gameBuilder(layout.Options{})), ring)
	must(t, u.Define("move_right", ir.LinkageExport, moveRight(t)))
	must(t, u.Define("main", ir.LinkageExport, func(f *lower.FuncLower, _ []lower.Value) error {
		pos, _ := f.Construct("Point", map[string]lower.Value{"x": f.Int(1), "y": f.Int(2)})
		p, _ := f.Construct("Player", map[string]lower.Value{"id": f.Int(3), "position": pos})
		moved, err := f.Call("move_right", []lower.Value{p, f.Int(1)})
		if err != nil {
			return err
		}
		return f.Return(field(t, f, moved, "id"))
	}))
	_, err := u.Finish()
	must(t, err)

	seen := make(map[string]bool)
	for _, ev := range ring.Snapshot() {
		seen[ev.Kind.String()+" "+ev.Name] = true
	}
	for _, want := range []string{"end lower:move_right", "end lower:main", "point materialize", "end lower:game"} {
		if !seen[want] {
			t.Errorf("missing trace event %q in %v", want, seen)
		}
	}
}
