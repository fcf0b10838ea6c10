package layout_test

import (
	"errors"
	"testing"

	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/types"
)

func gameTable(t *testing.T, opts layout.Options) *layout.Table {
	t.Helper()
	tbl, err := layout.NewBuilder(opts).
		Struct("Point", layout.F("x", types.I32()), layout.F("y", types.I32())).
		Struct("Player", layout.F("id", types.I32()), layout.F("position", types.Struct("Point"))).
		Struct("Mixed", layout.F("a", types.I32()), layout.F("b", types.I8()), layout.F("c", types.I32()), layout.F("d", types.I16())).
		Struct("Empty").
		Struct("Holder", layout.F("u", types.Unit()), layout.F("v", types.I64())).
		Func("move_right", []types.Type{types.Struct("Player"), types.I32()}, types.Struct("Player")).
		Func("norm", []types.Type{types.Struct("Point")}, types.I32()).
		Func("noop", nil, types.Unit()).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return tbl
}

func TestPassingMode(t *testing.T) {
	tests := []struct {
		name       string
		maxScalars int
		want       map[string]layout.PassingMode
	}{
		{
			name:       "default_threshold",
			maxScalars: 0,
			want: map[string]layout.PassingMode{
				"Point":  layout.ByScalars,
				"Player": layout.ByPointer,
				"Mixed":  layout.ByPointer,
				"Empty":  layout.ByScalars,
				"Holder": layout.ByScalars,
			},
		},
		{
			name:       "threshold_three",
			maxScalars: 3,
			want: map[string]layout.PassingMode{
				"Point":  layout.ByScalars,
				"Player": layout.ByScalars,
				"Mixed":  layout.ByPointer,
				"Empty":  layout.ByScalars,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := gameTable(t, layout.Options{MaxScalars: tt.maxScalars})
			for name, want := range tt.want {
				for range 3 {
					got, err := tbl.PassingMode(name)
					if err != nil {
						t.Fatal(err)
					}
					if got != want {
						t.Fatalf("PassingMode(%s) = %s, want %s", name, got, want)
					}
				}
			}
		})
	}
}

func TestAlignedLayoutProperties(t *testing.T) {
	tbl := gameTable(t, layout.Options{})
	for _, name := range tbl.StructNames() {
		def, err := tbl.Struct(name)
		if err != nil {
			t.Fatal(err)
		}
		size, _ := tbl.SizeOf(types.Struct(name))
		align, _ := tbl.AlignOf(types.Struct(name))
		if size%align != 0 {
			t.Errorf("%s: size %d not a multiple of align %d", name, size, align)
		}
		prevEnd := 0
		for i, f := range def.Fields {
			off, err := tbl.OffsetOf(name, i)
			if err != nil {
				t.Fatal(err)
			}
			fa, _ := tbl.AlignOf(f.Type)
			fs, _ := tbl.SizeOf(f.Type)
			if off%fa != 0 {
				t.Errorf("%s.%s: offset %d not aligned to %d", name, f.Name, off, fa)
			}
			if off < prevEnd {
				t.Errorf("%s.%s: offset %d overlaps previous field ending at %d", name, f.Name, off, prevEnd)
			}
			prevEnd = off + fs
		}
		if prevEnd > size {
			t.Errorf("%s: last field ends at %d past size %d", name, prevEnd, size)
		}
	}
}

func TestAlignedMixedStruct(t *testing.T) {
	tbl := gameTable(t, layout.Options{})
	want := []int{0, 4, 8, 12}
	for i, w := range want {
		got, _ := tbl.OffsetOf("Mixed", i)
		if got != w {
			t.Errorf("offset(Mixed, %d) = %d, want %d", i, got, w)
		}
	}
	size, _ := tbl.SizeOf(types.Struct("Mixed"))
	if size != 16 {
		t.Errorf("size(Mixed) = %d, want 16", size)
	}
}

func TestPackedLayoutSumsScalars(t *testing.T) {
	tbl := gameTable(t, layout.Options{Policy: layout.PolicyPacked})
	for _, name := range tbl.StructNames() {
		def, _ := tbl.Struct(name)
		sum := 0
		for i, f := range def.Fields {
			off, _ := tbl.OffsetOf(name, i)
			if off != sum {
				t.Errorf("%s.%s: offset %d, want %d", name, f.Name, off, sum)
			}
			fs, _ := tbl.SizeOf(f.Type)
			sum += fs
		}
		size, _ := tbl.SizeOf(types.Struct(name))
		if size != sum {
			t.Errorf("%s: size %d, want %d", name, size, sum)
		}
	}
	size, _ := tbl.SizeOf(types.Struct("Mixed"))
	if size != 11 {
		t.Errorf("packed size(Mixed) = %d, want 11", size)
	}
}

func TestScalarsFlattenNested(t *testing.T) {
	tbl := gameTable(t, layout.Options{})
	sl, err := tbl.Layout("Player")
	if err != nil {
		t.Fatal(err)
	}
	if len(sl.Scalars) != 3 {
		t.Fatalf("Player scalars = %v, want 3", sl.Scalars)
	}
	wantOffsets := []int{0, 4, 8}
	for i, w := range wantOffsets {
		if sl.ScalarOffsets[i] != w {
			t.Errorf("scalar %d offset %d, want %d", i, sl.ScalarOffsets[i], w)
		}
	}
	n, _ := tbl.ScalarCount(types.Struct("Empty"))
	if n != 0 {
		t.Errorf("Empty has %d scalars", n)
	}
}

func TestSignatureLowering(t *testing.T) {
	tbl := gameTable(t, layout.Options{})

	sig, err := tbl.Signature("move_right")
	if err != nil {
		t.Fatal(err)
	}
	if got := sig.String(); got != "(i64 sret, i64, i32) fast" {
		t.Fatalf("move_right lowered to %s", got)
	}
	fl, _ := tbl.Func("move_right")
	if !fl.StructReturn {
		t.Fatal("move_right should use a struct-return parameter")
	}

	sig, _ = tbl.Signature("norm")
	if got := sig.String(); got != "(i32, i32) -> i32 fast" {
		t.Fatalf("norm lowered to %s", got)
	}

	sig, _ = tbl.Signature("noop")
	if len(sig.Params) != 0 || len(sig.Returns) != 0 {
		t.Fatalf("noop lowered to %s", sig)
	}

	wide := gameTable(t, layout.Options{MaxScalars: 3})
	sig, _ = wide.Signature("move_right")
	if got := sig.String(); got != "(i32, i32, i32, i32) -> i32, i32, i32 fast" {
		t.Fatalf("move_right with threshold 3 lowered to %s", got)
	}
}

func TestSignatureOnI686UsesNarrowPointers(t *testing.T) {
	tbl := gameTable(t, layout.Options{Target: layout.I686LinuxGNU()})
	if tbl.PointerType() != ir.I32 {
		t.Fatalf("pointer type %s", tbl.PointerType())
	}
	sig, _ := tbl.Signature("move_right")
	if got := sig.String(); got != "(i32 sret, i32, i32) fast" {
		t.Fatalf("move_right lowered to %s", got)
	}
}

func TestUnionLayout(t *testing.T) {
	tbl, err := layout.NewBuilder(layout.Options{}).
		Union("Packet",
			layout.V("Pending"),
			layout.V("Data", types.I32(), types.I32(), types.I32()),
			layout.V("Failed", types.I32()),
		).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	ul, err := tbl.UnionLayout("Packet")
	if err != nil {
		t.Fatal(err)
	}
	if ul.Size != 16 || ul.PayloadOffset != 8 || ul.TagType != ir.I32 || ul.PayloadType != ir.I64 {
		t.Fatalf("unexpected union layout %+v", ul)
	}
	tag, v, err := tbl.Variant("Packet", "Failed")
	if err != nil || tag != 2 || len(v.Fields) != 1 {
		t.Fatalf("Variant(Failed) = %d, %+v, %v", tag, v, err)
	}
	if _, _, err := tbl.Variant("Packet", "Lost"); err == nil {
		t.Fatal("expected unknown variant error")
	}
}

func TestScalarOffsetsFollowPolicy(t *testing.T) {
	scalars := []ir.Type{ir.I8, ir.I32, ir.I16}
	aligned := gameTable(t, layout.Options{})
	offs, size, align := aligned.ScalarOffsets(scalars)
	if offs[0] != 0 || offs[1] != 4 || offs[2] != 8 || size != 12 || align != 4 {
		t.Fatalf("aligned: offsets %v size %d align %d", offs, size, align)
	}
	packed := gameTable(t, layout.Options{Policy: layout.PolicyPacked})
	offs, size, align = packed.ScalarOffsets(scalars)
	if offs[0] != 0 || offs[1] != 1 || offs[2] != 5 || size != 7 || align != 1 {
		t.Fatalf("packed: offsets %v size %d align %d", offs, size, align)
	}
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *layout.Builder)
		kind  layout.LayoutErrorKind
	}{
		{
			name: "duplicate_struct",
			build: func(b *layout.Builder) {
				b.Struct("A", layout.F("x", types.I32())).Struct("A")
			},
			kind: layout.LayoutErrDuplicate,
		},
		{
			name: "duplicate_field",
			build: func(b *layout.Builder) {
				b.Struct("A", layout.F("x", types.I32()), layout.F("x", types.I8()))
			},
			kind: layout.LayoutErrDuplicate,
		},
		{
			name: "unknown_field_struct",
			build: func(b *layout.Builder) {
				b.Struct("A", layout.F("b", types.Struct("B")))
			},
			kind: layout.LayoutErrUnknownStruct,
		},
		{
			name: "unknown_param_struct",
			build: func(b *layout.Builder) {
				b.Func("f", []types.Type{types.Struct("Nope")}, types.Unit())
			},
			kind: layout.LayoutErrUnknownStruct,
		},
		{
			name: "struct_payload",
			build: func(b *layout.Builder) {
				b.Struct("P", layout.F("x", types.I32())).Union("U", layout.V("A", types.Struct("P")))
			},
			kind: layout.LayoutErrInvalidPayload,
		},
		{
			name: "union_parameter",
			build: func(b *layout.Builder) {
				b.Union("U", layout.V("A")).Func("f", []types.Type{types.Struct("U")}, types.Unit())
			},
			kind: layout.LayoutErrUnsupported,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := layout.NewBuilder(layout.Options{})
			tt.build(b)
			_, err := b.Build()
			var lerr *layout.LayoutError
			if !errors.As(err, &lerr) {
				t.Fatalf("got %v, want *LayoutError", err)
			}
			if lerr.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s (%v)", lerr.Kind, tt.kind, err)
			}
		})
	}
}

func TestQueriesRejectUnknownNames(t *testing.T) {
	tbl := gameTable(t, layout.Options{})
	var lerr *layout.LayoutError
	if _, err := tbl.PassingMode("Ghost"); !errors.As(err, &lerr) || lerr.Kind != layout.LayoutErrUnknownStruct {
		t.Fatalf("PassingMode(Ghost): %v", err)
	}
	if _, err := tbl.Signature("ghost"); !errors.As(err, &lerr) || lerr.Kind != layout.LayoutErrUnknownFunction {
		t.Fatalf("Signature(ghost): %v", err)
	}
	if _, err := tbl.FieldIndex("Point", "z"); !errors.As(err, &lerr) || lerr.Kind != layout.LayoutErrUnknownField {
		t.Fatalf("FieldIndex(Point.z): %v", err)
	}
	if _, err := tbl.OffsetOf("Point", 2); err == nil {
		t.Fatal("OffsetOf past the last field should fail")
	}
}
