package tablefile_test

import (
	"errors"
	"strings"
	"testing"

	"abilower/internal/layout"
	"abilower/internal/tablefile"
)

func TestLoadGameTable(t *testing.T) {
	table, err := tablefile.Load("testdata/game.toml")
	if err != nil {
		t.Fatal(err)
	}
	if mode, _ := table.PassingMode("Player"); mode != layout.ByPointer {
		t.Fatalf("Player = %s, want by-pointer", mode)
	}
	sig, err := table.Signature("move_right")
	if err != nil {
		t.Fatal(err)
	}
	if got := sig.String(); got != "(i64 sret, i64, i32) fast" {
		t.Fatalf("move_right = %s", got)
	}
	if tag, _, err := table.Variant("Packet", "Failed"); err != nil || tag != 2 {
		t.Fatalf("Packet::Failed tag = %d, %v", tag, err)
	}
	fl, err := table.Func("tick")
	if err != nil || !fl.Def.Result.IsUnit() {
		t.Fatalf("tick result = %v, %v", fl, err)
	}
}

func TestOptionsCanBeOverridden(t *testing.T) {
	d, err := tablefile.LoadFile("testdata/game.toml")
	if err != nil {
		t.Fatal(err)
	}
	d.Options.MaxScalars = 3
	table, err := d.Build()
	if err != nil {
		t.Fatal(err)
	}
	if mode, _ := table.PassingMode("Player"); mode != layout.ByScalars {
		t.Fatalf("Player = %s, want by-scalars at threshold 3", mode)
	}
}

func TestDefaultsWithoutTableSection(t *testing.T) {
	d, err := tablefile.Decode("mem.toml", []byte(`
[[struct]]
name = "Pair"
fields = [{ name = "a", type = "i8" }, { name = "b", type = "i64" }]
`))
	if err != nil {
		t.Fatal(err)
	}
	table, err := d.Build()
	if err != nil {
		t.Fatal(err)
	}
	if got := table.Target().PtrSize; got != 8 {
		t.Fatalf("default pointer size %d", got)
	}
	if off, _ := table.OffsetOf("Pair", 1); off != 8 {
		t.Fatalf("Pair.b offset %d, want 8", off)
	}
}

func TestNamesAreNFCNormalized(t *testing.T) {
	// "Café" spelled with a combining accent in the reference.
	d, err := tablefile.Decode("nfc.toml", []byte(`
[[struct]]
name = "Café"
fields = [{ name = "x", type = "int" }]

[[func]]
name = "get"
params = ["Cafe\u0301"]
result = "int"
`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Build(); err != nil {
		t.Fatalf("decomposed reference did not resolve: %v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", "[[struct]\n", "failed to parse TOML"},
		{"unknown key", "[table]\nwidth = 3\n", "unknown key table.width"},
		{"bad target", "[table]\ntarget = \"sparc\"\n", "unsupported target"},
		{"bad policy", "[table]\npolicy = \"loose\"\n", "unknown layout policy"},
		{"bad threshold", "[table]\nmax_scalars = 0\n", "max_scalars must be at least 1"},
		{"missing name", "[[struct]]\nfields = []\n", "missing name"},
		{"bad type", "[[func]]\nname = \"f\"\nparams = [\"a b\"]\n", "invalid type name"},
		{"empty union", "[[union]]\nname = \"U\"\n", "union has no variants"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tablefile.Decode("bad.toml", []byte(tt.src))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestBuildReportsLayoutErrors(t *testing.T) {
	d, err := tablefile.Decode("ref.toml", []byte(`
[[struct]]
name = "Node"
fields = [{ name = "next", type = "Ghost" }]
`))
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.Build()
	var le *layout.LayoutError
	if !errors.As(err, &le) || le.Kind != layout.LayoutErrUnknownStruct {
		t.Fatalf("got %v, want unknown struct", err)
	}
	if !strings.HasPrefix(err.Error(), "ref.toml: ") {
		t.Fatalf("error %q lacks the file name", err)
	}
}
