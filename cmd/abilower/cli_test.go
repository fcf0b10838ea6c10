package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"abilower/internal/ir"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--color", "off"}, args...))
	err := root.Execute()
	return out.String(), err
}

const gameTable = `[[struct]]
name = "Point"
fields = [{ name = "x", type = "int" }, { name = "y", type = "int" }]

[[struct]]
name = "Player"
fields = [{ name = "id", type = "int" }, { name = "position", type = "Point" }]

[[union]]
name = "Packet"
variants = [
  { name = "Pending" },
  { name = "Data", fields = ["int", "int", "int"] },
  { name = "Failed", fields = ["int"] },
]

[[func]]
name = "move_right"
params = ["Player", "int"]
result = "Player"
`

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunDemos(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"run", "move-right"}, "move-right: main() = 51220"},
		{[]string{"run", "move-right", "--max-scalars", "3"}, "move-right: main() = 51220"},
		{[]string{"run", "struct-layouts", "--policy", "packed", "--target", "i686"}, "struct-layouts: main() = 27"},
		{[]string{"run", "tagged-union"}, "tagged-union: main() = 6"},
		{[]string{"run", "closures"}, "closures: main() = 11"},
	}
	for _, tt := range tests {
		out, err := execute(t, tt.args...)
		if err != nil {
			t.Fatalf("%v: %v", tt.args, err)
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("%v output:\n%s\nwant %q", tt.args, out, tt.want)
		}
	}
}

func TestRunListsDemos(t *testing.T) {
	out, err := execute(t, "run", "--list")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"closures", "move-right", "struct-layouts", "tagged-union"} {
		if !strings.Contains(out, name) {
			t.Errorf("list lacks %s:\n%s", name, out)
		}
	}
	if _, err := execute(t, "run", "nope"); err == nil || !strings.Contains(err.Error(), "unknown demo") {
		t.Errorf("run nope = %v", err)
	}
}

func TestRunEmitsIR(t *testing.T) {
	out, err := execute(t, "run", "closures", "--emit-ir")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"closure_forward.f0.0", "call_indirect"} {
		if !strings.Contains(out, want) {
			t.Errorf("IR dump lacks %q:\n%s", want, out)
		}
	}
}

func TestWrittenModuleExecutes(t *testing.T) {
	obj := filepath.Join(t.TempDir(), "out", "move.abo")
	if _, err := execute(t, "run", "move-right", "-o", obj, "--quiet"); err != nil {
		t.Fatal(err)
	}
	m, err := ir.ReadFile(obj)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.FuncByName("move_right"); !ok {
		t.Fatalf("module functions %v lack move_right", m.Names())
	}

	out, err := execute(t, "exec", obj, "main")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "i32 = 51220" {
		t.Fatalf("exec output %q", out)
	}
	if _, err := execute(t, "exec", obj, "move_right"); err == nil {
		t.Fatal("exec of a struct-return function succeeded")
	}
	if _, err := execute(t, "exec", obj, "missing"); err == nil {
		t.Fatal("exec of a missing function succeeded")
	}
}

func TestLayoutJSON(t *testing.T) {
	path := writeTable(t, gameTable)
	out, err := execute(t, "layout", "--format", "json", "--ui", "off", path)
	if err != nil {
		t.Fatal(err)
	}
	var reports []tableReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports", len(reports))
	}
	r := reports[0]
	if r.Target != "x86_64-linux-gnu" || r.Policy != "aligned" || r.MaxScalars != 2 {
		t.Errorf("options = %s/%s/%d", r.Target, r.Policy, r.MaxScalars)
	}
	var player *structReport
	for i := range r.Structs {
		if r.Structs[i].Name == "Player" {
			player = &r.Structs[i]
		}
	}
	if player == nil || player.Size != 12 || player.Align != 4 || player.Mode != "by-pointer" {
		t.Fatalf("Player = %+v", player)
	}
	if got := player.Fields[1].Offset; got != 4 {
		t.Errorf("Player.position offset = %d, want 4", got)
	}
	encodings := map[string]string{}
	for _, v := range r.Unions[0].Variants {
		encodings[v.Name] = v.Encoding
	}
	want := map[string]string{"Pending": "zero", "Data": "indirect", "Failed": "inline-casted"}
	for name, enc := range want {
		if encodings[name] != enc {
			t.Errorf("Packet::%s encoding = %s, want %s", name, encodings[name], enc)
		}
	}
	if got := r.Funcs[0].Signature; got != "(i64 sret, i64, i32) fast" {
		t.Errorf("move_right lowered to %s", got)
	}
}

func TestLayoutOverrides(t *testing.T) {
	path := writeTable(t, gameTable)
	out, err := execute(t, "layout", "--format", "json", "--ui", "off", "--target", "i686", "--max-scalars", "3", path)
	if err != nil {
		t.Fatal(err)
	}
	var reports []tableReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatal(err)
	}
	r := reports[0]
	if r.Target != "i686-linux-gnu" || r.MaxScalars != 3 {
		t.Fatalf("options = %s/%d", r.Target, r.MaxScalars)
	}
	if got := r.Funcs[0].Signature; got != "(i32, i32, i32, i32) -> i32, i32, i32 fast" {
		t.Errorf("move_right lowered to %s", got)
	}
}

func TestLayoutPretty(t *testing.T) {
	path := writeTable(t, gameTable)
	out, err := execute(t, "layout", "--ui", "off", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{path, "structs", "Player", ".position", "unions", "::Failed", "functions", "move_right"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}

func TestLayoutReportsBrokenFiles(t *testing.T) {
	good := writeTable(t, gameTable)
	bad := writeTable(t, "[[struct]]\nname = \"Loop\"\nfields = [{ name = \"next\", type = \"Loop\" }]\n")
	out, err := execute(t, "layout", "--ui", "off", good, bad)
	if err == nil {
		t.Fatal("layout with a recursive struct succeeded")
	}
	if !strings.Contains(out, "move_right") {
		t.Errorf("good table missing from output:\n%s", out)
	}
}

func TestParseArgs(t *testing.T) {
	params := []ir.AbiParam{ir.Param(ir.I8), ir.Param(ir.I32), ir.Param(ir.I64)}
	got, err := parseArgs(params, []string{"-1", "0x10", "42"})
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{0xff, 16, 42}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %#x, want %#x", i, got[i], want[i])
		}
	}
	if _, err := parseArgs(params, []string{"1"}); err == nil {
		t.Error("arity mismatch accepted")
	}
	if _, err := parseArgs(params, []string{"300", "1", "1"}); err == nil {
		t.Error("i8 overflow accepted")
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var p versionPayload
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatal(err)
	}
	if p.Tool != "abilower" || p.Version == "" {
		t.Fatalf("payload = %+v", p)
	}
}
