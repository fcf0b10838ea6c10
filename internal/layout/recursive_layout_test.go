package layout_test

import (
	"errors"
	"strings"
	"testing"

	"abilower/internal/layout"
	"abilower/internal/types"
)

func TestBuild_RecursiveStructReportsCycle(t *testing.T) {
	_, err := layout.NewBuilder(layout.Options{}).
		Struct("Node", layout.F("value", types.I32()), layout.F("next", types.Struct("Link"))).
		Struct("Link", layout.F("node", types.Struct("Node"))).
		Build()
	if err == nil {
		t.Fatal("expected recursive layout error, got nil")
	}
	var lerr *layout.LayoutError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *layout.LayoutError, got %T (%v)", err, err)
	}
	if lerr.Kind != layout.LayoutErrRecursiveUnsized {
		t.Fatalf("expected LayoutErrRecursiveUnsized, got kind=%s (%v)", lerr.Kind, lerr)
	}
	if len(lerr.Cycle) != 3 || lerr.Cycle[0] != lerr.Cycle[2] {
		t.Fatalf("expected closed cycle path, got %v", lerr.Cycle)
	}
	if !strings.Contains(err.Error(), "Link -> Node -> Link") {
		t.Fatalf("cycle not rendered in %q", err)
	}
}

func TestBuild_SelfReferenceIsRecursive(t *testing.T) {
	_, err := layout.NewBuilder(layout.Options{}).
		Struct("Loop", layout.F("self", types.Struct("Loop"))).
		Build()
	var lerr *layout.LayoutError
	if !errors.As(err, &lerr) || lerr.Kind != layout.LayoutErrRecursiveUnsized {
		t.Fatalf("got %v, want recursive error", err)
	}
}

func TestBuild_DeepNestingIsSized(t *testing.T) {
	tbl, err := layout.NewBuilder(layout.Options{}).
		Struct("A", layout.F("x", types.I8())).
		Struct("B", layout.F("a", types.Struct("A")), layout.F("y", types.I64())).
		Struct("C", layout.F("b", types.Struct("B")), layout.F("a", types.Struct("A"))).
		Build()
	if err != nil {
		t.Fatalf("unexpected layout error: %v", err)
	}
	size, err := tbl.SizeOf(types.Struct("C"))
	if err != nil {
		t.Fatal(err)
	}
	// B is {i8, pad 7, i64} = 16 aligned to 8; C appends A at 16 and pads to 24.
	if size != 24 {
		t.Fatalf("size(C) = %d, want 24", size)
	}
	off, _ := tbl.OffsetOf("C", 1)
	if off != 16 {
		t.Fatalf("offset(C.a) = %d, want 16", off)
	}
}
