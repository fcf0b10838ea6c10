package demo_test

import (
	"slices"
	"testing"

	"abilower/internal/demo"
	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/trace"
	"abilower/internal/vm"
)

func TestDemosRunOnEveryTarget(t *testing.T) {
	targets := []layout.Target{layout.X86_64LinuxGNU(), layout.I686LinuxGNU()}
	policies := []layout.Policy{layout.PolicyAligned, layout.PolicyPacked}
	for _, d := range demo.All() {
		for _, target := range targets {
			for _, policy := range policies {
				for _, maxScalars := range []int{1, 2, 8} {
					opts := layout.Options{Target: target, Policy: policy, MaxScalars: maxScalars}
					m, err := d.Build(opts, nil)
					if err != nil {
						t.Fatalf("%s %s/%s/%d: %v", d.Name, target.Triple, policy, maxScalars, err)
					}
					res, err := vm.New(m, vm.Options{}).Call(demo.Entry)
					if err != nil {
						t.Fatalf("%s %s/%s/%d: %v", d.Name, target.Triple, policy, maxScalars, err)
					}
					if got := vm.Signed(res[0], ir.I32); got != d.Want {
						t.Errorf("%s %s/%s/%d = %d, want %d", d.Name, target.Triple, policy, maxScalars, got, d.Want)
					}
				}
			}
		}
	}
}

func TestRegistry(t *testing.T) {
	want := []string{"closures", "move-right", "struct-layouts", "tagged-union"}
	if got := demo.Names(); !slices.Equal(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	if _, ok := demo.Lookup("move-right"); !ok {
		t.Fatal("move-right not registered")
	}
	if _, ok := demo.Lookup("missing"); ok {
		t.Fatal("Lookup(missing) succeeded")
	}
}

func TestClosuresDemoEmitsForwarders(t *testing.T) {
	d, _ := demo.Lookup("closures")
	m, err := d.Build(layout.Options{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	names := m.Names()
	for _, want := range []string{"closure_forward.f0.0", "closure_forward.f1.1"} {
		if !slices.Contains(names, want) {
			t.Errorf("module functions %v lack %s", names, want)
		}
	}
}

func TestBuildIsTraced(t *testing.T) {
	d, _ := demo.Lookup("struct-layouts")
	ring := trace.NewRingTracer(64, trace.LevelDebug)
	if _, err := d.Build(layout.Options{}, ring); err != nil {
		t.Fatal(err)
	}
	var ends []string
	for _, ev := range ring.Snapshot() {
		if ev.Kind == trace.KindSpanEnd {
			ends = append(ends, ev.Name)
		}
	}
	for _, want := range []string{"lower:inc_small", "lower:inc_large", "lower:main", "lower:struct-layouts"} {
		if !slices.Contains(ends, want) {
			t.Errorf("span ends %v lack %s", ends, want)
		}
	}
}
