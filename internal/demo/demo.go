// Package demo holds small programs lowered through internal/lower. Each
// one builds its own layout table and module and knows what its entry point
// should return, so the CLI and tests can run it end to end.
package demo

import (
	"fmt"
	"sort"

	"abilower/internal/ir"
	"abilower/internal/layout"
	"abilower/internal/lower"
	"abilower/internal/trace"
	"abilower/internal/types"
)

// Entry is the function every demo exports.
const Entry = "main"

// Demo is one runnable lowering scenario.
type Demo struct {
	Name        string
	Description string
	Want        int64 // i32 result of Entry

	table  func(opts layout.Options) *layout.Builder
	define func(u *lower.Unit) error
}

// Build lowers the demo under opts and returns its module.
func (d Demo) Build(opts layout.Options, tracer trace.Tracer) (*ir.Module, error) {
	table, err := d.table(opts).Build()
	if err != nil {
		return nil, fmt.Errorf("demo %s: %w", d.Name, err)
	}
	u := lower.NewUnit(d.Name, table, tracer)
	if err := d.define(u); err != nil {
		return nil, fmt.Errorf("demo %s: %w", d.Name, err)
	}
	m, err := u.Finish()
	if err != nil {
		return nil, fmt.Errorf("demo %s: %w", d.Name, err)
	}
	return m, nil
}

var registry = map[string]Demo{}

func register(d Demo) {
	registry[d.Name] = d
}

// Lookup returns the demo with the given name.
func Lookup(name string) (Demo, bool) {
	d, ok := registry[name]
	return d, ok
}

// All returns every demo sorted by name.
func All() []Demo {
	out := make([]Demo, 0, len(registry))
	for _, d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the sorted demo names.
func Names() []string {
	all := All()
	out := make([]string, len(all))
	for i, d := range all {
		out[i] = d.Name
	}
	return out
}

// sum adds scalars of any integer width as i32.
func sum(f *lower.FuncLower, vals ...lower.Value) (lower.Value, error) {
	acc := f.Int(0)
	for _, v := range vals {
		w, err := widen(f, v)
		if err != nil {
			return nil, err
		}
		if acc, err = f.Add(acc, w); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func widen(f *lower.FuncLower, v lower.Value) (lower.Value, error) {
	s, ok := v.(lower.Scalar)
	if !ok {
		return nil, fmt.Errorf("demo: %s is not a scalar", v)
	}
	switch {
	case s.T == types.I32():
		return s, nil
	case s.T.Width.Bytes() < 4:
		return lower.Scalar{V: f.Builder().Ins().Sextend(ir.I32, s.V), T: types.I32()}, nil
	}
	return lower.Scalar{V: f.Builder().Ins().Ireduce(ir.I32, s.V), T: types.I32()}, nil
}

// scale multiplies an i32 scalar by k.
func scale(f *lower.FuncLower, v lower.Value, k int64) (lower.Value, error) {
	s, ok := v.(lower.Scalar)
	if !ok {
		return nil, fmt.Errorf("demo: %s is not a scalar", v)
	}
	ins := f.Builder().Ins()
	return lower.Scalar{V: ins.Imul(s.V, ins.Iconst(ir.I32, k)), T: s.T}, nil
}
