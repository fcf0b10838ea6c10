// Package tablefile reads layout tables from TOML files.
//
// A table file looks like:
//
//	[table]
//	target = "x86_64"
//	policy = "aligned"
//	max_scalars = 2
//
//	[[struct]]
//	name = "Point"
//	fields = [{ name = "x", type = "int" }, { name = "y", type = "int" }]
//
//	[[union]]
//	name = "Packet"
//	variants = [{ name = "Pending" }, { name = "Failed", fields = ["int"] }]
//
//	[[func]]
//	name = "norm"
//	params = ["Point"]
//	result = "int"
//
// The [table] section is optional. Names are NFC-normalized so that files
// written on different systems describe the same table.
package tablefile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/unicode/norm"

	"abilower/internal/layout"
	"abilower/internal/types"
)

type fileConfig struct {
	Table   tableConfig    `toml:"table"`
	Structs []structConfig `toml:"struct"`
	Unions  []unionConfig  `toml:"union"`
	Funcs   []funcConfig   `toml:"func"`
}

type tableConfig struct {
	Target     string `toml:"target"`
	Policy     string `toml:"policy"`
	MaxScalars int    `toml:"max_scalars"`
}

type structConfig struct {
	Name   string        `toml:"name"`
	Fields []fieldConfig `toml:"fields"`
}

type fieldConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

type unionConfig struct {
	Name     string          `toml:"name"`
	Variants []variantConfig `toml:"variants"`
}

type variantConfig struct {
	Name   string   `toml:"name"`
	Fields []string `toml:"fields"`
}

type funcConfig struct {
	Name   string   `toml:"name"`
	Params []string `toml:"params"`
	Result string   `toml:"result"`
}

// Description is a decoded table file, ready to be built.
type Description struct {
	Path    string
	Options layout.Options

	structs []layout.StructDef
	unions  []layout.UnionDef
	funcs   []layout.FuncDef
}

// LoadFile reads and decodes a table file.
func LoadFile(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read table file: %w", err)
	}
	return Decode(path, data)
}

// Decode parses table file contents. path is only used in messages.
func Decode(path string, data []byte) (*Description, error) {
	var cfg fileConfig
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	d := &Description{Path: path}
	if err := d.decodeOptions(&cfg.Table, meta); err != nil {
		return nil, err
	}

	var errs []error
	for i := range cfg.Structs {
		def, err := decodeStruct(&cfg.Structs[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: [[struct]] #%d: %w", path, i+1, err))
			continue
		}
		d.structs = append(d.structs, def)
	}
	for i := range cfg.Unions {
		def, err := decodeUnion(&cfg.Unions[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: [[union]] #%d: %w", path, i+1, err))
			continue
		}
		d.unions = append(d.unions, def)
	}
	for i := range cfg.Funcs {
		def, err := decodeFunc(&cfg.Funcs[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: [[func]] #%d: %w", path, i+1, err))
			continue
		}
		d.funcs = append(d.funcs, def)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return d, nil
}

func (d *Description) decodeOptions(cfg *tableConfig, meta toml.MetaData) error {
	if meta.IsDefined("table", "target") {
		target, err := layout.TargetByName(strings.TrimSpace(cfg.Target))
		if err != nil {
			return fmt.Errorf("%s: [table].target: %w", d.Path, err)
		}
		d.Options.Target = target
	}
	if meta.IsDefined("table", "policy") {
		policy, err := layout.ParsePolicy(strings.TrimSpace(cfg.Policy))
		if err != nil {
			return fmt.Errorf("%s: [table].policy: %w", d.Path, err)
		}
		d.Options.Policy = policy
	}
	if meta.IsDefined("table", "max_scalars") {
		if cfg.MaxScalars < 1 {
			return fmt.Errorf("%s: [table].max_scalars must be at least 1, got %d", d.Path, cfg.MaxScalars)
		}
		d.Options.MaxScalars = cfg.MaxScalars
	}
	return nil
}

func decodeStruct(cfg *structConfig) (layout.StructDef, error) {
	name, err := ident(cfg.Name)
	if err != nil {
		return layout.StructDef{}, err
	}
	def := layout.StructDef{Name: name}
	for i := range cfg.Fields {
		fname, err := ident(cfg.Fields[i].Name)
		if err != nil {
			return layout.StructDef{}, fmt.Errorf("%s field #%d: %w", name, i+1, err)
		}
		ty, err := parseType(cfg.Fields[i].Type)
		if err != nil {
			return layout.StructDef{}, fmt.Errorf("%s.%s: %w", name, fname, err)
		}
		def.Fields = append(def.Fields, layout.F(fname, ty))
	}
	return def, nil
}

func decodeUnion(cfg *unionConfig) (layout.UnionDef, error) {
	name, err := ident(cfg.Name)
	if err != nil {
		return layout.UnionDef{}, err
	}
	if len(cfg.Variants) == 0 {
		return layout.UnionDef{}, fmt.Errorf("%s: union has no variants", name)
	}
	def := layout.UnionDef{Name: name}
	for i := range cfg.Variants {
		vname, err := ident(cfg.Variants[i].Name)
		if err != nil {
			return layout.UnionDef{}, fmt.Errorf("%s variant #%d: %w", name, i+1, err)
		}
		var fields []types.Type
		for _, s := range cfg.Variants[i].Fields {
			ty, err := parseType(s)
			if err != nil {
				return layout.UnionDef{}, fmt.Errorf("%s::%s: %w", name, vname, err)
			}
			fields = append(fields, ty)
		}
		def.Variants = append(def.Variants, layout.V(vname, fields...))
	}
	return def, nil
}

func decodeFunc(cfg *funcConfig) (layout.FuncDef, error) {
	name, err := ident(cfg.Name)
	if err != nil {
		return layout.FuncDef{}, err
	}
	def := layout.FuncDef{Name: name, Result: types.Unit()}
	for i, s := range cfg.Params {
		ty, err := parseType(s)
		if err != nil {
			return layout.FuncDef{}, fmt.Errorf("%s param #%d: %w", name, i+1, err)
		}
		def.Params = append(def.Params, ty)
	}
	if strings.TrimSpace(cfg.Result) != "" {
		if def.Result, err = parseType(cfg.Result); err != nil {
			return layout.FuncDef{}, fmt.Errorf("%s result: %w", name, err)
		}
	}
	return def, nil
}

func ident(s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("missing name")
	}
	return s, nil
}

func parseType(s string) (types.Type, error) {
	return types.Parse(norm.NFC.String(s))
}

// Build validates the description and returns the layout table.
func (d *Description) Build() (*layout.Table, error) {
	b := layout.NewBuilder(d.Options)
	for _, s := range d.structs {
		b.Struct(s.Name, s.Fields...)
	}
	for _, u := range d.unions {
		b.Union(u.Name, u.Variants...)
	}
	for _, f := range d.funcs {
		b.Func(f.Name, f.Params, f.Result)
	}
	table, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Path, err)
	}
	return table, nil
}

// Load reads a file and builds its table in one step.
func Load(path string) (*layout.Table, error) {
	d, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return d.Build()
}
