package types

import (
	"fmt"
	"strings"
)

// Kind enumerates the source-level types the lowering layer understands.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindInt
	KindStruct
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindInt:
		return "int"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// Bytes returns the storage size of the width.
func (w Width) Bytes() int {
	return int(w) / 8
}

// Valid reports whether w is one of the supported integer widths.
func (w Width) Valid() bool {
	switch w {
	case Width8, Width16, Width32, Width64:
		return true
	}
	return false
}

// Type is a compact descriptor for a resolved source type.
//
// Struct and union types refer to their definitions by name; the definitions
// themselves live in the layout table.
type Type struct {
	Kind  Kind
	Width Width  // for KindInt
	Name  string // for KindStruct and KindUnion
}

// Unit returns the zero-sized unit type.
func Unit() Type { return Type{Kind: KindUnit} }

// Int returns an integer type of the given width.
func Int(w Width) Type { return Type{Kind: KindInt, Width: w} }

// I8 returns an 8-bit integer type.
func I8() Type { return Int(Width8) }

// I16 returns a 16-bit integer type.
func I16() Type { return Int(Width16) }

// I32 returns a 32-bit integer type. It is the default `int`.
func I32() Type { return Int(Width32) }

// I64 returns a 64-bit integer type.
func I64() Type { return Int(Width64) }

// Struct references a named aggregate.
func Struct(name string) Type { return Type{Kind: KindStruct, Name: name} }

// Union references a named tagged union.
func Union(name string) Type { return Type{Kind: KindUnion, Name: name} }

func (t Type) IsUnit() bool   { return t.Kind == KindUnit }
func (t Type) IsInt() bool    { return t.Kind == KindInt }
func (t Type) IsStruct() bool { return t.Kind == KindStruct }
func (t Type) IsUnion() bool  { return t.Kind == KindUnion }

// IsAggregate reports whether values of t are lowered as aggregates.
// Unit counts as the empty aggregate.
func (t Type) IsAggregate() bool {
	return t.Kind == KindStruct || t.Kind == KindUnit
}

func (t Type) String() string {
	switch t.Kind {
	case KindUnit:
		return "unit"
	case KindInt:
		return fmt.Sprintf("i%d", t.Width)
	case KindStruct, KindUnion:
		return t.Name
	default:
		return t.Kind.String()
	}
}

// Parse reads a type written the way table files and the CLI spell them:
// "unit", "int" (i32), "i8".."i64", or an aggregate name. Names are treated as
// struct references; callers that know about unions resolve them afterwards.
func Parse(s string) (Type, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return Type{}, fmt.Errorf("empty type")
	case "unit", "()":
		return Unit(), nil
	case "int":
		return I32(), nil
	case "i8":
		return I8(), nil
	case "i16":
		return I16(), nil
	case "i32":
		return I32(), nil
	case "i64":
		return I64(), nil
	}
	if strings.ContainsAny(s, " \t,()") {
		return Type{}, fmt.Errorf("invalid type name %q", s)
	}
	return Struct(s), nil
}
