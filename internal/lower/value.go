package lower

import (
	"fmt"
	"strings"

	"abilower/internal/ir"
	"abilower/internal/types"
)

// Value is a source-level value while a function body is being lowered.
//
// The set of shapes is closed: Scalar, StackAggregate and UnstableAggregate.
// Consumers switch over all three.
type Value interface {
	// Type returns the source type the value has.
	Type() types.Type
	String() string
	isValue()
}

// Scalar is one register-resident integer.
type Scalar struct {
	V ir.Value
	T types.Type
}

// StackAggregate is an aggregate whose fields live in memory at Ptr+Offset.
// Nested field access adds to Offset and never allocates.
type StackAggregate struct {
	T      types.Type
	Ptr    ir.Value
	Offset int32
}

// UnstableAggregate is an aggregate whose fields are still held one by one
// and not yet committed to any memory location.
type UnstableAggregate struct {
	T      types.Type
	Fields []Value
}

func (Scalar) isValue()            {}
func (StackAggregate) isValue()    {}
func (UnstableAggregate) isValue() {}

func (s Scalar) Type() types.Type            { return s.T }
func (s StackAggregate) Type() types.Type    { return s.T }
func (u UnstableAggregate) Type() types.Type { return u.T }

func (s Scalar) String() string { return fmt.Sprintf("%s:%s", s.V, s.T) }

func (s StackAggregate) String() string {
	if s.Offset == 0 {
		return fmt.Sprintf("%s@%s", s.T, s.Ptr)
	}
	return fmt.Sprintf("%s@%s+%d", s.T, s.Ptr, s.Offset)
}

func (u UnstableAggregate) String() string {
	if u.T.IsUnit() {
		return "()"
	}
	parts := make([]string, len(u.Fields))
	for i, f := range u.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s{%s}", u.T, strings.Join(parts, ", "))
}

// UnitValue is the unit value: an unstable aggregate with no fields.
func UnitValue() Value {
	return UnstableAggregate{T: types.Unit()}
}

// AsScalar returns v's backend value if v is a Scalar.
func AsScalar(v Value) (ir.Value, bool) {
	s, ok := v.(Scalar)
	if !ok {
		return ir.NoValue, false
	}
	return s.V, true
}

// Tagged is a lowered tagged-union value: an i32 tag and a pointer-wide
// payload whose meaning depends on the variant.
type Tagged struct {
	T       types.Type
	Tag     ir.Value
	Payload ir.Value
}

// Closure is a type-erased closure: a pointer to its boxed captures and the
// address of a forwarding function with signature Sig.
type Closure struct {
	Data    ir.Value
	Func    ir.Value
	Sig     ir.Signature
	Params  []types.Type // explicit parameters, captures excluded
	Result  types.Type
	Forward string
}

// StructReturn reports whether calls pass a destination pointer first.
func (c *Closure) StructReturn() bool {
	return c.Sig.UsesStructReturnParam()
}
