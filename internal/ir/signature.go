package ir

import (
	"fmt"
	"strings"
)

// ArgumentPurpose marks parameters with a calling-convention role.
type ArgumentPurpose uint8

const (
	// PurposeNormal is an ordinary parameter.
	PurposeNormal ArgumentPurpose = iota
	// PurposeStructReturn is the caller-supplied pointer a large aggregate
	// result is written through. Targets may place it in a dedicated register.
	PurposeStructReturn
)

func (p ArgumentPurpose) String() string {
	switch p {
	case PurposeNormal:
		return "normal"
	case PurposeStructReturn:
		return "sret"
	default:
		return fmt.Sprintf("purpose(%d)", uint8(p))
	}
}

// AbiParam is one primitive parameter or return value of a Signature.
type AbiParam struct {
	Type    Type
	Purpose ArgumentPurpose
}

// Param returns an ordinary parameter of type t.
func Param(t Type) AbiParam {
	return AbiParam{Type: t}
}

// Special returns a parameter with a calling-convention role.
func Special(t Type, purpose ArgumentPurpose) AbiParam {
	return AbiParam{Type: t, Purpose: purpose}
}

func (p AbiParam) String() string {
	if p.Purpose == PurposeNormal {
		return p.Type.String()
	}
	return p.Type.String() + " " + p.Purpose.String()
}

// CallConv names a calling convention.
type CallConv uint8

const (
	CallConvFast CallConv = iota
	CallConvSystemV
)

func (c CallConv) String() string {
	switch c {
	case CallConvFast:
		return "fast"
	case CallConvSystemV:
		return "system_v"
	default:
		return fmt.Sprintf("callconv(%d)", uint8(c))
	}
}

// Signature is the primitive-level shape of a function.
type Signature struct {
	Params   []AbiParam
	Returns  []AbiParam
	CallConv CallConv
}

// NewSignature returns an empty signature with the given convention.
func NewSignature(cc CallConv) Signature {
	return Signature{CallConv: cc}
}

// SpecialParamIndex returns the index of the first parameter with purpose.
func (s *Signature) SpecialParamIndex(purpose ArgumentPurpose) (int, bool) {
	for i, p := range s.Params {
		if p.Purpose == purpose {
			return i, true
		}
	}
	return 0, false
}

// UsesStructReturnParam reports whether the signature carries an out pointer.
func (s *Signature) UsesStructReturnParam() bool {
	_, ok := s.SpecialParamIndex(PurposeStructReturn)
	return ok
}

// Equal reports whether two signatures are interchangeable at a call site.
func (s *Signature) Equal(o *Signature) bool {
	if s.CallConv != o.CallConv || len(s.Params) != len(o.Params) || len(s.Returns) != len(o.Returns) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range s.Returns {
		if s.Returns[i] != o.Returns[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of s.
func (s *Signature) Clone() Signature {
	return Signature{
		Params:   append([]AbiParam(nil), s.Params...),
		Returns:  append([]AbiParam(nil), s.Returns...),
		CallConv: s.CallConv,
	}
}

func (s Signature) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(")")
	if len(s.Returns) > 0 {
		sb.WriteString(" -> ")
		for i, r := range s.Returns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(r.String())
		}
	}
	sb.WriteString(" ")
	sb.WriteString(s.CallConv.String())
	return sb.String()
}

// Linkage controls symbol visibility of a declared function.
type Linkage uint8

const (
	LinkageLocal Linkage = iota
	LinkageExport
	LinkageImport
)

func (l Linkage) String() string {
	switch l {
	case LinkageLocal:
		return "local"
	case LinkageExport:
		return "export"
	case LinkageImport:
		return "import"
	default:
		return fmt.Sprintf("linkage(%d)", uint8(l))
	}
}
