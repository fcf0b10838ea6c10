package layout

import (
	"fmt"
	"strings"
)

// LayoutErrorKind enumerates types of layout table errors.
type LayoutErrorKind uint8

const (
	// LayoutErrRecursiveUnsized indicates a recursive aggregate with no fixed size.
	LayoutErrRecursiveUnsized LayoutErrorKind = iota + 1
	LayoutErrUnknownStruct
	LayoutErrUnknownUnion
	LayoutErrUnknownFunction
	LayoutErrUnknownField
	LayoutErrUnknownVariant
	LayoutErrDuplicate
	LayoutErrInvalidPayload
	LayoutErrUnsupported
	LayoutErrInvalidType
	LayoutErrSizeOverflow
)

func (k LayoutErrorKind) String() string {
	switch k {
	case LayoutErrRecursiveUnsized:
		return "recursive"
	case LayoutErrUnknownStruct:
		return "unknown-struct"
	case LayoutErrUnknownUnion:
		return "unknown-union"
	case LayoutErrUnknownFunction:
		return "unknown-function"
	case LayoutErrUnknownField:
		return "unknown-field"
	case LayoutErrUnknownVariant:
		return "unknown-variant"
	case LayoutErrDuplicate:
		return "duplicate"
	case LayoutErrInvalidPayload:
		return "invalid-payload"
	case LayoutErrUnsupported:
		return "unsupported"
	case LayoutErrInvalidType:
		return "invalid-type"
	case LayoutErrSizeOverflow:
		return "size-overflow"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// LayoutError represents an inconsistent or incomplete type table, or a
// query against a name the table does not know.
type LayoutError struct {
	Kind   LayoutErrorKind
	Name   string   // offending aggregate, union or function
	Member string   // field or variant, when relevant
	Detail string   // free-form context
	Cycle  []string // for LayoutErrRecursiveUnsized
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case LayoutErrRecursiveUnsized:
		if len(e.Cycle) == 0 {
			return fmt.Sprintf("recursive value type has infinite size (%s)", e.Name)
		}
		return fmt.Sprintf("recursive value type has infinite size (cycle: %s)", strings.Join(e.Cycle, " -> "))
	case LayoutErrUnknownStruct:
		return fmt.Sprintf("unknown struct %q%s", e.Name, e.suffix())
	case LayoutErrUnknownUnion:
		return fmt.Sprintf("unknown union %q%s", e.Name, e.suffix())
	case LayoutErrUnknownFunction:
		return fmt.Sprintf("unknown function %q%s", e.Name, e.suffix())
	case LayoutErrUnknownField:
		return fmt.Sprintf("struct %q has no field %q%s", e.Name, e.Member, e.suffix())
	case LayoutErrUnknownVariant:
		return fmt.Sprintf("union %q has no variant %q%s", e.Name, e.Member, e.suffix())
	case LayoutErrDuplicate:
		if e.Member != "" {
			return fmt.Sprintf("%q declares %q twice%s", e.Name, e.Member, e.suffix())
		}
		return fmt.Sprintf("%q is declared twice%s", e.Name, e.suffix())
	case LayoutErrInvalidPayload:
		return fmt.Sprintf("union %q variant %q: payload fields must be integers%s", e.Name, e.Member, e.suffix())
	default:
		return fmt.Sprintf("layout error %s for %q%s", e.Kind, e.Name, e.suffix())
	}
}

func (e *LayoutError) suffix() string {
	if e.Detail == "" {
		return ""
	}
	return ": " + e.Detail
}
