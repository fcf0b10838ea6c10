package lower

import (
	"errors"
	"fmt"
)

// ContractKind classifies lowering contract violations. None of them are
// recoverable: they indicate a bug earlier in the pipeline.
type ContractKind uint8

const (
	// ContractLookup wraps a failed layout table lookup.
	ContractLookup ContractKind = iota + 1
	// ContractShape is a value whose shape does not fit the operation,
	// such as destructuring a scalar.
	ContractShape
	// ContractType is a value whose type differs from the declared type.
	ContractType
	// ContractArity is a wrong number of fields, arguments or arms.
	ContractArity
	// ContractBackend is an error reported by the ir builder or module.
	ContractBackend
)

func (k ContractKind) String() string {
	switch k {
	case ContractLookup:
		return "lookup"
	case ContractShape:
		return "shape"
	case ContractType:
		return "type"
	case ContractArity:
		return "arity"
	case ContractBackend:
		return "backend"
	default:
		return fmt.Sprintf("contract(%d)", uint8(k))
	}
}

// ContractError reports a lowering contract violation together with the
// type, field or function it concerns.
type ContractError struct {
	Kind   ContractKind
	Op     string // lowering operation, e.g. "destructure"
	Name   string // offending type, field or function
	Detail string
	Err    error
}

func (e *ContractError) Error() string {
	msg := "lower: " + e.Op
	if e.Name != "" {
		msg += " " + e.Name
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// IsContract reports whether err is a ContractError of the given kind.
func IsContract(err error, kind ContractKind) bool {
	var ce *ContractError
	return errors.As(err, &ce) && ce.Kind == kind
}

func contractf(kind ContractKind, op, name, format string, args ...any) *ContractError {
	return &ContractError{Kind: kind, Op: op, Name: name, Detail: fmt.Sprintf(format, args...)}
}

func lookupErr(op, name string, err error) *ContractError {
	return &ContractError{Kind: ContractLookup, Op: op, Name: name, Err: err}
}
