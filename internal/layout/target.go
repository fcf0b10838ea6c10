package layout

import (
	"fmt"

	"abilower/internal/ir"
)

// Target describes the ABI target triple and its pointer properties.
//
// Only the pointer width matters to lowering: it decides the union payload
// width and the type of every address value.
type Target struct {
	Triple   string // e.g. "x86_64-linux-gnu"
	PtrSize  int    // bytes
	PtrAlign int    // bytes
}

func X86_64LinuxGNU() Target {
	return Target{
		Triple:   "x86_64-linux-gnu",
		PtrSize:  8,
		PtrAlign: 8,
	}
}

func I686LinuxGNU() Target {
	return Target{
		Triple:   "i686-linux-gnu",
		PtrSize:  4,
		PtrAlign: 4,
	}
}

// TargetByName resolves a short architecture name or a full triple.
func TargetByName(name string) (Target, error) {
	switch name {
	case "", "x86_64", "amd64", "x86_64-linux-gnu":
		return X86_64LinuxGNU(), nil
	case "i686", "x86", "386", "i686-linux-gnu":
		return I686LinuxGNU(), nil
	}
	return Target{}, fmt.Errorf("unsupported target %q", name)
}

// PointerType returns the backend type used for addresses.
func (t Target) PointerType() ir.Type {
	if pt, ok := ir.IntWithByteSize(t.PtrSize); ok {
		return pt
	}
	return ir.I64
}
