package ir

import (
	"fmt"
	"io"
	"strings"
)

// DumpModule writes every declaration and body of m in textual form.
func DumpModule(w io.Writer, m *Module) error {
	if w == nil || m == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "; module %s, pointer %s, %d functions\n", m.Name, m.PointerType, len(m.Decls)); err != nil {
		return err
	}
	for i := range m.Decls {
		d := &m.Decls[i]
		fn := m.Defs[i]
		if fn == nil {
			if _, err := fmt.Fprintf(w, "\ndeclare %s %%%s%s\n", d.Linkage, d.Name, d.Signature); err != nil {
				return err
			}
			continue
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		if err := DumpFunction(w, fn); err != nil {
			return err
		}
	}
	return nil
}

// DumpFunction writes one function body.
func DumpFunction(w io.Writer, f *Function) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %%%s%s {\n", f.Name, f.Signature)
	for i, s := range f.Slots {
		fmt.Fprintf(&sb, "    %s = explicit_slot %d, align = %d\n", StackSlot(i), s.Size, 1<<s.AlignShift)
	}
	for i := range f.Sigs {
		fmt.Fprintf(&sb, "    %s = %s\n", SigRef(i), f.Sigs[i])
	}
	for i := range f.Ext {
		fmt.Fprintf(&sb, "    %s = %%%s%s\n", FuncRef(i), f.Ext[i].Name, f.Ext[i].Signature)
	}
	for i := range f.Tables {
		jt := &f.Tables[i]
		fmt.Fprintf(&sb, "    %s = jump_table %s, [%s]\n", JumpTable(i), jt.Default, joinBlocks(jt.Targets))
	}
	if len(f.Slots)+len(f.Sigs)+len(f.Ext)+len(f.Tables) > 0 {
		sb.WriteString("\n")
	}
	for bi := range f.Blocks {
		if bi > 0 {
			sb.WriteString("\n")
		}
		blk := &f.Blocks[bi]
		sb.WriteString(Block(bi).String())
		if len(blk.Params) > 0 {
			sb.WriteString("(")
			for i, p := range blk.Params {
				if i > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "%s: %s", p, f.ValueType(p))
			}
			sb.WriteString(")")
		}
		sb.WriteString(":\n")
		for ii := range blk.Insts {
			sb.WriteString("    ")
			sb.WriteString(FormatInst(f, &blk.Insts[ii]))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// FormatInst renders one instruction.
func FormatInst(f *Function, inst *Inst) string {
	var sb strings.Builder
	if len(inst.Results) > 0 {
		sb.WriteString(joinValues(inst.Results))
		sb.WriteString(" = ")
	}
	sb.WriteString(inst.Op.String())
	switch inst.Op {
	case OpIconst:
		fmt.Fprintf(&sb, ".%s %d", inst.Type, inst.Imm)
	case OpSextend, OpUextend, OpIreduce:
		fmt.Fprintf(&sb, ".%s %s", inst.Type, joinValues(inst.Args))
	case OpIaddImm:
		fmt.Fprintf(&sb, " %s, %d", joinValues(inst.Args), inst.Imm)
	case OpLoad:
		fmt.Fprintf(&sb, ".%s %s%s", inst.Type, joinValues(inst.Args), offsetSuffix(inst.Offset))
	case OpStore:
		fmt.Fprintf(&sb, " %s%s", joinValues(inst.Args), offsetSuffix(inst.Offset))
	case OpStackAddr:
		fmt.Fprintf(&sb, ".%s %s%s", inst.Type, inst.Slot, offsetSuffix(inst.Offset))
	case OpFuncAddr:
		fmt.Fprintf(&sb, ".%s %s", inst.Type, funcLabel(f, inst.Func))
	case OpCall:
		fmt.Fprintf(&sb, " %s(%s)", funcLabel(f, inst.Func), joinValues(inst.Args))
	case OpCallIndirect:
		if len(inst.Args) > 0 {
			fmt.Fprintf(&sb, " %s, %s(%s)", inst.Sig, inst.Args[0], joinValues(inst.Args[1:]))
		}
	case OpTrap:
		fmt.Fprintf(&sb, " %s", inst.Trap)
	case OpJump:
		fmt.Fprintf(&sb, " %s", inst.Dest)
		if len(inst.Args) > 0 {
			fmt.Fprintf(&sb, "(%s)", joinValues(inst.Args))
		}
	case OpBrTable:
		fmt.Fprintf(&sb, " %s, %s", joinValues(inst.Args), inst.Table)
	default:
		if len(inst.Args) > 0 {
			sb.WriteString(" ")
			sb.WriteString(joinValues(inst.Args))
		}
	}
	return sb.String()
}

func funcLabel(f *Function, ref FuncRef) string {
	if f != nil && ref >= 0 && int(ref) < len(f.Ext) {
		return "%" + f.Ext[ref].Name
	}
	return ref.String()
}

func offsetSuffix(off int32) string {
	if off == 0 {
		return ""
	}
	return fmt.Sprintf("%+d", off)
}

func joinValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func joinBlocks(bs []Block) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = b.String()
	}
	return strings.Join(parts, ", ")
}
