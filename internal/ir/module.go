package ir

import (
	"fmt"
	"sort"
)

// FuncDecl is a module-level function declaration.
type FuncDecl struct {
	Name      string
	Linkage   Linkage
	Signature Signature
	Defined   bool
}

// Module is a compilation unit: declared functions and their bodies.
type Module struct {
	Name        string
	PointerType Type
	Decls       []FuncDecl
	Defs        []*Function // indexed by FuncID; nil until defined

	byName map[string]FuncID
}

// NewModule creates an empty module for a target with pointers of type ptr.
func NewModule(name string, ptr Type) *Module {
	return &Module{
		Name:        name,
		PointerType: ptr,
		byName:      make(map[string]FuncID),
	}
}

// DeclareFunction registers name with sig. Re-declaring a name with an equal
// signature returns the existing id.
func (m *Module) DeclareFunction(name string, linkage Linkage, sig Signature) (FuncID, error) {
	if name == "" {
		return NoFuncID, fmt.Errorf("declare: empty function name")
	}
	if id, ok := m.byName[name]; ok {
		prev := &m.Decls[id]
		if !prev.Signature.Equal(&sig) {
			return NoFuncID, fmt.Errorf("declare %s: incompatible signature %s, previously %s", name, sig, prev.Signature)
		}
		if linkage == LinkageExport {
			prev.Linkage = LinkageExport
		}
		return id, nil
	}
	id := FuncID(len(m.Decls))
	m.Decls = append(m.Decls, FuncDecl{Name: name, Linkage: linkage, Signature: sig.Clone()})
	m.Defs = append(m.Defs, nil)
	m.byName[name] = id
	return id, nil
}

// DefineFunction attaches a verified body to a declaration.
func (m *Module) DefineFunction(id FuncID, fn *Function) error {
	decl := m.Decl(id)
	if decl == nil {
		return fmt.Errorf("define: unknown function id %d", id)
	}
	if decl.Defined {
		return fmt.Errorf("define %s: already defined", decl.Name)
	}
	if decl.Linkage == LinkageImport {
		return fmt.Errorf("define %s: imported functions have no body", decl.Name)
	}
	if !decl.Signature.Equal(&fn.Signature) {
		return fmt.Errorf("define %s: body signature %s does not match declaration %s", decl.Name, fn.Signature, decl.Signature)
	}
	if err := Verify(fn, m.PointerType); err != nil {
		return err
	}
	fn.Name = decl.Name
	decl.Defined = true
	m.Defs[id] = fn
	return nil
}

// DeclareFuncInFunc makes a declared function callable from b's body.
func (m *Module) DeclareFuncInFunc(id FuncID, b *FunctionBuilder) FuncRef {
	decl := m.Decl(id)
	if decl == nil {
		b.fail("reference to unknown function id %d", id)
		return FuncRef(-1)
	}
	return b.importFunc(ExtFunc{ID: id, Name: decl.Name, Signature: decl.Signature.Clone()})
}

// Decl returns the declaration for id, or nil.
func (m *Module) Decl(id FuncID) *FuncDecl {
	if id < 0 || int(id) >= len(m.Decls) {
		return nil
	}
	return &m.Decls[id]
}

// FuncByName looks up a declaration by name.
func (m *Module) FuncByName(name string) (FuncID, bool) {
	if m.byName == nil {
		m.reindex()
	}
	id, ok := m.byName[name]
	return id, ok
}

// Function returns the body of id, or nil when it is not defined.
func (m *Module) Function(id FuncID) *Function {
	if id < 0 || int(id) >= len(m.Defs) {
		return nil
	}
	return m.Defs[id]
}

// Names returns the declared function names in sorted order.
func (m *Module) Names() []string {
	out := make([]string, 0, len(m.Decls))
	for i := range m.Decls {
		out = append(out, m.Decls[i].Name)
	}
	sort.Strings(out)
	return out
}

// Undefined lists declarations without bodies that are not imports.
func (m *Module) Undefined() []string {
	var out []string
	for i := range m.Decls {
		d := &m.Decls[i]
		if !d.Defined && d.Linkage != LinkageImport {
			out = append(out, d.Name)
		}
	}
	return out
}

func (m *Module) reindex() {
	m.byName = make(map[string]FuncID, len(m.Decls))
	for i := range m.Decls {
		m.byName[m.Decls[i].Name] = FuncID(i)
	}
}
