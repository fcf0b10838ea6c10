package ir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when objectPayload format changes
const objectSchemaVersion uint16 = 1

// objectMagic prefixes every serialized module.
const objectMagic = "ABO1"

type objectPayload struct {
	Schema      uint16
	Name        string
	PointerType Type
	Decls       []FuncDecl
	Defs        []*Function
}

// ErrSchemaMismatch is returned when an object was written by another
// format version.
var ErrSchemaMismatch = errors.New("object schema mismatch")

// Encode writes m as a msgpack object.
func Encode(w io.Writer, m *Module) error {
	if m == nil {
		return fmt.Errorf("encode: nil module")
	}
	if _, err := io.WriteString(w, objectMagic); err != nil {
		return err
	}
	enc := msgpack.NewEncoder(w)
	return enc.Encode(&objectPayload{
		Schema:      objectSchemaVersion,
		Name:        m.Name,
		PointerType: m.PointerType,
		Decls:       m.Decls,
		Defs:        m.Defs,
	})
}

// Decode reads a module written by Encode and re-verifies every body.
func Decode(r io.Reader) (*Module, error) {
	magic := make([]byte, len(objectMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("decode: read header: %w", err)
	}
	if string(magic) != objectMagic {
		return nil, fmt.Errorf("decode: not an object file (header %q)", magic)
	}
	var p objectPayload
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if p.Schema != objectSchemaVersion {
		return nil, fmt.Errorf("decode: %w: got %d, want %d", ErrSchemaMismatch, p.Schema, objectSchemaVersion)
	}
	if len(p.Defs) != len(p.Decls) {
		return nil, fmt.Errorf("decode: %d bodies for %d declarations", len(p.Defs), len(p.Decls))
	}
	m := &Module{
		Name:        p.Name,
		PointerType: p.PointerType,
		Decls:       p.Decls,
		Defs:        p.Defs,
	}
	m.reindex()
	if len(m.byName) != len(m.Decls) {
		return nil, fmt.Errorf("decode: duplicate function names")
	}
	for i, fn := range m.Defs {
		if fn == nil {
			continue
		}
		if !m.Decls[i].Defined {
			return nil, fmt.Errorf("decode: body for undefined %s", m.Decls[i].Name)
		}
		if err := Verify(fn, m.PointerType); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	return m, nil
}

// WriteFile encodes m to path, replacing any existing file atomically.
func WriteFile(path string, m *Module) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*.abo")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()
	if err = Encode(f, m); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// ReadFile decodes the module stored at path.
func ReadFile(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return Decode(f)
}
