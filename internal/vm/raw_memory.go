package vm

import (
	"encoding/binary"

	"abilower/internal/ir"
)

// StackBase is the address of the first stack byte. Address 0 stays invalid.
const StackBase uint64 = 0x1000

// FuncAddrBase is where function addresses start; each function gets a
// FuncAddrStride-byte window so misaligned pointers are rejected.
const (
	FuncAddrBase   uint64 = 0x7000_0000
	FuncAddrStride uint64 = 16
)

type rawMemory struct {
	data []byte
	sp   uint64 // next free address
	peak uint64
}

func newRawMemory(size int) *rawMemory {
	return &rawMemory{
		data: make([]byte, size),
		sp:   StackBase,
		peak: StackBase,
	}
}

func (m *rawMemory) end() uint64 {
	return StackBase + uint64(len(m.data))
}

// alloc reserves size bytes aligned to align and zeroes them.
func (m *rawMemory) alloc(size uint32, align uint64) (uint64, bool) {
	base := m.sp
	if align > 1 {
		base = (base + align - 1) &^ (align - 1)
	}
	top := base + uint64(size)
	if top > m.end() {
		return 0, false
	}
	clear(m.data[base-StackBase : top-StackBase])
	m.sp = top
	if top > m.peak {
		m.peak = top
	}
	return base, true
}

func (m *rawMemory) bytes(addr uint64, n int) ([]byte, bool) {
	if addr < StackBase || addr+uint64(n) > m.end() || addr+uint64(n) < addr {
		return nil, false
	}
	off := addr - StackBase
	return m.data[off : off+uint64(n)], true
}

func (m *rawMemory) load(addr uint64, t ir.Type) (uint64, bool) {
	b, ok := m.bytes(addr, t.Bytes())
	if !ok {
		return 0, false
	}
	switch t {
	case ir.I8:
		return uint64(b[0]), true
	case ir.I16:
		return uint64(binary.LittleEndian.Uint16(b)), true
	case ir.I32:
		return uint64(binary.LittleEndian.Uint32(b)), true
	case ir.I64:
		return binary.LittleEndian.Uint64(b), true
	}
	return 0, false
}

func (m *rawMemory) store(addr uint64, t ir.Type, v uint64) bool {
	b, ok := m.bytes(addr, t.Bytes())
	if !ok {
		return false
	}
	switch t {
	case ir.I8:
		b[0] = byte(v)
	case ir.I16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case ir.I32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case ir.I64:
		binary.LittleEndian.PutUint64(b, v)
	default:
		return false
	}
	return true
}
