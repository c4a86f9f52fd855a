// Package wasmtest assembles small WebAssembly modules for tests.
//
// A Builder starts from a module that follows the guest ABI (memory, a bump
// alloc and a no-op dealloc) and adds operations with canned behaviour.
package wasmtest

import (
	"os"
	"path/filepath"
	"testing"
)

const (
	typeI32 = 0x7f
	typeI64 = 0x7e

	// dataBase is where the first data segment is placed.
	dataBase = 16
	// minHeapBase is the lowest address alloc hands out.
	minHeapBase = 1024
	pageSize    = 65536
)

// Instruction opcodes used by the canned bodies.
const (
	opUnreachable = 0x00
	opLoop        = 0x03
	opBr          = 0x0c
	blockEmpty    = 0x40
	opEnd         = 0x0b
	opLocalGet    = 0x20
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI32Add      = 0x6a
	opI64Or       = 0x84
	opI64Shl      = 0x86
	opI64ExtendU  = 0xad
)

type funcType struct {
	params, results []byte
}

func (t funcType) key() string {
	return string(t.params) + "/" + string(t.results)
}

type function struct {
	name string
	typ  funcType
	body []byte
}

type segment struct {
	offset uint32
	data   []byte
}

// Builder collects exports and renders a module binary.
type Builder struct {
	funcs    []function
	segments []segment
	dataEnd  uint32
	memory   bool
	pages    uint32
}

var (
	sigOp      = funcType{params: []byte{typeI32, typeI32}, results: []byte{typeI64}}
	sigAlloc   = funcType{params: []byte{typeI32}, results: []byte{typeI32}}
	sigDealloc = funcType{params: []byte{typeI32, typeI32}}
)

// New returns a builder for a module exporting memory, alloc and dealloc.
func New() *Builder {
	b := &Builder{memory: true, pages: 2, dataEnd: dataBase}
	b.funcs = append(b.funcs,
		// old := heap; heap += size; return old
		function{name: "alloc", typ: sigAlloc, body: []byte{
			opGlobalGet, 0,
			opGlobalGet, 0,
			opLocalGet, 0,
			opI32Add,
			opGlobalSet, 0,
		}},
		function{name: "dealloc", typ: sigDealloc},
	)
	return b
}

// Echo adds an operation that returns its input unchanged.
func (b *Builder) Echo(name string) *Builder {
	return b.addFunc(name, sigOp, []byte{
		opLocalGet, 0,
		opI64ExtendU,
		opI64Const, 32,
		opI64Shl,
		opLocalGet, 1,
		opI64ExtendU,
		opI64Or,
	})
}

// Return adds an operation that ignores its input and returns payload.
func (b *Builder) Return(name string, payload []byte) *Builder {
	ptr := b.addData(payload)
	return b.constResult(name, uint64(ptr)<<32|uint64(len(payload)))
}

// Fail adds an operation that reports msg as a guest failure.
func (b *Builder) Fail(name, msg string) *Builder {
	ptr := b.addData([]byte(msg))
	return b.constResult(name, uint64(ptr)<<32|uint64(len(msg))|0x80000000)
}

// Trap adds an operation that executes unreachable.
func (b *Builder) Trap(name string) *Builder {
	return b.addFunc(name, sigOp, []byte{opUnreachable})
}

// Spin adds an operation that never returns.
func (b *Builder) Spin(name string) *Builder {
	return b.addFunc(name, sigOp, []byte{
		opLoop, blockEmpty,
		opBr, 0,
		opEnd,
		opUnreachable,
	})
}

// OutOfBounds adds an operation whose result points past linear memory.
func (b *Builder) OutOfBounds(name string) *Builder {
	return b.constResult(name, uint64(0xffff0000)<<32|16)
}

// WrongSignature adds an export shaped (i32) -> i32, which is not an
// operation.
func (b *Builder) WrongSignature(name string) *Builder {
	return b.addFunc(name, sigAlloc, []byte{opLocalGet, 0})
}

// WithoutAlloc drops the alloc and dealloc exports.
func (b *Builder) WithoutAlloc() *Builder {
	kept := b.funcs[:0]
	for _, f := range b.funcs {
		if f.name != "alloc" && f.name != "dealloc" {
			kept = append(kept, f)
		}
	}
	b.funcs = kept
	return b
}

// WithoutMemory drops the memory export. Data-backed operations cannot be
// combined with it.
func (b *Builder) WithoutMemory() *Builder {
	b.memory = false
	return b
}

func (b *Builder) constResult(name string, word uint64) *Builder {
	body := appendSLEB(nil, opI64Const, int64(word))
	return b.addFunc(name, sigOp, body)
}

func (b *Builder) addFunc(name string, typ funcType, body []byte) *Builder {
	b.funcs = append(b.funcs, function{name: name, typ: typ, body: body})
	return b
}

func (b *Builder) addData(data []byte) uint32 {
	ptr := b.dataEnd
	b.segments = append(b.segments, segment{offset: ptr, data: append([]byte(nil), data...)})
	b.dataEnd += uint32(len(data))
	return ptr
}

func (b *Builder) heapBase() uint32 {
	base := (b.dataEnd + 7) &^ 7
	return max(base, minHeapBase)
}

// Bytes renders the module binary.
func (b *Builder) Bytes() []byte {
	if !b.memory && len(b.segments) > 0 {
		panic("wasmtest: data segments need memory")
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// type section, deduplicated
	var types []funcType
	typeIndex := map[string]uint32{}
	funcTypes := make([]uint32, len(b.funcs))
	for i, f := range b.funcs {
		idx, ok := typeIndex[f.typ.key()]
		if !ok {
			idx = uint32(len(types))
			typeIndex[f.typ.key()] = idx
			types = append(types, f.typ)
		}
		funcTypes[i] = idx
	}
	sec := appendULEB(nil, uint64(len(types)))
	for _, t := range types {
		sec = append(sec, 0x60)
		sec = appendVec(sec, t.params)
		sec = appendVec(sec, t.results)
	}
	out = appendSection(out, 1, sec)

	// function section
	sec = appendULEB(nil, uint64(len(funcTypes)))
	for _, idx := range funcTypes {
		sec = appendULEB(sec, uint64(idx))
	}
	out = appendSection(out, 3, sec)

	if b.memory {
		pages := max(b.pages, (b.heapBase()+pageSize-1)/pageSize+1)
		sec = []byte{1, 0x00}
		sec = appendULEB(sec, uint64(pages))
		out = appendSection(out, 5, sec)
	}

	// global 0: mutable i32 heap pointer
	sec = []byte{1, typeI32, 0x01}
	sec = appendSLEB(sec, opI32Const, int64(b.heapBase()))
	sec = append(sec, opEnd)
	out = appendSection(out, 6, sec)

	// export section
	count := len(b.funcs)
	if b.memory {
		count++
	}
	sec = appendULEB(nil, uint64(count))
	if b.memory {
		sec = appendName(sec, "memory")
		sec = append(sec, 0x02, 0x00)
	}
	for i, f := range b.funcs {
		sec = appendName(sec, f.name)
		sec = append(sec, 0x00)
		sec = appendULEB(sec, uint64(i))
	}
	out = appendSection(out, 7, sec)

	// code section
	sec = appendULEB(nil, uint64(len(b.funcs)))
	for _, f := range b.funcs {
		body := []byte{0x00} // no locals
		body = append(body, f.body...)
		body = append(body, opEnd)
		sec = appendULEB(sec, uint64(len(body)))
		sec = append(sec, body...)
	}
	out = appendSection(out, 10, sec)

	if len(b.segments) > 0 {
		sec = appendULEB(nil, uint64(len(b.segments)))
		for _, s := range b.segments {
			sec = append(sec, 0x00)
			sec = appendSLEB(sec, opI32Const, int64(s.offset))
			sec = append(sec, opEnd)
			sec = appendVec(sec, s.data)
		}
		out = appendSection(out, 11, sec)
	}

	return out
}

// WriteFile renders the module into dir/name and returns the path.
func (b *Builder) WriteFile(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("wasmtest: write %s: %v", path, err)
	}
	return path
}

func appendSection(out []byte, id byte, contents []byte) []byte {
	out = append(out, id)
	out = appendULEB(out, uint64(len(contents)))
	return append(out, contents...)
}

func appendVec(out, items []byte) []byte {
	out = appendULEB(out, uint64(len(items)))
	return append(out, items...)
}

func appendName(out []byte, name string) []byte {
	return appendVec(out, []byte(name))
}

func appendULEB(out []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, c)
		}
		out = append(out, c|0x80)
	}
}

// appendSLEB writes an opcode followed by its signed LEB128 immediate.
func appendSLEB(out []byte, op byte, v int64) []byte {
	out = append(out, op)
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(out, c)
		}
		out = append(out, c|0x80)
	}
}
