// Package wasm loads WebAssembly modules and invokes their operations.
//
// A module talks to the host through its linear memory. It must export:
//
//	memory                       linear memory 0
//	alloc(size i32) -> i32       returns a buffer of at least size bytes
//	dealloc(ptr i32, size i32)   optional, releases a buffer returned by the guest
//
// An operation is any export with the signature
//
//	op(ptr i32, len i32) -> i64
//
// The host allocates the input with alloc, copies the payload in and calls the
// operation. The guest owns the input buffer from then on. The result packs
// the output location as ptr<<32 | len. When bit 31 of len is set the call
// failed and the len&0x7fffffff bytes at ptr hold a UTF-8 message from the
// guest. The host copies the output and hands the buffer back through dealloc
// when the module exports it.
//
// Two engines implement the low-level calls: wazero (pure Go, always
// available) and wasmer (cgo builds only).
package wasm
