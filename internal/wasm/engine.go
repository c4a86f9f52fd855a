package wasm

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// DefaultEngine is used when no engine is configured.
const DefaultEngine = "wazero"

// ValueType is a WebAssembly number type.
type ValueType byte

// Encodings from the binary format.
const (
	I32 ValueType = 0x7f
	I64 ValueType = 0x7e
	F32 ValueType = 0x7d
	F64 ValueType = 0x7c
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return fmt.Sprintf("0x%02x", byte(t))
}

// Signature describes an exported function.
type Signature struct {
	Params  []ValueType
	Results []ValueType
}

// Is reports whether s has exactly the given parameter and result types.
func (s Signature) Is(params, results []ValueType) bool {
	return equalTypes(s.Params, params) && equalTypes(s.Results, results)
}

func (s Signature) String() string {
	return fmt.Sprintf("(%s) -> (%s)", joinTypes(s.Params), joinTypes(s.Results))
}

func equalTypes(a, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinTypes(ts []ValueType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// Options configure an engine.
type Options struct {
	// WASI provides wasi_snapshot_preview1 imports to modules.
	WASI bool

	// MemoryLimitPages caps linear memory in 64KiB pages. Zero means the
	// engine default.
	MemoryLimitPages uint32

	// CacheDir persists compiled modules between runs when the engine
	// supports it.
	CacheDir string

	// Stdout and Stderr receive guest output. Both default to os.Stderr so
	// that guest printing never mixes with the document on stdout.
	Stdout io.Writer
	Stderr io.Writer
}

func (o Options) withDefaults() Options {
	if o.Stdout == nil {
		o.Stdout = os.Stderr
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

// Engine compiles and instantiates modules.
type Engine interface {
	Name() string
	Instantiate(ctx context.Context, code []byte) (Instance, error)
	Close(ctx context.Context) error
}

// Instance is one instantiated module.
type Instance interface {
	// Functions returns the signatures of all exported functions.
	Functions() map[string]Signature

	// HasMemory reports whether the module exports "memory".
	HasMemory() bool

	Call(ctx context.Context, name string, args ...uint64) ([]uint64, error)

	// Read copies size bytes at offset out of the exported memory.
	Read(offset, size uint32) ([]byte, bool)

	// Write copies data into the exported memory at offset.
	Write(offset uint32, data []byte) bool

	Close(ctx context.Context) error
}

type engineFactory func(ctx context.Context, opts Options) (Engine, error)

var engines = map[string]engineFactory{
	"wazero": newWazeroEngine,
}

// NewEngine creates the engine registered under name.
func NewEngine(ctx context.Context, name string, opts Options) (Engine, error) {
	factory, ok := engines[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q: must be one of %v", name, Engines())
	}
	return factory(ctx, opts.withDefaults())
}

// Engines lists the engines available in this build.
func Engines() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
