//go:build cgo

package wasm

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/wasmerio/wasmer-go/wasmer"
)

func init() {
	engines["wasmer"] = newWasmerEngine
}

// wasmerEngine runs modules on wasmer through its C API.
//
// Compared to wazero it has no compilation cache and no memory page cap, and
// a running call cannot be interrupted: the context is only checked before
// each call.
type wasmerEngine struct {
	engine *wasmer.Engine
	opts   Options
}

func newWasmerEngine(_ context.Context, opts Options) (Engine, error) {
	return &wasmerEngine{engine: wasmer.NewEngine(), opts: opts}, nil
}

func (e *wasmerEngine) Name() string { return "wasmer" }

func (e *wasmerEngine) Instantiate(ctx context.Context, code []byte) (Instance, error) {
	store := wasmer.NewStore(e.engine)
	module, err := wasmer.NewModule(store, code)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	imports := wasmer.NewImportObject()
	var wasi *wasmer.WasiEnvironment
	if e.opts.WASI && wasmer.GetWasiVersion(module) != wasmer.WASI_VERSION_INVALID {
		// Captured output is forwarded after every call.
		wasi, err = wasmer.NewWasiStateBuilder("wasmpipe").
			CaptureStdout().
			CaptureStderr().
			Finalize()
		if err != nil {
			return nil, fmt.Errorf("build WASI environment: %w", err)
		}
		imports, err = wasi.GenerateImportObject(store, module)
		if err != nil {
			return nil, fmt.Errorf("generate WASI imports: %w", err)
		}
	}

	instance, err := wasmer.NewInstance(module, imports)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}

	inst := &wasmerInstance{
		instance: instance,
		wasi:     wasi,
		stdout:   e.opts.Stdout,
		stderr:   e.opts.Stderr,
		funcs:    make(map[string]Signature),
	}
	for _, export := range module.Exports() {
		if export.Type().Kind() != wasmer.FUNCTION {
			continue
		}
		ft := export.Type().IntoFunctionType()
		inst.funcs[export.Name()] = Signature{
			Params:  fromWasmerTypes(ft.Params()),
			Results: fromWasmerTypes(ft.Results()),
		}
	}
	if mem, err := instance.Exports.GetMemory("memory"); err == nil {
		inst.memory = mem
	}

	if _, ok := inst.funcs["_initialize"]; ok {
		if _, err := inst.Call(ctx, "_initialize"); err != nil {
			return nil, fmt.Errorf("_initialize: %w", err)
		}
	}
	return inst, nil
}

func (e *wasmerEngine) Close(context.Context) error { return nil }

type wasmerInstance struct {
	instance *wasmer.Instance
	memory   *wasmer.Memory
	wasi     *wasmer.WasiEnvironment
	stdout   io.Writer
	stderr   io.Writer
	funcs    map[string]Signature
}

func (i *wasmerInstance) Functions() map[string]Signature { return i.funcs }

func (i *wasmerInstance) HasMemory() bool { return i.memory != nil }

func (i *wasmerInstance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, ok := i.funcs[name]
	if !ok {
		return nil, fmt.Errorf("function %q not exported", name)
	}
	if len(args) != len(sig.Params) {
		return nil, fmt.Errorf("function %q takes %d arguments, got %d", name, len(sig.Params), len(args))
	}
	fn, err := i.instance.Exports.GetFunction(name)
	if err != nil {
		return nil, err
	}

	in := make([]any, len(args))
	for n, arg := range args {
		in[n] = toWasmerArg(sig.Params[n], arg)
	}
	out, err := fn(in...)
	i.flushOutput()
	if err != nil {
		return nil, err
	}
	return fromWasmerResults(sig.Results, out)
}

// flushOutput forwards captured WASI output to the configured writers.
func (i *wasmerInstance) flushOutput() {
	if i.wasi == nil {
		return
	}
	if b := i.wasi.ReadStdout(); len(b) > 0 {
		_, _ = i.stdout.Write(b)
	}
	if b := i.wasi.ReadStderr(); len(b) > 0 {
		_, _ = i.stderr.Write(b)
	}
}

func (i *wasmerInstance) Read(offset, size uint32) ([]byte, bool) {
	if i.memory == nil {
		return nil, false
	}
	data := i.memory.Data()
	end := uint64(offset) + uint64(size)
	if end > uint64(len(data)) {
		return nil, false
	}
	out := make([]byte, size)
	copy(out, data[offset:end])
	return out, true
}

func (i *wasmerInstance) Write(offset uint32, b []byte) bool {
	if i.memory == nil {
		return false
	}
	data := i.memory.Data()
	end := uint64(offset) + uint64(len(b))
	if end > uint64(len(data)) {
		return false
	}
	copy(data[offset:end], b)
	return true
}

// Close drops the references; wasmer-go frees native resources through
// finalizers.
func (i *wasmerInstance) Close(context.Context) error {
	i.instance = nil
	i.memory = nil
	return nil
}

func fromWasmerTypes(ts []*wasmer.ValueType) []ValueType {
	out := make([]ValueType, len(ts))
	for n, t := range ts {
		switch t.Kind() {
		case wasmer.I32:
			out[n] = I32
		case wasmer.I64:
			out[n] = I64
		case wasmer.F32:
			out[n] = F32
		case wasmer.F64:
			out[n] = F64
		}
	}
	return out
}

func toWasmerArg(t ValueType, arg uint64) any {
	switch t {
	case I32:
		return int32(uint32(arg))
	case F32:
		return math.Float32frombits(uint32(arg))
	case F64:
		return math.Float64frombits(arg)
	default:
		return int64(arg)
	}
}

// fromWasmerResults maps wasmer's result shape (nil, a single value, or a
// slice for multi-value returns) onto raw words.
func fromWasmerResults(types []ValueType, out any) ([]uint64, error) {
	var vals []any
	switch v := out.(type) {
	case nil:
	case []any:
		vals = v
	default:
		vals = []any{v}
	}
	if len(vals) != len(types) {
		return nil, fmt.Errorf("expected %d results, got %d", len(types), len(vals))
	}

	words := make([]uint64, len(vals))
	for n, v := range vals {
		switch x := v.(type) {
		case int32:
			words[n] = uint64(uint32(x))
		case int64:
			words[n] = uint64(x)
		case float32:
			words[n] = uint64(math.Float32bits(x))
		case float64:
			words[n] = math.Float64bits(x)
		default:
			return nil, fmt.Errorf("unexpected result type %T", v)
		}
	}
	return words, nil
}
