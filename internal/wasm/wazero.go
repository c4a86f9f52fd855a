package wasm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// wazeroEngine runs modules on the pure Go wazero runtime.
type wazeroEngine struct {
	rt    wazero.Runtime
	cache wazero.CompilationCache
	opts  Options
}

func newWazeroEngine(ctx context.Context, opts Options) (Engine, error) {
	// Cancelling the invocation context closes the module, which is how
	// --timeout interrupts a guest stuck in a loop.
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if opts.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(opts.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if opts.CacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(opts.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("open compilation cache %s: %w", opts.CacheDir, err)
		}
		cfg = cfg.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if opts.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("instantiate WASI: %w", err)
		}
	}

	return &wazeroEngine{rt: rt, cache: cache, opts: opts}, nil
}

func (e *wazeroEngine) Name() string { return "wazero" }

func (e *wazeroEngine) Instantiate(ctx context.Context, code []byte) (Instance, error) {
	compiled, err := e.rt.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	// Reactor modules initialise through _initialize; a missing start
	// function is skipped.
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdout(e.opts.Stdout).
		WithStderr(e.opts.Stderr).
		WithStartFunctions("_initialize")

	mod, err := e.rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, fmt.Errorf("instantiate: %w", err)
	}

	funcs := make(map[string]Signature, len(compiled.ExportedFunctions()))
	for name, def := range compiled.ExportedFunctions() {
		funcs[name] = Signature{
			Params:  fromAPITypes(def.ParamTypes()),
			Results: fromAPITypes(def.ResultTypes()),
		}
	}

	return &wazeroInstance{compiled: compiled, mod: mod, funcs: funcs}, nil
}

func (e *wazeroEngine) Close(ctx context.Context) error {
	err := e.rt.Close(ctx)
	if e.cache != nil {
		err = errors.Join(err, e.cache.Close(ctx))
	}
	return err
}

type wazeroInstance struct {
	compiled wazero.CompiledModule
	mod      api.Module
	funcs    map[string]Signature
}

func (i *wazeroInstance) Functions() map[string]Signature { return i.funcs }

func (i *wazeroInstance) HasMemory() bool {
	return i.mod.ExportedMemory("memory") != nil
}

func (i *wazeroInstance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("function %q not exported", name)
	}
	return fn.Call(ctx, args...)
}

func (i *wazeroInstance) Read(offset, size uint32) ([]byte, bool) {
	mem := i.mod.ExportedMemory("memory")
	if mem == nil {
		return nil, false
	}
	view, ok := mem.Read(offset, size)
	if !ok {
		return nil, false
	}
	// view aliases guest memory, which the next call may overwrite
	out := make([]byte, len(view))
	copy(out, view)
	return out, true
}

func (i *wazeroInstance) Write(offset uint32, data []byte) bool {
	mem := i.mod.ExportedMemory("memory")
	if mem == nil {
		return false
	}
	return mem.Write(offset, data)
}

func (i *wazeroInstance) Close(ctx context.Context) error {
	return errors.Join(i.mod.Close(ctx), i.compiled.Close(ctx))
}

func fromAPITypes(ts []api.ValueType) []ValueType {
	out := make([]ValueType, len(ts))
	for i, t := range ts {
		out[i] = ValueType(t)
	}
	return out
}
