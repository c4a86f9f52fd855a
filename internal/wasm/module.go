package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
)

// guestErrorFlag marks a failure in the length half of a result word.
const guestErrorFlag = 0x80000000

var (
	allocParams   = []ValueType{I32}
	allocResults  = []ValueType{I32}
	deallocParams = []ValueType{I32, I32}
	opParams      = []ValueType{I32, I32}
	opResults     = []ValueType{I64}
)

// Module is an instantiated guest module. It is owned by a single caller and
// is not safe for concurrent use.
type Module struct {
	path       string
	digest     string
	instance   Instance
	hasDealloc bool
}

// Open reads, compiles and instantiates the module at path.
//
// Every failure, including a missing file or a module that does not export
// memory and alloc, is a *LoadError.
func Open(ctx context.Context, engine Engine, path string) (*Module, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	sum := sha256.Sum256(code)

	inst, err := engine.Instantiate(ctx, code)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	m := &Module{
		path:     path,
		digest:   hex.EncodeToString(sum[:]),
		instance: inst,
	}
	if err := m.checkABI(); err != nil {
		_ = inst.Close(ctx)
		return nil, &LoadError{Path: path, Err: err}
	}
	return m, nil
}

func (m *Module) checkABI() error {
	if !m.instance.HasMemory() {
		return errors.New(`module does not export "memory"`)
	}

	funcs := m.instance.Functions()
	alloc, ok := funcs["alloc"]
	if !ok {
		return errors.New(`module does not export "alloc"`)
	}
	if !alloc.Is(allocParams, allocResults) {
		return fmt.Errorf(`"alloc" has signature %s, want (i32) -> (i32)`, alloc)
	}

	if dealloc, ok := funcs["dealloc"]; ok {
		if !dealloc.Is(deallocParams, nil) {
			return fmt.Errorf(`"dealloc" has signature %s, want (i32, i32) -> ()`, dealloc)
		}
		m.hasDealloc = true
	}
	return nil
}

// Path returns the file the module was loaded from.
func (m *Module) Path() string { return m.path }

// Digest returns the hex SHA-256 of the module binary.
func (m *Module) Digest() string { return m.digest }

// Operations lists the exports callable with Invoke, sorted by name.
func (m *Module) Operations() []string {
	var ops []string
	for name, sig := range m.instance.Functions() {
		if sig.Is(opParams, opResults) {
			ops = append(ops, name)
		}
	}
	sort.Strings(ops)
	return ops
}

// Invoke calls operation op with payload and returns the bytes it produced.
//
// Errors:
//   - *OperationError: op is not exported or has the wrong signature
//   - *GuestError: the guest flagged the call as failed
//   - *InvocationError: anything else that went wrong during the call
func (m *Module) Invoke(ctx context.Context, op string, payload []byte) ([]byte, error) {
	sig, ok := m.instance.Functions()[op]
	if !ok {
		return nil, &OperationError{Operation: op, Reason: "not exported by the module"}
	}
	if !sig.Is(opParams, opResults) {
		return nil, &OperationError{
			Operation: op,
			Reason:    fmt.Sprintf("has signature %s, want (i32, i32) -> (i64)", sig),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &InvocationError{Operation: op, Err: err}
	}
	if uint64(len(payload)) >= guestErrorFlag {
		return nil, &InvocationError{Operation: op, Err: fmt.Errorf("payload of %d bytes is too large", len(payload))}
	}

	ptr, err := m.alloc(ctx, uint32(len(payload)))
	if err != nil {
		return nil, &InvocationError{Operation: op, Err: err}
	}
	if !m.instance.Write(ptr, payload) {
		return nil, &InvocationError{
			Operation: op,
			Err:       fmt.Errorf("alloc returned buffer %d+%d outside linear memory", ptr, len(payload)),
		}
	}

	res, err := m.instance.Call(ctx, op, uint64(ptr), uint64(len(payload)))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, &InvocationError{Operation: op, Err: err}
	}
	if len(res) != 1 {
		return nil, &InvocationError{Operation: op, Err: fmt.Errorf("expected 1 result, got %d", len(res))}
	}

	outPtr := uint32(res[0] >> 32)
	outLen := uint32(res[0])
	failed := outLen&guestErrorFlag != 0
	outLen &^= guestErrorFlag

	out, ok := m.instance.Read(outPtr, outLen)
	if !ok {
		return nil, &InvocationError{
			Operation: op,
			Err:       fmt.Errorf("result %d+%d outside linear memory", outPtr, outLen),
		}
	}

	if m.hasDealloc {
		if _, err := m.instance.Call(ctx, "dealloc", uint64(outPtr), uint64(outLen)); err != nil {
			return nil, &InvocationError{Operation: op, Err: fmt.Errorf("dealloc: %w", err)}
		}
	}

	if failed {
		return nil, &GuestError{Operation: op, Message: string(out)}
	}
	return out, nil
}

func (m *Module) alloc(ctx context.Context, size uint32) (uint32, error) {
	res, err := m.instance.Call(ctx, "alloc", uint64(size))
	if err != nil {
		return 0, fmt.Errorf("alloc(%d): %w", size, err)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("alloc(%d): expected 1 result, got %d", size, len(res))
	}
	return uint32(res[0]), nil
}

// Close releases the instance.
func (m *Module) Close(ctx context.Context) error {
	return m.instance.Close(ctx)
}
