package wasm

import (
	"errors"
	"fmt"
)

// ErrOperationNotFound matches any *OperationError via errors.Is.
var ErrOperationNotFound = errors.New("operation not found")

// LoadError reports a module that could not be read, compiled, instantiated
// or that does not follow the guest ABI. A missing file unwraps to
// fs.ErrNotExist.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load module %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// OperationError reports an operation that the module does not export, or
// exports with the wrong signature.
type OperationError struct {
	Operation string
	Reason    string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %q: %s", e.Operation, e.Reason)
}

func (e *OperationError) Unwrap() error { return ErrOperationNotFound }

// InvocationError reports a failed call: a trap, a guest exit, a cancelled
// context or a result outside linear memory.
type InvocationError struct {
	Operation string
	Err       error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %q: %v", e.Operation, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// GuestError is a failure the guest reported through the result word,
// typically a payload it could not parse.
type GuestError struct {
	Operation string
	Message   string
}

func (e *GuestError) Error() string {
	return fmt.Sprintf("operation %q failed: %s", e.Operation, e.Message)
}
