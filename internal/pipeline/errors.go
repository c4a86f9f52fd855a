package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/roach88/wasmpipe/internal/schema"
	"github.com/roach88/wasmpipe/internal/wasm"
)

// Stage names a step of the pipeline.
type Stage string

const (
	StageRead           Stage = "read"
	StageDecode         Stage = "decode"
	StageValidate       Stage = "validate"
	StageEncode         Stage = "encode"
	StageLoad           Stage = "load"
	StageInvoke         Stage = "invoke"
	StageDecodeResult   Stage = "decode-result"
	StageValidateResult Stage = "validate-result"
)

// Error codes reported for pipeline failures.
const (
	CodeGeneric           = "E001" // Generic/unknown error
	CodeNotFound          = "E005" // Path not found
	CodeInvalidJSON       = "E201" // Input is not valid JSON
	CodeSchema            = "E202" // Document violates the schema
	CodeLoad              = "E301" // Module could not be loaded
	CodeOperationNotFound = "E302" // Operation not exported
	CodeInvocation        = "E303" // Trap, timeout or bad result
	CodeGuest             = "E304" // Guest reported a failure
	CodeEncode            = "E401" // Binary encode failed
	CodeDecode            = "E402" // Binary decode failed
)

// Error is a pipeline failure tagged with the stage that produced it.
type Error struct {
	Stage Stage
	Code  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind returns the short error kind used in scenario files.
func (e *Error) Kind() string {
	return KindForCode(e.Code)
}

var kinds = map[string]string{
	CodeNotFound:          "not_found",
	CodeInvalidJSON:       "invalid_json",
	CodeSchema:            "schema",
	CodeLoad:              "load",
	CodeOperationNotFound: "operation_not_found",
	CodeInvocation:        "invocation",
	CodeGuest:             "guest",
	CodeEncode:            "encode",
	CodeDecode:            "decode",
}

// KindForCode maps an error code to its kind, "error" if unknown.
func KindForCode(code string) string {
	if kind, ok := kinds[code]; ok {
		return kind
	}
	return "error"
}

// Kinds lists every kind KindForCode can return for a known code.
func Kinds() []string {
	out := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

func stageError(stage Stage, err error) *Error {
	return &Error{Stage: stage, Code: classify(stage, err), Err: err}
}

func classify(stage Stage, err error) string {
	var violation *schema.ViolationError
	var opErr *wasm.OperationError
	var guestErr *wasm.GuestError
	var loadErr *wasm.LoadError

	switch {
	case errors.As(err, &violation):
		return CodeSchema
	case errors.As(err, &opErr):
		return CodeOperationNotFound
	case errors.As(err, &guestErr):
		return CodeGuest
	case errors.As(err, &loadErr):
		return CodeLoad
	}

	switch stage {
	case StageRead:
		if errors.Is(err, fs.ErrNotExist) {
			return CodeNotFound
		}
	case StageDecode:
		return CodeInvalidJSON
	case StageEncode:
		return CodeEncode
	case StageLoad:
		return CodeLoad
	case StageInvoke:
		return CodeInvocation
	case StageDecodeResult:
		return CodeDecode
	}
	return CodeGeneric
}
