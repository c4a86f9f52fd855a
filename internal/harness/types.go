package harness

import (
	"github.com/roach88/wasmpipe/internal/store"
	"github.com/roach88/wasmpipe/internal/value"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expectation matched.
	Pass bool `json:"pass"`

	// Output is the decoded result document. Nil when the run failed.
	Output value.Value `json:"output,omitempty"`

	// ErrorKind, ErrorCode and ErrorMessage describe a failed run.
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Run is the journal record written for the invocation.
	Run store.Run `json:"-"`

	// Errors contains expectation failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Failed reports whether the run itself failed, as opposed to an expectation.
func (r *Result) Failed() bool {
	return r.ErrorCode != ""
}
