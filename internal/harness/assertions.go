package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/wasmpipe/internal/value"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // output, contains, error or message
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// checkExpect evaluates the scenario expectation against a result and returns
// one message per failure.
func checkExpect(e *Expect, r *Result) []string {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if e.Error != "" {
		add(assertError(e, r))
		return errs
	}

	if r.Failed() {
		want := "success"
		if e.output != nil {
			want = show(e.output)
		}
		add(&AssertionError{
			Type:     "output",
			Expected: want,
			Actual:   fmt.Sprintf("%s error: %s", r.ErrorKind, r.ErrorMessage),
		})
		return errs
	}

	if e.output != nil && !value.Equal(e.output, r.Output) {
		add(&AssertionError{Type: "output", Expected: show(e.output), Actual: show(r.Output)})
	}
	if e.contains != nil && !containsValue(r.Output, e.contains) {
		add(&AssertionError{Type: "contains", Expected: show(e.contains), Actual: show(r.Output)})
	}
	return errs
}

func assertError(e *Expect, r *Result) error {
	if !r.Failed() {
		return &AssertionError{
			Type:     "error",
			Expected: e.Error + " error",
			Actual:   "succeeded with " + show(r.Output),
		}
	}
	if r.ErrorKind != e.Error {
		return &AssertionError{
			Type:     "error",
			Expected: e.Error + " error",
			Actual:   fmt.Sprintf("%s error: %s", r.ErrorKind, r.ErrorMessage),
		}
	}
	if e.Message != "" && !strings.Contains(r.ErrorMessage, e.Message) {
		return &AssertionError{
			Type:     "message",
			Expected: fmt.Sprintf("message containing %q", e.Message),
			Actual:   r.ErrorMessage,
		}
	}
	return nil
}

// containsValue reports whether actual has every key of expected, recursing
// into nested objects. Anything other than an object must be equal.
func containsValue(actual, expected value.Value) bool {
	want, ok := expected.(*value.Object)
	if !ok {
		return value.Equal(actual, expected)
	}
	got, ok := actual.(*value.Object)
	if !ok {
		return false
	}
	for _, m := range want.Members() {
		v, ok := got.Get(m.Key)
		if !ok || !containsValue(v, m.Value) {
			return false
		}
	}
	return true
}

func show(v value.Value) string {
	if v == nil {
		return "<none>"
	}
	data, err := value.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}
