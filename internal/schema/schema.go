// Package schema checks documents against a CUE contract.
//
// A schema file may define #Input and #Output. When it defines neither, the
// file's top-level value constrains the input and the output is unchecked.
//
//	#Input: {
//		name:  string
//		count: int & >0
//	}
//	#Output: [...string]
package schema

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/wasmpipe/internal/value"
)

// Schema is a compiled CUE contract. It is not safe for concurrent use.
type Schema struct {
	path   string
	ctx    *cue.Context
	input  cue.Value
	output cue.Value
	hasIn  bool
	hasOut bool
}

// Load compiles the CUE file at path.
func Load(path string) (*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Compile(path, src)
}

// Compile builds a schema from CUE source. name is used in positions.
func Compile(name string, src []byte) (*Schema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(src, cue.Filename(name))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, formatCUEError(err))
	}

	s := &Schema{path: name, ctx: ctx}
	if in := root.LookupPath(cue.ParsePath("#Input")); in.Exists() {
		s.input, s.hasIn = in, true
	}
	if out := root.LookupPath(cue.ParsePath("#Output")); out.Exists() {
		s.output, s.hasOut = out, true
	}
	if !s.hasIn && !s.hasOut {
		s.input, s.hasIn = root, true
	}
	return s, nil
}

// Path returns the file the schema was loaded from.
func (s *Schema) Path() string { return s.path }

// ValidateInput checks the document passed to the module.
func (s *Schema) ValidateInput(v value.Value) error {
	if !s.hasIn {
		return nil
	}
	return s.validate("input", s.input, v)
}

// ValidateOutput checks the document the module returned.
func (s *Schema) ValidateOutput(v value.Value) error {
	if !s.hasOut {
		return nil
	}
	return s.validate("output", s.output, v)
}

func (s *Schema) validate(target string, constraint cue.Value, v value.Value) error {
	// JSON is CUE, and Marshal keeps 2.0 distinct from 2 so that int
	// constraints see the real kind.
	data, err := value.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", target, err)
	}
	doc := s.ctx.CompileBytes(data, cue.Filename(target+".json"))
	if err := doc.Err(); err != nil {
		return fmt.Errorf("load %s into CUE: %w", target, err)
	}

	if err := constraint.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		violation := &ViolationError{Target: target, Schema: s.path}
		for _, e := range errors.Errors(err) {
			violation.Messages = append(violation.Messages, e.Error())
		}
		if len(violation.Messages) == 0 {
			violation.Messages = []string{err.Error()}
		}
		return violation
	}
	return nil
}

// ViolationError lists every constraint a document failed.
type ViolationError struct {
	Target   string // "input" or "output"
	Schema   string
	Messages []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s does not match schema %s: %s", e.Target, e.Schema, strings.Join(e.Messages, "; "))
}

// formatCUEError prefixes the first error with its source position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		pos := positions[0]
		return fmt.Errorf("%d:%d: %w", pos.Line(), pos.Column(), first)
	}
	return first
}
