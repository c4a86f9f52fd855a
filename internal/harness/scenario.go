package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/wasmpipe/internal/codec"
	"github.com/roach88/wasmpipe/internal/config"
	"github.com/roach88/wasmpipe/internal/pipeline"
	"github.com/roach88/wasmpipe/internal/value"
	"github.com/roach88/wasmpipe/internal/wasm"
)

// DefaultRunID is used when a scenario does not set run_id.
const DefaultRunID = "test-run-default"

// DefaultTimeout bounds an invocation when a scenario does not set timeout.
const DefaultTimeout = 10 * time.Second

// Scenario is one module invocation with its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Module is the path to the WebAssembly module.
	Module string `yaml:"module"`

	// Operation is the export to invoke. Defaults to "run".
	Operation string `yaml:"operation,omitempty"`

	Codec  string `yaml:"codec,omitempty"`
	Engine string `yaml:"engine,omitempty"`
	WASI   bool   `yaml:"wasi,omitempty"`

	// Schema is an optional CUE file checked against input and output.
	Schema string `yaml:"schema,omitempty"`

	// Input is the document, written inline as YAML. Exactly one of Input
	// and InputFile is set.
	Input yaml.Node `yaml:"input,omitempty"`

	// InputFile is a JSON file read as the document.
	InputFile string `yaml:"input_file,omitempty"`

	Expect Expect `yaml:"expect"`

	// RunID is the fixed run identifier. Defaults to DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Dir is the directory relative paths are resolved against.
	Dir string `yaml:"-"`

	input value.Value
}

// Expect states the outcome a scenario requires.
type Expect struct {
	// Output must equal the result document exactly (key order aside).
	Output yaml.Node `yaml:"output,omitempty"`

	// Contains must be a subset of the result document.
	Contains yaml.Node `yaml:"contains,omitempty"`

	// Error is the error kind the run must fail with.
	Error string `yaml:"error,omitempty"`

	// Message must appear in the failure message.
	Message string `yaml:"message,omitempty"`

	output   value.Value
	contains value.Value
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving relative paths against dir.
func ParseScenario(data []byte, dir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.Dir = dir

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and converts the inline documents.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Module == "" {
		return fmt.Errorf("module is required")
	}

	if s.Codec != "" {
		if _, err := codec.Get(s.Codec); err != nil {
			return err
		}
	}
	if s.Engine != "" && !slices.Contains(wasm.Engines(), s.Engine) {
		return fmt.Errorf("unknown engine %q: must be one of %v", s.Engine, wasm.Engines())
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}

	hasInput := !isZero(&s.Input)
	switch {
	case hasInput && s.InputFile != "":
		return fmt.Errorf("input and input_file are mutually exclusive")
	case !hasInput && s.InputFile == "":
		return fmt.Errorf("input or input_file is required")
	case hasInput:
		v, err := nodeValue(&s.Input)
		if err != nil {
			return fmt.Errorf("input: %w", err)
		}
		s.input = v
	}

	return validateExpect(&s.Expect)
}

func validateExpect(e *Expect) error {
	hasOutput := !isZero(&e.Output)
	hasContains := !isZero(&e.Contains)

	if e.Error == "" {
		if !hasOutput && !hasContains {
			return fmt.Errorf("expect: one of output, contains or error is required")
		}
		if e.Message != "" {
			return fmt.Errorf("expect.message requires expect.error")
		}
	} else {
		if hasOutput || hasContains {
			return fmt.Errorf("expect.error cannot be combined with output or contains")
		}
		if !slices.Contains(pipeline.Kinds(), e.Error) {
			return fmt.Errorf("expect.error: unknown kind %q: must be one of %v", e.Error, pipeline.Kinds())
		}
	}

	if hasOutput {
		v, err := nodeValue(&e.Output)
		if err != nil {
			return fmt.Errorf("expect.output: %w", err)
		}
		e.output = v
	}
	if hasContains {
		v, err := nodeValue(&e.Contains)
		if err != nil {
			return fmt.Errorf("expect.contains: %w", err)
		}
		if v.Kind() != value.KindObject {
			return fmt.Errorf("expect.contains must be a mapping, got %s", v.Kind())
		}
		e.contains = v
	}
	return nil
}

func (s *Scenario) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || s.Dir == "" {
		return path
	}
	return filepath.Join(s.Dir, path)
}

func (s *Scenario) operation() string {
	if s.Operation == "" {
		return config.DefaultOperation
	}
	return s.Operation
}

func (s *Scenario) codecName() string {
	if s.Codec == "" {
		return codec.Default
	}
	return s.Codec
}

func (s *Scenario) engineName() string {
	if s.Engine == "" {
		return wasm.DefaultEngine
	}
	return s.Engine
}

func (s *Scenario) runID() string {
	if s.RunID == "" {
		return DefaultRunID
	}
	return s.RunID
}

func (s *Scenario) timeout() time.Duration {
	if s.Timeout == 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func isZero(n *yaml.Node) bool {
	return n.Kind == 0
}

// nodeValue converts a YAML node into a Value, keeping mapping order.
func nodeValue(n *yaml.Node) (value.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return value.Null{}, nil
		}
		return nodeValue(n.Content[0])
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.SequenceNode:
		arr := make(value.Array, len(n.Content))
		for i, elem := range n.Content {
			v, err := nodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	case yaml.MappingNode:
		obj := value.NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, elem := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			if k.ShortTag() == "!!merge" {
				return nil, fmt.Errorf("line %d: merge keys are not supported", k.Line)
			}
			v, err := nodeValue(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k.Value, err)
			}
			obj.Set(k.Value, v)
		}
		return obj, nil
	case yaml.ScalarNode:
		return scalarValue(n)
	}
	return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
}

func scalarValue(n *yaml.Node) (value.Value, error) {
	switch tag := n.ShortTag(); tag {
	case "!!null":
		return value.Null{}, nil
	case "!!str":
		return value.String(n.Value), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return value.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return value.Int(i), nil
		}
		// above int64, same rule as JSON input
		fallthrough
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		v, err := value.FromAny(f)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported tag %s", n.Line, tag)
	}
}
