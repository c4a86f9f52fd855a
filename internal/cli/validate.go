package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/wasmpipe/internal/pipeline"
	"github.com/roach88/wasmpipe/internal/schema"
	"github.com/roach88/wasmpipe/internal/value"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	invokeFlags
	Target string // "input" or "output"
}

// ValidationResult is the JSON payload of the validate command.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Target string   `json:"target"`
	Schema string   `json:"schema"`
	Errors []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <input>",
		Short: "Check a JSON document against a CUE schema",
		Long: `Check a JSON document against the #Input (or #Output) definition of a
CUE schema, without running any module.

The schema defaults to invoke.schema from wasmpipe.toml.

Exit codes:
  0 - Document is valid
  1 - Document is invalid JSON or violates the schema
  2 - Command error (missing schema, unreadable input, etc.)

Examples:
  wasmpipe validate doc.json --schema schema.cue
  wasmpipe validate result.json --schema schema.cue --target output
  cat doc.json | wasmpipe validate - --schema schema.cue --format json`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema defining #Input and #Output")
	cmd.Flags().StringVar(&opts.Target, "target", "input", "definition to check against (input|output)")
	return cmd
}

func runValidate(opts *ValidateOptions, inputPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Target != "input" && opts.Target != "output" {
		msg := fmt.Sprintf("invalid target %q: must be input or output", opts.Target)
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, msg, nil, nil)
	}

	s := resolveSettings(cmd, opts.effectiveConfig(), &opts.invokeFlags)
	if s.Schema == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "no schema: pass --schema or set invoke.schema", nil, nil)
	}
	sch, err := schema.Load(s.Schema)
	if err != nil {
		return formatter.Fail(ExitCommandError, codeForPath(err), err.Error(), nil, err)
	}

	data, err := readInput(cmd, inputPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, codeForPath(err), "failed to read input", nil, err)
	}
	doc, err := value.Decode(data)
	if err != nil {
		return formatter.Fail(ExitFailure, pipeline.CodeInvalidJSON, err.Error(), nil, err)
	}

	if opts.Target == "output" {
		err = sch.ValidateOutput(doc)
	} else {
		err = sch.ValidateInput(doc)
	}

	result := ValidationResult{Valid: err == nil, Target: opts.Target, Schema: s.Schema}
	if err == nil {
		return outputValidateSuccess(formatter, result)
	}

	var violation *schema.ViolationError
	if !errors.As(err, &violation) {
		return formatter.Fail(ExitFailure, pipeline.CodeSchema, err.Error(), nil, err)
	}
	result.Errors = violation.Messages
	return outputValidationErrors(formatter, result)
}

// outputValidateSuccess outputs a successful validation.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %s matches %s\n", result.Target, result.Schema)
	return nil
}

// outputValidationErrors lists every violated constraint.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	msg := fmt.Sprintf("validation failed with %d error(s)", len(result.Errors))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    pipeline.CodeSchema,
				Message: result.Errors[0],
			},
		}
		if err := encodeResponse(formatter.Writer, response); err != nil {
			return err
		}
		return &ExitError{Code: ExitFailure, Message: msg, Reported: true}
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range result.Errors {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", pipeline.CodeSchema, e)
	}

	return &ExitError{Code: ExitFailure, Message: msg, Reported: true}
}
