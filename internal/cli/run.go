package cli

import (
	"errors"
	"io"
	"log/slog"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/roach88/wasmpipe/internal/codec"
	"github.com/roach88/wasmpipe/internal/pipeline"
	"github.com/roach88/wasmpipe/internal/schema"
	"github.com/roach88/wasmpipe/internal/store"
	"github.com/roach88/wasmpipe/internal/value"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	invokeFlags
	Query string

	// IDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs pipeline.IDGenerator
}

// RunData is the JSON payload of a successful run.
type RunData struct {
	RunID        string      `json:"run_id"`
	Seq          int64       `json:"seq,omitempty"`
	ModuleDigest string      `json:"module_digest"`
	Output       value.Value `json:"output"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <module> <input>",
		Short: "Invoke a module operation on a JSON document",
		Long: `Invoke an operation exported by a WebAssembly module on a JSON document.

The input is read from a file, or from stdin when <input> is "-". It is
decoded, optionally checked against a CUE schema, encoded with the
selected codec and passed to the operation. The result is decoded,
checked, optionally filtered with a jq query, and printed.

Exit codes:
  0 - Success
  1 - Pipeline failure (invalid JSON, load error, guest error, etc.)
  2 - Command error (unreadable input, bad flags or config)

Examples:
  wasmpipe run ./upper.wasm ./doc.json
  cat doc.json | wasmpipe run ./upper.wasm - --op transform
  wasmpipe run ./upper.wasm ./doc.json --codec protobuf --output pretty
  wasmpipe run ./upper.wasm ./doc.json --query '.items | length'
  wasmpipe run ./upper.wasm ./doc.json --journal ./runs.db`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModule(opts, args[0], args[1], cmd)
		},
	}

	opts.addEngine(cmd)
	opts.addCodec(cmd)
	opts.addJournal(cmd, "record the run in this SQLite journal")
	cmd.Flags().StringVar(&opts.Operation, "op", "", `operation to invoke (default "run")`)
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema for the input (#Input) and output (#Output)")
	cmd.Flags().StringVar(&opts.Query, "query", "", "jq filter applied to the output")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output mode (compact|pretty|canonical)")
	cmd.Flags().BoolVar(&opts.Color, "color", false, "colorize the output")

	return cmd
}

func runModule(opts *RunOptions, modulePath, inputPath string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := opts.formatter(cmd)

	s, err := commandSettings(cmd, opts.RootOptions, &opts.invokeFlags)
	if err != nil {
		return err
	}

	var query *gojq.Code
	if opts.Query != "" {
		if query, err = compileQuery(opts.Query); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeQuery, err.Error(), nil, err)
		}
	}

	eng, err := s.newEngine(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to create engine", nil, err)
	}
	defer eng.Close(ctx)

	cdc, err := codec.Get(s.Codec)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil, err)
	}

	var sch *schema.Schema
	if s.Schema != "" {
		if sch, err = schema.Load(s.Schema); err != nil {
			return formatter.Fail(ExitCommandError, codeForPath(err), err.Error(), nil, err)
		}
	}

	p := &pipeline.Pipeline{
		Engine:  eng,
		Codec:   cdc,
		Schema:  sch,
		IDs:     opts.IDs,
		Logger:  slog.Default(),
		Timeout: s.Timeout,
	}
	if s.Journal != "" {
		st, err := store.Open(s.Journal)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", nil, err)
		}
		defer st.Close()
		p.Journal = st
	}

	req := pipeline.Request{
		ModulePath: modulePath,
		Operation:  s.Operation,
		InputPath:  inputPath,
	}
	if inputPath == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read stdin", nil, err)
		}
		req.Input = data
	}

	res, err := p.Run(ctx, req)
	if err != nil {
		return reportPipelineError(formatter, err)
	}
	formatter.VerboseLog("run %s: %d bytes in, %d bytes out", res.RunID, res.InputBytes, res.OutputBytes)

	docs := []value.Value{res.Output}
	if query != nil {
		if docs, err = runQuery(ctx, query, res.Output); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeQuery, "query failed", nil, err)
		}
	}

	if opts.Format == "json" {
		data := RunData{
			RunID:        res.RunID,
			Seq:          res.Seq,
			ModuleDigest: res.ModuleDigest,
			Output:       collapse(docs),
		}
		return formatter.Success(data)
	}
	if err := writeDocuments(cmd.OutOrStdout(), docs, s.Output, s.Color); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeWriteFailed, "failed to write output", nil, err)
	}
	return nil
}

// collapse returns the single document, or all of them as an array.
func collapse(docs []value.Value) value.Value {
	if len(docs) == 1 {
		return docs[0]
	}
	return value.NewArray(docs...)
}

// reportPipelineError prints a pipeline failure with its code and stage.
// Unreadable input is a command error; every later stage is a failure.
func reportPipelineError(formatter *OutputFormatter, err error) error {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil, err)
	}

	exitCode := ExitFailure
	if pe.Stage == pipeline.StageRead {
		exitCode = ExitCommandError
	}
	details := map[string]string{
		"stage": string(pe.Stage),
		"kind":  pe.Kind(),
	}
	return formatter.Fail(exitCode, pe.Code, pe.Error(), details, pe)
}
