package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/wasmpipe/internal/pipeline"
	"github.com/roach88/wasmpipe/internal/wasm"
)

// ExportsOptions holds flags for the exports command.
type ExportsOptions struct {
	*RootOptions
	invokeFlags
}

// ExportsData lists the operations of a module.
type ExportsData struct {
	Module     string   `json:"module"`
	Digest     string   `json:"digest"`
	Operations []string `json:"operations"`
}

// NewExportsCommand creates the exports command.
func NewExportsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exports <module>",
		Short: "List the operations a module exports",
		Long: `Load a module, check that it follows the guest ABI, and list the
exports with the operation signature (i32, i32) -> (i64).

Examples:
  wasmpipe exports ./upper.wasm
  wasmpipe exports ./upper.wasm --format json`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExports(opts, args[0], cmd)
		},
	}

	opts.addEngine(cmd)
	return cmd
}

func runExports(opts *ExportsOptions, modulePath string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := opts.formatter(cmd)

	s, err := commandSettings(cmd, opts.RootOptions, &opts.invokeFlags)
	if err != nil {
		return err
	}

	eng, err := s.newEngine(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to create engine", nil, err)
	}
	defer eng.Close(ctx)

	mod, err := wasm.Open(ctx, eng, modulePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("module not found: %s", modulePath), nil, err)
		}
		return formatter.Fail(ExitFailure, pipeline.CodeLoad, err.Error(), nil, err)
	}
	defer mod.Close(ctx)

	data := ExportsData{
		Module:     mod.Path(),
		Digest:     mod.Digest(),
		Operations: mod.Operations(),
	}

	if opts.Format == "json" {
		return formatter.Success(data)
	}

	w := cmd.OutOrStdout()
	if len(data.Operations) == 0 {
		fmt.Fprintln(w, "No operations exported.")
		return nil
	}
	for _, op := range data.Operations {
		fmt.Fprintln(w, op)
	}
	formatter.VerboseLog("module %s sha256:%s", data.Module, data.Digest)
	return nil
}
