package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/wasmpipe/internal/pipeline"
	"github.com/roach88/wasmpipe/internal/store"
	"github.com/roach88/wasmpipe/internal/wasm"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	invokeFlags
	RunID string // replay a single run (optional)
}

// ReplayResult holds the result of a replay operation.
type ReplayResult struct {
	Runs          []pipeline.ReplayOutcome `json:"runs"`
	Total         int                      `json:"total"`
	Matched       int                      `json:"matched"`
	Mismatched    int                      `json:"mismatched"`
	Skipped       int                      `json:"skipped"`
	Deterministic bool                     `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run journaled invocations and verify their outputs",
		Long: `Re-run invocations recorded in a journal and verify that each produces
the same output digest (or fails with the same error code) as before.

Each run is replayed with the codec and operation it was recorded with,
on the engine it was recorded with unless --engine is given. Replays are
not written back to the journal.

Exit codes:
  0 - Every replayed run matched
  1 - At least one run produced a different outcome
  2 - Command error (journal not found, unknown run, etc.)

Examples:
  wasmpipe replay --journal ./runs.db
  wasmpipe replay --journal ./runs.db --run 0192b7e4-...
  wasmpipe replay --journal ./runs.db --engine wasmer --format json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	opts.addEngine(cmd)
	opts.addJournal(cmd, "SQLite journal to replay")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay only the run with this ID")
	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := opts.formatter(cmd)

	s, err := commandSettings(cmd, opts.RootOptions, &opts.invokeFlags)
	if err != nil {
		return err
	}

	st, err := openJournal(cmd, opts.RootOptions, &opts.invokeFlags)
	if err != nil {
		return err
	}
	defer st.Close()

	var runs []store.Run
	if opts.RunID != "" {
		run, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, sql.ErrNoRows) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil, err)
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to read journal", nil, err)
		}
		runs = []store.Run{run}
	} else {
		if runs, err = st.ListRuns(ctx, 0); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to read journal", nil, err)
		}
	}

	if len(runs) == 0 {
		if opts.Format == "json" {
			return formatter.Success(ReplayResult{Runs: []pipeline.ReplayOutcome{}, Deterministic: true})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	engines := newEnginePool(s, cmd.Flags().Changed("engine"))
	defer engines.Close(ctx)

	result := ReplayResult{
		Runs:  make([]pipeline.ReplayOutcome, 0, len(runs)),
		Total: len(runs),
	}
	for _, run := range runs {
		eng, err := engines.get(ctx, run.Engine)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("failed to create engine for run %s", run.ID), nil, err)
		}

		p := &pipeline.Pipeline{
			Engine:  eng,
			Logger:  slog.Default(),
			Timeout: s.Timeout,
		}
		outcome, err := p.Replay(ctx, run)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("failed to replay run %s", run.ID), nil, err)
		}
		formatter.VerboseLog("replayed run %s: %s", run.ID, outcome.Status)

		switch outcome.Status {
		case pipeline.ReplayMatch:
			result.Matched++
		case pipeline.ReplayMismatch:
			result.Mismatched++
		default:
			result.Skipped++
		}
		result.Runs = append(result.Runs, outcome)
	}
	result.Deterministic = result.Mismatched == 0

	if opts.Format == "json" {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(cmd.OutOrStdout(), result)
}

// enginePool creates one engine per engine name. When forced, every run uses
// the configured engine regardless of what it was recorded with.
type enginePool struct {
	settings settings
	forced   bool
	engines  map[string]wasm.Engine
}

func newEnginePool(s settings, forced bool) *enginePool {
	return &enginePool{settings: s, forced: forced, engines: map[string]wasm.Engine{}}
}

func (p *enginePool) get(ctx context.Context, recorded string) (wasm.Engine, error) {
	s := p.settings
	if !p.forced && recorded != "" {
		s.Engine = recorded
	}
	if eng, ok := p.engines[s.Engine]; ok {
		return eng, nil
	}
	eng, err := s.newEngine(ctx)
	if err != nil {
		return nil, err
	}
	p.engines[s.Engine] = eng
	return eng, nil
}

func (p *enginePool) Close(ctx context.Context) {
	for _, eng := range p.engines {
		eng.Close(ctx)
	}
}

func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	if result.Deterministic {
		return formatter.Success(result)
	}

	msg := fmt.Sprintf("%d of %d run(s) did not replay identically", result.Mismatched, result.Total)
	response := CLIResponse{
		Status: "error",
		Data:   result,
		Error: &CLIError{
			Code:    ErrCodeGeneric,
			Message: msg,
		},
	}
	if err := encodeResponse(formatter.Writer, response); err != nil {
		return err
	}
	return &ExitError{Code: ExitFailure, Message: "determinism verification failed", Reported: true}
}

func outputReplayText(w io.Writer, result ReplayResult) error {
	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.Total)
	fmt.Fprintln(w)

	for _, o := range result.Runs {
		mark := "✓"
		switch o.Status {
		case pipeline.ReplayMismatch:
			mark = "✗"
		case pipeline.ReplaySkipped:
			mark = "-"
		}
		fmt.Fprintf(w, "%s Run %d: %s\n", mark, o.Seq, o.RunID)

		switch o.Status {
		case pipeline.ReplayMismatch:
			fmt.Fprintf(w, "  Want: %s\n", describeOutcome(o.WantDigest, o.WantCode))
			fmt.Fprintf(w, "  Got:  %s\n", describeOutcome(o.GotDigest, o.GotCode))
			if o.ModuleChanged {
				fmt.Fprintln(w, "  Warning: module changed since the run was recorded")
			}
		case pipeline.ReplaySkipped:
			fmt.Fprintf(w, "  Skipped: %s\n", o.Detail)
		}
	}
	fmt.Fprintln(w)

	if result.Deterministic {
		fmt.Fprintln(w, "✓ All runs replayed identically")
		return nil
	}

	fmt.Fprintf(w, "✗ %d run(s) did not replay identically\n", result.Mismatched)
	return &ExitError{Code: ExitFailure, Message: "determinism verification failed", Reported: true}
}

func describeOutcome(digest, code string) string {
	if code != "" {
		return fmt.Sprintf("error %s (%s)", code, pipeline.KindForCode(code))
	}
	return "output sha256:" + digest
}
