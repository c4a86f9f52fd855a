package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/wasmpipe/internal/pipeline"
	"github.com/roach88/wasmpipe/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	invokeFlags
	Limit int
}

// HistoryEntry is one journaled run as listed by the history command.
type HistoryEntry struct {
	Seq          int64  `json:"seq"`
	RunID        string `json:"run_id"`
	Module       string `json:"module"`
	ModuleDigest string `json:"module_digest,omitempty"`
	Operation    string `json:"operation"`
	Engine       string `json:"engine"`
	Codec        string `json:"codec"`
	Schema       string `json:"schema,omitempty"`
	Status       string `json:"status"`
	OutputDigest string `json:"output_digest,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List runs recorded in a journal",
		Long: `List the runs recorded in a journal, oldest first.

The journal defaults to journal.path from wasmpipe.toml.

Examples:
  wasmpipe history --journal ./runs.db
  wasmpipe history --journal ./runs.db --limit 10 --format json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	opts.addJournal(cmd, "SQLite journal to read")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the most recent runs (0 = all)")
	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := opts.formatter(cmd)

	st, err := openJournal(cmd, opts.RootOptions, &opts.invokeFlags)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeJournal, "failed to read journal", nil, err)
	}

	entries := make([]HistoryEntry, 0, len(runs))
	for _, run := range runs {
		entries = append(entries, historyEntry(run))
	}

	if opts.Format == "json" {
		return formatter.Success(entries)
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tRUN ID\tMODULE\tOPERATION\tCODEC\tSTATUS")
	for _, e := range entries {
		status := e.Status
		if e.ErrorCode != "" {
			status = fmt.Sprintf("%s %s", e.ErrorCode, e.ErrorKind)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", e.Seq, e.RunID, e.Module, e.Operation, e.Codec, status)
	}
	return tw.Flush()
}

func historyEntry(run store.Run) HistoryEntry {
	e := HistoryEntry{
		Seq:          run.Seq,
		RunID:        run.ID,
		Module:       run.ModulePath,
		ModuleDigest: run.ModuleDigest,
		Operation:    run.Operation,
		Schema:       run.SchemaPath,
		Engine:       run.Engine,
		Codec:        run.Codec,
		Status:       "ok",
		OutputDigest: run.OutputDigest,
	}
	if !run.Succeeded() {
		e.Status = "error"
		e.ErrorCode = run.ErrorCode
		e.ErrorKind = pipeline.KindForCode(run.ErrorCode)
		e.ErrorMessage = run.ErrorMessage
	}
	return e
}

// openJournal opens the journal named by --journal or the config. The
// journal must already exist; reading commands never create one.
func openJournal(cmd *cobra.Command, opts *RootOptions, f *invokeFlags) (*store.Store, error) {
	formatter := opts.formatter(cmd)

	s := resolveSettings(cmd, opts.effectiveConfig(), f)
	if s.Journal == "" {
		return nil, formatter.Fail(ExitCommandError, ErrCodeGeneric, "no journal: pass --journal or set journal.path", nil, nil)
	}
	if _, err := os.Stat(s.Journal); err != nil {
		return nil, formatter.Fail(ExitCommandError, codeForPath(err), fmt.Sprintf("journal not found: %s", s.Journal), nil, err)
	}

	st, err := store.Open(s.Journal)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", nil, err)
	}
	return st, nil
}
