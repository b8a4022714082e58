package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hwir/internal/ir"
	"github.com/roach88/hwir/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Database string
}

// JournalEntry is one run read back from the journal.
type JournalEntry struct {
	Run          ir.RunRecord           `json:"run"`
	PassRuns     []ir.PassRecord        `json:"pass_runs"`
	Elaborations []ir.ElaborationRecord `json:"elaborations"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal [run-id]",
		Short: "Read back recorded runs",
		Long: `List the runs recorded in a journal, or show one run's pass executions
and elaborations in logical-clock order.

Example:
  hwir journal --db hwir.db
  hwir journal --db hwir.db 0192f3c4-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return readJournal(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func readJournal(cmd *cobra.Command, opts *JournalOptions, args []string) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	// Opening creates missing files, so check first.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 0 {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list runs", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(runs)
		}
		for _, r := range runs {
			fmt.Fprintf(formatter.Writer, "%s %s %s [%s]\n", r.RunID, r.Status, r.Namespace, strings.Join(r.Passes, ", "))
		}
		return nil
	}

	entry, err := readEntry(ctx, st, args[0])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, "run not found: "+args[0])
		}
		return WrapExitError(ExitFailure, "failed to read run", err)
	}
	if formatter.Format == "json" {
		return formatter.Success(entry)
	}
	writeEntry(formatter.Writer, entry)
	return nil
}

func readEntry(ctx context.Context, st *store.Store, runID string) (*JournalEntry, error) {
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	passRuns, err := st.ReadPassRuns(ctx, runID)
	if err != nil {
		return nil, err
	}
	elabs, err := st.ReadElaborations(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &JournalEntry{Run: run, PassRuns: passRuns, Elaborations: elabs}, nil
}

func writeEntry(w io.Writer, e *JournalEntry) {
	fmt.Fprintf(w, "Run: %s\n", e.Run.RunID)
	fmt.Fprintf(w, "  namespace: %s\n", e.Run.Namespace)
	fmt.Fprintf(w, "  status: %s\n", e.Run.Status)
	fmt.Fprintf(w, "  passes: %s\n", strings.Join(e.Run.Passes, ", "))
	fmt.Fprintf(w, "  versions: tool %s, ir %s\n", e.Run.ToolVersion, e.Run.IRVersion)

	// Merge both record kinds by seq so the output reads as one timeline.
	pi, ei := 0, 0
	for pi < len(e.PassRuns) || ei < len(e.Elaborations) {
		if ei >= len(e.Elaborations) || (pi < len(e.PassRuns) && e.PassRuns[pi].Seq < e.Elaborations[ei].Seq) {
			pr := e.PassRuns[pi]
			fmt.Fprintf(w, "  %4d pass %s (%s) changed=%t\n", pr.Seq, pr.PassID, pr.Kind, pr.Changed)
			pi++
			continue
		}
		el := e.Elaborations[ei]
		fmt.Fprintf(w, "  %4d elaborate %s%s -> %s\n", el.Seq, el.Generator, el.Args, el.Module)
		ei++
	}
}
