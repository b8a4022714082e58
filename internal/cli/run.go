package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/hwir/internal/config"
	"github.com/roach88/hwir/internal/corelib"
	"github.com/roach88/hwir/internal/diag"
	"github.com/roach88/hwir/internal/ir"
	"github.com/roach88/hwir/internal/loader"
	"github.com/roach88/hwir/internal/pass"
	"github.com/roach88/hwir/internal/passes"
	"github.com/roach88/hwir/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Pipeline       string
	Namespace      string
	Top            string
	Passes         []string
	Print          []string
	PrintIR        bool
	IsolationCheck bool
	Journal        string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, the manager's UUIDv7 default is used.
	RunIDs pass.RunIDGenerator
}

// RunSummary is the payload of a successful run.
type RunSummary struct {
	RunID     string            `json:"run_id"`
	Namespace string            `json:"namespace"`
	Executed  []string          `json:"executed"`
	Changed   bool              `json:"changed"`
	Printed   map[string]string `json:"printed,omitempty"`
	IR        string            `json:"ir,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [design-dir]",
		Short: "Load a design and run passes over it",
		Long: `Load a CUE design together with the core generator library and run
passes over one namespace with the pass manager.

Settings come from an optional pipeline file (--pipeline); flags override it.

Example:
  hwir run ./design --passes rungenerators,createinstancemap --print createinstancemap
  hwir run --pipeline pipeline.yaml --journal hwir.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolvePipeline(cmd, opts, args)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid pipeline", err)
			}
			return runPipeline(cmd, opts, p)
		},
	}

	cmd.Flags().StringVarP(&opts.Pipeline, "pipeline", "p", "", "pipeline YAML file")
	cmd.Flags().StringVar(&opts.Namespace, "namespace", config.DefaultNamespace, "namespace to run over")
	cmd.Flags().StringVar(&opts.Top, "top", "", "top module (ns.name), overrides the design")
	cmd.Flags().StringSliceVar(&opts.Passes, "passes", []string{passes.RunGeneratorsID}, "passes to run in order")
	cmd.Flags().StringSliceVar(&opts.Print, "print", nil, "passes whose results are printed after the run")
	cmd.Flags().BoolVar(&opts.PrintIR, "print-ir", false, "print every namespace after the run")
	cmd.Flags().BoolVar(&opts.IsolationCheck, "isolation-check", false, "verify module passes only change the visited module")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite run journal path")

	return cmd
}

// resolvePipeline merges the pipeline file, the positional design dir and
// explicitly set flags, in increasing precedence.
func resolvePipeline(cmd *cobra.Command, opts *RunOptions, args []string) (*config.Pipeline, error) {
	p := &config.Pipeline{
		Namespace: opts.Namespace,
		Passes:    opts.Passes,
	}
	if opts.Pipeline != "" {
		loaded, err := config.Load(opts.Pipeline)
		if err != nil {
			return nil, err
		}
		p = loaded
	}
	if len(args) == 1 {
		p.Design = args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("namespace") {
		p.Namespace = opts.Namespace
	}
	if flags.Changed("top") {
		p.Top = opts.Top
	}
	if flags.Changed("passes") {
		p.Passes = opts.Passes
	}
	if flags.Changed("print") {
		p.Print = opts.Print
	}
	if flags.Changed("isolation-check") {
		p.IsolationCheck = opts.IsolationCheck
	}
	if flags.Changed("journal") {
		p.Journal = opts.Journal
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func runPipeline(cmd *cobra.Command, opts *RunOptions, p *config.Pipeline) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
		Color:     opts.Color,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	c := ir.NewContext()
	if _, err := corelib.Load(c); err != nil {
		return WrapExitError(ExitCommandError, "failed to load core library", err)
	}
	design, err := loader.LoadDir(c, p.Design)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load design", err)
	}
	logger.Info("design loaded", "dir", p.Design, "files", design.Files, "namespaces", len(design.Namespaces))

	if p.Top != "" {
		inst, err := c.Resolve(p.Top)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to resolve top", err)
		}
		top, ok := inst.(*ir.Module)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("top %s is a generator, not a module", p.Top))
		}
		c.SetTop(top)
	}

	ns, err := c.Namespace(p.Namespace)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to select namespace", err)
	}

	pmOpts := []pass.Option{
		pass.WithLogger(logger),
		pass.WithIsolationCheck(p.IsolationCheck),
	}
	if opts.RunIDs != nil {
		pmOpts = append(pmOpts, pass.WithRunIDGenerator(opts.RunIDs))
	}
	if p.Journal != "" {
		st, err := store.Open(p.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		pmOpts = append(pmOpts, pass.WithJournal(st))
	}

	pm := pass.NewManager(ns, pmOpts...)
	if err := passes.RegisterBuiltins(pm); err != nil {
		return WrapExitError(ExitCommandError, "failed to register passes", err)
	}
	for _, id := range p.Print {
		if _, err := pm.Pass(id); err != nil {
			return WrapExitError(ExitCommandError, "unknown pass in print list", err)
		}
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := pm.Run(ctx, p.Passes...)
	items := res.Diagnostics.Items()

	if runErr != nil {
		if formatter.Format == "json" {
			d := diag.FromError(runErr)
			_ = formatter.writeJSON(CLIResponse{
				Status:      "error",
				Error:       &CLIError{Code: d.Code, Message: d.Message, Details: d.Context},
				RunID:       res.RunID,
				Diagnostics: diagnosticsJSON(items),
			})
		} else {
			formatter.Diagnostics(items)
		}
		return WrapExitError(ExitFailure, "run failed", runErr)
	}

	summary := RunSummary{
		RunID:     res.RunID,
		Namespace: ns.Name(),
		Executed:  res.Executed,
		Changed:   res.Changed,
	}
	if len(p.Print) > 0 {
		summary.Printed = make(map[string]string, len(p.Print))
		for _, id := range p.Print {
			text, err := printPass(pm, id)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to print "+id, err)
			}
			summary.Printed[id] = text
		}
	}
	if opts.PrintIR {
		var buf bytes.Buffer
		for _, n := range c.Namespaces() {
			n.Print(&buf)
		}
		summary.IR = buf.String()
	}

	if formatter.Format == "json" {
		return formatter.writeJSON(CLIResponse{
			Status:      "ok",
			Data:        summary,
			RunID:       res.RunID,
			Diagnostics: diagnosticsJSON(items),
		})
	}

	formatter.Diagnostics(items)
	w := formatter.Writer
	fmt.Fprintf(w, "run %s: executed %s (changed: %t)\n", summary.RunID, strings.Join(summary.Executed, ", "), summary.Changed)
	for _, id := range p.Print {
		fmt.Fprintf(w, "== %s ==\n", id)
		fmt.Fprint(w, summary.Printed[id])
	}
	if summary.IR != "" {
		fmt.Fprint(w, summary.IR)
	}
	return nil
}

// printPass renders the result of pass id. Passes without a printer and
// analyses whose result is not cached print a placeholder.
func printPass(pm *pass.Manager, id string) (string, error) {
	var buf bytes.Buffer
	err := pm.PrintResult(&buf, id)
	switch {
	case pass.IsInvalidPassError(err):
		return "(no printer)\n", nil
	case pass.IsAnalysisMissingError(err):
		return "(not computed)\n", nil
	case err != nil:
		return "", err
	}
	return buf.String(), nil
}
