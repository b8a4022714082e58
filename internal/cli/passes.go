package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/hwir/internal/ir"
	"github.com/roach88/hwir/internal/pass"
	"github.com/roach88/hwir/internal/passes"
)

// PassInfo describes one registered pass.
type PassInfo struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Analysis     bool     `json:"analysis"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// NewPassesCommand creates the passes command.
func NewPassesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "passes",
		Short:         "List the built-in passes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{
				Format:  rootOpts.Format,
				Writer:  cmd.OutOrStdout(),
				Verbose: rootOpts.Verbose,
			}
			pm := pass.NewManager(ir.NewContext().Global(), pass.WithLogger(newLogger(rootOpts, io.Discard)))
			if err := passes.RegisterBuiltins(pm); err != nil {
				return WrapExitError(ExitCommandError, "failed to register passes", err)
			}
			if formatter.Format == "json" {
				return formatter.Success(describePasses(pm))
			}
			return pm.Print(formatter.Writer)
		},
	}
}

func describePasses(pm *pass.Manager) []PassInfo {
	var out []PassInfo
	for _, p := range pm.Passes() {
		kind, _ := pm.Kind(p.ID())
		out = append(out, PassInfo{
			ID:           p.ID(),
			Kind:         kind.String(),
			Analysis:     p.IsAnalysis(),
			Description:  p.Description(),
			Dependencies: p.Dependencies(),
		})
	}
	return out
}
