package passes

import (
	"fmt"
	"io"

	"github.com/roach88/hwir/internal/ir"
	"github.com/roach88/hwir/internal/pass"
)

// PrintInstanceGraphID identifies the instance-graph summary analysis.
const PrintInstanceGraphID = "printinstancegraph"

// PrintInstanceGraph walks the instance graph bottom up and records one
// summary line per node.
type PrintInstanceGraph struct {
	pass.Base
	lines []string
}

// NewPrintInstanceGraph creates the analysis.
func NewPrintInstanceGraph() *PrintInstanceGraph {
	return &PrintInstanceGraph{
		Base: pass.NewBase(PrintInstanceGraphID, "Prints the instance graph bottom up", true),
	}
}

// RunOnInstanceGraphNode records node.
func (p *PrintInstanceGraph) RunOnInstanceGraphNode(rc *pass.RunContext, node *pass.InstanceGraphNode) (bool, error) {
	var what string
	switch t := node.Instantiable().(type) {
	case *ir.Generator:
		what = "generator" + t.GenParams().String()
	case *ir.Module:
		switch {
		case t.HasDefinition():
			what = fmt.Sprintf("module %s, %d instances", t.Type(), t.Definition().NumInstances())
		default:
			what = fmt.Sprintf("declaration %s", t.Type())
		}
	}
	line := fmt.Sprintf("%s : %s, used %d times", node, what, len(node.Instances()))
	if node.IsExternal() {
		line += " [external]"
	}
	p.lines = append(p.lines, line)
	return false, nil
}

// Lines returns the recorded lines in visit order.
func (p *PrintInstanceGraph) Lines() []string { return p.lines }

// ReleaseMemory drops the recorded lines.
func (p *PrintInstanceGraph) ReleaseMemory() { p.lines = nil }

// Print writes the recorded lines.
func (p *PrintInstanceGraph) Print(w io.Writer) error {
	for _, line := range p.lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
