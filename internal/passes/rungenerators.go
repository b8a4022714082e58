package passes

import (
	"github.com/roach88/hwir/internal/ir"
	"github.com/roach88/hwir/internal/pass"
)

// RunGeneratorsID identifies the generator elaboration transform.
const RunGeneratorsID = "rungenerators"

// RunGenerators replaces every generator instance in the namespace with an
// instance of a concrete, elaborated module.
//
// Elaboration of (Generator, Args) is memoized on the generator, so two
// instances with structurally equal args end up on the identical module.
// The cache entry is created before the generator's definition logic runs,
// which makes a generator that instantiates itself with the same args
// terminate. Nothing bounds divergent argument spaces.
type RunGenerators struct {
	pass.Base
}

// NewRunGenerators creates the transform.
func NewRunGenerators() *RunGenerators {
	return &RunGenerators{
		Base: pass.NewBase(RunGeneratorsID, "Runs all generators", false),
	}
}

// RunOnNamespace elaborates until no module of ns has a generator instance
// left. It reports no change when there was nothing to elaborate.
func (p *RunGenerators) RunOnNamespace(rc *pass.RunContext, ns *ir.Namespace) (bool, error) {
	changed := false
	for {
		progress := false
		for _, m := range ns.Modules() {
			c, err := p.elaborateModule(rc, m)
			if err != nil {
				return changed, err
			}
			progress = progress || c
		}
		if !progress {
			return changed, nil
		}
		changed = true
	}
}

// elaborateModule retargets every generator instance in m's definition.
func (p *RunGenerators) elaborateModule(rc *pass.RunContext, m *ir.Module) (bool, error) {
	if !m.HasDefinition() {
		return false, nil
	}
	changed := false
	for _, inst := range m.Definition().Instances() {
		g, ok := inst.Generator()
		if !ok {
			continue
		}
		mod, err := p.elaborate(rc, g, inst.GenArgs())
		if err != nil {
			return changed, ir.WithContext(err, "Instance: "+m.RefName()+"."+inst.Name())
		}
		if err := inst.Retarget(mod); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// elaborate returns the module for (g, args), creating it and elaborating
// its own definition on first use.
func (p *RunGenerators) elaborate(rc *pass.RunContext, g *ir.Generator, args ir.Args) (*ir.Module, error) {
	if err := ir.CheckArgsAreParams(args, g.GenParams()); err != nil {
		return nil, ir.WithContext(err, "Generator: "+g.RefName())
	}
	if m, ok := g.Elaborated(args); ok {
		return m, nil
	}

	t, err := g.ComputeType(args)
	if err != nil {
		return nil, ir.WithContext(err, "Generator: "+g.RefName())
	}
	m, err := g.NewModule(args, t)
	if err != nil {
		return nil, err
	}
	if g.HasDefinitionFunc() {
		if err := g.RunDefinition(m.NewDefinition(), args); err != nil {
			_ = g.Namespace().RemoveModule(m.Name())
			return nil, &ir.Error{
				Code:    ir.ErrCodeElaboration,
				Message: "generator definition failed",
				Context: []string{"Generator: " + g.RefName(), "Args: " + args.String()},
				Err:     err,
			}
		}
	}

	rc.Logger().Debug("generator elaborated", "generator", g.RefName(), "args", args.String(), "module", m.RefName())
	rc.RecordElaboration(g, args, m)

	if _, err := p.elaborateModule(rc, m); err != nil {
		return nil, err
	}
	return m, nil
}
