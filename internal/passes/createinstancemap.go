package passes

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/roach88/hwir/internal/ir"
	"github.com/roach88/hwir/internal/pass"
)

// CreateInstanceMapID identifies the usage-map analysis.
const CreateInstanceMapID = "createinstancemap"

// Usage is the set of use-sites of one Instantiable inside a module.
type Usage struct {
	Target    ir.Instantiable
	Instances []*ir.Instance // ordered by instance name
}

// InstanceMap maps each distinct Instantiable used by a module to its
// use-sites.
type InstanceMap map[ir.Handle]*Usage

// Sorted returns the usages ordered by target reference name.
func (im InstanceMap) Sorted() []*Usage {
	out := make([]*Usage, 0, len(im))
	for _, u := range im {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b *Usage) int {
		return strings.Compare(a.Target.RefName(), b.Target.RefName())
	})
	return out
}

// CreateInstanceMap computes an InstanceMap for every module of the
// namespace. It never mutates the IR.
type CreateInstanceMap struct {
	pass.Base
	maps map[ir.Handle]InstanceMap
	refs map[ir.Handle]string
}

// NewCreateInstanceMap creates the analysis.
func NewCreateInstanceMap() *CreateInstanceMap {
	return &CreateInstanceMap{
		Base: pass.NewBase(CreateInstanceMapID, "Create Instance Map", true),
	}
}

// RunOnModule records the usage map of m. A module without a definition
// gets an empty map.
func (p *CreateInstanceMap) RunOnModule(rc *pass.RunContext, m *ir.Module) (bool, error) {
	if p.maps == nil {
		p.maps = make(map[ir.Handle]InstanceMap)
		p.refs = make(map[ir.Handle]string)
	}
	im := make(InstanceMap)
	if m.HasDefinition() {
		for _, inst := range m.Definition().Instances() {
			target := inst.Target()
			u, ok := im[target.Handle()]
			if !ok {
				u = &Usage{Target: target}
				im[target.Handle()] = u
			}
			u.Instances = append(u.Instances, inst)
		}
	}
	p.maps[m.Handle()] = im
	p.refs[m.Handle()] = m.RefName()
	return false, nil
}

// InstanceMap returns the usage map of m. Asking for a module that was not
// analyzed is an ANALYSIS_MISSING error.
func (p *CreateInstanceMap) InstanceMap(m *ir.Module) (InstanceMap, error) {
	im, ok := p.maps[m.Handle()]
	if !ok {
		return nil, pass.NewAnalysisMissingError(CreateInstanceMapID, "module "+m.RefName())
	}
	return im, nil
}

// ReleaseMemory drops the maps of every module at once.
func (p *CreateInstanceMap) ReleaseMemory() {
	p.maps = nil
	p.refs = nil
}

// Print writes each analyzed module followed by its usages.
func (p *CreateInstanceMap) Print(w io.Writer) error {
	handles := make([]ir.Handle, 0, len(p.maps))
	for h := range p.maps {
		handles = append(handles, h)
	}
	slices.SortFunc(handles, func(a, b ir.Handle) int { return strings.Compare(p.refs[a], p.refs[b]) })

	for _, h := range handles {
		if _, err := fmt.Fprintln(w, p.refs[h]); err != nil {
			return err
		}
		for _, u := range p.maps[h].Sorted() {
			names := make([]string, len(u.Instances))
			for i, inst := range u.Instances {
				names[i] = inst.Name()
			}
			if _, err := fmt.Fprintf(w, "  %s: %s\n", u.Target.RefName(), strings.Join(names, ", ")); err != nil {
				return err
			}
		}
	}
	return nil
}
