package passes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hwir/internal/corelib"
	"github.com/roach88/hwir/internal/ir"
	"github.com/roach88/hwir/internal/pass"
)

func newManager(t *testing.T, ns *ir.Namespace, opts ...pass.Option) *pass.Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pm := pass.NewManager(ns, append([]pass.Option{pass.WithLogger(logger)}, opts...)...)
	require.NoError(t, RegisterBuiltins(pm))
	return pm
}

// widthScenario declares G(width:int) -> {out: Bit[width]} and a module Top
// with i1, i2 at width 8 and i3 at width 16.
func widthScenario(t *testing.T) (*ir.Namespace, *ir.Generator, *ir.Module) {
	t.Helper()
	ns := ir.NewContext().Global()
	tg, err := ns.NewTypeGen("GT", ir.Params{"width": ir.ParamInt}, func(args ir.Args) (ir.Type, error) {
		return ir.Record(ir.F("out", ir.Array(int(args["width"].(ir.Int)), ir.Bit()))), nil
	})
	require.NoError(t, err)
	g, err := ns.NewGeneratorDecl("G", tg, nil)
	require.NoError(t, err)

	top, err := ns.NewModuleDecl("Top", ir.Bit(), nil)
	require.NoError(t, err)
	def := top.NewDefinition()
	for name, w := range map[string]int64{"i1": 8, "i2": 8, "i3": 16} {
		_, err := def.AddInstance(name, g, ir.Args{"width": ir.Int(w)})
		require.NoError(t, err)
	}
	return ns, g, top
}

func instanceModule(t *testing.T, top *ir.Module, name string) *ir.Module {
	t.Helper()
	inst, err := top.Definition().Instance(name)
	require.NoError(t, err)
	m, ok := inst.Module()
	require.True(t, ok, "instance %s still targets %s", name, inst.Target().RefName())
	return m
}

func TestRunGeneratorsSharesElaboratedModules(t *testing.T) {
	ns, g, top := widthScenario(t)
	pm := newManager(t, ns)

	res, err := pm.Run(context.Background(), RunGeneratorsID)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	m1 := instanceModule(t, top, "i1")
	m2 := instanceModule(t, top, "i2")
	m3 := instanceModule(t, top, "i3")

	assert.Same(t, m1, m2)
	assert.NotSame(t, m1, m3)
	assert.Equal(t, "G__width8", m1.Name())
	assert.Equal(t, "G__width16", m3.Name())
	assert.Equal(t, ir.LinkGenerated, m1.Linkage())
	assert.Equal(t, "{out:Bit[16]}", m3.Type().String())

	inst, err := top.Definition().Instance("i3")
	require.NoError(t, err)
	assert.Equal(t, ir.Args{"width": ir.Int(16)}, inst.GenArgs())

	assert.Len(t, g.Elaborations(), 2)
	got, err := ns.Module("G__width8")
	require.NoError(t, err)
	assert.Same(t, m1, got)
}

func TestRunGeneratorsIdempotent(t *testing.T) {
	ns, _, _ := widthScenario(t)
	pm := newManager(t, ns)

	_, err := pm.Run(context.Background(), RunGeneratorsID)
	require.NoError(t, err)

	before := make(map[string]string)
	for _, m := range ns.Modules() {
		fp, err := ir.ModuleFingerprint(m)
		require.NoError(t, err)
		before[m.RefName()] = fp
	}

	res, err := pm.Run(context.Background(), RunGeneratorsID)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	after := make(map[string]string)
	for _, m := range ns.Modules() {
		fp, err := ir.ModuleFingerprint(m)
		require.NoError(t, err)
		after[m.RefName()] = fp
	}
	assert.Equal(t, before, after)
}

func TestRunGeneratorsArgMismatchIsFatal(t *testing.T) {
	ns := ir.NewContext().Global()
	tg, err := ns.NewTypeGen("GT", ir.Params{"width": ir.ParamInt}, func(args ir.Args) (ir.Type, error) {
		return ir.Bit(), nil
	})
	require.NoError(t, err)
	g, err := ns.NewGeneratorDecl("G", tg, nil)
	require.NoError(t, err)
	top, err := ns.NewModuleDecl("Top", ir.Bit(), nil)
	require.NoError(t, err)
	_, err = top.NewDefinition().AddInstance("bad", g, ir.Args{"width": ir.String("8")})
	require.NoError(t, err)

	pm := newManager(t, ns)
	res, err := pm.Run(context.Background(), RunGeneratorsID)
	require.Error(t, err)
	assert.True(t, ir.IsConfigError(err))

	require.True(t, res.Diagnostics.HasFatal())
	d := res.Diagnostics.Items()[0]
	assert.Equal(t, RunGeneratorsID, d.Pass)
	assert.Contains(t, d.Context, "Generator: global.G")
	assert.Contains(t, d.Context, "Instance: global.Top.bad")
	assert.Contains(t, d.Context, "Params: (width:int)")
}

func TestRunGeneratorsDefinitionFailure(t *testing.T) {
	ns := ir.NewContext().Global()
	tg, err := ns.NewTypeGen("GT", nil, func(ir.Args) (ir.Type, error) { return ir.Bit(), nil })
	require.NoError(t, err)
	g, err := ns.NewGeneratorDecl("G", tg, nil)
	require.NoError(t, err)
	g.SetDefinitionFunc(func(*ir.Definition, ir.Args) error { return errors.New("no luck") })

	top, err := ns.NewModuleDecl("Top", ir.Bit(), nil)
	require.NoError(t, err)
	_, err = top.NewDefinition().AddInstance("g", g, ir.Args{})
	require.NoError(t, err)

	pm := newManager(t, ns)
	_, err = pm.Run(context.Background(), RunGeneratorsID)
	require.Error(t, err)
	assert.True(t, ir.IsElaborationError(err))
	assert.Contains(t, err.Error(), "no luck")

	_, ok := g.Elaborated(ir.Args{})
	assert.False(t, ok)
	assert.Equal(t, "G__", g.ModuleName(ir.Args{}))
	_, err = ns.Module("G__")
	assert.True(t, ir.IsLookupError(err))
}

func TestRunGeneratorsSelfInstantiationTerminates(t *testing.T) {
	ns := ir.NewContext().Global()
	tg, err := ns.NewTypeGen("GT", ir.Params{"n": ir.ParamInt}, func(ir.Args) (ir.Type, error) { return ir.Bit(), nil })
	require.NoError(t, err)
	g, err := ns.NewGeneratorDecl("G", tg, nil)
	require.NoError(t, err)
	g.SetDefinitionFunc(func(def *ir.Definition, args ir.Args) error {
		_, err := def.AddInstance("again", g, args)
		return err
	})

	top, err := ns.NewModuleDecl("Top", ir.Bit(), nil)
	require.NoError(t, err)
	_, err = top.NewDefinition().AddInstance("g", g, ir.Args{"n": ir.Int(1)})
	require.NoError(t, err)

	pm := newManager(t, ns)
	_, err = pm.Run(context.Background(), RunGeneratorsID)
	require.NoError(t, err)

	m := instanceModule(t, top, "g")
	assert.Same(t, m, instanceModule(t, m, "again"))
}

func TestRunGeneratorsRecursiveAddTree(t *testing.T) {
	c := ir.NewContext()
	core, err := corelib.Load(c)
	require.NoError(t, err)
	tree, err := core.Generator("addtree")
	require.NoError(t, err)

	ns := c.Global()
	top, err := ns.NewModuleDecl("Top", ir.Bit(), nil)
	require.NoError(t, err)
	_, err = top.NewDefinition().AddInstance("t", tree, ir.Args{"width": ir.Int(8), "n": ir.Int(4)})
	require.NoError(t, err)

	pm := newManager(t, ns)
	_, err = pm.Run(context.Background(), RunGeneratorsID)
	require.NoError(t, err)

	m := instanceModule(t, top, "t")
	assert.Equal(t, "core.addtree__n4__width8", m.RefName())
	assert.Equal(t, "{in:BitIn[8][4], out:Bit[8]}", m.Type().String())

	lo := instanceModule(t, m, "lo")
	hi := instanceModule(t, m, "hi")
	assert.Same(t, lo, hi)
	assert.Equal(t, "addtree__n2__width8", lo.Name())

	leaf := instanceModule(t, lo, "lo")
	assert.Equal(t, "addtree__n1__width8", leaf.Name())
	assert.Equal(t, "wire__width8", instanceModule(t, leaf, "w").Name())

	var names []string
	for _, e := range tree.Elaborations() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"addtree__n1__width8", "addtree__n2__width8", "addtree__n4__width8"}, names)

	// No generator instance is left below Top.
	var walk func(m *ir.Module)
	walk = func(m *ir.Module) {
		if !m.HasDefinition() {
			return
		}
		for _, inst := range m.Definition().Instances() {
			sub, ok := inst.Module()
			require.True(t, ok, "%s.%s", m.RefName(), inst.Name())
			walk(sub)
		}
	}
	walk(top)
}

// stringScenario declares G over string params and a module Top with one
// instance per args set, named i0, i1, ...
func stringScenario(t *testing.T, params ir.Params, argSets ...ir.Args) (*ir.Namespace, *ir.Generator, *ir.Module) {
	t.Helper()
	ns := ir.NewContext().Global()
	tg, err := ns.NewTypeGen("GT", params, func(ir.Args) (ir.Type, error) { return ir.Bit(), nil })
	require.NoError(t, err)
	g, err := ns.NewGeneratorDecl("G", tg, nil)
	require.NoError(t, err)

	top, err := ns.NewModuleDecl("Top", ir.Bit(), nil)
	require.NoError(t, err)
	def := top.NewDefinition()
	for i, args := range argSets {
		_, err := def.AddInstance(fmt.Sprintf("i%d", i), g, args)
		require.NoError(t, err)
	}
	return ns, g, top
}

func TestRunGeneratorsSeparatorInStringArgs(t *testing.T) {
	ns, g, top := stringScenario(t,
		ir.Params{"a": ir.ParamString, "b": ir.ParamString},
		ir.Args{"a": ir.String("x__by"), "b": ir.String("z")},
		ir.Args{"a": ir.String("x"), "b": ir.String("y__bz")},
	)
	pm := newManager(t, ns)
	_, err := pm.Run(context.Background(), RunGeneratorsID)
	require.NoError(t, err)

	m0 := instanceModule(t, top, "i0")
	m1 := instanceModule(t, top, "i1")
	assert.NotSame(t, m0, m1)
	assert.NotEqual(t, m0.Name(), m1.Name())
	assert.True(t, strings.HasPrefix(m0.Name(), "G__ax__by__bz__"), m0.Name())
	assert.True(t, strings.HasPrefix(m1.Name(), "G__ax__by__bz__"), m1.Name())
	assert.Len(t, g.Elaborations(), 2)
}

func TestRunGeneratorsUnnormalizedStringsStayDistinct(t *testing.T) {
	precomposed := ir.Args{"s": ir.String("\u00e9")}
	decomposed := ir.Args{"s": ir.String("e\u0301")}
	require.False(t, precomposed.Equal(decomposed))

	ns, g, top := stringScenario(t, ir.Params{"s": ir.ParamString}, precomposed, decomposed)
	pm := newManager(t, ns)
	_, err := pm.Run(context.Background(), RunGeneratorsID)
	require.NoError(t, err)

	m0 := instanceModule(t, top, "i0")
	m1 := instanceModule(t, top, "i1")
	assert.NotSame(t, m0, m1)
	assert.NotEqual(t, m0.Name(), m1.Name())
	assert.Len(t, g.Elaborations(), 2)

	_, args := m1.Generator()
	assert.True(t, args.Equal(decomposed))
}

func TestRunGeneratorsAvoidsDeclaredModuleName(t *testing.T) {
	ns, g, top := widthScenario(t)
	declared, err := ns.NewModuleDecl("G__width8", ir.Bit(), nil)
	require.NoError(t, err)

	pm := newManager(t, ns)
	_, err = pm.Run(context.Background(), RunGeneratorsID)
	require.NoError(t, err)

	m8 := instanceModule(t, top, "i1")
	assert.NotSame(t, declared, m8)
	assert.Equal(t, g.SuffixedModuleName(ir.Args{"width": ir.Int(8)}), m8.Name())
	assert.Equal(t, "G__width16", instanceModule(t, top, "i3").Name())

	got, err := ns.Module("G__width8")
	require.NoError(t, err)
	assert.Same(t, declared, got)
	assert.NotEqual(t, ir.LinkGenerated, got.Linkage())
}

func TestCreateInstanceMapPartitionsInstances(t *testing.T) {
	ns, g, top := widthScenario(t)
	leaf, err := ns.NewModuleDecl("Leaf", ir.Bit(), nil)
	require.NoError(t, err)
	_, err = top.Definition().AddInstance("l0", leaf, nil)
	require.NoError(t, err)

	pm := newManager(t, ns)
	_, err = pm.Run(context.Background(), CreateInstanceMapID)
	require.NoError(t, err)

	p, err := pm.Pass(CreateInstanceMapID)
	require.NoError(t, err)
	cim := p.(*CreateInstanceMap)

	im, err := cim.InstanceMap(top)
	require.NoError(t, err)
	require.Len(t, im, 2)

	seen := make(map[string]int)
	for h, u := range im {
		assert.Equal(t, h, u.Target.Handle())
		for _, inst := range u.Instances {
			assert.Same(t, u.Target, inst.Target())
			seen[inst.Name()]++
		}
	}
	assert.Equal(t, map[string]int{"i1": 1, "i2": 1, "i3": 1, "l0": 1}, seen)
	assert.Len(t, im[g.Handle()].Instances, 3)

	leafMap, err := cim.InstanceMap(leaf)
	require.NoError(t, err)
	assert.Empty(t, leafMap)

	var buf bytes.Buffer
	require.NoError(t, cim.Print(&buf))
	assert.Equal(t, "global.Leaf\nglobal.Top\n  global.G: i1, i2, i3\n  global.Leaf: l0\n", buf.String())
}

func TestCreateInstanceMapMissingModule(t *testing.T) {
	ns, _, _ := widthScenario(t)
	pm := newManager(t, ns)
	_, err := pm.Run(context.Background(), CreateInstanceMapID)
	require.NoError(t, err)

	late, err := ns.NewModuleDecl("Late", ir.Bit(), nil)
	require.NoError(t, err)

	p, err := pm.Pass(CreateInstanceMapID)
	require.NoError(t, err)
	_, err = p.(*CreateInstanceMap).InstanceMap(late)
	assert.True(t, pass.IsAnalysisMissingError(err))
}

func TestRunGeneratorsReleasesInstanceMap(t *testing.T) {
	ns, _, top := widthScenario(t)
	pm := newManager(t, ns)

	_, err := pm.Run(context.Background(), CreateInstanceMapID)
	require.NoError(t, err)
	require.True(t, pm.IsValid(CreateInstanceMapID))

	_, err = pm.Run(context.Background(), RunGeneratorsID)
	require.NoError(t, err)
	assert.False(t, pm.IsValid(CreateInstanceMapID))

	p, err := pm.Pass(CreateInstanceMapID)
	require.NoError(t, err)
	_, err = p.(*CreateInstanceMap).InstanceMap(top)
	assert.True(t, pass.IsAnalysisMissingError(err))

	// Recomputed on the next request, now keyed by the elaborated modules.
	_, err = pm.Run(context.Background(), CreateInstanceMapID)
	require.NoError(t, err)
	im, err := p.(*CreateInstanceMap).InstanceMap(top)
	require.NoError(t, err)
	m8 := instanceModule(t, top, "i1")
	assert.Len(t, im[m8.Handle()].Instances, 2)
}

func TestPrintInstanceGraphAfterElaboration(t *testing.T) {
	ns, _, top := widthScenario(t)
	ns.Context().SetTop(top)
	pm := newManager(t, ns)

	_, err := pm.Run(context.Background(), RunGeneratorsID, PrintInstanceGraphID)
	require.NoError(t, err)

	p, err := pm.Pass(PrintInstanceGraphID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"global.G__width16 : declaration {out:Bit[16]}, used 1 times",
		"global.G__width8 : declaration {out:Bit[8]}, used 2 times",
		"global.Top : module Bit, 3 instances, used 0 times",
	}, p.(*PrintInstanceGraph).Lines())
}

func TestPrintInstanceGraphSeesGenerators(t *testing.T) {
	ns, _, _ := widthScenario(t)
	pm := newManager(t, ns)

	_, err := pm.Run(context.Background(), PrintInstanceGraphID)
	require.NoError(t, err)

	p, err := pm.Pass(PrintInstanceGraphID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"global.G : generator(width:int), used 3 times",
		"global.Top : module Bit, 3 instances, used 0 times",
	}, p.(*PrintInstanceGraph).Lines())
}

func TestPrintInstanceGraphStartsFresh(t *testing.T) {
	ns, _, _ := widthScenario(t)
	pm := newManager(t, ns)

	p, err := pm.Pass(PrintInstanceGraphID)
	require.NoError(t, err)
	pig := p.(*PrintInstanceGraph)
	pig.lines = []string{"global.Gone : declaration Bit, used 0 times"}

	_, err = pm.Run(context.Background(), PrintInstanceGraphID)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"global.G : generator(width:int), used 3 times",
		"global.Top : module Bit, 3 instances, used 0 times",
	}, pig.Lines())
}

type elabRecorder struct {
	elabs []ir.ElaborationRecord
}

func (r *elabRecorder) BeginRun(context.Context, ir.RunRecord) error       { return nil }
func (r *elabRecorder) FinishRun(context.Context, string, string) error    { return nil }
func (r *elabRecorder) RecordPassRun(context.Context, ir.PassRecord) error { return nil }
func (r *elabRecorder) RecordElaboration(_ context.Context, rec ir.ElaborationRecord) error {
	r.elabs = append(r.elabs, rec)
	return nil
}

func TestRunGeneratorsJournalsElaborations(t *testing.T) {
	ns, _, _ := widthScenario(t)
	rec := &elabRecorder{}
	pm := newManager(t, ns, pass.WithJournal(rec), pass.WithRunIDGenerator(pass.NewFixedGenerator("run-1")))

	_, err := pm.Run(context.Background(), RunGeneratorsID)
	require.NoError(t, err)

	require.Len(t, rec.elabs, 2)
	modules := []string{rec.elabs[0].Module, rec.elabs[1].Module}
	assert.ElementsMatch(t, []string{"global.G__width8", "global.G__width16"}, modules)
	for _, e := range rec.elabs {
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, "global.G", e.Generator)
		assert.Len(t, e.ArgsHash, 64)
	}
}
