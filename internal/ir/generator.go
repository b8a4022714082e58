package ir

import (
	"slices"
	"strings"
)

// GeneratorDefFunc populates the definition of a freshly elaborated module.
// def belongs to the new module; args are the generator arguments it was
// elaborated for.
type GeneratorDefFunc func(def *Definition, args Args) error

// Generator is a parameterized family of modules. It has no definition of its
// own; each distinct (Generator, Args) pair elaborates into at most one Module.
type Generator struct {
	instantiable
	typeGen   *TypeGen
	genParams Params
	defFun    GeneratorDefFunc

	// cache maps Args.Key() to the elaborated module.
	cache map[string]*Module
}

// TypeGen returns the type-computing function of the generator.
func (g *Generator) TypeGen() *TypeGen { return g.typeGen }

// GenParams returns the formal generator parameters.
func (g *Generator) GenParams() Params {
	if g.genParams == nil {
		return Params{}
	}
	return g.genParams
}

// SetDefinitionFunc installs the definition-producing logic. Generators
// without one elaborate into black-box declarations.
func (g *Generator) SetDefinitionFunc(fn GeneratorDefFunc) { g.defFun = fn }

// HasDefinitionFunc reports whether elaborated modules get a definition.
func (g *Generator) HasDefinitionFunc() bool { return g.defFun != nil }

// RunDefinition invokes the definition-producing logic for args.
func (g *Generator) RunDefinition(def *Definition, args Args) error {
	if g.defFun == nil {
		return nil
	}
	return g.defFun(def, args)
}

// ComputeType returns the port type for args via the type generator.
func (g *Generator) ComputeType(args Args) (Type, error) {
	return g.typeGen.Run(args)
}

// Elaborated returns the module previously elaborated for args.
func (g *Generator) Elaborated(args Args) (*Module, bool) {
	m, ok := g.cache[args.Key()]
	return m, ok
}

// Elaborations returns every module elaborated from this generator, by name.
func (g *Generator) Elaborations() []*Module {
	out := make([]*Module, 0, len(g.cache))
	for _, m := range g.cache {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *Module) int { return strings.Compare(a.name, b.name) })
	return out
}

// ModuleName derives the deterministic name of the module elaborated for args:
// the generator name followed by "__<arg><value>" for each argument in key
// order. String and type values can contain the separator or print alike, so
// args holding them also carry a digest suffix, see SuffixedModuleName.
func (g *Generator) ModuleName(args Args) string {
	for _, v := range args {
		switch v.(type) {
		case String, TypeValue:
			return g.SuffixedModuleName(args)
		}
	}
	return g.plainModuleName(args)
}

// SuffixedModuleName is the plain module name followed by "__" and the first
// 12 hex digits of the args digest. NewModule falls back to it when a
// declared module already holds the plain name.
func (g *Generator) SuffixedModuleName(args Args) string {
	return g.plainModuleName(args) + "__" + argsDigest(args)[:12]
}

func (g *Generator) plainModuleName(args Args) string {
	var b strings.Builder
	b.WriteString(g.name)
	if len(args) == 0 {
		// Keep the name apart from the generator's own.
		b.WriteString("__")
	}
	for _, k := range args.SortedKeys() {
		b.WriteString("__")
		b.WriteString(k)
		b.WriteString(args[k].String())
	}
	return b.String()
}

// NewModule synthesizes the module for args in the generator's namespace,
// registers it under ModuleName(args), or SuffixedModuleName(args) when a
// declared module holds that name, and records it in the elaboration cache.
// The module has the given port type and the generator's configuration params.
func (g *Generator) NewModule(args Args, t Type) (*Module, error) {
	if err := CheckArgsAreParams(args, g.GenParams()); err != nil {
		return nil, WithContext(err, "Generator: "+g.RefName())
	}
	if m, ok := g.Elaborated(args); ok {
		return m, nil
	}
	ns := g.ns
	name := g.ModuleName(args)
	if ns.nameTaken(name) {
		name = g.SuffixedModuleName(args)
		if ns.nameTaken(name) {
			return nil, duplicateError(name, ns)
		}
	}
	m := &Module{
		instantiable: instantiable{
			ctx:          ns.ctx,
			name:         name,
			ns:           ns,
			linkage:      LinkGenerated,
			configParams: g.configParams,
		},
		typ:       t,
		generator: g,
		genArgs:   args.Clone(),
	}
	m.handle = ns.ctx.alloc(m)
	ns.modules[name] = m
	g.cache[args.Key()] = m
	return m, nil
}

// forget drops m from the elaboration cache.
func (g *Generator) forget(m *Module) {
	for k, cached := range g.cache {
		if cached == m {
			delete(g.cache, k)
		}
	}
}
