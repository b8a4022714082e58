package ir

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

// Namespace owns modules, generators, named types and type generators, each
// keyed by name. A name may not denote both a module and a generator, nor
// both a named type and a type generator.
type Namespace struct {
	ctx  *Context
	name string

	modules    map[string]*Module
	generators map[string]*Generator
	namedTypes map[string]*NamedType
	typeGens   map[string]*TypeGen

	// namedTypeGenCache holds named types produced by nominal type generators,
	// keyed by namedCacheKey(name, args).
	namedTypeGenCache map[string]*NamedType
}

func newNamespace(c *Context, name string) *Namespace {
	return &Namespace{
		ctx:               c,
		name:              name,
		modules:           make(map[string]*Module),
		generators:        make(map[string]*Generator),
		namedTypes:        make(map[string]*NamedType),
		typeGens:          make(map[string]*TypeGen),
		namedTypeGenCache: make(map[string]*NamedType),
	}
}

// Name returns the namespace name.
func (ns *Namespace) Name() string { return ns.name }

// Context returns the owning Context.
func (ns *Namespace) Context() *Context { return ns.ctx }

func (ns *Namespace) nameTaken(name string) bool {
	_, m := ns.modules[name]
	_, g := ns.generators[name]
	return m || g
}

func (ns *Namespace) typeNameTaken(name string) bool {
	_, n := ns.namedTypes[name]
	_, tg := ns.typeGens[name]
	return n || tg
}

// NewNamedType creates the named type and its flipped counterpart together.
func (ns *Namespace) NewNamedType(name, flipName string, raw Type) (*NamedType, error) {
	if name == flipName {
		return nil, &Error{Code: ErrCodeInvalid, Message: "named type and its flip must differ: " + name}
	}
	for _, n := range []string{name, flipName} {
		if ns.typeNameTaken(n) {
			return nil, duplicateError(n, ns)
		}
	}
	named := &NamedType{ns: ns, name: name, flipName: flipName, raw: raw}
	flip := &NamedType{ns: ns, name: flipName, flipName: name, raw: raw.Flipped()}
	ns.namedTypes[name] = named
	ns.namedTypes[flipName] = flip
	return named, nil
}

// HasNamedType reports whether name is a (non-generated) named type.
func (ns *Namespace) HasNamedType(name string) bool {
	_, ok := ns.namedTypes[name]
	return ok
}

// NamedType looks up a named type.
func (ns *Namespace) NamedType(name string) (*NamedType, error) {
	t, ok := ns.namedTypes[name]
	if !ok {
		return nil, lookupError("NamedType", name, ns)
	}
	return t, nil
}

// NewNominalTypeGen creates a type generator pair whose results are named
// types: name produces the type, flipName produces its flip.
func (ns *Namespace) NewNominalTypeGen(name, flipName string, params Params, fn TypeGenFunc) (*TypeGen, error) {
	if name == flipName {
		return nil, &Error{Code: ErrCodeInvalid, Message: "type generator and its flip must differ: " + name}
	}
	for _, n := range []string{name, flipName} {
		if ns.typeNameTaken(n) {
			return nil, duplicateError(n, ns)
		}
	}
	tg := &TypeGen{ns: ns, name: name, flipName: flipName, params: params, fun: fn}
	flip := &TypeGen{ns: ns, name: flipName, flipName: name, params: params, fun: fn, flipped: true}
	ns.typeGens[name] = tg
	ns.typeGens[flipName] = flip
	return tg, nil
}

// NewTypeGen creates a non-nominal type generator.
func (ns *Namespace) NewTypeGen(name string, params Params, fn TypeGenFunc) (*TypeGen, error) {
	if ns.typeNameTaken(name) {
		return nil, duplicateError(name, ns)
	}
	tg := &TypeGen{ns: ns, name: name, params: params, fun: fn}
	ns.typeGens[name] = tg
	return tg, nil
}

// TypeGen looks up a type generator.
func (ns *Namespace) TypeGen(name string) (*TypeGen, error) {
	tg, ok := ns.typeGens[name]
	if !ok {
		return nil, lookupError("TypeGen", name, ns)
	}
	return tg, nil
}

// NamedTypeFor returns the named type produced by the nominal type generator
// name for args, creating the pair (and its flip) on first use.
func (ns *Namespace) NamedTypeFor(name string, args Args) (*NamedType, error) {
	if t, ok := ns.namedTypeGenCache[namedCacheKey(name, args)]; ok {
		return t, nil
	}
	tg, ok := ns.typeGens[name]
	if !ok || tg.flipName == "" {
		return nil, lookupError("NamedType", name, ns)
	}
	flip := ns.typeGens[tg.flipName]

	raw, err := tg.Run(args)
	if err != nil {
		return nil, err
	}
	named := &NamedType{ns: ns, name: name, flipName: flip.name, raw: raw, typeGen: tg, genArgs: args.Clone()}
	flipped := &NamedType{ns: ns, name: flip.name, flipName: name, raw: raw.Flipped(), typeGen: flip, genArgs: args.Clone()}
	ns.namedTypeGenCache[namedCacheKey(name, args)] = named
	ns.namedTypeGenCache[namedCacheKey(flip.name, args)] = flipped
	return named, nil
}

// NewGeneratorDecl declares a generator whose port type comes from typeGen.
// The generator params are the type generator's params.
func (ns *Namespace) NewGeneratorDecl(name string, typeGen *TypeGen, configParams Params) (*Generator, error) {
	if ns.nameTaken(name) {
		return nil, duplicateError(name, ns)
	}
	if typeGen == nil {
		return nil, &Error{Code: ErrCodeInvalid, Message: "generator needs a type generator: " + name}
	}
	g := &Generator{
		instantiable: instantiable{
			ctx:          ns.ctx,
			name:         name,
			ns:           ns,
			linkage:      LinkNamespace,
			configParams: configParams,
		},
		typeGen:   typeGen,
		genParams: typeGen.params,
		cache:     make(map[string]*Module),
	}
	g.handle = ns.ctx.alloc(g)
	ns.generators[name] = g
	return g, nil
}

// NewModuleDecl declares a module with port type t.
func (ns *Namespace) NewModuleDecl(name string, t Type, configParams Params) (*Module, error) {
	if ns.nameTaken(name) {
		return nil, duplicateError(name, ns)
	}
	m := &Module{
		instantiable: instantiable{
			ctx:          ns.ctx,
			name:         name,
			ns:           ns,
			linkage:      LinkNamespace,
			configParams: configParams,
		},
		typ: t,
	}
	m.handle = ns.ctx.alloc(m)
	ns.modules[name] = m
	return m, nil
}

// AddModule moves a local module into this namespace.
func (ns *Namespace) AddModule(m *Module) error {
	if m.linkage != LinkLocal {
		return &Error{
			Code:    ErrCodeInvalid,
			Message: "cannot add " + m.linkage.String() + " module to another namespace",
			Context: []string{"Module: " + m.RefName(), "Namespace: " + ns.name},
		}
	}
	if ns.nameTaken(m.name) {
		return duplicateError(m.name, ns)
	}
	m.ns = ns
	m.linkage = LinkNamespace
	ns.modules[m.name] = m
	return nil
}

// RemoveModule deletes a module from the namespace. Its handle is retired.
// Instances elsewhere that still target it are left dangling; removing a
// module that is still used is the caller's responsibility.
func (ns *Namespace) RemoveModule(name string) error {
	m, ok := ns.modules[name]
	if !ok {
		return lookupError("Module", name, ns)
	}
	if m.generator != nil {
		m.generator.forget(m)
	}
	delete(ns.modules, name)
	ns.ctx.release(m.handle)
	return nil
}

// Module looks up a module.
func (ns *Namespace) Module(name string) (*Module, error) {
	m, ok := ns.modules[name]
	if !ok {
		return nil, lookupError("Module", name, ns)
	}
	return m, nil
}

// Generator looks up a generator.
func (ns *Namespace) Generator(name string) (*Generator, error) {
	g, ok := ns.generators[name]
	if !ok {
		return nil, lookupError("Generator", name, ns)
	}
	return g, nil
}

// Instantiable looks up a module or generator.
func (ns *Namespace) Instantiable(name string) (Instantiable, error) {
	if m, ok := ns.modules[name]; ok {
		return m, nil
	}
	if g, ok := ns.generators[name]; ok {
		return g, nil
	}
	return nil, lookupError("Instantiable", name, ns)
}

// Modules returns every module ordered by name.
func (ns *Namespace) Modules() []*Module {
	out := make([]*Module, 0, len(ns.modules))
	for _, m := range ns.modules {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b *Module) int { return strings.Compare(a.name, b.name) })
	return out
}

// Generators returns every generator ordered by name.
func (ns *Namespace) Generators() []*Generator {
	out := make([]*Generator, 0, len(ns.generators))
	for _, g := range ns.generators {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b *Generator) int { return strings.Compare(a.name, b.name) })
	return out
}

// NamedTypes returns every non-generated named type ordered by name.
func (ns *Namespace) NamedTypes() []*NamedType {
	out := make([]*NamedType, 0, len(ns.namedTypes))
	for _, t := range ns.namedTypes {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *NamedType) int { return strings.Compare(a.name, b.name) })
	return out
}

// Print writes a human-readable dump of the namespace.
func (ns *Namespace) Print(w io.Writer) {
	fmt.Fprintf(w, "Namespace: %s\n", ns.name)
	if len(ns.namedTypes) > 0 {
		fmt.Fprintln(w, "  NamedTypes:")
		for _, t := range ns.NamedTypes() {
			fmt.Fprintf(w, "    %s = %s (flip: %s)\n", t.name, t.raw, t.flipName)
		}
	}
	if len(ns.generators) > 0 {
		fmt.Fprintln(w, "  Generators:")
		for _, g := range ns.Generators() {
			fmt.Fprintf(w, "    %s%s\n", g.name, g.GenParams())
		}
	}
	if len(ns.modules) > 0 {
		fmt.Fprintln(w, "  Modules:")
		for _, m := range ns.Modules() {
			printModule(w, m)
		}
	}
}

func printModule(w io.Writer, m *Module) {
	fmt.Fprintf(w, "    %s : %s", m.name, m.typ)
	if len(m.configParams) > 0 {
		fmt.Fprintf(w, " %s", m.configParams)
	}
	if m.linkage == LinkGenerated {
		fmt.Fprint(w, " [generated]")
	}
	fmt.Fprintln(w)
	if m.def == nil {
		return
	}
	for _, inst := range m.def.Instances() {
		fmt.Fprintf(w, "      %s : %s", inst.name, inst.target.RefName())
		if len(inst.genArgs) > 0 {
			fmt.Fprintf(w, " %s", inst.genArgs)
		}
		if len(inst.config) > 0 {
			fmt.Fprintf(w, " config%s", inst.config)
		}
		fmt.Fprintln(w)
	}
	for _, c := range m.def.Connections() {
		fmt.Fprintf(w, "      %s <=> %s\n", c.A, c.B)
	}
}
