package ir

// Module is a concrete circuit with a fixed port type. A Module without a
// Definition is a declaration only (black box).
type Module struct {
	instantiable
	typ Type
	def *Definition

	// Provenance for modules produced by elaboration.
	generator *Generator
	genArgs   Args
}

// NewLocalModule creates a module that no Namespace owns yet. It becomes a
// namespace module once passed to Namespace.AddModule.
func NewLocalModule(c *Context, name string, t Type, configParams Params) *Module {
	m := &Module{
		instantiable: instantiable{ctx: c, name: name, linkage: LinkLocal, configParams: configParams},
		typ:          t,
	}
	m.handle = c.alloc(m)
	return m
}

// Type returns the port type.
func (m *Module) Type() Type { return m.typ }

// SetType replaces the port type.
func (m *Module) SetType(t Type) { m.typ = t }

// HasDefinition reports whether the module has internal structure.
func (m *Module) HasDefinition() bool { return m.def != nil }

// Definition returns the module's definition, or nil.
func (m *Module) Definition() *Definition { return m.def }

// NewDefinition attaches and returns a fresh empty definition, replacing any
// existing one.
func (m *Module) NewDefinition() *Definition {
	m.def = &Definition{module: m, instances: make(map[string]*Instance)}
	return m.def
}

// Generator returns the generator and args this module was elaborated from,
// or nil for modules that were not generated.
func (m *Module) Generator() (*Generator, Args) {
	return m.generator, m.genArgs
}

// Context returns the owning Context.
func (m *Module) Context() *Context { return m.ctx }
