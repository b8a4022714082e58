package ir

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// SelfName is the select-path root denoting the enclosing module's ports.
const SelfName = "self"

// Definition is the internal wiring of a Module: its Instances plus the
// connections between their ports. Instances are owned by the Definition.
type Definition struct {
	module      *Module
	instances   map[string]*Instance
	connections []Connection
}

// Module returns the module this definition belongs to.
func (d *Definition) Module() *Module { return d.module }

// Context returns the owning Context.
func (d *Definition) Context() *Context { return d.module.ctx }

// Instance is one use-site of an Instantiable inside a Definition.
//
// genArgs bind the generator parameters when the target is (or was) a
// Generator; config binds the target's configuration parameters.
type Instance struct {
	name    string
	def     *Definition
	target  Instantiable
	genArgs Args
	config  Args
}

// Name returns the instance name, unique within its definition.
func (i *Instance) Name() string { return i.name }

// Definition returns the containing definition.
func (i *Instance) Definition() *Definition { return i.def }

// Target returns the instantiated module or generator.
func (i *Instance) Target() Instantiable { return i.target }

// GenArgs returns the generator arguments. They stay attached after the
// instance is rewritten to reference an elaborated module.
func (i *Instance) GenArgs() Args { return i.genArgs }

// Config returns the configuration arguments.
func (i *Instance) Config() Args { return i.config }

// Generator returns the target as a generator, if it is one.
func (i *Instance) Generator() (*Generator, bool) {
	g, ok := i.target.(*Generator)
	return g, ok
}

// Module returns the target as a module, if it is one.
func (i *Instance) Module() (*Module, bool) {
	m, ok := i.target.(*Module)
	return m, ok
}

// Retarget points the instance at m. The configuration arguments must bind
// m's configuration parameters.
func (i *Instance) Retarget(m *Module) error {
	if err := CheckArgsAreParams(i.config, m.ConfigParams()); err != nil {
		return WithContext(err, "Instance: "+i.refName(), "Module: "+m.RefName())
	}
	i.target = m
	return nil
}

func (i *Instance) refName() string {
	return i.def.module.RefName() + "." + i.name
}

// AddInstance instantiates target. For a Module target, args bind its
// configuration params and are checked now. For a Generator target, args are
// generator arguments, checked when the generator is elaborated.
func (d *Definition) AddInstance(name string, target Instantiable, args Args) (*Instance, error) {
	if _, ok := target.(*Generator); ok {
		return d.AddConfiguredInstance(name, target, args, nil)
	}
	return d.AddConfiguredInstance(name, target, nil, args)
}

// AddConfiguredInstance instantiates target with explicit generator and
// configuration arguments.
func (d *Definition) AddConfiguredInstance(name string, target Instantiable, genArgs, config Args) (*Instance, error) {
	if name == "" || name == SelfName || strings.Contains(name, ".") {
		return nil, &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf("invalid instance name %q", name)}
	}
	if _, ok := d.instances[name]; ok {
		return nil, &Error{
			Code:    ErrCodeDuplicate,
			Message: "instance already defined: " + name,
			Context: []string{"Module: " + d.module.RefName()},
		}
	}
	if target == nil {
		return nil, &Error{Code: ErrCodeInvalid, Message: "instance " + name + " has no target"}
	}
	config = config.Clone()
	if err := CheckArgsAreParams(config, target.ConfigParams()); err != nil {
		return nil, WithContext(err, "Instance: "+d.module.RefName()+"."+name, "Target: "+target.RefName())
	}
	inst := &Instance{
		name:    name,
		def:     d,
		target:  target,
		genArgs: genArgs.Clone(),
		config:  config,
	}
	d.instances[name] = inst
	return inst, nil
}

// Instance looks up an instance by name.
func (d *Definition) Instance(name string) (*Instance, error) {
	inst, ok := d.instances[name]
	if !ok {
		return nil, &Error{
			Code:    ErrCodeLookup,
			Message: "could not find instance in definition",
			Context: []string{"Instance: " + name, "Module: " + d.module.RefName()},
		}
	}
	return inst, nil
}

// Instances returns every instance ordered by name.
func (d *Definition) Instances() []*Instance {
	out := make([]*Instance, 0, len(d.instances))
	for _, inst := range d.instances {
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b *Instance) int { return strings.Compare(a.name, b.name) })
	return out
}

// NumInstances returns the number of instances.
func (d *Definition) NumInstances() int { return len(d.instances) }

// RemoveInstance deletes an instance and every connection touching it.
func (d *Definition) RemoveInstance(name string) error {
	if _, ok := d.instances[name]; !ok {
		return &Error{
			Code:    ErrCodeLookup,
			Message: "could not find instance in definition",
			Context: []string{"Instance: " + name, "Module: " + d.module.RefName()},
		}
	}
	delete(d.instances, name)
	d.connections = slices.DeleteFunc(d.connections, func(c Connection) bool {
		return c.A.Root() == name || c.B.Root() == name
	})
	return nil
}

// SelectPath addresses a port: the root is "self" or an instance name,
// followed by field names or array indices.
type SelectPath []string

// ParseSelectPath splits "a0.out.3" on dots.
func ParseSelectPath(s string) (SelectPath, error) {
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf("invalid select path %q", s)}
		}
	}
	return SelectPath(parts), nil
}

// Root returns the first element.
func (p SelectPath) Root() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

func (p SelectPath) String() string { return strings.Join(p, ".") }

// Connection joins two select paths.
type Connection struct {
	A SelectPath
	B SelectPath
}

// Connect wires two select paths. Both roots must be "self" or an existing
// instance. Connections are stored with the lexically smaller path first.
func (d *Definition) Connect(a, b string) error {
	pa, err := ParseSelectPath(a)
	if err != nil {
		return err
	}
	pb, err := ParseSelectPath(b)
	if err != nil {
		return err
	}
	for _, p := range []SelectPath{pa, pb} {
		if p.Root() == SelfName {
			continue
		}
		if _, ok := d.instances[p.Root()]; !ok {
			return &Error{
				Code:    ErrCodeLookup,
				Message: "connection references unknown instance " + p.Root(),
				Context: []string{"Path: " + p.String(), "Module: " + d.module.RefName()},
			}
		}
	}
	if pb.String() < pa.String() {
		pa, pb = pb, pa
	}
	d.connections = append(d.connections, Connection{A: pa, B: pb})
	return nil
}

// Connections returns the connections ordered by their printed form.
func (d *Definition) Connections() []Connection {
	out := slices.Clone(d.connections)
	slices.SortFunc(out, func(x, y Connection) int {
		if c := strings.Compare(x.A.String(), y.A.String()); c != 0 {
			return c
		}
		return strings.Compare(x.B.String(), y.B.String())
	})
	return out
}

// WithContext appends context lines to an *Error, or wraps other errors as
// INVALID_IR.
func WithContext(err error, lines ...string) error {
	var e *Error
	if errors.As(err, &e) {
		e.Context = append(e.Context, lines...)
		return err
	}
	return &Error{Code: ErrCodeInvalid, Message: err.Error(), Context: lines, Err: err}
}
