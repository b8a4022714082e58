package ir

import (
	"fmt"
	"slices"
	"strings"

	"fortio.org/safecast"
)

// Handle is the stable arena index of an Instantiable. Handles are never
// reused, so a handle kept in an analysis cache can never alias a newer entity.
type Handle uint32

// GlobalNamespace is the namespace every Context starts with.
const GlobalNamespace = "global"

// Context owns every Namespace and the arena of Instantiables.
type Context struct {
	namespaces map[string]*Namespace
	arena      []Instantiable // index = Handle; nil once removed
	top        *Module
}

// NewContext creates a Context holding an empty "global" namespace.
func NewContext() *Context {
	c := &Context{namespaces: make(map[string]*Namespace)}
	c.namespaces[GlobalNamespace] = newNamespace(c, GlobalNamespace)
	return c
}

// Global returns the "global" namespace.
func (c *Context) Global() *Namespace {
	return c.namespaces[GlobalNamespace]
}

// NewNamespace creates an empty namespace.
func (c *Context) NewNamespace(name string) (*Namespace, error) {
	if name == "" || strings.Contains(name, ".") {
		return nil, &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf("invalid namespace name %q", name)}
	}
	if _, ok := c.namespaces[name]; ok {
		return nil, &Error{Code: ErrCodeDuplicate, Message: "namespace already exists: " + name}
	}
	ns := newNamespace(c, name)
	c.namespaces[name] = ns
	return ns, nil
}

// Namespace looks up a namespace by name.
func (c *Context) Namespace(name string) (*Namespace, error) {
	ns, ok := c.namespaces[name]
	if !ok {
		return nil, &Error{
			Code:    ErrCodeLookup,
			Message: "could not find namespace",
			Context: []string{"Namespace: " + name},
		}
	}
	return ns, nil
}

// Namespaces returns every namespace ordered by name.
func (c *Context) Namespaces() []*Namespace {
	out := make([]*Namespace, 0, len(c.namespaces))
	for _, ns := range c.namespaces {
		out = append(out, ns)
	}
	slices.SortFunc(out, func(a, b *Namespace) int { return strings.Compare(a.name, b.name) })
	return out
}

// Resolve finds an Instantiable by qualified reference "ns.name".
func (c *Context) Resolve(ref string) (Instantiable, error) {
	nsName, name, err := SplitRef(ref)
	if err != nil {
		return nil, err
	}
	ns, err := c.Namespace(nsName)
	if err != nil {
		return nil, err
	}
	return ns.Instantiable(name)
}

// Lookup returns the Instantiable with handle h, or nil if it was removed.
func (c *Context) Lookup(h Handle) Instantiable {
	if int(h) >= len(c.arena) {
		return nil
	}
	return c.arena[h]
}

// SetTop marks m as the design root. Instance-graph construction starts there
// when it belongs to the namespace being analyzed.
func (c *Context) SetTop(m *Module) {
	c.top = m
}

// Top returns the design root, or nil.
func (c *Context) Top() *Module {
	return c.top
}

func (c *Context) alloc(i Instantiable) Handle {
	h, err := safecast.Conv[Handle](len(c.arena))
	if err != nil {
		panic(fmt.Errorf("instantiable handle overflow: %w", err))
	}
	c.arena = append(c.arena, i)
	return h
}

func (c *Context) release(h Handle) {
	if int(h) < len(c.arena) {
		c.arena[h] = nil
	}
	if c.top != nil && c.top.handle == h {
		c.top = nil
	}
}

// SplitRef splits "ns.name" into its parts.
func SplitRef(ref string) (string, string, error) {
	nsName, name, ok := strings.Cut(ref, ".")
	if !ok || nsName == "" || name == "" {
		return "", "", &Error{
			Code:    ErrCodeInvalid,
			Message: fmt.Sprintf("reference %q must have the form namespace.name", ref),
		}
	}
	return nsName, name, nil
}
