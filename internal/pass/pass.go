package pass

import (
	"fmt"
	"io"
	"slices"

	"github.com/roach88/hwir/internal/ir"
)

// Kind is the closed set of pass shapes the Manager dispatches on.
type Kind int

const (
	// KindNamespace runs once per namespace with unrestricted mutation rights.
	KindNamespace Kind = iota
	// KindModule runs once per module and may only mutate that module.
	KindModule
	// KindInstanceGraph runs once per instance-graph node, callees first.
	KindInstanceGraph
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "namespace"
	case KindModule:
		return "module"
	case KindInstanceGraph:
		return "instancegraph"
	}
	return "unknown"
}

// Pass is implemented by every pass. It is sealed: the only way to satisfy it
// is to embed Base, which also carries the id, dependencies and the back
// pointer to the owning Manager.
//
// A pass additionally implements exactly one of NamespacePass, ModulePass or
// InstanceGraphPass; Register rejects anything else.
type Pass interface {
	ID() string
	Description() string
	IsAnalysis() bool
	Dependencies() []string
	Preserved() []string

	// ReleaseMemory drops cached results. It must be safe to call repeatedly.
	ReleaseMemory()

	base() *Base
}

// NamespacePass is free to add, remove or mutate anything in the namespace.
type NamespacePass interface {
	Pass
	RunOnNamespace(rc *RunContext, ns *ir.Namespace) (bool, error)
}

// ModulePass is run on every module of the namespace. It may read sibling
// modules but must only mutate the module it is given.
type ModulePass interface {
	Pass
	RunOnModule(rc *RunContext, m *ir.Module) (bool, error)
}

// InstanceGraphPass visits instance-graph nodes bottom up: a node is visited
// only after every Instantiable it instantiates. Generator nodes and nodes
// linked from other namespaces are visited too.
type InstanceGraphPass interface {
	Pass
	RunOnInstanceGraphNode(rc *RunContext, node *InstanceGraphNode) (bool, error)
}

// Printer is implemented by passes that can dump their result.
type Printer interface {
	Print(w io.Writer) error
}

// Base carries the bookkeeping every pass needs. Embed it by value:
//
//	type MyPass struct {
//		pass.Base
//	}
//
//	func New() *MyPass {
//		return &MyPass{Base: pass.NewBase("mypass", "does things", false)}
//	}
type Base struct {
	id          string
	description string
	analysis    bool
	deps        []string
	preserves   []string
	pm          *Manager
}

// NewBase creates the embedded state for a pass. deps are resolved in order
// before the pass runs.
func NewBase(id, description string, analysis bool, deps ...string) Base {
	return Base{
		id:          id,
		description: description,
		analysis:    analysis,
		deps:        slices.Clone(deps),
	}
}

// ID returns the unique pass identifier.
func (b *Base) ID() string { return b.id }

// Description returns the one-line description.
func (b *Base) Description() string { return b.description }

// IsAnalysis reports whether the pass is read-only with a cacheable result.
func (b *Base) IsAnalysis() bool { return b.analysis }

// Dependencies returns the declared dependency ids in resolution order.
func (b *Base) Dependencies() []string { return slices.Clone(b.deps) }

// Preserves declares analyses that stay valid when this transform changes
// the IR. Everything else is released after a change.
func (b *Base) Preserves(ids ...string) {
	for _, id := range ids {
		if !slices.Contains(b.preserves, id) {
			b.preserves = append(b.preserves, id)
		}
	}
}

// Preserved returns the ids declared with Preserves.
func (b *Base) Preserved() []string { return slices.Clone(b.preserves) }

// ReleaseMemory is a no-op by default.
func (b *Base) ReleaseMemory() {}

// Manager returns the manager the pass is registered with, or nil.
func (b *Base) Manager() *Manager { return b.pm }

func (b *Base) base() *Base { return b }

// GetAnalysis returns the registered pass id as T, for use from inside p.
//
// id must be one of p's declared dependencies. Asking for anything else is a
// defect in p and panics with *UndeclaredDependencyError, even when the
// requested analysis happens to be cached from an earlier run.
func GetAnalysis[T Pass](p Pass, id string) T {
	b := p.base()
	if !slices.Contains(b.deps, id) {
		panic(&UndeclaredDependencyError{Pass: b.id, Dependency: id})
	}
	if b.pm == nil {
		panic(fmt.Sprintf("pass %s is not registered with a manager", b.id))
	}
	e, ok := b.pm.passes[id]
	if !ok {
		panic(fmt.Sprintf("pass %s depends on unregistered %s", b.id, id))
	}
	t, ok := e.pass.(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("pass %s: analysis %s is %T, not %T", b.id, id, e.pass, zero))
	}
	return t
}

// kindOf resolves the single kind p implements.
func kindOf(p Pass) (Kind, error) {
	var kinds []Kind
	if _, ok := p.(NamespacePass); ok {
		kinds = append(kinds, KindNamespace)
	}
	if _, ok := p.(ModulePass); ok {
		kinds = append(kinds, KindModule)
	}
	if _, ok := p.(InstanceGraphPass); ok {
		kinds = append(kinds, KindInstanceGraph)
	}
	if len(kinds) != 1 {
		return 0, &Error{
			Code:    ErrCodeInvalidPass,
			Message: fmt.Sprintf("pass must implement exactly one pass kind, implements %d", len(kinds)),
			Pass:    p.ID(),
		}
	}
	return kinds[0], nil
}
