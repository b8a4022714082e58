package ir

// Linkage says who owns an Instantiable.
type Linkage int

const (
	// LinkNamespace: declared in and owned by a Namespace.
	LinkNamespace Linkage = iota
	// LinkGenerated: produced by elaborating a Generator; owned by the
	// generator's Namespace.
	LinkGenerated
	// LinkLocal: not registered in any Namespace yet.
	LinkLocal
)

func (l Linkage) String() string {
	switch l {
	case LinkNamespace:
		return "namespace"
	case LinkGenerated:
		return "generated"
	case LinkLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Instantiable is anything that can be the target of an Instance.
// Only *Module and *Generator implement it.
type Instantiable interface {
	Handle() Handle
	Name() string
	// Namespace returns the owner, or nil for local modules.
	Namespace() *Namespace
	// RefName returns "namespace.name".
	RefName() string
	Linkage() Linkage
	// ConfigParams are the per-instance configuration parameters.
	ConfigParams() Params
	isInstantiable()
}

type instantiable struct {
	ctx          *Context
	handle       Handle
	name         string
	ns           *Namespace
	linkage      Linkage
	configParams Params
}

func (i *instantiable) isInstantiable() {}

func (i *instantiable) Handle() Handle        { return i.handle }
func (i *instantiable) Name() string          { return i.name }
func (i *instantiable) Namespace() *Namespace { return i.ns }
func (i *instantiable) Linkage() Linkage      { return i.linkage }

func (i *instantiable) ConfigParams() Params {
	if i.configParams == nil {
		return Params{}
	}
	return i.configParams
}

func (i *instantiable) RefName() string {
	if i.ns == nil {
		return "<local>." + i.name
	}
	return i.ns.name + "." + i.name
}
