package ir

// NamedType is a nominal type owned by a Namespace.
//
// Named types always exist in pairs with their flipped counterpart. Neither
// member owns the other: Flipped looks the counterpart up by name in the
// shared namespace table, and both die with the namespace.
type NamedType struct {
	ns       *Namespace
	name     string
	flipName string
	raw      Type

	// Set for named types produced by a nominal type generator.
	typeGen *TypeGen
	genArgs Args
}

func (*NamedType) isType() {}

// Name returns the type name.
func (t *NamedType) Name() string { return t.name }

// Namespace returns the owning namespace.
func (t *NamedType) Namespace() *Namespace { return t.ns }

// Raw returns the underlying structural type.
func (t *NamedType) Raw() Type { return t.raw }

// IsGenerated reports whether the type came from a type generator.
func (t *NamedType) IsGenerated() bool { return t.typeGen != nil }

// GenArgs returns the arguments a generated named type was built from.
func (t *NamedType) GenArgs() Args { return t.genArgs }

// Flipped returns the counterpart of the pair.
func (t *NamedType) Flipped() Type {
	if t.typeGen != nil {
		return t.ns.namedTypeGenCache[namedCacheKey(t.flipName, t.genArgs)]
	}
	return t.ns.namedTypes[t.flipName]
}

func (t *NamedType) String() string {
	s := t.ns.name + "." + t.name
	if t.typeGen != nil {
		s += t.genArgs.String()
	}
	return s
}

func namedCacheKey(name string, args Args) string {
	return name + args.Key()
}
