package ir

// TypeGenFunc computes a type from bound generator arguments.
type TypeGenFunc func(args Args) (Type, error)

// TypeGen is a named, parameterized type-computing function.
//
// Nominal type generators come in flip pairs: the flipped member runs the same
// function and flips the result. The pair references each other by name
// through the owning Namespace.
type TypeGen struct {
	ns       *Namespace
	name     string
	flipName string // "" unless nominal
	params   Params
	fun      TypeGenFunc
	flipped  bool
}

// Name returns the type generator name.
func (tg *TypeGen) Name() string { return tg.name }

// Namespace returns the owning namespace.
func (tg *TypeGen) Namespace() *Namespace { return tg.ns }

// Params returns the formal parameters.
func (tg *TypeGen) Params() Params { return tg.params }

// IsFlipped reports whether this is the flipped member of a nominal pair.
func (tg *TypeGen) IsFlipped() bool { return tg.flipped }

// FlipName returns the name of the counterpart, or "" for non-nominal generators.
func (tg *TypeGen) FlipName() string { return tg.flipName }

// Flipped returns the counterpart of a nominal pair, or nil.
func (tg *TypeGen) Flipped() *TypeGen {
	if tg.flipName == "" {
		return nil
	}
	return tg.ns.typeGens[tg.flipName]
}

// Run validates args against the params and computes the type.
func (tg *TypeGen) Run(args Args) (Type, error) {
	if err := CheckArgsAreParams(args, tg.params); err != nil {
		return nil, err
	}
	t, err := tg.fun(args)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeElaboration,
			Message: "type generator failed",
			Context: []string{"TypeGen: " + tg.ns.name + "." + tg.name, "Args: " + args.String()},
			Err:     err,
		}
	}
	if t == nil {
		return nil, &Error{
			Code:    ErrCodeElaboration,
			Message: "type generator returned no type",
			Context: []string{"TypeGen: " + tg.ns.name + "." + tg.name, "Args: " + args.String()},
		}
	}
	if tg.flipped {
		t = t.Flipped()
	}
	return t, nil
}
