// Package loader builds IR from CUE design files.
//
// A design declares namespaces and the modules inside them:
//
//	top: "global.Top"
//	namespace: global: module: {
//		Top: {
//			ports: {
//				in:  {dir: "in", width: 8}
//				out: {dir: "out", width: 8}
//			}
//			instances: {
//				a0: {ref: "core.add", args: {width: 8}}
//			}
//			connections: [["self.in", "a0.in0"], ["a0.out", "self.out"]]
//		}
//	}
//
// Loading runs in two phases: every module is declared first, then instances
// and connections are added, so modules may reference each other in any
// order and across namespaces.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/hwir/internal/ir"
)

// Error is a design error with the CUE source position, when known.
type Error struct {
	Path    string // CUE path of the offending value, e.g. "namespace.global.module.Top"
	Message string
	Pos     token.Pos
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Design is the result of loading.
type Design struct {
	Context    *ir.Context
	Namespaces []*ir.Namespace // in declaration order
	Top        *ir.Module      // nil when the design names no top
	Files      int
}

// LoadDir loads every CUE file of the package in dir into c.
func LoadDir(c *ir.Context, dir string) (*Design, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("design directory: %v", err), Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Message: "not a directory: " + dir}
	}
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("scanning %s: %v", dir, err), Err: err}
	}
	if len(files) == 0 {
		return nil, &Error{Message: "no CUE files found in " + dir}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("design directory: %v", err), Err: err}
	}
	instances := load.Instances([]string{"."}, &load.Config{Dir: abs})
	if len(instances) == 0 {
		return nil, &Error{Message: "no CUE instances loaded"}
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	v := cuecontext.New().BuildInstance(instances[0])
	d, err := Build(c, v)
	if err != nil {
		return nil, err
	}
	d.Files = len(files)
	return d, nil
}

// LoadString compiles src as a single CUE file named filename.
func LoadString(c *ir.Context, filename, src string) (*Design, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	d, err := Build(c, v)
	if err != nil {
		return nil, err
	}
	d.Files = 1
	return d, nil
}

// FindCUEFiles walks dir and returns every .cue file path outside cue.mod.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && info.Name() == "cue.mod" {
			return filepath.SkipDir
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

type pendingModule struct {
	mod *ir.Module
	ns  *ir.Namespace
	v   cue.Value
}

// Build adds the design in v to c.
func Build(c *ir.Context, v cue.Value) (*Design, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	d := &Design{Context: c}

	nsVal := v.LookupPath(cue.ParsePath("namespace"))
	if !nsVal.Exists() {
		return nil, &Error{Path: "namespace", Message: "design declares no namespace", Pos: v.Pos()}
	}
	nsIter, err := nsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var pending []pendingModule
	for nsIter.Next() {
		name := nsIter.Label()
		ns, err := namespaceFor(c, name)
		if err != nil {
			return nil, wrap(nsIter.Value(), err)
		}
		d.Namespaces = append(d.Namespaces, ns)

		modVal := nsIter.Value().LookupPath(cue.ParsePath("module"))
		if !modVal.Exists() {
			continue
		}
		modIter, err := modVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for modIter.Next() {
			m, err := declareModule(ns, modIter.Label(), modIter.Value())
			if err != nil {
				return nil, err
			}
			pending = append(pending, pendingModule{mod: m, ns: ns, v: modIter.Value()})
		}
	}

	for _, p := range pending {
		if err := defineModule(c, p); err != nil {
			return nil, err
		}
	}

	if topVal := v.LookupPath(cue.ParsePath("top")); topVal.Exists() {
		ref, err := topVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		inst, err := c.Resolve(ref)
		if err != nil {
			return nil, wrap(topVal, err)
		}
		top, ok := inst.(*ir.Module)
		if !ok {
			return nil, &Error{Path: "top", Message: ref + " is not a module", Pos: topVal.Pos()}
		}
		c.SetTop(top)
		d.Top = top
	}
	return d, nil
}

// namespaceFor returns the existing namespace name or creates it.
func namespaceFor(c *ir.Context, name string) (*ir.Namespace, error) {
	if ns, err := c.Namespace(name); err == nil {
		return ns, nil
	}
	return c.NewNamespace(name)
}

func declareModule(ns *ir.Namespace, name string, v cue.Value) (*ir.Module, error) {
	params := ir.Params{}
	if pv := v.LookupPath(cue.ParsePath("params")); pv.Exists() {
		iter, err := pv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			p, err := ir.ParseParam(s)
			if err != nil {
				return nil, wrap(iter.Value(), err)
			}
			params[iter.Label()] = p
		}
	}

	portsVal := v.LookupPath(cue.ParsePath("ports"))
	if !portsVal.Exists() {
		return nil, &Error{Path: v.Path().String(), Message: "ports are required", Pos: v.Pos()}
	}
	t, err := parseRecord(ns.Context(), portsVal)
	if err != nil {
		return nil, err
	}

	m, err := ns.NewModuleDecl(name, t, params)
	if err != nil {
		return nil, wrap(v, err)
	}
	return m, nil
}

// parseRecord reads {field: port, ...} into a record type.
func parseRecord(c *ir.Context, v cue.Value) (ir.Type, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var fields []ir.Field
	for iter.Next() {
		t, err := parsePort(c, iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, ir.F(iter.Label(), t))
	}
	return ir.Record(fields...), nil
}

// parsePort reads one port:
//
//	{dir: "in"|"out", width?: int, len?: int}  bits, Bit[width], Bit[width][len]
//	{named: "ns.name"}                         a named type
//	{record: {...}}                            a nested record
func parsePort(c *ir.Context, v cue.Value) (ir.Type, error) {
	if nv := v.LookupPath(cue.ParsePath("named")); nv.Exists() {
		ref, err := nv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		nsName, name, err := ir.SplitRef(ref)
		if err != nil {
			return nil, wrap(nv, err)
		}
		ns, err := c.Namespace(nsName)
		if err != nil {
			return nil, wrap(nv, err)
		}
		nt, err := ns.NamedType(name)
		if err != nil {
			return nil, wrap(nv, err)
		}
		return nt, nil
	}
	if rv := v.LookupPath(cue.ParsePath("record")); rv.Exists() {
		return parseRecord(c, rv)
	}

	dv := v.LookupPath(cue.ParsePath("dir"))
	if !dv.Exists() {
		return nil, &Error{Path: v.Path().String(), Message: "port needs dir, named or record", Pos: v.Pos()}
	}
	dir, err := dv.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var t ir.Type
	switch dir {
	case "in":
		t = ir.BitIn()
	case "out":
		t = ir.Bit()
	default:
		return nil, &Error{Path: dv.Path().String(), Message: fmt.Sprintf("dir must be \"in\" or \"out\", got %q", dir), Pos: dv.Pos()}
	}
	for _, dim := range []string{"width", "len"} {
		n, ok, err := optionalInt(v, dim)
		if err != nil {
			return nil, err
		}
		if ok {
			t = ir.Array(n, t)
		}
	}
	return t, nil
}

func optionalInt(v cue.Value, field string) (int, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, false, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	if n < 1 {
		return 0, false, &Error{Path: fv.Path().String(), Message: fmt.Sprintf("%s must be positive", field), Pos: fv.Pos()}
	}
	return int(n), true, nil
}

func defineModule(c *ir.Context, p pendingModule) error {
	instVal := p.v.LookupPath(cue.ParsePath("instances"))
	connVal := p.v.LookupPath(cue.ParsePath("connections"))
	if !instVal.Exists() && !connVal.Exists() {
		return nil
	}
	def := p.mod.NewDefinition()

	if instVal.Exists() {
		iter, err := instVal.Fields()
		if err != nil {
			return formatCUEError(err)
		}
		for iter.Next() {
			if err := addInstance(c, p.ns, def, iter.Label(), iter.Value()); err != nil {
				return err
			}
		}
	}

	if connVal.Exists() {
		list, err := connVal.List()
		if err != nil {
			return formatCUEError(err)
		}
		for list.Next() {
			var pair []string
			if err := list.Value().Decode(&pair); err != nil {
				return formatCUEError(err)
			}
			if len(pair) != 2 {
				return &Error{Path: list.Value().Path().String(), Message: "a connection is a pair of select paths", Pos: list.Value().Pos()}
			}
			if err := def.Connect(pair[0], pair[1]); err != nil {
				return wrap(list.Value(), err)
			}
		}
	}
	return nil
}

func addInstance(c *ir.Context, ns *ir.Namespace, def *ir.Definition, name string, v cue.Value) error {
	refVal := v.LookupPath(cue.ParsePath("ref"))
	ref, err := refVal.String()
	if err != nil {
		return formatCUEError(err)
	}
	target, err := resolve(c, ns, ref)
	if err != nil {
		return wrap(refVal, err)
	}

	args, err := parseArgs(c, v.LookupPath(cue.ParsePath("args")))
	if err != nil {
		return err
	}
	config, err := parseArgs(c, v.LookupPath(cue.ParsePath("config")))
	if err != nil {
		return err
	}

	if _, ok := target.(*ir.Generator); ok {
		_, err = def.AddConfiguredInstance(name, target, args, config)
	} else {
		if len(args) > 0 {
			return &Error{Path: v.Path().String(), Message: "args given for module " + target.RefName() + "; use config", Pos: v.Pos()}
		}
		_, err = def.AddConfiguredInstance(name, target, nil, config)
	}
	if err != nil {
		return wrap(v, err)
	}
	return nil
}

// resolve finds ref as "ns.name", or as a bare name in ns.
func resolve(c *ir.Context, ns *ir.Namespace, ref string) (ir.Instantiable, error) {
	if _, _, err := ir.SplitRef(ref); err == nil {
		return c.Resolve(ref)
	}
	return ns.Instantiable(ref)
}

// parseArgs reads {name: value} into Args. Ints, strings and bools map to
// the matching kinds; a struct is read as a port and becomes a type value.
func parseArgs(c *ir.Context, v cue.Value) (ir.Args, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	args := ir.Args{}
	for iter.Next() {
		av := iter.Value()
		var val ir.Value
		switch av.IncompleteKind() {
		case cue.IntKind:
			n, err := av.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			val = ir.Int(n)
		case cue.StringKind:
			s, err := av.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			val = ir.String(s)
		case cue.BoolKind:
			b, err := av.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
			val = ir.Bool(b)
		case cue.StructKind:
			t, err := parsePort(c, av)
			if err != nil {
				return nil, err
			}
			val = ir.TypeValue{T: t}
		case cue.FloatKind, cue.NumberKind:
			return nil, &Error{Path: av.Path().String(), Message: "float arguments are not supported, use int", Pos: av.Pos()}
		default:
			return nil, &Error{Path: av.Path().String(), Message: fmt.Sprintf("unsupported argument kind %v", av.IncompleteKind()), Pos: av.Pos()}
		}
		args[iter.Label()] = val
	}
	return args, nil
}

// wrap attaches the position of v to an IR error.
func wrap(v cue.Value, err error) error {
	return &Error{Path: v.Path().String(), Message: err.Error(), Pos: v.Pos(), Err: err}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error(), Err: err}
	}
	first := errs[0]
	e := &Error{Message: first.Error(), Err: err}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
