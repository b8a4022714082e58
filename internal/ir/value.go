package ir

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Param is the kind of one formal configuration or generator argument.
type Param int

const (
	ParamInt Param = iota
	ParamString
	ParamType
	ParamBool
)

// String returns the textual form used in params dumps ("int", "string", ...).
func (p Param) String() string {
	switch p {
	case ParamInt:
		return "int"
	case ParamString:
		return "string"
	case ParamType:
		return "type"
	case ParamBool:
		return "bool"
	default:
		return "NYI"
	}
}

// ParseParam converts "int", "string", "type" or "bool" to a Param.
func ParseParam(s string) (Param, error) {
	switch s {
	case "int":
		return ParamInt, nil
	case "string":
		return ParamString, nil
	case "type":
		return ParamType, nil
	case "bool":
		return ParamBool, nil
	default:
		return 0, fmt.Errorf("cannot convert %q to Param", s)
	}
}

// Params is a name-keyed set of formal parameters.
type Params map[string]Param

// SortedKeys returns parameter names in lexical order.
func (p Params) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// String renders params as "(a:int,b:string)".
func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.SortedKeys() {
		parts = append(parts, k+":"+p[k].String())
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Value is a sealed interface for bound argument values.
// Only Int, String, Bool and TypeValue implement it.
type Value interface {
	// Kind reports which Param kind this value satisfies.
	Kind() Param
	String() string
	irValue() // Sealed
}

// Int is an integer argument.
type Int int64

func (Int) irValue()         {}
func (Int) Kind() Param      { return ParamInt }
func (v Int) String() string { return strconv.FormatInt(int64(v), 10) }

// String is a string argument.
type String string

func (String) irValue()         {}
func (String) Kind() Param      { return ParamString }
func (v String) String() string { return string(v) }

// Bool is a boolean argument.
type Bool bool

func (Bool) irValue()         {}
func (Bool) Kind() Param      { return ParamBool }
func (v Bool) String() string { return strconv.FormatBool(bool(v)) }

// TypeValue is a type-reference argument. It holds the Type, it does not own it.
type TypeValue struct {
	T Type
}

func (TypeValue) irValue()    {}
func (TypeValue) Kind() Param { return ParamType }

func (v TypeValue) String() string {
	if v.T == nil {
		return "<nil>"
	}
	return v.T.String()
}

// ValuesEqual compares kind and underlying datum.
func ValuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if at, ok := a.(TypeValue); ok {
		return TypesEqual(at.T, b.(TypeValue).T)
	}
	return a == b
}

// Args is a name-keyed set of bound argument values.
type Args map[string]Value

// SortedKeys returns argument names in lexical order.
func (a Args) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// String renders args as "(width:8,name:foo)".
func (a Args) String() string {
	parts := make([]string, 0, len(a))
	for _, k := range a.SortedKeys() {
		parts = append(parts, k+":"+a[k].String())
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// Equal reports structural equality: same key set, equal values per key.
func (a Args) Equal(b Args) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !ValuesEqual(av, bv) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy. Values are immutable so sharing them is safe.
func (a Args) Clone() Args {
	if a == nil {
		return Args{}
	}
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Key returns a canonical string usable as a map key. Two Args have the same
// key iff they are Equal; strings are compared byte-wise, not normalized.
func (a Args) Key() string {
	data, err := marshalExact(a)
	if err != nil {
		// Only nil values can fail and those are rejected at bind time.
		panic(fmt.Errorf("args key: %w", err))
	}
	return string(data)
}

// CheckArgsAreParams verifies that args bind exactly the formal params:
// same key set and matching kind per key.
func CheckArgsAreParams(args Args, params Params) error {
	dump := []string{"Args: " + args.String(), "Params: " + params.String()}
	if len(args) != len(params) {
		return &Error{
			Code:    ErrCodeConfig,
			Message: "args and params are not the same",
			Context: dump,
		}
	}
	for _, name := range params.SortedKeys() {
		arg, ok := args[name]
		if !ok || arg == nil {
			return &Error{
				Code:    ErrCodeConfig,
				Message: "arg not found: " + name,
				Context: dump,
			}
		}
		if arg.Kind() != params[name] {
			return &Error{
				Code:    ErrCodeConfig,
				Message: fmt.Sprintf("param type mismatch for %s: want %s, got %s", name, params[name], arg.Kind()),
				Context: dump,
			}
		}
	}
	return nil
}
