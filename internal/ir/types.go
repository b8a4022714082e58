package ir

import (
	"fmt"
	"strings"
)

// Type is a sealed interface for port types.
//
// Only the subset of the type algebra needed to describe module ports and to
// bind generator arguments lives here: bits, arrays, records and named types.
type Type interface {
	// Flipped returns the direction-reversed type.
	Flipped() Type
	String() string
	isType()
}

// Dir is the direction of a bit as seen from inside the module.
type Dir int

const (
	DirOut Dir = iota // Bit
	DirIn             // BitIn
)

// BitType is a single wire.
type BitType struct {
	Dir Dir
}

func (BitType) isType() {}

// Flipped swaps Bit and BitIn.
func (t BitType) Flipped() Type {
	if t.Dir == DirOut {
		return BitType{Dir: DirIn}
	}
	return BitType{Dir: DirOut}
}

func (t BitType) String() string {
	if t.Dir == DirIn {
		return "BitIn"
	}
	return "Bit"
}

// ArrayType is a fixed-length array of one element type.
type ArrayType struct {
	Len  int
	Elem Type
}

func (ArrayType) isType() {}

func (t ArrayType) Flipped() Type {
	return ArrayType{Len: t.Len, Elem: t.Elem.Flipped()}
}

func (t ArrayType) String() string {
	return fmt.Sprintf("%s[%d]", t.Elem.String(), t.Len)
}

// Field is one named member of a record. Record fields keep declaration order.
type Field struct {
	Name string
	Type Type
}

// RecordType is an ordered set of named fields.
type RecordType struct {
	Fields []Field
}

func (RecordType) isType() {}

func (t RecordType) Flipped() Type {
	fields := make([]Field, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = Field{Name: f.Name, Type: f.Type.Flipped()}
	}
	return RecordType{Fields: fields}
}

func (t RecordType) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Field returns the type of the named field.
func (t RecordType) Field(name string) (Type, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// Bit returns the output bit type.
func Bit() Type { return BitType{Dir: DirOut} }

// BitIn returns the input bit type.
func BitIn() Type { return BitType{Dir: DirIn} }

// Array returns an array of n elements of elem.
func Array(n int, elem Type) Type { return ArrayType{Len: n, Elem: elem} }

// Record returns a record with the given fields in order.
func Record(fields ...Field) Type { return RecordType{Fields: fields} }

// F is shorthand for a record Field.
func F(name string, t Type) Field { return Field{Name: name, Type: t} }

// TypesEqual reports structural equality. Named types compare by namespace
// and name since each name denotes exactly one type.
func TypesEqual(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch at := a.(type) {
	case BitType:
		bt, ok := b.(BitType)
		return ok && at.Dir == bt.Dir
	case ArrayType:
		bt, ok := b.(ArrayType)
		return ok && at.Len == bt.Len && TypesEqual(at.Elem, bt.Elem)
	case RecordType:
		bt, ok := b.(RecordType)
		if !ok || len(at.Fields) != len(bt.Fields) {
			return false
		}
		for i := range at.Fields {
			if at.Fields[i].Name != bt.Fields[i].Name || !TypesEqual(at.Fields[i].Type, bt.Fields[i].Type) {
				return false
			}
		}
		return true
	case *NamedType:
		bt, ok := b.(*NamedType)
		return ok && at.ns == bt.ns && at.name == bt.name && at.genArgs.Equal(bt.genArgs)
	default:
		return false
	}
}
