package value

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/sigil-lang/sigil/internal/typesystem"
)

type ObjectType string

const (
	INTEGER_OBJ = "INTEGER"
	FLOAT_OBJ   = "FLOAT"
	STRING_OBJ  = "STRING"
	BOOLEAN_OBJ = "BOOLEAN"
	UNIT_OBJ    = "UNIT"
	RECORD_OBJ  = "RECORD"
	VECTOR_OBJ  = "VECTOR"
	ERROR_OBJ   = "ERROR"
)

// Object is a runtime payload. Typing discipline lives on Value, not here:
// the same *Integer payload can sit behind an i8 tag or a dyn tag.
type Object interface {
	Type() ObjectType
	Inspect() string
	// NaturalTag is the widest tag the payload inhabits on its own, used when
	// a dynamic value must resolve a tag at operation time.
	NaturalTag() typesystem.Tag
	Hash() uint32
}

// Helper for hashing strings
func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Integer carries every integer tag; range membership is checked at creation.
type Integer struct {
	Value int64
}

func (i *Integer) Type() ObjectType { return INTEGER_OBJ }
func (i *Integer) Inspect() string  { return fmt.Sprintf("%d", i.Value) }
func (i *Integer) NaturalTag() typesystem.Tag {
	return typesystem.I64
}
func (i *Integer) Hash() uint32 {
	return uint32(i.Value ^ (i.Value >> 32))
}

// Float
type Float struct {
	Value float64
}

func (f *Float) Type() ObjectType { return FLOAT_OBJ }
func (f *Float) Inspect() string  { return fmt.Sprintf("%g", f.Value) }
func (f *Float) NaturalTag() typesystem.Tag {
	return typesystem.F64
}
func (f *Float) Hash() uint32 {
	return uint32(int64(f.Value) ^ (int64(f.Value) >> 32))
}

// String
type String struct {
	Value string
}

func (s *String) Type() ObjectType { return STRING_OBJ }
func (s *String) Inspect() string  { return fmt.Sprintf("%q", s.Value) }
func (s *String) NaturalTag() typesystem.Tag {
	return typesystem.String
}
func (s *String) Hash() uint32 { return hashString(s.Value) }

// Boolean
type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ObjectType { return BOOLEAN_OBJ }
func (b *Boolean) Inspect() string  { return fmt.Sprintf("%t", b.Value) }
func (b *Boolean) NaturalTag() typesystem.Tag {
	return typesystem.Bool
}
func (b *Boolean) Hash() uint32 {
	if b.Value {
		return 1
	}
	return 0
}

// Unit (for statements and functions that produce no value)
type Unit struct{}

func (u *Unit) Type() ObjectType { return UNIT_OBJ }
func (u *Unit) Inspect() string  { return "()" }
func (u *Unit) NaturalTag() typesystem.Tag {
	return typesystem.Unit
}
func (u *Unit) Hash() uint32 { return 0 }

// Record is an ordered field bag; actor state is one of these.
type Record struct {
	Order  []string
	Fields map[string]Value
}

func (r *Record) Type() ObjectType { return RECORD_OBJ }
func (r *Record) Inspect() string {
	var b strings.Builder
	b.WriteString("{")
	for i, name := range r.Order {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", name, r.Fields[name].Inspect())
	}
	b.WriteString("}")
	return b.String()
}
func (r *Record) NaturalTag() typesystem.Tag {
	return typesystem.Record
}
func (r *Record) Hash() uint32 {
	h := uint32(2166136261)
	for _, name := range r.Order {
		h = h*16777619 ^ hashString(name)
	}
	return h
}

// Vector is an ordered element list. Elements keep their own tags, so a
// vector can mix payload kinds; indexing is bounds checked at read time.
type Vector struct {
	Elements []Value
}

func (v *Vector) Type() ObjectType { return VECTOR_OBJ }
func (v *Vector) Inspect() string {
	var b strings.Builder
	b.WriteString("[")
	for i, el := range v.Elements {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(el.Inspect())
	}
	b.WriteString("]")
	return b.String()
}
func (v *Vector) NaturalTag() typesystem.Tag {
	return typesystem.Vec
}
func (v *Vector) Hash() uint32 {
	h := uint32(2166136261)
	for _, el := range v.Elements {
		h = h*16777619 ^ el.Payload().Hash()
	}
	return h
}

var (
	TRUE  = &Boolean{Value: true}
	FALSE = &Boolean{Value: false}
	UNIT  = &Unit{}
)

func nativeBoolToBooleanObject(b bool) *Boolean {
	if b {
		return TRUE
	}
	return FALSE
}
