package value

import (
	"github.com/sigil-lang/sigil/internal/typesystem"
)

// Value pairs a payload with its typing discipline. A static value's tag is
// fixed at creation and never changes; a dynamic value's tag follows whatever
// payload it currently holds.
type Value struct {
	tag     typesystem.Tag
	dynamic bool
	payload Object
}

// Zero is the unit value under the unit tag.
var Zero = Value{tag: typesystem.Unit, payload: UNIT}

func NewStatic(tag typesystem.Tag, payload Object) Value {
	return Value{tag: tag, payload: payload}
}

func NewDynamic(payload Object) Value {
	return Value{tag: payload.NaturalTag(), dynamic: true, payload: payload}
}

func (v Value) Tag() typesystem.Tag { return v.tag }
func (v Value) IsDynamic() bool     { return v.dynamic }
func (v Value) Payload() Object     { return v.payload }

func (v Value) Inspect() string {
	if v.payload == nil {
		return "()"
	}
	return v.payload.Inspect()
}

// TypeOf is pure: it reports the current tag without touching the payload.
func TypeOf(v Value) typesystem.Tag { return v.tag }

// Create constructs a value from a literal under a declared type. The dynamic
// marker accepts any literal; a concrete static type rejects literals it
// cannot represent.
func Create(declared typesystem.Tag, literal Object) (Value, *Error) {
	if IsError(literal) {
		return Value{}, literal.(*Error)
	}
	if declared == typesystem.Dyn {
		return NewDynamic(literal), nil
	}
	if !declared.Known() {
		return Value{}, NewError(TypeMismatch, "unknown type %q", declared)
	}

	switch lit := literal.(type) {
	case *Integer:
		if declared.IsInteger() {
			if !typesystem.FitsInt(declared, lit.Value) {
				return Value{}, NewError(TypeMismatch,
					"literal %d does not fit in %s", lit.Value, declared)
			}
			return NewStatic(declared, lit), nil
		}
		if declared.IsFloat() {
			// Integer literals inhabit float types by promotion.
			return NewStatic(declared, &Float{Value: float64(lit.Value)}), nil
		}
	case *Float:
		if declared.IsFloat() {
			return NewStatic(declared, lit), nil
		}
	case *String:
		if declared == typesystem.String {
			return NewStatic(declared, lit), nil
		}
	case *Boolean:
		if declared == typesystem.Bool {
			return NewStatic(declared, lit), nil
		}
	case *Unit:
		if declared == typesystem.Unit {
			return NewStatic(declared, lit), nil
		}
	case *Record:
		if declared == typesystem.Record {
			return NewStatic(declared, lit), nil
		}
	case *Vector:
		if declared == typesystem.Vec {
			return NewStatic(declared, lit), nil
		}
	}
	return Value{}, NewError(TypeMismatch,
		"cannot represent %s literal as %s", literal.Type(), declared)
}

// Reassign produces the value v becomes when bound to a new payload. Dynamic
// values retag; static values require the payload to stay representable.
func Reassign(v Value, payload Object) (Value, *Error) {
	if IsError(payload) {
		return Value{}, payload.(*Error)
	}
	if v.dynamic {
		return NewDynamic(payload), nil
	}
	return Create(v.tag, payload)
}
