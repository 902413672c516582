package value

import (
	"github.com/sigil-lang/sigil/internal/typesystem"
)

// Coercion never mutates its operands; every result is a fresh value.
//
// Tag resolution:
//   - Static + Dynamic  -> the static operand's tag
//   - Dynamic + Dynamic -> Dynamic, tag resolved from the payloads
//   - Static + Static   -> equal tags, or a widening permitted by the lattice
//
// The resolved tag picks the dispatch row; the payloads must then actually
// convert to that row, which is where a dynamic "Hello" under an i32 result
// tag fails. Dynamic typing raises real type errors, it does not coerce
// everything.
//
// Integer arithmetic wraps at the width of the resolved tag; creation and
// reassignment stay range checked.

type infixFn func(op string, left, right Object) Object

// infixDispatch is the operator table, keyed by the family of the resolved
// tag pair. There is no host-native dynamic dispatch behind it.
var infixDispatch = map[typesystem.Family]infixFn{
	typesystem.FamSigned:   evalIntegerInfix,
	typesystem.FamUnsigned: evalIntegerInfix,
	typesystem.FamFloat:    evalFloatInfix,
	typesystem.FamString:   evalStringInfix,
	typesystem.FamBool:     evalBooleanInfix,
}

func comparisonOp(op string) bool {
	switch op {
	case "==", "!=", "<", ">", "<=", ">=":
		return true
	}
	return false
}

// Coerce resolves the operand pair per the rules above and applies operator.
func Coerce(a, b Value, operator string) (Value, *Error) {
	tag, err := resolveTag(a, b)
	if err != nil {
		return Value{}, err
	}

	fn, ok := infixDispatch[tag.Family()]
	if !ok {
		return Value{}, NewError(TypeMismatch,
			"operator %s is not defined for %s", operator, tag)
	}

	left, lerr := convertPayload(a, tag)
	if lerr != nil {
		return Value{}, lerr
	}
	right, rerr := convertPayload(b, tag)
	if rerr != nil {
		return Value{}, rerr
	}

	result := fn(operator, left, right)
	if e, isErr := AsError(result); isErr {
		return Value{}, e
	}

	dynamic := a.IsDynamic() && b.IsDynamic()
	resultTag := tag
	if comparisonOp(operator) {
		resultTag = typesystem.Bool
	}
	// Fixed-width arithmetic wraps to the resolved tag, so the result stays
	// representable under the tag it is stamped with.
	if n, isInt := result.(*Integer); isInt && resultTag.IsInteger() {
		if wrapped := typesystem.WrapInt(resultTag, n.Value); wrapped != n.Value {
			result = &Integer{Value: wrapped}
		}
	}
	if dynamic {
		return NewDynamic(result), nil
	}
	return NewStatic(resultTag, result), nil
}

func resolveTag(a, b Value) (typesystem.Tag, *Error) {
	switch {
	case !a.IsDynamic() && !b.IsDynamic():
		tag, ok := typesystem.Widen(a.Tag(), b.Tag())
		if !ok {
			return typesystem.Invalid, NewError(TypeMismatch,
				"no implicit coercion between %s and %s", a.Tag(), b.Tag())
		}
		return tag, nil
	case !a.IsDynamic():
		return a.Tag(), nil
	case !b.IsDynamic():
		return b.Tag(), nil
	default:
		// Both dynamic: resolve from the payloads themselves.
		ta, tb := a.Payload().NaturalTag(), b.Payload().NaturalTag()
		if ta == tb {
			return ta, nil
		}
		tag, ok := typesystem.Widen(ta, tb)
		if !ok {
			return typesystem.Invalid, NewError(TypeMismatch,
				"no implicit coercion between %s and %s", ta, tb)
		}
		return tag, nil
	}
}

// convertPayload materializes v's payload as a member of the resolved tag's
// family. This is the evaluation-time check that a dynamic payload is
// actually compatible with the operator's resolved row.
func convertPayload(v Value, tag typesystem.Tag) (Object, *Error) {
	p := v.Payload()
	switch tag.Family() {
	case typesystem.FamSigned, typesystem.FamUnsigned:
		if i, ok := p.(*Integer); ok {
			return i, nil
		}
	case typesystem.FamFloat:
		switch n := p.(type) {
		case *Float:
			return n, nil
		case *Integer:
			return &Float{Value: float64(n.Value)}, nil
		}
	case typesystem.FamString:
		if s, ok := p.(*String); ok {
			return s, nil
		}
	case typesystem.FamBool:
		if b, ok := p.(*Boolean); ok {
			return b, nil
		}
	}
	return nil, NewError(TypeMismatch,
		"runtime payload %s is incompatible with %s", p.Type(), tag)
}

func evalIntegerInfix(op string, left, right Object) Object {
	l := left.(*Integer).Value
	r := right.(*Integer).Value
	switch op {
	case "+":
		return &Integer{Value: l + r}
	case "-":
		return &Integer{Value: l - r}
	case "*":
		return &Integer{Value: l * r}
	case "/":
		if r == 0 {
			return NewError(DivisionByZero, "division by zero")
		}
		return &Integer{Value: l / r}
	case "%":
		if r == 0 {
			return NewError(DivisionByZero, "modulus by zero")
		}
		return &Integer{Value: l % r}
	case "==":
		return nativeBoolToBooleanObject(l == r)
	case "!=":
		return nativeBoolToBooleanObject(l != r)
	case "<":
		return nativeBoolToBooleanObject(l < r)
	case ">":
		return nativeBoolToBooleanObject(l > r)
	case "<=":
		return nativeBoolToBooleanObject(l <= r)
	case ">=":
		return nativeBoolToBooleanObject(l >= r)
	}
	return NewError(TypeMismatch, "unknown operator: INTEGER %s INTEGER", op)
}

func evalFloatInfix(op string, left, right Object) Object {
	l := left.(*Float).Value
	r := right.(*Float).Value
	switch op {
	case "+":
		return &Float{Value: l + r}
	case "-":
		return &Float{Value: l - r}
	case "*":
		return &Float{Value: l * r}
	case "/":
		if r == 0 {
			return NewError(DivisionByZero, "division by zero")
		}
		return &Float{Value: l / r}
	case "==":
		return nativeBoolToBooleanObject(l == r)
	case "!=":
		return nativeBoolToBooleanObject(l != r)
	case "<":
		return nativeBoolToBooleanObject(l < r)
	case ">":
		return nativeBoolToBooleanObject(l > r)
	case "<=":
		return nativeBoolToBooleanObject(l <= r)
	case ">=":
		return nativeBoolToBooleanObject(l >= r)
	}
	return NewError(TypeMismatch, "unknown operator: FLOAT %s FLOAT", op)
}

func evalStringInfix(op string, left, right Object) Object {
	l := left.(*String).Value
	r := right.(*String).Value
	switch op {
	case "+":
		return &String{Value: l + r}
	case "==":
		return nativeBoolToBooleanObject(l == r)
	case "!=":
		return nativeBoolToBooleanObject(l != r)
	case "<":
		return nativeBoolToBooleanObject(l < r)
	case ">":
		return nativeBoolToBooleanObject(l > r)
	case "<=":
		return nativeBoolToBooleanObject(l <= r)
	case ">=":
		return nativeBoolToBooleanObject(l >= r)
	}
	return NewError(TypeMismatch, "unknown operator: STRING %s STRING", op)
}

func evalBooleanInfix(op string, left, right Object) Object {
	l := left.(*Boolean).Value
	r := right.(*Boolean).Value
	switch op {
	case "&&":
		return nativeBoolToBooleanObject(l && r)
	case "||":
		return nativeBoolToBooleanObject(l || r)
	case "==":
		return nativeBoolToBooleanObject(l == r)
	case "!=":
		return nativeBoolToBooleanObject(l != r)
	}
	return NewError(TypeMismatch, "unknown operator: BOOLEAN %s BOOLEAN", op)
}

// Negate evaluates unary minus.
func Negate(v Value) (Value, *Error) {
	switch p := v.Payload().(type) {
	case *Integer:
		out := &Integer{Value: -p.Value}
		if v.IsDynamic() {
			return NewDynamic(out), nil
		}
		out.Value = typesystem.WrapInt(v.Tag(), out.Value)
		return NewStatic(v.Tag(), out), nil
	case *Float:
		out := &Float{Value: -p.Value}
		if v.IsDynamic() {
			return NewDynamic(out), nil
		}
		return NewStatic(v.Tag(), out), nil
	}
	return Value{}, NewError(TypeMismatch, "unknown operator: -%s", v.Payload().Type())
}

// Not evaluates logical negation.
func Not(v Value) (Value, *Error) {
	b, ok := v.Payload().(*Boolean)
	if !ok {
		return Value{}, NewError(TypeMismatch, "unknown operator: !%s", v.Payload().Type())
	}
	out := nativeBoolToBooleanObject(!b.Value)
	if v.IsDynamic() {
		return NewDynamic(out), nil
	}
	return NewStatic(typesystem.Bool, out), nil
}
