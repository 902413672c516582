package evaluator

import (
	"github.com/sigil-lang/sigil/internal/ast"
	"github.com/sigil-lang/sigil/internal/ownership"
	"github.com/sigil-lang/sigil/internal/typesystem"
	"github.com/sigil-lang/sigil/internal/value"
)

func (e *Evaluator) evalExpression(expr ast.Expression, env *Environment) (any, *value.Error) {
	switch n := expr.(type) {
	case *ast.IntegerLiteral:
		return value.NewStatic(typesystem.I64, &value.Integer{Value: n.Value}), nil
	case *ast.FloatLiteral:
		return value.NewStatic(typesystem.F64, &value.Float{Value: n.Value}), nil
	case *ast.StringLiteral:
		return value.NewStatic(typesystem.String, &value.String{Value: n.Value}), nil
	case *ast.BooleanLiteral:
		if n.Value {
			return value.NewStatic(typesystem.Bool, value.TRUE), nil
		}
		return value.NewStatic(typesystem.Bool, value.FALSE), nil
	case *ast.UnitLiteral:
		return value.Zero, nil
	case *ast.RecordLiteral:
		return e.evalRecordLiteral(n, env)
	case *ast.VectorLiteral:
		return e.evalVectorLiteral(n, env)
	case *ast.IndexExpression:
		return e.evalIndex(n, env)
	case *ast.Identifier:
		return e.evalIdentifier(n, env)
	case *ast.PrefixExpression:
		return e.evalPrefix(n, env)
	case *ast.InfixExpression:
		return e.evalInfix(n, env)
	case *ast.IfExpression:
		return e.evalIf(n, env)
	case *ast.FunctionLiteral:
		return &Function{Params: n.Params, Body: n.Body, Env: env, Async: n.Async}, nil
	case *ast.CallExpression:
		return e.evalCall(n, env)
	case *ast.MethodCallExpression:
		return e.evalMethodCall(n, env)
	case *ast.FieldExpression:
		return e.evalField(n, env)
	case *ast.AwaitExpression:
		return e.evalAwait(n, env)
	}
	line, col := expr.Pos()
	return nil, value.NewErrorAt(value.TypeMismatch, line, col, "cannot evaluate %T", expr)
}

// evalIdentifier returns the binding as stored: values copy out, ownership
// handles and runtime objects come back raw for the caller to dispatch on.
func (e *Evaluator) evalIdentifier(id *ast.Identifier, env *Environment) (any, *value.Error) {
	if raw, ok := env.Get(id.Name); ok {
		return raw, nil
	}
	if b, ok := builtins[id.Name]; ok {
		return b, nil
	}
	return nil, e.unboundError(id)
}

func (e *Evaluator) evalRecordLiteral(rl *ast.RecordLiteral, env *Environment) (any, *value.Error) {
	rec := &value.Record{Fields: make(map[string]value.Value, len(rl.Names))}
	for i, name := range rl.Names {
		v, err := e.evalValue(rl.Values[i], env)
		if err != nil {
			return nil, err
		}
		rec.Order = append(rec.Order, name)
		rec.Fields[name] = v
	}
	return value.NewStatic(typesystem.Record, rec), nil
}

func (e *Evaluator) evalVectorLiteral(vl *ast.VectorLiteral, env *Environment) (any, *value.Error) {
	elems := make([]value.Value, 0, len(vl.Elements))
	for _, el := range vl.Elements {
		v, err := e.evalValue(el, env)
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	return value.NewStatic(typesystem.Vec, &value.Vector{Elements: elems}), nil
}

// evalIndex reads a vector element by integer position. An index outside the
// vector is an error, not unit.
func (e *Evaluator) evalIndex(ix *ast.IndexExpression, env *Environment) (any, *value.Error) {
	target, err := e.evalValue(ix.Target, env)
	if err != nil {
		return nil, err
	}
	idx, err := e.evalValue(ix.Index, env)
	if err != nil {
		return nil, err
	}
	line, col := ix.Pos()
	vec, ok := target.Payload().(*value.Vector)
	if !ok {
		return nil, value.NewErrorAt(value.TypeMismatch, line, col,
			"%s is not indexable", target.Tag())
	}
	n, ok := idx.Payload().(*value.Integer)
	if !ok {
		return nil, value.NewErrorAt(value.TypeMismatch, line, col,
			"index must be an integer, got %s", idx.Tag())
	}
	if n.Value < 0 || n.Value >= int64(len(vec.Elements)) {
		return nil, value.NewErrorAt(value.TypeMismatch, line, col,
			"index %d out of bounds for %d elements", n.Value, len(vec.Elements))
	}
	return vec.Elements[n.Value], nil
}

func (e *Evaluator) evalPrefix(pe *ast.PrefixExpression, env *Environment) (any, *value.Error) {
	right, err := e.evalValue(pe.Right, env)
	if err != nil {
		return nil, err
	}
	switch pe.Operator {
	case "-":
		v, nerr := value.Negate(right)
		return retag(v, nerr, pe)
	case "!":
		v, nerr := value.Not(right)
		return retag(v, nerr, pe)
	}
	line, col := pe.Pos()
	return nil, value.NewErrorAt(value.TypeMismatch, line, col,
		"unknown prefix operator %q", pe.Operator)
}

func (e *Evaluator) evalInfix(ie *ast.InfixExpression, env *Environment) (any, *value.Error) {
	left, err := e.evalValue(ie.Left, env)
	if err != nil {
		return nil, err
	}
	right, err := e.evalValue(ie.Right, env)
	if err != nil {
		return nil, err
	}
	v, cerr := value.Coerce(left, right, ie.Operator)
	return retag(v, cerr, ie)
}

// retag stamps the failing expression's position onto a coercion error.
func retag(v value.Value, err *value.Error, at ast.Node) (any, *value.Error) {
	if err != nil {
		line, col := at.Pos()
		if err.Line == 0 {
			err.Line, err.Column = line, col
		}
		return nil, err
	}
	return v, nil
}

func (e *Evaluator) evalIf(ie *ast.IfExpression, env *Environment) (any, *value.Error) {
	cond, err := e.evalValue(ie.Condition, env)
	if err != nil {
		return nil, err
	}
	ok, err := truthy(cond, ie.Condition)
	if err != nil {
		return nil, err
	}
	if ok {
		return e.evalBlock(ie.Then, env)
	}
	if ie.Else != nil {
		return e.evalBlock(ie.Else, env)
	}
	return value.Zero, nil
}

func (e *Evaluator) evalField(fe *ast.FieldExpression, env *Environment) (any, *value.Error) {
	recv, err := e.evalExpression(fe.Receiver, env)
	if err != nil {
		return nil, err
	}
	line, col := fe.Pos()
	switch r := recv.(type) {
	case *ChannelPair:
		switch fe.Field {
		case "sender":
			return r.Sender, nil
		case "receiver":
			return r.Receiver, nil
		}
		return nil, value.NewErrorAt(value.TypeMismatch, line, col,
			"channel has no field %q", fe.Field)
	case value.Value:
		return recordField(r, fe.Field, line, col)
	case *ownership.Shared:
		cur, gerr := r.Get()
		if gerr != nil {
			return nil, gerr
		}
		return recordField(cur, fe.Field, line, col)
	case *ownership.Unique:
		cur, gerr := r.Get()
		if gerr != nil {
			return nil, gerr
		}
		return recordField(cur, fe.Field, line, col)
	}
	return nil, value.NewErrorAt(value.TypeMismatch, line, col,
		"%T has no fields", recv)
}

func recordField(v value.Value, field string, line, col int) (any, *value.Error) {
	rec, ok := v.Payload().(*value.Record)
	if !ok {
		return nil, value.NewErrorAt(value.TypeMismatch, line, col,
			"%s has no fields", v.Tag())
	}
	fv, ok := rec.Fields[field]
	if !ok {
		return nil, value.NewErrorAt(value.TypeMismatch, line, col,
			"record has no field %q", field)
	}
	return fv, nil
}

func (e *Evaluator) evalCall(ce *ast.CallExpression, env *Environment) (any, *value.Error) {
	callee, err := e.evalExpression(ce.Function, env)
	if err != nil {
		return nil, err
	}
	switch fn := callee.(type) {
	case Builtin:
		return fn(e, env, ce)
	case *Function:
		if fn.Async {
			return e.spawnCall(fn, ce, env)
		}
		args, aerr := e.evalArgs(ce.Arguments, env)
		if aerr != nil {
			return nil, aerr
		}
		v, aerr := e.applyFunction(fn, args)
		if aerr != nil {
			return nil, aerr
		}
		return v, nil
	case *ActorDef:
		return e.spawnActor(fn, env)
	}
	line, col := ce.Pos()
	return nil, value.NewErrorAt(value.TypeMismatch, line, col,
		"%T is not callable", callee)
}

func (e *Evaluator) evalArgs(exprs []ast.Expression, env *Environment) ([]value.Value, *value.Error) {
	args := make([]value.Value, 0, len(exprs))
	for _, expr := range exprs {
		v, err := e.evalValue(expr, env)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// applyFunction calls a synchronous function on the current goroutine.
func (e *Evaluator) applyFunction(fn *Function, args []value.Value) (value.Value, *value.Error) {
	env, err := e.bindParams(fn, args)
	if err != nil {
		return value.Value{}, err
	}
	defer env.ExitScope()
	res, err := e.evalStatements(fn.Body.Statements, env)
	if err != nil {
		return value.Value{}, err
	}
	if rv, ok := res.(*returnValue); ok {
		return rv.val, nil
	}
	if v, ok := res.(value.Value); ok {
		return v, nil
	}
	return value.Zero, nil
}

func (e *Evaluator) bindParams(fn *Function, args []value.Value) (*Environment, *value.Error) {
	if len(args) != len(fn.Params) {
		return nil, value.NewError(value.TypeMismatch,
			"function takes %d arguments, got %d", len(fn.Params), len(args))
	}
	env := NewEnclosedEnvironment(fn.Env)
	for i, p := range fn.Params {
		v := args[i]
		switch {
		case p.Dyn:
			created, err := value.Create(typesystem.Dyn, v.Payload())
			if err != nil {
				return nil, err
			}
			v = created
		case p.TypeAnn.Known():
			created, err := value.Create(p.TypeAnn, v.Payload())
			if err != nil {
				return nil, err
			}
			v = created
		}
		env.Set(p.Name, v)
	}
	return env, nil
}
