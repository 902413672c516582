package evaluator

import (
	"github.com/sigil-lang/sigil/internal/ast"
	"github.com/sigil-lang/sigil/internal/config"
	"github.com/sigil-lang/sigil/internal/ownership"
	"github.com/sigil-lang/sigil/internal/typesystem"
	"github.com/sigil-lang/sigil/internal/value"
)

func (e *Evaluator) evalStatement(stmt ast.Statement, env *Environment) (any, *value.Error) {
	switch s := stmt.(type) {
	case *ast.LetStatement:
		return e.evalLet(s, env)
	case *ast.AssignStatement:
		return e.evalAssign(s, env)
	case *ast.ReturnStatement:
		return e.evalReturn(s, env)
	case *ast.ExpressionStatement:
		return e.evalExpression(s.Expression, env)
	case *ast.BlockStatement:
		return e.evalBlock(s, env)
	case *ast.WhileStatement:
		return e.evalWhile(s, env)
	case *ast.ActorStatement:
		env.Set(s.Name, &ActorDef{Name: s.Name, Fields: s.Fields, Handle: s.Handle, Env: env})
		return value.Zero, nil
	}
	line, col := stmt.Pos()
	return nil, value.NewErrorAt(value.TypeMismatch, line, col, "cannot evaluate %T", stmt)
}

func (e *Evaluator) evalLet(ls *ast.LetStatement, env *Environment) (any, *value.Error) {
	raw, err := e.evalLetSource(ls.Value, env)
	if err != nil {
		return nil, err
	}
	if err := e.bindLet(ls, raw, env); err != nil {
		return nil, err
	}
	return value.Zero, nil
}

// evalLetSource evaluates a binding's right-hand side with transfer
// semantics: a bare identifier naming a ~unique binding moves its value out
// (the source is invalidated), a bare @shared identifier clones its handle.
func (e *Evaluator) evalLetSource(expr ast.Expression, env *Environment) (any, *value.Error) {
	id, ok := expr.(*ast.Identifier)
	if !ok {
		return e.evalExpression(expr, env)
	}
	raw, found := env.Get(id.Name)
	if !found {
		return nil, e.unboundError(id)
	}
	switch h := raw.(type) {
	case *ownership.Unique:
		v, merr := h.MoveOut()
		if merr != nil {
			return nil, merr
		}
		return v, nil
	case *ownership.Shared:
		clone, cerr := h.Clone()
		if cerr != nil {
			return nil, cerr
		}
		return clone, nil
	case *ownership.Sync, *ownership.Weak, *ownership.Own:
		line, col := id.Pos()
		return nil, value.NewErrorAt(value.BorrowViolation, line, col,
			"%s bindings cannot be aliased", h.(ownership.Owned).Kind())
	}
	return raw, nil
}

// bindLet wraps the evaluated source per the binding's sigil and installs it.
func (e *Evaluator) bindLet(ls *ast.LetStatement, raw any, env *Environment) *value.Error {
	// Handles bind as-is; the sigil, if present, must agree with the kind.
	if owned, ok := raw.(ownership.Owned); ok {
		if ls.Qualifier != "" && ls.Qualifier != owned.Kind().String() {
			return value.NewErrorAt(value.BorrowViolation, ls.Line, ls.Col,
				"cannot bind a %s handle under %s", owned.Kind(), ls.Qualifier)
		}
		env.Set(ls.Name, owned)
		env.TrackOwned(owned)
		return nil
	}

	v, ok := raw.(value.Value)
	if !ok {
		// Functions, channel ends, actor defs and the like carry no sigil.
		if ls.Qualifier != "" || ls.Dyn || ls.TypeAnn.Known() {
			return value.NewErrorAt(value.TypeMismatch, ls.Line, ls.Col,
				"%T cannot carry a sigil or type annotation", raw)
		}
		env.Set(ls.Name, raw)
		return nil
	}

	switch {
	case ls.Dyn:
		created, err := value.Create(typesystem.Dyn, v.Payload())
		if err != nil {
			return err
		}
		v = created
	case ls.TypeAnn.Known():
		created, err := value.Create(ls.TypeAnn, v.Payload())
		if err != nil {
			err.Line, err.Column = ls.Line, ls.Col
			return err
		}
		v = created
	}

	switch ls.Qualifier {
	case "":
		env.Set(ls.Name, v)
	case config.UniqueSigil:
		u := e.Store.WrapUnique(v)
		env.Set(ls.Name, u)
		env.TrackOwned(u)
	case config.SharedSigil:
		sh := e.Store.WrapShared(v, nil)
		env.Set(ls.Name, sh)
		env.TrackOwned(sh)
	case config.SyncAttr:
		sy := e.Store.WrapSync(v)
		env.Set(ls.Name, sy)
		env.TrackOwned(sy)
	case config.OwnAttr:
		return value.NewErrorAt(value.BorrowViolation, ls.Line, ls.Col,
			"#own bindings come from own(resource, release)")
	case config.WeakAttr:
		return value.NewErrorAt(value.BorrowViolation, ls.Line, ls.Col,
			"#weak bindings come from downgrade()")
	default:
		return value.NewErrorAt(value.TypeMismatch, ls.Line, ls.Col,
			"unknown sigil %q", ls.Qualifier)
	}
	return nil
}

func (e *Evaluator) evalAssign(as *ast.AssignStatement, env *Environment) (any, *value.Error) {
	v, err := e.evalValue(as.Value, env)
	if err != nil {
		return nil, err
	}
	if err := e.bindAssign(as, v, env); err != nil {
		return nil, err
	}
	return value.Zero, nil
}

func (e *Evaluator) bindAssign(as *ast.AssignStatement, v value.Value, env *Environment) *value.Error {
	raw, found := env.Get(as.Name)
	if !found {
		return value.NewErrorAt(value.TypeMismatch, as.Line, as.Col,
			"assignment to unbound name %q", as.Name)
	}
	switch old := raw.(type) {
	case value.Value:
		next, err := value.Reassign(old, v.Payload())
		if err != nil {
			err.Line, err.Column = as.Line, as.Col
			return err
		}
		env.Update(as.Name, next)
		return nil
	case *ownership.Unique:
		cur, err := old.Get()
		if err != nil {
			return err
		}
		next, err := value.Reassign(cur, v.Payload())
		if err != nil {
			return err
		}
		return old.Set(next)
	case *ownership.Shared:
		cur, err := old.Get()
		if err != nil {
			return err
		}
		next, err := value.Reassign(cur, v.Payload())
		if err != nil {
			return err
		}
		return old.Set(next)
	case *ownership.Sync:
		return value.NewErrorAt(value.BorrowViolation, as.Line, as.Col,
			"a #sync value is only assignable inside with()")
	}
	return value.NewErrorAt(value.BorrowViolation, as.Line, as.Col,
		"%q is not assignable", as.Name)
}

func (e *Evaluator) evalReturn(rs *ast.ReturnStatement, env *Environment) (any, *value.Error) {
	if rs.Value == nil {
		return &returnValue{val: value.Zero}, nil
	}
	v, err := e.evalValue(rs.Value, env)
	if err != nil {
		return nil, err
	}
	return &returnValue{val: v}, nil
}

// evalBlock runs a block in a fresh scope; owned handles bound inside it are
// dropped on exit, in reverse binding order, on every exit path.
func (e *Evaluator) evalBlock(block *ast.BlockStatement, env *Environment) (any, *value.Error) {
	child := NewEnclosedEnvironment(env)
	defer child.ExitScope()
	return e.evalStatements(block.Statements, child)
}

// evalStatements runs statements in the given scope without opening a new
// one; function application owns the scope itself to bind parameters first.
func (e *Evaluator) evalStatements(stmts []ast.Statement, env *Environment) (any, *value.Error) {
	var result any = value.Zero
	for _, stmt := range stmts {
		res, err := e.evalStatement(stmt, env)
		if err != nil {
			return nil, err
		}
		if rv, ok := res.(*returnValue); ok {
			return rv, nil
		}
		result = res
	}
	return result, nil
}

func (e *Evaluator) evalWhile(ws *ast.WhileStatement, env *Environment) (any, *value.Error) {
	for {
		cond, err := e.evalValue(ws.Condition, env)
		if err != nil {
			return nil, err
		}
		ok, err := truthy(cond, ws.Condition)
		if err != nil {
			return nil, err
		}
		if !ok {
			return value.Zero, nil
		}
		res, err := e.evalBlock(ws.Body, env)
		if err != nil {
			return nil, err
		}
		if rv, isReturn := res.(*returnValue); isReturn {
			return rv, nil
		}
	}
}

func truthy(v value.Value, at ast.Node) (bool, *value.Error) {
	if b, ok := v.Payload().(*value.Boolean); ok {
		return b.Value, nil
	}
	line, col := at.Pos()
	return false, value.NewErrorAt(value.TypeMismatch, line, col,
		"condition must be bool, got %s", v.Tag())
}

func (e *Evaluator) unboundError(id *ast.Identifier) *value.Error {
	line, col := id.Pos()
	return value.NewErrorAt(value.TypeMismatch, line, col, "unbound name %q", id.Name)
}
