package evaluator

import (
	"github.com/sigil-lang/sigil/internal/ast"
	"github.com/sigil-lang/sigil/internal/config"
	"github.com/sigil-lang/sigil/internal/ownership"
	"github.com/sigil-lang/sigil/internal/sched"
	"github.com/sigil-lang/sigil/internal/typesystem"
	"github.com/sigil-lang/sigil/internal/value"
)

// Task-context lowering. An async function body becomes a chain of frames:
// each frame runs statements synchronously until it reaches a suspendable
// form (await, channel push/next, actor send, with-lock contention), hands
// the scheduler a continuation, and gives control back. Nested blocks, while
// loops and if branches are walked the same way, so a suspendable statement
// inside them parks the task instead of stalling its shard. A suspendable
// form nested deeper, inside another expression, faults with a diagnostic.

// cont resumes the statement walk that encloses a finished construct.
type cont func(t *sched.Task) sched.Outcome

// taskEntry builds the first frame of a spawned call: bind parameters from
// the transferred messages, then run the body.
func (e *Evaluator) taskEntry(fn *Function, msgs []sched.Msg) sched.Frame {
	return func(t *sched.Task, in any) sched.Outcome {
		env := NewEnclosedEnvironment(fn.Env)
		env.SetSession(t.SeqID())
		// Scope exit is a task cleanup so shared clones and own releases held
		// by the task still run on cancellation and fault.
		t.PushCleanup(env.ExitScope)

		for i, p := range fn.Params {
			if msgs[i].Shared != nil {
				env.Set(p.Name, msgs[i].Shared)
				env.TrackOwned(msgs[i].Shared)
				continue
			}
			v := msgs[i].Value
			switch {
			case p.Dyn:
				created, err := value.Create(typesystem.Dyn, v.Payload())
				if err != nil {
					return sched.Fault(err)
				}
				v = created
			case p.TypeAnn.Known():
				created, err := value.Create(p.TypeAnn, v.Payload())
				if err != nil {
					return sched.Fault(err)
				}
				v = created
			}
			env.Set(p.Name, v)
		}

		last := new(any)
		*last = value.Zero
		return e.runStmts(t, fn.Body.Statements, 0, env, last, func(*sched.Task) sched.Outcome {
			return sched.Done(resultObject(*last))
		})
	}
}

// runStmts executes statements from start until the list ends, a return is
// hit, or a suspendable statement parks the task. k runs when the list
// completes without returning.
func (e *Evaluator) runStmts(t *sched.Task, stmts []ast.Statement, start int, env *Environment, last *any, k cont) sched.Outcome {
	for i := start; i < len(stmts); i++ {
		switch s := stmts[i].(type) {
		case *ast.BlockStatement:
			return e.frameBlock(t, s, env, last, e.resumeAt(stmts, i+1, env, last, k))
		case *ast.WhileStatement:
			return e.frameWhile(t, s, env, last, e.resumeAt(stmts, i+1, env, last, k))
		}
		if out, suspended := e.stepSuspendable(t, stmts, i, env, last, k); suspended {
			return out
		}
		res, err := e.evalStatement(stmts[i], env)
		if err != nil {
			return sched.Fault(err)
		}
		if rv, ok := res.(*returnValue); ok {
			return sched.Done(resultObject(rv.val))
		}
		*last = res
	}
	return k(t)
}

// resumeAt is the continuation that picks the walk back up at statement i.
func (e *Evaluator) resumeAt(stmts []ast.Statement, i int, env *Environment, last *any, k cont) cont {
	return func(t *sched.Task) sched.Outcome {
		return e.runStmts(t, stmts, i, env, last, k)
	}
}

// frameBlock runs a nested block through the frame walk in its own scope.
// Scope exit is a task cleanup until the block completes, so a return or a
// cancellation mid-block still drops what the block bound.
func (e *Evaluator) frameBlock(t *sched.Task, bs *ast.BlockStatement, env *Environment, last *any, k cont) sched.Outcome {
	child := NewEnclosedEnvironment(env)
	t.PushCleanup(child.ExitScope)
	return e.runStmts(t, bs.Statements, 0, child, last, func(tt *sched.Task) sched.Outcome {
		tt.PopCleanup()
		child.ExitScope()
		return k(tt)
	})
}

// frameWhile re-evaluates the condition before each iteration; the body runs
// through the frame walk so a receive or await inside the loop suspends
// normally.
func (e *Evaluator) frameWhile(t *sched.Task, ws *ast.WhileStatement, env *Environment, last *any, k cont) sched.Outcome {
	var iterate cont
	iterate = func(tt *sched.Task) sched.Outcome {
		cond, err := e.evalValue(ws.Condition, env)
		if err != nil {
			return sched.Fault(err)
		}
		ok, terr := truthy(cond, ws.Condition)
		if terr != nil {
			return sched.Fault(terr)
		}
		if !ok {
			*last = value.Zero
			return k(tt)
		}
		return e.frameBlock(tt, ws.Body, env, last, iterate)
	}
	return iterate(t)
}

// stepSuspendable handles statement i when its value position is a
// suspendable form or an if whose branches must stay on the frame walk. The
// returned outcome's continuation binds the produced value and resumes the
// statement walk.
func (e *Evaluator) stepSuspendable(t *sched.Task, stmts []ast.Statement, i int, env *Environment, last *any, k cont) (sched.Outcome, bool) {
	var expr ast.Expression
	var bind func(any) *value.Error
	switch s := stmts[i].(type) {
	case *ast.LetStatement:
		expr = s.Value
		bind = func(res any) *value.Error { return e.bindLet(s, res, env) }
	case *ast.AssignStatement:
		expr = s.Value
		bind = func(res any) *value.Error {
			v, err := e.asValue(res, s)
			if err != nil {
				return err
			}
			return e.bindAssign(s, v, env)
		}
	case *ast.ExpressionStatement:
		expr = s.Expression
		bind = func(res any) *value.Error {
			*last = res
			return nil
		}
	default:
		return sched.Outcome{}, false
	}

	resume := func(tt *sched.Task, in any) sched.Outcome {
		if ferr, ok := in.(*value.Error); ok {
			return sched.Fault(ferr)
		}
		var res any
		switch m := in.(type) {
		case sched.Msg:
			res = msgBinding(m)
		case value.Object:
			res = objectValue(m)
		case value.Value:
			res = m
		case nil:
			res = value.Zero
		default:
			res = m
		}
		if err := bind(res); err != nil {
			return sched.Fault(err)
		}
		return e.runStmts(tt, stmts, i+1, env, last, k)
	}

	switch x := expr.(type) {
	case *ast.AwaitExpression:
		res, err := e.evalExpression(x.Value, env)
		if err != nil {
			return sched.Fault(err), true
		}
		th, ok := res.(*TaskHandle)
		if !ok {
			line, col := x.Pos()
			return sched.Fault(value.NewErrorAt(value.TypeMismatch, line, col,
				"await needs a task, got %T", res)), true
		}
		return th.H.Await(t, resume), true

	case *ast.IfExpression:
		return e.frameIf(t, x, bind, stmts, i, env, last, k), true

	case *ast.MethodCallExpression:
		recv, err := e.evalExpression(x.Receiver, env)
		if err != nil {
			return sched.Fault(err), true
		}
		switch r := recv.(type) {
		case *ChannelPair:
			switch x.Method {
			case config.SendMethodName:
				return e.framePush(t, r.Sender, x, env, resume), true
			case config.RecvMethodName:
				return r.Receiver.Next(t, resume), true
			}
		case *sched.Sender:
			if x.Method == config.SendMethodName {
				return e.framePush(t, r, x, env, resume), true
			}
		case *sched.Receiver:
			if x.Method == config.RecvMethodName {
				return r.Next(t, resume), true
			}
		case ActorHandle:
			if x.Method == "send" {
				if len(x.Arguments) != 1 {
					line, col := x.Pos()
					return sched.Fault(value.NewErrorAt(value.TypeMismatch, line, col,
						"send takes one message")), true
				}
				payload, terr := e.transferArg(x.Arguments[0], env)
				if terr != nil {
					return sched.Fault(terr), true
				}
				return r.Ref.Send(t, payload, resume), true
			}
		case *ownership.Sync:
			if x.Method == "with" {
				return e.frameWith(t, r, x, stmts, i, env, last, bind, k), true
			}
		}
		return sched.Outcome{}, false
	}
	return sched.Outcome{}, false
}

// frameIf lowers a statement-position if: the condition evaluates inline, the
// taken branch runs through the frame walk, and its result binds like any
// other statement value.
func (e *Evaluator) frameIf(t *sched.Task, ie *ast.IfExpression, bind func(any) *value.Error, stmts []ast.Statement, i int, env *Environment, last *any, k cont) sched.Outcome {
	cond, err := e.evalValue(ie.Condition, env)
	if err != nil {
		return sched.Fault(err)
	}
	ok, terr := truthy(cond, ie.Condition)
	if terr != nil {
		return sched.Fault(terr)
	}
	branch := ie.Then
	if !ok {
		branch = ie.Else
	}
	if branch == nil {
		if berr := bind(value.Zero); berr != nil {
			return sched.Fault(berr)
		}
		return e.runStmts(t, stmts, i+1, env, last, k)
	}
	inner := new(any)
	*inner = value.Zero
	return e.frameBlock(t, branch, env, inner, func(tt *sched.Task) sched.Outcome {
		if berr := bind(*inner); berr != nil {
			return sched.Fault(berr)
		}
		return e.runStmts(tt, stmts, i+1, env, last, k)
	})
}

func (e *Evaluator) framePush(t *sched.Task, snd *sched.Sender, mc *ast.MethodCallExpression, env *Environment, resume sched.Frame) sched.Outcome {
	if len(mc.Arguments) != 1 {
		line, col := mc.Pos()
		return sched.Fault(value.NewErrorAt(value.TypeMismatch, line, col, "push takes one value"))
	}
	payload, err := e.transferArg(mc.Arguments[0], env)
	if err != nil {
		return sched.Fault(err)
	}
	return snd.Push(t, payload, resume)
}

// frameWith is the cooperative with() session: try to acquire, park with
// ReasonLock if contended, and run the body once the lock is handed off.
// While parked, an abandon cleanup stands in so a cancelled waiter cannot
// keep its queue slot or strand a lock handed to it mid-cancellation.
func (e *Evaluator) frameWith(t *sched.Task, sy *ownership.Sync, mc *ast.MethodCallExpression, stmts []ast.Statement, i int, env *Environment, last *any, bind func(any) *value.Error, k cont) sched.Outcome {
	fn, err := e.withBody(mc, env)
	if err != nil {
		return sched.Fault(err)
	}
	run := func(tt *sched.Task, in any) sched.Outcome {
		if berr := sy.Locked(e.lockedBody(fn)); berr != nil {
			return sched.Fault(berr)
		}
		if berr := bind(value.Zero); berr != nil {
			return sched.Fault(berr)
		}
		return e.runStmts(tt, stmts, i+1, env, last, k)
	}
	session := env.Session()
	granted, aerr := sy.Acquire(session, func() { t.Wake(nil) })
	if aerr != nil {
		return sched.Fault(aerr)
	}
	if granted {
		return run(t, nil)
	}
	t.PushCleanup(func() { sy.Abandon(session) })
	return sched.Suspend(sched.ReasonLock, func(tt *sched.Task, in any) sched.Outcome {
		tt.PopCleanup()
		return run(tt, in)
	})
}
