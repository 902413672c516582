package evaluator

import (
	"github.com/sigil-lang/sigil/internal/ast"
	"github.com/sigil-lang/sigil/internal/config"
	"github.com/sigil-lang/sigil/internal/ownership"
	"github.com/sigil-lang/sigil/internal/sched"
	"github.com/sigil-lang/sigil/internal/typesystem"
	"github.com/sigil-lang/sigil/internal/value"
)

// blockedInTask rejects a suspendable form reached in expression position
// inside a task. Statement-position forms lower onto frames; anything deeper
// would block the whole shard, so it faults instead.
func blockedInTask(env *Environment, what string, at ast.Node) *value.Error {
	if env.Session() == hostSession {
		return nil
	}
	line, col := at.Pos()
	return value.NewErrorAt(value.DeadlockDetected, line, col,
		"%s suspends and cannot be nested inside another expression in an async function", what)
}

// evalAwait on the host goroutine blocks until the task is terminal. A
// faulted or cancelled task surfaces its error to the awaiting expression.
func (e *Evaluator) evalAwait(ae *ast.AwaitExpression, env *Environment) (any, *value.Error) {
	if berr := blockedInTask(env, "await", ae); berr != nil {
		return nil, berr
	}
	res, err := e.evalExpression(ae.Value, env)
	if err != nil {
		return nil, err
	}
	th, ok := res.(*TaskHandle)
	if !ok {
		line, col := ae.Pos()
		return nil, value.NewErrorAt(value.TypeMismatch, line, col,
			"await needs a task, got %T", res)
	}
	obj, fault := th.H.Wait()
	if fault != nil {
		return nil, fault
	}
	if th.H.State() == sched.TaskCancelled {
		return nil, value.NewError(value.TaskCancelledErr, "awaited task was cancelled")
	}
	return objectValue(obj), nil
}

// transferArg evaluates a send/spawn argument with ownership transfer
// semantics: a bare identifier naming a ~unique or @shared binding passes the
// handle itself so the boundary crossing moves or clones it.
func (e *Evaluator) transferArg(expr ast.Expression, env *Environment) (any, *value.Error) {
	if id, ok := expr.(*ast.Identifier); ok {
		if raw, found := env.Get(id.Name); found {
			switch raw.(type) {
			case *ownership.Unique, *ownership.Shared:
				return raw, nil
			}
		}
	}
	v, err := e.evalValue(expr, env)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// msgBinding converts a received message into a binding: a shared clone stays
// a handle, anything else is a plain value.
func msgBinding(msg sched.Msg) any {
	if msg.Shared != nil {
		return msg.Shared
	}
	return msg.Value
}

func (e *Evaluator) evalMethodCall(mc *ast.MethodCallExpression, env *Environment) (any, *value.Error) {
	recv, err := e.evalExpression(mc.Receiver, env)
	if err != nil {
		return nil, err
	}
	line, col := mc.Pos()

	switch r := recv.(type) {
	case *ChannelPair:
		switch mc.Method {
		case config.SendMethodName:
			return e.hostPush(r.Sender, mc, env)
		case config.RecvMethodName:
			return e.hostNext(r.Receiver, mc, env)
		case "drop":
			r.Sender.Drop()
			r.Receiver.Drop()
			return value.Zero, nil
		}
	case *sched.Sender:
		switch mc.Method {
		case config.SendMethodName:
			return e.hostPush(r, mc, env)
		case "drop":
			r.Drop()
			return value.Zero, nil
		}
	case *sched.Receiver:
		switch mc.Method {
		case config.RecvMethodName:
			return e.hostNext(r, mc, env)
		case "drop":
			r.Drop()
			return value.Zero, nil
		}
	case *ownership.Unique:
		if mc.Method == "drop" {
			r.Drop()
			return value.Zero, nil
		}
	case *ownership.Shared:
		switch mc.Method {
		case "clone":
			clone, cerr := r.Clone()
			if cerr != nil {
				return nil, cerr
			}
			return clone, nil
		case "downgrade":
			w, derr := r.Downgrade()
			if derr != nil {
				return nil, derr
			}
			return w, nil
		case "count":
			return value.NewStatic(typesystem.I64, &value.Integer{Value: r.StrongCount()}), nil
		case "drop":
			r.Drop()
			return value.Zero, nil
		}
	case *ownership.Weak:
		switch mc.Method {
		case "get":
			return weakGetRecord(r), nil
		case "drop":
			r.Drop()
			return value.Zero, nil
		}
	case *ownership.Sync:
		if mc.Method == "with" {
			return e.hostWith(r, mc, env)
		}
	case *ownership.Own:
		switch mc.Method {
		case "get":
			v, gerr := r.Get()
			if gerr != nil {
				return nil, gerr
			}
			return v, nil
		case "close":
			if cerr := r.Close(); cerr != nil {
				return nil, cerr
			}
			return value.Zero, nil
		}
	case ActorHandle:
		switch mc.Method {
		case "send":
			if berr := blockedInTask(env, "send", mc); berr != nil {
				return nil, berr
			}
			if len(mc.Arguments) != 1 {
				return nil, value.NewErrorAt(value.TypeMismatch, line, col,
					"send takes one message")
			}
			payload, terr := e.transferArg(mc.Arguments[0], env)
			if terr != nil {
				return nil, terr
			}
			if serr := r.Ref.Post(payload); serr != nil {
				return nil, serr
			}
			return value.Zero, nil
		case "status":
			return value.NewStatic(typesystem.String,
				&value.String{Value: string(r.Ref.Status())}), nil
		case "stop":
			r.Ref.Stop()
			return value.Zero, nil
		case "restart":
			if rerr := r.Ref.Restart(); rerr != nil {
				return nil, rerr
			}
			return value.Zero, nil
		}
	case *TaskHandle:
		switch mc.Method {
		case "drop":
			r.H.Drop()
			return value.Zero, nil
		case "state":
			return value.NewStatic(typesystem.String,
				&value.String{Value: string(r.H.State())}), nil
		}
	}
	return nil, value.NewErrorAt(value.TypeMismatch, line, col,
		"%T has no method %q", recv, mc.Method)
}

func (e *Evaluator) hostPush(snd *sched.Sender, mc *ast.MethodCallExpression, env *Environment) (any, *value.Error) {
	if berr := blockedInTask(env, "push", mc); berr != nil {
		return nil, berr
	}
	if len(mc.Arguments) != 1 {
		line, col := mc.Pos()
		return nil, value.NewErrorAt(value.TypeMismatch, line, col, "push takes one value")
	}
	payload, err := e.transferArg(mc.Arguments[0], env)
	if err != nil {
		return nil, err
	}
	if perr := snd.PushWait(payload); perr != nil {
		return nil, perr
	}
	return value.Zero, nil
}

func (e *Evaluator) hostNext(rcv *sched.Receiver, mc *ast.MethodCallExpression, env *Environment) (any, *value.Error) {
	if berr := blockedInTask(env, "next", mc); berr != nil {
		return nil, berr
	}
	msg, err := rcv.NextWait()
	if err != nil {
		return nil, err
	}
	return msgBinding(msg), nil
}

// hostWith runs a with() session blocking the host goroutine. The body
// function receives the current value; a non-unit result becomes the new one.
func (e *Evaluator) hostWith(sy *ownership.Sync, mc *ast.MethodCallExpression, env *Environment) (any, *value.Error) {
	if berr := blockedInTask(env, "with", mc); berr != nil {
		return nil, berr
	}
	fn, err := e.withBody(mc, env)
	if err != nil {
		return nil, err
	}
	if werr := sy.With(env.Session(), e.lockedBody(fn)); werr != nil {
		return nil, werr
	}
	return value.Zero, nil
}

func (e *Evaluator) withBody(mc *ast.MethodCallExpression, env *Environment) (*Function, *value.Error) {
	line, col := mc.Pos()
	if len(mc.Arguments) != 1 {
		return nil, value.NewErrorAt(value.TypeMismatch, line, col, "with takes a body function")
	}
	res, err := e.evalExpression(mc.Arguments[0], env)
	if err != nil {
		return nil, err
	}
	fn, ok := res.(*Function)
	if !ok {
		return nil, value.NewErrorAt(value.TypeMismatch, line, col,
			"with body must be a function, got %T", res)
	}
	return fn, nil
}

func (e *Evaluator) lockedBody(fn *Function) func(*value.Value) *value.Error {
	return func(pv *value.Value) *value.Error {
		out, err := e.applyFunction(fn, []value.Value{*pv})
		if err != nil {
			return err
		}
		if out.Tag() != typesystem.Unit {
			*pv = out
		}
		return nil
	}
}

func weakGetRecord(w *ownership.Weak) value.Value {
	v, ok := w.Get()
	some := value.FALSE
	if ok {
		some = value.TRUE
	} else {
		v = value.Zero
	}
	rec := &value.Record{
		Order: []string{"some", "value"},
		Fields: map[string]value.Value{
			"some":  value.NewStatic(typesystem.Bool, some),
			"value": v,
		},
	}
	return value.NewStatic(typesystem.Record, rec)
}

// spawnActor instantiates an #actor declaration: field initializers become
// the private state record, the impl block's handle function becomes the
// mailbox handler.
func (e *Evaluator) spawnActor(def *ActorDef, env *Environment) (any, *value.Error) {
	rec := &value.Record{Fields: make(map[string]value.Value, len(def.Fields))}
	for _, f := range def.Fields {
		v, err := e.evalValue(f.Value, def.Env)
		if err != nil {
			return nil, err
		}
		rec.Order = append(rec.Order, f.Name)
		rec.Fields[f.Name] = v
	}
	state := value.NewStatic(typesystem.Record, rec)

	if def.Handle == nil || len(def.Handle.Params) != 2 {
		return nil, value.NewError(value.TypeMismatch,
			"actor %s needs handle(state, message)", def.Name)
	}
	fn := &Function{Params: def.Handle.Params, Body: def.Handle.Body, Env: def.Env}
	handler := func(state value.Value, msg sched.Msg) (value.Value, *value.Error) {
		mv, err := msg.Get()
		if err != nil {
			return state, err
		}
		out, herr := e.applyFunction(fn, []value.Value{state, mv})
		if herr != nil {
			return state, herr
		}
		if out.Tag() == typesystem.Unit {
			return state, nil
		}
		return out, nil
	}

	ref := e.Sched.SpawnActor(def.Name, state, e.cfg.MailboxCapacity, handler)
	log.Debugf("spawned actor %s (%s)", def.Name, ref.ID())
	return ActorHandle{Ref: ref}, nil
}

// spawnCall spawns an async function call as a task. Arguments cross the
// task boundary with transfer semantics before the task starts, in the
// caller's context.
func (e *Evaluator) spawnCall(fn *Function, ce *ast.CallExpression, env *Environment) (any, *value.Error) {
	if len(ce.Arguments) != len(fn.Params) {
		line, col := ce.Pos()
		return nil, value.NewErrorAt(value.TypeMismatch, line, col,
			"function takes %d arguments, got %d", len(fn.Params), len(ce.Arguments))
	}
	msgs := make([]sched.Msg, len(ce.Arguments))
	for i, arg := range ce.Arguments {
		payload, err := e.transferArg(arg, env)
		if err != nil {
			return nil, err
		}
		msg, terr := sched.TransferIn(payload)
		if terr != nil {
			return nil, terr
		}
		msgs[i] = msg
	}
	name := "async"
	if id, ok := ce.Function.(*ast.Identifier); ok {
		name = id.Name
	}
	h := e.Sched.Spawn(name, e.taskEntry(fn, msgs))
	return &TaskHandle{H: h}, nil
}
