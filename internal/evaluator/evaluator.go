package evaluator

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/sigil-lang/sigil/internal/ast"
	"github.com/sigil-lang/sigil/internal/config"
	"github.com/sigil-lang/sigil/internal/ownership"
	"github.com/sigil-lang/sigil/internal/sched"
	"github.com/sigil-lang/sigil/internal/typesystem"
	"github.com/sigil-lang/sigil/internal/value"
)

var log = commonlog.GetLogger("sigil.eval")

// hostSession is the #sync session key for evaluation outside any task. Task
// sessions use the task's sequence id, which starts at 1.
const hostSession = 0

// Evaluator drives the runtime core: it asks the value engine to construct
// and coerce values, wraps bindings per their ownership sigils, and lowers
// concurrency constructs onto the scheduler.
type Evaluator struct {
	Out       io.Writer
	Sched     *sched.Scheduler
	Store     *ownership.Store
	GlobalEnv *Environment

	cfg config.Runtime
}

func New(cfg config.Runtime, opts ...sched.Option) *Evaluator {
	store := ownership.NewStore()
	opts = append([]sched.Option{sched.WithStore(store)}, opts...)
	return &Evaluator{
		Out:       os.Stdout,
		Sched:     sched.New(cfg, opts...),
		Store:     store,
		GlobalEnv: NewEnvironment(),
		cfg:       cfg,
	}
}

func (e *Evaluator) Close() { e.Sched.Close() }

// Function is a user function value; Async ones spawn a task when called.
type Function struct {
	Params []ast.Param
	Body   *ast.BlockStatement
	Env    *Environment
	Async  bool
}

// ActorDef is the evaluated #actor declaration; calling it spawns an
// instance.
type ActorDef struct {
	Name   string
	Fields []ast.ActorField
	Handle *ast.FunctionLiteral
	Env    *Environment
}

// ActorHandle is the language-level view of a spawned actor.
type ActorHandle struct {
	Ref sched.ActorRef
}

// TaskHandle is the language-level view of a spawned async call.
type TaskHandle struct {
	H *sched.Handle
}

// ChannelPair is what channel() evaluates to; .sender and .receiver split it.
type ChannelPair struct {
	Sender   *sched.Sender
	Receiver *sched.Receiver
}

// returnValue carries a return up through enclosing blocks.
type returnValue struct {
	val value.Value
}

// Eval evaluates a node on the host goroutine. Suspending operations use
// their blocking forms here; inside spawned tasks the frame lowering in
// frames.go takes over at statement granularity.
func (e *Evaluator) Eval(node ast.Node, env *Environment) (any, *value.Error) {
	switch n := node.(type) {
	case *ast.Program:
		return e.evalProgram(n, env)
	case ast.Statement:
		return e.evalStatement(n, env)
	case ast.Expression:
		return e.evalExpression(n, env)
	}
	return nil, value.NewError(value.TypeMismatch, "cannot evaluate %T", node)
}

func (e *Evaluator) evalProgram(p *ast.Program, env *Environment) (any, *value.Error) {
	var result any = value.Zero
	for _, stmt := range p.Statements {
		res, err := e.evalStatement(stmt, env)
		if err != nil {
			return nil, err
		}
		if rv, ok := res.(*returnValue); ok {
			return rv.val, nil
		}
		result = res
	}
	return result, nil
}

// evalValue evaluates an expression and reads it as a plain value, borrowing
// through readable ownership handles.
func (e *Evaluator) evalValue(expr ast.Expression, env *Environment) (value.Value, *value.Error) {
	res, err := e.evalExpression(expr, env)
	if err != nil {
		return value.Value{}, err
	}
	return e.asValue(res, expr)
}

func (e *Evaluator) asValue(res any, at ast.Node) (value.Value, *value.Error) {
	line, col := at.Pos()
	switch v := res.(type) {
	case value.Value:
		return v, nil
	case *ownership.Unique:
		return v.Get()
	case *ownership.Shared:
		return v.Get()
	case *ownership.Own:
		return v.Get()
	case *ownership.Weak:
		return value.Value{}, value.NewErrorAt(value.BorrowViolation, line, col,
			"a #weak handle is read through get()")
	case *ownership.Sync:
		return value.Value{}, value.NewErrorAt(value.BorrowViolation, line, col,
			"a #sync value is only readable inside with()")
	case nil:
		return value.Zero, nil
	}
	return value.Value{}, value.NewErrorAt(value.TypeMismatch, line, col,
		"%T is not a value", res)
}

// objectValue re-wraps a raw payload, resolving the tag from the payload.
func objectValue(obj value.Object) value.Value {
	if obj == nil {
		return value.Zero
	}
	return value.NewStatic(obj.NaturalTag(), obj)
}

// resultObject is the payload a task completes with.
func resultObject(res any) value.Object {
	switch v := res.(type) {
	case value.Value:
		if v.Payload() == nil {
			return value.UNIT
		}
		return v.Payload()
	case value.Object:
		return v
	}
	return value.UNIT
}

// Builtin is a native function exposed to programs.
type Builtin func(e *Evaluator, env *Environment, call *ast.CallExpression) (any, *value.Error)

var builtins map[string]Builtin

func init() {
	builtins = map[string]Builtin{
		config.ChannelFuncName: builtinChannel,
		"typeof":               builtinTypeof,
		"print":                builtinPrint,
		"own":                  builtinOwn,
		"to_string":            builtinToString,
		"to_int":               builtinToInt,
		"to_float":             builtinToFloat,
		"to_bool":              builtinToBool,
	}
}

func builtinChannel(e *Evaluator, env *Environment, call *ast.CallExpression) (any, *value.Error) {
	capacity := 0
	if len(call.Arguments) > 0 {
		v, err := e.evalValue(call.Arguments[0], env)
		if err != nil {
			return nil, err
		}
		n, ok := v.Payload().(*value.Integer)
		if !ok {
			return nil, value.NewError(value.TypeMismatch,
				"channel capacity must be an integer, got %s", v.Tag())
		}
		capacity = int(n.Value)
	}
	snd, rcv := e.Sched.NewChannel(capacity)
	return &ChannelPair{Sender: snd, Receiver: rcv}, nil
}

func builtinTypeof(e *Evaluator, env *Environment, call *ast.CallExpression) (any, *value.Error) {
	if len(call.Arguments) != 1 {
		return nil, value.NewError(value.TypeMismatch, "typeof takes one argument")
	}
	v, err := e.evalValue(call.Arguments[0], env)
	if err != nil {
		return nil, err
	}
	tag := value.TypeOf(v)
	return value.NewStatic(typesystem.String, &value.String{Value: string(tag)}), nil
}

func builtinPrint(e *Evaluator, env *Environment, call *ast.CallExpression) (any, *value.Error) {
	parts := make([]any, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		v, err := e.evalValue(arg, env)
		if err != nil {
			return nil, err
		}
		parts = append(parts, v.Inspect())
	}
	fmt.Fprintln(e.Out, parts...)
	return value.Zero, nil
}

// The conversion builtins take exactly one scalar argument. A string that
// does not parse is a TypeMismatch, the same error a bad literal raises.

func convArg(e *Evaluator, env *Environment, call *ast.CallExpression, name string) (value.Value, *value.Error) {
	if len(call.Arguments) != 1 {
		return value.Value{}, value.NewError(value.TypeMismatch, "%s takes one argument", name)
	}
	return e.evalValue(call.Arguments[0], env)
}

func builtinToString(e *Evaluator, env *Environment, call *ast.CallExpression) (any, *value.Error) {
	v, err := convArg(e, env, call, "to_string")
	if err != nil {
		return nil, err
	}
	var s string
	switch p := v.Payload().(type) {
	case *value.String:
		s = p.Value
	case *value.Integer, *value.Float, *value.Boolean:
		s = v.Payload().Inspect()
	default:
		return nil, value.NewError(value.TypeMismatch, "cannot convert %s to string", v.Tag())
	}
	return value.NewStatic(typesystem.String, &value.String{Value: s}), nil
}

func builtinToInt(e *Evaluator, env *Environment, call *ast.CallExpression) (any, *value.Error) {
	v, err := convArg(e, env, call, "to_int")
	if err != nil {
		return nil, err
	}
	var n int64
	switch p := v.Payload().(type) {
	case *value.Integer:
		n = p.Value
	case *value.Float:
		// Truncates toward zero.
		n = int64(p.Value)
	case *value.String:
		parsed, perr := strconv.ParseInt(p.Value, 10, 64)
		if perr != nil {
			return nil, value.NewError(value.TypeMismatch, "cannot parse %q as an integer", p.Value)
		}
		n = parsed
	default:
		return nil, value.NewError(value.TypeMismatch, "cannot convert %s to an integer", v.Tag())
	}
	return value.NewStatic(typesystem.I64, &value.Integer{Value: n}), nil
}

func builtinToFloat(e *Evaluator, env *Environment, call *ast.CallExpression) (any, *value.Error) {
	v, err := convArg(e, env, call, "to_float")
	if err != nil {
		return nil, err
	}
	var f float64
	switch p := v.Payload().(type) {
	case *value.Float:
		f = p.Value
	case *value.Integer:
		f = float64(p.Value)
	case *value.String:
		parsed, perr := strconv.ParseFloat(p.Value, 64)
		if perr != nil {
			return nil, value.NewError(value.TypeMismatch, "cannot parse %q as a float", p.Value)
		}
		f = parsed
	default:
		return nil, value.NewError(value.TypeMismatch, "cannot convert %s to a float", v.Tag())
	}
	return value.NewStatic(typesystem.F64, &value.Float{Value: f}), nil
}

func builtinToBool(e *Evaluator, env *Environment, call *ast.CallExpression) (any, *value.Error) {
	v, err := convArg(e, env, call, "to_bool")
	if err != nil {
		return nil, err
	}
	var b bool
	switch p := v.Payload().(type) {
	case *value.Boolean:
		b = p.Value
	case *value.Integer:
		b = p.Value != 0
	case *value.String:
		switch p.Value {
		case "true":
			b = true
		case "false":
			b = false
		default:
			return nil, value.NewError(value.TypeMismatch, "cannot parse %q as a bool", p.Value)
		}
	default:
		return nil, value.NewError(value.TypeMismatch, "cannot convert %s to a bool", v.Tag())
	}
	if b {
		return value.NewStatic(typesystem.Bool, value.TRUE), nil
	}
	return value.NewStatic(typesystem.Bool, value.FALSE), nil
}

// builtinOwn binds a resource to a release function: own(resource, release).
func builtinOwn(e *Evaluator, env *Environment, call *ast.CallExpression) (any, *value.Error) {
	if len(call.Arguments) != 2 {
		return nil, value.NewError(value.TypeMismatch, "own takes a resource and a release function")
	}
	res, err := e.evalValue(call.Arguments[0], env)
	if err != nil {
		return nil, err
	}
	fnRes, err := e.evalExpression(call.Arguments[1], env)
	if err != nil {
		return nil, err
	}
	fn, ok := fnRes.(*Function)
	if !ok {
		return nil, value.NewError(value.TypeMismatch, "own release must be a function, got %T", fnRes)
	}
	release := func(v value.Value) error {
		if _, rerr := e.applyFunction(fn, []value.Value{v}); rerr != nil {
			return rerr
		}
		return nil
	}
	return e.Store.WrapOwn(res, release), nil
}
