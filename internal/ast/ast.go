package ast

import (
	"fmt"
	"strings"

	"github.com/sigil-lang/sigil/internal/typesystem"
)

// Node is the base interface for the tree the parser hands the runtime. The
// lexer and parser live outside this module; these types define only the
// shapes the core evaluates.
type Node interface {
	String() string
	Pos() (line, col int)
}

// Statement is a Node that represents a statement.
type Statement interface {
	Node
	statementNode()
}

// Expression is a Node that represents an expression.
type Expression interface {
	Node
	expressionNode()
}

// Program is the root node.
type Program struct {
	Statements []Statement
}

func (p *Program) Pos() (int, int) {
	if len(p.Statements) > 0 {
		return p.Statements[0].Pos()
	}
	return 0, 0
}
func (p *Program) String() string {
	var b strings.Builder
	for _, s := range p.Statements {
		b.WriteString(s.String())
		b.WriteString("\n")
	}
	return b.String()
}

// LetStatement binds a name, optionally under an ownership qualifier and a
// type annotation or the dyn marker.
//
//	let x: i32 = 42
//	let dyn x = "Hello"
//	let ~buf = make_buffer()
//	let #sync counter = 0
type LetStatement struct {
	Line, Col int
	Name      string
	Qualifier string // "", "~", "@", "#weak", "#sync", "#own"
	Dyn       bool
	TypeAnn   typesystem.Tag // Invalid when no annotation
	Value     Expression
}

func (ls *LetStatement) statementNode()  {}
func (ls *LetStatement) Pos() (int, int) { return ls.Line, ls.Col }
func (ls *LetStatement) String() string {
	q := ls.Qualifier
	if q != "" {
		q += " "
	}
	if ls.Dyn {
		return fmt.Sprintf("let %sdyn %s = %s", q, ls.Name, ls.Value.String())
	}
	if ls.TypeAnn.Known() {
		return fmt.Sprintf("let %s%s: %s = %s", q, ls.Name, ls.TypeAnn, ls.Value.String())
	}
	return fmt.Sprintf("let %s%s = %s", q, ls.Name, ls.Value.String())
}

// AssignStatement rebinds an existing name.
type AssignStatement struct {
	Line, Col int
	Name      string
	Value     Expression
}

func (as *AssignStatement) statementNode()  {}
func (as *AssignStatement) Pos() (int, int) { return as.Line, as.Col }
func (as *AssignStatement) String() string {
	return fmt.Sprintf("%s = %s", as.Name, as.Value.String())
}

// ReturnStatement exits the enclosing function.
type ReturnStatement struct {
	Line, Col int
	Value     Expression // nil returns unit
}

func (rs *ReturnStatement) statementNode()  {}
func (rs *ReturnStatement) Pos() (int, int) { return rs.Line, rs.Col }
func (rs *ReturnStatement) String() string {
	if rs.Value == nil {
		return "return"
	}
	return "return " + rs.Value.String()
}

// ExpressionStatement is an expression in statement position.
type ExpressionStatement struct {
	Expression Expression
}

func (es *ExpressionStatement) statementNode()  {}
func (es *ExpressionStatement) Pos() (int, int) { return es.Expression.Pos() }
func (es *ExpressionStatement) String() string  { return es.Expression.String() }

// BlockStatement is a braced statement list with its own lexical scope.
type BlockStatement struct {
	Line, Col  int
	Statements []Statement
}

func (bs *BlockStatement) statementNode()  {}
func (bs *BlockStatement) Pos() (int, int) { return bs.Line, bs.Col }
func (bs *BlockStatement) String() string {
	var b strings.Builder
	b.WriteString("{ ")
	for _, s := range bs.Statements {
		b.WriteString(s.String())
		b.WriteString("; ")
	}
	b.WriteString("}")
	return b.String()
}

// WhileStatement loops while the condition holds.
type WhileStatement struct {
	Line, Col int
	Condition Expression
	Body      *BlockStatement
}

func (ws *WhileStatement) statementNode()  {}
func (ws *WhileStatement) Pos() (int, int) { return ws.Line, ws.Col }
func (ws *WhileStatement) String() string {
	return fmt.Sprintf("while %s %s", ws.Condition.String(), ws.Body.String())
}

// ActorStatement declares an #actor structure: named state fields plus the
// handle function its impl block exposes.
//
//	#actor Counter { count: 0 } impl { handle(state, msg) {...} }
type ActorStatement struct {
	Line, Col int
	Name      string
	Fields    []ActorField
	Handle    *FunctionLiteral
}

type ActorField struct {
	Name  string
	Value Expression
}

func (as *ActorStatement) statementNode()  {}
func (as *ActorStatement) Pos() (int, int) { return as.Line, as.Col }
func (as *ActorStatement) String() string {
	return fmt.Sprintf("#actor %s", as.Name)
}

// Identifier names a binding.
type Identifier struct {
	Line, Col int
	Name      string
}

func (i *Identifier) expressionNode() {}
func (i *Identifier) Pos() (int, int) { return i.Line, i.Col }
func (i *Identifier) String() string  { return i.Name }

// IntegerLiteral. The declared type on the enclosing binding decides the tag;
// a bare literal is i64.
type IntegerLiteral struct {
	Line, Col int
	Value     int64
}

func (il *IntegerLiteral) expressionNode() {}
func (il *IntegerLiteral) Pos() (int, int) { return il.Line, il.Col }
func (il *IntegerLiteral) String() string  { return fmt.Sprintf("%d", il.Value) }

// FloatLiteral. A bare literal is f64.
type FloatLiteral struct {
	Line, Col int
	Value     float64
}

func (fl *FloatLiteral) expressionNode() {}
func (fl *FloatLiteral) Pos() (int, int) { return fl.Line, fl.Col }
func (fl *FloatLiteral) String() string  { return fmt.Sprintf("%g", fl.Value) }

type StringLiteral struct {
	Line, Col int
	Value     string
}

func (sl *StringLiteral) expressionNode() {}
func (sl *StringLiteral) Pos() (int, int) { return sl.Line, sl.Col }
func (sl *StringLiteral) String() string  { return fmt.Sprintf("%q", sl.Value) }

type BooleanLiteral struct {
	Line, Col int
	Value     bool
}

func (bl *BooleanLiteral) expressionNode() {}
func (bl *BooleanLiteral) Pos() (int, int) { return bl.Line, bl.Col }
func (bl *BooleanLiteral) String() string  { return fmt.Sprintf("%t", bl.Value) }

type UnitLiteral struct {
	Line, Col int
}

func (ul *UnitLiteral) expressionNode() {}
func (ul *UnitLiteral) Pos() (int, int) { return ul.Line, ul.Col }
func (ul *UnitLiteral) String() string  { return "()" }

// RecordLiteral builds an ordered field bag.
type RecordLiteral struct {
	Line, Col int
	Names     []string
	Values    []Expression
}

func (rl *RecordLiteral) expressionNode() {}
func (rl *RecordLiteral) Pos() (int, int) { return rl.Line, rl.Col }
func (rl *RecordLiteral) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, n := range rl.Names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", n, rl.Values[i].String())
	}
	b.WriteString("}")
	return b.String()
}

// VectorLiteral builds an ordered element list: [1, 2, 3].
type VectorLiteral struct {
	Line, Col int
	Elements  []Expression
}

func (vl *VectorLiteral) expressionNode() {}
func (vl *VectorLiteral) Pos() (int, int) { return vl.Line, vl.Col }
func (vl *VectorLiteral) String() string {
	parts := make([]string, len(vl.Elements))
	for i, el := range vl.Elements {
		parts[i] = el.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// IndexExpression reads one vector element: v[i].
type IndexExpression struct {
	Line, Col int
	Target    Expression
	Index     Expression
}

func (ix *IndexExpression) expressionNode() {}
func (ix *IndexExpression) Pos() (int, int) { return ix.Line, ix.Col }
func (ix *IndexExpression) String() string {
	return fmt.Sprintf("(%s[%s])", ix.Target.String(), ix.Index.String())
}

// PrefixExpression: -x, !x.
type PrefixExpression struct {
	Line, Col int
	Operator  string
	Right     Expression
}

func (pe *PrefixExpression) expressionNode() {}
func (pe *PrefixExpression) Pos() (int, int) { return pe.Line, pe.Col }
func (pe *PrefixExpression) String() string {
	return fmt.Sprintf("(%s%s)", pe.Operator, pe.Right.String())
}

// InfixExpression: a + b, a == b, ...
type InfixExpression struct {
	Line, Col int
	Operator  string
	Left      Expression
	Right     Expression
}

func (ie *InfixExpression) expressionNode() {}
func (ie *InfixExpression) Pos() (int, int) { return ie.Line, ie.Col }
func (ie *InfixExpression) String() string {
	return fmt.Sprintf("(%s %s %s)", ie.Left.String(), ie.Operator, ie.Right.String())
}

// IfExpression evaluates to the taken branch's value.
type IfExpression struct {
	Line, Col int
	Condition Expression
	Then      *BlockStatement
	Else      *BlockStatement // nil means unit
}

func (ie *IfExpression) expressionNode() {}
func (ie *IfExpression) Pos() (int, int) { return ie.Line, ie.Col }
func (ie *IfExpression) String() string {
	if ie.Else == nil {
		return fmt.Sprintf("if %s %s", ie.Condition.String(), ie.Then.String())
	}
	return fmt.Sprintf("if %s %s else %s", ie.Condition.String(), ie.Then.String(), ie.Else.String())
}

// Param is one function parameter, optionally dyn or annotated.
type Param struct {
	Name    string
	Dyn     bool
	TypeAnn typesystem.Tag
}

// FunctionLiteral: func(a, b) {...} or async func(a) {...}.
type FunctionLiteral struct {
	Line, Col int
	Params    []Param
	Body      *BlockStatement
	Async     bool
}

func (fl *FunctionLiteral) expressionNode() {}
func (fl *FunctionLiteral) Pos() (int, int) { return fl.Line, fl.Col }
func (fl *FunctionLiteral) String() string {
	names := make([]string, len(fl.Params))
	for i, p := range fl.Params {
		names[i] = p.Name
	}
	kw := "func"
	if fl.Async {
		kw = "async func"
	}
	return fmt.Sprintf("%s(%s) %s", kw, strings.Join(names, ", "), fl.Body.String())
}

// CallExpression applies a function, builtin, or actor constructor.
type CallExpression struct {
	Line, Col int
	Function  Expression
	Arguments []Expression
}

func (ce *CallExpression) expressionNode() {}
func (ce *CallExpression) Pos() (int, int) { return ce.Line, ce.Col }
func (ce *CallExpression) String() string {
	args := make([]string, len(ce.Arguments))
	for i, a := range ce.Arguments {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", ce.Function.String(), strings.Join(args, ", "))
}

// MethodCallExpression: receiver.method(args). The runtime's channel,
// ownership and actor operations all arrive in this shape.
type MethodCallExpression struct {
	Line, Col int
	Receiver  Expression
	Method    string
	Arguments []Expression
}

func (mc *MethodCallExpression) expressionNode() {}
func (mc *MethodCallExpression) Pos() (int, int) { return mc.Line, mc.Col }
func (mc *MethodCallExpression) String() string {
	args := make([]string, len(mc.Arguments))
	for i, a := range mc.Arguments {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s.%s(%s)", mc.Receiver.String(), mc.Method, strings.Join(args, ", "))
}

// FieldExpression reads a record field or a channel end.
type FieldExpression struct {
	Line, Col int
	Receiver  Expression
	Field     string
}

func (fe *FieldExpression) expressionNode() {}
func (fe *FieldExpression) Pos() (int, int) { return fe.Line, fe.Col }
func (fe *FieldExpression) String() string {
	return fmt.Sprintf("%s.%s", fe.Receiver.String(), fe.Field)
}

// AwaitExpression suspends until the awaited task is terminal.
type AwaitExpression struct {
	Line, Col int
	Value     Expression
}

func (ae *AwaitExpression) expressionNode() {}
func (ae *AwaitExpression) Pos() (int, int) { return ae.Line, ae.Col }
func (ae *AwaitExpression) String() string  { return "await " + ae.Value.String() }
