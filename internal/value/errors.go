package value

import (
	"fmt"

	"github.com/sigil-lang/sigil/internal/typesystem"
)

// Code classifies a runtime failure. Program-level errors surface as *Error
// objects to the evaluating expression; scheduler-internal invariant
// violations never become an Error; they panic with a diagnostic.
type Code string

const (
	TypeMismatch           Code = "TypeMismatch"
	UseAfterMove           Code = "UseAfterMove"
	BorrowViolation        Code = "BorrowViolation"
	DeadlockDetected       Code = "DeadlockDetected"
	ChannelClosed          Code = "ChannelClosed"
	ActorFault             Code = "ActorFault"
	ResourceReleaseFailure Code = "ResourceReleaseFailure"

	// DivisionByZero is not part of the ownership/typing taxonomy; it exists
	// because integer division and modulus can fail at evaluation time.
	DivisionByZero Code = "DivisionByZero"

	// TaskCancelledErr is what awaiting a cancelled task yields.
	TaskCancelledErr Code = "TaskCancelled"
)

// Error is a recoverable runtime failure value.
type Error struct {
	Code    Code
	Message string
	Line    int
	Column  int
}

func (e *Error) Type() ObjectType { return ERROR_OBJ }
func (e *Error) Inspect() string {
	if e.Line > 0 {
		return fmt.Sprintf("ERROR[%s] at %d:%d: %s", e.Code, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("ERROR[%s]: %s", e.Code, e.Message)
}
func (e *Error) NaturalTag() typesystem.Tag {
	return typesystem.Invalid
}
func (e *Error) Hash() uint32 { return hashString(string(e.Code) + e.Message) }

// Error satisfies the Go error interface so ownership and scheduler APIs can
// return it through plain error results.
func (e *Error) Error() string { return e.Inspect() }

func NewError(code Code, format string, a ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, a...)}
}

func NewErrorAt(code Code, line, column int, format string, a ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, a...),
		Line:    line,
		Column:  column,
	}
}

func IsError(obj Object) bool {
	if obj == nil {
		return false
	}
	return obj.Type() == ERROR_OBJ
}

// AsError returns the object as *Error when it is one.
func AsError(obj Object) (*Error, bool) {
	err, ok := obj.(*Error)
	return err, ok
}
