package apperror

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Error carries a machine-readable Kind, the operation that failed
// (<layer>.<domain>.<action>), the wrapped cause and a client-safe message.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Message string
	Stack   []byte
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op
	default:
		return "unknown error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

func (e *Error) WithOp(op string) *Error {
	cp := *e
	cp.Op = op
	return &cp
}

func New(kind Kind, op string, err error) *Error {
	e := &Error{
		Kind: kind,
		Op:   op,
		Err:  err,
	}

	// stack traces only for the kinds that indicate our own fault
	if kind == Internal || kind == Dependency {
		e.Stack = debug.Stack()
	}

	return e
}

func IsKind(err error, kind Kind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}
