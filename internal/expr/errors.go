package expr

import (
	"errors"
	"fmt"
)

// ErrCompile is matched by every CompileError via errors.Is.
var ErrCompile = errors.New("compile error")

// ErrorKind classifies a CompileError.
type ErrorKind string

const (
	UnbalancedParentheses ErrorKind = "UnbalancedParentheses"
	MalformedExpression   ErrorKind = "MalformedExpression"
	UnknownVariableKind   ErrorKind = "UnknownVariableKind"
	UnknownOperatorSymbol ErrorKind = "UnknownOperatorSymbol"
)

// CompileError is returned for token sequences that cannot be turned into an
// expression tree. Pos is the index of the offending token, or -1 when the
// error is only detected at end of input.
type CompileError struct {
	Kind ErrorKind
	Pos  int
	Msg  string
}

func (e *CompileError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s at token %d: %s", e.Kind, e.Pos, e.Msg)
}

// Is reports whether target is ErrCompile.
func (e *CompileError) Is(target error) bool {
	return target == ErrCompile
}

func compileErr(kind ErrorKind, pos int, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the ErrorKind of err if it wraps a CompileError.
func KindOf(err error) (ErrorKind, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
