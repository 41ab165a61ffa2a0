// Package langerr defines the error kinds raised by the Egg parser and
// evaluator.
package langerr

import (
	"errors"
	"fmt"

	"egg/interpreter-go/pkg/ast"
)

// Kind classifies a language-level failure.
type Kind string

const (
	SyntaxError    Kind = "SyntaxError"
	ReferenceError Kind = "ReferenceError"
	TypeError      Kind = "TypeError"
	RangeError     Kind = "RangeError"
	LimitError     Kind = "LimitError"
)

// Error is the error value produced by parsing and evaluation.
type Error struct {
	Kind    Kind
	Message string
	// Pos is zero when the failure has no source location.
	Pos   ast.Position
	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d, column %d)", e.Kind, e.Message, e.Pos.Line, e.Pos.Column)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// New builds an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At builds an error of the given kind anchored at pos.
func At(kind Kind, pos ast.Position, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// Wrap builds an error of the given kind that unwraps to cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WrapAt is Wrap anchored at pos.
func WrapAt(kind Kind, pos ast.Position, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: pos, cause: cause}
}

func Syntax(format string, args ...any) *Error    { return New(SyntaxError, format, args...) }
func Reference(format string, args ...any) *Error { return New(ReferenceError, format, args...) }
func Type(format string, args ...any) *Error      { return New(TypeError, format, args...) }
func Range(format string, args ...any) *Error     { return New(RangeError, format, args...) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind, true
	}
	return "", false
}

// Is reports whether err carries a language error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// As extracts the language error from err's chain.
func As(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
