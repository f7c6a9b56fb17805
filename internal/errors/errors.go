// Package errors defines the structured error protocol the compiler core
// hands back to its driver (see spec §6, §7): a kind, a message and the
// token where the failure originated, so a caret-underlined renderer can be
// built entirely outside this package.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind is one of the three compiler phases that can fail, plus IO for the
// driver's own file-handling errors (never raised by the core itself).
type Kind string

const (
	Lex      Kind = "Lex"
	Syntax   Kind = "Syntax"
	Semantic Kind = "Semantic"
	IO       Kind = "IO"
)

// TokenInfo is the location payload of the error protocol. It intentionally
// carries only what §6 lists (line, col, start, end, line_start) rather than
// a full lexer.Token, so this package never needs to import the lexer and
// stays a leaf dependency every other package can use without a cycle.
type TokenInfo struct {
	Line      int
	Col       int
	Start     int
	End       int
	LineStart int
}

// PicoError is the error type every phase of the compiler raises. The first
// one raised aborts its phase (§7: "all errors are fatal").
type PicoError struct {
	Kind    Kind
	Message string
	Token   TokenInfo
	cause   error
}

func New(kind Kind, message string, tok TokenInfo) *PicoError {
	return &PicoError{Kind: kind, Message: message, Token: tok}
}

func (e *PicoError) Error() string {
	return fmt.Sprintf("%s: %s (line %d, col %d)", e.Kind, e.Message, e.Token.Line, e.Token.Col)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *PicoError) Unwrap() error { return e.cause }

// WithCause attaches an underlying error (e.g. an I/O failure the driver
// observed) using github.com/pkg/errors so the chain keeps a stack trace.
func (e *PicoError) WithCause(cause error) *PicoError {
	e.cause = pkgerrors.WithStack(cause)
	return e
}

// Wrap annotates a driver-level error (file read/write failures, which are
// never raised by the core) with the path being processed.
func Wrap(err error, path string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, "%s", path)
}

// Cause unwraps a wrapped error down to its root, mirroring pkg/errors.Cause
// so callers (e.g. the watch server deciding whether a failure is retryable)
// don't need to import pkg/errors themselves.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}
