// Package xerrors attaches call-site information to errors.
//
// New/Newf capture a stack at creation, Wrap/Wrapf record the single frame
// that added context. The logger reads both through the StackPCs and PC
// methods to render error_chain and error_links.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxDepth = 64

// stacked carries the stack captured where the error entered our code.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

// annotated prefixes an error with context and remembers who added it.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string     { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error     { return a.err }
func (a *annotated) PC() uintptr       { return a.pc }
func (a *annotated) IsXerrorsWrapper() {}

// skip counts frames above the caller of the exported function
func capture(skip int) []uintptr {
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

func caller(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func stack(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: capture(skip + 1)}
}

// New returns an error with msg and a stack rooted at the caller.
func New(msg string) error { return stack(errors.New(msg), 1) }

// Newf is New with formatting. %w is honored.
func Newf(format string, args ...any) error { return stack(fmt.Errorf(format, args...), 1) }

// WithStack adds a stack to err. Returns nil for nil.
func WithStack(err error) error { return stack(err, 1) }

// EnsureTrace adds a stack only when nothing in the chain carries one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return stack(err, 1)
}

// Wrap prefixes err with msg. Returns nil for nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: caller(1)}
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: caller(1)}
}
