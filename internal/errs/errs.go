// Package errs wraps errors with context, captures a stack at the boundary
// where an infrastructure failure first appears, and renders the whole chain
// for structured logs.
package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
)

// Wrap adds context and keeps the chain usable with errors.Is and errors.As.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

// WithStack records the current stack once. Wrapping an error that already
// carries a stack returns it unchanged.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var se *StackError
	if errors.As(err, &se) {
		return err
	}
	return &StackError{err: err, stack: debug.Stack()}
}

type StackError struct {
	err   error
	stack []byte
}

func (e *StackError) Error() string { return e.err.Error() }
func (e *StackError) Unwrap() error { return e.err }
func (e *StackError) Stack() []byte { return e.stack }

type loggable struct{ err error }

// Loggable renders err as a group with its message, chain and stack.
// Usage: slog.Any("err", errs.Loggable(err))
func Loggable(err error) slog.LogValuer { return loggable{err: err} }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}

	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.Any("chain", ErrorChainStrings(l.err)),
	}
	var se *StackError
	if errors.As(l.err, &se) {
		attrs = append(attrs, slog.String("stack", string(se.Stack())))
	}
	return slog.GroupValue(attrs...)
}

// ErrorChainStrings walks the chain depth first, outer to inner, following
// both single and multi-%w wraps. Each error is listed once.
func ErrorChainStrings(err error) []string {
	if err == nil {
		return nil
	}

	out := make([]string, 0, 8)
	seen := make(map[error]struct{})
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if isComparable(e) {
			if _, ok := seen[e]; ok {
				return
			}
			seen[e] = struct{}{}
		}
		out = append(out, e.Error())
		switch wrapped := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range wrapped.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(wrapped.Unwrap())
		}
	}
	walk(err)
	return out
}

func isComparable(err error) bool {
	return reflect.TypeOf(err).Comparable()
}
