// Package oops provides structured errors with stable machine-readable codes.
// Commands match on the code to choose exit status and remedial hints.
package oops

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies a class of failure.
type Code string

const (
	CodeValidation Code = "VALIDATION"
	CodeConfig     Code = "CONFIG"
	CodeHierarchy  Code = "HIERARCHY_VIOLATION"
	CodeAgent      Code = "AGENT"
	CodeWorktree   Code = "WORKTREE"
	CodeMail       Code = "MAIL"
	CodeMerge      Code = "MERGE"
	CodeLifecycle  Code = "LIFECYCLE"
	CodeGroup      Code = "GROUP"
)

// Error is a structured error carrying a code, optional context fields, and
// an optional remedial hint.
type Error struct {
	Code    Code
	Message string
	Context map[string]string
	Hint    string
	wrapped error
}

// Error renders the code, message, and sorted context fields.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.wrapped.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.wrapped }

// New creates a structured error.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a structured error around a cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), wrapped: cause}
}

// With attaches a context field and returns the error for chaining.
func (e *Error) With(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithHint attaches a remedial hint and returns the error for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// CodeOf returns the code of err if it is (or wraps) a structured error,
// and "" otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
