// Package apperr defines the error kinds surfaced by the Gist engine.
package apperr

import (
	"fmt"
	"net/http"
	"strings"
)

// ParseError reports a malformed fields, filter or order expression.
type ParseError struct {
	Kind     string
	Position int
	Expected []string
	Found    string
	Message  string
}

func (e *ParseError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Illegal %s expression. Expected %s at position %d but found `%s`",
		e.Kind, joinExpected(e.Expected), e.Position, e.Found)
}

// ValidationError reports a request that is well-formed but invalid for the schema.
type ValidationError struct {
	Message string
	Status  int
}

func (e *ValidationError) Error() string { return e.Message }

// AuthorizationError indicates the caller may not read the schema.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// NotFoundError indicates the addressed object does not exist or is not visible.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ExecutionError wraps a storage failure.
type ExecutionError struct {
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ErrParse creates a ParseError at the given offset of a kind expression.
func ErrParse(kind string, position int, found string, expected ...string) *ParseError {
	return &ParseError{Kind: kind, Position: position, Expected: expected, Found: found}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Status: http.StatusBadRequest}
}

// ErrConflict creates a ValidationError reported with status 409.
func ErrConflict(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Status: http.StatusConflict}
}

// ErrAccessDenied creates an AuthorizationError with a formatted message.
func ErrAccessDenied(format string, args ...any) *AuthorizationError {
	return &AuthorizationError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecution wraps a storage error.
func ErrExecution(err error, format string, args ...any) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...), Err: err}
}

// joinExpected renders `a`, `b` or `c`.
func joinExpected(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = "`" + t + "`"
	}
	switch len(quoted) {
	case 0:
		return "end of input"
	case 1:
		return quoted[0]
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " or " + quoted[len(quoted)-1]
}
